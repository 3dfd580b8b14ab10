package identity_test

import (
	"encoding/json"
	"strings"
	"testing"

	"github.com/goliatone/go-identity"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSanitize(t *testing.T) {
	t.Run("strips the password hash", func(t *testing.T) {
		user := &identity.AuthUser{
			ID:           "au_0001",
			Email:        "pepe@example.com",
			PasswordHash: "$2a$14$whatever",
		}

		clean := user.Sanitize()
		assert.Empty(t, clean.PasswordHash)
		assert.Equal(t, "au_0001", clean.ID)
		// the original record keeps its hash
		assert.NotEmpty(t, user.PasswordHash)
	})

	t.Run("is idempotent", func(t *testing.T) {
		user := &identity.AuthUser{ID: "au_0001", PasswordHash: "hash"}
		once := user.Sanitize()
		twice := once.Sanitize()
		assert.Equal(t, once, twice)
	})

	t.Run("nil receiver", func(t *testing.T) {
		var user *identity.AuthUser
		assert.Nil(t, user.Sanitize())
	})

	t.Run("sanitized JSON omits password", func(t *testing.T) {
		user := &identity.AuthUser{
			ID:           "au_0001",
			Email:        "pepe@example.com",
			PasswordHash: "hash",
		}

		raw, err := json.Marshal(user.Sanitize())
		require.NoError(t, err)
		assert.NotContains(t, string(raw), "password")
	})

	t.Run("hash never serializes even without sanitizing", func(t *testing.T) {
		user := &identity.AuthUser{
			ID:           "au_0001",
			Email:        "pepe@example.com",
			PasswordHash: "$2a$14$whatever",
		}

		raw, err := json.Marshal(user)
		require.NoError(t, err)
		assert.NotContains(t, string(raw), "password")
		assert.NotContains(t, string(raw), "$2a$14$whatever")
	})
}

func TestAuthUserAttributes(t *testing.T) {
	user := &identity.AuthUser{}

	t.Run("set and get", func(t *testing.T) {
		user.SetAttribute("provider", "google")
		v, ok := user.GetAttribute("provider")
		assert.True(t, ok)
		assert.Equal(t, "google", v)
	})

	t.Run("set replaces", func(t *testing.T) {
		user.SetAttribute("provider", "github")
		v, _ := user.GetAttribute("provider")
		assert.Equal(t, "github", v)
		assert.Len(t, user.Attributes, 1)
	})

	t.Run("missing key", func(t *testing.T) {
		_, ok := user.GetAttribute("nope")
		assert.False(t, ok)
	})
}

func TestAuthUserRolesAndTags(t *testing.T) {
	user := &identity.AuthUser{
		Roles: []string{identity.RoleAdmin},
		Tags:  []string{identity.TagAPIKey},
	}

	assert.True(t, user.IsAdmin())
	assert.True(t, user.HasRole(identity.RoleAdmin))
	assert.False(t, user.HasRole(identity.RoleUser))
	assert.True(t, user.HasTag(identity.TagAPIKey))
	assert.False(t, user.HasTag("other"))
}

func TestIdentifiers(t *testing.T) {
	t.Run("auth id is prefixed and deterministic", func(t *testing.T) {
		a := identity.NewAuthUserID("pepe@example.com")
		b := identity.NewAuthUserID("pepe@example.com")
		c := identity.NewAuthUserID("other@example.com")

		assert.True(t, strings.HasPrefix(a, "au_"))
		assert.Equal(t, a, b)
		assert.NotEqual(t, a, c)
		assert.NotContains(t, a, "-")
	})

	t.Run("customer id shares the suffix", func(t *testing.T) {
		authID := identity.NewAuthUserID("pepe@example.com")
		customerID := identity.CustomerID(authID)

		assert.True(t, strings.HasPrefix(customerID, "cus_"))
		assert.Equal(t, strings.TrimPrefix(authID, "au_"), strings.TrimPrefix(customerID, "cus_"))
	})
}
