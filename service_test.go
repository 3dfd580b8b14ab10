package identity_test

import (
	"context"
	"strings"
	"sync"
	"testing"

	"github.com/goliatone/go-errors"
	"github.com/goliatone/go-identity"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"
)

// memStore is an in-memory UserStore for exercising the service without a
// database.
type memStore struct {
	mu    sync.Mutex
	users map[string]*identity.AuthUser
}

func newMemStore() *memStore {
	return &memStore{users: map[string]*identity.AuthUser{}}
}

func (m *memStore) GetByEmail(ctx context.Context, email string) (*identity.AuthUser, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, u := range m.users {
		if u.Email == email {
			clone := *u
			return &clone, nil
		}
	}
	return nil, nil
}

func (m *memStore) Get(ctx context.Context, idOrEmail string) (*identity.AuthUser, error) {
	if strings.Contains(idOrEmail, "@") {
		return m.GetByEmail(ctx, idOrEmail)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if u, ok := m.users[idOrEmail]; ok {
		clone := *u
		return &clone, nil
	}
	return nil, nil
}

func (m *memStore) Upsert(ctx context.Context, user *identity.AuthUser) (*identity.AuthUser, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	clone := *user
	m.users[user.ID] = &clone
	out := clone
	return &out, nil
}

func (m *memStore) Remove(ctx context.Context, idOrEmail string) (bool, error) {
	user, err := m.Get(ctx, idOrEmail)
	if err != nil || user == nil {
		return false, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.users, user.ID)
	return true, nil
}

func (m *memStore) List(ctx context.Context, query identity.ListQuery) ([]*identity.AuthUser, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*identity.AuthUser
	for _, u := range m.users {
		if query.Email != "" && u.Email != query.Email {
			continue
		}
		match := true
		for _, tag := range query.Tags {
			if !u.HasTag(tag) {
				match = false
				break
			}
		}
		if match {
			clone := *u
			out = append(out, &clone)
		}
	}
	return out, nil
}

func (m *memStore) Count(ctx context.Context, query identity.ListQuery) (int, error) {
	users, err := m.List(ctx, query)
	return len(users), err
}

// the same secret for every token purpose makes purpose isolation the only
// thing standing between consumers, which is exactly what these tests probe
var testCfg = identity.SimpleConfig{
	Issuer:               "identity-test",
	AccessTokenSecret:    "shared-test-secret",
	RefreshTokenSecret:   "shared-test-secret",
	ConfirmEmailSecret:   "shared-test-secret",
	ForgotPasswordSecret: "shared-test-secret",
	AdminEmails:          "admin@x.com, root@x.com",
	APIKeyDomain:         "example.com",
}

func newTestService(t *testing.T, opts ...identity.ServiceOption) (*identity.Service, *memStore) {
	t.Helper()
	store := newMemStore()
	opts = append([]identity.ServiceOption{
		identity.WithHasher(identity.BcryptHasher{Cost: bcrypt.MinCost}),
	}, opts...)
	return identity.NewService(store, testCfg, opts...), store
}

func TestSignup(t *testing.T) {
	ctx := context.Background()

	t.Run("returns a bearer session", func(t *testing.T) {
		svc, _ := newTestService(t)

		resp, err := svc.Signup(ctx, identity.SignupPayload{
			Email:    "a@b.com",
			Password: "secret1",
		})
		require.NoError(t, err)

		assert.Equal(t, "Bearer", resp.TokenType)
		assert.True(t, strings.HasPrefix(resp.UserID, "au_"))
		assert.NotEmpty(t, resp.AccessToken)
		assert.NotEmpty(t, resp.RefreshToken)
		require.NotNil(t, resp.User)
		assert.Empty(t, resp.User.PasswordHash)

		user, err := svc.GetUser(ctx, "a@b.com")
		require.NoError(t, err)
		assert.Empty(t, user.PasswordHash)
		assert.Equal(t, []string{identity.RoleUser}, user.Roles)
		assert.False(t, user.ConfirmedEmail)
	})

	t.Run("duplicate email conflicts", func(t *testing.T) {
		svc, _ := newTestService(t)

		_, err := svc.Signup(ctx, identity.SignupPayload{Email: "a@b.com", Password: "secret1"})
		require.NoError(t, err)

		_, err = svc.Signup(ctx, identity.SignupPayload{Email: "a@b.com", Password: "secret1"})
		assert.ErrorIs(t, err, identity.ErrAlreadySignedUp)

		// surfaces as a plain bad request, not a 409
		var rich *errors.Error
		require.ErrorAs(t, err, &rich)
		assert.Equal(t, errors.CodeBadRequest, rich.Code)
	})

	t.Run("invalid payload", func(t *testing.T) {
		svc, _ := newTestService(t)

		_, err := svc.Signup(ctx, identity.SignupPayload{Email: "not-an-email", Password: "secret1"})
		assert.Error(t, err)

		_, err = svc.Signup(ctx, identity.SignupPayload{Email: "a@b.com", Password: "abc"})
		assert.Error(t, err)
	})

	t.Run("admin allow-list grants the admin role", func(t *testing.T) {
		svc, _ := newTestService(t)

		resp, err := svc.Signup(ctx, identity.SignupPayload{Email: "admin@x.com", Password: "secret1"})
		require.NoError(t, err)
		assert.Equal(t, []string{identity.RoleAdmin}, resp.User.Roles)
	})

	t.Run("emits signup then confirm-email token", func(t *testing.T) {
		notifier := identity.NewNotifier(nil)
		var events []string
		var confirmToken string
		notifier.Subscribe(identity.EventSignup, func(ctx context.Context, n *identity.Notification) error {
			events = append(events, n.Name)
			user := n.Payload["user"].(*identity.AuthUser)
			assert.Empty(t, user.PasswordHash)
			return nil
		})
		notifier.Subscribe(identity.EventConfirmEmailTokenGenerated, func(ctx context.Context, n *identity.Notification) error {
			events = append(events, n.Name)
			confirmToken = n.Payload["token"].(string)
			return nil
		})

		svc, _ := newTestService(t, identity.WithNotifier(notifier))

		_, err := svc.Signup(ctx, identity.SignupPayload{Email: "a@b.com", Password: "secret1"})
		require.NoError(t, err)

		assert.Equal(t, []string{identity.EventSignup, identity.EventConfirmEmailTokenGenerated}, events)
		assert.NotEmpty(t, confirmToken)
	})
}

func TestSignin(t *testing.T) {
	ctx := context.Background()

	t.Run("valid credentials", func(t *testing.T) {
		svc, _ := newTestService(t)
		_, err := svc.Signup(ctx, identity.SignupPayload{Email: "a@b.com", Password: "secret1"})
		require.NoError(t, err)

		resp, err := svc.Signin(ctx, identity.SigninPayload{Email: "a@b.com", Password: "secret1"}, false)
		require.NoError(t, err)
		assert.Equal(t, "Bearer", resp.TokenType)
		assert.Empty(t, resp.User.PasswordHash)
	})

	t.Run("wrong password", func(t *testing.T) {
		svc, _ := newTestService(t)
		_, err := svc.Signup(ctx, identity.SignupPayload{Email: "a@b.com", Password: "secret1"})
		require.NoError(t, err)

		_, err = svc.Signin(ctx, identity.SigninPayload{Email: "a@b.com", Password: "wrong"}, false)
		assert.ErrorIs(t, err, identity.ErrUnauthorized)
	})

	t.Run("unknown non-admin email stays unknown", func(t *testing.T) {
		svc, store := newTestService(t)

		_, err := svc.Signin(ctx, identity.SigninPayload{Email: "nobody@b.com", Password: "whatever"}, false)
		assert.ErrorIs(t, err, identity.ErrUnauthorized)

		user, err := store.GetByEmail(ctx, "nobody@b.com")
		require.NoError(t, err)
		assert.Nil(t, user)
	})

	t.Run("admin bootstrap provisions on first contact", func(t *testing.T) {
		svc, store := newTestService(t)

		// wrong password still provisions the record with the default
		_, err := svc.Signin(ctx, identity.SigninPayload{Email: "admin@x.com", Password: "wrong"}, true)
		assert.ErrorIs(t, err, identity.ErrUnauthorized)

		user, err := store.GetByEmail(ctx, "admin@x.com")
		require.NoError(t, err)
		require.NotNil(t, user)
		assert.True(t, user.IsAdmin())

		resp, err := svc.Signin(ctx, identity.SigninPayload{Email: "admin@x.com", Password: "admin"}, true)
		require.NoError(t, err)
		assert.Equal(t, user.ID, resp.UserID)
	})

	t.Run("failIfNotAdmin rejects regular users", func(t *testing.T) {
		svc, _ := newTestService(t)
		_, err := svc.Signup(ctx, identity.SignupPayload{Email: "a@b.com", Password: "secret1"})
		require.NoError(t, err)

		_, err = svc.Signin(ctx, identity.SigninPayload{Email: "a@b.com", Password: "secret1"}, true)
		assert.ErrorIs(t, err, identity.ErrUnauthorized)
	})
}

func TestRefresh(t *testing.T) {
	ctx := context.Background()

	t.Run("mints a fresh access token", func(t *testing.T) {
		svc, _ := newTestService(t)
		signup, err := svc.Signup(ctx, identity.SignupPayload{Email: "a@b.com", Password: "secret1"})
		require.NoError(t, err)

		resp, err := svc.Refresh(ctx, signup.RefreshToken)
		require.NoError(t, err)
		assert.Equal(t, signup.UserID, resp.UserID)
		assert.NotEmpty(t, resp.AccessToken)
		assert.Equal(t, signup.RefreshToken, resp.RefreshToken)

		claims := identity.ExtractClaims(resp.AccessToken)
		assert.Equal(t, identity.PurposeAccess, claims.Purpose())
		assert.Equal(t, "a@b.com", claims.Email)
	})

	t.Run("access token is rejected despite a valid signature", func(t *testing.T) {
		svc, _ := newTestService(t)
		signup, err := svc.Signup(ctx, identity.SignupPayload{Email: "a@b.com", Password: "secret1"})
		require.NoError(t, err)

		_, err = svc.Refresh(ctx, signup.AccessToken)
		assert.ErrorIs(t, err, identity.ErrUnauthorized)
	})

	t.Run("garbage token", func(t *testing.T) {
		svc, _ := newTestService(t)
		_, err := svc.Refresh(ctx, "not-a-token")
		assert.ErrorIs(t, err, identity.ErrUnauthorized)
	})
}

func TestChangePassword(t *testing.T) {
	ctx := context.Background()

	t.Run("rotates the credential", func(t *testing.T) {
		svc, _ := newTestService(t)
		_, err := svc.Signup(ctx, identity.SignupPayload{Email: "a@b.com", Password: "secret1"})
		require.NoError(t, err)

		resp, err := svc.ChangePassword(ctx, identity.ChangePasswordPayload{
			IDOrEmail:          "a@b.com",
			CurrentPassword:    "secret1",
			NewPassword:        "secret2",
			ConfirmNewPassword: "secret2",
		})
		require.NoError(t, err)
		assert.NotEmpty(t, resp.AccessToken)

		_, err = svc.Signin(ctx, identity.SigninPayload{Email: "a@b.com", Password: "secret1"}, false)
		assert.ErrorIs(t, err, identity.ErrUnauthorized)

		_, err = svc.Signin(ctx, identity.SigninPayload{Email: "a@b.com", Password: "secret2"}, false)
		assert.NoError(t, err)
	})

	t.Run("wrong current password", func(t *testing.T) {
		svc, _ := newTestService(t)
		_, err := svc.Signup(ctx, identity.SignupPayload{Email: "a@b.com", Password: "secret1"})
		require.NoError(t, err)

		_, err = svc.ChangePassword(ctx, identity.ChangePasswordPayload{
			IDOrEmail:          "a@b.com",
			CurrentPassword:    "wrong",
			NewPassword:        "secret2",
			ConfirmNewPassword: "secret2",
		})
		assert.ErrorIs(t, err, identity.ErrUnauthorized)
	})

	t.Run("mismatched confirmation", func(t *testing.T) {
		svc, _ := newTestService(t)
		_, err := svc.ChangePassword(ctx, identity.ChangePasswordPayload{
			IDOrEmail:          "a@b.com",
			CurrentPassword:    "secret1",
			NewPassword:        "secret2",
			ConfirmNewPassword: "other",
		})
		assert.Error(t, err)
	})
}

func TestConfirmEmail(t *testing.T) {
	ctx := context.Background()

	t.Run("marks the email confirmed", func(t *testing.T) {
		notifier := identity.NewNotifier(nil)
		var token string
		notifier.Subscribe(identity.EventConfirmEmailTokenGenerated, func(ctx context.Context, n *identity.Notification) error {
			token = n.Payload["token"].(string)
			return nil
		})

		svc, _ := newTestService(t, identity.WithNotifier(notifier))
		_, err := svc.Signup(ctx, identity.SignupPayload{Email: "a@b.com", Password: "secret1"})
		require.NoError(t, err)
		require.NotEmpty(t, token)

		user, err := svc.ConfirmEmail(ctx, token)
		require.NoError(t, err)
		assert.True(t, user.ConfirmedEmail)
		assert.Empty(t, user.PasswordHash)
	})

	t.Run("token is stored as a user attribute", func(t *testing.T) {
		svc, store := newTestService(t)
		resp, err := svc.Signup(ctx, identity.SignupPayload{Email: "a@b.com", Password: "secret1"})
		require.NoError(t, err)

		user, err := store.Get(ctx, resp.UserID)
		require.NoError(t, err)
		stored, ok := user.GetAttribute(identity.AttrConfirmEmailToken)
		assert.True(t, ok)
		assert.NotEmpty(t, stored)
	})

	t.Run("access token is not a confirm token", func(t *testing.T) {
		svc, _ := newTestService(t)
		resp, err := svc.Signup(ctx, identity.SignupPayload{Email: "a@b.com", Password: "secret1"})
		require.NoError(t, err)

		_, err = svc.ConfirmEmail(ctx, resp.AccessToken)
		assert.ErrorIs(t, err, identity.ErrUnauthorized)
	})
}

func TestForgotPassword(t *testing.T) {
	ctx := context.Background()

	t.Run("request never reveals whether the user exists", func(t *testing.T) {
		notifier := identity.NewNotifier(nil)
		var dispatched string
		notifier.Subscribe(identity.EventForgotPasswordTokenGenerated, func(ctx context.Context, n *identity.Notification) error {
			dispatched = n.Payload["token"].(string)
			return nil
		})

		svc, _ := newTestService(t, identity.WithNotifier(notifier))

		token, err := svc.ForgotPasswordRequest(ctx, "nobody@b.com")
		require.NoError(t, err)
		assert.NotEmpty(t, token)
		assert.Equal(t, token, dispatched)

		// the subject is the literal email, resolution happens at confirm
		claims := identity.ExtractClaims(token)
		assert.Equal(t, "nobody@b.com", claims.Subject)
		assert.Equal(t, identity.PurposeForgotPassword, claims.Purpose())
	})

	t.Run("confirm resets to a random password", func(t *testing.T) {
		svc, _ := newTestService(t)
		_, err := svc.Signup(ctx, identity.SignupPayload{Email: "a@b.com", Password: "secret1"})
		require.NoError(t, err)

		token, err := svc.ForgotPasswordRequest(ctx, "a@b.com")
		require.NoError(t, err)

		result, err := svc.ForgotPasswordConfirm(ctx, token)
		require.NoError(t, err)
		assert.Equal(t, "a@b.com", result.Email)
		require.NotEmpty(t, result.Password)

		_, err = svc.Signin(ctx, identity.SigninPayload{Email: "a@b.com", Password: "secret1"}, false)
		assert.ErrorIs(t, err, identity.ErrUnauthorized)

		_, err = svc.Signin(ctx, identity.SigninPayload{Email: "a@b.com", Password: result.Password}, false)
		assert.NoError(t, err)
	})

	t.Run("confirm for an unknown email fails", func(t *testing.T) {
		svc, _ := newTestService(t)
		token, err := svc.ForgotPasswordRequest(ctx, "nobody@b.com")
		require.NoError(t, err)

		_, err = svc.ForgotPasswordConfirm(ctx, token)
		assert.ErrorIs(t, err, identity.ErrUserNotFound)
	})

	t.Run("access token is not a reset token", func(t *testing.T) {
		svc, _ := newTestService(t)
		resp, err := svc.Signup(ctx, identity.SignupPayload{Email: "a@b.com", Password: "secret1"})
		require.NoError(t, err)

		_, err = svc.ForgotPasswordConfirm(ctx, resp.AccessToken)
		assert.ErrorIs(t, err, identity.ErrUnauthorized)
	})
}

func TestAPIKeys(t *testing.T) {
	ctx := context.Background()

	t.Run("round trip", func(t *testing.T) {
		svc, _ := newTestService(t)

		key, err := svc.CreateAPIKey(ctx)
		require.NoError(t, err)

		email, password, err := identity.ParseAPIKey(key)
		require.NoError(t, err)
		assert.Contains(t, email, "@apikey.example.com")
		assert.NotEmpty(t, password)

		user, err := svc.VerifyAPIKey(ctx, key)
		require.NoError(t, err)
		assert.Empty(t, user.PasswordHash)
		assert.True(t, user.IsAdmin())
		assert.True(t, user.HasTag(identity.TagAPIKey))

		// keys are re-verifiable, not single use
		again, err := svc.VerifyAPIKey(ctx, key)
		require.NoError(t, err)
		assert.Equal(t, user.ID, again.ID)
	})

	t.Run("mutated key fails", func(t *testing.T) {
		svc, _ := newTestService(t)

		key, err := svc.CreateAPIKey(ctx)
		require.NoError(t, err)

		mutated := []byte(key)
		if mutated[len(mutated)-1] == 'A' {
			mutated[len(mutated)-1] = 'B'
		} else {
			mutated[len(mutated)-1] = 'A'
		}

		_, err = svc.VerifyAPIKey(ctx, string(mutated))
		assert.ErrorIs(t, err, identity.ErrUnauthorized)
	})

	t.Run("malformed key fails", func(t *testing.T) {
		svc, _ := newTestService(t)

		for _, key := range []string{"", "!!!", "bm9jb2xvbg"} {
			_, err := svc.VerifyAPIKey(ctx, key)
			assert.ErrorIs(t, err, identity.ErrUnauthorized)
		}
	})

	t.Run("list returns sanitized key users", func(t *testing.T) {
		svc, _ := newTestService(t)
		_, err := svc.CreateAPIKey(ctx)
		require.NoError(t, err)
		_, err = svc.CreateAPIKey(ctx)
		require.NoError(t, err)

		keys, err := svc.ListAPIKeys(ctx)
		require.NoError(t, err)
		assert.Len(t, keys, 2)
		for _, u := range keys {
			assert.Empty(t, u.PasswordHash)
			assert.True(t, u.HasTag(identity.TagAPIKey))
		}
	})
}

func TestSignInWithProfile(t *testing.T) {
	ctx := context.Background()

	t.Run("first arrival creates a confirmed user", func(t *testing.T) {
		notifier := identity.NewNotifier(nil)
		var events []string
		notifier.Subscribe(identity.EventSignup, func(ctx context.Context, n *identity.Notification) error {
			events = append(events, n.Name)
			return nil
		})
		notifier.Subscribe(identity.EventSignin, func(ctx context.Context, n *identity.Notification) error {
			events = append(events, n.Name)
			return nil
		})

		svc, store := newTestService(t, identity.WithNotifier(notifier))

		profile := identity.ExternalProfile{
			Provider:  "google",
			Email:     "pepe@gmail.com",
			FirstName: "Pepe",
			LastName:  "Rone",
			Picture:   "https://example.com/pepe.png",
		}

		resp, err := svc.SignInWithProfile(ctx, profile)
		require.NoError(t, err)
		assert.Equal(t, "Bearer", resp.TokenType)
		assert.True(t, strings.HasPrefix(resp.UserID, "au_"))

		user, err := store.GetByEmail(ctx, "pepe@gmail.com")
		require.NoError(t, err)
		assert.True(t, user.ConfirmedEmail)
		provider, _ := user.GetAttribute(identity.AttrProvider)
		assert.Equal(t, "google", provider)

		// second arrival signs in instead of re-creating
		again, err := svc.SignInWithProfile(ctx, profile)
		require.NoError(t, err)
		assert.Equal(t, resp.UserID, again.UserID)

		assert.Equal(t, []string{identity.EventSignup, identity.EventSignin}, events)
	})

	t.Run("profile without email is rejected", func(t *testing.T) {
		svc, _ := newTestService(t)
		_, err := svc.SignInWithProfile(ctx, identity.ExternalProfile{Provider: "google"})
		assert.ErrorIs(t, err, identity.ErrUnauthorized)
	})
}

func TestUserManagement(t *testing.T) {
	ctx := context.Background()

	t.Run("upsert and remove always dispatch", func(t *testing.T) {
		notifier := identity.NewNotifier(nil)
		var events []string
		for _, name := range []string{identity.EventUpsert, identity.EventRemove} {
			notifier.Subscribe(name, func(ctx context.Context, n *identity.Notification) error {
				events = append(events, n.Name)
				user := n.Payload["user"].(*identity.AuthUser)
				assert.Empty(t, user.PasswordHash)
				return nil
			})
		}

		svc, _ := newTestService(t, identity.WithNotifier(notifier))

		user, err := svc.UpsertUser(ctx, &identity.AuthUser{Email: "a@b.com", Active: true})
		require.NoError(t, err)
		assert.True(t, strings.HasPrefix(user.ID, "au_"))

		ok, err := svc.RemoveUser(ctx, "a@b.com")
		require.NoError(t, err)
		assert.True(t, ok)

		assert.Equal(t, []string{identity.EventUpsert, identity.EventRemove}, events)
	})

	t.Run("get unknown user", func(t *testing.T) {
		svc, _ := newTestService(t)
		_, err := svc.GetUser(ctx, "nobody@b.com")
		assert.ErrorIs(t, err, identity.ErrUserNotFound)
	})

	t.Run("list and count", func(t *testing.T) {
		svc, _ := newTestService(t)
		_, err := svc.Signup(ctx, identity.SignupPayload{Email: "a@b.com", Password: "secret1"})
		require.NoError(t, err)
		_, err = svc.Signup(ctx, identity.SignupPayload{Email: "c@d.com", Password: "secret1"})
		require.NoError(t, err)

		users, err := svc.ListUsers(ctx, identity.ListQuery{})
		require.NoError(t, err)
		assert.Len(t, users, 2)
		for _, u := range users {
			assert.Empty(t, u.PasswordHash)
		}

		n, err := svc.Count(ctx, identity.ListQuery{Email: "a@b.com"})
		require.NoError(t, err)
		assert.Equal(t, 1, n)
	})
}

type recordingProvisioner struct {
	mu         sync.Mutex
	customerID string
	user       *identity.AuthUser
}

func (r *recordingProvisioner) Provision(ctx context.Context, customerID string, user *identity.AuthUser) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.customerID = customerID
	r.user = user
	return nil
}

func TestCustomerProvisioning(t *testing.T) {
	ctx := context.Background()

	provisioner := &recordingProvisioner{}
	svc, _ := newTestService(t, identity.WithCustomerProvisioner(provisioner))

	resp, err := svc.Signup(ctx, identity.SignupPayload{Email: "a@b.com", Password: "secret1"})
	require.NoError(t, err)

	assert.Equal(t, identity.CustomerID(resp.UserID), provisioner.customerID)
	require.NotNil(t, provisioner.user)
	assert.Empty(t, provisioner.user.PasswordHash)
}
