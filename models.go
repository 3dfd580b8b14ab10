package identity

import (
	"strings"
	"time"

	"github.com/goliatone/hashid/pkg/hashid"
	"github.com/google/uuid"
	"github.com/uptrace/bun"
)

// UserRole is the user's role
type UserRole = string

const (
	// RoleUser is the default role for self-service signups
	RoleUser UserRole = "user"
	// RoleAdmin is granted to emails on the admin allow-list
	RoleAdmin UserRole = "admin"
)

const (
	authUserIDPrefix = "au_"
	customerIDPrefix = "cus_"

	// TagAPIKey marks the synthetic users backing API keys
	TagAPIKey = "apikey"

	// AttrConfirmEmailToken stores the confirm-email token on the record so
	// a re-fetch of the user can recover it
	AttrConfirmEmailToken = "confirm-email-token"
	// AttrProvider records the identity provider a user first arrived from
	AttrProvider = "provider"
	// AttrPicture records the profile picture URL an identity provider returned
	AttrPicture = "picture"
)

// Attribute is a key/value pair attached to a user record.
type Attribute struct {
	Key   string `json:"key"`
	Value string `json:"value"`
}

// AuthUser is the identity record. The ID is immutable once created and
// always prefixed au_; email is the natural lookup key.
type AuthUser struct {
	bun.BaseModel `bun:"table:auth_users,alias:au"`

	ID             string      `bun:"id,pk" json:"id,omitempty"`
	Email          string      `bun:"email,notnull,unique" json:"email,omitempty"`
	PasswordHash   string      `bun:"password_hash" json:"-"`
	ConfirmedEmail bool        `bun:"confirmed_email" json:"confirmed_email"`
	Roles          []string    `bun:"roles" json:"roles,omitempty"`
	FirstName      string      `bun:"first_name" json:"firstname,omitempty"`
	LastName       string      `bun:"last_name" json:"lastname,omitempty"`
	Tags           []string    `bun:"tags" json:"tags,omitempty"`
	Active         bool        `bun:"active" json:"active"`
	Attributes     []Attribute `bun:"attributes" json:"attributes,omitempty"`
	CreatedAt      *time.Time  `bun:"created_at,nullzero,default:current_timestamp" json:"created_at,omitempty"`
	UpdatedAt      *time.Time  `bun:"updated_at,nullzero,default:current_timestamp" json:"updated_at,omitempty"`
}

// Sanitize returns a copy with the password hash stripped. Every event
// payload and external-facing read crosses the subsystem boundary through
// here. Sanitizing a sanitized record is a no-op.
func (u *AuthUser) Sanitize() *AuthUser {
	if u == nil {
		return nil
	}
	clone := *u
	clone.PasswordHash = ""
	return &clone
}

// GetAttribute returns the value stored under key.
func (u *AuthUser) GetAttribute(key string) (string, bool) {
	for _, a := range u.Attributes {
		if a.Key == key {
			return a.Value, true
		}
	}
	return "", false
}

// SetAttribute stores value under key, replacing any previous value.
func (u *AuthUser) SetAttribute(key, value string) *AuthUser {
	for i, a := range u.Attributes {
		if a.Key == key {
			u.Attributes[i].Value = value
			return u
		}
	}
	u.Attributes = append(u.Attributes, Attribute{Key: key, Value: value})
	return u
}

// HasTag checks for a tag on the record.
func (u *AuthUser) HasTag(tag string) bool {
	for _, t := range u.Tags {
		if t == tag {
			return true
		}
	}
	return false
}

// HasRole checks for a role on the record.
func (u *AuthUser) HasRole(role string) bool {
	for _, r := range u.Roles {
		if r == role {
			return true
		}
	}
	return false
}

// IsAdmin reports whether the record carries the admin role.
func (u *AuthUser) IsAdmin() bool {
	return u.HasRole(RoleAdmin)
}

// NewAuthUserID derives the prefixed record id. The suffix is deterministic
// for a given email so retried signups do not mint divergent ids.
func NewAuthUserID(email string) string {
	id, err := hashid.NewUUID(email)
	if err != nil {
		id = uuid.New()
	}
	return authUserIDPrefix + strings.ReplaceAll(id.String(), "-", "")
}

// CustomerID maps an auth id onto the linked customer record id, sharing the
// same suffix.
func CustomerID(authID string) string {
	return customerIDPrefix + strings.TrimPrefix(authID, authUserIDPrefix)
}
