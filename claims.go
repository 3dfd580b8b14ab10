package identity

import (
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// TokenPurpose discriminates the consumption context a token was minted for.
// The wire representation is the audience claim, so issued tokens stay
// readable by consumers that inspect `aud` directly. A token that verifies
// cryptographically must still be rejected by any consumer expecting a
// different purpose.
type TokenPurpose int

const (
	PurposeAccess TokenPurpose = iota
	PurposeRefresh
	PurposeConfirmEmail
	PurposeForgotPassword
)

const (
	audienceRefresh        = "/refresh"
	audienceConfirmEmail   = "confirm-email-token"
	audienceForgotPassword = "forgot-password-identity-token"
)

// Audience returns the wire audience for the purpose. Access tokens carry no
// audience claim.
func (p TokenPurpose) Audience() jwt.ClaimStrings {
	switch p {
	case PurposeRefresh:
		return jwt.ClaimStrings{audienceRefresh}
	case PurposeConfirmEmail:
		return jwt.ClaimStrings{audienceConfirmEmail}
	case PurposeForgotPassword:
		return jwt.ClaimStrings{audienceForgotPassword}
	default:
		return nil
	}
}

func (p TokenPurpose) String() string {
	switch p {
	case PurposeRefresh:
		return "refresh"
	case PurposeConfirmEmail:
		return "confirm-email"
	case PurposeForgotPassword:
		return "forgot-password"
	default:
		return "access"
	}
}

// PurposeFromAudience maps an audience claim back onto a purpose. An empty
// or unrecognized audience is a plain access token.
func PurposeFromAudience(aud jwt.ClaimStrings) TokenPurpose {
	for _, a := range aud {
		switch a {
		case audienceRefresh:
			return PurposeRefresh
		case audienceConfirmEmail:
			return PurposeConfirmEmail
		case audienceForgotPassword:
			return PurposeForgotPassword
		}
	}
	return PurposeAccess
}

// Claims is the signed token payload.
type Claims struct {
	jwt.RegisteredClaims
	Roles     []string `json:"roles,omitempty"`
	Email     string   `json:"email,omitempty"`
	FirstName string   `json:"firstname,omitempty"`
	LastName  string   `json:"lastname,omitempty"`
	Picture   string   `json:"picture,omitempty"`
}

// Purpose returns the token purpose encoded in the audience claim.
func (c *Claims) Purpose() TokenPurpose {
	return PurposeFromAudience(c.Audience)
}

// HasRole checks if the claims carry a specific role.
func (c *Claims) HasRole(role string) bool {
	for _, r := range c.Roles {
		if r == role {
			return true
		}
	}
	return false
}

// HasAnyRole reports whether the claims intersect the given role set. An
// empty set means any authenticated caller passes.
func (c *Claims) HasAnyRole(roles ...string) bool {
	if len(roles) == 0 {
		return true
	}
	for _, r := range roles {
		if c.HasRole(r) {
			return true
		}
	}
	return false
}

// Expires returns the expiration time, zero when absent.
func (c *Claims) Expires() time.Time {
	if c.ExpiresAt != nil {
		return c.ExpiresAt.Time
	}
	return time.Time{}
}

// Issued returns the issuance time, zero when absent.
func (c *Claims) Issued() time.Time {
	if c.IssuedAt != nil {
		return c.IssuedAt.Time
	}
	return time.Time{}
}

// requirePurpose rejects a token minted for a different consumption context,
// even when signature and expiry already passed. The switch is exhaustive on
// purpose so a new purpose cannot silently pass.
func requirePurpose(c *Claims, want TokenPurpose) error {
	if c == nil {
		return ErrUnauthorized
	}
	switch got := c.Purpose(); got {
	case PurposeAccess, PurposeRefresh, PurposeConfirmEmail, PurposeForgotPassword:
		if got != want {
			return ErrUnauthorized
		}
		return nil
	default:
		return ErrUnauthorized
	}
}
