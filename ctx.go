package identity

import (
	"context"

	"github.com/goliatone/go-router"
)

// AuthContext is the caller identity attached to a request once a credential
// resolves. Its absence means the caller is anonymous.
type AuthContext struct {
	Subject   string   `json:"subject"`
	Email     string   `json:"email,omitempty"`
	FirstName string   `json:"firstname,omitempty"`
	LastName  string   `json:"lastname,omitempty"`
	Roles     []string `json:"roles,omitempty"`
}

// HasAnyRole reports whether the context intersects the given role set. An
// empty set means any authenticated caller passes.
func (a *AuthContext) HasAnyRole(roles ...string) bool {
	if a == nil {
		return false
	}
	if len(roles) == 0 {
		return true
	}
	for _, want := range roles {
		for _, have := range a.Roles {
			if want == have {
				return true
			}
		}
	}
	return false
}

// AuthContextFromClaims builds the request identity from verified claims.
func AuthContextFromClaims(c *Claims) *AuthContext {
	if c == nil {
		return nil
	}
	return &AuthContext{
		Subject:   c.Subject,
		Email:     c.Email,
		FirstName: c.FirstName,
		LastName:  c.LastName,
		Roles:     c.Roles,
	}
}

// AuthContextFromUser builds the request identity from a resolved record,
// e.g. after API-key verification.
func AuthContextFromUser(u *AuthUser) *AuthContext {
	if u == nil {
		return nil
	}
	return &AuthContext{
		Subject:   u.ID,
		Email:     u.Email,
		FirstName: u.FirstName,
		LastName:  u.LastName,
		Roles:     u.Roles,
	}
}

var authCtxKey = &contextKey{"auth"}

type contextKey struct {
	name string
}

// WithAuthContext sets the caller identity in the given context
func WithAuthContext(ctx context.Context, auth *AuthContext) context.Context {
	return context.WithValue(ctx, authCtxKey, auth)
}

// AuthFromContext finds the caller identity in the standard context.
func AuthFromContext(ctx context.Context) (*AuthContext, bool) {
	raw, ok := ctx.Value(authCtxKey).(*AuthContext)
	return raw, ok && raw != nil
}

// GetRouterAuthContext extracts the caller identity from the router context.
func GetRouterAuthContext(ctx router.Context, key string) (*AuthContext, bool) {
	if key == "" {
		key = "auth"
	}
	raw := ctx.Locals(key)
	if raw == nil {
		return nil, false
	}
	auth, ok := raw.(*AuthContext)
	return auth, ok && auth != nil
}
