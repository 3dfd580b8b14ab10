// Package authware provides router middleware that resolves bearer tokens
// and API keys into an identity.AuthContext, plus role based authorization
// guards built on top of it.
package authware

import (
	"context"
	"strings"

	"github.com/goliatone/go-errors"
	"github.com/goliatone/go-identity"
	"github.com/goliatone/go-router"
)

const (
	defaultContextKey = "auth"
	apiKeyHeader      = "X-API-KEY"
	bearerScheme      = "Bearer"
	basicScheme       = "Basic"
)

// KeyVerifier resolves a presented API key to a user record. It mirrors
// identity.Service.VerifyAPIKey without importing the service here.
type KeyVerifier interface {
	VerifyAPIKey(ctx context.Context, apikey string) (*identity.AuthUser, error)
}

type Config struct {
	// AccessSecret verifies bearer access tokens. Required.
	AccessSecret []byte
	// Keys resolves API keys presented via Basic auth or X-API-KEY. When
	// nil those stages are skipped.
	Keys KeyVerifier
	// ContextKey is the router locals key the AuthContext is stored under.
	ContextKey   string
	Logger       identity.Logger
	ErrorHandler router.ErrorHandler
}

func GetDefaultConfig(config ...Config) (cfg Config) {
	if len(config) > 0 {
		cfg = config[0]
	}

	if len(cfg.AccessSecret) == 0 {
		panic("AUTH: middleware configuration: AccessSecret is required.")
	}

	if cfg.ContextKey == "" {
		cfg.ContextKey = defaultContextKey
	}

	if cfg.Logger == nil {
		cfg.Logger = identity.DefaultLogger()
	}

	if cfg.ErrorHandler == nil {
		cfg.ErrorHandler = func(c router.Context, err error) error {
			var richErr *errors.Error
			if errors.As(err, &richErr) && richErr.Code != 0 {
				return c.Status(richErr.Code).SendString(richErr.Message)
			}
			return c.Status(router.StatusUnauthorized).SendString("unauthorized")
		}
	}

	return cfg
}

// ParseAuthUser resolves the request credentials into an AuthContext stored
// in both router locals and the standard context. It never rejects: a
// missing or invalid credential leaves the request anonymous and the guards
// decide what that means for the route.
func ParseAuthUser(config ...Config) router.MiddlewareFunc {
	cfg := GetDefaultConfig(config...)

	return func(hf router.HandlerFunc) router.HandlerFunc {
		return func(ctx router.Context) error {
			authorization := ctx.GetString(router.HeaderAuthorization, "")
			apikey := ctx.GetString(apiKeyHeader, "")

			if auth := Resolve(ctx.Context(), cfg, authorization, apikey); auth != nil {
				ctx.Locals(cfg.ContextKey, auth)
				ctx.SetContext(identity.WithAuthContext(ctx.Context(), auth))
			}

			return ctx.Next()
		}
	}
}

// Resolve turns raw credential material into an AuthContext, or nil when
// nothing usable was presented. A bearer token that fails verification
// falls through to the API key stage, so a request carrying a stale token
// alongside a valid key still resolves. The Basic scheme wins over
// X-API-KEY when both are present. Every failure resolves to anonymous
// rather than an error so that probing responses stay uniform.
func Resolve(ctx context.Context, cfg Config, authorization, apikey string) *identity.AuthContext {
	if scheme, credential, ok := splitAuthorization(authorization); ok {
		switch {
		case strings.EqualFold(scheme, bearerScheme):
			if auth := resolveBearer(cfg, credential); auth != nil {
				return auth
			}
		case strings.EqualFold(scheme, basicScheme):
			return resolveAPIKey(ctx, cfg, credential)
		}
	}

	if apikey != "" {
		return resolveAPIKey(ctx, cfg, apikey)
	}

	return nil
}

func resolveBearer(cfg Config, credential string) *identity.AuthContext {
	v := identity.VerifyToken(cfg.AccessSecret, credential, true)
	if !v.Verified {
		return nil
	}

	// refresh and single use tokens never grant access on their own
	if v.Claims.Purpose() != identity.PurposeAccess {
		cfg.Logger.Error("bearer token rejected: wrong consumption context", "purpose", v.Claims.Purpose().String())
		return nil
	}

	return identity.AuthContextFromClaims(v.Claims)
}

func resolveAPIKey(ctx context.Context, cfg Config, credential string) *identity.AuthContext {
	if cfg.Keys == nil {
		return nil
	}

	user, err := cfg.Keys.VerifyAPIKey(ctx, credential)
	if err != nil {
		cfg.Logger.Error("api key rejected", "error", err)
		return nil
	}

	return identity.AuthContextFromUser(user)
}

// AuthorizeByRoles guards a route behind role membership. When no upstream
// ParseAuthUser populated locals, the guard resolves the request credentials
// itself, so it works mounted alone. A request with no resolvable
// AuthContext, or one whose roles do not intersect the given set, fails
// with a generic forbidden that does not leak which check tripped. An empty
// role set admits any authenticated request.
func AuthorizeByRoles(cfg Config, roles ...string) router.MiddlewareFunc {
	cfg = GetDefaultConfig(cfg)

	return func(hf router.HandlerFunc) router.HandlerFunc {
		return func(ctx router.Context) error {
			auth, _ := ctx.Locals(cfg.ContextKey).(*identity.AuthContext)
			if auth == nil {
				authorization := ctx.GetString(router.HeaderAuthorization, "")
				apikey := ctx.GetString(apiKeyHeader, "")

				if auth = Resolve(ctx.Context(), cfg, authorization, apikey); auth != nil {
					ctx.Locals(cfg.ContextKey, auth)
					ctx.SetContext(identity.WithAuthContext(ctx.Context(), auth))
				}
			}

			if !auth.HasAnyRole(roles...) {
				return cfg.ErrorHandler(ctx, identity.ErrForbidden)
			}
			return ctx.Next()
		}
	}
}

// AuthorizeAdmin guards a route behind the admin role.
func AuthorizeAdmin(cfg Config) router.MiddlewareFunc {
	return AuthorizeByRoles(cfg, identity.RoleAdmin)
}

func splitAuthorization(header string) (scheme, credential string, ok bool) {
	header = strings.TrimSpace(header)
	if header == "" {
		return "", "", false
	}

	parts := strings.SplitN(header, " ", 2)
	if len(parts) != 2 {
		return "", "", false
	}

	credential = strings.TrimSpace(parts[1])
	if credential == "" {
		return "", "", false
	}

	return parts[0], credential, true
}
