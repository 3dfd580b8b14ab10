package identity

import (
	"context"
	"fmt"
	"strings"
)

type Logger interface {
	Debug(format string, args ...any)
	Info(format string, args ...any)
	Error(format string, args ...any)
}

// UserStore is the persistence capability this subsystem consumes. Lookups
// return (nil, nil) when no record matches; errors are reserved for storage
// failures.
type UserStore interface {
	GetByEmail(ctx context.Context, email string) (*AuthUser, error)
	Get(ctx context.Context, idOrEmail string) (*AuthUser, error)
	Upsert(ctx context.Context, user *AuthUser) (*AuthUser, error)
	Remove(ctx context.Context, idOrEmail string) (bool, error)
	List(ctx context.Context, query ListQuery) ([]*AuthUser, error)
	Count(ctx context.Context, query ListQuery) (int, error)
}

// ListQuery filters user listings.
type ListQuery struct {
	Email  string
	Tags   []string
	Limit  int
	Offset int
}

// CredentialHasher performs one-way password hashing and verification.
type CredentialHasher interface {
	Hash(plaintext string) (string, error)
	Compare(plaintext, hash string) error
}

// CustomerProvisioner creates the commerce-side record linked to a new
// identity. Provisioning is best-effort during signup: only the identity
// write is load-bearing, a provisioning failure is logged and ignored.
type CustomerProvisioner interface {
	Provision(ctx context.Context, customerID string, user *AuthUser) error
}

// Config holds identity options.
type Config interface {
	GetIssuer() string
	GetAccessTokenSecret() string
	GetRefreshTokenSecret() string
	GetConfirmEmailSecret() string
	GetForgotPasswordSecret() string
	GetAdminEmails() []string
	GetAPIKeyDomain() string
}

// SimpleConfig is a plain struct Config implementation.
type SimpleConfig struct {
	Issuer               string
	AccessTokenSecret    string
	RefreshTokenSecret   string
	ConfirmEmailSecret   string
	ForgotPasswordSecret string
	// AdminEmails is the comma-separated admin allow-list as it comes from
	// the environment.
	AdminEmails  string
	APIKeyDomain string
}

func (c SimpleConfig) GetIssuer() string               { return c.Issuer }
func (c SimpleConfig) GetAccessTokenSecret() string    { return c.AccessTokenSecret }
func (c SimpleConfig) GetRefreshTokenSecret() string   { return c.RefreshTokenSecret }
func (c SimpleConfig) GetConfirmEmailSecret() string   { return c.ConfirmEmailSecret }
func (c SimpleConfig) GetForgotPasswordSecret() string { return c.ForgotPasswordSecret }

func (c SimpleConfig) GetAdminEmails() []string {
	return ParseAdminEmails(c.AdminEmails)
}

func (c SimpleConfig) GetAPIKeyDomain() string {
	if c.APIKeyDomain == "" {
		return "local"
	}
	return c.APIKeyDomain
}

// ParseAdminEmails splits a comma-separated allow-list, trimming whitespace
// and dropping empty entries.
func ParseAdminEmails(list string) []string {
	if list == "" {
		return nil
	}
	var out []string
	for _, e := range strings.Split(list, ",") {
		if e = strings.TrimSpace(e); e != "" {
			out = append(out, e)
		}
	}
	return out
}

// DefaultLogger returns the fallback stdout logger used when no Logger is
// injected.
func DefaultLogger() Logger {
	return defLogger{}
}

type defLogger struct{}

func (d defLogger) Error(format string, args ...any) {
	fmt.Printf("[ERR] IDENTITY "+newline(format), args...)
}

func (d defLogger) Info(format string, args ...any) {
	fmt.Printf("[INF] IDENTITY "+newline(format), args...)
}

func (d defLogger) Debug(format string, args ...any) {
	fmt.Printf("[DBG] IDENTITY "+newline(format), args...)
}

func newline(format string) string {
	if !strings.HasSuffix(format, "\n") {
		format += "\n"
	}
	return format
}
