// Package oauth bridges third-party authorization providers to local
// identity sessions. Providers hand back verified profile claims; the bridge
// delegates find-or-create and token minting to the identity service.
package oauth

import (
	"context"
	"net/url"
)

// Provider is the per-vendor capability the bridge drives.
type Provider interface {
	// Name returns the provider handle (e.g. "github", "google").
	Name() string

	// LogoURL returns the provider logo for consent pickers.
	LogoURL() string

	// Description returns the human readable provider description.
	Description() string

	// GenerateAuthURI builds the web consent URI for the given callback.
	// Providers that cannot produce a web consent flow return "".
	GenerateAuthURI(redirectURI string, extra url.Values) string

	// SignWithAuthorizationResponse exchanges the authorization callback
	// parameters for verified profile claims.
	SignWithAuthorizationResponse(ctx context.Context, redirectURI string, authorizationResponse url.Values) (*Profile, error)
}

// Profile is the normalized claim set a provider resolves to.
type Profile struct {
	Email     string `json:"email"`
	FirstName string `json:"firstname"`
	LastName  string `json:"lastname"`
	Picture   string `json:"picture"`
}

// ProviderInfo is the consent-picker projection of a configured provider.
type ProviderInfo struct {
	Provider    string `json:"provider"`
	Name        string `json:"name"`
	LogoURL     string `json:"logo_url"`
	Description string `json:"description"`
}

// AuthURI pairs a provider handle with its consent URI.
type AuthURI struct {
	Provider string `json:"provider"`
	URI      string `json:"uri"`
}
