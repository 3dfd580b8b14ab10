package oauth

import (
	"context"
	"net/url"

	"github.com/goliatone/go-identity"
)

// IdentitySigner resolves a verified external profile to a local session.
// identity.Service satisfies it.
type IdentitySigner interface {
	SignInWithProfile(ctx context.Context, profile identity.ExternalProfile) (*identity.AuthResponse, error)
}

// Bridge routes consent and callback traffic to registered providers and
// hands resolved profiles to the identity signer.
type Bridge struct {
	providers map[string]Provider
	// order preserves registration order for ListProviders
	order  []string
	signer IdentitySigner
	logger identity.Logger
}

// BridgeOption configures a Bridge.
type BridgeOption func(*Bridge)

// WithProvider registers a provider under its own handle. Registering the
// same handle twice keeps the last provider and its original position.
func WithProvider(p Provider) BridgeOption {
	return func(b *Bridge) {
		if p == nil {
			return
		}
		name := p.Name()
		if _, ok := b.providers[name]; !ok {
			b.order = append(b.order, name)
		}
		b.providers[name] = p
	}
}

// WithBridgeLogger sets the bridge logger.
func WithBridgeLogger(logger identity.Logger) BridgeOption {
	return func(b *Bridge) {
		if logger != nil {
			b.logger = logger
		}
	}
}

// NewBridge returns a Bridge wired to the given signer.
func NewBridge(signer IdentitySigner, opts ...BridgeOption) *Bridge {
	b := &Bridge{
		providers: map[string]Provider{},
		signer:    signer,
		logger:    identity.DefaultLogger(),
	}

	for _, opt := range opts {
		if opt != nil {
			opt(b)
		}
	}

	if b.signer == nil {
		panic("Missing IdentitySigner in oauth bridge...")
	}

	return b
}

// CreateAuthURI builds the consent URI for a registered provider.
func (b *Bridge) CreateAuthURI(provider, redirectURI string, extra url.Values) (*AuthURI, error) {
	p, ok := b.providers[provider]
	if !ok {
		return nil, ErrProviderNotFound
	}

	uri := p.GenerateAuthURI(redirectURI, extra)
	if uri == "" {
		return nil, ErrProviderNoConsent
	}

	return &AuthURI{Provider: provider, URI: uri}, nil
}

// SignWithProvider exchanges an authorization callback for a local session.
func (b *Bridge) SignWithProvider(ctx context.Context, provider, redirectURI string, authorizationResponse url.Values) (*identity.AuthResponse, error) {
	p, ok := b.providers[provider]
	if !ok {
		return nil, ErrProviderNotFound
	}

	profile, err := p.SignWithAuthorizationResponse(ctx, redirectURI, authorizationResponse)
	if err != nil {
		b.logger.Error("provider exchange failed", "provider", provider, "error", err)
		return nil, err
	}

	if profile == nil || profile.Email == "" {
		return nil, ErrProfileIncomplete
	}

	return b.signer.SignInWithProfile(ctx, identity.ExternalProfile{
		Provider:  provider,
		Email:     profile.Email,
		FirstName: profile.FirstName,
		LastName:  profile.LastName,
		Picture:   profile.Picture,
	})
}

// ListProviders projects the configured providers in registration order.
func (b *Bridge) ListProviders() []ProviderInfo {
	out := make([]ProviderInfo, 0, len(b.order))
	for _, name := range b.order {
		p := b.providers[name]
		out = append(out, ProviderInfo{
			Provider:    p.Name(),
			Name:        p.Name(),
			LogoURL:     p.LogoURL(),
			Description: p.Description(),
		})
	}
	return out
}
