package oauth_test

import (
	"context"
	"net/url"
	"testing"

	"github.com/goliatone/go-identity"
	"github.com/goliatone/go-identity/oauth"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeProvider struct {
	name    string
	uri     string
	profile *oauth.Profile
	err     error

	gotRedirectURI string
	gotResponse    url.Values
}

func (f *fakeProvider) Name() string        { return f.name }
func (f *fakeProvider) LogoURL() string     { return "https://cdn.example.com/" + f.name + ".png" }
func (f *fakeProvider) Description() string { return "Sign in with " + f.name }

func (f *fakeProvider) GenerateAuthURI(redirectURI string, extra url.Values) string {
	f.gotRedirectURI = redirectURI
	return f.uri
}

func (f *fakeProvider) SignWithAuthorizationResponse(ctx context.Context, redirectURI string, response url.Values) (*oauth.Profile, error) {
	f.gotRedirectURI = redirectURI
	f.gotResponse = response
	return f.profile, f.err
}

type fakeSigner struct {
	got  identity.ExternalProfile
	resp *identity.AuthResponse
	err  error
}

func (f *fakeSigner) SignInWithProfile(ctx context.Context, profile identity.ExternalProfile) (*identity.AuthResponse, error) {
	f.got = profile
	return f.resp, f.err
}

func TestCreateAuthURI(t *testing.T) {
	t.Run("returns the provider consent uri", func(t *testing.T) {
		provider := &fakeProvider{name: "github", uri: "https://github.test/authorize?x=1"}
		bridge := oauth.NewBridge(&fakeSigner{}, oauth.WithProvider(provider))

		uri, err := bridge.CreateAuthURI("github", "https://app.test/callback", nil)
		require.NoError(t, err)
		assert.Equal(t, "github", uri.Provider)
		assert.Equal(t, "https://github.test/authorize?x=1", uri.URI)
		assert.Equal(t, "https://app.test/callback", provider.gotRedirectURI)
	})

	t.Run("unknown provider", func(t *testing.T) {
		bridge := oauth.NewBridge(&fakeSigner{})
		_, err := bridge.CreateAuthURI("nope", "https://app.test/callback", nil)
		assert.ErrorIs(t, err, oauth.ErrProviderNotFound)
	})

	t.Run("provider without web consent", func(t *testing.T) {
		provider := &fakeProvider{name: "headless", uri: ""}
		bridge := oauth.NewBridge(&fakeSigner{}, oauth.WithProvider(provider))

		_, err := bridge.CreateAuthURI("headless", "https://app.test/callback", nil)
		assert.ErrorIs(t, err, oauth.ErrProviderNoConsent)
	})
}

func TestSignWithProvider(t *testing.T) {
	ctx := context.Background()

	t.Run("hands the profile to the signer", func(t *testing.T) {
		provider := &fakeProvider{
			name: "google",
			profile: &oauth.Profile{
				Email:     "pepe@gmail.com",
				FirstName: "Pepe",
				LastName:  "Rone",
				Picture:   "https://example.com/pepe.png",
			},
		}
		signer := &fakeSigner{resp: &identity.AuthResponse{TokenType: "Bearer", UserID: "au_0001"}}
		bridge := oauth.NewBridge(signer, oauth.WithProvider(provider))

		response := url.Values{"code": {"auth-code"}}
		session, err := bridge.SignWithProvider(ctx, "google", "https://app.test/callback", response)
		require.NoError(t, err)

		assert.Equal(t, "au_0001", session.UserID)
		assert.Equal(t, "google", signer.got.Provider)
		assert.Equal(t, "pepe@gmail.com", signer.got.Email)
		assert.Equal(t, "auth-code", provider.gotResponse.Get("code"))
	})

	t.Run("unknown provider", func(t *testing.T) {
		bridge := oauth.NewBridge(&fakeSigner{})
		_, err := bridge.SignWithProvider(ctx, "nope", "", nil)
		assert.ErrorIs(t, err, oauth.ErrProviderNotFound)
	})

	t.Run("provider exchange failure propagates", func(t *testing.T) {
		provider := &fakeProvider{name: "google", err: oauth.ErrTokenExchangeFailed}
		bridge := oauth.NewBridge(&fakeSigner{}, oauth.WithProvider(provider))

		_, err := bridge.SignWithProvider(ctx, "google", "", nil)
		assert.ErrorIs(t, err, oauth.ErrTokenExchangeFailed)
	})

	t.Run("profile without email is rejected", func(t *testing.T) {
		provider := &fakeProvider{name: "google", profile: &oauth.Profile{FirstName: "Pepe"}}
		bridge := oauth.NewBridge(&fakeSigner{}, oauth.WithProvider(provider))

		_, err := bridge.SignWithProvider(ctx, "google", "", nil)
		assert.ErrorIs(t, err, oauth.ErrProfileIncomplete)
	})
}

func TestListProviders(t *testing.T) {
	bridge := oauth.NewBridge(&fakeSigner{},
		oauth.WithProvider(&fakeProvider{name: "github"}),
		oauth.WithProvider(&fakeProvider{name: "google"}),
	)

	infos := bridge.ListProviders()
	require.Len(t, infos, 2)
	assert.Equal(t, "github", infos[0].Provider)
	assert.Equal(t, "google", infos[1].Provider)
	assert.Equal(t, "Sign in with github", infos[0].Description)
	assert.NotEmpty(t, infos[0].LogoURL)
}
