// Package google implements the Google authorization provider.
package google

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/goliatone/go-errors"
	"github.com/goliatone/go-identity/oauth"
)

const (
	defaultAuthURL     = "https://accounts.google.com/o/oauth2/v2/auth"
	defaultTokenURL    = "https://oauth2.googleapis.com/token"
	defaultUserInfoURL = "https://www.googleapis.com/oauth2/v3/userinfo"

	logoURL     = "https://www.gstatic.com/marketing-cms/assets/images/d5/dc/cfe9ce8b4425b410b49b7f2dd3f3/g.webp"
	description = "Sign in with your Google account"
)

// Config holds Google OAuth configuration.
type Config struct {
	ClientID     string
	ClientSecret string
	Scopes       []string

	AuthURL     string
	TokenURL    string
	UserInfoURL string

	HTTPClient *http.Client
}

// DefaultScopes returns the default Google scopes.
func DefaultScopes() []string {
	return []string{"openid", "email", "profile"}
}

// Provider implements oauth.Provider for Google.
type Provider struct {
	config     Config
	httpClient *http.Client
}

// New creates a new Google provider.
func New(cfg Config) *Provider {
	if len(cfg.Scopes) == 0 {
		cfg.Scopes = DefaultScopes()
	}
	if cfg.AuthURL == "" {
		cfg.AuthURL = defaultAuthURL
	}
	if cfg.TokenURL == "" {
		cfg.TokenURL = defaultTokenURL
	}
	if cfg.UserInfoURL == "" {
		cfg.UserInfoURL = defaultUserInfoURL
	}

	client := cfg.HTTPClient
	if client == nil {
		client = &http.Client{Timeout: 10 * time.Second}
	}

	return &Provider{
		config:     cfg,
		httpClient: client,
	}
}

// Name implements oauth.Provider.
func (p *Provider) Name() string {
	return "google"
}

// LogoURL implements oauth.Provider.
func (p *Provider) LogoURL() string {
	return logoURL
}

// Description implements oauth.Provider.
func (p *Provider) Description() string {
	return description
}

// GenerateAuthURI implements oauth.Provider.
func (p *Provider) GenerateAuthURI(redirectURI string, extra url.Values) string {
	params := url.Values{
		"client_id":     {p.config.ClientID},
		"redirect_uri":  {redirectURI},
		"response_type": {"code"},
		"scope":         {strings.Join(p.config.Scopes, " ")},
		"access_type":   {"offline"},
	}

	for key, values := range extra {
		for _, v := range values {
			params.Add(key, v)
		}
	}

	return p.config.AuthURL + "?" + params.Encode()
}

// SignWithAuthorizationResponse implements oauth.Provider.
func (p *Provider) SignWithAuthorizationResponse(ctx context.Context, redirectURI string, authorizationResponse url.Values) (*oauth.Profile, error) {
	code := authorizationResponse.Get("code")
	if code == "" {
		return nil, errors.Wrap(oauth.ErrTokenExchangeFailed, errors.CategoryAuth, "authorization response has no code")
	}

	accessToken, err := p.exchange(ctx, code, redirectURI)
	if err != nil {
		return nil, err
	}

	return p.userInfo(ctx, accessToken)
}

func (p *Provider) exchange(ctx context.Context, code, redirectURI string) (string, error) {
	data := url.Values{
		"client_id":     {p.config.ClientID},
		"client_secret": {p.config.ClientSecret},
		"code":          {code},
		"redirect_uri":  {redirectURI},
		"grant_type":    {"authorization_code"},
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.config.TokenURL, strings.NewReader(data.Encode()))
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := p.httpClient.Do(req)
	if err != nil {
		return "", errors.Wrap(err, errors.CategoryAuth, "google token request failed").
			WithTextCode(oauth.TextCodeTokenExchangeFail)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", err
	}

	var tokenResp googleTokenResponse
	if err := json.Unmarshal(body, &tokenResp); err != nil {
		return "", providerError("exchange", resp.StatusCode, "invalid_response", "failed to decode token response")
	}

	if resp.StatusCode != http.StatusOK || tokenResp.Error != "" {
		return "", providerError("exchange", resp.StatusCode, tokenResp.Error, tokenResp.ErrorDesc)
	}
	if tokenResp.AccessToken == "" {
		return "", providerError("exchange", resp.StatusCode, "missing_access_token", "missing access token")
	}

	return tokenResp.AccessToken, nil
}

func (p *Provider) userInfo(ctx context.Context, accessToken string) (*oauth.Profile, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, p.config.UserInfoURL, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Authorization", "Bearer "+accessToken)

	resp, err := p.httpClient.Do(req)
	if err != nil {
		return nil, errors.Wrap(err, errors.CategoryAuth, "google userinfo request failed").
			WithTextCode(oauth.TextCodeUserInfoFail)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, err
	}

	if resp.StatusCode != http.StatusOK {
		return nil, providerError("user_info", resp.StatusCode, "userinfo_failed", strings.TrimSpace(string(body)))
	}

	var userInfo googleUserInfo
	if err := json.Unmarshal(body, &userInfo); err != nil {
		return nil, providerError("user_info", resp.StatusCode, "invalid_response", "failed to decode userinfo response")
	}

	return mapProfile(&userInfo), nil
}

type googleTokenResponse struct {
	AccessToken  string `json:"access_token"`
	TokenType    string `json:"token_type"`
	ExpiresIn    int    `json:"expires_in"`
	RefreshToken string `json:"refresh_token"`
	Scope        string `json:"scope"`
	IDToken      string `json:"id_token"`
	Error        string `json:"error"`
	ErrorDesc    string `json:"error_description"`
}

func providerError(operation string, status int, code, description string) error {
	return errors.New(fmt.Sprintf("google %s failed: %s", operation, description), errors.CategoryAuth).
		WithTextCode(oauth.TextCodeTokenExchangeFail).
		WithCode(errors.CodeUnauthorized).
		WithMetadata(map[string]any{
			"provider":  "google",
			"operation": operation,
			"status":    status,
			"code":      code,
		})
}
