// Package github implements the GitHub authorization provider.
package github

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
	defaultAuthURL   = "https://github.com/login/oauth/authorize"
	defaultTokenURL  = "https://github.com/login/oauth/access_token"
	defaultUserURL   = "https://api.github.com/user"
	defaultEmailsURL = "https://api.github.com/user/emails"

	logoURL     = "https://github.githubassets.com/assets/GitHub-Mark-ea2971cee799.png"
	description = "Sign in with your GitHub account"
)

// Config holds GitHub OAuth configuration.
type Config struct {
	ClientID     string
	ClientSecret string
	Scopes       []string

	AuthURL   string
	TokenURL  string
	UserURL   string
	EmailsURL string

	HTTPClient *http.Client
}

// DefaultScopes returns the default GitHub scopes.
func DefaultScopes() []string {
	return []string{"user:email", "read:user"}
}

// Provider implements oauth.Provider for GitHub.
type Provider struct {
	config     Config
	httpClient *http.Client
}

// New creates a new GitHub provider.
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
	if cfg.UserURL == "" {
		cfg.UserURL = defaultUserURL
	}
	if cfg.EmailsURL == "" {
		cfg.EmailsURL = defaultEmailsURL
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
	return "github"
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
		"client_id":    {p.config.ClientID},
		"redirect_uri": {redirectURI},
		"scope":        {strings.Join(p.config.Scopes, " ")},
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

	user, err := p.fetchUser(ctx, accessToken)
	if err != nil {
		return nil, err
	}

	// the /user email is often hidden, the emails endpoint is authoritative
	email, err := p.fetchPrimaryEmail(ctx, accessToken)
	if err != nil {
		email = user.Email
	}

	return mapProfile(user, email), nil
}

func (p *Provider) exchange(ctx context.Context, code, redirectURI string) (string, error) {
	data := url.Values{
		"client_id":     {p.config.ClientID},
		"client_secret": {p.config.ClientSecret},
		"code":          {code},
		"redirect_uri":  {redirectURI},
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.config.TokenURL, strings.NewReader(data.Encode()))
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.Header.Set("Accept", "application/json")

	resp, err := p.httpClient.Do(req)
	if err != nil {
		return "", errors.Wrap(err, errors.CategoryAuth, "github token request failed").
			WithTextCode(oauth.TextCodeTokenExchangeFail)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", err
	}

	var tokenResp githubTokenResponse
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

func (p *Provider) fetchUser(ctx context.Context, accessToken string) (*githubUser, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, p.config.UserURL, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Authorization", "Bearer "+accessToken)
	req.Header.Set("Accept", "application/vnd.github.v3+json")

	resp, err := p.httpClient.Do(req)
	if err != nil {
		return nil, errors.Wrap(err, errors.CategoryAuth, "github user request failed").
			WithTextCode(oauth.TextCodeUserInfoFail)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, err
	}

	if resp.StatusCode != http.StatusOK {
		return nil, providerError("user_info", resp.StatusCode, "", apiErrorMessage(body))
	}

	var user githubUser
	if err := json.Unmarshal(body, &user); err != nil {
		return nil, providerError("user_info", resp.StatusCode, "invalid_response", "failed to decode user response")
	}

	return &user, nil
}

func (p *Provider) fetchPrimaryEmail(ctx context.Context, accessToken string) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, p.config.EmailsURL, nil)
	if err != nil {
		return "", err
	}
	req.Header.Set("Authorization", "Bearer "+accessToken)
	req.Header.Set("Accept", "application/vnd.github.v3+json")

	resp, err := p.httpClient.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", err
	}

	if resp.StatusCode != http.StatusOK {
		return "", providerError("emails", resp.StatusCode, "", apiErrorMessage(body))
	}

	var emails []githubEmail
	if err := json.Unmarshal(body, &emails); err != nil {
		return "", providerError("emails", resp.StatusCode, "invalid_response", "failed to decode emails response")
	}

	for _, e := range emails {
		if e.Primary {
			return e.Email, nil
		}
	}

	for _, e := range emails {
		if e.Verified {
			return e.Email, nil
		}
	}

	return "", providerError("emails", resp.StatusCode, "email_not_found", "no valid email found")
}

type githubTokenResponse struct {
	AccessToken string `json:"access_token"`
	TokenType   string `json:"token_type"`
	Scope       string `json:"scope"`
	Error       string `json:"error"`
	ErrorDesc   string `json:"error_description"`
	ErrorURI    string `json:"error_uri"`
}

type githubAPIError struct {
	Message          string `json:"message"`
	DocumentationURL string `json:"documentation_url"`
}

func apiErrorMessage(body []byte) string {
	var apiErr githubAPIError
	if err := json.Unmarshal(body, &apiErr); err == nil && apiErr.Message != "" {
		return apiErr.Message
	}

	msg := strings.TrimSpace(string(body))
	if msg == "" {
		return "github request failed"
	}

	return msg
}

func providerError(operation string, status int, code, description string) error {
	return errors.New(fmt.Sprintf("github %s failed: %s", operation, description), errors.CategoryAuth).
		WithTextCode(oauth.TextCodeTokenExchangeFail).
		WithCode(errors.CodeUnauthorized).
		WithMetadata(map[string]any{
			"provider":  "github",
			"operation": operation,
			"status":    status,
			"code":      code,
		})
}
