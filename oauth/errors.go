package oauth

import "github.com/goliatone/go-errors"

const (
	TextCodeProviderNotFound  = "oauth_provider_not_found"
	TextCodeProviderNoConsent = "oauth_provider_no_consent"
	TextCodeTokenExchangeFail = "oauth_token_exchange_failed"
	TextCodeUserInfoFail      = "oauth_user_info_failed"
	TextCodeProfileIncomplete = "oauth_profile_incomplete"
)

// ErrProviderNotFound is returned when a requested provider is not configured.
var ErrProviderNotFound = errors.New("oauth provider not found", errors.CategoryNotFound).
	WithTextCode(TextCodeProviderNotFound).
	WithCode(errors.CodeNotFound)

// ErrProviderNoConsent is returned when a provider cannot produce a web
// consent URI.
var ErrProviderNoConsent = errors.New("oauth provider does not support web consent", errors.CategoryBadInput).
	WithTextCode(TextCodeProviderNoConsent).
	WithCode(errors.CodeBadRequest)

// ErrTokenExchangeFailed is returned when a provider token exchange fails.
var ErrTokenExchangeFailed = errors.New("token exchange failed", errors.CategoryAuth).
	WithTextCode(TextCodeTokenExchangeFail).
	WithCode(errors.CodeUnauthorized)

// ErrUserInfoFailed is returned when fetching user info fails.
var ErrUserInfoFailed = errors.New("failed to fetch user info", errors.CategoryAuth).
	WithTextCode(TextCodeUserInfoFail).
	WithCode(errors.CodeUnauthorized)

// ErrProfileIncomplete is returned when a provider profile lacks an email.
var ErrProfileIncomplete = errors.New("provider profile has no email", errors.CategoryAuth).
	WithTextCode(TextCodeProfileIncomplete).
	WithCode(errors.CodeUnauthorized)
