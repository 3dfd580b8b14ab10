package identity

import "github.com/goliatone/go-errors"

const (
	TextCodeAlreadySignedUp   = "identity_already_signed_up"
	TextCodeUnauthorized      = "identity_unauthorized"
	TextCodeForbidden         = "identity_forbidden"
	TextCodeUserNotFound      = "identity_user_not_found"
	TextCodeInvalidPrivateKey = "identity_invalid_private_key"
	TextCodeInvalidPayload    = "identity_invalid_payload"
)

// ErrAlreadySignedUp is returned when signup hits an existing email.
var ErrAlreadySignedUp = errors.New("a user with this email already exists", errors.CategoryConflict).
	WithTextCode(TextCodeAlreadySignedUp).
	WithCode(errors.CodeBadRequest)

// ErrUnauthorized covers bad credentials, bad, expired or wrong-purpose
// tokens, and missing auth. The message is deliberately flat: it never
// reveals which check failed, so it cannot guide credential guessing.
var ErrUnauthorized = errors.New("unauthorized", errors.CategoryAuth).
	WithTextCode(TextCodeUnauthorized).
	WithCode(errors.CodeUnauthorized)

// ErrForbidden is returned when an authenticated caller lacks a required
// role. Same flat-message policy as ErrUnauthorized.
var ErrForbidden = errors.New("unauthorized", errors.CategoryAuthz).
	WithTextCode(TextCodeForbidden).
	WithCode(errors.CodeForbidden)

// ErrUserNotFound is returned by explicit user lookups.
var ErrUserNotFound = errors.New("user not found", errors.CategoryNotFound).
	WithTextCode(TextCodeUserNotFound).
	WithCode(errors.CodeNotFound)

// ErrInvalidPrivateKey is the hard failure for signing key material that is
// not PKCS#8 PEM. Unlike malformed tokens, a bad key is a programmer error.
var ErrInvalidPrivateKey = errors.New("invalid PKCS#8 private key", errors.CategoryBadInput).
	WithTextCode(TextCodeInvalidPrivateKey).
	WithCode(errors.CodeBadRequest)

// ErrNoEmptyString is returned when hashing an empty password.
var ErrNoEmptyString = errors.New("password must not be empty", errors.CategoryValidation).
	WithCode(errors.CodeBadRequest)

// ErrMismatchedHashAndPassword is the normalized bcrypt mismatch error.
var ErrMismatchedHashAndPassword = errors.New("mismatched password and hash", errors.CategoryAuth).
	WithCode(errors.CodeUnauthorized)

// IsUnauthorized reports whether err is part of the generic unauthorized
// bucket (bad credential, bad token, insufficient role).
func IsUnauthorized(err error) bool {
	return errors.Is(err, ErrUnauthorized) || errors.Is(err, ErrForbidden)
}
