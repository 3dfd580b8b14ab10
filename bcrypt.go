package identity

import (
	"crypto/rand"
	"encoding/base64"
	"errors"

	goerrors "github.com/goliatone/go-errors"
	"golang.org/x/crypto/bcrypt"
)

// DefaultBcryptCost is the work factor applied when none is configured.
const DefaultBcryptCost = 14

// HashPassword will generate a password hash
func HashPassword(password string) (string, error) {
	if password == "" {
		return "", ErrNoEmptyString
	}

	h, err := bcrypt.GenerateFromPassword([]byte(password), DefaultBcryptCost)
	return string(h), err
}

// ComparePasswordAndHash will validate the given cleartext
// password matches the hashed password
func ComparePasswordAndHash(password, hash string) error {
	if err := bcrypt.CompareHashAndPassword([]byte(hash), []byte(password)); err != nil {
		if errors.Is(err, bcrypt.ErrMismatchedHashAndPassword) {
			return ErrMismatchedHashAndPassword
		}
		return err
	}
	return nil
}

// BcryptHasher is the default CredentialHasher.
type BcryptHasher struct {
	// Cost overrides DefaultBcryptCost when non-zero.
	Cost int
}

var _ CredentialHasher = BcryptHasher{}

func (b BcryptHasher) Hash(plaintext string) (string, error) {
	if plaintext == "" {
		return "", ErrNoEmptyString
	}

	cost := b.Cost
	if cost == 0 {
		cost = DefaultBcryptCost
	}

	h, err := bcrypt.GenerateFromPassword([]byte(plaintext), cost)
	if err != nil {
		return "", goerrors.Wrap(err, goerrors.CategoryInternal, "failed to hash password")
	}
	return string(h), nil
}

func (b BcryptHasher) Compare(plaintext, hash string) error {
	return ComparePasswordAndHash(plaintext, hash)
}

// RandomPassword exports a fresh random symmetric key as a base64url string.
// It backs both API-key minting and forgot-password resets; the plaintext is
// only ever visible to the caller, never persisted.
func RandomPassword() (string, error) {
	buf := make([]byte, 32)
	if _, err := rand.Read(buf); err != nil {
		return "", goerrors.Wrap(err, goerrors.CategoryInternal, "failed to generate random key")
	}
	return base64.RawURLEncoding.EncodeToString(buf), nil
}
