package identity

import (
	"context"
	"encoding/base64"
	"fmt"
	"strings"

	validation "github.com/go-ozzo/ozzo-validation"
	"github.com/go-ozzo/ozzo-validation/is"
	"github.com/goliatone/go-errors"
	"github.com/google/uuid"
)

// Token lifetimes per purpose, in seconds.
const (
	AccessTokenTTL    = TTLHour
	RefreshTokenTTL   = 7 * TTLDay
	ConfirmEmailTTL   = TTLWeek
	ForgotPasswordTTL = TTLHour
)

// bootstrapAdminPassword is the fixed default password the first admin
// signin self-provisions with. Insecure by default: change it through
// ChangePassword immediately after the first login. See Service.Signin.
const bootstrapAdminPassword = "admin"

// AuthResponse is the session minted by signup, signin, refresh and the
// provider bridge. Both local and provider-driven flows must produce the
// exact same shape.
type AuthResponse struct {
	TokenType    string    `json:"token_type"`
	UserID       string    `json:"user_id"`
	AccessToken  string    `json:"access_token"`
	RefreshToken string    `json:"refresh_token"`
	User         *AuthUser `json:"user,omitempty"`
}

// PasswordResetResult carries the regenerated password back to the caller of
// ForgotPasswordConfirm. This is the only place the new password is ever
// visible in plaintext.
type PasswordResetResult struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

// ExternalProfile is the claim set an identity provider hands back after a
// successful authorization exchange.
type ExternalProfile struct {
	Provider  string
	Email     string
	FirstName string
	LastName  string
	Picture   string
}

// Service orchestrates the identity flows. It holds no per-request state:
// every operation is a pure function of its inputs plus the injected
// collaborators.
type Service struct {
	store     UserStore
	hasher    CredentialHasher
	notifier  *Notifier
	customers CustomerProvisioner
	cfg       Config
	logger    Logger
}

// ServiceOption configures a Service.
type ServiceOption func(*Service)

// WithLogger sets the service logger.
func WithLogger(logger Logger) ServiceOption {
	return func(s *Service) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// WithHasher replaces the default bcrypt hasher.
func WithHasher(hasher CredentialHasher) ServiceOption {
	return func(s *Service) {
		if hasher != nil {
			s.hasher = hasher
		}
	}
}

// WithNotifier attaches a shared event registry.
func WithNotifier(notifier *Notifier) ServiceOption {
	return func(s *Service) {
		if notifier != nil {
			s.notifier = notifier
		}
	}
}

// WithCustomerProvisioner attaches the best-effort customer record
// collaborator.
func WithCustomerProvisioner(p CustomerProvisioner) ServiceOption {
	return func(s *Service) {
		s.customers = p
	}
}

// NewService returns a new identity Service.
func NewService(store UserStore, cfg Config, opts ...ServiceOption) *Service {
	s := &Service{
		store:  store,
		cfg:    cfg,
		hasher: BcryptHasher{},
		logger: defLogger{},
	}

	for _, opt := range opts {
		if opt != nil {
			opt(s)
		}
	}

	if s.notifier == nil {
		s.notifier = NewNotifier(s.logger)
	}

	return s
}

// Notifier exposes the event registry so callers can subscribe.
func (s *Service) Notifier() *Notifier {
	return s.notifier
}

// Signup registers a new user, mints the confirm-email token and a session.
// Emits auth/signup followed by auth/confirm-email-token-generated, in that
// order, after the user record is persisted.
func (s *Service) Signup(ctx context.Context, p SignupPayload) (*AuthResponse, error) {
	if err := p.Validate(); err != nil {
		return nil, errors.Wrap(err, errors.CategoryValidation, "invalid signup payload").
			WithTextCode(TextCodeInvalidPayload).
			WithCode(errors.CodeBadRequest)
	}

	existing, err := s.store.GetByEmail(ctx, p.Email)
	if err != nil {
		return nil, errors.Wrap(err, errors.CategoryInternal, "failed to look up user")
	}
	if existing != nil {
		return nil, ErrAlreadySignedUp
	}

	user, confirmToken, err := s.createUser(ctx, p.Email, p.Password, p.FirstName, p.LastName)
	if err != nil {
		return nil, err
	}

	resp, err := s.mintTokenPair(user)
	if err != nil {
		return nil, err
	}

	s.notifier.Dispatch(ctx, EventSignup, map[string]any{"user": user.Sanitize()})
	s.notifier.Dispatch(ctx, EventConfirmEmailTokenGenerated, map[string]any{
		"user":  user.Sanitize(),
		"token": confirmToken,
	})

	return resp, nil
}

// Signin verifies a password credential and mints a session.
//
// Bootstrap rule: when no record exists for an allow-listed admin email, the
// user is auto-provisioned with the fixed default password "admin" before
// the password check runs, making the very first admin login self-serving.
// The read-then-maybe-write runs without a lock, so concurrent first logins
// for the same email can race; both the race and the fixed default password
// are preserved source behavior, not a recommended pattern.
func (s *Service) Signin(ctx context.Context, p SigninPayload, failIfNotAdmin bool) (*AuthResponse, error) {
	if err := p.Validate(); err != nil {
		return nil, errors.Wrap(err, errors.CategoryValidation, "invalid signin payload").
			WithTextCode(TextCodeInvalidPayload).
			WithCode(errors.CodeBadRequest)
	}

	user, err := s.store.GetByEmail(ctx, p.Email)
	if err != nil {
		return nil, errors.Wrap(err, errors.CategoryInternal, "failed to look up user")
	}

	if user == nil && s.isAdminEmail(p.Email) {
		if user, _, err = s.createUser(ctx, p.Email, bootstrapAdminPassword, "", ""); err != nil {
			return nil, err
		}
	}

	if user == nil {
		return nil, ErrUnauthorized
	}
	if failIfNotAdmin && !user.IsAdmin() {
		return nil, ErrUnauthorized
	}
	if user.PasswordHash == "" {
		return nil, ErrUnauthorized
	}
	if err := s.hasher.Compare(p.Password, user.PasswordHash); err != nil {
		return nil, ErrUnauthorized
	}

	resp, err := s.mintTokenPair(user)
	if err != nil {
		return nil, err
	}

	if s.notifier.HasSubscribers(EventSignin) {
		s.notifier.Dispatch(ctx, EventSignin, map[string]any{"user": user.Sanitize()})
	}

	return resp, nil
}

// Refresh exchanges a refresh token for a new access token. The refresh
// purpose is re-checked even though signature and expiry already passed: a
// token minted for any other consumption context is never accepted here.
func (s *Service) Refresh(ctx context.Context, refreshToken string) (*AuthResponse, error) {
	v := VerifyToken([]byte(s.cfg.GetRefreshTokenSecret()), refreshToken, true)
	if !v.Verified {
		return nil, ErrUnauthorized
	}
	if err := requirePurpose(v.Claims, PurposeRefresh); err != nil {
		return nil, err
	}

	access, err := s.mintToken(PurposeAccess, v.Claims.Subject, v.Claims.Email,
		v.Claims.FirstName, v.Claims.LastName, v.Claims.Picture, v.Claims.Roles)
	if err != nil {
		return nil, err
	}

	if s.notifier.HasSubscribers(EventRefresh) {
		s.notifier.Dispatch(ctx, EventRefresh, map[string]any{"subject": v.Claims.Subject})
	}

	return &AuthResponse{
		TokenType:    "Bearer",
		UserID:       v.Claims.Subject,
		AccessToken:  access.Raw,
		RefreshToken: refreshToken,
	}, nil
}

// ChangePassword verifies the current password, persists the new hash and
// re-mints a session bound to the existing roles.
func (s *Service) ChangePassword(ctx context.Context, p ChangePasswordPayload) (*AuthResponse, error) {
	if err := p.Validate(); err != nil {
		return nil, errors.Wrap(err, errors.CategoryValidation, "invalid change password payload").
			WithTextCode(TextCodeInvalidPayload).
			WithCode(errors.CodeBadRequest)
	}

	user, err := s.store.Get(ctx, p.IDOrEmail)
	if err != nil {
		return nil, errors.Wrap(err, errors.CategoryInternal, "failed to look up user")
	}
	if user == nil || user.PasswordHash == "" {
		return nil, ErrUnauthorized
	}
	if err := s.hasher.Compare(p.CurrentPassword, user.PasswordHash); err != nil {
		return nil, ErrUnauthorized
	}

	hash, err := s.hasher.Hash(p.NewPassword)
	if err != nil {
		return nil, err
	}
	user.PasswordHash = hash

	if user, err = s.store.Upsert(ctx, user); err != nil {
		return nil, errors.Wrap(err, errors.CategoryInternal, "failed to persist password change")
	}

	resp, err := s.mintTokenPair(user)
	if err != nil {
		return nil, err
	}

	if s.notifier.HasSubscribers(EventChangePassword) {
		s.notifier.Dispatch(ctx, EventChangePassword, map[string]any{"user": user.Sanitize()})
	}

	return resp, nil
}

// ConfirmEmail validates a confirm-email token and marks the record's email
// as confirmed.
func (s *Service) ConfirmEmail(ctx context.Context, token string) (*AuthUser, error) {
	v := VerifyToken([]byte(s.cfg.GetConfirmEmailSecret()), token, true)
	if !v.Verified {
		return nil, ErrUnauthorized
	}
	if err := requirePurpose(v.Claims, PurposeConfirmEmail); err != nil {
		return nil, err
	}

	user, err := s.store.Get(ctx, v.Claims.Subject)
	if err != nil {
		return nil, errors.Wrap(err, errors.CategoryInternal, "failed to look up user")
	}
	if user == nil {
		return nil, ErrUserNotFound
	}

	user.ConfirmedEmail = true
	if user, err = s.store.Upsert(ctx, user); err != nil {
		return nil, errors.Wrap(err, errors.CategoryInternal, "failed to persist email confirmation")
	}

	if s.notifier.HasSubscribers(EventConfirmEmailTokenConfirmed) {
		s.notifier.Dispatch(ctx, EventConfirmEmailTokenConfirmed, map[string]any{"user": user.Sanitize()})
	}

	return user.Sanitize(), nil
}

// ForgotPasswordRequest mints a reset token whose subject is the literal
// email string. It deliberately does not check the user exists: doing so
// would turn the endpoint into an account-enumeration oracle. The token is
// handed to the auth/forgot-password-token-generated subscribers (e.g. the
// mailer) and returned.
func (s *Service) ForgotPasswordRequest(ctx context.Context, email string) (string, error) {
	if err := validation.Validate(email, validation.Required, is.Email); err != nil {
		return "", errors.Wrap(err, errors.CategoryValidation, "invalid email").
			WithTextCode(TextCodeInvalidPayload).
			WithCode(errors.CodeBadRequest)
	}

	token, err := s.mintPurposeToken(PurposeForgotPassword, email, email, ForgotPasswordTTL)
	if err != nil {
		return "", err
	}

	s.notifier.Dispatch(ctx, EventForgotPasswordTokenGenerated, map[string]any{
		"email": email,
		"token": token.Raw,
	})

	return token.Raw, nil
}

// ForgotPasswordConfirm validates a reset token, generates a fresh random
// password, persists its hash and returns the plaintext to the caller.
func (s *Service) ForgotPasswordConfirm(ctx context.Context, token string) (*PasswordResetResult, error) {
	v := VerifyToken([]byte(s.cfg.GetForgotPasswordSecret()), token, true)
	if !v.Verified {
		return nil, ErrUnauthorized
	}
	if err := requirePurpose(v.Claims, PurposeForgotPassword); err != nil {
		return nil, err
	}

	user, err := s.store.GetByEmail(ctx, v.Claims.Subject)
	if err != nil {
		return nil, errors.Wrap(err, errors.CategoryInternal, "failed to look up user")
	}
	if user == nil {
		return nil, ErrUserNotFound
	}

	password, err := RandomPassword()
	if err != nil {
		return nil, err
	}

	hash, err := s.hasher.Hash(password)
	if err != nil {
		return nil, err
	}
	user.PasswordHash = hash

	if user, err = s.store.Upsert(ctx, user); err != nil {
		return nil, errors.Wrap(err, errors.CategoryInternal, "failed to persist password reset")
	}

	if s.notifier.HasSubscribers(EventForgotPasswordTokenConfirmed) {
		s.notifier.Dispatch(ctx, EventForgotPasswordTokenConfirmed, map[string]any{"user": user.Sanitize()})
	}

	return &PasswordResetResult{Email: user.Email, Password: password}, nil
}

// SignInWithProfile resolves an externally verified profile to a local
// session, creating the user on first arrival. The response shape and event
// names are identical to the local Signup/Signin paths; consumers built
// against one path must not break on the other.
func (s *Service) SignInWithProfile(ctx context.Context, p ExternalProfile) (*AuthResponse, error) {
	if p.Email == "" {
		return nil, ErrUnauthorized
	}

	user, err := s.store.GetByEmail(ctx, p.Email)
	if err != nil {
		return nil, errors.Wrap(err, errors.CategoryInternal, "failed to look up user")
	}

	created := false
	if user == nil {
		created = true
		user = &AuthUser{
			ID:        NewAuthUserID(p.Email),
			Email:     p.Email,
			FirstName: p.FirstName,
			LastName:  p.LastName,
			Roles:     s.rolesFor(p.Email),
			// the external IdP already verified this address
			ConfirmedEmail: true,
			Active:         true,
		}
		user.SetAttribute(AttrProvider, p.Provider)
		if p.Picture != "" {
			user.SetAttribute(AttrPicture, p.Picture)
		}

		if user, err = s.store.Upsert(ctx, user); err != nil {
			return nil, errors.Wrap(err, errors.CategoryInternal, "failed to persist user")
		}

		s.provisionCustomer(ctx, user)
	}

	resp, err := s.mintTokenPairWithPicture(user, p.Picture)
	if err != nil {
		return nil, err
	}

	if created {
		s.notifier.Dispatch(ctx, EventSignup, map[string]any{"user": user.Sanitize()})
	} else if s.notifier.HasSubscribers(EventSignin) {
		s.notifier.Dispatch(ctx, EventSignin, map[string]any{"user": user.Sanitize()})
	}

	return resp, nil
}

// CreateAPIKey mints a long-lived credential backed by a synthetic admin
// user tagged apikey. The returned key is base64url("email:secret"); the
// secret is shown exactly once and only its hash is persisted.
func (s *Service) CreateAPIKey(ctx context.Context) (string, error) {
	password, err := RandomPassword()
	if err != nil {
		return "", err
	}

	email := fmt.Sprintf("%s@apikey.%s", uuid.NewString(), s.cfg.GetAPIKeyDomain())

	hash, err := s.hasher.Hash(password)
	if err != nil {
		return "", err
	}

	user := &AuthUser{
		ID:             NewAuthUserID(email),
		Email:          email,
		PasswordHash:   hash,
		Roles:          []string{RoleAdmin},
		Tags:           []string{TagAPIKey},
		ConfirmedEmail: true,
		Active:         true,
	}

	if _, err = s.store.Upsert(ctx, user); err != nil {
		return "", errors.Wrap(err, errors.CategoryInternal, "failed to persist api key user")
	}

	return base64.RawURLEncoding.EncodeToString([]byte(email + ":" + password)), nil
}

// ParseAPIKey splits a presented key into its email and secret halves.
// Keys are issued base64url unpadded, but HTTP Basic clients re-encode the
// same email:secret pair with standard padded base64, so both alphabets are
// accepted. Malformed keys fail with the same generic unauthorized as a
// wrong secret.
func ParseAPIKey(apikey string) (email, password string, err error) {
	raw, err := base64.RawURLEncoding.DecodeString(apikey)
	if err != nil {
		if raw, err = base64.StdEncoding.DecodeString(apikey); err != nil {
			return "", "", ErrUnauthorized
		}
	}

	parts := strings.SplitN(string(raw), ":", 2)
	if len(parts) != 2 || parts[0] == "" || parts[1] == "" {
		return "", "", ErrUnauthorized
	}
	return parts[0], parts[1], nil
}

// VerifyAPIKey resolves a presented key to its sanitized user record. Every
// miss (bad encoding, unknown email, wrong secret) reads the same. The
// lookup-per-call design trades latency for zero server-side key state.
func (s *Service) VerifyAPIKey(ctx context.Context, apikey string) (*AuthUser, error) {
	email, password, err := ParseAPIKey(apikey)
	if err != nil {
		return nil, err
	}

	user, err := s.store.GetByEmail(ctx, email)
	if err != nil {
		return nil, errors.Wrap(err, errors.CategoryInternal, "failed to look up user")
	}
	if user == nil || user.PasswordHash == "" {
		return nil, ErrUnauthorized
	}
	if err := s.hasher.Compare(password, user.PasswordHash); err != nil {
		return nil, ErrUnauthorized
	}

	return user.Sanitize(), nil
}

// ListAPIKeys returns the sanitized synthetic users backing issued keys.
func (s *Service) ListAPIKeys(ctx context.Context) ([]*AuthUser, error) {
	users, err := s.store.List(ctx, ListQuery{Tags: []string{TagAPIKey}})
	if err != nil {
		return nil, errors.Wrap(err, errors.CategoryInternal, "failed to list api keys")
	}
	return sanitizeAll(users), nil
}

// GetUser fetches a record by id or email, sanitized.
func (s *Service) GetUser(ctx context.Context, idOrEmail string) (*AuthUser, error) {
	user, err := s.store.Get(ctx, idOrEmail)
	if err != nil {
		return nil, errors.Wrap(err, errors.CategoryInternal, "failed to look up user")
	}
	if user == nil {
		return nil, ErrUserNotFound
	}
	return user.Sanitize(), nil
}

// UpsertUser persists the record and always dispatches auth/upsert: unlike
// the other events, upsert and remove fire regardless of subscribers.
func (s *Service) UpsertUser(ctx context.Context, user *AuthUser) (*AuthUser, error) {
	if user == nil {
		return nil, errors.New("user must not be nil", errors.CategoryBadInput)
	}
	if user.ID == "" {
		user.ID = NewAuthUserID(user.Email)
	}

	user, err := s.store.Upsert(ctx, user)
	if err != nil {
		return nil, errors.Wrap(err, errors.CategoryInternal, "failed to persist user")
	}

	s.notifier.Dispatch(ctx, EventUpsert, map[string]any{"user": user.Sanitize()})

	return user.Sanitize(), nil
}

// RemoveUser deletes a record, dispatching auth/remove with the prior
// snapshot fetched before the delete.
func (s *Service) RemoveUser(ctx context.Context, idOrEmail string) (bool, error) {
	prior, err := s.store.Get(ctx, idOrEmail)
	if err != nil {
		return false, errors.Wrap(err, errors.CategoryInternal, "failed to look up user")
	}

	ok, err := s.store.Remove(ctx, idOrEmail)
	if err != nil {
		return false, errors.Wrap(err, errors.CategoryInternal, "failed to remove user")
	}

	s.notifier.Dispatch(ctx, EventRemove, map[string]any{"user": prior.Sanitize()})

	return ok, nil
}

// ListUsers returns sanitized records matching the query.
func (s *Service) ListUsers(ctx context.Context, query ListQuery) ([]*AuthUser, error) {
	users, err := s.store.List(ctx, query)
	if err != nil {
		return nil, errors.Wrap(err, errors.CategoryInternal, "failed to list users")
	}
	return sanitizeAll(users), nil
}

// Count returns the number of records matching the query.
func (s *Service) Count(ctx context.Context, query ListQuery) (int, error) {
	n, err := s.store.Count(ctx, query)
	if err != nil {
		return 0, errors.Wrap(err, errors.CategoryInternal, "failed to count users")
	}
	return n, nil
}

// createUser persists a fresh record with its confirm-email token attached
// and best-effort provisions the linked customer. Returns the raw confirm
// token so signup can emit it.
func (s *Service) createUser(ctx context.Context, email, password, firstName, lastName string) (*AuthUser, string, error) {
	hash, err := s.hasher.Hash(password)
	if err != nil {
		return nil, "", err
	}

	user := &AuthUser{
		ID:           NewAuthUserID(email),
		Email:        email,
		PasswordHash: hash,
		FirstName:    firstName,
		LastName:     lastName,
		Roles:        s.rolesFor(email),
		Active:       true,
	}

	confirm, err := s.mintPurposeToken(PurposeConfirmEmail, user.ID, email, ConfirmEmailTTL)
	if err != nil {
		return nil, "", err
	}
	// stored on the record, not just emailed, so a re-fetch can recover it
	user.SetAttribute(AttrConfirmEmailToken, confirm.Raw)

	if user, err = s.store.Upsert(ctx, user); err != nil {
		return nil, "", errors.Wrap(err, errors.CategoryInternal, "failed to persist user")
	}

	s.provisionCustomer(ctx, user)

	return user, confirm.Raw, nil
}

func (s *Service) provisionCustomer(ctx context.Context, user *AuthUser) {
	if s.customers == nil {
		return
	}
	if err := s.customers.Provision(ctx, CustomerID(user.ID), user.Sanitize()); err != nil {
		s.logger.Error("customer provisioning failed", "user", user.ID, "error", err)
	}
}

func (s *Service) mintTokenPair(user *AuthUser) (*AuthResponse, error) {
	return s.mintTokenPairWithPicture(user, "")
}

func (s *Service) mintTokenPairWithPicture(user *AuthUser, picture string) (*AuthResponse, error) {
	access, err := s.mintToken(PurposeAccess, user.ID, user.Email, user.FirstName, user.LastName, picture, user.Roles)
	if err != nil {
		return nil, err
	}

	refresh, err := s.mintToken(PurposeRefresh, user.ID, user.Email, user.FirstName, user.LastName, picture, user.Roles)
	if err != nil {
		return nil, err
	}

	return &AuthResponse{
		TokenType:    "Bearer",
		UserID:       user.ID,
		AccessToken:  access.Raw,
		RefreshToken: refresh.Raw,
		User:         user.Sanitize(),
	}, nil
}

func (s *Service) mintToken(purpose TokenPurpose, subject, email, firstName, lastName, picture string, roles []string) (*Token, error) {
	claims := &Claims{
		Roles:     roles,
		Email:     email,
		FirstName: firstName,
		LastName:  lastName,
		Picture:   picture,
	}
	claims.Issuer = s.cfg.GetIssuer()
	claims.Subject = subject
	claims.Audience = purpose.Audience()

	secret, ttl := s.purposeSecret(purpose)
	token, err := CreateToken(secret, claims, ttl, nil)
	if err != nil {
		return nil, err
	}
	return token, nil
}

func (s *Service) mintPurposeToken(purpose TokenPurpose, subject, email string, ttl int) (*Token, error) {
	claims := &Claims{Email: email}
	claims.Issuer = s.cfg.GetIssuer()
	claims.Subject = subject
	claims.Audience = purpose.Audience()

	secret, _ := s.purposeSecret(purpose)
	return CreateToken(secret, claims, ttl, nil)
}

// purposeSecret is the single exhaustive mapping from purpose to signing
// secret and default lifetime.
func (s *Service) purposeSecret(purpose TokenPurpose) ([]byte, int) {
	switch purpose {
	case PurposeRefresh:
		return []byte(s.cfg.GetRefreshTokenSecret()), RefreshTokenTTL
	case PurposeConfirmEmail:
		return []byte(s.cfg.GetConfirmEmailSecret()), ConfirmEmailTTL
	case PurposeForgotPassword:
		return []byte(s.cfg.GetForgotPasswordSecret()), ForgotPasswordTTL
	default:
		return []byte(s.cfg.GetAccessTokenSecret()), AccessTokenTTL
	}
}

func (s *Service) rolesFor(email string) []string {
	if s.isAdminEmail(email) {
		return []string{RoleAdmin}
	}
	return []string{RoleUser}
}

func (s *Service) isAdminEmail(email string) bool {
	for _, admin := range s.cfg.GetAdminEmails() {
		if strings.EqualFold(admin, email) {
			return true
		}
	}
	return false
}

func sanitizeAll(users []*AuthUser) []*AuthUser {
	out := make([]*AuthUser, 0, len(users))
	for _, u := range users {
		out = append(out, u.Sanitize())
	}
	return out
}
