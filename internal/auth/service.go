package auth

import (
	"context"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"clientdesk.org/internal/ids"
	"clientdesk.org/internal/mailer"
	"clientdesk.org/internal/obs"
)

const (
	defaultAccessTTL  = 15 * time.Minute
	defaultRefreshTTL = 14 * 24 * time.Hour
	defaultConfirmTTL = 24 * time.Hour

	minPasswordLength = 8
)

// Service orchestrates registration, login, token refresh, confirmation,
// and logout on top of the codec and the credential store.
type Service struct {
	store  Store
	codec  *Codec
	mail   mailer.Mailer
	now    func() time.Time

	accessTTL  time.Duration
	refreshTTL time.Duration
	confirmTTL time.Duration
}

// ServiceOption configures Service behavior.
type ServiceOption func(*Service)

// WithMailer sets the confirmation mail collaborator.
func WithMailer(m mailer.Mailer) ServiceOption {
	return func(s *Service) {
		if m != nil {
			s.mail = m
		}
	}
}

// WithAccessTTL configures access token lifetime.
func WithAccessTTL(ttl time.Duration) ServiceOption {
	return func(s *Service) {
		if ttl > 0 {
			s.accessTTL = ttl
		}
	}
}

// WithRefreshTTL configures refresh token lifetime.
func WithRefreshTTL(ttl time.Duration) ServiceOption {
	return func(s *Service) {
		if ttl > 0 {
			s.refreshTTL = ttl
		}
	}
}

// WithConfirmTTL configures confirmation token lifetime.
func WithConfirmTTL(ttl time.Duration) ServiceOption {
	return func(s *Service) {
		if ttl > 0 {
			s.confirmTTL = ttl
		}
	}
}

// WithClock overrides the time source (useful for tests).
func WithClock(fn func() time.Time) ServiceOption {
	return func(s *Service) {
		if fn != nil {
			s.now = fn
		}
	}
}

// NewService constructs a Service with optional configuration.
func NewService(store Store, codec *Codec, opts ...ServiceOption) (*Service, error) {
	if store == nil {
		return nil, errors.New("auth: store is required")
	}
	if codec == nil {
		return nil, errors.New("auth: token codec is required")
	}
	svc := &Service{
		store:      store,
		codec:      codec,
		mail:       mailer.Log{},
		now:        time.Now,
		accessTTL:  defaultAccessTTL,
		refreshTTL: defaultRefreshTTL,
		confirmTTL: defaultConfirmTTL,
	}
	for _, opt := range opts {
		opt(svc)
	}
	return svc, nil
}

// RegisterInput carries the registration request fields.
type RegisterInput struct {
	Email     string
	Password  string
	FirstName string
	LastName  string
	Role      string
}

// Register creates a user and immediately issues a token pair; the account
// stays unconfirmed until the mailed confirmation token is redeemed.
func (s *Service) Register(ctx context.Context, in RegisterInput) (TokenPair, error) {
	email := normalizeEmail(in.Email)
	if err := validateEmail(email); err != nil {
		return TokenPair{}, err
	}
	if len(in.Password) < minPasswordLength {
		return TokenPair{}, fmt.Errorf("%w: password must be at least %d characters", ErrInvalidInput, minPasswordLength)
	}
	role, err := ParseRole(in.Role)
	if err != nil {
		return TokenPair{}, err
	}
	// The public endpoint never grants ADMIN; the bootstrap admin is seeded.
	if role == RoleAdmin {
		role = RoleUser
	}

	if _, err := s.store.Users(ctx).FindByEmail(ctx, email); err == nil {
		return TokenPair{}, ErrDuplicateEmail
	} else if !errors.Is(err, ErrNotFound) {
		return TokenPair{}, err
	}

	hash, err := HashPassword(in.Password)
	if err != nil {
		return TokenPair{}, err
	}
	user := &User{
		ID:           ids.New(),
		Email:        email,
		FirstName:    strings.TrimSpace(in.FirstName),
		LastName:     strings.TrimSpace(in.LastName),
		PasswordHash: hash,
		Role:         role,
		Enabled:      true,
	}
	if err := s.store.Users(ctx).Create(ctx, user); err != nil {
		return TokenPair{}, err
	}

	if err := s.sendConfirmation(ctx, user); err != nil {
		// Registration already succeeded; the confirmation mail can be re-sent.
		obs.LogRequest(map[string]any{
			"level": "warn",
			"msg":   "confirmation_mail_failed",
			"user":  user.ID,
			"error": err.Error(),
		})
	}

	return s.issueTokenPair(ctx, user)
}

// Authenticate verifies credentials and issues a new token pair. Unknown
// email, wrong password, and disabled or locked accounts all fail with the
// same ErrInvalidCredentials so the response leaks nothing.
func (s *Service) Authenticate(ctx context.Context, email, password string) (TokenPair, error) {
	email = normalizeEmail(email)
	if email == "" || password == "" {
		return TokenPair{}, ErrInvalidCredentials
	}
	user, err := s.store.Users(ctx).FindByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return TokenPair{}, ErrInvalidCredentials
		}
		return TokenPair{}, err
	}
	if !user.Enabled || user.Locked {
		return TokenPair{}, ErrInvalidCredentials
	}
	if err := VerifyPassword(user.PasswordHash, password); err != nil {
		return TokenPair{}, ErrInvalidCredentials
	}
	return s.issueTokenPair(ctx, user)
}

// Refresh validates a refresh token against signature, expiry, revocation
// state, and the stored hash, then issues a new access token for the same
// subject. The refresh token is not rotated.
func (s *Service) Refresh(ctx context.Context, refreshToken string) (string, time.Time, error) {
	_, user, err := s.verifyRefreshToken(ctx, refreshToken)
	if err != nil {
		return "", time.Time{}, err
	}
	access, claims, err := s.codec.Issue(user.ID, user.Role, TokenAccess, s.accessTTL)
	if err != nil {
		return "", time.Time{}, err
	}
	return access, claims.ExpiresAt.Time, nil
}

// Logout marks the presented refresh token as revoked. Revoking an already
// revoked token is a no-op.
func (s *Service) Logout(ctx context.Context, refreshToken string) error {
	claims, err := s.codec.Validate(refreshToken)
	if err != nil || claims.TokenType != string(TokenRefresh) {
		return ErrInvalidRefreshToken
	}
	return s.store.RefreshTokens(ctx).MarkRevoked(ctx, claims.ID)
}

// Confirm redeems a single-use confirmation token and marks the user
// confirmed. Re-confirmation fails with ErrAlreadyConfirmed.
func (s *Service) Confirm(ctx context.Context, token string) (string, error) {
	token = strings.TrimSpace(token)
	if token == "" {
		return "", ErrTokenNotFound
	}
	record, err := s.store.ConfirmationTokens(ctx).Find(ctx, token)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return "", ErrTokenNotFound
		}
		return "", err
	}
	if record.ConfirmedAt != nil {
		return "", ErrAlreadyConfirmed
	}
	now := s.now().UTC()
	if now.After(record.ExpiresAt) {
		return "", ErrTokenExpired
	}
	if err := s.store.ConfirmationTokens(ctx).MarkConfirmed(ctx, token, now); err != nil {
		return "", err
	}
	if err := s.store.Users(ctx).MarkConfirmed(ctx, record.UserID, now); err != nil && !errors.Is(err, ErrAlreadyConfirmed) {
		return "", err
	}
	return "account confirmed", nil
}

// AuthenticateToken validates an access token and resolves the principal.
func (s *Service) AuthenticateToken(ctx context.Context, token string) (Principal, error) {
	claims, err := s.codec.Validate(token)
	if err != nil {
		return Principal{}, err
	}
	if claims.TokenType != string(TokenAccess) {
		return Principal{}, ErrTokenMalformed
	}
	user, err := s.store.Users(ctx).Find(ctx, claims.Subject)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return Principal{}, ErrUnauthenticated
		}
		return Principal{}, err
	}
	if !user.Enabled || user.Locked {
		return Principal{}, ErrUnauthenticated
	}
	return NewPrincipal(user), nil
}

func (s *Service) issueTokenPair(ctx context.Context, user *User) (TokenPair, error) {
	access, accessClaims, err := s.codec.Issue(user.ID, user.Role, TokenAccess, s.accessTTL)
	if err != nil {
		return TokenPair{}, err
	}
	refresh, refreshClaims, err := s.codec.Issue(user.ID, user.Role, TokenRefresh, s.refreshTTL)
	if err != nil {
		return TokenPair{}, err
	}
	record := &RefreshToken{
		ID:        refreshClaims.ID,
		UserID:    user.ID,
		TokenHash: hashToken(refresh),
		ExpiresAt: refreshClaims.ExpiresAt.Time,
	}
	if err := s.store.RefreshTokens(ctx).Create(ctx, record); err != nil {
		return TokenPair{}, err
	}
	return TokenPair{
		AccessToken:      access,
		RefreshToken:     refresh,
		AccessExpiresAt:  accessClaims.ExpiresAt.Time,
		RefreshExpiresAt: refreshClaims.ExpiresAt.Time,
	}, nil
}

func (s *Service) verifyRefreshToken(ctx context.Context, refreshToken string) (*RefreshToken, *User, error) {
	claims, err := s.codec.Validate(refreshToken)
	if err != nil || claims.TokenType != string(TokenRefresh) {
		return nil, nil, ErrInvalidRefreshToken
	}
	record, err := s.store.RefreshTokens(ctx).Find(ctx, claims.ID)
	if err != nil {
		return nil, nil, ErrInvalidRefreshToken
	}
	if record.Revoked || s.now().After(record.ExpiresAt) {
		return nil, nil, ErrInvalidRefreshToken
	}
	if !secureCompareHash(record.TokenHash, refreshToken) {
		// Hash mismatch under a valid jti means the record was tampered with;
		// revoke it outright.
		_ = s.store.RefreshTokens(ctx).MarkRevoked(ctx, record.ID)
		return nil, nil, ErrInvalidRefreshToken
	}
	user, err := s.store.Users(ctx).Find(ctx, record.UserID)
	if err != nil {
		return nil, nil, ErrInvalidRefreshToken
	}
	if !user.Enabled || user.Locked {
		// A disabled or locked account keeps no live sessions.
		_ = s.store.RefreshTokens(ctx).MarkRevokedByUser(ctx, user.ID)
		return nil, nil, ErrInvalidRefreshToken
	}
	return record, user, nil
}

func (s *Service) sendConfirmation(ctx context.Context, user *User) error {
	token := &ConfirmationToken{
		Token:     uuid.NewString(),
		UserID:    user.ID,
		ExpiresAt: s.now().UTC().Add(s.confirmTTL),
	}
	if err := s.store.ConfirmationTokens(ctx).Create(ctx, token); err != nil {
		return err
	}
	return s.mail.SendConfirmation(ctx, user.Email, token.Token)
}

func hashToken(token string) string {
	sum := sha256.Sum256([]byte(token))
	return hex.EncodeToString(sum[:])
}

func secureCompareHash(expectedHash, token string) bool {
	actual := hashToken(token)
	if len(expectedHash) != len(actual) {
		return false
	}
	return subtle.ConstantTimeCompare([]byte(expectedHash), []byte(actual)) == 1
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

func validateEmail(email string) error {
	if email == "" {
		return fmt.Errorf("%w: email is required", ErrInvalidInput)
	}
	at := strings.Index(email, "@")
	if at <= 0 || at == len(email)-1 {
		return fmt.Errorf("%w: email is malformed", ErrInvalidInput)
	}
	return nil
}
