package auth

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"
)

// memStore is an in-memory Store used to exercise Service without a database.
type memStore struct {
	mu            sync.Mutex
	users         map[string]*User
	refreshTokens map[string]*RefreshToken
	confirmations map[string]*ConfirmationToken
}

func newMemStore() *memStore {
	return &memStore{
		users:         make(map[string]*User),
		refreshTokens: make(map[string]*RefreshToken),
		confirmations: make(map[string]*ConfirmationToken),
	}
}

func (m *memStore) Users(context.Context) UserStore                           { return (*memUsers)(m) }
func (m *memStore) RefreshTokens(context.Context) RefreshTokenStore           { return (*memRefresh)(m) }
func (m *memStore) ConfirmationTokens(context.Context) ConfirmationTokenStore { return (*memConfirm)(m) }

type memUsers memStore

func (m *memUsers) Create(_ context.Context, u *User) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, have := range m.users {
		if have.Email == u.Email {
			return ErrDuplicateEmail
		}
	}
	cp := *u
	m.users[u.ID] = &cp
	return nil
}

func (m *memUsers) Find(_ context.Context, id string) (*User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	u, ok := m.users[id]
	if !ok {
		return nil, ErrNotFound
	}
	cp := *u
	return &cp, nil
}

func (m *memUsers) FindByEmail(_ context.Context, email string) (*User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, u := range m.users {
		if u.Email == email {
			cp := *u
			return &cp, nil
		}
	}
	return nil, ErrNotFound
}

func (m *memUsers) MarkConfirmed(_ context.Context, userID string, when time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	u, ok := m.users[userID]
	if !ok {
		return ErrNotFound
	}
	if u.ConfirmedAt != nil {
		return ErrAlreadyConfirmed
	}
	u.ConfirmedAt = &when
	return nil
}

type memRefresh memStore

func (m *memRefresh) Create(_ context.Context, tok *RefreshToken) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *tok
	m.refreshTokens[tok.ID] = &cp
	return nil
}

func (m *memRefresh) Find(_ context.Context, id string) (*RefreshToken, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	tok, ok := m.refreshTokens[id]
	if !ok {
		return nil, ErrNotFound
	}
	cp := *tok
	return &cp, nil
}

func (m *memRefresh) MarkRevoked(_ context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if tok, ok := m.refreshTokens[id]; ok {
		tok.Revoked = true
	}
	return nil
}

func (m *memRefresh) MarkRevokedByUser(_ context.Context, userID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, tok := range m.refreshTokens {
		if tok.UserID == userID {
			tok.Revoked = true
		}
	}
	return nil
}

type memConfirm memStore

func (m *memConfirm) Create(_ context.Context, tok *ConfirmationToken) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *tok
	m.confirmations[tok.Token] = &cp
	return nil
}

func (m *memConfirm) Find(_ context.Context, token string) (*ConfirmationToken, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	tok, ok := m.confirmations[token]
	if !ok {
		return nil, ErrNotFound
	}
	cp := *tok
	return &cp, nil
}

func (m *memConfirm) MarkConfirmed(_ context.Context, token string, when time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	tok, ok := m.confirmations[token]
	if !ok {
		return ErrNotFound
	}
	tok.ConfirmedAt = &when
	return nil
}

// recordingMailer captures sent confirmation tokens.
type recordingMailer struct {
	mu     sync.Mutex
	tokens []string
}

func (r *recordingMailer) SendConfirmation(_ context.Context, _ string, token string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.tokens = append(r.tokens, token)
	return nil
}

type serviceFixture struct {
	svc   *Service
	store *memStore
	mail  *recordingMailer
	clock *time.Time
}

func newServiceFixture(t *testing.T) *serviceFixture {
	t.Helper()
	now := time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC)
	clockFn := func() time.Time { return now }
	codec, err := NewCodec("test-secret", "clientdesk", WithCodecClock(clockFn))
	if err != nil {
		t.Fatalf("NewCodec: %v", err)
	}
	store := newMemStore()
	mail := &recordingMailer{}
	svc, err := NewService(store, codec, WithMailer(mail), WithClock(clockFn))
	if err != nil {
		t.Fatalf("NewService: %v", err)
	}
	return &serviceFixture{svc: svc, store: store, mail: mail, clock: &now}
}

func (f *serviceFixture) register(t *testing.T, email string) TokenPair {
	t.Helper()
	pair, err := f.svc.Register(context.Background(), RegisterInput{
		Email:     email,
		Password:  "correct horse",
		FirstName: "Ada",
		LastName:  "Lovelace",
	})
	if err != nil {
		t.Fatalf("Register: %v", err)
	}
	return pair
}

func TestRegisterIssuesTokensAndSendsConfirmation(t *testing.T) {
	f := newServiceFixture(t)
	pair := f.register(t, "ada@example.com")

	if pair.AccessToken == "" || pair.RefreshToken == "" {
		t.Fatal("expected both tokens to be issued")
	}
	if len(f.mail.tokens) != 1 {
		t.Fatalf("confirmation mails sent = %d, want 1", len(f.mail.tokens))
	}

	user, err := f.store.Users(context.Background()).FindByEmail(context.Background(), "ada@example.com")
	if err != nil {
		t.Fatalf("FindByEmail: %v", err)
	}
	if user.ConfirmedAt != nil {
		t.Fatal("new account must start unconfirmed")
	}
	if user.Role != RoleUser {
		t.Fatalf("role = %q, want USER", user.Role)
	}
}

func TestRegisterNormalizesEmailAndRejectsDuplicates(t *testing.T) {
	f := newServiceFixture(t)
	f.register(t, "  Ada@Example.COM ")

	_, err := f.svc.Register(context.Background(), RegisterInput{
		Email:    "ada@example.com",
		Password: "another pass",
	})
	if !errors.Is(err, ErrDuplicateEmail) {
		t.Fatalf("Register duplicate = %v, want ErrDuplicateEmail", err)
	}
}

func TestRegisterNeverGrantsAdmin(t *testing.T) {
	f := newServiceFixture(t)
	_, err := f.svc.Register(context.Background(), RegisterInput{
		Email:    "mallory@example.com",
		Password: "long enough",
		Role:     "ADMIN",
	})
	if err != nil {
		t.Fatalf("Register: %v", err)
	}
	user, err := f.store.Users(context.Background()).FindByEmail(context.Background(), "mallory@example.com")
	if err != nil {
		t.Fatalf("FindByEmail: %v", err)
	}
	if user.Role != RoleUser {
		t.Fatalf("role = %q, want USER", user.Role)
	}
}

func TestRegisterValidatesInput(t *testing.T) {
	f := newServiceFixture(t)
	cases := []struct {
		name string
		in   RegisterInput
	}{
		{"missing email", RegisterInput{Password: "long enough"}},
		{"malformed email", RegisterInput{Email: "no-at-sign", Password: "long enough"}},
		{"short password", RegisterInput{Email: "a@b.io", Password: "short"}},
		{"unknown role", RegisterInput{Email: "a@b.io", Password: "long enough", Role: "WIZARD"}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if _, err := f.svc.Register(context.Background(), tc.in); !errors.Is(err, ErrInvalidInput) {
				t.Fatalf("Register = %v, want ErrInvalidInput", err)
			}
		})
	}
}

func TestAuthenticate(t *testing.T) {
	f := newServiceFixture(t)
	f.register(t, "ada@example.com")

	pair, err := f.svc.Authenticate(context.Background(), "ADA@example.com", "correct horse")
	if err != nil {
		t.Fatalf("Authenticate: %v", err)
	}
	if pair.AccessToken == "" || pair.RefreshToken == "" {
		t.Fatal("expected a full token pair")
	}
}

func TestAuthenticateFailsUniformly(t *testing.T) {
	f := newServiceFixture(t)
	f.register(t, "ada@example.com")

	f.store.mu.Lock()
	var lockedID string
	for id, u := range f.store.users {
		if u.Email == "ada@example.com" {
			lockedID = id
		}
	}
	f.store.mu.Unlock()

	cases := []struct {
		name     string
		email    string
		password string
		mutate   func()
	}{
		{"unknown email", "nobody@example.com", "correct horse", nil},
		{"wrong password", "ada@example.com", "wrong", nil},
		{"empty password", "ada@example.com", "", nil},
		{"locked account", "ada@example.com", "correct horse", func() {
			f.store.mu.Lock()
			f.store.users[lockedID].Locked = true
			f.store.mu.Unlock()
		}},
		{"disabled account", "ada@example.com", "correct horse", func() {
			f.store.mu.Lock()
			f.store.users[lockedID].Locked = false
			f.store.users[lockedID].Enabled = false
			f.store.mu.Unlock()
		}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if tc.mutate != nil {
				tc.mutate()
			}
			if _, err := f.svc.Authenticate(context.Background(), tc.email, tc.password); !errors.Is(err, ErrInvalidCredentials) {
				t.Fatalf("Authenticate = %v, want ErrInvalidCredentials", err)
			}
		})
	}
}

func TestRefreshIssuesNewAccessToken(t *testing.T) {
	f := newServiceFixture(t)
	pair := f.register(t, "ada@example.com")

	access, expiresAt, err := f.svc.Refresh(context.Background(), pair.RefreshToken)
	if err != nil {
		t.Fatalf("Refresh: %v", err)
	}
	if access == "" {
		t.Fatal("expected a new access token")
	}
	if !expiresAt.After(*f.clock) {
		t.Fatalf("expiry %v not after now %v", expiresAt, *f.clock)
	}

	principal, err := f.svc.AuthenticateToken(context.Background(), access)
	if err != nil {
		t.Fatalf("AuthenticateToken: %v", err)
	}
	if principal.User.Email != "ada@example.com" {
		t.Fatalf("principal email = %q", principal.User.Email)
	}
}

func TestRefreshRejectsAccessToken(t *testing.T) {
	f := newServiceFixture(t)
	pair := f.register(t, "ada@example.com")

	if _, _, err := f.svc.Refresh(context.Background(), pair.AccessToken); !errors.Is(err, ErrInvalidRefreshToken) {
		t.Fatalf("Refresh with access token = %v, want ErrInvalidRefreshToken", err)
	}
}

func TestRefreshRejectsRevokedToken(t *testing.T) {
	f := newServiceFixture(t)
	pair := f.register(t, "ada@example.com")

	if err := f.svc.Logout(context.Background(), pair.RefreshToken); err != nil {
		t.Fatalf("Logout: %v", err)
	}
	if _, _, err := f.svc.Refresh(context.Background(), pair.RefreshToken); !errors.Is(err, ErrInvalidRefreshToken) {
		t.Fatalf("Refresh after logout = %v, want ErrInvalidRefreshToken", err)
	}
}

func TestRefreshRejectsExpiredRecord(t *testing.T) {
	f := newServiceFixture(t)
	pair := f.register(t, "ada@example.com")

	*f.clock = f.clock.Add(15 * 24 * time.Hour)
	if _, _, err := f.svc.Refresh(context.Background(), pair.RefreshToken); !errors.Is(err, ErrInvalidRefreshToken) {
		t.Fatalf("Refresh past expiry = %v, want ErrInvalidRefreshToken", err)
	}
}

func TestRefreshRevokesOnHashMismatch(t *testing.T) {
	f := newServiceFixture(t)
	pair := f.register(t, "ada@example.com")

	f.store.mu.Lock()
	var jti string
	for id, tok := range f.store.refreshTokens {
		tok.TokenHash = hashToken("something else")
		jti = id
	}
	f.store.mu.Unlock()

	if _, _, err := f.svc.Refresh(context.Background(), pair.RefreshToken); !errors.Is(err, ErrInvalidRefreshToken) {
		t.Fatalf("Refresh with tampered record = %v, want ErrInvalidRefreshToken", err)
	}

	record, err := f.store.RefreshTokens(context.Background()).Find(context.Background(), jti)
	if err != nil {
		t.Fatalf("Find: %v", err)
	}
	if !record.Revoked {
		t.Fatal("tampered record must be revoked")
	}
}

func TestRefreshForDisabledUserRevokesAllTokens(t *testing.T) {
	f := newServiceFixture(t)
	pair := f.register(t, "ada@example.com")

	f.store.mu.Lock()
	for _, u := range f.store.users {
		u.Enabled = false
	}
	f.store.mu.Unlock()

	if _, _, err := f.svc.Refresh(context.Background(), pair.RefreshToken); !errors.Is(err, ErrInvalidRefreshToken) {
		t.Fatalf("Refresh for disabled user = %v, want ErrInvalidRefreshToken", err)
	}

	f.store.mu.Lock()
	defer f.store.mu.Unlock()
	for _, tok := range f.store.refreshTokens {
		if !tok.Revoked {
			t.Fatal("disabled account must not retain live refresh tokens")
		}
	}
}

func TestLogoutIsIdempotent(t *testing.T) {
	f := newServiceFixture(t)
	pair := f.register(t, "ada@example.com")

	if err := f.svc.Logout(context.Background(), pair.RefreshToken); err != nil {
		t.Fatalf("first Logout: %v", err)
	}
	if err := f.svc.Logout(context.Background(), pair.RefreshToken); err != nil {
		t.Fatalf("second Logout: %v", err)
	}
}

func TestLogoutRejectsNonRefreshToken(t *testing.T) {
	f := newServiceFixture(t)
	pair := f.register(t, "ada@example.com")

	if err := f.svc.Logout(context.Background(), pair.AccessToken); !errors.Is(err, ErrInvalidRefreshToken) {
		t.Fatalf("Logout with access token = %v, want ErrInvalidRefreshToken", err)
	}
	if err := f.svc.Logout(context.Background(), "garbage"); !errors.Is(err, ErrInvalidRefreshToken) {
		t.Fatalf("Logout with garbage = %v, want ErrInvalidRefreshToken", err)
	}
}

func TestConfirm(t *testing.T) {
	f := newServiceFixture(t)
	f.register(t, "ada@example.com")
	token := f.mail.tokens[0]

	msg, err := f.svc.Confirm(context.Background(), token)
	if err != nil {
		t.Fatalf("Confirm: %v", err)
	}
	if msg != "account confirmed" {
		t.Fatalf("message = %q", msg)
	}

	user, err := f.store.Users(context.Background()).FindByEmail(context.Background(), "ada@example.com")
	if err != nil {
		t.Fatalf("FindByEmail: %v", err)
	}
	if user.ConfirmedAt == nil {
		t.Fatal("user must be marked confirmed")
	}

	if _, err := f.svc.Confirm(context.Background(), token); !errors.Is(err, ErrAlreadyConfirmed) {
		t.Fatalf("second Confirm = %v, want ErrAlreadyConfirmed", err)
	}
}

func TestConfirmUnknownToken(t *testing.T) {
	f := newServiceFixture(t)
	if _, err := f.svc.Confirm(context.Background(), "no-such-token"); !errors.Is(err, ErrTokenNotFound) {
		t.Fatalf("Confirm = %v, want ErrTokenNotFound", err)
	}
	if _, err := f.svc.Confirm(context.Background(), "  "); !errors.Is(err, ErrTokenNotFound) {
		t.Fatalf("Confirm blank = %v, want ErrTokenNotFound", err)
	}
}

func TestConfirmExpiredToken(t *testing.T) {
	f := newServiceFixture(t)
	f.register(t, "ada@example.com")
	token := f.mail.tokens[0]

	*f.clock = f.clock.Add(25 * time.Hour)
	if _, err := f.svc.Confirm(context.Background(), token); !errors.Is(err, ErrTokenExpired) {
		t.Fatalf("Confirm expired = %v, want ErrTokenExpired", err)
	}
}

func TestAuthenticateTokenRejectsRefreshToken(t *testing.T) {
	f := newServiceFixture(t)
	pair := f.register(t, "ada@example.com")

	if _, err := f.svc.AuthenticateToken(context.Background(), pair.RefreshToken); !errors.Is(err, ErrTokenMalformed) {
		t.Fatalf("AuthenticateToken with refresh token = %v, want ErrTokenMalformed", err)
	}
}

func TestAuthenticateTokenRejectsDisabledUser(t *testing.T) {
	f := newServiceFixture(t)
	pair := f.register(t, "ada@example.com")

	f.store.mu.Lock()
	for _, u := range f.store.users {
		u.Enabled = false
	}
	f.store.mu.Unlock()

	if _, err := f.svc.AuthenticateToken(context.Background(), pair.AccessToken); !errors.Is(err, ErrUnauthenticated) {
		t.Fatalf("AuthenticateToken = %v, want ErrUnauthenticated", err)
	}
}
