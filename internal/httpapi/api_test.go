package httpapi

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sort"
	"sync"
	"testing"
	"time"

	"clientdesk.org/internal/auth"
	"clientdesk.org/internal/customer"
)

// fakeAuthStore is an in-memory auth.Store backing the handler tests.
type fakeAuthStore struct {
	mu            sync.Mutex
	users         map[string]*auth.User
	refreshTokens map[string]*auth.RefreshToken
	confirmations map[string]*auth.ConfirmationToken
}

func newFakeAuthStore() *fakeAuthStore {
	return &fakeAuthStore{
		users:         make(map[string]*auth.User),
		refreshTokens: make(map[string]*auth.RefreshToken),
		confirmations: make(map[string]*auth.ConfirmationToken),
	}
}

func (f *fakeAuthStore) Users(context.Context) auth.UserStore { return (*fakeUsers)(f) }
func (f *fakeAuthStore) RefreshTokens(context.Context) auth.RefreshTokenStore {
	return (*fakeRefresh)(f)
}
func (f *fakeAuthStore) ConfirmationTokens(context.Context) auth.ConfirmationTokenStore {
	return (*fakeConfirm)(f)
}

type fakeUsers fakeAuthStore

func (f *fakeUsers) Create(_ context.Context, u *auth.User) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, have := range f.users {
		if have.Email == u.Email {
			return auth.ErrDuplicateEmail
		}
	}
	cp := *u
	f.users[u.ID] = &cp
	return nil
}

func (f *fakeUsers) Find(_ context.Context, id string) (*auth.User, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	u, ok := f.users[id]
	if !ok {
		return nil, auth.ErrNotFound
	}
	cp := *u
	return &cp, nil
}

func (f *fakeUsers) FindByEmail(_ context.Context, email string) (*auth.User, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, u := range f.users {
		if u.Email == email {
			cp := *u
			return &cp, nil
		}
	}
	return nil, auth.ErrNotFound
}

func (f *fakeUsers) MarkConfirmed(_ context.Context, userID string, when time.Time) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	u, ok := f.users[userID]
	if !ok {
		return auth.ErrNotFound
	}
	if u.ConfirmedAt != nil {
		return auth.ErrAlreadyConfirmed
	}
	u.ConfirmedAt = &when
	return nil
}

type fakeRefresh fakeAuthStore

func (f *fakeRefresh) Create(_ context.Context, tok *auth.RefreshToken) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	cp := *tok
	f.refreshTokens[tok.ID] = &cp
	return nil
}

func (f *fakeRefresh) Find(_ context.Context, id string) (*auth.RefreshToken, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	tok, ok := f.refreshTokens[id]
	if !ok {
		return nil, auth.ErrNotFound
	}
	cp := *tok
	return &cp, nil
}

func (f *fakeRefresh) MarkRevoked(_ context.Context, id string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if tok, ok := f.refreshTokens[id]; ok {
		tok.Revoked = true
	}
	return nil
}

func (f *fakeRefresh) MarkRevokedByUser(_ context.Context, userID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, tok := range f.refreshTokens {
		if tok.UserID == userID {
			tok.Revoked = true
		}
	}
	return nil
}

type fakeConfirm fakeAuthStore

func (f *fakeConfirm) Create(_ context.Context, tok *auth.ConfirmationToken) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	cp := *tok
	f.confirmations[tok.Token] = &cp
	return nil
}

func (f *fakeConfirm) Find(_ context.Context, token string) (*auth.ConfirmationToken, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	tok, ok := f.confirmations[token]
	if !ok {
		return nil, auth.ErrNotFound
	}
	cp := *tok
	return &cp, nil
}

func (f *fakeConfirm) MarkConfirmed(_ context.Context, token string, when time.Time) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	tok, ok := f.confirmations[token]
	if !ok {
		return auth.ErrNotFound
	}
	tok.ConfirmedAt = &when
	return nil
}

// fakeCustomerStore is an in-memory customer.Store.
type fakeCustomerStore struct {
	mu     sync.Mutex
	nextID int64
	items  map[int64]customer.Customer
}

func newFakeCustomerStore() *fakeCustomerStore {
	return &fakeCustomerStore{items: make(map[int64]customer.Customer)}
}

func (f *fakeCustomerStore) List(context.Context) ([]customer.Customer, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]customer.Customer, 0, len(f.items))
	for _, c := range f.items {
		out = append(out, c)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (f *fakeCustomerStore) Get(_ context.Context, id int64) (customer.Customer, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	c, ok := f.items[id]
	if !ok {
		return customer.Customer{}, customer.ErrNotFound
	}
	return c, nil
}

func (f *fakeCustomerStore) Create(_ context.Context, in customer.Input) (customer.Customer, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, c := range f.items {
		if c.Email == in.Email {
			return customer.Customer{}, customer.ErrDuplicateEmail
		}
	}
	f.nextID++
	now := time.Now().UTC()
	c := customer.Customer{ID: f.nextID, Name: in.Name, Email: in.Email, Age: in.Age, CreatedAt: now, UpdatedAt: now}
	f.items[c.ID] = c
	return c, nil
}

func (f *fakeCustomerStore) Update(_ context.Context, id int64, in customer.Input) (customer.Customer, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	c, ok := f.items[id]
	if !ok {
		return customer.Customer{}, customer.ErrNotFound
	}
	c.Name, c.Email, c.Age = in.Name, in.Email, in.Age
	c.UpdatedAt = time.Now().UTC()
	f.items[id] = c
	return c, nil
}

func (f *fakeCustomerStore) Delete(_ context.Context, id int64) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.items[id]; !ok {
		return customer.ErrNotFound
	}
	delete(f.items, id)
	return nil
}

// captureMailer records the confirmation tokens handed to it.
type captureMailer struct {
	mu     sync.Mutex
	tokens []string
}

func (c *captureMailer) SendConfirmation(_ context.Context, _ string, token string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.tokens = append(c.tokens, token)
	return nil
}

func (c *captureMailer) last(t *testing.T) string {
	t.Helper()
	c.mu.Lock()
	defer c.mu.Unlock()
	if len(c.tokens) == 0 {
		t.Fatal("no confirmation token captured")
	}
	return c.tokens[len(c.tokens)-1]
}

type apiFixture struct {
	handler   http.Handler
	api       *API
	authStore *fakeAuthStore
	mail      *captureMailer
}

func newAPIFixture(t *testing.T) *apiFixture {
	t.Helper()
	return newAPIFixtureOpts(t, nil)
}

func newAPIFixtureOpts(t *testing.T, tweak func(*Options)) *apiFixture {
	t.Helper()
	codec, err := auth.NewCodec("test-secret", "clientdesk")
	if err != nil {
		t.Fatalf("NewCodec: %v", err)
	}
	store := newFakeAuthStore()
	mail := &captureMailer{}
	authSvc, err := auth.NewService(store, codec, auth.WithMailer(mail))
	if err != nil {
		t.Fatalf("NewService: %v", err)
	}
	customerSvc, err := customer.NewService(newFakeCustomerStore())
	if err != nil {
		t.Fatalf("customer.NewService: %v", err)
	}
	opts := Options{
		Auth:        authSvc,
		Customers:   customerSvc,
		Version:     "test",
		CORSOrigins: []string{"http://localhost:3000"},
	}
	if tweak != nil {
		tweak(&opts)
	}
	api := New(opts)
	return &apiFixture{
		handler:   api.Handler(),
		api:       api,
		authStore: store,
		mail:      mail,
	}
}

func (f *apiFixture) do(t *testing.T, method, path, token string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			t.Fatalf("encode body: %v", err)
		}
	}
	req := httptest.NewRequest(method, path, &buf)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	f.handler.ServeHTTP(rec, req)
	return rec
}

func newJSONRequest(t *testing.T, method, path string, body any) *http.Request {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			t.Fatalf("encode body: %v", err)
		}
	}
	req := httptest.NewRequest(method, path, &buf)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	return req
}

func doRaw(f *apiFixture, req *http.Request) *httptest.ResponseRecorder {
	rec := httptest.NewRecorder()
	f.handler.ServeHTTP(rec, req)
	return rec
}

// register creates an account through the public endpoint and returns the
// issued token pair.
func (f *apiFixture) register(t *testing.T, email string) auth.TokenPair {
	t.Helper()
	rec := f.do(t, http.MethodPost, "/api/v1/auth/register", "", map[string]any{
		"email":     email,
		"password":  "correct horse",
		"firstName": "Ada",
		"lastName":  "Lovelace",
	})
	if rec.Code != http.StatusOK {
		t.Fatalf("register status = %d, body %s", rec.Code, rec.Body.String())
	}
	var pair auth.TokenPair
	if err := json.Unmarshal(rec.Body.Bytes(), &pair); err != nil {
		t.Fatalf("decode token pair: %v", err)
	}
	return pair
}

// promote rewrites the stored role for the user, simulating an operator
// grant; tokens must be re-issued afterwards to carry the new role.
func (f *apiFixture) promote(t *testing.T, email string, role auth.Role) {
	t.Helper()
	f.authStore.mu.Lock()
	defer f.authStore.mu.Unlock()
	for _, u := range f.authStore.users {
		if u.Email == email {
			u.Role = role
			return
		}
	}
	t.Fatalf("no user with email %s", email)
}

// login authenticates and returns a fresh token pair.
func (f *apiFixture) login(t *testing.T, email, password string) auth.TokenPair {
	t.Helper()
	rec := f.do(t, http.MethodPost, "/api/v1/auth/authenticate", "", map[string]any{
		"email":    email,
		"password": password,
	})
	if rec.Code != http.StatusOK {
		t.Fatalf("authenticate status = %d, body %s", rec.Code, rec.Body.String())
	}
	var pair auth.TokenPair
	if err := json.Unmarshal(rec.Body.Bytes(), &pair); err != nil {
		t.Fatalf("decode token pair: %v", err)
	}
	return pair
}
