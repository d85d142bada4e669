package auth

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/hitoshi/storefront/internal/model"
	"github.com/hitoshi/storefront/internal/session"
)

// --- モック定義 ---

type mockAuthenticator struct {
	mu         sync.Mutex
	loginCalls int
	loginFn    func(ctx context.Context, email, password string) (string, error)
	registerFn func(ctx context.Context, email, password string) error
}

func (m *mockAuthenticator) Login(ctx context.Context, email, password string) (string, error) {
	m.mu.Lock()
	m.loginCalls++
	m.mu.Unlock()
	if m.loginFn != nil {
		return m.loginFn(ctx, email, password)
	}
	return "token", nil
}

func (m *mockAuthenticator) Register(ctx context.Context, email, password string) error {
	if m.registerFn != nil {
		return m.registerFn(ctx, email, password)
	}
	return nil
}

type mockFetcher struct {
	fetchFn func(ctx context.Context, token string) (*model.Identity, error)
}

func (m *mockFetcher) FetchIdentity(ctx context.Context, token string) (*model.Identity, error) {
	return m.fetchFn(ctx, token)
}

// --- compile-time interface checks ---
var _ Authenticator = (*mockAuthenticator)(nil)
var _ session.IdentityFetcher = (*mockFetcher)(nil)

type mockMetrics struct {
	mu     sync.Mutex
	logins map[string]int
}

func (m *mockMetrics) RecordLoginAttempt(result string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.logins == nil {
		m.logins = make(map[string]int)
	}
	m.logins[result]++
}

func (m *mockMetrics) RecordIdentityFetch(string) {}
func (m *mockMetrics) RecordIdentityFetchLatency(_ time.Duration) {}
func (m *mockMetrics) RecordSessionInvalidation(string) {}
func (m *mockMetrics) RecordNavigation(string) {}
func (m *mockMetrics) RecordNavigationLatency(_ time.Duration) {}
func (m *mockMetrics) RecordSupersededCommit() {}

func newTestService(api Authenticator, fetcher session.IdentityFetcher, limit int) (*Service, *session.Session, *mockMetrics) {
	sess := session.New(context.Background(), nil, fetcher)
	m := &mockMetrics{}
	return NewService(api, sess, ServiceConfig{LoginRateLimit: limit}, m, nil), sess, m
}

// --- テスト ---

func TestLogin_Success_StoresToken(t *testing.T) {
	api := &mockAuthenticator{
		loginFn: func(ctx context.Context, email, password string) (string, error) {
			if email != "user@example.com" || password != "secret" {
				t.Errorf("credentials = %s/%s", email, password)
			}
			return "issued-token", nil
		},
	}
	svc, sess, m := newTestService(api, nil, 10)

	if err := svc.Login(context.Background(), "  user@example.com ", "secret"); err != nil {
		t.Fatalf("Login() error = %v", err)
	}

	token, ok := sess.Credentials().Get()
	if !ok || token != "issued-token" {
		t.Errorf("token = (%q, %v), want (%q, true)", token, ok, "issued-token")
	}
	if m.logins[loginResultSuccess] != 1 {
		t.Errorf("success count = %d, want 1", m.logins[loginResultSuccess])
	}
}

func TestLogin_ReplacesExistingTokenAndInvalidatesIdentity(t *testing.T) {
	fetcher := &mockFetcher{fetchFn: func(ctx context.Context, token string) (*model.Identity, error) {
		return &model.Identity{ID: 1, Email: "admin@example.com", Role: model.RoleAdmin}, nil
	}}
	svc, sess, _ := newTestService(&mockAuthenticator{}, fetcher, 10)
	ctx := context.Background()

	sess.Credentials().Set(ctx, "old-token")
	if _, err := sess.Identities().Fetch(ctx); err != nil {
		t.Fatalf("Fetch() error = %v", err)
	}

	if err := svc.Login(ctx, "user@example.com", "pw"); err != nil {
		t.Fatalf("Login() error = %v", err)
	}

	if sess.Identities().Loaded() {
		t.Error("identity must be invalidated after a new login")
	}
}

func TestLogin_InvalidInput(t *testing.T) {
	api := &mockAuthenticator{}
	svc, _, _ := newTestService(api, nil, 10)

	inputs := []struct{ email, password string }{
		{"", "pw"},
		{"user@example.com", ""},
		{"not-an-email", "pw"},
		{"User <user@example.com>", "pw"},
	}

	for _, in := range inputs {
		err := svc.Login(context.Background(), in.email, in.password)
		if !errors.Is(err, ErrInvalidInput) {
			t.Errorf("Login(%q) error = %v, want ErrInvalidInput", in.email, err)
		}
	}
	if api.loginCalls != 0 {
		t.Errorf("login endpoint must not be called for invalid input, got %d calls", api.loginCalls)
	}
}

func TestLogin_Rejected_KeepsLoggedOut(t *testing.T) {
	api := &mockAuthenticator{
		loginFn: func(ctx context.Context, email, password string) (string, error) {
			return "", model.ErrLoginFailed
		},
	}
	svc, sess, m := newTestService(api, nil, 10)

	err := svc.Login(context.Background(), "user@example.com", "wrong")

	if !errors.Is(err, model.ErrLoginFailed) {
		t.Errorf("error = %v, want ErrLoginFailed", err)
	}
	if sess.Credentials().IsLoggedIn() {
		t.Error("failed login must not store a token")
	}
	if m.logins[loginResultFailed] != 1 {
		t.Errorf("failed count = %d, want 1", m.logins[loginResultFailed])
	}
}

func TestLogin_ThrottledAfterLimit(t *testing.T) {
	api := &mockAuthenticator{}
	svc, _, m := newTestService(api, nil, 3)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		if err := svc.Login(ctx, "user@example.com", "pw"); err != nil {
			t.Fatalf("attempt %d: Login() error = %v", i+1, err)
		}
	}

	err := svc.Login(ctx, "user@example.com", "pw")
	if !errors.Is(err, model.ErrLoginThrottled) {
		t.Errorf("error = %v, want ErrLoginThrottled", err)
	}
	if api.loginCalls != 3 {
		t.Errorf("login endpoint calls = %d, want 3", api.loginCalls)
	}
	if m.logins[loginResultThrottled] != 1 {
		t.Errorf("throttled count = %d, want 1", m.logins[loginResultThrottled])
	}
}

func TestLogin_NoLimitWhenZero(t *testing.T) {
	svc, _, _ := newTestService(&mockAuthenticator{}, nil, 0)

	for i := 0; i < 50; i++ {
		if err := svc.Login(context.Background(), "user@example.com", "pw"); err != nil {
			t.Fatalf("attempt %d: Login() error = %v", i+1, err)
		}
	}
}

func TestRegister(t *testing.T) {
	var got string
	api := &mockAuthenticator{
		registerFn: func(ctx context.Context, email, password string) error {
			got = email
			return nil
		},
	}
	svc, sess, _ := newTestService(api, nil, 10)

	if err := svc.Register(context.Background(), "new@example.com", "pw"); err != nil {
		t.Fatalf("Register() error = %v", err)
	}
	if got != "new@example.com" {
		t.Errorf("registered email = %q", got)
	}
	if sess.Credentials().IsLoggedIn() {
		t.Error("registration must not log the user in")
	}
}

func TestRegister_Rejected(t *testing.T) {
	api := &mockAuthenticator{
		registerFn: func(ctx context.Context, email, password string) error {
			return model.ErrRegistrationFailed
		},
	}
	svc, _, _ := newTestService(api, nil, 10)

	err := svc.Register(context.Background(), "dup@example.com", "pw")
	if !errors.Is(err, model.ErrRegistrationFailed) {
		t.Errorf("error = %v, want ErrRegistrationFailed", err)
	}
}

func TestLogout(t *testing.T) {
	svc, sess, _ := newTestService(&mockAuthenticator{}, nil, 10)
	ctx := context.Background()

	if svc.Logout(ctx) {
		t.Error("Logout() = true while logged out")
	}

	sess.Credentials().Set(ctx, "token")
	if !svc.Logout(ctx) {
		t.Error("Logout() = false while logged in")
	}
	if sess.Credentials().IsLoggedIn() {
		t.Error("token must be cleared")
	}
}

func TestCurrentUser(t *testing.T) {
	calls := 0
	fetcher := &mockFetcher{fetchFn: func(ctx context.Context, token string) (*model.Identity, error) {
		calls++
		return &model.Identity{ID: 4, Email: "user@example.com", Role: model.RoleCustomer}, nil
	}}
	svc, sess, _ := newTestService(&mockAuthenticator{}, fetcher, 10)
	ctx := context.Background()

	if _, err := svc.CurrentUser(ctx); !errors.Is(err, ErrNotLoggedIn) {
		t.Errorf("error = %v, want ErrNotLoggedIn", err)
	}

	sess.Credentials().Set(ctx, "token")
	for i := 0; i < 2; i++ {
		id, err := svc.CurrentUser(ctx)
		if err != nil {
			t.Fatalf("CurrentUser() error = %v", err)
		}
		if id.ID != 4 {
			t.Errorf("ID = %d, want 4", id.ID)
		}
	}
	if calls != 1 {
		t.Errorf("fetch calls = %d, want 1 (cached afterwards)", calls)
	}
}
