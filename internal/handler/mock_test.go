package handler

import (
	"context"

	"github.com/hitoshi/storefront/internal/model"
	"github.com/hitoshi/storefront/internal/navigation"
)

// --- モック定義 ---

type mockNavigator struct {
	navigateFn func(ctx context.Context, rawPath string) (navigation.Result, error)
	paths      []string
}

func (m *mockNavigator) Navigate(ctx context.Context, rawPath string) (navigation.Result, error) {
	m.paths = append(m.paths, rawPath)
	if m.navigateFn != nil {
		return m.navigateFn(ctx, rawPath)
	}
	return navigation.Result{}, nil
}

type mockAuthService struct {
	loginFn       func(ctx context.Context, email, password string) error
	registerFn    func(ctx context.Context, email, password string) error
	logoutFn      func(ctx context.Context) bool
	currentUserFn func(ctx context.Context) (*model.Identity, error)
}

func (m *mockAuthService) Login(ctx context.Context, email, password string) error {
	if m.loginFn != nil {
		return m.loginFn(ctx, email, password)
	}
	return nil
}

func (m *mockAuthService) Register(ctx context.Context, email, password string) error {
	if m.registerFn != nil {
		return m.registerFn(ctx, email, password)
	}
	return nil
}

func (m *mockAuthService) Logout(ctx context.Context) bool {
	if m.logoutFn != nil {
		return m.logoutFn(ctx)
	}
	return false
}

func (m *mockAuthService) CurrentUser(ctx context.Context) (*model.Identity, error) {
	if m.currentUserFn != nil {
		return m.currentUserFn(ctx)
	}
	return nil, nil
}

type mockHealthChecker struct {
	pingFn func(ctx context.Context) error
}

func (m *mockHealthChecker) PingContext(ctx context.Context) error {
	return m.pingFn(ctx)
}

// --- compile-time interface checks ---
var _ Navigator = (*mockNavigator)(nil)
var _ AuthServiceInterface = (*mockAuthService)(nil)
var _ HealthChecker = (*mockHealthChecker)(nil)
