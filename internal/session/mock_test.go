package session

import (
	"context"
	"fmt"
	"sync"

	"github.com/hitoshi/storefront/internal/model"
	"github.com/hitoshi/storefront/internal/repository"
)

// mockFetcher はIdentityFetcherのモック。
type mockFetcher struct {
	mu      sync.Mutex
	calls   int
	tokens  []string
	fetchFn func(ctx context.Context, token string) (*model.Identity, error)
}

var _ IdentityFetcher = (*mockFetcher)(nil)

func (m *mockFetcher) FetchIdentity(ctx context.Context, token string) (*model.Identity, error) {
	m.mu.Lock()
	m.calls++
	m.tokens = append(m.tokens, token)
	m.mu.Unlock()
	return m.fetchFn(ctx, token)
}

func (m *mockFetcher) callCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.calls
}

// memStorage はKeyValueRepositoryのインメモリ実装。
// errFnを設定すると全操作がそのエラーを返す。
type memStorage struct {
	mu     sync.Mutex
	values map[string]string
	errFn  func(op string) error
}

var _ repository.KeyValueRepository = (*memStorage)(nil)

func newMemStorage() *memStorage {
	return &memStorage{values: make(map[string]string)}
}

func (m *memStorage) fail(op string) error {
	if m.errFn == nil {
		return nil
	}
	return m.errFn(op)
}

func (m *memStorage) Read(ctx context.Context, key string) (string, bool, error) {
	if err := m.fail("read"); err != nil {
		return "", false, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	v, ok := m.values[key]
	return v, ok, nil
}

func (m *memStorage) Write(ctx context.Context, key, value string) error {
	if err := m.fail("write"); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.values[key] = value
	return nil
}

func (m *memStorage) Remove(ctx context.Context, key string) error {
	if err := m.fail("remove"); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.values, key)
	return nil
}

func (m *memStorage) get(key string) (string, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	v, ok := m.values[key]
	return v, ok
}

// statusError はHTTPステータスを持つエラーのテスト用実装。
type statusError struct {
	code int
}

func (e *statusError) Error() string   { return fmt.Sprintf("unexpected status %d", e.code) }
func (e *statusError) StatusCode() int { return e.code }

func identityFor(role model.Role) func(context.Context, string) (*model.Identity, error) {
	return func(ctx context.Context, token string) (*model.Identity, error) {
		return &model.Identity{ID: 1, Email: "user@example.com", Role: role}, nil
	}
}
