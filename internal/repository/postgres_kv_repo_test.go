package repository

import "testing"

// PostgresKVRepoはKeyValueRepositoryインターフェースを満たすことを検証
func TestPostgresKVRepo_ImplementsInterface(t *testing.T) {
	var _ KeyValueRepository = (*PostgresKVRepo)(nil)
}

// NewPostgresKVRepoが正しく初期化されることを検証
func TestNewPostgresKVRepo_Initializes(t *testing.T) {
	repo := NewPostgresKVRepo(nil)
	if repo == nil {
		t.Fatal("expected non-nil repo")
	}
}
