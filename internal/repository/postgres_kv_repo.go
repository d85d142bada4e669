package repository

import (
	"context"
	"database/sql"
	"fmt"
)

// PostgresKVRepo はPostgreSQLのkv_storeテーブルを使用したキーバリューリポジトリ。
// スキーマはdatabase.RunMigrationsで作成する。
type PostgresKVRepo struct {
	db *sql.DB
}

// NewPostgresKVRepo はPostgresKVRepoを生成する。
func NewPostgresKVRepo(db *sql.DB) *PostgresKVRepo {
	return &PostgresKVRepo{db: db}
}

// Read は指定キーの値を取得する。見つからない場合はfound=falseを返す。
func (r *PostgresKVRepo) Read(ctx context.Context, key string) (string, bool, error) {
	var value string
	err := r.db.QueryRowContext(ctx,
		`SELECT value FROM kv_store WHERE key = $1`,
		key,
	).Scan(&value)

	if err == sql.ErrNoRows {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("failed to read kv entry: %w", err)
	}
	return value, true, nil
}

// Write は指定キーに値をUPSERTする。
func (r *PostgresKVRepo) Write(ctx context.Context, key, value string) error {
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO kv_store (key, value, updated_at)
		 VALUES ($1, $2, now())
		 ON CONFLICT (key) DO UPDATE SET value = EXCLUDED.value, updated_at = now()`,
		key, value,
	)
	if err != nil {
		return fmt.Errorf("failed to write kv entry: %w", err)
	}
	return nil
}

// Remove は指定キーを削除する。
func (r *PostgresKVRepo) Remove(ctx context.Context, key string) error {
	_, err := r.db.ExecContext(ctx,
		`DELETE FROM kv_store WHERE key = $1`,
		key,
	)
	if err != nil {
		return fmt.Errorf("failed to remove kv entry: %w", err)
	}
	return nil
}

// compile-time interface check
var _ KeyValueRepository = (*PostgresKVRepo)(nil)
