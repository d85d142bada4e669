package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/redis/go-redis/v9"
)

// RedisKVRepo はRedisを使用したキーバリューリポジトリ。
// キオスク端末など、プロセス外でセッションを保持したい構成向け。
type RedisKVRepo struct {
	client *redis.Client
	prefix string
}

// RedisKVConfig はRedisKVRepoの接続設定。
type RedisKVConfig struct {
	Addr      string
	Password  string
	DB        int
	KeyPrefix string
}

// NewRedisKVRepo はRedisKVRepoを生成する。
// 接続確認は行わないため、起動時にPingで疎通を確認すること。
func NewRedisKVRepo(cfg RedisKVConfig) (*RedisKVRepo, error) {
	if cfg.Addr == "" {
		return nil, errors.New("redis addr is required")
	}
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})
	return &RedisKVRepo{client: client, prefix: cfg.KeyPrefix}, nil
}

// Ping はRedisへの疎通を確認する。
func (r *RedisKVRepo) Ping(ctx context.Context) error {
	if err := r.client.Ping(ctx).Err(); err != nil {
		return fmt.Errorf("failed to ping redis: %w", err)
	}
	return nil
}

// Close はRedis接続を閉じる。
func (r *RedisKVRepo) Close() error {
	return r.client.Close()
}

// Read は指定キーの値を取得する。キーが存在しない場合はfound=falseを返す。
func (r *RedisKVRepo) Read(ctx context.Context, key string) (string, bool, error) {
	value, err := r.client.Get(ctx, r.key(key)).Result()
	if errors.Is(err, redis.Nil) {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("failed to read kv entry: %w", err)
	}
	return value, true, nil
}

// Write は指定キーに値を保存する。有効期限は設定しない。
func (r *RedisKVRepo) Write(ctx context.Context, key, value string) error {
	if err := r.client.Set(ctx, r.key(key), value, 0).Err(); err != nil {
		return fmt.Errorf("failed to write kv entry: %w", err)
	}
	return nil
}

// Remove は指定キーを削除する。
func (r *RedisKVRepo) Remove(ctx context.Context, key string) error {
	if err := r.client.Del(ctx, r.key(key)).Err(); err != nil {
		return fmt.Errorf("failed to remove kv entry: %w", err)
	}
	return nil
}

func (r *RedisKVRepo) key(key string) string {
	return r.prefix + key
}

// compile-time interface check
var _ KeyValueRepository = (*RedisKVRepo)(nil)
