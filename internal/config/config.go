package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"
)

// ストレージドライバ
const (
	StorageDriverFile     = "file"
	StorageDriverPostgres = "postgres"
	StorageDriverRedis    = "redis"
)

// DefaultServerPort はシェルサーバーのデフォルトポート。
const DefaultServerPort = "5173"

// Config はアプリケーション全体の設定を保持する。
// 環境変数から起動時に1回読み込み、イミュータブルとして扱う。
type Config struct {
	// Storefront API
	APIBaseURL    string
	HTTPTimeout   time.Duration
	SafeTransport bool

	// Storage
	StorageDriver  string
	StoragePath    string
	DatabaseURL    string
	RedisAddr      string
	RedisPassword  string
	RedisDB        int
	RedisKeyPrefix string

	// Navigation
	IdentityFetchTimeout time.Duration
	LoginPath            string
	FallbackPath         string
	MaxRedirects         int

	// Auth
	LoginRateLimit int // 1分あたりのログイン試行回数

	// Worker
	ExpiryCheckInterval time.Duration // 期限切れトークンの確認間隔

	// Logging
	LogLevel string

	// Server
	ServerPort        string
	CORSAllowedOrigin string
}

// Load は環境変数からConfigを読み込む。
// 必須環境変数が未設定の場合はエラーを返す。
func Load() (*Config, error) {
	cfg := &Config{}

	// Required fields
	var missing []string

	cfg.APIBaseURL = strings.TrimRight(os.Getenv("API_BASE_URL"), "/")
	if cfg.APIBaseURL == "" {
		missing = append(missing, "API_BASE_URL")
	}

	cfg.StorageDriver = strings.ToLower(getEnvString("STORAGE_DRIVER", StorageDriverFile))
	switch cfg.StorageDriver {
	case StorageDriverFile, StorageDriverRedis:
	case StorageDriverPostgres:
		cfg.DatabaseURL = os.Getenv("DATABASE_URL")
		if cfg.DatabaseURL == "" {
			missing = append(missing, "DATABASE_URL")
		}
	default:
		return nil, fmt.Errorf("unsupported STORAGE_DRIVER: %s (allowed: file, postgres, redis)", cfg.StorageDriver)
	}

	if len(missing) > 0 {
		return nil, fmt.Errorf("required environment variables are not set: %v", missing)
	}

	// Optional fields with defaults
	cfg.HTTPTimeout = getEnvDuration("HTTP_TIMEOUT", 10*time.Second)
	cfg.SafeTransport = getEnvBool("SAFE_TRANSPORT", false)
	cfg.StoragePath = getEnvString("STORAGE_PATH", defaultStoragePath())
	cfg.RedisAddr = getEnvString("REDIS_ADDR", "localhost:6379")
	cfg.RedisPassword = getEnvString("REDIS_PASSWORD", "")
	cfg.RedisDB = getEnvInt("REDIS_DB", 0)
	cfg.RedisKeyPrefix = getEnvString("REDIS_KEY_PREFIX", "storefront:")
	cfg.IdentityFetchTimeout = getEnvDuration("IDENTITY_FETCH_TIMEOUT", 5*time.Second)
	cfg.LoginPath = getEnvString("LOGIN_PATH", "/login")
	cfg.FallbackPath = getEnvString("FALLBACK_PATH", "/")
	cfg.MaxRedirects = getEnvInt("MAX_REDIRECTS", 5)
	cfg.LoginRateLimit = getEnvInt("LOGIN_RATE_LIMIT", 10)
	cfg.ExpiryCheckInterval = getEnvDuration("EXPIRY_CHECK_INTERVAL", time.Minute)
	cfg.LogLevel = getEnvString("LOG_LEVEL", "info")
	cfg.ServerPort = getEnvString("SERVER_PORT", DefaultServerPort)
	cfg.CORSAllowedOrigin = getEnvString("CORS_ALLOWED_ORIGIN", "http://localhost:5173")

	return cfg, nil
}

// defaultStoragePath はセッションファイルのデフォルト保存先を返す。
// ホームディレクトリが取得できない場合はカレントディレクトリを使用する。
func defaultStoragePath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return filepath.Join(".storefront", "session.json")
	}
	return filepath.Join(home, ".storefront", "session.json")
}

func getEnvString(key, defaultVal string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return defaultVal
}

func getEnvInt(key string, defaultVal int) int {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal
	}
	i, err := strconv.Atoi(v)
	if err != nil {
		return defaultVal
	}
	return i
}

func getEnvBool(key string, defaultVal bool) bool {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return defaultVal
	}
	return b
}

func getEnvDuration(key string, defaultVal time.Duration) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return defaultVal
	}
	return d
}
