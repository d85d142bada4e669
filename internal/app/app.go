// Package app はストアフロントゲートの依存関係の組み立てとコマンドの実装を提供する。
package app

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	"github.com/hitoshi/storefront/internal/auth"
	"github.com/hitoshi/storefront/internal/config"
	"github.com/hitoshi/storefront/internal/database"
	"github.com/hitoshi/storefront/internal/handler"
	"github.com/hitoshi/storefront/internal/logger"
	"github.com/hitoshi/storefront/internal/metrics"
	"github.com/hitoshi/storefront/internal/middleware"
	"github.com/hitoshi/storefront/internal/navigation"
	"github.com/hitoshi/storefront/internal/policy"
	"github.com/hitoshi/storefront/internal/repository"
	"github.com/hitoshi/storefront/internal/route"
	"github.com/hitoshi/storefront/internal/security"
	"github.com/hitoshi/storefront/internal/session"
	"github.com/hitoshi/storefront/internal/storefront"
	"github.com/hitoshi/storefront/internal/worker/expiry"
)

// shutdownTimeout はシェルサーバーのグレースフルシャットダウンの上限。
const shutdownTimeout = 30 * time.Second

// Init はアプリケーションの初期化を行う。
// 環境変数からConfigを読み込み、JSON構造化ログをセットアップする。
// writerが指定された場合はログ出力先としてそのwriterを使用する。
func Init(w io.Writer) (*config.Config, *slog.Logger, error) {
	// 1. 環境変数から設定を読み込む
	cfg, err := config.Load()
	if err != nil {
		// 設定読み込み前でもログを使えるようにする
		logger.SetupDefault(w, "info")
		return nil, nil, fmt.Errorf("failed to load config: %w", err)
	}

	// 2. ログの初期化
	return cfg, logger.SetupDefault(w, cfg.LogLevel), nil
}

// Components はゲートを構成する部品一式。
// プロセスごとに1つ生成し、Closeで解放する。
type Components struct {
	Config      *config.Config
	Logger      *slog.Logger
	Registry    *prometheus.Registry
	Metrics     *metrics.Collector
	Session     *session.Session
	Table       *route.Table
	Interceptor *navigation.Interceptor
	Auth        *auth.Service
	API         *storefront.Client

	// DB はSTORAGE_DRIVER=postgresの場合のみ設定される。
	DB *sql.DB

	closers []func() error
}

// Build は設定から全依存関係を組み立てる。
// ストレージを開き、保存済みトークンを読み込んだセッションを生成する。
func Build(ctx context.Context, cfg *config.Config, log *slog.Logger) (*Components, error) {
	if log == nil {
		log = slog.Default()
	}
	c := &Components{Config: cfg, Logger: log}

	// 1. メトリクス
	c.Registry = prometheus.NewRegistry()
	c.Registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	c.Metrics = metrics.NewCollector(c.Registry)

	// 2. ストレージ
	storage, err := c.openStorage(ctx)
	if err != nil {
		c.Close()
		return nil, err
	}

	// 3. ストアフロントAPIクライアント
	httpClient, err := newAPIHTTPClient(cfg)
	if err != nil {
		c.Close()
		return nil, err
	}
	c.API = storefront.NewClient(cfg.APIBaseURL, httpClient, security.NewProfileValidator(), log)

	// 4. セッションとナビゲーション
	c.Session = session.New(ctx, storage, c.API,
		session.WithLogger(log),
		session.WithMetrics(c.Metrics),
	)
	c.closers = append(c.closers, func() error {
		c.Session.Close()
		return nil
	})

	c.Table = route.DefaultTable()
	c.Interceptor = navigation.New(c.Session, c.Table,
		policy.NewEvaluator(cfg.LoginPath, cfg.FallbackPath),
		navigation.WithFetchTimeout(cfg.IdentityFetchTimeout),
		navigation.WithMaxRedirects(cfg.MaxRedirects),
		navigation.WithLogger(log),
		navigation.WithMetrics(c.Metrics),
	)

	// 5. 認証サービス
	c.Auth = auth.NewService(c.API, c.Session,
		auth.ServiceConfig{LoginRateLimit: cfg.LoginRateLimit},
		c.Metrics, log,
	)

	return c, nil
}

// Close は保持しているリソースを生成と逆順に解放する。
func (c *Components) Close() {
	for i := len(c.closers) - 1; i >= 0; i-- {
		if err := c.closers[i](); err != nil {
			c.Logger.Warn("リソースの解放に失敗しました", slog.String("error", err.Error()))
		}
	}
	c.closers = nil
}

// openStorage はSTORAGE_DRIVERに応じたキーバリューストレージを開く。
func (c *Components) openStorage(ctx context.Context) (repository.KeyValueRepository, error) {
	cfg := c.Config
	switch cfg.StorageDriver {
	case config.StorageDriverPostgres:
		db, err := database.Open(cfg.DatabaseURL)
		if err != nil {
			return nil, fmt.Errorf("failed to open database: %w", err)
		}
		c.closers = append(c.closers, db.Close)
		if err := db.PingContext(ctx); err != nil {
			return nil, fmt.Errorf("failed to connect to database: %w", err)
		}
		c.DB = db
		c.Logger.Info("データベースに接続しました")
		return repository.NewPostgresKVRepo(db), nil

	case config.StorageDriverRedis:
		repo, err := repository.NewRedisKVRepo(repository.RedisKVConfig{
			Addr:      cfg.RedisAddr,
			Password:  cfg.RedisPassword,
			DB:        cfg.RedisDB,
			KeyPrefix: cfg.RedisKeyPrefix,
		})
		if err != nil {
			return nil, fmt.Errorf("failed to create redis storage: %w", err)
		}
		c.closers = append(c.closers, repo.Close)
		if err := repo.Ping(ctx); err != nil {
			return nil, err
		}
		c.Logger.Info("Redisに接続しました", slog.String("addr", cfg.RedisAddr))
		return repo, nil

	default:
		repo, err := repository.NewFileKVRepo(cfg.StoragePath)
		if err != nil {
			return nil, fmt.Errorf("failed to create file storage: %w", err)
		}
		return repo, nil
	}
}

// newAPIHTTPClient はストアフロントAPI用のHTTPクライアントを生成する。
// SAFE_TRANSPORTが有効な場合はプライベートネットワークへの接続を拒否するクライアントを使用する。
func newAPIHTTPClient(cfg *config.Config) (*http.Client, error) {
	if !cfg.SafeTransport {
		return &http.Client{Timeout: cfg.HTTPTimeout}, nil
	}

	port, err := security.PortOf(cfg.APIBaseURL)
	if err != nil {
		return nil, fmt.Errorf("invalid API_BASE_URL: %w", err)
	}
	guard := security.NewSSRFGuard(port)
	if err := guard.ValidateURL(cfg.APIBaseURL); err != nil {
		return nil, fmt.Errorf("API_BASE_URL is not allowed with SAFE_TRANSPORT: %w", err)
	}
	return guard.NewSafeClient(cfg.HTTPTimeout), nil
}

// newShellServer はシェルサーバーのhttp.Serverを生成する。
func newShellServer(c *Components, rl *middleware.RateLimiter) *http.Server {
	deps := &handler.RouterDeps{
		Logger:            c.Logger,
		CORSAllowedOrigin: c.Config.CORSAllowedOrigin,
		RateLimiter:       rl,
		Navigator:         c.Interceptor,
		AuthService:       c.Auth,
		Gatherer:          c.Registry,
	}
	if c.DB != nil {
		deps.HealthChecker = c.DB
	}

	return &http.Server{
		Addr:         ":" + c.Config.ServerPort,
		Handler:      handler.NewRouter(deps),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}
}

// runServe はシェルサーバーを起動する。
// SIGINTまたはSIGTERMシグナルを受信するとグレースフルシャットダウンを行う。
func runServe(ctx context.Context, c *Components) error {
	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	rl := middleware.NewRateLimiter(middleware.DefaultRateLimiterConfig(), c.Logger)
	defer rl.Stop()

	server := newShellServer(c, rl)

	// 期限切れトークンの監視をバックグラウンドで起動
	watcher := expiry.NewWatcher(c.Session.Credentials(), c.Logger, c.Config.ExpiryCheckInterval)
	go watcher.Start(ctx)

	errCh := make(chan error, 1)
	go func() {
		c.Logger.Info("シェルサーバーを起動します", slog.String("addr", server.Addr))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err, ok := <-errCh:
		if ok {
			return fmt.Errorf("server listen error: %w", err)
		}
		return nil
	case <-ctx.Done():
	}

	c.Logger.Info("シェルサーバーを停止しています")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server shutdown failed: %w", err)
	}

	c.Logger.Info("シェルサーバーを停止しました")
	return nil
}

// runMigrate はデータベースマイグレーションを実行する。
// すべての未適用マイグレーションを順番に適用する。
func runMigrate(cfg *config.Config, log *slog.Logger) error {
	if cfg.DatabaseURL == "" {
		return errors.New("DATABASE_URL is required for migrate")
	}

	log.Info("マイグレーションを実行します",
		slog.String("database_url", maskDatabaseURL(cfg.DatabaseURL)),
	)

	version, err := database.RunMigrations(cfg.DatabaseURL)
	if err != nil {
		return fmt.Errorf("migration failed: %w", err)
	}

	log.Info("マイグレーションが完了しました", slog.Uint64("version", uint64(version)))
	return nil
}

// runHealthcheck はヘルスチェックを実行する。
// distroless環境でのDockerヘルスチェック用サブコマンド。
// /health エンドポイントにHTTPリクエストを送り、結果を返す。
func runHealthcheck(ctx context.Context, port string) error {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, fmt.Sprintf("http://localhost:%s/health", port), nil)
	if err != nil {
		return fmt.Errorf("health check failed: %w", err)
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return fmt.Errorf("health check failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("health check returned status %d", resp.StatusCode)
	}

	return nil
}

// maskDatabaseURL はデータベースURLの認証情報をマスクする。
func maskDatabaseURL(url string) string {
	if len(url) > 20 {
		return url[:12] + "***@..."
	}
	return "***"
}
