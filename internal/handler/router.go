package handler

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/hitoshi/storefront/internal/metrics"
	"github.com/hitoshi/storefront/internal/middleware"
)

// RouterDeps はNewRouterに必要な依存関係をまとめた構造体。
type RouterDeps struct {
	// ミドルウェア依存
	Logger            *slog.Logger
	CORSAllowedOrigin string
	CookieSecure      bool
	RateLimiter       *middleware.RateLimiter

	// シェル
	Navigator   Navigator
	AuthService AuthServiceInterface

	// 運用
	HealthChecker HealthChecker
	Gatherer      prometheus.Gatherer
}

// NewRouter はシェルサーバーのルーティングとミドルウェアチェーンを構成したchi.Routerを返す。
//
// ミドルウェアスタックの実行順序:
//
//	RequestID → Logging → Recovery → SecurityHeaders → CORS → RateLimit(General) → CSRF
//
// /health と /metrics はレート制限とCSRF検証の外に配置する。
// それ以外のGETリクエストはすべてページナビゲーションとして扱う。
func NewRouter(deps *RouterDeps) http.Handler {
	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}

	r := chi.NewRouter()

	r.Use(middleware.NewRequestIDMiddleware())
	r.Use(middleware.NewLoggingMiddleware(logger))
	r.Use(middleware.NewRecoveryMiddleware(logger))
	r.Use(middleware.NewSecurityHeadersMiddleware())
	r.Use(middleware.NewCORSMiddleware(deps.CORSAllowedOrigin))

	pageHandler := NewPageHandler(deps.Navigator, logger)
	sessionHandler := NewSessionHandler(deps.AuthService, logger)

	// --- 運用エンドポイント ---
	r.Get("/health", NewHealthHandler(deps.HealthChecker, logger))
	if deps.Gatherer != nil {
		r.Method(http.MethodGet, "/metrics", metrics.Handler(deps.Gatherer))
	}

	// --- シェル ---
	r.Group(func(r chi.Router) {
		if deps.RateLimiter != nil {
			r.Use(deps.RateLimiter.GeneralMiddleware())
		}
		r.Use(middleware.NewCSRFMiddleware(middleware.CSRFConfig{
			CookieSecure: deps.CookieSecure,
			Logger:       logger,
		}))

		r.Route("/session", func(r chi.Router) {
			if deps.RateLimiter != nil {
				r.With(deps.RateLimiter.LoginMiddleware()).Post("/login", sessionHandler.Login)
			} else {
				r.Post("/login", sessionHandler.Login)
			}
			r.Post("/register", sessionHandler.Register)
			r.Post("/logout", sessionHandler.Logout)
			r.Get("/me", sessionHandler.Me)
		})

		// ページナビゲーション
		r.Get("/*", pageHandler.Open)
	})

	return r
}
