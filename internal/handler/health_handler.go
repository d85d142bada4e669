package handler

import (
	"context"
	"log/slog"
	"net/http"
	"time"
)

// HealthChecker はストレージの疎通確認を行うインターフェース。
type HealthChecker interface {
	PingContext(ctx context.Context) error
}

// healthCheckTimeout はヘルスチェック1回あたりの上限。
const healthCheckTimeout = 2 * time.Second

// NewHealthHandler はヘルスチェック用のハンドラーを返す。
// GET /health
// checkerがnilの場合はプロセスの生存のみを返す。
func NewHealthHandler(checker HealthChecker, logger *slog.Logger) http.HandlerFunc {
	if logger == nil {
		logger = slog.Default()
	}
	return func(w http.ResponseWriter, r *http.Request) {
		if checker != nil {
			ctx, cancel := context.WithTimeout(r.Context(), healthCheckTimeout)
			defer cancel()
			if err := checker.PingContext(ctx); err != nil {
				logger.Warn("ヘルスチェックに失敗しました", slog.String("error", err.Error()))
				writeJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "unavailable"})
				return
			}
		}
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	}
}
