// Package handler はシェルサーバーのHTTPハンドラーを提供する。
package handler

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/hitoshi/storefront/internal/middleware"
	"github.com/hitoshi/storefront/internal/model"
	"github.com/hitoshi/storefront/internal/navigation"
)

// Navigator はページハンドラーが必要とするナビゲーションのインターフェース。
type Navigator interface {
	Navigate(ctx context.Context, rawPath string) (navigation.Result, error)
}

// PageResponse はコミットされたページ遷移のレスポンス。
type PageResponse struct {
	AttemptID         string   `json:"attempt_id"`
	Route             string   `json:"route"`
	Path              string   `json:"path"`
	RequiresAuth      bool     `json:"requires_auth"`
	RequiresPrivilege bool     `json:"requires_privilege"`
	Redirects         []string `json:"redirects,omitempty"`
}

// PageHandler はページパスへのナビゲーションを処理するHTTPハンドラー。
type PageHandler struct {
	navigator Navigator
	logger    *slog.Logger
}

// NewPageHandler はPageHandlerを生成する。
func NewPageHandler(navigator Navigator, logger *slog.Logger) *PageHandler {
	if logger == nil {
		logger = slog.Default()
	}
	return &PageHandler{navigator: navigator, logger: logger}
}

// Open はリクエストパスへのナビゲーションを実行する。
// GET /{path}
// 許可された場合は200でページ情報を返し、リダイレクトされた場合は最終的な遷移先へ302で誘導する。
func (h *PageHandler) Open(w http.ResponseWriter, r *http.Request) {
	target := r.URL.Path
	if r.URL.RawQuery != "" {
		target += "?" + r.URL.RawQuery
	}

	res, err := h.navigator.Navigate(r.Context(), target)
	if err != nil {
		switch {
		case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
			// クライアントが切断済み
			h.logger.Info("ナビゲーションが中断されました", slog.String("path", target))
		case errors.Is(err, navigation.ErrSuperseded):
			middleware.WriteErrorResponse(w, http.StatusConflict, model.NewNavigationSupersededError())
		case errors.Is(err, navigation.ErrRedirectLoop):
			h.logger.Error("リダイレクトループを検出しました", slog.String("path", target))
			middleware.WriteErrorResponse(w, http.StatusLoopDetected, model.NewRedirectLoopError())
		default:
			h.logger.Error("ナビゲーションに失敗しました",
				slog.String("path", target),
				slog.String("error", err.Error()),
			)
			middleware.WriteInternalServerError(w)
		}
		return
	}

	if res.Redirected() {
		http.Redirect(w, r, res.Path, http.StatusFound)
		return
	}

	writeJSON(w, http.StatusOK, PageResponse{
		AttemptID:         res.ID,
		Route:             res.Route.Name,
		Path:              res.Path,
		RequiresAuth:      res.Route.Requirement.RequiresAuth,
		RequiresPrivilege: res.Route.Requirement.RequiresPrivilege,
	})
}

// writeJSON はJSONレスポンスを書き込む。
func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}
