package handler

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/hitoshi/storefront/internal/auth"
	"github.com/hitoshi/storefront/internal/middleware"
	"github.com/hitoshi/storefront/internal/model"
)

// maxCredentialBodyBytes はログイン・登録リクエストボディの上限。
const maxCredentialBodyBytes = 4 << 10

// AuthServiceInterface はセッションハンドラーが必要とするサービスインターフェース。
type AuthServiceInterface interface {
	Login(ctx context.Context, email, password string) error
	Register(ctx context.Context, email, password string) error
	Logout(ctx context.Context) bool
	CurrentUser(ctx context.Context) (*model.Identity, error)
}

// credentialsRequest はログイン・登録リクエストのボディ。
type credentialsRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

// IdentityResponse は現在のユーザー情報のレスポンス。
type IdentityResponse struct {
	ID         uint   `json:"id"`
	Email      string `json:"email"`
	Role       string `json:"role"`
	Privileged bool   `json:"privileged"`
}

// SessionHandler はログイン状態を操作するHTTPハンドラー。
type SessionHandler struct {
	service AuthServiceInterface
	logger  *slog.Logger
}

// NewSessionHandler はSessionHandlerを生成する。
func NewSessionHandler(service AuthServiceInterface, logger *slog.Logger) *SessionHandler {
	if logger == nil {
		logger = slog.Default()
	}
	return &SessionHandler{service: service, logger: logger}
}

// Login はメールアドレスとパスワードでログインする。
// POST /session/login
func (h *SessionHandler) Login(w http.ResponseWriter, r *http.Request) {
	req, ok := h.decodeCredentials(w, r)
	if !ok {
		return
	}

	if err := h.service.Login(r.Context(), req.Email, req.Password); err != nil {
		h.writeServiceError(w, err)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

// Register は新しいユーザーを登録する。
// POST /session/register
func (h *SessionHandler) Register(w http.ResponseWriter, r *http.Request) {
	req, ok := h.decodeCredentials(w, r)
	if !ok {
		return
	}

	if err := h.service.Register(r.Context(), req.Email, req.Password); err != nil {
		h.writeServiceError(w, err)
		return
	}

	w.WriteHeader(http.StatusCreated)
}

// Logout はトークンを破棄する。ログインしていない場合も成功として扱う。
// POST /session/logout
func (h *SessionHandler) Logout(w http.ResponseWriter, r *http.Request) {
	h.service.Logout(r.Context())
	w.WriteHeader(http.StatusNoContent)
}

// Me は現在のログインユーザー情報を返す。
// GET /session/me
func (h *SessionHandler) Me(w http.ResponseWriter, r *http.Request) {
	id, err := h.service.CurrentUser(r.Context())
	if err != nil {
		h.writeServiceError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, IdentityResponse{
		ID:         id.ID,
		Email:      id.Email,
		Role:       string(id.Role),
		Privileged: id.IsPrivileged(),
	})
}

func (h *SessionHandler) decodeCredentials(w http.ResponseWriter, r *http.Request) (credentialsRequest, bool) {
	var req credentialsRequest
	r.Body = http.MaxBytesReader(w, r.Body, maxCredentialBodyBytes)
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		middleware.WriteErrorResponse(w, http.StatusBadRequest, model.NewInvalidInputError("JSON形式が不正です"))
		return req, false
	}
	return req, true
}

// writeServiceError はサービス層のエラーをHTTPレスポンスに変換する。
func (h *SessionHandler) writeServiceError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, auth.ErrInvalidInput):
		middleware.WriteErrorResponse(w, http.StatusBadRequest, model.NewInvalidInputError("メールアドレスの形式が不正です"))
	case errors.Is(err, auth.ErrNotLoggedIn):
		middleware.WriteErrorResponse(w, http.StatusUnauthorized, model.NewNotLoggedInError())
	case errors.Is(err, model.ErrLoginThrottled):
		middleware.WriteRetryableError(w, http.StatusTooManyRequests, model.NewLoginThrottledError(), time.Minute)
	case errors.Is(err, model.ErrLoginFailed):
		middleware.WriteErrorResponse(w, http.StatusUnauthorized, model.NewLoginFailedError())
	case errors.Is(err, model.ErrRegistrationFailed):
		middleware.WriteErrorResponse(w, http.StatusConflict, model.NewRegistrationFailedError("登録できないメールアドレスです"))
	case errors.Is(err, model.ErrInvalidSession):
		middleware.WriteErrorResponse(w, http.StatusUnauthorized, model.NewInvalidSessionError())
	case errors.Is(err, model.ErrUnavailable):
		middleware.WriteErrorResponse(w, http.StatusServiceUnavailable, model.NewIdentityUnavailableError())
	default:
		h.logger.Error("セッション操作に失敗しました", slog.String("error", err.Error()))
		middleware.WriteInternalServerError(w)
	}
}
