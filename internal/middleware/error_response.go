package middleware

import (
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"github.com/hitoshi/storefront/internal/model"
)

// ErrorResponseBody はシェルサーバーのエラーレスポンス。
// request_idはRequestIDミドルウェアを通過した場合のみ設定される。
type ErrorResponseBody struct {
	Code      string `json:"code"`
	Message   string `json:"message"`
	Category  string `json:"category"`
	Action    string `json:"action"`
	RequestID string `json:"request_id,omitempty"`
}

// WriteErrorResponse はmodel.APIErrorをJSONで書き込む。
// レスポンスヘッダーにリクエストIDがあれば本文にも含め、ログと突き合わせられるようにする。
func WriteErrorResponse(w http.ResponseWriter, statusCode int, apiErr *model.APIError) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	json.NewEncoder(w).Encode(ErrorResponseBody{
		Code:      apiErr.Code,
		Message:   apiErr.Message,
		Category:  apiErr.Category,
		Action:    apiErr.Action,
		RequestID: w.Header().Get(RequestIDHeader),
	})
}

// WriteRetryableError はRetry-Afterヘッダー付きでエラーを書き込む。
// retryAfterは秒単位に切り上げ、最低1秒とする。
func WriteRetryableError(w http.ResponseWriter, statusCode int, apiErr *model.APIError, retryAfter time.Duration) {
	sec := int((retryAfter + time.Second - 1) / time.Second)
	if sec < 1 {
		sec = 1
	}
	w.Header().Set("Retry-After", strconv.Itoa(sec))
	WriteErrorResponse(w, statusCode, apiErr)
}

// WriteInternalServerError は内部エラーを書き込む。詳細は呼び出し元でログに記録する。
func WriteInternalServerError(w http.ResponseWriter) {
	WriteErrorResponse(w, http.StatusInternalServerError, &model.APIError{
		Code:     "INTERNAL_ERROR",
		Message:  "内部エラーが発生しました。",
		Category: "system",
		Action:   "しばらく待ってから再度お試しください。",
	})
}
