// Package storefront はストアフロントAPIのクライアントを提供する。
// 識別エンドポイント（/me）と認証エンドポイント（/login, /register）を呼び出す。
package storefront

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"

	"golang.org/x/oauth2"

	"github.com/hitoshi/storefront/internal/model"
	"github.com/hitoshi/storefront/internal/security"
)

const (
	// maxResponseBytes はレスポンスボディの読み取り上限。
	maxResponseBytes = 1 << 20
	userAgent        = "Storefront/1.0"
)

// StatusError は想定外のHTTPステータスを表す。
type StatusError struct {
	Status  int
	Message string
}

// Error はerrorインターフェースを実装する。
func (e *StatusError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("storefront API returned status %d", e.Status)
	}
	return fmt.Sprintf("storefront API returned status %d: %s", e.Status, e.Message)
}

// StatusCode はHTTPステータスコードを返す。
func (e *StatusError) StatusCode() int {
	return e.Status
}

// Client はストアフロントAPIのクライアント。
type Client struct {
	baseURL    string
	httpClient *http.Client
	validator  security.ProfileValidator
	logger     *slog.Logger
}

// NewClient はClientの新しいインスタンスを生成する。
// baseURLは末尾のスラッシュを含まないAPIのベースURL（例: "https://shop.example.com/api"）。
func NewClient(baseURL string, httpClient *http.Client, validator security.ProfileValidator, logger *slog.Logger) *Client {
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	if validator == nil {
		validator = security.NewProfileValidator()
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: httpClient,
		validator:  validator,
		logger:     logger,
	}
}

// meResponse は識別エンドポイントのレスポンス。
type meResponse struct {
	Data *userRecord `json:"data"`
}

type userRecord struct {
	ID    uint   `json:"ID"`
	Email string `json:"email"`
	Role  string `json:"role"`
}

// FetchIdentity はトークンをBearer資格情報として識別エンドポイントを呼び出す。
// 200以外のステータスは*StatusErrorとして返す。
// 必須項目の欠落やマークアップを含む応答はエラーとして扱い、部分的に信頼することはない。
func (c *Client) FetchIdentity(ctx context.Context, token string) (*model.Identity, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/me", nil)
	if err != nil {
		return nil, fmt.Errorf("HTTPリクエストの作成に失敗しました: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.bearerClient(token).Do(req)
	if err != nil {
		c.logger.Error("識別エンドポイントの呼び出しに失敗しました",
			slog.String("error", err.Error()),
		)
		return nil, err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return nil, fmt.Errorf("レスポンスボディの読み取りに失敗しました: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		c.logger.Warn("識別エンドポイントがエラーステータスを返しました",
			slog.Int("http_status", resp.StatusCode),
		)
		return nil, &StatusError{Status: resp.StatusCode, Message: errorMessage(body)}
	}

	var payload meResponse
	if err := json.Unmarshal(body, &payload); err != nil {
		return nil, fmt.Errorf("レスポンスJSONのパースに失敗しました: %w", err)
	}

	return c.toIdentity(payload.Data)
}

// toIdentity はレスポンスのレコードを検証してIdentityに変換する。
func (c *Client) toIdentity(rec *userRecord) (*model.Identity, error) {
	if rec == nil {
		return nil, errors.New("identity response has no data")
	}
	if rec.ID == 0 {
		return nil, errors.New("identity response has no ID")
	}
	if err := c.validator.ValidateText("email", rec.Email); err != nil {
		return nil, fmt.Errorf("invalid identity response: %w", err)
	}
	if err := c.validator.ValidateText("role", rec.Role); err != nil {
		return nil, fmt.Errorf("invalid identity response: %w", err)
	}

	return &model.Identity{
		ID:    rec.ID,
		Email: rec.Email,
		Role:  model.ParseRole(rec.Role),
	}, nil
}

// credentials は認証エンドポイントのリクエストボディ。
type credentials struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type loginResponse struct {
	Token string `json:"token"`
}

// Login は認証エンドポイントを呼び出し、成功した場合はトークンを返す。
// 資格情報の拒否はmodel.ErrLoginFailed、サーバー側の試行制限はmodel.ErrLoginThrottledとして返す。
func (c *Client) Login(ctx context.Context, email, password string) (string, error) {
	status, body, err := c.postJSON(ctx, "/login", credentials{Email: email, Password: password})
	if err != nil {
		return "", err
	}

	switch {
	case status == http.StatusOK:
	case status == http.StatusBadRequest || status == http.StatusUnauthorized:
		return "", fmt.Errorf("%w: %s", model.ErrLoginFailed, errorMessage(body))
	case status == http.StatusTooManyRequests:
		return "", fmt.Errorf("%w: %s", model.ErrLoginThrottled, errorMessage(body))
	default:
		return "", &StatusError{Status: status, Message: errorMessage(body)}
	}

	var payload loginResponse
	if err := json.Unmarshal(body, &payload); err != nil {
		return "", fmt.Errorf("レスポンスJSONのパースに失敗しました: %w", err)
	}
	if payload.Token == "" {
		return "", fmt.Errorf("%w: response has no token", model.ErrLoginFailed)
	}
	return payload.Token, nil
}

// Register はユーザー登録エンドポイントを呼び出す。
// 登録の拒否はmodel.ErrRegistrationFailedとして返す。
func (c *Client) Register(ctx context.Context, email, password string) error {
	status, body, err := c.postJSON(ctx, "/register", credentials{Email: email, Password: password})
	if err != nil {
		return err
	}

	switch {
	case status == http.StatusCreated || status == http.StatusOK:
		return nil
	case status == http.StatusBadRequest || status == http.StatusConflict:
		return fmt.Errorf("%w: %s", model.ErrRegistrationFailed, errorMessage(body))
	default:
		return &StatusError{Status: status, Message: errorMessage(body)}
	}
}

// postJSON はJSONボディを送信し、ステータスとレスポンスボディを返す。
func (c *Client) postJSON(ctx context.Context, path string, payload any) (int, []byte, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return 0, nil, fmt.Errorf("リクエストJSONの生成に失敗しました: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(data))
	if err != nil {
		return 0, nil, fmt.Errorf("HTTPリクエストの作成に失敗しました: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	req.Header.Set("User-Agent", userAgent)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		c.logger.Error("ストアフロントAPIの呼び出しに失敗しました",
			slog.String("path", path),
			slog.String("error", err.Error()),
		)
		return 0, nil, err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return 0, nil, fmt.Errorf("レスポンスボディの読み取りに失敗しました: %w", err)
	}
	return resp.StatusCode, body, nil
}

// bearerClient はトークンをAuthorizationヘッダーに付与するHTTPクライアントを返す。
// ベースのクライアントのTransportとタイムアウトを引き継ぐ。
func (c *Client) bearerClient(token string) *http.Client {
	return &http.Client{
		Transport: &userAgentTransport{
			base: &oauth2.Transport{
				Source: oauth2.StaticTokenSource(&oauth2.Token{AccessToken: token, TokenType: "Bearer"}),
				Base:   c.httpClient.Transport,
			},
		},
		CheckRedirect: c.httpClient.CheckRedirect,
		Timeout:       c.httpClient.Timeout,
	}
}

// userAgentTransport はUser-Agentヘッダーを付与する。
type userAgentTransport struct {
	base http.RoundTripper
}

func (t *userAgentTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	r := req.Clone(req.Context())
	r.Header.Set("User-Agent", userAgent)
	return t.base.RoundTrip(r)
}

// errorMessage はAPIのエラーレスポンス {"error": "..."} からメッセージを取り出す。
func errorMessage(body []byte) string {
	var payload struct {
		Error string `json:"error"`
	}
	if err := json.Unmarshal(body, &payload); err != nil {
		return ""
	}
	return payload.Error
}
