// Package auth はログイン、ユーザー登録、ログアウトのユースケースを提供する。
package auth

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/mail"
	"strings"

	"golang.org/x/time/rate"

	"github.com/hitoshi/storefront/internal/metrics"
	"github.com/hitoshi/storefront/internal/model"
	"github.com/hitoshi/storefront/internal/session"
)

var (
	// ErrInvalidInput はメールアドレスまたはパスワードが不正であることを表す。
	ErrInvalidInput = errors.New("invalid email or password input")
	// ErrNotLoggedIn はトークンが存在しないことを表す。
	ErrNotLoggedIn = errors.New("not logged in")
)

// ログイン試行の結果ラベル
const (
	loginResultSuccess   = "success"
	loginResultFailed    = "failed"
	loginResultThrottled = "throttled"
	loginResultError     = "error"
)

// Authenticator はストアフロントの認証エンドポイントのインターフェース。
type Authenticator interface {
	// Login は資格情報を送信し、成功した場合はトークンを返す。
	Login(ctx context.Context, email, password string) (string, error)
	// Register は新しいユーザーを登録する。
	Register(ctx context.Context, email, password string) error
}

// ServiceConfig は認証サービスの設定。
type ServiceConfig struct {
	LoginRateLimit int // 1分あたりのログイン試行回数。0以下の場合は制限しない
}

// Service は認証に関するユースケースを提供する。
// ログインに成功したトークンはセッションのクレデンシャルストアに保存する。
type Service struct {
	api     Authenticator
	session *session.Session
	limiter *rate.Limiter
	metrics metrics.MetricsCollector
	logger  *slog.Logger
}

// NewService はServiceを生成する。
func NewService(api Authenticator, sess *session.Session, config ServiceConfig, m metrics.MetricsCollector, logger *slog.Logger) *Service {
	limit := rate.Inf
	burst := 1
	if config.LoginRateLimit > 0 {
		limit = rate.Limit(float64(config.LoginRateLimit) / 60.0)
		burst = config.LoginRateLimit
	}
	if m == nil {
		m = metrics.Nop{}
	}
	if logger == nil {
		logger = slog.Default()
	}

	return &Service{
		api:     api,
		session: sess,
		limiter: rate.NewLimiter(limit, burst),
		metrics: m,
		logger:  logger,
	}
}

// Login は認証エンドポイントでログインし、取得したトークンを保存する。
// 既存のトークンは置き換えられ、識別情報キャッシュは無効化される。
func (s *Service) Login(ctx context.Context, email, password string) error {
	// 1. 入力検証
	email, err := normalizeCredentials(email, password)
	if err != nil {
		return err
	}

	// 2. 試行回数の制限
	if !s.limiter.Allow() {
		s.metrics.RecordLoginAttempt(loginResultThrottled)
		s.logger.Warn("ログイン試行回数が上限に達しました", slog.String("email", email))
		return model.ErrLoginThrottled
	}

	// 3. 認証エンドポイントの呼び出し
	token, err := s.api.Login(ctx, email, password)
	if err != nil {
		switch {
		case errors.Is(err, model.ErrLoginFailed):
			s.metrics.RecordLoginAttempt(loginResultFailed)
		case errors.Is(err, model.ErrLoginThrottled):
			s.metrics.RecordLoginAttempt(loginResultThrottled)
		default:
			s.metrics.RecordLoginAttempt(loginResultError)
		}
		s.logger.Warn("ログインに失敗しました",
			slog.String("email", email),
			slog.String("error", err.Error()),
		)
		return fmt.Errorf("failed to login: %w", err)
	}

	// 4. トークンを保存
	s.session.Credentials().Set(ctx, token)
	s.metrics.RecordLoginAttempt(loginResultSuccess)
	s.logger.Info("ログインしました", slog.String("email", email))
	return nil
}

// Register は新しいユーザーを登録する。登録後のログインは呼び出し元が行う。
func (s *Service) Register(ctx context.Context, email, password string) error {
	email, err := normalizeCredentials(email, password)
	if err != nil {
		return err
	}

	if err := s.api.Register(ctx, email, password); err != nil {
		s.logger.Warn("ユーザー登録に失敗しました",
			slog.String("email", email),
			slog.String("error", err.Error()),
		)
		return fmt.Errorf("failed to register: %w", err)
	}

	s.logger.Info("ユーザーを登録しました", slog.String("email", email))
	return nil
}

// Logout はトークンを削除する。ログインしていなかった場合はfalseを返す。
func (s *Service) Logout(ctx context.Context) bool {
	if !s.session.Credentials().IsLoggedIn() {
		return false
	}
	s.session.Credentials().Clear(ctx)
	s.logger.Info("ログアウトしました")
	return true
}

// CurrentUser は現在のユーザーの識別情報を返す。
// キャッシュ済みの場合はそれを返し、未取得の場合は識別エンドポイントから取得する。
func (s *Service) CurrentUser(ctx context.Context) (*model.Identity, error) {
	if !s.session.Credentials().IsLoggedIn() {
		return nil, ErrNotLoggedIn
	}
	if id, ok := s.session.Identities().Current(); ok {
		return id, nil
	}

	id, err := s.session.Identities().Fetch(ctx)
	if err != nil {
		return nil, err
	}
	if id == nil {
		return nil, ErrNotLoggedIn
	}
	return id, nil
}

// normalizeCredentials はメールアドレスとパスワードを検証し、正規化したメールアドレスを返す。
func normalizeCredentials(email, password string) (string, error) {
	email = strings.TrimSpace(email)
	if email == "" || password == "" {
		return "", fmt.Errorf("%w: email and password are required", ErrInvalidInput)
	}
	addr, err := mail.ParseAddress(email)
	if err != nil || addr.Address != email {
		return "", fmt.Errorf("%w: malformed email address", ErrInvalidInput)
	}
	return email, nil
}
