// Package model はドメインモデルを定義する。
package model

import (
	"errors"
	"fmt"
)

// 識別情報取得のエラー分類。
// セッションキャッシュはすべての取得エラーをこの2値に分類してから呼び出し元に返す。
var (
	// ErrInvalidSession はサーバーが資格情報を拒否したことを表す（常にログアウトを伴う）。
	ErrInvalidSession = errors.New("invalid session")
	// ErrUnavailable はネットワークまたはサーバーエラーを表す。資格情報は有効な可能性がある。
	ErrUnavailable = errors.New("identity unavailable")
)

// 認証ユースケースのエラー。
var (
	// ErrLoginFailed はログインが拒否されたことを表す。
	ErrLoginFailed = errors.New("login failed")
	// ErrLoginThrottled はログイン試行回数の上限に達したことを表す。
	ErrLoginThrottled = errors.New("login throttled")
	// ErrRegistrationFailed はユーザー登録が拒否されたことを表す。
	ErrRegistrationFailed = errors.New("registration failed")
)

// APIError は統一エラーフォーマットを表す。
// UIに表示する原因カテゴリと対処方法を含む。
type APIError struct {
	Code     string // エラーコード
	Message  string // エラーメッセージ
	Category string // カテゴリ: auth, validation, system
	Action   string // ユーザー向け対処方法
}

// Error はerrorインターフェースを実装する。
func (e *APIError) Error() string {
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

// 定義済みエラーコード
const (
	ErrCodeInvalidSession       = "INVALID_SESSION"
	ErrCodeIdentityUnavailable  = "IDENTITY_UNAVAILABLE"
	ErrCodeLoginFailed          = "LOGIN_FAILED"
	ErrCodeLoginThrottled       = "LOGIN_THROTTLED"
	ErrCodeRegistrationFailed   = "REGISTRATION_FAILED"
	ErrCodeInvalidInput         = "INVALID_INPUT"
	ErrCodeNotLoggedIn          = "NOT_LOGGED_IN"
	ErrCodeNavigationSuperseded = "NAVIGATION_SUPERSEDED"
	ErrCodeRedirectLoop         = "REDIRECT_LOOP"
)

// NewInvalidSessionError はセッション無効エラーを生成する。
func NewInvalidSessionError() *APIError {
	return &APIError{
		Code:     ErrCodeInvalidSession,
		Message:  "セッションの有効期限が切れました。",
		Category: "auth",
		Action:   "ログインし直してください。",
	}
}

// NewIdentityUnavailableError はユーザー情報取得失敗エラーを生成する。
func NewIdentityUnavailableError() *APIError {
	return &APIError{
		Code:     ErrCodeIdentityUnavailable,
		Message:  "ユーザー情報を取得できませんでした。",
		Category: "system",
		Action:   "しばらく待ってから再度お試しください。",
	}
}

// NewLoginFailedError はログイン失敗エラーを生成する。
func NewLoginFailedError() *APIError {
	return &APIError{
		Code:     ErrCodeLoginFailed,
		Message:  "メールアドレスまたはパスワードが正しくありません。",
		Category: "auth",
		Action:   "入力内容を確認して再度お試しください。",
	}
}

// NewLoginThrottledError はログイン試行制限エラーを生成する。
func NewLoginThrottledError() *APIError {
	return &APIError{
		Code:     ErrCodeLoginThrottled,
		Message:  "ログイン試行回数が上限に達しました。",
		Category: "auth",
		Action:   "1分ほど待ってから再度お試しください。",
	}
}

// NewRegistrationFailedError はユーザー登録失敗エラーを生成する。
func NewRegistrationFailedError(reason string) *APIError {
	return &APIError{
		Code:     ErrCodeRegistrationFailed,
		Message:  fmt.Sprintf("ユーザー登録に失敗しました: %s", reason),
		Category: "auth",
		Action:   "別のメールアドレスを使用するか、入力内容を確認してください。",
	}
}

// NewInvalidInputError は入力値不正エラーを生成する。
func NewInvalidInputError(reason string) *APIError {
	return &APIError{
		Code:     ErrCodeInvalidInput,
		Message:  fmt.Sprintf("入力内容が正しくありません: %s", reason),
		Category: "validation",
		Action:   "メールアドレスとパスワードを入力してください。",
	}
}

// NewNotLoggedInError は未ログインエラーを生成する。
func NewNotLoggedInError() *APIError {
	return &APIError{
		Code:     ErrCodeNotLoggedIn,
		Message:  "ログインしていません。",
		Category: "auth",
		Action:   "ログインしてください。",
	}
}

// NewNavigationSupersededError は新しいナビゲーションに置き換えられたエラーを生成する。
func NewNavigationSupersededError() *APIError {
	return &APIError{
		Code:     ErrCodeNavigationSuperseded,
		Message:  "より新しいページ遷移が完了しました。",
		Category: "navigation",
		Action:   "現在表示中のページをご利用ください。",
	}
}

// NewRedirectLoopError はリダイレクトループエラーを生成する。
func NewRedirectLoopError() *APIError {
	return &APIError{
		Code:     ErrCodeRedirectLoop,
		Message:  "ページの転送が繰り返されました。",
		Category: "system",
		Action:   "ログインページとフォールバックページの設定を確認してください。",
	}
}
