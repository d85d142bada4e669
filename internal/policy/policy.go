// Package policy はナビゲーションのアクセス判定を提供する。
package policy

import "github.com/hitoshi/storefront/internal/model"

// デフォルトの遷移先
const (
	DefaultLoginPath    = "/login"
	DefaultFallbackPath = "/"
)

// Input は判定に使用するセッション状態。
// 呼び出し元が1回のスナップショットから組み立てる。
type Input struct {
	HasToken       bool
	IdentityLoaded bool
	Privileged     bool
}

// Evaluator はルート要件とセッション状態から判定を導出する。
// 副作用も内部状態も持たない。
type Evaluator struct {
	loginPath    string
	fallbackPath string
}

// NewEvaluator はEvaluatorを生成する。空のパスはデフォルト値になる。
func NewEvaluator(loginPath, fallbackPath string) *Evaluator {
	if loginPath == "" {
		loginPath = DefaultLoginPath
	}
	if fallbackPath == "" {
		fallbackPath = DefaultFallbackPath
	}
	return &Evaluator{loginPath: loginPath, fallbackPath: fallbackPath}
}

// LoginPath はログインページのパスを返す。
func (e *Evaluator) LoginPath() string {
	return e.loginPath
}

// FallbackPath は特権がない場合の遷移先を返す。
func (e *Evaluator) FallbackPath() string {
	return e.fallbackPath
}

// Evaluate は判定を返す。
//
// 認証チェックは常に特権チェックより先に行う。
// RequiresPrivilegeのみが指定された要件は認証も必要とみなす。
// 特権は読み込み済みの識別情報がある場合にのみ認める。
func (e *Evaluator) Evaluate(req model.RouteRequirement, in Input) model.Decision {
	requiresAuth := req.RequiresAuth || req.RequiresPrivilege

	if requiresAuth && !in.HasToken {
		return model.Redirect(e.loginPath)
	}
	if req.RequiresPrivilege && !(in.IdentityLoaded && in.Privileged) {
		return model.Redirect(e.fallbackPath)
	}
	return model.Allow()
}
