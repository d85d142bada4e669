package model

import "fmt"

// RouteRequirement はルートごとに宣言されるアクセス要件。
// ルートテーブルで静的に定義され、実行時の状態からは導出されない。
type RouteRequirement struct {
	RequiresAuth      bool
	RequiresPrivilege bool
}

// DecisionKind はナビゲーション判定の種別。
type DecisionKind int

const (
	// DecisionAllow は遷移の許可を表す。
	DecisionAllow DecisionKind = iota
	// DecisionRedirect は別パスへのリダイレクトを表す。
	DecisionRedirect
)

// String はDecisionKindの文字列表現を返す。
func (k DecisionKind) String() string {
	switch k {
	case DecisionAllow:
		return "allow"
	case DecisionRedirect:
		return "redirect"
	default:
		return fmt.Sprintf("unknown(%d)", int(k))
	}
}

// Decision はナビゲーション試行ごとに生成される判定結果。
// キャッシュされることはない。
type Decision struct {
	Kind   DecisionKind
	Target string // Redirectの場合の遷移先パス
}

// Allow は許可の判定を返す。
func Allow() Decision {
	return Decision{Kind: DecisionAllow}
}

// Redirect は指定パスへのリダイレクト判定を返す。
func Redirect(target string) Decision {
	return Decision{Kind: DecisionRedirect, Target: target}
}

// IsAllow は判定が許可かを返す。
func (d Decision) IsAllow() bool {
	return d.Kind == DecisionAllow
}

// String は判定のログ出力用表現を返す。
func (d Decision) String() string {
	if d.Kind == DecisionRedirect {
		return "redirect(" + d.Target + ")"
	}
	return d.Kind.String()
}
