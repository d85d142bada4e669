package security

import (
	"fmt"
	"html"
	"strings"

	"github.com/microcosm-cc/bluemonday"
)

// ProfileValidator は識別エンドポイントから受け取ったテキスト項目を検証する。
// マークアップを含む値は改ざんまたは異常な応答として拒否する。
type ProfileValidator interface {
	ValidateText(field, value string) error
}

// profileValidator はbluemondayのStrictPolicyを使用したProfileValidatorの実装。
// StrictPolicyは全てのタグを除去するため、除去前後で値が変わる場合はマークアップを含むと判定する。
type profileValidator struct {
	policy *bluemonday.Policy
}

var _ ProfileValidator = (*profileValidator)(nil)

// NewProfileValidator はProfileValidatorの新しいインスタンスを生成する。
func NewProfileValidator() *profileValidator {
	return &profileValidator{policy: bluemonday.StrictPolicy()}
}

// ValidateText は値が空でなく、マークアップや制御文字を含まないことを検証する。
func (v *profileValidator) ValidateText(field, value string) error {
	if strings.TrimSpace(value) == "" {
		return fmt.Errorf("%s is required", field)
	}
	if strings.ContainsFunc(value, isControl) {
		return fmt.Errorf("%s contains control characters", field)
	}
	if html.UnescapeString(v.policy.Sanitize(value)) != value {
		return fmt.Errorf("%s contains markup", field)
	}
	return nil
}

func isControl(r rune) bool {
	return r < 0x20 || r == 0x7f
}
