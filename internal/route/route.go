// Package route はパスパターンとアクセス要件を対応付ける静的なルートテーブルを提供する。
package route

import (
	"fmt"
	"path"
	"strings"

	"github.com/hitoshi/storefront/internal/model"
)

// NotFoundName は未定義パスに割り当てられるルート名。
const NotFoundName = "NotFound"

// Route はパスパターンとアクセス要件の組。
// パターンのセグメントが ":" で始まる場合はパラメータとして任意の値に一致する。
type Route struct {
	Name        string
	Pattern     string
	Requirement model.RouteRequirement

	segments []string
}

// Match はパスの解決結果。
type Match struct {
	Route  Route
	Path   string
	Params map[string]string
}

// Found は定義済みのルートに一致したかを返す。
func (m Match) Found() bool {
	return m.Route.Name != NotFoundName
}

// Table はルートの静的な一覧。生成後は変更されない。
type Table struct {
	routes []Route
}

// NewTable はルートテーブルを生成する。
// パターンが "/" で始まらない場合、またはパターンや名前が重複する場合はエラーを返す。
func NewTable(routes ...Route) (*Table, error) {
	names := make(map[string]struct{}, len(routes))
	patterns := make(map[string]struct{}, len(routes))
	t := &Table{routes: make([]Route, 0, len(routes))}

	for _, r := range routes {
		if r.Name == "" || r.Name == NotFoundName {
			return nil, fmt.Errorf("invalid route name %q", r.Name)
		}
		if !strings.HasPrefix(r.Pattern, "/") {
			return nil, fmt.Errorf("route %s: pattern must start with /: %q", r.Name, r.Pattern)
		}
		if _, ok := names[r.Name]; ok {
			return nil, fmt.Errorf("duplicate route name %q", r.Name)
		}
		r.segments = splitPath(r.Pattern)
		key := shapeOf(r.segments)
		if _, ok := patterns[key]; ok {
			return nil, fmt.Errorf("route %s: pattern %q conflicts with an existing route", r.Name, r.Pattern)
		}
		names[r.Name] = struct{}{}
		patterns[key] = struct{}{}
		t.routes = append(t.routes, r)
	}

	return t, nil
}

// MustNewTable はNewTableを呼び出し、エラーの場合はpanicする。
// 静的に定義したテーブルの初期化に使用する。
func MustNewTable(routes ...Route) *Table {
	t, err := NewTable(routes...)
	if err != nil {
		panic(err)
	}
	return t
}

// Routes は登録済みルートのコピーを返す。
func (t *Table) Routes() []Route {
	out := make([]Route, len(t.routes))
	copy(out, t.routes)
	return out
}

// Match はパスに一致するルートを返す。
// クエリ文字列とフラグメントは無視し、パスは正規化してから照合する。
// 静的セグメントが多いルートを優先する。
// どのルートにも一致しない場合は要件を持たないNotFoundルートを返す。
func (t *Table) Match(rawPath string) Match {
	p := Normalize(rawPath)
	segments := splitPath(p)

	best := -1
	bestScore := -1
	var bestParams map[string]string
	for i, r := range t.routes {
		params, score, ok := matchSegments(r.segments, segments)
		if ok && score > bestScore {
			best, bestScore, bestParams = i, score, params
		}
	}

	if best < 0 {
		return Match{
			Route: Route{Name: NotFoundName, Pattern: p},
			Path:  p,
		}
	}
	return Match{Route: t.routes[best], Path: p, Params: bestParams}
}

// Normalize はパスからクエリ文字列とフラグメントを取り除き、正規化する。
func Normalize(rawPath string) string {
	if i := strings.IndexAny(rawPath, "?#"); i >= 0 {
		rawPath = rawPath[:i]
	}
	if rawPath == "" {
		return "/"
	}
	if !strings.HasPrefix(rawPath, "/") {
		rawPath = "/" + rawPath
	}
	return path.Clean(rawPath)
}

// matchSegments はパターンとパスのセグメントを照合する。
// 一致した場合はパラメータと静的セグメント数を返す。
func matchSegments(pattern, segments []string) (map[string]string, int, bool) {
	if len(pattern) != len(segments) {
		return nil, 0, false
	}

	var params map[string]string
	score := 0
	for i, seg := range pattern {
		if strings.HasPrefix(seg, ":") {
			if segments[i] == "" {
				return nil, 0, false
			}
			if params == nil {
				params = make(map[string]string)
			}
			params[seg[1:]] = segments[i]
			continue
		}
		if seg != segments[i] {
			return nil, 0, false
		}
		score++
	}
	return params, score, true
}

func splitPath(p string) []string {
	p = strings.Trim(Normalize(p), "/")
	if p == "" {
		return nil
	}
	return strings.Split(p, "/")
}

// shapeOf はパラメータ名を無視したパターンの形を返す。
func shapeOf(segments []string) string {
	shape := make([]string, len(segments))
	for i, seg := range segments {
		if strings.HasPrefix(seg, ":") {
			shape[i] = ":"
		} else {
			shape[i] = seg
		}
	}
	return "/" + strings.Join(shape, "/")
}
