// Package navigation はナビゲーション試行ごとにアクセス判定を行うインターセプターを提供する。
//
// 1回の試行は Start → (MaybeFetchIdentity) → Evaluate → Commit の順に進む。
// 識別情報の取得が唯一の待機点であり、待機中に新しい試行がコミットした場合は
// 古い試行のコミットを破棄する（最後のナビゲーションが優先される）。
package navigation

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/hitoshi/storefront/internal/metrics"
	"github.com/hitoshi/storefront/internal/model"
	"github.com/hitoshi/storefront/internal/policy"
	"github.com/hitoshi/storefront/internal/route"
	"github.com/hitoshi/storefront/internal/session"
)

const (
	// DefaultFetchTimeout は識別情報取得を待つ上限のデフォルト値。
	DefaultFetchTimeout = 5 * time.Second
	// DefaultMaxRedirects はリダイレクト連鎖の上限のデフォルト値。
	DefaultMaxRedirects = 5
)

var (
	// ErrSuperseded は新しい試行がすでにコミット済みのため、コミットが破棄されたことを表す。
	ErrSuperseded = errors.New("navigation superseded by a newer attempt")
	// ErrRedirectLoop はリダイレクト連鎖が上限を超えたことを表す。
	ErrRedirectLoop = errors.New("too many redirects")
)

// Result はコミットされたナビゲーションの結果。
type Result struct {
	ID        string
	Seq       uint64
	Requested string
	// Path は最終的に到達したパス。
	Path  string
	Route route.Route
	// Decision は要求されたパスに対する判定。
	Decision  model.Decision
	Redirects []string
}

// Redirected はリダイレクトが発生したかを返す。
func (r Result) Redirected() bool {
	return len(r.Redirects) > 0
}

// Option はInterceptorの生成オプション。
type Option func(*Interceptor)

// WithFetchTimeout は識別情報取得を待つ上限を設定する。
func WithFetchTimeout(d time.Duration) Option {
	return func(i *Interceptor) {
		if d > 0 {
			i.fetchTimeout = d
		}
	}
}

// WithMaxRedirects はリダイレクト連鎖の上限を設定する。
func WithMaxRedirects(n int) Option {
	return func(i *Interceptor) {
		if n > 0 {
			i.maxRedirects = n
		}
	}
}

// WithLogger はロガーを設定する。
func WithLogger(logger *slog.Logger) Option {
	return func(i *Interceptor) {
		if logger != nil {
			i.logger = logger
		}
	}
}

// WithMetrics はメトリクスコレクターを設定する。
func WithMetrics(m metrics.MetricsCollector) Option {
	return func(i *Interceptor) {
		if m != nil {
			i.metrics = m
		}
	}
}

// WithClock は現在時刻の取得関数を設定する。トークンの有効期限判定に使用する。
func WithClock(now func() time.Time) Option {
	return func(i *Interceptor) {
		if now != nil {
			i.now = now
		}
	}
}

// Interceptor はナビゲーション試行の制御ループ。
type Interceptor struct {
	session   *session.Session
	table     *route.Table
	evaluator *policy.Evaluator

	fetchTimeout time.Duration
	maxRedirects int
	logger       *slog.Logger
	metrics      metrics.MetricsCollector
	now          func() time.Time

	mu           sync.Mutex
	seq          uint64
	committedSeq uint64
	current      Result
	hasCurrent   bool
	listeners    []func(Result)
}

// New はInterceptorを生成する。
func New(sess *session.Session, table *route.Table, evaluator *policy.Evaluator, opts ...Option) *Interceptor {
	i := &Interceptor{
		session:      sess,
		table:        table,
		evaluator:    evaluator,
		fetchTimeout: DefaultFetchTimeout,
		maxRedirects: DefaultMaxRedirects,
		logger:       slog.Default(),
		metrics:      metrics.Nop{},
		now:          time.Now,
	}
	for _, opt := range opts {
		opt(i)
	}
	return i
}

// OnCommit はコミット時に呼び出されるリスナーを登録する。
// リスナーはコミットのロック内で呼ばれるため、Interceptorのメソッドを呼び出してはならない。
func (i *Interceptor) OnCommit(fn func(Result)) {
	i.mu.Lock()
	defer i.mu.Unlock()
	i.listeners = append(i.listeners, fn)
}

// Current は最後にコミットされた結果を返す。
func (i *Interceptor) Current() (Result, bool) {
	i.mu.Lock()
	defer i.mu.Unlock()
	return i.current, i.hasCurrent
}

// Navigate はパスへのナビゲーションを1回試行する。
//
// リダイレクト判定は同じ試行番号のまま遷移先に対して状態遷移を再実行する。
// 新しい試行がすでにコミットしている場合はErrSupersededを返す。
// リダイレクトが上限を超えた場合はErrRedirectLoopを返す。
// ctxが終了した場合はコミットせずにctxのエラーを返す。
func (i *Interceptor) Navigate(ctx context.Context, rawPath string) (Result, error) {
	started := time.Now()
	res := Result{
		ID:        uuid.NewString(),
		Seq:       i.nextSeq(),
		Requested: rawPath,
	}
	logger := i.logger.With(
		slog.String("attempt_id", res.ID),
		slog.Uint64("seq", res.Seq),
	)

	target := rawPath
	for hop := 0; ; hop++ {
		// 1. Start
		match := i.start(ctx, target, logger)

		// 2. MaybeFetchIdentity
		invalid, err := i.maybeFetchIdentity(ctx, match.Route.Requirement, logger)
		if err != nil {
			return Result{}, err
		}

		// 3. Evaluate
		decision := i.evaluate(match.Route.Requirement, invalid)
		if hop == 0 {
			res.Decision = decision
		}
		logger.Debug("ナビゲーションを判定しました",
			slog.String("path", match.Path),
			slog.String("route", match.Route.Name),
			slog.String("decision", decision.String()),
		)

		if decision.IsAllow() {
			res.Path = match.Path
			res.Route = match.Route
			break
		}

		if len(res.Redirects) >= i.maxRedirects {
			logger.Error("リダイレクトが上限を超えました",
				slog.String("requested", rawPath),
				slog.Any("redirects", res.Redirects),
			)
			return Result{}, fmt.Errorf("%w: %s after %d hops", ErrRedirectLoop, rawPath, len(res.Redirects))
		}
		res.Redirects = append(res.Redirects, decision.Target)
		target = decision.Target
	}

	// 4. Commit
	if err := i.commit(res); err != nil {
		logger.Info("新しいナビゲーションがコミット済みのため破棄しました",
			slog.String("path", res.Path),
		)
		i.metrics.RecordSupersededCommit()
		return Result{}, err
	}

	i.metrics.RecordNavigation(res.Decision.Kind.String())
	i.metrics.RecordNavigationLatency(time.Since(started))
	logger.Info("ナビゲーションをコミットしました",
		slog.String("requested", rawPath),
		slog.String("path", res.Path),
		slog.String("decision", res.Decision.String()),
	)
	return res, nil
}

// nextSeq は単調増加する試行番号を払い出す。
func (i *Interceptor) nextSeq() uint64 {
	i.mu.Lock()
	defer i.mu.Unlock()
	i.seq++
	return i.seq
}

// start は遷移先のルートを解決し、ローカルで期限切れと判定できるトークンを破棄する。
func (i *Interceptor) start(ctx context.Context, target string, logger *slog.Logger) route.Match {
	match := i.table.Match(target)
	if i.session.Credentials().ClearIfExpired(ctx, i.now()) {
		logger.Warn("トークンの有効期限が切れているためログアウトしました",
			slog.String("path", match.Path),
		)
	}
	return match
}

// maybeFetchIdentity は特権が必要で、識別情報が未取得かつトークンがある場合のみ取得する。
// 取得はfetchTimeoutで打ち切り、未解決の場合は取得不可として扱う。
// サーバーがトークンを拒否した場合はinvalid=trueを返す。
// それ以外の取得エラーは判定時のスナップショットに反映されるため、呼び出し元には返さない。
// 親のctxが終了した場合のみエラーを返す。
func (i *Interceptor) maybeFetchIdentity(ctx context.Context, req model.RouteRequirement, logger *slog.Logger) (invalid bool, err error) {
	if !req.RequiresPrivilege {
		return false, nil
	}
	snap := i.session.Snapshot()
	if snap.IdentityLoaded || !snap.HasToken {
		return false, nil
	}

	fetchCtx, cancel := context.WithTimeout(ctx, i.fetchTimeout)
	defer cancel()

	_, fetchErr := i.session.Identities().Fetch(fetchCtx)
	if ctxErr := ctx.Err(); ctxErr != nil {
		return false, ctxErr
	}

	switch {
	case fetchErr == nil:
	case errors.Is(fetchErr, model.ErrInvalidSession):
		logger.Info("セッションが無効なためログインページへ誘導します")
		return true, nil
	default:
		logger.Warn("ユーザー情報を取得できないため特権なしとして扱います",
			slog.String("error", fetchErr.Error()),
		)
	}
	return false, nil
}

// evaluate は1回のスナップショットから判定を導出する。
// invalidSessionの場合、この試行はトークンなしとして判定する。
func (i *Interceptor) evaluate(req model.RouteRequirement, invalidSession bool) model.Decision {
	snap := i.session.Snapshot()
	return i.evaluator.Evaluate(req, policy.Input{
		HasToken:       snap.HasToken && !invalidSession,
		IdentityLoaded: snap.IdentityLoaded,
		Privileged:     snap.Privileged,
	})
}

// commit は結果を確定する。より新しい試行がコミット済みの場合はErrSupersededを返す。
func (i *Interceptor) commit(res Result) error {
	i.mu.Lock()
	defer i.mu.Unlock()

	if i.committedSeq > res.Seq {
		return fmt.Errorf("%w: attempt %d, committed %d", ErrSuperseded, res.Seq, i.committedSeq)
	}
	i.committedSeq = res.Seq
	i.current = res
	i.hasCurrent = true
	for _, fn := range i.listeners {
		fn(res)
	}
	return nil
}
