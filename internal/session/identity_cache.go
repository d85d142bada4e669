package session

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/hitoshi/storefront/internal/metrics"
	"github.com/hitoshi/storefront/internal/model"
)

// ErrStaleSession は取得中にトークンが変更され、結果が破棄されたことを表す。
// model.ErrUnavailableと併せてラップされる。
var ErrStaleSession = errors.New("session changed during identity fetch")

// IdentityFetcher は識別エンドポイントを呼び出すインターフェース。
type IdentityFetcher interface {
	FetchIdentity(ctx context.Context, token string) (*model.Identity, error)
}

// statusCoder はHTTPステータスコードを持つエラー。
type statusCoder interface {
	StatusCode() int
}

// IdentityCache は最後に取得したユーザー識別情報を保持する。
// 識別情報を書き込むのは取得結果のハンドラーのみ。
type IdentityCache struct {
	s       *Session
	fetcher IdentityFetcher
	group   singleflight.Group
}

// IsPrivileged はキャッシュ済みの識別情報が特権ロールを持つかを返す。取得は行わない。
func (c *IdentityCache) IsPrivileged() bool {
	c.s.mu.RLock()
	defer c.s.mu.RUnlock()
	return c.s.loaded && c.s.identity.IsPrivileged()
}

// Current はキャッシュ済みの識別情報のコピーを返す。取得は行わない。
func (c *IdentityCache) Current() (*model.Identity, bool) {
	c.s.mu.RLock()
	defer c.s.mu.RUnlock()

	if !c.s.loaded || c.s.identity == nil {
		return nil, false
	}
	id := *c.s.identity
	return &id, true
}

// Loaded は識別情報が取得済みかを返す。
func (c *IdentityCache) Loaded() bool {
	c.s.mu.RLock()
	defer c.s.mu.RUnlock()
	return c.s.loaded
}

// Invalidate は識別情報を未取得状態に戻す。トークンは変更しない。
func (c *IdentityCache) Invalidate() {
	c.s.mu.Lock()
	defer c.s.mu.Unlock()
	c.s.invalidateLocked()
}

// Fetch は現在のトークンで識別エンドポイントを呼び出し、結果をキャッシュする。
//
// トークンがない場合は (nil, nil) を返す。
// 401応答の場合はトークンと識別情報を削除し、model.ErrInvalidSessionを返す。
// それ以外の失敗ではキャッシュを変更せず、model.ErrUnavailableを返す。
// 同じエポックに対する同時呼び出しは1回のネットワーク呼び出しにまとめられる。
// 各呼び出し元は自身のctxで待機し、ctxの終了は共有された呼び出しを取り消さない。
// 待機を打ち切った場合、その呼び出しは合流対象から外れ、次のFetchは新たに取得する。
func (c *IdentityCache) Fetch(ctx context.Context) (*model.Identity, error) {
	c.s.mu.RLock()
	token, epoch := c.s.token, c.s.epoch
	c.s.mu.RUnlock()

	if token == "" {
		return nil, nil
	}
	if c.fetcher == nil {
		return nil, fmt.Errorf("%w: identity fetcher is not configured", model.ErrUnavailable)
	}

	key := strconv.FormatUint(epoch, 10)
	shared := context.WithoutCancel(ctx)
	ch := c.group.DoChan(key, func() (any, error) {
		return c.fetchAndStore(shared, token, epoch)
	})

	select {
	case res := <-ch:
		if res.Err != nil {
			return nil, res.Err
		}
		id, _ := res.Val.(*model.Identity)
		return id, nil
	case <-ctx.Done():
		c.group.Forget(key)
		return nil, fmt.Errorf("%w: %w", model.ErrUnavailable, ctx.Err())
	}
}

// fetchAndStore は識別エンドポイントを呼び出し、エポックが一致する場合のみ結果を保存する。
func (c *IdentityCache) fetchAndStore(ctx context.Context, token string, epoch uint64) (*model.Identity, error) {
	start := time.Now()
	id, err := c.fetcher.FetchIdentity(ctx, token)
	c.s.metrics.RecordIdentityFetchLatency(time.Since(start))

	if err == nil && id == nil {
		err = errors.New("identity endpoint returned no record")
	}

	if err != nil {
		if isUnauthorized(err) {
			return nil, c.handleUnauthorized(ctx, epoch, err)
		}
		c.s.logger.Error("ユーザー情報の取得に失敗しました",
			slog.Uint64("epoch", epoch),
			slog.String("error", err.Error()),
		)
		c.s.metrics.RecordIdentityFetch(metrics.FetchResultUnavailable)
		return nil, fmt.Errorf("%w: %v", model.ErrUnavailable, err)
	}

	c.s.mu.Lock()
	if c.s.epoch != epoch {
		c.s.mu.Unlock()
		c.s.logger.Info("取得中にセッションが変更されたため、ユーザー情報を破棄しました",
			slog.Uint64("epoch", epoch),
		)
		c.s.metrics.RecordIdentityFetch(metrics.FetchResultDiscarded)
		return nil, fmt.Errorf("%w: %w", model.ErrUnavailable, ErrStaleSession)
	}
	stored := *id
	c.s.identity = &stored
	c.s.loaded = true
	c.s.mu.Unlock()

	c.s.logger.Debug("ユーザー情報を取得しました",
		slog.Uint64("epoch", epoch),
		slog.String("role", string(id.Role)),
	)
	c.s.metrics.RecordIdentityFetch(metrics.FetchResultSuccess)
	result := stored
	return &result, nil
}

// handleUnauthorized は401応答を処理する。
// 取得開始時のエポックが現在も有効な場合のみログアウトし、model.ErrInvalidSessionを返す。
// すでに別のトークンに置き換わっている場合は古い応答として扱う。
func (c *IdentityCache) handleUnauthorized(ctx context.Context, epoch uint64, cause error) error {
	if !c.s.credentials.ClearIfEpoch(ctx, epoch) {
		c.s.logger.Info("古いトークンに対する拒否応答を破棄しました",
			slog.Uint64("epoch", epoch),
		)
		c.s.metrics.RecordIdentityFetch(metrics.FetchResultDiscarded)
		return fmt.Errorf("%w: %w", model.ErrUnavailable, ErrStaleSession)
	}

	c.s.logger.Warn("サーバーがトークンを拒否したため、ログアウトしました",
		slog.Uint64("epoch", epoch),
		slog.String("error", cause.Error()),
	)
	c.s.metrics.RecordIdentityFetch(metrics.FetchResultInvalidSession)
	c.s.metrics.RecordSessionInvalidation("unauthorized")
	return fmt.Errorf("%w: %v", model.ErrInvalidSession, cause)
}

// isUnauthorized はエラーがサーバーによる資格情報の拒否を表すかを判定する。
func isUnauthorized(err error) bool {
	if errors.Is(err, model.ErrInvalidSession) {
		return true
	}
	var sc statusCoder
	return errors.As(err, &sc) && sc.StatusCode() == http.StatusUnauthorized
}
