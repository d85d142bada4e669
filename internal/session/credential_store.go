package session

import (
	"context"
	"log/slog"
	"time"
)

// CredentialStore は現在のセッショントークンを保持する。
// トークンの存在は有効性を意味しない（サーバーが後から拒否する可能性がある）。
type CredentialStore struct {
	s *Session
}

// Get は現在のトークンを返す。
func (c *CredentialStore) Get() (string, bool) {
	c.s.mu.RLock()
	defer c.s.mu.RUnlock()
	return c.s.token, c.s.token != ""
}

// IsLoggedIn はトークンが存在するかを返す。
func (c *CredentialStore) IsLoggedIn() bool {
	_, ok := c.Get()
	return ok
}

// Epoch は現在のエポックを返す。SetまたはClearのたびに増加する。
func (c *CredentialStore) Epoch() uint64 {
	c.s.mu.RLock()
	defer c.s.mu.RUnlock()
	return c.s.epoch
}

// Set はトークンをメモリと永続ストレージに保存する。
// 以降のGetは即座に新しい値を返す。識別情報キャッシュは無効化される。
// 空文字列を渡した場合はClearと同じ動作になる。
// Close後の呼び出しはメモリもストレージも変更しない。
func (c *CredentialStore) Set(ctx context.Context, token string) {
	if token == "" {
		c.Clear(ctx)
		return
	}

	c.s.mu.Lock()
	if c.s.closed {
		c.s.mu.Unlock()
		c.s.logger.Warn("セッションは終了済みのため、トークンの設定を無視しました")
		return
	}
	c.s.replaceLocked(token)
	epoch := c.s.epoch
	c.s.mu.Unlock()

	c.s.logger.Info("セッショントークンを設定しました", slog.Uint64("epoch", epoch))
	c.s.persist(ctx)
}

// Clear はトークンをメモリと永続ストレージから削除し、識別情報キャッシュを無効化する。
// Close後の呼び出しは何もしない。
func (c *CredentialStore) Clear(ctx context.Context) {
	c.s.mu.Lock()
	if c.s.closed {
		c.s.mu.Unlock()
		c.s.logger.Warn("セッションは終了済みのため、トークンの削除を無視しました")
		return
	}
	c.s.replaceLocked("")
	epoch := c.s.epoch
	c.s.mu.Unlock()

	c.s.logger.Info("セッショントークンを削除しました", slog.Uint64("epoch", epoch))
	c.s.persist(ctx)
}

// ClearIfEpoch は指定エポック以降にSet/Clearが行われていない場合のみトークンを削除する。
// 古いトークンに対する拒否応答が、新しいログインを取り消さないために使用する。
func (c *CredentialStore) ClearIfEpoch(ctx context.Context, epoch uint64) bool {
	c.s.mu.Lock()
	if c.s.epoch != epoch || c.s.token == "" {
		c.s.mu.Unlock()
		return false
	}
	c.s.replaceLocked("")
	c.s.mu.Unlock()

	c.s.persist(ctx)
	return true
}

// ClearIfExpired はトークンがJWTで、exp クレームが過去の場合に削除する。
// 不透明なトークンはローカルの有効期限を持たないため削除しない。
func (c *CredentialStore) ClearIfExpired(ctx context.Context, now time.Time) bool {
	c.s.mu.RLock()
	token, epoch := c.s.token, c.s.epoch
	c.s.mu.RUnlock()

	if token == "" || !TokenExpired(token, now) {
		return false
	}
	if !c.ClearIfEpoch(ctx, epoch) {
		return false
	}

	c.s.logger.Warn("期限切れのトークンを削除しました", slog.Uint64("epoch", epoch))
	c.s.metrics.RecordSessionInvalidation("expired")
	return true
}
