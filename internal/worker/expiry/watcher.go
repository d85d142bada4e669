// Package expiry は期限切れトークンの定期削除ジョブを提供する。
// シェルサーバーが長時間起動している間、ナビゲーションがなくても
// 有効期限を過ぎたJWTトークンを保存先から削除する。
package expiry

import (
	"context"
	"log/slog"
	"time"
)

// DefaultInterval はトークンの有効期限を確認する間隔のデフォルト値。
const DefaultInterval = time.Minute

// ExpiredTokenClearer は期限切れトークンを削除するインターフェース。
// session.CredentialStoreが満たす。
type ExpiredTokenClearer interface {
	ClearIfExpired(ctx context.Context, now time.Time) bool
}

// Watcher は一定間隔でトークンの有効期限を確認するジョブ。
type Watcher struct {
	store    ExpiredTokenClearer
	logger   *slog.Logger
	interval time.Duration
	now      func() time.Time
}

// NewWatcher はWatcherの新しいインスタンスを生成する。
// intervalが0以下の場合はDefaultIntervalを使用する。
func NewWatcher(store ExpiredTokenClearer, logger *slog.Logger, interval time.Duration) *Watcher {
	if interval <= 0 {
		interval = DefaultInterval
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Watcher{
		store:    store,
		logger:   logger,
		interval: interval,
		now:      time.Now,
	}
}

// Start はティッカーでジョブを起動する。
// コンテキストがキャンセルされるまで実行を継続する。
func (w *Watcher) Start(ctx context.Context) {
	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	w.logger.Info("トークン有効期限の監視を開始しました",
		slog.Duration("interval", w.interval),
	)

	// 起動直後に1回実行
	w.RunOnce(ctx)

	for {
		select {
		case <-ctx.Done():
			w.logger.Info("トークン有効期限の監視を停止しました")
			return
		case <-ticker.C:
			w.RunOnce(ctx)
		}
	}
}

// RunOnce はトークンの有効期限を1回確認し、期限切れなら削除する。
// 削除した場合はtrueを返す。冪等: トークンがない場合は何もしない。
func (w *Watcher) RunOnce(ctx context.Context) bool {
	cleared := w.store.ClearIfExpired(ctx, w.now())
	if cleared {
		w.logger.Info("期限切れのトークンを監視ジョブが削除しました")
	}
	return cleared
}
