// Package session はクレデンシャルストアと識別情報キャッシュを提供する。
//
// トークンと識別情報は結合した不変条件を持つため、Sessionが単一のロックで両方を保護する。
// CredentialStoreとIdentityCacheは同じSessionに対するビューであり、
// アプリケーションはNewで生成したSessionを呼び出し元に明示的に渡す。
package session

import (
	"context"
	"log/slog"
	"sync"

	"github.com/hitoshi/storefront/internal/metrics"
	"github.com/hitoshi/storefront/internal/model"
	"github.com/hitoshi/storefront/internal/repository"
)

// TokenKey は永続ストレージ上のトークンのキー。
const TokenKey = "token"

// Snapshot は1回のロック取得で読み取ったセッション状態。
// ポリシー評価はこの値のみを参照し、評価中に状態を読み直さない。
type Snapshot struct {
	HasToken       bool
	IdentityLoaded bool
	Privileged     bool
	Epoch          uint64
}

// Session はプロセス内で共有されるセッション状態を保持する。
type Session struct {
	mu       sync.RWMutex
	token    string
	epoch    uint64
	identity *model.Identity
	loaded   bool
	closed   bool

	// persistMu は永続ストレージへの書き込みを直列化する。
	persistMu sync.Mutex

	storage repository.KeyValueRepository
	metrics metrics.MetricsCollector
	logger  *slog.Logger

	credentials *CredentialStore
	identities  *IdentityCache
}

// Option はSessionの生成オプション。
type Option func(*Session)

// WithLogger はロガーを設定する。
func WithLogger(logger *slog.Logger) Option {
	return func(s *Session) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// WithMetrics はメトリクスコレクターを設定する。
func WithMetrics(m metrics.MetricsCollector) Option {
	return func(s *Session) {
		if m != nil {
			s.metrics = m
		}
	}
}

// New はSessionを生成する。
// 永続ストレージからトークンを1回だけ読み込む。
// ストレージが利用できない場合は警告を記録し、メモリのみで動作する。
// storageがnilの場合もメモリのみで動作する。
func New(ctx context.Context, storage repository.KeyValueRepository, fetcher IdentityFetcher, opts ...Option) *Session {
	s := &Session{
		storage: storage,
		metrics: metrics.Nop{},
		logger:  slog.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}

	s.credentials = &CredentialStore{s: s}
	s.identities = &IdentityCache{s: s, fetcher: fetcher}

	if storage != nil {
		token, found, err := storage.Read(ctx, TokenKey)
		if err != nil {
			s.logger.Warn("トークンの読み込みに失敗しました。メモリのみで動作します",
				slog.String("error", err.Error()),
			)
		} else if found && token != "" {
			s.token = token
			s.logger.Debug("保存済みトークンを復元しました")
		}
	}

	return s
}

// Credentials はクレデンシャルストアを返す。
func (s *Session) Credentials() *CredentialStore {
	return s.credentials
}

// Identities は識別情報キャッシュを返す。
func (s *Session) Identities() *IdentityCache {
	return s.identities
}

// Snapshot は現在の状態を一貫したスナップショットとして返す。
func (s *Session) Snapshot() Snapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return Snapshot{
		HasToken:       s.token != "",
		IdentityLoaded: s.loaded,
		Privileged:     s.loaded && s.identity.IsPrivileged(),
		Epoch:          s.epoch,
	}
}

// Close はメモリ上の状態を破棄する。永続ストレージの内容は変更しない。
// Close後のSet/Clearは無視される。
// 実行中の識別情報取得の結果はエポックの不一致により破棄される。
func (s *Session) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return
	}
	s.closed = true
	s.token = ""
	s.epoch++
	s.invalidateLocked()
}

// replaceLocked はトークンを置き換え、エポックを進めて識別情報を無効化する。
// 呼び出し元で書き込みロックを保持すること。
func (s *Session) replaceLocked(token string) {
	s.token = token
	s.epoch++
	s.invalidateLocked()
}

// invalidateLocked は識別情報を未取得状態に戻す。
func (s *Session) invalidateLocked() {
	s.identity = nil
	s.loaded = false
}

// persist はメモリ上の最新トークンを永続ストレージに反映する。
// 書き込みを直列化し、常に最新の状態で上書きするため、ストレージはメモリに収束する。
// 失敗は警告として記録するのみで、呼び出し元には返さない。
func (s *Session) persist(ctx context.Context) {
	if s.storage == nil {
		return
	}

	s.persistMu.Lock()
	defer s.persistMu.Unlock()

	s.mu.RLock()
	token, closed := s.token, s.closed
	s.mu.RUnlock()
	if closed {
		return
	}

	var err error
	if token != "" {
		err = s.storage.Write(ctx, TokenKey, token)
	} else {
		err = s.storage.Remove(ctx, TokenKey)
	}
	if err != nil {
		s.logger.Warn("トークンの永続化に失敗しました。メモリのみで動作します",
			slog.String("error", err.Error()),
		)
	}
}
