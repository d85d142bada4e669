// Package metrics はPrometheusメトリクスの収集と公開を提供する。
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// 識別情報取得の結果ラベル
const (
	FetchResultSuccess        = "success"
	FetchResultInvalidSession = "invalid_session"
	FetchResultUnavailable    = "unavailable"
	FetchResultDiscarded      = "discarded"
)

// MetricsCollector はメトリクス収集のインターフェース。
// セッション層やナビゲーション層から利用する。
type MetricsCollector interface {
	RecordIdentityFetch(result string)
	RecordIdentityFetchLatency(duration time.Duration)
	RecordSessionInvalidation(reason string)
	RecordNavigation(decision string)
	RecordNavigationLatency(duration time.Duration)
	RecordSupersededCommit()
	RecordLoginAttempt(result string)
}

// Collector はPrometheusメトリクスを収集する実装。
type Collector struct {
	identityFetch        *prometheus.CounterVec
	identityFetchLatency prometheus.Histogram
	sessionInvalidated   *prometheus.CounterVec
	navigations          *prometheus.CounterVec
	navigationLatency    prometheus.Histogram
	supersededCommits    prometheus.Counter
	loginAttempts        *prometheus.CounterVec
}

var _ MetricsCollector = (*Collector)(nil)

// NewCollector は新しいCollectorを生成し、指定されたレジストリにメトリクスを登録する。
func NewCollector(reg prometheus.Registerer) *Collector {
	c := &Collector{
		identityFetch: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "storefront_identity_fetch_total",
			Help: "識別エンドポイント呼び出しの結果別合計数",
		}, []string{"result"}),
		identityFetchLatency: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "storefront_identity_fetch_latency_seconds",
			Help:    "識別情報取得のレイテンシ（秒）",
			Buckets: prometheus.DefBuckets,
		}),
		sessionInvalidated: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "storefront_session_invalidated_total",
			Help: "セッション無効化の理由別合計数",
		}, []string{"reason"}),
		navigations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "storefront_navigation_total",
			Help: "コミットされたナビゲーション判定の種別ごとの合計数",
		}, []string{"decision"}),
		navigationLatency: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "storefront_navigation_latency_seconds",
			Help:    "ナビゲーション開始からコミットまでのレイテンシ（秒）",
			Buckets: prometheus.DefBuckets,
		}),
		supersededCommits: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "storefront_navigation_superseded_total",
			Help: "新しい試行に追い越されて破棄されたコミットの合計数",
		}),
		loginAttempts: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "storefront_login_attempts_total",
			Help: "ログイン試行の結果別合計数",
		}, []string{"result"}),
	}

	reg.MustRegister(
		c.identityFetch,
		c.identityFetchLatency,
		c.sessionInvalidated,
		c.navigations,
		c.navigationLatency,
		c.supersededCommits,
		c.loginAttempts,
	)

	return c
}

// RecordIdentityFetch は識別情報取得の結果を記録する。
func (c *Collector) RecordIdentityFetch(result string) {
	c.identityFetch.WithLabelValues(result).Inc()
}

// RecordIdentityFetchLatency は識別情報取得のレイテンシを記録する。
func (c *Collector) RecordIdentityFetchLatency(duration time.Duration) {
	c.identityFetchLatency.Observe(duration.Seconds())
}

// RecordSessionInvalidation はセッション無効化を記録する。
func (c *Collector) RecordSessionInvalidation(reason string) {
	c.sessionInvalidated.WithLabelValues(reason).Inc()
}

// RecordNavigation はコミットされた判定を記録する。
func (c *Collector) RecordNavigation(decision string) {
	c.navigations.WithLabelValues(decision).Inc()
}

// RecordNavigationLatency はナビゲーションのレイテンシを記録する。
func (c *Collector) RecordNavigationLatency(duration time.Duration) {
	c.navigationLatency.Observe(duration.Seconds())
}

// RecordSupersededCommit は破棄されたコミットを記録する。
func (c *Collector) RecordSupersededCommit() {
	c.supersededCommits.Inc()
}

// RecordLoginAttempt はログイン試行の結果を記録する。
func (c *Collector) RecordLoginAttempt(result string) {
	c.loginAttempts.WithLabelValues(result).Inc()
}

// Nop は何も記録しないMetricsCollector。
// メトリクスを使用しないCLI実行やテストで利用する。
type Nop struct{}

var _ MetricsCollector = Nop{}

func (Nop) RecordIdentityFetch(string) {}
func (Nop) RecordIdentityFetchLatency(time.Duration) {}
func (Nop) RecordSessionInvalidation(string) {}
func (Nop) RecordNavigation(string) {}
func (Nop) RecordNavigationLatency(time.Duration) {}
func (Nop) RecordSupersededCommit() {}
func (Nop) RecordLoginAttempt(string) {}

// Handler はPrometheusスクレイプ用のHTTPハンドラーを返す。
func Handler(gatherer prometheus.Gatherer) http.Handler {
	return promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})
}

// SetupMetricsRoute は/metricsエンドポイントを提供するHTTPハンドラーを返す。
// Prometheusスクレイプに対応する。
func SetupMetricsRoute(gatherer prometheus.Gatherer) http.Handler {
	mux := http.NewServeMux()
	mux.Handle("/metrics", Handler(gatherer))
	return mux
}
