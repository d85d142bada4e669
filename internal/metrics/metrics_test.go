package metrics

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"
)

// findMetricFamily は名前に一致するメトリクスファミリーを返す。
func findMetricFamily(t *testing.T, reg *prometheus.Registry, name string) *dto.MetricFamily {
	t.Helper()

	families, err := reg.Gather()
	if err != nil {
		t.Fatalf("failed to gather metrics: %v", err)
	}
	for _, mf := range families {
		if mf.GetName() == name {
			return mf
		}
	}
	t.Fatalf("%s metric not found", name)
	return nil
}

// counterWithLabel はラベル値に一致するカウンタ値を返す。
func counterWithLabel(mf *dto.MetricFamily, label, value string) float64 {
	for _, m := range mf.GetMetric() {
		for _, lp := range m.GetLabel() {
			if lp.GetName() == label && lp.GetValue() == value {
				return m.GetCounter().GetValue()
			}
		}
	}
	return 0
}

// TestNewCollector_ReturnsNonNil はCollectorが正常に生成されることを検証する。
func TestNewCollector_ReturnsNonNil(t *testing.T) {
	reg := prometheus.NewRegistry()
	c := NewCollector(reg)

	if c == nil {
		t.Fatal("expected non-nil Collector")
	}
}

// TestNewCollector_DuplicateRegistrationPanics は同一レジストリへの二重登録がpanicすることを検証する。
func TestNewCollector_DuplicateRegistrationPanics(t *testing.T) {
	reg := prometheus.NewRegistry()
	_ = NewCollector(reg)

	defer func() {
		if recover() == nil {
			t.Error("expected panic on duplicate registration")
		}
	}()
	_ = NewCollector(reg)
}

// TestRecordIdentityFetch_CountsByResult は結果ラベルごとに集計されることを検証する。
func TestRecordIdentityFetch_CountsByResult(t *testing.T) {
	reg := prometheus.NewRegistry()
	c := NewCollector(reg)

	c.RecordIdentityFetch(FetchResultSuccess)
	c.RecordIdentityFetch(FetchResultSuccess)
	c.RecordIdentityFetch(FetchResultInvalidSession)

	mf := findMetricFamily(t, reg, "storefront_identity_fetch_total")
	if got := counterWithLabel(mf, "result", FetchResultSuccess); got != 2 {
		t.Errorf("success = %v, want 2", got)
	}
	if got := counterWithLabel(mf, "result", FetchResultInvalidSession); got != 1 {
		t.Errorf("invalid_session = %v, want 1", got)
	}
	if got := counterWithLabel(mf, "result", FetchResultUnavailable); got != 0 {
		t.Errorf("unavailable = %v, want 0", got)
	}
}

// TestRecordIdentityFetchLatency_ObservesHistogram はレイテンシがヒストグラムに記録されることを検証する。
func TestRecordIdentityFetchLatency_ObservesHistogram(t *testing.T) {
	reg := prometheus.NewRegistry()
	c := NewCollector(reg)

	c.RecordIdentityFetchLatency(250 * time.Millisecond)

	mf := findMetricFamily(t, reg, "storefront_identity_fetch_latency_seconds")
	h := mf.GetMetric()[0].GetHistogram()
	if h.GetSampleCount() != 1 {
		t.Errorf("sample count = %d, want 1", h.GetSampleCount())
	}
	if h.GetSampleSum() != 0.25 {
		t.Errorf("sample sum = %v, want 0.25", h.GetSampleSum())
	}
}

// TestRecordNavigation_CountsByDecision は判定種別ごとに集計されることを検証する。
func TestRecordNavigation_CountsByDecision(t *testing.T) {
	reg := prometheus.NewRegistry()
	c := NewCollector(reg)

	c.RecordNavigation("allow")
	c.RecordNavigation("redirect")
	c.RecordNavigation("redirect")

	mf := findMetricFamily(t, reg, "storefront_navigation_total")
	if got := counterWithLabel(mf, "decision", "allow"); got != 1 {
		t.Errorf("allow = %v, want 1", got)
	}
	if got := counterWithLabel(mf, "decision", "redirect"); got != 2 {
		t.Errorf("redirect = %v, want 2", got)
	}
}

// TestRecordSupersededCommit_IncrementsCounter は破棄カウンタが増加することを検証する。
func TestRecordSupersededCommit_IncrementsCounter(t *testing.T) {
	reg := prometheus.NewRegistry()
	c := NewCollector(reg)

	c.RecordSupersededCommit()

	mf := findMetricFamily(t, reg, "storefront_navigation_superseded_total")
	if val := mf.GetMetric()[0].GetCounter().GetValue(); val != 1 {
		t.Errorf("superseded_total = %v, want 1", val)
	}
}

// TestRecordSessionInvalidation_CountsByReason は理由ごとに集計されることを検証する。
func TestRecordSessionInvalidation_CountsByReason(t *testing.T) {
	reg := prometheus.NewRegistry()
	c := NewCollector(reg)

	c.RecordSessionInvalidation("unauthorized")
	c.RecordSessionInvalidation("expired")

	mf := findMetricFamily(t, reg, "storefront_session_invalidated_total")
	if got := counterWithLabel(mf, "reason", "unauthorized"); got != 1 {
		t.Errorf("unauthorized = %v, want 1", got)
	}
	if got := counterWithLabel(mf, "reason", "expired"); got != 1 {
		t.Errorf("expired = %v, want 1", got)
	}
}

// TestRecordLoginAttempt_CountsByResult はログイン試行が結果ごとに集計されることを検証する。
func TestRecordLoginAttempt_CountsByResult(t *testing.T) {
	reg := prometheus.NewRegistry()
	c := NewCollector(reg)

	c.RecordLoginAttempt("throttled")

	mf := findMetricFamily(t, reg, "storefront_login_attempts_total")
	if got := counterWithLabel(mf, "result", "throttled"); got != 1 {
		t.Errorf("throttled = %v, want 1", got)
	}
}
