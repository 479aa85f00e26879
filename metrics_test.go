package authgate

import (
	"context"
	"sync"
	"testing"
	"time"
)

func TestMetricsDisabledNoIncrement(t *testing.T) {
	m := NewMetrics(MetricsConfig{Enabled: false})
	m.Inc(MetricCallbackSuccess)

	if got := m.Value(MetricCallbackSuccess); got != 0 {
		t.Fatalf("expected 0, got %d", got)
	}
}

func TestMetricsEnabledIncrement(t *testing.T) {
	m := NewMetrics(MetricsConfig{Enabled: true})
	m.Inc(MetricCallbackSuccess)
	m.Inc(MetricCallbackSuccess)
	m.Inc(MetricCallbackSuccess)

	if got := m.Value(MetricCallbackSuccess); got != 3 {
		t.Fatalf("expected 3, got %d", got)
	}
}

func TestMetricsConcurrentIncrementSafe(t *testing.T) {
	m := NewMetrics(MetricsConfig{Enabled: true})

	const goroutines = 32
	const perG = 4000

	var wg sync.WaitGroup
	wg.Add(goroutines)
	for i := 0; i < goroutines; i++ {
		go func() {
			defer wg.Done()
			for j := 0; j < perG; j++ {
				m.Inc(MetricSessionValidated)
			}
		}()
	}
	wg.Wait()

	want := uint64(goroutines * perG)
	if got := m.Value(MetricSessionValidated); got != want {
		t.Fatalf("expected %d, got %d", want, got)
	}
}

func TestMetricsHistogramBucketCorrectness(t *testing.T) {
	m := NewMetrics(MetricsConfig{
		Enabled:                 true,
		EnableLatencyHistograms: true,
	})

	observations := []time.Duration{
		5 * time.Millisecond,
		10 * time.Millisecond,
		25 * time.Millisecond,
		50 * time.Millisecond,
		100 * time.Millisecond,
		250 * time.Millisecond,
		500 * time.Millisecond,
		700 * time.Millisecond,
	}

	for _, d := range observations {
		m.Observe(MetricValidateLatency, d)
	}

	snap := m.Snapshot()
	buckets := snap.Histograms[MetricValidateLatency]
	if len(buckets) != 8 {
		t.Fatalf("expected 8 buckets, got %d", len(buckets))
	}

	for i, v := range buckets {
		if v != 1 {
			t.Fatalf("bucket %d expected 1, got %d", i, v)
		}
	}
}

func TestMetricsSnapshotConsistency(t *testing.T) {
	m := NewMetrics(MetricsConfig{
		Enabled:                 true,
		EnableLatencyHistograms: true,
	})
	m.Inc(MetricCallbackSuccess)
	m.Inc(MetricCallbackRestart)
	m.Inc(MetricCallbackRestart)
	m.Observe(MetricValidateLatency, 2*time.Millisecond)

	snap := m.Snapshot()

	if snap.Counters[MetricCallbackSuccess] != 1 {
		t.Fatalf("expected MetricCallbackSuccess=1 got %d", snap.Counters[MetricCallbackSuccess])
	}
	if snap.Counters[MetricCallbackRestart] != 2 {
		t.Fatalf("expected MetricCallbackRestart=2 got %d", snap.Counters[MetricCallbackRestart])
	}
	if len(snap.Histograms[MetricValidateLatency]) != 8 {
		t.Fatalf("expected histogram length 8")
	}
	if snap.Histograms[MetricValidateLatency][0] != 1 {
		t.Fatalf("expected first histogram bucket=1 got %d", snap.Histograms[MetricValidateLatency][0])
	}
}

func TestValidateSessionRecordsLatencyAndCounters(t *testing.T) {
	h := newTestEngine(t, nil)
	ctx := context.Background()

	token, _ := h.issueSession(t, "u1")
	if _, _, err := h.engine.ValidateSession(ctx, token, true); err != nil {
		t.Fatalf("validate: %v", err)
	}
	if _, _, err := h.engine.ValidateSession(ctx, "not-a-token", true); err == nil {
		t.Fatal("expected unknown token to fail")
	}

	snap := h.engine.MetricsSnapshot()
	if snap.Counters[MetricSessionValidated] != 1 {
		t.Fatalf("expected 1 validated, got %d", snap.Counters[MetricSessionValidated])
	}
	if snap.Counters[MetricUnauthorized] != 1 {
		t.Fatalf("expected 1 unauthorized, got %d", snap.Counters[MetricUnauthorized])
	}

	var samples uint64
	for _, v := range snap.Histograms[MetricValidateLatency] {
		samples += v
	}
	if samples != 2 {
		t.Fatalf("expected 2 latency samples, got %d", samples)
	}
}
