package authgate

import (
	"sync/atomic"
	"time"
)

// MetricID identifies one engine counter.
type MetricID uint16

const (
	MetricFlowStarted MetricID = iota
	MetricFlowRateLimited
	MetricCallbackSuccess
	MetricCallbackRestart
	MetricCallbackUnverifiedEmail
	MetricCallbackSameEmail
	MetricCallbackFailure
	MetricUserCreated
	MetricSessionCreated
	MetricSessionValidated
	MetricSessionExtended
	MetricSessionExpired
	MetricSessionInvalidated
	MetricLogout
	MetricLogoutAll
	MetricOriginRejected
	MetricUnauthorized
	// MetricValidateLatency only carries a histogram.
	MetricValidateLatency
	metricIDCount
)

// validateLatencyBounds are the inclusive upper bounds, in whole
// milliseconds, of every latency bucket but the last.
var validateLatencyBounds = [...]int64{5, 10, 25, 50, 100, 250, 500}

const latencyBuckets = len(validateLatencyBounds) + 1

// counter sits alone on its cache line so hot counters do not contend.
type counter struct {
	atomic.Uint64
	_ [56]byte
}

// Metrics holds lock-free counters and the validate latency histogram. A
// nil or disabled Metrics ignores every call.
type Metrics struct {
	enabled bool
	latency bool
	counts  [metricIDCount]counter
	buckets [latencyBuckets]atomic.Uint64
}

// MetricsSnapshot is a point-in-time copy of every counter. Histogram
// buckets are per bucket, not cumulative.
type MetricsSnapshot struct {
	Counters   map[MetricID]uint64
	Histograms map[MetricID][]uint64
}

// NewMetrics builds the counters for cfg.
func NewMetrics(cfg MetricsConfig) *Metrics {
	return &Metrics{
		enabled: cfg.Enabled,
		latency: cfg.Enabled && cfg.EnableLatencyHistograms,
	}
}

func (m *Metrics) Enabled() bool { return m != nil && m.enabled }

func (m *Metrics) LatencyEnabled() bool { return m != nil && m.latency }

// Inc adds one to id.
func (m *Metrics) Inc(id MetricID) {
	if !m.Enabled() || id >= metricIDCount {
		return
	}
	m.counts[id].Add(1)
}

// Observe records d. Only MetricValidateLatency has a histogram; other ids
// are ignored.
func (m *Metrics) Observe(id MetricID, d time.Duration) {
	if !m.LatencyEnabled() || id != MetricValidateLatency {
		return
	}
	m.buckets[latencyBucket(d)].Add(1)
}

func (m *Metrics) Value(id MetricID) uint64 {
	if m == nil || id >= metricIDCount {
		return 0
	}
	return m.counts[id].Load()
}

func (m *Metrics) Snapshot() MetricsSnapshot {
	s := MetricsSnapshot{
		Counters:   map[MetricID]uint64{},
		Histograms: map[MetricID][]uint64{},
	}
	if !m.Enabled() {
		return s
	}
	for id := range metricIDCount {
		s.Counters[id] = m.counts[id].Load()
	}
	if m.latency {
		buckets := make([]uint64, latencyBuckets)
		for i := range buckets {
			buckets[i] = m.buckets[i].Load()
		}
		s.Histograms[MetricValidateLatency] = buckets
	}
	return s
}

func latencyBucket(d time.Duration) int {
	ms := d.Milliseconds()
	for i, bound := range validateLatencyBounds {
		if ms <= bound {
			return i
		}
	}
	return len(validateLatencyBounds)
}
