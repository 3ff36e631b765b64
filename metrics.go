package authcore

import (
	"sync/atomic"
	"time"
)

// MetricID names an engine counter or latency histogram.
type MetricID uint16

const (
	MetricRegisterSuccess MetricID = iota
	MetricRegisterDuplicate
	MetricRegisterInvalid
	MetricLoginSuccess
	MetricLoginFailure
	MetricLoginRateLimited
	MetricPasswordRehashed
	MetricRefreshSuccess
	MetricRefreshFailure
	MetricRefreshReuseDetected
	MetricLogout
	MetricTokensRevoked
	MetricRoleChanged
	MetricRoleChangeDenied
	MetricAPIRateLimited
	MetricVerifySuccess
	MetricVerifyFailure
	MetricStoreFailure
	MetricLoginLatency
	MetricVerifyLatency
	metricIDCount
)

var metricNames = [metricIDCount]string{
	MetricRegisterSuccess:      "register_success",
	MetricRegisterDuplicate:    "register_duplicate",
	MetricRegisterInvalid:      "register_invalid",
	MetricLoginSuccess:         "login_success",
	MetricLoginFailure:         "login_failure",
	MetricLoginRateLimited:     "login_rate_limited",
	MetricPasswordRehashed:     "password_rehashed",
	MetricRefreshSuccess:       "refresh_success",
	MetricRefreshFailure:       "refresh_failure",
	MetricRefreshReuseDetected: "refresh_reuse_detected",
	MetricLogout:               "logout",
	MetricTokensRevoked:        "tokens_revoked",
	MetricRoleChanged:          "role_changed",
	MetricRoleChangeDenied:     "role_change_denied",
	MetricAPIRateLimited:       "api_rate_limited",
	MetricVerifySuccess:        "verify_success",
	MetricVerifyFailure:        "verify_failure",
	MetricStoreFailure:         "store_failure",
	MetricLoginLatency:         "login_latency",
	MetricVerifyLatency:        "verify_latency",
}

func (id MetricID) String() string {
	if id >= metricIDCount {
		return "unknown"
	}
	return metricNames[id]
}

const (
	histBucketCount = 8
	cacheLineSize   = 64
)

// HistogramBounds are the inclusive upper bounds of the first seven latency
// buckets. The eighth bucket is unbounded.
var HistogramBounds = [histBucketCount - 1]time.Duration{
	5 * time.Millisecond,
	10 * time.Millisecond,
	25 * time.Millisecond,
	50 * time.Millisecond,
	100 * time.Millisecond,
	250 * time.Millisecond,
	500 * time.Millisecond,
}

type metricHistogram struct {
	buckets [histBucketCount]uint64
}

type paddedCounter struct {
	value uint64
	_     [cacheLineSize - 8]byte
}

// Metrics is a lock-free set of in-process counters. A nil *Metrics is a
// valid no-op.
type Metrics struct {
	enabled       bool
	enableLatency bool
	counters      [metricIDCount]paddedCounter
	histograms    [metricIDCount]metricHistogram
}

// MetricsSnapshot is a point-in-time copy of all counters and histograms.
type MetricsSnapshot struct {
	Counters   map[MetricID]uint64
	Histograms map[MetricID][]uint64
}

func NewMetrics(cfg MetricsConfig) *Metrics {
	return &Metrics{
		enabled:       cfg.Enabled,
		enableLatency: cfg.Enabled && cfg.EnableLatencyHistograms,
	}
}

func (m *Metrics) Enabled() bool {
	return m != nil && m.enabled
}

func (m *Metrics) LatencyEnabled() bool {
	return m != nil && m.enableLatency
}

func (m *Metrics) Inc(id MetricID) {
	m.Add(id, 1)
}

// Add increments id by n. Non-positive n is ignored.
func (m *Metrics) Add(id MetricID, n int) {
	if m == nil || !m.enabled || id >= metricIDCount || n <= 0 {
		return
	}
	atomic.AddUint64(&m.counters[id].value, uint64(n))
}

// Observe records d in the histogram of a latency metric.
func (m *Metrics) Observe(id MetricID, d time.Duration) {
	if m == nil || !m.enableLatency || !isLatencyMetric(id) {
		return
	}
	atomic.AddUint64(&m.histograms[id].buckets[bucketIndex(d)], 1)
}

func (m *Metrics) Value(id MetricID) uint64 {
	if m == nil || id >= metricIDCount {
		return 0
	}
	return atomic.LoadUint64(&m.counters[id].value)
}

func (m *Metrics) Snapshot() MetricsSnapshot {
	if m == nil || !m.enabled {
		return MetricsSnapshot{
			Counters:   map[MetricID]uint64{},
			Histograms: map[MetricID][]uint64{},
		}
	}

	s := MetricsSnapshot{
		Counters:   make(map[MetricID]uint64, int(metricIDCount)),
		Histograms: make(map[MetricID][]uint64, 2),
	}

	for id := MetricID(0); id < metricIDCount; id++ {
		if isLatencyMetric(id) {
			continue
		}
		s.Counters[id] = atomic.LoadUint64(&m.counters[id].value)
	}

	if m.enableLatency {
		for _, id := range []MetricID{MetricLoginLatency, MetricVerifyLatency} {
			buckets := make([]uint64, histBucketCount)
			for i := 0; i < histBucketCount; i++ {
				buckets[i] = atomic.LoadUint64(&m.histograms[id].buckets[i])
			}
			s.Histograms[id] = buckets
		}
	}

	return s
}

func isLatencyMetric(id MetricID) bool {
	return id == MetricLoginLatency || id == MetricVerifyLatency
}

func bucketIndex(d time.Duration) int {
	for i, bound := range HistogramBounds {
		if d <= bound {
			return i
		}
	}
	return histBucketCount - 1
}
