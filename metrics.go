package authcore

import (
	"sync/atomic"
	"time"
)

// MetricID identifies one in-process counter or histogram.
type MetricID uint16

const (
	// MetricLoginSuccess counts successful logins.
	MetricLoginSuccess MetricID = iota
	// MetricLoginFailure counts rejected logins.
	MetricLoginFailure
	// MetricMFARequired counts logins demanding a second factor.
	MetricMFARequired
	// MetricMFAFailure counts rejected MFA codes.
	MetricMFAFailure
	// MetricRefreshSuccess counts completed refresh operations.
	MetricRefreshSuccess
	// MetricRefreshFailure counts failed refresh operations.
	MetricRefreshFailure
	// MetricRefreshCoalesced counts callers that attached to an
	// already in-flight refresh instead of starting one.
	MetricRefreshCoalesced
	// MetricRetryAfter401 counts requests replayed once after a 401.
	MetricRetryAfter401
	// MetricStorageIntegrityFailure counts detected vault compromises.
	MetricStorageIntegrityFailure
	// MetricFingerprintMismatch counts device consistency failures.
	MetricFingerprintMismatch
	// MetricSessionCreated counts created sessions.
	MetricSessionCreated
	// MetricSessionValidated counts successful validation passes.
	MetricSessionValidated
	// MetricSessionExpired counts inactivity expirations.
	MetricSessionExpired
	// MetricSessionTerminated counts terminated sessions.
	MetricSessionTerminated
	// MetricValidationFailure counts failed validation passes.
	MetricValidationFailure
	// MetricValidateLatency is the validation latency histogram.
	MetricValidateLatency

	metricIDCount
)

const cacheLineSize = 64

const histogramBucketCount = 8

type metricHistogram struct {
	buckets [histogramBucketCount]uint64
}

type paddedCounter struct {
	value uint64
	_     [cacheLineSize - 8]byte
}

// Metrics holds the in-process counters. All operations are lock-free.
type Metrics struct {
	enabled       bool
	enableLatency bool
	counters      [metricIDCount]paddedCounter
	histograms    [metricIDCount]metricHistogram
}

// MetricsSnapshot is a point-in-time copy of all counters and
// histogram buckets.
type MetricsSnapshot struct {
	Counters   map[MetricID]uint64
	Histograms map[MetricID][]uint64
}

// NewMetrics returns a metrics collector honoring cfg.
func NewMetrics(cfg MetricsConfig) *Metrics {
	return &Metrics{
		enabled:       cfg.Enabled,
		enableLatency: cfg.Enabled && cfg.EnableLatencyHistograms,
	}
}

// Enabled reports whether counters are collected.
func (m *Metrics) Enabled() bool {
	return m != nil && m.enabled
}

// Inc increments the counter for id.
func (m *Metrics) Inc(id MetricID) {
	if m == nil || !m.enabled || id >= metricIDCount {
		return
	}
	atomic.AddUint64(&m.counters[id].value, 1)
}

// Observe records a latency sample for the validate histogram.
func (m *Metrics) Observe(id MetricID, d time.Duration) {
	if m == nil || !m.enableLatency || id != MetricValidateLatency {
		return
	}
	atomic.AddUint64(&m.histograms[id].buckets[bucketIndex(d)], 1)
}

// Value returns the current counter value for id.
func (m *Metrics) Value(id MetricID) uint64 {
	if m == nil || id >= metricIDCount {
		return 0
	}
	return atomic.LoadUint64(&m.counters[id].value)
}

// Snapshot copies all counters and histogram buckets.
func (m *Metrics) Snapshot() MetricsSnapshot {
	if m == nil || !m.enabled {
		return MetricsSnapshot{
			Counters:   map[MetricID]uint64{},
			Histograms: map[MetricID][]uint64{},
		}
	}

	snapshot := MetricsSnapshot{
		Counters:   make(map[MetricID]uint64, int(metricIDCount)),
		Histograms: map[MetricID][]uint64{},
	}
	for id := MetricID(0); id < metricIDCount; id++ {
		snapshot.Counters[id] = atomic.LoadUint64(&m.counters[id].value)
	}
	if m.enableLatency {
		buckets := make([]uint64, histogramBucketCount)
		for i := range buckets {
			buckets[i] = atomic.LoadUint64(&m.histograms[MetricValidateLatency].buckets[i])
		}
		snapshot.Histograms[MetricValidateLatency] = buckets
	}
	return snapshot
}

func bucketIndex(d time.Duration) int {
	ms := d.Milliseconds()

	switch {
	case ms <= 5:
		return 0
	case ms <= 10:
		return 1
	case ms <= 25:
		return 2
	case ms <= 50:
		return 3
	case ms <= 100:
		return 4
	case ms <= 250:
		return 5
	case ms <= 500:
		return 6
	default:
		return 7
	}
}
