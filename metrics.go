package registroauth

import (
	"sync/atomic"
	"time"
)

// MetricID indexes one engine counter.
type MetricID uint16

const (
	// MetricLoginSuccess counts completed authentications.
	MetricLoginSuccess MetricID = iota
	// MetricLoginFailure counts rejected authentications.
	MetricLoginFailure
	// MetricLoginBlocked counts maintenance and time-window rejections.
	MetricLoginBlocked
	// MetricCSRFRejected counts extraction failures on the anti-forgery check.
	MetricCSRFRejected
	// MetricOTPSuccess counts accepted second-factor codes.
	MetricOTPSuccess
	// MetricOTPFailure counts wrong second-factor codes.
	MetricOTPFailure
	// MetricOTPReplay counts codes rejected as immediate reuse.
	MetricOTPReplay
	// MetricCardExpired counts certificate logins past validity.
	MetricCardExpired
	// MetricPreloginIssued counts handoff tokens minted.
	MetricPreloginIssued
	// MetricPreloginConsumed counts handoff tokens consumed successfully.
	MetricPreloginConsumed
	// MetricPreloginRejected counts handoff tokens rejected on consumption.
	MetricPreloginRejected
	// MetricAssertionConsumed counts federated assertions consumed.
	MetricAssertionConsumed
	// MetricAssertionReplay counts assertions presented more than once.
	MetricAssertionReplay
	// MetricProfileLinked counts logins that surfaced linked profiles.
	MetricProfileLinked
	// MetricSettingsReload counts settings cache reloads.
	MetricSettingsReload
	// MetricAuthLatency is the end-to-end authentication latency histogram.
	MetricAuthLatency
	metricIDCount
)

const (
	histBucketCount = 8
	cacheLineSize   = 64
)

type metricHistogram struct {
	buckets [histBucketCount]uint64
}

// paddedCounter keeps each counter on its own cache line.
type paddedCounter struct {
	value uint64
	_     [cacheLineSize - 8]byte
}

// Metrics holds the lock-free engine counters.
type Metrics struct {
	enabled       bool
	enableLatency bool
	counters      [metricIDCount]paddedCounter
	histograms    [metricIDCount]metricHistogram
}

// MetricsSnapshot is a point-in-time copy of all counters.
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

func (m *Metrics) Inc(id MetricID) {
	if m == nil || !m.enabled || id >= metricIDCount {
		return
	}
	atomic.AddUint64(&m.counters[id].value, 1)
}

func (m *Metrics) Observe(id MetricID, d time.Duration) {
	if m == nil || !m.enabled || !m.enableLatency || id >= metricIDCount {
		return
	}
	if id != MetricAuthLatency {
		return
	}

	b := bucketIndex(d)
	atomic.AddUint64(&m.histograms[id].buckets[b], 1)
}

func (m *Metrics) Value(id MetricID) uint64 {
	if m == nil || id >= metricIDCount {
		return 0
	}
	return atomic.LoadUint64(&m.counters[id].value)
}

// Snapshot copies every counter. Values are individually atomic, not a
// consistent cut across counters.
func (m *Metrics) Snapshot() MetricsSnapshot {
	if m == nil || !m.enabled {
		return MetricsSnapshot{
			Counters:   map[MetricID]uint64{},
			Histograms: map[MetricID][]uint64{},
		}
	}

	s := MetricsSnapshot{
		Counters:   make(map[MetricID]uint64, int(metricIDCount)),
		Histograms: make(map[MetricID][]uint64, 1),
	}

	for id := MetricID(0); id < metricIDCount; id++ {
		s.Counters[id] = atomic.LoadUint64(&m.counters[id].value)
	}

	if m.enableLatency {
		buckets := make([]uint64, histBucketCount)
		for i := 0; i < histBucketCount; i++ {
			buckets[i] = atomic.LoadUint64(&m.histograms[MetricAuthLatency].buckets[i])
		}
		s.Histograms[MetricAuthLatency] = buckets
	}

	return s
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
