package goSession

import (
	"sync/atomic"
	"time"
)

// MetricID identifies one engine counter or histogram.
type MetricID uint16

const (
	// MetricSessionDecoded counts cookies that opened and passed the policy.
	MetricSessionDecoded MetricID = iota
	// MetricSessionMissing counts requests without the namespace cookie.
	MetricSessionMissing
	// MetricSessionRejected counts cookies that failed authentication or framing.
	MetricSessionRejected
	// MetricSessionExpired counts cookies outside their login or visit deadline.
	MetricSessionExpired
	// MetricLegacyDecoded counts cookies accepted in the legacy format.
	MetricLegacyDecoded
	// MetricUserNotFound counts valid cookies naming an unknown user.
	MetricUserNotFound
	// MetricStoreUnavailable counts identity store failures.
	MetricStoreUnavailable
	// MetricRoleDenied counts hydrated users rejected by a namespace role gate.
	MetricRoleDenied
	// MetricLogin counts identity cookies minted by Login.
	MetricLogin
	// MetricLogout counts clearing cookies written after Logout.
	MetricLogout
	// MetricSessionRefreshed counts visit refreshes.
	MetricSessionRefreshed
	// MetricSealFailure counts cookies that could not be sealed.
	MetricSealFailure
	// MetricHydrateLatency is the latency of decode plus store lookup.
	MetricHydrateLatency
	metricIDCount
)

const (
	histBucketCount = 8
	cacheLineSize   = 64
)

type metricHistogram struct {
	buckets [histBucketCount]uint64
}

type paddedCounter struct {
	value uint64
	_     [cacheLineSize - 8]byte
}

// Metrics holds lock-free counters. The zero value and a nil *Metrics are both disabled.
type Metrics struct {
	enabled       bool
	enableLatency bool
	counters      [metricIDCount]paddedCounter
	histogram     metricHistogram
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

func (m *Metrics) LatencyEnabled() bool {
	return m != nil && m.enableLatency
}

// Inc adds one to counter id. Histogram ids are ignored.
func (m *Metrics) Inc(id MetricID) {
	if m == nil || !m.enabled || id >= metricIDCount || id == MetricHydrateLatency {
		return
	}
	atomic.AddUint64(&m.counters[id].value, 1)
}

// Observe records d in the hydrate latency histogram.
func (m *Metrics) Observe(id MetricID, d time.Duration) {
	if m == nil || !m.enableLatency || id != MetricHydrateLatency {
		return
	}
	atomic.AddUint64(&m.histogram.buckets[bucketIndex(d)], 1)
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
		Histograms: make(map[MetricID][]uint64, 1),
	}

	for id := MetricID(0); id < metricIDCount; id++ {
		if id == MetricHydrateLatency {
			continue
		}
		s.Counters[id] = atomic.LoadUint64(&m.counters[id].value)
	}

	if m.enableLatency {
		buckets := make([]uint64, histBucketCount)
		for i := range buckets {
			buckets[i] = atomic.LoadUint64(&m.histogram.buckets[i])
		}
		s.Histograms[MetricHydrateLatency] = buckets
	}

	return s
}

// bucketIndex maps d onto the upper bounds 1, 2.5, 5, 10, 25, 50, 100 ms and +Inf.
func bucketIndex(d time.Duration) int {
	us := d.Microseconds()

	switch {
	case us <= 1000:
		return 0
	case us <= 2500:
		return 1
	case us <= 5000:
		return 2
	case us <= 10000:
		return 3
	case us <= 25000:
		return 4
	case us <= 50000:
		return 5
	case us <= 100000:
		return 6
	default:
		return 7
	}
}
