package eident

import (
	"sync/atomic"
	"time"
)

// MetricID defines a public type used by eident APIs.
type MetricID uint16

const (
	// MetricInitiateSuccess is an exported constant or variable used by the order engine.
	MetricInitiateSuccess MetricID = iota
	// MetricInitiateFailure is an exported constant or variable used by the order engine.
	MetricInitiateFailure
	// MetricPollSuccess is an exported constant or variable used by the order engine.
	MetricPollSuccess
	// MetricPollFailure is an exported constant or variable used by the order engine.
	MetricPollFailure
	// MetricPollWriteSuppressed is an exported constant or variable used by the order engine.
	MetricPollWriteSuppressed
	// MetricRenewSuccess is an exported constant or variable used by the order engine.
	MetricRenewSuccess
	// MetricRenewRefused is an exported constant or variable used by the order engine.
	MetricRenewRefused
	// MetricRenewFailure is an exported constant or variable used by the order engine.
	MetricRenewFailure
	// MetricCompleteSuccess is an exported constant or variable used by the order engine.
	MetricCompleteSuccess
	// MetricCompleteFailure is an exported constant or variable used by the order engine.
	MetricCompleteFailure
	// MetricCompleteReplayed is an exported constant or variable used by the order engine.
	MetricCompleteReplayed
	// MetricCancelSuccess is an exported constant or variable used by the order engine.
	MetricCancelSuccess
	// MetricCancelFailure is an exported constant or variable used by the order engine.
	MetricCancelFailure
	// MetricOrderCreated is an exported constant or variable used by the order engine.
	MetricOrderCreated
	// MetricOrderConsumed is an exported constant or variable used by the order engine.
	MetricOrderConsumed
	// MetricAttemptStarted is an exported constant or variable used by the order engine.
	MetricAttemptStarted
	// MetricAttemptTimeout is an exported constant or variable used by the order engine.
	MetricAttemptTimeout
	// MetricExpungeCycles is an exported constant or variable used by the order engine.
	MetricExpungeCycles
	// MetricExpungeErrors is an exported constant or variable used by the order engine.
	MetricExpungeErrors
	// MetricOrdersExpunged is an exported constant or variable used by the order engine.
	MetricOrdersExpunged
	// MetricPollLatency is an exported constant or variable used by the order engine.
	MetricPollLatency
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

// Metrics is a lock-free in-process metrics registry. Poll is the hot
// path, so it alone gets a latency histogram; everything else is a plain
// counter.
type Metrics struct {
	enabled       bool
	enableLatency bool
	counters      [metricIDCount]paddedCounter
	histograms    [metricIDCount]metricHistogram
}

// MetricsSnapshot defines a public type used by eident APIs.
type MetricsSnapshot struct {
	Counters   map[MetricID]uint64
	Histograms map[MetricID][]uint64
}

// NewMetrics creates a [Metrics] registry from config.
func NewMetrics(cfg MetricsConfig) *Metrics {
	return &Metrics{
		enabled:       cfg.Enabled,
		enableLatency: cfg.Enabled && cfg.EnableLatencyHistograms,
	}
}

// Enabled reports whether the registry records anything at all.
func (m *Metrics) Enabled() bool {
	return m != nil && m.enabled
}

// LatencyEnabled reports whether latency histograms are recorded.
func (m *Metrics) LatencyEnabled() bool {
	return m != nil && m.enableLatency
}

// Inc increments a counter. No-op when disabled.
func (m *Metrics) Inc(id MetricID) {
	if m == nil || !m.enabled || id >= metricIDCount {
		return
	}
	atomic.AddUint64(&m.counters[id].value, 1)
}

// Add increments a counter by n. No-op when disabled.
func (m *Metrics) Add(id MetricID, n uint64) {
	if m == nil || !m.enabled || id >= metricIDCount {
		return
	}
	atomic.AddUint64(&m.counters[id].value, n)
}

// Observe records a latency sample into the poll histogram.
func (m *Metrics) Observe(id MetricID, d time.Duration) {
	if m == nil || !m.enabled || !m.enableLatency || id >= metricIDCount {
		return
	}
	if id != MetricPollLatency {
		return
	}

	b := bucketIndex(d)
	atomic.AddUint64(&m.histograms[id].buckets[b], 1)
}

// Value returns the current value of a counter.
func (m *Metrics) Value(id MetricID) uint64 {
	if m == nil || id >= metricIDCount {
		return 0
	}
	return atomic.LoadUint64(&m.counters[id].value)
}

// Snapshot returns a point-in-time copy of all counters and histograms.
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
			buckets[i] = atomic.LoadUint64(&m.histograms[MetricPollLatency].buckets[i])
		}
		s.Histograms[MetricPollLatency] = buckets
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
