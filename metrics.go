package accountd

import (
	"sync/atomic"
	"time"
)

// MetricID identifies one engine counter.
type MetricID uint16

const (
	// MetricSignupStarted counts signup/recovery mails requested.
	MetricSignupStarted MetricID = iota
	// MetricSignupAccepted counts accounts created through the signup flow.
	MetricSignupAccepted
	// MetricSignupDuplicate counts signups that hit an existing email,
	// including unique-key races at accept time.
	MetricSignupDuplicate
	// MetricRecoveryAccepted counts completed password recoveries.
	MetricRecoveryAccepted
	// MetricVerificationSent counts mailed login verification codes.
	MetricVerificationSent
	// MetricVerificationSuccess counts accepted verification codes.
	MetricVerificationSuccess
	// MetricVerificationFailure counts wrong verification codes.
	MetricVerificationFailure
	// MetricVerificationExceeded counts verification records killed by the
	// attempt cap.
	MetricVerificationExceeded
	// MetricEmailChangeStarted counts email-change confirmation mails.
	MetricEmailChangeStarted
	// MetricEmailChangeAccepted counts committed email changes.
	MetricEmailChangeAccepted
	// MetricLoginAccepted counts login challenges accepted with the
	// authorization server.
	MetricLoginAccepted
	// MetricLoginRejected counts login challenges rejected, including
	// quota rejections.
	MetricLoginRejected
	// MetricLoginOverQuota counts logins converted to rejection by the
	// monthly cap.
	MetricLoginOverQuota
	// MetricConsentAccepted counts accepted consent challenges.
	MetricConsentAccepted
	// MetricSignalsDispatched counts outbox signal rows delivered to
	// subscribers.
	MetricSignalsDispatched
	// MetricLoginLatency is the histogram of PerformLogin round trips.
	MetricLoginLatency
	metricIDCount
)

const (
	histBucketCount = 8
	cacheLineSize   = 64
)

type metricHistogram struct {
	buckets [histBucketCount]uint64
}

// paddedCounter keeps hot counters on separate cache lines.
type paddedCounter struct {
	value uint64
	_     [cacheLineSize - 8]byte
}

// Metrics is a fixed set of atomic counters plus one latency histogram.
// A nil or disabled Metrics accepts updates and drops them.
type Metrics struct {
	enabled    bool
	counters   [metricIDCount]paddedCounter
	histograms [metricIDCount]metricHistogram
}

// MetricsSnapshot is a point-in-time copy of all counters.
type MetricsSnapshot struct {
	Counters   map[MetricID]uint64
	Histograms map[MetricID][]uint64
}

// NewMetrics creates the counter set.
func NewMetrics(cfg MetricsConfig) *Metrics {
	return &Metrics{enabled: cfg.Enabled}
}

// Enabled reports whether updates are recorded.
func (m *Metrics) Enabled() bool {
	return m != nil && m.enabled
}

// Inc adds one to the counter.
func (m *Metrics) Inc(id MetricID) {
	if m == nil || !m.enabled || id >= metricIDCount {
		return
	}
	atomic.AddUint64(&m.counters[id].value, 1)
}

// Observe records one latency sample.
func (m *Metrics) Observe(id MetricID, d time.Duration) {
	if m == nil || !m.enabled || id != MetricLoginLatency {
		return
	}
	atomic.AddUint64(&m.histograms[id].buckets[bucketIndex(d)], 1)
}

// Value reads one counter.
func (m *Metrics) Value(id MetricID) uint64 {
	if m == nil || id >= metricIDCount {
		return 0
	}
	return atomic.LoadUint64(&m.counters[id].value)
}

// Snapshot copies every counter and histogram bucket.
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

	buckets := make([]uint64, histBucketCount)
	for i := 0; i < histBucketCount; i++ {
		buckets[i] = atomic.LoadUint64(&m.histograms[MetricLoginLatency].buckets[i])
	}
	s.Histograms[MetricLoginLatency] = buckets

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
