package orchestrator

import (
	"sync/atomic"
	"time"
)

// Metrics tracks orchestrator-wide counters with lock-free atomics. Ordering
// is relaxed: these are monitoring-only and never gate a decision.
type Metrics struct {
	unanimous      uint64
	majority       uint64
	safetyOverride uint64
	noConsensus    uint64

	latencyCount uint64 // accessed atomically
	latencySumNs uint64 // accessed atomically, nanoseconds
}

// NewMetrics returns a zeroed Metrics.
func NewMetrics() *Metrics {
	return &Metrics{}
}

// Observe records one Coordinate call's outcome kind and wall-clock
// duration.
func (m *Metrics) Observe(kind Kind, elapsed time.Duration) {
	switch kind {
	case Unanimous:
		atomic.AddUint64(&m.unanimous, 1)
	case Majority:
		atomic.AddUint64(&m.majority, 1)
	case SafetyOverride:
		atomic.AddUint64(&m.safetyOverride, 1)
	case NoConsensus:
		atomic.AddUint64(&m.noConsensus, 1)
	}
	atomic.AddUint64(&m.latencyCount, 1)
	atomic.AddUint64(&m.latencySumNs, uint64(elapsed.Nanoseconds()))
}

// MetricsSnapshot is a point-in-time read of the counters.
type MetricsSnapshot struct {
	Unanimous      uint64
	Majority       uint64
	SafetyOverride uint64
	NoConsensus    uint64
	AverageLatency time.Duration
}

// Snapshot reads all counters. It is not atomic as a whole (individual
// fields are read independently), which is acceptable for monitoring-only
// data.
func (m *Metrics) Snapshot() MetricsSnapshot {
	count := atomic.LoadUint64(&m.latencyCount)
	sum := atomic.LoadUint64(&m.latencySumNs)
	var avg time.Duration
	if count > 0 {
		avg = time.Duration(sum / count)
	}
	return MetricsSnapshot{
		Unanimous:      atomic.LoadUint64(&m.unanimous),
		Majority:       atomic.LoadUint64(&m.majority),
		SafetyOverride: atomic.LoadUint64(&m.safetyOverride),
		NoConsensus:    atomic.LoadUint64(&m.noConsensus),
		AverageLatency: avg,
	}
}

// CoordinateObserved runs Coordinate and records the outcome into m. Errors
// (e.g. ErrNoDecisions) are not counted since no Kind was produced.
func CoordinateObserved(m *Metrics, decisions []Decision) (Coordinated, error) {
	start := time.Now()
	result, err := Coordinate(decisions)
	if err != nil {
		return result, err
	}
	m.Observe(result.Kind, time.Since(start))
	return result, nil
}
