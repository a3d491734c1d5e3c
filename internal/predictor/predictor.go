// Package predictor implements the crash predictor (spec component C2): a
// streaming anomaly detector over memory allocation telemetry that produces
// a forward-looking confidence score and a mitigation recommendation.
//
// The composite confidence formula combines four weighted signals
// (decline factor, fragmentation level, recent failures, trend) into one
// scalar, then buckets it into a recommendation string. All state is
// guarded by a single mutex per instance; a read/write split is a valid
// future optimization (see DESIGN.md) but is not required for
// correctness.
package predictor

import (
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/agentcore/agentcore/internal/ringbuf"
)

const (
	historyCapacity    = 100
	predictionCapacity = 50
	trendMaxPoints      = 50
	minSamplesForSignal = 10

	declineWeight     = 0.35
	fragWeight        = 0.25
	recentFailWeight  = 0.25
	trendWeight       = 0.15

	thresholdCritical = 0.9
	thresholdWarning  = 0.8
	thresholdWatch    = 0.6
)

// AllocMetrics is one sample of kernel allocation telemetry.
type AllocMetrics struct {
	TimestampMS        int64
	FreePages          int64
	LargestFreeBlock   int64
	FragmentationRatio float64
	AllocationFailures int
}

// PredictionRecord is a single historical confidence evaluation, retained
// for audit/inspection (spec §3 predictions: ring<PredictionRecord; 50>).
type PredictionRecord struct {
	Confidence float64
	Recommendation string
	EvaluatedAt    time.Time
}

// Status is the result of Status(): the current confidence plus a
// human-readable recommendation bucketed by threshold.
type Status struct {
	Confidence     float64
	Recommendation string
}

// State is the crash predictor's mutable telemetry and prediction state.
// Safe for concurrent use. Must not be called from interrupt context
// (spec §5).
type State struct {
	mu sync.Mutex

	history   *ringbuf.Ring[AllocMetrics]
	fragTrend *ringbuf.LinReg

	peakFreePages int64
	peakSet       bool
	oomSignals    int64

	predictions *ringbuf.Ring[PredictionRecord]

	log *zap.Logger
}

// New creates a crash predictor State. log may be nil (zap.NewNop() is
// used in that case).
func New(log *zap.Logger) *State {
	if log == nil {
		log = zap.NewNop()
	}
	return &State{
		history:     ringbuf.NewRing[AllocMetrics](historyCapacity),
		fragTrend:   ringbuf.NewLinReg(trendMaxPoints),
		predictions: ringbuf.NewRing[PredictionRecord](predictionCapacity),
		log:         log,
	}
}

// Update pushes a new allocation metrics sample into history, updates the
// monotonic peak-free-pages watermark, feeds the fragmentation trend
// regression, and accumulates OOM signals.
func (s *State) Update(m AllocMetrics) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.history.Push(m)

	if !s.peakSet || m.FreePages > s.peakFreePages {
		s.peakFreePages = m.FreePages
		s.peakSet = true
	}

	s.fragTrend.Add(float64(m.TimestampMS)/1000.0, m.FragmentationRatio)

	if m.AllocationFailures > 0 {
		s.oomSignals += int64(m.AllocationFailures)
	}
}

// Predict computes the composite confidence score A ∈ [0, 1].
func (s *State) Predict() float64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.predictLocked()
}

func (s *State) predictLocked() float64 {
	latest, ok := s.history.Latest()
	if !ok || s.history.Len() < minSamplesForSignal {
		return 0
	}

	score := declineWeight * s.declineFactorLocked(latest)
	score += fragWeight * fragmentationLevel(latest.FragmentationRatio)
	score += recentFailWeight * s.recentFailuresLocked(latest.TimestampMS)
	score += trendWeight * trendContribution(s.fragTrend.Slope())

	if score < 0 {
		score = 0
	}
	if score > 1 {
		score = 1
	}
	return score
}

// declineFactorLocked implements the 0.35-weighted decline signal. Must be
// called with s.mu held.
func (s *State) declineFactorLocked(latest AllocMetrics) float64 {
	if s.history.Len() < minSamplesForSignal || s.peakFreePages < 1 {
		return 0
	}
	r := float64(s.peakFreePages-latest.FreePages) / float64(s.peakFreePages)
	switch {
	case r > 0.2:
		return 1.0
	case r > 0.1:
		return (r - 0.1) / 0.1
	default:
		return 0
	}
}

func fragmentationLevel(ratio float64) float64 {
	switch {
	case ratio > 0.7:
		return 1.0 // contributes full fragWeight (0.25)
	case ratio > 0.5:
		return 0.6 * (ratio - 0.5) / 0.2 // scaled so fragWeight*this == 0.15*(ratio-0.5)/0.2
	default:
		return 0
	}
}

// recentFailuresLocked counts allocation_failures observed in the last
// second of samples and converts it to a normalized [0,1] contribution.
func (s *State) recentFailuresLocked(latestMS int64) float64 {
	var count int
	for _, m := range s.history.Iter() {
		if latestMS-m.TimestampMS <= 1000 {
			count += m.AllocationFailures
		}
	}
	if count > 3 {
		return 1.0 // contributes full recentFailWeight (0.25)
	}
	// 0.08*count maps onto recentFailWeight's 0.25 share as 0.32*count.
	return 0.32 * float64(count)
}

func trendContribution(slope float64) float64 {
	switch {
	case slope > 0.1:
		return 1.0 // contributes full trendWeight (0.15)
	case slope > 0.05:
		return 0.10 / trendWeight // contributes exactly 0.10
	default:
		return 0
	}
}

// Status returns the current confidence plus a bucketed recommendation.
func (s *State) Status() Status {
	s.mu.Lock()
	defer s.mu.Unlock()

	conf := s.predictLocked()
	rec := recommendationFor(conf)

	s.predictions.Push(PredictionRecord{
		Confidence:     conf,
		Recommendation: rec,
		EvaluatedAt:    time.Now(),
	})

	return Status{Confidence: conf, Recommendation: rec}
}

func recommendationFor(conf float64) string {
	switch {
	case conf >= thresholdCritical:
		return "critical: compact memory immediately"
	case conf >= thresholdWarning:
		return "warning: schedule preventive compaction"
	case conf >= thresholdWatch:
		return "watch: monitor allocation trend"
	default:
		return "normal"
	}
}

// ShouldAutoCompact reports whether confidence has crossed the automatic
// compaction threshold (0.9).
func (s *State) ShouldAutoCompact() bool {
	return s.Predict() >= thresholdCritical
}

// ResetPeak resets peakFreePages to the most recent observation. Called by
// the caller after a successful compaction.
func (s *State) ResetPeak() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if latest, ok := s.history.Latest(); ok {
		s.peakFreePages = latest.FreePages
		s.peakSet = true
	}
}

// HistoryLen returns the number of retained allocation-metrics samples
// (min(k, 100) after k Update calls, per spec §8 property 4).
func (s *State) HistoryLen() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.history.Len()
}

// OOMSignals returns the lifetime count of accumulated allocation failures.
func (s *State) OOMSignals() int64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.oomSignals
}

// Predictions returns a snapshot of the retained prediction history,
// oldest first.
func (s *State) Predictions() []PredictionRecord {
	return s.predictions.Iter()
}
