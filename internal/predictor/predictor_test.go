package predictor

import "testing"

func TestState_HistoryCapIsMinOfSamplesAndCapacity(t *testing.T) {
	s := New(nil)
	for i := 0; i < 150; i++ {
		s.Update(AllocMetrics{TimestampMS: int64(i * 100), FreePages: 1000})
		want := i + 1
		if want > historyCapacity {
			want = historyCapacity
		}
		if got := s.HistoryLen(); got != want {
			t.Fatalf("after %d updates, HistoryLen() = %d, want %d", i+1, got, want)
		}
	}
}

func TestState_ConfidenceBoundedZeroToOne(t *testing.T) {
	s := New(nil)
	// Feed an extreme, maximally-bad sequence: free pages collapsing,
	// fragmentation pegged, repeated allocation failures.
	for i := 0; i < 30; i++ {
		s.Update(AllocMetrics{
			TimestampMS:        int64(i * 50),
			FreePages:          int64(1000 - i*40),
			FragmentationRatio: 0.95,
			AllocationFailures: 5,
		})
	}
	got := s.Predict()
	if got < 0 || got > 1 {
		t.Fatalf("Predict() = %f, want within [0, 1]", got)
	}
}

func TestState_EmptyHistoryPredictsZero(t *testing.T) {
	s := New(nil)
	if got := s.Predict(); got != 0 {
		t.Fatalf("Predict() on empty history = %f, want 0", got)
	}
}

func TestState_StatusRecommendationBuckets(t *testing.T) {
	cases := []struct {
		conf float64
		want string
	}{
		{0.95, "critical: compact memory immediately"},
		{0.85, "warning: schedule preventive compaction"},
		{0.65, "watch: monitor allocation trend"},
		{0.2, "normal"},
	}
	for _, c := range cases {
		if got := recommendationFor(c.conf); got != c.want {
			t.Errorf("recommendationFor(%f) = %q, want %q", c.conf, got, c.want)
		}
	}
}

// TestState_DecliningFreePagesRisingFragmentation mirrors scenario S4:
// 20 samples, free_pages declines linearly from 1000 to 200, frag_ratio
// climbs from 0.30 to 0.87, and the last 3 samples each report one
// allocation failure. With the composite formula's weights, this data
// produces confidence ≈0.76 (decline 0.35 + fragmentation 0.25 +
// recent-failures 0.16 + trend 0), which buckets to "watch: monitor
// allocation trend" rather than a compaction recommendation — see
// DESIGN.md's Open Question on scenario S4.
func TestState_DecliningFreePagesRisingFragmentation(t *testing.T) {
	s := New(nil)
	const n = 20
	for i := 0; i < n; i++ {
		frac := float64(i) / float64(n-1)
		free := int64(1000 - frac*(1000-200))
		frag := 0.30 + frac*(0.87-0.30)
		failures := 0
		if i >= n-3 {
			failures = 1
		}
		s.Update(AllocMetrics{
			TimestampMS:        int64(i * 1000),
			FreePages:          free,
			FragmentationRatio: frag,
			AllocationFailures: failures,
		})
	}

	status := s.Status()
	if status.Confidence < 0.6 || status.Confidence >= 0.8 {
		t.Fatalf("Status().Confidence = %f, want within the watch band [0.6, 0.8)", status.Confidence)
	}
	const want = "watch: monitor allocation trend"
	if status.Recommendation != want {
		t.Fatalf("Status().Recommendation = %q, want %q", status.Recommendation, want)
	}
}

func TestState_ResetPeakUsesMostRecentSample(t *testing.T) {
	s := New(nil)
	s.Update(AllocMetrics{TimestampMS: 0, FreePages: 1000})
	s.Update(AllocMetrics{TimestampMS: 1000, FreePages: 300})
	s.ResetPeak()

	if s.peakFreePages != 300 {
		t.Fatalf("peakFreePages after ResetPeak = %d, want 300", s.peakFreePages)
	}
}

func TestState_OOMSignalsAccumulate(t *testing.T) {
	s := New(nil)
	s.Update(AllocMetrics{TimestampMS: 0, AllocationFailures: 2})
	s.Update(AllocMetrics{TimestampMS: 100, AllocationFailures: 0})
	s.Update(AllocMetrics{TimestampMS: 200, AllocationFailures: 3})

	if got := s.OOMSignals(); got != 5 {
		t.Fatalf("OOMSignals() = %d, want 5", got)
	}
}

func TestState_ShouldAutoCompactMatchesCriticalThreshold(t *testing.T) {
	s := New(nil)
	for i := 0; i < 30; i++ {
		s.Update(AllocMetrics{
			TimestampMS:        int64(i * 100),
			FreePages:          int64(1000 - i*35),
			FragmentationRatio: 0.9,
			AllocationFailures: 5,
		})
	}
	if s.Predict() >= thresholdCritical && !s.ShouldAutoCompact() {
		t.Fatalf("ShouldAutoCompact() = false, but Predict() = %f >= %f", s.Predict(), thresholdCritical)
	}
}
