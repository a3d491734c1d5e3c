package ringbuf

import "testing"

func TestLinReg_PerfectLine(t *testing.T) {
	lr := NewLinReg(50)
	for x := 0.0; x < 10; x++ {
		lr.Add(x, 2*x+1)
	}
	got := lr.Slope()
	if diff := got - 2.0; diff > 1e-9 || diff < -1e-9 {
		t.Fatalf("Slope() = %f, want ~2.0", got)
	}
}

func TestLinReg_InsufficientPoints(t *testing.T) {
	lr := NewLinReg(10)
	if got := lr.Slope(); got != 0 {
		t.Fatalf("Slope() with 0 points = %f, want 0", got)
	}
	lr.Add(1, 1)
	if got := lr.Slope(); got != 0 {
		t.Fatalf("Slope() with 1 point = %f, want 0", got)
	}
}

func TestLinReg_DegenerateDenominator(t *testing.T) {
	lr := NewLinReg(10)
	// All x identical: n*Σx² - (Σx)² == 0.
	lr.Add(5, 1)
	lr.Add(5, 2)
	lr.Add(5, 3)
	if got := lr.Slope(); got != 0 {
		t.Fatalf("Slope() with degenerate x = %f, want 0", got)
	}
}

func TestLinReg_DropsOldestOnOverflow(t *testing.T) {
	lr := NewLinReg(3)
	// First three points describe a flat line (slope 0); pushing a fourth
	// with a sharply different trend should evict the first and reflect
	// only the most recent 3 points.
	lr.Add(0, 10)
	lr.Add(1, 10)
	lr.Add(2, 10)
	lr.Add(3, 40) // evicts (0,10); remaining (1,10),(2,10),(3,40)

	if lr.Len() != 3 {
		t.Fatalf("Len() = %d, want 3", lr.Len())
	}
	got := lr.Slope()
	if got <= 0 {
		t.Fatalf("Slope() = %f, want > 0 after eviction of flat point", got)
	}
}
