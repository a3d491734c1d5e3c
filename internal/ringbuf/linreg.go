package ringbuf

// LinReg is a streaming linear regression accumulator over up to
// maxPoints (x, y) pairs. The oldest pair is dropped on overflow; no heap
// growth occurs in steady state since the backing Ring pre-allocates.
type LinReg struct {
	points *Ring[point]
}

type point struct {
	x, y float64
}

// NewLinReg creates a LinReg retaining at most maxPoints samples.
// maxPoints must be > 0.
func NewLinReg(maxPoints int) *LinReg {
	return &LinReg{points: NewRing[point](maxPoints)}
}

// Add records one (x, y) observation.
func (l *LinReg) Add(x, y float64) {
	l.points.Push(point{x: x, y: y})
}

// Slope computes the least-squares slope:
//
//	(n*Σxy - Σx*Σy) / (n*Σx² - (Σx)²)
//
// Returns 0 when n < 2 or the denominator's absolute value is below 1e-4.
func (l *LinReg) Slope() float64 {
	pts := l.points.Iter()
	n := float64(len(pts))
	if n < 2 {
		return 0
	}

	var sumX, sumY, sumXY, sumX2 float64
	for _, p := range pts {
		sumX += p.x
		sumY += p.y
		sumXY += p.x * p.y
		sumX2 += p.x * p.x
	}

	denom := n*sumX2 - sumX*sumX
	if absf(denom) < 1e-4 {
		return 0
	}
	return (n*sumXY - sumX*sumY) / denom
}

// Len returns the number of retained samples.
func (l *LinReg) Len() int {
	return l.points.Len()
}

func absf(v float64) float64 {
	if v < 0 {
		return -v
	}
	return v
}
