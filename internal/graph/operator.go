package graph

import "time"

// Stage is a fixed, ordered processing stage. Stages compare with the
// standard < operator: Acquire < Clean < Explore < Model < Explain.
type Stage uint8

const (
	StageAcquire Stage = iota
	StageClean
	StageExplore
	StageModel
	StageExplain
)

func (s Stage) String() string {
	switch s {
	case StageAcquire:
		return "acquire"
	case StageClean:
		return "clean"
	case StageExplore:
		return "explore"
	case StageModel:
		return "model"
	case StageExplain:
		return "explain"
	default:
		return "unknown"
	}
}

// Context is passed to every OpFunc invocation. It carries nothing
// mutable today but exists so func signatures remain stable as the
// runtime grows (e.g. a future cancellation signal or logger).
type Context struct {
	OperatorID uint32
	Epoch      uint64
	Metrics    Metrics
}

// OpFunc is a pure function of an optional input tensor and a context,
// producing an optional output tensor. OpFunc must never block on I/O;
// long-running work belongs in a source/sink operator that yields by
// returning (nil, nil).
type OpFunc func(input *Tensor, ctx Context) (*Tensor, error)

// Determinism attaches WCET/period/deadline constraints to an operator
// (spec's `det(op_id, wcet, period, deadline)`).
type Determinism struct {
	WCETNs     uint64
	PeriodNs   uint64
	DeadlineNs uint64
}

// Spec describes an operator before it is admitted to a graph.
type Spec struct {
	ID        uint32
	InCh      *Channel // nil for a source operator
	OutCh     *Channel // nil for a sink operator
	Priority  uint8
	Stage     Stage
	InSchema  uint32 // 0 means untyped
	OutSchema uint32 // 0 means untyped
	Func      OpFunc
	Det       *Determinism
}

// operator is the runtime state of an admitted operator.
type operator struct {
	spec Spec

	lastReleaseNs     int64
	budgetRemainingNs int64
	periodStarted     bool
}

func newOperator(spec Spec) *operator {
	op := &operator{spec: spec}
	if spec.Det != nil {
		op.budgetRemainingNs = int64(spec.Det.WCETNs)
	}
	return op
}

func (op *operator) isSource() bool { return op.spec.InCh == nil }
func (op *operator) isSink() bool   { return op.spec.OutCh == nil }

// runnable reports whether op can be dispatched right now, per spec
// §4.3's runnability rule.
func (op *operator) runnable(nowNs int64) bool {
	if op.isSource() {
		if op.spec.OutCh != nil && !op.spec.OutCh.HasFreeSlot() {
			return false
		}
	} else {
		if !op.spec.InCh.HasData() {
			return false
		}
		if op.spec.OutCh != nil && !op.spec.OutCh.HasFreeSlot() {
			return false
		}
	}

	if op.spec.Det == nil {
		return true
	}

	if op.periodStarted && nowNs-op.lastReleaseNs < int64(op.spec.Det.PeriodNs) {
		return false
	}
	return op.budgetRemainingNs > 0
}

func nowNanos() int64 {
	return time.Now().UnixNano()
}
