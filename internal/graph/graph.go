package graph

import (
	"fmt"
	"sort"
	"sync"
	"time"

	"go.uber.org/zap"
)

// Metrics is a read-only snapshot of a graph's lifetime counters (spec
// §4.3 Metrics).
type Metrics struct {
	OpsScheduled    uint64
	DeadlineMisses  uint64
	DroppedEnqueues uint64
	QueueDepthMax   int
}

// Graph is a directed operator graph executed by a single-threaded
// cooperative scheduler. The zero value is not usable; construct with
// New. A Graph may be used directly as a handle, or installed as the
// process-wide singleton via Create/ActiveSingleton/DestroySingleton for
// callers (the control-frame entry points) that have no way to carry a
// handle (spec §9 Design Notes).
type Graph struct {
	mu sync.Mutex

	log *zap.Logger

	epoch         uint64
	nextChannelID uint32

	channels  map[uint32]*Channel
	operators map[uint32]*operator

	registry *Registry

	rrCursor  int
	metrics   Metrics
	destroyed bool
}

// New creates an empty graph. log may be nil (zap.NewNop() is used).
func New(log *zap.Logger) *Graph {
	if log == nil {
		log = zap.NewNop()
	}
	return &Graph{
		log:       log,
		channels:  make(map[uint32]*Channel),
		operators: make(map[uint32]*operator),
		registry:  NewRegistry(),
	}
}

// Registry returns the graph's operator-kind registry, so callers can
// install the LLM runner and user extensions before adding operators
// that reference them by Kind.
func (g *Graph) Registry() *Registry {
	return g.registry
}

// AddChannel creates a bounded channel with the given capacity (must be
// in 1..=65535) and optional schema id (0 means untyped).
func (g *Graph) AddChannel(capacity int, schemaID uint32) (*Channel, error) {
	g.mu.Lock()
	defer g.mu.Unlock()

	if g.destroyed {
		return nil, ErrGraphDestroyed
	}
	if capacity < 1 || capacity > 65535 {
		return nil, fmt.Errorf("%w: %d", ErrInvalidCapacity, capacity)
	}

	id := g.nextChannelID
	g.nextChannelID++
	ch := newChannel(id, capacity, schemaID)
	g.channels[id] = ch
	return ch, nil
}

// AddOperator admits spec to the graph. If spec.Func is nil, it is
// resolved from the registry via spec.Kind (which must be non-nil in
// that case). Returns an error if the operator id is already in use, its
// stage is out of range, or its channels belong to a different graph.
func (g *Graph) AddOperator(spec Spec, kind *Kind) (uint32, error) {
	g.mu.Lock()
	defer g.mu.Unlock()

	if g.destroyed {
		return 0, ErrGraphDestroyed
	}
	if _, exists := g.operators[spec.ID]; exists {
		return 0, fmt.Errorf("%w: %d", ErrDuplicateOperator, spec.ID)
	}
	if spec.Stage > StageExplain {
		return 0, fmt.Errorf("%w: %d", ErrInvalidStage, spec.Stage)
	}
	if spec.InCh != nil && g.channels[spec.InCh.ID()] != spec.InCh {
		return 0, fmt.Errorf("%w: %d", ErrUnknownChannel, spec.InCh.ID())
	}
	if spec.OutCh != nil && g.channels[spec.OutCh.ID()] != spec.OutCh {
		return 0, fmt.Errorf("%w: %d", ErrUnknownChannel, spec.OutCh.ID())
	}

	if spec.Func == nil {
		if kind == nil {
			return 0, fmt.Errorf("graph: AddOperator: spec.Func is nil and no kind supplied for op %d", spec.ID)
		}
		fn, err := g.registry.Resolve(*kind)
		if err != nil {
			return 0, err
		}
		spec.Func = fn
	}

	g.operators[spec.ID] = newOperator(spec)
	return spec.ID, nil
}

// SetDeterministic attaches WCET/period/deadline timing constraints to an
// already-admitted operator.
func (g *Graph) SetDeterministic(opID uint32, wcetNs, periodNs, deadlineNs uint64) error {
	g.mu.Lock()
	defer g.mu.Unlock()

	if g.destroyed {
		return ErrGraphDestroyed
	}
	op, ok := g.operators[opID]
	if !ok {
		return fmt.Errorf("%w: %d", ErrUnknownOperator, opID)
	}
	op.spec.Det = &Determinism{WCETNs: wcetNs, PeriodNs: periodNs, DeadlineNs: deadlineNs}
	op.budgetRemainingNs = int64(wcetNs)
	return nil
}

// Channel returns the channel with the given id, if present.
func (g *Graph) Channel(id uint32) (*Channel, bool) {
	g.mu.Lock()
	defer g.mu.Unlock()
	ch, ok := g.channels[id]
	return ch, ok
}

// RunSteps performs up to n scheduling rounds and returns after n rounds
// regardless of progress; the caller polls for completion.
func (g *Graph) RunSteps(n int) error {
	g.mu.Lock()
	defer g.mu.Unlock()

	if g.destroyed {
		return ErrGraphDestroyed
	}
	for i := 0; i < n; i++ {
		g.runRoundLocked()
	}
	return nil
}

// runRoundLocked performs one scheduling round: every operator is
// considered once, in priority order with round-robin rotation within
// equal-priority groups, ties broken by lower id. Must be called with
// g.mu held.
func (g *Graph) runRoundLocked() {
	order := g.dispatchOrderLocked()
	now := nowNanos()

	for _, id := range order {
		op := g.operators[id]
		if !op.runnable(now) {
			continue
		}
		g.dispatchLocked(op, now)
	}

	g.rrCursor++
	g.epoch++

	for _, ch := range g.channels {
		if d := ch.Depth(); d > g.metrics.QueueDepthMax {
			g.metrics.QueueDepthMax = d
		}
	}
}

func (g *Graph) dispatchOrderLocked() []uint32 {
	ids := make([]uint32, 0, len(g.operators))
	for id := range g.operators {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool {
		pi, pj := g.operators[ids[i]].spec.Priority, g.operators[ids[j]].spec.Priority
		if pi != pj {
			return pi > pj
		}
		return ids[i] < ids[j]
	})

	out := make([]uint32, 0, len(ids))
	i := 0
	for i < len(ids) {
		j := i
		prio := g.operators[ids[i]].spec.Priority
		for j < len(ids) && g.operators[ids[j]].spec.Priority == prio {
			j++
		}
		group := ids[i:j]
		rot := g.rrCursor % len(group)
		out = append(out, group[rot:]...)
		out = append(out, group[:rot]...)
		i = j
	}
	return out
}

// dispatchLocked executes one operator's func exactly once. A panic
// inside func is fatal to the graph: it marks the graph destroyed and
// re-panics so the caller's recovery policy (destroy and recreate)
// applies. Must be called with g.mu held.
func (g *Graph) dispatchLocked(op *operator, nowNs int64) {
	defer func() {
		if r := recover(); r != nil {
			g.destroyed = true
			panic(r)
		}
	}()

	var input *Tensor
	if !op.isSource() {
		t, ok := op.spec.InCh.TryDequeue()
		if !ok {
			return
		}
		input = t
	}

	start := time.Now()
	output, err := op.spec.Func(input, Context{OperatorID: op.spec.ID, Epoch: g.epoch, Metrics: g.metrics})
	elapsedNs := time.Since(start).Nanoseconds()

	g.metrics.OpsScheduled++

	if err != nil {
		g.log.Warn("operator func returned error", zap.Uint32("op_id", op.spec.ID), zap.Error(err))
		return
	}

	if op.spec.Det != nil {
		op.budgetRemainingNs -= elapsedNs
		if uint64(elapsedNs) > op.spec.Det.DeadlineNs {
			g.metrics.DeadlineMisses++
			op.lastReleaseNs = nowNs
			op.periodStarted = true
			op.budgetRemainingNs = int64(op.spec.Det.WCETNs)
			return
		}
		if op.budgetRemainingNs <= 0 {
			op.lastReleaseNs = nowNs
			op.periodStarted = true
			op.budgetRemainingNs = int64(op.spec.Det.WCETNs)
		}
	}

	if output == nil || op.spec.OutCh == nil {
		return
	}

	res, _ := op.spec.OutCh.TryEnqueue(output)
	if res == enqueueSchemaMismatch {
		g.metrics.DroppedEnqueues++
	}
}

// Snapshot returns a copy of the graph's current metrics.
func (g *Graph) Snapshot() Metrics {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.metrics
}

// Destroy drains all channels (deallocating any resident tensors) and
// marks the graph unusable. add_operator/add_channel/RunSteps fail after
// Destroy.
func (g *Graph) Destroy() error {
	g.mu.Lock()
	defer g.mu.Unlock()

	if g.destroyed {
		return ErrGraphDestroyed
	}
	for _, ch := range g.channels {
		ch.drain()
	}
	g.destroyed = true
	return nil
}
