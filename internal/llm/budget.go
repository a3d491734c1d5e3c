package llm

import (
	"sync"
	"time"
)

// Budget is the LLM manager's declarative per-period token budget.
// Admission and remaining-balance tracking are mutex-guarded; rollover
// to a new period happens lazily inside Admit rather than on a
// background ticker, since spec §4.4's model is "used_tokens_this_period
// resets at period boundaries observed on admission", not a
// continuously-refilling bucket.
type Budget struct {
	mu sync.Mutex

	wcetCycles         uint64
	periodNs           int64
	maxTokensPerPeriod int

	usedThisPeriod int
	periodStart    time.Time
}

// NewBudget creates a Budget with the given configuration. A zero
// maxTokensPerPeriod means unlimited (Admit always succeeds).
func NewBudget(wcetCycles uint64, periodNs int64, maxTokensPerPeriod int) *Budget {
	return &Budget{
		wcetCycles:         wcetCycles,
		periodNs:           periodNs,
		maxTokensPerPeriod: maxTokensPerPeriod,
		periodStart:        time.Now(),
	}
}

// Configure updates the budget's parameters. Any zero argument leaves
// the corresponding field unchanged (spec's configure_budget optional
// parameters).
func (b *Budget) Configure(wcetCycles uint64, periodNs int64, maxTokensPerPeriod int) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if wcetCycles != 0 {
		b.wcetCycles = wcetCycles
	}
	if periodNs != 0 {
		b.periodNs = periodNs
	}
	if maxTokensPerPeriod != 0 {
		b.maxTokensPerPeriod = maxTokensPerPeriod
	}
}

// Admit reserves maxTokens against the current period's budget. If the
// period boundary has passed since the last call, usedThisPeriod resets
// first. Returns ErrTokenBudgetExceeded if used+maxTokens would exceed
// the configured cap.
func (b *Budget) Admit(maxTokens int) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.rolloverLocked()

	if b.maxTokensPerPeriod > 0 && b.usedThisPeriod+maxTokens > b.maxTokensPerPeriod {
		return ErrTokenBudgetExceeded
	}
	b.usedThisPeriod += maxTokens
	return nil
}

// Release gives back the difference between a reserved maxTokens
// allotment and the tokens actually emitted, so a short inference
// doesn't permanently consume its full worst-case reservation.
func (b *Budget) Release(reserved, actuallyEmitted int) {
	if reserved <= actuallyEmitted {
		return
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	b.usedThisPeriod -= reserved - actuallyEmitted
	if b.usedThisPeriod < 0 {
		b.usedThisPeriod = 0
	}
}

func (b *Budget) rolloverLocked() {
	if b.periodNs <= 0 {
		return
	}
	if time.Since(b.periodStart) >= time.Duration(b.periodNs) {
		b.usedThisPeriod = 0
		b.periodStart = time.Now()
	}
}

// UsedThisPeriod returns the current period's reserved token count.
func (b *Budget) UsedThisPeriod() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.rolloverLocked()
	return b.usedThisPeriod
}

// WCETCycles returns the configured worst-case-execution-time budget in
// cycles, used by the manager to flag deadline misses.
func (b *Budget) WCETCycles() uint64 {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.wcetCycles
}
