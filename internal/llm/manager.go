package llm

import (
	"crypto/ed25519"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"github.com/agentcore/agentcore/internal/ringbuf"
)

const latencyHistoryCapacity = 100

// InferResult is the outcome of a completed (or deadline-missed)
// blocking inference.
type InferResult struct {
	InferID       uint64
	TokensEmitted int
	LatencyUs     int64
	Output        string
}

// Manager owns the currently-loaded model and all active/completed
// sessions. The loaded-model pointer is protected by a reader-writer
// lock (many Infer callers, rare LoadModelPackage), per spec §5; session
// concurrency is bounded by a counting semaphore sized at construction,
// generalizing spec §9's single-caller busy flag to any number of
// concurrent callers.
type Manager struct {
	modelMu sync.RWMutex
	model   *ModelMetadata

	budget   *Budget
	inflight chan struct{}

	sessionsMu sync.Mutex
	sessions   map[uint64]*Session
	nextID     uint64

	deadlineMisses atomic.Uint64
	latencies      *ringbuf.Ring[float64]

	pubKey ed25519.PublicKey
	log    *zap.Logger
}

// NewManager creates a Manager. maxConcurrent bounds in-flight
// inferences (spec's TooManyConcurrent). pubKey may be nil/empty to
// disable signature verification (used by load_model_with_meta-style
// test setups); log may be nil.
func NewManager(maxConcurrent int, budget *Budget, pubKey ed25519.PublicKey, log *zap.Logger) *Manager {
	if log == nil {
		log = zap.NewNop()
	}
	if maxConcurrent < 1 {
		maxConcurrent = 1
	}
	return &Manager{
		budget:    budget,
		inflight:  make(chan struct{}, maxConcurrent),
		sessions:  make(map[uint64]*Session),
		latencies: ringbuf.NewRing[float64](latencyHistoryCapacity),
		pubKey:    pubKey,
		log:       log,
	}
}

// LoadModelPackage performs the full model-loading sequence (spec §4.4):
// container validation, hash recomputation, signature verification,
// metadata parsing, and dequantization table construction. On any
// failure the previously loaded model (if any) remains in place.
func (m *Manager) LoadModelPackage(id string, raw []byte, hash [32]byte, sig []byte) error {
	gguf, err := verifyModelPackage(raw, hash, sig, m.pubKey)
	if err != nil {
		return err
	}
	meta, err := buildMetadata(id, hash, sig, uint64(len(raw)), gguf)
	if err != nil {
		return err
	}

	m.modelMu.Lock()
	m.model = meta
	m.modelMu.Unlock()
	return nil
}

// LoadModelWithMeta installs pre-verified metadata directly, bypassing
// signature checking (spec's load_model_with_meta, used by tests and
// out-of-band verification pipelines).
func (m *Manager) LoadModelWithMeta(meta *ModelMetadata) {
	m.modelMu.Lock()
	defer m.modelMu.Unlock()
	m.model = meta
}

// LoadedModel returns the currently loaded model, or nil.
func (m *Manager) LoadedModel() *ModelMetadata {
	m.modelMu.RLock()
	defer m.modelMu.RUnlock()
	return m.model
}

func (m *Manager) acquireSlot() error {
	select {
	case m.inflight <- struct{}{}:
		return nil
	default:
		return ErrTooManyConcurrent
	}
}

func (m *Manager) releaseSlot() {
	<-m.inflight
}

func (m *Manager) newSessionID() uint64 {
	m.sessionsMu.Lock()
	defer m.sessionsMu.Unlock()
	m.nextID++
	return m.nextID
}

func (m *Manager) registerSession(s *Session) {
	m.sessionsMu.Lock()
	defer m.sessionsMu.Unlock()
	m.sessions[s.ID] = s
}

// Session looks up a session by id.
func (m *Manager) Session(id uint64) (*Session, bool) {
	m.sessionsMu.Lock()
	defer m.sessionsMu.Unlock()
	s, ok := m.sessions[id]
	return s, ok
}

// Infer runs a blocking single-response inference. deadline == 0 means
// no wall-clock cutoff.
func (m *Manager) Infer(prompt string, maxTokens int, deadline time.Duration) (*InferResult, error) {
	if m.LoadedModel() == nil {
		return nil, ErrNoModelLoaded
	}
	if err := m.acquireSlot(); err != nil {
		return nil, err
	}
	defer m.releaseSlot()

	if m.budget != nil {
		if err := m.budget.Admit(maxTokens); err != nil {
			return nil, err
		}
	}

	id := m.newSessionID()
	sess := newSession(id, m.LoadedModel().ID, prompt, maxTokens, maxTokens)
	sess.reservedTokens = maxTokens
	m.registerSession(sess)

	sess.mu.Lock()
	sess.State = SessionRunning
	sess.mu.Unlock()

	start := time.Now()
	var deadlineAt time.Time
	hasDeadline := deadline > 0
	if hasDeadline {
		deadlineAt = start.Add(deadline)
	}

	var tokens []string
	missedDeadline := false
	for i := 0; i < maxTokens; i++ {
		if hasDeadline && time.Now().After(deadlineAt) {
			missedDeadline = true
			break
		}
		if sess.cancelPending() {
			break
		}
		tokens = append(tokens, generateToken(i))
	}
	elapsed := time.Since(start)

	sess.mu.Lock()
	sess.TokensEmitted = len(tokens)
	sess.OutputBuffer = tokens
	cancelled := sess.cancelRequested
	switch {
	case missedDeadline:
		sess.State = SessionDeadlineMissed
	case cancelled:
		sess.State = SessionCancelled
	default:
		sess.State = SessionDone
	}
	finalState := sess.State
	sess.mu.Unlock()

	if m.budget != nil {
		m.budget.Release(sess.reservedTokens, len(tokens))
	}

	m.recordLatency(elapsed)
	if m.budget != nil && uint64(elapsed.Nanoseconds()) > m.budget.WCETCycles() && m.budget.WCETCycles() > 0 {
		m.deadlineMisses.Add(1)
	}

	result := &InferResult{
		InferID:       id,
		TokensEmitted: len(tokens),
		LatencyUs:     elapsed.Microseconds(),
		Output:        joinTokens(tokens),
	}

	switch finalState {
	case SessionDeadlineMissed:
		return result, ErrInferenceTimeout
	case SessionCancelled:
		return result, ErrInferenceCancelled
	default:
		return result, nil
	}
}

// InferStream admits a streaming session and returns it immediately
// without generating tokens eagerly: each CtlPoll call produces up to
// chunk new tokens on demand. This keeps streaming progress fully
// deterministic under test without requiring a background goroutine or
// wall-clock pacing (see DESIGN.md).
func (m *Manager) InferStream(prompt string, maxTokens, chunk int) (*Session, error) {
	if m.LoadedModel() == nil {
		return nil, ErrNoModelLoaded
	}
	if err := m.acquireSlot(); err != nil {
		return nil, err
	}
	m.releaseSlot() // streaming sessions don't hold the concurrency slot between polls

	if m.budget != nil {
		if err := m.budget.Admit(maxTokens); err != nil {
			return nil, err
		}
	}
	if chunk < 1 {
		chunk = 1
	}

	id := m.newSessionID()
	sess := newSession(id, m.LoadedModel().ID, prompt, maxTokens, chunk)
	sess.reservedTokens = maxTokens
	sess.mu.Lock()
	sess.State = SessionStreaming
	sess.mu.Unlock()
	m.registerSession(sess)
	return sess, nil
}

// CtlPoll is a non-blocking poll of a streaming session. It returns the
// number of newly produced tokens (bounded by both max and the
// session's chunk size), the items themselves, and whether the session
// has reached a terminal state.
func (m *Manager) CtlPoll(id uint64, max int) (nNew int, done bool, items []string, err error) {
	sess, ok := m.Session(id)
	if !ok {
		return 0, false, nil, ErrSessionNotFound
	}

	sess.mu.Lock()
	defer sess.mu.Unlock()

	if sess.State.terminal() {
		return 0, true, nil, nil
	}

	if sess.cancelRequested {
		sess.State = SessionCancelled
		if m.budget != nil {
			m.budget.Release(sess.reservedTokens, sess.TokensEmitted)
		}
		return 0, true, nil, nil
	}

	remaining := sess.MaxTokens - sess.TokensEmitted
	if remaining <= 0 {
		sess.State = SessionDone
		return 0, true, nil, nil
	}

	batch := min3(max, sess.ChunkSize, remaining)
	newTokens := make([]string, 0, batch)
	for i := 0; i < batch; i++ {
		newTokens = append(newTokens, generateToken(sess.TokensEmitted+i))
	}
	sess.TokensEmitted += batch
	sess.OutputBuffer = append(sess.OutputBuffer, newTokens...)

	if sess.TokensEmitted >= sess.MaxTokens {
		sess.State = SessionDone
		if m.budget != nil {
			m.budget.Release(sess.reservedTokens, sess.TokensEmitted)
		}
	}

	return batch, sess.State == SessionDone, newTokens, nil
}

// CtlCancelID requests cooperative cancellation of one session.
func (m *Manager) CtlCancelID(id uint64) error {
	sess, ok := m.Session(id)
	if !ok {
		return ErrSessionNotFound
	}
	sess.RequestCancel()
	return nil
}

// CtlCancel requests cooperative cancellation of every non-terminal
// session.
func (m *Manager) CtlCancel() {
	m.sessionsMu.Lock()
	defer m.sessionsMu.Unlock()
	for _, s := range m.sessions {
		s.RequestCancel()
	}
}

// DeadlineMisses returns the lifetime count of inferences whose elapsed
// time exceeded the configured WCET budget.
func (m *Manager) DeadlineMisses() uint64 {
	return m.deadlineMisses.Load()
}

func (m *Manager) recordLatency(d time.Duration) {
	m.latencies.Push(float64(d.Microseconds()))
}

// JitterP99 returns the 99th-percentile latency (microseconds) over the
// retained inference history.
func (m *Manager) JitterP99() float64 {
	samples := m.latencies.Iter()
	if len(samples) == 0 {
		return 0
	}
	sorted := append([]float64(nil), samples...)
	sort.Float64s(sorted)
	idx := int(float64(len(sorted)-1) * 0.99)
	return sorted[idx]
}

func min3(a, b, c int) int {
	m := a
	if b < m {
		m = b
	}
	if c < m {
		m = c
	}
	return m
}

func joinTokens(tokens []string) string {
	out := ""
	for i, t := range tokens {
		if i > 0 {
			out += " "
		}
		out += t
	}
	return out
}
