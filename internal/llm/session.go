package llm

import (
	"strconv"
	"sync"
	"time"
)

// SessionState is a node in the LLM session state machine (spec §4.4):
//
//	Queued --admit--> Running --emit--> Streaming --final--> Done
//	   |                  |                  |
//	   +-reject-+         +-timeout-+        +-cancel--> Cancelled
//	            v                   v         v
//	        Rejected           DeadlineMissed
type SessionState uint8

const (
	SessionQueued SessionState = iota
	SessionRunning
	SessionStreaming
	SessionDone
	SessionRejected
	SessionCancelled
	SessionDeadlineMissed
)

func (s SessionState) String() string {
	switch s {
	case SessionQueued:
		return "queued"
	case SessionRunning:
		return "running"
	case SessionStreaming:
		return "streaming"
	case SessionDone:
		return "done"
	case SessionRejected:
		return "rejected"
	case SessionCancelled:
		return "cancelled"
	case SessionDeadlineMissed:
		return "deadline_missed"
	default:
		return "unknown"
	}
}

func (s SessionState) terminal() bool {
	switch s {
	case SessionDone, SessionRejected, SessionCancelled, SessionDeadlineMissed:
		return true
	default:
		return false
	}
}

// Session is one inference request's mutable state. Transitions are
// serialized by mu, one mutex per instance.
type Session struct {
	mu sync.Mutex

	ID        uint64
	ModelID   string
	Prompt    string
	PromptLen int
	MaxTokens int
	ChunkSize int // MaxTokens for non-streaming infer

	TokensEmitted int
	State         SessionState

	Deadline    time.Time
	HasDeadline bool
	StartedAt   time.Time

	OutputBuffer []string

	cancelRequested bool
	reservedTokens  int
}

func newSession(id uint64, modelID, prompt string, maxTokens, chunkSize int) *Session {
	return &Session{
		ID:        id,
		ModelID:   modelID,
		Prompt:    prompt,
		PromptLen: len(prompt),
		MaxTokens: maxTokens,
		ChunkSize: chunkSize,
		State:     SessionQueued,
		StartedAt: time.Now(),
	}
}

// Snapshot returns a copy of the session's externally-visible fields.
func (s *Session) Snapshot() Session {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := *s
	cp.OutputBuffer = append([]string(nil), s.OutputBuffer...)
	return cp
}

// RequestCancel sets the cooperative cancel flag, read between token
// boundaries; any in-flight token completes before the transition to
// Cancelled takes effect.
func (s *Session) RequestCancel() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.cancelRequested = true
}

func (s *Session) cancelPending() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.cancelRequested
}

// generateToken produces one deterministic placeholder token. A real
// model backend would replace this with actual decode output; the
// session/budget/state-machine semantics around it are what spec §4.4
// actually specifies and tests.
func generateToken(n int) string {
	const alphabet = "abcdefghijklmnopqrstuvwxyz"
	return string(alphabet[n%len(alphabet)]) + strconv.Itoa(n)
}
