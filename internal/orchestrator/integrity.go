package orchestrator

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"math"
	"sync"
	"time"

	"go.uber.org/zap"
)

// IntegrityViolation records why a coordinated decision was rejected by the
// integrity audit before it could be chained and logged.
type IntegrityViolation struct {
	Reason    string
	Timestamp time.Time
}

func (v *IntegrityViolation) Error() string {
	return fmt.Sprintf("orchestrator integrity violation: %s", v.Reason)
}

// AuditedDecision is a Coordinated outcome with its audit trail attached.
type AuditedDecision struct {
	Coordinated
	DecisionHash string
	ParentHash   string
	Timestamp    time.Time
}

// Integrity chains every coordinated decision into a SHA-256 Merkle-style
// audit log and rejects decisions with out-of-bounds or non-monotonic
// inputs before they are recorded.
type Integrity struct {
	mu               sync.Mutex
	lastHash         string
	lastTimestamp    time.Time
	decisionsChained int64
	violationCount   int64
	log              *zap.Logger
}

// NewIntegrity creates an audit chain rooted at the current time.
func NewIntegrity(log *zap.Logger) *Integrity {
	if log == nil {
		log = zap.NewNop()
	}
	return &Integrity{lastTimestamp: time.Now(), log: log}
}

// Record validates a coordinated decision and, if sound, appends it to the
// chain. now must be non-decreasing between calls and confidence fields
// must lie in [0, 1].
func (ig *Integrity) Record(c Coordinated, now time.Time) (AuditedDecision, error) {
	ig.mu.Lock()
	defer ig.mu.Unlock()

	if now.Before(ig.lastTimestamp) {
		return AuditedDecision{}, ig.violation(fmt.Sprintf("time went backwards: %v < %v", now, ig.lastTimestamp))
	}
	if math.IsNaN(c.Confidence) || math.IsInf(c.Confidence, 0) {
		return AuditedDecision{}, ig.violation(fmt.Sprintf("confidence is NaN or Inf: %v", c.Confidence))
	}
	if c.Confidence < 0 || c.Confidence > 1 {
		return AuditedDecision{}, ig.violation(fmt.Sprintf("confidence %.4f outside [0,1]", c.Confidence))
	}

	hash, err := ig.computeHash(c, now)
	if err != nil {
		return AuditedDecision{}, fmt.Errorf("orchestrator: hashing coordinated decision: %w", err)
	}

	audited := AuditedDecision{
		Coordinated:  c,
		DecisionHash: hash,
		ParentHash:   ig.lastHash,
		Timestamp:    now,
	}

	ig.lastHash = hash
	ig.lastTimestamp = now
	ig.decisionsChained++

	ig.log.Debug("coordinated decision recorded",
		zap.String("kind", c.Kind.String()),
		zap.String("hash", hash[:16]),
		zap.Int64("chained", ig.decisionsChained),
	)

	return audited, nil
}

func (ig *Integrity) computeHash(c Coordinated, now time.Time) (string, error) {
	canonical := map[string]interface{}{
		"kind":          c.Kind.String(),
		"action":        c.Action.String(),
		"confidence":    fmt.Sprintf("%.8f", c.Confidence),
		"overridden_by": c.OverriddenBy.String(),
		"defer":         c.DeferToHuman,
		"timestamp":     now.UnixNano(),
		"parent":        ig.lastHash,
	}
	jsonBytes, err := json.Marshal(canonical)
	if err != nil {
		return "", err
	}
	sum := sha256.Sum256(jsonBytes)
	return hex.EncodeToString(sum[:]), nil
}

func (ig *Integrity) violation(reason string) error {
	ig.violationCount++
	ig.log.Warn("orchestrator integrity violation", zap.String("reason", reason), zap.Int64("total", ig.violationCount))
	return &IntegrityViolation{Reason: reason, Timestamp: time.Now()}
}

// Stats reports the audit chain's bookkeeping counters.
type Stats struct {
	DecisionsChained int64
	ViolationCount   int64
	LastHash         string
}

// Snapshot returns a copy of the current audit counters.
func (ig *Integrity) Snapshot() Stats {
	ig.mu.Lock()
	defer ig.mu.Unlock()
	return Stats{
		DecisionsChained: ig.decisionsChained,
		ViolationCount:   ig.violationCount,
		LastHash:         ig.lastHash,
	}
}
