// Package orchestrator coordinates decisions from multiple kernel agents
// (crash predictor, scheduler, fine-tuner, metrics) into a single action,
// resolving conflicts by safety precedence and weighted priority.
package orchestrator

// AgentType identifies the kernel subsystem that produced a Decision.
type AgentType uint8

const (
	CrashPredictor AgentType = iota
	StateInference
	TransformerScheduler
	FineTuner
	Metrics
)

func (a AgentType) String() string {
	switch a {
	case CrashPredictor:
		return "crash_predictor"
	case StateInference:
		return "state_inference"
	case TransformerScheduler:
		return "transformer_scheduler"
	case FineTuner:
		return "fine_tuner"
	case Metrics:
		return "metrics"
	default:
		return "unknown_agent"
	}
}

// BasePriority returns the static priority weight that is multiplied by
// confidence to form the effective priority used in priority resolution.
func (a AgentType) BasePriority() int {
	switch a {
	case CrashPredictor:
		return 100
	case StateInference:
		return 80
	case TransformerScheduler:
		return 60
	case FineTuner:
		return 40
	case Metrics:
		return 20
	default:
		return 0
	}
}

// Action is a concrete remediation or continuation action an agent proposes.
type Action uint8

const (
	PreventiveCompaction Action = iota
	IncreasePriority
	CompactMemory
	ContinueNormal
	Stop
	TriggerRetraining
	NoAction
)

func (a Action) String() string {
	switch a {
	case PreventiveCompaction:
		return "preventive_compaction"
	case IncreasePriority:
		return "increase_priority"
	case CompactMemory:
		return "compact_memory"
	case ContinueNormal:
		return "continue_normal"
	case Stop:
		return "stop"
	case TriggerRetraining:
		return "trigger_retraining"
	case NoAction:
		return "no_action"
	default:
		return "unknown_action"
	}
}

func isCompaction(a Action) bool {
	return a == PreventiveCompaction || a == CompactMemory
}

// actionsCompatible reports whether two proposed actions can coexist without
// being treated as a direct conflict. The relation is symmetric.
func actionsCompatible(a, b Action) bool {
	if a == b {
		return true
	}
	if a == NoAction || b == NoAction {
		return true
	}
	if (a == ContinueNormal && b == IncreasePriority) || (b == ContinueNormal && a == IncreasePriority) {
		return true
	}
	if (isCompaction(a) && b == IncreasePriority) || (isCompaction(b) && a == IncreasePriority) {
		return false
	}
	if (a == Stop && b == ContinueNormal) || (b == Stop && a == ContinueNormal) {
		return false
	}
	return true
}

// Decision is a single agent's proposed action with its confidence in it.
type Decision struct {
	Agent       AgentType
	Action      Action
	Confidence  float64
	Explanation string
}

func (d Decision) effectivePriority() float64 {
	return float64(d.Agent.BasePriority()) * d.Confidence
}
