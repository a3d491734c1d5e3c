package orchestrator

// Kind identifies which variant of Coordinated a result carries.
type Kind uint8

const (
	// Unanimous: every decision proposed the same action.
	Unanimous Kind = iota
	// Majority: a strict majority (>n/2) of decisions agree on an action.
	Majority
	// SafetyOverride: a single decision (safety-critical or highest
	// effective priority) was chosen over the rest.
	SafetyOverride
	// NoConsensus: no rule above resolved the set; defer to a human.
	NoConsensus
)

func (k Kind) String() string {
	switch k {
	case Unanimous:
		return "unanimous"
	case Majority:
		return "majority"
	case SafetyOverride:
		return "safety_override"
	case NoConsensus:
		return "no_consensus"
	default:
		return "unknown_kind"
	}
}

// conflictType classifies why a pair of decisions was flagged during
// conflict detection.
type conflictType uint8

const (
	conflictDirectOpposition conflictType = iota
	conflictConfidenceDisparity
)

type conflictRecord struct {
	i, j int
	typ  conflictType
}

// Coordinated is the outcome of reconciling a set of agent decisions. Only
// the fields relevant to Kind are populated; zero values elsewhere.
type Coordinated struct {
	Kind Kind

	// Action is the resolved action, populated for every Kind except
	// NoConsensus.
	Action Action
	// Confidence is the representative confidence for the result: the
	// average confidence for Unanimous/Majority, the winning decision's
	// confidence for SafetyOverride.
	Confidence float64
	// Agents lists the agents whose decisions contributed to Action, in
	// input order. Populated for Unanimous and Majority.
	Agents []AgentType

	// OverriddenBy is the agent whose decision won, populated for
	// SafetyOverride.
	OverriddenBy AgentType
	// Reason explains why the override occurred, populated for
	// SafetyOverride.
	Reason string
	// OverriddenAgents lists the agents whose decisions were superseded,
	// populated for SafetyOverride.
	OverriddenAgents []AgentType

	// DeferToHuman is true for NoConsensus.
	DeferToHuman bool
	// ConflictingActions lists the distinct actions that could not be
	// reconciled, populated for NoConsensus.
	ConflictingActions []Action
}

// Coordinate reconciles a set of agent decisions into a single outcome.
//
// Resolution order:
//  1. Reject an empty decision set.
//  2. Detect pairwise conflicts: incompatible actions are a direct
//     opposition; a confidence gap over 0.4 is attached to the pair as a
//     disparity but does not by itself make the pair conflicting.
//  3. If no pair is in direct opposition, the set is conflict-free: all
//     actions equal resolves to Unanimous, otherwise a strict majority
//     bucket resolves to Majority, otherwise NoConsensus.
//  4. If any pair is in direct opposition, a safety override takes
//     precedence over every other rule: any decision from CrashPredictor
//     with confidence over 0.8 wins outright.
//  5. Otherwise the first detected conflict is resolved by effective
//     priority (direct opposition) or raw confidence (disparity only).
func Coordinate(decisions []Decision) (Coordinated, error) {
	if len(decisions) == 0 {
		return Coordinated{}, ErrNoDecisions
	}

	conflicts := detectConflicts(decisions)

	if !hasDirectOpposition(conflicts) {
		return coordinateConflictFree(decisions), nil
	}

	if c, ok := safetyOverride(decisions); ok {
		return c, nil
	}

	return resolveByPriority(decisions, conflicts), nil
}

func detectConflicts(decisions []Decision) []conflictRecord {
	var out []conflictRecord
	for i := 0; i < len(decisions); i++ {
		for j := i + 1; j < len(decisions); j++ {
			a, b := decisions[i], decisions[j]
			if !actionsCompatible(a.Action, b.Action) {
				out = append(out, conflictRecord{i: i, j: j, typ: conflictDirectOpposition})
				continue
			}
			if confidenceDisparity(a.Confidence, b.Confidence) > 0.4 {
				out = append(out, conflictRecord{i: i, j: j, typ: conflictConfidenceDisparity})
			}
		}
	}
	return out
}

func hasDirectOpposition(conflicts []conflictRecord) bool {
	for _, c := range conflicts {
		if c.typ == conflictDirectOpposition {
			return true
		}
	}
	return false
}

func confidenceDisparity(a, b float64) float64 {
	if a >= b {
		return a - b
	}
	return b - a
}

func coordinateConflictFree(decisions []Decision) Coordinated {
	if allSameAction(decisions) {
		agents := make([]AgentType, len(decisions))
		var sum float64
		for i, d := range decisions {
			agents[i] = d.Agent
			sum += d.Confidence
		}
		return Coordinated{
			Kind:       Unanimous,
			Action:     decisions[0].Action,
			Confidence: sum / float64(len(decisions)),
			Agents:     agents,
		}
	}

	return majorityOrNoConsensus(decisions)
}

func allSameAction(decisions []Decision) bool {
	for _, d := range decisions[1:] {
		if d.Action != decisions[0].Action {
			return false
		}
	}
	return true
}

func majorityOrNoConsensus(decisions []Decision) Coordinated {
	type bucket struct {
		action  Action
		agents  []AgentType
		sumConf float64
	}
	var buckets []*bucket
	find := func(a Action) *bucket {
		for _, b := range buckets {
			if b.action == a {
				return b
			}
		}
		return nil
	}
	for _, d := range decisions {
		b := find(d.Action)
		if b == nil {
			b = &bucket{action: d.Action}
			buckets = append(buckets, b)
		}
		b.agents = append(b.agents, d.Agent)
		b.sumConf += d.Confidence
	}

	n := len(decisions)
	for _, b := range buckets {
		if len(b.agents)*2 > n {
			return Coordinated{
				Kind:       Majority,
				Action:     b.action,
				Confidence: b.sumConf / float64(len(b.agents)),
				Agents:     b.agents,
			}
		}
	}

	actions := make([]Action, len(buckets))
	for i, b := range buckets {
		actions[i] = b.action
	}
	return Coordinated{
		Kind:               NoConsensus,
		DeferToHuman:       true,
		ConflictingActions: actions,
	}
}

func safetyOverride(decisions []Decision) (Coordinated, bool) {
	for _, d := range decisions {
		if d.Agent != CrashPredictor || d.Confidence <= 0.8 {
			continue
		}
		reason := d.Explanation
		if reason == "" {
			reason = "High crash risk detected"
		}
		return Coordinated{
			Kind:             SafetyOverride,
			Action:           d.Action,
			Confidence:       d.Confidence,
			OverriddenBy:     d.Agent,
			Reason:           reason,
			OverriddenAgents: otherAgents(decisions, d.Agent),
		}, true
	}
	return Coordinated{}, false
}

func resolveByPriority(decisions []Decision, conflicts []conflictRecord) Coordinated {
	first := conflicts[0]

	if first.typ == conflictConfidenceDisparity {
		a, b := decisions[first.i], decisions[first.j]
		winner := a
		if b.Confidence > a.Confidence {
			winner = b
		}
		return Coordinated{
			Kind:             SafetyOverride,
			Action:           winner.Action,
			Confidence:       winner.Confidence,
			OverriddenBy:     winner.Agent,
			Reason:           defaultReason(winner, "Priority-based resolution"),
			OverriddenAgents: otherAgents(decisions, winner.Agent),
		}
	}

	winner := decisions[0]
	for _, d := range decisions[1:] {
		if d.effectivePriority() > winner.effectivePriority() {
			winner = d
		}
	}
	return Coordinated{
		Kind:             SafetyOverride,
		Action:           winner.Action,
		Confidence:       winner.Confidence,
		OverriddenBy:     winner.Agent,
		Reason:           defaultReason(winner, "Priority-based resolution"),
		OverriddenAgents: otherAgents(decisions, winner.Agent),
	}
}

func defaultReason(d Decision, fallback string) string {
	if d.Explanation != "" {
		return d.Explanation
	}
	return fallback
}

func otherAgents(decisions []Decision, except AgentType) []AgentType {
	var out []AgentType
	seenWinner := false
	for _, d := range decisions {
		if d.Agent == except && !seenWinner {
			seenWinner = true
			continue
		}
		out = append(out, d.Agent)
	}
	return out
}
