package orchestrator

import "errors"

var (
	// ErrNoDecisions is returned when Coordinate is called with an empty
	// decision set.
	ErrNoDecisions = errors.New("orchestrator: no decisions to coordinate")
	// ErrInternal is the sentinel for unexpected invariant violations.
	// Coordinate does not return it and does not range-check confidence.
	ErrInternal = errors.New("orchestrator: internal error")
)
