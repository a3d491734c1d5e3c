package graph

import "errors"

// Sentinel errors for the graph runtime's error taxonomy (spec §7).
var (
	ErrInvalidCapacity       = errors.New("graph: invalid channel capacity")
	ErrInvalidStage          = errors.New("graph: invalid operator stage")
	ErrChannelSchemaMismatch = errors.New("graph: channel schema mismatch")
	ErrNoActiveGraph         = errors.New("graph: no active graph")
	ErrScheduleDeadlineMissed = errors.New("graph: operator deadline missed")
	ErrGraphDestroyed        = errors.New("graph: graph has been destroyed")
	ErrUnknownChannel        = errors.New("graph: unknown channel id")
	ErrUnknownOperator       = errors.New("graph: unknown operator id")
	ErrDuplicateOperator     = errors.New("graph: operator id already in use")
)
