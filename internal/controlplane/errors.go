package controlplane

import "errors"

var (
	// ErrFrameMalformed is returned for a frame with a bad magic/version or
	// a command-specific payload that is too short or otherwise invalid.
	ErrFrameMalformed = errors.New("controlplane: malformed frame")

	// ErrFrameTruncated is returned when fewer bytes are available than
	// the frame's own header or payload_length requires.
	ErrFrameTruncated = errors.New("controlplane: truncated frame")

	// ErrFrameAuth is returned when a frame's embedded token does not
	// match the expected control-plane auth token.
	ErrFrameAuth = errors.New("controlplane: bad auth token")

	// ErrNoGraph is returned when a graph-mutating command arrives before
	// graph_create (or after destroy).
	ErrNoGraph = errors.New("controlplane: no active graph")

	// ErrNoOperator is returned when set_deterministic arrives before the
	// server has recorded any add_operator since the last graph_create.
	ErrNoOperator = errors.New("controlplane: set_deterministic with no preceding add_operator")
)
