package graph

import "fmt"

// KindTag identifies the built-in operator kinds the runtime ships with.
// This is the tagged-variant substitute for a raw function-pointer
// reference (spec §9 Design Notes): control-frame deserialization only
// ever carries a KindTag plus, for UserExtension, a numeric id — never a
// function pointer.
type KindTag uint8

const (
	KindPassThrough KindTag = iota
	KindLLMRun
	KindMetricsTap
	KindUserExtension
)

// Kind names a built-in operator, or a user extension by numeric id.
type Kind struct {
	Tag         KindTag
	ExtensionID uint32 // meaningful only when Tag == KindUserExtension
}

// Registry resolves a Kind to an OpFunc. The zero value is usable; call
// NewRegistry to get one pre-populated with the built-ins.
type Registry struct {
	extensions map[uint32]OpFunc
	llmRunner  OpFunc
	metricsTap OpFunc
}

// NewRegistry returns a Registry with PassThrough wired in and empty
// slots for the LLM runner and user extensions.
func NewRegistry() *Registry {
	return &Registry{extensions: make(map[uint32]OpFunc)}
}

// RegisterExtension binds a user-supplied OpFunc to a numeric extension
// id, resolvable later via Kind{Tag: KindUserExtension, ExtensionID: id}.
func (r *Registry) RegisterExtension(id uint32, fn OpFunc) {
	if r.extensions == nil {
		r.extensions = make(map[uint32]OpFunc)
	}
	r.extensions[id] = fn
}

// SetLLMRunner installs the function backing KindLLMRun operators. The
// LLM session manager (internal/llm) supplies this at wiring time so the
// graph package never imports internal/llm directly.
func (r *Registry) SetLLMRunner(fn OpFunc) {
	r.llmRunner = fn
}

// SetMetricsTap installs the function backing KindMetricsTap operators.
func (r *Registry) SetMetricsTap(fn OpFunc) {
	r.metricsTap = fn
}

// Resolve returns the OpFunc for kind, or an error if it is not
// registered.
func (r *Registry) Resolve(kind Kind) (OpFunc, error) {
	switch kind.Tag {
	case KindPassThrough:
		return passThrough, nil
	case KindLLMRun:
		if r.llmRunner == nil {
			return nil, fmt.Errorf("graph: registry: LLMRun kind requested but no runner installed")
		}
		return r.llmRunner, nil
	case KindMetricsTap:
		if r.metricsTap == nil {
			return nil, fmt.Errorf("graph: registry: MetricsTap kind requested but no tap installed")
		}
		return r.metricsTap, nil
	case KindUserExtension:
		fn, ok := r.extensions[kind.ExtensionID]
		if !ok {
			return nil, fmt.Errorf("graph: registry: no user extension registered for id %d", kind.ExtensionID)
		}
		return fn, nil
	default:
		return nil, fmt.Errorf("graph: registry: unknown operator kind tag %d", kind.Tag)
	}
}

// passThrough is the identity operator: it forwards its input unchanged.
// A source invocation (input == nil) produces nothing.
func passThrough(input *Tensor, _ Context) (*Tensor, error) {
	if input == nil {
		return nil, nil
	}
	return input, nil
}
