// Package graph implements the dataflow graph runtime (spec component C3):
// typed operators linked by bounded channels, executed under a
// deadline-aware cooperative scheduler with worst-case execution time
// (WCET) accounting.
//
// The scheduling loop and bounded-channel backpressure use a single
// mutex per instance, explicit state transitions, and never block inside
// the hot path. The operator registry is a tagged-variant Kind resolved
// through a Registry table built by NewRegistry (per spec §9), so
// control-frame deserialization never crosses a raw function-pointer
// boundary.
package graph

// Tensor is a fixed-layout header plus a Go byte slice of raw payload;
// it carries no reference count and no alignment guarantee. Ownership transfers
// through channels: a tensor leaving an operator is either enqueued
// exactly once or deallocated by discarding the reference.
type Tensor struct {
	Header TensorHeader
	Data   []byte
}

// TensorHeader is the fixed-layout tensor header (spec §3).
type TensorHeader struct {
	Version    uint32
	DType      uint32
	Dims       [4]uint32
	Strides    [4]uint32
	DataOffset uint64
	SchemaID   uint32
	Records    uint64
	Quality    float32
	Lineage    uint64
}

// NewTensor builds a Tensor with the given schema and payload. Dims,
// strides and the remaining header fields default to zero and may be set
// by the caller before enqueueing.
func NewTensor(schemaID uint32, data []byte) *Tensor {
	return &Tensor{
		Header: TensorHeader{
			Version:  1,
			SchemaID: schemaID,
			Records:  1,
			Quality:  1.0,
		},
		Data: data,
	}
}

// Clone returns a deep copy of t, used when a func must retain a copy of
// its input after handing the original downstream.
func (t *Tensor) Clone() *Tensor {
	if t == nil {
		return nil
	}
	cp := *t
	cp.Data = make([]byte, len(t.Data))
	copy(cp.Data, t.Data)
	return &cp
}
