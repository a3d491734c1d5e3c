package graph

import "testing"

// TestChannel_FIFOOrderPreserved mirrors property 1: dequeue order
// matches enqueue order, no element duplicated or skipped.
func TestChannel_FIFOOrderPreserved(t *testing.T) {
	ch := newChannel(0, 4, 0)
	for i := byte(0); i < 4; i++ {
		res, _ := ch.TryEnqueue(NewTensor(0, []byte{i}))
		if res != enqueueOK {
			t.Fatalf("TryEnqueue(%d) = %v, want enqueueOK", i, res)
		}
	}
	for i := byte(0); i < 4; i++ {
		got, ok := ch.TryDequeue()
		if !ok {
			t.Fatalf("TryDequeue() at i=%d: ok=false", i)
		}
		if got.Data[0] != i {
			t.Fatalf("TryDequeue() at i=%d = %v, want %d", i, got.Data, i)
		}
	}
}

// TestChannel_BoundedOccupancy mirrors property 2: depth never exceeds
// capacity, and try_enqueue on a full channel returns the tensor
// unchanged rather than dropping it.
func TestChannel_BoundedOccupancy(t *testing.T) {
	ch := newChannel(0, 2, 0)
	ch.TryEnqueue(NewTensor(0, []byte{1}))
	ch.TryEnqueue(NewTensor(0, []byte{2}))

	overflow := NewTensor(0, []byte{3})
	res, returned := ch.TryEnqueue(overflow)
	if res != enqueueFull {
		t.Fatalf("TryEnqueue on full channel = %v, want enqueueFull", res)
	}
	if returned != overflow {
		t.Fatalf("TryEnqueue on full channel did not return the original handle")
	}
	if d := ch.Depth(); d != ch.Capacity() {
		t.Fatalf("Depth() = %d, want capacity %d", d, ch.Capacity())
	}
}

// TestChannel_SchemaConformance mirrors property 3 / scenario S3: a typed
// channel rejects mismatched schema ids and the caller can observe the
// rejection to increment a drop counter.
func TestChannel_SchemaConformance(t *testing.T) {
	ch := newChannel(0, 4, 1001)

	accepted := NewTensor(1001, []byte("hi"))
	if res, _ := ch.TryEnqueue(accepted); res != enqueueOK {
		t.Fatalf("TryEnqueue(schema=1001) = %v, want enqueueOK", res)
	}

	rejected := NewTensor(7, []byte(""))
	res, returned := ch.TryEnqueue(rejected)
	if res != enqueueSchemaMismatch {
		t.Fatalf("TryEnqueue(schema=7) = %v, want enqueueSchemaMismatch", res)
	}
	if returned != rejected {
		t.Fatalf("TryEnqueue(schema mismatch) did not return the offending handle")
	}

	got, ok := ch.TryDequeue()
	if !ok || got != accepted {
		t.Fatalf("TryDequeue() = (%v, %v), want the first accepted handle", got, ok)
	}
}

// TestGraph_S1ConstructionAndStep mirrors scenario S1.
func TestGraph_S1ConstructionAndStep(t *testing.T) {
	g := New(nil)
	c0, err := g.AddChannel(4, 0)
	if err != nil {
		t.Fatalf("AddChannel: %v", err)
	}

	src := Spec{
		ID:       1,
		OutCh:    c0,
		Priority: 10,
		Stage:    StageAcquire,
		Func: func(_ *Tensor, _ Context) (*Tensor, error) {
			return NewTensor(0, []byte{0xA5}), nil
		},
	}
	if _, err := g.AddOperator(src, nil); err != nil {
		t.Fatalf("AddOperator: %v", err)
	}

	if err := g.RunSteps(10); err != nil {
		t.Fatalf("RunSteps: %v", err)
	}

	if d := c0.Depth(); d != 4 {
		t.Fatalf("c0.Depth() = %d, want 4", d)
	}
	for i := 0; i < 4; i++ {
		got, ok := c0.TryDequeue()
		if !ok || got.Data[0] != 0xA5 {
			t.Fatalf("dequeue %d = (%v, %v), want (0xA5, true)", i, got, ok)
		}
	}

	if m := g.Snapshot(); m.QueueDepthMax != 4 {
		t.Fatalf("QueueDepthMax = %d, want 4", m.QueueDepthMax)
	}
}

// TestGraph_S2Backpressure mirrors scenario S2.
func TestGraph_S2Backpressure(t *testing.T) {
	g := New(nil)
	c0, err := g.AddChannel(1, 0)
	if err != nil {
		t.Fatalf("AddChannel: %v", err)
	}

	var consumed int
	source := Spec{
		ID:       1,
		OutCh:    c0,
		Priority: 10,
		Stage:    StageAcquire,
		Func: func(_ *Tensor, _ Context) (*Tensor, error) {
			return NewTensor(0, []byte{0x01}), nil
		},
	}
	consumer := Spec{
		ID:       2,
		InCh:     c0,
		Priority: 5,
		Stage:    StageClean,
		Func: func(input *Tensor, _ Context) (*Tensor, error) {
			consumed++
			return nil, nil
		},
	}

	if _, err := g.AddOperator(source, nil); err != nil {
		t.Fatalf("AddOperator(source): %v", err)
	}
	if _, err := g.AddOperator(consumer, nil); err != nil {
		t.Fatalf("AddOperator(consumer): %v", err)
	}

	if err := g.RunSteps(5); err != nil {
		t.Fatalf("RunSteps: %v", err)
	}

	if d := c0.Depth(); d > 1 {
		t.Fatalf("c0.Depth() = %d, want <= 1", d)
	}
	if consumed < 4 {
		t.Fatalf("consumed = %d, want >= 4", consumed)
	}
	if m := g.Snapshot(); m.DroppedEnqueues != 0 {
		t.Fatalf("DroppedEnqueues = %d, want 0", m.DroppedEnqueues)
	}
}

func TestGraph_DestroyDrainsChannelsAndRejectsFurtherMutation(t *testing.T) {
	g := New(nil)
	c0, _ := g.AddChannel(2, 0)
	c0.TryEnqueue(NewTensor(0, []byte{1}))

	if err := g.Destroy(); err != nil {
		t.Fatalf("Destroy: %v", err)
	}
	if d := c0.Depth(); d != 0 {
		t.Fatalf("Depth() after Destroy = %d, want 0", d)
	}
	if _, err := g.AddChannel(2, 0); err != ErrGraphDestroyed {
		t.Fatalf("AddChannel after Destroy = %v, want ErrGraphDestroyed", err)
	}
	if err := g.RunSteps(1); err != ErrGraphDestroyed {
		t.Fatalf("RunSteps after Destroy = %v, want ErrGraphDestroyed", err)
	}
}

func TestGraph_DuplicateOperatorIDRejected(t *testing.T) {
	g := New(nil)
	spec := Spec{ID: 1, Priority: 1, Func: passThrough}
	if _, err := g.AddOperator(spec, nil); err != nil {
		t.Fatalf("AddOperator: %v", err)
	}
	if _, err := g.AddOperator(spec, nil); err == nil {
		t.Fatalf("AddOperator with duplicate id: want error, got nil")
	}
}

func TestSingleton_CreateDestroyResetsEpoch(t *testing.T) {
	g1, err := Create(nil)
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	g1.AddChannel(1, 0)

	if _, err := Create(nil); err == nil {
		t.Fatalf("second Create: want error, got nil")
	}

	if err := DestroySingleton(); err != nil {
		t.Fatalf("DestroySingleton: %v", err)
	}
	if _, err := ActiveSingleton(); err != ErrNoActiveGraph {
		t.Fatalf("ActiveSingleton after destroy = %v, want ErrNoActiveGraph", err)
	}

	g2, err := Create(nil)
	if err != nil {
		t.Fatalf("Create after destroy: %v", err)
	}
	if m := g2.Snapshot(); m.OpsScheduled != 0 {
		t.Fatalf("fresh singleton OpsScheduled = %d, want 0", m.OpsScheduled)
	}
	DestroySingleton()
}
