package graph

import "sync"

// Channel is a bounded FIFO of tensor handles. capacity is fixed at
// construction (spec range 1..=65535); schemaID, if non-zero, makes the
// channel typed: try_enqueue rejects any tensor whose header schema_id
// differs.
type Channel struct {
	mu       sync.Mutex
	id       uint32
	capacity int
	schemaID uint32 // 0 means untyped
	buf      []*Tensor
}

func newChannel(id uint32, capacity int, schemaID uint32) *Channel {
	return &Channel{
		id:       id,
		capacity: capacity,
		schemaID: schemaID,
		buf:      make([]*Tensor, 0, capacity),
	}
}

// ID returns the channel's identity within its owning graph.
func (c *Channel) ID() uint32 { return c.id }

// Capacity returns the channel's fixed capacity.
func (c *Channel) Capacity() int { return c.capacity }

// SchemaID returns the channel's required schema, or 0 if untyped.
func (c *Channel) SchemaID() uint32 { return c.schemaID }

// Depth returns the current occupancy.
func (c *Channel) Depth() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.buf)
}

// HasFreeSlot reports whether at least one more tensor can be enqueued.
func (c *Channel) HasFreeSlot() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.buf) < c.capacity
}

// HasData reports whether at least one tensor is available to dequeue.
func (c *Channel) HasData() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.buf) > 0
}

// enqueueResult distinguishes why TryEnqueue failed, so the caller can
// route schema mismatches to the dropped_enqueues counter versus ordinary
// backpressure (which returns the tensor to the caller unmodified).
type enqueueResult int

const (
	enqueueOK enqueueResult = iota
	enqueueFull
	enqueueSchemaMismatch
)

// TryEnqueue attempts to append t. On a full channel it returns
// (enqueueFull, t) — the tensor is handed back unchanged, not dropped. On
// a schema mismatch it returns (enqueueSchemaMismatch, t): the caller is
// responsible for deallocating t and incrementing dropped_enqueues.
func (c *Channel) TryEnqueue(t *Tensor) (enqueueResult, *Tensor) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.schemaID != 0 && t.Header.SchemaID != c.schemaID {
		return enqueueSchemaMismatch, t
	}
	if len(c.buf) >= c.capacity {
		return enqueueFull, t
	}
	c.buf = append(c.buf, t)
	return enqueueOK, nil
}

// TryDequeue removes and returns the oldest tensor, or (nil, false) if
// the channel is empty.
func (c *Channel) TryDequeue() (*Tensor, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if len(c.buf) == 0 {
		return nil, false
	}
	t := c.buf[0]
	c.buf = c.buf[1:]
	return t, true
}

// drain empties the channel, discarding any resident tensors. Called by
// Graph.Destroy to deallocate in-flight tensors.
func (c *Channel) drain() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.buf = c.buf[:0]
}
