package sink

import (
	"context"
	"sync"

	"github.com/hazyhaar/domprobe/mutation"
)

// DefaultQueueSize is the capacity of a Queue created with size <= 0.
const DefaultQueueSize = 1000

// Queue buffers deliveries for clients that poll, such as MCP tools. When
// full it drops the oldest delivery; the gap shows in Seq.
type Queue struct {
	mu      sync.Mutex
	buf     []mutation.Delivery
	size    int
	dropped uint64
	closed  bool
}

// NewQueue creates a Queue holding at most size deliveries.
func NewQueue(size int) *Queue {
	if size <= 0 {
		size = DefaultQueueSize
	}
	return &Queue{size: size}
}

func (q *Queue) Send(_ context.Context, d mutation.Delivery) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.closed {
		return nil
	}
	if len(q.buf) == q.size {
		copy(q.buf, q.buf[1:])
		q.buf = q.buf[:len(q.buf)-1]
		q.dropped++
	}
	q.buf = append(q.buf, d)
	return nil
}

// Drain removes and returns up to max deliveries, oldest first. max <= 0
// drains everything.
func (q *Queue) Drain(max int) []mutation.Delivery {
	q.mu.Lock()
	defer q.mu.Unlock()
	n := len(q.buf)
	if max > 0 && max < n {
		n = max
	}
	out := make([]mutation.Delivery, n)
	copy(out, q.buf[:n])
	q.buf = append(q.buf[:0], q.buf[n:]...)
	return out
}

// Len returns the number of buffered deliveries.
func (q *Queue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.buf)
}

// Dropped returns how many deliveries were discarded because the queue was
// full.
func (q *Queue) Dropped() uint64 {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.dropped
}

// Close discards buffered deliveries; later sends are ignored.
func (q *Queue) Close() error {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.closed = true
	q.buf = nil
	return nil
}
