// Package memory provides the in-memory ordered store behind the message
// engine. A Queue is a heap ordered by one domain.Ordering. The engine never
// reorders a Queue in place; it drains it into a fresh Queue with the new
// ordering instead.
package memory

import (
	"container/heap"
	"sync"

	"pmengine/internal/domain"
)

// closedChan is returned to waiters of a retired queue so they never block on it.
var closedChan = func() chan struct{} {
	ch := make(chan struct{})
	close(ch)
	return ch
}()

// Queue is a concurrent priority queue of messages.
// The minimal message under its ordering is always removed first.
// This implementation is safe for concurrent use.
type Queue struct {
	mu       sync.Mutex
	heap     messageHeap
	capacity int
	nextSeq  uint64
	closed   bool

	// changed is closed and replaced on every mutation and on Close, waking
	// anyone waiting for content or space.
	changed chan struct{}
}

// NewQueue creates an empty queue ordered by ordering.
// A capacity of zero or less means the queue is unbounded.
func NewQueue(ordering domain.Ordering, capacity int) *Queue {
	q := &Queue{
		heap:     messageHeap{ordering: ordering},
		capacity: capacity,
		changed:  make(chan struct{}),
	}
	heap.Init(&q.heap)
	return q
}

// Ordering returns the policy this queue sorts by.
func (q *Queue) Ordering() domain.Ordering {
	return q.heap.ordering
}

// Capacity returns the configured bound, or zero if unbounded.
func (q *Queue) Capacity() int {
	if q.capacity <= 0 {
		return 0
	}
	return q.capacity
}

// Push inserts a message regardless of capacity.
func (q *Queue) Push(msg *domain.Message) error {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.closed {
		return ErrQueueClosed
	}
	q.pushLocked(msg)
	return nil
}

// TryPush inserts a message if there is room. When the queue is full it
// returns ErrQueueFull and a channel that is closed on the next change.
func (q *Queue) TryPush(msg *domain.Message) (<-chan struct{}, error) {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.closed {
		return nil, ErrQueueClosed
	}
	if q.capacity > 0 && q.heap.Len() >= q.capacity {
		return q.changed, ErrQueueFull
	}
	q.pushLocked(msg)
	return nil, nil
}

// TryPop removes and returns the minimal message. When the queue is empty it
// returns nil and a channel that is closed on the next change.
func (q *Queue) TryPop() (*domain.Message, <-chan struct{}) {
	q.mu.Lock()
	defer q.mu.Unlock()

	e, ok := q.heap.popEntry()
	if !ok {
		if q.closed {
			return nil, closedChan
		}
		return nil, q.changed
	}
	q.broadcastLocked()
	return e.msg, nil
}

// Len returns the current number of messages in the queue.
func (q *Queue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.heap.Len()
}

// DrainTo moves every message into dst, which re-sorts them under its own
// ordering. Arrival order among exact ties is preserved. Capacity of dst is
// not enforced so nothing is dropped. Returns the number of messages moved.
func (q *Queue) DrainTo(dst *Queue) int {
	if q == dst {
		return 0
	}

	q.mu.Lock()
	defer q.mu.Unlock()
	dst.mu.Lock()
	defer dst.mu.Unlock()

	moved := q.heap.unload()
	if len(moved) == 0 {
		return 0
	}

	dst.heap.entries = append(dst.heap.entries, moved...)
	heap.Init(&dst.heap)
	if q.nextSeq > dst.nextSeq {
		dst.nextSeq = q.nextSeq
	}

	q.broadcastLocked()
	dst.broadcastLocked()
	return len(moved)
}

// Close retires the queue. Further pushes fail and every waiter is woken.
// Messages still present stay poppable.
func (q *Queue) Close() {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.closed {
		return
	}
	q.closed = true
	q.broadcastLocked()
}

// Closed reports whether Close has been called.
func (q *Queue) Closed() bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.closed
}

func (q *Queue) pushLocked(msg *domain.Message) {
	q.heap.pushEntry(entry{msg: msg, seq: q.nextSeq})
	q.nextSeq++
	q.broadcastLocked()
}

func (q *Queue) broadcastLocked() {
	close(q.changed)
	q.changed = make(chan struct{})
}
