package memory

import "errors"

var (
	// ErrQueueClosed is returned when pushing to a retired queue.
	ErrQueueClosed = errors.New("queue is closed")

	// ErrQueueFull is returned by TryPush when the queue is at capacity.
	ErrQueueFull = errors.New("queue is at capacity")
)
