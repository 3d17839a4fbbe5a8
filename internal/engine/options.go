package engine

import "time"

// DefaultTimeout is how long Get waits for a message before reporting empty.
const DefaultTimeout = 2 * time.Second

// Option configures an Engine.
type Option func(*Engine)

// WithDefaultTimeout sets the wait used by Get. Non-positive values are ignored.
func WithDefaultTimeout(d time.Duration) Option {
	return func(e *Engine) {
		if d > 0 {
			e.defaultTimeout = d
		}
	}
}

// WithCapacity bounds the number of pending messages. Put blocks while the
// engine is full. Zero, the default, leaves the engine unbounded; sustained
// production without consumers then grows memory without limit.
func WithCapacity(n int) Option {
	return func(e *Engine) {
		if n < 0 {
			n = 0
		}
		e.capacity = n
	}
}

// WithHighPriorityMode selects the initial ordering mode.
func WithHighPriorityMode(enabled bool) Option {
	return func(e *Engine) { e.highPriority.Store(enabled) }
}
