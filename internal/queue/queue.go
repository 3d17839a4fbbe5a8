// Package queue defines the interfaces through which producers, consumers
// and operators talk to the message engine.
// Keeping them small lets tools such as the load generator and the admin API
// depend on behaviour instead of on the engine type.
package queue

import (
	"context"
	"time"

	"pmengine/internal/domain"
)

// Producer defines the interface for handing messages to the engine.
// Implementations must be safe for concurrent use.
type Producer interface {
	// Put inserts a message. It blocks while a mode switch is in progress
	// and returns ctx.Err() if the context ends first.
	Put(ctx context.Context, msg *domain.Message) error
}

// Consumer defines the interface for taking messages from the engine.
// Implementations must be safe for concurrent use.
type Consumer interface {
	// Get removes the next message using the default timeout.
	// Returns nil, nil if nothing arrived in time.
	Get(ctx context.Context) (*domain.Message, error)

	// Poll removes the next message, waiting at most timeout.
	// Returns nil, nil if nothing arrived in time.
	Poll(ctx context.Context, timeout time.Duration) (*domain.Message, error)
}

// ModeSwitcher changes the ordering mode of a running engine.
type ModeSwitcher interface {
	// SetMode selects priority ordering when highPriority is true and
	// timestamp ordering otherwise. Setting the current mode is a no-op.
	SetMode(ctx context.Context, highPriority bool) error

	// HighPriorityMode reports the current mode.
	HighPriorityMode() bool
}

// Engine combines every capability of a running message engine.
type Engine interface {
	Producer
	Consumer
	ModeSwitcher
}
