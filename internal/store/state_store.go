// Package store defines interfaces for persisting the engine's mode setting
// and its mode switch history. Messages themselves are never persisted.
// These abstractions allow swapping implementations (Redis, PostgreSQL,
// in-memory) without changing the control logic.
package store

import (
	"context"
	"time"
)

// ModeState is the persisted ordering mode of the engine.
type ModeState struct {
	// HighPriority is true when priority ordering was last selected.
	HighPriority bool `json:"high_priority"`

	// UpdatedAt is when the mode was last changed.
	UpdatedAt time.Time `json:"updated_at"`
}

// ModeStore defines the interface for storing the selected mode so a
// restarted engine comes back in the same mode.
// All methods must be safe for concurrent use.
type ModeStore interface {
	// GetMode retrieves the persisted mode.
	// Returns nil, nil if no mode has been stored yet.
	GetMode(ctx context.Context) (*ModeState, error)

	// SetMode stores the mode.
	SetMode(ctx context.Context, state *ModeState) error

	// Close releases any resources held by the store.
	Close() error
}
