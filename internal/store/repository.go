package store

import (
	"context"

	"pmengine/internal/domain"
)

// SwitchRepository defines the interface for the mode switch audit log.
// This is typically backed by PostgreSQL for production use.
type SwitchRepository interface {
	// Create stores a completed switch.
	Create(ctx context.Context, sw *domain.ModeSwitch) error

	// GetByID retrieves a switch by its ID.
	GetByID(ctx context.Context, id string) (*domain.ModeSwitch, error)

	// List retrieves the most recent switches, newest first.
	List(ctx context.Context, limit int) ([]*domain.ModeSwitch, error)
}
