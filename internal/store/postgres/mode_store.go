package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"

	"pmengine/internal/store"
)

// ModeStore implements store.ModeStore using a single-row PostgreSQL table.
type ModeStore struct {
	db *DB
}

// NewModeStore creates a new PostgreSQL-backed mode store.
func NewModeStore(db *DB) *ModeStore {
	return &ModeStore{db: db}
}

// GetMode retrieves the persisted mode.
// Returns nil, nil if no mode has been stored.
func (s *ModeStore) GetMode(ctx context.Context) (*store.ModeState, error) {
	query := `SELECT high_priority, updated_at FROM engine_mode WHERE id = 1`

	var state store.ModeState
	err := s.db.pool.QueryRow(ctx, query).Scan(&state.HighPriority, &state.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get mode: %w", err)
	}

	return &state, nil
}

// SetMode upserts the mode row.
func (s *ModeStore) SetMode(ctx context.Context, state *store.ModeState) error {
	query := `
		INSERT INTO engine_mode (id, high_priority, updated_at)
		VALUES (1, $1, $2)
		ON CONFLICT (id) DO UPDATE SET
			high_priority = EXCLUDED.high_priority,
			updated_at = EXCLUDED.updated_at
	`

	if _, err := s.db.pool.Exec(ctx, query, state.HighPriority, state.UpdatedAt); err != nil {
		return fmt.Errorf("failed to set mode: %w", err)
	}

	return nil
}

// Close is a no-op. The pool is owned and closed by DB.
func (s *ModeStore) Close() error {
	return nil
}
