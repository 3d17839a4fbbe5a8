// Package memory provides in-memory implementations of store interfaces.
// These are useful for testing and development without external dependencies.
package memory

import (
	"context"
	"sync"

	"pmengine/internal/store"
)

// ModeStore is an in-memory implementation of the store.ModeStore interface.
type ModeStore struct {
	mu    sync.RWMutex
	state *store.ModeState
}

// NewModeStore creates a new in-memory mode store.
func NewModeStore() *ModeStore {
	return &ModeStore{}
}

// GetMode retrieves the stored mode.
// Returns nil, nil if no mode has been stored.
func (s *ModeStore) GetMode(ctx context.Context) (*store.ModeState, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.state == nil {
		return nil, nil
	}
	// Return a copy to prevent external modification
	stateCopy := *s.state
	return &stateCopy, nil
}

// SetMode stores the mode.
func (s *ModeStore) SetMode(ctx context.Context, state *store.ModeState) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	stateCopy := *state
	s.state = &stateCopy
	return nil
}

// Close is a no-op for the in-memory store.
func (s *ModeStore) Close() error {
	return nil
}

// Clear forgets the stored mode. Useful for testing.
func (s *ModeStore) Clear() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.state = nil
}
