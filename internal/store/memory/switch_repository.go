package memory

import (
	"context"
	"sort"
	"sync"

	"pmengine/internal/domain"
)

// SwitchRepository is an in-memory implementation of store.SwitchRepository.
type SwitchRepository struct {
	mu sync.RWMutex

	// switches stores records by ID
	switches map[string]*domain.ModeSwitch

	// order holds IDs in insertion order
	order []string
}

// NewSwitchRepository creates a new in-memory switch repository.
func NewSwitchRepository() *SwitchRepository {
	return &SwitchRepository{
		switches: make(map[string]*domain.ModeSwitch),
	}
}

// Create stores a completed switch.
func (r *SwitchRepository) Create(ctx context.Context, sw *domain.ModeSwitch) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	// Store a copy to prevent external modification
	swCopy := *sw
	if _, exists := r.switches[sw.ID]; !exists {
		r.order = append(r.order, sw.ID)
	}
	r.switches[sw.ID] = &swCopy
	return nil
}

// GetByID retrieves a switch by its ID.
func (r *SwitchRepository) GetByID(ctx context.Context, id string) (*domain.ModeSwitch, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	sw, exists := r.switches[id]
	if !exists {
		return nil, domain.ErrModeSwitchNotFound
	}
	swCopy := *sw
	return &swCopy, nil
}

// List retrieves the most recent switches, newest first.
// A non-positive limit returns every record.
func (r *SwitchRepository) List(ctx context.Context, limit int) ([]*domain.ModeSwitch, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	result := make([]*domain.ModeSwitch, 0, len(r.order))
	for _, id := range r.order {
		swCopy := *r.switches[id]
		result = append(result, &swCopy)
	}

	sort.SliceStable(result, func(i, j int) bool {
		return result[i].SwitchedAt.After(result[j].SwitchedAt)
	})

	if limit > 0 && len(result) > limit {
		result = result[:limit]
	}
	return result, nil
}
