// Package control provides the mode control service.
// It switches the engine between timestamp and priority ordering, persists
// the selected mode so it survives a restart, and keeps an audit log of
// every completed switch.
package control

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"pmengine/internal/domain"
	"pmengine/internal/engine"
	"pmengine/internal/metrics"
	"pmengine/internal/store"
)

// ErrPersistFailed is returned when a switch took effect but could not be
// persisted or recorded.
var ErrPersistFailed = errors.New("failed to persist mode switch")

// Engine is the part of the engine the control service drives.
type Engine interface {
	SwitchMode(ctx context.Context, highPriority bool) (*domain.ModeSwitch, error)
	HighPriorityMode() bool
	Stats() engine.Stats
}

// Service coordinates mode switches with their persistence.
type Service struct {
	// mu orders each switch with its save and record.
	mu sync.Mutex

	engine     Engine
	modeStore  store.ModeStore
	switchRepo store.SwitchRepository
	logger     *slog.Logger
}

// NewService creates a new control service.
func NewService(
	eng Engine,
	modeStore store.ModeStore,
	switchRepo store.SwitchRepository,
	logger *slog.Logger,
) *Service {
	return &Service{
		engine:     eng,
		modeStore:  modeStore,
		switchRepo: switchRepo,
		logger:     logger,
	}
}

// Restore applies the persisted mode to the engine. When nothing has been
// persisted the engine keeps its configured mode.
// A restore is not recorded in the switch history.
func (s *Service) Restore(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	state, err := s.modeStore.GetMode(ctx)
	if err != nil {
		recordStorage("get_mode", err)
		return fmt.Errorf("failed to load persisted mode: %w", err)
	}
	recordStorage("get_mode", nil)

	if state == nil {
		s.logger.Info("no persisted mode, keeping configured mode",
			"high_priority", s.engine.HighPriorityMode(),
		)
		return nil
	}

	sw, err := s.engine.SwitchMode(ctx, state.HighPriority)
	if err != nil {
		return fmt.Errorf("failed to restore mode: %w", err)
	}

	s.logger.Info("mode restored",
		"high_priority", state.HighPriority,
		"updated_at", state.UpdatedAt,
		"changed", sw != nil,
	)
	return nil
}

// SetMode switches the engine and persists the result.
// Returns nil, nil when the engine was already in the requested mode.
//
// If the switch succeeds but persistence fails, the switch record is still
// returned together with an error wrapping ErrPersistFailed. The engine is
// not switched back.
//
// Concurrent calls are serialized so the persisted mode always matches the
// last switch applied to the engine.
func (s *Service) SetMode(ctx context.Context, highPriority bool) (*domain.ModeSwitch, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	sw, err := s.engine.SwitchMode(ctx, highPriority)
	if err != nil {
		return nil, fmt.Errorf("failed to switch mode: %w", err)
	}
	if sw == nil {
		return nil, nil
	}

	var errs []error

	state := &store.ModeState{HighPriority: sw.To, UpdatedAt: sw.SwitchedAt}
	err = s.modeStore.SetMode(ctx, state)
	recordStorage("set_mode", err)
	if err != nil {
		s.logger.Error("failed to persist mode", "error", err, "high_priority", sw.To)
		errs = append(errs, err)
	}

	err = s.switchRepo.Create(ctx, sw)
	recordStorage("record_switch", err)
	if err != nil {
		s.logger.Error("failed to record mode switch", "error", err, "switch_id", sw.ID)
		errs = append(errs, err)
	}

	if len(errs) > 0 {
		return sw, fmt.Errorf("%w: %w", ErrPersistFailed, errors.Join(errs...))
	}

	s.logger.Debug("mode switch persisted",
		"switch_id", sw.ID,
		"ordering", sw.Ordering().String(),
	)
	return sw, nil
}

// Switch retrieves a recorded switch by its ID.
func (s *Service) Switch(ctx context.Context, id string) (*domain.ModeSwitch, error) {
	sw, err := s.switchRepo.GetByID(ctx, id)
	if err != nil && !errors.Is(err, domain.ErrModeSwitchNotFound) {
		recordStorage("get_switch", err)
		return nil, fmt.Errorf("failed to get mode switch: %w", err)
	}
	recordStorage("get_switch", nil)
	return sw, err
}

// Mode reports whether priority ordering is active.
func (s *Service) Mode() bool {
	return s.engine.HighPriorityMode()
}

// History returns the most recent switches, newest first.
func (s *Service) History(ctx context.Context, limit int) ([]*domain.ModeSwitch, error) {
	switches, err := s.switchRepo.List(ctx, limit)
	recordStorage("list_switches", err)
	if err != nil {
		return nil, fmt.Errorf("failed to list mode switches: %w", err)
	}
	return switches, nil
}

// Stats returns a snapshot of the engine.
func (s *Service) Stats() engine.Stats {
	return s.engine.Stats()
}

func recordStorage(operation string, err error) {
	status := "success"
	if err != nil {
		status = "failure"
	}
	metrics.StorageOperationsTotal.WithLabelValues(operation, status).Inc()
}
