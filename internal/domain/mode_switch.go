package domain

import (
	"errors"
	"time"
)

// ErrModeSwitchNotFound is returned when a switch record does not exist.
var ErrModeSwitchNotFound = errors.New("mode switch not found")

// ModeSwitch records one completed change of the engine's ordering mode.
type ModeSwitch struct {
	// ID is the unique identifier of the switch.
	ID string `json:"id"`

	// From is the high priority mode before the switch.
	From bool `json:"from_high_priority"`

	// To is the high priority mode after the switch.
	To bool `json:"to_high_priority"`

	// Moved is the number of pending messages re-sorted into the new store.
	Moved int `json:"moved"`

	// Duration is how long producers and consumers were paused.
	Duration time.Duration `json:"duration_ns"`

	// SwitchedAt is when the new store was installed.
	SwitchedAt time.Time `json:"switched_at"`
}

// Ordering returns the ordering that became active with this switch.
func (s *ModeSwitch) Ordering() Ordering {
	return OrderingForMode(s.To)
}
