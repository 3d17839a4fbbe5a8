// Package domain contains the core entities and value objects of the priority
// message engine: messages, the ordering policies applied to them, and the
// records describing mode switches.
package domain

import (
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Message is a single unit handed from a producer to a consumer.
// A message must not be modified once it has been put into the engine.
type Message struct {
	// ID uniquely identifies the message.
	ID string `json:"id"`

	// Priority is nil when the message carries no priority.
	// Higher values are more urgent.
	Priority *int64 `json:"priority,omitempty"`

	// Timestamp is the creation instant of the message.
	Timestamp time.Time `json:"timestamp"`

	// Payload is opaque to the engine.
	Payload []byte `json:"payload,omitempty"`
}

// NewMessage creates a message without a priority, stamped with the current time.
func NewMessage(payload []byte) *Message {
	return NewMessageAt(nil, time.Now(), payload)
}

// NewPriorityMessage creates a message with the given priority, stamped with
// the current time.
func NewPriorityMessage(priority int64, payload []byte) *Message {
	return NewMessageAt(&priority, time.Now(), payload)
}

// NewMessageAt creates a message with an explicit priority and timestamp.
// The priority value is copied so later changes by the caller have no effect.
func NewMessageAt(priority *int64, ts time.Time, payload []byte) *Message {
	m := &Message{
		ID:        uuid.New().String(),
		Timestamp: ts,
		Payload:   payload,
	}
	if priority != nil {
		p := *priority
		m.Priority = &p
	}
	return m
}

// HasPriority reports whether the message carries a priority.
func (m *Message) HasPriority() bool {
	return m.Priority != nil
}

// PriorityValue returns the priority and whether it is set.
func (m *Message) PriorityValue() (int64, bool) {
	if m.Priority == nil {
		return 0, false
	}
	return *m.Priority, true
}

func (m *Message) String() string {
	priority := "none"
	if p, ok := m.PriorityValue(); ok {
		priority = fmt.Sprintf("%d", p)
	}
	return fmt.Sprintf("Priority: %s, Date: %s", priority, m.Timestamp.Format(time.RFC3339Nano))
}
