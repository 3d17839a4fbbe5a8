// Package engine implements the priority message engine: a concurrent,
// in-process message queue whose ordering can be switched between timestamp
// order and priority order while producers and consumers keep running.
//
// Every Put and Get registers with a quiescence gate for the short time it
// touches the current store. A mode switch raises the gate, waits until no
// operation is registered, drains the old store into a new one sorted by the
// new ordering, installs it and lowers the gate. Waiting for content or for
// capacity happens outside the gate, so a switch never waits on a consumer's
// timeout.
package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"pmengine/internal/domain"
	"pmengine/internal/gate"
	"pmengine/internal/metrics"
	"pmengine/internal/queue"
	"pmengine/internal/queue/memory"
)

// ErrNilMessage is returned when Put is called without a message.
var ErrNilMessage = errors.New("message is nil")

var _ queue.Engine = (*Engine)(nil)

// Engine is the priority message engine.
// All methods are safe for concurrent use.
type Engine struct {
	logger         *slog.Logger
	defaultTimeout time.Duration
	capacity       int

	// switchMu serializes mode switches.
	switchMu sync.Mutex
	gate     *gate.Gate

	// store is only used for inserts and removals while holding a gate
	// token, and only replaced while the gate is raised and drained.
	store        atomic.Pointer[memory.Queue]
	highPriority atomic.Bool
	switches     atomic.Int64
}

// Stats is a point-in-time view of the engine.
type Stats struct {
	HighPriorityMode bool   `json:"high_priority_mode"`
	Ordering         string `json:"ordering"`
	Depth            int    `json:"depth"`
	Capacity         int    `json:"capacity"`
	InFlight         int    `json:"in_flight"`
	Paused           bool   `json:"paused"`
	Switches         int64  `json:"switches"`
}

// New creates an engine in timestamp mode unless configured otherwise.
func New(logger *slog.Logger, opts ...Option) *Engine {
	if logger == nil {
		logger = slog.Default()
	}
	e := &Engine{
		logger:         logger,
		defaultTimeout: DefaultTimeout,
		gate:           gate.New(),
	}
	for _, opt := range opts {
		opt(e)
	}

	high := e.highPriority.Load()
	e.store.Store(memory.NewQueue(domain.OrderingForMode(high), e.capacity))
	metrics.HighPriorityMode.Set(metrics.BoolGauge(high))

	return e
}

// Put inserts msg under the active ordering. It blocks while a mode switch
// is in progress and, when a capacity is configured, while the engine is full.
func (e *Engine) Put(ctx context.Context, msg *domain.Message) error {
	if msg == nil {
		return ErrNilMessage
	}

	for {
		if err := e.enter(ctx); err != nil {
			return err
		}
		store := e.store.Load()
		wait, err := store.TryPush(msg)
		e.exit()

		if err == nil {
			metrics.MessagesPutTotal.WithLabelValues(store.Ordering().String()).Inc()
			e.recordDepth()
			return nil
		}
		if !errors.Is(err, memory.ErrQueueFull) {
			return fmt.Errorf("failed to put message: %w", err)
		}

		// Full. Wait for a pop or for the store to be retired by a switch.
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-wait:
		}
	}
}

// Get removes the next message, waiting up to the default timeout.
// Returns nil, nil if no message arrived in time.
func (e *Engine) Get(ctx context.Context) (*domain.Message, error) {
	return e.Poll(ctx, e.defaultTimeout)
}

// Poll removes the next message under the active ordering. At most one
// message is removed.
//
// Like Put, Poll blocks while a mode switch is in progress. The timeout
// applies once the call has been admitted: after that Poll waits up to
// timeout for a message and returns nil, nil if none arrived.
func (e *Engine) Poll(ctx context.Context, timeout time.Duration) (*domain.Message, error) {
	timer := time.NewTimer(timeout)
	defer timer.Stop()
	deadline := time.Now().Add(timeout)

	for {
		if err := e.enter(ctx); err != nil {
			metrics.MessagesGetTotal.WithLabelValues("canceled").Inc()
			return nil, err
		}
		msg, wait := e.store.Load().TryPop()
		e.exit()

		if msg != nil {
			metrics.MessagesGetTotal.WithLabelValues("message").Inc()
			e.recordDepth()
			metrics.MessageWaitLatency.Observe(time.Since(msg.Timestamp).Seconds())
			return msg, nil
		}
		if !time.Now().Before(deadline) {
			metrics.MessagesGetTotal.WithLabelValues("empty").Inc()
			return nil, nil
		}

		select {
		case <-ctx.Done():
			metrics.MessagesGetTotal.WithLabelValues("canceled").Inc()
			return nil, ctx.Err()
		case <-timer.C:
			metrics.MessagesGetTotal.WithLabelValues("empty").Inc()
			return nil, nil
		case <-wait:
		}
	}
}

// SetMode selects priority ordering when highPriority is true and timestamp
// ordering otherwise. Setting the current mode is a no-op.
func (e *Engine) SetMode(ctx context.Context, highPriority bool) error {
	_, err := e.SwitchMode(ctx, highPriority)
	return err
}

// SwitchMode is SetMode returning a record of the switch, or nil if the
// engine was already in the requested mode.
//
// If ctx ends while waiting for in-flight operations, the gate is lowered,
// the mode is left unchanged and the context error is returned.
func (e *Engine) SwitchMode(ctx context.Context, highPriority bool) (*domain.ModeSwitch, error) {
	if e.highPriority.Load() == highPriority {
		return nil, nil
	}

	e.switchMu.Lock()
	defer e.switchMu.Unlock()

	from := e.highPriority.Load()
	if from == highPriority {
		return nil, nil
	}

	start := time.Now()
	e.gate.Raise()
	if err := e.gate.AwaitDrain(ctx); err != nil {
		e.gate.Lower()
		e.logger.Warn("mode switch abandoned", "error", err, "to_high_priority", highPriority)
		return nil, fmt.Errorf("failed to drain in-flight operations: %w", err)
	}

	old := e.store.Load()
	next := memory.NewQueue(domain.OrderingForMode(highPriority), e.capacity)
	moved := old.DrainTo(next)
	e.store.Store(next)
	e.recordDepth()
	e.highPriority.Store(highPriority)
	old.Close()
	e.gate.Lower()

	elapsed := time.Since(start)
	e.switches.Add(1)

	ordering := next.Ordering().String()
	metrics.ModeSwitchesTotal.WithLabelValues(ordering).Inc()
	metrics.ModeSwitchDuration.Observe(elapsed.Seconds())
	metrics.ModeSwitchMovedMessages.Observe(float64(moved))
	metrics.HighPriorityMode.Set(metrics.BoolGauge(highPriority))

	e.logger.Info("mode switched",
		"from_high_priority", from,
		"to_high_priority", highPriority,
		"ordering", ordering,
		"moved", moved,
		"paused", elapsed,
	)

	return &domain.ModeSwitch{
		ID:         uuid.New().String(),
		From:       from,
		To:         highPriority,
		Moved:      moved,
		Duration:   elapsed,
		SwitchedAt: time.Now().UTC(),
	}, nil
}

// HighPriorityMode reports whether priority ordering is active.
func (e *Engine) HighPriorityMode() bool {
	return e.highPriority.Load()
}

// Ordering returns the active ordering policy.
func (e *Engine) Ordering() domain.Ordering {
	return domain.OrderingForMode(e.HighPriorityMode())
}

// Len returns the number of pending messages.
func (e *Engine) Len() int {
	return e.store.Load().Len()
}

// Stats returns a snapshot of the engine state.
func (e *Engine) Stats() Stats {
	store := e.store.Load()
	return Stats{
		HighPriorityMode: e.HighPriorityMode(),
		Ordering:         e.Ordering().String(),
		Depth:            store.Len(),
		Capacity:         store.Capacity(),
		InFlight:         e.gate.InFlight(),
		Paused:           e.gate.Paused(),
		Switches:         e.switches.Load(),
	}
}

func (e *Engine) enter(ctx context.Context) error {
	if err := e.gate.Enter(ctx); err != nil {
		return err
	}
	metrics.InFlightOperations.Inc()
	return nil
}

func (e *Engine) exit() {
	metrics.InFlightOperations.Dec()
	e.gate.Exit()
}

// recordDepth publishes the length of the live store.
func (e *Engine) recordDepth() {
	metrics.QueueDepth.Set(float64(e.store.Load().Len()))
}
