// Package gate provides the quiescence gate used to pause producers and
// consumers while the engine swaps its store.
//
// Operations register with Enter and deregister with Exit, much like taking
// and releasing a read lock. A switcher calls Raise to refuse new
// registrations, AwaitDrain to wait for the in-flight count to reach zero,
// and Lower to readmit callers. Waiters are woken on every relevant change
// instead of polling.
package gate

import (
	"context"
	"sync"
)

// Gate tracks in-flight operations and a pause flag.
// It is safe for concurrent use.
type Gate struct {
	mu       sync.Mutex
	inFlight int
	paused   bool

	// changed is closed and replaced whenever inFlight drops to zero or the
	// pause is lowered.
	changed chan struct{}
}

// New creates an open gate with no operations in flight.
func New() *Gate {
	return &Gate{
		changed: make(chan struct{}),
	}
}

// Enter registers an operation. It blocks while the gate is raised and
// returns ctx.Err() if the context ends first, in which case no token is held.
func (g *Gate) Enter(ctx context.Context) error {
	for {
		g.mu.Lock()
		if !g.paused {
			g.inFlight++
			g.mu.Unlock()
			return nil
		}
		ch := g.changed
		g.mu.Unlock()

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ch:
		}
	}
}

// Exit releases a token obtained from Enter.
func (g *Gate) Exit() {
	g.mu.Lock()
	defer g.mu.Unlock()

	if g.inFlight <= 0 {
		panic("gate: Exit without matching Enter")
	}
	g.inFlight--
	if g.inFlight == 0 {
		g.broadcastLocked()
	}
}

// Raise refuses new registrations until Lower is called.
// Callers must serialize Raise/Lower pairs themselves.
func (g *Gate) Raise() {
	g.mu.Lock()
	g.paused = true
	g.mu.Unlock()
}

// AwaitDrain blocks until no operation is in flight.
func (g *Gate) AwaitDrain(ctx context.Context) error {
	for {
		g.mu.Lock()
		if g.inFlight == 0 {
			g.mu.Unlock()
			return nil
		}
		ch := g.changed
		g.mu.Unlock()

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ch:
		}
	}
}

// Lower readmits registrations and wakes every blocked Enter.
func (g *Gate) Lower() {
	g.mu.Lock()
	defer g.mu.Unlock()

	if !g.paused {
		return
	}
	g.paused = false
	g.broadcastLocked()
}

// InFlight returns the number of registered operations.
func (g *Gate) InFlight() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.inFlight
}

// Paused reports whether the gate is raised.
func (g *Gate) Paused() bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.paused
}

func (g *Gate) broadcastLocked() {
	close(g.changed)
	g.changed = make(chan struct{})
}
