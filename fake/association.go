// Package fake
// Author: momentics <momentics@gmail.com>
//
// Fake implementations for testing and development.
// Provides predictable, controllable behavior for the worker contracts.

package fake

import (
	"sync/atomic"
)

// Association is a fake api.Association that records clock advances.
// Counters are atomic so tests may read them from outside the loop.
type Association struct {
	id      uint64
	elapsed atomic.Uint64
	ticks   atomic.Uint64

	// OnAdvance, when set, runs inside AdvanceClock on the loop goroutine.
	OnAdvance func(a *Association, elapsedMs uint64)
}

// NewAssociation creates a fake association with the given id.
func NewAssociation(id uint64) *Association {
	return &Association{id: id}
}

func (a *Association) ID() uint64 { return a.id }

func (a *Association) AdvanceClock(elapsedMs uint64) {
	a.elapsed.Add(elapsedMs)
	a.ticks.Add(1)
	if a.OnAdvance != nil {
		a.OnAdvance(a, elapsedMs)
	}
}

// Elapsed returns the total clock advance in ms.
func (a *Association) Elapsed() uint64 { return a.elapsed.Load() }

// Ticks returns how many times AdvanceClock ran.
func (a *Association) Ticks() uint64 { return a.ticks.Load() }
