// Author: momentics <momentics@gmail.com>
// SPDX-License-Identifier: MIT

package fake

import (
	"fmt"

	"github.com/momentics/hioload-worker/api"
)

// Reactor is a manual api.Reactor. It records registrations and lets tests
// fire readiness callbacks directly. Its clock is a Clock.
type Reactor struct {
	*Clock
	Handles map[int]*Handle
	Mods    []api.IOEvent
}

// Handle is one registered fd.
type Handle struct {
	Events api.IOEvent
	CB     api.IOCallback
}

// NewReactor returns an empty reactor with its clock at zero.
func NewReactor() *Reactor {
	return &Reactor{Clock: &Clock{}, Handles: make(map[int]*Handle)}
}

func (r *Reactor) Register(fd int, events api.IOEvent, cb api.IOCallback) error {
	if _, ok := r.Handles[fd]; ok {
		return fmt.Errorf("fake register fd %d: %w", fd, api.ErrAlreadyExists)
	}
	r.Handles[fd] = &Handle{Events: events, CB: cb}
	return nil
}

func (r *Reactor) Modify(fd int, events api.IOEvent) error {
	h, ok := r.Handles[fd]
	if !ok {
		return fmt.Errorf("fake modify fd %d: %w", fd, api.ErrNotFound)
	}
	h.Events = events
	r.Mods = append(r.Mods, events)
	return nil
}

func (r *Reactor) Unregister(fd int) error {
	delete(r.Handles, fd)
	return nil
}

// Fire invokes the callback of fd as if the poller reported events.
func (r *Reactor) Fire(fd int, events api.IOEvent) bool {
	h, ok := r.Handles[fd]
	if !ok {
		return false
	}
	h.CB(fd, events)
	return true
}
