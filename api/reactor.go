// File: api/reactor.go
// Author: momentics <momentics@gmail.com>
//
// Defines the abstract interface of the event reactor as seen by the
// components it drives (endpoints, timers, registry).

package api

// IOEvent is a bitmask of fd readiness conditions.
type IOEvent uint8

const (
	EventRead IOEvent = 1 << iota
	EventWrite
	EventError
)

// IOCallback is invoked on the reactor goroutine when fd becomes ready.
type IOCallback func(fd int, events IOEvent)

// Reactor multiplexes fd readiness for the single loop goroutine.
type Reactor interface {
	Clock

	// Register must associate fd with the loop for the given interest set.
	Register(fd int, events IOEvent, cb IOCallback) error

	// Modify must replace the interest set of an already registered fd.
	Modify(fd int, events IOEvent) error

	// Unregister must detach fd; it is a no-op for unknown fds.
	Unregister(fd int) error
}
