// File: api/association.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
//
// Contracts shared between the association registry and its users.

package api

// Association is an externally owned stateful object (for example an SCTP
// association) indexed by the registry and clock-ticked by its Checker.
type Association interface {
	// ID returns the process-unique id handed out by the registry.
	ID() uint64

	// AdvanceClock moves the association's internal clock forward.
	AdvanceClock(elapsedMs uint64)
}

// Clock is a monotonic time source unaffected by wall-clock adjustments.
type Clock interface {
	NowMs() uint64
	NowUs() uint64
	NowNs() uint64
}
