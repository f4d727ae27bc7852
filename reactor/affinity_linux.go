//go:build linux

// File: reactor/affinity_linux.go
// Author: momentics <momentics@gmail.com>
//
// Linux-specific thread CPU affinity for the loop goroutine.

package reactor

import (
	"fmt"

	"golang.org/x/sys/unix"
)

// pinThread binds the calling OS thread to cpu.
func pinThread(cpu int) error {
	var set unix.CPUSet
	set.Zero()
	set.Set(cpu)
	if err := unix.SchedSetaffinity(0, &set); err != nil {
		return fmt.Errorf("affinity: sched_setaffinity cpu %d: %w", cpu, err)
	}
	return nil
}
