//go:build !linux
// +build !linux

// File: reactor/reactor_stub.go
// Author: momentics <momentics@gmail.com>
//
// Stub implementation for unsupported platforms.

package reactor

import (
	"errors"
	"time"
)

var processStart = time.Now()

// newPoller returns an error for unsupported platforms.
func newPoller() (poller, error) {
	return nil, errors.New("reactor: this platform is not supported")
}

func hrtime() uint64 {
	return uint64(time.Since(processStart))
}
