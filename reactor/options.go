// File: reactor/options.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0

package reactor

import "github.com/rs/zerolog"

// Option customizes loop initialization.
type Option func(*Loop)

// WithLogger sets the logger used to report recovered callback panics.
func WithLogger(log zerolog.Logger) Option {
	return func(l *Loop) {
		l.log = log.With().Str("component", "reactor").Logger()
	}
}

// WithCPU pins the thread running Run to the given logical CPU. A negative
// value leaves scheduling to the OS.
func WithCPU(cpu int) Option {
	return func(l *Loop) {
		l.cpu = cpu
	}
}
