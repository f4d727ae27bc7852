// File: internal/logging/logging.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
//
// Process logger with a runtime-adjustable level and a swappable output,
// so logs can move from stderr to the control channel once it is open.

package logging

import (
	"io"
	"strings"
	"sync/atomic"

	"github.com/rs/zerolog"
)

// ParseLevel maps worker level names (debug, warn, error, none) and any
// zerolog level name to a zerolog.Level. Unknown names select warn.
func ParseLevel(level string) zerolog.Level {
	switch strings.ToLower(level) {
	case "none":
		return zerolog.Disabled
	case "":
		return zerolog.WarnLevel
	}
	l, err := zerolog.ParseLevel(strings.ToLower(level))
	if err != nil || l == zerolog.NoLevel {
		return zerolog.WarnLevel
	}
	return l
}

type outBox struct{ w zerolog.LevelWriter }

// Root owns the process logger. Every component logger derives from it and
// shares its level and output.
type Root struct {
	level  atomic.Int32
	out    atomic.Pointer[outBox]
	logger zerolog.Logger
}

// NewRoot creates a root writing to w at level.
func NewRoot(w io.Writer, level string) *Root {
	r := &Root{}
	r.level.Store(int32(ParseLevel(level)))
	r.Redirect(w)
	r.logger = zerolog.New(r).With().Timestamp().Logger()
	return r
}

// Logger returns the root logger.
func (r *Root) Logger() zerolog.Logger { return r.logger }

// Component returns a logger tagged with component=name.
func (r *Root) Component(name string) zerolog.Logger {
	return r.logger.With().Str("component", name).Logger()
}

// SetLevel changes the level for every derived logger.
func (r *Root) SetLevel(level string) {
	r.level.Store(int32(ParseLevel(level)))
}

// Level returns the active level.
func (r *Root) Level() zerolog.Level { return zerolog.Level(r.level.Load()) }

// Redirect replaces the output with the given writers.
func (r *Root) Redirect(writers ...io.Writer) {
	var lw zerolog.LevelWriter
	if len(writers) == 1 {
		if w, ok := writers[0].(zerolog.LevelWriter); ok {
			lw = w
		}
	}
	if lw == nil {
		lw = zerolog.MultiLevelWriter(writers...)
	}
	r.out.Store(&outBox{w: lw})
}

// Write implements io.Writer for events without a level.
func (r *Root) Write(p []byte) (int, error) {
	return r.WriteLevel(zerolog.NoLevel, p)
}

// WriteLevel implements zerolog.LevelWriter.
func (r *Root) WriteLevel(l zerolog.Level, p []byte) (int, error) {
	threshold := r.Level()
	if threshold == zerolog.Disabled || (l != zerolog.NoLevel && l < threshold) {
		return len(p), nil
	}
	return r.out.Load().w.WriteLevel(l, p)
}
