// File: internal/logging/channel_writer.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0

package logging

import (
	"bytes"
	"errors"

	"github.com/rs/zerolog"

	"github.com/momentics/hioload-worker/api"
	"github.com/momentics/hioload-worker/protocol"
)

// LogSink accepts tagged log lines. The control channel implements it.
type LogSink interface {
	SendLog(tag byte, line []byte) error
}

// ChannelWriter forwards log lines to a LogSink as log frames.
type ChannelWriter struct {
	sink    LogSink
	sending bool
}

// NewChannelWriter wraps sink.
func NewChannelWriter(sink LogSink) *ChannelWriter {
	return &ChannelWriter{sink: sink}
}

// TagFor returns the log frame tag for a zerolog level.
func TagFor(l zerolog.Level) byte {
	switch l {
	case zerolog.TraceLevel, zerolog.DebugLevel:
		return protocol.TagLogDebug
	case zerolog.InfoLevel, zerolog.WarnLevel:
		return protocol.TagLogWarn
	case zerolog.ErrorLevel, zerolog.FatalLevel, zerolog.PanicLevel:
		return protocol.TagLogError
	default:
		return protocol.TagLogDump
	}
}

func (w *ChannelWriter) Write(p []byte) (int, error) {
	return w.WriteLevel(zerolog.NoLevel, p)
}

// WriteLevel sends p without its trailing newline. Lines written after the
// channel closed, or logged by the sink while it sends, are dropped.
func (w *ChannelWriter) WriteLevel(l zerolog.Level, p []byte) (int, error) {
	if w.sending {
		return len(p), nil
	}
	w.sending = true
	defer func() { w.sending = false }()

	line := bytes.TrimRight(p, "\n")
	if err := w.sink.SendLog(TagFor(l), line); err != nil && !errors.Is(err, api.ErrTransportClosed) {
		return 0, err
	}
	return len(p), nil
}
