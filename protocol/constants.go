// Package protocol
// Author: momentics <momentics@gmail.com>
//
// Worker channel wire protocol constants

package protocol

const (
	// Frame tags
	TagJSON     byte = 'J'
	TagPayload  byte = 'P'
	TagLogDebug byte = 'D'
	TagLogWarn  byte = 'W'
	TagLogError byte = 'E'
	TagLogDump  byte = 'X'

	// Frame limit settings
	PrefixLen           = 4
	DefaultMaxFrameBody = 4*1024*1024 + 1 // 4 MiB of content plus the tag byte

	// Response error kinds
	ErrorKindError     = "Error"
	ErrorKindTypeError = "TypeError"

	// Built-in notification sent once the worker is ready.
	EventRunning = "running"
)

// IsLogTag reports whether tag marks a log record.
func IsLogTag(tag byte) bool {
	switch tag {
	case TagLogDebug, TagLogWarn, TagLogError, TagLogDump:
		return true
	}
	return false
}
