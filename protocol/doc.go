// Package protocol
// Author: momentics <momentics@gmail.com>
//
// Implements the worker channel wire protocol.
//
// Every record on a channel socket is a length-prefixed frame whose first
// body byte is a tag selecting how the rest is interpreted:
//   - JSON control messages (requests, notifications, responses)
//   - raw binary payloads following a header on the payload channel
//   - log lines written by the worker
//
// The decoder is streaming-safe: it accepts bytes in arbitrary chunks and
// yields frames only once complete.
package protocol
