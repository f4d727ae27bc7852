// File: internal/transport/doc.go
// Package transport
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
//
// Unidirectional non-blocking socket endpoints driven by the reactor.
// A Consumer reads and frames inbound bytes, a Producer writes outbound
// frames and queues what the OS buffer cannot take. Both close exactly once
// and report the closure to their owner.

package transport
