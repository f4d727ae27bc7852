// File: protocol/frame_codec.go
// Package protocol implements the streaming frame codec with frame size enforcement.
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
//
// Frames are [uint32 LE length][tag][content]. The length counts the tag
// byte, so a valid frame always has length >= 1.

package protocol

import (
	"encoding/binary"
	"fmt"

	"github.com/momentics/hioload-worker/api"
)

// Frame is one decoded record. Body excludes the tag and is owned by the
// receiver.
type Frame struct {
	Tag  byte
	Body []byte
}

// AppendFrame serializes a frame onto dst. maxBody <= 0 selects
// DefaultMaxFrameBody.
func AppendFrame(dst []byte, tag byte, content []byte, maxBody int) ([]byte, error) {
	if maxBody <= 0 {
		maxBody = DefaultMaxFrameBody
	}
	length := len(content) + 1
	if length > maxBody {
		return dst, fmt.Errorf("encode frame of %d bytes: %w", length, api.ErrFrameTooLarge)
	}
	var hdr [PrefixLen + 1]byte
	binary.LittleEndian.PutUint32(hdr[:PrefixLen], uint32(length))
	hdr[PrefixLen] = tag
	dst = append(dst, hdr[:]...)
	return append(dst, content...), nil
}

// Decoder accumulates stream bytes and splits them into frames.
// A Decoder that returned an error stays failed until Reset.
type Decoder struct {
	buf     []byte
	off     int // start of the next undecoded frame
	maxBody int
	err     error
}

// NewDecoder creates a decoder enforcing maxBody (<= 0 selects
// DefaultMaxFrameBody) with an initial buffer of capacity bytes.
func NewDecoder(maxBody, capacity int) *Decoder {
	if maxBody <= 0 {
		maxBody = DefaultMaxFrameBody
	}
	if capacity <= 0 {
		capacity = 64 * 1024
	}
	return &Decoder{
		buf:     make([]byte, 0, capacity),
		maxBody: maxBody,
	}
}

// Feed appends p to the receive buffer.
func (d *Decoder) Feed(p []byte) {
	d.compact(len(p))
	d.buf = append(d.buf, p...)
}

// Writable returns spare buffer space of at least n bytes for a direct read.
// Call Commit with the number of bytes actually written.
func (d *Decoder) Writable(n int) []byte {
	d.compact(n)
	if cap(d.buf)-len(d.buf) < n {
		grown := make([]byte, len(d.buf), 2*cap(d.buf)+n)
		copy(grown, d.buf)
		d.buf = grown
	}
	return d.buf[len(d.buf):cap(d.buf)]
}

// Commit marks n bytes of the last Writable slice as received.
func (d *Decoder) Commit(n int) {
	d.buf = d.buf[:len(d.buf)+n]
}

// Next returns the next complete frame. ok is false when more bytes are
// needed.
func (d *Decoder) Next() (f Frame, ok bool, err error) {
	if d.err != nil {
		return Frame{}, false, d.err
	}
	pending := d.buf[d.off:]
	if len(pending) < PrefixLen {
		d.resetIfDrained()
		return Frame{}, false, nil
	}
	length := binary.LittleEndian.Uint32(pending[:PrefixLen])
	switch {
	case length == 0:
		d.err = fmt.Errorf("decode frame: zero length: %w", api.ErrMalformedFrame)
		return Frame{}, false, d.err
	case uint64(length) > uint64(d.maxBody):
		d.err = fmt.Errorf("decode frame: length %d exceeds %d: %w", length, d.maxBody, api.ErrFrameTooLarge)
		return Frame{}, false, d.err
	}
	total := PrefixLen + int(length)
	if len(pending) < total {
		return Frame{}, false, nil
	}
	body := make([]byte, int(length)-1)
	copy(body, pending[PrefixLen+1:total])
	f = Frame{Tag: pending[PrefixLen], Body: body}
	d.off += total
	d.resetIfDrained()
	return f, true, nil
}

// Buffered returns the number of received bytes not yet returned as frames.
func (d *Decoder) Buffered() int { return len(d.buf) - d.off }

// Err returns the sticky decode error, if any.
func (d *Decoder) Err() error { return d.err }

// Reset discards buffered bytes and clears the error.
func (d *Decoder) Reset() {
	d.buf = d.buf[:0]
	d.off = 0
	d.err = nil
}

func (d *Decoder) resetIfDrained() {
	if d.off == len(d.buf) {
		d.buf = d.buf[:0]
		d.off = 0
	}
}

// compact moves the undecoded tail to the front when the buffer lacks room
// for n more bytes.
func (d *Decoder) compact(n int) {
	if d.off == 0 || cap(d.buf)-len(d.buf) >= n {
		return
	}
	rest := copy(d.buf, d.buf[d.off:])
	d.buf = d.buf[:rest]
	d.off = 0
}
