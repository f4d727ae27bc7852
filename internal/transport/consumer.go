// File: internal/transport/consumer.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
//
// Read-only endpoint feeding the frame decoder.

package transport

import (
	"fmt"

	"github.com/rs/zerolog"
	"golang.org/x/sys/unix"

	"github.com/momentics/hioload-worker/api"
	"github.com/momentics/hioload-worker/protocol"
)

// DefaultReadSize is the minimum free space offered to each read(2).
const DefaultReadSize = 64 * 1024

// maxReadsPerWakeup bounds one readiness callback so a chatty peer cannot
// starve timers. Epoll is level-triggered, the rest is picked up next turn.
const maxReadsPerWakeup = 16

// FrameHandler receives decoded frames in wire order.
type FrameHandler func(f protocol.Frame)

// ConsumerConfig tunes a Consumer.
type ConsumerConfig struct {
	ReadSize     int
	MaxFrameBody int
	Logger       zerolog.Logger
}

// Consumer reads its fd on readiness, splits the stream into frames and
// hands them to its owner. A framing error or EOF closes it.
type Consumer struct {
	endpoint
	dec      *protocol.Decoder
	readSize int
	onFrame  FrameHandler

	bytesRead  uint64
	framesRead uint64
}

// NewConsumer puts fd in non-blocking mode and registers it for reading.
func NewConsumer(loop api.Reactor, fd int, cfg ConsumerConfig, onFrame FrameHandler, onClosed CloseHandler) (*Consumer, error) {
	if onFrame == nil {
		return nil, fmt.Errorf("new consumer: nil frame handler: %w", api.ErrInvalidArgument)
	}
	if cfg.ReadSize <= 0 {
		cfg.ReadSize = DefaultReadSize
	}
	if err := unix.SetNonblock(fd, true); err != nil {
		return nil, fmt.Errorf("new consumer fd %d: %w", fd, err)
	}
	c := &Consumer{
		endpoint: newEndpoint(loop, fd, api.RoleConsumer, cfg.Logger, onClosed),
		dec:      protocol.NewDecoder(cfg.MaxFrameBody, cfg.ReadSize),
		readSize: cfg.ReadSize,
		onFrame:  onFrame,
	}
	if err := loop.Register(fd, api.EventRead, c.onReady); err != nil {
		return nil, fmt.Errorf("new consumer: %w", err)
	}
	return c, nil
}

// Close releases the fd and notifies the owner with a nil cause.
func (c *Consumer) Close() {
	if c.beginClose() {
		c.finishClose(nil)
	}
}

// BytesRead returns the number of bytes received so far.
func (c *Consumer) BytesRead() uint64 { return c.bytesRead }

// FramesRead returns the number of frames delivered so far.
func (c *Consumer) FramesRead() uint64 { return c.framesRead }

// Buffered returns received bytes that do not form a complete frame yet.
func (c *Consumer) Buffered() int { return c.dec.Buffered() }

func (c *Consumer) fail(cause error) {
	if c.beginClose() {
		c.finishClose(cause)
	}
}

func (c *Consumer) onReady(_ int, _ api.IOEvent) {
	// Errors and hangups surface through read(2) below.
	for i := 0; i < maxReadsPerWakeup && c.isOpen(); i++ {
		buf := c.dec.Writable(c.readSize)
		n, err := unix.Read(c.fd, buf)
		switch {
		case err == unix.EINTR:
			continue
		case err == unix.EAGAIN:
			return
		case err != nil:
			c.fail(fmt.Errorf("consumer read: %w", err))
			return
		case n == 0:
			c.fail(nil)
			return
		}
		c.dec.Commit(n)
		c.bytesRead += uint64(n)
		c.drain()
	}
}

// drain dispatches every complete frame. It stops as soon as the handler
// closes the consumer.
func (c *Consumer) drain() {
	for c.isOpen() {
		f, ok, err := c.dec.Next()
		if err != nil {
			c.fail(fmt.Errorf("consumer fd %d: %w", c.fd, err))
			return
		}
		if !ok {
			return
		}
		c.framesRead++
		c.onFrame(f)
	}
}
