// File: internal/transport/producer.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
//
// Write-only endpoint with an overflow queue drained on writability.

package transport

import (
	"fmt"

	"github.com/eapache/queue"
	"github.com/rs/zerolog"
	"golang.org/x/sys/unix"

	"github.com/momentics/hioload-worker/api"
)

// Producer writes immediately when the socket accepts the bytes and queues
// the remainder otherwise. Queued buffers are flushed in order once the fd
// becomes writable again.
type Producer struct {
	endpoint
	pending    *queue.Queue // of []byte
	headOff    int          // bytes of the front buffer already written
	queued     int
	writeArmed bool

	bytesWritten uint64
}

// NewProducer puts fd in non-blocking mode and registers it with an empty
// interest set, so only errors and hangups are reported until a write
// backs up.
func NewProducer(loop api.Reactor, fd int, log zerolog.Logger, onClosed CloseHandler) (*Producer, error) {
	if err := unix.SetNonblock(fd, true); err != nil {
		return nil, fmt.Errorf("new producer fd %d: %w", fd, err)
	}
	p := &Producer{
		endpoint: newEndpoint(loop, fd, api.RoleProducer, log, onClosed),
		pending:  queue.New(),
	}
	if err := loop.Register(fd, 0, p.onReady); err != nil {
		return nil, fmt.Errorf("new producer: %w", err)
	}
	return p, nil
}

// Write sends b, taking ownership of it. Bytes the kernel does not accept
// now are queued. After closure Write returns ErrTransportClosed.
func (p *Producer) Write(b []byte) error {
	if !p.isOpen() {
		return fmt.Errorf("producer fd %d: %w", p.fd, api.ErrTransportClosed)
	}
	if len(b) == 0 {
		return nil
	}
	if p.pending.Length() == 0 {
		n, err := p.writeSome(b)
		if err != nil {
			p.fail(err)
			return fmt.Errorf("producer fd %d: %v: %w", p.fd, err, api.ErrTransportClosed)
		}
		if n == len(b) {
			return nil
		}
		b = b[n:]
	}
	p.pending.Add(b)
	p.queued += len(b)
	p.armWrite(true)
	return nil
}

// Pending returns the number of queued, unwritten bytes.
func (p *Producer) Pending() int { return p.queued - p.headOff }

// BytesWritten returns the number of bytes accepted by the kernel.
func (p *Producer) BytesWritten() uint64 { return p.bytesWritten }

// Close makes a last non-blocking attempt to flush the queue, then releases
// the fd and notifies the owner with a nil cause. Unflushed bytes are
// dropped.
func (p *Producer) Close() {
	if !p.beginClose() {
		return
	}
	if err := p.flush(); err != nil {
		p.log.Debug().Err(err).Msg("final flush failed")
	}
	if dropped := p.Pending(); dropped > 0 {
		p.log.Warn().Int("bytes", dropped).Msg("dropping unflushed output")
	}
	p.finishClose(nil)
}

func (p *Producer) fail(cause error) {
	if p.beginClose() {
		p.finishClose(cause)
	}
}

func (p *Producer) onReady(_ int, events api.IOEvent) {
	if !p.isOpen() {
		return
	}
	if events&api.EventWrite != 0 {
		if err := p.flush(); err != nil {
			p.fail(err)
			return
		}
		if p.pending.Length() == 0 {
			p.armWrite(false)
		}
		return
	}
	if events&api.EventError != 0 {
		p.fail(fmt.Errorf("producer fd %d: peer hung up", p.fd))
	}
}

// flush writes queued buffers until the kernel pushes back.
func (p *Producer) flush() error {
	for p.pending.Length() > 0 {
		head := p.pending.Peek().([]byte)
		n, err := p.writeSome(head[p.headOff:])
		if err != nil {
			return err
		}
		p.headOff += n
		if p.headOff < len(head) {
			return nil
		}
		p.pending.Remove()
		p.queued -= len(head)
		p.headOff = 0
	}
	return nil
}

// writeSome performs one non-blocking write. EAGAIN yields n == 0.
func (p *Producer) writeSome(b []byte) (int, error) {
	for {
		n, err := unix.Write(p.fd, b)
		switch {
		case err == unix.EINTR:
			continue
		case err == unix.EAGAIN:
			return 0, nil
		case err != nil:
			return 0, fmt.Errorf("producer write: %w", err)
		}
		p.bytesWritten += uint64(n)
		return n, nil
	}
}

func (p *Producer) armWrite(on bool) {
	if p.writeArmed == on {
		return
	}
	var events api.IOEvent
	if on {
		events = api.EventWrite
	}
	if err := p.loop.Modify(p.fd, events); err != nil {
		p.log.Warn().Err(err).Bool("write", on).Msg("modify interest failed")
		return
	}
	p.writeArmed = on
}
