// File: channel/channel.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
//
// JSON-only control channel: inbound requests, outbound notifications,
// responses and log lines over a Consumer/Producer socket pair.

package channel

import (
	"encoding/json"
	"fmt"

	"github.com/rs/zerolog"

	"github.com/momentics/hioload-worker/api"
	"github.com/momentics/hioload-worker/control"
	"github.com/momentics/hioload-worker/internal/jsoncodec"
	"github.com/momentics/hioload-worker/internal/transport"
	"github.com/momentics/hioload-worker/protocol"
)

// RequestListener receives every decoded request. Implementations may also
// satisfy ClosedListener and DecodeErrorListener.
type RequestListener interface {
	HandleRequest(ch *Channel, req *protocol.Request)
}

// ClosedListener is notified once when the channel closes.
type ClosedListener interface {
	HandleChannelClosed(ch *Channel, cause error)
}

// DecodeErrorListener is notified for every inbound frame that could not
// be decoded. Parsing continues with the next frame.
type DecodeErrorListener interface {
	HandleDecodeError(ch *Channel, err error)
}

// Config tunes a Channel.
type Config struct {
	MaxFrameBody int
	ReadSize     int
	Logger       zerolog.Logger
	Metrics      *control.Metrics
}

// Channel is owned by the loop goroutine.
type Channel struct {
	consumer *transport.Consumer
	producer *transport.Producer

	onRequest RequestListener
	onClosed  ClosedListener
	onDecode  DecodeErrorListener

	maxBody int
	log     zerolog.Logger
	metrics *control.Metrics
	stats   api.TransportStats
	closed  bool
}

// New wires a channel over consumerFd (read) and producerFd (write). The
// channel owns both fds from here on, including on error.
func New(loop api.Reactor, consumerFd, producerFd int, cfg Config) (*Channel, error) {
	c := &Channel{
		maxBody: cfg.MaxFrameBody,
		log:     cfg.Logger.With().Str("component", control.TransportChannel).Logger(),
		metrics: cfg.Metrics,
	}
	if c.maxBody <= 0 {
		c.maxBody = protocol.DefaultMaxFrameBody
	}
	producer, err := transport.NewProducer(loop, producerFd, c.log, c.endpointClosed)
	if err != nil {
		transport.CloseFDs(consumerFd, producerFd)
		return nil, fmt.Errorf("channel: %w", err)
	}
	consumer, err := transport.NewConsumer(loop, consumerFd, transport.ConsumerConfig{
		ReadSize:     cfg.ReadSize,
		MaxFrameBody: c.maxBody,
		Logger:       c.log,
	}, c.handleFrame, c.endpointClosed)
	if err != nil {
		producer.Close()
		transport.CloseFDs(consumerFd)
		return nil, fmt.Errorf("channel: %w", err)
	}
	c.consumer, c.producer = consumer, producer
	return c, nil
}

// SetListener installs l and detects its optional roles.
func (c *Channel) SetListener(l RequestListener) {
	c.onRequest = l
	c.onClosed, _ = l.(ClosedListener)
	c.onDecode, _ = l.(DecodeErrorListener)
}

// Send serializes v as a JSON frame. v may be a json.RawMessage holding a
// pre-encoded document.
func (c *Channel) Send(v any) error {
	body, err := encode(v)
	if err != nil {
		return fmt.Errorf("channel send: %w", err)
	}
	return c.write(protocol.TagJSON, body)
}

// SendNotification sends n as a JSON frame.
func (c *Channel) SendNotification(n *protocol.Notification) error {
	return c.Send(n)
}

// SendResponse implements protocol.Responder.
func (c *Channel) SendResponse(r *protocol.Response) error {
	return c.Send(r)
}

// SendLog writes a log record. tag must be one of the log tags.
func (c *Channel) SendLog(tag byte, line []byte) error {
	if !protocol.IsLogTag(tag) {
		return fmt.Errorf("channel send log tag %q: %w", tag, api.ErrInvalidArgument)
	}
	return c.write(tag, line)
}

// Close closes both endpoints and notifies the listener once.
func (c *Channel) Close() {
	c.shutdown(nil)
}

// Closed reports whether the channel is closed.
func (c *Channel) Closed() bool { return c.closed }

// Stats returns the transport counters.
func (c *Channel) Stats() api.TransportStats { return c.stats }

// States returns the consumer and producer lifecycle states.
func (c *Channel) States() (consumer, producer api.EndpointState) {
	return c.consumer.State(), c.producer.State()
}

func (c *Channel) write(tag byte, content []byte) error {
	if c.closed {
		return fmt.Errorf("channel: %w", api.ErrTransportClosed)
	}
	frame, err := protocol.AppendFrame(nil, tag, content, c.maxBody)
	if err != nil {
		return fmt.Errorf("channel: %w", err)
	}
	if err := c.producer.Write(frame); err != nil {
		return fmt.Errorf("channel: %w", err)
	}
	c.stats.FramesSent++
	c.stats.BytesSent += uint64(len(frame))
	c.metrics.FrameSent(control.TransportChannel, len(frame))
	return nil
}

func (c *Channel) handleFrame(f protocol.Frame) {
	n := protocol.PrefixLen + 1 + len(f.Body)
	c.stats.FramesReceived++
	c.stats.BytesReceived += uint64(n)
	c.metrics.FrameReceived(control.TransportChannel, n)

	if f.Tag != protocol.TagJSON {
		c.decodeError(fmt.Errorf("unexpected frame tag %q: %w", f.Tag, api.ErrDecode))
		return
	}
	req, err := protocol.DecodeRequest(f.Body)
	if err != nil {
		c.decodeError(err)
		return
	}
	req.Bind(c)
	if c.onRequest == nil {
		c.log.Warn().Uint32("id", req.ID).Str("method", req.Method).Msg("request without listener")
		_ = req.Error("no request listener")
		return
	}
	c.onRequest.HandleRequest(c, req)
}

func (c *Channel) decodeError(err error) {
	c.stats.DecodeErrors++
	c.metrics.DecodeError(control.TransportChannel)
	if c.onDecode != nil {
		c.onDecode.HandleDecodeError(c, err)
		return
	}
	c.log.Warn().Err(err).Msg("discarding invalid frame")
}

func (c *Channel) endpointClosed(cause error) {
	c.shutdown(cause)
}

func (c *Channel) shutdown(cause error) {
	if c.closed {
		return
	}
	c.closed = true
	// Either half closing takes the other one down.
	if c.consumer != nil {
		c.consumer.Close()
	}
	if c.producer != nil {
		c.producer.Close()
	}
	c.metrics.TransportClosed(control.TransportChannel)
	if cause != nil {
		c.log.Debug().Err(cause).Msg("channel closed")
	}
	if c.onClosed != nil {
		c.onClosed.HandleChannelClosed(c, cause)
	}
}

func encode(v any) ([]byte, error) {
	if raw, ok := v.(json.RawMessage); ok {
		if !jsoncodec.Valid(raw) {
			return nil, fmt.Errorf("invalid raw message: %w", api.ErrInvalidArgument)
		}
		return raw, nil
	}
	return jsoncodec.Marshal(v)
}
