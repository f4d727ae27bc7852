// File: payloadchannel/payload_channel.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
//
// Payload channel: JSON requests and notifications that may each be
// followed by exactly one binary payload frame.

package payloadchannel

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

// RequestListener receives complete requests.
type RequestListener interface {
	HandlePayloadRequest(ch *PayloadChannel, req *protocol.Request)
}

// NotificationListener receives complete notifications.
type NotificationListener interface {
	HandlePayloadNotification(ch *PayloadChannel, n *protocol.Notification)
}

// ClosedListener is notified once when the channel closes.
type ClosedListener interface {
	HandlePayloadChannelClosed(ch *PayloadChannel, cause error)
}

// ErrorListener receives decode errors (api.ErrDecode). Parsing resumes
// with the next frame.
type ErrorListener interface {
	HandlePayloadChannelError(ch *PayloadChannel, err error)
}

// Config tunes a PayloadChannel.
type Config struct {
	MaxFrameBody int
	ReadSize     int
	Logger       zerolog.Logger
	Metrics      *control.Metrics
}

type slotKind uint8

const (
	slotRequest slotKind = iota + 1
	slotNotification
)

// PayloadChannel is owned by the loop goroutine.
type PayloadChannel struct {
	consumer *transport.Consumer
	producer *transport.Producer

	onRequest      RequestListener
	onNotification NotificationListener
	onClosed       ClosedListener
	onError        ErrorListener

	// At most one ongoing message per kind. opened records the order in
	// which the slots were filled.
	ongoingRequest      *protocol.Request
	ongoingNotification *protocol.Notification
	opened              []slotKind

	maxBody int
	log     zerolog.Logger
	metrics *control.Metrics
	stats   api.TransportStats
	closed  bool
}

// New wires a payload channel over consumerFd (read) and producerFd
// (write). The channel owns both fds from here on, including on error.
func New(loop api.Reactor, consumerFd, producerFd int, cfg Config) (*PayloadChannel, error) {
	c := &PayloadChannel{
		maxBody: cfg.MaxFrameBody,
		log:     cfg.Logger.With().Str("component", control.TransportPayloadChannel).Logger(),
		metrics: cfg.Metrics,
		opened:  make([]slotKind, 0, 2),
	}
	if c.maxBody <= 0 {
		c.maxBody = protocol.DefaultMaxFrameBody
	}
	producer, err := transport.NewProducer(loop, producerFd, c.log, c.endpointClosed)
	if err != nil {
		transport.CloseFDs(consumerFd, producerFd)
		return nil, fmt.Errorf("payload channel: %w", err)
	}
	consumer, err := transport.NewConsumer(loop, consumerFd, transport.ConsumerConfig{
		ReadSize:     cfg.ReadSize,
		MaxFrameBody: c.maxBody,
		Logger:       c.log,
	}, c.handleFrame, c.endpointClosed)
	if err != nil {
		producer.Close()
		transport.CloseFDs(consumerFd)
		return nil, fmt.Errorf("payload channel: %w", err)
	}
	c.consumer, c.producer = consumer, producer
	return c, nil
}

// SetListener installs l. It must implement RequestListener,
// NotificationListener or both; ClosedListener and ErrorListener are
// optional.
func (c *PayloadChannel) SetListener(l any) error {
	req, hasReq := l.(RequestListener)
	notif, hasNotif := l.(NotificationListener)
	if !hasReq && !hasNotif {
		return fmt.Errorf("payload channel listener %T: %w", l, api.ErrInvalidArgument)
	}
	c.onRequest, c.onNotification = req, notif
	c.onClosed, _ = l.(ClosedListener)
	c.onError, _ = l.(ErrorListener)
	return nil
}

// Send serializes v as a single JSON frame.
func (c *PayloadChannel) Send(v any) error {
	body, err := encode(v)
	if err != nil {
		return fmt.Errorf("payload channel send: %w", err)
	}
	frame, err := protocol.AppendFrame(nil, protocol.TagJSON, body, c.maxBody)
	if err != nil {
		return fmt.Errorf("payload channel send: %w", err)
	}
	return c.write(frame, len(frame))
}

// SendWithPayload writes v as a JSON header frame immediately followed by
// payload as a binary frame. v must carry "payload":true for the peer to
// expect the second frame; SendRequest and SendNotification set it.
func (c *PayloadChannel) SendWithPayload(v any, payload []byte) error {
	body, err := encode(v)
	if err != nil {
		return fmt.Errorf("payload channel send: %w", err)
	}
	buf := make([]byte, 0, 2*protocol.PrefixLen+2+len(body)+len(payload))
	if buf, err = protocol.AppendFrame(buf, protocol.TagJSON, body, c.maxBody); err != nil {
		return fmt.Errorf("payload channel send header: %w", err)
	}
	header := len(buf)
	if buf, err = protocol.AppendFrame(buf, protocol.TagPayload, payload, c.maxBody); err != nil {
		return fmt.Errorf("payload channel send payload: %w", err)
	}
	return c.write(buf, header, len(buf)-header)
}

// SendRequest sends req, followed by its Payload when one is set.
func (c *PayloadChannel) SendRequest(req *protocol.Request) error {
	if req.Payload == nil {
		req.HasPayload = false
		return c.Send(req)
	}
	req.HasPayload = true
	return c.SendWithPayload(req, req.Payload)
}

// SendNotification sends n, followed by its Payload when one is set.
func (c *PayloadChannel) SendNotification(n *protocol.Notification) error {
	if n.Payload == nil {
		n.HasPayload = false
		return c.Send(n)
	}
	n.HasPayload = true
	return c.SendWithPayload(n, n.Payload)
}

// SendResponse implements protocol.Responder.
func (c *PayloadChannel) SendResponse(r *protocol.Response) error {
	return c.Send(r)
}

// Close closes both endpoints, drops ongoing messages and notifies the
// listener once.
func (c *PayloadChannel) Close() {
	c.shutdown(nil)
}

// Closed reports whether the channel is closed.
func (c *PayloadChannel) Closed() bool { return c.closed }

// Stats returns the transport counters.
func (c *PayloadChannel) Stats() api.TransportStats { return c.stats }

// States returns the consumer and producer lifecycle states.
func (c *PayloadChannel) States() (consumer, producer api.EndpointState) {
	return c.consumer.State(), c.producer.State()
}

// Ongoing reports which message kinds are waiting for their payload.
func (c *PayloadChannel) Ongoing() (request, notification bool) {
	return c.ongoingRequest != nil, c.ongoingNotification != nil
}

// write hands buf to the producer. sizes holds the wire length of each
// frame packed in buf.
func (c *PayloadChannel) write(buf []byte, sizes ...int) error {
	if c.closed {
		return fmt.Errorf("payload channel: %w", api.ErrTransportClosed)
	}
	if err := c.producer.Write(buf); err != nil {
		return fmt.Errorf("payload channel: %w", err)
	}
	for _, n := range sizes {
		c.stats.FramesSent++
		c.stats.BytesSent += uint64(n)
		c.metrics.FrameSent(control.TransportPayloadChannel, n)
	}
	return nil
}

func (c *PayloadChannel) handleFrame(f protocol.Frame) {
	n := protocol.PrefixLen + 1 + len(f.Body)
	c.stats.FramesReceived++
	c.stats.BytesReceived += uint64(n)
	c.metrics.FrameReceived(control.TransportPayloadChannel, n)

	switch f.Tag {
	case protocol.TagJSON:
		c.handleHeader(f.Body)
	case protocol.TagPayload:
		c.handlePayload(f.Body)
	default:
		c.decodeError(fmt.Errorf("unexpected frame tag %q: %w", f.Tag, api.ErrDecode))
	}
}

func (c *PayloadChannel) handleHeader(body []byte) {
	req, notif, err := protocol.DecodeMessage(body)
	if err != nil {
		c.decodeError(err)
		return
	}
	if req != nil {
		req.Bind(c)
		if !req.HasPayload {
			c.dispatchRequest(req)
			return
		}
		if c.ongoingRequest != nil {
			c.protocolError(fmt.Errorf("request %d while request %d awaits its payload: %w", req.ID, c.ongoingRequest.ID, api.ErrProtocol))
			return
		}
		c.ongoingRequest = req
		c.opened = append(c.opened, slotRequest)
		return
	}
	if !notif.HasPayload {
		c.dispatchNotification(notif)
		return
	}
	if c.ongoingNotification != nil {
		c.protocolError(fmt.Errorf("notification %q while %q awaits its payload: %w", notif.Method, c.ongoingNotification.Method, api.ErrProtocol))
		return
	}
	c.ongoingNotification = notif
	c.opened = append(c.opened, slotNotification)
}

func (c *PayloadChannel) handlePayload(payload []byte) {
	if len(c.opened) == 0 {
		c.protocolError(fmt.Errorf("payload of %d bytes without header: %w", len(payload), api.ErrProtocol))
		return
	}
	switch c.opened[len(c.opened)-1] {
	case slotRequest:
		req := c.ongoingRequest
		c.clearSlot(slotRequest)
		req.Payload = payload
		c.dispatchRequest(req)
	case slotNotification:
		notif := c.ongoingNotification
		c.clearSlot(slotNotification)
		notif.Payload = payload
		c.dispatchNotification(notif)
	}
}

func (c *PayloadChannel) clearSlot(kind slotKind) {
	switch kind {
	case slotRequest:
		c.ongoingRequest = nil
	case slotNotification:
		c.ongoingNotification = nil
	}
	for i, k := range c.opened {
		if k == kind {
			c.opened = append(c.opened[:i], c.opened[i+1:]...)
			return
		}
	}
}

func (c *PayloadChannel) dispatchRequest(req *protocol.Request) {
	if c.onRequest == nil {
		c.log.Warn().Uint32("id", req.ID).Str("method", req.Method).Msg("request without listener")
		_ = req.Error("no request listener")
		return
	}
	c.onRequest.HandlePayloadRequest(c, req)
}

func (c *PayloadChannel) dispatchNotification(n *protocol.Notification) {
	if c.onNotification == nil {
		c.log.Warn().Str("method", n.Method).Msg("notification without listener")
		return
	}
	c.onNotification.HandlePayloadNotification(c, n)
}

func (c *PayloadChannel) decodeError(err error) {
	c.stats.DecodeErrors++
	c.metrics.DecodeError(control.TransportPayloadChannel)
	c.report(err)
}

// protocolError closes the channel. The closed listener receives err as
// the cause.
func (c *PayloadChannel) protocolError(err error) {
	c.stats.ProtocolErrors++
	c.metrics.ProtocolError(control.TransportPayloadChannel)
	c.log.Warn().Err(err).Msg("payload protocol violation, closing")
	c.shutdown(err)
}

func (c *PayloadChannel) report(err error) {
	if c.onError != nil {
		c.onError.HandlePayloadChannelError(c, err)
		return
	}
	c.log.Warn().Err(err).Msg("discarding frame")
}

func (c *PayloadChannel) endpointClosed(cause error) {
	c.shutdown(cause)
}

func (c *PayloadChannel) shutdown(cause error) {
	if c.closed {
		return
	}
	c.closed = true
	if req, notif := c.Ongoing(); req || notif {
		c.log.Debug().Bool("request", req).Bool("notification", notif).Msg("discarding incomplete messages")
	}
	c.ongoingRequest, c.ongoingNotification = nil, nil
	c.opened = c.opened[:0]
	if c.consumer != nil {
		c.consumer.Close()
	}
	if c.producer != nil {
		c.producer.Close()
	}
	c.metrics.TransportClosed(control.TransportPayloadChannel)
	if cause != nil {
		c.log.Debug().Err(cause).Msg("payload channel closed")
	}
	if c.onClosed != nil {
		c.onClosed.HandlePayloadChannelClosed(c, cause)
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
