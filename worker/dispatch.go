// File: worker/dispatch.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0

package worker

import (
	"errors"
	"fmt"

	"github.com/momentics/hioload-worker/api"
	"github.com/momentics/hioload-worker/channel"
	"github.com/momentics/hioload-worker/control"
	"github.com/momentics/hioload-worker/payloadchannel"
	"github.com/momentics/hioload-worker/protocol"
)

// RequestHandler serves one method. A handler that returns without
// replying gets an empty Accept when err is nil and an error reply
// otherwise. Errors wrapping api.ErrInvalidArgument or
// control.ErrInvalidSettings become TypeError replies.
type RequestHandler func(w *Worker, req *protocol.Request) error

// NotificationHandler serves one payload channel notification.
type NotificationHandler func(w *Worker, n *protocol.Notification)

// HandleRequest adds or replaces a Channel method.
func (w *Worker) HandleRequest(method string, h RequestHandler) {
	w.methods[method] = h
}

// HandlePayloadRequest adds or replaces a Payload Channel method.
func (w *Worker) HandlePayloadRequest(method string, h RequestHandler) {
	w.payloadMethods[method] = h
}

// HandlePayloadNotification adds or replaces a Payload Channel
// notification handler.
func (w *Worker) HandlePayloadNotification(event string, h NotificationHandler) {
	w.payloadNotifications[event] = h
}

func (w *Worker) dispatch(table map[string]RequestHandler, req *protocol.Request) {
	h, ok := table[req.Method]
	if !ok {
		w.log.Warn().Str("method", req.Method).Uint32("id", req.ID).Msg("unknown method")
		w.reply(req, req.Error(fmt.Sprintf("unknown method %q", req.Method)))
		return
	}

	defer func() {
		rec := recover()
		if rec == nil {
			return
		}
		if inv, ok := rec.(*api.InvariantError); ok {
			panic(inv)
		}
		w.log.Error().Interface("panic", rec).Str("method", req.Method).Msg("request handler panicked")
		if !req.Replied() {
			w.reply(req, req.Error(fmt.Sprint(rec)))
		}
	}()

	err := h(w, req)
	if req.Replied() {
		if err != nil {
			w.log.Warn().Err(err).Str("method", req.Method).Msg("handler failed after replying")
		}
		return
	}
	switch {
	case err == nil:
		w.reply(req, req.Accept(nil))
	case errors.Is(err, api.ErrInvalidArgument), errors.Is(err, control.ErrInvalidSettings):
		w.reply(req, req.TypeError(err.Error()))
	default:
		w.reply(req, req.Error(err.Error()))
	}
}

func (w *Worker) reply(req *protocol.Request, err error) {
	if err != nil && !errors.Is(err, api.ErrTransportClosed) {
		w.log.Warn().Err(err).Uint32("id", req.ID).Str("method", req.Method).Msg("reply failed")
	}
}

type channelListener struct{ w *Worker }

func (l channelListener) HandleRequest(_ *channel.Channel, req *protocol.Request) {
	l.w.log.Debug().Uint32("id", req.ID).Str("method", req.Method).Msg("request")
	l.w.dispatch(l.w.methods, req)
}

func (l channelListener) HandleDecodeError(_ *channel.Channel, err error) {
	l.w.log.Warn().Err(err).Msg("discarding invalid channel message")
}

func (l channelListener) HandleChannelClosed(_ *channel.Channel, cause error) {
	if cause != nil {
		l.w.log.Warn().Err(cause).Msg("channel closed unexpectedly")
	}
	l.w.shutdown()
}

type payloadListener struct{ w *Worker }

func (l payloadListener) HandlePayloadRequest(_ *payloadchannel.PayloadChannel, req *protocol.Request) {
	l.w.log.Debug().Uint32("id", req.ID).Str("method", req.Method).Int("payload", len(req.Payload)).Msg("payload request")
	l.w.dispatch(l.w.payloadMethods, req)
}

func (l payloadListener) HandlePayloadNotification(_ *payloadchannel.PayloadChannel, n *protocol.Notification) {
	h, ok := l.w.payloadNotifications[n.Method]
	if !ok {
		l.w.log.Warn().Str("event", n.Method).Str("targetId", n.TargetID).Msg("unhandled notification")
		return
	}
	h(l.w, n)
}

func (l payloadListener) HandlePayloadChannelError(_ *payloadchannel.PayloadChannel, err error) {
	l.w.log.Warn().Err(err).Msg("payload channel error")
}

func (l payloadListener) HandlePayloadChannelClosed(_ *payloadchannel.PayloadChannel, cause error) {
	if cause != nil {
		l.w.log.Warn().Err(cause).Msg("payload channel closed unexpectedly")
	}
}
