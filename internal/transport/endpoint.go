// File: internal/transport/endpoint.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
//
// Shared fd ownership and open/closing/closed lifecycle.

package transport

import (
	"context"

	"github.com/looplab/fsm"
	"github.com/rs/zerolog"
	"golang.org/x/sys/unix"

	"github.com/momentics/hioload-worker/api"
)

const (
	evClose  = "close"
	evFinish = "finish"
)

// CloseHandler is invoked once when an endpoint closes. cause is nil for
// a local Close or an orderly EOF.
type CloseHandler func(cause error)

type endpoint struct {
	fd       int
	role     api.EndpointRole
	loop     api.Reactor
	state    *fsm.FSM
	log      zerolog.Logger
	onClosed CloseHandler
}

func newEndpoint(loop api.Reactor, fd int, role api.EndpointRole, log zerolog.Logger, onClosed CloseHandler) endpoint {
	e := endpoint{
		fd:       fd,
		role:     role,
		loop:     loop,
		log:      log.With().Str("role", string(role)).Int("fd", fd).Logger(),
		onClosed: onClosed,
	}
	logger := e.log
	e.state = fsm.NewFSM(
		string(api.EndpointOpen),
		fsm.Events{
			{Name: evClose, Src: []string{string(api.EndpointOpen)}, Dst: string(api.EndpointClosing)},
			{Name: evFinish, Src: []string{string(api.EndpointClosing)}, Dst: string(api.EndpointClosed)},
		},
		fsm.Callbacks{
			"enter_state": func(_ context.Context, ev *fsm.Event) {
				logger.Debug().Str("from", ev.Src).Str("to", ev.Dst).Msg("endpoint state changed")
			},
		},
	)
	return e
}

// State returns the lifecycle state.
func (e *endpoint) State() api.EndpointState {
	return api.EndpointState(e.state.Current())
}

// Role returns the fixed endpoint role.
func (e *endpoint) Role() api.EndpointRole { return e.role }

// FD returns the owned file descriptor.
func (e *endpoint) FD() int { return e.fd }

func (e *endpoint) isOpen() bool {
	return e.state.Is(string(api.EndpointOpen))
}

// beginClose moves open to closing. It reports false if the endpoint was
// already closing or closed.
func (e *endpoint) beginClose() bool {
	if !e.isOpen() {
		return false
	}
	_ = e.state.Event(context.Background(), evClose)
	return true
}

// finishClose releases the fd and notifies the owner. Listeners run after
// the state machine settled so they may inspect State freely.
func (e *endpoint) finishClose(cause error) {
	if err := e.loop.Unregister(e.fd); err != nil {
		e.log.Warn().Err(err).Msg("unregister failed")
	}
	if err := unix.Close(e.fd); err != nil {
		e.log.Warn().Err(err).Msg("close failed")
	}
	_ = e.state.Event(context.Background(), evFinish)
	if cause != nil {
		e.log.Debug().Err(cause).Msg("endpoint closed")
	}
	if e.onClosed != nil {
		e.onClosed(cause)
	}
}

// CloseFDs closes fds that never made it into an endpoint.
func CloseFDs(fds ...int) {
	for _, fd := range fds {
		if fd >= 0 {
			_ = unix.Close(fd)
		}
	}
}
