// File: reactor/timer.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
//
// One-shot and repeating timers scheduled on a Loop.

package reactor

import (
	"errors"
	"fmt"
	"time"

	"github.com/momentics/hioload-worker/api"
)

// ErrTimerClosed is returned when starting a closed timer.
var ErrTimerClosed = errors.New("reactor: timer is closed")

// TimerState is the lifecycle of a Timer.
type TimerState int

const (
	TimerIdle TimerState = iota
	TimerArmed
	TimerFiring
)

func (s TimerState) String() string {
	switch s {
	case TimerArmed:
		return "armed"
	case TimerFiring:
		return "firing"
	default:
		return "idle"
	}
}

// Timer invokes its listener on the loop goroutine when it expires. It is
// owned by whoever created it and must only be used from the loop goroutine
// (or before Run).
type Timer struct {
	loop     *Loop
	listener func()

	timeout time.Duration
	repeat  time.Duration

	due    uint64 // loop clock, ns
	seq    uint64 // FIFO among equal deadlines
	index  int    // position in the loop heap, -1 when not armed
	state  TimerState
	closed bool
}

// NewTimer creates an idle timer bound to loop.
func NewTimer(loop *Loop, listener func()) *Timer {
	return &Timer{
		loop:     loop,
		listener: listener,
		index:    -1,
	}
}

// Start arms the timer to fire after timeout and then every repeat. A zero
// repeat makes it one-shot. Starting an armed timer re-arms it.
func (t *Timer) Start(timeout, repeat time.Duration) error {
	if t.closed {
		return ErrTimerClosed
	}
	if t.loop.closed.Load() {
		return fmt.Errorf("timer start: %w", api.ErrLoopClosed)
	}
	if timeout < 0 || repeat < 0 {
		return fmt.Errorf("timer start: %w", api.ErrInvalidArgument)
	}
	t.loop.removeTimer(t)
	t.timeout = timeout
	t.repeat = repeat
	t.due = t.loop.NowNs() + uint64(timeout)
	t.loop.pushTimer(t)
	t.state = TimerArmed
	return nil
}

// Restart re-arms the timer with its previous repeat interval, like
// uv_timer_again. It is a no-op for a timer that was never started.
func (t *Timer) Restart() error {
	if t.repeat == 0 && t.timeout == 0 {
		return nil
	}
	next := t.repeat
	if next == 0 {
		next = t.timeout
	}
	return t.Start(next, t.repeat)
}

// Stop disarms the timer. Stopping an idle timer is a no-op.
func (t *Timer) Stop() {
	t.loop.removeTimer(t)
	t.state = TimerIdle
}

// Close stops the timer and makes further Start calls fail.
func (t *Timer) Close() {
	if t.closed {
		return
	}
	t.Stop()
	t.closed = true
}

// State reports the current lifecycle state.
func (t *Timer) State() TimerState { return t.state }

// IsActive reports whether the timer will fire again.
func (t *Timer) IsActive() bool { return t.index >= 0 }

// Repeat returns the configured repeat interval.
func (t *Timer) Repeat() time.Duration { return t.repeat }

// timerHeap is a min-heap of armed timers ordered by deadline.
type timerHeap []*Timer

func (h timerHeap) Len() int { return len(h) }

func (h timerHeap) Less(i, j int) bool {
	if h[i].due == h[j].due {
		return h[i].seq < h[j].seq
	}
	return h[i].due < h[j].due
}

func (h timerHeap) Swap(i, j int) {
	h[i], h[j] = h[j], h[i]
	h[i].index = i
	h[j].index = j
}

func (h *timerHeap) Push(x any) {
	t := x.(*Timer)
	t.index = len(*h)
	*h = append(*h, t)
}

func (h *timerHeap) Pop() any {
	old := *h
	n := len(old)
	t := old[n-1]
	old[n-1] = nil
	t.index = -1
	*h = old[:n-1]
	return t
}
