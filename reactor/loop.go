// File: reactor/loop.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
//
// Platform-neutral loop: handle table, timer heap, posted tasks, dispatch.

package reactor

import (
	"container/heap"
	"errors"
	"fmt"
	"runtime"
	"sync"
	"sync/atomic"

	"github.com/eapache/queue"
	"github.com/rs/zerolog"

	"github.com/momentics/hioload-worker/api"
)

// ErrLoopRunning is returned when Run is called on a loop that is already running.
var ErrLoopRunning = errors.New("reactor: loop is already running")

const maxReadyEvents = 128

// readyEvent is one fd readiness notification returned by the poller.
type readyEvent struct {
	fd     int
	events api.IOEvent
}

// poller is the OS multiplexer behind a Loop.
type poller interface {
	add(fd int, events api.IOEvent) error
	mod(fd int, events api.IOEvent) error
	del(fd int) error
	// wait blocks up to timeoutMs (-1 = forever) and fills out.
	wait(out []readyEvent, timeoutMs int) (int, error)
	// wake interrupts a blocked wait from any goroutine.
	wake() error
	close() error
}

type ioHandle struct {
	events api.IOEvent
	cb     api.IOCallback
}

// Loop is the reactor. It is not safe for concurrent use except for Post
// and Stop.
type Loop struct {
	poller   poller
	handles  map[int]*ioHandle
	timers   timerHeap
	timerSeq uint64
	ready    []readyEvent
	log      zerolog.Logger

	// Posted tasks cross goroutines; everything else is loop-owned.
	postMu sync.Mutex
	posted *queue.Queue

	cpu int

	running  atomic.Bool
	stopping atomic.Bool
	closed   atomic.Bool
}

// New initializes the OS event loop. A failure here leaves the process
// without a reactor and the caller is expected to exit.
func New(opts ...Option) (*Loop, error) {
	p, err := newPoller()
	if err != nil {
		return nil, fmt.Errorf("reactor init: %w", err)
	}
	l := &Loop{
		poller:  p,
		handles: make(map[int]*ioHandle),
		timers:  make(timerHeap, 0, 8),
		ready:   make([]readyEvent, maxReadyEvents),
		posted:  queue.New(),
		log:     zerolog.Nop(),
		cpu:     -1,
	}
	for _, opt := range opts {
		opt(l)
	}
	return l, nil
}

// NowMs returns the monotonic clock in milliseconds.
func (l *Loop) NowMs() uint64 { return hrtime() / 1_000_000 }

// NowUs returns the monotonic clock in microseconds.
func (l *Loop) NowUs() uint64 { return hrtime() / 1_000 }

// NowNs returns the monotonic clock in nanoseconds.
func (l *Loop) NowNs() uint64 { return hrtime() }

// Register adds fd to the loop with the given interest set.
func (l *Loop) Register(fd int, events api.IOEvent, cb api.IOCallback) error {
	if l.closed.Load() {
		return api.ErrLoopClosed
	}
	if _, ok := l.handles[fd]; ok {
		return fmt.Errorf("reactor register fd %d: %w", fd, api.ErrAlreadyExists)
	}
	if err := l.poller.add(fd, events); err != nil {
		return fmt.Errorf("reactor register fd %d: %w", fd, err)
	}
	l.handles[fd] = &ioHandle{events: events, cb: cb}
	return nil
}

// Modify replaces the interest set of a registered fd.
func (l *Loop) Modify(fd int, events api.IOEvent) error {
	h, ok := l.handles[fd]
	if !ok {
		return fmt.Errorf("reactor modify fd %d: %w", fd, api.ErrNotFound)
	}
	if h.events == events {
		return nil
	}
	if err := l.poller.mod(fd, events); err != nil {
		return fmt.Errorf("reactor modify fd %d: %w", fd, err)
	}
	h.events = events
	return nil
}

// Unregister detaches fd. Unknown fds are ignored.
func (l *Loop) Unregister(fd int) error {
	if _, ok := l.handles[fd]; !ok {
		return nil
	}
	delete(l.handles, fd)
	if err := l.poller.del(fd); err != nil {
		return fmt.Errorf("reactor unregister fd %d: %w", fd, err)
	}
	return nil
}

// Post schedules fn to run on the loop goroutine. Safe from any goroutine.
func (l *Loop) Post(fn func()) error {
	if l.closed.Load() {
		return api.ErrLoopClosed
	}
	l.postMu.Lock()
	l.posted.Add(fn)
	l.postMu.Unlock()
	return l.poller.wake()
}

// Stop makes Run return after the callback in progress completes.
// Safe from any goroutine.
func (l *Loop) Stop() {
	l.stopping.Store(true)
	if !l.closed.Load() {
		_ = l.poller.wake()
	}
}

// Run processes I/O readiness, timers and posted tasks until Stop is called
// or nothing is left to wait for. All callbacks execute on the calling
// goroutine, which is locked to its OS thread for the duration.
func (l *Loop) Run() error {
	if l.closed.Load() {
		return api.ErrLoopClosed
	}
	if !l.running.CompareAndSwap(false, true) {
		return ErrLoopRunning
	}
	defer l.running.Store(false)

	runtime.LockOSThread()
	defer runtime.UnlockOSThread()
	if l.cpu >= 0 {
		if err := pinThread(l.cpu); err != nil {
			l.log.Warn().Err(err).Msg("loop thread not pinned")
		}
	}

	for {
		l.runPosted()
		if l.stopping.Swap(false) {
			return nil
		}

		l.runTimers()
		if l.stopping.Swap(false) {
			return nil
		}

		if !l.alive() {
			return nil
		}

		n, err := l.poller.wait(l.ready, l.pollTimeout())
		if err != nil {
			return fmt.Errorf("reactor poll: %w", err)
		}
		for i := 0; i < n; i++ {
			ev := l.ready[i]
			// An earlier callback in this batch may have unregistered it.
			h, ok := l.handles[ev.fd]
			if !ok {
				continue
			}
			l.safeExecute(func() { h.cb(ev.fd, ev.events) })
		}
	}
}

// Running reports whether Run is active.
func (l *Loop) Running() bool { return l.running.Load() }

// Close releases the OS resources. The loop must not be running.
func (l *Loop) Close() error {
	if l.running.Load() {
		return ErrLoopRunning
	}
	if !l.closed.CompareAndSwap(false, true) {
		return nil
	}
	for fd := range l.handles {
		delete(l.handles, fd)
	}
	for len(l.timers) > 0 {
		t := heap.Pop(&l.timers).(*Timer)
		t.index = -1
		t.state = TimerIdle
	}
	return l.poller.close()
}

// alive reports whether there is anything that could still produce work.
func (l *Loop) alive() bool {
	if len(l.handles) > 0 || len(l.timers) > 0 {
		return true
	}
	l.postMu.Lock()
	defer l.postMu.Unlock()
	return l.posted.Length() > 0
}

// pollTimeout returns how long the poller may block, in ms.
func (l *Loop) pollTimeout() int {
	l.postMu.Lock()
	pending := l.posted.Length()
	l.postMu.Unlock()
	if pending > 0 {
		return 0
	}
	if len(l.timers) == 0 {
		return -1
	}
	now := l.NowNs()
	due := l.timers[0].due
	if due <= now {
		return 0
	}
	// Round up so a sub-millisecond delay does not spin.
	return int((due - now + 999_999) / 1_000_000)
}

// runPosted drains the tasks posted before this call. Tasks posted while
// draining run on the next iteration.
func (l *Loop) runPosted() {
	l.postMu.Lock()
	n := l.posted.Length()
	tasks := make([]func(), 0, n)
	for i := 0; i < n; i++ {
		tasks = append(tasks, l.posted.Remove().(func()))
	}
	l.postMu.Unlock()

	for _, fn := range tasks {
		l.safeExecute(fn)
	}
}

// runTimers fires every timer due at the start of the pass.
func (l *Loop) runTimers() {
	now := l.NowNs()
	for len(l.timers) > 0 && l.timers[0].due <= now {
		t := heap.Pop(&l.timers).(*Timer)
		t.index = -1
		if t.repeat > 0 {
			t.due = now + uint64(t.repeat)
			l.pushTimer(t)
		}
		t.state = TimerFiring
		l.safeExecute(t.listener)
		if t.state == TimerFiring {
			if t.index >= 0 {
				t.state = TimerArmed
			} else {
				t.state = TimerIdle
			}
		}
	}
}

func (l *Loop) pushTimer(t *Timer) {
	l.timerSeq++
	t.seq = l.timerSeq
	heap.Push(&l.timers, t)
}

func (l *Loop) removeTimer(t *Timer) {
	if t.index >= 0 {
		heap.Remove(&l.timers, t.index)
		t.index = -1
	}
}

// safeExecute keeps the loop alive across a panicking callback, except for
// invariant violations which must terminate the process.
func (l *Loop) safeExecute(fn func()) {
	defer func() {
		if r := recover(); r != nil {
			var inv *api.InvariantError
			if err, ok := r.(error); ok && errors.As(err, &inv) {
				panic(r)
			}
			l.log.Error().Interface("panic", r).Msg("reactor callback panicked")
		}
	}()
	fn()
}
