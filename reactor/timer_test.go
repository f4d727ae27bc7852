//go:build linux

package reactor_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/momentics/hioload-worker/reactor"
)

func TestTimer_OneShotFiresOnce(t *testing.T) {
	l := newLoop(t)
	count := 0
	tm := reactor.NewTimer(l, func() { count++ })
	require.NoError(t, tm.Start(5*time.Millisecond, 0))
	assert.Equal(t, reactor.TimerArmed, tm.State())

	start := time.Now()
	waitDone(t, runAsync(l))
	assert.Equal(t, 1, count)
	assert.GreaterOrEqual(t, time.Since(start), 5*time.Millisecond)
	assert.Equal(t, reactor.TimerIdle, tm.State())
	assert.False(t, tm.IsActive())
}

func TestTimer_RepeatingUntilStoppedFromCallback(t *testing.T) {
	l := newLoop(t)
	count := 0
	var tm *reactor.Timer
	var states []reactor.TimerState
	tm = reactor.NewTimer(l, func() {
		count++
		states = append(states, tm.State())
		if count == 3 {
			tm.Stop()
		}
	})
	require.NoError(t, tm.Start(time.Millisecond, 2*time.Millisecond))

	waitDone(t, runAsync(l))
	assert.Equal(t, 3, count)
	assert.Equal(t, []reactor.TimerState{reactor.TimerFiring, reactor.TimerFiring, reactor.TimerFiring}, states)
	assert.Equal(t, reactor.TimerIdle, tm.State())
}

func TestTimer_StopIsIdempotent(t *testing.T) {
	l := newLoop(t)
	tm := reactor.NewTimer(l, func() { t.Error("stopped timer fired") })
	tm.Stop()
	require.NoError(t, tm.Start(time.Millisecond, time.Millisecond))
	tm.Stop()
	tm.Stop()
	assert.Equal(t, reactor.TimerIdle, tm.State())

	waitDone(t, runAsync(l))
}

func TestTimer_CloseStopsArmedTimer(t *testing.T) {
	l := newLoop(t)
	tm := reactor.NewTimer(l, func() { t.Error("closed timer fired") })
	require.NoError(t, tm.Start(time.Millisecond, time.Millisecond))
	tm.Close()
	tm.Close()
	assert.False(t, tm.IsActive())
	assert.ErrorIs(t, tm.Start(time.Millisecond, 0), reactor.ErrTimerClosed)

	waitDone(t, runAsync(l))
}

func TestTimer_FiresInDeadlineOrder(t *testing.T) {
	l := newLoop(t)
	var order []int
	for i, d := range []time.Duration{6, 2, 4, 2} {
		i := i
		tm := reactor.NewTimer(l, func() { order = append(order, i) })
		require.NoError(t, tm.Start(d*time.Millisecond, 0))
	}

	waitDone(t, runAsync(l))
	assert.Equal(t, []int{1, 3, 2, 0}, order)
}

func TestTimer_RestartReArms(t *testing.T) {
	l := newLoop(t)
	count := 0
	var tm *reactor.Timer
	tm = reactor.NewTimer(l, func() {
		count++
		if count < 2 {
			require.NoError(t, tm.Restart())
		}
	})
	require.NoError(t, tm.Restart())
	assert.False(t, tm.IsActive())

	require.NoError(t, tm.Start(time.Millisecond, 0))
	waitDone(t, runAsync(l))
	assert.Equal(t, 2, count)
}

func TestTimer_RejectsNegativeDurations(t *testing.T) {
	l := newLoop(t)
	tm := reactor.NewTimer(l, func() {})
	assert.Error(t, tm.Start(-time.Millisecond, 0))
	assert.Error(t, tm.Start(0, -time.Millisecond))
}
