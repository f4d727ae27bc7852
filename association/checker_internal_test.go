//go:build linux

package association

import (
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/momentics/hioload-worker/fake"
	"github.com/momentics/hioload-worker/reactor"
)

func newTestRegistry(t *testing.T) (*Registry, *fake.Clock) {
	t.Helper()
	l, err := reactor.New()
	require.NoError(t, err)
	t.Cleanup(func() { _ = l.Close() })
	clock := &fake.Clock{}
	clock.Advance(time.Hour)
	r := NewRegistry(l, Config{
		CheckerInterval:   10 * time.Millisecond,
		CheckerMaxElapsed: 100 * time.Millisecond,
		Clock:             clock,
	})
	return r, clock
}

func TestGetNextAssociationID_Wraparound(t *testing.T) {
	r, _ := newTestRegistry(t)
	r.RegisterAssociation(fake.NewAssociation(math.MaxUint64))
	r.RegisterAssociation(fake.NewAssociation(1))
	r.nextID = math.MaxUint64 - 1

	// MaxUint64 and 1 are held, 0 is never handed out.
	assert.Equal(t, uint64(2), r.GetNextAssociationID())
}

func TestChecker_TickAdvancesByElapsed(t *testing.T) {
	r, clock := newTestRegistry(t)
	a := fake.NewAssociation(1)
	b := fake.NewAssociation(2)
	r.RegisterAssociation(a)
	r.RegisterAssociation(b)

	clock.Advance(10 * time.Millisecond)
	r.checker.tick()
	clock.Advance(15 * time.Millisecond)
	r.checker.tick()

	assert.Equal(t, uint64(25), a.Elapsed())
	assert.Equal(t, uint64(25), b.Elapsed())
	assert.Equal(t, uint64(2), r.checker.Ticks())
	assert.Equal(t, clock.NowMs(), r.checker.LastCalledAtMs())
}

func TestChecker_ZeroDeltaSkips(t *testing.T) {
	r, clock := newTestRegistry(t)
	a := fake.NewAssociation(1)
	r.RegisterAssociation(a)

	clock.Advance(500 * time.Microsecond)
	r.checker.tick()
	assert.Zero(t, a.Ticks())
	assert.Zero(t, r.checker.Ticks())
}

func TestChecker_ClampsLargeJumps(t *testing.T) {
	r, clock := newTestRegistry(t)
	a := fake.NewAssociation(1)
	r.RegisterAssociation(a)

	clock.Advance(5 * time.Second)
	r.checker.tick()
	assert.Equal(t, uint64(100), a.Elapsed())

	// The reference point still moves to now.
	clock.Advance(10 * time.Millisecond)
	r.checker.tick()
	assert.Equal(t, uint64(110), a.Elapsed())
}

func TestChecker_DeregisterDuringTick(t *testing.T) {
	r, clock := newTestRegistry(t)
	var victims []*fake.Association
	for id := uint64(1); id <= 4; id++ {
		a := fake.NewAssociation(id)
		victims = append(victims, a)
		r.RegisterAssociation(a)
	}
	// Whoever ticks first removes everyone else.
	for _, a := range victims {
		a.OnAdvance = func(self *fake.Association, _ uint64) {
			for _, other := range victims {
				if other != self {
					_ = r.DeregisterAssociation(other)
				}
			}
		}
	}

	clock.Advance(10 * time.Millisecond)
	require.NotPanics(t, r.checker.tick)

	var ticked int
	for _, a := range victims {
		ticked += int(a.Ticks())
	}
	assert.Equal(t, 1, ticked)
	assert.Equal(t, 1, r.Len())
	assert.True(t, r.checker.Active())
}
