//go:build linux

package association_test

import (
	"errors"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/momentics/hioload-worker/api"
	"github.com/momentics/hioload-worker/association"
	"github.com/momentics/hioload-worker/control"
	"github.com/momentics/hioload-worker/fake"
	"github.com/momentics/hioload-worker/reactor"
)

func newRegistry(t *testing.T, cfg association.Config) (*reactor.Loop, *association.Registry) {
	t.Helper()
	l, err := reactor.New()
	require.NoError(t, err)
	t.Cleanup(func() { _ = l.Close() })
	r := association.NewRegistry(l, cfg)
	return l, r
}

func run(t *testing.T, l *reactor.Loop) {
	t.Helper()
	done := make(chan error, 1)
	go func() { done <- l.Run() }()
	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(5 * time.Second):
		l.Stop()
		t.Fatal("loop did not return")
	}
}

func TestRegistry_CheckerAdvancesClockEndToEnd(t *testing.T) {
	l, r := newRegistry(t, association.Config{CheckerInterval: 10 * time.Millisecond})
	a := fake.NewAssociation(r.GetNextAssociationID())
	require.Equal(t, uint64(1), a.ID())

	r.RegisterAssociation(a)
	require.True(t, r.Checker().Active())

	var deregErr error
	stopper := reactor.NewTimer(l, func() {
		deregErr = r.DeregisterAssociation(a)
	})
	require.NoError(t, stopper.Start(25*time.Millisecond, 0))

	// Run returns once the checker stopped and nothing else is armed.
	run(t, l)

	require.NoError(t, deregErr)
	assert.False(t, r.Checker().Active())
	assert.Equal(t, 0, r.Len())
	assert.GreaterOrEqual(t, a.Ticks(), uint64(2))
	assert.InDelta(t, 20, float64(a.Elapsed()), 12)
}

func TestRegistry_FirstRegisterStartsLastDeregisterStops(t *testing.T) {
	_, r := newRegistry(t, association.Config{})
	a := fake.NewAssociation(r.GetNextAssociationID())
	b := fake.NewAssociation(r.GetNextAssociationID())

	assert.False(t, r.Checker().Active())
	r.RegisterAssociation(a)
	assert.True(t, r.Checker().Active())
	r.RegisterAssociation(b)
	assert.True(t, r.Checker().Active())

	require.NoError(t, r.DeregisterAssociation(a))
	assert.True(t, r.Checker().Active())
	require.NoError(t, r.DeregisterAssociation(b))
	assert.False(t, r.Checker().Active())
}

func TestRegistry_DuplicateRegistrationIsFatal(t *testing.T) {
	_, r := newRegistry(t, association.Config{})
	r.RegisterAssociation(fake.NewAssociation(5))

	defer func() {
		rec := recover()
		require.NotNil(t, rec)
		err, ok := rec.(error)
		require.True(t, ok)
		var inv *api.InvariantError
		assert.True(t, errors.As(err, &inv))
		assert.Equal(t, 1, r.Len())
	}()
	r.RegisterAssociation(fake.NewAssociation(5))
}

func TestRegistry_LookupAndDeregisterMisses(t *testing.T) {
	_, r := newRegistry(t, association.Config{})
	got, ok := r.RetrieveAssociation(42)
	assert.False(t, ok)
	assert.Nil(t, got)

	err := r.DeregisterAssociation(fake.NewAssociation(42))
	assert.ErrorIs(t, err, api.ErrNotFound)

	a := fake.NewAssociation(42)
	r.RegisterAssociation(a)
	got, ok = r.RetrieveAssociation(42)
	require.True(t, ok)
	assert.Same(t, a, got)
	require.NoError(t, r.DeregisterAssociation(a))
	assert.ErrorIs(t, r.DeregisterAssociation(a), api.ErrNotFound)
}

func TestRegistry_NextIDSkipsLiveIDs(t *testing.T) {
	_, r := newRegistry(t, association.Config{})
	r.RegisterAssociation(fake.NewAssociation(2))
	r.RegisterAssociation(fake.NewAssociation(3))

	assert.Equal(t, uint64(1), r.GetNextAssociationID())
	assert.Equal(t, uint64(4), r.GetNextAssociationID())
	assert.Equal(t, []uint64{2, 3}, r.IDs())
}

func TestRegistry_MetricsFollowRegistrations(t *testing.T) {
	reg := prometheus.NewRegistry()
	m, err := control.NewMetrics(reg)
	require.NoError(t, err)
	_, r := newRegistry(t, association.Config{Metrics: m})

	a := fake.NewAssociation(r.GetNextAssociationID())
	b := fake.NewAssociation(r.GetNextAssociationID())
	r.RegisterAssociation(a)
	r.RegisterAssociation(b)
	assert.Equal(t, 2.0, gauge(t, reg))
	require.NoError(t, r.DeregisterAssociation(a))
	assert.Equal(t, 1.0, gauge(t, reg))
	r.Close()
	assert.Equal(t, 0.0, gauge(t, reg))
	assert.False(t, r.Checker().Active())
}

func gauge(t *testing.T, reg *prometheus.Registry) float64 {
	t.Helper()
	n, err := testutil.GatherAndCount(reg, "hioload_worker_registry_associations")
	require.NoError(t, err)
	require.Equal(t, 1, n)
	mfs, err := reg.Gather()
	require.NoError(t, err)
	for _, mf := range mfs {
		if mf.GetName() == "hioload_worker_registry_associations" {
			return mf.GetMetric()[0].GetGauge().GetValue()
		}
	}
	return -1
}
