package control_test

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/momentics/hioload-worker/control"
)

func TestMetrics_Counters(t *testing.T) {
	reg := prometheus.NewRegistry()
	m, err := control.NewMetrics(reg)
	require.NoError(t, err)

	m.FrameReceived(control.TransportChannel, 10)
	m.FrameReceived(control.TransportChannel, 6)
	m.FrameSent(control.TransportPayloadChannel, 3)
	m.DecodeError(control.TransportChannel)
	m.ProtocolError(control.TransportPayloadChannel)
	m.TransportClosed(control.TransportChannel)
	m.SetAssociations(2)
	m.CheckerTick(10 * time.Millisecond)

	count, err := testutil.GatherAndCount(reg,
		"hioload_worker_transport_frames_received_total",
		"hioload_worker_transport_bytes_received_total",
	)
	require.NoError(t, err)
	assert.Equal(t, 2, count)

	mfs, err := reg.Gather()
	require.NoError(t, err)
	values := map[string]float64{}
	for _, mf := range mfs {
		for _, metric := range mf.GetMetric() {
			switch {
			case metric.GetCounter() != nil:
				values[mf.GetName()] += metric.GetCounter().GetValue()
			case metric.GetGauge() != nil:
				values[mf.GetName()] += metric.GetGauge().GetValue()
			case metric.GetHistogram() != nil:
				values[mf.GetName()] += float64(metric.GetHistogram().GetSampleCount())
			}
		}
	}
	assert.Equal(t, 2.0, values["hioload_worker_transport_frames_received_total"])
	assert.Equal(t, 16.0, values["hioload_worker_transport_bytes_received_total"])
	assert.Equal(t, 1.0, values["hioload_worker_transport_frames_sent_total"])
	assert.Equal(t, 1.0, values["hioload_worker_transport_decode_errors_total"])
	assert.Equal(t, 1.0, values["hioload_worker_transport_protocol_errors_total"])
	assert.Equal(t, 1.0, values["hioload_worker_transport_closures_total"])
	assert.Equal(t, 2.0, values["hioload_worker_registry_associations"])
	assert.Equal(t, 1.0, values["hioload_worker_registry_checker_ticks_total"])
	assert.Equal(t, 1.0, values["hioload_worker_registry_checker_elapsed_seconds"])
}

func TestMetrics_DuplicateRegistrationFails(t *testing.T) {
	reg := prometheus.NewRegistry()
	_, err := control.NewMetrics(reg)
	require.NoError(t, err)
	_, err = control.NewMetrics(reg)
	assert.Error(t, err)
}

func TestMetrics_NilIsNoop(t *testing.T) {
	var m *control.Metrics
	assert.NotPanics(t, func() {
		m.FrameReceived(control.TransportChannel, 1)
		m.FrameSent(control.TransportChannel, 1)
		m.DecodeError(control.TransportChannel)
		m.ProtocolError(control.TransportChannel)
		m.TransportClosed(control.TransportChannel)
		m.SetAssociations(1)
		m.CheckerTick(time.Millisecond)
	})
}
