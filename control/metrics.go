// control/metrics.go
// Author: momentics <momentics@gmail.com>
//
// Prometheus collectors for the channel transports and the association
// registry. A nil *Metrics is valid and records nothing.

package control

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

const metricsNamespace = "hioload_worker"

// Transport label values.
const (
	TransportChannel        = "channel"
	TransportPayloadChannel = "payload_channel"
)

// Metrics holds the worker collectors.
type Metrics struct {
	framesReceived *prometheus.CounterVec
	framesSent     *prometheus.CounterVec
	bytesReceived  *prometheus.CounterVec
	bytesSent      *prometheus.CounterVec
	decodeErrors   *prometheus.CounterVec
	protocolErrors *prometheus.CounterVec
	closures       *prometheus.CounterVec

	associations   prometheus.Gauge
	checkerTicks   prometheus.Counter
	checkerElapsed prometheus.Histogram
}

func newCounterVec(subsystem, name, help string) *prometheus.CounterVec {
	return prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Subsystem: subsystem,
			Name:      name,
			Help:      help,
		},
		[]string{"transport"},
	)
}

// NewMetrics creates the collectors and registers them on reg. A nil reg
// selects prometheus.DefaultRegisterer.
func NewMetrics(reg prometheus.Registerer) (*Metrics, error) {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	m := &Metrics{
		framesReceived: newCounterVec("transport", "frames_received_total", "Frames decoded from the consumer socket"),
		framesSent:     newCounterVec("transport", "frames_sent_total", "Frames written to the producer socket"),
		bytesReceived:  newCounterVec("transport", "bytes_received_total", "Frame bytes received including the length prefix"),
		bytesSent:      newCounterVec("transport", "bytes_sent_total", "Frame bytes sent including the length prefix"),
		decodeErrors:   newCounterVec("transport", "decode_errors_total", "Frames whose JSON body could not be decoded"),
		protocolErrors: newCounterVec("transport", "protocol_errors_total", "Header/payload sequencing violations"),
		closures:       newCounterVec("transport", "closures_total", "Transport closures"),
		associations: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: metricsNamespace,
			Subsystem: "registry",
			Name:      "associations",
			Help:      "Associations currently registered",
		}),
		checkerTicks: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Subsystem: "registry",
			Name:      "checker_ticks_total",
			Help:      "Checker timer expirations that advanced association clocks",
		}),
		checkerElapsed: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: metricsNamespace,
			Subsystem: "registry",
			Name:      "checker_elapsed_seconds",
			Help:      "Clamped elapsed time passed to associations per tick",
			Buckets:   []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1},
		}),
	}
	collectors := []prometheus.Collector{
		m.framesReceived, m.framesSent, m.bytesReceived, m.bytesSent,
		m.decodeErrors, m.protocolErrors, m.closures,
		m.associations, m.checkerTicks, m.checkerElapsed,
	}
	for _, c := range collectors {
		if err := reg.Register(c); err != nil {
			return nil, err
		}
	}
	return m, nil
}

// FrameReceived counts one inbound frame of n wire bytes.
func (m *Metrics) FrameReceived(transport string, n int) {
	if m == nil {
		return
	}
	m.framesReceived.WithLabelValues(transport).Inc()
	m.bytesReceived.WithLabelValues(transport).Add(float64(n))
}

// FrameSent counts one outbound frame of n wire bytes.
func (m *Metrics) FrameSent(transport string, n int) {
	if m == nil {
		return
	}
	m.framesSent.WithLabelValues(transport).Inc()
	m.bytesSent.WithLabelValues(transport).Add(float64(n))
}

func (m *Metrics) DecodeError(transport string) {
	if m == nil {
		return
	}
	m.decodeErrors.WithLabelValues(transport).Inc()
}

func (m *Metrics) ProtocolError(transport string) {
	if m == nil {
		return
	}
	m.protocolErrors.WithLabelValues(transport).Inc()
}

func (m *Metrics) TransportClosed(transport string) {
	if m == nil {
		return
	}
	m.closures.WithLabelValues(transport).Inc()
}

// SetAssociations records the registry size.
func (m *Metrics) SetAssociations(n int) {
	if m == nil {
		return
	}
	m.associations.Set(float64(n))
}

// CheckerTick records one clock advance of elapsed.
func (m *Metrics) CheckerTick(elapsed time.Duration) {
	if m == nil {
		return
	}
	m.checkerTicks.Inc()
	m.checkerElapsed.Observe(elapsed.Seconds())
}
