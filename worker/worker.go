// File: worker/worker.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
//
// Process root: owns the loop, both control transports, the association
// registry and the ambient services, and routes inbound messages to the
// method tables.

package worker

import (
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog"

	"github.com/momentics/hioload-worker/association"
	"github.com/momentics/hioload-worker/channel"
	"github.com/momentics/hioload-worker/control"
	"github.com/momentics/hioload-worker/internal/logging"
	"github.com/momentics/hioload-worker/internal/transport"
	"github.com/momentics/hioload-worker/payloadchannel"
	"github.com/momentics/hioload-worker/protocol"
	"github.com/momentics/hioload-worker/reactor"
)

// FDPair names the read and write descriptors of one transport.
type FDPair struct {
	Consumer int
	Producer int
}

// Config describes how to assemble a Worker.
type Config struct {
	Settings control.Settings
	Channel  FDPair
	Payload  FDPair
	// Registerer receives the worker metrics. Nil disables metrics.
	Registerer prometheus.Registerer
	// Stderr receives logs next to the channel. Defaults to os.Stderr.
	Stderr io.Writer
}

// Worker is driven by its loop goroutine. Apart from Interrupt, methods
// must be called from that goroutine or before Run.
type Worker struct {
	loop     *reactor.Loop
	root     *logging.Root
	log      zerolog.Logger
	settings *control.SettingsStore
	metrics  *control.Metrics
	probes   *control.DebugProbes
	stderr   io.Writer

	channel  *channel.Channel
	payload  *payloadchannel.PayloadChannel
	registry *association.Registry

	methods              map[string]RequestHandler
	payloadMethods       map[string]RequestHandler
	payloadNotifications map[string]NotificationHandler

	closed bool
}

// New builds a worker over the four inherited descriptors. It owns them
// from here on, including on error.
func New(cfg Config) (*Worker, error) {
	fds := []int{cfg.Channel.Consumer, cfg.Channel.Producer, cfg.Payload.Consumer, cfg.Payload.Producer}
	if err := cfg.Settings.Validate(); err != nil {
		transport.CloseFDs(fds...)
		return nil, err
	}
	if cfg.Stderr == nil {
		cfg.Stderr = os.Stderr
	}

	w := &Worker{
		root:                 logging.NewRoot(cfg.Stderr, cfg.Settings.LogLevel),
		settings:             control.NewSettingsStore(cfg.Settings),
		probes:               control.NewDebugProbes(),
		stderr:               cfg.Stderr,
		methods:              make(map[string]RequestHandler),
		payloadMethods:       make(map[string]RequestHandler),
		payloadNotifications: make(map[string]NotificationHandler),
	}
	w.log = w.root.Component("worker")

	if cfg.Registerer != nil {
		m, err := control.NewMetrics(cfg.Registerer)
		if err != nil {
			transport.CloseFDs(fds...)
			return nil, fmt.Errorf("worker metrics: %w", err)
		}
		w.metrics = m
	}

	loop, err := reactor.New(reactor.WithLogger(w.root.Logger()), reactor.WithCPU(cfg.Settings.LoopCPU))
	if err != nil {
		transport.CloseFDs(fds...)
		return nil, fmt.Errorf("worker loop: %w", err)
	}
	w.loop = loop

	s := cfg.Settings
	w.channel, err = channel.New(loop, cfg.Channel.Consumer, cfg.Channel.Producer, channel.Config{
		MaxFrameBody: s.MaxFrameBody,
		ReadSize:     s.ReadBufferSize,
		Logger:       w.root.Logger(),
		Metrics:      w.metrics,
	})
	if err != nil {
		transport.CloseFDs(cfg.Payload.Consumer, cfg.Payload.Producer)
		_ = loop.Close()
		return nil, fmt.Errorf("worker: %w", err)
	}
	w.payload, err = payloadchannel.New(loop, cfg.Payload.Consumer, cfg.Payload.Producer, payloadchannel.Config{
		MaxFrameBody: s.MaxFrameBody,
		ReadSize:     s.ReadBufferSize,
		Logger:       w.root.Logger(),
		Metrics:      w.metrics,
	})
	if err != nil {
		w.channel.Close()
		_ = loop.Close()
		return nil, fmt.Errorf("worker: %w", err)
	}
	w.registry = association.NewRegistry(loop, association.Config{
		CheckerInterval:   s.CheckerInterval,
		CheckerMaxElapsed: s.CheckerMaxElapsed,
		Logger:            w.root.Logger(),
		Metrics:           w.metrics,
	})

	w.channel.SetListener(channelListener{w})
	if err := w.payload.SetListener(payloadListener{w}); err != nil {
		w.Close()
		_ = loop.Close()
		return nil, err
	}
	w.settings.OnReload(w.applySettings)
	w.registerProbes()
	w.registerBuiltins()

	// From here on logs reach the controlling process as well.
	w.root.Redirect(logging.NewChannelWriter(w.channel), cfg.Stderr)
	return w, nil
}

// Run announces the worker and drives the loop until the channel closes
// or the loop is stopped. The loop is released on return.
func (w *Worker) Run() error {
	running := &protocol.Notification{
		TargetID: strconv.Itoa(os.Getpid()),
		Method:   protocol.EventRunning,
	}
	if err := w.channel.SendNotification(running); err != nil {
		w.Close()
		_ = w.loop.Close()
		return fmt.Errorf("worker announce: %w", err)
	}
	w.log.Debug().Msg("worker running")

	err := w.loop.Run()
	w.Close()
	if cerr := w.loop.Close(); cerr != nil && !errors.Is(cerr, reactor.ErrLoopRunning) {
		err = errors.Join(err, cerr)
	}
	return err
}

// Interrupt asks the loop goroutine to close the worker. Safe from any
// goroutine.
func (w *Worker) Interrupt() {
	if err := w.loop.Post(w.Close); err != nil {
		w.loop.Stop()
	}
}

// Close shuts the channel down, which in turn closes everything else.
func (w *Worker) Close() {
	if w.closed {
		return
	}
	w.channel.Close()
	// The channel listener normally did this already.
	w.shutdown()
}

// Closed reports whether the worker has shut down.
func (w *Worker) Closed() bool { return w.closed }

func (w *Worker) shutdown() {
	if w.closed {
		return
	}
	w.closed = true
	w.root.Redirect(w.stderr)
	w.payload.Close()
	w.registry.Close()
	w.loop.Stop()
	w.log.Debug().Msg("worker closed")
}

func (w *Worker) applySettings(s control.Settings) {
	w.root.SetLevel(s.LogLevel)
	w.log.Debug().Str("logLevel", s.LogLevel).Strs("logTags", s.LogTags).Msg("settings updated")
}

// Loop returns the worker loop.
func (w *Worker) Loop() *reactor.Loop { return w.loop }

// Registry returns the association registry.
func (w *Worker) Registry() *association.Registry { return w.registry }

// Channel returns the control channel.
func (w *Worker) Channel() *channel.Channel { return w.channel }

// PayloadChannel returns the payload channel.
func (w *Worker) PayloadChannel() *payloadchannel.PayloadChannel { return w.payload }

// Settings returns the settings store.
func (w *Worker) Settings() *control.SettingsStore { return w.settings }

// Probes returns the debug probes collected by worker.dump.
func (w *Worker) Probes() *control.DebugProbes { return w.probes }

// Logger returns a logger tagged with component=name.
func (w *Worker) Logger(name string) zerolog.Logger { return w.root.Component(name) }
