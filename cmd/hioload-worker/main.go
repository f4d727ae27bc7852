// File: cmd/hioload-worker/main.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
//
// Worker entry point. The controlling process passes four descriptors:
// 3 and 4 carry the Channel (worker reads 3, writes 4), 5 and 6 carry the
// Payload Channel (worker reads 5, writes 6). Settings arrive as
// --key=value flags.

package main

import (
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"

	"github.com/momentics/hioload-worker/control"
	"github.com/momentics/hioload-worker/worker"
)

const (
	channelConsumerFD = 3
	channelProducerFD = 4
	payloadConsumerFD = 5
	payloadProducerFD = 6
)

// Process exit codes.
const (
	exitOK       = 0
	exitFailure  = 1
	exitSettings = 42
)

func main() {
	os.Exit(run(os.Args[1:]))
}

func run(args []string) int {
	log := zerolog.New(os.Stderr).With().Timestamp().Str("component", "main").Logger()

	settings, err := control.ParseArgs(args)
	if err != nil {
		log.Error().Err(err).Msg("settings error")
		return exitSettings
	}

	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	w, err := worker.New(worker.Config{
		Settings:   settings,
		Channel:    worker.FDPair{Consumer: channelConsumerFD, Producer: channelProducerFD},
		Payload:    worker.FDPair{Consumer: payloadConsumerFD, Producer: payloadProducerFD},
		Registerer: reg,
		Stderr:     os.Stderr,
	})
	if err != nil {
		log.Error().Err(err).Msg("worker init failed")
		if errors.Is(err, control.ErrInvalidSettings) {
			return exitSettings
		}
		return exitFailure
	}

	if settings.MetricsAddr != "" {
		srv := &http.Server{
			Addr:              settings.MetricsAddr,
			Handler:           promhttp.HandlerFor(reg, promhttp.HandlerOpts{Registry: reg}),
			ReadHeaderTimeout: 5 * time.Second,
		}
		go func() {
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				log.Error().Err(err).Str("addr", settings.MetricsAddr).Msg("metrics endpoint failed")
			}
		}()
		defer srv.Close()
	}

	sigs := make(chan os.Signal, 1)
	signal.Notify(sigs, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(sigs)
	done := make(chan struct{})
	go interruptOnSignal(sigs, done, w.Interrupt)

	err = w.Run()
	close(done)
	if err != nil {
		log.Error().Err(err).Msg("worker failed")
		return exitFailure
	}
	return exitOK
}

// interruptOnSignal calls interrupt on the first signal. It returns without
// calling it once done is closed.
func interruptOnSignal(sigs <-chan os.Signal, done <-chan struct{}, interrupt func()) {
	select {
	case <-sigs:
		interrupt()
	case <-done:
	}
}
