package main

import (
	"os"
	"syscall"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestRun_SettingsErrorsExit42(t *testing.T) {
	assert.Equal(t, exitSettings, run([]string{"--logLevel=chatty"}))
	assert.Equal(t, exitSettings, run([]string{"--noSuchFlag"}))
	assert.Equal(t, exitSettings, run([]string{"--checkerInterval=0s"}))
	assert.Equal(t, exitSettings, run([]string{"stray"}))
}

func TestInterruptOnSignal(t *testing.T) {
	sigs := make(chan os.Signal, 1)
	done := make(chan struct{})
	interrupted := make(chan struct{})
	sigs <- syscall.SIGTERM
	interruptOnSignal(sigs, done, func() { close(interrupted) })
	select {
	case <-interrupted:
	default:
		t.Fatal("signal did not interrupt")
	}
}

func TestInterruptOnSignal_ReturnsWhenDone(t *testing.T) {
	sigs := make(chan os.Signal, 1)
	done := make(chan struct{})
	returned := make(chan struct{})
	go func() {
		interruptOnSignal(sigs, done, func() { t.Error("interrupted without a signal") })
		close(returned)
	}()
	close(done)
	select {
	case <-returned:
	case <-time.After(5 * time.Second):
		t.Fatal("watcher still running after done")
	}
}
