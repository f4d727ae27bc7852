// control/config.go
// Author: momentics <momentics@gmail.com>
//
// Worker settings, command-line parsing and a thread-safe settings store
// with reload propagation.

package control

import (
	"errors"
	"flag"
	"fmt"
	"io"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/momentics/hioload-worker/protocol"
)

// ErrInvalidSettings marks a settings validation failure.
var ErrInvalidSettings = errors.New("invalid settings")

// Log levels understood by the worker.
const (
	LogLevelDebug = "debug"
	LogLevelWarn  = "warn"
	LogLevelError = "error"
	LogLevelNone  = "none"
)

var logLevels = []string{LogLevelDebug, LogLevelWarn, LogLevelError, LogLevelNone}

// Settings is an immutable snapshot of the worker configuration.
type Settings struct {
	LogLevel          string        `json:"logLevel"`
	LogTags           []string      `json:"logTags"`
	MaxFrameBody      int           `json:"maxFrameBody"`
	ReadBufferSize    int           `json:"readBufferSize"`
	CheckerInterval   time.Duration `json:"checkerInterval"`
	CheckerMaxElapsed time.Duration `json:"checkerMaxElapsed"`
	MetricsAddr       string        `json:"metricsAddr,omitempty"`
	// LoopCPU pins the loop thread to a logical CPU. -1 disables pinning.
	LoopCPU int `json:"loopCpu"`
}

// DefaultSettings returns the built-in configuration.
func DefaultSettings() Settings {
	return Settings{
		LogLevel:          LogLevelError,
		MaxFrameBody:      protocol.DefaultMaxFrameBody,
		ReadBufferSize:    64 * 1024,
		CheckerInterval:   10 * time.Millisecond,
		CheckerMaxElapsed: time.Second,
		LoopCPU:           -1,
	}
}

// Validate checks field ranges.
func (s Settings) Validate() error {
	switch {
	case !slices.Contains(logLevels, s.LogLevel):
		return fmt.Errorf("%w: unknown logLevel %q", ErrInvalidSettings, s.LogLevel)
	case s.MaxFrameBody < 2:
		return fmt.Errorf("%w: maxFrameBody %d too small", ErrInvalidSettings, s.MaxFrameBody)
	case s.ReadBufferSize < 1024:
		return fmt.Errorf("%w: readBufferSize %d too small", ErrInvalidSettings, s.ReadBufferSize)
	case s.CheckerInterval <= 0:
		return fmt.Errorf("%w: checkerInterval must be positive", ErrInvalidSettings)
	case s.CheckerMaxElapsed < s.CheckerInterval:
		return fmt.Errorf("%w: checkerMaxElapsed below checkerInterval", ErrInvalidSettings)
	case s.LoopCPU < -1:
		return fmt.Errorf("%w: loopCpu %d out of range", ErrInvalidSettings, s.LoopCPU)
	}
	return nil
}

// HasLogTag reports whether tag is enabled.
func (s Settings) HasLogTag(tag string) bool {
	return slices.Contains(s.LogTags, tag)
}

func (s Settings) clone() Settings {
	s.LogTags = slices.Clone(s.LogTags)
	return s
}

type tagList struct{ tags *[]string }

func (t tagList) String() string {
	if t.tags == nil {
		return ""
	}
	return strings.Join(*t.tags, ",")
}

func (t tagList) Set(v string) error {
	for _, tag := range strings.Split(v, ",") {
		if tag = strings.TrimSpace(tag); tag != "" && !slices.Contains(*t.tags, tag) {
			*t.tags = append(*t.tags, tag)
		}
	}
	return nil
}

// ParseArgs reads --key=value flags on top of DefaultSettings. Positional
// arguments are rejected.
func ParseArgs(args []string) (Settings, error) {
	s := DefaultSettings()
	fs := flag.NewFlagSet("hioload-worker", flag.ContinueOnError)
	fs.SetOutput(io.Discard)
	fs.StringVar(&s.LogLevel, "logLevel", s.LogLevel, "debug, warn, error or none")
	fs.Var(tagList{&s.LogTags}, "logTag", "enable a log tag (repeatable or comma separated)")
	fs.IntVar(&s.MaxFrameBody, "maxFrameBody", s.MaxFrameBody, "largest accepted frame body in bytes")
	fs.IntVar(&s.ReadBufferSize, "readBufferSize", s.ReadBufferSize, "consumer read size in bytes")
	fs.DurationVar(&s.CheckerInterval, "checkerInterval", s.CheckerInterval, "association clock tick interval")
	fs.DurationVar(&s.CheckerMaxElapsed, "checkerMaxElapsed", s.CheckerMaxElapsed, "largest clock advance per tick")
	fs.StringVar(&s.MetricsAddr, "metricsAddr", "", "serve Prometheus metrics on this address")
	fs.IntVar(&s.LoopCPU, "loopCpu", s.LoopCPU, "pin the loop thread to this CPU (-1 disables)")
	if err := fs.Parse(args); err != nil {
		return Settings{}, fmt.Errorf("%w: %v", ErrInvalidSettings, err)
	}
	if fs.NArg() > 0 {
		return Settings{}, fmt.Errorf("%w: unexpected argument %q", ErrInvalidSettings, fs.Arg(0))
	}
	if err := s.Validate(); err != nil {
		return Settings{}, err
	}
	return s, nil
}

// SettingsStore holds the current Settings with reload listener support.
type SettingsStore struct {
	mu      sync.RWMutex
	current Settings
	hooks   reloadHooks
}

// NewSettingsStore initializes a store with s, which must be valid.
func NewSettingsStore(s Settings) *SettingsStore {
	return &SettingsStore{current: s.clone()}
}

// Get returns a copy of the current settings.
func (ss *SettingsStore) Get() Settings {
	ss.mu.RLock()
	defer ss.mu.RUnlock()
	return ss.current.clone()
}

// Update applies fn to a copy, validates it and publishes the result to all
// reload listeners. The store is unchanged when validation fails.
func (ss *SettingsStore) Update(fn func(*Settings)) error {
	ss.mu.Lock()
	next := ss.current.clone()
	fn(&next)
	if err := next.Validate(); err != nil {
		ss.mu.Unlock()
		return err
	}
	ss.current = next
	hooks := ss.hooks.snapshot()
	ss.mu.Unlock()

	trigger(hooks, next.clone())
	return nil
}

// OnReload registers a listener hook called after each successful Update.
func (ss *SettingsStore) OnReload(fn func(Settings)) {
	ss.mu.Lock()
	defer ss.mu.Unlock()
	ss.hooks.register(fn)
}
