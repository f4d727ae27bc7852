// File: association/checker.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0

package association

import (
	"time"

	"github.com/rs/zerolog"

	"github.com/momentics/hioload-worker/api"
	"github.com/momentics/hioload-worker/reactor"
)

// Checker periodically advances the clock of every registered association
// by the real time elapsed since its previous run.
type Checker struct {
	registry     *Registry
	timer        *reactor.Timer
	clock        api.Clock
	interval     time.Duration
	maxElapsedMs uint64
	log          zerolog.Logger

	lastCalledAtMs uint64
	ticks          uint64
	ids            []uint64 // reused snapshot buffer
}

func newChecker(r *Registry, loop *reactor.Loop, cfg Config) *Checker {
	c := &Checker{
		registry:     r,
		clock:        cfg.Clock,
		interval:     cfg.CheckerInterval,
		maxElapsedMs: uint64(cfg.CheckerMaxElapsed / time.Millisecond),
		log:          r.log,
	}
	c.timer = reactor.NewTimer(loop, c.tick)
	return c
}

// Active reports whether the timer is armed.
func (c *Checker) Active() bool { return c.timer.IsActive() }

// Ticks returns how many ticks advanced the associations.
func (c *Checker) Ticks() uint64 { return c.ticks }

// LastCalledAtMs returns the clock reading of the latest tick.
func (c *Checker) LastCalledAtMs() uint64 { return c.lastCalledAtMs }

func (c *Checker) start() {
	c.lastCalledAtMs = c.clock.NowMs()
	if err := c.timer.Start(c.interval, c.interval); err != nil {
		c.log.Error().Err(err).Msg("checker start failed")
		return
	}
	c.log.Debug().Dur("interval", c.interval).Msg("checker started")
}

func (c *Checker) stop() {
	c.timer.Stop()
	c.log.Debug().Msg("checker stopped")
}

func (c *Checker) close() {
	c.timer.Close()
}

func (c *Checker) tick() {
	now := c.clock.NowMs()
	var elapsed uint64
	if now > c.lastCalledAtMs {
		elapsed = now - c.lastCalledAtMs
	}
	c.lastCalledAtMs = now
	if elapsed > c.maxElapsedMs {
		c.log.Warn().Uint64("elapsedMs", elapsed).Uint64("clampMs", c.maxElapsedMs).Msg("checker lagging, clamping advance")
		elapsed = c.maxElapsedMs
	}
	if elapsed == 0 {
		return
	}
	c.ticks++
	c.registry.metrics.CheckerTick(time.Duration(elapsed) * time.Millisecond)

	// Associations may deregister themselves or others while advancing.
	c.ids = c.ids[:0]
	for id := range c.registry.associations {
		c.ids = append(c.ids, id)
	}
	for _, id := range c.ids {
		if a, ok := c.registry.associations[id]; ok {
			a.AdvanceClock(elapsed)
		}
	}
}
