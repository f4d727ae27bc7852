// File: association/registry.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
//
// Id-indexed table of externally owned associations. The registry hands
// out ids, indexes handles without owning them and keeps the Checker
// running exactly while it is non-empty.

package association

import (
	"slices"
	"time"

	"github.com/rs/zerolog"

	"github.com/momentics/hioload-worker/api"
	"github.com/momentics/hioload-worker/control"
	"github.com/momentics/hioload-worker/reactor"
)

// Config tunes a Registry.
type Config struct {
	// CheckerInterval is the tick period. Defaults to 10ms.
	CheckerInterval time.Duration
	// CheckerMaxElapsed caps the advance passed per tick. Defaults to 1s.
	CheckerMaxElapsed time.Duration
	// Clock overrides the loop clock, mainly for tests.
	Clock   api.Clock
	Logger  zerolog.Logger
	Metrics *control.Metrics
}

// Registry must be used from the loop goroutine only.
type Registry struct {
	associations map[uint64]api.Association
	nextID       uint64
	checker      *Checker
	metrics      *control.Metrics
	log          zerolog.Logger
}

// NewRegistry creates an empty registry whose Checker runs on loop.
func NewRegistry(loop *reactor.Loop, cfg Config) *Registry {
	if cfg.CheckerInterval <= 0 {
		cfg.CheckerInterval = 10 * time.Millisecond
	}
	if cfg.CheckerMaxElapsed <= 0 {
		cfg.CheckerMaxElapsed = time.Second
	}
	if cfg.Clock == nil {
		cfg.Clock = loop
	}
	r := &Registry{
		associations: make(map[uint64]api.Association),
		metrics:      cfg.Metrics,
		log:          cfg.Logger.With().Str("component", "registry").Logger(),
	}
	r.checker = newChecker(r, loop, cfg)
	return r
}

// GetNextAssociationID returns an id not held by any registered
// association. Zero is never returned.
func (r *Registry) GetNextAssociationID() uint64 {
	for {
		r.nextID++
		if r.nextID == 0 {
			continue
		}
		if _, taken := r.associations[r.nextID]; !taken {
			return r.nextID
		}
	}
}

// RegisterAssociation indexes a under a.ID(). Registering an id twice is a
// fatal invariant violation.
func (r *Registry) RegisterAssociation(a api.Association) {
	id := a.ID()
	if _, dup := r.associations[id]; dup {
		api.Invariant("association.Register", "association id %d already registered", id)
	}
	r.associations[id] = a
	r.metrics.SetAssociations(len(r.associations))
	r.log.Debug().Uint64("id", id).Int("count", len(r.associations)).Msg("association registered")
	if len(r.associations) == 1 {
		r.checker.start()
	}
}

// DeregisterAssociation removes a. An unknown id yields api.ErrNotFound.
func (r *Registry) DeregisterAssociation(a api.Association) error {
	id := a.ID()
	if _, ok := r.associations[id]; !ok {
		return api.NewError(api.ErrCodeNotFound, "deregister: association not registered").WithContext("id", id)
	}
	delete(r.associations, id)
	r.metrics.SetAssociations(len(r.associations))
	r.log.Debug().Uint64("id", id).Int("count", len(r.associations)).Msg("association deregistered")
	if len(r.associations) == 0 {
		r.checker.stop()
	}
	return nil
}

// RetrieveAssociation returns the association registered under id.
func (r *Registry) RetrieveAssociation(id uint64) (api.Association, bool) {
	a, ok := r.associations[id]
	return a, ok
}

// Len returns the number of registered associations.
func (r *Registry) Len() int { return len(r.associations) }

// IDs returns the registered ids in ascending order.
func (r *Registry) IDs() []uint64 {
	ids := make([]uint64, 0, len(r.associations))
	for id := range r.associations {
		ids = append(ids, id)
	}
	slices.Sort(ids)
	return ids
}

// Checker exposes the clock ticker.
func (r *Registry) Checker() *Checker { return r.checker }

// Close stops the Checker and drops every handle. The associations
// themselves are not touched.
func (r *Registry) Close() {
	r.checker.close()
	clear(r.associations)
	r.metrics.SetAssociations(0)
}
