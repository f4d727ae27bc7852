// File: control/debug.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
//
// Named state probes collected by worker.dump. Subsystems register the
// probes describing themselves under "<group>.<name>".

package control

import (
	"sort"
	"strings"
	"sync"
)

// Probe reports one piece of state. It must be JSON-encodable.
type Probe func() any

// DebugProbes holds registered probes.
type DebugProbes struct {
	mu     sync.RWMutex
	probes map[string]Probe
}

// NewDebugProbes creates an empty probe set.
func NewDebugProbes() *DebugProbes {
	return &DebugProbes{probes: make(map[string]Probe)}
}

// RegisterProbe sets the probe for name, replacing any previous one. A nil
// fn removes it.
func (dp *DebugProbes) RegisterProbe(name string, fn Probe) {
	dp.mu.Lock()
	defer dp.mu.Unlock()
	if fn == nil {
		delete(dp.probes, name)
		return
	}
	dp.probes[name] = fn
}

// UnregisterProbe removes a named probe.
func (dp *DebugProbes) UnregisterProbe(name string) {
	dp.RegisterProbe(name, nil)
}

// Names returns the registered probe names in order.
func (dp *DebugProbes) Names() []string {
	dp.mu.RLock()
	names := make([]string, 0, len(dp.probes))
	for k := range dp.probes {
		names = append(names, k)
	}
	dp.mu.RUnlock()
	sort.Strings(names)
	return names
}

// Probe runs a single probe.
func (dp *DebugProbes) Probe(name string) (any, bool) {
	dp.mu.RLock()
	fn, ok := dp.probes[name]
	dp.mu.RUnlock()
	if !ok {
		return nil, false
	}
	return fn(), true
}

// snapshot copies the probe table. Probes run outside the lock so they may
// register further probes.
func (dp *DebugProbes) snapshot() map[string]Probe {
	dp.mu.RLock()
	defer dp.mu.RUnlock()
	fns := make(map[string]Probe, len(dp.probes))
	for k, fn := range dp.probes {
		fns[k] = fn
	}
	return fns
}

// DumpState runs every probe and returns the results keyed by full name.
func (dp *DebugProbes) DumpState() map[string]any {
	fns := dp.snapshot()
	out := make(map[string]any, len(fns))
	for k, fn := range fns {
		out[k] = fn()
	}
	return out
}

// DumpGroups runs every probe and nests the results by the part of the name
// before the first dot: "transport.channel" lands in out["transport"]["channel"].
// Names without a dot stay at the top level unless a group of the same name
// exists, which takes precedence.
func (dp *DebugProbes) DumpGroups() map[string]any {
	out := make(map[string]any)
	groups := make(map[string]map[string]any)
	for name, v := range dp.DumpState() {
		group, member, ok := strings.Cut(name, ".")
		if !ok {
			if _, taken := groups[name]; !taken {
				out[name] = v
			}
			continue
		}
		g := groups[group]
		if g == nil {
			g = make(map[string]any)
			groups[group] = g
			out[group] = g
		}
		g[member] = v
	}
	return out
}
