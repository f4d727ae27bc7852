// File: worker/methods.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0

package worker

import (
	"os"

	"github.com/momentics/hioload-worker/api"
	"github.com/momentics/hioload-worker/control"
	"github.com/momentics/hioload-worker/internal/jsoncodec"
	"github.com/momentics/hioload-worker/protocol"
)

// Built-in Channel methods.
const (
	MethodClose            = "worker.close"
	MethodDump             = "worker.dump"
	MethodGetResourceUsage = "worker.getResourceUsage"
	MethodUpdateSettings   = "worker.updateSettings"
)

// TransportDump describes one transport in a worker dump.
type TransportDump struct {
	Consumer api.EndpointState  `json:"consumer"`
	Producer api.EndpointState  `json:"producer"`
	Stats    api.TransportStats `json:"stats"`
}

// CheckerDump describes the association clock ticker.
type CheckerDump struct {
	Active         bool   `json:"active"`
	Ticks          uint64 `json:"ticks"`
	LastCalledAtMs uint64 `json:"lastCalledAtMs"`
}

// Dump is the worker.dump response. Probes holds every registered probe,
// grouped by name prefix (see control.DebugProbes.DumpGroups).
type Dump struct {
	PID      int              `json:"pid"`
	Settings control.Settings `json:"settings"`
	Probes   map[string]any   `json:"probes"`
}

// Probe names registered by the worker itself.
const (
	ProbeAssociationIDs     = "association.ids"
	ProbeAssociationChecker = "association.checker"
	ProbeChannel            = "transport.channel"
	ProbePayloadChannel     = "transport.payloadChannel"
)

// SettingsUpdate is the worker.updateSettings request data. Absent fields
// are left unchanged.
type SettingsUpdate struct {
	LogLevel *string   `json:"logLevel,omitempty"`
	LogTags  *[]string `json:"logTags,omitempty"`
}

func (w *Worker) registerBuiltins() {
	w.HandleRequest(MethodClose, closeMethod)
	w.HandleRequest(MethodDump, dumpMethod)
	w.HandleRequest(MethodGetResourceUsage, resourceUsageMethod)
	w.HandleRequest(MethodUpdateSettings, updateSettingsMethod)
}

func closeMethod(w *Worker, req *protocol.Request) error {
	if err := req.Accept(nil); err != nil {
		return err
	}
	w.Close()
	return nil
}

func dumpMethod(w *Worker, req *protocol.Request) error {
	return req.Accept(w.Dump())
}

func resourceUsageMethod(w *Worker, req *protocol.Request) error {
	usage, err := getResourceUsage()
	if err != nil {
		return err
	}
	return req.Accept(usage)
}

func updateSettingsMethod(w *Worker, req *protocol.Request) error {
	var upd SettingsUpdate
	if len(req.Data) > 0 {
		if err := jsoncodec.Unmarshal(req.Data, &upd); err != nil {
			return api.NewError(api.ErrCodeInvalidArgument, "settings data is not an object").WithContext("cause", err.Error())
		}
	}
	return w.settings.Update(func(s *control.Settings) {
		if upd.LogLevel != nil {
			s.LogLevel = *upd.LogLevel
		}
		if upd.LogTags != nil {
			s.LogTags = *upd.LogTags
		}
	})
}

// registerProbes exposes the registry and both transports to worker.dump.
func (w *Worker) registerProbes() {
	control.RegisterPlatformProbes(w.probes)
	w.probes.RegisterProbe(ProbeAssociationIDs, func() any { return w.registry.IDs() })
	w.probes.RegisterProbe(ProbeAssociationChecker, func() any {
		c := w.registry.Checker()
		return CheckerDump{Active: c.Active(), Ticks: c.Ticks(), LastCalledAtMs: c.LastCalledAtMs()}
	})
	w.probes.RegisterProbe(ProbeChannel, func() any {
		d := TransportDump{Stats: w.channel.Stats()}
		d.Consumer, d.Producer = w.channel.States()
		return d
	})
	w.probes.RegisterProbe(ProbePayloadChannel, func() any {
		d := TransportDump{Stats: w.payload.Stats()}
		d.Consumer, d.Producer = w.payload.States()
		return d
	})
}

// Dump snapshots the worker state.
func (w *Worker) Dump() Dump {
	return Dump{
		PID:      os.Getpid(),
		Settings: w.settings.Get(),
		Probes:   w.probes.DumpGroups(),
	}
}
