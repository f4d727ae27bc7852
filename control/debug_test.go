package control_test

import (
	"os"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/momentics/hioload-worker/control"
)

func TestDebugProbes(t *testing.T) {
	dp := control.NewDebugProbes()
	dp.RegisterProbe("answer", func() any { return 42 })
	dp.RegisterProbe("nested", func() any {
		dp.RegisterProbe("late", func() any { return true })
		return "ok"
	})

	state := dp.DumpState()
	assert.Equal(t, 42, state["answer"])
	assert.Equal(t, "ok", state["nested"])
	assert.NotContains(t, state, "late")

	dp.UnregisterProbe("answer")
	state = dp.DumpState()
	assert.NotContains(t, state, "answer")
	assert.Equal(t, true, state["late"])
}

func TestDebugProbes_NilRemovesAndNamesSorted(t *testing.T) {
	dp := control.NewDebugProbes()
	dp.RegisterProbe("b.x", func() any { return 1 })
	dp.RegisterProbe("a", func() any { return 2 })
	assert.Equal(t, []string{"a", "b.x"}, dp.Names())

	v, ok := dp.Probe("b.x")
	assert.True(t, ok)
	assert.Equal(t, 1, v)

	dp.RegisterProbe("b.x", nil)
	_, ok = dp.Probe("b.x")
	assert.False(t, ok)
	assert.Equal(t, []string{"a"}, dp.Names())
}

func TestDebugProbes_DumpGroups(t *testing.T) {
	dp := control.NewDebugProbes()
	dp.RegisterProbe("transport.channel", func() any { return "open" })
	dp.RegisterProbe("transport.payloadChannel", func() any { return "closed" })
	dp.RegisterProbe("uptime", func() any { return 3 })
	dp.RegisterProbe("association", func() any { return "shadowed" })
	dp.RegisterProbe("association.ids", func() any { return []uint64{1} })

	groups := dp.DumpGroups()
	assert.Equal(t, 3, groups["uptime"])
	assert.Equal(t, map[string]any{"channel": "open", "payloadChannel": "closed"}, groups["transport"])
	assert.Equal(t, map[string]any{"ids": []uint64{1}}, groups["association"])
}

func TestPlatformProbes(t *testing.T) {
	dp := control.NewDebugProbes()
	control.RegisterPlatformProbes(dp)
	state := dp.DumpState()
	assert.Positive(t, state["platform.cpus"])
	assert.Equal(t, os.Getpid(), state["platform.pid"])
}
