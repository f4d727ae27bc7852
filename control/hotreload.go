// control/hotreload.go
// Manages reload hooks for settings changes.
// Hooks run synchronously on the goroutine applying the change, which for
// the worker is the loop goroutine.

package control

type reloadHooks struct {
	hooks []func(Settings)
}

// register adds a new component reload listener.
func (r *reloadHooks) register(fn func(Settings)) {
	r.hooks = append(r.hooks, fn)
}

// snapshot returns the hooks to call outside the store lock.
func (r *reloadHooks) snapshot() []func(Settings) {
	out := make([]func(Settings), len(r.hooks))
	copy(out, r.hooks)
	return out
}

// trigger invokes hooks in registration order.
func trigger(hooks []func(Settings), s Settings) {
	for _, fn := range hooks {
		fn(s)
	}
}
