package config

import "sync/atomic"

// Toggles are the runtime switches owner commands can flip without a
// restart. They are shared between the dispatcher's handlers and the
// lifecycle status listener, so access is atomic.
type Toggles struct {
	autoView  atomic.Bool
	autoReact atomic.Bool
}

// NewToggles seeds the runtime toggles from the static configuration.
func NewToggles(cfg *Config) *Toggles {
	t := &Toggles{}
	t.autoView.Store(cfg.AutoViewStatus)
	t.autoReact.Store(cfg.AutoReactStatus)
	return t
}

// AutoView reports whether statuses are auto-viewed.
func (t *Toggles) AutoView() bool { return t.autoView.Load() }

// SetAutoView flips status auto-viewing.
func (t *Toggles) SetAutoView(on bool) { t.autoView.Store(on) }

// AutoReact reports whether statuses are auto-reacted to.
func (t *Toggles) AutoReact() bool { return t.autoReact.Load() }

// SetAutoReact flips status auto-reacting.
func (t *Toggles) SetAutoReact(on bool) { t.autoReact.Store(on) }
