package plugin

import (
	"github.com/sirupsen/logrus"
)

// Metadata identifies a plugin for display and lookup.
// It is captured once when the plugin unit loads and never mutated.
type Metadata struct {
	Name         string
	Version      string
	Description  string
	Author       string
	Dependencies []string
}

// Settings describes a plugin's configurable surface.
// The core does not interpret or persist any of it; that is the
// management UI's job. A nil *Settings means "no configurable
// settings", which is distinct from settings that happen to be empty.
type Settings struct {
	DisplayName    string
	Description    string
	ConfigSchema   map[string]any
	DefaultConfig  map[string]any
	SettingsWidget string
}

// Context carries per-event information into callbacks and lifecycle
// hooks. A fresh Context is built for every triggered event; callbacks
// treat it as read-only.
type Context struct {
	// App is an opaque handle to the host application. May be nil for
	// events that fire outside a running host (tests, CLI management).
	App any

	// Log is the host's structured logger.
	Log logrus.FieldLogger

	// Data holds event-specific payload, e.g. {"text": <box contents>}
	// for text and key events.
	Data map[string]any
}

// NewContext builds a context with a non-nil data map.
func NewContext(app any, log logrus.FieldLogger, data map[string]any) *Context {
	if data == nil {
		data = make(map[string]any)
	}
	if log == nil {
		log = logrus.StandardLogger()
	}
	return &Context{App: app, Log: log, Data: data}
}

// Result tells the dispatcher whether to keep processing the remaining
// callbacks at the current position.
type Result int

const (
	// Continue lets dispatch proceed to the next callback.
	Continue Result = iota
	// Stop short-circuits dispatch for this position and this event only.
	Stop
)

// Callback is a single registered handler for one position.
//
// A Callback is owned by exactly one Plugin and is never shared.
// Implementations must be pointer types: the registry removes callbacks
// by identity, not by value.
type Callback interface {
	// Position is the lifecycle point this callback runs at.
	Position() Position

	// Priority orders callbacks within a position; lower runs earlier.
	// Ties keep registration order.
	Priority() int

	// Enabled reports whether dispatch should invoke this callback.
	Enabled() bool

	// Invoke runs the callback. Returning Stop halts dispatch for the
	// remaining callbacks at this position. Errors are logged by the
	// dispatcher and never propagate.
	Invoke(ctx *Context) (Result, error)
}

// Plugin is the contract every plugin unit must satisfy.
type Plugin interface {
	// Metadata must be non-zero; Name is the lookup key.
	Metadata() Metadata

	// Callbacks returns the plugin's callbacks. The slice is captured
	// once at load time; its members keep stable identity for the
	// plugin's whole lifetime.
	Callbacks() []Callback

	// Settings returns nil when the plugin has nothing to configure.
	Settings() *Settings

	// Enabled is the plugin's declared default. Runtime enabled state
	// is derived from the directory name, not from this.
	Enabled() bool

	// Initialize prepares the plugin. A non-nil error is a non-fatal
	// failure: the plugin stays loaded and registered, a warning is
	// logged.
	Initialize(ctx *Context) error

	// Shutdown releases plugin resources. Called at most once per
	// enable period; errors are logged by the caller, never propagated.
	Shutdown(ctx *Context) error
}

// Base provides no-op defaults for the optional parts of the Plugin
// contract. Native plugins may embed it and override what they need.
type Base struct{}

// Settings returns nil: no configurable settings.
func (Base) Settings() *Settings { return nil }

// Enabled returns the declared default of true.
func (Base) Enabled() bool { return true }

// Initialize succeeds without doing anything.
func (Base) Initialize(*Context) error { return nil }

// Shutdown does nothing.
func (Base) Shutdown(*Context) error { return nil }
