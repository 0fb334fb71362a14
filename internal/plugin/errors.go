package plugin

import (
	"errors"
	"fmt"
)

// Plugin system errors.
var (
	// ErrPluginNotFound is returned when a plugin cannot be located by name.
	ErrPluginNotFound = errors.New("plugin not found")

	// ErrNoEntryPoint is returned when a plugin directory has no entry point.
	ErrNoEntryPoint = errors.New("plugin has no entry point (init.lua or main.lua)")

	// ErrNoPlugin is returned when a loaded unit yields no Plugin instance.
	ErrNoPlugin = errors.New("no plugin instance found in unit")

	// ErrDirectoryNotFound is returned when a plugin's backing directory
	// has vanished from the plugins root.
	ErrDirectoryNotFound = errors.New("plugin directory not found")

	// ErrRootNotFound is returned when the plugins root does not exist.
	ErrRootNotFound = errors.New("plugins directory does not exist")
)

// panicError wraps a recovered panic value so it can travel as an error.
func panicError(v any) error {
	if err, ok := v.(error); ok {
		return fmt.Errorf("panic: %w", err)
	}
	return fmt.Errorf("panic: %v", v)
}
