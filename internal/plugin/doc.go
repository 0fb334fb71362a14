// Package plugin implements the plugin system: discovery of plugin
// units from a directory tree, a priority-ordered callback registry,
// and a manager that keeps the loaded set in sync with the disk.
//
// Each plugin lives in its own subdirectory of the plugins root and
// runs as an isolated Lua unit. Enabled state is persisted in the
// directory name itself: a ".disabled" suffix disables the plugin, and
// toggling is a rename. A filesystem watcher (see Watcher) feeds
// external changes back through Manager.Reconcile.
package plugin
