package plugin

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"sync"

	"github.com/sirupsen/logrus"
)

// Manager owns the plugin units, the callback registry, and the
// enabled state persisted in directory names.
//
// All mutation is serialized by the manager's lock. TriggerCallbacks
// snapshots the dispatch list under a read lock and invokes callbacks
// outside it, so a callback that takes a long time never blocks a
// concurrent Reconcile, and a re-entrant trigger cannot deadlock.
type Manager struct {
	mu sync.RWMutex

	log      logrus.FieldLogger
	loader   *Loader
	registry *Registry
	plugins  []*Unit
}

// Rename describes one observed directory rename.
type Rename struct {
	OldDir string
	NewDir string
}

// Changes is the difference between the loaded plugin set and the
// directory set currently on disk, keyed by canonical name.
type Changes struct {
	// New holds on-disk directory names with no loaded counterpart.
	New []string
	// Deleted holds canonical names of loaded plugins whose directory
	// is gone.
	Deleted []string
	// Renamed holds loaded plugins whose directory name changed, which
	// is how an external enable or disable toggle appears.
	Renamed []Rename
}

// Empty reports whether nothing changed.
func (c Changes) Empty() bool {
	return len(c.New) == 0 && len(c.Deleted) == 0 && len(c.Renamed) == 0
}

// Info is a read-only snapshot of one plugin for listings and
// management UIs.
type Info struct {
	Name          string
	Version       string
	Description   string
	Author        string
	Dependencies  []string
	Enabled       bool
	DirectoryName string
	HasSettings   bool
	CallbackCount int
}

// NewManager creates a manager for the given plugins root.
func NewManager(root string, log logrus.FieldLogger) *Manager {
	if log == nil {
		log = logrus.StandardLogger()
	}
	return &Manager{
		log:      log,
		loader:   NewLoader(root, log),
		registry: NewRegistry(log),
	}
}

// LoadPlugins discovers and loads every plugin unit, replacing any
// previously loaded set. A missing plugins root is logged as a warning
// and leaves the current state untouched.
func (m *Manager) LoadPlugins() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	units, err := m.loader.Discover()
	if err != nil {
		if errors.Is(err, ErrRootNotFound) {
			m.log.Warnf("plugins directory does not exist: %s", m.loader.Root())
			return nil
		}
		return err
	}

	for _, u := range m.plugins {
		u.Close()
	}
	m.plugins = nil
	m.registry.Clear()

	for _, u := range units {
		m.plugins = append(m.plugins, u)
		if !u.RuntimeEnabled {
			continue
		}
		for _, cb := range u.Plugin.Callbacks() {
			m.registry.Register(cb)
		}
	}
	m.registry.ResortAll()

	m.log.Infof("loaded %d plugins", len(m.plugins))
	return nil
}

// InitializePlugins runs Initialize on every enabled plugin. A failure
// is a warning, never fatal: the plugin stays loaded and registered.
func (m *Manager) InitializePlugins(ctx *Context) {
	m.mu.Lock()
	defer m.mu.Unlock()

	for _, u := range m.plugins {
		if !u.RuntimeEnabled {
			continue
		}
		if err := safeInitialize(u.Plugin, ctx); err != nil {
			m.log.Warnf("plugin %s failed to initialize: %v", u.ActualName, err)
		}
	}
}

// ShutdownPlugins runs Shutdown on every loaded plugin, enabled or
// not, and releases their resources. The manager is empty afterwards.
func (m *Manager) ShutdownPlugins(ctx *Context) {
	m.mu.Lock()
	defer m.mu.Unlock()

	for _, u := range m.plugins {
		if err := safeShutdown(u.Plugin, ctx); err != nil {
			m.log.Warnf("plugin %s failed to shut down: %v", u.ActualName, err)
		}
		u.Close()
	}
	m.plugins = nil
	m.registry.Clear()
}

// TriggerCallbacks dispatches an event to every callback registered at
// the position, in priority order.
func (m *Manager) TriggerCallbacks(pos Position, ctx *Context) {
	m.mu.RLock()
	cbs := m.registry.Callbacks(pos)
	m.mu.RUnlock()

	m.registry.dispatch(cbs, pos, ctx)
}

// SetEnabled toggles a plugin by renaming its directory on disk. The
// rename is the commit point: if it fails, nothing changes. Toggling
// to the current state is a successful no-op.
//
// On an actual transition the plugin's callbacks are registered or
// purged, and with a non-nil ctx its lifecycle hooks run: enable
// initializes the plugin and fires its own launch callbacks, disable
// fires its own exit callbacks and shuts it down.
func (m *Manager) SetEnabled(name string, enabled bool, ctx *Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	u := m.find(name)
	if u == nil {
		return fmt.Errorf("%w: %s", ErrPluginNotFound, name)
	}

	currentPath := filepath.Join(m.loader.Root(), u.DirectoryName)
	if _, err := os.Stat(currentPath); err != nil {
		return fmt.Errorf("%w: %s", ErrDirectoryNotFound, u.DirectoryName)
	}

	target := u.ActualName
	if !enabled {
		target += DisabledSuffix
	}
	if target == u.DirectoryName {
		return nil
	}

	if err := os.Rename(currentPath, filepath.Join(m.loader.Root(), target)); err != nil {
		return fmt.Errorf("failed to rename plugin directory: %w", err)
	}

	oldDir := u.DirectoryName
	u.DirectoryName = target
	u.RuntimeEnabled = enabled
	m.loader.Rename(oldDir, target)

	m.updateCallbacks(u, ctx)
	m.log.Infof("plugin %s %s", u.ActualName, statusWord(enabled))
	return nil
}

// updateCallbacks reconciles the registry with a unit's enabled state
// and runs the matching lifecycle transition. Callers hold the write
// lock.
func (m *Manager) updateCallbacks(u *Unit, ctx *Context) {
	cbs := u.Plugin.Callbacks()
	m.registry.UnregisterAll(cbs)

	if u.RuntimeEnabled {
		for _, cb := range cbs {
			m.registry.Register(cb)
		}
		m.registry.ResortAll()
		if ctx != nil {
			if err := safeInitialize(u.Plugin, ctx); err != nil {
				m.log.Warnf("plugin %s failed to initialize: %v", u.ActualName, err)
			}
			m.fireOwn(u, PositionLaunch, ctx)
		}
		return
	}

	if ctx != nil {
		m.fireOwn(u, PositionExit, ctx)
		if err := safeShutdown(u.Plugin, ctx); err != nil {
			m.log.Warnf("plugin %s failed to shut down: %v", u.ActualName, err)
		}
	}
}

// fireOwn dispatches one unit's own callbacks at a position, in
// priority order. Used for per-plugin lifecycle transitions where the
// rest of the registry must not see the event.
func (m *Manager) fireOwn(u *Unit, pos Position, ctx *Context) {
	var own []Callback
	for _, cb := range u.Plugin.Callbacks() {
		if cb.Position() == pos {
			own = append(own, cb)
		}
	}
	sort.SliceStable(own, func(i, j int) bool {
		return own[i].Priority() < own[j].Priority()
	})
	m.registry.dispatch(own, pos, ctx)
}

// CheckForChanges compares the loaded plugin set with the directory
// set on disk. Plugins are matched by canonical name, so an enable or
// disable rename is classified as Renamed rather than a delete plus an
// add.
func (m *Manager) CheckForChanges() (Changes, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	dirs, err := m.loader.listDirs()
	if err != nil {
		return Changes{}, err
	}

	onDisk := make(map[string]string, len(dirs))
	for _, dir := range dirs {
		onDisk[BaseName(dir)] = dir
	}

	var changes Changes
	loaded := make(map[string]bool, len(m.plugins))
	for _, u := range m.plugins {
		loaded[u.ActualName] = true
		dir, ok := onDisk[u.ActualName]
		if !ok {
			changes.Deleted = append(changes.Deleted, u.ActualName)
			continue
		}
		if dir != u.DirectoryName {
			changes.Renamed = append(changes.Renamed, Rename{OldDir: u.DirectoryName, NewDir: dir})
		}
	}
	for base, dir := range onDisk {
		if !loaded[base] {
			changes.New = append(changes.New, dir)
		}
	}

	sort.Strings(changes.New)
	sort.Strings(changes.Deleted)
	sort.Slice(changes.Renamed, func(i, j int) bool {
		return changes.Renamed[i].OldDir < changes.Renamed[j].OldDir
	})
	return changes, nil
}

// HandleRenamedPlugins adopts externally observed renames. A rename
// that flips the disabled suffix is an enable or disable toggle and
// runs the same transition as SetEnabled. Returns the canonical names
// of the affected plugins.
func (m *Manager) HandleRenamedPlugins(renames []Rename, ctx *Context) []string {
	m.mu.Lock()
	defer m.mu.Unlock()

	var affected []string
	for _, r := range renames {
		u := m.findByDir(r.OldDir)
		if u == nil {
			m.log.Warnf("renamed plugin not loaded: %s", r.OldDir)
			continue
		}
		wasEnabled := u.RuntimeEnabled
		u.DirectoryName = r.NewDir
		u.RuntimeEnabled = !IsDisabled(r.NewDir)
		m.loader.Rename(r.OldDir, r.NewDir)

		if u.RuntimeEnabled != wasEnabled {
			m.updateCallbacks(u, ctx)
		}
		m.log.Infof("plugin %s renamed: %s -> %s", u.ActualName, r.OldDir, r.NewDir)
		affected = append(affected, u.ActualName)
	}
	return affected
}

// HandleDeletedPlugins unloads plugins whose directories are gone:
// their exit callbacks fire, Shutdown runs, their callbacks leave the
// registry, and their state is released. Returns the canonical names
// of the removed plugins.
func (m *Manager) HandleDeletedPlugins(names []string, ctx *Context) []string {
	m.mu.Lock()
	defer m.mu.Unlock()

	var removed []string
	for _, name := range names {
		u := m.find(name)
		if u == nil {
			continue
		}
		if u.RuntimeEnabled && ctx != nil {
			m.fireOwn(u, PositionExit, ctx)
		}
		if err := safeShutdown(u.Plugin, ctx); err != nil {
			m.log.Warnf("plugin %s failed to shut down: %v", u.ActualName, err)
		}
		m.registry.UnregisterAll(u.Plugin.Callbacks())
		m.loader.Forget(u.DirectoryName)
		u.Close()
		m.remove(u)

		m.log.Infof("plugin removed: %s", u.ActualName)
		removed = append(removed, u.ActualName)
	}
	return removed
}

// HandleNewPlugins loads directories that appeared after the initial
// scan. The loader's auto-disable rule applies, so a brand-new plugin
// normally comes up disabled and must be enabled explicitly. Returns
// the canonical names of the loaded plugins.
func (m *Manager) HandleNewPlugins(dirs []string, ctx *Context) []string {
	m.mu.Lock()
	defer m.mu.Unlock()

	var added []string
	for _, dir := range dirs {
		u, err := m.loader.LoadNew(dir)
		if err != nil {
			m.log.Errorf("failed to load new plugin %s: %v", BaseName(dir), err)
			continue
		}
		m.plugins = append(m.plugins, u)
		if u.RuntimeEnabled {
			m.updateCallbacks(u, ctx)
		}
		added = append(added, u.ActualName)
	}
	return added
}

// Reconcile folds any on-disk changes into the loaded plugin set. It
// is the entry point for the filesystem watcher and for explicit
// refreshes.
func (m *Manager) Reconcile(ctx *Context) error {
	changes, err := m.CheckForChanges()
	if err != nil {
		if errors.Is(err, ErrRootNotFound) {
			m.log.Warnf("plugins directory does not exist: %s", m.loader.Root())
			return nil
		}
		return err
	}
	if changes.Empty() {
		return nil
	}

	renamed := m.HandleRenamedPlugins(changes.Renamed, ctx)
	deleted := m.HandleDeletedPlugins(changes.Deleted, ctx)
	added := m.HandleNewPlugins(changes.New, ctx)

	m.log.Infof("plugins reconciled: %d renamed, %d deleted, %d new",
		len(renamed), len(deleted), len(added))
	return nil
}

// GetPluginInfo returns a snapshot of one plugin, taken from the live
// unit rather than a cache.
func (m *Manager) GetPluginInfo(name string) (Info, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	u := m.find(name)
	if u == nil {
		return Info{}, fmt.Errorf("%w: %s", ErrPluginNotFound, name)
	}
	return infoOf(u), nil
}

// ListAllPluginInfo returns snapshots of every loaded plugin, sorted
// by canonical name.
func (m *Manager) ListAllPluginInfo() []Info {
	m.mu.RLock()
	defer m.mu.RUnlock()

	infos := make([]Info, 0, len(m.plugins))
	for _, u := range m.plugins {
		infos = append(infos, infoOf(u))
	}
	sort.Slice(infos, func(i, j int) bool {
		return infos[i].Name < infos[j].Name
	})
	return infos
}

// Get returns a loaded plugin by name.
func (m *Manager) Get(name string) (Plugin, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if u := m.find(name); u != nil {
		return u.Plugin, true
	}
	return nil, false
}

// Count returns the number of loaded plugins.
func (m *Manager) Count() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.plugins)
}

// Root returns the plugins root directory.
func (m *Manager) Root() string {
	return m.loader.Root()
}

// find locates a unit by metadata name or canonical directory name.
// Callers hold at least the read lock.
func (m *Manager) find(name string) *Unit {
	for _, u := range m.plugins {
		if u.Plugin.Metadata().Name == name {
			return u
		}
	}
	for _, u := range m.plugins {
		if u.ActualName == name {
			return u
		}
	}
	return nil
}

// findByDir locates a unit by its live directory name.
func (m *Manager) findByDir(dirName string) *Unit {
	for _, u := range m.plugins {
		if u.DirectoryName == dirName {
			return u
		}
	}
	return nil
}

// remove drops a unit from the loaded set.
func (m *Manager) remove(target *Unit) {
	for i, u := range m.plugins {
		if u == target {
			m.plugins = append(m.plugins[:i], m.plugins[i+1:]...)
			return
		}
	}
}

func infoOf(u *Unit) Info {
	meta := u.Plugin.Metadata()
	return Info{
		Name:          meta.Name,
		Version:       meta.Version,
		Description:   meta.Description,
		Author:        meta.Author,
		Dependencies:  meta.Dependencies,
		Enabled:       u.RuntimeEnabled,
		DirectoryName: u.DirectoryName,
		HasSettings:   u.Plugin.Settings() != nil,
		CallbackCount: len(u.Plugin.Callbacks()),
	}
}

// safeInitialize runs Initialize with panic recovery.
func safeInitialize(p Plugin, ctx *Context) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = panicError(r)
		}
	}()
	return p.Initialize(ctx)
}

// safeShutdown runs Shutdown with panic recovery.
func safeShutdown(p Plugin, ctx *Context) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = panicError(r)
		}
	}()
	return p.Shutdown(ctx)
}
