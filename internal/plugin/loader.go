package plugin

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/sirupsen/logrus"
)

// DisabledSuffix marks a plugin directory as disabled. The directory
// name is the persistence mechanism for enabled state: there is no
// separate config record.
const DisabledSuffix = ".disabled"

// Entry point files recognized inside a plugin directory, in priority
// order.
var entryPoints = []string{"init.lua", "main.lua"}

// IsDisabled reports whether a directory name carries the disabled
// suffix.
func IsDisabled(dirName string) bool {
	return strings.HasSuffix(dirName, DisabledSuffix)
}

// BaseName strips the disabled suffix, yielding the canonical plugin
// directory name.
func BaseName(dirName string) string {
	return strings.TrimSuffix(dirName, DisabledSuffix)
}

// Unit is one loaded plugin together with its on-disk bookkeeping.
type Unit struct {
	Plugin Plugin

	// ActualName is the canonical identifier: the directory name with
	// the disabled suffix stripped.
	ActualName string

	// DirectoryName is the live on-disk directory name, including the
	// disabled suffix when present.
	DirectoryName string

	// RuntimeEnabled mirrors DirectoryName's suffix.
	RuntimeEnabled bool
}

// Close releases resources held by the unit's plugin, such as its Lua
// state.
func (u *Unit) Close() {
	if c, ok := u.Plugin.(interface{ Close() }); ok {
		c.Close()
	}
}

// Loader discovers and materializes plugin units from the plugins
// root directory.
//
// Immediate subdirectories whose names do not start with "_" are
// candidates. The loader remembers the directory set it saw on the
// previous scan; when a later scan finds a brand-new directory without
// the disabled suffix, the directory is renamed to the disabled form
// on disk before loading, so new plugins never activate silently. The
// very first scan has no snapshot and applies no renames.
type Loader struct {
	root string
	log  logrus.FieldLogger

	lastKnown map[string]bool
}

// NewLoader creates a loader for the given plugins root. The snapshot
// stays nil until the first scan: an empty directory set that has been
// seen is different from never having scanned at all.
func NewLoader(root string, log logrus.FieldLogger) *Loader {
	if log == nil {
		log = logrus.StandardLogger()
	}
	return &Loader{
		root: root,
		log:  log,
	}
}

// Root returns the plugins root directory.
func (l *Loader) Root() string {
	return l.root
}

// listDirs returns the candidate plugin directory names currently on
// disk.
func (l *Loader) listDirs() ([]string, error) {
	entries, err := os.ReadDir(l.root)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, ErrRootNotFound
		}
		return nil, err
	}
	var names []string
	for _, entry := range entries {
		if !entry.IsDir() {
			continue
		}
		if strings.HasPrefix(entry.Name(), "_") {
			continue
		}
		names = append(names, entry.Name())
	}
	return names, nil
}

// Discover performs a full scan: auto-disables brand-new directories,
// refreshes the snapshot, and loads every candidate. A failure to load
// one unit never aborts the others.
func (l *Loader) Discover() ([]*Unit, error) {
	dirs, err := l.listDirs()
	if err != nil {
		return nil, err
	}

	current := make(map[string]bool, len(dirs))
	for _, name := range dirs {
		current[name] = true
	}

	if l.lastKnown != nil {
		for _, name := range dirs {
			if l.lastKnown[name] || IsDisabled(name) {
				continue
			}
			if err := l.disableOnDisk(name); err != nil {
				l.log.Errorf("failed to auto-disable new plugin %s: %v", name, err)
				continue
			}
			l.log.Infof("auto-disabled new plugin: %s", name)
		}
	}

	// The snapshot keeps the pre-rename names; an auto-disabled
	// directory is recognized by its suffix on the next scan.
	l.lastKnown = current

	// Re-list so renames are reflected.
	dirs, err = l.listDirs()
	if err != nil {
		return nil, err
	}

	units := make([]*Unit, 0, len(dirs))
	for _, name := range dirs {
		unit, err := l.LoadDir(name)
		if err != nil {
			if err == ErrNoEntryPoint {
				l.log.Warnf("no entry point found for plugin %s", BaseName(name))
			} else {
				l.log.Errorf("failed to load plugin %s: %v", BaseName(name), err)
			}
			continue
		}
		units = append(units, unit)
	}
	return units, nil
}

// LoadDir loads a single candidate directory as an isolated plugin
// unit.
func (l *Loader) LoadDir(dirName string) (*Unit, error) {
	actual := BaseName(dirName)
	disabled := IsDisabled(dirName)
	dir := filepath.Join(l.root, dirName)

	var entryPath string
	for _, entry := range entryPoints {
		candidate := filepath.Join(dir, entry)
		if _, err := os.Stat(candidate); err == nil {
			entryPath = candidate
			break
		}
	}
	if entryPath == "" {
		return nil, ErrNoEntryPoint
	}

	p, err := loadLuaUnit(entryPath, l.log.WithField("plugin", actual))
	if err != nil {
		return nil, err
	}

	l.log.Infof("successfully loaded plugin: %s (%s)", p.Metadata().Name, statusWord(!disabled))
	return &Unit{
		Plugin:         p,
		ActualName:     actual,
		DirectoryName:  dirName,
		RuntimeEnabled: !disabled,
	}, nil
}

// LoadNew loads a directory that appeared after the last full scan.
// The auto-disable rule applies: if a snapshot exists and the name is
// not suffixed, the directory is renamed before loading. The snapshot
// is extended so the next full scan does not treat the unit as new
// again.
func (l *Loader) LoadNew(dirName string) (*Unit, error) {
	if l.lastKnown != nil && !IsDisabled(dirName) {
		if err := l.disableOnDisk(dirName); err != nil {
			return nil, fmt.Errorf("failed to auto-disable new plugin %s: %w", dirName, err)
		}
		l.log.Infof("auto-disabled new plugin: %s", dirName)
		dirName += DisabledSuffix
	}
	if l.lastKnown == nil {
		l.lastKnown = make(map[string]bool)
	}
	l.lastKnown[dirName] = true
	return l.LoadDir(dirName)
}

// Rename updates the snapshot after an externally observed rename so a
// later full scan does not misclassify the directory.
func (l *Loader) Rename(oldDir, newDir string) {
	if l.lastKnown == nil {
		l.lastKnown = make(map[string]bool)
	}
	delete(l.lastKnown, oldDir)
	l.lastKnown[newDir] = true
}

// Forget drops a directory from the snapshot after deletion.
func (l *Loader) Forget(dirName string) {
	delete(l.lastKnown, dirName)
}

// disableOnDisk renames a directory to its disabled-suffix form.
func (l *Loader) disableOnDisk(dirName string) error {
	oldPath := filepath.Join(l.root, dirName)
	newPath := filepath.Join(l.root, dirName+DisabledSuffix)
	return os.Rename(oldPath, newPath)
}

func statusWord(enabled bool) string {
	if enabled {
		return "enabled"
	}
	return "disabled"
}
