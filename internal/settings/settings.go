// Package settings persists application and plugin configuration as a
// single JSON document.
//
// Values are addressed by dotted path ("window.width",
// "plugins.greeter.greeting"). Reads come straight from the document;
// writes rebuild it and save atomically. The zero document is valid:
// every getter takes a default for missing paths.
package settings

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/tidwall/gjson"
	"github.com/tidwall/sjson"
)

// pluginPrefix roots all per-plugin configuration in the document.
const pluginPrefix = "plugins"

// ErrInvalidDocument is returned when the settings file is not valid
// JSON.
var ErrInvalidDocument = errors.New("settings file is not valid JSON")

// Store is a JSON-document settings store backed by one file.
type Store struct {
	mu sync.RWMutex

	path string
	raw  string
}

// Open loads the settings file at path, creating an empty document if
// the file does not exist yet.
func Open(path string) (*Store, error) {
	s := &Store{path: path, raw: "{}"}

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return s, nil
		}
		return nil, err
	}
	if !gjson.ValidBytes(data) {
		return nil, fmt.Errorf("%w: %s", ErrInvalidDocument, path)
	}
	s.raw = string(data)
	return s, nil
}

// Path returns the backing file path.
func (s *Store) Path() string {
	return s.path
}

// GetString returns the string at path, or def when absent or not a
// string.
func (s *Store) GetString(path, def string) string {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if r := gjson.Get(s.raw, path); r.Type == gjson.String {
		return r.String()
	}
	return def
}

// GetInt returns the integer at path, or def when absent or not a
// number.
func (s *Store) GetInt(path string, def int) int {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if r := gjson.Get(s.raw, path); r.Type == gjson.Number {
		return int(r.Int())
	}
	return def
}

// GetBool returns the boolean at path, or def when absent or not a
// boolean.
func (s *Store) GetBool(path string, def bool) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()

	switch r := gjson.Get(s.raw, path); r.Type {
	case gjson.True:
		return true
	case gjson.False:
		return false
	default:
		return def
	}
}

// Set writes a value at path and saves the document.
func (s *Store) Set(path string, value any) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	raw, err := sjson.Set(s.raw, path, value)
	if err != nil {
		return fmt.Errorf("failed to set %s: %w", path, err)
	}
	s.raw = raw
	return s.save()
}

// Delete removes a value at path and saves the document. Deleting a
// missing path is a no-op.
func (s *Store) Delete(path string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	raw, err := sjson.Delete(s.raw, path)
	if err != nil {
		return fmt.Errorf("failed to delete %s: %w", path, err)
	}
	s.raw = raw
	return s.save()
}

// PluginConfig returns a plugin's stored configuration merged over its
// defaults. Stored values win; defaults fill the gaps.
func (s *Store) PluginConfig(name string, defaults map[string]any) map[string]any {
	s.mu.RLock()
	defer s.mu.RUnlock()

	merged := make(map[string]any, len(defaults))
	for k, v := range defaults {
		merged[k] = v
	}
	stored := gjson.Get(s.raw, pluginPrefix+"."+name)
	if stored.IsObject() {
		for k, v := range stored.Map() {
			merged[k] = v.Value()
		}
	}
	return merged
}

// SetPluginConfig replaces a plugin's stored configuration and saves
// the document.
func (s *Store) SetPluginConfig(name string, config map[string]any) error {
	return s.Set(pluginPrefix+"."+name, config)
}

// save writes the document atomically: full write to a temp file in
// the same directory, then rename. Callers hold the write lock.
func (s *Store) save() error {
	dir := filepath.Dir(s.path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return err
	}

	tmp, err := os.CreateTemp(dir, ".settings-*.json")
	if err != nil {
		return err
	}
	tmpName := tmp.Name()

	pretty := gjson.Get(s.raw, "@pretty").Raw
	if pretty == "" {
		pretty = s.raw
	}
	if _, err := tmp.WriteString(pretty); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return err
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return err
	}
	return os.Rename(tmpName, s.path)
}
