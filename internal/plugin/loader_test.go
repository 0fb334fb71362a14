package plugin

import (
	"fmt"
	"os"
	"path/filepath"
	"testing"
)

func pluginSource(name string) string {
	return fmt.Sprintf(`plugin = {
    metadata = { name = %q, version = "1.0.0" },
    callbacks = {
        { position = "on_launch", priority = 10, fn = function(ctx) return true end },
    },
}`, name)
}

func writeUnit(t *testing.T, root, dirName, entryFile, source string) {
	t.Helper()
	dir := filepath.Join(root, dirName)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(dir, entryFile), []byte(source), 0o644); err != nil {
		t.Fatal(err)
	}
}

func closeUnits(units []*Unit) {
	for _, u := range units {
		u.Close()
	}
}

func TestLoaderFirstScanKeepsEnabledState(t *testing.T) {
	root := t.TempDir()
	writeUnit(t, root, "greeter", "init.lua", pluginSource("greeter"))

	l := NewLoader(root, nil)
	units, err := l.Discover()
	if err != nil {
		t.Fatal(err)
	}
	defer closeUnits(units)

	if len(units) != 1 {
		t.Fatalf("loaded %d units, want 1", len(units))
	}
	u := units[0]
	if !u.RuntimeEnabled {
		t.Error("first-scan plugin came up disabled")
	}
	if u.ActualName != "greeter" || u.DirectoryName != "greeter" {
		t.Errorf("names = %s / %s, want greeter / greeter", u.ActualName, u.DirectoryName)
	}

	// The first scan has no prior snapshot, so no rename happened.
	if _, err := os.Stat(filepath.Join(root, "greeter")); err != nil {
		t.Errorf("plugin directory was renamed on first scan: %v", err)
	}
}

func TestLoaderDisabledSuffix(t *testing.T) {
	root := t.TempDir()
	writeUnit(t, root, "greeter.disabled", "init.lua", pluginSource("greeter"))

	l := NewLoader(root, nil)
	units, err := l.Discover()
	if err != nil {
		t.Fatal(err)
	}
	defer closeUnits(units)

	if len(units) != 1 {
		t.Fatalf("loaded %d units, want 1", len(units))
	}
	u := units[0]
	if u.RuntimeEnabled {
		t.Error("suffixed plugin came up enabled")
	}
	if u.ActualName != "greeter" {
		t.Errorf("ActualName = %s, want greeter", u.ActualName)
	}
	if u.DirectoryName != "greeter.disabled" {
		t.Errorf("DirectoryName = %s, want greeter.disabled", u.DirectoryName)
	}
}

func TestLoaderAutoDisablesNewDirectories(t *testing.T) {
	root := t.TempDir()
	writeUnit(t, root, "known", "init.lua", pluginSource("known"))

	l := NewLoader(root, nil)
	units, err := l.Discover()
	if err != nil {
		t.Fatal(err)
	}
	closeUnits(units)

	// A new un-suffixed directory appears between scans.
	writeUnit(t, root, "intruder", "init.lua", pluginSource("intruder"))

	units, err = l.Discover()
	if err != nil {
		t.Fatal(err)
	}
	defer closeUnits(units)

	if _, err := os.Stat(filepath.Join(root, "intruder.disabled")); err != nil {
		t.Fatalf("new directory was not renamed to disabled form: %v", err)
	}

	byName := make(map[string]*Unit)
	for _, u := range units {
		byName[u.ActualName] = u
	}
	if u := byName["intruder"]; u == nil || u.RuntimeEnabled {
		t.Error("new plugin did not load disabled")
	}
	if u := byName["known"]; u == nil || !u.RuntimeEnabled {
		t.Error("previously known plugin lost its enabled state")
	}
}

func TestLoaderAutoDisablesAfterEmptyScan(t *testing.T) {
	root := t.TempDir()

	// A scan of an empty root still counts as a snapshot.
	l := NewLoader(root, nil)
	units, err := l.Discover()
	if err != nil {
		t.Fatal(err)
	}
	if len(units) != 0 {
		t.Fatalf("loaded %d units from an empty root", len(units))
	}

	writeUnit(t, root, "late", "init.lua", pluginSource("late"))

	units, err = l.Discover()
	if err != nil {
		t.Fatal(err)
	}
	defer closeUnits(units)

	if _, err := os.Stat(filepath.Join(root, "late.disabled")); err != nil {
		t.Fatalf("new directory was not renamed: %v", err)
	}
	if len(units) != 1 || units[0].RuntimeEnabled {
		t.Error("new plugin did not load disabled")
	}
}

func TestLoaderSkipsReservedDirectories(t *testing.T) {
	root := t.TempDir()
	writeUnit(t, root, "_template", "init.lua", pluginSource("template"))
	writeUnit(t, root, "real", "init.lua", pluginSource("real"))
	if err := os.WriteFile(filepath.Join(root, "notes.txt"), []byte("x"), 0o644); err != nil {
		t.Fatal(err)
	}

	l := NewLoader(root, nil)
	units, err := l.Discover()
	if err != nil {
		t.Fatal(err)
	}
	defer closeUnits(units)

	if len(units) != 1 || units[0].ActualName != "real" {
		t.Fatalf("loaded %d units, want only real", len(units))
	}
}

func TestLoaderEntryPointPriority(t *testing.T) {
	root := t.TempDir()
	writeUnit(t, root, "both", "main.lua", pluginSource("from-main"))
	writeUnit(t, root, "both", "init.lua", pluginSource("from-init"))
	writeUnit(t, root, "main-only", "main.lua", pluginSource("from-main-only"))

	l := NewLoader(root, nil)
	units, err := l.Discover()
	if err != nil {
		t.Fatal(err)
	}
	defer closeUnits(units)

	names := make(map[string]bool)
	for _, u := range units {
		names[u.Plugin.Metadata().Name] = true
	}
	if !names["from-init"] {
		t.Error("init.lua did not take priority over main.lua")
	}
	if !names["from-main-only"] {
		t.Error("main.lua was not used as a fallback entry point")
	}
}

func TestLoaderSkipsDirectoryWithoutEntryPoint(t *testing.T) {
	root := t.TempDir()
	if err := os.MkdirAll(filepath.Join(root, "empty"), 0o755); err != nil {
		t.Fatal(err)
	}
	writeUnit(t, root, "real", "init.lua", pluginSource("real"))

	l := NewLoader(root, nil)
	units, err := l.Discover()
	if err != nil {
		t.Fatal(err)
	}
	defer closeUnits(units)

	if len(units) != 1 || units[0].ActualName != "real" {
		t.Fatalf("loaded %d units, want only real", len(units))
	}
}

func TestLoaderBrokenUnitDoesNotAbortScan(t *testing.T) {
	root := t.TempDir()
	writeUnit(t, root, "broken", "init.lua", `this is not lua`)
	writeUnit(t, root, "real", "init.lua", pluginSource("real"))

	l := NewLoader(root, nil)
	units, err := l.Discover()
	if err != nil {
		t.Fatal(err)
	}
	defer closeUnits(units)

	if len(units) != 1 || units[0].ActualName != "real" {
		t.Fatalf("loaded %d units, want only real", len(units))
	}
}

func TestLoaderMissingRoot(t *testing.T) {
	l := NewLoader(filepath.Join(t.TempDir(), "nope"), nil)
	if _, err := l.Discover(); err != ErrRootNotFound {
		t.Fatalf("Discover error = %v, want ErrRootNotFound", err)
	}
}

func TestLoaderLoadNew(t *testing.T) {
	root := t.TempDir()
	writeUnit(t, root, "known", "init.lua", pluginSource("known"))

	l := NewLoader(root, nil)
	units, err := l.Discover()
	if err != nil {
		t.Fatal(err)
	}
	closeUnits(units)

	writeUnit(t, root, "late", "init.lua", pluginSource("late"))

	u, err := l.LoadNew("late")
	if err != nil {
		t.Fatal(err)
	}
	defer u.Close()

	if u.RuntimeEnabled {
		t.Error("late plugin came up enabled")
	}
	if u.DirectoryName != "late.disabled" {
		t.Errorf("DirectoryName = %s, want late.disabled", u.DirectoryName)
	}
	if _, err := os.Stat(filepath.Join(root, "late.disabled")); err != nil {
		t.Errorf("directory was not renamed: %v", err)
	}
}

func TestIsDisabledAndBaseName(t *testing.T) {
	tests := []struct {
		dir      string
		disabled bool
		base     string
	}{
		{"greeter", false, "greeter"},
		{"greeter.disabled", true, "greeter"},
		{"greeter.disabled.disabled", true, "greeter.disabled"},
		{"", false, ""},
	}
	for _, tt := range tests {
		if got := IsDisabled(tt.dir); got != tt.disabled {
			t.Errorf("IsDisabled(%q) = %v, want %v", tt.dir, got, tt.disabled)
		}
		if got := BaseName(tt.dir); got != tt.base {
			t.Errorf("BaseName(%q) = %q, want %q", tt.dir, got, tt.base)
		}
	}
}
