package lua

import (
	"os"
	"path/filepath"
	"testing"

	lua "github.com/yuin/gopher-lua"
)

func TestStateDoString(t *testing.T) {
	s := NewState()
	defer s.Close()

	if err := s.DoString(`x = 1 + 2`); err != nil {
		t.Fatal(err)
	}
	if got := s.GetGlobal("x"); got != lua.LNumber(3) {
		t.Errorf("x = %v, want 3", got)
	}
}

func TestStateDoStringError(t *testing.T) {
	s := NewState()
	defer s.Close()

	if err := s.DoString(`this is not lua`); err == nil {
		t.Fatal("invalid source did not error")
	}
}

func TestStateDoFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "script.lua")
	if err := os.WriteFile(path, []byte(`answer = 42`), 0o644); err != nil {
		t.Fatal(err)
	}

	s := NewState()
	defer s.Close()

	if err := s.DoFile(path); err != nil {
		t.Fatal(err)
	}
	if got := s.GetGlobal("answer"); got != lua.LNumber(42) {
		t.Errorf("answer = %v, want 42", got)
	}
}

func TestStateSandbox(t *testing.T) {
	s := NewState()
	defer s.Close()

	// Base, table, string, and math are open; io, os, debug, and
	// package are not.
	for _, code := range []string{
		`assert(type(pairs) == "function")`,
		`assert(type(table.insert) == "function")`,
		`assert(type(string.format) == "function")`,
		`assert(type(math.floor) == "function")`,
		`assert(io == nil)`,
		`assert(os == nil)`,
		`assert(debug == nil)`,
		`assert(package == nil)`,
	} {
		if err := s.DoString(code); err != nil {
			t.Errorf("%s: %v", code, err)
		}
	}
}

func TestStateCallValue(t *testing.T) {
	s := NewState()
	defer s.Close()

	if err := s.DoString(`function add(a, b) return a + b, "extra" end`); err != nil {
		t.Fatal(err)
	}
	fn, ok := s.GetGlobal("add").(*lua.LFunction)
	if !ok {
		t.Fatal("add is not a function")
	}

	results, err := s.CallValue(fn, lua.LNumber(2), lua.LNumber(3))
	if err != nil {
		t.Fatal(err)
	}
	if len(results) != 2 {
		t.Fatalf("got %d results, want 2", len(results))
	}
	if results[0] != lua.LNumber(5) || results[1] != lua.LString("extra") {
		t.Errorf("results = %v", results)
	}
}

func TestStateCallValueError(t *testing.T) {
	s := NewState()
	defer s.Close()

	if err := s.DoString(`function boom() error("nope") end`); err != nil {
		t.Fatal(err)
	}
	fn := s.GetGlobal("boom").(*lua.LFunction)

	if _, err := s.CallValue(fn); err == nil {
		t.Fatal("erroring function returned nil error")
	}

	// The stack is balanced; the state stays usable.
	if err := s.DoString(`ok = true`); err != nil {
		t.Fatal(err)
	}
	if s.GetGlobal("ok") != lua.LTrue {
		t.Error("state unusable after failed call")
	}
}

func TestStateRegisterModule(t *testing.T) {
	s := NewState()
	defer s.Close()

	var got string
	s.RegisterModule("host", map[string]lua.LGFunction{
		"notify": func(L *lua.LState) int {
			got = L.CheckString(1)
			return 0
		},
	})

	if err := s.DoString(`host.notify("ping")`); err != nil {
		t.Fatal(err)
	}
	if got != "ping" {
		t.Errorf("notify received %q, want ping", got)
	}
}

func TestStateUseAfterClose(t *testing.T) {
	s := NewState()
	s.Close()
	s.Close() // idempotent

	if !s.IsClosed() {
		t.Fatal("IsClosed = false after Close")
	}
	if err := s.DoString(`x = 1`); err != ErrStateClosed {
		t.Errorf("DoString after close = %v, want ErrStateClosed", err)
	}
	if got := s.GetGlobal("x"); got != lua.LNil {
		t.Errorf("GetGlobal after close = %v, want nil", got)
	}
	if _, err := s.CallValue(nil); err != ErrStateClosed {
		t.Errorf("CallValue after close = %v, want ErrStateClosed", err)
	}
}
