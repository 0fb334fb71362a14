package plugin

import (
	"errors"
	"testing"
)

// fakeCallback is a native test callback. Pointer identity matters:
// the registry removes callbacks by identity.
type fakeCallback struct {
	position Position
	priority int
	enabled  bool
	invoke   func(*Context) (Result, error)
}

func (c *fakeCallback) Position() Position { return c.position }
func (c *fakeCallback) Priority() int      { return c.priority }
func (c *fakeCallback) Enabled() bool      { return c.enabled }

func (c *fakeCallback) Invoke(ctx *Context) (Result, error) {
	if c.invoke == nil {
		return Continue, nil
	}
	return c.invoke(ctx)
}

func recordingCallback(pos Position, priority int, name string, order *[]string) *fakeCallback {
	return &fakeCallback{
		position: pos,
		priority: priority,
		enabled:  true,
		invoke: func(*Context) (Result, error) {
			*order = append(*order, name)
			return Continue, nil
		},
	}
}

func TestRegistryDispatchOrder(t *testing.T) {
	var order []string
	r := NewRegistry(nil)

	// Ties keep registration order; lower priority runs first.
	r.Register(recordingCallback(PositionTextChanged, 100, "first-100", &order))
	r.Register(recordingCallback(PositionTextChanged, 50, "the-50", &order))
	r.Register(recordingCallback(PositionTextChanged, 100, "second-100", &order))
	r.ResortAll()

	r.Dispatch(PositionTextChanged, NewContext(nil, nil, nil))

	want := []string{"the-50", "first-100", "second-100"}
	if len(order) != len(want) {
		t.Fatalf("dispatched %d callbacks, want %d", len(order), len(want))
	}
	for i, name := range want {
		if order[i] != name {
			t.Errorf("order[%d] = %s, want %s", i, order[i], name)
		}
	}
}

func TestRegistryStopShortCircuits(t *testing.T) {
	var order []string
	r := NewRegistry(nil)

	r.Register(recordingCallback(PositionEnterPressed, 10, "ran", &order))
	r.Register(&fakeCallback{
		position: PositionEnterPressed,
		priority: 20,
		enabled:  true,
		invoke: func(*Context) (Result, error) {
			order = append(order, "stopper")
			return Stop, nil
		},
	})
	r.Register(recordingCallback(PositionEnterPressed, 30, "never", &order))
	r.ResortAll()

	r.Dispatch(PositionEnterPressed, NewContext(nil, nil, nil))

	if len(order) != 2 || order[1] != "stopper" {
		t.Fatalf("dispatch order = %v, want [ran stopper]", order)
	}

	// Stop applies to one event only; the next dispatch starts fresh.
	order = nil
	r.Dispatch(PositionEnterPressed, NewContext(nil, nil, nil))
	if len(order) != 2 {
		t.Fatalf("second dispatch ran %d callbacks, want 2", len(order))
	}
}

func TestRegistryFaultIsolation(t *testing.T) {
	var order []string
	r := NewRegistry(nil)

	r.Register(&fakeCallback{
		position: PositionLaunch,
		priority: 10,
		enabled:  true,
		invoke: func(*Context) (Result, error) {
			panic("plugin bug")
		},
	})
	r.Register(&fakeCallback{
		position: PositionLaunch,
		priority: 20,
		enabled:  true,
		invoke: func(*Context) (Result, error) {
			return Continue, errors.New("callback failed")
		},
	})
	r.Register(recordingCallback(PositionLaunch, 30, "survivor", &order))
	r.ResortAll()

	r.Dispatch(PositionLaunch, NewContext(nil, nil, nil))

	if len(order) != 1 || order[0] != "survivor" {
		t.Fatalf("dispatch order = %v, want [survivor]", order)
	}
}

func TestRegistrySkipsDisabledCallbacks(t *testing.T) {
	var order []string
	r := NewRegistry(nil)

	disabled := recordingCallback(PositionFocusGained, 10, "disabled", &order)
	disabled.enabled = false
	r.Register(disabled)
	r.Register(recordingCallback(PositionFocusGained, 20, "enabled", &order))
	r.ResortAll()

	r.Dispatch(PositionFocusGained, NewContext(nil, nil, nil))

	if len(order) != 1 || order[0] != "enabled" {
		t.Fatalf("dispatch order = %v, want [enabled]", order)
	}
}

func TestRegistryUnregisterAllByIdentity(t *testing.T) {
	r := NewRegistry(nil)

	// Two value-identical callbacks; only the one passed to
	// UnregisterAll may be removed.
	a := &fakeCallback{position: PositionExit, priority: 100, enabled: true}
	b := &fakeCallback{position: PositionExit, priority: 100, enabled: true}
	r.Register(a)
	r.Register(b)
	r.ResortAll()

	r.UnregisterAll([]Callback{a})

	if r.Contains(a) {
		t.Error("a still registered after UnregisterAll")
	}
	if !r.Contains(b) {
		t.Error("b removed by UnregisterAll of a")
	}
	if got := r.Len(PositionExit); got != 1 {
		t.Errorf("Len = %d, want 1", got)
	}
}

func TestRegistryClear(t *testing.T) {
	r := NewRegistry(nil)
	r.Register(&fakeCallback{position: PositionLaunch, enabled: true})
	r.Register(&fakeCallback{position: PositionExit, enabled: true})

	r.Clear()

	for _, pos := range Positions() {
		if r.Len(pos) != 0 {
			t.Errorf("position %s not empty after Clear", pos)
		}
	}
}

func TestRegistryCallbacksReturnsCopy(t *testing.T) {
	r := NewRegistry(nil)
	cb := &fakeCallback{position: PositionLaunch, enabled: true}
	r.Register(cb)

	got := r.Callbacks(PositionLaunch)
	got[0] = nil

	if r.Len(PositionLaunch) != 1 || r.Callbacks(PositionLaunch)[0] != Callback(cb) {
		t.Error("mutating the returned slice affected the registry")
	}
}
