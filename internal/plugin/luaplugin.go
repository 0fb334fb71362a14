package plugin

import (
	"fmt"
	"sort"

	"github.com/sirupsen/logrus"
	lua "github.com/yuin/gopher-lua"

	luax "github.com/quickpad/quickpad/internal/plugin/lua"
)

// Lua plugin unit contract. The entry file runs in its own sandboxed
// state and must yield exactly one plugin, found in priority order:
//
//  1. a global create_plugin() function returning a plugin table
//  2. a global table named "plugin"
//  3. the first global table (by sorted name) with metadata and
//     callbacks fields
//
// A plugin table looks like:
//
//	plugin = {
//	    metadata = {
//	        name = "greeter", version = "1.0.0",
//	        description = "...", author = "...",
//	        dependencies = { "other-plugin" },
//	    },
//	    callbacks = {
//	        { position = "on_text_changed", priority = 50,
//	          fn = function(ctx) ... end },
//	    },
//	    settings = { display_name = "...", default_config = { ... } },
//	    initialize = function(ctx) return true end,
//	    shutdown = function(ctx) end,
//	}
//
// Callback functions receive a context table with a "data" field and
// may return false to stop further callbacks at their position. A
// global "log" module (log.debug/info/warn/error) is available.

// luaPlugin adapts a Lua plugin table to the Plugin contract.
type luaPlugin struct {
	state  *luax.State
	bridge *luax.Bridge

	meta     Metadata
	cbs      []Callback
	settings *Settings
	declared bool

	initFn     *lua.LFunction
	shutdownFn *lua.LFunction
}

var _ Plugin = (*luaPlugin)(nil)

// luaCallback adapts one entry of the callbacks array.
type luaCallback struct {
	owner    *luaPlugin
	position Position
	priority int
	enabled  bool
	fn       *lua.LFunction
}

var _ Callback = (*luaCallback)(nil)

func (c *luaCallback) Position() Position { return c.position }
func (c *luaCallback) Priority() int      { return c.priority }
func (c *luaCallback) Enabled() bool      { return c.enabled }

// Invoke calls the unit's callback function. A returned false means
// Stop; anything else, including no return value, means Continue.
func (c *luaCallback) Invoke(ctx *Context) (Result, error) {
	results, err := c.owner.state.CallValue(c.fn, c.owner.contextTable(ctx))
	if err != nil {
		return Continue, err
	}
	if len(results) > 0 {
		if b, ok := results[0].(lua.LBool); ok && !bool(b) {
			return Stop, nil
		}
	}
	return Continue, nil
}

func (p *luaPlugin) Metadata() Metadata    { return p.meta }
func (p *luaPlugin) Callbacks() []Callback { return p.cbs }
func (p *luaPlugin) Settings() *Settings   { return p.settings }
func (p *luaPlugin) Enabled() bool         { return p.declared }

// Initialize calls the unit's initialize function if present. A Lua
// error or an explicit false return reports failure.
func (p *luaPlugin) Initialize(ctx *Context) error {
	if p.initFn == nil {
		return nil
	}
	results, err := p.state.CallValue(p.initFn, p.contextTable(ctx))
	if err != nil {
		return err
	}
	if len(results) > 0 {
		if b, ok := results[0].(lua.LBool); ok && !bool(b) {
			return fmt.Errorf("initialize reported failure")
		}
	}
	return nil
}

// Shutdown calls the unit's shutdown function if present.
func (p *luaPlugin) Shutdown(ctx *Context) error {
	if p.shutdownFn == nil {
		return nil
	}
	_, err := p.state.CallValue(p.shutdownFn, p.contextTable(ctx))
	return err
}

// Close releases the unit's Lua state. The plugin and its callbacks
// are unusable afterwards.
func (p *luaPlugin) Close() {
	p.state.Close()
}

// contextTable converts a Context to the table handed to unit
// functions. The table is a fresh copy per call, so unit-side mutation
// never reaches the host.
func (p *luaPlugin) contextTable(ctx *Context) lua.LValue {
	t := p.bridge.NewTable()
	if ctx != nil {
		t.RawSetString("data", p.bridge.ToLuaValue(ctx.Data))
	} else {
		t.RawSetString("data", p.bridge.ToLuaValue(map[string]any{}))
	}
	return t
}

// loadLuaUnit executes an entry file in a fresh sandboxed state and
// resolves it to a Plugin via the discovery strategies.
func loadLuaUnit(entryPath string, log logrus.FieldLogger) (*luaPlugin, error) {
	if log == nil {
		log = logrus.StandardLogger()
	}
	state := luax.NewState()
	registerLogModule(state, log)

	if err := state.DoFile(entryPath); err != nil {
		state.Close()
		return nil, fmt.Errorf("failed to execute entry point: %w", err)
	}

	table, err := discoverPluginTable(state)
	if err != nil {
		state.Close()
		return nil, err
	}

	p, err := parsePluginTable(state, table, log)
	if err != nil {
		state.Close()
		return nil, err
	}
	return p, nil
}

// discoverPluginTable applies the three discovery strategies in order.
func discoverPluginTable(state *luax.State) (*lua.LTable, error) {
	// Strategy 1: create_plugin() factory.
	if fn, ok := state.GetGlobal("create_plugin").(*lua.LFunction); ok {
		results, err := state.CallValue(fn)
		if err != nil {
			return nil, fmt.Errorf("create_plugin failed: %w", err)
		}
		if len(results) == 0 {
			return nil, fmt.Errorf("create_plugin returned nothing")
		}
		table, ok := results[0].(*lua.LTable)
		if !ok {
			return nil, fmt.Errorf("create_plugin did not return a table")
		}
		return table, nil
	}

	// Strategy 2: a module-level "plugin" table.
	if table, ok := state.GetGlobal("plugin").(*lua.LTable); ok {
		return table, nil
	}

	// Strategy 3: first global table that satisfies the contract shape.
	// Globals are scanned in sorted name order for determinism.
	globals := state.LuaState().Get(lua.GlobalsIndex).(*lua.LTable)
	var candidates []string
	tables := make(map[string]*lua.LTable)
	globals.ForEach(func(k, v lua.LValue) {
		name, ok := k.(lua.LString)
		if !ok {
			return
		}
		table, ok := v.(*lua.LTable)
		if !ok {
			return
		}
		if _, ok := table.RawGetString("metadata").(*lua.LTable); !ok {
			return
		}
		if _, ok := table.RawGetString("callbacks").(*lua.LTable); !ok {
			return
		}
		candidates = append(candidates, string(name))
		tables[string(name)] = table
	})
	if len(candidates) == 0 {
		return nil, ErrNoPlugin
	}
	sort.Strings(candidates)
	return tables[candidates[0]], nil
}

// parsePluginTable materializes the plugin table into Go values. The
// metadata and callback set are captured here, once, and keep stable
// identity for the plugin's lifetime.
func parsePluginTable(state *luax.State, table *lua.LTable, log logrus.FieldLogger) (*luaPlugin, error) {
	bridge := luax.NewBridge(state.LuaState())

	metaTable, ok := bridge.TableTable(table, "metadata")
	if !ok {
		return nil, fmt.Errorf("plugin table has no metadata")
	}
	name, ok := bridge.TableString(metaTable, "name")
	if !ok || name == "" {
		return nil, fmt.Errorf("plugin metadata has no name")
	}

	p := &luaPlugin{
		state:    state,
		bridge:   bridge,
		declared: true,
	}
	p.meta = Metadata{
		Name:         name,
		Dependencies: bridge.TableStrings(metaTable, "dependencies"),
	}
	p.meta.Version, _ = bridge.TableString(metaTable, "version")
	p.meta.Description, _ = bridge.TableString(metaTable, "description")
	p.meta.Author, _ = bridge.TableString(metaTable, "author")

	if declared, ok := bridge.TableBool(table, "enabled"); ok {
		p.declared = declared
	}
	p.initFn, _ = bridge.TableFunc(table, "initialize")
	p.shutdownFn, _ = bridge.TableFunc(table, "shutdown")

	if settingsTable, ok := bridge.TableTable(table, "settings"); ok {
		s := &Settings{
			ConfigSchema:  bridge.TableMap(settingsTable, "config_schema"),
			DefaultConfig: bridge.TableMap(settingsTable, "default_config"),
		}
		s.DisplayName, _ = bridge.TableString(settingsTable, "display_name")
		s.Description, _ = bridge.TableString(settingsTable, "description")
		s.SettingsWidget, _ = bridge.TableString(settingsTable, "settings_widget")
		p.settings = s
	}

	cbTable, _ := bridge.TableTable(table, "callbacks")
	if cbTable != nil {
		cbTable.ForEach(func(_, v lua.LValue) {
			entry, ok := v.(*lua.LTable)
			if !ok {
				return
			}
			cb, err := parseCallback(p, bridge, entry)
			if err != nil {
				log.Warnf("plugin %s: skipping callback: %v", name, err)
				return
			}
			p.cbs = append(p.cbs, cb)
		})
	}

	return p, nil
}

func parseCallback(owner *luaPlugin, bridge *luax.Bridge, entry *lua.LTable) (*luaCallback, error) {
	posName, ok := bridge.TableString(entry, "position")
	if !ok {
		return nil, fmt.Errorf("callback has no position")
	}
	pos, ok := ParsePosition(posName)
	if !ok {
		return nil, fmt.Errorf("unknown position %q", posName)
	}
	fn, ok := bridge.TableFunc(entry, "fn")
	if !ok {
		return nil, fmt.Errorf("callback for %s has no fn", posName)
	}

	cb := &luaCallback{
		owner:    owner,
		position: pos,
		priority: defaultPriority,
		enabled:  true,
		fn:       fn,
	}
	if priority, ok := bridge.TableInt(entry, "priority"); ok {
		cb.priority = priority
	}
	if enabled, ok := bridge.TableBool(entry, "enabled"); ok {
		cb.enabled = enabled
	}
	return cb, nil
}

// defaultPriority is assigned to callbacks that do not declare one.
const defaultPriority = 100

// registerLogModule installs the "log" module so units can write to
// the host's structured log.
func registerLogModule(state *luax.State, log logrus.FieldLogger) {
	if log == nil {
		log = logrus.StandardLogger()
	}
	logFn := func(emit func(args ...any)) lua.LGFunction {
		return func(L *lua.LState) int {
			parts := make([]any, 0, L.GetTop())
			for i := 1; i <= L.GetTop(); i++ {
				parts = append(parts, L.Get(i).String())
			}
			emit(parts...)
			return 0
		}
	}
	state.RegisterModule("log", map[string]lua.LGFunction{
		"debug": logFn(log.Debug),
		"info":  logFn(log.Info),
		"warn":  logFn(log.Warn),
		"error": logFn(log.Error),
	})
}
