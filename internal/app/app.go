// Package app wires the quick input application together: settings,
// the plugin manager and its watcher, the input box, and the terminal
// event loop.
package app

import (
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/gdamore/tcell/v2"
	"github.com/sirupsen/logrus"

	"github.com/quickpad/quickpad/internal/inputbox"
	"github.com/quickpad/quickpad/internal/plugin"
	"github.com/quickpad/quickpad/internal/settings"
)

// defaultHotkey toggles the input box when no hotkey is configured.
const defaultHotkey = "ctrl+space"

// Config carries the application's startup parameters.
type Config struct {
	// PluginsDir is the plugins root directory.
	PluginsDir string

	// SettingsPath is the JSON settings file.
	SettingsPath string

	// Output receives the submitted text. Defaults to stdout.
	Output io.Writer

	// Screen overrides the terminal screen, for tests. When nil a real
	// terminal screen is created.
	Screen tcell.Screen

	// Watch enables the plugins directory watcher.
	Watch bool

	Log *logrus.Logger
}

// App is the running application.
type App struct {
	log     *logrus.Logger
	store   *settings.Store
	plugins *plugin.Manager
	watcher *plugin.Watcher

	screen tcell.Screen
	box    *inputbox.Box

	out    io.Writer
	hotkey tcell.Key

	submitted string
	done      bool
}

// New builds an application from its config. Plugins are not loaded
// until Run.
func New(cfg Config) (*App, error) {
	log := cfg.Log
	if log == nil {
		log = logrus.New()
	}
	out := cfg.Output
	if out == nil {
		out = os.Stdout
	}

	store, err := settings.Open(cfg.SettingsPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open settings: %w", err)
	}

	a := &App{
		log:     log,
		store:   store,
		plugins: plugin.NewManager(cfg.PluginsDir, log),
		screen:  cfg.Screen,
		out:     out,
	}

	spec := store.GetString("hotkey", defaultHotkey)
	key, ok := parseHotkey(spec)
	if !ok {
		log.Warnf("unrecognized hotkey %q, using %s", spec, defaultHotkey)
		key, _ = parseHotkey(defaultHotkey)
	}
	a.hotkey = key

	if cfg.Watch {
		a.watcher = plugin.NewWatcher(a.plugins, func() *plugin.Context {
			return a.Context(nil)
		}, log)
	}
	return a, nil
}

// Context builds a fresh plugin context for one event.
func (a *App) Context(data map[string]any) *plugin.Context {
	return plugin.NewContext(a, a.log, data)
}

// Plugins exposes the plugin manager for management commands.
func (a *App) Plugins() *plugin.Manager {
	return a.plugins
}

// Settings exposes the settings store.
func (a *App) Settings() *settings.Store {
	return a.store
}

// Run starts the application and blocks until the user submits or
// cancels. It returns the submitted text, empty on cancel.
func (a *App) Run() (string, error) {
	if err := a.plugins.LoadPlugins(); err != nil {
		return "", fmt.Errorf("failed to load plugins: %w", err)
	}
	a.plugins.TriggerCallbacks(plugin.PositionLaunch, a.Context(nil))
	a.plugins.InitializePlugins(a.Context(nil))

	if a.watcher != nil {
		if err := a.watcher.Start(); err != nil {
			a.log.Warnf("plugin watcher unavailable: %v", err)
			a.watcher = nil
		}
	}

	if err := a.initScreen(); err != nil {
		a.shutdownPlugins()
		return "", err
	}

	a.box = inputbox.New(a.screen, a)
	a.box.Show()

	a.loop()

	a.screen.Fini()
	if a.watcher != nil {
		a.watcher.Stop()
	}
	a.shutdownPlugins()

	if a.submitted != "" {
		fmt.Fprintln(a.out, a.submitted)
	}
	return a.submitted, nil
}

func (a *App) initScreen() error {
	if a.screen == nil {
		screen, err := tcell.NewScreen()
		if err != nil {
			return fmt.Errorf("failed to create screen: %w", err)
		}
		if err := screen.Init(); err != nil {
			return fmt.Errorf("failed to init screen: %w", err)
		}
		a.screen = screen
	}
	a.screen.EnablePaste()
	a.screen.EnableFocus()
	return nil
}

func (a *App) loop() {
	for !a.done {
		ev := a.screen.PollEvent()
		if ev == nil {
			return
		}

		if key, ok := ev.(*tcell.EventKey); ok {
			if key.Key() == tcell.KeyCtrlC {
				a.cancel()
				continue
			}
			if key.Key() == a.hotkey {
				a.toggleBox()
				continue
			}
		}
		a.box.HandleEvent(ev)
	}
}

// toggleBox handles the summon hotkey.
func (a *App) toggleBox() {
	a.plugins.TriggerCallbacks(plugin.PositionHotkeyTriggered, a.Context(nil))
	if a.box.Visible() {
		a.box.Hide()
	} else {
		a.box.Show()
	}
	a.box.Draw()
}

func (a *App) cancel() {
	a.submitted = ""
	if a.box.Visible() {
		a.box.Hide()
	}
	a.done = true
}

func (a *App) shutdownPlugins() {
	ctx := a.Context(nil)
	a.plugins.TriggerCallbacks(plugin.PositionExit, ctx)
	a.plugins.ShutdownPlugins(ctx)
}

// Sink implementation: input box notifications fan out to the plugin
// callback positions.

func (a *App) BoxShown() {
	a.plugins.TriggerCallbacks(plugin.PositionInputBoxShow, a.Context(nil))
}

func (a *App) BoxHidden() {
	a.plugins.TriggerCallbacks(plugin.PositionInputBoxHide, a.Context(map[string]any{
		"text": a.box.Text(),
	}))
}

func (a *App) Pasted(text string) {
	a.plugins.TriggerCallbacks(plugin.PositionPasteInBox, a.Context(map[string]any{
		"text": text,
	}))
}

func (a *App) TextChanged(text string) {
	a.plugins.TriggerCallbacks(plugin.PositionTextChanged, a.Context(map[string]any{
		"text": text,
	}))
}

func (a *App) EnterPressed(text string) {
	a.plugins.TriggerCallbacks(plugin.PositionEnterPressed, a.Context(map[string]any{
		"text": text,
	}))
	a.submitted = CleanText(text)
	a.box.Hide()
	a.done = true
}

func (a *App) EscapePressed() {
	a.plugins.TriggerCallbacks(plugin.PositionEscapePressed, a.Context(nil))
	a.cancel()
}

func (a *App) FocusGained() {
	a.plugins.TriggerCallbacks(plugin.PositionFocusGained, a.Context(nil))
}

func (a *App) FocusLost() {
	a.plugins.TriggerCallbacks(plugin.PositionFocusLost, a.Context(nil))
}

// CleanText normalizes submitted text: trailing whitespace is stripped
// from every line, and leading and trailing blank lines are dropped.
func CleanText(text string) string {
	lines := strings.Split(text, "\n")
	for i, line := range lines {
		lines[i] = strings.TrimRight(line, " \t\r")
	}

	start := 0
	for start < len(lines) && lines[start] == "" {
		start++
	}
	end := len(lines)
	for end > start && lines[end-1] == "" {
		end--
	}
	return strings.Join(lines[start:end], "\n")
}

// parseHotkey maps a settings spec like "ctrl+space" or "ctrl+g" to a
// tcell key.
func parseHotkey(spec string) (tcell.Key, bool) {
	s := strings.ToLower(strings.TrimSpace(spec))
	if !strings.HasPrefix(s, "ctrl+") {
		return 0, false
	}
	rest := strings.TrimPrefix(s, "ctrl+")
	switch {
	case rest == "space":
		return tcell.KeyCtrlSpace, true
	case len(rest) == 1 && rest[0] >= 'a' && rest[0] <= 'z':
		return tcell.KeyCtrlA + tcell.Key(rest[0]-'a'), true
	}
	return 0, false
}
