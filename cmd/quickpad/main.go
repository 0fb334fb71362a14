// Package main is the entry point for the quickpad quick input
// utility.
package main

import (
	"flag"
	"fmt"
	"os"
	"path/filepath"

	"github.com/gosuri/uitable"
	"github.com/sirupsen/logrus"

	"github.com/quickpad/quickpad/internal/app"
	"github.com/quickpad/quickpad/internal/plugin"
)

// Version information (set via ldflags during build).
var (
	version = "dev"
	commit  = "unknown"
)

type options struct {
	pluginsDir   string
	settingsPath string
	logLevel     string
	watch        bool

	listPlugins   bool
	enablePlugin  string
	disablePlugin string
}

func main() {
	os.Exit(run())
}

func run() int {
	opts := parseFlags()

	log := logrus.New()
	level, err := logrus.ParseLevel(opts.logLevel)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: invalid log level %q\n", opts.logLevel)
		return 1
	}
	log.SetLevel(level)
	// The terminal is owned by the input box; logs go to stderr and are
	// only useful when redirected.
	log.SetOutput(os.Stderr)

	if opts.listPlugins || opts.enablePlugin != "" || opts.disablePlugin != "" {
		return runManagement(opts, log)
	}

	application, err := app.New(app.Config{
		PluginsDir:   opts.pluginsDir,
		SettingsPath: opts.settingsPath,
		Watch:        opts.watch,
		Log:          log,
	})
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: failed to initialize: %v\n", err)
		return 1
	}

	if _, err := application.Run(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return 1
	}
	return 0
}

// runManagement handles the non-interactive plugin commands.
func runManagement(opts options, log *logrus.Logger) int {
	manager := plugin.NewManager(opts.pluginsDir, log)
	if err := manager.LoadPlugins(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: failed to load plugins: %v\n", err)
		return 1
	}
	defer manager.ShutdownPlugins(nil)

	switch {
	case opts.enablePlugin != "":
		if err := manager.SetEnabled(opts.enablePlugin, true, nil); err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			return 1
		}
		fmt.Printf("Enabled plugin %s\n", opts.enablePlugin)

	case opts.disablePlugin != "":
		if err := manager.SetEnabled(opts.disablePlugin, false, nil); err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			return 1
		}
		fmt.Printf("Disabled plugin %s\n", opts.disablePlugin)

	case opts.listPlugins:
		infos := manager.ListAllPluginInfo()
		if len(infos) == 0 {
			fmt.Println("No plugins installed.")
			return 0
		}
		table := uitable.New()
		table.MaxColWidth = 50
		table.AddRow("NAME", "VERSION", "STATE", "CALLBACKS", "DESCRIPTION")
		for _, info := range infos {
			state := "enabled"
			if !info.Enabled {
				state = "disabled"
			}
			table.AddRow(info.Name, info.Version, state, info.CallbackCount, info.Description)
		}
		fmt.Println(table)
	}
	return 0
}

func parseFlags() options {
	var opts options
	var showVersion bool
	var showHelp bool

	flag.StringVar(&opts.pluginsDir, "plugins", defaultPath("plugins"), "Plugins directory")
	flag.StringVar(&opts.settingsPath, "config", defaultPath("settings.json"), "Path to settings file")
	flag.StringVar(&opts.settingsPath, "c", defaultPath("settings.json"), "Path to settings file (shorthand)")
	flag.StringVar(&opts.logLevel, "log-level", "warn", "Log level (debug, info, warn, error)")
	flag.BoolVar(&opts.watch, "watch", true, "Reload plugins when the plugins directory changes")
	flag.BoolVar(&opts.listPlugins, "list-plugins", false, "List installed plugins and exit")
	flag.StringVar(&opts.enablePlugin, "enable", "", "Enable a plugin by name and exit")
	flag.StringVar(&opts.disablePlugin, "disable", "", "Disable a plugin by name and exit")
	flag.BoolVar(&showVersion, "version", false, "Show version information")
	flag.BoolVar(&showVersion, "v", false, "Show version information (shorthand)")
	flag.BoolVar(&showHelp, "help", false, "Show help message")
	flag.BoolVar(&showHelp, "h", false, "Show help message (shorthand)")

	flag.Usage = func() {
		fmt.Fprintf(os.Stderr, "Quickpad - terminal quick input with plugins\n\n")
		fmt.Fprintf(os.Stderr, "Usage: quickpad [options]\n\n")
		fmt.Fprintf(os.Stderr, "Options:\n")
		flag.PrintDefaults()
		fmt.Fprintf(os.Stderr, "\nExamples:\n")
		fmt.Fprintf(os.Stderr, "  quickpad                       Open the input box\n")
		fmt.Fprintf(os.Stderr, "  quickpad -list-plugins         Show installed plugins\n")
		fmt.Fprintf(os.Stderr, "  quickpad -disable greeter      Disable the greeter plugin\n")
	}

	flag.Parse()

	if showHelp {
		flag.Usage()
		os.Exit(0)
	}
	if showVersion {
		fmt.Printf("Quickpad %s\n", version)
		fmt.Printf("Commit: %s\n", commit)
		os.Exit(0)
	}
	return opts
}

// defaultPath resolves a file under the user's quickpad config
// directory, falling back to the working directory when the config
// dir is unavailable.
func defaultPath(name string) string {
	base, err := os.UserConfigDir()
	if err != nil {
		return name
	}
	return filepath.Join(base, "quickpad", name)
}
