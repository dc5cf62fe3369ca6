// Package cmd wires the importer packages into the flarum-importer CLI.
package cmd

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/forumkit/flarum-importer/internal/buildinfo"
	"github.com/forumkit/flarum-importer/internal/conf"
	"github.com/forumkit/flarum-importer/internal/logger"
)

// skipSetup marks commands that run without loading settings.
const skipSetup = "skip-setup"

// Context is shared by all sub-commands. Settings and Logger are populated
// before any RunE executes.
type Context struct {
	BuildInfo  buildinfo.BuildInfo
	ConfigFile string
	Settings   *conf.Settings
	Logger     *logger.CentralLogger
}

// Log returns a module logger, falling back to stdout before setup ran.
func (c *Context) Log(module string) logger.Logger {
	if c.Logger == nil {
		return logger.NewSlogLogger(nil, logger.LogLevelInfo, nil).Module(module)
	}
	return c.Logger.Module(module)
}

// RootCommand creates and returns the root command
func RootCommand(info buildinfo.BuildInfo) *cobra.Command {
	app := &Context{BuildInfo: info}

	rootCmd := &cobra.Command{
		Use:           "flarum-importer",
		Short:         "Import a Flarum forum into a Discourse database",
		Version:       info.GetVersion(),
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	if err := setupFlags(rootCmd, app); err != nil {
		panic(err)
	}

	rootCmd.AddCommand(
		importCommand(app),
		statusCommand(app),
		transcodeCommand(),
	)

	rootCmd.PersistentPreRunE = func(cmd *cobra.Command, _ []string) error {
		if cmd.Annotations[skipSetup] != "" {
			return nil
		}
		return initialize(app)
	}
	rootCmd.PersistentPostRunE = func(*cobra.Command, []string) error {
		if app.Logger == nil {
			return nil
		}
		return app.Logger.Close()
	}

	return rootCmd
}

// initialize loads settings and builds the central logger.
func initialize(app *Context) error {
	settings, err := conf.Load(app.ConfigFile)
	if err != nil {
		return err
	}
	if settings.Debug {
		settings.Logging.DefaultLevel = "debug"
		if settings.Logging.Console != nil {
			settings.Logging.Console.Level = "debug"
		}
	}

	central, err := logger.NewCentralLogger(&settings.Logging)
	if err != nil {
		return fmt.Errorf("failed to initialize logging: %w", err)
	}

	app.Settings = settings
	app.Logger = central
	return nil
}

// setupFlags defines flags that are global to the command line interface.
// Flags override values from config.yaml and the environment.
func setupFlags(rootCmd *cobra.Command, app *Context) error {
	flags := rootCmd.PersistentFlags()
	flags.StringVarP(&app.ConfigFile, "config", "c", "", "Path to config.yaml (default: search ./, ~/.config/flarum-importer, /etc/flarum-importer)")
	flags.BoolP("debug", "d", false, "Enable debug output")
	flags.String("target-type", "", "Target store: "+strings.Join([]string{conf.TargetSQLite, conf.TargetMySQL, conf.TargetPostgres}, ", "))
	flags.String("target-path", "", "SQLite target database file")
	flags.String("target-dsn", "", "MySQL or Postgres target connection string")

	bindings := map[string]string{
		"debug":       "debug",
		"target.type": "target-type",
		"target.path": "target-path",
		"target.dsn":  "target-dsn",
	}
	for key, name := range bindings {
		if err := viper.BindPFlag(key, flags.Lookup(name)); err != nil {
			return fmt.Errorf("error binding flag %s: %w", name, err)
		}
	}
	return nil
}
