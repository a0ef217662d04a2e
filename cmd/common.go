// Package cmd holds the camunit subcommands that run next to the API
// server.
package cmd

import (
	"log/slog"

	"github.com/spf13/pflag"

	"github.com/smazurov/camunit/internal/config"
	"github.com/smazurov/camunit/internal/logging"
)

// logFlags are shared by every subcommand.
type logFlags struct {
	configFile string
	level      string
	json       bool
}

func (f *logFlags) register(fs *pflag.FlagSet) {
	fs.StringVarP(&f.configFile, "config", "c", "config.toml", "Configuration file for logging levels")
	fs.StringVar(&f.level, "log-level", "", "Override the global log level (debug, info, warn, error)")
	fs.BoolVar(&f.json, "log-json", false, "Log as JSON")
}

// setup initializes logging from the config file and flag overrides and
// returns the command's logger.
func (f *logFlags) setup(module string) *slog.Logger {
	cfg := config.LoadLoggingConfig(f.configFile)
	if f.level != "" {
		cfg.Level = f.level
	}
	if f.json {
		cfg.Format = "json"
	}
	logging.Initialize(cfg)
	return logging.GetLogger(module)
}
