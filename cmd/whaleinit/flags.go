// Whaleinit - Minimal Init Process Supervisor for Containers
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/whaleinit

package main

import (
	"flag"
	"os"

	"github.com/tomtom215/whaleinit/internal/config"
)

// applyFlags parses the command line on top of the given settings.
// There are no subcommands; flags override environment variables,
// which override defaults.
func applyFlags(settings *config.Settings, args []string) error {
	fs := flag.NewFlagSet("whaleinit", flag.ContinueOnError)
	fs.SetOutput(os.Stderr)

	fs.StringVar(&settings.ConfigDir, "config-dir", settings.ConfigDir,
		"directory scanned for *.toml service definitions")
	fs.StringVar(&settings.GlobalConfig, "global-config", settings.GlobalConfig,
		"optional global config file, read before the directory")
	fs.Int64Var(&settings.ShutdownTimeoutMS, "shutdown-timeout-ms", settings.ShutdownTimeoutMS,
		"global graceful shutdown budget in milliseconds")
	fs.StringVar(&settings.LogLevel, "log-level", settings.LogLevel,
		"whaleinit's own log level (debug, info, warn, error)")

	return fs.Parse(args)
}
