// Whaleinit - Minimal Init Process Supervisor for Containers
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/whaleinit

// Package main is the whaleinit executable, a PID-1 supervisor for
// Linux containers.
//
// whaleinit starts a declared set of long-running services, relays
// their stdout/stderr as "[title] "-tagged lines on its own streams,
// reaps every descendant (orphans included), and propagates
// termination signals. It replaces ad-hoc shell wrappers in container
// images where being PID 1 carries obligations ordinary processes can
// ignore.
//
// # Startup sequence
//
//  1. Settings: defaults, WHALEINIT_* environment variables, flags.
//  2. Configuration: /etc/whaleinit.toml (if present), then every
//     *.toml under /etc/whaleinit/services/ in filename order. Inline
//     Liquid templates ({{ env.X }}) render against the environment
//     whaleinit started with.
//  3. File templates: each [[templates]] src renders to dest
//     atomically, before any service starts.
//  4. Supervision: services spawn in discovery order under the PID-1
//     core; suture harnesses the core and the log multiplexer.
//
// # Signal handling
//
// SIGTERM, SIGINT, and SIGQUIT trigger graceful shutdown: SIGTERM to
// every service in reverse start order, per-service grace timers
// (stop_timeout_ms, default 10s), a global budget
// (--shutdown-timeout-ms, default 30s), SIGKILL past either. A second
// termination signal kills everything immediately. SIGHUP is ignored.
//
// # Exit codes
//
//	0      all services exited, none essential failed
//	status an essential service's own exit status
//	128+S  shutdown initiated by signal S
//	64     configuration error
//	65     template error
//	66     pre-hook failure
//	70     internal error
//	71     first spawn failure
//
// # Example
//
//	# /etc/whaleinit/services/10-web.toml
//	title = "web"
//	exec  = "/usr/bin/web"
//	args  = ["--listen", ":{{ env.PORT }}"]
//	essential = true
//
//	ENTRYPOINT ["/sbin/whaleinit"]
package main

import (
	"context"
	"errors"
	"os"

	"github.com/thejerf/suture/v4"

	"github.com/tomtom215/whaleinit/internal/config"
	"github.com/tomtom215/whaleinit/internal/logging"
	"github.com/tomtom215/whaleinit/internal/logmux"
	"github.com/tomtom215/whaleinit/internal/service"
	"github.com/tomtom215/whaleinit/internal/supervisor"
	"github.com/tomtom215/whaleinit/internal/template"
)

func main() {
	os.Exit(run(os.Args[1:]))
}

func run(args []string) int {
	settings, err := config.LoadSettings()
	if err != nil {
		logging.Error().Err(err).Msg("failed to load settings")
		return exitCodeOf(err)
	}
	if err := applyFlags(settings, args); err != nil {
		logging.Error().Err(err).Msg("invalid command line")
		return 64
	}

	logging.Init(logging.Config{
		Level:  settings.LogLevel,
		Format: settings.LogFormat,
	})

	// One snapshot of the environment feeds every template for the
	// lifetime of the process.
	engine := template.New(os.Environ())

	cfg, err := config.Load(config.Options{
		Dir:        settings.ConfigDir,
		GlobalPath: settings.GlobalConfig,
	}, engine)
	if err != nil {
		logging.Error().Err(err).Msg("failed to load configuration")
		return exitCodeOf(err)
	}
	logging.Info().Int("services", len(cfg.Services)).Int("templates", len(cfg.Templates)).
		Str("config_dir", settings.ConfigDir).Msg("configuration loaded")

	// File templates render to completion before the first spawn.
	if err := engine.RenderFiles(cfg.FileSpecs()); err != nil {
		logging.Error().Err(err).Msg("template rendering failed")
		return exitCodeOf(err)
	}

	mux := logmux.NewWriter(os.Stdout, os.Stderr)
	runner := service.NewRunner(mux, os.Environ())
	core := supervisor.NewCore(cfg.Services, runner, supervisor.Config{
		ShutdownTimeout: settings.ShutdownTimeout(),
	})

	tree, err := supervisor.NewTree(logging.NewSlogLogger(), supervisor.DefaultTreeConfig(), core, mux)
	if err != nil {
		logging.Error().Err(err).Msg("failed to build supervisor")
		return 70
	}

	err = tree.Serve(context.Background())
	if err != nil && !errors.Is(err, suture.ErrTerminateSupervisorTree) {
		logging.Error().Err(err).Msg("supervisor stopped abnormally")
	}
	if failure := tree.Failure(); failure != nil {
		logging.Error().Err(failure).Msg("init failed")
	}

	code := tree.ExitCode()
	logging.Info().Int("exit_code", code).Msg("whaleinit exiting")
	return code
}

// exitCodeOf maps a typed error to its init exit code; unknown errors
// are internal failures.
func exitCodeOf(err error) int {
	var coded interface{ ExitCode() int }
	if errors.As(err, &coded) {
		return coded.ExitCode()
	}
	return 70
}
