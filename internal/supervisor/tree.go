// Whaleinit - Minimal Init Process Supervisor for Containers
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/whaleinit

package supervisor

import (
	"context"
	"log/slog"
	"time"

	"github.com/thejerf/suture/v4"
	"github.com/thejerf/sutureslog"

	"github.com/tomtom215/whaleinit/internal/logmux"
)

// TreeConfig holds the suture harness configuration.
type TreeConfig struct {
	// FailureThreshold is the number of failures before entering backoff.
	// Default: 5
	FailureThreshold float64

	// FailureDecay is the rate at which failures decay in seconds.
	// Default: 30
	FailureDecay float64

	// FailureBackoff is the duration to wait when threshold is exceeded.
	// Default: 15s
	FailureBackoff time.Duration

	// StopTimeout is the maximum time to wait for the in-process
	// services to stop when the tree terminates.
	// Default: 10s
	StopTimeout time.Duration
}

// DefaultTreeConfig returns production-ready defaults, matching suture's
// built-in values.
func DefaultTreeConfig() TreeConfig {
	return TreeConfig{
		FailureThreshold: 5.0,
		FailureDecay:     30.0,
		FailureBackoff:   15 * time.Second,
		StopTimeout:      10 * time.Second,
	}
}

// Tree is the suture harness around whaleinit's two in-process services:
// the PID-1 core and the log multiplexer's writer. Suture gives them
// panic isolation with restart and a bounded stop; it plays no part in
// managing child processes, which belong to the Core.
//
// The writer is added before the core so tagged service output flows
// from the very first spawn.
type Tree struct {
	root   *suture.Supervisor
	core   *Core
	logger *slog.Logger
	config TreeConfig
}

// NewTree creates the harness around an assembled core and writer.
func NewTree(logger *slog.Logger, config TreeConfig, core *Core, mux *logmux.Writer) (*Tree, error) {
	// Apply defaults for zero values
	if config.FailureThreshold == 0 {
		config.FailureThreshold = 5.0
	}
	if config.FailureDecay == 0 {
		config.FailureDecay = 30.0
	}
	if config.FailureBackoff == 0 {
		config.FailureBackoff = 15 * time.Second
	}
	if config.StopTimeout == 0 {
		config.StopTimeout = 10 * time.Second
	}

	// Create event hook using sutureslog.
	// IMPORTANT: The correct API is (&Handler{Logger: logger}).MustHook()
	// NOT sutureslog.EventHook(logger) which does not exist.
	// MustHook has a pointer receiver, so we need to take the address.
	handler := &sutureslog.Handler{Logger: logger}
	eventHook := handler.MustHook()

	root := suture.New("whaleinit", suture.Spec{
		EventHook:        eventHook,
		FailureThreshold: config.FailureThreshold,
		FailureDecay:     config.FailureDecay,
		FailureBackoff:   config.FailureBackoff,
		Timeout:          config.StopTimeout,
	})

	root.Add(mux)
	root.Add(core)

	return &Tree{
		root:   root,
		core:   core,
		logger: logger,
		config: config,
	}, nil
}

// Serve runs the tree until the core terminates it or the context is
// canceled. This is the main entry point for running whaleinit.
func (t *Tree) Serve(ctx context.Context) error {
	return t.root.Serve(ctx)
}

// ExitCode returns the init exit code determined by the core.
func (t *Tree) ExitCode() int {
	return t.core.ExitCode()
}

// Failure returns the core's recorded startup or internal failure.
func (t *Tree) Failure() error {
	return t.core.Failure()
}
