// Whaleinit - Minimal Init Process Supervisor for Containers
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/whaleinit

package supervisor

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/thejerf/suture/v4"

	"github.com/tomtom215/whaleinit/internal/config"
	"github.com/tomtom215/whaleinit/internal/logmux"
	"github.com/tomtom215/whaleinit/internal/service"
)

func quietSlog() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))
}

func TestDefaultTreeConfig(t *testing.T) {
	cfg := DefaultTreeConfig()

	assert.Equal(t, 5.0, cfg.FailureThreshold)
	assert.Equal(t, 30.0, cfg.FailureDecay)
	assert.Equal(t, 15*time.Second, cfg.FailureBackoff)
	assert.Equal(t, 10*time.Second, cfg.StopTimeout)
}

func TestNewTreeAppliesDefaults(t *testing.T) {
	out := &syncBuffer{}
	mux := logmux.NewWriter(out, out)
	core := NewCore(nil, service.NewRunner(mux, os.Environ()), Config{})

	tree, err := NewTree(quietSlog(), TreeConfig{}, core, mux)
	require.NoError(t, err)

	assert.Equal(t, 5.0, tree.config.FailureThreshold)
	assert.Equal(t, 30.0, tree.config.FailureDecay)
	assert.Equal(t, 15*time.Second, tree.config.FailureBackoff)
	assert.Equal(t, 10*time.Second, tree.config.StopTimeout)
}

// The whole assembly end to end: suture runs the writer and the core,
// the core runs a real service, and its termination tears the tree down.
func TestTreeRunsServicesToCompletion(t *testing.T) {
	out := &syncBuffer{}
	errOut := &syncBuffer{}
	mux := logmux.NewWriter(out, errOut)
	core := NewCore([]config.Service{
		{Title: "hello", Exec: "/bin/sh", Args: []string{"-c", "echo from-tree"}},
	}, service.NewRunner(mux, os.Environ()), Config{})

	tree, err := NewTree(quietSlog(), DefaultTreeConfig(), core, mux)
	require.NoError(t, err)

	done := make(chan error, 1)
	go func() { done <- tree.Serve(context.Background()) }()

	select {
	case err := <-done:
		require.True(t, errors.Is(err, suture.ErrTerminateSupervisorTree),
			"tree should end via core termination, got %v", err)
	case <-time.After(30 * time.Second):
		t.Fatal("tree did not finish")
	}

	assert.Equal(t, 0, tree.ExitCode())
	assert.NoError(t, tree.Failure())
	assert.Equal(t, "[hello] from-tree\n", out.String())
}
