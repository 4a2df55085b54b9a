// Whaleinit - Minimal Init Process Supervisor for Containers
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/whaleinit

package service

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/tomtom215/whaleinit/internal/config"
	"github.com/tomtom215/whaleinit/internal/logmux"
)

func newTestInstance() *Instance {
	return NewInstance(config.Service{Title: "t", Exec: "/bin/true"})
}

func TestInstanceLifecycle(t *testing.T) {
	inst := newTestInstance()
	assert.Equal(t, Pending, inst.State())
	assert.Zero(t, inst.PID())

	inst.MarkStarting()
	assert.Equal(t, Starting, inst.State())

	inst.MarkRunning(1234)
	assert.Equal(t, Running, inst.State())
	assert.Equal(t, 1234, inst.PID())
	assert.Equal(t, uint64(1), inst.Generation())
	assert.False(t, inst.StartedAt().IsZero())

	inst.MarkExiting()
	assert.Equal(t, Exiting, inst.State())
}

func TestInstanceExitRequiresReapAndBothStreams(t *testing.T) {
	inst := newTestInstance()
	inst.MarkStarting()
	inst.MarkRunning(42)

	// Reaped first, streams still open: not ready.
	inst.MarkReaped(0)
	assert.False(t, inst.ReadyToExit())

	inst.MarkStreamClosed(logmux.Stdout)
	assert.False(t, inst.ReadyToExit())

	inst.MarkStreamClosed(logmux.Stderr)
	assert.True(t, inst.ReadyToExit())

	inst.MarkExited()
	assert.Equal(t, Exited, inst.State())
	assert.False(t, inst.ReadyToExit(), "exited is terminal")
}

func TestInstanceStreamsBeforeReap(t *testing.T) {
	inst := newTestInstance()
	inst.MarkRunning(42)

	inst.MarkStreamClosed(logmux.Stdout)
	inst.MarkStreamClosed(logmux.Stderr)
	assert.True(t, inst.StreamsClosed())
	assert.False(t, inst.ReadyToExit(), "must also be reaped")

	inst.MarkReaped(3)
	assert.True(t, inst.ReadyToExit())
	assert.Equal(t, 3, inst.ExitStatus())
}

func TestInstanceMarkFailed(t *testing.T) {
	inst := newTestInstance()
	inst.MarkFailed(127)

	assert.Equal(t, Exited, inst.State())
	assert.Equal(t, 127, inst.ExitStatus())
	assert.True(t, inst.Reaped())
	assert.True(t, inst.StreamsClosed())
}

func TestInstanceExitingOnlyFromRunning(t *testing.T) {
	inst := newTestInstance()
	inst.MarkExiting()
	assert.Equal(t, Pending, inst.State())
}

func TestStateString(t *testing.T) {
	assert.Equal(t, "pending", Pending.String())
	assert.Equal(t, "starting", Starting.String())
	assert.Equal(t, "running", Running.String())
	assert.Equal(t, "exiting", Exiting.String())
	assert.Equal(t, "exited", Exited.String())
}
