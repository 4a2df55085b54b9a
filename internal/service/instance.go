// Whaleinit - Minimal Init Process Supervisor for Containers
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/whaleinit

package service

import (
	"time"

	"github.com/tomtom215/whaleinit/internal/config"
	"github.com/tomtom215/whaleinit/internal/logmux"
)

// State is an Instance's lifecycle position. States only move forward.
type State uint8

const (
	// Pending means not yet spawned.
	Pending State = iota
	// Starting means the spawn protocol is underway.
	Starting
	// Running means exactly one live PID belongs to this instance.
	Running
	// Exiting means SIGTERM has been delivered and the grace timer armed.
	Exiting
	// Exited means the process is reaped and both output streams hit EOF.
	// Terminal within a generation.
	Exited
)

// String returns the state name for log output.
func (s State) String() string {
	switch s {
	case Pending:
		return "pending"
	case Starting:
		return "starting"
	case Running:
		return "running"
	case Exiting:
		return "exiting"
	case Exited:
		return "exited"
	default:
		return "unknown"
	}
}

// Instance is the runtime record for one service. All methods that
// mutate it are called only from the supervisor's event loop; see the
// package documentation for the ownership rule.
type Instance struct {
	spec config.Service

	state      State
	pid        int
	exitStatus int
	startedAt  time.Time
	generation uint64

	reaped       bool
	stdoutClosed bool
	stderrClosed bool
}

// NewInstance creates a Pending instance for the given definition.
func NewInstance(spec config.Service) *Instance {
	return &Instance{spec: spec}
}

// Spec returns the immutable service definition.
func (i *Instance) Spec() *config.Service { return &i.spec }

// Title returns the service title.
func (i *Instance) Title() string { return i.spec.Title }

// State returns the current lifecycle state.
func (i *Instance) State() State { return i.state }

// PID returns the process id recorded at spawn, 0 before Running.
func (i *Instance) PID() int { return i.pid }

// ExitStatus returns the normalized exit status: the child's exit code,
// or 128+signal for a signal death. Meaningful once Reaped reports true.
func (i *Instance) ExitStatus() int { return i.exitStatus }

// StartedAt returns the spawn timestamp, zero before the first spawn.
func (i *Instance) StartedAt() time.Time { return i.startedAt }

// Generation counts spawns of this instance. Exits are terminal in this
// version, so it never advances past its first value, but the counter
// keeps stop-timeout events from outliving the process they were armed
// for.
func (i *Instance) Generation() uint64 { return i.generation }

// Reaped reports whether the supervisor has collected the exit status.
func (i *Instance) Reaped() bool { return i.reaped }

// StreamsClosed reports whether both stdout and stderr hit EOF.
func (i *Instance) StreamsClosed() bool { return i.stdoutClosed && i.stderrClosed }

// MarkStarting records that the spawn protocol has begun.
func (i *Instance) MarkStarting() {
	if i.state == Pending {
		i.state = Starting
	}
}

// MarkRunning records a successful spawn.
func (i *Instance) MarkRunning(pid int) {
	i.state = Running
	i.pid = pid
	i.startedAt = time.Now()
	i.generation++
}

// MarkExiting records that SIGTERM has been delivered.
func (i *Instance) MarkExiting() {
	if i.state == Running {
		i.state = Exiting
	}
}

// MarkStreamClosed records EOF on one output stream.
func (i *Instance) MarkStreamClosed(s logmux.Stream) {
	if s == logmux.Stderr {
		i.stderrClosed = true
	} else {
		i.stdoutClosed = true
	}
}

// MarkReaped records the collected exit status.
func (i *Instance) MarkReaped(status int) {
	i.reaped = true
	i.exitStatus = status
}

// ReadyToExit reports whether every exit condition has been observed:
// process reaped and both streams closed. Requiring all three is what
// keeps the final log lines of a dying service from being dropped when
// SIGCHLD wins the race against the pipe readers.
func (i *Instance) ReadyToExit() bool {
	return i.state != Exited && i.reaped && i.StreamsClosed()
}

// MarkExited finishes the lifecycle. Call only when ReadyToExit.
func (i *Instance) MarkExited() {
	i.state = Exited
}

// MarkFailed short-circuits an instance that never got a live process
// (spawn failure, or skipped because shutdown began first) straight to
// Exited with the given status. There is no PID to reap and no pipes to
// drain, so the exit conditions are satisfied trivially.
func (i *Instance) MarkFailed(status int) {
	i.state = Exited
	i.reaped = true
	i.stdoutClosed = true
	i.stderrClosed = true
	i.exitStatus = status
}
