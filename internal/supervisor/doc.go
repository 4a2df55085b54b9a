// Whaleinit - Minimal Init Process Supervisor for Containers
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/whaleinit

// Package supervisor is the PID-1 body of whaleinit.
//
// # Core loop
//
// The Core owns every service Instance and is the only goroutine that
// mutates one. It blocks on two channels, plus the Done channel of the
// context it was started with (cancellation begins a polite shutdown):
//
//   - signals: SIGCHLD, SIGTERM, SIGINT, SIGQUIT, SIGHUP, received via
//     os/signal. PID 1 gets no default dispositions from the kernel, so
//     installing these handlers is what makes whaleinit stoppable at all.
//   - events: stream-EOF notifications from the log multiplexer's tail
//     goroutines, plus its own grace/shutdown timer expiries. Timers and
//     tails only ever post events; they never touch state.
//
// SIGCHLD drains wait4(-1, WNOHANG) until nothing is ready, so every
// child - including orphans adopted from double-forking services - is
// reaped exactly once. Orphan statuses are logged at debug and dropped.
//
// An instance reaches Exited only when its process has been reaped AND
// both of its pipes have hit EOF. Requiring all three observations
// closes the classic race where SIGCHLD beats the pipe readers and the
// service's last lines vanish.
//
// # Shutdown
//
// Graceful shutdown - from SIGTERM/SIGINT/SIGQUIT, from an essential
// service exiting, or from a failed pre-hook mid-startup - SIGTERMs
// every Running instance in reverse discovery order, arms each
// instance's grace timer and one global timer, and keeps reaping until
// everything is Exited. Expired timers escalate to SIGKILL, as does a
// second termination signal. The exit code follows the initiator:
// an essential service's status, or 128+signal.
//
// # Suture harness
//
// Tree wraps the Core and the log multiplexer's writer in a suture
// supervisor. Suture restarts either one if it panics and bounds their
// shutdown; the Core ends the whole tree by returning
// suture.ErrTerminateSupervisorTree once every instance has exited.
// Suture supervises these two in-process services only - child
// processes are the Core's business alone.
package supervisor
