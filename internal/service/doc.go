// Whaleinit - Minimal Init Process Supervisor for Containers
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/whaleinit

// Package service tracks one supervised OS process per configured
// service and knows how to start and stop it.
//
// An Instance pairs an immutable config.Service definition with runtime
// bookkeeping: lifecycle state, PID, exit status, stream-closure flags,
// and a generation counter. States only advance:
//
//	Pending -> Starting -> Running -> Exiting -> Exited
//
// with two shortcuts: a spawn failure jumps straight to Exited, and a
// service that exits on its own skips Exiting. Exited is terminal for a
// generation.
//
// Instance mutation is not synchronized. The supervisor core is the
// single owner of every Instance and performs all transitions on its
// event loop; tail goroutines and timers communicate with it through
// events only.
//
// The Runner performs the spawn protocol (pre-hook, pipes, session
// leadership, exec) and delivers SIGTERM/SIGKILL. It never waits on a
// child: reaping is exclusively the supervisor's, which is what keeps
// waitpid bookkeeping free of races between the runner and the
// SIGCHLD path.
package service
