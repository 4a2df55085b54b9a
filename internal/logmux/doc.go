// Whaleinit - Minimal Init Process Supervisor for Containers
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/whaleinit

// Package logmux demultiplexes service output into whaleinit's own
// stdout and stderr.
//
// Every running service owns two pipes. A tail goroutine per pipe scans
// for newlines and hands complete lines to the Writer, which serializes
// them onto the corresponding init stream prefixed with "[title] ":
//
//	[web] listening on :8080
//	[db] ready to accept connections
//
// # Guarantees
//
//   - Bytes are relayed verbatim: the multiplexer scans for '\n' and
//     never decodes, so non-UTF-8 output passes through untouched.
//   - Per-stream line order is preserved. Ordering between different
//     services (or between a service's stdout and stderr) is whatever
//     the scheduler produces, as with any shared console.
//   - Lines longer than LineCap are split at the cap; every continuation
//     carries the same tag and no byte is dropped.
//   - A final line without a trailing newline is flushed with one
//     synthesized at EOF.
//
// Each emitted line is a single Write call on the underlying stream.
//
// # Lifecycle
//
// Tails report EOF through a callback; they never touch service state.
// The supervisor treats "both streams closed" as one of the conditions
// for an instance to be fully exited, so the final lines of a dying
// service are always relayed before its exit is acted upon.
//
// The Writer runs as a suture service. On shutdown it drains any queued
// lines before returning, which keeps service output from being lost
// when whaleinit itself exits.
package logmux
