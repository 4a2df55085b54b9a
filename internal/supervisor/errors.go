// Whaleinit - Minimal Init Process Supervisor for Containers
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/whaleinit

package supervisor

import (
	"errors"
	"fmt"
)

// Kind classifies supervisor failures.
type Kind uint8

const (
	// KindStartupAborted is a failure before the first service was
	// successfully spawned.
	KindStartupAborted Kind = iota
	// KindInternal is an unexpected syscall failure inside the core.
	KindInternal
)

// String returns the kind name for log output.
func (k Kind) String() string {
	if k == KindStartupAborted {
		return "startup-aborted"
	}
	return "internal"
}

// Error is a supervisor-level failure. The core records at most one and
// keeps running long enough to shut down cleanly.
type Error struct {
	Kind Kind
	Err  error
}

// Error implements the error interface.
func (e *Error) Error() string {
	return fmt.Sprintf("supervisor %s: %v", e.Kind, e.Err)
}

// Unwrap returns the underlying cause.
func (e *Error) Unwrap() error { return e.Err }

// ExitCode returns the init exit code. The wrapped cause decides when
// it carries a code of its own (66 for a failed pre-hook, 71 for a
// failed spawn); otherwise an aborted startup is 71 and an internal
// failure 70.
func (e *Error) ExitCode() int {
	var coded interface{ ExitCode() int }
	if errors.As(e.Err, &coded) {
		return coded.ExitCode()
	}
	if e.Kind == KindStartupAborted {
		return 71
	}
	return 70
}
