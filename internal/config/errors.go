// Whaleinit - Minimal Init Process Supervisor for Containers
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/whaleinit

package config

import "fmt"

// Kind classifies configuration failures.
type Kind uint8

const (
	// KindParse is malformed TOML.
	KindParse Kind = iota
	// KindSchema is a missing required field, a wrong type, or an
	// unreadable config location.
	KindSchema
	// KindDuplicateTitle is two services sharing a title.
	KindDuplicateTitle
	// KindNoServices is a merged configuration with no services at all.
	KindNoServices
)

// String returns the kind name for log output.
func (k Kind) String() string {
	switch k {
	case KindParse:
		return "parse"
	case KindSchema:
		return "schema"
	case KindDuplicateTitle:
		return "duplicate-title"
	case KindNoServices:
		return "no-services"
	default:
		return "unknown"
	}
}

// Error is a configuration failure. Any Error aborts whaleinit startup.
type Error struct {
	Kind Kind
	// Path is the file involved, empty for cross-file failures.
	Path string
	Err  error
}

// Error implements the error interface.
func (e *Error) Error() string {
	if e.Path != "" {
		return fmt.Sprintf("config %s %s: %v", e.Kind, e.Path, e.Err)
	}
	return fmt.Sprintf("config %s: %v", e.Kind, e.Err)
}

// Unwrap returns the underlying cause.
func (e *Error) Unwrap() error { return e.Err }

// ExitCode returns the process exit code for configuration failures.
func (e *Error) ExitCode() int { return 64 }
