// Whaleinit - Minimal Init Process Supervisor for Containers
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/whaleinit

package config

import (
	"time"

	"github.com/tomtom215/whaleinit/internal/template"
)

// Default filesystem locations. Both can be overridden on the command line
// or via WHALEINIT_CONFIG_DIR / WHALEINIT_GLOBAL_CONFIG.
const (
	DefaultDir        = "/etc/whaleinit/services"
	DefaultGlobalPath = "/etc/whaleinit.toml"
)

// DefaultStopTimeout applies when a service omits stop_timeout_ms.
const DefaultStopTimeout = 10 * time.Second

// Service is one service definition as declared in TOML. Immutable after
// load; the supervisor and runner share it read-only.
//
// String fields (exec, args entries, env values, pre_hook) have already
// been through one pass of inline Liquid rendering by the time Load
// returns, so consumers see the final values.
type Service struct {
	// Title identifies the service. Unique across every loaded file; log
	// lines carry it as the "[title] " tag.
	Title string `koanf:"title" validate:"required"`

	// Exec is the absolute path of the service binary.
	Exec string `koanf:"exec" validate:"required,abspath"`

	// Args are passed after argv[0] (which is always Exec).
	Args []string `koanf:"args"`

	// Essential marks a service whose exit, with any status, shuts the
	// whole init down with that status.
	Essential bool `koanf:"essential"`

	// Env is overlaid on the init's own environment for this service.
	Env map[string]string `koanf:"env"`

	// PreHook, if set, runs synchronously before Exec and must exit 0.
	PreHook string `koanf:"pre_hook" validate:"omitempty,abspath"`

	// StopTimeoutMS bounds the SIGTERM-to-SIGKILL grace period.
	StopTimeoutMS int64 `koanf:"stop_timeout_ms" validate:"gte=0"`
}

// StopTimeout returns the grace period between SIGTERM and SIGKILL.
func (s *Service) StopTimeout() time.Duration {
	if s.StopTimeoutMS <= 0 {
		return DefaultStopTimeout
	}
	return time.Duration(s.StopTimeoutMS) * time.Millisecond
}

// Template is one [[templates]] entry. Src and Dest are Liquid templates
// themselves and are rendered by the engine at file-render time, so they
// are not path-validated here.
type Template struct {
	Src  string `koanf:"src" validate:"required"`
	Dest string `koanf:"dest" validate:"required"`
}

// FileSpec converts to the template engine's representation.
func (t Template) FileSpec() template.FileSpec {
	return template.FileSpec{Src: t.Src, Dest: t.Dest}
}

// Config is the merged result of the optional global file plus every
// *.toml in the services directory, in discovery order.
type Config struct {
	Services  []Service
	Templates []Template
}

// FileSpecs returns the file templates in discovery order.
func (c *Config) FileSpecs() []template.FileSpec {
	specs := make([]template.FileSpec, 0, len(c.Templates))
	for _, t := range c.Templates {
		specs = append(specs, t.FileSpec())
	}
	return specs
}
