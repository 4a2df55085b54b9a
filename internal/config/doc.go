// Whaleinit - Minimal Init Process Supervisor for Containers
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/whaleinit

// Package config loads and validates whaleinit's service and template
// definitions from TOML.
//
// # Sources
//
// Two sources merge into one configuration, read in this order:
//
//  1. An optional global file (default /etc/whaleinit.toml).
//  2. Every *.toml file in the services directory (default
//     /etc/whaleinit/services/), in lexicographic filename order.
//
// Discovery order matters: services spawn in it and shut down in the
// reverse of it.
//
// # File shapes
//
// A file can declare one service at its top level:
//
//	title = "web"
//	exec  = "/usr/bin/web"
//	args  = ["--port", "{{ env.PORT }}"]
//
// or any number under a [[services]] array, plus [[templates]] entries:
//
//	[[services]]
//	title     = "worker"
//	exec      = "/usr/bin/worker"
//	essential = true
//
//	[[templates]]
//	src  = "/etc/app/app.conf.liquid"
//	dest = "/etc/app/app.conf"
//
// Both shapes decode to the same list. String fields go through one pass
// of Liquid rendering during load (see the template package), so the
// structures returned by Load carry final values.
//
// # Validation
//
// Schema rules live as validator tags on the Service and Template types:
// titles are required, exec and pre_hook must be absolute paths,
// stop_timeout_ms must be non-negative. Title uniqueness across all
// files is checked separately after the per-entry rules. An empty merged
// service list is an error; an init with nothing to supervise is a
// misconfigured image.
//
// Configuration failures are reported as *Error with a Kind (parse,
// schema, duplicate-title, no-services); all of them carry exit code 64.
// A failure during inline rendering is returned as the template
// package's *template.Error instead, with exit code 65.
package config
