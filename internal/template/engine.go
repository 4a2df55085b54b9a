// Whaleinit - Minimal Init Process Supervisor for Containers
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/whaleinit

// Package template renders Liquid templates against a snapshot of the
// process environment.
//
// A single root scope named "env" is exposed, whose members are the
// environment variables captured when the engine was created. The snapshot
// is never re-read: services started later see template output computed
// from the environment whaleinit itself was started with.
//
//	hello {{ env.NAME }}
//
// Undefined variables render as the empty string (the Liquid default).
// Syntactically invalid templates fail with a parse error.
//
// Two modes are supported: inline rendering of single strings (used for
// the exec/args/env fields of service definitions at load time) and file
// rendering (src -> dest with atomic replacement), which runs before any
// service is started.
package template

import (
	"strings"

	"github.com/osteele/liquid"
)

// Engine renders Liquid templates over a fixed environment snapshot.
type Engine struct {
	engine   *liquid.Engine
	bindings liquid.Bindings
}

// New creates an engine bound to the given environment in "KEY=VALUE" form,
// as produced by os.Environ. The snapshot is captured once; later changes
// to the process environment are not observed.
func New(environ []string) *Engine {
	env := make(map[string]string, len(environ))
	for _, kv := range environ {
		if k, v, ok := strings.Cut(kv, "="); ok {
			env[k] = v
		}
	}
	return &Engine{
		engine:   liquid.NewEngine(),
		bindings: liquid.Bindings{"env": env},
	}
}

// RenderString renders a single inline template.
// Input without any {{ }} or {% %} markup is returned byte-identical.
func (e *Engine) RenderString(src string) (string, error) {
	tpl, err := e.engine.ParseString(src)
	if err != nil {
		return "", &Error{Kind: KindParse, Err: err}
	}
	out, err := tpl.RenderString(e.bindings)
	if err != nil {
		return "", &Error{Kind: KindParse, Err: err}
	}
	return out, nil
}
