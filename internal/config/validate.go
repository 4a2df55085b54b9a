// Whaleinit - Minimal Init Process Supervisor for Containers
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/whaleinit

package config

import (
	"errors"
	"fmt"
	"path/filepath"

	"github.com/go-playground/validator/v10"
)

// validate is the shared validator instance. Struct tags on Service and
// Template carry the schema rules; "abspath" is registered below.
var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	// abspath: the field must be an absolute filesystem path.
	if err := v.RegisterValidation("abspath", func(fl validator.FieldLevel) bool {
		return filepath.IsAbs(fl.Field().String())
	}); err != nil {
		panic(err)
	}
	return v
}

// validateConfig checks the merged configuration: per-entry schema rules
// plus global title uniqueness.
func validateConfig(cfg *Config) error {
	seen := make(map[string]struct{}, len(cfg.Services))

	for i := range cfg.Services {
		svc := &cfg.Services[i]
		if err := validate.Struct(svc); err != nil {
			return &Error{Kind: KindSchema, Err: schemaMessage(svc.Title, i, err)}
		}
		if _, dup := seen[svc.Title]; dup {
			return &Error{
				Kind: KindDuplicateTitle,
				Err:  fmt.Errorf("service title %q declared more than once", svc.Title),
			}
		}
		seen[svc.Title] = struct{}{}
	}

	for i := range cfg.Templates {
		if err := validate.Struct(&cfg.Templates[i]); err != nil {
			return &Error{Kind: KindSchema, Err: schemaMessage("", i, err)}
		}
	}
	return nil
}

// schemaMessage turns validator output into a message that names the
// offending service and field the way the TOML spells them.
func schemaMessage(title string, index int, err error) error {
	who := fmt.Sprintf("entry %d", index)
	if title != "" {
		who = fmt.Sprintf("service %q", title)
	}

	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) || len(verrs) == 0 {
		return fmt.Errorf("%s: %w", who, err)
	}

	fe := verrs[0]
	field := tomlField(fe.StructField())
	switch fe.Tag() {
	case "required":
		return fmt.Errorf("%s: %s is required", who, field)
	case "abspath":
		return fmt.Errorf("%s: %s must be an absolute path, got %q", who, field, fe.Value())
	case "gte":
		return fmt.Errorf("%s: %s must be >= %s", who, field, fe.Param())
	default:
		return fmt.Errorf("%s: %s failed %s validation", who, field, fe.Tag())
	}
}

// tomlField maps Go field names back to their TOML keys.
func tomlField(name string) string {
	switch name {
	case "Title":
		return "title"
	case "Exec":
		return "exec"
	case "PreHook":
		return "pre_hook"
	case "StopTimeoutMS":
		return "stop_timeout_ms"
	case "Src":
		return "src"
	case "Dest":
		return "dest"
	default:
		return name
	}
}
