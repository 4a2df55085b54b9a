// Whaleinit - Minimal Init Process Supervisor for Containers
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/whaleinit

package config

import (
	"strings"
	"time"

	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/structs"
	"github.com/knadh/koanf/v2"
)

// Settings are whaleinit's own runtime knobs, as opposed to the service
// definitions it supervises. Loaded in layers: built-in defaults, then
// WHALEINIT_* environment variables; command-line flags are applied on
// top by the caller.
type Settings struct {
	ConfigDir         string `koanf:"config_dir"`
	GlobalConfig      string `koanf:"global_config"`
	ShutdownTimeoutMS int64  `koanf:"shutdown_timeout_ms"`
	LogLevel          string `koanf:"log_level"`
	LogFormat         string `koanf:"log_format"`
}

// ShutdownTimeout returns the global graceful-shutdown budget.
func (s *Settings) ShutdownTimeout() time.Duration {
	if s.ShutdownTimeoutMS <= 0 {
		return 30 * time.Second
	}
	return time.Duration(s.ShutdownTimeoutMS) * time.Millisecond
}

// defaultSettings returns the built-in defaults.
func defaultSettings() *Settings {
	return &Settings{
		ConfigDir:         DefaultDir,
		GlobalConfig:      DefaultGlobalPath,
		ShutdownTimeoutMS: 30000,
		LogLevel:          "info",
		LogFormat:         "console",
	}
}

// settingsEnvPrefix scopes which environment variables feed Settings.
const settingsEnvPrefix = "WHALEINIT_"

// LoadSettings builds Settings from defaults overlaid with environment
// variables. Unknown WHALEINIT_* variables are ignored.
func LoadSettings() (*Settings, error) {
	k := koanf.New(".")

	if err := k.Load(structs.Provider(defaultSettings(), "koanf"), nil); err != nil {
		return nil, &Error{Kind: KindSchema, Err: err}
	}

	envProvider := env.Provider(settingsEnvPrefix, ".", settingsEnvTransform)
	if err := k.Load(envProvider, nil); err != nil {
		return nil, &Error{Kind: KindSchema, Err: err}
	}

	s := &Settings{}
	if err := k.Unmarshal("", s); err != nil {
		return nil, &Error{Kind: KindSchema, Err: err}
	}
	return s, nil
}

// settingsEnvTransform maps WHALEINIT_CONFIG_DIR to config_dir and so on.
// Unmapped keys return empty string and are skipped, so arbitrary
// WHALEINIT_* variables in a container environment cannot pollute the
// settings.
func settingsEnvTransform(key string) string {
	key = strings.ToLower(strings.TrimPrefix(key, settingsEnvPrefix))

	switch key {
	case "config_dir", "global_config", "shutdown_timeout_ms", "log_level", "log_format":
		return key
	default:
		return ""
	}
}
