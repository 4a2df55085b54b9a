// Whaleinit - Minimal Init Process Supervisor for Containers
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/whaleinit

package logging

import (
	"bytes"
	"encoding/json"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseLevel(t *testing.T) {
	tests := []struct {
		input string
		want  zerolog.Level
	}{
		{"trace", zerolog.TraceLevel},
		{"debug", zerolog.DebugLevel},
		{"info", zerolog.InfoLevel},
		{"warn", zerolog.WarnLevel},
		{"warning", zerolog.WarnLevel},
		{"error", zerolog.ErrorLevel},
		{"fatal", zerolog.FatalLevel},
		{"disabled", zerolog.Disabled},
		{"DEBUG", zerolog.DebugLevel},
		{"bogus", zerolog.InfoLevel},
		{"", zerolog.InfoLevel},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			assert.Equal(t, tt.want, parseLevel(tt.input))
		})
	}
}

func TestInitJSONFormat(t *testing.T) {
	var buf bytes.Buffer
	Init(Config{Level: "debug", Format: "json", Timestamp: true, Output: &buf})
	defer Init(DefaultConfig())

	Info().Str("service", "web").Msg("service started")

	var entry map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &entry))
	assert.Equal(t, "service started", entry["message"])
	assert.Equal(t, "web", entry["service"])
	assert.Equal(t, "info", entry["level"])
	assert.Contains(t, entry, "time")
}

func TestInitConsoleFormat(t *testing.T) {
	var buf bytes.Buffer
	Init(Config{Level: "info", Format: "console", Output: &buf})
	defer Init(DefaultConfig())

	Warn().Msg("grace timer expired")

	out := buf.String()
	assert.Contains(t, out, "grace timer expired")
	assert.NotContains(t, out, "{") // not JSON
}

func TestLevelFiltering(t *testing.T) {
	var buf bytes.Buffer
	Init(Config{Level: "warn", Format: "json", Output: &buf})
	defer Init(DefaultConfig())

	Debug().Msg("not emitted")
	Info().Msg("not emitted either")
	assert.Zero(t, buf.Len())

	Error().Msg("emitted")
	assert.NotZero(t, buf.Len())
}

func TestSetLogger(t *testing.T) {
	var buf bytes.Buffer
	orig := Logger()
	SetLogger(NewTestLogger(&buf))
	defer SetLogger(orig)

	Info().Msg("captured")
	assert.Contains(t, buf.String(), "captured")
}
