// Whaleinit - Minimal Init Process Supervisor for Containers
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/whaleinit

package logging

import (
	"context"
	"log/slog"

	"github.com/rs/zerolog"
)

// SlogHandler adapts slog records onto zerolog. It exists for exactly
// one consumer: sutureslog, which wants a *slog.Logger for supervisor
// lifecycle events (service started, failed, backing off). Those
// records are flat key/value pairs, so the handler supports attributes
// but not slog's group nesting: WithGroup is accepted and ignored, and
// a group-valued attribute is flattened into dotted keys.
type SlogHandler struct {
	logger zerolog.Logger
	attrs  []slog.Attr
}

// NewSlogHandler creates a handler backed by the global zerolog logger.
func NewSlogHandler() *SlogHandler {
	return &SlogHandler{logger: Logger()}
}

// NewSlogHandlerWithLogger creates a handler backed by a specific logger.
//
//nolint:gocritic // zerolog.Logger is designed to be passed by value
func NewSlogHandlerWithLogger(logger zerolog.Logger) *SlogHandler {
	return &SlogHandler{logger: logger}
}

// Enabled reports whether the handler handles records at the given level.
func (h *SlogHandler) Enabled(_ context.Context, level slog.Level) bool {
	return h.logger.GetLevel() <= zerologLevel(level)
}

// Handle emits one slog record as a zerolog event.
//
//nolint:gocritic // slog.Record is passed by value per slog.Handler interface
func (h *SlogHandler) Handle(_ context.Context, record slog.Record) error {
	event := h.logger.WithLevel(zerologLevel(record.Level))

	for _, attr := range h.attrs {
		event = appendAttr(event, attr.Key, attr.Value)
	}
	record.Attrs(func(attr slog.Attr) bool {
		event = appendAttr(event, attr.Key, attr.Value)
		return true
	})

	event.Msg(record.Message)
	return nil
}

// WithAttrs returns a handler that stamps the given attributes on every
// record.
func (h *SlogHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	merged := make([]slog.Attr, 0, len(h.attrs)+len(attrs))
	merged = append(merged, h.attrs...)
	merged = append(merged, attrs...)
	return &SlogHandler{logger: h.logger, attrs: merged}
}

// WithGroup returns the handler unchanged. sutureslog never opens
// groups; group-valued attributes still flatten in appendAttr.
func (h *SlogHandler) WithGroup(string) slog.Handler {
	return h
}

// appendAttr adds one slog value under the given key, flattening group
// values into dotted keys.
func appendAttr(event *zerolog.Event, key string, value slog.Value) *zerolog.Event {
	switch value.Kind() {
	case slog.KindString:
		return event.Str(key, value.String())
	case slog.KindInt64:
		return event.Int64(key, value.Int64())
	case slog.KindUint64:
		return event.Uint64(key, value.Uint64())
	case slog.KindFloat64:
		return event.Float64(key, value.Float64())
	case slog.KindBool:
		return event.Bool(key, value.Bool())
	case slog.KindDuration:
		return event.Dur(key, value.Duration())
	case slog.KindTime:
		return event.Time(key, value.Time())
	case slog.KindGroup:
		for _, ga := range value.Group() {
			event = appendAttr(event, key+"."+ga.Key, ga.Value)
		}
		return event
	default:
		return event.Interface(key, value.Any())
	}
}

// zerologLevel maps slog levels onto zerolog's. Levels below debug map
// to trace, levels at or above error map to error; suture never logs
// higher than that.
func zerologLevel(level slog.Level) zerolog.Level {
	switch {
	case level < slog.LevelDebug:
		return zerolog.TraceLevel
	case level < slog.LevelInfo:
		return zerolog.DebugLevel
	case level < slog.LevelWarn:
		return zerolog.InfoLevel
	case level < slog.LevelError:
		return zerolog.WarnLevel
	default:
		return zerolog.ErrorLevel
	}
}

// NewSlogLogger creates the slog.Logger handed to sutureslog:
//
//	handler := &sutureslog.Handler{Logger: logging.NewSlogLogger()}
func NewSlogLogger() *slog.Logger {
	return slog.New(NewSlogHandler())
}
