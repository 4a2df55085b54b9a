// Whaleinit - Minimal Init Process Supervisor for Containers
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/whaleinit

package logmux

import (
	"context"
	"io"

	"github.com/tomtom215/whaleinit/internal/logging"
)

// Stream distinguishes a service's stdout from its stderr.
type Stream uint8

const (
	// Stdout lines are relayed to the init's stdout.
	Stdout Stream = iota
	// Stderr lines are relayed to the init's stderr.
	Stderr
)

// String returns the stream name for log output.
func (s Stream) String() string {
	if s == Stderr {
		return "stderr"
	}
	return "stdout"
}

// LineCap is the maximum relayed line length. Longer lines are split at
// the cap with the tag repeated on each continuation.
const LineCap = 16 * 1024

// Line is one complete (or cap-split) line read from a service pipe.
// Data carries no trailing newline; the Writer appends one.
type Line struct {
	Title  string
	Stream Stream
	Data   []byte
}

// Writer serializes tagged lines onto the init's output streams. All
// writes funnel through its Serve loop, so every line is exactly one
// Write call on the destination and lines are never interleaved
// mid-line.
type Writer struct {
	stdout io.Writer
	stderr io.Writer
	lines  chan Line
}

// NewWriter creates a Writer emitting to the given streams, normally
// os.Stdout and os.Stderr.
func NewWriter(stdout, stderr io.Writer) *Writer {
	return &Writer{
		stdout: stdout,
		stderr: stderr,
		lines:  make(chan Line, 256),
	}
}

// Enqueue submits one line for emission. Blocks when the writer is
// backlogged, which applies pipe-style backpressure to the tail
// goroutines rather than buffering without bound.
func (w *Writer) Enqueue(l Line) {
	w.lines <- l
}

// Serve implements suture.Service. It emits queued lines until the
// context is canceled, then drains whatever is still queued so service
// output written before shutdown is not lost.
func (w *Writer) Serve(ctx context.Context) error {
	for {
		select {
		case l := <-w.lines:
			w.emit(l)
		case <-ctx.Done():
			for {
				select {
				case l := <-w.lines:
					w.emit(l)
				default:
					return ctx.Err()
				}
			}
		}
	}
}

// String implements fmt.Stringer for suture's service naming.
func (w *Writer) String() string {
	return "log-mux"
}

// emit writes "[title] data\n" as a single Write call.
func (w *Writer) emit(l Line) {
	buf := make([]byte, 0, len(l.Title)+len(l.Data)+4)
	buf = append(buf, '[')
	buf = append(buf, l.Title...)
	buf = append(buf, ']', ' ')
	buf = append(buf, l.Data...)
	buf = append(buf, '\n')

	dst := w.stdout
	if l.Stream == Stderr {
		dst = w.stderr
	}
	if _, err := dst.Write(buf); err != nil {
		// The init's own stdout/stderr failing is unrecoverable for this
		// line; note it and keep relaying the rest.
		logging.Error().Err(err).Str("service", l.Title).Str("stream", l.Stream.String()).
			Msg("failed to write service output")
	}
}
