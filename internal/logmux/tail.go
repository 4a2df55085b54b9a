// Whaleinit - Minimal Init Process Supervisor for Containers
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/whaleinit

package logmux

import (
	"bytes"
	"errors"
	"io"

	"github.com/tomtom215/whaleinit/internal/logging"
)

// CloseFunc is invoked exactly once when a tailed stream reaches EOF.
// It runs on the tail goroutine; implementations must only publish an
// event, never mutate service state directly.
type CloseFunc func(title string, stream Stream)

// Tail starts a goroutine relaying lines from r until EOF, then closes r
// and reports the closure. Read errors other than EOF are logged once
// and treated as EOF; a vanished pipe means the stream is over either
// way.
func (w *Writer) Tail(title string, stream Stream, r io.ReadCloser, onClose CloseFunc) {
	t := &tail{
		title:  title,
		stream: stream,
		w:      w,
		buf:    make([]byte, 0, 512),
	}
	go func() {
		defer r.Close()
		t.run(r)
		if onClose != nil {
			onClose(title, stream)
		}
	}()
}

// tail assembles lines for one pipe.
type tail struct {
	title  string
	stream Stream
	w      *Writer
	buf    []byte
}

func (t *tail) run(r io.Reader) {
	chunk := make([]byte, 4096)
	for {
		n, err := r.Read(chunk)
		if n > 0 {
			t.consume(chunk[:n])
		}
		if err != nil {
			if !errors.Is(err, io.EOF) {
				logging.Warn().Err(err).Str("service", t.title).Str("stream", t.stream.String()).
					Msg("service output read failed")
			}
			// Flush a final unterminated line with a synthesized newline.
			if len(t.buf) > 0 {
				t.emit(t.buf)
				t.buf = t.buf[:0]
			}
			return
		}
	}
}

// consume folds a chunk into lines, splitting at LineCap.
func (t *tail) consume(data []byte) {
	for len(data) > 0 {
		room := LineCap - len(t.buf)

		if i := bytes.IndexByte(data, '\n'); i >= 0 && i <= room {
			t.buf = append(t.buf, data[:i]...)
			t.emit(t.buf)
			t.buf = t.buf[:0]
			data = data[i+1:]
			continue
		}

		// No newline within the cap: fill to the cap and split there.
		if len(data) > room {
			t.buf = append(t.buf, data[:room]...)
			t.emit(t.buf)
			t.buf = t.buf[:0]
			data = data[room:]
			continue
		}

		t.buf = append(t.buf, data...)
		return
	}
}

// emit hands a copy of the line to the writer; t.buf is reused.
func (t *tail) emit(line []byte) {
	data := make([]byte, len(line))
	copy(data, line)
	t.w.Enqueue(Line{Title: t.title, Stream: t.stream, Data: data})
}
