// Whaleinit - Minimal Init Process Supervisor for Containers
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/whaleinit

package template

import (
	"io/fs"
	"os"
	"path/filepath"
)

// FileSpec describes one file template: read Src, render, write Dest.
// Both paths are themselves rendered before use.
type FileSpec struct {
	Src  string
	Dest string
}

// RenderFile renders a single file template.
//
// The destination is replaced atomically: the rendered output is written
// to a temporary file in the destination directory, fsynced, and renamed
// over Dest. A crash mid-render never leaves a partial destination file.
//
// The destination mode is 0644 for new files; an existing destination
// keeps its mode. A missing parent directory is created.
func (e *Engine) RenderFile(spec FileSpec) error {
	src, err := e.RenderString(spec.Src)
	if err != nil {
		return pathError(err, spec.Src)
	}
	dest, err := e.RenderString(spec.Dest)
	if err != nil {
		return pathError(err, spec.Dest)
	}

	raw, err := os.ReadFile(src)
	if err != nil {
		return &Error{Kind: KindRead, Path: src, Err: err}
	}
	out, err := e.RenderString(string(raw))
	if err != nil {
		return pathError(err, src)
	}

	mode := fs.FileMode(0o644)
	if fi, err := os.Stat(dest); err == nil {
		mode = fi.Mode().Perm()
	}

	if err := os.MkdirAll(filepath.Dir(dest), 0o755); err != nil {
		return &Error{Kind: KindWrite, Path: dest, Err: err}
	}
	if err := writeFileAtomic(dest, []byte(out), mode); err != nil {
		return &Error{Kind: KindWrite, Path: dest, Err: err}
	}
	return nil
}

// RenderFiles renders every file template in order, stopping at the first
// failure. Called once during startup, before any service is spawned.
func (e *Engine) RenderFiles(specs []FileSpec) error {
	for _, spec := range specs {
		if err := e.RenderFile(spec); err != nil {
			return err
		}
	}
	return nil
}

// writeFileAtomic writes data to a sibling temp file, fsyncs, and renames
// it over dest.
func writeFileAtomic(dest string, data []byte, mode fs.FileMode) error {
	dir := filepath.Dir(dest)
	tmp, err := os.CreateTemp(dir, "."+filepath.Base(dest)+".tmp-*")
	if err != nil {
		return err
	}
	tmpName := tmp.Name()
	defer os.Remove(tmpName) // no-op after successful rename

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Chmod(mode); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	return os.Rename(tmpName, dest)
}

// pathError stamps a path onto an inline-render error.
func pathError(err error, path string) error {
	if terr, ok := err.(*Error); ok && terr.Path == "" {
		terr.Path = path
		return terr
	}
	return err
}
