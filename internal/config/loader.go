// Whaleinit - Minimal Init Process Supervisor for Containers
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/whaleinit

package config

import (
	"errors"
	"os"
	"path/filepath"
	"strings"

	"github.com/knadh/koanf/parsers/toml/v2"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/providers/rawbytes"
	"github.com/knadh/koanf/v2"
)

// Renderer performs one pass of inline template rendering over the string
// fields of loaded service definitions. Satisfied by *template.Engine.
type Renderer interface {
	RenderString(string) (string, error)
}

// Options selects the configuration sources.
type Options struct {
	// Dir is scanned for *.toml files in lexicographic order.
	// Empty means DefaultDir.
	Dir string

	// GlobalPath is an optional single file read before the directory.
	// Empty means no global file. A missing file at this path is not an
	// error; any other read failure is.
	GlobalPath string
}

// fileSchema is the shape of one TOML file. A file may declare a single
// service at the top level, a [[services]] array, a [[templates]] array,
// or any combination; all shapes merge into the same lists.
type fileSchema struct {
	Title         string            `koanf:"title"`
	Exec          string            `koanf:"exec"`
	Args          []string          `koanf:"args"`
	Essential     bool              `koanf:"essential"`
	Env           map[string]string `koanf:"env"`
	PreHook       string            `koanf:"pre_hook"`
	StopTimeoutMS int64             `koanf:"stop_timeout_ms"`

	Services  []Service  `koanf:"services"`
	Templates []Template `koanf:"templates"`
}

// Load reads and merges every configuration source, renders the inline
// template fields, and validates the result.
//
// Discovery order, which later determines spawn order and (reversed)
// shutdown order: global file first, then directory files sorted by name,
// each file's top-level service before its [[services]] entries.
func Load(opts Options, r Renderer) (*Config, error) {
	if opts.Dir == "" {
		opts.Dir = DefaultDir
	}

	cfg := &Config{}

	globalLoaded, err := loadGlobal(cfg, opts.GlobalPath)
	if err != nil {
		return nil, err
	}

	entries, err := os.ReadDir(opts.Dir)
	if err != nil {
		// A container that keeps everything in the global file does not
		// need the services directory to exist.
		if !(os.IsNotExist(err) && globalLoaded && len(cfg.Services) > 0) {
			return nil, &Error{Kind: KindSchema, Path: opts.Dir, Err: err}
		}
	}
	for _, ent := range entries {
		if ent.IsDir() || !strings.HasSuffix(ent.Name(), ".toml") {
			continue
		}
		path := filepath.Join(opts.Dir, ent.Name())
		raw, err := os.ReadFile(path)
		if err != nil {
			return nil, &Error{Kind: KindSchema, Path: path, Err: err}
		}
		k := koanf.New(".")
		if err := k.Load(rawbytes.Provider(raw), toml.Parser()); err != nil {
			return nil, &Error{Kind: KindParse, Path: path, Err: err}
		}
		if err := appendFile(cfg, k, path); err != nil {
			return nil, err
		}
	}

	if len(cfg.Services) == 0 {
		return nil, &Error{Kind: KindNoServices, Err: errors.New("no services defined")}
	}

	if r != nil {
		if err := renderInline(cfg, r); err != nil {
			return nil, err
		}
	}

	if err := validateConfig(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// loadGlobal reads the optional global file. Reports whether it existed.
func loadGlobal(cfg *Config, path string) (bool, error) {
	if path == "" {
		return false, nil
	}
	if _, err := os.Stat(path); err != nil {
		if os.IsNotExist(err) {
			return false, nil
		}
		return false, &Error{Kind: KindSchema, Path: path, Err: err}
	}
	k := koanf.New(".")
	if err := k.Load(file.Provider(path), toml.Parser()); err != nil {
		return false, &Error{Kind: KindParse, Path: path, Err: err}
	}
	if err := appendFile(cfg, k, path); err != nil {
		return false, err
	}
	return true, nil
}

// appendFile decodes one parsed file and appends its declarations.
func appendFile(cfg *Config, k *koanf.Koanf, path string) error {
	var fs fileSchema
	if err := k.Unmarshal("", &fs); err != nil {
		return &Error{Kind: KindSchema, Path: path, Err: err}
	}

	if fs.Title != "" || fs.Exec != "" {
		cfg.Services = append(cfg.Services, Service{
			Title:         fs.Title,
			Exec:          fs.Exec,
			Args:          fs.Args,
			Essential:     fs.Essential,
			Env:           fs.Env,
			PreHook:       fs.PreHook,
			StopTimeoutMS: fs.StopTimeoutMS,
		})
	}
	cfg.Services = append(cfg.Services, fs.Services...)
	cfg.Templates = append(cfg.Templates, fs.Templates...)
	return nil
}

// renderInline runs one rendering pass over the string fields of every
// service. The rendered forms replace the originals, so everything
// downstream (validation included) sees final values.
func renderInline(cfg *Config, r Renderer) error {
	render := func(s *string) error {
		out, err := r.RenderString(*s)
		if err != nil {
			return err
		}
		*s = out
		return nil
	}

	for i := range cfg.Services {
		svc := &cfg.Services[i]
		if err := render(&svc.Exec); err != nil {
			return err
		}
		if svc.PreHook != "" {
			if err := render(&svc.PreHook); err != nil {
				return err
			}
		}
		for j := range svc.Args {
			if err := render(&svc.Args[j]); err != nil {
				return err
			}
		}
		for key, val := range svc.Env {
			out, err := r.RenderString(val)
			if err != nil {
				return err
			}
			svc.Env[key] = out
		}
	}
	return nil
}
