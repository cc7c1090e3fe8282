package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"
)

const maxIncludeDepth = 10

// includeWalker overlays included YAML files onto a Config. seen holds the
// absolute paths already loaded so a cycle is reported instead of followed.
type includeWalker struct {
	seen map[string]bool
}

func newIncludeWalker(root string) *includeWalker {
	return &includeWalker{seen: map[string]bool{root: true}}
}

func includeErr(format string, args ...any) error {
	return fmt.Errorf("config includes: "+format, args...)
}

// expand drains cfg.Includes, overlaying every matched file in order.
// Patterns may be globs and are resolved against dir.
func (w *includeWalker) expand(cfg *Config, dir string, depth int) error {
	if depth > maxIncludeDepth {
		return includeErr("nesting deeper than %d", maxIncludeDepth)
	}
	patterns := cfg.Includes
	cfg.Includes = nil

	for _, pattern := range patterns {
		files, err := matchIncludes(pattern, dir)
		if err != nil {
			return err
		}
		for _, f := range files {
			if err := w.overlay(cfg, f, depth+1); err != nil {
				return err
			}
		}
	}
	return nil
}

func (w *includeWalker) overlay(cfg *Config, file string, depth int) error {
	abs, err := filepath.Abs(file)
	if err != nil {
		return includeErr("resolve %q: %w", file, err)
	}
	if w.seen[abs] {
		return includeErr("circular include of %q", abs)
	}
	w.seen[abs] = true

	if err := validatePermissions(abs); err != nil {
		return includeErr("%w", err)
	}
	data, err := os.ReadFile(abs)
	if err != nil {
		return includeErr("read %q: %w", abs, err)
	}
	if len(data) == 0 {
		return nil
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return includeErr("parse %q: %w", abs, err)
	}
	if len(cfg.Includes) == 0 {
		return nil
	}
	return w.expand(cfg, filepath.Dir(abs), depth)
}

// matchIncludes expands pattern relative to dir and refuses anything outside
// dir. A literal path that does not exist is returned unchanged so the read
// reports it; a glob that matches nothing yields no files.
func matchIncludes(pattern, dir string) ([]string, error) {
	if !filepath.IsAbs(pattern) {
		pattern = filepath.Join(dir, pattern)
	}
	pattern = filepath.Clean(pattern)

	if rel, err := filepath.Rel(dir, pattern); err == nil && strings.HasPrefix(rel, "..") {
		return nil, includeErr("%q is outside the config directory", pattern)
	}

	files, err := filepath.Glob(pattern)
	switch {
	case err != nil:
		return nil, includeErr("bad pattern %q: %w", pattern, err)
	case len(files) == 0 && !strings.ContainsAny(pattern, "*?["):
		return []string{pattern}, nil
	}
	return files, nil
}
