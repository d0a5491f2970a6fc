package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"
)

const maxIncludeDepth = 10

// includeWalker overlays included files onto a Config. Later files win for
// scalar settings; switch lists are merged by id with the first occurrence
// kept.
type includeWalker struct {
	seen map[string]bool // absolute paths already loaded, root included
}

func newIncludeWalker(root string) *includeWalker {
	return &includeWalker{seen: map[string]bool{root: true}}
}

// walk loads every file named by patterns, relative to dir, onto cfg.
func (w *includeWalker) walk(cfg *Config, dir string, patterns []string, depth int) error {
	if depth > maxIncludeDepth {
		return fmt.Errorf("includes: max depth %d exceeded", maxIncludeDepth)
	}
	for _, pattern := range patterns {
		files, err := expandInclude(pattern, dir)
		if err != nil {
			return err
		}
		for _, f := range files {
			abs, err := filepath.Abs(f)
			if err != nil {
				return fmt.Errorf("includes: %q: %w", f, err)
			}
			if w.seen[abs] {
				return fmt.Errorf("includes: circular include of %q", abs)
			}
			w.seen[abs] = true
			if err := w.overlay(cfg, abs, depth+1); err != nil {
				return err
			}
		}
	}
	return nil
}

// overlay decodes one included file onto cfg and follows its own includes.
func (w *includeWalker) overlay(cfg *Config, path string, depth int) error {
	if err := validatePermissions(path); err != nil {
		return fmt.Errorf("includes: %w", err)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("includes: %w", err)
	}
	if len(data) == 0 {
		return nil
	}

	have := cfg.Switches
	cfg.Switches, cfg.Includes = nil, nil
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return fmt.Errorf("includes: parse %s: %w", path, err)
	}
	cfg.Switches = mergeSwitches(have, cfg.Switches)

	nested := cfg.Includes
	cfg.Includes = nil
	if len(nested) == 0 {
		return nil
	}
	return w.walk(cfg, filepath.Dir(path), nested, depth)
}

// expandInclude turns an include entry into file paths. Relative entries are
// anchored at dir and may not climb out of it. A glob with no matches yields
// nothing; a literal path is returned as is so a missing file is reported.
func expandInclude(pattern, dir string) ([]string, error) {
	if !filepath.IsAbs(pattern) {
		pattern = filepath.Join(dir, pattern)
	}
	pattern = filepath.Clean(pattern)

	if rel, err := filepath.Rel(dir, pattern); err == nil && strings.HasPrefix(rel, "..") {
		return nil, fmt.Errorf("includes: %q is outside %s", pattern, dir)
	}

	if !strings.ContainsAny(pattern, "*?[") {
		return []string{pattern}, nil
	}
	matches, err := filepath.Glob(pattern)
	if err != nil {
		return nil, fmt.Errorf("includes: bad pattern %q: %w", pattern, err)
	}
	return matches, nil
}
