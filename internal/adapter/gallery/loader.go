// Package gallery loads shareable switch definitions from JSON files.
//
// A gallery file holds either one switch object or {"switches": [...]},
// using the same keys as the YAML config.
package gallery

import (
	"bytes"
	_ "embed"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"sort"

	"github.com/santhosh-tekuri/jsonschema/v5"
	"gopkg.in/yaml.v3"

	"switchd/internal/domain"
	"switchd/internal/infra/config"
)

//go:embed schema.json
var schemaJSON []byte

// Loader validates and decodes gallery files.
type Loader struct {
	schema *jsonschema.Schema
	logger *slog.Logger
}

// NewLoader compiles the gallery schema.
func NewLoader(logger *slog.Logger) (*Loader, error) {
	compiler := jsonschema.NewCompiler()
	if err := compiler.AddResource("gallery.json", bytes.NewReader(schemaJSON)); err != nil {
		return nil, fmt.Errorf("add gallery schema: %w", err)
	}
	compiled, err := compiler.Compile("gallery.json")
	if err != nil {
		return nil, fmt.Errorf("compile gallery schema: %w", err)
	}
	return &Loader{schema: compiled, logger: logger}, nil
}

type galleryFile struct {
	Switches []config.SwitchConfig `yaml:"switches"`
}

// LoadDirs reads every *.json file in dirs, in lexical order per directory.
// Missing directories are skipped with a warning.
func (l *Loader) LoadDirs(dirs []string) ([]config.SwitchConfig, error) {
	var out []config.SwitchConfig
	for _, dir := range dirs {
		matches, err := filepath.Glob(filepath.Join(dir, "*.json"))
		if err != nil {
			return nil, fmt.Errorf("gallery glob %q: %w", dir, err)
		}
		if len(matches) == 0 {
			if _, statErr := os.Stat(dir); errors.Is(statErr, fs.ErrNotExist) {
				l.logger.Warn("gallery directory missing", "dir", dir)
			}
			continue
		}
		sort.Strings(matches)
		for _, path := range matches {
			switches, err := l.LoadFile(path)
			if err != nil {
				return nil, err
			}
			out = append(out, switches...)
		}
	}
	return out, nil
}

// LoadFile validates one gallery file against the schema and decodes it.
func (l *Loader) LoadFile(path string) ([]config.SwitchConfig, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read gallery file: %w", err)
	}
	return l.Parse(filepath.Base(path), raw)
}

// Parse validates and decodes gallery JSON. name labels errors.
func (l *Loader) Parse(name string, raw []byte) ([]config.SwitchConfig, error) {
	var doc any
	if err := json.Unmarshal(raw, &doc); err != nil {
		return nil, domain.NewSubSystemError("gallery", "Loader.Parse", domain.ErrInvalidInput,
			fmt.Sprintf("%s: invalid JSON: %v", name, err))
	}
	if err := l.schema.Validate(doc); err != nil {
		return nil, domain.NewSubSystemError("gallery", "Loader.Parse", domain.ErrInvalidInput,
			fmt.Sprintf("%s: %v", name, err))
	}

	// JSON is valid YAML, so the config's yaml tags decode it directly.
	if obj, ok := doc.(map[string]any); ok {
		if _, many := obj["switches"]; many {
			var f galleryFile
			if err := yaml.Unmarshal(raw, &f); err != nil {
				return nil, domain.NewSubSystemError("gallery", "Loader.Parse", domain.ErrInvalidInput,
					fmt.Sprintf("%s: %v", name, err))
			}
			return f.Switches, nil
		}
	}
	var one config.SwitchConfig
	if err := yaml.Unmarshal(raw, &one); err != nil {
		return nil, domain.NewSubSystemError("gallery", "Loader.Parse", domain.ErrInvalidInput,
			fmt.Sprintf("%s: %v", name, err))
	}
	return []config.SwitchConfig{one}, nil
}

// Merge appends gallery switches to the configured ones. Configured ids win;
// a gallery entry that repeats an earlier gallery id is dropped as well.
func (l *Loader) Merge(configured, gallery []config.SwitchConfig) []config.SwitchConfig {
	seen := make(map[string]bool, len(configured)+len(gallery))
	out := make([]config.SwitchConfig, 0, len(configured)+len(gallery))
	for _, sc := range configured {
		seen[sc.ID] = true
		out = append(out, sc)
	}
	for _, sc := range gallery {
		if seen[sc.ID] {
			l.logger.Info("gallery switch shadowed", "switch", sc.ID)
			continue
		}
		seen[sc.ID] = true
		out = append(out, sc)
	}
	return out
}
