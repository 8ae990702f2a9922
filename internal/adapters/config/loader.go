// Package config discovers and decodes the knit project configuration.
package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/hashicorp/hcl/v2"
	"github.com/hashicorp/hcl/v2/gohcl"
	"github.com/hashicorp/hcl/v2/hclparse"
	"github.com/tidwall/jsonc"
	"github.com/zclconf/go-cty/cty"
	"go.trai.ch/knit/internal/core/domain"
	"go.trai.ch/knit/internal/core/ports"
	"go.trai.ch/zerr"
	"gopkg.in/yaml.v3"
)

var _ ports.ConfigLoader = (*Loader)(nil)

// Loader implements ports.ConfigLoader for YAML, HCL and JSONC files.
type Loader struct {
	Logger ports.Logger
}

// NewLoader creates a new Loader with the given logger.
func NewLoader(logger ports.Logger) *Loader {
	return &Loader{Logger: logger}
}

// Load finds the nearest config file in dir or its parents and applies it to
// the defaults. Without a config file the defaults are rooted at dir.
func (l *Loader) Load(dir string) (*domain.ProjectConfig, error) {
	abs, err := filepath.Abs(dir)
	if err != nil {
		return nil, zerr.With(fmt.Errorf("%w: %w", domain.ErrConfigReadFailed, err), "dir", dir)
	}

	cfg := domain.DefaultProjectConfig()
	cfg.Root = abs

	path, found := l.find(abs)
	if !found {
		l.Logger.Debug("no config file found, using defaults")
		return cfg, nil
	}

	file, err := decode(path)
	if err != nil {
		return nil, err
	}
	cfg.Root = filepath.Dir(path)
	cfg.ConfigFile = path
	if err := apply(cfg, file); err != nil {
		return nil, zerr.With(err, "path", path)
	}
	return cfg, nil
}

func (l *Loader) find(dir string) (string, bool) {
	for current := dir; ; {
		var found []string
		for _, name := range candidates {
			if info, err := os.Stat(filepath.Join(current, name)); err == nil && !info.IsDir() {
				found = append(found, name)
			}
		}
		if len(found) > 0 {
			if len(found) > 1 {
				l.Logger.Warn(fmt.Sprintf("multiple config files in %s, using %s and ignoring %s",
					current, found[0], strings.Join(found[1:], ", ")))
			}
			return filepath.Join(current, found[0]), true
		}
		parent := filepath.Dir(current)
		if parent == current {
			return "", false
		}
		current = parent
	}
}

func decode(path string) (*Knitfile, error) {
	data, err := os.ReadFile(path) //nolint:gosec // path is discovered under the project directory
	if err != nil {
		return nil, zerr.With(fmt.Errorf("%w: %w", domain.ErrConfigReadFailed, err), "path", path)
	}

	var file Knitfile
	switch filepath.Ext(path) {
	case ".yaml", ".yml":
		err = yaml.Unmarshal(data, &file)
	case ".hcl":
		err = decodeHCL(path, data, &file)
	default:
		err = json.Unmarshal(jsonc.ToJSON(data), &file)
	}
	if err != nil {
		return nil, zerr.With(fmt.Errorf("%w: %w", domain.ErrConfigParseFailed, err), "path", path)
	}
	return &file, nil
}

func decodeHCL(path string, data []byte, out *Knitfile) error {
	parser := hclparse.NewParser()
	f, diags := parser.ParseHCL(data, path)
	if diags.HasErrors() {
		return diags
	}
	if diags := gohcl.DecodeBody(f.Body, evalContext(), out); diags.HasErrors() {
		return diags
	}
	return nil
}

// evalContext exposes the process environment as env.NAME.
func evalContext() *hcl.EvalContext {
	env := make(map[string]cty.Value)
	for _, kv := range os.Environ() {
		if k, v, ok := strings.Cut(kv, "="); ok && validIdentifier(k) {
			env[k] = cty.StringVal(v)
		}
	}
	return &hcl.EvalContext{
		Variables: map[string]cty.Value{"env": cty.ObjectVal(env)},
	}
}

// validIdentifier reports whether name can be used as an attribute in an
// HCL traversal.
func validIdentifier(name string) bool {
	if name == "" {
		return false
	}
	for i, r := range name {
		switch {
		case r == '_', r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z':
		case i > 0 && (r == '-' || (r >= '0' && r <= '9')):
		default:
			return false
		}
	}
	return true
}

func apply(cfg *domain.ProjectConfig, file *Knitfile) error {
	if len(file.Entries) > 0 {
		cfg.Entries = file.Entries
	}
	if file.CacheDir != "" {
		cfg.CacheDir = file.CacheDir
	}
	if file.DistDir != "" {
		cfg.DistDir = file.DistDir
	}
	if file.Mode != "" {
		mode, err := domain.ParseBuildMode(file.Mode)
		if err != nil {
			return err
		}
		cfg.Mode = mode
	}
	if file.Bundler != "" {
		cfg.Bundler = file.Bundler
	}
	cfg.Compression = file.Compression
	cfg.TracePath = file.Trace
	cfg.ShouldDisableCache = file.DisableCache
	for k, v := range file.FeatureFlags {
		cfg.FeatureFlags[k] = v
	}
	if t := file.Target; t != nil {
		cfg.DefaultTargetOptions = domain.TargetOptions{
			ShouldOptimize:   t.ShouldOptimize,
			ShouldScopeHoist: t.ShouldScopeHoist,
			SourceMaps:       t.SourceMaps,
		}
	}
	if w := file.Workers; w != nil {
		cfg.Workers.Size = w.Size
		cfg.Workers.MaxRetries = w.MaxRetries
		if w.TaskTimeout != "" {
			d, err := time.ParseDuration(w.TaskTimeout)
			if err != nil {
				return zerr.With(fmt.Errorf("%w: %w", domain.ErrConfigParseFailed, err), "workers.taskTimeout", w.TaskTimeout)
			}
			cfg.Workers.TaskTimeout = d
		}
	}
	return nil
}
