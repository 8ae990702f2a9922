package domain

import (
	"runtime"
	"strconv"
	"strings"
	"time"

	"go.trai.ch/zerr"
)

// BuildMode selects development or production defaults.
type BuildMode string

const (
	// ModeDevelopment favors build speed and debuggability.
	ModeDevelopment BuildMode = "development"
	// ModeProduction favors output size.
	ModeProduction BuildMode = "production"
)

// ParseBuildMode validates a mode string. An empty string means development.
func ParseBuildMode(s string) (BuildMode, error) {
	switch BuildMode(strings.ToLower(strings.TrimSpace(s))) {
	case "", ModeDevelopment:
		return ModeDevelopment, nil
	case ModeProduction:
		return ModeProduction, nil
	default:
		return "", zerr.With(ErrInvalidMode, "mode", s)
	}
}

// FlagConditionalBundling keeps both branches of conditional imports in the graph.
const FlagConditionalBundling = "conditionalBundling"

// TargetOptions are the default output target flags.
type TargetOptions struct {
	ShouldOptimize   bool `json:"shouldOptimize"`
	ShouldScopeHoist bool `json:"shouldScopeHoist"`
	SourceMaps       bool `json:"sourceMaps"`
}

// WorkerOptions configure the worker pool.
type WorkerOptions struct {
	Size        int           `json:"size"`
	MaxRetries  int           `json:"maxRetries"`
	TaskTimeout time.Duration `json:"taskTimeout"`
}

const (
	// DefaultCacheDir is where the cache store lives unless configured.
	DefaultCacheDir = ".knit-cache"
	// DefaultDistDir is where bundles are written unless configured.
	DefaultDistDir = "dist"
	// DefaultBundler is the bundling policy used unless configured.
	DefaultBundler = "split"
	// DefaultMaxRetries bounds how often a crashed task is retried.
	DefaultMaxRetries = 2
)

// WithDefaults fills zero fields.
func (w WorkerOptions) WithDefaults() WorkerOptions {
	if w.Size <= 0 {
		w.Size = runtime.NumCPU()
	}
	if w.MaxRetries < 0 {
		w.MaxRetries = 0
	} else if w.MaxRetries == 0 {
		w.MaxRetries = DefaultMaxRetries
	}
	return w
}

// ProjectConfig is the build configuration read from a knit config file.
// Relative paths are relative to Root.
type ProjectConfig struct {
	Root                 string
	ConfigFile           string
	Entries              []string
	CacheDir             string
	DistDir              string
	Mode                 BuildMode
	Bundler              string
	DefaultTargetOptions TargetOptions
	FeatureFlags         map[string]bool
	Workers              WorkerOptions
	Compression          string
	TracePath            string
	ShouldDisableCache   bool
}

// DefaultProjectConfig returns the configuration used when no file is present.
func DefaultProjectConfig() *ProjectConfig {
	return &ProjectConfig{
		CacheDir:     DefaultCacheDir,
		DistDir:      DefaultDistDir,
		Mode:         ModeDevelopment,
		Bundler:      DefaultBundler,
		FeatureFlags: map[string]bool{},
	}
}

// Build option names as observed by requests. Feature flags are prefixed.
const (
	OptionMode             = "mode"
	OptionBundler          = "bundler"
	OptionShouldOptimize   = "target.shouldOptimize"
	OptionShouldScopeHoist = "target.shouldScopeHoist"
	OptionSourceMaps       = "target.sourceMaps"
	OptionFeatureFlag      = "featureFlags."
)

// BuildOptions flattens the option values requests may observe into a map, so
// each value is tracked and invalidated on its own.
func BuildOptions(mode BuildMode, bundler string, target TargetOptions, flags map[string]bool) map[string]string {
	opts := map[string]string{
		OptionMode:             string(mode),
		OptionBundler:          bundler,
		OptionShouldOptimize:   strconv.FormatBool(target.ShouldOptimize),
		OptionShouldScopeHoist: strconv.FormatBool(target.ShouldScopeHoist),
		OptionSourceMaps:       strconv.FormatBool(target.SourceMaps),
	}
	for name, on := range flags {
		opts[OptionFeatureFlag+name] = strconv.FormatBool(on)
	}
	return opts
}
