package orchestrator

import (
	"path/filepath"

	"go.trai.ch/knit/internal/core/domain"
	"go.trai.ch/knit/internal/core/ports"
	"go.trai.ch/knit/internal/engine/assetgraph"
)

// Options configure one Orchestrator. Zero values pick the defaults of
// domain.DefaultProjectConfig.
type Options struct {
	Entries  []string
	InputFS  ports.FileSystem
	OutputFS ports.FileSystem
	// CacheDir and DistDir are relative to the input root unless absolute.
	CacheDir string
	DistDir  string

	DefaultTargetOptions domain.TargetOptions
	FeatureFlags         map[string]bool
	Mode                 domain.BuildMode
	Bundler              string
	ShouldDisableCache   bool
	AdditionalReporters  []ports.Reporter

	Workers     domain.WorkerOptions
	TracePath   string
	Env         map[string]string
	Compression string
}

func (o Options) withDefaults() Options {
	if o.OutputFS == nil {
		o.OutputFS = o.InputFS
	}
	if o.CacheDir == "" {
		o.CacheDir = domain.DefaultCacheDir
	}
	if o.DistDir == "" {
		o.DistDir = domain.DefaultDistDir
	}
	if o.Mode == "" {
		o.Mode = domain.ModeDevelopment
	}
	if o.Bundler == "" {
		o.Bundler = domain.DefaultBundler
	}
	if o.Env == nil {
		o.Env = map[string]string{}
	}
	o.Workers = o.Workers.WithDefaults()
	return o
}

// buildOptions is the option map requests observe.
func (o Options) buildOptions() map[string]string {
	return domain.BuildOptions(o.Mode, o.Bundler, o.DefaultTargetOptions, o.FeatureFlags)
}

// OptionsFromConfig maps a loaded project config onto Options.
func OptionsFromConfig(cfg *domain.ProjectConfig, input ports.FileSystem) Options {
	return Options{
		Entries:              cfg.Entries,
		InputFS:              input,
		CacheDir:             cfg.CacheDir,
		DistDir:              cfg.DistDir,
		DefaultTargetOptions: cfg.DefaultTargetOptions,
		FeatureFlags:         cfg.FeatureFlags,
		Mode:                 cfg.Mode,
		Bundler:              cfg.Bundler,
		ShouldDisableCache:   cfg.ShouldDisableCache,
		Workers:              cfg.Workers,
		TracePath:            cfg.TracePath,
		Compression:          cfg.Compression,
	}
}

// abs anchors a possibly relative path at root.
func abs(root, p string) string {
	if p == "" || filepath.IsAbs(p) {
		return p
	}
	return filepath.Join(root, p)
}

// Deps are the collaborators an Orchestrator builds with.
type Deps struct {
	Logger    ports.Logger
	Hasher    ports.Hasher
	Caches    ports.CacheOpener
	Traces    ports.TraceFactory
	Resolver  ports.Resolver
	Packager  ports.Packager
	Bundlers  []ports.Bundler
	Reporters []ports.Reporter

	// NewPipeline builds the transformer pipeline of one worker.
	NewPipeline func() assetgraph.Pipeline
	// PipelineName identifies the pipeline in asset ids.
	PipelineName string
}
