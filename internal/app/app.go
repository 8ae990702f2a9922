// Package app implements the application layer for knit.
package app

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"go.trai.ch/zerr"
	"golang.org/x/sync/errgroup"

	"go.trai.ch/knit/internal/adapters/fs"
	"go.trai.ch/knit/internal/adapters/transformer"
	"go.trai.ch/knit/internal/adapters/watcher"
	"go.trai.ch/knit/internal/core/domain"
	"go.trai.ch/knit/internal/core/ports"
	"go.trai.ch/knit/internal/engine/assetgraph"
	"go.trai.ch/knit/internal/engine/orchestrator"
)

// Adapters are the collaborators the App builds orchestrators from.
type Adapters struct {
	Loader    ports.ConfigLoader
	Logger    ports.Logger
	Caches    ports.CacheOpener
	Traces    ports.TraceFactory
	Hasher    ports.Hasher
	Walker    *fs.Walker
	Resolver  ports.Resolver
	Pipeline  *transformer.Pipeline
	Packager  ports.Packager
	Bundlers  []ports.Bundler
	Reporters []ports.Reporter
	Watchers  *watcher.Factory
}

// App represents the main application logic.
type App struct {
	Adapters
}

// New creates a new App instance.
func New(adapters Adapters) *App {
	return &App{Adapters: adapters}
}

// Overrides are command-line values taking precedence over the config file.
// Zero values keep the configured value.
type Overrides struct {
	Entries      []string
	Mode         string
	CacheDir     string
	DistDir      string
	NoCache      bool
	Bundler      string
	TracePath    string
	FeatureFlags map[string]bool
	Workers      int
}

// LoadConfig reads the config of the project containing dir and applies ov.
// Entries given on the command line are relative to dir.
func (a *App) LoadConfig(dir string, ov Overrides) (*domain.ProjectConfig, error) {
	cfg, err := a.Loader.Load(dir)
	if err != nil {
		return nil, zerr.Wrap(err, "failed to load configuration")
	}

	if len(ov.Entries) > 0 {
		absDir, err := filepath.Abs(dir)
		if err != nil {
			return nil, zerr.Wrap(err, "failed to resolve working directory")
		}
		entries := make([]string, 0, len(ov.Entries))
		for _, e := range ov.Entries {
			rel, err := filepath.Rel(cfg.Root, filepath.Join(absDir, e))
			if err != nil || strings.HasPrefix(rel, "..") {
				return nil, zerr.With(domain.ErrEntryNotFound, "entry", e)
			}
			entries = append(entries, filepath.ToSlash(rel))
		}
		cfg.Entries = entries
	}
	if ov.Mode != "" {
		if cfg.Mode, err = domain.ParseBuildMode(ov.Mode); err != nil {
			return nil, err
		}
	}
	if ov.CacheDir != "" {
		cfg.CacheDir = ov.CacheDir
	}
	if ov.DistDir != "" {
		cfg.DistDir = ov.DistDir
	}
	if ov.NoCache {
		cfg.ShouldDisableCache = true
	}
	if ov.Bundler != "" {
		cfg.Bundler = ov.Bundler
	}
	if ov.TracePath != "" {
		cfg.TracePath = ov.TracePath
	}
	for name, on := range ov.FeatureFlags {
		if cfg.FeatureFlags == nil {
			cfg.FeatureFlags = map[string]bool{}
		}
		cfg.FeatureFlags[name] = on
	}
	if ov.Workers > 0 {
		cfg.Workers.Size = ov.Workers
	}
	return cfg, nil
}

// session is one opened project.
type session struct {
	cfg  *domain.ProjectConfig
	fs   *fs.FileSystem
	orch *orchestrator.Orchestrator
}

func (a *App) open(ctx context.Context, dir string, ov Overrides) (*session, error) {
	cfg, err := a.LoadConfig(dir, ov)
	if err != nil {
		return nil, err
	}
	fsys, err := fs.NewFileSystem(cfg.Root, a.Walker, filepath.Base(cfg.CacheDir), filepath.Base(cfg.DistDir))
	if err != nil {
		return nil, err
	}

	opts := orchestrator.OptionsFromConfig(cfg, fsys)
	opts.Env = environ()
	orch, err := orchestrator.New(ctx, opts, orchestrator.Deps{
		Logger:    a.Logger,
		Hasher:    a.Hasher,
		Caches:    a.Caches,
		Traces:    a.Traces,
		Resolver:  a.Resolver,
		Packager:  a.Packager,
		Bundlers:  a.Bundlers,
		Reporters: a.Reporters,
		NewPipeline: func() assetgraph.Pipeline {
			return transformer.NewPipeline(transformer.Defaults()...)
		},
		PipelineName: a.Pipeline.Name(),
	})
	if err != nil {
		return nil, err
	}
	return &session{cfg: cfg, fs: fsys, orch: orch}, nil
}

func environ() map[string]string {
	env := make(map[string]string)
	for _, kv := range os.Environ() {
		if k, v, ok := strings.Cut(kv, "="); ok {
			env[k] = v
		}
	}
	return env
}

// Build runs one build of the project containing dir.
func (a *App) Build(ctx context.Context, dir string, ov Overrides) (*domain.BuildResult, error) {
	s, err := a.open(ctx, dir, ov)
	if err != nil {
		return nil, err
	}
	defer a.close(s)
	result, err := s.orch.Build(ctx)
	a.logWorkerStats(s)
	return result, err
}

// Clean removes the cache and the outputs of the last build.
func (a *App) Clean(ctx context.Context, dir string, ov Overrides) error {
	s, err := a.open(ctx, dir, ov)
	if err != nil {
		return err
	}
	defer a.close(s)
	if err := s.orch.ClearBuildCaches(ctx); err != nil {
		return err
	}
	a.Logger.Info("removed build caches and outputs")
	return nil
}

// Inspect loads the last persisted build without running anything.
func (a *App) Inspect(ctx context.Context, dir string, ov Overrides) (*domain.BuildResult, error) {
	cfg, err := a.LoadConfig(dir, ov)
	if err != nil {
		return nil, err
	}
	cacheDir := cfg.CacheDir
	if !filepath.IsAbs(cacheDir) {
		cacheDir = filepath.Join(cfg.Root, cacheDir)
	}
	return orchestrator.LoadResult(ctx, a.Caches, cacheDir, cfg.Compression)
}

// PingWorkers starts the worker pool and pings every worker.
func (a *App) PingWorkers(ctx context.Context, dir string, ov Overrides) ([]domain.WorkerReply, error) {
	s, err := a.open(ctx, dir, ov)
	if err != nil {
		return nil, err
	}
	defer a.close(s)
	return s.orch.CallAllWorkers(ctx, domain.MethodPing, nil)
}

// Watch builds once, then rebuilds whenever a change invalidates a request.
// It returns when ctx is done.
func (a *App) Watch(ctx context.Context, dir string, ov Overrides) error {
	s, err := a.open(ctx, dir, ov)
	if err != nil {
		return err
	}
	defer a.close(s)

	// Failures are reported; watching goes on.
	_, _ = s.orch.Build(ctx)

	w, err := a.Watchers.New(s.cfg.CacheDir, s.cfg.DistDir)
	if err != nil {
		return err
	}
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	if err := w.Start(ctx, s.fs.Root()); err != nil {
		return err
	}
	defer func() { _ = w.Stop() }()

	rebuild := make(chan struct{}, 1)
	debouncer := watcher.NewDebouncer(watcher.DefaultDebounceWindow, func(events []domain.InvalidationEvent) {
		if s.orch.Invalidate(events) == 0 {
			return
		}
		select {
		case rebuild <- struct{}{}:
		default:
		}
	})

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		for ev := range w.Events() {
			inv := watcher.ToInvalidation(ev)
			rel, ok := s.fs.Rel(inv.Path)
			if !ok {
				continue
			}
			inv.Path = rel
			debouncer.Add(inv)
		}
		return nil
	})
	g.Go(func() error {
		for {
			select {
			case <-ctx.Done():
				return nil
			case <-rebuild:
				a.Logger.Debug("change detected, rebuilding")
				_, _ = s.orch.Build(ctx)
			}
		}
	})
	return g.Wait()
}

func (a *App) logWorkerStats(s *session) {
	st := s.orch.WorkerStats()
	a.Logger.Debug(fmt.Sprintf("workers: %d, dispatched %d, failed %d, crashes %d, respawns %d",
		st.Workers, st.Dispatched, st.Failed, st.Crashes, st.Respawns))
}

func (a *App) close(s *session) {
	if err := s.orch.Close(); err != nil {
		a.Logger.Warn("failed to close build session: " + err.Error())
	}
}
