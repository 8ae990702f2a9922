// Package orchestrator drives whole builds: it owns the request graph, the
// worker pool and the cache, and turns entries into bundles on disk.
package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"sync"
	"time"

	"go.trai.ch/zerr"

	"go.trai.ch/knit/internal/core/domain"
	"go.trai.ch/knit/internal/core/ports"
	"go.trai.ch/knit/internal/engine/assetgraph"
	"go.trai.ch/knit/internal/engine/bundlegraph"
	"go.trai.ch/knit/internal/engine/requestgraph"
	"go.trai.ch/knit/internal/engine/scheduler"
	"go.trai.ch/knit/internal/engine/workerpool"
)

// Orchestrator runs builds for one project. Builds are serialized; Invalidate
// may be called at any time.
type Orchestrator struct {
	opts Options
	deps Deps

	cache   ports.Cache
	pool    *workerpool.Pool
	graph   *requestgraph.Graph
	assets  *assetgraph.Builder
	bundles *bundlegraph.Builder

	mu       sync.Mutex
	warmed   bool
	closed   bool
	manifest *domain.BuildManifest
	// outputs maps every file the last build wrote to its content hash.
	outputs map[string]string
}

// New creates an Orchestrator and restores the request graph of the last
// build from the cache, if one was persisted.
func New(ctx context.Context, opts Options, deps Deps) (*Orchestrator, error) {
	if opts.InputFS == nil {
		return nil, zerr.New("input file system is required")
	}
	opts = opts.withDefaults()

	o := &Orchestrator{
		opts:    opts,
		deps:    deps,
		outputs: make(map[string]string),
	}

	if !opts.ShouldDisableCache {
		cache, err := deps.Caches.Open(abs(opts.InputFS.Root(), opts.CacheDir), opts.Compression)
		if err != nil {
			return nil, fmt.Errorf("%w: %w", domain.ErrStoreOpenFailed, err)
		}
		o.cache = cache
	}

	o.pool = workerpool.New(
		assetgraph.NewHandlerFactory(deps.NewPipeline),
		deps.Logger,
		workerpool.Options{WorkerOptions: opts.Workers},
	)
	o.graph = requestgraph.New(requestgraph.Config{
		FS:     opts.InputFS,
		Hasher: deps.Hasher,
		Pool:   o.pool,
		Logger: deps.Logger,
		Cache:  o.cache,
	})
	o.assets = assetgraph.New(deps.Resolver, deps.PipelineName)
	o.bundles = bundlegraph.New(o.assets, deps.Packager, deps.Bundlers...)

	o.restore(ctx)
	return o, nil
}

// restore loads the last manifest. Failures only cost a cold build.
func (o *Orchestrator) restore(ctx context.Context) {
	if o.cache == nil {
		return
	}
	manifest, err := loadManifest(ctx, o.cache)
	if err != nil {
		if !errors.Is(err, domain.ErrNoBuildResult) {
			o.deps.Logger.Warn("ignoring persisted build: " + err.Error())
		}
		return
	}
	o.manifest = manifest

	var snap domain.RequestGraphSnapshot
	if err := loadBlob(ctx, o.cache, manifest.RequestGraphKey, &snap); err != nil {
		o.deps.Logger.Warn("ignoring persisted request graph: " + err.Error())
	} else {
		o.graph.Restore(&snap)
	}

	if manifest.BundleInfoKey != "" {
		var infos []domain.BundleInfo
		if err := loadBlob(ctx, o.cache, manifest.BundleInfoKey, &infos); err != nil {
			o.deps.Logger.Warn("ignoring persisted bundle info: " + err.Error())
			return
		}
		for _, info := range infos {
			o.outputs[info.FilePath] = info.Hash
		}
	}
}

func (o *Orchestrator) reporters() []ports.Reporter {
	out := make([]ports.Reporter, 0, len(o.deps.Reporters)+len(o.opts.AdditionalReporters))
	out = append(out, o.deps.Reporters...)
	return append(out, o.opts.AdditionalReporters...)
}

func (o *Orchestrator) report(ctx context.Context, ev domain.ReporterEvent) {
	for _, r := range o.reporters() {
		r.Report(ctx, ev)
	}
}

func (o *Orchestrator) progress(ctx context.Context, phase domain.BuildPhase) {
	o.report(ctx, domain.ReporterEvent{Type: domain.ReportBuildProgress, Phase: phase})
}

// warm pings every worker once, before the first build.
func (o *Orchestrator) warm(ctx context.Context) error {
	if o.warmed {
		return nil
	}
	if err := workerpool.Ping(ctx, o.pool); err != nil {
		return zerr.Wrap(err, "worker warm-up failed")
	}
	o.warmed = true
	return nil
}

// prepare starts a new build generation with the current env and options.
func (o *Orchestrator) prepare(ctx context.Context) error {
	if o.closed {
		return domain.ErrPoolClosed
	}
	if err := o.warm(ctx); err != nil {
		return err
	}
	o.graph.SetEnv(o.opts.Env)
	o.graph.SetOptions(o.opts.buildOptions())
	changed, err := o.graph.BeginBuild(ctx)
	if err != nil {
		return err
	}
	if changed > 0 {
		o.deps.Logger.Debug("requests invalidated since last build: " + strconv.Itoa(changed))
	}
	return nil
}

// Build runs one build. On failure the result carries the diagnostics and the
// returned error joins them.
func (o *Orchestrator) Build(ctx context.Context) (*domain.BuildResult, error) {
	o.mu.Lock()
	defer o.mu.Unlock()

	start := time.Now()
	result := &domain.BuildResult{}

	session, err := o.deps.Traces.Open(abs(o.opts.InputFS.Root(), o.opts.TracePath))
	if err != nil {
		o.deps.Logger.Warn("tracing disabled: " + err.Error())
		session = nil
	}
	if session != nil {
		defer func() {
			if err := session.Shutdown(context.WithoutCancel(ctx)); err != nil {
				o.deps.Logger.Warn("failed to finish trace: " + err.Error())
			}
		}()
		o.graph.SetTracer(session)
		defer o.graph.SetTracer(nil)
	}

	o.report(ctx, domain.ReporterEvent{
		Type:    domain.ReportBuildStart,
		Message: strings.Join(o.opts.Entries, ", "),
	})

	err = o.build(ctx, result)
	result.RequestTracker = o.graph.Snapshot()
	o.persist(ctx, result, err == nil)
	result.Duration = time.Since(start)

	if err != nil {
		result.Diagnostics = domain.CollectDiagnostics(err)
		o.report(ctx, domain.ReporterEvent{
			Type:        domain.ReportBuildFailure,
			Diagnostics: result.Diagnostics,
			Duration:    result.Duration,
		})
		errs := make([]error, len(result.Diagnostics))
		for i, d := range result.Diagnostics {
			errs[i] = d
		}
		return result, errors.Join(errs...)
	}

	o.report(ctx, domain.ReporterEvent{
		Type:     domain.ReportBuildSuccess,
		Bundles:  result.BundleInfo,
		Duration: result.Duration,
	})
	return result, nil
}

func (o *Orchestrator) build(ctx context.Context, result *domain.BuildResult) error {
	tracer := o.graph.Tracer()
	ctx, span := tracer.Start(ctx, "build", ports.WithKind("build"))
	defer span.End()

	o.progress(ctx, domain.PhaseResolving)
	if err := o.prepare(ctx); err != nil {
		span.RecordError(err)
		return err
	}

	o.progress(ctx, domain.PhaseTransforming)
	assets, err := requestgraph.Run(ctx, o.graph, o.assets.GraphRequest(o.opts.Entries))
	if err != nil {
		span.RecordError(err)
		return err
	}
	result.AssetGraph = assets
	span.SetAttribute("assets", len(assets.Assets))

	o.progress(ctx, domain.PhaseBundling)
	bundles, err := requestgraph.Run(ctx, o.graph, o.bundles.GraphRequest(o.opts.Entries))
	if err != nil {
		span.RecordError(err)
		return err
	}
	result.BundleGraph = bundles
	span.SetAttribute("bundles", len(bundles.Bundles))

	o.progress(ctx, domain.PhasePackaging)
	contents := make([][]byte, len(bundles.Bundles))
	sched := scheduler.NewScheduler(tracer)
	infos, err := sched.Run(ctx, bundles, o.pool.Size(), func(ctx context.Context, idx domain.BundleIndex) (domain.BundleInfo, error) {
		req := o.bundles.PackageRequest(o.opts.Entries, bundles.Bundles[idx].Name)
		packaged, err := requestgraph.Run(ctx, o.graph, req)
		if err != nil {
			return domain.BundleInfo{}, err
		}
		contents[idx] = packaged.Content
		return packaged.Info, nil
	})
	if err != nil {
		span.RecordError(err)
		return err
	}

	o.progress(ctx, domain.PhaseWriting)
	written, err := o.writeOutputs(infos, contents)
	result.BundleInfo = written
	if err != nil {
		span.RecordError(err)
		return err
	}
	return nil
}

// BuildAssetGraph builds only the asset graph. writeToCache controls whether
// request results produced by this call are persisted.
func (o *Orchestrator) BuildAssetGraph(ctx context.Context, writeToCache bool) (*domain.AssetGraph, error) {
	o.mu.Lock()
	defer o.mu.Unlock()

	if err := o.prepare(ctx); err != nil {
		return nil, err
	}
	o.graph.SetPersist(writeToCache && o.cache != nil)
	defer o.graph.SetPersist(o.cache != nil)
	return requestgraph.Run(ctx, o.graph, o.assets.GraphRequest(o.opts.Entries))
}

// Invalidate marks the requests affected by events. It returns how many
// requests changed state.
func (o *Orchestrator) Invalidate(events []domain.InvalidationEvent) int {
	return o.graph.Invalidate(events)
}

// CallAllWorkers runs method on every worker.
func (o *Orchestrator) CallAllWorkers(ctx context.Context, method string, payload []byte) ([]domain.WorkerReply, error) {
	return o.pool.CallAllWorkers(ctx, method, payload)
}

// WorkerStats returns the pool counters.
func (o *Orchestrator) WorkerStats() domain.WorkerStats {
	return o.pool.Stats()
}

// ClearBuildCaches drops every request result, persisted entry and written
// bundle, so the next build starts cold.
func (o *Orchestrator) ClearBuildCaches(ctx context.Context) error {
	o.mu.Lock()
	defer o.mu.Unlock()

	o.graph.Clear()
	o.manifest = nil

	var errs error
	if o.cache != nil {
		if err := o.cache.Clear(ctx); err != nil {
			errs = errors.Join(errs, err)
		}
	}
	for file := range o.outputs {
		if err := o.opts.OutputFS.RemoveAll(file); err != nil {
			errs = errors.Join(errs, zerr.With(zerr.Wrap(err, "failed to remove output"), "file", file))
			continue
		}
		delete(o.outputs, file)
	}
	return errs
}

// Close stops the workers and closes the cache. It is safe to call twice.
func (o *Orchestrator) Close() error {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.closed {
		return nil
	}
	o.closed = true

	errs := o.pool.Close()
	if o.cache != nil {
		errs = errors.Join(errs, o.cache.Close())
	}
	return errs
}
