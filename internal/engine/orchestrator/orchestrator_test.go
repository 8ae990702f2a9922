package orchestrator_test

import (
	"context"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"

	"go.trai.ch/knit/internal/adapters/bundler"
	"go.trai.ch/knit/internal/adapters/cas"
	"go.trai.ch/knit/internal/adapters/codec"
	"go.trai.ch/knit/internal/adapters/fs"
	"go.trai.ch/knit/internal/adapters/resolver"
	"go.trai.ch/knit/internal/adapters/telemetry"
	"go.trai.ch/knit/internal/adapters/transformer"
	"go.trai.ch/knit/internal/core/domain"
	"go.trai.ch/knit/internal/core/ports"
	"go.trai.ch/knit/internal/core/ports/mocks"
	"go.trai.ch/knit/internal/engine/assetgraph"
	"go.trai.ch/knit/internal/engine/orchestrator"
)

// countingPipeline counts transform calls across all workers.
type countingPipeline struct {
	inner *transformer.Pipeline
	calls *atomic.Int32
}

func (p countingPipeline) Run(ctx context.Context, unit *domain.TransformUnit) error {
	p.calls.Add(1)
	return p.inner.Run(ctx, unit)
}

type project struct {
	root       string
	log        *mocks.MockLogger
	caches     *cas.Opener
	transforms atomic.Int32
}

var app = map[string]string{
	"src/index.js": "import './a.js';\nimport('./lazy.js');\n",
	"src/a.js":     "import { b } from './b';\nexport const a = b;\n",
	"src/b.js":     "export const b = 1;\n",
	"src/lazy.js":  "export default 2;\n",
}

func newProject(t *testing.T, files map[string]string) *project {
	t.Helper()
	ctrl := gomock.NewController(t)
	log := mocks.NewMockLogger(ctrl)
	log.EXPECT().Debug(gomock.Any()).AnyTimes()
	log.EXPECT().Info(gomock.Any()).AnyTimes()
	log.EXPECT().Warn(gomock.Any()).AnyTimes()

	p := &project{root: t.TempDir(), log: log, caches: cas.NewOpener(log)}
	for name, content := range files {
		p.write(t, name, content)
	}
	return p
}

func (p *project) write(t *testing.T, name, content string) {
	t.Helper()
	path := filepath.Join(p.root, filepath.FromSlash(name))
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o750))
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
}

func (p *project) read(t *testing.T, name string) string {
	t.Helper()
	data, err := os.ReadFile(filepath.Join(p.root, filepath.FromSlash(name)))
	require.NoError(t, err)
	return string(data)
}

func (p *project) exists(name string) bool {
	_, err := os.Stat(filepath.Join(p.root, filepath.FromSlash(name)))
	return err == nil
}

func (p *project) open(t *testing.T, configure ...func(*orchestrator.Options)) *orchestrator.Orchestrator {
	t.Helper()
	fsys, err := fs.NewFileSystem(p.root, fs.NewWalker(), domain.DefaultCacheDir, domain.DefaultDistDir)
	require.NoError(t, err)

	opts := orchestrator.Options{
		Entries: []string{"src/index.js"},
		InputFS: fsys,
		Workers: domain.WorkerOptions{Size: 2},
	}
	for _, c := range configure {
		c(&opts)
	}

	pipeline := transformer.NewPipeline(transformer.Defaults()...)
	o, err := orchestrator.New(context.Background(), opts, orchestrator.Deps{
		Logger:   p.log,
		Hasher:   fs.NewHasher(),
		Caches:   p.caches,
		Traces:   telemetry.NewFactory(),
		Resolver: resolver.New(),
		Packager: bundler.NewPackager(),
		Bundlers: bundler.All(),
		NewPipeline: func() assetgraph.Pipeline {
			return countingPipeline{inner: transformer.NewPipeline(transformer.Defaults()...), calls: &p.transforms}
		},
		PipelineName: pipeline.Name(),
	})
	require.NoError(t, err)
	t.Cleanup(func() { _ = o.Close() })
	return o
}

func outputs(infos []domain.BundleInfo) []string {
	out := make([]string, 0, len(infos))
	for _, info := range infos {
		out = append(out, info.FilePath)
	}
	return out
}

func TestBuild_WritesBundles(t *testing.T) {
	p := newProject(t, app)
	o := p.open(t)

	result, err := o.Build(context.Background())
	require.NoError(t, err)

	assert.Equal(t, 4, result.AssetGraph.Len())
	assert.ElementsMatch(t, []string{"dist/index.js", "dist/lazy.js"}, outputs(result.BundleInfo))
	for _, info := range result.BundleInfo {
		content := p.read(t, info.FilePath)
		assert.Equal(t, domain.HashBytes([]byte(content)), info.Hash, info.FilePath)
		assert.Equal(t, len(content), info.Size)
	}
	assert.Contains(t, p.read(t, "dist/index.js"), "// child lazy.js ")
	assert.Empty(t, result.Diagnostics)
	assert.Equal(t, 4, result.RequestTracker.CountByKind()[domain.KindAsset])
	assert.Equal(t, int32(4), p.transforms.Load())

	stats := o.WorkerStats()
	assert.Equal(t, 2, stats.Workers)
	assert.Equal(t, int64(4), stats.ByMethod[domain.MethodTransform])
}

func TestBuild_RebuildIsIdempotent(t *testing.T) {
	p := newProject(t, app)
	o := p.open(t)

	first, err := o.Build(context.Background())
	require.NoError(t, err)
	index := p.read(t, "dist/index.js")

	second, err := o.Build(context.Background())
	require.NoError(t, err)
	assert.Equal(t, int32(4), p.transforms.Load(), "nothing is transformed twice")
	assert.Equal(t, first.BundleInfo, second.BundleInfo)
	assert.Equal(t, index, p.read(t, "dist/index.js"))
}

func TestBuild_RestartReusesCache(t *testing.T) {
	p := newProject(t, app)
	o := p.open(t)
	first, err := o.Build(context.Background())
	require.NoError(t, err)
	require.NoError(t, o.Close())

	p.transforms.Store(0)
	restarted := p.open(t)
	second, err := restarted.Build(context.Background())
	require.NoError(t, err)

	assert.Zero(t, p.transforms.Load())
	assert.Equal(t, first.BundleInfo, second.BundleInfo)
}

func TestBuild_RetransformsOnlyChangedFiles(t *testing.T) {
	p := newProject(t, app)
	o := p.open(t)
	_, err := o.Build(context.Background())
	require.NoError(t, err)
	before := p.read(t, "dist/index.js")

	p.write(t, "src/lazy.js", "export default 3;\n")
	result, err := o.Build(context.Background())
	require.NoError(t, err)

	assert.Equal(t, int32(5), p.transforms.Load())
	assert.Contains(t, p.read(t, "dist/lazy.js"), "export default 3;")
	assert.NotEqual(t, before, p.read(t, "dist/index.js"), "the parent lists the new child hash")
	assert.Len(t, result.BundleInfo, 2)
}

func TestBuild_InvalidateFromWatchEvents(t *testing.T) {
	p := newProject(t, app)
	o := p.open(t)
	_, err := o.Build(context.Background())
	require.NoError(t, err)

	p.write(t, "src/b.js", "export const b = 2;\n")
	changed := o.Invalidate([]domain.InvalidationEvent{{Kind: domain.FileChanged, Path: "src/b.js"}})
	assert.Positive(t, changed)

	_, err = o.Build(context.Background())
	require.NoError(t, err)
	assert.Equal(t, int32(5), p.transforms.Load())
	assert.Contains(t, p.read(t, "dist/index.js"), "export const b = 2;")
}

func TestBuild_RemovesStaleOutputs(t *testing.T) {
	t.Run("rebuild", func(t *testing.T) {
		p := newProject(t, app)
		o := p.open(t)
		_, err := o.Build(context.Background())
		require.NoError(t, err)
		require.True(t, p.exists("dist/lazy.js"))

		p.write(t, "src/index.js", "import './a.js';\n")
		result, err := o.Build(context.Background())
		require.NoError(t, err)

		assert.Equal(t, []string{"dist/index.js"}, outputs(result.BundleInfo))
		assert.False(t, p.exists("dist/lazy.js"))
	})

	t.Run("restart", func(t *testing.T) {
		p := newProject(t, app)
		o := p.open(t)
		_, err := o.Build(context.Background())
		require.NoError(t, err)
		require.NoError(t, o.Close())

		p.write(t, "src/index.js", "import './a.js';\n")
		_, err = p.open(t).Build(context.Background())
		require.NoError(t, err)
		assert.False(t, p.exists("dist/lazy.js"))
	})
}

// failingFS fails every write while fail is set.
type failingFS struct {
	ports.FileSystem
	fail *atomic.Bool
}

func (f failingFS) WriteFile(name string, data []byte) error {
	if f.fail.Load() {
		return errors.New("disk full")
	}
	return f.FileSystem.WriteFile(name, data)
}

func TestBuild_FailedWriteIsRetried(t *testing.T) {
	p := newProject(t, map[string]string{"src/index.js": "export default 'AAAA';\n"})
	var fail atomic.Bool
	o := p.open(t, func(opts *orchestrator.Options) {
		opts.OutputFS = failingFS{FileSystem: opts.InputFS, fail: &fail}
	})
	ctx := context.Background()

	_, err := o.Build(ctx)
	require.NoError(t, err)
	require.Contains(t, p.read(t, "dist/index.js"), "AAAA")

	fail.Store(true)
	p.write(t, "src/index.js", "export default 'BBBB';\n")
	_, err = o.Build(ctx)
	require.ErrorIs(t, err, domain.ErrOutputWriteFailed)
	assert.Contains(t, p.read(t, "dist/index.js"), "AAAA")

	fail.Store(false)
	_, err = o.Build(ctx)
	require.NoError(t, err)
	content := p.read(t, "dist/index.js")
	assert.Contains(t, content, "BBBB")
	assert.NotContains(t, content, "AAAA")
}

func TestClearBuildCaches(t *testing.T) {
	ctx := context.Background()

	t.Run("rebuild", func(t *testing.T) {
		p := newProject(t, app)
		o := p.open(t)
		_, err := o.Build(ctx)
		require.NoError(t, err)
		require.Contains(t, p.read(t, "dist/index.js"), "export const b = 1;")

		p.write(t, "src/b.js", "export const b = 'BBBB';\n")
		require.NoError(t, o.ClearBuildCaches(ctx))
		assert.False(t, p.exists("dist/index.js"))
		assert.False(t, p.exists("dist/lazy.js"))

		_, err = orchestrator.LoadResult(ctx, p.caches, filepath.Join(p.root, domain.DefaultCacheDir), "")
		require.ErrorIs(t, err, domain.ErrNoBuildResult)

		_, err = o.Build(ctx)
		require.NoError(t, err)
		assert.Equal(t, int32(8), p.transforms.Load(), "a cleared build starts cold")
		index := p.read(t, "dist/index.js")
		assert.Contains(t, index, "BBBB")
		assert.NotContains(t, index, "export const b = 1;")
		assert.True(t, p.exists("dist/lazy.js"))

		_, err = o.Build(ctx)
		require.NoError(t, err)
		assert.Equal(t, int32(8), p.transforms.Load(), "the cleared cache is refilled")
		assert.Equal(t, index, p.read(t, "dist/index.js"))
	})

	t.Run("restart", func(t *testing.T) {
		p := newProject(t, app)
		o := p.open(t)
		_, err := o.Build(ctx)
		require.NoError(t, err)
		require.NoError(t, o.Close())

		p.write(t, "src/b.js", "export const b = 'CCCC';\n")
		restarted := p.open(t)
		require.NoError(t, restarted.ClearBuildCaches(ctx))
		p.transforms.Store(0)

		_, err = restarted.Build(ctx)
		require.NoError(t, err)
		assert.Equal(t, int32(4), p.transforms.Load(), "nothing is served from the persisted cache")
		index := p.read(t, "dist/index.js")
		assert.Contains(t, index, "CCCC")
		assert.NotContains(t, index, "export const b = 1;")
		require.NoError(t, restarted.Close())

		p.transforms.Store(0)
		_, err = p.open(t).Build(ctx)
		require.NoError(t, err)
		assert.Zero(t, p.transforms.Load(), "the refilled cache survives a restart")
		assert.Equal(t, index, p.read(t, "dist/index.js"))
	})
}

// recorder collects reporter events.
type recorder struct {
	mu     sync.Mutex
	events []domain.ReporterEvent
}

func (r *recorder) record(_ context.Context, ev domain.ReporterEvent) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, ev)
}

func (r *recorder) types() []domain.ReportType {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]domain.ReportType, 0, len(r.events))
	for _, ev := range r.events {
		if ev.Type != domain.ReportBuildProgress {
			out = append(out, ev.Type)
		}
	}
	return out
}

func reporter(t *testing.T, rec *recorder) ports.Reporter {
	t.Helper()
	r := mocks.NewMockReporter(gomock.NewController(t))
	r.EXPECT().Report(gomock.Any(), gomock.Any()).Do(rec.record).AnyTimes()
	return r
}

func TestBuild_FailureReportsDiagnostics(t *testing.T) {
	p := newProject(t, map[string]string{
		"src/index.js": "import './missing';\nimport './bad.js';\n",
		"src/bad.js":   "import \"oops\n",
	})
	rec := &recorder{}
	o := p.open(t, func(opts *orchestrator.Options) {
		opts.AdditionalReporters = []ports.Reporter{reporter(t, rec)}
	})

	result, err := o.Build(context.Background())
	require.Error(t, err)
	require.ErrorIs(t, err, domain.ErrResolution)
	require.ErrorIs(t, err, domain.ErrTransform)
	assert.Len(t, result.Diagnostics, 2)
	assert.Nil(t, result.BundleInfo)
	assert.False(t, p.exists("dist"))

	assert.Equal(t, []domain.ReportType{domain.ReportBuildStart, domain.ReportBuildFailure}, rec.types())
	last := rec.events[len(rec.events)-1]
	assert.Len(t, last.Diagnostics, 2)
}

func TestBuild_ReportsPhases(t *testing.T) {
	p := newProject(t, app)
	rec := &recorder{}
	o := p.open(t, func(opts *orchestrator.Options) {
		opts.AdditionalReporters = []ports.Reporter{reporter(t, rec)}
	})

	_, err := o.Build(context.Background())
	require.NoError(t, err)

	var phases []domain.BuildPhase
	for _, ev := range rec.events {
		if ev.Type == domain.ReportBuildProgress {
			phases = append(phases, ev.Phase)
		}
	}
	assert.Equal(t, []domain.BuildPhase{
		domain.PhaseResolving,
		domain.PhaseTransforming,
		domain.PhaseBundling,
		domain.PhasePackaging,
		domain.PhaseWriting,
	}, phases)
	assert.Equal(t, []domain.ReportType{domain.ReportBuildStart, domain.ReportBuildSuccess}, rec.types())
	assert.Len(t, rec.events[len(rec.events)-1].Bundles, 2)
}

func TestBuild_BundlerOption(t *testing.T) {
	p := newProject(t, app)
	o := p.open(t, func(opts *orchestrator.Options) {
		opts.Bundler = bundler.NameSingle
	})

	result, err := o.Build(context.Background())
	require.NoError(t, err)
	assert.Equal(t, bundler.NameSingle, result.BundleGraph.Bundler)
	assert.Equal(t, []string{"dist/index.js"}, outputs(result.BundleInfo))
	assert.Equal(t, 4, result.AssetGraph.Len())
}

func TestBuild_FeatureFlags(t *testing.T) {
	files := map[string]string{
		"src/index.js": "const impl = importCond('beta', './new.js', './old.js');\n",
		"src/new.js":   "export default 'new';\n",
		"src/old.js":   "export default 'old';\n",
	}
	p := newProject(t, files)
	o := p.open(t, func(opts *orchestrator.Options) {
		opts.FeatureFlags = map[string]bool{"beta": true}
	})

	_, err := o.Build(context.Background())
	require.NoError(t, err)
	index := p.read(t, "dist/index.js")
	assert.Contains(t, index, "export default 'new';")
	assert.NotContains(t, index, "export default 'old';")
}

func TestBuild_WritesTrace(t *testing.T) {
	p := newProject(t, app)
	o := p.open(t, func(opts *orchestrator.Options) {
		opts.TracePath = "trace.json"
	})

	_, err := o.Build(context.Background())
	require.NoError(t, err)

	var events []struct {
		Name string `json:"name"`
		Cat  string `json:"cat"`
	}
	require.NoError(t, json.Unmarshal([]byte(p.read(t, "trace.json")), &events))
	var kinds []string
	for _, ev := range events {
		kinds = append(kinds, ev.Cat)
	}
	assert.Contains(t, kinds, "build")
	assert.Contains(t, kinds, string(domain.KindAsset))
	assert.Contains(t, kinds, "bundle")
}

func TestBuild_UnopenableTraceStillBuilds(t *testing.T) {
	p := newProject(t, app)
	p.write(t, "blocker", "")
	o := p.open(t, func(opts *orchestrator.Options) {
		opts.TracePath = "blocker/trace.json"
	})

	result, err := o.Build(context.Background())
	require.NoError(t, err)
	assert.Len(t, result.BundleInfo, 2)
	assert.False(t, p.exists("blocker/trace.json"))
	assert.Equal(t, int32(4), p.transforms.Load())
}

func TestBuild_DisabledCachePersistsNothing(t *testing.T) {
	p := newProject(t, app)
	o := p.open(t, func(opts *orchestrator.Options) {
		opts.ShouldDisableCache = true
	})
	_, err := o.Build(context.Background())
	require.NoError(t, err)
	require.NoError(t, o.Close())
	assert.False(t, p.exists(domain.DefaultCacheDir))

	_, err = p.open(t, func(opts *orchestrator.Options) {
		opts.ShouldDisableCache = true
	}).Build(context.Background())
	require.NoError(t, err)
	assert.Equal(t, int32(8), p.transforms.Load())
}

func TestBuildAssetGraph(t *testing.T) {
	p := newProject(t, app)
	o := p.open(t)

	graph, err := o.BuildAssetGraph(context.Background(), false)
	require.NoError(t, err)
	assert.Equal(t, 4, graph.Len())

	_, err = o.Build(context.Background())
	require.NoError(t, err)
	assert.Equal(t, int32(4), p.transforms.Load(), "the asset graph is reused in memory")
}

func TestLoadResult(t *testing.T) {
	p := newProject(t, app)
	dir := filepath.Join(p.root, domain.DefaultCacheDir)

	o := p.open(t)
	_, err := orchestrator.LoadResult(context.Background(), p.caches, dir, "")
	require.ErrorIs(t, err, domain.ErrNoBuildResult)

	built, err := o.Build(context.Background())
	require.NoError(t, err)
	require.NoError(t, o.Close())

	loaded, err := orchestrator.LoadResult(context.Background(), p.caches, dir, "")
	require.NoError(t, err)
	assert.Equal(t, built.BundleInfo, loaded.BundleInfo)
	assert.Equal(t, 4, loaded.AssetGraph.Len())
	assert.Len(t, loaded.BundleGraph.Bundles, 2)
	assert.Equal(t, built.RequestTracker.CountByState(), loaded.RequestTracker.CountByState())
}

func TestLoadResult_UndecodableManifest(t *testing.T) {
	p := newProject(t, app)
	ctx := context.Background()
	dir := filepath.Join(p.root, domain.DefaultCacheDir)

	store, err := p.caches.Open(dir, "")
	require.NoError(t, err)
	blob, err := codec.Marshal("not a manifest")
	require.NoError(t, err)
	require.NoError(t, store.Set(ctx, "bad", blob))
	require.NoError(t, store.SetRef(ctx, domain.RefLastBuild, "bad"))
	require.NoError(t, store.Close())

	_, err = orchestrator.LoadResult(ctx, p.caches, dir, "")
	require.ErrorContains(t, err, "failed to decode persisted blob")
}

func TestCallAllWorkers(t *testing.T) {
	p := newProject(t, app)
	o := p.open(t)

	replies, err := o.CallAllWorkers(context.Background(), domain.MethodPing, nil)
	require.NoError(t, err)
	require.Len(t, replies, 2)
	for _, r := range replies {
		assert.Equal(t, domain.PingReply, string(r.Payload))
	}
}

func TestBuild_RequiresEntries(t *testing.T) {
	p := newProject(t, app)
	fsys, err := fs.NewFileSystem(p.root, fs.NewWalker())
	require.NoError(t, err)

	_, err = orchestrator.New(context.Background(), orchestrator.Options{}, orchestrator.Deps{})
	require.Error(t, err)

	o := p.open(t, func(opts *orchestrator.Options) {
		opts.InputFS = fsys
		opts.Entries = nil
	})
	_, err = o.Build(context.Background())
	require.ErrorIs(t, err, domain.ErrNoEntries)
}

func TestClose_IsIdempotent(t *testing.T) {
	p := newProject(t, app)
	o := p.open(t)
	require.NoError(t, o.Close())
	require.NoError(t, o.Close())

	_, err := o.Build(context.Background())
	require.ErrorIs(t, err, domain.ErrPoolClosed)
}
