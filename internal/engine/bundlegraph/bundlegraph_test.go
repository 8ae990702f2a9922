package bundlegraph_test

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"

	"go.trai.ch/knit/internal/adapters/bundler"
	"go.trai.ch/knit/internal/adapters/fs"
	"go.trai.ch/knit/internal/adapters/resolver"
	"go.trai.ch/knit/internal/adapters/transformer"
	"go.trai.ch/knit/internal/core/domain"
	"go.trai.ch/knit/internal/core/ports/mocks"
	"go.trai.ch/knit/internal/engine/assetgraph"
	"go.trai.ch/knit/internal/engine/bundlegraph"
	"go.trai.ch/knit/internal/engine/requestgraph"
	"go.trai.ch/knit/internal/engine/workerpool"
)

var entries = []string{"src/index.js"}

type env struct {
	root    string
	graph   *requestgraph.Graph
	builder *bundlegraph.Builder
}

func newEnv(t *testing.T) *env {
	t.Helper()
	ctrl := gomock.NewController(t)
	log := mocks.NewMockLogger(ctrl)
	log.EXPECT().Debug(gomock.Any()).AnyTimes()
	log.EXPECT().Warn(gomock.Any()).AnyTimes()

	e := &env{root: t.TempDir()}
	e.write(t, "src/index.js", "import './util.js';\nimport('./lazy.js');\n")
	e.write(t, "src/util.js", "export const util = 1;\n")
	e.write(t, "src/lazy.js", "import './util.js';\nexport default 2;\n")

	fsys, err := fs.NewFileSystem(e.root, fs.NewWalker())
	require.NoError(t, err)
	pool := workerpool.New(assetgraph.NewHandlerFactory(func() assetgraph.Pipeline {
		return transformer.NewPipeline(transformer.Defaults()...)
	}), log, workerpool.Options{WorkerOptions: domain.WorkerOptions{Size: 2}})
	t.Cleanup(func() { _ = pool.Close() })

	e.graph = requestgraph.New(requestgraph.Config{FS: fsys, Hasher: fs.NewHasher(), Pool: pool, Logger: log})
	assets := assetgraph.New(resolver.New(), transformer.NewPipeline(transformer.Defaults()...).Name())
	e.builder = bundlegraph.New(assets, bundler.NewPackager(), bundler.All()...)
	return e
}

func (e *env) write(t *testing.T, name, content string) {
	t.Helper()
	path := filepath.Join(e.root, filepath.FromSlash(name))
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o750))
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
}

func (e *env) useBundler(name string) {
	e.graph.SetOptions(domain.BuildOptions(domain.ModeDevelopment, name, domain.TargetOptions{}, nil))
	e.graph.Invalidate([]domain.InvalidationEvent{{Kind: domain.OptionChanged, Name: domain.OptionBundler}})
}

func TestGraphRequest_BundlerParity(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()

	sets := make(map[string]map[domain.AssetIndex]struct{})
	for _, name := range []string{bundler.NameSingle, bundler.NameSplit} {
		e.useBundler(name)
		bg, err := requestgraph.Run(ctx, e.graph, e.builder.GraphRequest(entries))
		require.NoError(t, err)
		assert.Equal(t, name, bg.Bundler)
		sets[name] = bg.AssetSet()
	}
	assert.Len(t, sets[bundler.NameSplit], 3)
	assert.Equal(t, sets[bundler.NameSingle], sets[bundler.NameSplit])
}

func TestGraphRequest_DefaultAndUnknownBundler(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()

	bg, err := requestgraph.Run(ctx, e.graph, e.builder.GraphRequest(entries))
	require.NoError(t, err)
	assert.Equal(t, bundler.NameSplit, bg.Bundler)

	e.useBundler("webpack")
	_, err = requestgraph.Run(ctx, e.graph, e.builder.GraphRequest(entries))
	require.ErrorIs(t, err, domain.ErrUnknownBundler)
}

func TestPackageRequest_ParentTracksChildOutput(t *testing.T) {
	e := newEnv(t)
	e.useBundler(bundler.NameSplit)
	ctx := context.Background()

	index, err := requestgraph.Run(ctx, e.graph, e.builder.PackageRequest(entries, "index"))
	require.NoError(t, err)
	lazy, err := requestgraph.Run(ctx, e.graph, e.builder.PackageRequest(entries, "lazy"))
	require.NoError(t, err)

	assert.Equal(t, "index.js", index.Info.FilePath)
	assert.Equal(t, len(index.Content), index.Info.Size)
	assert.Contains(t, string(index.Content), "// child lazy.js "+lazy.Info.Hash+"\n")
	assert.Contains(t, string(lazy.Content), "export default 2;")

	e.write(t, "src/lazy.js", "import './util.js';\nexport default 3;\n")
	e.graph.Invalidate([]domain.InvalidationEvent{domain.FileEvent(domain.FileChanged, "src/lazy.js")})

	rebuilt, err := requestgraph.Run(ctx, e.graph, e.builder.PackageRequest(entries, "index"))
	require.NoError(t, err)
	assert.NotEqual(t, index.Info.Hash, rebuilt.Info.Hash)
	assert.NotContains(t, string(rebuilt.Content), lazy.Info.Hash)
}

func TestPackageRequest_UnknownBundle(t *testing.T) {
	e := newEnv(t)
	_, err := requestgraph.Run(context.Background(), e.graph, e.builder.PackageRequest(entries, "nope"))
	require.ErrorIs(t, err, domain.ErrInvalidBundleGraph)
}
