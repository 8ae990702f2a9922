package commands_test

import (
	"bytes"
	"context"
	"errors"
	"testing"

	"github.com/sebdah/goldie/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"go.trai.ch/knit/cmd/knit/commands"
	"go.trai.ch/knit/internal/app"
	"go.trai.ch/knit/internal/build"
	"go.trai.ch/knit/internal/core/domain"
)

type mockApp struct {
	buildFunc   func(ctx context.Context, dir string, ov app.Overrides) (*domain.BuildResult, error)
	cleanFunc   func(ctx context.Context, dir string, ov app.Overrides) error
	inspectFunc func(ctx context.Context, dir string, ov app.Overrides) (*domain.BuildResult, error)
	watchFunc   func(ctx context.Context, dir string, ov app.Overrides) error
	pingFunc    func(ctx context.Context, dir string, ov app.Overrides) ([]domain.WorkerReply, error)
}

func (m *mockApp) Build(ctx context.Context, dir string, ov app.Overrides) (*domain.BuildResult, error) {
	if m.buildFunc != nil {
		return m.buildFunc(ctx, dir, ov)
	}
	return &domain.BuildResult{}, nil
}

func (m *mockApp) Clean(ctx context.Context, dir string, ov app.Overrides) error {
	if m.cleanFunc != nil {
		return m.cleanFunc(ctx, dir, ov)
	}
	return nil
}

func (m *mockApp) Inspect(ctx context.Context, dir string, ov app.Overrides) (*domain.BuildResult, error) {
	if m.inspectFunc != nil {
		return m.inspectFunc(ctx, dir, ov)
	}
	return &domain.BuildResult{}, nil
}

func (m *mockApp) Watch(ctx context.Context, dir string, ov app.Overrides) error {
	if m.watchFunc != nil {
		return m.watchFunc(ctx, dir, ov)
	}
	return nil
}

func (m *mockApp) PingWorkers(ctx context.Context, dir string, ov app.Overrides) ([]domain.WorkerReply, error) {
	if m.pingFunc != nil {
		return m.pingFunc(ctx, dir, ov)
	}
	return nil, nil
}

func execute(t *testing.T, a commands.Application, args ...string) (string, error) {
	t.Helper()
	cli := commands.New(a)
	buf := new(bytes.Buffer)
	cli.SetOutput(buf, buf)
	cli.SetArgs(args)
	err := cli.Execute(context.Background())
	return buf.String(), err
}

func TestCommands_Build(t *testing.T) {
	t.Run("wires flags correctly", func(t *testing.T) {
		var captured app.Overrides
		var capturedDir string
		mock := &mockApp{
			buildFunc: func(_ context.Context, dir string, ov app.Overrides) (*domain.BuildResult, error) {
				capturedDir = dir
				captured = ov
				return &domain.BuildResult{}, nil
			},
		}

		_, err := execute(t, mock, "build", "src/a.js", "src/b.js",
			"-C", "web", "--mode", "production", "--cache-dir", "tmp/cache", "--dist-dir", "out",
			"--no-cache", "--bundler", "single", "--trace", "trace.json", "--workers", "3",
			"--feature-flag", "beta=true", "--feature-flag", "legacy=0", "--feature-flag", "fast")
		require.NoError(t, err)

		assert.Equal(t, "web", capturedDir)
		assert.Equal(t, app.Overrides{
			Entries:      []string{"src/a.js", "src/b.js"},
			Mode:         "production",
			CacheDir:     "tmp/cache",
			DistDir:      "out",
			NoCache:      true,
			Bundler:      "single",
			TracePath:    "trace.json",
			FeatureFlags: map[string]bool{"beta": true, "legacy": false, "fast": true},
			Workers:      3,
		}, captured)
	})

	t.Run("defaults to the current directory", func(t *testing.T) {
		var capturedDir string
		var captured app.Overrides
		mock := &mockApp{
			buildFunc: func(_ context.Context, dir string, ov app.Overrides) (*domain.BuildResult, error) {
				capturedDir = dir
				captured = ov
				return &domain.BuildResult{}, nil
			},
		}

		_, err := execute(t, mock, "build")
		require.NoError(t, err)
		assert.Equal(t, ".", capturedDir)
		assert.Empty(t, captured.Entries)
		assert.Nil(t, captured.FeatureFlags)
	})

	t.Run("rejects invalid feature flags", func(t *testing.T) {
		mock := &mockApp{
			buildFunc: func(context.Context, string, app.Overrides) (*domain.BuildResult, error) {
				panic("should not be called")
			},
		}

		_, err := execute(t, mock, "build", "--feature-flag", "beta=maybe")
		require.ErrorIs(t, err, domain.ErrInvalidFeatureFlag)

		_, err = execute(t, mock, "build", "--feature-flag", "=true")
		require.ErrorIs(t, err, domain.ErrInvalidFeatureFlag)
	})

	t.Run("marks reported failures as build failures", func(t *testing.T) {
		mock := &mockApp{
			buildFunc: func(context.Context, string, app.Overrides) (*domain.BuildResult, error) {
				return &domain.BuildResult{}, domain.ErrResolution
			},
		}

		_, err := execute(t, mock, "build")
		require.ErrorIs(t, err, domain.ErrBuildFailed)
		require.ErrorIs(t, err, domain.ErrResolution)
	})

	t.Run("passes through errors before the build starts", func(t *testing.T) {
		mock := &mockApp{
			buildFunc: func(context.Context, string, app.Overrides) (*domain.BuildResult, error) {
				return nil, domain.ErrInvalidMode
			},
		}

		_, err := execute(t, mock, "build")
		require.ErrorIs(t, err, domain.ErrInvalidMode)
		assert.NotErrorIs(t, err, domain.ErrBuildFailed)
	})
}

func TestCommands_Watch(t *testing.T) {
	var captured app.Overrides
	mock := &mockApp{
		watchFunc: func(_ context.Context, _ string, ov app.Overrides) error {
			captured = ov
			return nil
		},
	}

	_, err := execute(t, mock, "watch", "src/index.js", "--mode", "development", "-n")
	require.NoError(t, err)
	assert.Equal(t, []string{"src/index.js"}, captured.Entries)
	assert.Equal(t, "development", captured.Mode)
	assert.True(t, captured.NoCache)
}

func TestCommands_Clean(t *testing.T) {
	t.Run("uses the persistent cache dir", func(t *testing.T) {
		var captured app.Overrides
		mock := &mockApp{
			cleanFunc: func(_ context.Context, _ string, ov app.Overrides) error {
				captured = ov
				return nil
			},
		}

		_, err := execute(t, mock, "clean", "--cache-dir", "custom")
		require.NoError(t, err)
		assert.Equal(t, "custom", captured.CacheDir)
	})

	t.Run("rejects arguments", func(t *testing.T) {
		_, err := execute(t, &mockApp{}, "clean", "extra")
		require.Error(t, err)
	})

	t.Run("returns clean errors", func(t *testing.T) {
		mock := &mockApp{
			cleanFunc: func(context.Context, string, app.Overrides) error {
				return errors.New("simulated error")
			},
		}

		_, err := execute(t, mock, "clean")
		require.Error(t, err)
		assert.Contains(t, err.Error(), "simulated error")
	})
}

func TestCommands_Inspect(t *testing.T) {
	mock := &mockApp{
		inspectFunc: func(context.Context, string, app.Overrides) (*domain.BuildResult, error) {
			return sampleResult(t), nil
		},
	}

	out, err := execute(t, mock, "inspect")
	require.NoError(t, err)
	assert.Contains(t, out, "Bundler: split")
	assert.Contains(t, out, "Bundles (2)")
	assert.Contains(t, out, "Assets (2)")
	assert.Contains(t, out, "Requests (3)")
	assert.Regexp(t, `index\.js +js +120 +2 +abcdef012345\n`, out)
	assert.Regexp(t, `src/index\.js +js +8 +1 +entry\n`, out)
	assert.Regexp(t, `\[valid\] +2\n`, out)

	out, err = execute(t, mock, "inspect", "--json")
	require.NoError(t, err)
	assert.Contains(t, out, `"bundler": "split"`)
}

func TestCommands_Inspect_NoResult(t *testing.T) {
	mock := &mockApp{
		inspectFunc: func(context.Context, string, app.Overrides) (*domain.BuildResult, error) {
			return nil, domain.ErrNoBuildResult
		},
	}

	_, err := execute(t, mock, "inspect")
	require.ErrorIs(t, err, domain.ErrNoBuildResult)
}

func TestRenderJSON(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, commands.RenderJSON(&buf, sampleResult(t)))

	g := goldie.New(t)
	g.Assert(t, "inspect_json", buf.Bytes())
}

func TestRenderText_EmptyResult(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, commands.RenderText(&buf, &domain.BuildResult{}))

	out := buf.String()
	assert.Contains(t, out, "Bundles (0)")
	assert.Contains(t, out, "Assets (0)")
	assert.Contains(t, out, "Requests (0)")
}

func TestCommands_WorkersPing(t *testing.T) {
	t.Run("prints replies in worker order", func(t *testing.T) {
		var captured app.Overrides
		mock := &mockApp{
			pingFunc: func(_ context.Context, _ string, ov app.Overrides) ([]domain.WorkerReply, error) {
				captured = ov
				return []domain.WorkerReply{
					{WorkerID: 2, Payload: []byte(domain.PingReply)},
					{WorkerID: 0, Payload: []byte(domain.PingReply)},
					{WorkerID: 1, Payload: []byte(domain.PingReply)},
				}, nil
			},
		}

		out, err := execute(t, mock, "workers", "ping", "-w", "3")
		require.NoError(t, err)
		assert.Equal(t, 3, captured.Workers)
		assert.Equal(t, "worker 0: pong\nworker 1: pong\nworker 2: pong\n", out)
	})

	t.Run("fails when a worker fails", func(t *testing.T) {
		mock := &mockApp{
			pingFunc: func(context.Context, string, app.Overrides) ([]domain.WorkerReply, error) {
				return []domain.WorkerReply{
					{WorkerID: 0, Payload: []byte(domain.PingReply)},
					{WorkerID: 1, Err: domain.ErrWorkerCrash},
				}, nil
			},
		}

		out, err := execute(t, mock, "workers", "ping")
		require.ErrorIs(t, err, domain.ErrWorkerCrash)
		assert.Contains(t, out, "worker 1: worker crashed")
	})
}

func TestCommands_Version(t *testing.T) {
	out, err := execute(t, &mockApp{}, "version")
	require.NoError(t, err)
	assert.Contains(t, out, "knit version "+build.Version)
	assert.Contains(t, out, "commit: "+build.Commit)
}

func sampleResult(t *testing.T) *domain.BuildResult {
	t.Helper()
	assets := domain.NewAssetGraph()
	index := assets.AddAsset(&domain.Asset{
		FilePath: domain.NewInternedString("src/index.js"),
		Type:     domain.NewInternedString("js"),
		Content:  []byte("abcdefgh"),
		Dependencies: []domain.Dependency{
			{Specifier: "./util.js", SpecifierType: domain.SpecifierESM, Priority: domain.PrioritySync},
		},
	})
	util := assets.AddAsset(&domain.Asset{
		FilePath: domain.NewInternedString("src/util.js"),
		Type:     domain.NewInternedString("js"),
		Content:  []byte("util"),
	})
	assets.AddEntry(index)
	require.NoError(t, assets.AddEdge(domain.DependencyEdge{
		From:     index,
		Branches: []domain.Branch{{Specifier: "./util.js", To: util}},
	}))

	return &domain.BuildResult{
		AssetGraph:  assets,
		BundleGraph: &domain.BundleGraph{Bundler: "split"},
		BundleInfo: []domain.BundleInfo{
			{Name: "index", Type: "js", FilePath: "index.js", Size: 120, Hash: "abcdef0123456789", AssetCount: 2},
			{Name: "page", Type: "js", FilePath: "page.js", Size: 30, Hash: "0123456789abcdef", AssetCount: 1},
		},
		RequestTracker: &domain.RequestGraphSnapshot{
			Nodes: []domain.RequestNodeSnapshot{
				{ID: "a", Kind: domain.KindAsset, State: domain.StateValid},
				{ID: "b", Kind: domain.KindAsset, State: domain.StateInvalid},
				{ID: "c", Kind: domain.KindEntry, State: domain.StateValid},
			},
		},
	}
}
