package requestgraph_test

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
	"go.uber.org/mock/gomock"

	"go.trai.ch/knit/internal/adapters/cas"
	"go.trai.ch/knit/internal/adapters/fs"
	"go.trai.ch/knit/internal/adapters/telemetry"
	"go.trai.ch/knit/internal/core/domain"
	"go.trai.ch/knit/internal/core/ports"
	"go.trai.ch/knit/internal/core/ports/mocks"
	"go.trai.ch/knit/internal/engine/requestgraph"
)

const kindTest domain.RequestKind = "test"

type fixture struct {
	root  string
	fs    *fs.FileSystem
	cache ports.Cache
	log   *mocks.MockLogger
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	ctrl := gomock.NewController(t)
	log := mocks.NewMockLogger(ctrl)
	log.EXPECT().Debug(gomock.Any()).AnyTimes()
	log.EXPECT().Warn(gomock.Any()).AnyTimes()

	root := t.TempDir()
	fsys, err := fs.NewFileSystem(root, fs.NewWalker())
	require.NoError(t, err)
	cache, err := cas.Open(t.TempDir(), log, cas.Options{})
	require.NoError(t, err)
	t.Cleanup(func() { _ = cache.Close() })
	return &fixture{root: root, fs: fsys, cache: cache, log: log}
}

func (f *fixture) graph(cache ports.Cache) *requestgraph.Graph {
	return requestgraph.New(requestgraph.Config{
		FS:     f.fs,
		Hasher: fs.NewHasher(),
		Logger: f.log,
		Cache:  cache,
	})
}

func (f *fixture) write(t *testing.T, name, content string) {
	t.Helper()
	path := filepath.Join(f.root, filepath.FromSlash(name))
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o750))
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
}

func (f *fixture) remove(t *testing.T, name string) {
	t.Helper()
	require.NoError(t, os.Remove(filepath.Join(f.root, filepath.FromSlash(name))))
}

// reader is a request returning the content of one file, counting executions.
func reader(name string, calls *atomic.Int32) requestgraph.Request[string] {
	return requestgraph.Request[string]{
		Kind: kindTest,
		Key:  "read " + name,
		Run: func(_ context.Context, rc *requestgraph.RunContext) (string, error) {
			calls.Add(1)
			data, err := rc.ReadFile(name)
			return string(data), err
		},
	}
}

func state(t *testing.T, g *requestgraph.Graph, id domain.RequestID) domain.RequestState {
	t.Helper()
	s, ok := g.State(id)
	require.True(t, ok, "request %s is unknown", id.Short())
	return s
}

func TestRun_Memoizes(t *testing.T) {
	f := newFixture(t)
	f.write(t, "a.txt", "alpha")
	g := f.graph(f.cache)
	var calls atomic.Int32
	req := reader("a.txt", &calls)

	for range 3 {
		v, err := requestgraph.Run(context.Background(), g, req)
		require.NoError(t, err)
		assert.Equal(t, "alpha", v)
	}
	assert.Equal(t, int32(1), calls.Load())
	assert.Equal(t, domain.StateValid, state(t, g, req.ID()))
}

func TestRun_SingleFlight(t *testing.T) {
	f := newFixture(t)
	g := f.graph(nil)
	release := make(chan struct{})
	var calls atomic.Int32
	req := requestgraph.Request[int]{
		Kind: kindTest,
		Key:  "slow",
		Run: func(context.Context, *requestgraph.RunContext) (int, error) {
			calls.Add(1)
			<-release
			return 42, nil
		},
	}

	var wg sync.WaitGroup
	results := make([]int, 8)
	for i := range results {
		wg.Go(func() {
			v, err := requestgraph.Run(context.Background(), g, req)
			assert.NoError(t, err)
			results[i] = v
		})
	}
	close(release)
	wg.Wait()

	assert.Equal(t, int32(1), calls.Load())
	for _, v := range results {
		assert.Equal(t, 42, v)
	}
}

func TestRun_Cycle(t *testing.T) {
	f := newFixture(t)
	g := f.graph(nil)

	var a, b requestgraph.Request[int]
	a = requestgraph.Request[int]{Kind: kindTest, Key: "a", Run: func(ctx context.Context, rc *requestgraph.RunContext) (int, error) {
		return requestgraph.Run(ctx, rc, b)
	}}
	b = requestgraph.Request[int]{Kind: kindTest, Key: "b", Run: func(ctx context.Context, rc *requestgraph.RunContext) (int, error) {
		return requestgraph.Run(ctx, rc, a)
	}}

	_, err := requestgraph.Run(context.Background(), g, a)
	require.ErrorIs(t, err, domain.ErrCyclicRequest)
	assert.ErrorContains(t, err, "test b -> test a -> test b")

	self := requestgraph.Request[int]{Kind: kindTest, Key: "self"}
	self.Run = func(ctx context.Context, rc *requestgraph.RunContext) (int, error) {
		return requestgraph.Run(ctx, rc, self)
	}
	_, err = requestgraph.Run(context.Background(), g, self)
	require.ErrorIs(t, err, domain.ErrCyclicRequest)
	assert.ErrorContains(t, err, "test self -> test self")
}

func TestInvalidate_OnlyAffectedRequests(t *testing.T) {
	f := newFixture(t)
	f.write(t, "x.txt", "x1")
	f.write(t, "y.txt", "y1")
	g := f.graph(f.cache)

	var xCalls, yCalls, parentCalls atomic.Int32
	x, y := reader("x.txt", &xCalls), reader("y.txt", &yCalls)
	parent := requestgraph.Request[string]{Kind: kindTest, Key: "parent", Run: func(ctx context.Context, rc *requestgraph.RunContext) (string, error) {
		parentCalls.Add(1)
		xv, err := requestgraph.Run(ctx, rc, x)
		if err != nil {
			return "", err
		}
		yv, err := requestgraph.Run(ctx, rc, y)
		return xv + yv, err
	}}

	ctx := context.Background()
	v, err := requestgraph.Run(ctx, g, parent)
	require.NoError(t, err)
	assert.Equal(t, "x1y1", v)

	f.write(t, "x.txt", "x2")
	changed := g.Invalidate([]domain.InvalidationEvent{domain.FileEvent(domain.FileChanged, "x.txt")})
	assert.Equal(t, 2, changed)
	assert.Equal(t, domain.StateInvalid, state(t, g, x.ID()))
	assert.Equal(t, domain.StateInvalid, state(t, g, parent.ID()))
	assert.Equal(t, domain.StateValid, state(t, g, y.ID()), "siblings stay valid")

	v, err = requestgraph.Run(ctx, g, parent)
	require.NoError(t, err)
	assert.Equal(t, "x2y1", v)
	assert.Equal(t, int32(2), xCalls.Load())
	assert.Equal(t, int32(1), yCalls.Load())
	assert.Equal(t, int32(2), parentCalls.Load())
}

func TestInvalidate_EventKinds(t *testing.T) {
	f := newFixture(t)
	f.write(t, "src/a.js", "a")
	f.write(t, "exists.txt", "")

	probe := requestgraph.Request[bool]{Kind: kindTest, Key: "probe", Run: func(_ context.Context, rc *requestgraph.RunContext) (bool, error) {
		return rc.IsFile("exists.txt"), nil
	}}
	missing := requestgraph.Request[bool]{Kind: kindTest, Key: "missing", Run: func(_ context.Context, rc *requestgraph.RunContext) (bool, error) {
		return rc.IsFile("later.txt"), nil
	}}
	glob := requestgraph.Request[[]string]{Kind: kindTest, Key: "glob", Run: func(_ context.Context, rc *requestgraph.RunContext) ([]string, error) {
		return rc.Glob("src/*.js")
	}}
	env := requestgraph.Request[string]{Kind: kindTest, Key: "env", Run: func(_ context.Context, rc *requestgraph.RunContext) (string, error) {
		return rc.Env("NODE_ENV") + rc.Option("mode"), nil
	}}

	tests := []struct {
		name    string
		event   domain.InvalidationEvent
		invalid []domain.RequestID
	}{
		{"content change ignores existence probes", domain.FileEvent(domain.FileChanged, "exists.txt"), nil},
		{"deletion hits existence probes", domain.FileEvent(domain.FileDeleted, "exists.txt"), []domain.RequestID{probe.ID()}},
		{"creation of a probed path", domain.FileEvent(domain.FileCreated, "later.txt"), []domain.RequestID{missing.ID()}},
		{"creation matching a glob", domain.FileEvent(domain.FileCreated, "src/b.js"), []domain.RequestID{glob.ID()}},
		{"creation outside the glob", domain.FileEvent(domain.FileCreated, "lib/b.js"), nil},
		{"env var", domain.InvalidationEvent{Kind: domain.EnvChanged, Name: "NODE_ENV"}, []domain.RequestID{env.ID()}},
		{"unrelated env var", domain.InvalidationEvent{Kind: domain.EnvChanged, Name: "HOME"}, nil},
		{"option", domain.InvalidationEvent{Kind: domain.OptionChanged, Name: "mode"}, []domain.RequestID{env.ID()}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			g := f.graph(nil)
			ctx := context.Background()
			_, err := requestgraph.Run(ctx, g, probe)
			require.NoError(t, err)
			_, err = requestgraph.Run(ctx, g, missing)
			require.NoError(t, err)
			_, err = requestgraph.Run(ctx, g, glob)
			require.NoError(t, err)
			_, err = requestgraph.Run(ctx, g, env)
			require.NoError(t, err)

			g.Invalidate([]domain.InvalidationEvent{tt.event})
			for _, id := range []domain.RequestID{probe.ID(), missing.ID(), glob.ID(), env.ID()} {
				want := domain.StateValid
				for _, inv := range tt.invalid {
					if inv == id {
						want = domain.StateInvalid
					}
				}
				assert.Equal(t, want, state(t, g, id), id.Short())
			}
		})
	}
}

func TestInvalidate_WhileRunning(t *testing.T) {
	f := newFixture(t)
	f.write(t, "a.txt", "one")
	g := f.graph(nil)

	read := make(chan struct{})
	release := make(chan struct{})
	var calls atomic.Int32
	req := requestgraph.Request[string]{Kind: kindTest, Key: "slow read", Run: func(_ context.Context, rc *requestgraph.RunContext) (string, error) {
		calls.Add(1)
		data, err := rc.ReadFile("a.txt")
		if calls.Load() == 1 {
			close(read)
			<-release
		}
		return string(data), err
	}}

	done := make(chan string)
	go func() {
		v, err := requestgraph.Run(context.Background(), g, req)
		assert.NoError(t, err)
		done <- v
	}()
	<-read
	f.write(t, "a.txt", "two")
	assert.Equal(t, 1, g.Invalidate([]domain.InvalidationEvent{domain.FileEvent(domain.FileChanged, "a.txt")}))
	close(release)

	assert.Equal(t, "one", <-done)
	assert.Equal(t, domain.StateInvalid, state(t, g, req.ID()), "a result computed from stale input is not kept")

	v, err := requestgraph.Run(context.Background(), g, req)
	require.NoError(t, err)
	assert.Equal(t, "two", v)
}

func TestBeginBuild_DetectsOfflineChanges(t *testing.T) {
	f := newFixture(t)
	f.write(t, "a.txt", "one")
	f.write(t, "b.txt", "b")
	g := f.graph(f.cache)
	ctx := context.Background()
	var aCalls, bCalls atomic.Int32
	a, b := reader("a.txt", &aCalls), reader("b.txt", &bCalls)
	env := requestgraph.Request[string]{Kind: kindTest, Key: "env", Run: func(_ context.Context, rc *requestgraph.RunContext) (string, error) {
		return rc.Env("NODE_ENV"), nil
	}}
	g.SetEnv(map[string]string{"NODE_ENV": "development"})

	for _, run := range []func() error{
		func() error { _, err := requestgraph.Run(ctx, g, a); return err },
		func() error { _, err := requestgraph.Run(ctx, g, b); return err },
		func() error { _, err := requestgraph.Run(ctx, g, env); return err },
	} {
		require.NoError(t, run())
	}

	changed, err := g.BeginBuild(ctx)
	require.NoError(t, err)
	assert.Zero(t, changed, "nothing changed")

	f.write(t, "a.txt", "two")
	f.remove(t, "b.txt")
	g.SetEnv(map[string]string{"NODE_ENV": "production"})
	changed, err = g.BeginBuild(ctx)
	require.NoError(t, err)
	assert.Equal(t, 3, changed)
	assert.Equal(t, uint64(2), g.Generation())

	v, err := requestgraph.Run(ctx, g, a)
	require.NoError(t, err)
	assert.Equal(t, "two", v)
	_, err = requestgraph.Run(ctx, g, b)
	require.Error(t, err)
	ev, err := requestgraph.Run(ctx, g, env)
	require.NoError(t, err)
	assert.Equal(t, "production", ev)
}

func TestRun_ErrorsAreMemoizedPerGeneration(t *testing.T) {
	f := newFixture(t)
	g := f.graph(nil)
	boom := errors.New("boom")
	var calls atomic.Int32
	req := requestgraph.Request[int]{Kind: kindTest, Key: "fails", Run: func(context.Context, *requestgraph.RunContext) (int, error) {
		calls.Add(1)
		return 0, boom
	}}

	ctx := context.Background()
	for range 2 {
		_, err := requestgraph.Run(ctx, g, req)
		require.ErrorIs(t, err, boom)
	}
	assert.Equal(t, int32(1), calls.Load())
	assert.Equal(t, domain.StateErrored, state(t, g, req.ID()))

	_, err := g.BeginBuild(ctx)
	require.NoError(t, err)
	_, err = requestgraph.Run(ctx, g, req)
	require.ErrorIs(t, err, boom)
	assert.Equal(t, int32(2), calls.Load())
}

func TestRun_CancellationLeavesRequestIncomplete(t *testing.T) {
	f := newFixture(t)
	g := f.graph(nil)
	ctx, cancel := context.WithCancel(context.Background())
	var calls atomic.Int32
	req := requestgraph.Request[int]{Kind: kindTest, Key: "cancel", Run: func(ctx context.Context, _ *requestgraph.RunContext) (int, error) {
		if calls.Add(1) == 1 {
			cancel()
			return 0, ctx.Err()
		}
		return 7, nil
	}}

	_, err := requestgraph.Run(ctx, g, req)
	require.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, domain.StateIncomplete, state(t, g, req.ID()))

	v, err := requestgraph.Run(context.Background(), g, req)
	require.NoError(t, err)
	assert.Equal(t, 7, v)
}

type result struct {
	Files []string
	Size  int
}

func TestSnapshot_RestoreLoadsResultsFromCache(t *testing.T) {
	f := newFixture(t)
	f.write(t, "a.txt", "alpha")
	ctx := context.Background()

	var calls atomic.Int32
	req := requestgraph.Request[result]{Kind: kindTest, Key: "struct", Run: func(_ context.Context, rc *requestgraph.RunContext) (result, error) {
		calls.Add(1)
		data, err := rc.ReadFile("a.txt")
		return result{Files: []string{"a.txt"}, Size: len(data)}, err
	}}

	g := f.graph(f.cache)
	want, err := requestgraph.Run(ctx, g, req)
	require.NoError(t, err)
	snap := g.Snapshot()
	node, ok := snap.Node(req.ID())
	require.True(t, ok)
	assert.NotEmpty(t, node.ResultKey)
	assert.Equal(t, []domain.FileInvalidation{{Path: "a.txt", Fingerprint: fs.NewHasher().Fingerprint([]byte("alpha"))}}, node.Files)

	restored := f.graph(f.cache)
	restored.Restore(snap)
	got, err := requestgraph.Run(ctx, restored, req)
	require.NoError(t, err)
	assert.Equal(t, want, got)
	assert.Equal(t, int32(1), calls.Load(), "restored result comes from the cache")

	t.Run("evicted result reruns", func(t *testing.T) {
		empty := f.graph(nil)
		empty.Restore(snap)
		got, err := requestgraph.Run(ctx, empty, req)
		require.NoError(t, err)
		assert.Equal(t, want, got)
		assert.Equal(t, int32(2), calls.Load())
	})
}

func TestSnapshot_UnfinishedRequestsAreIncomplete(t *testing.T) {
	f := newFixture(t)
	g := f.graph(nil)
	ctx := context.Background()

	fails := requestgraph.Request[int]{Kind: kindTest, Key: "fails", Run: func(context.Context, *requestgraph.RunContext) (int, error) {
		return 0, errors.New("nope")
	}}
	ok := requestgraph.Request[int]{Kind: kindTest, Key: "ok", Run: func(context.Context, *requestgraph.RunContext) (int, error) {
		return 1, nil
	}}
	_, err := requestgraph.Run(ctx, g, fails)
	require.Error(t, err)
	_, err = requestgraph.Run(ctx, g, ok)
	require.NoError(t, err)

	snap := g.Snapshot()
	require.Len(t, snap.Nodes, 2)
	assert.Less(t, snap.Nodes[0].ID, snap.Nodes[1].ID)
	counts := snap.CountByState()
	assert.Equal(t, 1, counts[domain.StateIncomplete])
	assert.Equal(t, 1, counts[domain.StateValid])
}

func TestRun_EphemeralResultsAreNotPersisted(t *testing.T) {
	f := newFixture(t)
	g := f.graph(f.cache)
	req := requestgraph.Request[int]{Kind: kindTest, Key: "ephemeral", Ephemeral: true, Run: func(context.Context, *requestgraph.RunContext) (int, error) {
		return 3, nil
	}}
	_, err := requestgraph.Run(context.Background(), g, req)
	require.NoError(t, err)

	node, ok := g.Snapshot().Node(req.ID())
	require.True(t, ok)
	assert.Equal(t, domain.StateInvalid, node.State)
	assert.Empty(t, node.ResultKey)
}

func TestRun_RecordsSpans(t *testing.T) {
	f := newFixture(t)
	g := f.graph(nil)
	sr := tracetest.NewSpanRecorder()
	tp := trace.NewTracerProvider(trace.WithSpanProcessor(sr))
	t.Cleanup(func() { _ = tp.Shutdown(context.Background()) })
	g.SetTracer(telemetry.NewOTelTracer(tp))

	req := requestgraph.Request[int]{Kind: domain.KindAsset, Key: "src/a.js", Run: func(context.Context, *requestgraph.RunContext) (int, error) {
		return 0, nil
	}}
	_, err := requestgraph.Run(context.Background(), g, req)
	require.NoError(t, err)

	spans := sr.Ended()
	require.Len(t, spans, 1)
	assert.Equal(t, "asset src/a.js", spans[0].Name())
}
