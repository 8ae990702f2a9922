package watcher_test

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"

	"go.trai.ch/knit/internal/adapters/watcher"
	"go.trai.ch/knit/internal/core/domain"
	"go.trai.ch/knit/internal/core/ports"
	"go.trai.ch/knit/internal/core/ports/mocks"
)

func startWatcher(t *testing.T, root string, ignores ...string) <-chan ports.WatchEvent {
	t.Helper()
	ctrl := gomock.NewController(t)
	log := mocks.NewMockLogger(ctrl)
	log.EXPECT().Warn(gomock.Any()).AnyTimes()

	w, err := watcher.NewFactory(log).New(ignores...)
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	require.NoError(t, w.Start(ctx, root))
	t.Cleanup(func() {
		cancel()
		_ = w.Stop()
	})

	out := make(chan ports.WatchEvent, 100)
	go func() {
		defer close(out)
		for ev := range w.Events() {
			out <- ev
		}
	}()
	return out
}

// waitFor drains events until one for path arrives.
func waitFor(t *testing.T, events <-chan ports.WatchEvent, path string) ports.WatchEvent {
	t.Helper()
	deadline := time.After(5 * time.Second)
	for {
		select {
		case ev, ok := <-events:
			require.True(t, ok, "watcher stopped before an event for %s", path)
			if ev.Path == path {
				return ev
			}
		case <-deadline:
			t.Fatalf("no event for %s", path)
		}
	}
}

func TestWatcher_ReportsWritesInSubdirectories(t *testing.T) {
	root := t.TempDir()
	src := filepath.Join(root, "src")
	require.NoError(t, os.MkdirAll(src, 0o750))
	file := filepath.Join(src, "index.js")
	require.NoError(t, os.WriteFile(file, []byte("a"), 0o600))

	events := startWatcher(t, root)
	require.NoError(t, os.WriteFile(file, []byte("b"), 0o600))

	ev := waitFor(t, events, file)
	assert.Equal(t, domain.FileChanged, watcher.ToInvalidation(ev).Kind)
}

func TestWatcher_WatchesNewDirectories(t *testing.T) {
	root := t.TempDir()
	events := startWatcher(t, root)

	dir := filepath.Join(root, "lib")
	require.NoError(t, os.Mkdir(dir, 0o750))
	waitFor(t, events, dir)

	// Give the watcher a moment to register the new directory.
	time.Sleep(50 * time.Millisecond)
	file := filepath.Join(dir, "util.js")
	require.NoError(t, os.WriteFile(file, []byte("x"), 0o600))
	waitFor(t, events, file)
}

func TestWatcher_SkipsIgnoredDirectories(t *testing.T) {
	root := t.TempDir()
	cache := filepath.Join(root, ".knit-cache")
	require.NoError(t, os.Mkdir(cache, 0o750))

	events := startWatcher(t, root, ".knit-cache", "dist")

	require.NoError(t, os.WriteFile(filepath.Join(cache, "cache.db"), []byte("x"), 0o600))
	marker := filepath.Join(root, "marker.js")
	require.NoError(t, os.WriteFile(marker, []byte("x"), 0o600))

	deadline := time.After(5 * time.Second)
	for {
		select {
		case ev := <-events:
			assert.NotContains(t, ev.Path, ".knit-cache")
			if ev.Path == marker {
				return
			}
		case <-deadline:
			t.Fatal("no event for marker")
		}
	}
}

func TestToInvalidation(t *testing.T) {
	tests := []struct {
		op   ports.WatchOp
		want domain.InvalidationKind
	}{
		{ports.OpCreate, domain.FileCreated},
		{ports.OpWrite, domain.FileChanged},
		{ports.OpRemove, domain.FileDeleted},
		{ports.OpRename, domain.FileDeleted},
	}
	for _, tt := range tests {
		got := watcher.ToInvalidation(ports.WatchEvent{Path: "/p/a.js", Operation: tt.op})
		assert.Equal(t, domain.FileEvent(tt.want, "/p/a.js"), got)
	}
}
