package watcher_test

import (
	"sync"
	"testing"
	"testing/synctest"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"go.trai.ch/knit/internal/adapters/watcher"
	"go.trai.ch/knit/internal/core/domain"
)

type batches struct {
	mu  sync.Mutex
	got [][]domain.InvalidationEvent
}

func (b *batches) add(events []domain.InvalidationEvent) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.got = append(b.got, events)
}

func (b *batches) snapshot() [][]domain.InvalidationEvent {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([][]domain.InvalidationEvent(nil), b.got...)
}

func changed(path string) domain.InvalidationEvent {
	return domain.FileEvent(domain.FileChanged, path)
}

func TestDebouncer_CoalescesAndSorts(t *testing.T) {
	synctest.Test(t, func(t *testing.T) {
		b := &batches{}
		d := watcher.NewDebouncer(100*time.Millisecond, b.add)

		d.Add(changed("/p/src/b.js"))
		d.Add(changed("/p/src/a.js"))
		d.Add(changed("/p/src/b.js"))

		time.Sleep(150 * time.Millisecond)
		synctest.Wait()

		got := b.snapshot()
		require.Len(t, got, 1)
		assert.Equal(t, []domain.InvalidationEvent{changed("/p/src/a.js"), changed("/p/src/b.js")}, got[0])
	})
}

func TestDebouncer_TimerReset(t *testing.T) {
	synctest.Test(t, func(t *testing.T) {
		b := &batches{}
		d := watcher.NewDebouncer(100*time.Millisecond, b.add)

		d.Add(changed("/p/a.js"))
		time.Sleep(50 * time.Millisecond)
		d.Add(changed("/p/b.js"))
		time.Sleep(50 * time.Millisecond)
		synctest.Wait()
		assert.Empty(t, b.snapshot(), "window restarts on every event")

		time.Sleep(60 * time.Millisecond)
		synctest.Wait()
		got := b.snapshot()
		require.Len(t, got, 1)
		assert.Len(t, got[0], 2)
	})
}

func TestDebouncer_MergesKinds(t *testing.T) {
	tests := []struct {
		name  string
		kinds []domain.InvalidationKind
		want  domain.InvalidationKind
	}{
		{"created then written", []domain.InvalidationKind{domain.FileCreated, domain.FileChanged}, domain.FileCreated},
		{"deleted then recreated", []domain.InvalidationKind{domain.FileDeleted, domain.FileCreated}, domain.FileChanged},
		{"written then deleted", []domain.InvalidationKind{domain.FileChanged, domain.FileDeleted}, domain.FileDeleted},
		{"created then deleted", []domain.InvalidationKind{domain.FileCreated, domain.FileDeleted}, domain.FileDeleted},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			b := &batches{}
			d := watcher.NewDebouncer(time.Hour, b.add)
			for _, k := range tt.kinds {
				d.Add(domain.FileEvent(k, "/p/x.js"))
			}
			d.Flush()

			got := b.snapshot()
			require.Len(t, got, 1)
			assert.Equal(t, []domain.InvalidationEvent{domain.FileEvent(tt.want, "/p/x.js")}, got[0])
		})
	}
}

func TestDebouncer_Flush(t *testing.T) {
	synctest.Test(t, func(t *testing.T) {
		b := &batches{}
		d := watcher.NewDebouncer(100*time.Millisecond, b.add)

		d.Flush()
		assert.Empty(t, b.snapshot(), "nothing pending")

		d.Add(changed("/p/a.js"))
		d.Flush()
		require.Len(t, b.snapshot(), 1, "flush delivers synchronously")

		time.Sleep(150 * time.Millisecond)
		synctest.Wait()
		assert.Len(t, b.snapshot(), 1, "the stopped timer does not deliver again")

		d.Add(changed("/p/b.js"))
		time.Sleep(150 * time.Millisecond)
		synctest.Wait()
		d.Flush()
		assert.Len(t, b.snapshot(), 2, "flush after the timer fired is a no-op")
	})
}

func TestDebouncer_NilCallback(t *testing.T) {
	synctest.Test(t, func(_ *testing.T) {
		d := watcher.NewDebouncer(50*time.Millisecond, nil)
		d.Add(changed("/p/a.js"))
		time.Sleep(100 * time.Millisecond)
		synctest.Wait()
		d.Flush()
	})
}
