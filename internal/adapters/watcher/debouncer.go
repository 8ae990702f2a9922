// Package watcher turns file system notifications into debounced invalidation batches.
package watcher

import (
	"slices"
	"strings"
	"sync"
	"time"
	"unique"

	"go.trai.ch/knit/internal/core/domain"
)

// DefaultDebounceWindow is the default time window for debouncing file events.
const DefaultDebounceWindow = 50 * time.Millisecond

// Debouncer coalesces rapid file system events into batched invalidations.
// Several events for one path collapse into a single event; see merge.
type Debouncer struct {
	mu       sync.Mutex
	pending  map[unique.Handle[string]]domain.InvalidationKind
	timer    *time.Timer
	window   time.Duration
	callback func(events []domain.InvalidationEvent)
}

// NewDebouncer creates a new debouncer with the given time window and callback.
func NewDebouncer(window time.Duration, callback func(events []domain.InvalidationEvent)) *Debouncer {
	return &Debouncer{
		pending:  make(map[unique.Handle[string]]domain.InvalidationKind),
		window:   window,
		callback: callback,
	}
}

// Add records an event and restarts the debounce window.
func (d *Debouncer) Add(event domain.InvalidationEvent) {
	d.mu.Lock()
	defer d.mu.Unlock()

	handle := unique.Make(event.Path)
	if prev, ok := d.pending[handle]; ok {
		d.pending[handle] = merge(prev, event.Kind)
	} else {
		d.pending[handle] = event.Kind
	}

	if d.timer != nil {
		d.timer.Stop()
	}
	d.timer = time.AfterFunc(d.window, d.fire)
}

// merge folds a later event kind into an earlier one for the same path.
// A file created and then written is still new; a file deleted and then
// recreated has changed.
func merge(prev, next domain.InvalidationKind) domain.InvalidationKind {
	switch {
	case prev == domain.FileCreated && next == domain.FileChanged:
		return domain.FileCreated
	case prev == domain.FileDeleted && next == domain.FileCreated:
		return domain.FileChanged
	default:
		return next
	}
}

func (d *Debouncer) fire() {
	d.mu.Lock()
	if len(d.pending) == 0 {
		d.timer = nil
		d.mu.Unlock()
		return
	}
	events := d.drainLocked()
	d.timer = nil
	d.mu.Unlock()

	if d.callback != nil {
		go d.callback(events)
	}
}

// drainLocked empties the pending set into path-sorted events. Must be called with mu held.
func (d *Debouncer) drainLocked() []domain.InvalidationEvent {
	events := make([]domain.InvalidationEvent, 0, len(d.pending))
	for handle, kind := range d.pending {
		events = append(events, domain.FileEvent(kind, handle.Value()))
	}
	d.pending = make(map[unique.Handle[string]]domain.InvalidationKind)
	slices.SortFunc(events, func(a, b domain.InvalidationEvent) int {
		return strings.Compare(a.Path, b.Path)
	})
	return events
}

// Flush immediately hands all pending events to the callback and blocks until it returns.
func (d *Debouncer) Flush() {
	d.mu.Lock()
	if d.timer != nil {
		if !d.timer.Stop() {
			// The timer already fired; let it deliver.
			d.mu.Unlock()
			return
		}
		d.timer = nil
	}
	events := d.drainLocked()
	d.mu.Unlock()

	if len(events) > 0 && d.callback != nil {
		d.callback(events)
	}
}
