// Package telemetry provides the tracing adapters and the trace-event exporter.
package telemetry

import (
	"bytes"
	"encoding/json"
	"sync"
	"time"

	"go.trai.ch/knit/internal/core/domain"
)

const (
	// DefaultFlushInterval is how often pending trace events reach the writer.
	DefaultFlushInterval = 50 * time.Millisecond
	// maxPendingEvents forces a flush once this many events are queued.
	maxPendingEvents = 64
)

// eventBuffer queues finished trace events and writes them as elements of the
// JSON array opened by TraceExporter. The first element written has no leading
// comma; every later one does.
type eventBuffer struct {
	out func([]byte)

	mu      sync.Mutex
	pending []traceEvent
	started bool
	closed  bool
	stop    chan struct{}
}

func newEventBuffer(interval time.Duration, out func([]byte)) *eventBuffer {
	if interval <= 0 {
		interval = DefaultFlushInterval
	}
	b := &eventBuffer{out: out, stop: make(chan struct{})}
	go b.tick(interval)
	return b
}

// add queues ev. It fails once the buffer is closed.
func (b *eventBuffer) add(ev traceEvent) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return domain.ErrTraceClosed
	}
	b.pending = append(b.pending, ev)
	if len(b.pending) >= maxPendingEvents {
		b.flushLocked()
	}
	return nil
}

func (b *eventBuffer) flush() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.flushLocked()
}

// close writes what is pending and stops the ticker.
func (b *eventBuffer) close() {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return
	}
	b.closed = true
	close(b.stop)
	b.flushLocked()
}

func (b *eventBuffer) tick(interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			b.flush()
		case <-b.stop:
			return
		}
	}
}

// flushLocked writes under the lock so events keep their end order.
func (b *eventBuffer) flushLocked() {
	if len(b.pending) == 0 {
		return
	}
	var buf bytes.Buffer
	for _, ev := range b.pending {
		data, err := json.Marshal(ev)
		if err != nil {
			continue
		}
		if b.started {
			buf.WriteString(",\n")
		} else {
			buf.WriteString("\n")
			b.started = true
		}
		buf.Write(data)
	}
	b.pending = b.pending[:0]
	if buf.Len() > 0 {
		b.out(buf.Bytes())
	}
}
