package telemetry

import (
	"context"
	"fmt"
	"io"
	"sync"
	"time"

	"go.opentelemetry.io/otel/codes"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/trace"
	"go.trai.ch/knit/internal/core/domain"
)

// defaultCategory is used for spans started without a kind.
const defaultCategory = "build"

// traceEvent is one Chrome trace-event "complete" record.
type traceEvent struct {
	Name string         `json:"name"`
	Cat  string         `json:"cat"`
	Ph   string         `json:"ph"`
	Ts   int64          `json:"ts"`
	Dur  int64          `json:"dur"`
	Pid  int            `json:"pid"`
	Tid  int            `json:"tid"`
	Args map[string]any `json:"args,omitempty"`
}

// TraceExporter is a span processor that appends every finished span to w as a
// Chrome trace-event JSON array. The opening bracket is written immediately and
// the closing bracket only on Shutdown, so a partially written file can still be
// loaded by trace viewers.
type TraceExporter struct {
	w      io.Writer
	events *eventBuffer

	mu     sync.Mutex
	closed bool
	lanes  map[trace.SpanID]int
	busy   []bool

	errMu sync.Mutex
	err   error
}

var _ sdktrace.SpanProcessor = (*TraceExporter)(nil)

// NewTraceExporter writes the array header to w and returns the exporter.
// Events are buffered and flushed by count or every flushInterval.
func NewTraceExporter(w io.Writer, flushInterval time.Duration) (*TraceExporter, error) {
	if _, err := io.WriteString(w, "["); err != nil {
		return nil, fmt.Errorf("%w: %w", domain.ErrTraceWriteFailed, err)
	}
	e := &TraceExporter{
		w:     w,
		lanes: make(map[trace.SpanID]int),
	}
	e.events = newEventBuffer(flushInterval, e.write)
	return e, nil
}

func (e *TraceExporter) write(data []byte) {
	if _, err := e.w.Write(data); err != nil {
		e.errMu.Lock()
		if e.err == nil {
			e.err = fmt.Errorf("%w: %w", domain.ErrTraceWriteFailed, err)
		}
		e.errMu.Unlock()
	}
}

// OnStart assigns the span the lowest free lane, rendered as a thread id.
func (e *TraceExporter) OnStart(_ context.Context, s sdktrace.ReadWriteSpan) {
	e.mu.Lock()
	defer e.mu.Unlock()
	lane := 0
	for lane < len(e.busy) && e.busy[lane] {
		lane++
	}
	if lane == len(e.busy) {
		e.busy = append(e.busy, true)
	} else {
		e.busy[lane] = true
	}
	e.lanes[s.SpanContext().SpanID()] = lane
}

// OnEnd appends the span as a complete event.
func (e *TraceExporter) OnEnd(s sdktrace.ReadOnlySpan) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.closed {
		return
	}

	id := s.SpanContext().SpanID()
	lane, ok := e.lanes[id]
	if ok {
		delete(e.lanes, id)
		e.busy[lane] = false
	}

	_ = e.events.add(eventFor(s, lane+1))
}

func eventFor(s sdktrace.ReadOnlySpan, tid int) traceEvent {
	ev := traceEvent{
		Name: s.Name(),
		Cat:  defaultCategory,
		Ph:   "X",
		Ts:   s.StartTime().UnixMicro(),
		Dur:  s.EndTime().Sub(s.StartTime()).Microseconds(),
		Pid:  1,
		Tid:  tid,
	}
	for _, kv := range s.Attributes() {
		if string(kv.Key) == KindAttribute {
			ev.Cat = kv.Value.AsString()
			continue
		}
		if ev.Args == nil {
			ev.Args = make(map[string]any)
		}
		ev.Args[string(kv.Key)] = kv.Value.AsInterface()
	}
	if st := s.Status(); st.Code == codes.Error {
		if ev.Args == nil {
			ev.Args = make(map[string]any)
		}
		ev.Args["error"] = st.Description
	}
	return ev
}

// ForceFlush writes buffered events to the underlying writer.
func (e *TraceExporter) ForceFlush(context.Context) error {
	e.events.flush()
	return e.Err()
}

// Shutdown flushes pending events and closes the array. Later spans are dropped.
func (e *TraceExporter) Shutdown(context.Context) error {
	e.mu.Lock()
	if e.closed {
		e.mu.Unlock()
		return e.Err()
	}
	e.closed = true
	e.mu.Unlock()

	e.events.close()
	e.write([]byte("\n]\n"))
	return e.Err()
}

// Err returns the first write failure, if any.
func (e *TraceExporter) Err() error {
	e.errMu.Lock()
	defer e.errMu.Unlock()
	return e.err
}
