package ports

import (
	"context"
	"io"
)

// Tracer is the entry point for creating spans.
//
//go:generate go run go.uber.org/mock/mockgen -source=telemetry.go -destination=mocks/mock_telemetry.go -package=mocks
type Tracer interface {
	// Start creates a new span.
	Start(ctx context.Context, name string, opts ...SpanOption) (context.Context, Span)
	// EmitPlan signals the set of bundles a build is about to package.
	EmitPlan(ctx context.Context, names []string)
}

// Span represents a unit of work.
type Span interface {
	io.Writer
	// End completes the span.
	End()
	// RecordError records an error for the span.
	RecordError(err error)
	// SetAttribute adds a key-value pair to the span.
	SetAttribute(key string, value any)
}

// SpanConfig holds configuration for a starting span.
type SpanConfig struct {
	// Kind is the request kind or pipeline stage the span covers.
	Kind string
}

// SpanOption is a functional option for configuring a span.
type SpanOption func(*SpanConfig)

// WithKind tags a span with the kind of work it covers.
func WithKind(kind string) SpanOption {
	return func(c *SpanConfig) {
		c.Kind = kind
	}
}

// TraceSession is a tracer scoped to one build. Shutdown finalizes the trace output.
type TraceSession interface {
	Tracer
	Shutdown(ctx context.Context) error
}

// TraceFactory opens the trace session of a build. An empty path yields a
// session that records nothing.
type TraceFactory interface {
	Open(path string) (TraceSession, error)
}
