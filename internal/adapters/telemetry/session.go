package telemetry

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"

	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.trai.ch/knit/internal/core/domain"
	"go.trai.ch/knit/internal/core/ports"
	"go.trai.ch/zerr"
)

// BuildTracer is a tracer provider scoped to one build. Every span it records
// is exported to the trace writer it was created with.
type BuildTracer struct {
	*OTelTracer
	provider *sdktrace.TracerProvider
	exporter *TraceExporter
	closer   io.Closer
}

var _ ports.TraceSession = (*BuildTracer)(nil)

// NewBuildTracer creates a provider whose only processor exports to w.
func NewBuildTracer(w io.Writer) (*BuildTracer, error) {
	exporter, err := NewTraceExporter(w, DefaultFlushInterval)
	if err != nil {
		return nil, err
	}
	provider := sdktrace.NewTracerProvider(
		sdktrace.WithSampler(sdktrace.AlwaysSample()),
		sdktrace.WithSpanProcessor(exporter),
	)
	return &BuildTracer{
		OTelTracer: NewOTelTracer(provider),
		provider:   provider,
		exporter:   exporter,
	}, nil
}

// Shutdown ends the provider, which closes the trace array, then releases the
// underlying file when the tracer owns one.
func (b *BuildTracer) Shutdown(ctx context.Context) error {
	err := b.provider.Shutdown(ctx)
	if b.closer != nil {
		if cerr := b.closer.Close(); cerr != nil {
			err = errors.Join(err, fmt.Errorf("%w: %w", domain.ErrTraceWriteFailed, cerr))
		}
	}
	return err
}

// noopSession is the session of a build that is not traced.
type noopSession struct {
	*NoOpTracer
}

func (noopSession) Shutdown(context.Context) error { return nil }

// Factory opens trace sessions backed by files.
type Factory struct{}

// NewFactory returns a Factory.
func NewFactory() *Factory {
	return &Factory{}
}

// Open creates the trace file at path and returns a session writing to it.
// An empty path disables tracing.
func (f *Factory) Open(path string) (ports.TraceSession, error) {
	if path == "" {
		return noopSession{NewNoOpTracer()}, nil
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o750); err != nil {
		return nil, zerr.With(fmt.Errorf("%w: %w", domain.ErrTraceWriteFailed, err), "path", path)
	}
	file, err := os.Create(path) //nolint:gosec // path comes from project configuration
	if err != nil {
		return nil, zerr.With(fmt.Errorf("%w: %w", domain.ErrTraceWriteFailed, err), "path", path)
	}
	bt, err := NewBuildTracer(file)
	if err != nil {
		_ = file.Close()
		return nil, zerr.With(err, "path", path)
	}
	bt.closer = file
	return bt, nil
}
