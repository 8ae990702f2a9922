// Package progrock records build progress as a Progrock tape.
package progrock

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/opencontainers/go-digest"
	"github.com/vito/progrock"
	"go.trai.ch/knit/internal/core/domain"
	"go.trai.ch/knit/internal/core/ports"
)

// Recorder implements ports.Reporter by mapping each build, and each phase of
// it, to a Progrock vertex.
type Recorder struct {
	w   progrock.Writer
	rec *progrock.Recorder

	mu     sync.Mutex
	builds int
	build  *Vertex
	phase  *Vertex
}

var _ ports.Reporter = (*Recorder)(nil)

// New creates a Recorder writing to an in-memory tape.
func New() *Recorder {
	return NewRecorder(progrock.NewTape())
}

// NewRecorder creates a Recorder with the given writer.
func NewRecorder(w progrock.Writer) *Recorder {
	return &Recorder{
		w:   w,
		rec: progrock.NewRecorder(w),
	}
}

// Report records event on the current build vertex.
func (r *Recorder) Report(_ context.Context, event domain.ReporterEvent) {
	r.mu.Lock()
	defer r.mu.Unlock()

	switch event.Type {
	case domain.ReportBuildStart:
		r.finishLocked(errors.New("superseded by a new build"))
		r.builds++
		r.build = r.vertex(fmt.Sprintf("build %d", r.builds), "build")
		if event.Message != "" {
			r.build.Log(domain.LogLevelInfo, event.Message)
		}
	case domain.ReportBuildProgress:
		if r.build == nil {
			return
		}
		if r.phase != nil {
			r.phase.Complete(nil)
		}
		r.phase = r.vertex(fmt.Sprintf("build %d %s", r.builds, event.Phase), string(event.Phase))
	case domain.ReportLog:
		target := r.phase
		if target == nil {
			target = r.build
		}
		if target != nil {
			target.Log(event.Level, event.Message)
		}
	case domain.ReportBuildSuccess:
		if r.build == nil {
			return
		}
		for _, b := range event.Bundles {
			r.build.Log(domain.LogLevelInfo, fmt.Sprintf("%s %d bytes", b.FilePath, b.Size))
		}
		r.finishLocked(nil)
	case domain.ReportBuildFailure:
		if r.build == nil {
			return
		}
		errs := make([]error, 0, len(event.Diagnostics))
		for _, d := range event.Diagnostics {
			r.build.Log(domain.LogLevelError, d.Error())
			errs = append(errs, d)
		}
		err := errors.Join(errs...)
		if err == nil {
			err = domain.ErrBuildFailed
		}
		r.finishLocked(err)
	}
}

func (r *Recorder) vertex(id, name string) *Vertex {
	return &Vertex{vertex: r.rec.Vertex(digest.FromString(id), name)}
}

// finishLocked completes the running phase and build vertices, if any.
func (r *Recorder) finishLocked(err error) {
	if r.phase != nil {
		r.phase.Complete(err)
		r.phase = nil
	}
	if r.build != nil {
		r.build.Complete(err)
		r.build = nil
	}
}

// Close completes any open vertex and closes the writer.
func (r *Recorder) Close() error {
	r.mu.Lock()
	r.finishLocked(errors.New("interrupted"))
	r.mu.Unlock()
	return r.w.Close()
}
