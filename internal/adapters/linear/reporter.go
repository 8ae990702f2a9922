// Package linear provides a synchronous, line-oriented build reporter for
// terminals and CI logs.
package linear

import (
	"context"
	"fmt"
	"io"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/muesli/termenv"
	"go.trai.ch/knit/internal/core/domain"
	"go.trai.ch/knit/internal/core/ports"
)

// Reporter implements ports.Reporter with chronological, prefixed lines.
// Progress and diagnostics go to stderr; the bundle listing goes to stdout.
type Reporter struct {
	stdout io.Writer
	stderr io.Writer
	output *termenv.Output

	mu sync.Mutex
}

var _ ports.Reporter = (*Reporter)(nil)

// NewReporter creates a Reporter. Nil writers default to the process streams.
func NewReporter(stdout, stderr io.Writer) *Reporter {
	if stdout == nil {
		stdout = os.Stdout
	}
	if stderr == nil {
		stderr = os.Stderr
	}
	return &Reporter{
		stdout: stdout,
		stderr: stderr,
		output: termenv.NewOutput(stderr, termenv.WithProfile(colorProfile())),
	}
}

func colorProfile() termenv.Profile {
	if os.Getenv("NO_COLOR") != "" {
		return termenv.Ascii
	}
	return termenv.ANSI
}

// Report prints event.
func (r *Reporter) Report(_ context.Context, event domain.ReporterEvent) {
	r.mu.Lock()
	defer r.mu.Unlock()

	switch event.Type {
	case domain.ReportBuildStart:
		_, _ = fmt.Fprintf(r.stderr, "Building %s\n", event.Message)
	case domain.ReportBuildProgress:
		prefix := r.output.String(fmt.Sprintf("[%s]", event.Phase)).Faint().String()
		_, _ = fmt.Fprintf(r.stderr, "%s started\n", prefix)
	case domain.ReportLog:
		_, _ = fmt.Fprintf(r.stderr, "[%s] %s\n", event.Level.String(), event.Message)
	case domain.ReportBuildSuccess:
		symbol := r.output.String("✓").Foreground(termenv.ANSIGreen).String()
		_, _ = fmt.Fprintf(r.stderr, "%s Built %d bundle(s) in %v\n",
			symbol, len(event.Bundles), event.Duration.Round(time.Millisecond))
		r.printBundlesLocked(event.Bundles)
	case domain.ReportBuildFailure:
		symbol := r.output.String("✗").Foreground(termenv.ANSIRed).String()
		_, _ = fmt.Fprintf(r.stderr, "%s Build failed after %v\n",
			symbol, event.Duration.Round(time.Millisecond))
		for _, d := range event.Diagnostics {
			r.printDiagnosticLocked(d)
		}
	}
}

func (r *Reporter) printBundlesLocked(bundles []domain.BundleInfo) {
	width := 0
	for _, b := range bundles {
		width = max(width, len(b.FilePath))
	}
	for _, b := range bundles {
		hash := b.Hash
		if len(hash) > 8 {
			hash = hash[:8]
		}
		_, _ = fmt.Fprintf(r.stdout, "%-*s  %8d B  %3d asset(s)  %s\n",
			width, b.FilePath, b.Size, b.AssetCount, hash)
	}
}

func (r *Reporter) printDiagnosticLocked(d *domain.Diagnostic) {
	msg := r.output.String(d.Error()).Foreground(termenv.ANSIRed).String()
	_, _ = fmt.Fprintf(r.stderr, "  %s\n", msg)
	if d.CodeFrame != "" {
		for line := range strings.SplitSeq(d.CodeFrame, "\n") {
			_, _ = fmt.Fprintf(r.stderr, "    %s\n", line)
		}
	}
	for _, hint := range d.Hints {
		_, _ = fmt.Fprintf(r.stderr, "    hint: %s\n", hint)
	}
}
