package linear_test

import (
	"bytes"
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"go.trai.ch/knit/internal/adapters/linear"
	"go.trai.ch/knit/internal/core/domain"
)

func TestReporter_SuccessfulBuild(t *testing.T) {
	t.Setenv("NO_COLOR", "1")
	var stdout, stderr bytes.Buffer
	r := linear.NewReporter(&stdout, &stderr)
	ctx := context.Background()

	r.Report(ctx, domain.ReporterEvent{Type: domain.ReportBuildStart, Message: "src/index.js"})
	r.Report(ctx, domain.ReporterEvent{Type: domain.ReportBuildProgress, Phase: domain.PhaseTransforming})
	r.Report(ctx, domain.ReporterEvent{Type: domain.ReportLog, Level: domain.LogLevelWarn, Message: "no cache"})
	r.Report(ctx, domain.ReporterEvent{
		Type:     domain.ReportBuildSuccess,
		Duration: 1234567 * time.Microsecond,
		Bundles: []domain.BundleInfo{
			{FilePath: "dist/index.js", Size: 120, AssetCount: 3, Hash: "0123456789abcdef"},
			{FilePath: "dist/a.js", Size: 7, AssetCount: 1, Hash: "fedcba"},
		},
	})

	assert.Equal(t,
		"Building src/index.js\n"+
			"[transforming] started\n"+
			"[WARN] no cache\n"+
			"✓ Built 2 bundle(s) in 1.235s\n",
		stderr.String())
	assert.Equal(t,
		"dist/index.js       120 B    3 asset(s)  01234567\n"+
			"dist/a.js             7 B    1 asset(s)  fedcba\n",
		stdout.String())
}

func TestReporter_FailedBuild(t *testing.T) {
	t.Setenv("NO_COLOR", "1")
	var stdout, stderr bytes.Buffer
	r := linear.NewReporter(&stdout, &stderr)

	source := []byte("import x from './x';\nlet = 1;\n")
	r.Report(context.Background(), domain.ReporterEvent{
		Type:     domain.ReportBuildFailure,
		Duration: 20 * time.Millisecond,
		Diagnostics: []*domain.Diagnostic{
			domain.NewResolutionError("src/index.js", "./x", []string{"src/x", "src/x.js"}),
			domain.NewTransformError("src/index.js", 2, 5, "unexpected token", source),
		},
	})

	out := stderr.String()
	assert.Contains(t, out, "✗ Build failed after 20ms\n")
	assert.Contains(t, out, `  dependency could not be resolved: cannot resolve "./x" (src/index.js)`)
	assert.Contains(t, out, "    hint: tried: src/x, src/x.js\n")
	assert.Contains(t, out, "    > 2 | let = 1;\n")
	assert.Contains(t, out, "    |     ^\n")
	assert.Empty(t, stdout.String())
}
