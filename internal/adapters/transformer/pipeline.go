package transformer

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"go.trai.ch/zerr"

	"go.trai.ch/knit/internal/core/domain"
	"go.trai.ch/knit/internal/core/ports"
)

// Pipeline runs an ordered list of transformers over a unit.
type Pipeline struct {
	stages []ports.Transformer
	name   string
}

// NewPipeline creates a pipeline running stages in order.
func NewPipeline(stages ...ports.Transformer) *Pipeline {
	names := make([]string, len(stages))
	for i, s := range stages {
		names[i] = s.Name()
	}
	return &Pipeline{stages: stages, name: strings.Join(names, ",")}
}

// Name identifies the pipeline in asset ids: the stage names in order.
func (p *Pipeline) Name() string {
	return p.name
}

// Run applies every matching stage. A stage sees the unit type as left by the
// previous stage. Diagnostics pass through untouched, other failures are
// wrapped as transform errors of the unit's file.
func (p *Pipeline) Run(ctx context.Context, unit *domain.TransformUnit) error {
	if unit.Type == "" {
		unit.Type = TypeOf(unit.FilePath)
	}
	for _, stage := range p.stages {
		if !stage.Match(unit.Type) {
			continue
		}
		if err := stage.Transform(ctx, unit); err != nil {
			var diag *domain.Diagnostic
			if ctx.Err() != nil || errors.As(err, &diag) {
				return err
			}
			return zerr.With(fmt.Errorf("%w: %w", domain.ErrTransform, err), "transformer", stage.Name())
		}
	}
	return nil
}
