package assetgraph

import (
	"context"

	"go.trai.ch/zerr"

	"go.trai.ch/knit/internal/adapters/codec"
	"go.trai.ch/knit/internal/core/domain"
	"go.trai.ch/knit/internal/core/ports"
)

// Pipeline transforms one unit in place.
type Pipeline interface {
	Run(ctx context.Context, unit *domain.TransformUnit) error
}

// Handler serves transform tasks inside one worker.
type Handler struct {
	pipeline Pipeline
}

var _ ports.WorkerHandler = (*Handler)(nil)

// NewHandlerFactory returns a factory giving every worker its own pipeline.
func NewHandlerFactory(newPipeline func() Pipeline) ports.WorkerHandlerFactory {
	return func(int) ports.WorkerHandler {
		return &Handler{pipeline: newPipeline()}
	}
}

// Handle decodes a TransformUnit, runs the pipeline, and encodes the result.
func (h *Handler) Handle(ctx context.Context, method string, payload []byte) ([]byte, error) {
	if method != domain.MethodTransform {
		return nil, zerr.With(domain.ErrUnknownMethod, "method", method)
	}
	var unit domain.TransformUnit
	if err := codec.Unmarshal(payload, &unit); err != nil {
		return nil, zerr.Wrap(err, "failed to decode transform unit")
	}
	if err := h.pipeline.Run(ctx, &unit); err != nil {
		return nil, err
	}
	return codec.Marshal(&unit)
}
