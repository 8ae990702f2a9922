package ports

import (
	"context"

	"go.trai.ch/knit/internal/core/domain"
)

// Transformer is one stage of the transform pipeline. Transformers run in
// configured order; each one that matches may rewrite the unit in place.
//
//go:generate go run go.uber.org/mock/mockgen -source=transformer.go -destination=mocks/mock_transformer.go -package=mocks
type Transformer interface {
	// Name identifies the transformer in the pipeline key and in diagnostics.
	Name() string
	// Match reports whether the transformer applies to a unit of the given type.
	Match(unitType string) bool
	// Transform rewrites unit. Failures are returned as transform diagnostics.
	Transform(ctx context.Context, unit *domain.TransformUnit) error
}
