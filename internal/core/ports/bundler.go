package ports

import (
	"context"

	"go.trai.ch/knit/internal/core/domain"
)

// Bundler is a bundling policy: it groups the assets of a graph into bundles.
//
//go:generate go run go.uber.org/mock/mockgen -source=bundler.go -destination=mocks/mock_bundler.go -package=mocks
type Bundler interface {
	// Name identifies the policy.
	Name() string
	// Bundle returns a plan covering every entry-reachable asset of graph.
	Bundle(ctx context.Context, graph *domain.AssetGraph) (domain.BundlePlan, error)
}

// Packager produces the output bytes of one bundle.
type Packager interface {
	// Package renders bundle idx. children holds the already packaged child bundles.
	Package(
		ctx context.Context,
		assets *domain.AssetGraph,
		bundles *domain.BundleGraph,
		idx domain.BundleIndex,
		children []domain.BundleInfo,
	) ([]byte, error)
	// Describe returns the output metadata of bundle given its packaged content.
	Describe(bundle *domain.Bundle, content []byte) domain.BundleInfo
}
