package bundler

import (
	"context"

	"go.trai.ch/knit/internal/core/domain"
)

// Single places each entry and everything it can reach, through any branch,
// into one bundle. Assets shared between entries are duplicated.
type Single struct{}

// NewSingle creates the single-bundle policy.
func NewSingle() *Single { return &Single{} }

// Name implements ports.Bundler.
func (*Single) Name() string { return NameSingle }

// Bundle implements ports.Bundler.
func (*Single) Bundle(ctx context.Context, graph *domain.AssetGraph) (domain.BundlePlan, error) {
	names := newNamer()
	var plan domain.BundlePlan
	for _, entry := range graph.Entries {
		if err := ctx.Err(); err != nil {
			return domain.BundlePlan{}, err
		}
		a := graph.Asset(entry)
		plan.Bundles = append(plan.Bundles, domain.PlannedBundle{
			Name:   names.forAsset(a),
			Type:   a.Type.String(),
			Entry:  entry,
			Assets: graph.Reachable([]domain.AssetIndex{entry}, domain.FollowAll),
		})
	}
	return plan, nil
}
