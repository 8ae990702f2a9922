package bundler

import (
	"context"
	"slices"

	"go.trai.ch/knit/internal/core/domain"
)

// Split creates one bundle per entry holding its synchronous dependencies.
// Lazy targets and conditional branches start child bundles. Assets that more
// than one entry reaches synchronously move into a shared bundle per type,
// which becomes a child of every entry bundle using it. Async bundles keep
// their own copy of shared assets.
type Split struct{}

// NewSplit creates the splitting policy.
func NewSplit() *Split { return &Split{} }

// Name implements ports.Bundler.
func (*Split) Name() string { return NameSplit }

// asyncTarget is a branch that starts a new bundle.
type asyncTarget struct {
	to        domain.AssetIndex
	condition string
}

// syncFollow crosses synchronous edges and conditional edges that were
// resolved to a single unconditional branch.
func syncFollow(_ domain.DependencyEdge, dep domain.Dependency, b domain.Branch) bool {
	return !isAsync(dep, b)
}

func isAsync(dep domain.Dependency, b domain.Branch) bool {
	switch dep.Priority {
	case domain.PriorityLazy:
		return true
	case domain.PriorityConditional:
		return b.When != ""
	default:
		return false
	}
}

// asyncTargets returns the async branches leaving members, in edge order.
func asyncTargets(graph *domain.AssetGraph, members []domain.AssetIndex) []asyncTarget {
	var out []asyncTarget
	for _, m := range members {
		deps := graph.Asset(m).Dependencies
		for e := range graph.Outgoing(m) {
			if e.Dep < 0 || e.Dep >= len(deps) {
				continue
			}
			dep := deps[e.Dep]
			for _, b := range e.Branches {
				if b.To == domain.NoAsset || !isAsync(dep, b) {
					continue
				}
				var cond string
				if dep.Condition != nil {
					cond = domain.ConditionLabel(dep.Condition.Flag, b.When)
				}
				out = append(out, asyncTarget{to: b.To, condition: cond})
			}
		}
	}
	return out
}

// Bundle implements ports.Bundler.
func (*Split) Bundle(ctx context.Context, graph *domain.AssetGraph) (domain.BundlePlan, error) {
	names := newNamer()
	var plan domain.BundlePlan

	// Entry bundles first, so they keep the lowest plan positions.
	entrySets := make([][]domain.AssetIndex, len(graph.Entries))
	users := make(map[domain.AssetIndex]int)
	for i, entry := range graph.Entries {
		entrySets[i] = graph.Reachable([]domain.AssetIndex{entry}, syncFollow)
		for _, a := range entrySets[i] {
			users[a]++
		}
	}

	byRoot := make(map[domain.AssetIndex]int)
	for i, entry := range graph.Entries {
		a := graph.Asset(entry)
		var own []domain.AssetIndex
		for _, m := range entrySets[i] {
			if m == entry || users[m] < 2 || isEntry(graph, m) {
				own = append(own, m)
			}
		}
		byRoot[entry] = len(plan.Bundles)
		plan.Bundles = append(plan.Bundles, domain.PlannedBundle{
			Name:   names.forAsset(a),
			Type:   a.Type.String(),
			Entry:  entry,
			Assets: own,
		})
	}

	// Shared bundles, one per asset type, in first-use order.
	sharedByType := make(map[string]int)
	for i := range graph.Entries {
		for _, m := range entrySets[i] {
			if users[m] < 2 || isEntry(graph, m) {
				continue
			}
			typ := graph.Asset(m).Type.String()
			si, ok := sharedByType[typ]
			if !ok {
				si = len(plan.Bundles)
				sharedByType[typ] = si
				plan.Bundles = append(plan.Bundles, domain.PlannedBundle{
					Name:  names.next("shared"),
					Type:  typ,
					Entry: domain.NoAsset,
				})
			}
			sb := &plan.Bundles[si]
			if !slices.Contains(sb.Assets, m) {
				sb.Assets = append(sb.Assets, m)
			}
			if eb := &plan.Bundles[i]; !slices.Contains(eb.Children, si) {
				eb.Children = append(eb.Children, si)
			}
		}
	}

	// Async bundles, discovered breadth-first from the bundles above.
	for bi := 0; bi < len(plan.Bundles); bi++ {
		if err := ctx.Err(); err != nil {
			return domain.BundlePlan{}, err
		}
		for _, target := range asyncTargets(graph, plan.Bundles[bi].Assets) {
			ci, seen := byRoot[target.to]
			if !seen {
				a := graph.Asset(target.to)
				ci = len(plan.Bundles)
				byRoot[target.to] = ci
				plan.Bundles = append(plan.Bundles, domain.PlannedBundle{
					Name:      names.forAsset(a),
					Type:      a.Type.String(),
					Entry:     target.to,
					Assets:    graph.Reachable([]domain.AssetIndex{target.to}, syncFollow),
					Condition: target.condition,
				})
			} else if plan.Bundles[ci].Condition != target.condition {
				// Loaded under differing conditions: always load it.
				plan.Bundles[ci].Condition = ""
			}
			if ci == bi || slices.Contains(plan.Bundles[bi].Children, ci) || isEntry(graph, target.to) ||
				reaches(plan, ci, bi) {
				continue
			}
			plan.Bundles[bi].Children = append(plan.Bundles[bi].Children, ci)
		}
	}
	return plan, nil
}

func isEntry(graph *domain.AssetGraph, a domain.AssetIndex) bool {
	return slices.Contains(graph.Entries, a)
}

// reaches reports whether plan bundle from reaches to through child links.
func reaches(plan domain.BundlePlan, from, to int) bool {
	visited := make(map[int]bool)
	stack := []int{from}
	for len(stack) > 0 {
		cur := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		if cur == to {
			return true
		}
		if visited[cur] {
			continue
		}
		visited[cur] = true
		stack = append(stack, plan.Bundles[cur].Children...)
	}
	return false
}
