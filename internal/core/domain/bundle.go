package domain

import (
	"fmt"
	"slices"

	"go.trai.ch/zerr"
)

// BundleIndex is the stable arena index of a bundle within one BundleGraph.
type BundleIndex int

// PlannedBundle is one bundle proposed by a bundling policy.
// Children refers to other entries of the same plan by position.
type PlannedBundle struct {
	Name      string
	Type      string
	Entry     AssetIndex
	Assets    []AssetIndex
	Children  []int
	Condition string
}

// BundlePlan is the output of a bundling policy.
type BundlePlan struct {
	Bundles []PlannedBundle
}

// Bundle is a named output unit. Assets are references into the asset graph;
// an asset may belong to several bundles.
type Bundle struct {
	ID        string        `json:"id"`
	Name      string        `json:"name"`
	Type      string        `json:"type"`
	Entry     AssetIndex    `json:"entry"`
	Assets    []AssetIndex  `json:"assets"`
	Children  []BundleIndex `json:"children,omitempty"`
	Condition string        `json:"condition,omitempty"`
}

// Membership is an asset-in-bundle index pair.
type Membership struct {
	Bundle BundleIndex `json:"bundle"`
	Asset  AssetIndex  `json:"asset"`
}

// BundleGraph is an arena of bundles with membership and child edges as index pairs.
type BundleGraph struct {
	Bundler     string        `json:"bundler"`
	Bundles     []Bundle      `json:"bundles"`
	Memberships []Membership  `json:"memberships"`
	Roots       []BundleIndex `json:"roots"`
}

// NewBundleGraph materializes plan against assets and validates its structure:
// indices are in range, entries belong to their bundle, the child relation is
// acyclic, and every entry-reachable asset is placed in at least one bundle.
func NewBundleGraph(assets *AssetGraph, plan BundlePlan, bundler string) (*BundleGraph, error) {
	g := &BundleGraph{Bundler: bundler}
	isChild := make([]bool, len(plan.Bundles))

	for pi, pb := range plan.Bundles {
		if pb.Entry != NoAsset && !assets.valid(pb.Entry) {
			return nil, invalidPlan("entry asset out of range", pb.Name)
		}
		members := make([]AssetIndex, 0, len(pb.Assets))
		for _, a := range pb.Assets {
			if !assets.valid(a) {
				return nil, invalidPlan(fmt.Sprintf("asset %d out of range", a), pb.Name)
			}
			if !slices.Contains(members, a) {
				members = append(members, a)
			}
		}
		if pb.Entry != NoAsset && !slices.Contains(members, pb.Entry) {
			return nil, invalidPlan("entry asset is not a member of its bundle", pb.Name)
		}
		children := make([]BundleIndex, 0, len(pb.Children))
		for _, c := range pb.Children {
			if c < 0 || c >= len(plan.Bundles) || c == pi {
				return nil, invalidPlan(fmt.Sprintf("child bundle %d is invalid", c), pb.Name)
			}
			isChild[c] = true
			children = append(children, BundleIndex(c))
		}

		bi := BundleIndex(len(g.Bundles))
		g.Bundles = append(g.Bundles, Bundle{
			ID:        NewContentKey("bundle", bundler, pb.Name, pb.Type)[:16],
			Name:      pb.Name,
			Type:      pb.Type,
			Entry:     pb.Entry,
			Assets:    members,
			Children:  children,
			Condition: pb.Condition,
		})
		for _, a := range members {
			g.Memberships = append(g.Memberships, Membership{Bundle: bi, Asset: a})
		}
	}

	for bi := range g.Bundles {
		if !isChild[bi] {
			g.Roots = append(g.Roots, BundleIndex(bi))
		}
	}
	if err := g.checkAcyclic(); err != nil {
		return nil, err
	}
	if err := g.checkCoverage(assets); err != nil {
		return nil, err
	}
	return g, nil
}

func invalidPlan(reason, bundle string) error {
	return zerr.With(zerr.Wrap(ErrInvalidBundleGraph, reason), "bundle", bundle)
}

func (g *BundleGraph) checkAcyclic() error {
	state := make([]uint8, len(g.Bundles)) // 0: unvisited, 1: visiting, 2: done
	var visit func(b BundleIndex) error
	visit = func(b BundleIndex) error {
		state[b] = 1
		for _, c := range g.Bundles[b].Children {
			switch state[c] {
			case 1:
				return invalidPlan("child bundle cycle", g.Bundles[c].Name)
			case 0:
				if err := visit(c); err != nil {
					return err
				}
			}
		}
		state[b] = 2
		return nil
	}
	for b := range g.Bundles {
		if state[b] == 0 {
			if err := visit(BundleIndex(b)); err != nil {
				return err
			}
		}
	}
	if len(g.Bundles) > 0 && len(g.Roots) == 0 {
		return invalidPlan("no root bundle", g.Bundles[0].Name)
	}
	return nil
}

func (g *BundleGraph) checkCoverage(assets *AssetGraph) error {
	placed := make(map[AssetIndex]bool, len(g.Memberships))
	for _, m := range g.Memberships {
		placed[m.Asset] = true
	}
	for _, a := range assets.Reachable(assets.Entries, FollowAll) {
		if !placed[a] {
			return zerr.With(
				zerr.Wrap(ErrInvalidBundleGraph, "reachable asset is not in any bundle"),
				"asset", assets.Assets[a].FilePath.String(),
			)
		}
	}
	return nil
}

// Bundle returns the bundle at idx.
func (g *BundleGraph) Bundle(idx BundleIndex) *Bundle {
	return &g.Bundles[idx]
}

// Lookup returns the index of the bundle called name.
func (g *BundleGraph) Lookup(name string) (BundleIndex, bool) {
	for i := range g.Bundles {
		if g.Bundles[i].Name == name {
			return BundleIndex(i), true
		}
	}
	return 0, false
}

// BundlesContaining returns every bundle asset belongs to.
func (g *BundleGraph) BundlesContaining(asset AssetIndex) []BundleIndex {
	var out []BundleIndex
	for _, m := range g.Memberships {
		if m.Asset == asset {
			out = append(out, m.Bundle)
		}
	}
	return out
}

// ChildBundles returns the direct children of idx.
func (g *BundleGraph) ChildBundles(idx BundleIndex) []BundleIndex {
	return g.Bundles[idx].Children
}

// AssetSet returns the set of assets placed in any bundle.
func (g *BundleGraph) AssetSet() map[AssetIndex]struct{} {
	set := make(map[AssetIndex]struct{}, len(g.Memberships))
	for _, m := range g.Memberships {
		set[m.Asset] = struct{}{}
	}
	return set
}

// Select returns the bundles that are loaded when the given feature flags hold:
// roots, their descendants, and conditional bundles whose condition matches.
func (g *BundleGraph) Select(flags map[string]bool) []BundleIndex {
	visited := make([]bool, len(g.Bundles))
	var out []BundleIndex
	var visit func(b BundleIndex)
	visit = func(b BundleIndex) {
		if visited[b] {
			return
		}
		visited[b] = true
		if !conditionHolds(g.Bundles[b].Condition, flags) {
			return
		}
		out = append(out, b)
		for _, c := range g.Bundles[b].Children {
			visit(c)
		}
	}
	for _, r := range g.Roots {
		visit(r)
	}
	return out
}

// conditionHolds evaluates "flag=true" or "flag=false" against flags.
func conditionHolds(cond string, flags map[string]bool) bool {
	if cond == "" {
		return true
	}
	for i := len(cond) - 1; i >= 0; i-- {
		if cond[i] == '=' {
			return (cond[i+1:] == "true") == flags[cond[:i]]
		}
	}
	return true
}

// ConditionLabel formats the condition under which a branch is taken.
func ConditionLabel(flag, when string) string {
	if when == "" {
		return ""
	}
	return flag + "=" + when
}

// BundleInfo is per-bundle output metadata.
type BundleInfo struct {
	Name       string `json:"name"`
	Type       string `json:"type"`
	FilePath   string `json:"filePath"`
	Size       int    `json:"size"`
	Hash       string `json:"hash"`
	AssetCount int    `json:"assetCount"`
}
