package assetgraph

import (
	"context"
	"errors"
	"slices"
	"strings"

	"golang.org/x/sync/errgroup"

	"go.trai.ch/knit/internal/core/domain"
	"go.trai.ch/knit/internal/engine/requestgraph"
)

// branchTarget is one specifier a dependency may resolve through.
type branchTarget struct {
	when      string
	specifier string
}

// pendingEdge is a resolved dependency whose target index is not known yet.
type pendingEdge struct {
	from     string
	dep      int
	branches []pendingBranch
}

type pendingBranch struct {
	when      string
	specifier string
	file      string // empty when unresolved
}

// GraphRequest builds the asset graph reachable from entries. Assets are
// placed in breadth-first order over sorted entries and dependency order, so
// indices do not depend on scheduling. Resolution and transform failures do
// not stop the traversal; they are joined into the request's error once
// everything reachable has been visited.
func (b *Builder) GraphRequest(entries []string) requestgraph.Request[*domain.AssetGraph] {
	sorted := make([]string, 0, len(entries))
	for _, e := range entries {
		sorted = append(sorted, normalize(e))
	}
	slices.Sort(sorted)
	sorted = slices.Compact(sorted)

	return requestgraph.Request[*domain.AssetGraph]{
		Kind: domain.KindAssetGraph,
		Key:  strings.Join(sorted, "\x00"),
		Run: func(ctx context.Context, rc *requestgraph.RunContext) (*domain.AssetGraph, error) {
			if len(sorted) == 0 {
				return nil, domain.ErrNoEntries
			}
			return b.build(ctx, rc, sorted)
		},
	}
}

func (b *Builder) build(ctx context.Context, rc *requestgraph.RunContext, entries []string) (*domain.AssetGraph, error) {
	var errs []error

	files, entryErrs := b.expandEntries(ctx, rc, entries)
	errs = append(errs, entryErrs...)

	conditional := rc.Option(domain.OptionFeatureFlag+domain.FlagConditionalBundling) == "true"
	graph := domain.NewAssetGraph()
	seen := make(map[string]bool, len(files))
	for _, f := range files {
		seen[f] = true
	}
	var edges []pendingEdge

	for level, entryLevel := files, true; len(level) > 0; entryLevel = false {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		assets := make([]domain.Asset, len(level))
		assetErrs := make([]error, len(level))
		g, gctx := errgroup.WithContext(ctx)
		for i, file := range level {
			g.Go(func() error {
				assets[i], assetErrs[i] = requestgraph.Run(gctx, rc, b.AssetRequest(file))
				return nil
			})
		}
		_ = g.Wait()

		var added []*domain.Asset
		for i := range level {
			if assetErrs[i] != nil {
				errs = append(errs, assetErrs[i])
				continue
			}
			idx := graph.AddAsset(&assets[i])
			if entryLevel {
				graph.AddEntry(idx)
			}
			added = append(added, graph.Asset(idx))
		}
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		resolved, resolveErrs := b.resolveLevel(ctx, rc, added, conditional)
		errs = append(errs, resolveErrs...)

		var next []string
		for _, e := range resolved {
			edges = append(edges, e)
			for _, br := range e.branches {
				if br.file != "" && !seen[br.file] {
					seen[br.file] = true
					next = append(next, br.file)
				}
			}
		}
		level = next
	}

	for _, e := range edges {
		from, ok := graph.Lookup(e.from)
		if !ok {
			continue
		}
		edge := domain.DependencyEdge{From: from, Dep: e.dep}
		for _, br := range e.branches {
			to := domain.NoAsset
			if idx, ok := graph.Lookup(br.file); ok && br.file != "" {
				to = idx
			}
			edge.Branches = append(edge.Branches, domain.Branch{When: br.when, Specifier: br.specifier, To: to})
		}
		if err := graph.AddEdge(edge); err != nil {
			return nil, err
		}
	}

	if len(errs) > 0 {
		return nil, errors.Join(errs...)
	}
	return graph, nil
}

// expandEntries runs the entry requests and returns their files in entry
// order without duplicates.
func (b *Builder) expandEntries(ctx context.Context, rc *requestgraph.RunContext, entries []string) ([]string, []error) {
	results := make([][]string, len(entries))
	errs := make([]error, len(entries))
	g, gctx := errgroup.WithContext(ctx)
	for i, entry := range entries {
		g.Go(func() error {
			results[i], errs[i] = requestgraph.Run(gctx, rc, b.EntryRequest(entry))
			return nil
		})
	}
	_ = g.Wait()

	var files []string
	var failed []error
	for i := range entries {
		if errs[i] != nil {
			failed = append(failed, errs[i])
			continue
		}
		for _, f := range results[i] {
			if !slices.Contains(files, f) {
				files = append(files, f)
			}
		}
	}
	return files, failed
}

// targets returns the specifiers dep resolves through. With conditional
// bundling off, the flag is decided now and only one branch remains.
func targets(rc *requestgraph.RunContext, dep domain.Dependency, conditional bool) []branchTarget {
	if dep.Priority != domain.PriorityConditional || dep.Condition == nil {
		return []branchTarget{{specifier: dep.Specifier}}
	}
	c := dep.Condition
	if conditional {
		return []branchTarget{{when: "true", specifier: c.IfTrue}, {when: "false", specifier: c.IfFalse}}
	}
	if rc.Option(domain.OptionFeatureFlag+c.Flag) == "true" {
		return []branchTarget{{specifier: c.IfTrue}}
	}
	return []branchTarget{{specifier: c.IfFalse}}
}

// resolveLevel runs the path requests of every dependency of assets.
func (b *Builder) resolveLevel(
	ctx context.Context,
	rc *requestgraph.RunContext,
	assets []*domain.Asset,
	conditional bool,
) ([]pendingEdge, []error) {
	var edges []pendingEdge
	for _, a := range assets {
		for di, dep := range a.Dependencies {
			e := pendingEdge{from: a.FilePath.String(), dep: di}
			for _, t := range targets(rc, dep, conditional) {
				e.branches = append(e.branches, pendingBranch{when: t.when, specifier: t.specifier})
			}
			edges = append(edges, e)
		}
	}

	errs := make([][]error, len(edges))
	g, gctx := errgroup.WithContext(ctx)
	for i := range edges {
		e := &edges[i]
		errs[i] = make([]error, len(e.branches))
		for bi := range e.branches {
			br := &e.branches[bi]
			g.Go(func() error {
				file, err := requestgraph.Run(gctx, rc, b.PathRequest(e.from, br.specifier))
				if err != nil {
					errs[i][bi] = err
					return nil
				}
				br.file = file
				return nil
			})
		}
	}
	_ = g.Wait()

	var failed []error
	for _, es := range errs {
		for _, err := range es {
			if err != nil {
				failed = append(failed, err)
			}
		}
	}
	return edges, failed
}
