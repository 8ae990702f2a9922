// Package bundlegraph groups the asset graph into bundles and packages them.
package bundlegraph

import (
	"context"

	"go.trai.ch/zerr"

	"go.trai.ch/knit/internal/core/domain"
	"go.trai.ch/knit/internal/core/ports"
	"go.trai.ch/knit/internal/engine/assetgraph"
	"go.trai.ch/knit/internal/engine/requestgraph"
)

// Builder creates bundle_graph and package requests.
type Builder struct {
	assets   *assetgraph.Builder
	bundlers map[string]ports.Bundler
	packager ports.Packager
}

// New creates a Builder choosing among bundlers by name.
func New(assets *assetgraph.Builder, packager ports.Packager, bundlers ...ports.Bundler) *Builder {
	byName := make(map[string]ports.Bundler, len(bundlers))
	for _, b := range bundlers {
		byName[b.Name()] = b
	}
	return &Builder{assets: assets, bundlers: byName, packager: packager}
}

func (b *Builder) bundler(name string) (ports.Bundler, error) {
	if name == "" {
		name = domain.DefaultBundler
	}
	bundler, ok := b.bundlers[name]
	if !ok {
		return nil, zerr.With(domain.ErrUnknownBundler, "bundler", name)
	}
	return bundler, nil
}

// GraphRequest bundles the asset graph of entries with the bundler named by
// the bundler option.
func (b *Builder) GraphRequest(entries []string) requestgraph.Request[*domain.BundleGraph] {
	assets := b.assets.GraphRequest(entries)
	return requestgraph.Request[*domain.BundleGraph]{
		Kind: domain.KindBundleGraph,
		Key:  assets.Key,
		Run: func(ctx context.Context, rc *requestgraph.RunContext) (*domain.BundleGraph, error) {
			graph, err := requestgraph.Run(ctx, rc, assets)
			if err != nil {
				return nil, err
			}
			bundler, err := b.bundler(rc.Option(domain.OptionBundler))
			if err != nil {
				return nil, err
			}
			plan, err := bundler.Bundle(ctx, graph)
			if err != nil {
				return nil, err
			}
			return domain.NewBundleGraph(graph, plan, bundler.Name())
		},
	}
}

// Packaged is the output of one bundle.
type Packaged struct {
	Info    domain.BundleInfo
	Content []byte
}

// PackageRequest packages the bundle called name. Children are packaged first,
// as subrequests, so a parent is repackaged whenever a child's output changes.
func (b *Builder) PackageRequest(entries []string, name string) requestgraph.Request[Packaged] {
	graphReq := b.GraphRequest(entries)
	return requestgraph.Request[Packaged]{
		Kind: domain.KindPackage,
		Key:  graphReq.Key + "\x00" + name,
		Run: func(ctx context.Context, rc *requestgraph.RunContext) (Packaged, error) {
			bundles, err := requestgraph.Run(ctx, rc, graphReq)
			if err != nil {
				return Packaged{}, err
			}
			assets, err := requestgraph.Run(ctx, rc, b.assets.GraphRequest(entries))
			if err != nil {
				return Packaged{}, err
			}
			idx, ok := bundles.Lookup(name)
			if !ok {
				return Packaged{}, zerr.With(domain.ErrInvalidBundleGraph, "bundle", name)
			}
			bundle := &bundles.Bundles[idx]

			children := make([]domain.BundleInfo, 0, len(bundle.Children))
			for _, c := range bundle.Children {
				child, err := requestgraph.Run(ctx, rc, b.PackageRequest(entries, bundles.Bundles[c].Name))
				if err != nil {
					return Packaged{}, err
				}
				children = append(children, child.Info)
			}

			content, err := b.packager.Package(ctx, assets, bundles, idx, children)
			if err != nil {
				return Packaged{}, err
			}
			return Packaged{Info: b.packager.Describe(bundle, content), Content: content}, nil
		},
	}
}
