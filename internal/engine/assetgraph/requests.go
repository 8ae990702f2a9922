// Package assetgraph builds the asset graph out of entry, path and asset
// requests on the request graph.
package assetgraph

import (
	"context"
	"fmt"
	"path"
	"strconv"
	"strings"

	"go.trai.ch/zerr"

	"go.trai.ch/knit/internal/adapters/codec"
	"go.trai.ch/knit/internal/core/domain"
	"go.trai.ch/knit/internal/core/ports"
	"go.trai.ch/knit/internal/engine/requestgraph"
)

// Builder creates the requests that make up an asset graph.
type Builder struct {
	resolver ports.Resolver
	pipeline string
}

// New creates a Builder. pipeline is the name of the transformer pipeline the
// workers run; it becomes part of every asset id.
func New(resolver ports.Resolver, pipeline string) *Builder {
	return &Builder{resolver: resolver, pipeline: pipeline}
}

// normalize cleans an entry or file name into its project-relative form.
func normalize(name string) string {
	return path.Clean(strings.TrimPrefix(name, "./"))
}

// EntryRequest expands one entry, a file or a glob, into project files.
func (b *Builder) EntryRequest(entry string) requestgraph.Request[[]string] {
	entry = normalize(entry)
	return requestgraph.Request[[]string]{
		Kind: domain.KindEntry,
		Key:  entry,
		Run: func(_ context.Context, rc *requestgraph.RunContext) ([]string, error) {
			if domain.IsGlob(entry) {
				files, err := rc.Glob(entry)
				if err != nil {
					return nil, err
				}
				if len(files) == 0 {
					return nil, zerr.With(domain.ErrEntryNotFound, "entry", entry)
				}
				return files, nil
			}
			if !rc.IsFile(entry) {
				return nil, zerr.With(domain.ErrEntryNotFound, "entry", entry)
			}
			return []string{entry}, nil
		},
	}
}

// PathRequest resolves specifier as imported from the file from.
func (b *Builder) PathRequest(from, specifier string) requestgraph.Request[string] {
	return requestgraph.Request[string]{
		Kind: domain.KindPath,
		Key:  from + "\x00" + specifier,
		Run: func(ctx context.Context, rc *requestgraph.RunContext) (string, error) {
			return b.resolver.Resolve(ctx, from, specifier, rc)
		},
	}
}

// AssetRequest reads and transforms one file on a worker.
func (b *Builder) AssetRequest(file string) requestgraph.Request[domain.Asset] {
	return requestgraph.Request[domain.Asset]{
		Kind: domain.KindAsset,
		Key:  file,
		Run: func(ctx context.Context, rc *requestgraph.RunContext) (domain.Asset, error) {
			content, err := rc.ReadFile(file)
			if err != nil {
				return domain.Asset{}, zerr.With(fmt.Errorf("%w: %w", domain.ErrTransform, err), "file", file)
			}
			unit := domain.TransformUnit{
				FilePath: file,
				Content:  content,
				Mode:     domain.BuildMode(rc.Option(domain.OptionMode)),
				Target: domain.TargetOptions{
					ShouldOptimize:   rc.Option(domain.OptionShouldOptimize) == "true",
					ShouldScopeHoist: rc.Option(domain.OptionShouldScopeHoist) == "true",
					SourceMaps:       rc.Option(domain.OptionSourceMaps) == "true",
				},
			}
			out, err := transform(ctx, rc, &unit)
			if err != nil {
				return domain.Asset{}, err
			}
			config := string(unit.Mode) + " " + strconv.FormatBool(unit.Target.ShouldOptimize) +
				" " + strconv.FormatBool(unit.Target.ShouldScopeHoist) +
				" " + strconv.FormatBool(unit.Target.SourceMaps)
			return domain.Asset{
				ID:           domain.NewAssetID(file, b.pipeline, config),
				FilePath:     domain.NewInternedString(file),
				Type:         domain.NewInternedString(out.Type),
				Content:      out.Content,
				Dependencies: out.Dependencies,
			}, nil
		},
	}
}

func transform(ctx context.Context, rc *requestgraph.RunContext, unit *domain.TransformUnit) (*domain.TransformUnit, error) {
	payload, err := codec.Marshal(unit)
	if err != nil {
		return nil, err
	}
	fut, err := rc.Dispatch(ctx, domain.WorkerTask{Method: domain.MethodTransform, Payload: payload})
	if err != nil {
		return nil, err
	}
	reply, err := fut.Await(ctx)
	if err != nil {
		return nil, err
	}
	var out domain.TransformUnit
	if err := codec.Unmarshal(reply, &out); err != nil {
		return nil, zerr.With(fmt.Errorf("%w: %w", domain.ErrTransform, err), "file", unit.FilePath)
	}
	return &out, nil
}
