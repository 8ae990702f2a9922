package orchestrator

import (
	"context"
	"fmt"
	"time"

	"go.trai.ch/zerr"

	"go.trai.ch/knit/internal/adapters/codec"
	"go.trai.ch/knit/internal/core/domain"
	"go.trai.ch/knit/internal/core/ports"
)

// saveBlob stores v under the hash of its encoding.
func saveBlob(ctx context.Context, cache ports.Cache, v any) (string, error) {
	blob, err := codec.Marshal(v)
	if err != nil {
		return "", err
	}
	key := domain.NewContentKey("blob", domain.HashBytes(blob))
	if err := cache.Set(ctx, key, blob); err != nil {
		return "", err
	}
	return key, nil
}

func loadBlob(ctx context.Context, cache ports.Cache, key string, v any) error {
	blob, ok, err := cache.Get(ctx, key)
	if err != nil {
		return err
	}
	if !ok {
		return zerr.With(domain.ErrNoBuildResult, "key", key)
	}
	if err := codec.Unmarshal(blob, v); err != nil {
		err = zerr.With(zerr.Wrap(err, "failed to decode persisted blob"), "key", key)
		if diag, derr := codec.Diagnose(blob); derr == nil {
			err = zerr.With(err, "cbor", truncate(diag, maxDiagnosticLen))
		}
		return err
	}
	return nil
}

// maxDiagnosticLen bounds the CBOR dump attached to decode errors.
const maxDiagnosticLen = 256

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}

func loadManifest(ctx context.Context, cache ports.Cache) (*domain.BuildManifest, error) {
	key, ok, err := cache.Ref(ctx, domain.RefLastBuild)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, domain.ErrNoBuildResult
	}
	var m domain.BuildManifest
	if err := loadBlob(ctx, cache, key, &m); err != nil {
		return nil, err
	}
	return &m, nil
}

// persist records the build in the cache. A failed build only replaces the
// request graph; the graphs and outputs of the last good build stay current.
func (o *Orchestrator) persist(ctx context.Context, result *domain.BuildResult, succeeded bool) {
	if o.cache == nil {
		return
	}
	ctx = context.WithoutCancel(ctx)

	m := domain.BuildManifest{
		Entries: o.opts.Entries,
		Mode:    o.opts.Mode,
		BuiltAt: time.Now().UTC(),
	}
	if !succeeded && o.manifest != nil {
		m.AssetGraphKey = o.manifest.AssetGraphKey
		m.BundleGraphKey = o.manifest.BundleGraphKey
		m.BundleInfoKey = o.manifest.BundleInfoKey
	}

	var err error
	if m.RequestGraphKey, err = saveBlob(ctx, o.cache, result.RequestTracker); err != nil {
		o.deps.Logger.Warn("failed to persist request graph: " + err.Error())
		return
	}
	if succeeded {
		parts := []struct {
			key *string
			v   any
		}{
			{&m.AssetGraphKey, result.AssetGraph},
			{&m.BundleGraphKey, result.BundleGraph},
			{&m.BundleInfoKey, result.BundleInfo},
		}
		for _, p := range parts {
			if *p.key, err = saveBlob(ctx, o.cache, p.v); err != nil {
				o.deps.Logger.Warn("failed to persist build result: " + err.Error())
				return
			}
		}
	}

	key, err := saveBlob(ctx, o.cache, &m)
	if err == nil {
		err = o.cache.SetRef(ctx, domain.RefLastBuild, key)
	}
	if err != nil {
		o.deps.Logger.Warn("failed to persist build manifest: " + err.Error())
		return
	}
	o.manifest = &m
}

// LoadResult reads the last persisted build from the cache in dir without
// running anything.
func LoadResult(ctx context.Context, caches ports.CacheOpener, dir, compression string) (*domain.BuildResult, error) {
	cache, err := caches.Open(dir, compression)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", domain.ErrStoreOpenFailed, err)
	}
	defer func() { _ = cache.Close() }()

	m, err := loadManifest(ctx, cache)
	if err != nil {
		return nil, err
	}

	result := &domain.BuildResult{RequestTracker: &domain.RequestGraphSnapshot{}}
	if err := loadBlob(ctx, cache, m.RequestGraphKey, result.RequestTracker); err != nil {
		return nil, err
	}
	if m.AssetGraphKey != "" {
		result.AssetGraph = domain.NewAssetGraph()
		if err := loadBlob(ctx, cache, m.AssetGraphKey, result.AssetGraph); err != nil {
			return nil, err
		}
	}
	if m.BundleGraphKey != "" {
		result.BundleGraph = &domain.BundleGraph{}
		if err := loadBlob(ctx, cache, m.BundleGraphKey, result.BundleGraph); err != nil {
			return nil, err
		}
	}
	if m.BundleInfoKey != "" {
		if err := loadBlob(ctx, cache, m.BundleInfoKey, &result.BundleInfo); err != nil {
			return nil, err
		}
	}
	return result, nil
}
