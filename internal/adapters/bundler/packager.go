package bundler

import (
	"bytes"
	"context"
	"fmt"
	"slices"

	"go.trai.ch/knit/internal/core/domain"
	"go.trai.ch/knit/internal/core/ports"
)

var _ ports.Packager = (*Packager)(nil)

// Packager concatenates the assets of a bundle behind comment markers.
// Dependencies are emitted before their importers, and the header lists the
// content hash of every child bundle, so a parent changes whenever a child does.
type Packager struct{}

// NewPackager creates the default packager.
func NewPackager() *Packager { return &Packager{} }

type commentStyle struct{ open, close string }

var styles = map[string]commentStyle{
	"js":  {"// ", ""},
	"css": {"/* ", " */"},
}

// Package implements ports.Packager.
func (p *Packager) Package(
	ctx context.Context,
	assets *domain.AssetGraph,
	bundles *domain.BundleGraph,
	idx domain.BundleIndex,
	children []domain.BundleInfo,
) ([]byte, error) {
	b := bundles.Bundle(idx)
	style, textual := styles[b.Type]
	if !textual && len(b.Assets) == 1 && len(children) == 0 {
		return bytes.Clone(assets.Asset(b.Assets[0]).Content), nil
	}

	var buf bytes.Buffer
	comment := func(format string, args ...any) {
		if textual {
			fmt.Fprintf(&buf, "%s%s%s\n", style.open, fmt.Sprintf(format, args...), style.close)
		}
	}
	comment("knit bundle %s (%s)", b.Name, b.Type)
	if b.Condition != "" {
		comment("condition %s", b.Condition)
	}
	for _, c := range children {
		comment("child %s %s", c.FilePath, c.Hash)
	}

	order := slices.Clone(b.Assets)
	slices.Reverse(order)
	for _, ai := range order {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		a := assets.Asset(ai)
		comment("asset %s", a.FilePath)
		buf.Write(a.Content)
		if n := len(a.Content); textual && n > 0 && a.Content[n-1] != '\n' {
			buf.WriteByte('\n')
		}
	}
	return buf.Bytes(), nil
}

// Describe implements ports.Packager.
func (p *Packager) Describe(b *domain.Bundle, content []byte) domain.BundleInfo {
	return domain.BundleInfo{
		Name:       b.Name,
		Type:       b.Type,
		FilePath:   b.Name + "." + b.Type,
		Size:       len(content),
		Hash:       domain.HashBytes(content),
		AssetCount: len(b.Assets),
	}
}
