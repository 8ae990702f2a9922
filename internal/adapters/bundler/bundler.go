// Package bundler provides the built-in bundling policies and the default packager.
package bundler

import (
	"path"
	"strconv"
	"strings"

	"go.trai.ch/zerr"

	"go.trai.ch/knit/internal/core/domain"
	"go.trai.ch/knit/internal/core/ports"
)

const (
	// NameSingle is the policy emitting one bundle per entry.
	NameSingle = "single"
	// NameSplit is the policy splitting async and shared code into separate bundles.
	NameSplit = "split"
)

// ByName returns the bundling policy registered under name.
func ByName(name string) (ports.Bundler, error) {
	switch name {
	case NameSingle:
		return NewSingle(), nil
	case "", NameSplit:
		return NewSplit(), nil
	default:
		return nil, zerr.With(domain.ErrUnknownBundler, "bundler", name)
	}
}

// All returns every built-in bundling policy.
func All() []ports.Bundler {
	return []ports.Bundler{NewSingle(), NewSplit()}
}

// namer hands out unique bundle names derived from file paths.
type namer struct {
	used map[string]int
}

func newNamer() *namer {
	return &namer{used: make(map[string]int)}
}

func (n *namer) next(base string) string {
	count := n.used[base]
	n.used[base] = count + 1
	if count == 0 {
		return base
	}
	return base + "-" + strconv.Itoa(count)
}

func (n *namer) forAsset(a *domain.Asset) string {
	base := path.Base(a.FilePath.String())
	return n.next(strings.TrimSuffix(base, path.Ext(base)))
}
