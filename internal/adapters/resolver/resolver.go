// Package resolver implements node-style dependency resolution over the
// project file system.
package resolver

import (
	"context"
	"encoding/json"
	"path"
	"strings"

	"go.trai.ch/knit/internal/core/domain"
	"go.trai.ch/knit/internal/core/ports"
)

// DefaultExtensions are probed, in order, for specifiers without an extension.
var DefaultExtensions = []string{".js", ".mjs", ".jsx", ".ts", ".tsx", ".json", ".css"}

const nodeModules = "node_modules"

var _ ports.Resolver = (*Resolver)(nil)

// Resolver resolves relative, root-absolute and bare specifiers the way Node
// does: extension probing, index files, and node_modules lookup with
// package.json "module" or "main" fields. Every probe goes through the
// recorder, so a later change to any probed path invalidates the result.
type Resolver struct {
	extensions []string
}

// New creates a Resolver probing extensions, or DefaultExtensions when none are given.
func New(extensions ...string) *Resolver {
	if len(extensions) == 0 {
		extensions = DefaultExtensions
	}
	return &Resolver{extensions: extensions}
}

type probe struct {
	rec   ports.InvalidationRecorder
	tried []string
}

func (p *probe) isFile(name string) bool {
	p.tried = append(p.tried, name)
	return p.rec.IsFile(name)
}

// Resolve implements ports.Resolver.
func (r *Resolver) Resolve(ctx context.Context, from, specifier string, rec ports.InvalidationRecorder) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	p := &probe{rec: rec}

	var (
		resolved string
		ok       bool
	)
	switch {
	case specifier == "":
	case strings.HasPrefix(specifier, "./"), strings.HasPrefix(specifier, "../"), specifier == ".", specifier == "..":
		if base, inside := join(path.Dir(from), specifier); inside {
			resolved, ok = r.resolvePath(p, base)
		}
	case strings.HasPrefix(specifier, "/"):
		if base, inside := join(".", strings.TrimPrefix(specifier, "/")); inside {
			resolved, ok = r.resolvePath(p, base)
		}
	case strings.Contains(specifier, ":"):
		// URLs and other schemes are never project files.
	default:
		resolved, ok = r.resolveBare(p, path.Dir(from), specifier)
	}

	if !ok {
		return "", domain.NewResolutionError(from, specifier, p.tried)
	}
	return resolved, nil
}

// join cleans dir/rel and reports whether the result stays inside the project.
func join(dir, rel string) (string, bool) {
	joined := path.Join(dir, rel)
	if joined == ".." || strings.HasPrefix(joined, "../") {
		return "", false
	}
	return joined, true
}

// resolvePath probes base as a file, with each extension, then as a directory.
func (r *Resolver) resolvePath(p *probe, base string) (string, bool) {
	if name, ok := r.resolveFile(p, base); ok {
		return name, true
	}
	return r.resolveIndex(p, base)
}

func (r *Resolver) resolveFile(p *probe, base string) (string, bool) {
	if base != "." && p.isFile(base) {
		return base, true
	}
	for _, ext := range r.extensions {
		if p.isFile(base + ext) {
			return base + ext, true
		}
	}
	return "", false
}

func (r *Resolver) resolveIndex(p *probe, dir string) (string, bool) {
	for _, ext := range r.extensions {
		name := path.Join(dir, "index"+ext)
		if p.isFile(name) {
			return name, true
		}
	}
	return "", false
}

// resolveBare walks up from dir looking for node_modules/<package>.
func (r *Resolver) resolveBare(p *probe, dir, specifier string) (string, bool) {
	pkg, sub := splitPackage(specifier)
	if pkg == "" {
		return "", false
	}
	for {
		root := path.Join(dir, nodeModules, pkg)
		if sub != "" {
			if name, ok := r.resolvePath(p, path.Join(root, sub)); ok {
				return name, true
			}
		} else if name, ok := r.resolvePackage(p, root); ok {
			return name, true
		}
		if dir == "." {
			return "", false
		}
		dir = path.Dir(dir)
	}
}

// packageManifest holds the package.json fields used for entry selection.
type packageManifest struct {
	Module string `json:"module"`
	Main   string `json:"main"`
}

func (r *Resolver) resolvePackage(p *probe, root string) (string, bool) {
	manifest := path.Join(root, "package.json")
	if p.isFile(manifest) {
		if data, err := p.rec.ReadFile(manifest); err == nil {
			var m packageManifest
			if json.Unmarshal(data, &m) == nil {
				for _, field := range []string{m.Module, m.Main} {
					if field == "" {
						continue
					}
					if base, inside := join(root, field); inside {
						if name, ok := r.resolvePath(p, base); ok {
							return name, true
						}
					}
				}
			}
		}
	}
	return r.resolveIndex(p, root)
}

// splitPackage splits "pkg/sub" or "@scope/pkg/sub" into package and subpath.
func splitPackage(specifier string) (string, string) {
	parts := strings.SplitN(specifier, "/", 3)
	if strings.HasPrefix(specifier, "@") {
		if len(parts) < 2 || parts[1] == "" {
			return "", ""
		}
		pkg := parts[0] + "/" + parts[1]
		if len(parts) == 3 {
			return pkg, parts[2]
		}
		return pkg, ""
	}
	pkg, sub, _ := strings.Cut(specifier, "/")
	return pkg, sub
}
