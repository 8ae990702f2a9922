// Package domain contains the core models of the bundler: assets, bundles,
// requests, and the errors and diagnostics a build reports.
package domain

import (
	"fmt"
	"iter"
	"slices"
	"strconv"
)

// AssetIndex is the stable arena index of an asset within one AssetGraph.
type AssetIndex int

// NoAsset marks an unresolved branch or a bundle without an entry asset.
const NoAsset AssetIndex = -1

// AssetID identifies an asset by path, pipeline and config.
type AssetID string

// NewAssetID derives the id of the asset produced from filePath by pipeline.
func NewAssetID(filePath, pipeline, config string) AssetID {
	return AssetID(NewContentKey("asset", filePath, pipeline, config))
}

// SpecifierType describes the module system a dependency was written in.
type SpecifierType string

const (
	// SpecifierESM is an ECMAScript import or export.
	SpecifierESM SpecifierType = "esm"
	// SpecifierCommonJS is a require call.
	SpecifierCommonJS SpecifierType = "commonjs"
	// SpecifierURL is a url() reference, e.g. from CSS.
	SpecifierURL SpecifierType = "url"
	// SpecifierCustom is anything else a transformer emits.
	SpecifierCustom SpecifierType = "custom"
)

// Priority controls how a dependency is loaded.
type Priority string

const (
	// PrioritySync dependencies are needed before the importer runs.
	PrioritySync Priority = "sync"
	// PriorityLazy dependencies are loaded on demand.
	PriorityLazy Priority = "lazy"
	// PriorityConditional dependencies pick a target from a feature condition.
	PriorityConditional Priority = "conditional"
)

// Condition is a conditional-bundling predicate: Flag selects IfTrue or IfFalse.
type Condition struct {
	Flag    string `json:"flag"`
	IfTrue  string `json:"ifTrue"`
	IfFalse string `json:"ifFalse"`
}

// Dependency is a reference from an asset to a target specifier.
type Dependency struct {
	Specifier     string        `json:"specifier"`
	SpecifierType SpecifierType `json:"specifierType"`
	Priority      Priority      `json:"priority"`
	Condition     *Condition    `json:"condition,omitempty"`
	Line          int           `json:"line,omitempty"`
}

// Asset is one transformed source file. Content is immutable once produced.
type Asset struct {
	ID           AssetID        `json:"id"`
	FilePath     InternedString `json:"filePath"`
	Type         InternedString `json:"type"`
	Content      []byte         `json:"content"`
	Dependencies []Dependency   `json:"dependencies,omitempty"`
}

// Branch is one resolution outcome of a dependency.
// When is empty for unconditional dependencies, "true" or "false" otherwise.
type Branch struct {
	When      string     `json:"when,omitempty"`
	Specifier string     `json:"specifier"`
	To        AssetIndex `json:"to"`
}

// DependencyEdge connects dependency Dep of asset From to its resolved branches.
type DependencyEdge struct {
	From     AssetIndex `json:"from"`
	Dep      int        `json:"dep"`
	Branches []Branch   `json:"branches"`
}

// Select returns the branch taken when the controlling flag has value.
// Unconditional edges always return their only branch.
func (e DependencyEdge) Select(value bool) (Branch, bool) {
	if len(e.Branches) == 1 && e.Branches[0].When == "" {
		return e.Branches[0], true
	}
	want := strconv.FormatBool(value)
	for _, b := range e.Branches {
		if b.When == want {
			return b, true
		}
	}
	return Branch{}, false
}

// AssetGraph is an arena of assets with dependency edges stored as index pairs.
// Cycles between assets are legal and represented as ordinary edges.
type AssetGraph struct {
	Assets  []Asset          `json:"assets"`
	Entries []AssetIndex     `json:"entries"`
	Edges   []DependencyEdge `json:"edges"`

	byPath map[string]AssetIndex
	out    [][]int
}

// NewAssetGraph creates an empty AssetGraph.
func NewAssetGraph() *AssetGraph {
	return &AssetGraph{byPath: make(map[string]AssetIndex)}
}

// Len returns the number of assets.
func (g *AssetGraph) Len() int {
	return len(g.Assets)
}

// AddAsset appends a to the arena, or returns the index of the asset already
// registered for the same file path.
func (g *AssetGraph) AddAsset(a *Asset) AssetIndex {
	g.index()
	if idx, ok := g.byPath[a.FilePath.String()]; ok {
		return idx
	}
	idx := AssetIndex(len(g.Assets))
	g.Assets = append(g.Assets, *a)
	g.byPath[a.FilePath.String()] = idx
	g.out = append(g.out, nil)
	return idx
}

// AddEntry marks idx as an entry asset.
func (g *AssetGraph) AddEntry(idx AssetIndex) {
	if !slices.Contains(g.Entries, idx) {
		g.Entries = append(g.Entries, idx)
	}
}

// AddEdge records the resolution of one dependency.
func (g *AssetGraph) AddEdge(e DependencyEdge) error {
	if !g.valid(e.From) {
		return fmt.Errorf("edge source %d out of range", e.From)
	}
	for _, b := range e.Branches {
		if b.To != NoAsset && !g.valid(b.To) {
			return fmt.Errorf("edge target %d out of range", b.To)
		}
	}
	g.index()
	g.out[e.From] = append(g.out[e.From], len(g.Edges))
	g.Edges = append(g.Edges, e)
	return nil
}

// Lookup returns the index of the asset for filePath.
func (g *AssetGraph) Lookup(filePath string) (AssetIndex, bool) {
	g.index()
	idx, ok := g.byPath[filePath]
	return idx, ok
}

// Asset returns the asset at idx.
func (g *AssetGraph) Asset(idx AssetIndex) *Asset {
	return &g.Assets[idx]
}

// Outgoing yields the dependency edges leaving idx in insertion order.
func (g *AssetGraph) Outgoing(idx AssetIndex) iter.Seq[DependencyEdge] {
	g.index()
	return func(yield func(DependencyEdge) bool) {
		for _, ei := range g.out[idx] {
			if !yield(g.Edges[ei]) {
				return
			}
		}
	}
}

// Follow decides whether traversal crosses a branch of an edge.
type Follow func(edge DependencyEdge, dep Dependency, branch Branch) bool

// FollowAll crosses every resolved branch.
func FollowAll(DependencyEdge, Dependency, Branch) bool { return true }

// FollowSync crosses only synchronous, unconditional branches.
func FollowSync(_ DependencyEdge, dep Dependency, _ Branch) bool {
	return dep.Priority == PrioritySync
}

// Reachable returns the assets reachable from roots, in breadth-first order.
// Each asset is visited once, so cycles terminate.
func (g *AssetGraph) Reachable(roots []AssetIndex, follow Follow) []AssetIndex {
	visited := make([]bool, len(g.Assets))
	var order []AssetIndex
	queue := make([]AssetIndex, 0, len(roots))
	for _, r := range roots {
		if g.valid(r) && !visited[r] {
			visited[r] = true
			queue = append(queue, r)
		}
	}
	for len(queue) > 0 {
		cur := queue[0]
		queue = queue[1:]
		order = append(order, cur)
		deps := g.Assets[cur].Dependencies
		for e := range g.Outgoing(cur) {
			var dep Dependency
			if e.Dep >= 0 && e.Dep < len(deps) {
				dep = deps[e.Dep]
			}
			for _, b := range e.Branches {
				if b.To == NoAsset || visited[b.To] || !follow(e, dep, b) {
					continue
				}
				visited[b.To] = true
				queue = append(queue, b.To)
			}
		}
	}
	return order
}

// Walk yields every asset reachable from the entries through any branch.
func (g *AssetGraph) Walk() iter.Seq2[AssetIndex, *Asset] {
	return func(yield func(AssetIndex, *Asset) bool) {
		for _, idx := range g.Reachable(g.Entries, FollowAll) {
			if !yield(idx, &g.Assets[idx]) {
				return
			}
		}
	}
}

// Cycles returns the import cycles of the graph as strongly connected components
// with more than one asset, or a single asset importing itself.
func (g *AssetGraph) Cycles() [][]AssetIndex {
	g.index()
	n := len(g.Assets)
	index := make([]int, n)
	low := make([]int, n)
	onStack := make([]bool, n)
	for i := range index {
		index[i] = -1
	}
	var stack []AssetIndex
	var cycles [][]AssetIndex
	counter := 0

	var strongConnect func(v AssetIndex)
	strongConnect = func(v AssetIndex) {
		index[v] = counter
		low[v] = counter
		counter++
		stack = append(stack, v)
		onStack[v] = true

		selfLoop := false
		for e := range g.Outgoing(v) {
			for _, b := range e.Branches {
				w := b.To
				if w == NoAsset {
					continue
				}
				if w == v {
					selfLoop = true
				}
				if index[w] == -1 {
					strongConnect(w)
					low[v] = min(low[v], low[w])
				} else if onStack[w] {
					low[v] = min(low[v], index[w])
				}
			}
		}

		if low[v] == index[v] {
			var component []AssetIndex
			for {
				w := stack[len(stack)-1]
				stack = stack[:len(stack)-1]
				onStack[w] = false
				component = append(component, w)
				if w == v {
					break
				}
			}
			if len(component) > 1 || selfLoop {
				slices.Sort(component)
				cycles = append(cycles, component)
			}
		}
	}

	for v := range n {
		if index[v] == -1 {
			strongConnect(AssetIndex(v))
		}
	}
	return cycles
}

func (g *AssetGraph) valid(idx AssetIndex) bool {
	return idx >= 0 && int(idx) < len(g.Assets)
}

// index rebuilds the lookup tables after decoding.
func (g *AssetGraph) index() {
	if g.byPath != nil && len(g.out) == len(g.Assets) {
		return
	}
	g.byPath = make(map[string]AssetIndex, len(g.Assets))
	for i := range g.Assets {
		g.byPath[g.Assets[i].FilePath.String()] = AssetIndex(i)
	}
	g.out = make([][]int, len(g.Assets))
	for ei, e := range g.Edges {
		if g.valid(e.From) {
			g.out[e.From] = append(g.out[e.From], ei)
		}
	}
}
