package requestgraph

import (
	"maps"
	"slices"

	"go.trai.ch/knit/internal/core/domain"
)

// Snapshot returns a serializable copy of the graph, sorted by id. Requests
// that are Running or Errored are saved as Incomplete so they rerun after a restore.
func (g *Graph) Snapshot() *domain.RequestGraphSnapshot {
	g.mu.Lock()
	defer g.mu.Unlock()

	snap := &domain.RequestGraphSnapshot{Generation: g.generation}
	for _, id := range slices.Sorted(maps.Keys(g.nodes)) {
		n := g.nodes[id]
		state := n.state
		if state == domain.StateRunning || state == domain.StateErrored {
			state = domain.StateIncomplete
		}
		ns := domain.RequestNodeSnapshot{
			ID:          n.id,
			Kind:        n.kind,
			Key:         n.key,
			State:       state,
			Subrequests: slices.Clone(n.subrequests),
			Env:         maps.Clone(n.env),
			Options:     maps.Clone(n.options),
		}
		if state == domain.StateValid {
			if n.ephemeral {
				ns.State = domain.StateInvalid
			} else {
				ns.ResultKey = n.resultKey
			}
		}
		for _, p := range sortedKeys(n.files) {
			ns.Files = append(ns.Files, n.files[p])
		}
		for _, p := range sortedKeys(n.creates) {
			ns.Creates = append(ns.Creates, n.creates[p])
		}
		snap.Nodes = append(snap.Nodes, ns)
	}
	return snap
}

// Restore replaces the graph with snap. Restored Valid requests load their
// results from the cache on first use.
func (g *Graph) Restore(snap *domain.RequestGraphSnapshot) {
	g.mu.Lock()
	defer g.mu.Unlock()

	g.nodes = make(map[domain.RequestID]*node, len(snap.Nodes))
	g.generation = snap.Generation
	for _, ns := range snap.Nodes {
		n := newNode(ns.ID, ns.Kind, ns.Key)
		n.state = ns.State
		if n.state == domain.StateRunning || n.state == domain.StateErrored {
			n.state = domain.StateIncomplete
		}
		n.resultKey = ns.ResultKey
		n.subrequests = slices.Clone(ns.Subrequests)
		n.env = maps.Clone(ns.Env)
		n.options = maps.Clone(ns.Options)
		n.files = make(map[string]domain.FileInvalidation, len(ns.Files))
		for _, f := range ns.Files {
			n.files[f.Path] = f
		}
		n.creates = make(map[string]domain.CreateInvalidation, len(ns.Creates))
		for _, c := range ns.Creates {
			n.creates[c.Pattern] = c
		}
		g.nodes[n.id] = n
	}
	for _, n := range g.nodes {
		for _, c := range n.subrequests {
			if child, ok := g.nodes[c]; ok {
				child.parents[n.id] = struct{}{}
			}
		}
	}
}
