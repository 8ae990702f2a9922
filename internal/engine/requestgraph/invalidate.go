package requestgraph

import (
	"context"

	"go.trai.ch/knit/internal/core/domain"
)

// Invalidate applies external change events. Every request that tracked a
// matching input becomes Invalid, together with all of its ancestors. A request
// that is Running is flagged instead, so its result is not kept as Valid.
// It returns the number of requests whose state changed.
func (g *Graph) Invalidate(events []domain.InvalidationEvent) int {
	g.mu.Lock()
	defer g.mu.Unlock()

	var hit []*node
	for _, n := range g.nodes {
		for _, ev := range events {
			if n.matches(ev) {
				hit = append(hit, n)
				break
			}
		}
	}
	return g.markLocked(hit)
}

func (n *node) matches(ev domain.InvalidationEvent) bool {
	if n.state == domain.StateRunning && n.live != nil {
		return n.live.matches(ev)
	}
	return n.inputs.matches(ev)
}

func (n inputs) matches(ev domain.InvalidationEvent) bool {
	switch ev.Kind {
	case domain.FileChanged:
		f, ok := n.files[ev.Path]
		return ok && !f.StatOnly
	case domain.FileDeleted:
		_, ok := n.files[ev.Path]
		return ok
	case domain.FileCreated:
		if _, ok := n.files[ev.Path]; ok {
			return true
		}
		for pattern := range n.creates {
			if pattern == ev.Path || (domain.IsGlob(pattern) && domain.MatchGlob(pattern, ev.Path)) {
				return true
			}
		}
		return false
	case domain.EnvChanged:
		_, ok := n.env[ev.Name]
		return ok
	case domain.OptionChanged:
		_, ok := n.options[ev.Name]
		return ok
	}
	return false
}

// markLocked invalidates roots and their ancestors.
func (g *Graph) markLocked(roots []*node) int {
	changed := 0
	seen := make(map[domain.RequestID]bool)
	queue := roots
	for len(queue) > 0 {
		n := queue[0]
		queue = queue[1:]
		if seen[n.id] {
			continue
		}
		seen[n.id] = true

		switch n.state {
		case domain.StateRunning:
			if !n.stale {
				n.stale = true
				changed++
			}
		case domain.StateValid, domain.StateErrored:
			n.state = domain.StateInvalid
			n.clearValue()
			changed++
		}
		for p := range n.parents {
			if parent, ok := g.nodes[p]; ok {
				queue = append(queue, parent)
			}
		}
	}
	return changed
}

// fileState is a file as observed by BeginBuild.
type fileState struct {
	exists bool
	fp     uint64
}

// BeginBuild starts a new build generation. Errors memoized by the previous
// generation are retried, and every tracked input of a Valid request is
// re-checked against the file system, the env snapshot and the options, so
// changes made while nobody was watching still invalidate.
// It returns the number of requests whose state changed.
func (g *Graph) BeginBuild(ctx context.Context) (int, error) {
	g.mu.Lock()
	g.generation++
	paths := make(map[string]bool)
	patterns := make(map[string]bool)
	for _, n := range g.nodes {
		if n.state != domain.StateValid {
			continue
		}
		for p := range n.files {
			paths[p] = true
		}
		for p := range n.creates {
			patterns[p] = true
		}
	}
	g.mu.Unlock()

	files := make(map[string]fileState, len(paths))
	for p := range paths {
		if err := ctx.Err(); err != nil {
			return 0, err
		}
		data, err := g.cfg.FS.ReadFile(p)
		if err != nil {
			files[p] = fileState{}
			continue
		}
		files[p] = fileState{exists: true, fp: g.cfg.Hasher.Fingerprint(data)}
	}
	sets := make(map[string]uint64, len(patterns))
	for p := range patterns {
		if err := ctx.Err(); err != nil {
			return 0, err
		}
		matches, err := g.cfg.FS.Glob(p)
		if err != nil {
			// Force a rerun; the request surfaces the error itself.
			sets[p] = ^g.cfg.Hasher.FingerprintSet(nil)
			continue
		}
		sets[p] = g.cfg.Hasher.FingerprintSet(matches)
	}

	g.mu.Lock()
	defer g.mu.Unlock()
	var dirty []*node
	for _, n := range g.nodes {
		if n.state == domain.StateValid && g.changedLocked(n, files, sets) {
			dirty = append(dirty, n)
		}
	}
	return g.markLocked(dirty), nil
}

// changedLocked reports whether any input n tracked differs from what is observed now.
func (g *Graph) changedLocked(n *node, files map[string]fileState, sets map[string]uint64) bool {
	for p, f := range n.files {
		now := files[p]
		if !now.exists || (!f.StatOnly && now.fp != f.Fingerprint) {
			return true
		}
	}
	for p, c := range n.creates {
		if sets[p] != c.Fingerprint {
			return true
		}
	}
	for k, v := range n.env {
		if g.env[k] != v {
			return true
		}
	}
	for k, v := range n.options {
		if g.options[k] != v {
			return true
		}
	}
	return false
}
