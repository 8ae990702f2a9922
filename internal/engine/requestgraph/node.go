package requestgraph

import (
	"slices"
	"strings"

	"go.trai.ch/knit/internal/core/domain"
)

// node is one request in the graph. All fields are guarded by Graph.mu.
type node struct {
	id        domain.RequestID
	kind      domain.RequestKind
	key       string
	ephemeral bool

	state     domain.RequestState
	value     any
	hasValue  bool
	resultKey string
	err       error
	errGen    uint64
	stale     bool
	flight    chan struct{}

	subrequests []domain.RequestID
	parents     map[domain.RequestID]struct{}

	inputs
	// live is the RunContext of the current execution, while Running.
	live *RunContext
}

// inputs are the invalidation records of one execution.
type inputs struct {
	files   map[string]domain.FileInvalidation
	creates map[string]domain.CreateInvalidation
	env     map[string]string
	options map[string]string
}

func newInputs() inputs {
	return inputs{
		files:   make(map[string]domain.FileInvalidation),
		creates: make(map[string]domain.CreateInvalidation),
		env:     make(map[string]string),
		options: make(map[string]string),
	}
}

func newNode(id domain.RequestID, kind domain.RequestKind, key string) *node {
	return &node{
		id:      id,
		kind:    kind,
		key:     key,
		state:   domain.StateIncomplete,
		parents: make(map[domain.RequestID]struct{}),
	}
}

// label names the node in cycle paths and spans.
func (n *node) label() string {
	key := strings.ReplaceAll(n.key, "\x00", " ")
	if key == "" {
		return string(n.kind)
	}
	return string(n.kind) + " " + key
}

func (n *node) clearValue() {
	n.value = nil
	n.hasValue = false
}

// nodeLocked returns the node for id, creating it on first reference.
func (g *Graph) nodeLocked(id domain.RequestID, kind domain.RequestKind, key string, ephemeral bool) *node {
	n, ok := g.nodes[id]
	if !ok {
		n = newNode(id, kind, key)
		g.nodes[id] = n
	}
	n.ephemeral = ephemeral
	return n
}

// linkLocked records that parent waits on child, failing on a cycle.
func (g *Graph) linkLocked(parent, child *node) error {
	if parent.id == child.id {
		return domain.NewCyclicRequestError(parent.label() + " -> " + child.label())
	}
	if path := g.pathLocked(child.id, parent.id); path != nil {
		labels := []string{parent.label()}
		for _, id := range path {
			labels = append(labels, g.nodes[id].label())
		}
		return domain.NewCyclicRequestError(strings.Join(labels, " -> "))
	}
	if !slices.Contains(parent.subrequests, child.id) {
		parent.subrequests = append(parent.subrequests, child.id)
	}
	child.parents[parent.id] = struct{}{}
	return nil
}

// pathLocked returns the subrequest path from -> ... -> to, or nil.
func (g *Graph) pathLocked(from, to domain.RequestID) []domain.RequestID {
	visited := make(map[domain.RequestID]bool)
	var walk func(id domain.RequestID) []domain.RequestID
	walk = func(id domain.RequestID) []domain.RequestID {
		if id == to {
			return []domain.RequestID{id}
		}
		if visited[id] {
			return nil
		}
		visited[id] = true
		n, ok := g.nodes[id]
		if !ok {
			return nil
		}
		for _, c := range n.subrequests {
			if rest := walk(c); rest != nil {
				return append([]domain.RequestID{id}, rest...)
			}
		}
		return nil
	}
	return walk(from)
}

// unlinkChildrenLocked drops the outgoing subrequest edges of n.
func (g *Graph) unlinkChildrenLocked(n *node) {
	for _, c := range n.subrequests {
		if child, ok := g.nodes[c]; ok {
			delete(child.parents, n.id)
		}
	}
	n.subrequests = nil
}
