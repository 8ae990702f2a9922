// Package requestgraph memoizes build steps as requests. Each request records
// the files, globs, env vars and options it observed, plus the subrequests it
// ran; a change to any of them invalidates the request and every ancestor.
package requestgraph

import (
	"context"
	"maps"
	"sync"

	"go.trai.ch/knit/internal/core/domain"
	"go.trai.ch/knit/internal/core/ports"
)

// Config holds the collaborators of a Graph.
type Config struct {
	FS     ports.FileSystem
	Hasher ports.Hasher
	Pool   ports.WorkerPool
	Logger ports.Logger
	// Cache stores request results. Nil disables persistence.
	Cache ports.Cache
}

// Graph is the request graph. A single mutex serializes every state
// transition and edge insertion; request bodies run outside of it.
type Graph struct {
	cfg Config

	mu         sync.Mutex
	nodes      map[domain.RequestID]*node
	generation uint64
	env        map[string]string
	options    map[string]string
	persist    bool
	tracer     ports.Tracer
}

// New creates an empty Graph.
func New(cfg Config) *Graph {
	return &Graph{
		cfg:     cfg,
		nodes:   make(map[domain.RequestID]*node),
		env:     map[string]string{},
		options: map[string]string{},
		persist: cfg.Cache != nil,
		tracer:  nopTracer{},
	}
}

// SetEnv replaces the environment snapshot requests observe.
func (g *Graph) SetEnv(env map[string]string) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.env = maps.Clone(env)
}

// SetOptions replaces the build options requests observe.
func (g *Graph) SetOptions(options map[string]string) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.options = maps.Clone(options)
}

// SetTracer sets the tracer request spans are recorded with. Nil disables tracing.
func (g *Graph) SetTracer(t ports.Tracer) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if t == nil {
		t = nopTracer{}
	}
	g.tracer = t
}

// SetPersist toggles writing results to the cache. It has no effect without a cache.
func (g *Graph) SetPersist(enable bool) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.persist = enable && g.cfg.Cache != nil
}

// Generation returns the current build generation.
func (g *Graph) Generation() uint64 {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.generation
}

// Len returns the number of request nodes.
func (g *Graph) Len() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return len(g.nodes)
}

// State returns the state of request id.
func (g *Graph) State(id domain.RequestID) (domain.RequestState, bool) {
	g.mu.Lock()
	defer g.mu.Unlock()
	n, ok := g.nodes[id]
	if !ok {
		return domain.StateIncomplete, false
	}
	return n.state, true
}

// Clear drops every node. Persisted results are left to the cache owner.
func (g *Graph) Clear() {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.nodes = make(map[domain.RequestID]*node)
}

// Tracer returns the tracer set by SetTracer, or one that records nothing.
func (g *Graph) Tracer() ports.Tracer {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.tracer
}

// nopTracer records nothing.
type nopTracer struct{}

func (nopTracer) Start(ctx context.Context, _ string, _ ...ports.SpanOption) (context.Context, ports.Span) {
	return ctx, nopSpan{}
}

func (nopTracer) EmitPlan(context.Context, []string) {}

type nopSpan struct{}

func (nopSpan) Write(p []byte) (int, error) { return len(p), nil }
func (nopSpan) End()                        {}
func (nopSpan) RecordError(error)           {}
func (nopSpan) SetAttribute(string, any)    {}
