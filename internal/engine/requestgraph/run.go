package requestgraph

import (
	"context"
	"slices"
	"strconv"

	"go.trai.ch/knit/internal/adapters/codec"
	"go.trai.ch/knit/internal/core/domain"
	"go.trai.ch/knit/internal/core/ports"
)

// resultVersion is mixed into every result key; bump it when request results change shape.
const resultVersion = "1"

// Request is a memoized unit of work producing a T. Results cross the cache as CBOR.
type Request[T any] struct {
	Kind domain.RequestKind
	Key  string
	// Ephemeral results are kept in memory only.
	Ephemeral bool
	Run       func(ctx context.Context, rc *RunContext) (T, error)
}

// ID returns the stable id of the request.
func (r Request[T]) ID() domain.RequestID {
	return domain.NewRequestID(r.Kind, r.Key)
}

// Runner is either the Graph itself, for top-level requests, or the RunContext
// of a running request, which records the call as a subrequest edge.
type Runner interface {
	runner() (*Graph, *node)
}

func (g *Graph) runner() (*Graph, *node) { return g, nil }

// Run returns the memoized result of req, executing it when it is not Valid.
// Concurrent callers of the same request share a single execution.
func Run[T any](ctx context.Context, r Runner, req Request[T]) (T, error) {
	g, parent := r.runner()
	id := req.ID()
	var zero T
	for {
		if err := ctx.Err(); err != nil {
			return zero, err
		}

		g.mu.Lock()
		n := g.nodeLocked(id, req.Kind, req.Key, req.Ephemeral)
		if parent != nil {
			if err := g.linkLocked(parent, n); err != nil {
				g.mu.Unlock()
				return zero, err
			}
		}

		switch n.state {
		case domain.StateValid:
			if v, ok := n.value.(T); ok && n.hasValue {
				g.mu.Unlock()
				return v, nil
			}
			resultKey := n.resultKey
			g.mu.Unlock()
			v, ok := load[T](ctx, g, resultKey)
			g.mu.Lock()
			current := n.state == domain.StateValid && n.resultKey == resultKey
			if current {
				if ok {
					n.value, n.hasValue = v, true
					g.mu.Unlock()
					return v, nil
				}
				// Result evicted from the cache.
				n.state = domain.StateInvalid
			}
			g.mu.Unlock()
			continue

		case domain.StateRunning:
			flight := n.flight
			g.mu.Unlock()
			select {
			case <-flight:
			case <-ctx.Done():
				return zero, ctx.Err()
			}
			g.mu.Lock()
			if n.state == domain.StateErrored {
				err := n.err
				g.mu.Unlock()
				return zero, err
			}
			g.mu.Unlock()
			continue

		case domain.StateErrored:
			if n.errGen == g.generation {
				err := n.err
				g.mu.Unlock()
				return zero, err
			}
		}

		rc, flight := g.beginLocked(n)
		g.mu.Unlock()
		return execute(ctx, rc, req, flight)
	}
}

// beginLocked moves n to Running and forgets everything its last run recorded.
func (g *Graph) beginLocked(n *node) (*RunContext, chan struct{}) {
	g.unlinkChildrenLocked(n)
	n.state = domain.StateRunning
	n.clearValue()
	n.resultKey = ""
	n.err = nil
	n.stale = false
	n.inputs = inputs{}
	n.live = newRunContext(g, n)
	n.flight = make(chan struct{})
	return n.live, n.flight
}

func execute[T any](ctx context.Context, rc *RunContext, req Request[T], flight chan struct{}) (T, error) {
	g, n := rc.g, rc.n

	spanCtx, span := g.Tracer().Start(ctx, n.label(), ports.WithKind(string(req.Kind)))
	v, err := req.Run(spanCtx, rc)
	var blob []byte
	if err == nil {
		blob, err = codec.Marshal(v)
	}
	if err != nil {
		span.RecordError(err)
	}
	span.End()

	g.mu.Lock()
	rc.commitLocked()
	persist := false
	switch {
	case err != nil && ctx.Err() != nil:
		n.state = domain.StateIncomplete
	case err != nil && n.stale:
		n.state = domain.StateInvalid
	case err != nil:
		n.state = domain.StateErrored
		n.err = err
		n.errGen = g.generation
	default:
		n.resultKey = g.resultKeyLocked(n)
		n.value, n.hasValue = v, true
		if n.stale {
			n.state = domain.StateInvalid
		} else {
			n.state = domain.StateValid
		}
		persist = g.persist && !n.ephemeral
	}
	resultKey := n.resultKey
	n.stale = false
	n.flight = nil
	g.mu.Unlock()
	close(flight)

	if err != nil {
		g.cfg.Logger.Debug(n.label() + " failed")
		var zero T
		return zero, err
	}
	if persist {
		if perr := g.cfg.Cache.Set(ctx, resultKey, blob); perr != nil {
			g.cfg.Logger.Warn("could not persist " + n.label() + ": " + perr.Error())
		}
	}
	return v, nil
}

// resultKeyLocked derives the cache key of n's result from everything it
// observed. Two runs with the same key produce the same result.
func (g *Graph) resultKeyLocked(n *node) string {
	parts := []string{"result", resultVersion, string(n.id)}
	for _, p := range sortedKeys(n.files) {
		f := n.files[p]
		parts = append(parts, "f", p, strconv.FormatUint(f.Fingerprint, 16), strconv.FormatBool(f.StatOnly))
	}
	for _, p := range sortedKeys(n.creates) {
		parts = append(parts, "c", p, strconv.FormatUint(n.creates[p].Fingerprint, 16))
	}
	for _, k := range sortedKeys(n.env) {
		parts = append(parts, "e", k, n.env[k])
	}
	for _, k := range sortedKeys(n.options) {
		parts = append(parts, "o", k, n.options[k])
	}
	for _, c := range n.subrequests {
		if child, ok := g.nodes[c]; ok {
			parts = append(parts, "r", child.resultKey)
		}
	}
	return domain.NewContentKey(parts...)
}

func load[T any](ctx context.Context, g *Graph, key string) (T, bool) {
	var v T
	if key == "" || g.cfg.Cache == nil {
		return v, false
	}
	blob, ok, err := g.cfg.Cache.Get(ctx, key)
	if err != nil {
		g.cfg.Logger.Warn("cache read failed: " + err.Error())
		return v, false
	}
	if !ok {
		return v, false
	}
	if err := codec.Unmarshal(blob, &v); err != nil {
		g.cfg.Logger.Warn("cached result is unreadable: " + err.Error())
		return v, false
	}
	return v, true
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	slices.Sort(keys)
	return keys
}
