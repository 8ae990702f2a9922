package requestgraph

import (
	"context"
	"sync"

	"go.trai.ch/knit/internal/core/domain"
	"go.trai.ch/knit/internal/core/ports"
)

// RunContext is handed to a running request. Every file probe, env read and
// option read made through it becomes an invalidation record of the request,
// and every request run through it becomes a subrequest.
type RunContext struct {
	g *Graph
	n *node

	mu  sync.Mutex
	rec inputs
}

var _ ports.InvalidationRecorder = (*RunContext)(nil)

func newRunContext(g *Graph, n *node) *RunContext {
	return &RunContext{g: g, n: n, rec: newInputs()}
}

func (rc *RunContext) runner() (*Graph, *node) { return rc.g, rc.n }

// ReadFile reads name and tracks its content. A missing file is tracked as a
// path whose creation invalidates the request.
func (rc *RunContext) ReadFile(name string) ([]byte, error) {
	data, err := rc.g.cfg.FS.ReadFile(name)
	if err != nil {
		rc.trackCreate(name, nil)
		return nil, err
	}
	rc.trackFile(domain.FileInvalidation{Path: name, Fingerprint: rc.g.cfg.Hasher.Fingerprint(data)})
	return data, nil
}

// IsFile probes name, tracking its existence.
func (rc *RunContext) IsFile(name string) bool {
	if rc.g.cfg.FS.IsFile(name) {
		rc.trackFile(domain.FileInvalidation{Path: name, StatOnly: true})
		return true
	}
	rc.trackCreate(name, nil)
	return false
}

// Glob expands pattern, tracking the set of matches.
func (rc *RunContext) Glob(pattern string) ([]string, error) {
	matches, err := rc.g.cfg.FS.Glob(pattern)
	if err != nil {
		return nil, err
	}
	rc.trackCreate(pattern, matches)
	return matches, nil
}

// Env returns the value of an environment variable from the build's env snapshot.
func (rc *RunContext) Env(name string) string {
	rc.g.mu.Lock()
	v := rc.g.env[name]
	rc.g.mu.Unlock()

	rc.mu.Lock()
	rc.rec.env[name] = v
	rc.mu.Unlock()
	return v
}

// Option returns the value of a build option.
func (rc *RunContext) Option(name string) string {
	rc.g.mu.Lock()
	v := rc.g.options[name]
	rc.g.mu.Unlock()

	rc.mu.Lock()
	rc.rec.options[name] = v
	rc.mu.Unlock()
	return v
}

// Dispatch sends task to the worker pool.
func (rc *RunContext) Dispatch(ctx context.Context, task domain.WorkerTask) (ports.Future, error) {
	return rc.g.cfg.Pool.Dispatch(ctx, task)
}

// Logger returns the graph's logger.
func (rc *RunContext) Logger() ports.Logger {
	return rc.g.cfg.Logger
}

func (rc *RunContext) trackFile(f domain.FileInvalidation) {
	rc.mu.Lock()
	defer rc.mu.Unlock()
	if prev, ok := rc.rec.files[f.Path]; ok && !prev.StatOnly {
		return
	}
	rc.rec.files[f.Path] = f
}

func (rc *RunContext) trackCreate(pattern string, matches []string) {
	fp := rc.g.cfg.Hasher.FingerprintSet(matches)
	rc.mu.Lock()
	defer rc.mu.Unlock()
	rc.rec.creates[pattern] = domain.CreateInvalidation{Pattern: pattern, Fingerprint: fp}
}

// commitLocked moves the recorded invalidations onto the node. Graph.mu is held.
func (rc *RunContext) commitLocked() {
	rc.mu.Lock()
	defer rc.mu.Unlock()
	rc.n.inputs = rc.rec
	rc.n.live = nil
}

// matches checks ev against what the execution has recorded so far.
func (rc *RunContext) matches(ev domain.InvalidationEvent) bool {
	rc.mu.Lock()
	defer rc.mu.Unlock()
	return rc.rec.matches(ev)
}
