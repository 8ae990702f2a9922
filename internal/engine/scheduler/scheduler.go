// Package scheduler packages the bundles of a bundle graph in child-first order.
package scheduler

import (
	"context"
	"errors"
	"slices"
	"sync"

	"go.trai.ch/knit/internal/core/domain"
	"go.trai.ch/knit/internal/core/ports"
)

// BundleStatus represents the status of a bundle.
type BundleStatus string

const (
	// StatusPending indicates the bundle is waiting for its children.
	StatusPending BundleStatus = "Pending"
	// StatusRunning indicates the bundle is being packaged.
	StatusRunning BundleStatus = "Running"
	// StatusCompleted indicates the bundle was packaged.
	StatusCompleted BundleStatus = "Completed"
	// StatusFailed indicates packaging the bundle failed.
	StatusFailed BundleStatus = "Failed"
)

// PackFunc packages one bundle. It runs only after every child of the bundle completed.
type PackFunc func(ctx context.Context, idx domain.BundleIndex) (domain.BundleInfo, error)

// Scheduler runs a PackFunc over every bundle of a graph with bounded parallelism.
type Scheduler struct {
	tracer ports.Tracer

	mu           sync.RWMutex
	bundleStatus map[domain.BundleIndex]BundleStatus
}

// NewScheduler creates a new Scheduler recording spans with tracer.
func NewScheduler(tracer ports.Tracer) *Scheduler {
	return &Scheduler{
		tracer:       tracer,
		bundleStatus: make(map[domain.BundleIndex]BundleStatus),
	}
}

func (s *Scheduler) updateStatus(idx domain.BundleIndex, status BundleStatus) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.bundleStatus[idx] = status
}

// Status returns the status of bundle idx in the latest run.
func (s *Scheduler) Status(idx domain.BundleIndex) BundleStatus {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.bundleStatus[idx]
}

// Run packages every bundle of graph, children before parents. It returns the
// infos in bundle index order. A failed bundle blocks its ancestors; siblings
// keep going. After cancellation no new bundle is started.
func (s *Scheduler) Run(
	ctx context.Context,
	graph *domain.BundleGraph,
	parallelism int,
	pack PackFunc,
) ([]domain.BundleInfo, error) {
	state := s.newRunState(ctx, graph, parallelism, pack)

	s.mu.Lock()
	s.bundleStatus = make(map[domain.BundleIndex]BundleStatus, len(graph.Bundles))
	for bi := range graph.Bundles {
		s.bundleStatus[domain.BundleIndex(bi)] = StatusPending
	}
	s.mu.Unlock()

	s.tracer.EmitPlan(ctx, state.plan())

	if err := state.runExecutionLoop(); err != nil {
		return nil, err
	}
	return state.infos, nil
}

type result struct {
	bundle domain.BundleIndex
	info   domain.BundleInfo
	err    error
}

type schedulerRunState struct {
	graph       *domain.BundleGraph
	inDegree    []int
	parents     [][]domain.BundleIndex
	ready       []domain.BundleIndex
	active      int
	resultsCh   chan result
	errs        error
	ctx         context.Context
	parallelism int
	pack        PackFunc
	s           *Scheduler
	infos       []domain.BundleInfo
}

func (s *Scheduler) newRunState(
	ctx context.Context,
	graph *domain.BundleGraph,
	parallelism int,
	pack PackFunc,
) *schedulerRunState {
	parallelism = max(parallelism, 1)
	n := len(graph.Bundles)
	inDegree := make([]int, n)
	parents := make([][]domain.BundleIndex, n)
	for bi, b := range graph.Bundles {
		seen := make(map[domain.BundleIndex]bool, len(b.Children))
		for _, c := range b.Children {
			if seen[c] {
				continue
			}
			seen[c] = true
			inDegree[bi]++
			parents[c] = append(parents[c], domain.BundleIndex(bi))
		}
	}

	var ready []domain.BundleIndex
	for bi, degree := range inDegree {
		if degree == 0 {
			ready = append(ready, domain.BundleIndex(bi))
		}
	}

	return &schedulerRunState{
		graph:       graph,
		inDegree:    inDegree,
		parents:     parents,
		ready:       ready,
		resultsCh:   make(chan result, parallelism),
		ctx:         ctx,
		parallelism: parallelism,
		pack:        pack,
		s:           s,
		infos:       make([]domain.BundleInfo, n),
	}
}

// plan lists the bundle names in the order they become ready when nothing fails.
func (state *schedulerRunState) plan() []string {
	degree := slices.Clone(state.inDegree)
	queue := slices.Clone(state.ready)
	names := make([]string, 0, len(state.graph.Bundles))
	for len(queue) > 0 {
		bi := queue[0]
		queue = queue[1:]
		names = append(names, state.graph.Bundles[bi].Name)
		for _, p := range state.parents[bi] {
			degree[p]--
			if degree[p] == 0 {
				queue = append(queue, p)
			}
		}
	}
	return names
}

func (state *schedulerRunState) runExecutionLoop() error {
	cancelled := state.ctx.Done()
	for !state.isDone() {
		state.schedule()

		if state.isDone() {
			break
		}

		if state.ctx.Err() != nil && state.active == 0 {
			return errors.Join(state.errs, state.ctx.Err())
		}

		select {
		case res := <-state.resultsCh:
			state.handleResult(res)
		case <-cancelled:
			// Nothing new starts once cancelled; wait on the active bundles only.
			cancelled = nil
		}
	}

	if state.ctx.Err() != nil {
		state.errs = errors.Join(state.errs, state.ctx.Err())
	}

	return state.errs
}

func (state *schedulerRunState) isDone() bool {
	return state.active == 0 && len(state.ready) == 0
}

func (state *schedulerRunState) schedule() {
	for len(state.ready) > 0 && state.active < state.parallelism && state.ctx.Err() == nil {
		bi := state.ready[0]
		state.ready = state.ready[1:]

		state.active++
		state.s.updateStatus(bi, StatusRunning)
		go state.packBundle(bi)
	}
}

func (state *schedulerRunState) packBundle(bi domain.BundleIndex) {
	// The span ends before the result is sent so it is recorded by the time
	// the loop finishes.
	res := func() result {
		b := &state.graph.Bundles[bi]
		ctx, span := state.s.tracer.Start(state.ctx, b.Name, ports.WithKind("bundle"))
		defer span.End()

		info, err := state.pack(ctx, bi)
		if err != nil {
			span.RecordError(err)
			return result{bundle: bi, err: err}
		}
		span.SetAttribute("size", info.Size)
		return result{bundle: bi, info: info}
	}()

	state.resultsCh <- res
}

func (state *schedulerRunState) handleResult(res result) {
	state.active--

	if res.err != nil {
		state.errs = errors.Join(state.errs, res.err)
		state.s.updateStatus(res.bundle, StatusFailed)
		return
	}

	state.s.updateStatus(res.bundle, StatusCompleted)
	state.infos[res.bundle] = res.info
	for _, p := range state.parents[res.bundle] {
		state.inDegree[p]--
		if state.inDegree[p] == 0 {
			state.ready = append(state.ready, p)
		}
	}
}
