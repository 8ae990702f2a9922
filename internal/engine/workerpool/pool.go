// Package workerpool runs tasks on a fixed set of isolated workers.
package workerpool

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"slices"
	"sync"
	"sync/atomic"

	"go.trai.ch/zerr"

	"go.trai.ch/knit/internal/core/domain"
	"go.trai.ch/knit/internal/core/ports"
)

var _ ports.WorkerPool = (*Pool)(nil)

// Options configure a Pool. Zero values pick the defaults of domain.WorkerOptions.
type Options struct {
	domain.WorkerOptions
	// QueueSize bounds the number of queued tasks. Dispatch blocks while it is full.
	QueueSize int
}

// job is one dispatched task and its retry state.
type job struct {
	ctx      context.Context
	task     domain.WorkerTask
	attempts int
	fut      *future
}

// call is one broadcast request to a single worker.
type call struct {
	ctx     context.Context
	method  string
	payload []byte
	reply   chan domain.WorkerReply
}

// worker owns its handler. A worker that crashes is replaced, never reused.
type worker struct {
	id      int
	handler ports.WorkerHandler
	calls   chan call
	exited  chan struct{}
}

// Pool implements ports.WorkerPool on goroutines. Every worker owns a handler
// built by the factory, so no handler state is shared between workers.
type Pool struct {
	factory ports.WorkerHandlerFactory
	logger  ports.Logger
	opts    Options

	queue chan *job
	done  chan struct{}
	base  context.Context
	stop  context.CancelFunc

	// sendMu is held shared by every enqueue and exclusively by Close
	// before it drains the queue, so no job lands after the drain.
	sendMu sync.RWMutex

	mu      sync.Mutex
	workers map[int]*worker
	nextID  int
	closed  bool
	wg      sync.WaitGroup

	dispatched atomic.Int64
	completed  atomic.Int64
	failed     atomic.Int64
	crashes    atomic.Int64
	respawns   atomic.Int64
	statsMu    sync.Mutex
	byMethod   map[string]int64
}

// New starts a pool of opts.Size workers.
func New(factory ports.WorkerHandlerFactory, logger ports.Logger, opts Options) *Pool {
	opts.WorkerOptions = opts.WithDefaults()
	if opts.QueueSize <= 0 {
		opts.QueueSize = opts.Size * 4
	}
	base, stop := context.WithCancel(context.Background())
	p := &Pool{
		factory:  factory,
		logger:   logger,
		opts:     opts,
		queue:    make(chan *job, opts.QueueSize),
		done:     make(chan struct{}),
		base:     base,
		stop:     stop,
		workers:  make(map[int]*worker, opts.Size),
		byMethod: make(map[string]int64),
	}
	p.mu.Lock()
	for range opts.Size {
		p.spawnLocked()
	}
	p.mu.Unlock()
	return p
}

func (p *Pool) spawnLocked() {
	id := p.nextID
	p.nextID++
	w := &worker{
		id:      id,
		handler: p.factory(id),
		calls:   make(chan call),
		exited:  make(chan struct{}),
	}
	p.workers[id] = w
	p.wg.Add(1)
	go p.run(w)
}

// Size implements ports.WorkerPool.
func (p *Pool) Size() int {
	return p.opts.Size
}

// Dispatch implements ports.WorkerPool.
func (p *Pool) Dispatch(ctx context.Context, task domain.WorkerTask) (ports.Future, error) {
	p.sendMu.RLock()
	defer p.sendMu.RUnlock()

	p.mu.Lock()
	closed := p.closed
	p.mu.Unlock()
	if closed {
		return nil, domain.ErrPoolClosed
	}

	j := &job{
		ctx:  ctx,
		task: domain.WorkerTask{Method: task.Method, Payload: bytes.Clone(task.Payload)},
		fut:  newFuture(),
	}
	select {
	case p.queue <- j:
	case <-ctx.Done():
		return nil, ctx.Err()
	case <-p.done:
		return nil, domain.ErrPoolClosed
	}

	p.dispatched.Add(1)
	p.statsMu.Lock()
	p.byMethod[task.Method]++
	p.statsMu.Unlock()
	return j.fut, nil
}

// CallAllWorkers implements ports.WorkerPool. Every live worker answers once.
// domain.MethodPing is answered by the worker loop without touching the handler.
func (p *Pool) CallAllWorkers(ctx context.Context, method string, payload []byte) ([]domain.WorkerReply, error) {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return nil, domain.ErrPoolClosed
	}
	workers := make([]*worker, 0, len(p.workers))
	for _, w := range p.workers {
		workers = append(workers, w)
	}
	p.mu.Unlock()
	slices.SortFunc(workers, func(a, b *worker) int { return a.id - b.id })

	pending := make([]chan domain.WorkerReply, len(workers))
	for i, w := range workers {
		c := call{ctx: ctx, method: method, payload: bytes.Clone(payload), reply: make(chan domain.WorkerReply, 1)}
		pending[i] = c.reply
		select {
		case w.calls <- c:
		case <-w.exited:
			c.reply <- domain.WorkerReply{WorkerID: w.id, Err: domain.NewWorkerCrashError(method, 1, errExited)}
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}

	replies := make([]domain.WorkerReply, len(workers))
	for i, ch := range pending {
		select {
		case replies[i] = <-ch:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	return replies, nil
}

var errExited = errors.New("worker exited")

// Stats implements ports.WorkerPool.
func (p *Pool) Stats() domain.WorkerStats {
	p.mu.Lock()
	live := len(p.workers)
	p.mu.Unlock()
	p.statsMu.Lock()
	byMethod := make(map[string]int64, len(p.byMethod))
	for k, v := range p.byMethod {
		byMethod[k] = v
	}
	p.statsMu.Unlock()
	return domain.WorkerStats{
		Workers:    live,
		Dispatched: p.dispatched.Load(),
		Completed:  p.completed.Load(),
		Failed:     p.failed.Load(),
		Crashes:    p.crashes.Load(),
		Respawns:   p.respawns.Load(),
		ByMethod:   byMethod,
	}
}

// Close implements ports.WorkerPool. Tasks still queued resolve with ErrPoolClosed.
func (p *Pool) Close() error {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return nil
	}
	p.closed = true
	p.mu.Unlock()

	close(p.done)
	p.stop()
	p.wg.Wait()

	p.sendMu.Lock()
	defer p.sendMu.Unlock()
	for {
		select {
		case j := <-p.queue:
			j.fut.resolve(nil, domain.ErrPoolClosed)
		default:
			return nil
		}
	}
}

// run is the worker loop.
func (p *Pool) run(w *worker) {
	defer p.wg.Done()
	defer close(w.exited)
	for {
		select {
		case <-p.done:
			return
		case c := <-w.calls:
			if !p.serveCall(w, c) {
				return
			}
		case j := <-p.queue:
			if !p.serveJob(w, j) {
				return
			}
		}
	}
}

// serveCall answers one broadcast call. It reports false when the worker crashed.
func (p *Pool) serveCall(w *worker, c call) bool {
	if c.method == domain.MethodPing {
		c.reply <- domain.WorkerReply{WorkerID: w.id, Payload: []byte(domain.PingReply)}
		return true
	}
	out, err := p.invoke(c.ctx, w, c.method, c.payload)
	c.reply <- domain.WorkerReply{WorkerID: w.id, Payload: out, Err: err}
	if isCrash(err) {
		p.replace(w)
		return false
	}
	return true
}

// serveJob runs one task. It reports false when the worker crashed.
func (p *Pool) serveJob(w *worker, j *job) bool {
	if err := j.ctx.Err(); err != nil {
		p.failed.Add(1)
		j.fut.resolve(nil, err)
		return true
	}

	ctx, cancel := context.WithCancel(j.ctx)
	defer cancel()
	stop := context.AfterFunc(p.base, cancel)
	defer stop()
	if p.opts.TaskTimeout > 0 {
		var cancelTimeout context.CancelFunc
		ctx, cancelTimeout = context.WithTimeoutCause(ctx, p.opts.TaskTimeout, domain.ErrTaskTimeout)
		defer cancelTimeout()
	}

	j.attempts++
	out, err := p.invoke(ctx, w, j.task.Method, j.task.Payload)
	if !isCrash(err) {
		if err == nil {
			p.completed.Add(1)
		} else {
			p.failed.Add(1)
			if errors.Is(context.Cause(ctx), domain.ErrTaskTimeout) {
				err = zerr.With(fmt.Errorf("%w: %w", domain.ErrTaskTimeout, err), "timeout", p.opts.TaskTimeout.String())
			}
		}
		j.fut.resolve(out, err)
		return true
	}

	p.crashes.Add(1)
	p.logger.Warn(fmt.Sprintf("worker %d crashed running %q (attempt %d): %v", w.id, j.task.Method, j.attempts, err))
	p.replace(w)
	if j.attempts > p.opts.MaxRetries {
		p.failed.Add(1)
		j.fut.resolve(nil, domain.NewWorkerCrashError(j.task.Method, j.attempts, err))
		return false
	}
	p.wg.Add(1)
	go p.requeue(j)
	return false
}

func (p *Pool) requeue(j *job) {
	defer p.wg.Done()
	select {
	case p.queue <- j:
	case <-p.done:
		j.fut.resolve(nil, domain.ErrPoolClosed)
	case <-j.ctx.Done():
		p.failed.Add(1)
		j.fut.resolve(nil, j.ctx.Err())
	}
}

// invoke runs the handler and turns a panic into a crash error.
func (p *Pool) invoke(ctx context.Context, w *worker, method string, payload []byte) (out []byte, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = &crashError{cause: fmt.Errorf("panic: %v", r)}
		}
	}()
	out, err = w.handler.Handle(ctx, method, bytes.Clone(payload))
	if err != nil && errors.Is(err, domain.ErrWorkerCrash) {
		return nil, &crashError{cause: err}
	}
	return bytes.Clone(out), err
}

// replace removes w and spawns a fresh worker unless the pool is closing.
func (p *Pool) replace(w *worker) {
	p.mu.Lock()
	defer p.mu.Unlock()
	delete(p.workers, w.id)
	if p.closed {
		return
	}
	p.respawns.Add(1)
	p.spawnLocked()
}

// crashError marks a failure that killed the worker.
type crashError struct {
	cause error
}

func (e *crashError) Error() string { return e.cause.Error() }

func (e *crashError) Unwrap() error { return e.cause }

func isCrash(err error) bool {
	var c *crashError
	return errors.As(err, &c)
}

// Ping warms the pool: every live worker must answer domain.MethodPing.
func Ping(ctx context.Context, pool ports.WorkerPool) error {
	replies, err := pool.CallAllWorkers(ctx, domain.MethodPing, nil)
	if err != nil {
		return err
	}
	var errs error
	for _, r := range replies {
		if r.Err != nil {
			errs = errors.Join(errs, zerr.With(r.Err, "worker", r.WorkerID))
		} else if string(r.Payload) != domain.PingReply {
			errs = errors.Join(errs, zerr.With(zerr.New("unexpected ping reply"), "worker", r.WorkerID))
		}
	}
	return errs
}
