package ports

import (
	"context"

	"go.trai.ch/knit/internal/core/domain"
)

// Future is the eventual result of a dispatched worker task.
type Future interface {
	// Await blocks until the task finishes or ctx is done.
	Await(ctx context.Context) ([]byte, error)
	// Done is closed once the result is available.
	Done() <-chan struct{}
}

// WorkerPool runs tasks on a fixed set of isolated workers.
//
//go:generate go run go.uber.org/mock/mockgen -source=worker_pool.go -destination=mocks/mock_worker_pool.go -package=mocks
type WorkerPool interface {
	// Dispatch queues task, blocking while the queue is full.
	Dispatch(ctx context.Context, task domain.WorkerTask) (Future, error)
	// CallAllWorkers runs method on every live worker and returns one reply each.
	CallAllWorkers(ctx context.Context, method string, payload []byte) ([]domain.WorkerReply, error)
	// Size returns the number of workers.
	Size() int
	// Stats returns cumulative counters.
	Stats() domain.WorkerStats
	// Close stops every worker. Pending futures fail with ErrPoolClosed.
	Close() error
}

// WorkerHandler serves tasks inside one worker. Each worker owns its own handler.
type WorkerHandler interface {
	Handle(ctx context.Context, method string, payload []byte) ([]byte, error)
}

// WorkerHandlerFactory builds the handler of a freshly spawned worker.
type WorkerHandlerFactory func(workerID int) WorkerHandler
