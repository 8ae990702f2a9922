package workerpool

import (
	"bytes"
	"context"
	"sync"

	"go.trai.ch/knit/internal/core/ports"
)

var _ ports.Future = (*future)(nil)

// future is resolved exactly once by the worker that finishes its task.
type future struct {
	once   sync.Once
	done   chan struct{}
	result []byte
	err    error
}

func newFuture() *future {
	return &future{done: make(chan struct{})}
}

func (f *future) resolve(result []byte, err error) {
	f.once.Do(func() {
		f.result = bytes.Clone(result)
		f.err = err
		close(f.done)
	})
}

// Await implements ports.Future.
func (f *future) Await(ctx context.Context) ([]byte, error) {
	select {
	case <-f.done:
		return bytes.Clone(f.result), f.err
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// Done implements ports.Future.
func (f *future) Done() <-chan struct{} {
	return f.done
}
