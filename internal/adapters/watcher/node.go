package watcher

import (
	"context"

	"github.com/grindlemire/graft"
	"go.trai.ch/knit/internal/adapters/logger"
	"go.trai.ch/knit/internal/core/ports"
)

// NodeID is the unique identifier for the watcher factory Graft node.
const NodeID graft.ID = "adapter.watcher"

// Factory creates watchers; a watch session needs the project's ignore list,
// which is only known after the config is loaded.
type Factory struct {
	logger ports.Logger
}

// NewFactory returns a Factory whose watchers log through logger.
func NewFactory(logger ports.Logger) *Factory {
	return &Factory{logger: logger}
}

// New creates a watcher skipping the given directory names.
func (f *Factory) New(ignores ...string) (*Watcher, error) {
	return NewWatcher(f.logger, ignores...)
}

func init() {
	graft.Register(graft.Node[*Factory]{
		ID:        NodeID,
		Cacheable: true,
		DependsOn: []graft.ID{logger.NodeID},
		Run: func(ctx context.Context) (*Factory, error) {
			log, err := graft.Dep[ports.Logger](ctx)
			if err != nil {
				return nil, err
			}
			return NewFactory(log), nil
		},
	})
}
