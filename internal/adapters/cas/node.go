package cas

import (
	"context"

	"github.com/grindlemire/graft"
	"go.trai.ch/knit/internal/adapters/logger"
	"go.trai.ch/knit/internal/core/ports"
)

// NodeID is the unique identifier for the cache opener Graft node.
const NodeID graft.ID = "adapter.cache"

// Opener opens cache stores for a configured cache directory.
type Opener struct {
	logger ports.Logger
}

// NewOpener creates an Opener that logs through logger.
func NewOpener(logger ports.Logger) *Opener {
	return &Opener{logger: logger}
}

// Open opens the store under dir with the named compression.
func (o *Opener) Open(dir, compression string) (ports.Cache, error) {
	c, err := ParseCompression(compression)
	if err != nil {
		return nil, err
	}
	return Open(dir, o.logger, Options{Compression: c})
}

func init() {
	graft.Register(graft.Node[*Opener]{
		ID:        NodeID,
		Cacheable: true,
		DependsOn: []graft.ID{logger.NodeID},
		Run: func(ctx context.Context) (*Opener, error) {
			log, err := graft.Dep[ports.Logger](ctx)
			if err != nil {
				return nil, err
			}
			return NewOpener(log), nil
		},
	})
}
