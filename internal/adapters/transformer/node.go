package transformer

import (
	"context"

	"github.com/grindlemire/graft"
)

// NodeID is the unique identifier for the transformer pipeline Graft node.
const NodeID graft.ID = "adapter.transformer"

func init() {
	graft.Register(graft.Node[*Pipeline]{
		ID:        NodeID,
		Cacheable: true,
		Run: func(_ context.Context) (*Pipeline, error) {
			return NewPipeline(Defaults()...), nil
		},
	})
}
