package bundler

import (
	"context"

	"github.com/grindlemire/graft"
	"go.trai.ch/knit/internal/core/ports"
)

const (
	// PackagerNodeID is the unique identifier for the packager Graft node.
	PackagerNodeID graft.ID = "adapter.packager"
	// NodeID is the unique identifier for the bundling policies Graft node.
	NodeID graft.ID = "adapter.bundlers"
)

func init() {
	graft.Register(graft.Node[ports.Packager]{
		ID:        PackagerNodeID,
		Cacheable: true,
		Run: func(_ context.Context) (ports.Packager, error) {
			return NewPackager(), nil
		},
	})

	graft.Register(graft.Node[[]ports.Bundler]{
		ID:        NodeID,
		Cacheable: true,
		Run: func(_ context.Context) ([]ports.Bundler, error) {
			return All(), nil
		},
	})
}
