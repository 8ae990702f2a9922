package logger

import (
	"context"
	"os"

	"github.com/grindlemire/graft"
	"go.trai.ch/knit/internal/core/ports"
)

// NodeID is the unique identifier for the logger Graft node.
const NodeID graft.ID = "adapter.logger"

const (
	// EnvDebug enables debug messages when set to any non-empty value.
	EnvDebug = "KNIT_DEBUG"
	// EnvLogFormat selects JSON logs when set to "json".
	EnvLogFormat = "KNIT_LOG_FORMAT"
)

func init() {
	graft.Register(graft.Node[ports.Logger]{
		ID:        NodeID,
		Cacheable: true,
		Run: func(_ context.Context) (ports.Logger, error) {
			l := New()
			l.SetVerbose(os.Getenv(EnvDebug) != "")
			l.SetJSON(os.Getenv(EnvLogFormat) == "json")
			return l, nil
		},
	})
}
