package ports

import (
	"context"

	"go.trai.ch/knit/internal/core/domain"
)

// Reporter receives build lifecycle events.
//
//go:generate go run go.uber.org/mock/mockgen -source=reporter.go -destination=mocks/mock_reporter.go -package=mocks
type Reporter interface {
	Report(ctx context.Context, event domain.ReporterEvent)
}
