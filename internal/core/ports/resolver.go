package ports

import "context"

// InvalidationRecorder is handed to plugins so every file probe they make
// becomes an invalidation record of the running request.
type InvalidationRecorder interface {
	// ReadFile reads name and invalidates the request when its content changes.
	ReadFile(name string) ([]byte, error)
	// IsFile probes name. A missing file invalidates the request when it is created;
	// an existing one when it changes or is deleted.
	IsFile(name string) bool
}

// Resolver maps a dependency specifier to a project file.
//
//go:generate go run go.uber.org/mock/mockgen -source=resolver.go -destination=mocks/mock_resolver.go -package=mocks
type Resolver interface {
	// Resolve returns the name of the file specifier refers to when imported
	// from from. It returns a resolution diagnostic when nothing matches.
	Resolve(ctx context.Context, from, specifier string, rec InvalidationRecorder) (string, error)
}
