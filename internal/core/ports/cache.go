package ports

import (
	"context"
	"iter"
)

// Cache is a content-addressed blob store. Keys are immutable: a key, once
// written, always maps to the same bytes. Refs are mutable named pointers to keys.
//
//go:generate go run go.uber.org/mock/mockgen -source=cache.go -destination=mocks/mock_cache.go -package=mocks
type Cache interface {
	// Get returns the blob for key. A missing, corrupt, or version-skewed entry
	// reports ok=false without an error.
	Get(ctx context.Context, key string) (blob []byte, ok bool, err error)
	// Set stores blob under key. Setting an existing key is a no-op.
	Set(ctx context.Context, key string, blob []byte) error
	// Has reports whether key is present in the current schema version.
	Has(ctx context.Context, key string) (bool, error)
	// Delete removes key.
	Delete(ctx context.Context, key string) error
	// Keys yields every key in the current schema version.
	Keys(ctx context.Context) iter.Seq2[string, error]

	// Ref returns the key a ref points to.
	Ref(ctx context.Context, name string) (key string, ok bool, err error)
	// SetRef points name at key.
	SetRef(ctx context.Context, name, key string) error

	// Clear removes every entry and ref atomically.
	Clear(ctx context.Context) error
	// Close releases the store.
	Close() error
}

// CacheOpener opens the cache store living in a directory.
type CacheOpener interface {
	// Open opens or creates the store in dir using the named compression.
	Open(dir, compression string) (Cache, error)
}
