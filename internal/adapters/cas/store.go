// Package cas implements the content-addressed build cache on an embedded SQLite store.
package cas

import (
	"context"
	"errors"
	"fmt"
	"iter"
	"os"
	"path/filepath"

	"go.trai.ch/knit/internal/core/domain"
	"go.trai.ch/knit/internal/core/ports"
	"go.trai.ch/zerr"
	"zombiezen.com/go/sqlite"
	"zombiezen.com/go/sqlite/sqlitex"
)

// SchemaVersion namespaces every entry. Bump it whenever the encoding of a
// cached value changes; older entries then read as misses.
const SchemaVersion uint16 = 1

// DatabaseName is the file created under the cache directory.
const DatabaseName = "cache.db"

var _ ports.Cache = (*Store)(nil)

// Options configure a Store.
type Options struct {
	// Version overrides SchemaVersion.
	Version uint16
	// Compression is applied to payloads that shrink under it.
	Compression Compression
	// PoolSize is the number of SQLite connections.
	PoolSize int
}

// Store implements ports.Cache.
type Store struct {
	pool        *pool
	logger      ports.Logger
	version     uint16
	compression Compression
}

// Open opens or creates the cache database under dir.
func Open(dir string, logger ports.Logger, opts Options) (*Store, error) {
	if err := os.MkdirAll(dir, 0o750); err != nil {
		return nil, zerr.With(fmt.Errorf("%w: %w", domain.ErrStoreOpenFailed, err), "dir", dir)
	}
	p, err := openPool(filepath.Join(dir, DatabaseName), opts.PoolSize, logger)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", domain.ErrStoreOpenFailed, err)
	}
	version := opts.Version
	if version == 0 {
		version = SchemaVersion
	}
	return &Store{
		pool:        p,
		logger:      logger,
		version:     version,
		compression: opts.Compression,
	}, nil
}

// Get returns the blob for key. Corrupt or version-skewed entries are misses.
func (s *Store) Get(ctx context.Context, key string) ([]byte, bool, error) {
	conn, err := s.pool.take(ctx)
	if err != nil {
		return nil, false, fmt.Errorf("%w: %w", domain.ErrStoreReadFailed, err)
	}
	defer s.pool.put(conn)

	var data []byte
	found := false
	err = sqlitex.Execute(conn, "SELECT blob FROM entries WHERE version = ? AND key = ?", &sqlitex.ExecOptions{
		Args: []any{int64(s.version), key},
		ResultFunc: func(stmt *sqlite.Stmt) error {
			data = make([]byte, stmt.ColumnLen(0))
			stmt.ColumnBytes(0, data)
			found = true
			return nil
		},
	})
	if err != nil {
		return nil, false, zerr.With(fmt.Errorf("%w: %w", domain.ErrStoreReadFailed, err), "key", key)
	}
	if !found {
		return nil, false, nil
	}

	blob, err := open(s.version, data)
	if err != nil {
		s.logger.Warn(fmt.Sprintf("cache entry %s treated as a miss: %s", short(key), missReason(err)))
		return nil, false, nil
	}
	return blob, true, nil
}

// Set stores blob under key unless key already exists.
func (s *Store) Set(ctx context.Context, key string, blob []byte) (err error) {
	if len(blob) > maxEntrySize {
		return zerr.With(zerr.With(domain.ErrStoreWriteFailed, "key", key), "size", len(blob))
	}
	conn, err := s.pool.take(ctx)
	if err != nil {
		return fmt.Errorf("%w: %w", domain.ErrStoreWriteFailed, err)
	}
	defer s.pool.put(conn)

	endFn, err := sqlitex.ImmediateTransaction(conn)
	if err != nil {
		return fmt.Errorf("%w: %w", domain.ErrStoreWriteFailed, err)
	}
	defer endFn(&err)

	err = sqlitex.Execute(conn, "INSERT OR IGNORE INTO entries (version, key, blob) VALUES (?, ?, ?)", &sqlitex.ExecOptions{
		Args: []any{int64(s.version), key, seal(s.version, s.compression, blob)},
	})
	if err != nil {
		return zerr.With(fmt.Errorf("%w: %w", domain.ErrStoreWriteFailed, err), "key", key)
	}
	return nil
}

// Has reports whether key is stored for the current version.
func (s *Store) Has(ctx context.Context, key string) (bool, error) {
	conn, err := s.pool.take(ctx)
	if err != nil {
		return false, fmt.Errorf("%w: %w", domain.ErrStoreReadFailed, err)
	}
	defer s.pool.put(conn)

	found := false
	err = sqlitex.Execute(conn, "SELECT 1 FROM entries WHERE version = ? AND key = ?", &sqlitex.ExecOptions{
		Args: []any{int64(s.version), key},
		ResultFunc: func(*sqlite.Stmt) error {
			found = true
			return nil
		},
	})
	if err != nil {
		return false, zerr.With(fmt.Errorf("%w: %w", domain.ErrStoreReadFailed, err), "key", key)
	}
	return found, nil
}

// Delete removes key.
func (s *Store) Delete(ctx context.Context, key string) error {
	return s.write(ctx, "DELETE FROM entries WHERE version = ? AND key = ?", int64(s.version), key)
}

// Keys yields the keys of the current version in lexical order.
func (s *Store) Keys(ctx context.Context) iter.Seq2[string, error] {
	return func(yield func(string, error) bool) {
		conn, err := s.pool.take(ctx)
		if err != nil {
			yield("", fmt.Errorf("%w: %w", domain.ErrStoreReadFailed, err))
			return
		}
		var keys []string
		err = sqlitex.Execute(conn, "SELECT key FROM entries WHERE version = ? ORDER BY key", &sqlitex.ExecOptions{
			Args: []any{int64(s.version)},
			ResultFunc: func(stmt *sqlite.Stmt) error {
				keys = append(keys, stmt.ColumnText(0))
				return nil
			},
		})
		s.pool.put(conn)
		if err != nil {
			yield("", fmt.Errorf("%w: %w", domain.ErrStoreReadFailed, err))
			return
		}
		for _, k := range keys {
			if !yield(k, nil) {
				return
			}
		}
	}
}

// Ref returns the key name points to.
func (s *Store) Ref(ctx context.Context, name string) (string, bool, error) {
	conn, err := s.pool.take(ctx)
	if err != nil {
		return "", false, fmt.Errorf("%w: %w", domain.ErrStoreReadFailed, err)
	}
	defer s.pool.put(conn)

	var key string
	found := false
	err = sqlitex.Execute(conn, "SELECT key FROM refs WHERE version = ? AND name = ?", &sqlitex.ExecOptions{
		Args: []any{int64(s.version), name},
		ResultFunc: func(stmt *sqlite.Stmt) error {
			key = stmt.ColumnText(0)
			found = true
			return nil
		},
	})
	if err != nil {
		return "", false, zerr.With(fmt.Errorf("%w: %w", domain.ErrStoreReadFailed, err), "ref", name)
	}
	return key, found, nil
}

// SetRef points name at key.
func (s *Store) SetRef(ctx context.Context, name, key string) error {
	return s.write(ctx, "INSERT OR REPLACE INTO refs (version, name, key) VALUES (?, ?, ?)", int64(s.version), name, key)
}

// Clear removes every entry and ref of every version in one transaction.
func (s *Store) Clear(ctx context.Context) (err error) {
	conn, err := s.pool.take(ctx)
	if err != nil {
		return fmt.Errorf("%w: %w", domain.ErrStoreWriteFailed, err)
	}
	defer s.pool.put(conn)

	endFn, err := sqlitex.ImmediateTransaction(conn)
	if err != nil {
		return fmt.Errorf("%w: %w", domain.ErrStoreWriteFailed, err)
	}
	defer endFn(&err)

	if err = sqlitex.ExecuteScript(conn, "DELETE FROM entries; DELETE FROM refs;", nil); err != nil {
		return fmt.Errorf("%w: %w", domain.ErrStoreWriteFailed, err)
	}
	s.logger.Debug("cache cleared")
	return nil
}

// Close releases every connection.
func (s *Store) Close() error {
	return s.pool.close()
}

func (s *Store) write(ctx context.Context, query string, args ...any) (err error) {
	conn, err := s.pool.take(ctx)
	if err != nil {
		return fmt.Errorf("%w: %w", domain.ErrStoreWriteFailed, err)
	}
	defer s.pool.put(conn)

	endFn, err := sqlitex.ImmediateTransaction(conn)
	if err != nil {
		return fmt.Errorf("%w: %w", domain.ErrStoreWriteFailed, err)
	}
	defer endFn(&err)

	if err = sqlitex.Execute(conn, query, &sqlitex.ExecOptions{Args: args}); err != nil {
		return fmt.Errorf("%w: %w", domain.ErrStoreWriteFailed, err)
	}
	return nil
}

func missReason(err error) string {
	if errors.Is(err, domain.ErrCacheVersionMismatch) {
		return "schema version mismatch"
	}
	return "corrupt entry"
}

func short(key string) string {
	if len(key) > 12 {
		return key[:12]
	}
	return key
}
