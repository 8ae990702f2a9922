package cas

import (
	"context"
	"fmt"
	"runtime"

	"go.trai.ch/knit/internal/core/ports"
	"go.trai.ch/zerr"
	"zombiezen.com/go/sqlite"
	"zombiezen.com/go/sqlite/sqlitex"
)

// pool is a fixed-size set of SQLite connections sharing one WAL database.
// Every connection gets the same pragmas and schema before first use.
type pool struct {
	inner  *sqlitex.Pool
	logger ports.Logger
	path   string
}

var pragmas = []string{
	"PRAGMA journal_mode=WAL",
	"PRAGMA synchronous=NORMAL",
	"PRAGMA busy_timeout=5000",
	"PRAGMA cache_size=-8192",
	"PRAGMA mmap_size=268435456",
	"PRAGMA temp_store=MEMORY",
}

const schema = `
CREATE TABLE IF NOT EXISTS entries (
	version INTEGER NOT NULL,
	key     TEXT    NOT NULL,
	blob    BLOB    NOT NULL,
	PRIMARY KEY (version, key)
) WITHOUT ROWID;
CREATE TABLE IF NOT EXISTS refs (
	version INTEGER NOT NULL,
	name    TEXT    NOT NULL,
	key     TEXT    NOT NULL,
	PRIMARY KEY (version, name)
) WITHOUT ROWID;
`

func openPool(path string, size int, logger ports.Logger) (*pool, error) {
	if size <= 0 {
		size = max(runtime.NumCPU(), 4)
	}

	inner, err := sqlitex.NewPool(path, sqlitex.PoolOptions{
		PoolSize:    size,
		PrepareConn: prepareConn,
	})
	if err != nil {
		return nil, zerr.With(zerr.Wrap(err, "failed to open sqlite pool"), "path", path)
	}

	logger.Debug(fmt.Sprintf("cache store opened: %s (pool size %d)", path, size))
	return &pool{inner: inner, logger: logger, path: path}, nil
}

func prepareConn(conn *sqlite.Conn) error {
	for _, pragma := range pragmas {
		if err := sqlitex.ExecuteTransient(conn, pragma, nil); err != nil {
			return zerr.With(zerr.Wrap(err, "failed to apply pragma"), "pragma", pragma)
		}
	}
	if err := sqlitex.ExecuteScript(conn, schema, nil); err != nil {
		return zerr.Wrap(err, "failed to create cache schema")
	}
	return nil
}

func (p *pool) take(ctx context.Context) (*sqlite.Conn, error) {
	conn, err := p.inner.Take(ctx)
	if err != nil {
		return nil, zerr.Wrap(err, "failed to take sqlite connection")
	}
	return conn, nil
}

func (p *pool) put(conn *sqlite.Conn) {
	p.inner.Put(conn)
}

func (p *pool) close() error {
	if err := p.inner.Close(); err != nil {
		return zerr.With(zerr.Wrap(err, "failed to close sqlite pool"), "path", p.path)
	}
	p.logger.Debug("cache store closed: " + p.path)
	return nil
}
