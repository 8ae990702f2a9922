package cas

import (
	"context"

	"zombiezen.com/go/sqlite/sqlitex"
)

// Seal and OpenEnvelope expose the envelope codec for tests.
var (
	Seal         = seal
	OpenEnvelope = open
)

// PutRaw writes data under key without an envelope, simulating a corrupt row.
func (s *Store) PutRaw(ctx context.Context, key string, data []byte) error {
	conn, err := s.pool.take(ctx)
	if err != nil {
		return err
	}
	defer s.pool.put(conn)
	return sqlitex.Execute(conn, "INSERT OR REPLACE INTO entries (version, key, blob) VALUES (?, ?, ?)", &sqlitex.ExecOptions{
		Args: []any{int64(s.version), key, data},
	})
}
