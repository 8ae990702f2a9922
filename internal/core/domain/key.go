package domain

import (
	"encoding/hex"

	"github.com/zeebo/blake3"
)

// NewContentKey hashes parts into a stable, collision-resistant cache key.
// Parts are NUL-separated so ("ab", "c") and ("a", "bc") differ.
func NewContentKey(parts ...string) string {
	h := blake3.New()
	for _, p := range parts {
		_, _ = h.Write([]byte(p))
		_, _ = h.Write([]byte{0})
	}
	return hex.EncodeToString(h.Sum(nil))
}

// HashBytes returns the hex blake3 digest of data.
func HashBytes(data []byte) string {
	sum := blake3.Sum256(data)
	return hex.EncodeToString(sum[:])
}
