package fs

import (
	"github.com/cespare/xxhash/v2"
	"go.trai.ch/knit/internal/core/ports"
)

var _ ports.Hasher = (*Hasher)(nil)

// Hasher computes xxhash fingerprints of file content and name sets.
type Hasher struct{}

// NewHasher creates a new Hasher.
func NewHasher() *Hasher {
	return &Hasher{}
}

// Fingerprint hashes data.
func (h *Hasher) Fingerprint(data []byte) uint64 {
	return xxhash.Sum64(data)
}

// FingerprintSet hashes names in order, NUL-separated.
func (h *Hasher) FingerprintSet(names []string) uint64 {
	d := xxhash.New()
	for _, n := range names {
		_, _ = d.WriteString(n)
		_, _ = d.Write([]byte{0})
	}
	return d.Sum64()
}
