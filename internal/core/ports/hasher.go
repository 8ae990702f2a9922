package ports

// Hasher computes the non-cryptographic fingerprints used to detect changed inputs.
//
//go:generate go run go.uber.org/mock/mockgen -source=hasher.go -destination=mocks/mock_hasher.go -package=mocks
type Hasher interface {
	// Fingerprint hashes file content.
	Fingerprint(data []byte) uint64
	// FingerprintSet hashes an ordered list of names, e.g. a glob match set.
	FingerprintSet(names []string) uint64
}
