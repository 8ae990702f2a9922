package domain

import (
	"fmt"
	"slices"
)

// RequestID identifies a request by kind and normalized parameters.
type RequestID string

// RequestKind tags the variant of a request.
type RequestKind string

const (
	// KindEntry resolves a build entry (file or glob) to concrete files.
	KindEntry RequestKind = "entry"
	// KindPath resolves one dependency specifier to a file.
	KindPath RequestKind = "path"
	// KindAsset reads and transforms one file.
	KindAsset RequestKind = "asset"
	// KindAssetGraph builds the full asset graph for a set of entries.
	KindAssetGraph RequestKind = "asset_graph"
	// KindBundleGraph groups the asset graph into bundles.
	KindBundleGraph RequestKind = "bundle_graph"
	// KindPackage produces the output bytes of one bundle.
	KindPackage RequestKind = "package"
)

// NewRequestID derives the stable id of a request.
func NewRequestID(kind RequestKind, key string) RequestID {
	return RequestID(NewContentKey("request", string(kind), key))
}

// Short returns an abbreviated id for logs.
func (id RequestID) Short() string {
	if len(id) <= 12 {
		return string(id)
	}
	return string(id[:12])
}

// RequestState is the lifecycle state of a request node.
type RequestState uint8

const (
	// StateIncomplete is a request that has never finished, or was cancelled.
	StateIncomplete RequestState = iota
	// StateRunning is a request whose body is executing.
	StateRunning
	// StateValid is a request with a memoized result.
	StateValid
	// StateInvalid is a request whose tracked inputs changed since it last ran.
	StateInvalid
	// StateErrored is a request whose last execution failed.
	StateErrored
)

var requestStateNames = [...]string{"incomplete", "running", "valid", "invalid", "errored"}

// String returns the lowercase state name.
func (s RequestState) String() string {
	if int(s) < len(requestStateNames) {
		return requestStateNames[s]
	}
	return fmt.Sprintf("state(%d)", uint8(s))
}

// MarshalText implements encoding.TextMarshaler.
func (s RequestState) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (s *RequestState) UnmarshalText(text []byte) error {
	i := slices.Index(requestStateNames[:], string(text))
	if i < 0 {
		return fmt.Errorf("unknown request state %q", text)
	}
	*s = RequestState(i)
	return nil
}

// FileInvalidation records an existing file a request depends on. StatOnly
// entries only observed that the file exists, so content changes do not matter.
type FileInvalidation struct {
	Path        string `json:"path"`
	Fingerprint uint64 `json:"fingerprint,omitempty"`
	StatOnly    bool   `json:"statOnly,omitempty"`
}

// CreateInvalidation records a glob or exact path whose appearance invalidates a request.
// Fingerprint covers the sorted set of matches observed; for an exact path that
// was absent it is the fingerprint of the empty set.
type CreateInvalidation struct {
	Pattern     string `json:"pattern"`
	Fingerprint uint64 `json:"fingerprint,omitempty"`
}

// RequestNodeSnapshot is the persisted form of one request node.
type RequestNodeSnapshot struct {
	ID          RequestID            `json:"id"`
	Kind        RequestKind          `json:"kind"`
	Key         string               `json:"key"`
	State       RequestState         `json:"state"`
	ResultKey   string               `json:"resultKey,omitempty"`
	Subrequests []RequestID          `json:"subrequests,omitempty"`
	Files       []FileInvalidation   `json:"files,omitempty"`
	Creates     []CreateInvalidation `json:"creates,omitempty"`
	Env         map[string]string    `json:"env,omitempty"`
	Options     map[string]string    `json:"options,omitempty"`
}

// RequestGraphSnapshot is the request tracker: a serializable copy of the request graph.
type RequestGraphSnapshot struct {
	Generation uint64                `json:"generation"`
	Nodes      []RequestNodeSnapshot `json:"nodes"`
}

// Node returns the snapshot of the node with the given id.
func (s *RequestGraphSnapshot) Node(id RequestID) (RequestNodeSnapshot, bool) {
	for _, n := range s.Nodes {
		if n.ID == id {
			return n, true
		}
	}
	return RequestNodeSnapshot{}, false
}

// CountByState tallies nodes per state.
func (s *RequestGraphSnapshot) CountByState() map[RequestState]int {
	counts := make(map[RequestState]int)
	for _, n := range s.Nodes {
		counts[n.State]++
	}
	return counts
}

// CountByKind tallies nodes per kind.
func (s *RequestGraphSnapshot) CountByKind() map[RequestKind]int {
	counts := make(map[RequestKind]int)
	for _, n := range s.Nodes {
		counts[n.Kind]++
	}
	return counts
}
