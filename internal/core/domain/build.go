package domain

import "time"

// BuildResult is everything a finished build exposes.
type BuildResult struct {
	AssetGraph     *AssetGraph
	BundleGraph    *BundleGraph
	RequestTracker *RequestGraphSnapshot
	BundleInfo     []BundleInfo
	Diagnostics    []*Diagnostic
	Duration       time.Duration
}

// BuildManifest points at the persisted blobs of the last build.
type BuildManifest struct {
	RequestGraphKey string    `json:"requestGraphKey"`
	AssetGraphKey   string    `json:"assetGraphKey,omitempty"`
	BundleGraphKey  string    `json:"bundleGraphKey,omitempty"`
	BundleInfoKey   string    `json:"bundleInfoKey,omitempty"`
	Entries         []string  `json:"entries"`
	Mode            BuildMode `json:"mode"`
	BuiltAt         time.Time `json:"builtAt"`
}

// RefLastBuild names the cache ref holding the key of the latest BuildManifest.
const RefLastBuild = "last-build"
