package config

// File names probed in each directory, in order of precedence.
const (
	FileYAML  = "knit.yaml"
	FileYML   = "knit.yml"
	FileHCL   = "knit.hcl"
	FileJSONC = "knit.jsonc"
	FileJSON  = "knit.json"
)

// candidates lists every recognized config file name by precedence.
var candidates = []string{FileYAML, FileYML, FileHCL, FileJSONC, FileJSON}

// Knitfile is the on-disk shape of a knit config file, shared by every format.
// Empty fields keep their defaults.
type Knitfile struct {
	Entries      []string        `yaml:"entries" json:"entries" hcl:"entries,optional"`
	CacheDir     string          `yaml:"cacheDir" json:"cacheDir" hcl:"cache_dir,optional"`
	DistDir      string          `yaml:"distDir" json:"distDir" hcl:"dist_dir,optional"`
	Mode         string          `yaml:"mode" json:"mode" hcl:"mode,optional"`
	Bundler      string          `yaml:"bundler" json:"bundler" hcl:"bundler,optional"`
	Compression  string          `yaml:"compression" json:"compression" hcl:"compression,optional"`
	Trace        string          `yaml:"trace" json:"trace" hcl:"trace,optional"`
	DisableCache bool            `yaml:"disableCache" json:"disableCache" hcl:"disable_cache,optional"`
	FeatureFlags map[string]bool `yaml:"featureFlags" json:"featureFlags" hcl:"feature_flags,optional"`
	Target       *TargetDTO      `yaml:"target" json:"target" hcl:"target,block"`
	Workers      *WorkersDTO     `yaml:"workers" json:"workers" hcl:"workers,block"`
}

// TargetDTO holds the default target options.
type TargetDTO struct {
	ShouldOptimize   bool `yaml:"shouldOptimize" json:"shouldOptimize" hcl:"should_optimize,optional"`
	ShouldScopeHoist bool `yaml:"shouldScopeHoist" json:"shouldScopeHoist" hcl:"should_scope_hoist,optional"`
	SourceMaps       bool `yaml:"sourceMaps" json:"sourceMaps" hcl:"source_maps,optional"`
}

// WorkersDTO configures the worker pool. TaskTimeout is a Go duration string.
type WorkersDTO struct {
	Size        int    `yaml:"size" json:"size" hcl:"size,optional"`
	MaxRetries  int    `yaml:"maxRetries" json:"maxRetries" hcl:"max_retries,optional"`
	TaskTimeout string `yaml:"taskTimeout" json:"taskTimeout" hcl:"task_timeout,optional"`
}
