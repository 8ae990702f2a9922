package domain

// TransformUnit is the value passed through the transformer pipeline inside a
// worker. It crosses the worker boundary serialized, so workers never share it.
type TransformUnit struct {
	FilePath     string        `json:"filePath"`
	Type         string        `json:"type"`
	Content      []byte        `json:"content"`
	Dependencies []Dependency  `json:"dependencies,omitempty"`
	Mode         BuildMode     `json:"mode"`
	Target       TargetOptions `json:"target"`
}

// AddDependency appends dep and returns its index.
func (u *TransformUnit) AddDependency(dep Dependency) int {
	u.Dependencies = append(u.Dependencies, dep)
	return len(u.Dependencies) - 1
}
