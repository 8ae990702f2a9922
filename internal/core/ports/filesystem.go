package ports

// FileSystem is a project-rooted file system. Names are slash-separated and
// relative to the root.
//
//go:generate go run go.uber.org/mock/mockgen -source=filesystem.go -destination=mocks/mock_filesystem.go -package=mocks
type FileSystem interface {
	// Root returns the absolute directory names are resolved against.
	Root() string
	// ReadFile returns the content of name. A missing file yields an error
	// matching fs.ErrNotExist.
	ReadFile(name string) ([]byte, error)
	// IsFile reports whether name exists and is a regular file.
	IsFile(name string) bool
	// Glob returns the sorted names matching pattern. "**" matches any number
	// of directories.
	Glob(pattern string) ([]string, error)
	// WriteFile writes data to name, creating parent directories.
	WriteFile(name string, data []byte) error
	// RemoveAll removes name and everything below it.
	RemoveAll(name string) error
}
