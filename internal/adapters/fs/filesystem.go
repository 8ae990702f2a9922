package fs

import (
	"os"
	"path"
	"path/filepath"
	"slices"
	"strings"

	"github.com/bmatcuk/doublestar/v4"
	"go.trai.ch/knit/internal/core/domain"
	"go.trai.ch/knit/internal/core/ports"
	"go.trai.ch/zerr"
)

var _ ports.FileSystem = (*FileSystem)(nil)

// FileSystem implements ports.FileSystem on the OS file system below a root directory.
type FileSystem struct {
	root    string
	walker  *Walker
	ignores []string
}

// NewFileSystem roots a FileSystem at root. ignores are base-name patterns
// excluded from globbing, such as the cache and output directories.
func NewFileSystem(root string, walker *Walker, ignores ...string) (*FileSystem, error) {
	abs, err := filepath.Abs(root)
	if err != nil {
		return nil, zerr.With(zerr.Wrap(err, "failed to resolve project root"), "root", root)
	}
	return &FileSystem{root: abs, walker: walker, ignores: ignores}, nil
}

// Root returns the absolute project root.
func (f *FileSystem) Root() string {
	return f.root
}

// Abs returns the OS path of name.
func (f *FileSystem) Abs(name string) string {
	return filepath.Join(f.root, filepath.FromSlash(name))
}

// Rel converts an OS path below the root into a project name.
func (f *FileSystem) Rel(p string) (string, bool) {
	rel, err := filepath.Rel(f.root, p)
	if err != nil || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		return "", false
	}
	return filepath.ToSlash(rel), true
}

// ReadFile returns the content of name.
func (f *FileSystem) ReadFile(name string) ([]byte, error) {
	data, err := os.ReadFile(f.Abs(name))
	if err != nil {
		return nil, zerr.With(zerr.Wrap(err, "failed to read file"), "path", name)
	}
	return data, nil
}

// IsFile reports whether name is an existing regular file.
func (f *FileSystem) IsFile(name string) bool {
	info, err := os.Stat(f.Abs(name))
	return err == nil && info.Mode().IsRegular()
}

// Glob returns the sorted names matching pattern. A pattern without
// metacharacters matches itself when the file exists.
func (f *FileSystem) Glob(pattern string) ([]string, error) {
	pattern = path.Clean(strings.TrimPrefix(filepath.ToSlash(pattern), "./"))
	if !domain.IsGlob(pattern) {
		if f.IsFile(pattern) {
			return []string{pattern}, nil
		}
		return nil, nil
	}
	if !doublestar.ValidatePattern(pattern) {
		return nil, zerr.With(zerr.Wrap(doublestar.ErrBadPattern, "failed to glob path"), "pattern", pattern)
	}

	base, _ := doublestar.SplitPattern(pattern)
	var matches []string
	for p := range f.walker.WalkFiles(f.Abs(base), f.ignores) {
		name, ok := f.Rel(p)
		if ok && domain.MatchGlob(pattern, name) {
			matches = append(matches, name)
		}
	}
	slices.Sort(matches)
	return matches, nil
}

// WriteFile writes data to name, creating parent directories.
func (f *FileSystem) WriteFile(name string, data []byte) error {
	p := f.Abs(name)
	if err := os.MkdirAll(filepath.Dir(p), 0o750); err != nil {
		return zerr.With(zerr.Wrap(err, "failed to create output directory"), "path", name)
	}
	//nolint:gosec // output files are meant to be world-readable
	if err := os.WriteFile(p, data, 0o644); err != nil {
		return zerr.With(zerr.Wrap(err, "failed to write file"), "path", name)
	}
	return nil
}

// RemoveAll removes name and everything below it.
func (f *FileSystem) RemoveAll(name string) error {
	if err := os.RemoveAll(f.Abs(name)); err != nil {
		return zerr.With(zerr.Wrap(err, "failed to remove path"), "path", name)
	}
	return nil
}
