package domain

import (
	"strings"

	"github.com/bmatcuk/doublestar/v4"
)

// IsGlob reports whether pattern contains glob metacharacters.
func IsGlob(pattern string) bool {
	return strings.ContainsAny(pattern, `*?[{\`)
}

// MatchGlob reports whether the slash-separated name matches pattern.
// A "**" segment matches zero or more segments. Malformed patterns match nothing.
func MatchGlob(pattern, name string) bool {
	ok, err := doublestar.Match(pattern, name)
	return err == nil && ok
}
