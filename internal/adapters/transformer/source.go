// Package transformer provides the default transformer pipeline: dependency
// scanning for scripts and stylesheets and a pass-through for everything else.
package transformer

import (
	"bytes"
	"path"
	"strings"

	"go.trai.ch/knit/internal/core/domain"
	"go.trai.ch/knit/internal/core/ports"
)

// TypeOf derives a unit type from the file extension.
func TypeOf(filePath string) string {
	ext := strings.TrimPrefix(path.Ext(filePath), ".")
	if ext == "" {
		return "raw"
	}
	return strings.ToLower(ext)
}

// Defaults returns the built-in pipeline in execution order.
func Defaults() []ports.Transformer {
	return []ports.Transformer{NewJS(), NewCSS(), NewRaw()}
}

// position converts a byte offset into a 1-based line and column.
func position(src []byte, offset int) (int, int) {
	offset = min(offset, len(src))
	before := src[:offset]
	line := bytes.Count(before, []byte{'\n'}) + 1
	col := offset - bytes.LastIndexByte(before, '\n')
	return line, col
}

func syntaxError(unit *domain.TransformUnit, offset int, msg string) error {
	line, col := position(unit.Content, offset)
	return domain.NewTransformError(unit.FilePath, line, col, msg, unit.Content)
}

// blankComments returns a copy of src with comment bodies replaced by spaces.
// Offsets and line breaks are preserved, string literals are left untouched.
func blankComments(src []byte, lineComments bool) []byte {
	out := bytes.Clone(src)
	var quote byte
	for i := 0; i < len(out); i++ {
		c := out[i]
		switch {
		case quote != 0:
			switch c {
			case '\\':
				i++
			case quote:
				quote = 0
			case '\n':
				if quote != '`' {
					quote = 0
				}
			}
		case c == '"' || c == '\'' || c == '`':
			quote = c
		case c == '/' && i+1 < len(out) && out[i+1] == '/' && lineComments:
			for ; i < len(out) && out[i] != '\n'; i++ {
				out[i] = ' '
			}
		case c == '/' && i+1 < len(out) && out[i+1] == '*':
			end := bytes.Index(out[i+2:], []byte("*/"))
			stop := len(out)
			if end >= 0 {
				stop = i + 2 + end + 2
			}
			for j := i; j < stop; j++ {
				if out[j] != '\n' {
					out[j] = ' '
				}
			}
			i = stop - 1
		}
	}
	return out
}

// dropBlankLines removes empty lines and trailing whitespace.
func dropBlankLines(src []byte) []byte {
	var b bytes.Buffer
	for line := range bytes.Lines(src) {
		trimmed := bytes.TrimRight(line, " \t\r\n")
		if len(trimmed) == 0 {
			continue
		}
		b.Write(trimmed)
		b.WriteByte('\n')
	}
	return b.Bytes()
}
