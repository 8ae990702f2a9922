package domain

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
)

// Diagnostic is a build problem attributed to a source location.
// Its Kind is one of the sentinel errors so callers can classify it with errors.Is.
type Diagnostic struct {
	Kind      error    `json:"-"`
	Message   string   `json:"message"`
	FilePath  string   `json:"filePath,omitempty"`
	Specifier string   `json:"specifier,omitempty"`
	Line      int      `json:"line,omitempty"`
	Column    int      `json:"column,omitempty"`
	CodeFrame string   `json:"codeFrame,omitempty"`
	Hints     []string `json:"hints,omitempty"`
	Cause     error    `json:"-"`
}

// Error implements the error interface.
func (d *Diagnostic) Error() string {
	var b strings.Builder
	if d.Kind != nil {
		b.WriteString(d.Kind.Error())
		b.WriteString(": ")
	}
	b.WriteString(d.Message)
	if d.FilePath != "" {
		b.WriteString(" (")
		b.WriteString(d.FilePath)
		if d.Line > 0 {
			b.WriteString(":" + strconv.Itoa(d.Line))
			if d.Column > 0 {
				b.WriteString(":" + strconv.Itoa(d.Column))
			}
		}
		b.WriteString(")")
	}
	return b.String()
}

// Unwrap exposes both the kind and the underlying cause.
func (d *Diagnostic) Unwrap() []error {
	errs := make([]error, 0, 2)
	if d.Kind != nil {
		errs = append(errs, d.Kind)
	}
	if d.Cause != nil {
		errs = append(errs, d.Cause)
	}
	return errs
}

// NewResolutionError reports that specifier, imported from from, matched no file.
func NewResolutionError(from, specifier string, tried []string) *Diagnostic {
	d := &Diagnostic{
		Kind:      ErrResolution,
		Message:   fmt.Sprintf("cannot resolve %q", specifier),
		FilePath:  from,
		Specifier: specifier,
	}
	if len(tried) > 0 {
		d.Hints = []string{"tried: " + strings.Join(tried, ", ")}
	}
	return d
}

// NewTransformError reports a transformer failure at line:column of source.
func NewTransformError(filePath string, line, column int, message string, source []byte) *Diagnostic {
	return &Diagnostic{
		Kind:      ErrTransform,
		Message:   message,
		FilePath:  filePath,
		Line:      line,
		Column:    column,
		CodeFrame: CodeFrame(source, line, column),
	}
}

// NewCyclicRequestError reports a request cycle; path reads "a -> b -> a".
func NewCyclicRequestError(path string) *Diagnostic {
	return &Diagnostic{
		Kind:    ErrCyclicRequest,
		Message: path,
	}
}

// NewWorkerCrashError reports a task that kept crashing its worker.
func NewWorkerCrashError(method string, attempts int, cause error) *Diagnostic {
	return &Diagnostic{
		Kind:    ErrWorkerCrash,
		Message: fmt.Sprintf("task %q failed after %d attempts", method, attempts),
		Cause:   cause,
	}
}

const codeFrameContext = 1

// CodeFrame renders the lines around line (1-based) with a caret under column.
// It returns an empty string when the location is outside source.
func CodeFrame(source []byte, line, column int) string {
	if line <= 0 || len(source) == 0 {
		return ""
	}
	lines := strings.Split(string(source), "\n")
	if line > len(lines) {
		return ""
	}

	first := max(1, line-codeFrameContext)
	last := min(len(lines), line+codeFrameContext)
	width := len(strconv.Itoa(last))

	var b strings.Builder
	for n := first; n <= last; n++ {
		marker := "  "
		if n == line {
			marker = "> "
		}
		fmt.Fprintf(&b, "%s%*d | %s\n", marker, width, n, lines[n-1])
		if n == line && column > 0 {
			fmt.Fprintf(&b, "  %s | %s^\n", strings.Repeat(" ", width), strings.Repeat(" ", column-1))
		}
	}
	return strings.TrimRight(b.String(), "\n")
}

// CollectDiagnostics flattens an error tree into its diagnostics.
// Errors that are not diagnostics become build-failure diagnostics.
// Duplicates, reached through several parents, are reported once.
func CollectDiagnostics(err error) []*Diagnostic {
	if err == nil {
		return nil
	}
	var out []*Diagnostic
	seen := make(map[string]bool)

	var walk func(error)
	walk = func(e error) {
		var d *Diagnostic
		if errors.As(e, &d) && isDirectDiagnostic(e, d) {
			if key := d.Error(); !seen[key] {
				seen[key] = true
				out = append(out, d)
			}
			return
		}
		if joined, ok := e.(interface{ Unwrap() []error }); ok {
			for _, inner := range joined.Unwrap() {
				walk(inner)
			}
			return
		}
		if inner := errors.Unwrap(e); inner != nil {
			if errors.As(inner, &d) {
				walk(inner)
				return
			}
		}
		if key := e.Error(); !seen[key] {
			seen[key] = true
			out = append(out, &Diagnostic{Kind: ErrBuildFailed, Message: e.Error(), Cause: e})
		}
	}
	walk(err)
	return out
}

// isDirectDiagnostic reports whether d is reachable from e through single-unwrap links only.
// Joined errors must be walked branch by branch so no diagnostic is lost.
func isDirectDiagnostic(e error, d *Diagnostic) bool {
	for cur := e; cur != nil; {
		if cur == error(d) {
			return true
		}
		if _, ok := cur.(interface{ Unwrap() []error }); ok {
			return false
		}
		cur = errors.Unwrap(cur)
	}
	return false
}
