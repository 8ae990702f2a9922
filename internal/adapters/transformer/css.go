package transformer

import (
	"context"
	"regexp"
	"strings"

	"go.trai.ch/knit/internal/core/domain"
)

var (
	cssImport = regexp.MustCompile(`@import[ \t]+(?:url\([ \t]*)?(['"]?)([^'")\s;]*)(['"]?)`)
	cssURL    = regexp.MustCompile(`url\([ \t]*(['"]?)([^'")\s]*)(['"]?)[ \t]*(\)?)`)
)

// CSS scans stylesheets for @import rules and url() references.
// @import targets load synchronously, url() targets lazily.
type CSS struct{}

// NewCSS creates the stylesheet transformer.
func NewCSS() *CSS { return &CSS{} }

// Name implements ports.Transformer.
func (*CSS) Name() string { return "css" }

// Match implements ports.Transformer.
func (*CSS) Match(unitType string) bool { return unitType == "css" }

// Transform implements ports.Transformer.
func (t *CSS) Transform(ctx context.Context, unit *domain.TransformUnit) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	src := blankComments(unit.Content, false)
	unit.Dependencies = unit.Dependencies[:0]

	var imported [][2]int
	for _, m := range cssImport.FindAllSubmatchIndex(src, -1) {
		if string(src[m[2]:m[3]]) != string(src[m[6]:m[7]]) {
			return syntaxError(unit, m[4], "unterminated string in @import")
		}
		spec := string(src[m[4]:m[5]])
		if spec == "" {
			return syntaxError(unit, m[0], "@import without a target")
		}
		imported = append(imported, [2]int{m[0], m[1]})
		if external(spec) {
			continue
		}
		line, _ := position(unit.Content, m[4])
		unit.AddDependency(domain.Dependency{
			Specifier:     spec,
			SpecifierType: domain.SpecifierURL,
			Priority:      domain.PrioritySync,
			Line:          line,
		})
	}

	for _, m := range cssURL.FindAllSubmatchIndex(src, -1) {
		if within(imported, m[0]) {
			continue
		}
		if string(src[m[2]:m[3]]) != string(src[m[6]:m[7]]) || m[8] == m[9] {
			return syntaxError(unit, m[0], "unterminated url()")
		}
		spec := string(src[m[4]:m[5]])
		if spec == "" || external(spec) {
			continue
		}
		line, _ := position(unit.Content, m[4])
		unit.AddDependency(domain.Dependency{
			Specifier:     spec,
			SpecifierType: domain.SpecifierURL,
			Priority:      domain.PriorityLazy,
			Line:          line,
		})
	}

	if unit.Mode == domain.ModeProduction && unit.Target.ShouldOptimize {
		unit.Content = dropBlankLines(blankComments(unit.Content, false))
	}
	return nil
}

func within(ranges [][2]int, offset int) bool {
	for _, r := range ranges {
		if offset >= r[0] && offset < r[1] {
			return true
		}
	}
	return false
}

// external reports specifiers that never refer to project files.
func external(spec string) bool {
	return strings.HasPrefix(spec, "#") ||
		strings.HasPrefix(spec, "//") ||
		strings.Contains(spec, ":")
}
