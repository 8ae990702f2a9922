package transformer

import (
	"context"
	"regexp"
	"slices"
	"strings"

	"go.trai.ch/knit/internal/core/domain"
)

var (
	jsStaticImport = regexp.MustCompile(`(?m)^[ \t]*(?:import|export)\b[^'"();]*?\bfrom[ \t]*(['"])([^'"\n]*)(['"]?)`)
	jsBareImport   = regexp.MustCompile(`(?m)^[ \t]*import[ \t]*(['"])([^'"\n]*)(['"]?)`)
	jsRequire      = regexp.MustCompile(`\brequire[ \t]*\([ \t]*(['"])([^'"\n]*)(['"]?)`)
	jsDynamic      = regexp.MustCompile(`\bimport[ \t]*\([ \t]*(['"])([^'"\n]*)(['"]?)`)
	jsCondImport   = regexp.MustCompile(`\bimportCond[ \t]*\(([^)\n]*)(\)?)`)
)

var jsTypes = []string{"js", "mjs", "cjs", "jsx", "ts", "tsx"}

// JS scans ECMAScript and CommonJS sources for their dependencies.
// importCond("flag", "./a", "./b") declares a conditional dependency.
type JS struct{}

// NewJS creates the script transformer.
func NewJS() *JS { return &JS{} }

// Name implements ports.Transformer.
func (*JS) Name() string { return "js" }

// Match implements ports.Transformer.
func (*JS) Match(unitType string) bool { return slices.Contains(jsTypes, unitType) }

type found struct {
	offset int
	dep    domain.Dependency
}

// Transform implements ports.Transformer.
func (t *JS) Transform(ctx context.Context, unit *domain.TransformUnit) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	src := blankComments(unit.Content, true)

	var deps []found
	scan := func(re *regexp.Regexp, typ domain.SpecifierType, prio domain.Priority) error {
		for _, m := range re.FindAllSubmatchIndex(src, -1) {
			open, spec, closing := src[m[2]:m[3]], src[m[4]:m[5]], src[m[6]:m[7]]
			if string(open) != string(closing) {
				return syntaxError(unit, m[4]-1, "unterminated string literal")
			}
			if len(spec) == 0 {
				return syntaxError(unit, m[4]-1, "empty module specifier")
			}
			deps = append(deps, found{offset: m[4], dep: domain.Dependency{
				Specifier:     string(spec),
				SpecifierType: typ,
				Priority:      prio,
			}})
		}
		return nil
	}
	if err := scan(jsStaticImport, domain.SpecifierESM, domain.PrioritySync); err != nil {
		return err
	}
	if err := scan(jsBareImport, domain.SpecifierESM, domain.PrioritySync); err != nil {
		return err
	}
	if err := scan(jsRequire, domain.SpecifierCommonJS, domain.PrioritySync); err != nil {
		return err
	}
	if err := scan(jsDynamic, domain.SpecifierESM, domain.PriorityLazy); err != nil {
		return err
	}
	for _, m := range jsCondImport.FindAllSubmatchIndex(src, -1) {
		if m[4] == m[5] {
			return syntaxError(unit, m[0], "importCond call is not closed")
		}
		cond, ok := parseCondArgs(string(src[m[2]:m[3]]))
		if !ok {
			return syntaxError(unit, m[2], "importCond expects (flag, ifTrue, ifFalse) string arguments")
		}
		deps = append(deps, found{offset: m[2], dep: domain.Dependency{
			Specifier:     cond.IfTrue,
			SpecifierType: domain.SpecifierESM,
			Priority:      domain.PriorityConditional,
			Condition:     &cond,
		}})
	}

	slices.SortStableFunc(deps, func(a, b found) int { return a.offset - b.offset })
	unit.Dependencies = unit.Dependencies[:0]
	for _, f := range deps {
		if slices.ContainsFunc(unit.Dependencies, func(d domain.Dependency) bool {
			return d.Specifier == f.dep.Specifier && d.Priority == f.dep.Priority && d.Condition == nil && f.dep.Condition == nil
		}) {
			continue
		}
		f.dep.Line, _ = position(unit.Content, f.offset)
		unit.AddDependency(f.dep)
	}

	unit.Type = "js"
	if unit.Mode == domain.ModeProduction && unit.Target.ShouldOptimize {
		unit.Content = dropBlankLines(blankComments(unit.Content, true))
	}
	return nil
}

// parseCondArgs reads three quoted string arguments.
func parseCondArgs(args string) (domain.Condition, bool) {
	parts := strings.Split(args, ",")
	if len(parts) != 3 {
		return domain.Condition{}, false
	}
	var vals [3]string
	for i, p := range parts {
		p = strings.TrimSpace(p)
		if len(p) < 3 || (p[0] != '"' && p[0] != '\'') || p[len(p)-1] != p[0] {
			return domain.Condition{}, false
		}
		vals[i] = p[1 : len(p)-1]
	}
	return domain.Condition{Flag: vals[0], IfTrue: vals[1], IfFalse: vals[2]}, true
}
