package transformer

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"

	"go.trai.ch/knit/internal/core/domain"
)

// Raw passes content through unchanged. JSON documents are checked for syntax
// so a broken data file fails the build at its source location.
type Raw struct{}

// NewRaw creates the pass-through transformer.
func NewRaw() *Raw { return &Raw{} }

// Name implements ports.Transformer.
func (*Raw) Name() string { return "raw" }

// Match implements ports.Transformer. Raw runs on every unit, so it belongs last.
func (*Raw) Match(string) bool { return true }

// Transform implements ports.Transformer.
func (*Raw) Transform(ctx context.Context, unit *domain.TransformUnit) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if unit.Type != "json" {
		return nil
	}
	var v any
	dec := json.NewDecoder(bytes.NewReader(unit.Content))
	if err := dec.Decode(&v); err != nil {
		offset := int(dec.InputOffset())
		var syn *json.SyntaxError
		if errors.As(err, &syn) {
			offset = int(syn.Offset) - 1
		}
		return syntaxError(unit, max(offset, 0), "invalid JSON: "+err.Error())
	}
	if unit.Mode == domain.ModeProduction && unit.Target.ShouldOptimize {
		var b bytes.Buffer
		if json.Compact(&b, unit.Content) == nil {
			unit.Content = b.Bytes()
		}
	}
	return nil
}
