package validation

import (
	"context"

	"github.com/rendis/mabelstudio/internal/graph"
	"github.com/rendis/mabelstudio/pkg/schema"
)

// DocumentValidator runs the validation pipeline:
//  1. Structural (JSON Schema)
//  2. Semantic (IDs, types, ops, models, outputs)
//  3. Graph (cycles, dangling references, isolated blocks)
//  4. Lint (CEL rules)
type DocumentValidator struct {
	jsonSchema *JSONSchemaValidator
	linter     *Linter
}

// NewDocumentValidator builds a validator with the default lint rules plus
// extra ones keyed by name.
func NewDocumentValidator(extraRules map[string]string) (*DocumentValidator, error) {
	jsv, err := NewJSONSchemaValidator()
	if err != nil {
		return nil, err
	}
	linter, err := NewLinter(extraRules)
	if err != nil {
		return nil, err
	}
	return &DocumentValidator{jsonSchema: jsv, linter: linter}, nil
}

// Linter exposes the configured lint rules.
func (dv *DocumentValidator) Linter() *Linter {
	return dv.linter
}

// ValidateState checks decoded YAML structurally.
func (dv *DocumentValidator) ValidateState(state map[string]any) *schema.ValidationResult {
	return structural(dv.jsonSchema, state)
}

// Validate runs all four stages. Structural errors skip the rest.
func (dv *DocumentValidator) Validate(ctx context.Context, doc *schema.Document) *schema.ValidationResult {
	if doc == nil {
		r := &schema.ValidationResult{}
		r.AddError("/", schema.ErrCodeValidation, "document is nil")
		return r
	}

	result := structural(dv.jsonSchema, doc)
	if !result.Valid() {
		return result
	}
	result.Merge(validateSemantic(doc))

	analysis := graph.Analyze(doc.Blocks)
	result.Merge(validateGraph(doc, analysis))
	result.Merge(dv.linter.Lint(ctx, doc, analysis))
	return result
}

func structural(v *JSONSchemaValidator, value any) *schema.ValidationResult {
	result := &schema.ValidationResult{}
	err := v.ValidateValue(value)
	if err == nil {
		return result
	}

	se, ok := err.(*schema.StudioError)
	if !ok {
		result.AddError("/", schema.ErrCodeValidation, err.Error())
		return result
	}
	if violations, ok := se.Details["violations"].([]violation); ok {
		for _, vi := range violations {
			result.AddError(vi.Path, schema.ErrCodeValidation, vi.Message)
		}
		return result
	}
	result.AddError("/", schema.ErrCodeValidation, se.Message)
	return result
}

var _ Validator = (*DocumentValidator)(nil)
