package validation

import (
	"fmt"
	"slices"

	"github.com/rendis/mabelstudio/internal/graph"
	"github.com/rendis/mabelstudio/pkg/schema"
)

// validateSemantic checks block content the schema cannot express:
// duplicate IDs, unknown types and operators, model references and empty
// output lists.
func validateSemantic(doc *schema.Document) *schema.ValidationResult {
	result := &schema.ValidationResult{}

	models := make(map[string]bool, len(doc.Models))
	for _, m := range doc.Models {
		if m.Name != "" {
			models[m.Name] = true
		}
		if m.ID != "" {
			models[m.ID] = true
		}
	}

	seen := make(map[string]int, len(doc.Blocks))
	hasEnd := false
	for i, b := range doc.Blocks {
		path := fmt.Sprintf("blocks[%d]", i)
		if b == nil {
			result.AddError(path, schema.ErrCodeValidation, "block is null")
			continue
		}

		if j, dup := seen[b.ID]; dup {
			result.Errors = append(result.Errors, schema.ValidationIssue{
				Path:     path + ".id",
				Code:     CodeDuplicateID,
				Message:  fmt.Sprintf("block id %q already used by blocks[%d]", b.ID, j),
				Severity: schema.SeverityError,
				BlockID:  b.ID,
			})
		} else {
			seen[b.ID] = i
		}
		hasEnd = hasEnd || b.IsEnd()

		checker := &blockChecker{id: b.ID, path: path, models: models, result: result}
		if b.Spec != nil {
			b.Spec.Accept(checker)
		}
	}

	if len(doc.Blocks) > 0 && !hasEnd {
		result.AddWarning("blocks", CodeNoEnd, "workflow has no end block")
	}
	return result
}

// blockChecker reports per-variant problems for one block.
type blockChecker struct {
	id     string
	path   string
	models map[string]bool
	result *schema.ValidationResult
}

func (c *blockChecker) warn(field, code, msg string) {
	p := c.path
	if field != "" {
		p += "." + field
	}
	c.result.AddBlockWarning(c.id, p, code, msg)
}

func (c *blockChecker) VisitAI(b *schema.AIBlock) {
	switch {
	case b.Model == "":
		c.warn("model", CodeEmptyModel, "model is empty")
	case len(c.models) > 0 && !c.models[b.Model]:
		c.warn("model", CodeUnknownModel, fmt.Sprintf("model %q is not declared in models", b.Model))
	}
	if len(b.Outputs) == 0 {
		c.warn("outputs", CodeNoOutputs, "AI block declares no outputs")
	}
	for i, o := range b.Outputs {
		if graph.Normalize(o.Name) == "" {
			c.warn(fmt.Sprintf("outputs[%d].name", i), CodeNoOutputs, "output name is empty")
		}
	}
}

func (c *blockChecker) VisitLogic(b *schema.LogicBlock) {
	if name := b.OpName(); !slices.Contains(schema.KnownLogicOps, name) {
		c.warn("op", CodeUnknownOp, fmt.Sprintf("unknown logic op %q", name))
	}
	if len(b.Outputs) == 0 && b.OpName() != schema.OpEmit {
		c.warn("outputs", CodeNoOutputs, "logic block declares no outputs")
	}
}

func (c *blockChecker) VisitPython(b *schema.PythonBlock) {
	if b.Function == "" && b.Entrypoint == "" && b.FunctionCode == "" {
		c.warn("function", CodeNoEntrypoint, "python block has no function, entrypoint or function_code")
	}
	if len(b.Outputs) == 0 {
		c.warn("py_outputs", CodeNoOutputs, "python block declares no outputs")
	}
}

func (c *blockChecker) VisitEnd(*schema.EndBlock)     {}
func (c *blockChecker) VisitStart(*schema.StartBlock) {}

func (c *blockChecker) VisitUnknown(b *schema.UnknownBlock) {
	c.warn("type", CodeUnknownType, fmt.Sprintf("unknown block type %q", b.TypeName))
}
