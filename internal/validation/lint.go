package validation

import (
	"context"
	"fmt"
	"maps"
	"slices"

	"github.com/rendis/mabelstudio/internal/expressions"
	"github.com/rendis/mabelstudio/internal/graph"
	"github.com/rendis/mabelstudio/pkg/schema"
)

// Rule is a CEL predicate every block must satisfy. See
// expressions.BlockData for the variables it can use.
type Rule struct {
	Name    string `json:"name" yaml:"name"`
	Expr    string `json:"expr" yaml:"expr"`
	Message string `json:"message,omitempty" yaml:"message,omitempty"`
}

// DefaultRules are always checked.
var DefaultRules = []Rule{
	{
		Name:    "ai-has-prompt",
		Expr:    `block.type != "ai" || (has(block.prompts) && size(block.prompts) > 0) || (has(block.system_prompt) && block.system_prompt != "")`,
		Message: "AI block has neither prompts nor a system prompt",
	},
	{
		Name:    "end-has-final",
		Expr:    `block.type != "end" || (has(block.final) && size(block.final) > 0)`,
		Message: "end block publishes no final values",
	},
	{
		Name:    "logic-has-condition",
		Expr:    `block.type != "logic" || !(block.op in ["if", "and", "or", "not"]) || has(block.cond) || has(block.operands)`,
		Message: "condition op has no cond or operands",
	},
}

// Linter evaluates rules against every block of a document.
type Linter struct {
	cel   *expressions.CELEngine
	rules []Rule
}

// NewLinter compiles DefaultRules plus extra (name to expression, sorted by
// name). A rule that fails to compile is an error.
func NewLinter(extra map[string]string) (*Linter, error) {
	engine, err := expressions.NewCELEngine()
	if err != nil {
		return nil, err
	}

	rules := slices.Clone(DefaultRules)
	for _, name := range slices.Sorted(maps.Keys(extra)) {
		rules = append(rules, Rule{Name: name, Expr: extra[name]})
	}
	for _, r := range rules {
		if err := engine.Compile(r.Expr); err != nil {
			return nil, fmt.Errorf("lint rule %s: %w", r.Name, err)
		}
	}
	return &Linter{cel: engine, rules: rules}, nil
}

// Rules returns the active rules.
func (l *Linter) Rules() []Rule {
	return slices.Clone(l.rules)
}

// Lint reports one warning per failing rule and block. A rule that errors
// at runtime is reported as failing for that block.
func (l *Linter) Lint(ctx context.Context, doc *schema.Document, a *graph.Analysis) *schema.ValidationResult {
	result := &schema.ValidationResult{}
	for i, b := range doc.Blocks {
		if b == nil {
			continue
		}
		if ctx.Err() != nil {
			return result
		}
		data := expressions.BlockData(b, a)
		path := fmt.Sprintf("blocks[%d]", i)
		for _, r := range l.rules {
			ok, err := l.cel.EvaluateBool(ctx, r.Expr, data)
			switch {
			case err != nil:
				result.AddBlockWarning(b.ID, path, CodeLint, fmt.Sprintf("%s: %v", r.Name, err))
			case !ok:
				msg := r.Message
				if msg == "" {
					msg = "rule not satisfied"
				}
				result.AddBlockWarning(b.ID, path, CodeLint, fmt.Sprintf("%s: %s", r.Name, msg))
			}
		}
	}
	return result
}
