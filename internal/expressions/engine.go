// Package expressions hosts the three expression languages the editor
// understands: CEL for lint rules, expr for block filters and jq for
// document queries.
package expressions

import "context"

// Engine evaluates one expression against a data map.
type Engine interface {
	Name() string
	Evaluate(ctx context.Context, expression string, data map[string]any) (any, error)
}
