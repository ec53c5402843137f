// Package validation checks workflow documents in four stages: structure
// (JSON Schema), semantics, graph shape and configurable CEL lint rules.
// Errors block export; warnings are advisory.
package validation

import (
	"context"

	"github.com/rendis/mabelstudio/pkg/schema"
)

// Issue codes reported in addition to the schema error codes.
const (
	CodeDuplicateID    = "DUPLICATE_ID"
	CodeUnknownType    = "UNKNOWN_BLOCK_TYPE"
	CodeUnknownOp      = "UNKNOWN_OP"
	CodeEmptyModel     = "EMPTY_MODEL"
	CodeUnknownModel   = "UNKNOWN_MODEL"
	CodeNoOutputs      = "NO_OUTPUTS"
	CodeNoEntrypoint   = "NO_ENTRYPOINT"
	CodeNoEnd          = "NO_END_BLOCK"
	CodeDanglingRef    = "DANGLING_REFERENCE"
	CodeIsolated       = "ISOLATED_BLOCK"
	CodeLint           = "LINT"
)

// Validator checks documents before export.
type Validator interface {
	// ValidateState checks raw decoded YAML before it becomes a Document.
	ValidateState(state map[string]any) *schema.ValidationResult
	// Validate runs every stage over an in-memory document.
	Validate(ctx context.Context, doc *schema.Document) *schema.ValidationResult
}
