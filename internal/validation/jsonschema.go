package validation

import (
	"encoding/json"
	"fmt"
	"strings"

	jsonschema "github.com/santhosh-tekuri/jsonschema/v6"

	"github.com/rendis/mabelstudio/pkg/schema"
)

const documentSchemaURL = "https://mabel.studio/schemas/document.json"

// documentSchemaJSON describes the shape of a MABEL document. Unknown keys
// are allowed everywhere so documents from newer runtimes still load.
const documentSchemaJSON = `{
  "$schema": "https://json-schema.org/draft/2020-12/schema",
  "$id": "https://mabel.studio/schemas/document.json",
  "type": "object",
  "properties": {
    "mabel": {
      "type": "object",
      "properties": {
        "version": { "type": ["string", "number"] },
        "id": { "type": "string" },
        "name": { "type": "string" },
        "description": { "type": "string" }
      }
    },
    "runtime": { "type": "object" },
    "globals": { "type": "object" },
    "budgets": { "type": "object" },
    "functions": { "type": "object" },
    "images": {
      "type": "array",
      "items": {
        "type": "object",
        "required": ["name"],
        "properties": {
          "name": { "type": "string", "minLength": 1 },
          "path": { "type": "string" },
          "url": { "type": "string" },
          "base64": { "type": "string" },
          "media_type": { "type": "string" }
        }
      }
    },
    "models": {
      "type": "array",
      "items": {
        "type": "object",
        "properties": {
          "id": { "type": "string" },
          "name": { "type": "string" },
          "api_model": { "type": "string" },
          "base_url": { "type": "string" },
          "headers": { "type": "object" },
          "request_defaults": { "type": "object" }
        },
        "anyOf": [{ "required": ["name"] }, { "required": ["id"] }]
      }
    },
    "blocks": {
      "type": "array",
      "items": { "$ref": "#/$defs/block" }
    }
  },
  "$defs": {
    "block": {
      "type": "object",
      "required": ["type"],
      "properties": {
        "id": { "type": "string" },
        "type": { "type": "string", "minLength": 1 },
        "title": { "type": "string" },
        "name": { "type": "string" },
        "exec": { "type": ["number", "string", "null"] },
        "on_error": { "type": "string" }
      },
      "allOf": [
        {
          "if": { "properties": { "type": { "const": "ai" } } },
          "then": {
            "properties": {
              "model": { "type": ["string", "null"] },
              "system_prompt": { "type": ["string", "null"] },
              "prompts": { "type": "array", "items": { "type": "string" } },
              "outputs": { "type": "array", "items": { "$ref": "#/$defs/output" } }
            }
          }
        },
        {
          "if": { "properties": { "type": { "const": "logic" } } },
          "then": {
            "properties": {
              "op": { "type": "string" },
              "outputs": { "type": "array", "items": { "$ref": "#/$defs/output" } }
            }
          }
        },
        {
          "if": { "properties": { "type": { "const": "python" } } },
          "then": {
            "properties": {
              "inputs": { "type": ["array", "object"] },
              "outputs": { "type": "array", "items": { "$ref": "#/$defs/output" } },
              "py_outputs": { "type": "array", "items": { "$ref": "#/$defs/output" } },
              "timeout_ms": { "type": "number", "minimum": 0 }
            }
          }
        },
        {
          "if": { "properties": { "type": { "const": "end" } } },
          "then": {
            "properties": {
              "final": {
                "type": "array",
                "items": {
                  "type": "object",
                  "required": ["name"],
                  "properties": { "name": { "type": "string", "minLength": 1 } }
                }
              }
            }
          }
        }
      ]
    },
    "output": {
      "oneOf": [
        { "type": "string", "minLength": 1 },
        {
          "type": "object",
          "required": ["name"],
          "properties": { "name": { "type": "string", "minLength": 1 } }
        }
      ]
    }
  }
}`

// JSONSchemaValidator checks documents against the embedded document
// schema. It is safe for concurrent use.
type JSONSchemaValidator struct {
	documentSchema *jsonschema.Schema
}

// NewJSONSchemaValidator compiles the document schema.
func NewJSONSchemaValidator() (*JSONSchemaValidator, error) {
	c := jsonschema.NewCompiler()
	c.AssertFormat()

	doc, err := jsonschema.UnmarshalJSON(strings.NewReader(documentSchemaJSON))
	if err != nil {
		return nil, fmt.Errorf("unmarshal document schema: %w", err)
	}
	if err := c.AddResource(documentSchemaURL, doc); err != nil {
		return nil, fmt.Errorf("add document schema resource: %w", err)
	}
	compiled, err := c.Compile(documentSchemaURL)
	if err != nil {
		return nil, fmt.Errorf("compile document schema: %w", err)
	}
	return &JSONSchemaValidator{documentSchema: compiled}, nil
}

// ValidateValue checks any JSON-compatible value (a decoded YAML state or
// a Document) against the schema.
func (v *JSONSchemaValidator) ValidateValue(value any) error {
	if value == nil {
		return schema.NewError(schema.ErrCodeValidation, "document is empty")
	}
	doc, err := toJSONValue(value)
	if err != nil {
		return schema.NewError(schema.ErrCodeValidation, "failed to serialize document").WithCause(err)
	}
	if err := v.documentSchema.Validate(doc); err != nil {
		return toStudioError(err)
	}
	return nil
}

// toJSONValue round-trips through JSON so numbers become json.Number, which
// the jsonschema library requires.
func toJSONValue(v any) (any, error) {
	b, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	return jsonschema.UnmarshalJSON(strings.NewReader(string(b)))
}

func toStudioError(err error) *schema.StudioError {
	verr, ok := err.(*jsonschema.ValidationError)
	if !ok {
		return schema.NewError(schema.ErrCodeValidation, err.Error())
	}

	violations := collectViolations(verr)
	switch len(violations) {
	case 0:
		return schema.NewError(schema.ErrCodeValidation, verr.Error())
	case 1:
		return schema.NewError(schema.ErrCodeValidation, violations[0].Message).
			WithDetails(map[string]any{"violations": violations})
	default:
		return schema.NewErrorf(schema.ErrCodeValidation, "document has %d structural errors", len(violations)).
			WithDetails(map[string]any{"violations": violations})
	}
}

// violation is one leaf schema failure.
type violation struct {
	Path    string `json:"path"`
	Message string `json:"message"`
}

// collectViolations flattens the ValidationError tree into leaf failures,
// with paths in the "blocks[0].outputs[1]" form.
func collectViolations(verr *jsonschema.ValidationError) []violation {
	if len(verr.Causes) == 0 {
		path := instancePath(verr.InstanceLocation)
		return []violation{{Path: path, Message: fmt.Sprintf("%s: %s", path, verr.Error())}}
	}
	var out []violation
	for _, cause := range verr.Causes {
		out = append(out, collectViolations(cause)...)
	}
	return out
}

func instancePath(loc []string) string {
	if len(loc) == 0 {
		return "/"
	}
	var b strings.Builder
	for _, seg := range loc {
		if isIndex(seg) {
			b.WriteString("[" + seg + "]")
			continue
		}
		if b.Len() > 0 {
			b.WriteByte('.')
		}
		b.WriteString(seg)
	}
	return b.String()
}

func isIndex(s string) bool {
	if s == "" {
		return false
	}
	for _, r := range s {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}
