// Package yamlio converts between MABEL YAML text and the editor document.
package yamlio

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/rendis/mabelstudio/pkg/schema"
)

// DefaultMediaType is assumed for images that do not declare one.
const DefaultMediaType = "image/png"

// Import parses MABEL YAML into a document. Sections are normalized the way
// the canvas expects them: string outputs become {name} objects, python
// outputs/name move to py_outputs/py_name, models gain an id and images
// without a name are dropped. Block IDs are left as written; callers that
// need stable IDs merge the result through the editor.
func Import(text []byte) (*schema.Document, error) {
	state, err := Decode(text)
	if err != nil {
		return nil, err
	}
	return FromState(state)
}

// Decode parses YAML and returns the normalized generic state, the JSON
// shape exchanged with the browser.
func Decode(text []byte) (map[string]any, error) {
	var raw any
	if err := yaml.Unmarshal(text, &raw); err != nil {
		return nil, schema.NewError(schema.ErrCodeInvalidYAML, err.Error()).WithCause(err)
	}
	root, ok := stringKeys(raw).(map[string]any)
	if raw != nil && !ok {
		return nil, schema.NewErrorf(schema.ErrCodeInvalidYAML, "top level must be a mapping, got %T", raw)
	}
	return normalize(root), nil
}

// FromState decodes a generic state into a document.
func FromState(state map[string]any) (*schema.Document, error) {
	data, err := json.Marshal(state)
	if err != nil {
		return nil, schema.NewError(schema.ErrCodeInvalidYAML, err.Error()).WithCause(err)
	}
	doc := schema.NewDocument()
	dec := json.NewDecoder(bytes.NewReader(data))
	if err := dec.Decode(doc); err != nil {
		return nil, schema.NewError(schema.ErrCodeInvalidYAML, err.Error()).WithCause(err)
	}
	if doc.Mabel.Version == "" {
		doc.Mabel.Version = schema.DocumentVersion
	}
	return doc, nil
}

func normalize(data map[string]any) map[string]any {
	if data == nil {
		data = map[string]any{}
	}

	mabel, _ := data["mabel"].(map[string]any)
	if len(mabel) == 0 {
		mabel = map[string]any{"version": schema.DocumentVersion}
	}
	if v, ok := mabel["version"]; ok {
		mabel["version"] = scalarString(v)
	}

	blocks := listOfMaps(data["blocks"])
	for _, b := range blocks {
		normalizeBlock(b)
	}

	return map[string]any{
		"mabel":       mabel,
		"runtime":     mapOrEmpty(data["runtime"]),
		"globals":     mapOrEmpty(data["globals"]),
		"budgets":     mapOrEmpty(data["budgets"]),
		"functions":   mapOrEmpty(data["functions"]),
		"images":      normalizeImages(data["images"]),
		"models":      normalizeModels(data["models"], blocks),
		"templates":   listOfMaps(data["templates"]),
		"files":       listOfMaps(data["files"]),
		"blocks":      blocks,
		"connections": listOfMaps(data["connections"]),
	}
}

func normalizeBlock(b map[string]any) {
	if b["type"] == string(schema.BlockTypePython) {
		if _, ok := b["py_outputs"]; !ok {
			if outs, ok := b["outputs"].([]any); ok {
				names := []any{}
				for _, o := range outs {
					if n := outputName(o); n != "" {
						names = append(names, n)
					}
				}
				b["py_outputs"] = names
				delete(b, "outputs")
			}
		}
		if _, ok := b["py_name"]; !ok {
			if name, ok := b["name"].(string); ok && name != "" {
				b["py_name"] = name
			}
		}
	} else if outs, ok := b["outputs"].([]any); ok {
		normalized := []any{}
		for _, o := range outs {
			switch v := o.(type) {
			case string:
				normalized = append(normalized, map[string]any{"name": v})
			case map[string]any:
				normalized = append(normalized, v)
			}
		}
		b["outputs"] = normalized
	}

	if title, _ := b["title"].(string); title == "" {
		for _, key := range []string{"name", "py_name"} {
			if s, ok := b[key].(string); ok && s != "" {
				b["title"] = s
				break
			}
		}
	}
}

func normalizeImages(v any) []any {
	out := []any{}
	for _, img := range listOfMaps(v) {
		name, _ := img["name"].(string)
		if strings.TrimSpace(name) == "" {
			continue
		}
		if _, ok := img["media_type"]; !ok {
			img["media_type"] = DefaultMediaType
		}
		out = append(out, img)
	}
	return out
}

func normalizeModels(v any, blocks []map[string]any) []any {
	out := []any{}
	list, _ := v.([]any)
	for _, m := range list {
		switch mv := m.(type) {
		case map[string]any:
			id := firstString(mv, "id", "name", "api_model")
			if strings.TrimSpace(id) == "" {
				continue
			}
			mv["id"] = id
			if _, ok := mv["name"]; !ok {
				mv["name"] = id
			}
			out = append(out, mv)
		case string:
			out = append(out, map[string]any{"id": mv, "name": mv})
		}
	}
	if len(out) > 0 {
		return out
	}

	seen := map[string]bool{}
	for _, b := range blocks {
		m, ok := b["model"].(string)
		if !ok || m == "" || seen[m] {
			continue
		}
		seen[m] = true
		out = append(out, map[string]any{"id": m, "name": m})
	}
	return out
}

func outputName(o any) string {
	switch v := o.(type) {
	case string:
		return v
	case map[string]any:
		s, _ := v["name"].(string)
		return s
	}
	return ""
}

func firstString(m map[string]any, keys ...string) string {
	for _, k := range keys {
		if s, ok := m[k].(string); ok && s != "" {
			return s
		}
	}
	return ""
}

func mapOrEmpty(v any) map[string]any {
	if m, ok := v.(map[string]any); ok {
		return m
	}
	return map[string]any{}
}

func listOfMaps(v any) []map[string]any {
	out := []map[string]any{}
	list, _ := v.([]any)
	for _, item := range list {
		if m, ok := item.(map[string]any); ok {
			out = append(out, m)
		}
	}
	return out
}

func scalarString(v any) string {
	switch x := v.(type) {
	case string:
		return x
	case float64:
		return strconv.FormatFloat(x, 'f', -1, 64)
	case int:
		return strconv.Itoa(x)
	case nil:
		return ""
	default:
		return fmt.Sprint(x)
	}
}

// stringKeys converts the map[any]any values yaml.v3 produces for
// non-string keys so the tree can be encoded as JSON.
func stringKeys(v any) any {
	switch x := v.(type) {
	case map[string]any:
		for k, val := range x {
			x[k] = stringKeys(val)
		}
		return x
	case map[any]any:
		out := make(map[string]any, len(x))
		for k, val := range x {
			out[fmt.Sprint(k)] = stringKeys(val)
		}
		return out
	case []any:
		for i, val := range x {
			x[i] = stringKeys(val)
		}
		return x
	default:
		return v
	}
}
