package schema

import (
	"encoding/json"
	"fmt"
)

// headKeys are the JSON keys shared by every block variant.
var headKeys = []string{"id", "type", "title", "exec", "position"}

type blockHead struct {
	ID       string    `json:"id"`
	Type     BlockType `json:"type"`
	Title    string    `json:"title,omitempty"`
	Exec     int       `json:"exec"`
	Position *Position `json:"position,omitempty"`
}

// MarshalJSON flattens the common fields and the variant fields into one
// object, the shape the browser canvas works with.
func (b Block) MarshalJSON() ([]byte, error) {
	head := blockHead{
		ID:       b.ID,
		Type:     b.Type(),
		Title:    b.Title,
		Exec:     b.Exec,
		Position: b.Position,
	}
	if b.Spec == nil {
		return json.Marshal(head)
	}
	return mergeObjects(b.Spec, head)
}

// UnmarshalJSON decodes the common fields, then the variant selected by
// "type". Unknown types are preserved as UnknownBlock.
func (b *Block) UnmarshalJSON(data []byte) error {
	var head struct {
		ID       string          `json:"id"`
		Type     BlockType       `json:"type"`
		Title    string          `json:"title"`
		Exec     json.RawMessage `json:"exec"`
		Position *Position       `json:"position"`
	}
	if err := json.Unmarshal(data, &head); err != nil {
		return err
	}
	spec := NewBlockSpec(head.Type)
	if err := json.Unmarshal(data, spec); err != nil {
		return fmt.Errorf("block %q (%s): %w", head.ID, head.Type, err)
	}
	*b = Block{
		ID:       head.ID,
		Title:    head.Title,
		Exec:     parseExec(head.Exec),
		Position: head.Position,
		Spec:     spec,
	}
	return nil
}

// NewBlockSpec returns an empty variant for the given type.
func NewBlockSpec(t BlockType) BlockSpec {
	switch t {
	case BlockTypeAI:
		return &AIBlock{}
	case BlockTypeLogic:
		return &LogicBlock{Op: &CondOp{Op: OpIf}}
	case BlockTypePython:
		return &PythonBlock{}
	case BlockTypeEnd:
		return &EndBlock{}
	case BlockTypeStart:
		return &StartBlock{}
	default:
		return &UnknownBlock{TypeName: string(t)}
	}
}

// parseExec tolerates null, floats and numeric strings. Anything else is 0.
func parseExec(raw json.RawMessage) int {
	if len(raw) == 0 {
		return 0
	}
	var f float64
	if err := json.Unmarshal(raw, &f); err == nil {
		return int(f)
	}
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		var n int
		if _, err := fmt.Sscan(s, &n); err == nil {
			return n
		}
	}
	return 0
}

// mergeObjects marshals each part as a JSON object and merges the keys.
// Later parts win on conflicts.
func mergeObjects(parts ...any) ([]byte, error) {
	merged := map[string]json.RawMessage{}
	for _, p := range parts {
		if p == nil {
			continue
		}
		data, err := json.Marshal(p)
		if err != nil {
			return nil, err
		}
		var fields map[string]json.RawMessage
		if err := json.Unmarshal(data, &fields); err != nil {
			return nil, err
		}
		for k, v := range fields {
			merged[k] = v
		}
	}
	return json.Marshal(merged)
}
