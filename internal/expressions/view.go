package expressions

import (
	"encoding/json"

	"github.com/rendis/mabelstudio/internal/graph"
	"github.com/rendis/mabelstudio/pkg/schema"
)

// BlockData is the environment a block exposes to lint rules and filters:
//   - block:    the block's serialized non-null fields, exec as an integer
//   - inputs:   names the block references
//   - outputs:  names the block produces
//   - dangling: references no block produces
func BlockData(b *schema.Block, a *graph.Analysis) map[string]any {
	fields := map[string]any{}
	if raw, err := json.Marshal(b); err == nil {
		_ = json.Unmarshal(raw, &fields)
	}
	for k, v := range fields {
		if v == nil {
			delete(fields, k)
		}
	}
	fields["id"] = b.ID
	fields["type"] = string(b.Type())
	fields["exec"] = int64(b.Exec)
	if lvl, ok := a.Levels[b.ID]; ok {
		fields["exec"] = int64(lvl)
	}

	inputs := []string{}
	dangling := []string{}
	for _, bi := range a.Inputs {
		if bi.BlockID != b.ID {
			continue
		}
		for _, r := range bi.Inputs {
			inputs = append(inputs, r.Name)
			if len(r.Producers) == 0 {
				dangling = append(dangling, r.Name)
			}
		}
	}
	outputs := graph.Outputs(b)
	if outputs == nil {
		outputs = []string{}
	}

	return map[string]any{
		"block":    fields,
		"inputs":   inputs,
		"outputs":  outputs,
		"dangling": dangling,
	}
}

// DocumentData converts a document to the plain JSON value jq expects.
func DocumentData(doc *schema.Document) (map[string]any, error) {
	raw, err := json.Marshal(doc)
	if err != nil {
		return nil, schema.NewError(schema.ErrCodeQuery, "encode document").WithCause(err)
	}
	var out map[string]any
	if err := json.Unmarshal(raw, &out); err != nil {
		return nil, schema.NewError(schema.ErrCodeQuery, "decode document").WithCause(err)
	}
	return out, nil
}
