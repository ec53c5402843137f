package expressions

import (
	"github.com/rendis/mabelstudio/pkg/schema"
)

// sampleBlocks is start -> ask -> end, plus a logic block reading a name
// nobody produces.
func sampleBlocks() []*schema.Block {
	return []*schema.Block{
		{ID: "b1", Title: "Start", Spec: &schema.StartBlock{Outputs: schema.NameList{"UserInput"}}},
		{ID: "b2", Title: "Ask", Spec: &schema.AIBlock{
			Model:   "gpt",
			Prompts: []string{"{UserInput}"},
			Outputs: []schema.AIOutput{{Name: "Answer"}},
		}},
		{ID: "b3", Title: "Gate", Spec: &schema.LogicBlock{
			Op:      &schema.CondOp{Op: schema.OpIf, Cond: "{Missing}", Then: "run"},
			Outputs: []schema.LogicOutput{{Name: "Flag"}},
		}},
		{ID: "b4", Title: "End", Spec: &schema.EndBlock{
			Final: []schema.FinalValue{{Name: "Result", Value: "{Answer}"}},
		}},
	}
}
