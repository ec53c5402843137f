package graph

import "github.com/rendis/mabelstudio/pkg/schema"

func startBlock(id string, outputs ...string) *schema.Block {
	return &schema.Block{ID: id, Spec: &schema.StartBlock{Outputs: outputs}}
}

func aiBlock(id, systemPrompt string, prompts []string, outputs ...string) *schema.Block {
	outs := make([]schema.AIOutput, 0, len(outputs))
	for _, o := range outputs {
		outs = append(outs, schema.AIOutput{Name: o, Select: "full"})
	}
	return &schema.Block{ID: id, Spec: &schema.AIBlock{
		SystemPrompt: systemPrompt,
		Prompts:      prompts,
		Outputs:      outs,
	}}
}

func logicBlock(id string, op schema.LogicOp, outputs ...string) *schema.Block {
	outs := make([]schema.LogicOutput, 0, len(outputs))
	for _, o := range outputs {
		outs = append(outs, schema.LogicOutput{Name: o})
	}
	return &schema.Block{ID: id, Spec: &schema.LogicBlock{Op: op, Outputs: outs}}
}

func pythonBlock(id string, inputs any, outputs ...string) *schema.Block {
	return &schema.Block{ID: id, Spec: &schema.PythonBlock{Name: id, Inputs: inputs, Outputs: outputs}}
}

func endBlock(id string, finals ...string) *schema.Block {
	fv := make([]schema.FinalValue, 0, len(finals))
	for i, v := range finals {
		fv = append(fv, schema.FinalValue{Name: string(rune('A' + i)), Value: v})
	}
	return &schema.Block{ID: id, Spec: &schema.EndBlock{Final: fv}}
}

func execOf(blocks []*schema.Block) map[string]int {
	out := make(map[string]int, len(blocks))
	for _, b := range blocks {
		out[b.ID] = b.Exec
	}
	return out
}
