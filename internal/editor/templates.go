package editor

import (
	"github.com/rendis/mabelstudio/pkg/schema"
)

// newSpec returns the starter content of a freshly added block.
func newSpec(t schema.BlockType, id string, models []schema.Model) (string, schema.BlockSpec, error) {
	switch t {
	case schema.BlockTypeStart:
		return "Start", &schema.StartBlock{Outputs: schema.NameList{"UserInput"}}, nil
	case schema.BlockTypeAI:
		model := ""
		if len(models) > 0 {
			model = models[0].Name
			if model == "" {
				model = models[0].ID
			}
		}
		return "AI Block", &schema.AIBlock{
			Model:   model,
			Prompts: []string{""},
			Outputs: []schema.AIOutput{{Name: "Output_" + id, Select: "full"}},
			OnError: "fail",
		}, nil
	case schema.BlockTypeLogic:
		return "Logic", &schema.LogicBlock{
			Op: &schema.CondOp{
				Op:   schema.OpIf,
				Cond: map[string]any{"equals": []any{"{IsUrgent}", "yes"}},
				Then: "run",
				Else: "skip",
			},
			Outputs: []schema.LogicOutput{
				{Name: "ShouldWrite", From: "value"},
				{Name: "IsUrgentBool", From: "boolean"},
			},
			OnError: "fail",
		}, nil
	case schema.BlockTypePython:
		return "Code", &schema.PythonBlock{
			Name:     "Postprocess",
			Function: "render_final",
			Inputs:   []any{},
			CodePath: "./script.py",
			VenvPath: "./.venv",
			Outputs:  schema.NameList{"Html", "PlainText"},
			OnError:  "fail",
		}, nil
	case schema.BlockTypeEnd:
		return "End", &schema.EndBlock{
			ExitCode: "success",
			Final:    []schema.FinalValue{{Name: "Result", Value: "{FinalAnswer}"}},
			OnError:  "fail",
		}, nil
	default:
		return "", nil, schema.NewErrorf(schema.ErrCodeValidation, "unknown block type %q", t)
	}
}
