package validation

import (
	"slices"

	"github.com/rendis/mabelstudio/pkg/schema"
)

// validDoc is start -> ask -> end with a declared model.
func validDoc() *schema.Document {
	doc := schema.NewDocument()
	doc.Models = []schema.Model{{ID: "gpt-4o", Name: "gpt-4o"}}
	doc.Blocks = []*schema.Block{
		{ID: "b1", Title: "Start", Spec: &schema.StartBlock{Outputs: schema.NameList{"UserInput"}}},
		{ID: "b2", Title: "Ask", Spec: &schema.AIBlock{
			Model:   "gpt-4o",
			Prompts: []string{"{UserInput}"},
			Outputs: []schema.AIOutput{{Name: "Answer", Select: "full"}},
		}},
		{ID: "b3", Title: "End", Spec: &schema.EndBlock{
			Final: []schema.FinalValue{{Name: "Result", Value: "{Answer}"}},
		}},
	}
	return doc
}

func codes(issues []schema.ValidationIssue) []string {
	out := make([]string, 0, len(issues))
	for _, is := range issues {
		out = append(out, is.Code)
	}
	return out
}

func issuesFor(issues []schema.ValidationIssue, blockID string) []schema.ValidationIssue {
	return slices.DeleteFunc(slices.Clone(issues), func(is schema.ValidationIssue) bool {
		return is.BlockID != blockID
	})
}
