package studio

import (
	"context"
	"strings"

	"github.com/rendis/mabelstudio/internal/diagram"
	"github.com/rendis/mabelstudio/internal/editor"
	"github.com/rendis/mabelstudio/internal/graph"
	"github.com/rendis/mabelstudio/internal/yamlio"
	"github.com/rendis/mabelstudio/pkg/schema"
)

// Inspection is the derived view of a document: the inferred graph plus
// the validation outcome.
type Inspection struct {
	Edges      []schema.Edge            `json:"edges"`
	Levels     map[string]int           `json:"levels"`
	Columns    [][]string               `json:"columns"`
	Unresolved []string                 `json:"unresolved,omitempty"`
	Inputs     []graph.BlockInputs      `json:"inputs"`
	Validation *schema.ValidationResult `json:"validation"`
}

// Inspect derives edges, levels and inputs without touching doc, and runs
// the validation pipeline.
func (s *Service) Inspect(ctx context.Context, doc *schema.Document) *Inspection {
	a := graph.Analyze(doc.Blocks)
	return &Inspection{
		Edges:      a.Edges,
		Levels:     a.Levels,
		Columns:    graph.Columns(doc.Blocks, a.Levels),
		Unresolved: a.Unresolved,
		Inputs:     a.Inputs,
		Validation: s.deps.Validator.Validate(ctx, doc),
	}
}

// Validate runs the full validation pipeline, lint rules included.
func (s *Service) Validate(ctx context.Context, doc *schema.Document) *schema.ValidationResult {
	return s.deps.Validator.Validate(ctx, doc)
}

// ParseYAML imports YAML text, assigns levels and places unpositioned
// blocks, the same way the canvas does after an upload.
func (s *Service) ParseYAML(text []byte) (*schema.Document, error) {
	doc, err := yamlio.Import(text)
	if err != nil {
		return nil, err
	}
	return editor.New(doc, s.editorOptions()).Document(), nil
}

// ParseState decodes the canvas JSON state without releveling it.
func (s *Service) ParseState(state map[string]any) (*schema.Document, error) {
	return yamlio.FromState(state)
}

// ExportYAML renders a document as MABEL YAML.
func (s *Service) ExportYAML(doc *schema.Document) ([]byte, error) {
	return yamlio.Export(doc)
}

// Query runs a jq expression over the document JSON.
func (s *Service) Query(ctx context.Context, expression string, doc *schema.Document) ([]any, error) {
	return s.jq.Query(ctx, expression, doc)
}

// Filter returns the blocks matching an expr predicate.
func (s *Service) Filter(ctx context.Context, expression string, doc *schema.Document) ([]*schema.Block, error) {
	return s.expr.Filter(ctx, expression, doc.Blocks)
}

// DiagramFormat names a diagram output.
type DiagramFormat string

const (
	DiagramMermaid DiagramFormat = "mermaid"
	DiagramASCII   DiagramFormat = "ascii"
	DiagramDOT     DiagramFormat = "dot"
	DiagramPNG     DiagramFormat = "png"
	DiagramSVG     DiagramFormat = "svg"
)

// DiagramFormats lists the accepted formats.
var DiagramFormats = []DiagramFormat{DiagramMermaid, DiagramASCII, DiagramDOT, DiagramPNG, DiagramSVG}

// Rendered is a diagram body with its media type.
type Rendered struct {
	ContentType string
	Body        []byte
}

// Diagram renders the inferred graph of doc.
func (s *Service) Diagram(ctx context.Context, doc *schema.Document, format DiagramFormat) (*Rendered, error) {
	model := diagram.Build(doc, nil)
	switch DiagramFormat(strings.ToLower(string(format))) {
	case DiagramMermaid, "":
		return &Rendered{ContentType: "text/plain; charset=utf-8", Body: []byte(diagram.RenderMermaid(model))}, nil
	case DiagramASCII:
		out := diagram.RenderASCIIAuto(ctx, model, s.deps.MermaidBinDir)
		return &Rendered{ContentType: "text/plain; charset=utf-8", Body: []byte(out)}, nil
	case DiagramDOT:
		out, err := diagram.RenderDOT(model)
		if err != nil {
			return nil, err
		}
		return &Rendered{ContentType: "text/vnd.graphviz", Body: []byte(out)}, nil
	case DiagramPNG:
		body, err := diagram.RenderImage(ctx, model, diagram.FormatPNG)
		if err != nil {
			return nil, err
		}
		return &Rendered{ContentType: "image/png", Body: body}, nil
	case DiagramSVG:
		body, err := diagram.RenderImage(ctx, model, diagram.FormatSVG)
		if err != nil {
			return nil, err
		}
		return &Rendered{ContentType: "image/svg+xml", Body: body}, nil
	default:
		return nil, schema.NewErrorf(schema.ErrCodeValidation, "unknown diagram format %q", format)
	}
}

// CuratedModels is the static model list offered to the canvas.
func CuratedModels() []schema.Model {
	return []schema.Model{
		{ID: "gpt-4o-mini", Provider: "openai", Label: "GPT-4o mini"},
		{ID: "gpt-4o", Provider: "openai", Label: "GPT-4o"},
		{ID: "claude-3.5-sonnet", Provider: "anthropic", Label: "Claude 3.5 Sonnet"},
		{ID: "gemini-1.5-pro", Provider: "google", Label: "Gemini 1.5 Pro"},
		{ID: "llama-3.1-70b", Provider: "meta", Label: "Llama 3.1 70B"},
	}
}
