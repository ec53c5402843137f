package schema

// DocumentVersion is the MABEL format version the editor writes.
const DocumentVersion = "2.1"

// Document is the editor's in-memory graph state: the MABEL header, the
// top-level sections and the block list.
type Document struct {
	Mabel       Header           `json:"mabel"`
	Runtime     map[string]any   `json:"runtime,omitempty"`
	Globals     map[string]any   `json:"globals,omitempty"`
	Budgets     map[string]any   `json:"budgets,omitempty"`
	Functions   map[string]any   `json:"functions,omitempty"`
	Images      []Image          `json:"images"`
	Models      []Model          `json:"models"`
	Templates   []map[string]any `json:"templates,omitempty"`
	Files       []map[string]any `json:"files,omitempty"`
	Blocks      []*Block         `json:"blocks"`
	Connections []map[string]any `json:"connections,omitempty"`
}

// NewDocument returns an empty document with the current version header.
func NewDocument() *Document {
	return &Document{
		Mabel:  Header{Version: DocumentVersion},
		Images: []Image{},
		Models: []Model{},
		Blocks: []*Block{},
	}
}

// Block returns the block with the given ID, or nil.
func (d *Document) Block(id string) *Block {
	for _, b := range d.Blocks {
		if b.ID == id {
			return b
		}
	}
	return nil
}

// Header is the "mabel:" section of a document.
type Header struct {
	Version     string `json:"version"`
	ID          string `json:"id,omitempty"`
	Name        string `json:"name,omitempty"`
	Description string `json:"description,omitempty"`
}

// Image is a static image referenced from prompts as {name.img}.
type Image struct {
	Name      string `json:"name"`
	Path      string `json:"path,omitempty"`
	URL       string `json:"url,omitempty"`
	Base64    string `json:"base64,omitempty"`
	MediaType string `json:"media_type,omitempty"`
}

// Model is a model connection usable by AI blocks.
type Model struct {
	ID                 string         `json:"id"`
	Name               string         `json:"name,omitempty"`
	APIModel           string         `json:"api_model,omitempty"`
	APIKey             string         `json:"api_key,omitempty"`
	BaseURL            string         `json:"base_url,omitempty"`
	Organization       string         `json:"organization,omitempty"`
	Headers            map[string]any `json:"headers,omitempty"`
	RequestDefaults    map[string]any `json:"request_defaults,omitempty"`
	EnableReasoning    *bool          `json:"enable_reasoning,omitempty"`
	IncludeReasoning   *bool          `json:"include_reasoning,omitempty"`
	ExcludeReasoning   *bool          `json:"exclude_reasoning,omitempty"`
	ReasoningEffort    string         `json:"reasoning_effort,omitempty"`
	ReasoningMaxTokens *int           `json:"reasoning_max_tokens,omitempty"`
	Capabilities       []string       `json:"capabilities,omitempty"`
	Safety             map[string]any `json:"safety,omitempty"`
	Provider           string         `json:"provider,omitempty"`
	Label              string         `json:"label,omitempty"`
	Meta               map[string]any `json:"meta,omitempty"`
}

// Edge is a derived producer to consumer dependency. Label is the reference
// text as it was written in the consumer.
type Edge struct {
	From  string `json:"from"`
	To    string `json:"to"`
	Label string `json:"label"`
}
