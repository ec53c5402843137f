package schema

import (
	"encoding/json"
	"regexp"
	"strconv"
)

// BlockType discriminates the block variants of a workflow graph.
type BlockType string

const (
	BlockTypeAI     BlockType = "ai"
	BlockTypeLogic  BlockType = "logic"
	BlockTypePython BlockType = "python"
	BlockTypeEnd    BlockType = "end"
	BlockTypeStart  BlockType = "start"
)

// KnownBlockTypes lists every block type the editor understands.
var KnownBlockTypes = []BlockType{BlockTypeAI, BlockTypeLogic, BlockTypePython, BlockTypeEnd, BlockTypeStart}

// Position is a canvas coordinate owned by the layout engine.
type Position struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

// Block is one node of the workflow graph. The common fields live here and
// the type-specific content lives in Spec.
type Block struct {
	ID       string
	Title    string
	Exec     int
	Position *Position
	Spec     BlockSpec
}

// Type returns the discriminant of the block's variant.
func (b *Block) Type() BlockType {
	if b == nil || b.Spec == nil {
		return ""
	}
	return b.Spec.Kind()
}

// IsEnd reports whether the block is a terminal block.
func (b *Block) IsEnd() bool {
	return b.Type() == BlockTypeEnd
}

// Clone returns a deep copy of the block.
func (b *Block) Clone() *Block {
	data, err := json.Marshal(b)
	if err != nil {
		cp := *b
		return &cp
	}
	var out Block
	if err := json.Unmarshal(data, &out); err != nil {
		cp := *b
		return &cp
	}
	return &out
}

// BlockSpec is the closed set of block variants. Adding a variant means
// adding a method to BlockVisitor, so every visitor must handle it.
type BlockSpec interface {
	Kind() BlockType
	Accept(v BlockVisitor)
}

// BlockVisitor dispatches over the block variants.
type BlockVisitor interface {
	VisitAI(b *AIBlock)
	VisitLogic(b *LogicBlock)
	VisitPython(b *PythonBlock)
	VisitEnd(b *EndBlock)
	VisitStart(b *StartBlock)
	VisitUnknown(b *UnknownBlock)
}

// AIBlock calls a model with prompts and extracts named outputs.
type AIBlock struct {
	Model        string         `json:"model"`
	SystemPrompt string         `json:"system_prompt"`
	Prompts      []string       `json:"prompts"`
	Mode         string         `json:"mode,omitempty"`
	Outputs      []AIOutput     `json:"outputs"`
	SaveTo       map[string]any `json:"save_to,omitempty"`
	Params       map[string]any `json:"params,omitempty"`
	RunIf        any            `json:"run_if,omitempty"`
	OnError      string         `json:"on_error,omitempty"`
	Retry        any            `json:"retry,omitempty"`
	Budget       any            `json:"budget,omitempty"`
}

func (*AIBlock) Kind() BlockType         { return BlockTypeAI }
func (b *AIBlock) Accept(v BlockVisitor) { v.VisitAI(b) }

// AIOutput selects part of a model response under a name.
type AIOutput struct {
	Name     string `json:"name"`
	Select   string `json:"select,omitempty"`
	Tag      string `json:"tag,omitempty"`
	Path     string `json:"path,omitempty"`
	Regex    string `json:"regex,omitempty"`
	JoinWith string `json:"join_with,omitempty"`
	TypeHint string `json:"type_hint,omitempty"`
}

// UnmarshalJSON accepts either a bare output name or a full object.
func (o *AIOutput) UnmarshalJSON(data []byte) error {
	if name, ok := bareName(data); ok {
		*o = AIOutput{Name: name}
		return nil
	}
	type plain AIOutput
	return json.Unmarshal(data, (*plain)(o))
}

// PythonBlock runs a Python function. Inputs are declared explicitly as a
// list of strings or a mapping of parameter to string.
type PythonBlock struct {
	Name         string   `json:"py_name"`
	Function     string   `json:"function,omitempty"`
	Entrypoint   string   `json:"entrypoint,omitempty"`
	FunctionCode string   `json:"function_code,omitempty"`
	Inputs       any      `json:"inputs,omitempty"`
	CodePath     string   `json:"code_path,omitempty"`
	VenvPath     string   `json:"venv_path,omitempty"`
	UseEnv       string   `json:"use_env,omitempty"`
	TimeoutMs    int      `json:"timeout_ms,omitempty"`
	CtxAccess    []string `json:"ctx_access,omitempty"`
	Outputs      NameList `json:"py_outputs"`
	RunIf        any      `json:"run_if,omitempty"`
	OnError      string   `json:"on_error,omitempty"`
	Retry        any      `json:"retry,omitempty"`
}

func (*PythonBlock) Kind() BlockType         { return BlockTypePython }
func (b *PythonBlock) Accept(v BlockVisitor) { v.VisitPython(b) }

// EndBlock terminates the workflow and publishes final values.
type EndBlock struct {
	Reason   string       `json:"reason,omitempty"`
	ExitCode string       `json:"exit_code,omitempty"`
	Final    []FinalValue `json:"final,omitempty"`
	RunIf    any          `json:"run_if,omitempty"`
	OnError  string       `json:"on_error,omitempty"`
}

func (*EndBlock) Kind() BlockType         { return BlockTypeEnd }
func (b *EndBlock) Accept(v BlockVisitor) { v.VisitEnd(b) }

// FinalValue is one named result of an end block.
type FinalValue struct {
	Name  string `json:"name"`
	Value any    `json:"value"`
}

// StartBlock seeds the graph with user input. It is never exported.
type StartBlock struct {
	Outputs NameList `json:"outputs"`
}

func (*StartBlock) Kind() BlockType         { return BlockTypeStart }
func (b *StartBlock) Accept(v BlockVisitor) { v.VisitStart(b) }

// UnknownBlock preserves a block whose type the editor does not understand.
type UnknownBlock struct {
	TypeName string
	Fields   map[string]any
}

func (b *UnknownBlock) Kind() BlockType        { return BlockType(b.TypeName) }
func (b *UnknownBlock) Accept(v BlockVisitor) { v.VisitUnknown(b) }

func (b *UnknownBlock) MarshalJSON() ([]byte, error) {
	if b.Fields == nil {
		return []byte("{}"), nil
	}
	return json.Marshal(b.Fields)
}

func (b *UnknownBlock) UnmarshalJSON(data []byte) error {
	fields := map[string]any{}
	if err := json.Unmarshal(data, &fields); err != nil {
		return err
	}
	for _, k := range headKeys {
		delete(fields, k)
	}
	b.Fields = fields
	return nil
}

// NameList is a list of names that also accepts {name: ...} objects.
type NameList []string

func (n *NameList) UnmarshalJSON(data []byte) error {
	var raw []json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	out := make(NameList, 0, len(raw))
	for _, r := range raw {
		if name, ok := bareName(r); ok {
			out = append(out, name)
			continue
		}
		var obj struct {
			Name string `json:"name"`
		}
		if err := json.Unmarshal(r, &obj); err != nil {
			return err
		}
		if obj.Name != "" {
			out = append(out, obj.Name)
		}
	}
	*n = out
	return nil
}

func bareName(data []byte) (string, bool) {
	if len(data) == 0 || data[0] != '"' {
		return "", false
	}
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return "", false
	}
	return s, true
}

var blockIDPattern = regexp.MustCompile(`^b(\d+)$`)

// BlockNumber extracts N from an editor-minted ID of the form "bN".
func BlockNumber(id string) (int, bool) {
	m := blockIDPattern.FindStringSubmatch(id)
	if m == nil {
		return 0, false
	}
	n, err := strconv.Atoi(m[1])
	if err != nil {
		return 0, false
	}
	return n, true
}
