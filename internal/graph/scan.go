package graph

import (
	"bytes"
	"encoding/json"
	"regexp"

	"github.com/rendis/mabelstudio/pkg/schema"
)

// placeholderPattern matches single-level {name} references. Nested braces
// are not supported; the capture stops at the first closing brace.
var placeholderPattern = regexp.MustCompile(`\{\s*([^{}]+?)\s*\}`)

// Scan returns the reference names a block consumes, in first-seen order.
// Names are NFKC-cleaned and whitespace-collapsed but keep their casing.
// Names bound by the block itself (loop variables, accumulators) are never
// returned.
func Scan(b *schema.Block) []string {
	if b == nil || b.Spec == nil {
		return nil
	}
	s := &scanner{seen: make(map[string]bool)}
	b.Spec.Accept(s)
	return s.result()
}

// ScanText extracts the references found in a single string.
func ScanText(text string) []string {
	s := &scanner{seen: make(map[string]bool)}
	s.text(text)
	return s.result()
}

type scanner struct {
	refs  []string
	seen  map[string]bool
	bound []string
}

func (s *scanner) result() []string {
	if len(s.bound) == 0 {
		return s.refs
	}
	excluded := make(map[string]bool, len(s.bound))
	for _, name := range s.bound {
		excluded[Normalize(name)] = true
	}
	out := s.refs[:0:0]
	for _, ref := range s.refs {
		if !excluded[Normalize(ref)] {
			out = append(out, ref)
		}
	}
	return out
}

func (s *scanner) text(txt string) {
	if txt == "" {
		return
	}
	for _, m := range placeholderPattern.FindAllStringSubmatch(txt, -1) {
		name := clean(m[1])
		if name == "" || s.seen[name] {
			continue
		}
		s.seen[name] = true
		s.refs = append(s.refs, name)
	}
}

// stringField scans v only when it holds a string.
func (s *scanner) stringField(v any) {
	if str, ok := v.(string); ok {
		s.text(str)
	}
}

// structured serializes v to JSON and scans the text, which reaches
// placeholders at any depth of a condition tree.
func (s *scanner) structured(v any) {
	s.text(serialize(v))
}

// statements scans each element of a statement list separately.
func (s *scanner) statements(v any) {
	list, ok := v.([]any)
	if !ok {
		return
	}
	for _, stmt := range list {
		s.structured(stmt)
	}
}

func (s *scanner) bind(name string) {
	if c := clean(name); c != "" {
		s.bound = append(s.bound, c)
	}
}

func (s *scanner) VisitAI(b *schema.AIBlock) {
	s.text(b.SystemPrompt)
	for _, p := range b.Prompts {
		s.text(p)
	}
	if isObject(b.RunIf) {
		s.structured(b.RunIf)
	}
}

func (s *scanner) VisitLogic(b *schema.LogicBlock) {
	op := b.Op
	if op == nil {
		op = &schema.CondOp{}
	}
	op.Accept(s)
	if isObject(b.RunIf) {
		s.structured(b.RunIf)
	}
}

func (s *scanner) VisitPython(b *schema.PythonBlock) {
	switch in := b.Inputs.(type) {
	case []any:
		for _, v := range in {
			s.stringField(v)
		}
	case []string:
		for _, v := range in {
			s.text(v)
		}
	case map[string]any:
		for _, k := range sortedKeys(in) {
			s.stringField(in[k])
		}
	case map[string]string:
		for _, k := range sortedKeys(in) {
			s.text(in[k])
		}
	}
	if truthy(b.RunIf) {
		s.structured(b.RunIf)
	}
}

func (s *scanner) VisitEnd(b *schema.EndBlock) {
	s.text(b.Reason)
	for _, f := range b.Final {
		s.stringField(f.Value)
	}
	if truthy(b.RunIf) {
		s.structured(b.RunIf)
	}
}

func (s *scanner) VisitStart(*schema.StartBlock)     {}
func (s *scanner) VisitUnknown(*schema.UnknownBlock) {}

func (s *scanner) VisitCond(op *schema.CondOp) {
	s.condition(op.Cond, op.Then, op.Else, op.Operands)
}

func (s *scanner) condition(cond, then, els, operands any) {
	if truthy(cond) {
		s.structured(cond)
	}
	s.stringField(then)
	s.stringField(els)
	if truthy(operands) {
		s.structured(operands)
	}
}

func (s *scanner) VisitFor(op *schema.ForOp) {
	s.stringField(op.List)
	if truthy(op.Where) {
		s.structured(op.Where)
	}
	s.stringField(op.Map)
	s.bind(op.LoopVar())
}

func (s *scanner) VisitSet(op *schema.SetOp) {
	if op.Value != nil {
		s.structured(op.Value)
	}
}

func (s *scanner) VisitLet(op *schema.LetOp) {
	if truthy(op.Bindings) {
		s.structured(op.Bindings)
	}
	s.statements(op.Body)
}

func (s *scanner) VisitCall(op *schema.CallOp) {
	if truthy(op.With) {
		s.structured(op.With)
	}
}

func (s *scanner) VisitReduce(op *schema.ReduceOp) {
	s.stringField(op.List)
	if op.Value != nil {
		s.structured(op.Value)
	}
	s.statements(op.Body)
	s.bind(op.Accumulator)
	s.bind(op.Var)
}

func (s *scanner) VisitWhile(op *schema.WhileOp) {
	s.statements(op.Init)
	if truthy(op.Cond) {
		s.structured(op.Cond)
	}
	s.statements(op.Step)
}

// VisitEmit scans the condition fields only; the emitted value is not an
// input.
func (s *scanner) VisitEmit(op *schema.EmitOp) {
	s.condition(op.Cond, op.Then, op.Else, op.Operands)
}

func (s *scanner) VisitRecurse(op *schema.RecurseOp) {
	if truthy(op.With) {
		s.structured(op.With)
	}
	fn, ok := op.Function.(map[string]any)
	if !ok {
		return
	}
	if truthy(fn["base_case"]) {
		s.structured(fn["base_case"])
	}
	s.statements(fn["body"])
}

// serialize renders v as compact JSON without HTML escaping. Values that
// cannot be encoded yield "" so the field contributes no references.
func serialize(v any) string {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(v); err != nil {
		return ""
	}
	return string(bytes.TrimRight(buf.Bytes(), "\n"))
}

// truthy follows the loose truthiness of the editor's stored values: nil,
// false, zero and "" are false, every object and list is true.
func truthy(v any) bool {
	switch x := v.(type) {
	case nil:
		return false
	case bool:
		return x
	case string:
		return x != ""
	case float64:
		return x != 0
	case float32:
		return x != 0
	case int:
		return x != 0
	case int64:
		return x != 0
	default:
		return true
	}
}

// isObject reports whether v is a structured value (mapping or list).
func isObject(v any) bool {
	switch v.(type) {
	case map[string]any, []any, map[string]string, []string:
		return true
	default:
		return false
	}
}
