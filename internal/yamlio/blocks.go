package yamlio

import (
	"gopkg.in/yaml.v3"

	"github.com/rendis/mabelstudio/pkg/schema"
)

func blocksNode(blocks []*schema.Block) *yaml.Node {
	s := seq()
	for i, b := range OrderBlocks(blocks) {
		if b.Type() == schema.BlockTypeStart {
			continue
		}
		w := &blockWriter{m: newMapping()}
		w.m.set("type", bare(string(b.Type())))
		w.m.set("exec", intNode(execOrOne(b)))
		w.m.set("no", intNode(i+1))
		if b.Spec != nil {
			b.Spec.Accept(w)
		}
		s.Content = append(s.Content, w.m.node)
	}
	return s
}

// blockWriter appends the variant fields of one block in runtime order.
type blockWriter struct {
	m *mapping
}

func (w *blockWriter) VisitAI(b *schema.AIBlock) {
	if b.Model != "" {
		w.m.set("model", str(b.Model))
	}
	key := w.m.set("system_prompt", text(b.SystemPrompt))
	if b.Model == "" {
		key.HeadComment = "# WARNING: model is empty"
	}

	prompts := b.Prompts
	if prompts == nil {
		prompts = []string{""}
	}
	ps := seq()
	for _, p := range prompts {
		ps.Content = append(ps.Content, text(p))
	}
	w.m.set("prompts", ps)

	if b.Mode != "" {
		w.m.set("mode", bare(b.Mode))
	}

	outs := seq()
	for _, o := range b.Outputs {
		om := newMapping()
		om.set("name", str(o.Name))
		sel := o.Select
		if sel == "" {
			sel = "full"
		}
		om.set("select", bare(sel))
		if sel == "tag" && o.Tag != "" {
			om.set("tag", str(o.Tag))
		}
		if sel == "jsonpath" && o.Path != "" {
			om.set("path", str(o.Path))
		}
		if sel == "regex" && o.Regex != "" {
			om.set("regex", str(o.Regex))
		}
		if o.JoinWith != "" {
			om.set("join_with", str(o.JoinWith))
		}
		if o.TypeHint != "" {
			om.set("type_hint", str(o.TypeHint))
		}
		outs.Content = append(outs.Content, om.node)
	}
	w.m.set("outputs", outs)

	if vars, ok := b.SaveTo["vars"].(map[string]any); ok && len(vars) > 0 {
		v := newMapping()
		for _, k := range sortedKeys(vars) {
			v.set(k, str(vars[k]))
		}
		st := newMapping()
		st.set("vars", v.node)
		w.m.set("save_to", st.node)
	}

	if len(b.Params) > 0 {
		pm := newMapping()
		for _, k := range sortedKeys(b.Params) {
			v := b.Params[k]
			if stop, ok := v.([]any); ok && k == "stop" {
				n := &yaml.Node{Kind: yaml.SequenceNode, Style: yaml.FlowStyle}
				for _, s := range stop {
					n.Content = append(n.Content, str(s))
				}
				pm.set(k, n)
				continue
			}
			switch v.(type) {
			case float64, int:
				pm.set(k, number(v))
			default:
				pm.set(k, str(v))
			}
		}
		w.m.set("params", pm.node)
	}

	w.common(b.RunIf, b.OnError)
	if present(b.Retry) {
		w.m.set("retry", inline(b.Retry))
	}
	if present(b.Budget) {
		w.m.set("budget", inline(b.Budget))
	}
}

func (w *blockWriter) VisitLogic(b *schema.LogicBlock) {
	if b.Name != "" {
		w.m.set("name", str(b.Name))
	}
	w.m.set("op", bare(b.OpName()))
	if b.Op != nil {
		b.Op.Accept(w)
	}

	if len(b.Outputs) > 0 {
		outs := seq()
		for _, o := range b.Outputs {
			om := newMapping()
			om.set("name", str(o.Name))
			from := o.From
			if from == "" {
				from = "boolean"
			}
			om.set("from", bare(from))
			if o.Test != nil {
				om.set("test", inline(o.Test))
			}
			if o.Source != "" {
				om.set("source", bare(o.Source))
			}
			if o.JoinWith != "" {
				om.set("join_with", str(o.JoinWith))
			}
			if o.Limit != nil {
				om.set("limit", intNode(*o.Limit))
			}
			if o.Offset != nil {
				om.set("offset", intNode(*o.Offset))
			}
			outs.Content = append(outs.Content, om.node)
		}
		w.m.set("outputs", outs)
	}
	w.common(b.RunIf, b.OnError)
}

func (w *blockWriter) VisitPython(b *schema.PythonBlock) {
	w.m.set("name", str(b.Name))
	fn := b.Function
	if fn == "" {
		fn = b.Entrypoint
	}
	if fn != "" {
		w.m.set("function", str(fn))
	}
	if b.FunctionCode != "" {
		w.m.set("function_code", &yaml.Node{Kind: yaml.ScalarNode, Tag: "!!str", Value: b.FunctionCode, Style: yaml.LiteralStyle})
	}

	switch in := b.Inputs.(type) {
	case map[string]any:
		w.m.set("inputs", inline(in))
	default:
		w.m.set("inputs", flowStrings(stringList(in)))
	}

	if b.CodePath != "" {
		w.m.set("code_path", str(b.CodePath))
	}
	if b.VenvPath != "" {
		w.m.set("venv_path", str(b.VenvPath))
	}
	if b.UseEnv != "" && b.UseEnv != "global" {
		w.m.set("use_env", bare(b.UseEnv))
	}
	if b.TimeoutMs != 0 {
		w.m.set("timeout_ms", intNode(b.TimeoutMs))
	}
	if b.CtxAccess != nil {
		w.m.set("ctx_access", flowStrings(b.CtxAccess))
	}
	w.m.set("outputs", flowStrings(b.Outputs))

	w.common(b.RunIf, b.OnError)
	if present(b.Retry) {
		w.m.set("retry", inline(b.Retry))
	}
}

func (w *blockWriter) VisitEnd(b *schema.EndBlock) {
	if b.Reason != "" {
		w.m.set("reason", str(b.Reason))
	}
	if b.ExitCode != "" {
		w.m.set("exit_code", str(b.ExitCode))
	}
	if len(b.Final) > 0 {
		fs := seq()
		for _, f := range b.Final {
			fm := newMapping()
			fm.set("name", str(f.Name))
			fm.set("value", str(f.Value))
			fs.Content = append(fs.Content, fm.node)
		}
		w.m.set("final", fs)
	}
	w.common(b.RunIf, b.OnError)
}

func (w *blockWriter) VisitStart(*schema.StartBlock) {}

func (w *blockWriter) VisitUnknown(b *schema.UnknownBlock) {
	for _, k := range sortedKeys(b.Fields) {
		w.m.set(k, inline(b.Fields[k]))
	}
}

func (w *blockWriter) common(runIf any, onError string) {
	if present(runIf) {
		w.m.set("run_if", inline(runIf))
	}
	if onError != "" {
		w.m.set("on_error", bare(onError))
	}
}

func (w *blockWriter) VisitCond(op *schema.CondOp) {
	switch op.OpName() {
	case schema.OpIf:
		cond := op.Cond
		if !present(cond) {
			cond = map[string]any{}
		}
		w.m.set("cond", inline(cond))
		if op.Then != nil {
			w.m.set("then", str(op.Then))
		}
		if op.Else != nil {
			w.m.set("else", str(op.Else))
		}
	case schema.OpAnd, schema.OpOr, schema.OpNot:
		if present(op.Operands) {
			w.m.set("operands", inline(op.Operands))
		}
	default:
		if present(op.Cond) {
			w.m.set("cond", inline(op.Cond))
		}
		if op.Then != nil {
			w.m.set("then", str(op.Then))
		}
		if op.Else != nil {
			w.m.set("else", str(op.Else))
		}
		if present(op.Operands) {
			w.m.set("operands", inline(op.Operands))
		}
	}
}

func (w *blockWriter) VisitFor(op *schema.ForOp) {
	if op.List != nil {
		w.m.set("list", str(op.List))
	}
	if op.Parse != "" {
		w.m.set("parse", bare(op.Parse))
	}
	if op.Parse == "regex" && op.RegexPattern != "" {
		w.m.set("regex_pattern", str(op.RegexPattern))
	}
	if op.Var != "" {
		w.m.set("var", str(op.Var))
	}
	if op.DropEmpty != nil {
		w.m.set("drop_empty", boolNode(*op.DropEmpty))
	}
	if present(op.Where) {
		w.m.set("where", inline(op.Where))
	}
	if present(op.Map) {
		w.m.set("map", str(op.Map))
	}
}

func (w *blockWriter) VisitSet(op *schema.SetOp) {
	if op.Var != "" {
		w.m.set("var", str(op.Var))
	}
	if op.Value != nil {
		w.m.set("value", inline(op.Value))
	}
}

func (w *blockWriter) VisitLet(op *schema.LetOp) {
	if present(op.Bindings) {
		w.m.set("bindings", inline(op.Bindings))
	}
	if present(op.Body) {
		w.m.set("body", inline(op.Body))
	}
}

func (w *blockWriter) VisitCall(op *schema.CallOp) {
	if present(op.Function) {
		w.m.set("function", str(op.Function))
	}
	if present(op.With) {
		w.m.set("with", inline(op.With))
	}
	if op.Returns != nil {
		w.m.set("returns", flowStrings(op.Returns))
	}
}

func (w *blockWriter) VisitReduce(op *schema.ReduceOp) {
	if op.List != nil {
		w.m.set("list", str(op.List))
	}
	if op.Value != nil {
		w.m.set("value", inline(op.Value))
	}
	if op.Var != "" {
		w.m.set("var", str(op.Var))
	}
	if op.Accumulator != "" {
		w.m.set("accumulator", str(op.Accumulator))
	}
	if present(op.Body) {
		w.m.set("body", inline(op.Body))
	}
}

func (w *blockWriter) VisitWhile(op *schema.WhileOp) {
	for _, f := range []struct {
		key string
		val any
	}{{"init", op.Init}, {"cond", op.Cond}, {"step", op.Step}, {"budget", op.Budget}} {
		if present(f.val) {
			w.m.set(f.key, inline(f.val))
		}
	}
}

func (w *blockWriter) VisitEmit(op *schema.EmitOp) {
	if op.Value != nil {
		w.m.set("value", inline(op.Value))
	}
	for _, f := range []struct {
		key string
		val any
	}{{"cond", op.Cond}, {"operands", op.Operands}} {
		if present(f.val) {
			w.m.set(f.key, inline(f.val))
		}
	}
	if op.Then != nil {
		w.m.set("then", str(op.Then))
	}
	if op.Else != nil {
		w.m.set("else", str(op.Else))
	}
}

func (w *blockWriter) VisitRecurse(op *schema.RecurseOp) {
	for _, f := range []struct {
		key string
		val any
	}{{"function", op.Function}, {"with", op.With}, {"budget", op.Budget}} {
		if present(f.val) {
			w.m.set(f.key, inline(f.val))
		}
	}
}

func stringList(v any) []string {
	switch x := v.(type) {
	case []string:
		return x
	case []any:
		out := make([]string, 0, len(x))
		for _, item := range x {
			out = append(out, asString(item))
		}
		return out
	default:
		return []string{}
	}
}
