package yamlio

import (
	"bytes"
	"math"
	"slices"

	"gopkg.in/yaml.v3"

	"github.com/rendis/mabelstudio/pkg/schema"
)

// Export renders a document as MABEL v2.1 YAML. Field names and order
// follow the runtime schema. Blocks are ordered end-last, then by exec,
// canvas y and numeric ID, and numbered 1..N in that order; start blocks
// take a number but are not written.
func Export(doc *schema.Document) ([]byte, error) {
	root := newMapping()

	header := newMapping()
	header.set("version", &yaml.Node{Kind: yaml.ScalarNode, Tag: "!!str", Value: schema.DocumentVersion, Style: yaml.DoubleQuotedStyle})
	if doc.Mabel.ID != "" {
		header.set("id", str(doc.Mabel.ID))
	}
	if doc.Mabel.Name != "" {
		header.set("name", str(doc.Mabel.Name))
	}
	if doc.Mabel.Description != "" {
		header.set("description", str(doc.Mabel.Description))
	}
	root.set("mabel", header.node)

	if rt := runtimeNode(doc.Runtime); rt != nil {
		root.set("runtime", rt)
	}
	if g := globalsNode(doc.Globals); g != nil {
		root.set("globals", g)
	}
	if b := budgetsNode(doc.Budgets); b != nil {
		root.set("budgets", b)
	}
	if f := functionsNode(doc.Functions); f != nil {
		root.set("functions", f)
	}
	if len(doc.Images) > 0 {
		root.set("images", imagesNode(doc.Images))
	}
	root.set("models", modelsNode(doc.Models))
	root.set("blocks", blocksNode(doc.Blocks))

	return encode(root.node)
}

// ExportModels renders only the models section.
func ExportModels(models []schema.Model) ([]byte, error) {
	root := newMapping()
	root.set("models", modelsNode(models))
	return encode(root.node)
}

// OrderBlocks returns the blocks in export order.
func OrderBlocks(blocks []*schema.Block) []*schema.Block {
	ordered := slices.Clone(blocks)
	slices.SortStableFunc(ordered, func(a, b *schema.Block) int {
		if a.IsEnd() != b.IsEnd() {
			if a.IsEnd() {
				return 1
			}
			return -1
		}
		if ea, eb := execOrOne(a), execOrOne(b); ea != eb {
			return ea - eb
		}
		if ya, yb := canvasY(a), canvasY(b); ya != yb {
			if ya < yb {
				return -1
			}
			return 1
		}
		return idNumber(a.ID) - idNumber(b.ID)
	})
	return ordered
}

func encode(n *yaml.Node) ([]byte, error) {
	var buf bytes.Buffer
	enc := yaml.NewEncoder(&buf)
	enc.SetIndent(2)
	if err := enc.Encode(n); err != nil {
		return nil, err
	}
	if err := enc.Close(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func runtimeNode(rt map[string]any) *yaml.Node {
	if len(rt) == 0 {
		return nil
	}
	m := newMapping()
	if py, ok := rt["python"].(map[string]any); ok {
		p := newMapping()
		for _, k := range []string{"interpreter", "venv", "requirements_file"} {
			if present(py[k]) {
				p.set(k, str(py[k]))
			}
		}
		if reqs, ok := py["requirements"].([]any); ok {
			s := seq()
			for _, r := range reqs {
				s.Content = append(s.Content, str(r))
			}
			p.set("requirements", s)
		}
		if allow, ok := py["allow_network"].(bool); ok {
			p.set("allow_network", boolNode(allow))
		}
		if env, ok := py["env"].(map[string]any); ok && len(env) > 0 {
			e := newMapping()
			for _, k := range sortedKeys(env) {
				e.set(k, str(env[k]))
			}
			p.set("env", e.node)
		}
		m.set("python", p.node)
	}
	return m.node
}

func globalsNode(g map[string]any) *yaml.Node {
	if len(g) == 0 {
		return nil
	}
	m := newMapping()
	for _, section := range []string{"const", "vars"} {
		vals, ok := g[section].(map[string]any)
		if !ok || len(vals) == 0 {
			continue
		}
		s := newMapping()
		for _, k := range sortedKeys(vals) {
			v := vals[k]
			switch v.(type) {
			case map[string]any, []any:
				s.set(k, inline(v))
			default:
				s.set(k, str(v))
			}
		}
		m.set(section, s.node)
	}
	return m.node
}

func budgetsNode(b map[string]any) *yaml.Node {
	if len(b) == 0 {
		return nil
	}
	m := newMapping()
	if loops, ok := b["loops"].(map[string]any); ok {
		l := newMapping()
		l.set("max_iters", numberOr(loops["max_iters"], 1000))
		if present(loops["on_exceed"]) {
			l.set("on_exceed", bare(asString(loops["on_exceed"])))
		}
		m.set("loops", l.node)
	}
	if rec, ok := b["recursion"].(map[string]any); ok {
		r := newMapping()
		r.set("max_depth", numberOr(rec["max_depth"], 64))
		if present(rec["on_exceed"]) {
			r.set("on_exceed", bare(asString(rec["on_exceed"])))
		}
		m.set("recursion", r.node)
	}
	if present(b["wall_time_ms"]) {
		m.set("wall_time_ms", number(b["wall_time_ms"]))
	}
	if ai, ok := b["ai"].(map[string]any); ok {
		a := newMapping()
		for _, k := range []string{"max_calls", "max_tokens"} {
			if present(ai[k]) {
				a.set(k, number(ai[k]))
			}
		}
		m.set("ai", a.node)
	}
	return m.node
}

func functionsNode(f map[string]any) *yaml.Node {
	if len(f) == 0 {
		return nil
	}
	m := newMapping()
	for _, kind := range []string{"logic", "python"} {
		fns, ok := f[kind].([]any)
		if !ok {
			continue
		}
		s := seq()
		for _, raw := range fns {
			fn, _ := raw.(map[string]any)
			item := newMapping()
			item.set("name", str(fn["name"]))
			if present(fn["params"]) {
				item.set("params", inline(fn["params"]))
			}
			if kind == "logic" && present(fn["body"]) {
				item.set("body", inline(fn["body"]))
			}
			if kind == "python" && present(fn["code"]) {
				item.set("code", text(asString(fn["code"])))
			}
			s.Content = append(s.Content, item.node)
		}
		m.set(kind, s)
	}
	return m.node
}

func imagesNode(images []schema.Image) *yaml.Node {
	s := seq()
	for _, img := range images {
		m := newMapping()
		m.set("name", str(img.Name))
		if img.Path != "" {
			m.set("path", str(img.Path))
		}
		if img.URL != "" {
			m.set("url", str(img.URL))
		}
		if img.Base64 != "" {
			m.set("base64", str(img.Base64))
		}
		if img.MediaType != "" && img.MediaType != DefaultMediaType {
			m.set("media_type", str(img.MediaType))
		}
		s.Content = append(s.Content, m.node)
	}
	return s
}

func modelsNode(models []schema.Model) *yaml.Node {
	s := seq()
	for _, md := range models {
		m := newMapping()
		name := md.Name
		if name == "" {
			name = md.ID
		}
		m.set("name", str(name))
		m.set("api_model", str(md.APIModel))
		m.set("api_key", str(md.APIKey))
		if md.BaseURL != "" {
			m.set("base_url", str(md.BaseURL))
		}
		if md.Organization != "" {
			m.set("organization", str(md.Organization))
		}
		if len(md.Headers) > 0 {
			m.set("headers", inline(md.Headers))
		}
		for _, flag := range []struct {
			key string
			val *bool
		}{
			{"enable_reasoning", md.EnableReasoning},
			{"include_reasoning", md.IncludeReasoning},
			{"exclude_reasoning", md.ExcludeReasoning},
		} {
			if flag.val != nil {
				m.set(flag.key, boolNode(*flag.val))
			}
		}
		if md.ReasoningEffort != "" {
			m.set("reasoning_effort", bare(md.ReasoningEffort))
		}
		if md.ReasoningMaxTokens != nil {
			m.set("reasoning_max_tokens", intNode(*md.ReasoningMaxTokens))
		}
		if d := requestDefaultsNode(md.RequestDefaults); d != nil {
			m.set("request_defaults", d)
		}
		s.Content = append(s.Content, m.node)
	}
	return s
}

func requestDefaultsNode(d map[string]any) *yaml.Node {
	m := newMapping()
	for _, k := range []string{"temperature", "top_p", "max_tokens", "timeout_sec"} {
		if v, ok := d[k]; ok && v != nil && v != "" {
			m.set(k, number(v))
		}
	}
	if retry, ok := d["retry"].(map[string]any); ok && (present(retry["max_attempts"]) || present(retry["backoff"])) {
		r := newMapping()
		if v, ok := retry["max_attempts"]; ok && v != nil && v != "" {
			r.set("max_attempts", number(v))
		}
		if backoff, ok := retry["backoff"].(map[string]any); ok && len(backoff) > 0 {
			r.set("backoff", inline(backoff))
		}
		m.set("retry", r.node)
	}
	if m.empty() {
		return nil
	}
	return m.node
}

func numberOr(v any, def int) *yaml.Node {
	if !present(v) {
		return intNode(def)
	}
	return number(v)
}

func execOrOne(b *schema.Block) int {
	if b.Exec < 1 {
		return 1
	}
	return b.Exec
}

func canvasY(b *schema.Block) float64 {
	if b.Position == nil || math.IsNaN(b.Position.Y) || math.IsInf(b.Position.Y, 0) {
		return 0
	}
	return b.Position.Y
}

func idNumber(id string) int {
	if n, ok := schema.BlockNumber(id); ok {
		return n
	}
	return math.MaxInt32
}
