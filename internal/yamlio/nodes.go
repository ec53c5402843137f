package yamlio

import (
	"fmt"
	"maps"
	"regexp"
	"slices"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"
)

// plainPattern is the set of strings the runtime accepts unquoted.
var plainPattern = regexp.MustCompile(`^[A-Za-z0-9_\-./:]+$`)

// mapping builds a block-style mapping node with keys in insertion order.
type mapping struct {
	node *yaml.Node
}

func newMapping() *mapping {
	return &mapping{node: &yaml.Node{Kind: yaml.MappingNode}}
}

func (m *mapping) set(key string, value *yaml.Node) *yaml.Node {
	k := &yaml.Node{Kind: yaml.ScalarNode, Tag: "!!str", Value: key}
	m.node.Content = append(m.node.Content, k, value)
	return k
}

func (m *mapping) empty() bool {
	return len(m.node.Content) == 0
}

// str renders a string scalar: plain when it only uses safe characters,
// double-quoted otherwise. The !!str tag keeps values such as "123" or
// "true" from being re-read as numbers or booleans.
func str(v any) *yaml.Node {
	s := asString(v)
	n := &yaml.Node{Kind: yaml.ScalarNode, Tag: "!!str", Value: s}
	if !plainPattern.MatchString(s) {
		n.Style = yaml.DoubleQuotedStyle
	}
	return n
}

// text renders prose: literal block style when it spans lines.
func text(s string) *yaml.Node {
	if strings.Contains(s, "\n") {
		return &yaml.Node{Kind: yaml.ScalarNode, Tag: "!!str", Value: s, Style: yaml.LiteralStyle}
	}
	return str(s)
}

// bare renders a scalar written without quoting, such as an enum value.
func bare(s string) *yaml.Node {
	return &yaml.Node{Kind: yaml.ScalarNode, Tag: "!!str", Value: s}
}

func intNode(n int) *yaml.Node {
	return &yaml.Node{Kind: yaml.ScalarNode, Tag: "!!int", Value: strconv.Itoa(n)}
}

func boolNode(b bool) *yaml.Node {
	return &yaml.Node{Kind: yaml.ScalarNode, Tag: "!!bool", Value: strconv.FormatBool(b)}
}

// inline renders a structured value in flow style on one line.
func inline(v any) *yaml.Node {
	var n yaml.Node
	if err := n.Encode(v); err != nil {
		return &yaml.Node{Kind: yaml.MappingNode, Style: yaml.FlowStyle}
	}
	switch n.Kind {
	case yaml.MappingNode, yaml.SequenceNode:
		n.Style = yaml.FlowStyle
	case yaml.ScalarNode:
		if _, ok := v.(string); ok {
			n.Style = yaml.DoubleQuotedStyle
		}
	}
	return &n
}

// number renders a numeric-ish value raw, falling back to a string.
func number(v any) *yaml.Node {
	switch x := v.(type) {
	case int:
		return intNode(x)
	case float64:
		if x == float64(int64(x)) {
			return &yaml.Node{Kind: yaml.ScalarNode, Tag: "!!int", Value: strconv.FormatInt(int64(x), 10)}
		}
		return &yaml.Node{Kind: yaml.ScalarNode, Tag: "!!float", Value: strconv.FormatFloat(x, 'f', -1, 64)}
	case bool:
		return boolNode(x)
	default:
		return str(v)
	}
}

// flowStrings renders a list of strings as [a, b].
func flowStrings(items []string) *yaml.Node {
	n := &yaml.Node{Kind: yaml.SequenceNode, Style: yaml.FlowStyle}
	for _, s := range items {
		n.Content = append(n.Content, str(s))
	}
	return n
}

func seq() *yaml.Node {
	return &yaml.Node{Kind: yaml.SequenceNode}
}

func asString(v any) string {
	switch x := v.(type) {
	case nil:
		return ""
	case string:
		return x
	case float64:
		return strconv.FormatFloat(x, 'f', -1, 64)
	default:
		return fmt.Sprint(x)
	}
}

// present mirrors the loose truthiness used when deciding whether an
// optional field is written.
func present(v any) bool {
	switch x := v.(type) {
	case nil:
		return false
	case string:
		return x != ""
	case bool:
		return x
	case float64:
		return x != 0
	case int:
		return x != 0
	default:
		return true
	}
}

func sortedKeys[V any](m map[string]V) []string {
	return slices.Sorted(maps.Keys(m))
}
