package graph

import (
	"maps"
	"slices"
	"strings"

	"github.com/rendis/mabelstudio/pkg/schema"
)

// Producer is one entry of the producer index: the first-seen display form
// of an output name and every block declaring it.
type Producer struct {
	Name string   `json:"name"`
	IDs  []string `json:"ids"`
}

// Index maps a normalized output name to its producers. It is rebuilt from
// scratch on every edge computation and never updated incrementally.
type Index map[string]*Producer

// BuildIndex collects the declared outputs of every block. End blocks and
// emit operators publish nothing into the index.
func BuildIndex(blocks []*schema.Block) Index {
	idx := make(Index)
	for _, b := range blocks {
		for _, name := range Outputs(b) {
			display := strings.TrimSpace(name)
			if display == "" {
				continue
			}
			key := Normalize(display)
			p, ok := idx[key]
			if !ok {
				p = &Producer{Name: display}
				idx[key] = p
			}
			if !slices.Contains(p.IDs, b.ID) {
				p.IDs = append(p.IDs, b.ID)
			}
		}
	}
	return idx
}

// Lookup finds the producers of a reference name.
func (idx Index) Lookup(ref string) (*Producer, bool) {
	p, ok := idx[Normalize(ref)]
	return p, ok
}

// Outputs returns the output names a block declares, as written.
func Outputs(b *schema.Block) []string {
	if b == nil || b.Spec == nil {
		return nil
	}
	c := &outputCollector{}
	b.Spec.Accept(c)
	return c.names
}

type outputCollector struct {
	names []string
}

func (c *outputCollector) VisitAI(b *schema.AIBlock) {
	for _, o := range b.Outputs {
		c.names = append(c.names, o.Name)
	}
}

func (c *outputCollector) VisitLogic(b *schema.LogicBlock) {
	if b.OpName() == schema.OpEmit {
		return
	}
	for _, o := range b.Outputs {
		c.names = append(c.names, o.Name)
	}
}

func (c *outputCollector) VisitPython(b *schema.PythonBlock) {
	c.names = append(c.names, b.Outputs...)
}

func (c *outputCollector) VisitStart(b *schema.StartBlock) {
	c.names = append(c.names, b.Outputs...)
}

func (c *outputCollector) VisitEnd(*schema.EndBlock)         {}
func (c *outputCollector) VisitUnknown(*schema.UnknownBlock) {}

func sortedKeys[V any](m map[string]V) []string {
	return slices.Sorted(maps.Keys(m))
}
