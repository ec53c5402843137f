// Package editor holds the editing session of one workflow document. A
// Session owns the blocks, mints their IDs and recomputes the derived graph
// after every structural change.
package editor

import (
	"encoding/json"
	"strconv"
	"sync"

	jsonpatch "github.com/evanphx/json-patch/v5"
	"github.com/rendis/mabelstudio/internal/graph"
	"github.com/rendis/mabelstudio/internal/layout"
	"github.com/rendis/mabelstudio/internal/yamlio"
	"github.com/rendis/mabelstudio/pkg/schema"
)

// Options configures a Session.
type Options struct {
	// WorldHeight is the canvas height used when centering columns.
	WorldHeight float64
}

// Session is the editing state of one document. It is safe for concurrent
// use; every mutation recomputes levels before returning.
type Session struct {
	mu     sync.Mutex
	doc    *schema.Document
	nextID int
	opts   Options
	report graph.LevelReport
}

// New starts a session over doc. Blocks with a missing or duplicate ID get a
// fresh one, levels are recomputed and unplaced blocks are laid out.
func New(doc *schema.Document, opts Options) *Session {
	if doc == nil {
		doc = schema.NewDocument()
	}
	s := &Session{doc: doc, opts: opts, nextID: 1}
	s.nextID = max(s.nextID, nextIDFrom(doc.Blocks))

	seen := make(map[string]bool, len(doc.Blocks))
	kept := doc.Blocks[:0]
	for _, b := range doc.Blocks {
		if b == nil {
			continue
		}
		if b.ID == "" || seen[b.ID] {
			b.ID = s.mint()
		}
		seen[b.ID] = true
		kept = append(kept, b)
	}
	doc.Blocks = kept

	s.recompute()
	s.layout(true)
	return s
}

// Document returns a deep copy of the current document.
func (s *Session) Document() *schema.Document {
	s.mu.Lock()
	defer s.mu.Unlock()
	return cloneDocument(s.doc)
}

// Block returns a copy of one block.
func (s *Session) Block(id string) (*schema.Block, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	b := s.doc.Block(id)
	if b == nil {
		return nil, notFound(id)
	}
	return b.Clone(), nil
}

// Report returns the outcome of the latest recompute.
func (s *Session) Report() graph.LevelReport {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.report
}

// Analysis derives the full graph snapshot for the current blocks.
func (s *Session) Analysis() *graph.Analysis {
	s.mu.Lock()
	defer s.mu.Unlock()
	return graph.Analyze(s.doc.Blocks)
}

// Add creates a block of type t with starter content and a fresh ID. A nil
// pos lets the layout engine place it.
func (s *Session) Add(t schema.BlockType, pos *schema.Position) (*schema.Block, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	id := "b" + strconv.Itoa(s.nextID)
	title, spec, err := newSpec(t, id, s.doc.Models)
	if err != nil {
		return nil, err
	}
	s.nextID++

	b := &schema.Block{ID: id, Title: title, Spec: spec, Exec: s.guessExec()}
	if t == schema.BlockTypeStart {
		b.Exec = 0
	}
	if pos != nil {
		p := layout.Snap(*pos)
		b.Position = &p
	}
	s.doc.Blocks = append(s.doc.Blocks, b)

	s.recompute()
	if pos == nil {
		s.layout(true)
	}
	return b.Clone(), nil
}

// Update applies an RFC 7386 merge patch to a block. Nulls remove keys at any
// depth; "id" and "type" cannot be changed.
func (s *Session) Update(id string, patch json.RawMessage) (*schema.Block, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	idx := s.index(id)
	if idx < 0 {
		return nil, notFound(id)
	}
	var changes map[string]any
	if err := json.Unmarshal(patch, &changes); err != nil || changes == nil {
		return nil, schema.NewError(schema.ErrCodeValidation, "patch must be a JSON object").WithBlock(id).WithCause(err)
	}
	if v, ok := changes["id"]; ok && v != id {
		return nil, schema.NewError(schema.ErrCodeConflict, "block id is immutable").WithBlock(id)
	}
	if v, ok := changes["type"]; ok && v != string(s.doc.Blocks[idx].Type()) {
		return nil, schema.NewError(schema.ErrCodeConflict, "block type is immutable").WithBlock(id)
	}

	current, err := json.Marshal(s.doc.Blocks[idx])
	if err != nil {
		return nil, err
	}
	merged, err := jsonpatch.MergePatch(current, patch)
	if err != nil {
		return nil, schema.NewError(schema.ErrCodeValidation, "invalid merge patch").WithBlock(id).WithCause(err)
	}
	var updated schema.Block
	if err := json.Unmarshal(merged, &updated); err != nil {
		return nil, schema.NewError(schema.ErrCodeValidation, err.Error()).WithBlock(id).WithCause(err)
	}
	s.doc.Blocks[idx] = &updated

	s.recompute()
	return updated.Clone(), nil
}

// Remove deletes a block and recomputes the remaining graph.
func (s *Session) Remove(id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	idx := s.index(id)
	if idx < 0 {
		return notFound(id)
	}
	s.doc.Blocks = append(s.doc.Blocks[:idx], s.doc.Blocks[idx+1:]...)
	s.recompute()
	return nil
}

// Move places a block at a snapped canvas position.
func (s *Session) Move(id string, pos schema.Position) (*schema.Block, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	b := s.doc.Block(id)
	if b == nil {
		return nil, notFound(id)
	}
	p := layout.Snap(pos)
	b.Position = &p
	return b.Clone(), nil
}

// Recompute reassigns every block's execution level from the inferred
// edges. It is idempotent.
func (s *Session) Recompute() graph.LevelReport {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.recompute()
}

// Layout arranges blocks by level and returns the IDs that moved.
func (s *Session) Layout(onlyUnset bool) []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.layout(onlyUnset)
}

// Import replaces the document with an imported one. Imported blocks take
// the ID and position of the previous block at the same index within the
// same exec column; the rest get fresh IDs. Levels are recomputed and only
// blocks without a position are laid out.
func (s *Session) Import(imported *schema.Document) graph.LevelReport {
	s.mu.Lock()
	defer s.mu.Unlock()

	prevByExec := map[int][]*schema.Block{}
	for _, b := range s.doc.Blocks {
		ex := execOrOne(b)
		prevByExec[ex] = append(prevByExec[ex], b)
	}
	used := map[int]int{}

	blocks := make([]*schema.Block, 0, len(imported.Blocks))
	for _, src := range imported.Blocks {
		if src == nil {
			continue
		}
		b := src.Clone()
		ex := execOrOne(b)
		i := used[ex]
		used[ex] = i + 1

		b.ID = ""
		if list := prevByExec[ex]; i < len(list) {
			prev := list[i]
			b.ID = prev.ID
			if prev.Position != nil {
				p := *prev.Position
				b.Position = &p
			}
		}
		if b.ID == "" {
			b.ID = s.mint()
		}
		blocks = append(blocks, b)
	}

	doc := cloneDocument(imported)
	doc.Blocks = blocks
	s.doc = doc
	s.nextID = max(s.nextID, nextIDFrom(blocks))

	report := s.recompute()
	s.layout(true)
	return report
}

// ImportYAML parses text and merges it into the session.
func (s *Session) ImportYAML(text []byte) (graph.LevelReport, error) {
	doc, err := yamlio.Import(text)
	if err != nil {
		return graph.LevelReport{}, err
	}
	return s.Import(doc), nil
}

// ExportYAML renders the current document.
func (s *Session) ExportYAML() ([]byte, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return yamlio.Export(s.doc)
}

func (s *Session) recompute() graph.LevelReport {
	s.report = graph.AssignLevels(s.doc.Blocks)
	return s.report
}

func (s *Session) layout(onlyUnset bool) []string {
	return layout.ByExec(s.doc.Blocks, layout.Options{
		OnlyUnset:   onlyUnset,
		WorldHeight: s.opts.WorldHeight,
	})
}

func (s *Session) mint() string {
	id := "b" + strconv.Itoa(s.nextID)
	s.nextID++
	return id
}

func (s *Session) index(id string) int {
	for i, b := range s.doc.Blocks {
		if b.ID == id {
			return i
		}
	}
	return -1
}

// guessExec puts a new block one level past the current maximum until the
// next recompute places it.
func (s *Session) guessExec() int {
	maxExec := 0
	for _, b := range s.doc.Blocks {
		maxExec = max(maxExec, b.Exec)
	}
	return maxExec + 1
}

func nextIDFrom(blocks []*schema.Block) int {
	maxN := 0
	for _, b := range blocks {
		if b == nil {
			continue
		}
		if n, ok := schema.BlockNumber(b.ID); ok {
			maxN = max(maxN, n)
		}
	}
	return maxN + 1
}

func execOrOne(b *schema.Block) int {
	if b.Exec < 1 {
		return 1
	}
	return b.Exec
}

func notFound(id string) error {
	return schema.NewErrorf(schema.ErrCodeNotFound, "block %s not found", id).WithBlock(id)
}

func cloneDocument(doc *schema.Document) *schema.Document {
	data, err := json.Marshal(doc)
	if err != nil {
		return doc
	}
	out := schema.NewDocument()
	if err := json.Unmarshal(data, out); err != nil {
		return doc
	}
	return out
}
