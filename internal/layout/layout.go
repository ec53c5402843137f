// Package layout places blocks on the canvas, one column per execution level.
package layout

import (
	"math"
	"slices"

	"github.com/rendis/mabelstudio/pkg/schema"
)

// Canvas geometry, in world units.
const (
	Grid         = 24
	ColumnWidth  = 360
	RowHeight    = 170
	MarginX      = 80
	MarginY      = 30
	OriginX      = 40
	MinY         = 32
	DefaultWorld = 900
)

// Options controls a layout pass.
type Options struct {
	// OnlyUnset keeps every existing position and only places blocks that
	// have none.
	OnlyUnset bool
	// WorldHeight is the visible canvas height used to center columns.
	WorldHeight float64
}

// ByExec arranges blocks in columns by Exec (values below 1 count as 1).
// Columns are ordered by ascending level and spaced ColumnWidth+MarginX
// apart; blocks keep their slice order within a column. It returns the IDs
// of the blocks whose position changed.
func ByExec(blocks []*schema.Block, opts Options) []string {
	worldH := opts.WorldHeight
	if worldH <= 0 {
		worldH = DefaultWorld
	}

	columns := map[int][]*schema.Block{}
	var levels []int
	for _, b := range blocks {
		if b == nil {
			continue
		}
		l := levelOf(b)
		if _, ok := columns[l]; !ok {
			levels = append(levels, l)
		}
		columns[l] = append(columns[l], b)
	}
	slices.Sort(levels)

	var moved []string
	place := func(b *schema.Block, x, y float64) {
		p := Snap(schema.Position{X: x, Y: y})
		if b.Position == nil || *b.Position != p {
			moved = append(moved, b.ID)
		}
		b.Position = &p
	}

	for i, l := range levels {
		x := float64(OriginX + i*(ColumnWidth+MarginX))
		list := columns[l]

		if !opts.OnlyUnset {
			y := centeredStart(len(list), worldH)
			for _, b := range list {
				place(b, x, y)
				y += RowHeight + MarginY
			}
			continue
		}

		var missing []*schema.Block
		lowest, hasExisting := 0.0, false
		for _, b := range list {
			if !hasPosition(b) {
				missing = append(missing, b)
				continue
			}
			hasExisting = true
			lowest = math.Max(lowest, b.Position.Y)
		}
		if len(missing) == 0 {
			continue
		}

		y := centeredStart(len(missing), worldH)
		if hasExisting {
			y = lowest + RowHeight + MarginY
		}
		for _, b := range missing {
			place(b, x, y)
			y += RowHeight + MarginY
		}
	}
	return moved
}

// Snap rounds a position to the canvas grid.
func Snap(p schema.Position) schema.Position {
	return schema.Position{
		X: roundHalfUp(p.X/Grid) * Grid,
		Y: roundHalfUp(p.Y/Grid) * Grid,
	}
}

func centeredStart(n int, worldH float64) float64 {
	colHeight := float64(n*RowHeight + (n-1)*MarginY)
	return math.Max(MinY, roundHalfUp((worldH-colHeight)/2))
}

func levelOf(b *schema.Block) int {
	if b.Exec < 1 {
		return 1
	}
	return b.Exec
}

func hasPosition(b *schema.Block) bool {
	if b.Position == nil {
		return false
	}
	return !math.IsNaN(b.Position.X) && !math.IsInf(b.Position.X, 0) &&
		!math.IsNaN(b.Position.Y) && !math.IsInf(b.Position.Y, 0)
}

// roundHalfUp rounds .5 toward positive infinity, the canvas convention.
func roundHalfUp(v float64) float64 {
	return math.Floor(v + 0.5)
}
