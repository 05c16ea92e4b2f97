// Package board implements the shared block-game model: a fixed-shape grid
// whose last row is a generated floor with 1..3 open slots, and a falling
// piece generated to fill those slots.
//
// The coordinator owns the authoritative [Game]; peers hold copies decoded
// from the wire. Board dimensions never change after creation.
package board

import (
	"fmt"
	"slices"
)

// Cell values. Positive values index [Palette].
const (
	Empty = 0
	Floor = 1
)

// Palette is the colour table indexed by cell value.
var Palette = []string{
	"#000000", // empty
	"#339933", // floor
	"#CC33FF",
	"#FF9900",
	"#FF0000",
	"#FFFF00",
	"#0000FF",
	"#FF00FF",
}

// Grid is a fixed rows×cols matrix of cell values stored row-major.
type Grid struct {
	rows, cols int
	cells      []int
}

// NewGrid returns an empty grid.
func NewGrid(rows, cols int) *Grid {
	if rows < 0 || cols < 0 {
		panic(fmt.Sprintf("board: negative grid shape %dx%d", rows, cols))
	}
	return &Grid{rows: rows, cols: cols, cells: make([]int, rows*cols)}
}

// NewGridFrom builds a grid from row-major values.
func NewGridFrom(rows, cols int, values []int) (*Grid, error) {
	if rows < 0 || cols < 0 {
		return nil, fmt.Errorf("negative grid shape %dx%d", rows, cols)
	}
	if (rows == 0 || cols == 0) && rows != cols {
		return nil, fmt.Errorf("empty grid must be 0x0, got %dx%d", rows, cols)
	}
	// Dividing first keeps rows*cols from overflowing on hostile shapes.
	if cols != 0 && (rows > len(values)/cols || len(values) != rows*cols) {
		return nil, fmt.Errorf("grid %dx%d does not match %d values", rows, cols, len(values))
	}
	if cols == 0 && len(values) != 0 {
		return nil, fmt.Errorf("grid 0x0 does not match %d values", len(values))
	}
	for _, v := range values {
		if v < 0 {
			return nil, fmt.Errorf("negative cell value %d", v)
		}
	}
	return &Grid{rows: rows, cols: cols, cells: slices.Clone(values)}, nil
}

// GridFromRows builds a grid from a slice of equal-length rows.
func GridFromRows(rows [][]int) *Grid {
	if len(rows) == 0 {
		return NewGrid(0, 0)
	}
	g := NewGrid(len(rows), len(rows[0]))
	for r, row := range rows {
		if len(row) != g.cols {
			panic(fmt.Sprintf("board: ragged row %d", r))
		}
		copy(g.cells[r*g.cols:], row)
	}
	return g
}

func (g *Grid) Rows() int { return g.rows }
func (g *Grid) Cols() int { return g.cols }

// InBounds reports whether (r, c) addresses a cell.
func (g *Grid) InBounds(r, c int) bool {
	return r >= 0 && r < g.rows && c >= 0 && c < g.cols
}

// At returns the value at (r, c). It panics if (r, c) is out of bounds.
func (g *Grid) At(r, c int) int {
	g.mustContain(r, c)
	return g.cells[r*g.cols+c]
}

// Set stores v at (r, c). It panics if (r, c) is out of bounds.
func (g *Grid) Set(r, c, v int) {
	g.mustContain(r, c)
	g.cells[r*g.cols+c] = v
}

func (g *Grid) mustContain(r, c int) {
	if !g.InBounds(r, c) {
		panic(fmt.Sprintf("board: cell (%d,%d) outside %dx%d grid", r, c, g.rows, g.cols))
	}
}

// Row returns a copy of row r.
func (g *Grid) Row(r int) []int {
	g.mustContain(r, 0)
	return slices.Clone(g.cells[r*g.cols : (r+1)*g.cols])
}

// Values returns a row-major copy of all cells.
func (g *Grid) Values() []int { return slices.Clone(g.cells) }

// Clone returns a deep copy.
func (g *Grid) Clone() *Grid {
	return &Grid{rows: g.rows, cols: g.cols, cells: slices.Clone(g.cells)}
}

// Equal reports whether both grids have the same shape and values.
func (g *Grid) Equal(o *Grid) bool {
	if g == nil || o == nil {
		return g == o
	}
	return g.rows == o.rows && g.cols == o.cols && slices.Equal(g.cells, o.cells)
}

// Rotate180 returns the grid rotated by 180 degrees.
func (g *Grid) Rotate180() *Grid {
	out := g.Clone()
	slices.Reverse(out.cells)
	return out
}

// IsSymmetric180 reports whether the grid equals its 180 degree rotation.
func (g *Grid) IsSymmetric180() bool {
	return g.Equal(g.Rotate180())
}

// Sub returns a copy of the rows×cols window whose top-left corner is (r0, c0).
func (g *Grid) Sub(r0, c0, rows, cols int) *Grid {
	out := NewGrid(rows, cols)
	for r := 0; r < rows; r++ {
		for c := 0; c < cols; c++ {
			out.Set(r, c, g.At(r0+r, c0+c))
		}
	}
	return out
}

// rowFull reports whether every cell of row r is non-empty.
func (g *Grid) rowFull(r int) bool {
	return !slices.Contains(g.cells[r*g.cols:(r+1)*g.cols], Empty)
}

// rowPartial reports whether row r has both empty and filled cells.
func (g *Grid) rowPartial(r int) bool {
	row := g.cells[r*g.cols : (r+1)*g.cols]
	return slices.ContainsFunc(row, func(v int) bool { return v != Empty }) && slices.Contains(row, Empty)
}

func (g *Grid) String() string {
	return fmt.Sprintf("%dx%d%v", g.rows, g.cols, g.cells)
}
