package board

import (
	"fmt"
	"math/rand/v2"
	"slices"
)

// Piece is a small grid positioned by the board coordinates of its top-left
// corner.
type Piece struct {
	Shape *Grid
	X, Y  int
}

// Clone returns a deep copy of the piece.
func (p Piece) Clone() Piece {
	if p.Shape == nil {
		return Piece{Shape: NewGrid(0, 0), X: p.X, Y: p.Y}
	}
	return Piece{Shape: p.Shape.Clone(), X: p.X, Y: p.Y}
}

// Equal reports whether both pieces have the same shape and position.
func (p Piece) Equal(o Piece) bool {
	return p.X == o.X && p.Y == o.Y && p.Shape.Equal(o.Shape)
}

// Game is the authoritative block-game state.
type Game struct {
	board        *Grid
	piece        Piece
	slots        []int
	brick        int
	linesCleared int
	rng          *rand.Rand
}

// NewGame returns a game with an empty rows×cols board. rows includes the
// floor row; cols must be a multiple of 3 for piece generation.
func NewGame(rows, cols int, rng *rand.Rand) *Game {
	return &Game{
		board: NewGrid(rows, cols),
		piece: Piece{Shape: NewGrid(0, 0)},
		rng:   rng,
	}
}

// Board returns a copy of the board.
func (g *Game) Board() *Grid { return g.board.Clone() }

// Piece returns a copy of the current piece.
func (g *Game) Piece() Piece { return g.piece.Clone() }

// Slots returns the open floor columns.
func (g *Game) Slots() []int { return slices.Clone(g.slots) }

// LinesCleared returns the number of rows cleared since the game was created.
func (g *Game) LinesCleared() int { return g.linesCleared }

// Restore replaces board and piece with a decoded snapshot. The board shape
// must match.
func (g *Game) Restore(b *Grid, p Piece) error {
	if b.Rows() != g.board.Rows() || b.Cols() != g.board.Cols() {
		return fmt.Errorf("board shape %dx%d does not match %dx%d", b.Rows(), b.Cols(), g.board.Rows(), g.board.Cols())
	}
	g.board = b.Clone()
	g.piece = p.Clone()
	return nil
}

// NewBoard clears the board, generates a floor and a piece that fills it.
// The piece is rotated by 180 degrees unless upright.
func (g *Game) NewBoard(upright bool) {
	g.NewBoardWithSlots(g.randomSlots(), upright)
}

// NewBoardWithSlots is NewBoard with the open floor columns given.
func (g *Game) NewBoardWithSlots(slots []int, upright bool) {
	rows, cols := g.board.Rows(), g.board.Cols()
	g.board = NewGrid(rows, cols)
	g.slots = slices.Clone(slots)
	for c := 0; c < cols; c++ {
		if !slices.Contains(g.slots, c) {
			g.board.Set(rows-1, c, Floor)
		}
	}
	g.newPiece(upright)
}

// randomSlots picks 1..3 contiguous open columns. Two or three slots never
// straddle a 3-column boundary so that one piece can fill them.
func (g *Game) randomSlots() []int {
	cols := g.board.Cols()
	switch 1 + g.rng.IntN(3) {
	case 1:
		return []int{g.rng.IntN(cols)}
	case 2:
		miss := g.rng.IntN(cols - 1)
		for miss%3 == 2 {
			miss = g.rng.IntN(cols - 1)
		}
		return []int{miss, miss + 1}
	default:
		miss := g.rng.IntN(cols - 2)
		for miss%3 != 0 {
			miss = g.rng.IntN(cols - 2)
		}
		return []int{miss, miss + 1, miss + 2}
	}
}

func (g *Game) newPiece(upright bool) {
	g.brick = 2 + g.rng.IntN(len(Palette)-2)
	x := g.slots[0] - g.slots[0]%3

	column := g.backfill(g.board.Sub(0, x, g.board.Rows(), 3))
	bottom := bottomOf(column)

	shape := g.addTopping(g.complement(bottom))
	for shape.IsSymmetric180() {
		shape = g.addTopping(g.complement(bottom))
	}
	if !upright {
		shape = shape.Rotate180()
	}
	g.piece = Piece{Shape: shape, X: x, Y: 0}
}

// backfill fills every cell below the first filled cell of each column.
func (g *Game) backfill(sub *Grid) *Grid {
	for c := 0; c < sub.Cols(); c++ {
		first := -1
		for r := 0; r < sub.Rows(); r++ {
			if sub.At(r, c) != Empty {
				first = r
				break
			}
		}
		if first < 0 {
			continue
		}
		for r := first + 1; r < sub.Rows(); r++ {
			sub.Set(r, c, g.brick)
		}
	}
	return sub
}

// bottomOf returns the three rows ending at the lowest partially filled row,
// or an empty 3×3 grid.
func bottomOf(sub *Grid) *Grid {
	bottom := NewGrid(3, sub.Cols())
	for r := 0; r < sub.Rows(); r++ {
		if sub.rowPartial(r) && r-2 > 0 {
			bottom = sub.Sub(r-2, 0, 3, sub.Cols())
		}
	}
	return bottom
}

func (g *Game) complement(sub *Grid) *Grid {
	out := NewGrid(sub.Rows(), sub.Cols())
	for r := 0; r < sub.Rows(); r++ {
		for c := 0; c < sub.Cols(); c++ {
			if sub.At(r, c) == Empty {
				out.Set(r, c, g.brick)
			}
		}
	}
	return out
}

// addTopping prepends a row that randomly keeps some of the filled cells of
// the top row. Nothing is added when no cell is kept.
func (g *Game) addTopping(shape *Grid) *Grid {
	top := make([]int, shape.Cols())
	kept := false
	for c := range top {
		if shape.At(0, c) != Empty && g.rng.IntN(2) == 1 {
			top[c] = g.brick
			kept = true
		}
	}
	if !kept {
		return shape
	}
	out := NewGrid(shape.Rows()+1, shape.Cols())
	copy(out.cells, top)
	copy(out.cells[shape.Cols():], shape.cells)
	return out
}

// Collides reports whether p overlaps a filled board cell or leaves the board.
func (g *Game) Collides(p Piece) bool {
	return collides(g.board, p)
}

func collides(b *Grid, p Piece) bool {
	for r := 0; r < p.Shape.Rows(); r++ {
		for c := 0; c < p.Shape.Cols(); c++ {
			if p.Shape.At(r, c) == Empty {
				continue
			}
			br, bc := p.Y+r, p.X+c
			if !b.InBounds(br, bc) || b.At(br, bc) != Empty {
				return true
			}
		}
	}
	return false
}

// Rotate turns the piece by 180 degrees. A rotation that would collide is
// a no-op. It reports whether the piece turned.
func (g *Game) Rotate() bool {
	turned := Piece{Shape: g.piece.Shape.Rotate180(), X: g.piece.X, Y: g.piece.Y}
	if g.Collides(turned) {
		return false
	}
	g.piece = turned
	return true
}

// DropHalfway lowers the piece to 40% of the board height unless that
// collides. It reports whether the piece moved.
func (g *Game) DropHalfway() bool {
	lowered := g.piece.Clone()
	lowered.Y = g.board.Rows() * 4 / 10
	if g.Collides(lowered) {
		return false
	}
	g.piece = lowered
	return true
}

// Drop lowers the piece until it rests on the floor or on filled cells and
// merges it into the board. The piece is empty afterwards.
func (g *Game) Drop() {
	p := g.piece.Clone()
	if !slices.ContainsFunc(p.Shape.cells, func(v int) bool { return v != Empty }) {
		g.piece = Piece{Shape: NewGrid(0, 0)}
		return
	}
	for !g.Collides(p) {
		p.Y++
	}
	p.Y--
	g.join(p)
	g.piece = Piece{Shape: NewGrid(0, 0)}
}

func (g *Game) join(p Piece) {
	for r := 0; r < p.Shape.Rows(); r++ {
		for c := 0; c < p.Shape.Cols(); c++ {
			if v := p.Shape.At(r, c); v != Empty && g.board.InBounds(p.Y+r, p.X+c) {
				g.board.Set(p.Y+r, p.X+c, v)
			}
		}
	}
}

// ClearRows removes every full row, inserting an empty row at the top for
// each one. It returns the number of rows removed.
func (g *Game) ClearRows() int {
	rows, cols := g.board.Rows(), g.board.Cols()
	kept := make([]int, 0, rows*cols)
	cleared := 0
	for r := 0; r < rows; r++ {
		if g.board.rowFull(r) {
			cleared++
			continue
		}
		kept = append(kept, g.board.cells[r*cols:(r+1)*cols]...)
	}
	if cleared == 0 {
		return 0
	}
	next := NewGrid(rows, cols)
	copy(next.cells[cleared*cols:], kept)
	g.board = next
	g.linesCleared += cleared
	return cleared
}
