// Package display decouples trial logic from drawing.
//
// Control code calls methods on a [Display], each of which only enqueues a
// [Command] and returns. A single [Loop] owns the scene [State]; once per
// frame it drains the [Queue] in FIFO order, applies every command and hands
// the resulting scene to a [Renderer]. Renderers are provided for a
// bubbletea terminal UI and for headless runs.
//
//	q := display.NewQueue()
//	d := display.New(q)
//	go display.NewLoop(q, state, renderer, 20).Run(ctx)
//	d.ShowCrosshair()
package display

import (
	"time"

	"github.com/Iron-Ham/brainnet/internal/board"
)

// FlashRed is the crosshair colour used before an actuation.
const FlashRed = "#FF0000"

// Display is the producer-side facade. It is safe for concurrent use; no
// method blocks or draws.
type Display struct {
	q *Queue
}

// New returns a facade enqueueing onto q.
func New(q *Queue) *Display { return &Display{q: q} }

// Queue returns the underlying queue.
func (d *Display) Queue() *Queue { return d.q }

func (d *Display) push(cmd Command) { d.q.Enqueue(cmd) }

func (d *Display) ShowBoard()     { d.push(Command{Op: OpShowBoard}) }
func (d *Display) HideBoard()     { d.push(Command{Op: OpHideBoard}) }
func (d *Display) ShowFloor()     { d.push(Command{Op: OpShowFloor}) }
func (d *Display) HideFloor()     { d.push(Command{Op: OpHideFloor}) }
func (d *Display) ShowCrosshair() { d.push(Command{Op: OpShowCrosshair}) }
func (d *Display) HideAll()       { d.push(Command{Op: OpHideAll}) }
func (d *Display) ResetCursor()   { d.push(Command{Op: OpResetCursor}) }
func (d *Display) CollideLeft()   { d.push(Command{Op: OpCollideLeft}) }
func (d *Display) CollideRight()  { d.push(Command{Op: OpCollideRight}) }

// SetBoard replaces the drawn board and piece. Both are copied so the caller
// may keep mutating its own.
func (d *Display) SetBoard(b *board.Grid, p board.Piece) {
	d.push(Command{Op: OpSetBoard, Board: b.Clone(), Piece: p.Clone()})
}

// ShowCursorTask shows the cursor track with a prompt. When flashing is set
// the targets flicker at the stimulus frequencies.
func (d *Display) ShowCursorTask(prompt string, flashing bool) {
	d.push(Command{Op: OpShowCursorTask, Prompt: prompt, Flashing: flashing})
}

// SetText shows a multi-line message at (x, y).
func (d *Display) SetText(text string, x, y int) {
	d.push(Command{Op: OpSetText, Text: text, X: x, Y: y})
}

// MoveCursor moves the cursor by dx pixels.
func (d *Display) MoveCursor(dx int) { d.push(Command{Op: OpMoveCursor, DX: dx}) }

// Flash colours the crosshair for dur.
func (d *Display) Flash(color string, dur time.Duration) {
	d.push(Command{Op: OpFlash, Color: color, For: dur})
}

// SetLinesCleared updates the lines-cleared counter.
func (d *Display) SetLinesCleared(n int) { d.push(Command{Op: OpSetLinesCleared, N: n}) }
