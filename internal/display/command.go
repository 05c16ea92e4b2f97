package display

import (
	"fmt"
	"time"

	"github.com/Iron-Ham/brainnet/internal/board"
)

// Op identifies a display command.
type Op int

const (
	OpShowBoard Op = iota + 1
	OpHideBoard
	OpShowFloor
	OpHideFloor
	OpSetBoard
	OpShowCrosshair
	OpHideAll
	OpShowCursorTask
	OpSetText
	OpMoveCursor
	OpResetCursor
	OpCollideLeft
	OpCollideRight
	OpFlash
	OpSetLinesCleared
)

var opNames = map[Op]string{
	OpShowBoard:       "show_board",
	OpHideBoard:       "hide_board",
	OpShowFloor:       "show_floor",
	OpHideFloor:       "hide_floor",
	OpSetBoard:        "set_board",
	OpShowCrosshair:   "show_crosshair",
	OpHideAll:         "hide_all",
	OpShowCursorTask:  "show_cursor_task",
	OpSetText:         "set_text",
	OpMoveCursor:      "move_cursor",
	OpResetCursor:     "reset_cursor",
	OpCollideLeft:     "collide_left",
	OpCollideRight:    "collide_right",
	OpFlash:           "flash",
	OpSetLinesCleared: "set_lines_cleared",
}

func (o Op) String() string {
	if name, ok := opNames[o]; ok {
		return name
	}
	return fmt.Sprintf("op(%d)", int(o))
}

// Command is one unit of graphics intent. It carries everything needed to
// replay it against a State; the producer gives up ownership at enqueue.
type Command struct {
	Op Op

	Board *board.Grid
	Piece board.Piece

	Text  string
	X, Y  int
	DX    int
	N     int
	Color string
	For   time.Duration

	// Prompt and Flashing apply to OpShowCursorTask.
	Prompt   string
	Flashing bool
}

func (c Command) String() string {
	switch c.Op {
	case OpSetText:
		return fmt.Sprintf("%s(%q@%d,%d)", c.Op, c.Text, c.X, c.Y)
	case OpMoveCursor:
		return fmt.Sprintf("%s(%+d)", c.Op, c.DX)
	case OpSetLinesCleared:
		return fmt.Sprintf("%s(%d)", c.Op, c.N)
	case OpFlash:
		return fmt.Sprintf("%s(%s,%s)", c.Op, c.Color, c.For)
	case OpShowCursorTask:
		return fmt.Sprintf("%s(%q)", c.Op, c.Prompt)
	default:
		return c.Op.String()
	}
}
