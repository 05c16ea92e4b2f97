package display

import (
	"time"

	"github.com/Iron-Ham/brainnet/internal/board"
)

// Side is the target a cursor collided with.
type Side int

const (
	SideNone Side = iota
	SideLeft
	SideRight
)

func (s Side) String() string {
	switch s {
	case SideLeft:
		return "left"
	case SideRight:
		return "right"
	default:
		return "none"
	}
}

// State is the scene the render loop draws. It is owned by the consumer
// goroutine and only changed by Apply.
type State struct {
	// Width is the cursor track width in pixels; CursorHome is where the
	// cursor sits after a reset.
	Width      int
	CursorHome int

	BoardVisible bool
	FloorVisible bool
	Board        *board.Grid
	Piece        board.Piece

	CrosshairVisible bool
	FlashColor       string
	FlashUntil       time.Time

	CursorVisible bool
	Cursor        int
	Prompt        string
	Flashing      bool
	Collided      Side

	Text         string
	TextX, TextY int

	LinesCleared int

	// Applied counts every command applied so far.
	Applied uint64
}

// NewState returns an empty scene with the cursor at home.
func NewState(width, home int) *State {
	return &State{Width: width, CursorHome: home, Cursor: home, FloorVisible: true}
}

// Apply replays cmd onto the state. now is the frame time, used to expire
// crosshair flashes.
func (s *State) Apply(cmd Command, now time.Time) {
	s.Applied++
	switch cmd.Op {
	case OpShowBoard:
		s.BoardVisible = true
	case OpHideBoard:
		s.BoardVisible = false
	case OpShowFloor:
		s.FloorVisible = true
	case OpHideFloor:
		s.FloorVisible = false
	case OpSetBoard:
		s.Board = cmd.Board
		s.Piece = cmd.Piece
	case OpShowCrosshair:
		s.CrosshairVisible = true
	case OpHideAll:
		s.BoardVisible = false
		s.CrosshairVisible = false
		s.CursorVisible = false
		s.Text = ""
		s.Prompt = ""
		s.Collided = SideNone
	case OpShowCursorTask:
		s.CursorVisible = true
		s.CrosshairVisible = false
		s.Prompt = cmd.Prompt
		s.Flashing = cmd.Flashing
	case OpSetText:
		s.Text = cmd.Text
		s.TextX, s.TextY = cmd.X, cmd.Y
	case OpMoveCursor:
		s.Cursor += cmd.DX
	case OpResetCursor:
		s.Cursor = s.CursorHome
		s.Collided = SideNone
	case OpCollideLeft:
		s.Collided = SideLeft
	case OpCollideRight:
		s.Collided = SideRight
	case OpFlash:
		s.FlashColor = cmd.Color
		s.FlashUntil = now.Add(cmd.For)
	case OpSetLinesCleared:
		s.LinesCleared = cmd.N
	}
}

// FlashActive reports whether the crosshair flash is still showing at now.
func (s *State) FlashActive(now time.Time) bool {
	return s.FlashColor != "" && now.Before(s.FlashUntil)
}

// Snapshot returns a copy safe to hand to another goroutine.
func (s *State) Snapshot() State {
	cp := *s
	if s.Board != nil {
		cp.Board = s.Board.Clone()
	}
	cp.Piece = s.Piece.Clone()
	return cp
}
