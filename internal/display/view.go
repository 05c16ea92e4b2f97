package display

import (
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/progress"
	"github.com/charmbracelet/lipgloss"
)

const (
	blockGlyph = "██"
	emptyGlyph = "· "
	trackWidth = 48
)

// View renders s as terminal text.
func View(s *State, now time.Time) string {
	var sections []string

	if s.LinesCleared > 0 || s.BoardVisible {
		sections = append(sections, counter.Render(fmt.Sprintf("lines cleared: %d", s.LinesCleared)))
	}
	if s.BoardVisible && s.Board != nil {
		sections = append(sections, frame.Render(renderBoard(s)))
	}
	if s.CursorVisible {
		sections = append(sections, renderCursorTask(s))
	}
	if s.CrosshairVisible {
		sections = append(sections, renderCrosshair(s, now))
	}
	if s.Text != "" {
		sections = append(sections, message.Render(s.Text))
	}
	if len(sections) == 0 {
		return ""
	}
	return lipgloss.JoinVertical(lipgloss.Center, sections...)
}

func renderBoard(s *State) string {
	b := s.Board
	rows := b.Rows()
	if !s.FloorVisible {
		rows--
	}

	var sb strings.Builder
	for r := 0; r < rows; r++ {
		for c := 0; c < b.Cols(); c++ {
			v := b.At(r, c)
			if pv := pieceAt(s, r, c); pv != 0 {
				v = pv
			}
			if v == 0 {
				sb.WriteString(emptyCell.Render(emptyGlyph))
				continue
			}
			sb.WriteString(cellStyle(v).Render(blockGlyph))
		}
		if r < rows-1 {
			sb.WriteByte('\n')
		}
	}
	return sb.String()
}

func pieceAt(s *State, r, c int) int {
	p := s.Piece
	if p.Shape == nil {
		return 0
	}
	pr, pc := r-p.Y, c-p.X
	if !p.Shape.InBounds(pr, pc) {
		return 0
	}
	return p.Shape.At(pr, pc)
}

func renderCursorTask(s *State) string {
	bar := progress.New(
		progress.WithSolidFill(string(CursorColor)),
		progress.WithWidth(trackWidth),
		progress.WithoutPercentage(),
	)
	pct := 0.0
	if s.Width > 0 {
		pct = float64(s.Cursor) / float64(s.Width)
	}
	pct = max(0, min(1, pct))

	left, right := target.Render("ROTATE"), target.Render("DON'T")
	switch s.Collided {
	case SideLeft:
		left = targetHit.Render("ROTATE")
	case SideRight:
		right = targetHit.Render("DON'T")
	}
	track := lipgloss.JoinHorizontal(lipgloss.Center, left, bar.ViewAs(pct), right)
	if s.Prompt == "" {
		return track
	}
	return lipgloss.JoinVertical(lipgloss.Center, prompt.Render(s.Prompt), track)
}

func renderCrosshair(s *State, now time.Time) string {
	style := crosshair
	if s.FlashActive(now) {
		style = style.Foreground(lipgloss.Color(s.FlashColor))
	}
	return style.Render("+")
}
