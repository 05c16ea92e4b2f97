package display

import (
	"github.com/charmbracelet/lipgloss"

	"github.com/Iron-Ham/brainnet/internal/board"
)

var (
	MutedColor  = lipgloss.Color("#6B7280")
	TextColor   = lipgloss.Color("#F9FAFB")
	TargetColor = lipgloss.Color("#60A5FA")
	HitColor    = lipgloss.Color("#10B981")
	CursorColor = lipgloss.Color("#FBBF24")

	emptyCell = lipgloss.NewStyle().Foreground(MutedColor)

	crosshair = lipgloss.NewStyle().
			Bold(true).
			Foreground(TextColor)

	target = lipgloss.NewStyle().
		Foreground(TargetColor).
		Padding(0, 1)

	targetHit = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("#111827")).
			Background(HitColor).
			Padding(0, 1)

	prompt = lipgloss.NewStyle().
		Bold(true).
		Foreground(TextColor).
		MarginBottom(1)

	message = lipgloss.NewStyle().
		Foreground(TextColor).
		Padding(1, 2)

	counter = lipgloss.NewStyle().
		Foreground(MutedColor).
		Italic(true)

	frame = lipgloss.NewStyle().
		Border(lipgloss.RoundedBorder()).
		BorderForeground(MutedColor).
		Padding(0, 1)
)

// cellStyles holds one style per palette entry.
var cellStyles = func() []lipgloss.Style {
	out := make([]lipgloss.Style, len(board.Palette))
	for i, hex := range board.Palette {
		out[i] = lipgloss.NewStyle().Foreground(lipgloss.Color(hex))
	}
	return out
}()

func cellStyle(v int) lipgloss.Style {
	if v <= board.Empty || v >= len(cellStyles) {
		return emptyCell
	}
	return cellStyles[v]
}
