package display

import (
	"context"
	"errors"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
)

// tickMsg drives one render frame.
type tickMsg time.Time

func (m Model) tick() tea.Cmd {
	return tea.Tick(m.loop.Interval(), func(t time.Time) tea.Msg {
		return tickMsg(t)
	})
}

// Model is the bubbletea model of the terminal renderer. Each tick drains the
// loop's queue; View draws the latest scene.
type Model struct {
	loop   *Loop
	title  string
	onQuit func()

	now    time.Time
	width  int
	height int
}

// NewModel creates a terminal model over loop. onQuit runs when the operator
// presses ctrl+c.
func NewModel(loop *Loop, title string, onQuit func()) Model {
	return Model{loop: loop, title: title, onQuit: onQuit}
}

// Init starts the frame ticker.
func (m Model) Init() tea.Cmd { return m.tick() }

// Update handles messages and updates the model.
func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		if msg.String() == "ctrl+c" {
			if m.onQuit != nil {
				m.onQuit()
			}
			return m, tea.Quit
		}
		return m, nil

	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		return m, nil

	case tickMsg:
		m.now = time.Time(msg)
		m.loop.Step(m.now)
		return m, m.tick()
	}
	return m, nil
}

// View renders the scene centred in the terminal.
func (m Model) View() string {
	scene := m.loop.Snapshot()
	body := View(&scene, m.now)
	header := counter.Render(m.title)
	content := lipgloss.JoinVertical(lipgloss.Center, header, body)
	if m.width == 0 || m.height == 0 {
		return content
	}
	return lipgloss.Place(m.width, m.height, lipgloss.Center, lipgloss.Center, content)
}

// RunTUI runs the terminal renderer until ctx is cancelled or the operator
// quits.
func RunTUI(ctx context.Context, loop *Loop, title string, onQuit func()) error {
	p := tea.NewProgram(
		NewModel(loop, title, onQuit),
		tea.WithAltScreen(),
		tea.WithContext(ctx),
	)
	_, err := p.Run()
	if errors.Is(err, tea.ErrProgramKilled) {
		return nil
	}
	return err
}
