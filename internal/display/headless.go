package display

import (
	"io"
	"time"
)

// Headless writes each frame that differs from the previous one to w. A nil
// writer discards frames.
type Headless struct {
	w      io.Writer
	last   string
	frames int
}

// NewHeadless creates a headless renderer.
func NewHeadless(w io.Writer) *Headless {
	if w == nil {
		w = io.Discard
	}
	return &Headless{w: w}
}

// Render implements Renderer.
func (h *Headless) Render(s *State, now time.Time) error {
	out := View(s, now)
	if out == h.last {
		return nil
	}
	h.last = out
	h.frames++
	_, err := io.WriteString(h.w, out+"\n\n")
	return err
}

// Frames returns how many distinct frames were written.
func (h *Headless) Frames() int { return h.frames }
