package display

import (
	"context"
	"sync"
	"time"
)

// DefaultFPS is the render cadence.
const DefaultFPS = 20

// Renderer draws a scene. It is only ever called from the loop goroutine.
type Renderer interface {
	Render(s *State, now time.Time) error
}

// Loop is the single consumer of a Queue.
type Loop struct {
	queue    *Queue
	renderer Renderer
	interval time.Duration

	mu    sync.Mutex
	state *State
}

// NewLoop creates a loop rendering state at fps frames per second. A nil
// renderer applies commands without drawing.
func NewLoop(q *Queue, state *State, r Renderer, fps int) *Loop {
	if fps <= 0 {
		fps = DefaultFPS
	}
	return &Loop{
		queue:    q,
		renderer: r,
		interval: time.Second / time.Duration(fps),
		state:    state,
	}
}

// Interval returns the frame budget.
func (l *Loop) Interval() time.Duration { return l.interval }

// Run renders one frame per interval until ctx is cancelled. Commands still
// queued at shutdown are applied before Run returns.
func (l *Loop) Run(ctx context.Context) error {
	ticker := time.NewTicker(l.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			l.Step(time.Now())
			return nil
		case now := <-ticker.C:
			if err := l.Frame(now); err != nil {
				return err
			}
		}
	}
}

// Frame drains the queue, applies the commands in order and renders the
// latest scene.
func (l *Loop) Frame(now time.Time) error {
	l.Step(now)
	if l.renderer == nil {
		return nil
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.renderer.Render(l.state, now)
}

// Step applies every queued command without rendering and returns how many
// were applied.
func (l *Loop) Step(now time.Time) int {
	cmds := l.queue.Drain()
	if len(cmds) == 0 {
		return 0
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	for _, cmd := range cmds {
		l.state.Apply(cmd, now)
	}
	return len(cmds)
}

// Snapshot returns a copy of the current scene.
func (l *Loop) Snapshot() State {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.state.Snapshot()
}
