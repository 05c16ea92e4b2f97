// Package classifier turns a stream of votes into a binary rotate decision
// by steering an on-screen cursor between two targets.
//
// A run starts with the cursor at the midpoint of a window of fixed width.
// Each vote moves the cursor one step left or right. Reaching the left
// target (cursor - radius <= left boundary) decides ROTATE; reaching the
// right one (cursor + radius >= right boundary) decides DONT_ROTATE. When
// the vote source runs out first, the side of the midpoint the cursor ended
// on decides, with ties going to ROTATE.
//
// Votes come from a [VoteSource]: [Live] derives them from the spectral power
// of a biosignal at two stimulus frequencies, [Simulated] alternates on a
// timer for runs without an amplifier.
package classifier

import (
	"context"
	"sync/atomic"
	"time"

	"github.com/Iron-Ham/brainnet/internal/display"
	"github.com/Iron-Ham/brainnet/internal/logging"
	"github.com/Iron-Ham/brainnet/internal/pacing"
	"github.com/Iron-Ham/brainnet/internal/wire"
)

// State is the phase of a classification run.
type State int32

const (
	StateWaitingSource State = iota
	StateAccumulating
	StateDeciding
	StateDone
)

func (s State) String() string {
	switch s {
	case StateWaitingSource:
		return "waiting_source"
	case StateAccumulating:
		return "accumulating"
	case StateDeciding:
		return "deciding"
	case StateDone:
		return "done"
	default:
		return "unknown"
	}
}

// Vote directions.
const (
	Left  = -1
	Right = +1
)

// VoteSource produces cursor votes for one run at a time.
type VoteSource interface {
	// Begin prepares a new run. It may block, e.g. to discard stale input.
	Begin(ctx context.Context) error
	// Next blocks until the next vote (Left or Right). ok is false once the
	// source's budget for this run is exhausted.
	Next(ctx context.Context) (vote int, ok bool, err error)
}

// Geometry places the cursor and targets, in pixels.
type Geometry struct {
	WindowWidth    int
	BoundaryMargin int
	CursorRadius   int
	Step           int
}

// Left returns the left target boundary.
func (g Geometry) Left() int { return g.BoundaryMargin }

// Right returns the right target boundary.
func (g Geometry) Right() int { return g.WindowWidth - g.BoundaryMargin }

// Midpoint returns the cursor's start position.
func (g Geometry) Midpoint() int { return g.WindowWidth / 2 }

// Result is the outcome of one run.
type Result struct {
	Decision wire.Decision
	Start    time.Time
	End      time.Time
	// Cursor is the final cursor position.
	Cursor int
	Votes  int
	// Early is set when a target was reached before the source ran out.
	Early bool
}

// Classifier runs the cursor task. A Classifier is used by one control
// goroutine; State may be read from any goroutine.
type Classifier struct {
	geom    Geometry
	hold    time.Duration
	display *display.Display
	clock   pacing.Clock
	logger  *logging.Logger

	state atomic.Int32
}

// New creates a classifier. hold is how long the collision stays on screen
// when the source runs out before a target is reached.
func New(geom Geometry, hold time.Duration, d *display.Display, clock pacing.Clock, logger *logging.Logger) *Classifier {
	if clock == nil {
		clock = pacing.Real{}
	}
	if logger == nil {
		logger = logging.NopLogger()
	}
	return &Classifier{geom: geom, hold: hold, display: d, clock: clock, logger: logger}
}

// State returns the current phase.
func (c *Classifier) State() State { return State(c.state.Load()) }

func (c *Classifier) enter(s State) { c.state.Store(int32(s)) }

// Run performs one classification. The cursor is reset exactly once at the
// start and exactly one collision is shown at the end of every successful
// run.
func (c *Classifier) Run(ctx context.Context, src VoteSource, prompt string) (Result, error) {
	c.enter(StateWaitingSource)
	c.display.HideAll()
	c.display.ShowCursorTask(prompt, true)
	c.display.ResetCursor()

	res := Result{Start: c.clock.Now(), Cursor: c.geom.Midpoint()}
	if err := src.Begin(ctx); err != nil {
		return Result{}, err
	}

	for {
		c.enter(StateAccumulating)
		vote, ok, err := src.Next(ctx)
		if err != nil {
			return Result{}, err
		}
		if !ok {
			break
		}

		c.enter(StateDeciding)
		res.Votes++
		dx := vote * c.geom.Step
		res.Cursor += dx
		c.display.MoveCursor(dx)
		c.logger.Debug("cursor vote", "vote", vote, "cursor", res.Cursor)

		if res.Cursor-c.geom.CursorRadius <= c.geom.Left() {
			c.display.CollideLeft()
			return c.finish(res, wire.Rotate, true), nil
		}
		if res.Cursor+c.geom.CursorRadius >= c.geom.Right() {
			c.display.CollideRight()
			return c.finish(res, wire.DontRotate, true), nil
		}
	}

	decision := wire.DontRotate
	if res.Cursor <= c.geom.Midpoint() {
		decision = wire.Rotate
		c.display.CollideLeft()
	} else {
		c.display.CollideRight()
	}
	if err := c.clock.Sleep(ctx, c.hold); err != nil {
		return Result{}, err
	}
	c.display.HideAll()
	c.display.ShowCrosshair()
	return c.finish(res, decision, false), nil
}

func (c *Classifier) finish(res Result, d wire.Decision, early bool) Result {
	res.Decision = d
	res.Early = early
	res.End = c.clock.Now()
	c.enter(StateDone)
	c.logger.Info("classification finished",
		"decision", string(d),
		"early", early,
		"votes", res.Votes,
		"cursor", res.Cursor,
		"duration", res.End.Sub(res.Start).String(),
	)
	return res
}
