package classifier

import (
	"context"
	"time"

	"github.com/Iron-Ham/brainnet/internal/pacing"
)

// Simulated votes on a timer without any signal. After a warm-up it emits
// Steps votes, one per Interval, alternating Left, Right, Left, ...
type Simulated struct {
	Warmup   time.Duration
	Interval time.Duration
	Steps    int
	Clock    pacing.Clock

	n int
}

// NewSimulated returns a simulated source.
func NewSimulated(warmup, interval time.Duration, steps int, clock pacing.Clock) *Simulated {
	if clock == nil {
		clock = pacing.Real{}
	}
	return &Simulated{Warmup: warmup, Interval: interval, Steps: steps, Clock: clock}
}

// Begin implements VoteSource.
func (s *Simulated) Begin(ctx context.Context) error {
	s.n = 0
	return s.Clock.Sleep(ctx, s.Warmup)
}

// Next implements VoteSource.
func (s *Simulated) Next(ctx context.Context) (int, bool, error) {
	if s.n >= s.Steps {
		return 0, false, nil
	}
	if err := s.Clock.Sleep(ctx, s.Interval); err != nil {
		return 0, false, err
	}
	vote := Left
	if s.n%2 == 1 {
		vote = Right
	}
	s.n++
	return vote, true, nil
}
