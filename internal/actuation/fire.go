package actuation

import (
	"context"
	"fmt"
	"time"

	"github.com/Iron-Ham/brainnet/internal/display"
	apperrors "github.com/Iron-Ham/brainnet/internal/errors"
	"github.com/Iron-Ham/brainnet/internal/logging"
	"github.com/Iron-Ham/brainnet/internal/pacing"
	"github.com/Iron-Ham/brainnet/internal/wire"
)

// MinSafetyDelay is the shortest allowed gap between two firings. The
// stimulator needs it to recharge.
const MinSafetyDelay = 8 * time.Second

// Timing holds the pauses of a firing sequence.
type Timing struct {
	// PreFlash is how long the crosshair shows before it flashes.
	PreFlash time.Duration
	Flash    time.Duration
	// SafetyDelay separates the two firings. It is never skipped.
	SafetyDelay time.Duration
	// Post is the pause after the second firing.
	Post time.Duration
}

// Intensities maps decisions to stimulator levels.
type Intensities struct {
	High int
	Low  int
}

// Validate checks 0 < Low < High < 100.
func (in Intensities) Validate() error {
	if in.Low <= 0 || in.Low >= in.High || in.High >= 100 {
		return apperrors.NewConfigError("actuation.low_intensity", in.Low,
			fmt.Sprintf("intensities must satisfy 0 < low < high < 100, got low=%d high=%d", in.Low, in.High))
	}
	return nil
}

// For returns High for ROTATE and Low otherwise.
func (in Intensities) For(d wire.Decision) int {
	if d == wire.Rotate {
		return in.High
	}
	return in.Low
}

// PeerDecision is one peer's vote to relay.
type PeerDecision struct {
	Peer     string
	Decision wire.Decision
}

// Firing records one stimulation.
type Firing struct {
	Peer     string
	Decision wire.Decision
	Level    int
	At       time.Time
}

// Sequencer relays peer decisions through the actuator.
type Sequencer struct {
	act     Actuator
	display *display.Display
	clock   pacing.Clock
	timing  Timing
	levels  Intensities
	logger  *logging.Logger
}

// NewSequencer creates a sequencer. The intensities and the safety delay are
// validated here so a bad configuration fails before any trial starts.
func NewSequencer(act Actuator, d *display.Display, clock pacing.Clock, timing Timing, levels Intensities, logger *logging.Logger) (*Sequencer, error) {
	if err := levels.Validate(); err != nil {
		return nil, err
	}
	if timing.SafetyDelay < MinSafetyDelay {
		return nil, apperrors.NewConfigError("timing.safety_delay", timing.SafetyDelay,
			fmt.Sprintf("must be at least %s", MinSafetyDelay))
	}
	if clock == nil {
		clock = pacing.Real{}
	}
	if logger == nil {
		logger = logging.NopLogger()
	}
	return &Sequencer{act: act, display: d, clock: clock, timing: timing, levels: levels, logger: logger}, nil
}

// Arm arms the actuator.
func (s *Sequencer) Arm(ctx context.Context) error {
	if err := s.act.Arm(ctx); err != nil {
		return fmt.Errorf("arm actuator: %w", err)
	}
	return nil
}

// FireTwice fires once per decision, in order, for the given attempt
// (1-based round number). Between consecutive firings it sleeps the safety
// delay; after the last it sleeps the post-actuation pause.
func (s *Sequencer) FireTwice(ctx context.Context, attempt int, decisions []PeerDecision) ([]Firing, error) {
	firings := make([]Firing, 0, len(decisions))
	for i, pd := range decisions {
		if i > 0 {
			if err := s.clock.Sleep(ctx, s.timing.SafetyDelay); err != nil {
				return firings, err
			}
		}

		f, err := s.fire(ctx, i+1, attempt, pd)
		if err != nil {
			return firings, err
		}
		firings = append(firings, f)
	}

	if err := s.clock.Sleep(ctx, s.timing.Post); err != nil {
		return firings, err
	}
	return firings, nil
}

func (s *Sequencer) fire(ctx context.Context, sender, attempt int, pd PeerDecision) (Firing, error) {
	s.display.HideAll()
	s.display.SetText(fmt.Sprintf("Stimulation from Sender%d, Attempt %d", sender, attempt), 0, 0)

	level := s.levels.For(pd.Decision)
	if err := s.act.SetIntensity(ctx, level); err != nil {
		return Firing{}, fmt.Errorf("set intensity for %s: %w", pd.Peer, err)
	}

	s.display.ShowCrosshair()
	if err := s.clock.Sleep(ctx, s.timing.PreFlash); err != nil {
		return Firing{}, err
	}
	s.display.Flash(display.FlashRed, s.timing.Flash)
	if err := s.clock.Sleep(ctx, s.timing.Flash); err != nil {
		return Firing{}, err
	}

	at := s.clock.Now()
	if err := s.act.Fire(ctx, level); err != nil {
		return Firing{}, fmt.Errorf("fire for %s: %w", pd.Peer, err)
	}
	s.logger.Info("fired", "peer", pd.Peer, "decision", string(pd.Decision), "level", level)
	return Firing{Peer: pd.Peer, Decision: pd.Decision, Level: level, At: at}, nil
}
