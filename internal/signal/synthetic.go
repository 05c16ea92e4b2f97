package signal

import (
	"context"
	"math"
	"math/rand/v2"
	"sync"
	"time"

	"github.com/Iron-Ham/brainnet/internal/pacing"
)

// SyntheticOptions configure a Synthetic source.
type SyntheticOptions struct {
	SampleRate int
	PacketSize int
	// Freq is the frequency of the dominant sine component in Hz.
	Freq float64
	// Noise is the standard deviation of added Gaussian noise.
	Noise float64
	Seed  uint64
}

// Synthetic generates a sine wave at a fixed frequency, paced in real time
// by a clock. It stands in for an amplifier in demos and tests.
type Synthetic struct {
	opts  SyntheticOptions
	clock pacing.Clock

	mu  sync.Mutex
	n   int
	rng *rand.Rand
}

// NewSynthetic returns a synthetic source.
func NewSynthetic(opts SyntheticOptions, clock pacing.Clock) *Synthetic {
	if opts.PacketSize <= 0 {
		opts.PacketSize = 1
	}
	if clock == nil {
		clock = pacing.Real{}
	}
	return &Synthetic{
		opts:  opts,
		clock: clock,
		rng:   rand.New(rand.NewPCG(opts.Seed, opts.Seed^0x9e3779b97f4a7c15)),
	}
}

// Next implements Source. It blocks for one packet's worth of time.
func (s *Synthetic) Next(ctx context.Context) (Packet, error) {
	period := time.Duration(s.opts.PacketSize) * time.Second / time.Duration(s.opts.SampleRate)
	if err := s.clock.Sleep(ctx, period); err != nil {
		return Packet{}, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	samples := make([]float64, s.opts.PacketSize)
	for i := range samples {
		t := float64(s.n) / float64(s.opts.SampleRate)
		samples[i] = math.Sin(2*math.Pi*s.opts.Freq*t) + s.opts.Noise*s.rng.NormFloat64()
		s.n++
	}
	return Packet{Samples: samples, At: s.clock.Now()}, nil
}

// SampleRate implements Source.
func (s *Synthetic) SampleRate() int { return s.opts.SampleRate }

// Flush implements Source. Nothing is buffered, so stale data cannot exist.
func (s *Synthetic) Flush() {}

// Close implements Source.
func (s *Synthetic) Close() error { return nil }
