package classifier

import (
	"context"
	"fmt"
	"time"

	apperrors "github.com/Iron-Ham/brainnet/internal/errors"
	"github.com/Iron-Ham/brainnet/internal/logging"
	"github.com/Iron-Ham/brainnet/internal/signal"
)

// LiveParams configure a Live vote source.
type LiveParams struct {
	// Collect is the signal budget of one run; Window is how much signal
	// each vote is computed from.
	Collect time.Duration
	Window  time.Duration

	HighFreq float64
	LowFreq  float64

	// DriftCorrection removes a linear trend from each window first.
	DriftCorrection bool
	// StarvationTimeout bounds the wait for a single packet. Zero waits
	// forever.
	StarvationTimeout time.Duration
}

// Live votes from the spectral power of a biosignal. Every Window of
// signal it compares the power at HighFreq with the power at LowFreq: when
// the high frequency is not stronger the vote is Right, otherwise Left.
type Live struct {
	src    signal.Source
	p      LiveParams
	logger *logging.Logger

	packetSize int
	total      int // packets per run
	perWindow  int // packets per vote
	n          int
	buf        []float64
}

// NewLive returns a live source reading from src.
func NewLive(src signal.Source, p LiveParams, logger *logging.Logger) *Live {
	if logger == nil {
		logger = logging.NopLogger()
	}
	return &Live{src: src, p: p, logger: logger}
}

// Begin implements VoteSource. It discards buffered signal, measures the
// packet size and discards again so that the run only sees fresh samples.
func (l *Live) Begin(ctx context.Context) error {
	l.src.Flush()
	first, err := l.pull(ctx)
	if err != nil {
		return err
	}
	l.src.Flush()

	fs := l.src.SampleRate()
	l.packetSize = len(first.Samples)
	if l.packetSize == 0 || fs <= 0 {
		return apperrors.NewSignalError(fmt.Sprintf("unusable stream: %d samples per packet at %d Hz", l.packetSize, fs), nil).WithSource("live")
	}
	l.total = samples(l.p.Collect, fs) / l.packetSize
	l.perWindow = samples(l.p.Window, fs) / l.packetSize
	if l.perWindow == 0 || l.perWindow > l.total {
		return apperrors.NewSignalError(fmt.Sprintf("window of %s does not fit %d-sample packets in %s", l.p.Window, l.packetSize, l.p.Collect), nil).WithSource("live")
	}
	l.n = 0
	l.buf = make([]float64, l.total*l.packetSize)
	return nil
}

func samples(d time.Duration, fs int) int {
	return int(d.Seconds() * float64(fs))
}

// Next implements VoteSource.
func (l *Live) Next(ctx context.Context) (int, bool, error) {
	for l.n < l.total {
		p, err := l.pull(ctx)
		if err != nil {
			return 0, false, err
		}
		if len(p.Samples) != l.packetSize {
			return 0, false, apperrors.NewSignalError(
				fmt.Sprintf("packet of %d samples, want %d", len(p.Samples), l.packetSize), nil).WithSource("live")
		}
		copy(l.buf[l.n*l.packetSize:], p.Samples)
		l.n++

		if l.n%l.perWindow == 0 {
			vote, err := l.vote()
			return vote, err == nil, err
		}
	}
	return 0, false, nil
}

func (l *Live) vote() (int, error) {
	end := l.n * l.packetSize
	win := make([]float64, l.perWindow*l.packetSize)
	copy(win, l.buf[end-len(win):end])
	if l.p.DriftCorrection {
		Detrend(win)
	}

	fs := l.src.SampleRate()
	nperseg := min(fs, len(win))
	psd, err := Welch(win, fs, nperseg, nperseg/2)
	if err != nil {
		return 0, apperrors.NewSignalError("spectral estimate", err).WithSource("live")
	}

	high, low := psd.PowerAt(l.p.HighFreq), psd.PowerAt(l.p.LowFreq)
	vote := Left
	if high <= low {
		vote = Right
	}
	l.logger.Debug("window power", "high", high, "low", low, "vote", vote, "packet", l.n)
	return vote, nil
}

// pull reads one packet, failing with ErrSignalStarvation when the source
// stalls for longer than the starvation timeout.
func (l *Live) pull(ctx context.Context) (signal.Packet, error) {
	if l.p.StarvationTimeout <= 0 {
		return l.src.Next(ctx)
	}
	pctx, cancel := context.WithTimeout(ctx, l.p.StarvationTimeout)
	defer cancel()

	p, err := l.src.Next(pctx)
	if err != nil && ctx.Err() == nil && apperrors.Is(err, context.DeadlineExceeded) {
		return signal.Packet{}, apperrors.NewSignalError(
			fmt.Sprintf("no signal for %s", l.p.StarvationTimeout), apperrors.ErrSignalStarvation).WithSource("live")
	}
	return p, err
}
