package cmd

import (
	"context"
	"errors"
	"fmt"
	"io"
	"math/rand/v2"
	"os"
	"path/filepath"
	"time"

	"github.com/sourcegraph/conc"
	"golang.org/x/term"

	"github.com/Iron-Ham/brainnet/internal/actuation"
	"github.com/Iron-Ham/brainnet/internal/board"
	"github.com/Iron-Ham/brainnet/internal/classifier"
	"github.com/Iron-Ham/brainnet/internal/config"
	"github.com/Iron-Ham/brainnet/internal/display"
	"github.com/Iron-Ham/brainnet/internal/event"
	"github.com/Iron-Ham/brainnet/internal/logging"
	"github.com/Iron-Ham/brainnet/internal/pacing"
	"github.com/Iron-Ham/brainnet/internal/protocol"
	"github.com/Iron-Ham/brainnet/internal/signal"
	"github.com/Iron-Ham/brainnet/internal/store"

	"github.com/google/uuid"
)

// node holds what either role needs on one machine: logging, the display
// pipeline, devices and the record store.
type node struct {
	cfg         *config.Config
	role        string
	experiment  string
	logger      *logging.Logger
	clock       pacing.Clock
	bus         *event.Bus
	display     *display.Display
	loop        *display.Loop
	interactive bool

	closers []io.Closer
}

func newNode(cfg *config.Config, role string) (*node, error) {
	experiment := cfg.Experiment.ID
	if experiment == "" {
		experiment = uuid.NewString()
	}

	logger := logging.NopLogger()
	if cfg.Logging.Enabled {
		var err error
		logger, err = logging.NewLogger(filepath.Join(cfg.Experiment.DataDir, experiment, role), cfg.Logging.Level)
		if err != nil {
			return nil, fmt.Errorf("failed to create logger: %w", err)
		}
	}
	logger = logger.WithExperiment(experiment)

	interactive := !cfg.Display.Headless && term.IsTerminal(int(os.Stdout.Fd()))
	var out io.Writer = os.Stdout
	if interactive {
		// The terminal UI draws the scene itself.
		out = io.Discard
	}

	q := display.NewQueue()
	state := display.NewState(cfg.Classifier.WindowWidth, cfg.Classifier.Midpoint())

	n := &node{
		cfg:         cfg,
		role:        role,
		experiment:  experiment,
		logger:      logger,
		clock:       pacing.Real{},
		bus:         event.NewBus(logger),
		display:     display.New(q),
		loop:        display.NewLoop(q, state, display.NewHeadless(out), cfg.Display.FPS),
		interactive: interactive,
	}
	event.SubscribeTo(n.bus, func(e event.PhaseChangeEvent) {
		n.logger.Debug("phase changed", "from", e.Previous, "to", e.Current, "trial", e.Trial, "round", e.Round)
	})
	logger.Info("node started", "role", role, "interactive", interactive)
	return n, nil
}

func (n *node) game() *board.Game {
	seed := uint64(n.cfg.Board.Seed)
	if seed == 0 {
		seed = uint64(time.Now().UnixNano())
	}
	return board.NewGame(n.cfg.Board.Rows, n.cfg.Board.Cols, rand.New(rand.NewPCG(seed, seed)))
}

func (n *node) classifier() *classifier.Classifier {
	c := n.cfg.Classifier
	geom := classifier.Geometry{
		WindowWidth:    c.WindowWidth,
		BoundaryMargin: c.BoundaryMargin,
		CursorRadius:   c.CursorRadius,
		Step:           c.Step,
	}
	return classifier.New(geom, c.TieBreakHold, n.display, n.clock, n.logger)
}

// votes builds the vote source selected by signal.source.
func (n *node) votes(ctx context.Context) (classifier.VoteSource, error) {
	s, c := n.cfg.Signal, n.cfg.Classifier
	params := classifier.LiveParams{
		Collect:           c.CollectDuration,
		Window:            c.WindowDuration,
		HighFreq:          float64(c.HighFreq),
		LowFreq:           float64(c.LowFreq),
		DriftCorrection:   c.DriftCorrection,
		StarvationTimeout: c.StarvationTimeout,
	}

	switch s.Source {
	case "tcp":
		stream, err := signal.Dial(ctx, s.Address, signal.StreamOptions{
			SampleRate: s.SampleRate,
			PacketSize: s.PacketSize,
			Channel:    s.Channel,
		}, n.logger)
		if err != nil {
			return nil, err
		}
		n.closers = append(n.closers, stream)
		return classifier.NewLive(stream, params, n.logger), nil
	case "synthetic":
		src := signal.NewSynthetic(signal.SyntheticOptions{
			SampleRate: s.SampleRate,
			PacketSize: s.PacketSize,
			Freq:       s.SyntheticFreq,
			Noise:      0.5,
			Seed:       uint64(n.cfg.Board.Seed),
		}, n.clock)
		return classifier.NewLive(src, params, n.logger), nil
	default:
		return classifier.NewSimulated(c.SimulatedWarmup, c.SimulatedInterval, c.SimulatedSteps, n.clock), nil
	}
}

func (n *node) lights() (actuation.Lights, error) {
	if !n.cfg.Lights.Enabled {
		return actuation.NoLights{}, nil
	}
	dev, err := actuation.OpenLineDevice(n.cfg.Lights.Device)
	if err != nil {
		return nil, err
	}
	n.closers = append(n.closers, dev)
	return dev, nil
}

func (n *node) actuator() (actuation.Actuator, error) {
	if !n.cfg.Actuation.Enabled {
		n.logger.Warn("actuation disabled, firings are only logged")
		return actuation.NewDryRun(n.logger), nil
	}
	dev, err := actuation.OpenLineDevice(n.cfg.Actuation.Device)
	if err != nil {
		return nil, err
	}
	n.closers = append(n.closers, dev)
	return dev, nil
}

// recorder opens the record store and registers this run. It returns nil
// when storage is disabled.
func (n *node) recorder(ctx context.Context) (protocol.Recorder, error) {
	if !n.cfg.Storage.Enabled {
		return nil, nil
	}
	st, err := store.Open(n.cfg.Storage.ResolvePath(n.cfg.Experiment.DataDir))
	if err != nil {
		return nil, err
	}
	id, err := st.CreateExperiment(ctx, store.Experiment{
		Label:         n.experiment,
		Role:          n.role,
		Condition:     n.cfg.Experiment.Condition,
		HighIntensity: n.cfg.Actuation.HighIntensity,
		LowIntensity:  n.cfg.Actuation.LowIntensity,
		StartedAt:     n.clock.Now(),
	})
	if err != nil {
		_ = st.Close()
		return nil, err
	}
	n.closers = append(n.closers, finisher{st: st, id: id, clock: n.clock})
	n.logger.Info("recording to store", "experiment_id", id.String())
	return st.Recorder(id), nil
}

// finisher stamps the experiment end time and closes the store.
type finisher struct {
	st    *store.Store
	id    uuid.UUID
	clock pacing.Clock
}

func (f finisher) Close() error {
	err := f.st.FinishExperiment(context.Background(), f.id, f.clock.Now())
	return errors.Join(err, f.st.Close())
}

// run drives control on one goroutine and the render loop on another. When
// either finishes the other is cancelled.
func (n *node) run(ctx context.Context, title string, control func(context.Context) error) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	var controlErr, renderErr error
	var wg conc.WaitGroup
	wg.Go(func() {
		defer cancel()
		controlErr = control(ctx)
	})
	wg.Go(func() {
		defer cancel()
		if n.interactive {
			renderErr = display.RunTUI(ctx, n.loop, title, cancel)
		} else {
			renderErr = n.loop.Run(ctx)
		}
	})
	wg.Wait()

	switch {
	case errors.Is(controlErr, context.Canceled):
		n.logger.Warn("session interrupted")
		return fmt.Errorf("session interrupted: %w", controlErr)
	case controlErr != nil:
		n.logger.Error("session failed", "error", controlErr.Error())
		return controlErr
	}
	return renderErr
}

// Close releases devices, the store and the log file.
func (n *node) Close() error {
	var errs []error
	for i := len(n.closers) - 1; i >= 0; i-- {
		errs = append(errs, n.closers[i].Close())
	}
	errs = append(errs, n.logger.Close())
	return errors.Join(errs...)
}
