package protocol

import (
	"context"
	"fmt"
	"math/rand/v2"
	"slices"
	"time"

	"github.com/sourcegraph/conc/pool"

	"github.com/Iron-Ham/brainnet/internal/actuation"
	"github.com/Iron-Ham/brainnet/internal/board"
	"github.com/Iron-Ham/brainnet/internal/channel"
	"github.com/Iron-Ham/brainnet/internal/classifier"
	"github.com/Iron-Ham/brainnet/internal/display"
	apperrors "github.com/Iron-Ham/brainnet/internal/errors"
	"github.com/Iron-Ham/brainnet/internal/event"
	"github.com/Iron-Ham/brainnet/internal/logging"
	"github.com/Iron-Ham/brainnet/internal/pacing"
	"github.com/Iron-Ham/brainnet/internal/trial"
	"github.com/Iron-Ham/brainnet/internal/wire"
)

// CoordinatorTiming holds the coordinator's own pauses. The firing pauses
// belong to the actuation sequencer.
type CoordinatorTiming struct {
	// Step separates the board animation steps after classification and
	// during commit.
	Step time.Duration
	// ClearHold is how long the cleared board stays up before the result is
	// sent.
	ClearHold time.Duration
}

// CoordinatorConfig wires a Coordinator.
type CoordinatorConfig struct {
	Channel    channel.Channel
	Game       *board.Game
	Display    *display.Display
	Classifier *classifier.Classifier
	Votes      classifier.VoteSource
	Sequencer  *actuation.Sequencer
	Lights     actuation.Lights
	Clock      pacing.Clock
	Bus        *event.Bus
	Recorder   Recorder
	Logger     *logging.Logger

	// Peers lists every peer in firing order.
	Peers []string
	// Enabled lists the peers that are present. The others are simulated.
	Enabled  []string
	Rounds   int
	Order    trial.Order
	MockSeed uint64
	Timing   CoordinatorTiming
}

// Coordinator runs the trial schedule on the receiving node.
type Coordinator struct {
	machine

	ch         channel.Channel
	game       *board.Game
	display    *display.Display
	classifier *classifier.Classifier
	votes      classifier.VoteSource
	seq        *actuation.Sequencer
	lights     actuation.Lights
	recorder   Recorder
	logger     *logging.Logger

	peers   []string
	enabled []string
	rounds  int
	order   trial.Order
	mock    *rand.Rand
	timing  CoordinatorTiming

	trials []*trial.TrialState
}

// NewCoordinator validates cfg and returns a coordinator ready to Run.
func NewCoordinator(cfg CoordinatorConfig) (*Coordinator, error) {
	switch {
	case cfg.Channel == nil:
		return nil, fmt.Errorf("coordinator: channel is required")
	case cfg.Game == nil || cfg.Display == nil || cfg.Classifier == nil || cfg.Votes == nil:
		return nil, fmt.Errorf("coordinator: game, display and classifier are required")
	case cfg.Sequencer == nil:
		return nil, fmt.Errorf("coordinator: actuation sequencer is required")
	case cfg.Rounds < 1:
		return nil, apperrors.NewConfigError("experiment.rounds", cfg.Rounds, "must be at least 1")
	}
	if err := cfg.Order.Validate(); err != nil {
		return nil, apperrors.NewConfigError("experiment.condition", len(cfg.Order), err.Error())
	}
	for _, id := range cfg.Enabled {
		if !slices.Contains(cfg.Peers, id) {
			return nil, apperrors.NewConfigError("peers.enabled", id, "unknown peer")
		}
	}

	if cfg.Clock == nil {
		cfg.Clock = pacing.Real{}
	}
	if cfg.Lights == nil {
		cfg.Lights = actuation.NoLights{}
	}
	if cfg.Logger == nil {
		cfg.Logger = logging.NopLogger()
	}

	c := &Coordinator{
		ch:         cfg.Channel,
		game:       cfg.Game,
		display:    cfg.Display,
		classifier: cfg.Classifier,
		votes:      cfg.Votes,
		seq:        cfg.Sequencer,
		lights:     cfg.Lights,
		recorder:   cfg.Recorder,
		logger:     cfg.Logger.WithRole(channel.Coordinator),
		peers:      slices.Clone(cfg.Peers),
		enabled:    slices.Clone(cfg.Enabled),
		rounds:     cfg.Rounds,
		order:      slices.Clone(cfg.Order),
		mock:       rand.New(rand.NewPCG(cfg.MockSeed, cfg.MockSeed)),
		timing:     cfg.Timing,
	}
	c.machine.role = channel.Coordinator
	c.machine.clock = cfg.Clock
	c.machine.bus = cfg.Bus
	return c, nil
}

// Trials returns the committed trials. Call it after Run returns.
func (c *Coordinator) Trials() []*trial.TrialState { return c.trials }

// Run arms the stimulator, waits for the peers and plays every trial of the
// order. After the last trial the peers are sent END.
func (c *Coordinator) Run(ctx context.Context) error {
	if err := c.seq.Arm(ctx); err != nil {
		return err
	}
	c.display.ShowCrosshair()

	if err := c.awaitReady(ctx); err != nil {
		return c.annotate(err)
	}

	for i, control := range c.order.Controls() {
		if err := c.runTrial(ctx, i, control); err != nil {
			return c.annotate(err)
		}
	}

	for _, peer := range c.enabled {
		if err := c.ch.Send(ctx, peer, wire.End()); err != nil {
			return c.annotate(err)
		}
	}
	t, r := c.Position()
	c.enter(PhaseDone, t, r)
	c.publish(event.NewExperimentFinishedEvent(c.role, len(c.trials), c.clock.Now()))
	c.logger.Info("experiment finished", "trials", len(c.trials))
	return nil
}

// awaitReady waits for READY from every enabled peer concurrently.
func (c *Coordinator) awaitReady(ctx context.Context) error {
	c.enter(PhaseAwaitPeersReady, 0, 0)
	c.logger.Info("waiting for peers", "enabled", c.enabled)

	waiter, canWait := c.ch.(interface {
		WaitConnected(ctx context.Context, peer string) error
	})

	p := pool.New().WithContext(ctx).WithCancelOnError().WithFirstError()
	for _, peer := range c.enabled {
		p.Go(func(ctx context.Context) error {
			if canWait {
				if err := waiter.WaitConnected(ctx, peer); err != nil {
					return err
				}
			}
			env, err := c.ch.Receive(ctx, peer)
			if err != nil {
				return err
			}
			if env.Kind != wire.KindReady {
				return apperrors.NewProtocolError(fmt.Sprintf("expected READY, got %s", env.Kind), apperrors.ErrHandshake).WithPeer(peer)
			}
			c.logger.Info("peer ready", "peer", peer)
			c.publish(event.NewPeerReadyEvent(peer, c.clock.Now()))
			return nil
		})
	}
	if err := p.Wait(); err != nil {
		return err
	}
	if len(c.enabled) == 0 {
		c.logger.Warn("no peers enabled, every decision is simulated")
	}
	return nil
}

func (c *Coordinator) runTrial(ctx context.Context, index int, control bool) error {
	log := c.logger.WithTrial(index)
	ts := trial.New(index, control, c.rounds, c.clock.Now())

	c.display.SetText("", 0, 0)
	c.game.NewBoard(control)
	log.Info("trial started", "tag", ts.Tag(), "slots", c.game.Slots())

	for r := range c.rounds {
		rd, err := c.runRound(ctx, ts, r)
		if err != nil {
			return err
		}
		if err := ts.AddRound(rd); err != nil {
			return err
		}
	}
	return c.commit(ctx, ts)
}

func (c *Coordinator) runRound(ctx context.Context, ts *trial.TrialState, r int) (trial.RoundDecision, error) {
	log := c.logger.WithTrial(ts.Index).WithRound(r)

	c.enter(PhaseBroadcastBoard, ts.Index, r)
	c.display.HideFloor()
	c.display.SetBoard(c.game.Board(), c.game.Piece())
	c.display.ShowBoard()

	rd := trial.RoundDecision{Round: r, BoardSentAt: c.clock.Now(), PeerDecisions: make(map[string]wire.Decision)}
	encoded := wire.Encode(c.game.Board(), c.game.Piece())
	if err := c.broadcast(ctx, wire.BoardMessage(encoded), wire.TagMessage(ts.Control)); err != nil {
		return rd, err
	}
	textY := 0
	if r > 0 {
		textY = 100
	}
	c.display.SetText("Waiting on Senders", 0, textY)

	c.enter(PhaseAwaitPeerDecisions, ts.Index, r)
	decisions := make([]actuation.PeerDecision, 0, len(c.peers))
	for _, peer := range c.peers {
		d, mocked, err := c.peerDecision(ctx, peer)
		if err != nil {
			return rd, err
		}
		rd.PeerDecisions[peer] = d
		if mocked {
			rd.Mocked = append(rd.Mocked, peer)
		}
		decisions = append(decisions, actuation.PeerDecision{Peer: peer, Decision: d})
	}
	rd.DecidedAt = c.clock.Now()
	log.Info("peer decisions", "decisions", rd.PeerDecisions, "mocked", rd.Mocked)

	c.enter(PhaseActuateSignal, ts.Index, r)
	firings, err := c.seq.FireTwice(ctx, r+1, decisions)
	if err != nil {
		return rd, err
	}
	for _, f := range firings {
		rd.Firings = append(rd.Firings, trial.Firing{Peer: f.Peer, Level: f.Level, At: f.At})
	}

	c.enter(PhaseRunLocalClassifier, ts.Index, r)
	if err := c.lights.On(ctx); err != nil {
		return rd, fmt.Errorf("lights on: %w", err)
	}
	res, err := c.classifier.Run(ctx, c.votes, ReceiverPrompt)
	if err != nil {
		return rd, err
	}
	if err := c.lights.Off(ctx); err != nil {
		return rd, fmt.Errorf("lights off: %w", err)
	}
	rd.Decision = res.Decision
	rd.ClassifyStart, rd.ClassifyEnd, rd.Early = res.Start, res.End, res.Early

	c.enter(PhaseApplyDecision, ts.Index, r)
	c.display.SetBoard(c.game.Board(), c.game.Piece())
	c.display.ShowBoard()
	if err := c.clock.Sleep(ctx, c.timing.Step); err != nil {
		return rd, err
	}
	if res.Decision == wire.Rotate {
		rd.Rotated = c.game.Rotate()
		if !rd.Rotated {
			log.Info("rotation collides, piece left as is")
		}
		c.display.SetBoard(c.game.Board(), c.game.Piece())
	}
	if err := c.clock.Sleep(ctx, c.timing.Step); err != nil {
		return rd, err
	}
	if r == 0 {
		c.game.DropHalfway()
		c.display.SetBoard(c.game.Board(), c.game.Piece())
	}

	log.Info("round finished", "decision", string(rd.Decision), "rotated", rd.Rotated, "early", rd.Early)
	log.Record("round", rd)
	c.publish(event.NewRoundCompletedEvent(c.role, ts.Index, r, string(rd.Decision), rd.Rotated, c.clock.Now()))
	return rd, nil
}

// peerDecision receives the decision of an enabled peer or draws one for a
// simulated peer.
func (c *Coordinator) peerDecision(ctx context.Context, peer string) (wire.Decision, bool, error) {
	if !slices.Contains(c.enabled, peer) {
		if c.mock.IntN(2) == 0 {
			return wire.Rotate, true, nil
		}
		return wire.DontRotate, true, nil
	}
	env, err := c.ch.Receive(ctx, peer)
	if err != nil {
		return "", false, err
	}
	if err := expect(env, wire.KindDecision, peer); err != nil {
		return "", false, err
	}
	d, err := env.Decision()
	return d, false, err
}

func (c *Coordinator) commit(ctx context.Context, ts *trial.TrialState) error {
	log := c.logger.WithTrial(ts.Index)
	c.enter(PhaseCommitTrial, ts.Index, c.rounds-1)

	encoded := wire.Encode(c.game.Board(), c.game.Piece())
	if err := c.broadcast(ctx, wire.BoardMessage(encoded)); err != nil {
		return err
	}

	c.display.ShowFloor()
	c.display.SetBoard(c.game.Board(), c.game.Piece())
	c.display.ShowBoard()
	if err := c.clock.Sleep(ctx, c.timing.Step); err != nil {
		return err
	}
	c.game.Drop()
	c.display.SetBoard(c.game.Board(), c.game.Piece())
	if err := c.clock.Sleep(ctx, c.timing.Step); err != nil {
		return err
	}
	cleared := c.game.ClearRows() > 0
	c.display.SetBoard(c.game.Board(), c.game.Piece())
	c.display.SetLinesCleared(c.game.LinesCleared())
	if err := c.clock.Sleep(ctx, c.timing.ClearHold); err != nil {
		return err
	}

	if err := c.broadcast(ctx, wire.ClearResultMessage(cleared)); err != nil {
		return err
	}
	if err := ts.Commit(cleared, c.clock.Now()); err != nil {
		return err
	}
	c.trials = append(c.trials, ts)

	log.Info("trial committed", "cleared", cleared, "lines_cleared", c.game.LinesCleared())
	log.Record("trial", ts)
	if c.recorder != nil {
		if err := c.recorder.RecordTrial(ctx, ts); err != nil {
			return fmt.Errorf("record trial %d: %w", ts.Index, err)
		}
	}
	c.publish(event.NewTrialCommittedEvent(c.role, ts.Index, ts.Control, cleared, c.game.LinesCleared(), c.clock.Now()))
	return nil
}

// broadcast sends envs, in order, to every enabled peer.
func (c *Coordinator) broadcast(ctx context.Context, envs ...wire.Envelope) error {
	for _, peer := range c.enabled {
		for _, env := range envs {
			if err := c.ch.Send(ctx, peer, env); err != nil {
				return err
			}
		}
	}
	return nil
}
