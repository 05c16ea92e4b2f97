package protocol

import (
	"context"
	"fmt"
	"time"

	"github.com/Iron-Ham/brainnet/internal/actuation"
	"github.com/Iron-Ham/brainnet/internal/board"
	"github.com/Iron-Ham/brainnet/internal/channel"
	"github.com/Iron-Ham/brainnet/internal/classifier"
	"github.com/Iron-Ham/brainnet/internal/display"
	"github.com/Iron-Ham/brainnet/internal/event"
	"github.com/Iron-Ham/brainnet/internal/logging"
	"github.com/Iron-Ham/brainnet/internal/pacing"
	"github.com/Iron-Ham/brainnet/internal/trial"
	"github.com/Iron-Ham/brainnet/internal/wire"
)

// Feedback shown to a peer after each trial.
const (
	FeedbackCleared = "You successfully cleared a line"
	FeedbackFailed  = "You failed to clear a line"
	WaitingText     = "Waiting for Receiver to make a decision"
)

// PeerTiming holds a peer's pauses.
type PeerTiming struct {
	// BoardView is how long the board is studied before classification.
	BoardView time.Duration
	// Feedback follows the decision report and the trial result.
	Feedback time.Duration
	// Step separates the commit animation steps.
	Step time.Duration
}

// PeerConfig wires a Peer.
type PeerConfig struct {
	ID         string
	Channel    channel.Channel
	Game       *board.Game
	Display    *display.Display
	Classifier *classifier.Classifier
	Votes      classifier.VoteSource
	Lights     actuation.Lights
	Clock      pacing.Clock
	Bus        *event.Bus
	Recorder   Recorder
	Logger     *logging.Logger

	Rounds int
	Timing PeerTiming
}

// Peer runs one sending node.
type Peer struct {
	machine

	id         string
	ch         channel.Channel
	game       *board.Game
	display    *display.Display
	classifier *classifier.Classifier
	votes      classifier.VoteSource
	lights     actuation.Lights
	recorder   Recorder
	logger     *logging.Logger
	rounds     int
	timing     PeerTiming

	trials []*trial.TrialState
}

// NewPeer validates cfg and returns a peer ready to Run.
func NewPeer(cfg PeerConfig) (*Peer, error) {
	switch {
	case cfg.ID == "":
		return nil, fmt.Errorf("peer: id is required")
	case cfg.Channel == nil:
		return nil, fmt.Errorf("peer %s: channel is required", cfg.ID)
	case cfg.Game == nil || cfg.Display == nil || cfg.Classifier == nil || cfg.Votes == nil:
		return nil, fmt.Errorf("peer %s: game, display and classifier are required", cfg.ID)
	case cfg.Rounds < 1:
		return nil, fmt.Errorf("peer %s: rounds must be at least 1", cfg.ID)
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

	p := &Peer{
		id:         cfg.ID,
		ch:         cfg.Channel,
		game:       cfg.Game,
		display:    cfg.Display,
		classifier: cfg.Classifier,
		votes:      cfg.Votes,
		lights:     cfg.Lights,
		recorder:   cfg.Recorder,
		logger:     cfg.Logger.WithRole("peer").WithPeer(cfg.ID),
		rounds:     cfg.Rounds,
		timing:     cfg.Timing,
	}
	p.machine.role = cfg.ID
	p.machine.clock = cfg.Clock
	p.machine.bus = cfg.Bus
	return p, nil
}

// Trials returns the trials seen so far. Call it after Run returns.
func (p *Peer) Trials() []*trial.TrialState { return p.trials }

// Run announces READY and follows the coordinator until it sends END.
func (p *Peer) Run(ctx context.Context) error {
	p.enter(PhaseSendReady, 0, 0)
	p.display.ShowCrosshair()
	if err := p.ch.Send(ctx, channel.Coordinator, wire.Ready()); err != nil {
		return p.annotate(err)
	}
	p.logger.Info("sent ready")

	for index := 0; ; index++ {
		done, err := p.runTrial(ctx, index)
		if err != nil {
			return p.annotate(err)
		}
		if done {
			break
		}
	}

	t, r := p.Position()
	p.enter(PhaseDone, t, r)
	p.publish(event.NewExperimentFinishedEvent(p.role, len(p.trials), p.clock.Now()))
	p.logger.Info("session ended", "trials", len(p.trials))
	return nil
}

// runTrial plays one trial. It reports done when the coordinator ends the
// session instead of sending a board.
func (p *Peer) runTrial(ctx context.Context, index int) (bool, error) {
	var ts *trial.TrialState
	for r := range p.rounds {
		p.enter(PhaseAwaitBoard, index, r)
		env, err := p.receive(ctx)
		if err != nil {
			return false, err
		}
		if r == 0 && env.Kind == wire.KindEnd {
			return true, nil
		}
		if err := p.restore(env); err != nil {
			return false, err
		}
		received := p.clock.Now()

		env, err = p.receive(ctx)
		if err != nil {
			return false, err
		}
		if err := expect(env, wire.KindTag, channel.Coordinator); err != nil {
			return false, err
		}
		control, err := env.Control()
		if err != nil {
			return false, err
		}
		if ts == nil {
			ts = trial.New(index, control, p.rounds, received)
			p.logger.WithTrial(index).Info("trial started", "tag", ts.Tag())
		}

		rd, err := p.runRound(ctx, ts, r, received)
		if err != nil {
			return false, err
		}
		if err := ts.AddRound(rd); err != nil {
			return false, err
		}
	}
	return false, p.commit(ctx, ts)
}

func (p *Peer) runRound(ctx context.Context, ts *trial.TrialState, r int, received time.Time) (trial.RoundDecision, error) {
	log := p.logger.WithTrial(ts.Index).WithRound(r)
	rd := trial.RoundDecision{Round: r, BoardSentAt: received}

	p.display.SetText("", 0, 0)
	p.display.SetBoard(p.game.Board(), p.game.Piece())
	p.display.ShowBoard()
	if err := p.clock.Sleep(ctx, p.timing.BoardView); err != nil {
		return rd, err
	}

	p.enter(PhaseClassify, ts.Index, r)
	if err := p.lights.On(ctx); err != nil {
		return rd, fmt.Errorf("lights on: %w", err)
	}
	res, err := p.classifier.Run(ctx, p.votes, SenderPrompt)
	if err != nil {
		return rd, err
	}
	if err := p.lights.Off(ctx); err != nil {
		return rd, fmt.Errorf("lights off: %w", err)
	}
	rd.Decision = res.Decision
	rd.ClassifyStart, rd.ClassifyEnd, rd.Early = res.Start, res.End, res.Early

	p.enter(PhaseReportDecision, ts.Index, r)
	if err := p.ch.Send(ctx, channel.Coordinator, wire.DecisionMessage(res.Decision)); err != nil {
		return rd, err
	}
	rd.DecidedAt = p.clock.Now()
	p.display.SetText(WaitingText, 0, 150)

	log.Info("decision sent", "decision", string(rd.Decision), "early", rd.Early)
	log.Record("round", rd)
	p.publish(event.NewRoundCompletedEvent(p.role, ts.Index, r, string(rd.Decision), false, p.clock.Now()))

	if err := p.clock.Sleep(ctx, p.timing.Feedback); err != nil {
		return rd, err
	}
	return rd, nil
}

func (p *Peer) commit(ctx context.Context, ts *trial.TrialState) error {
	log := p.logger.WithTrial(ts.Index)
	p.enter(PhaseAwaitCommit, ts.Index, p.rounds-1)

	env, err := p.receive(ctx)
	if err != nil {
		return err
	}
	if err := p.restore(env); err != nil {
		return err
	}

	p.display.SetText("", 0, 0)
	p.display.ShowFloor()
	p.display.SetBoard(p.game.Board(), p.game.Piece())
	p.display.ShowBoard()
	if err := p.clock.Sleep(ctx, p.timing.Step); err != nil {
		return err
	}
	p.game.Drop()
	p.display.SetBoard(p.game.Board(), p.game.Piece())
	if err := p.clock.Sleep(ctx, p.timing.Step); err != nil {
		return err
	}
	p.game.ClearRows()
	p.display.SetBoard(p.game.Board(), p.game.Piece())
	p.display.SetLinesCleared(p.game.LinesCleared())
	if err := p.clock.Sleep(ctx, p.timing.Step); err != nil {
		return err
	}

	env, err = p.receive(ctx)
	if err != nil {
		return err
	}
	if err := expect(env, wire.KindClearResult, channel.Coordinator); err != nil {
		return err
	}
	cleared, err := env.Cleared()
	if err != nil {
		return err
	}
	if cleared {
		p.display.SetText(FeedbackCleared, 0, 0)
	} else {
		p.display.SetText(FeedbackFailed, 0, 0)
	}
	if err := p.clock.Sleep(ctx, p.timing.Feedback); err != nil {
		return err
	}

	if err := ts.Commit(cleared, p.clock.Now()); err != nil {
		return err
	}
	p.trials = append(p.trials, ts)
	log.Info("trial finished", "cleared", cleared)
	log.Record("trial", ts)
	if p.recorder != nil {
		if err := p.recorder.RecordTrial(ctx, ts); err != nil {
			return fmt.Errorf("record trial %d: %w", ts.Index, err)
		}
	}
	p.publish(event.NewTrialCommittedEvent(p.role, ts.Index, ts.Control, cleared, p.game.LinesCleared(), p.clock.Now()))
	return nil
}

func (p *Peer) receive(ctx context.Context) (wire.Envelope, error) {
	return p.ch.Receive(ctx, channel.Coordinator)
}

// restore replaces the local board with the one carried by a BOARD message.
func (p *Peer) restore(env wire.Envelope) error {
	if err := expect(env, wire.KindBoard, channel.Coordinator); err != nil {
		return err
	}
	current := p.game.Board()
	b, piece, err := wire.Decode(env.Body, current.Rows(), current.Cols())
	if err != nil {
		return err
	}
	return p.game.Restore(b, piece)
}
