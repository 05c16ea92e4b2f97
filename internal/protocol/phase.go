// Package protocol implements the two roles of a brainnet session: the
// coordinator, which owns the authoritative board and the stimulator, and the
// peers, which classify their own signal and report a decision each round.
//
// Both roles run on a single control goroutine. They block only on channel
// calls and on pacing sleeps, and they talk to the screen exclusively through
// display commands. Every failure is fatal and is returned to the caller with
// the phase, trial and round in which it happened.
package protocol

import (
	"context"
	"fmt"
	"sync/atomic"

	apperrors "github.com/Iron-Ham/brainnet/internal/errors"
	"github.com/Iron-Ham/brainnet/internal/event"
	"github.com/Iron-Ham/brainnet/internal/pacing"
	"github.com/Iron-Ham/brainnet/internal/trial"
	"github.com/Iron-Ham/brainnet/internal/wire"
)

// Phase is a state of the coordinator or peer state machine.
type Phase int32

// Coordinator phases.
const (
	PhaseIdle Phase = iota
	PhaseAwaitPeersReady
	PhaseBroadcastBoard
	PhaseAwaitPeerDecisions
	PhaseActuateSignal
	PhaseRunLocalClassifier
	PhaseApplyDecision
	PhaseCommitTrial
	PhaseDone
)

// Peer phases.
const (
	PhaseSendReady Phase = iota + 100
	PhaseAwaitBoard
	PhaseClassify
	PhaseReportDecision
	PhaseAwaitCommit
)

var phaseNames = map[Phase]string{
	PhaseIdle:               "IDLE",
	PhaseAwaitPeersReady:    "AWAIT_PEERS_READY",
	PhaseBroadcastBoard:     "BROADCAST_BOARD",
	PhaseAwaitPeerDecisions: "AWAIT_PEER_DECISIONS",
	PhaseActuateSignal:      "ACTUATE_SIGNAL",
	PhaseRunLocalClassifier: "RUN_LOCAL_CLASSIFIER",
	PhaseApplyDecision:      "APPLY_DECISION",
	PhaseCommitTrial:        "COMMIT_TRIAL",
	PhaseDone:               "DONE",
	PhaseSendReady:          "SEND_READY",
	PhaseAwaitBoard:         "AWAIT_BOARD",
	PhaseClassify:           "CLASSIFY",
	PhaseReportDecision:     "REPORT_DECISION",
	PhaseAwaitCommit:        "AWAIT_COMMIT",
}

func (p Phase) String() string {
	if name, ok := phaseNames[p]; ok {
		return name
	}
	return fmt.Sprintf("Phase(%d)", int32(p))
}

// Prompts shown above the cursor task.
const (
	SenderPrompt   = "Should the piece be turned?"
	ReceiverPrompt = "Do you choose to turn the piece?"
)

// Recorder persists committed trials.
type Recorder interface {
	RecordTrial(ctx context.Context, t *trial.TrialState) error
}

// machine is the phase bookkeeping shared by both roles.
type machine struct {
	role  string
	phase atomic.Int32
	trial atomic.Int32
	round atomic.Int32
	clock pacing.Clock
	bus   *event.Bus
}

// Phase returns the current phase. It may be called from any goroutine.
func (m *machine) Phase() Phase { return Phase(m.phase.Load()) }

// Position returns the current trial and round.
func (m *machine) Position() (trialIndex, round int) {
	return int(m.trial.Load()), int(m.round.Load())
}

func (m *machine) enter(p Phase, trialIndex, round int) {
	prev := Phase(m.phase.Swap(int32(p)))
	m.trial.Store(int32(trialIndex))
	m.round.Store(int32(round))
	if prev != p {
		m.publish(event.NewPhaseChangeEvent(m.role, prev.String(), p.String(), trialIndex, round, m.clock.Now()))
	}
}

func (m *machine) publish(e event.Event) {
	if m.bus != nil {
		m.bus.Publish(e)
	}
}

// annotate stamps the current phase and position on protocol errors that
// do not carry them yet.
func (m *machine) annotate(err error) error {
	if err == nil {
		return nil
	}
	var pe *apperrors.ProtocolError
	if apperrors.As(err, &pe) && pe.Phase == "" {
		t, r := m.Position()
		pe.WithPhase(m.Phase().String()).WithRound(t, r)
	}
	return err
}

func expect(env wire.Envelope, kind wire.Kind, peer string) error {
	if env.Kind != kind {
		return apperrors.NewProtocolError(fmt.Sprintf("expected %s, got %s", kind, env.Kind), apperrors.ErrUnexpectedMessage).WithPeer(peer)
	}
	return nil
}
