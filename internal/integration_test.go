// Package internal contains integration tests that verify the packages work
// together: a full session over the in-process network with the event bus
// and the record store attached to every node.
package internal

import (
	"context"
	"math/rand/v2"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/sourcegraph/conc/pool"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Iron-Ham/brainnet/internal/actuation"
	"github.com/Iron-Ham/brainnet/internal/board"
	"github.com/Iron-Ham/brainnet/internal/channel"
	"github.com/Iron-Ham/brainnet/internal/classifier"
	"github.com/Iron-Ham/brainnet/internal/config"
	"github.com/Iron-Ham/brainnet/internal/display"
	"github.com/Iron-Ham/brainnet/internal/event"
	"github.com/Iron-Ham/brainnet/internal/protocol"
	"github.com/Iron-Ham/brainnet/internal/store"
	"github.com/Iron-Ham/brainnet/internal/testutil"
	"github.com/Iron-Ham/brainnet/internal/trial"
	"github.com/Iron-Ham/brainnet/internal/wire"
)

type node struct {
	clock   *testutil.FakeClock
	display *display.Display
	loop    *display.Loop
	expID   uuid.UUID
}

func newNode(t *testing.T, st *store.Store, role string, cfg *config.Config) *node {
	t.Helper()
	q := display.NewQueue()
	id, err := st.CreateExperiment(context.Background(), store.Experiment{
		Label:         "integration",
		Role:          role,
		HighIntensity: cfg.Actuation.HighIntensity,
		LowIntensity:  cfg.Actuation.LowIntensity,
		StartedAt:     testutil.Epoch,
	})
	require.NoError(t, err)
	return &node{
		clock:   testutil.NewFakeClock(),
		display: display.New(q),
		loop:    display.NewLoop(q, display.NewState(cfg.Classifier.WindowWidth, cfg.Classifier.Midpoint()), display.NewHeadless(nil), cfg.Display.FPS),
		expID:   id,
	}
}

func (n *node) classifier(cfg *config.Config) (*classifier.Classifier, classifier.VoteSource) {
	c := cfg.Classifier
	geom := classifier.Geometry{WindowWidth: c.WindowWidth, BoundaryMargin: c.BoundaryMargin, CursorRadius: c.CursorRadius, Step: c.Step}
	return classifier.New(geom, c.TieBreakHold, n.display, n.clock, nil),
		classifier.NewSimulated(c.SimulatedWarmup, c.SimulatedInterval, c.SimulatedSteps, n.clock)
}

// TestSessionIntegration plays a short condition with both peers present and
// checks that the store, the event bus and the rendered scene agree with the
// coordinator's own account of the session.
func TestSessionIntegration(t *testing.T) {
	cfg := config.Default()
	order := trial.Generate(2, 2, 1)

	st, err := store.Open(filepath.Join(t.TempDir(), "brainnet.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = st.Close() })

	hub, ends := channel.NewLocalNetwork(channel.Options{ReceiveTimeout: 5 * time.Second}, config.PeerIDs()...)

	bus := event.NewBus(nil)
	var (
		mu        sync.Mutex
		committed []event.TrialCommittedEvent
		ready     []string
	)
	event.SubscribeTo(bus, func(e event.TrialCommittedEvent) {
		mu.Lock()
		committed = append(committed, e)
		mu.Unlock()
	})
	event.SubscribeTo(bus, func(e event.PeerReadyEvent) {
		mu.Lock()
		ready = append(ready, e.Peer)
		mu.Unlock()
	})

	c0 := newNode(t, st, channel.Coordinator, cfg)
	act := testutil.NewActuator(c0.clock)
	seq, err := actuation.NewSequencer(act, c0.display, c0.clock, actuation.Timing{
		PreFlash:    cfg.Timing.PreFlash,
		Flash:       cfg.Timing.Flash,
		SafetyDelay: cfg.Timing.SafetyDelay,
		Post:        cfg.Timing.PostActuation,
	}, actuation.Intensities{High: cfg.Actuation.HighIntensity, Low: cfg.Actuation.LowIntensity}, nil)
	require.NoError(t, err)

	cls, votes := c0.classifier(cfg)
	coord, err := protocol.NewCoordinator(protocol.CoordinatorConfig{
		Channel:    hub,
		Game:       board.NewGame(cfg.Board.Rows, cfg.Board.Cols, rand.New(rand.NewPCG(3, 5))),
		Display:    c0.display,
		Classifier: cls,
		Votes:      votes,
		Sequencer:  seq,
		Clock:      c0.clock,
		Bus:        bus,
		Recorder:   st.Recorder(c0.expID),
		Peers:      config.PeerIDs(),
		Enabled:    config.PeerIDs(),
		Rounds:     cfg.Experiment.Rounds,
		Order:      order,
		Timing:     protocol.CoordinatorTiming{Step: cfg.Timing.CommitStep, ClearHold: cfg.Timing.ClearHold},
	})
	require.NoError(t, err)

	peers := make(map[string]*protocol.Peer)
	peerNodes := make(map[string]*node)
	for _, id := range config.PeerIDs() {
		n := newNode(t, st, id, cfg)
		cls, votes := n.classifier(cfg)
		p, err := protocol.NewPeer(protocol.PeerConfig{
			ID:         id,
			Channel:    ends[id],
			Game:       board.NewGame(cfg.Board.Rows, cfg.Board.Cols, nil),
			Display:    n.display,
			Classifier: cls,
			Votes:      votes,
			Clock:      n.clock,
			Recorder:   st.Recorder(n.expID),
			Rounds:     cfg.Experiment.Rounds,
			Timing: protocol.PeerTiming{
				BoardView: cfg.Timing.PeerBoardView,
				Feedback:  cfg.Timing.PeerFeedback,
				Step:      cfg.Timing.CommitStep,
			},
		})
		require.NoError(t, err)
		peers[id] = p
		peerNodes[id] = n
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	p := pool.New().WithErrors().WithContext(ctx).WithCancelOnError()
	p.Go(coord.Run)
	for _, peer := range peers {
		p.Go(peer.Run)
	}
	require.NoError(t, p.Wait())

	ctx = context.Background()

	t.Run("store holds every trial of every node", func(t *testing.T) {
		summaries, err := st.ListTrials(ctx, c0.expID)
		require.NoError(t, err)
		require.Len(t, summaries, len(order))
		for i, s := range summaries {
			assert.Equal(t, i, s.Index)
			assert.Equal(t, order[i] == wire.TagControl, s.Control)
			assert.Equal(t, cfg.Experiment.Rounds, s.Rounds)
		}

		for id, n := range peerNodes {
			peerSummaries, err := st.ListTrials(ctx, n.expID)
			require.NoError(t, err, id)
			require.Len(t, peerSummaries, len(order), id)
			for i := range peerSummaries {
				assert.Equal(t, summaries[i].Cleared, peerSummaries[i].Cleared, "%s trial %d", id, i)
			}
		}
	})

	t.Run("stored rounds carry both firings", func(t *testing.T) {
		rounds, err := st.Rounds(ctx, c0.expID, 0)
		require.NoError(t, err)
		require.Len(t, rounds, cfg.Experiment.Rounds)
		for _, r := range rounds {
			require.Len(t, r.Firings, 2)
			assert.Equal(t, "c1", r.Firings[0].Peer)
			assert.Equal(t, "c2", r.Firings[1].Peer)
			assert.GreaterOrEqual(t, r.Firings[1].At.Sub(r.Firings[0].At), cfg.Timing.SafetyDelay)
		}
	})

	t.Run("bus saw every peer and every trial", func(t *testing.T) {
		mu.Lock()
		defer mu.Unlock()
		assert.ElementsMatch(t, config.PeerIDs(), ready)
		require.Len(t, committed, len(order))
		for i, e := range committed {
			assert.Equal(t, i, e.Trial)
		}
	})

	t.Run("scenes end on the committed board", func(t *testing.T) {
		c0.loop.Step(c0.clock.Now())
		want := c0.loop.Snapshot()
		for id, n := range peerNodes {
			n.loop.Step(n.clock.Now())
			got := n.loop.Snapshot()
			assert.Equal(t, want.LinesCleared, got.LinesCleared, id)
			assert.True(t, want.Board.Equal(got.Board), id)
		}
	})
}
