package protocol

import (
	"context"
	"math/rand/v2"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/sourcegraph/conc/pool"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Iron-Ham/brainnet/internal/actuation"
	"github.com/Iron-Ham/brainnet/internal/board"
	"github.com/Iron-Ham/brainnet/internal/channel"
	"github.com/Iron-Ham/brainnet/internal/classifier"
	"github.com/Iron-Ham/brainnet/internal/display"
	apperrors "github.com/Iron-Ham/brainnet/internal/errors"
	"github.com/Iron-Ham/brainnet/internal/event"
	"github.com/Iron-Ham/brainnet/internal/testutil"
	"github.com/Iron-Ham/brainnet/internal/trial"
	"github.com/Iron-Ham/brainnet/internal/wire"
)

const (
	rows   = 10
	cols   = 12
	rounds = 2
)

var (
	geom     = classifier.Geometry{WindowWidth: 1920, BoundaryMargin: 200, CursorRadius: 60, Step: 50}
	fireTime = actuation.Timing{PreFlash: 2 * time.Second, Flash: 800 * time.Millisecond, SafetyDelay: 8 * time.Second, Post: 5 * time.Second}
	levels   = actuation.Intensities{High: 70, Low: 55}
	peerIDs  = []string{"c1", "c2"}
)

type memRecorder struct {
	mu     sync.Mutex
	trials []*trial.TrialState
}

func (m *memRecorder) RecordTrial(_ context.Context, t *trial.TrialState) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.trials = append(m.trials, t)
	return nil
}

type coordinatorRig struct {
	c        *Coordinator
	game     *board.Game
	clock    *testutil.FakeClock
	act      *testutil.Actuator
	lights   *testutil.Lights
	bus      *event.Bus
	recorder *memRecorder
}

func newCoordinator(t *testing.T, ch channel.Channel, enabled []string, order trial.Order) *coordinatorRig {
	t.Helper()
	clock := testutil.NewFakeClock()
	d := display.New(display.NewQueue())
	act := testutil.NewActuator(clock)
	seq, err := actuation.NewSequencer(act, d, clock, fireTime, levels, nil)
	require.NoError(t, err)

	rig := &coordinatorRig{
		game:     board.NewGame(rows, cols, rand.New(rand.NewPCG(7, 11))),
		clock:    clock,
		act:      act,
		lights:   testutil.NewLights(clock),
		bus:      event.NewBus(nil),
		recorder: &memRecorder{},
	}
	rig.c, err = NewCoordinator(CoordinatorConfig{
		Channel:    ch,
		Game:       rig.game,
		Display:    d,
		Classifier: classifier.New(geom, 2*time.Second, d, clock, nil),
		Votes:      classifier.NewSimulated(2*time.Second, 2*time.Second, 5, clock),
		Sequencer:  seq,
		Lights:     rig.lights,
		Clock:      clock,
		Bus:        rig.bus,
		Recorder:   rig.recorder,
		Peers:      peerIDs,
		Enabled:    enabled,
		Rounds:     rounds,
		Order:      order,
		MockSeed:   42,
		Timing:     CoordinatorTiming{Step: time.Second, ClearHold: 2 * time.Second},
	})
	require.NoError(t, err)
	return rig
}

type peerRig struct {
	p      *Peer
	game   *board.Game
	lights *testutil.Lights
}

func newPeer(t *testing.T, id string, ch channel.Channel) *peerRig {
	t.Helper()
	clock := testutil.NewFakeClock()
	d := display.New(display.NewQueue())
	rig := &peerRig{game: board.NewGame(rows, cols, nil), lights: testutil.NewLights(clock)}
	var err error
	rig.p, err = NewPeer(PeerConfig{
		ID:         id,
		Channel:    ch,
		Game:       rig.game,
		Display:    d,
		Classifier: classifier.New(geom, 2*time.Second, d, clock, nil),
		Votes:      classifier.NewSimulated(2*time.Second, 2*time.Second, 5, clock),
		Lights:     rig.lights,
		Clock:      clock,
		Rounds:     rounds,
		Timing:     PeerTiming{BoardView: 10 * time.Second, Feedback: 3 * time.Second, Step: time.Second},
	})
	require.NoError(t, err)
	return rig
}

// runSession runs the coordinator and every peer to completion.
func runSession(t *testing.T, c *Coordinator, peers ...*Peer) error {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	p := pool.New().WithErrors().WithContext(ctx).WithCancelOnError()
	p.Go(c.Run)
	for _, peer := range peers {
		p.Go(peer.Run)
	}
	return p.Wait()
}

func TestSession_Local(t *testing.T) {
	coordEnd, ends := channel.NewLocalNetwork(channel.Options{}, peerIDs...)
	order := trial.Generate(1, 2, 1)
	coord := newCoordinator(t, coordEnd, peerIDs, order)
	c1 := newPeer(t, "c1", ends["c1"])
	c2 := newPeer(t, "c2", ends["c2"])

	var mu sync.Mutex
	var phases []string
	var commits []event.TrialCommittedEvent
	var ready int
	event.SubscribeTo(coord.bus, func(e event.PhaseChangeEvent) {
		mu.Lock()
		defer mu.Unlock()
		phases = append(phases, e.Current)
	})
	event.SubscribeTo(coord.bus, func(e event.TrialCommittedEvent) {
		mu.Lock()
		defer mu.Unlock()
		commits = append(commits, e)
	})
	event.SubscribeTo(coord.bus, func(event.PeerReadyEvent) {
		mu.Lock()
		defer mu.Unlock()
		ready++
	})

	require.NoError(t, runSession(t, coord.c, c1.p, c2.p))

	assert.Equal(t, PhaseDone, coord.c.Phase())
	assert.Equal(t, PhaseDone, c1.p.Phase())
	assert.Equal(t, PhaseDone, c2.p.Phase())

	trials := coord.c.Trials()
	require.Len(t, trials, len(order))
	for i, ts := range trials {
		assert.Equal(t, i, ts.Index)
		assert.Equal(t, order[i] == wire.TagControl, ts.Control)
		require.Len(t, ts.Rounds, rounds)
		for _, rd := range ts.Rounds {
			// The simulated source ends left of the midpoint on every run.
			assert.Equal(t, wire.Rotate, rd.Decision)
			assert.Equal(t, map[string]wire.Decision{"c1": wire.Rotate, "c2": wire.Rotate}, rd.PeerDecisions)
			assert.Empty(t, rd.Mocked)
			require.Len(t, rd.Firings, 2)
			assert.Equal(t, "c1", rd.Firings[0].Peer)
			assert.Equal(t, 70, rd.Firings[1].Level)
			assert.False(t, rd.ClassifyEnd.Before(rd.ClassifyStart))
		}
	}

	for _, peer := range []*peerRig{c1, c2} {
		got := peer.p.Trials()
		require.Len(t, got, len(order))
		for i, ts := range got {
			assert.Equal(t, trials[i].Control, ts.Control)
			assert.Equal(t, trials[i].Cleared, ts.Cleared, "peers agree on the clear result")
			require.Len(t, ts.Rounds, rounds)
			assert.Equal(t, wire.Rotate, ts.Rounds[0].Decision)
		}
		assert.True(t, peer.game.Board().Equal(coord.game.Board()), "peer board matches coordinator board")
		assert.Equal(t, coord.game.LinesCleared(), peer.game.LinesCleared())
		assert.Len(t, peer.lights.Only("on"), len(order)*rounds)
	}

	assert.Len(t, coord.act.Only("arm"), 1)
	assert.Len(t, coord.act.Only("fire"), len(order)*rounds*2)
	assert.Equal(t, []string{"on", "off", "on", "off"}, coord.lights.Ops()[:4])
	assert.Len(t, coord.recorder.trials, len(order))

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, 2, ready)
	require.Len(t, commits, len(order))
	assert.Equal(t, []string{
		"AWAIT_PEERS_READY",
		"BROADCAST_BOARD", "AWAIT_PEER_DECISIONS", "ACTUATE_SIGNAL", "RUN_LOCAL_CLASSIFIER", "APPLY_DECISION",
		"BROADCAST_BOARD", "AWAIT_PEER_DECISIONS", "ACTUATE_SIGNAL", "RUN_LOCAL_CLASSIFIER", "APPLY_DECISION",
		"COMMIT_TRIAL",
	}, phases[:12])
	assert.Equal(t, "DONE", phases[len(phases)-1])
}

func TestSession_SafetyDelayBetweenFirings(t *testing.T) {
	coordEnd, ends := channel.NewLocalNetwork(channel.Options{}, peerIDs...)
	coord := newCoordinator(t, coordEnd, peerIDs, trial.Order{wire.TagExperimental})
	require.NoError(t, runSession(t, coord.c, newPeer(t, "c1", ends["c1"]).p, newPeer(t, "c2", ends["c2"]).p))

	fires := coord.act.Only("fire")
	require.Len(t, fires, 4)
	for i := 0; i < len(fires); i += 2 {
		gap := fires[i+1].At.Sub(fires[i].At)
		assert.Equal(t, fireTime.SafetyDelay+fireTime.PreFlash+fireTime.Flash, gap)
	}
}

func TestSession_MockedPeer(t *testing.T) {
	coordEnd, ends := channel.NewLocalNetwork(channel.Options{}, "c1")
	order := trial.Order{wire.TagExperimental, wire.TagControl}
	coord := newCoordinator(t, coordEnd, []string{"c1"}, order)
	c1 := newPeer(t, "c1", ends["c1"])

	require.NoError(t, runSession(t, coord.c, c1.p))

	mock := rand.New(rand.NewPCG(42, 42))
	for _, ts := range coord.c.Trials() {
		for _, rd := range ts.Rounds {
			want := wire.DontRotate
			if mock.IntN(2) == 0 {
				want = wire.Rotate
			}
			assert.Equal(t, []string{"c2"}, rd.Mocked)
			assert.Equal(t, want, rd.PeerDecisions["c2"])
			assert.Equal(t, levels.For(want), rd.Firings[1].Level)
		}
	}
	assert.Len(t, c1.p.Trials(), len(order))
}

func TestSession_Websocket(t *testing.T) {
	hub := channel.NewHub(peerIDs, channel.Options{ReceiveTimeout: 5 * time.Second}, nil)
	srv := httptest.NewServer(hub.Handler())
	t.Cleanup(func() {
		_ = hub.Close()
		srv.Close()
	})
	url := "ws" + strings.TrimPrefix(srv.URL, "http") + channel.PeerPath

	order := trial.Order{wire.TagControl, wire.TagExperimental}
	coord := newCoordinator(t, hub, peerIDs, order)

	ctx := context.Background()
	var peers []*peerRig
	for _, id := range peerIDs {
		cl, err := channel.Dial(ctx, url, id, channel.Options{ReceiveTimeout: 5 * time.Second}, nil)
		require.NoError(t, err)
		t.Cleanup(func() { _ = cl.Close() })
		peers = append(peers, newPeer(t, id, cl))
	}

	require.NoError(t, runSession(t, coord.c, peers[0].p, peers[1].p))

	require.Len(t, coord.c.Trials(), len(order))
	for _, peer := range peers {
		require.Len(t, peer.p.Trials(), len(order))
		assert.True(t, peer.game.Board().Equal(coord.game.Board()))
	}
}

func TestCoordinator_HandshakeRejectsOtherMessages(t *testing.T) {
	coordEnd, ends := channel.NewLocalNetwork(channel.Options{}, peerIDs...)
	ctx := context.Background()
	require.NoError(t, ends["c1"].Send(ctx, channel.Coordinator, wire.DecisionMessage(wire.Rotate)))
	require.NoError(t, ends["c2"].Send(ctx, channel.Coordinator, wire.Ready()))

	coord := newCoordinator(t, coordEnd, peerIDs, trial.Order{wire.TagControl})
	err := coord.c.Run(ctx)
	require.ErrorIs(t, err, apperrors.ErrHandshake)

	var pe *apperrors.ProtocolError
	require.ErrorAs(t, err, &pe)
	assert.Equal(t, "c1", pe.Peer)
	assert.Equal(t, "AWAIT_PEERS_READY", pe.Phase)
	assert.True(t, apperrors.IsFatal(err))
}

func TestCoordinator_PeerGoneBeforeBroadcast(t *testing.T) {
	coordEnd, ends := channel.NewLocalNetwork(channel.Options{}, peerIDs...)
	ctx := context.Background()
	require.NoError(t, ends["c1"].Send(ctx, channel.Coordinator, wire.Ready()))
	require.NoError(t, ends["c1"].Close())
	require.NoError(t, ends["c2"].Send(ctx, channel.Coordinator, wire.Ready()))

	coord := newCoordinator(t, coordEnd, peerIDs, trial.Order{wire.TagControl})
	err := coord.c.Run(ctx)
	require.ErrorIs(t, err, apperrors.ErrPeerUnreachable)

	var pe *apperrors.ProtocolError
	require.ErrorAs(t, err, &pe)
	assert.Equal(t, "BROADCAST_BOARD", pe.Phase)
	assert.Equal(t, 0, pe.Trial)
	assert.Equal(t, 0, pe.Round)
	assert.Empty(t, coord.act.Only("fire"), "nothing fires after a failed broadcast")
}

func TestCoordinator_UnexpectedDecisionMessage(t *testing.T) {
	coordEnd, ends := channel.NewLocalNetwork(channel.Options{}, "c1")
	ctx := context.Background()
	require.NoError(t, ends["c1"].Send(ctx, channel.Coordinator, wire.Ready()))
	require.NoError(t, ends["c1"].Send(ctx, channel.Coordinator, wire.Ready()))

	coord := newCoordinator(t, coordEnd, []string{"c1"}, trial.Order{wire.TagControl})
	err := coord.c.Run(ctx)
	require.ErrorIs(t, err, apperrors.ErrUnexpectedMessage)

	var pe *apperrors.ProtocolError
	require.ErrorAs(t, err, &pe)
	assert.Equal(t, "AWAIT_PEER_DECISIONS", pe.Phase)
}

func TestPeer_EndsOnEnd(t *testing.T) {
	coordEnd, ends := channel.NewLocalNetwork(channel.Options{}, "c1")
	peer := newPeer(t, "c1", ends["c1"])
	ctx := context.Background()

	done := make(chan error, 1)
	go func() { done <- peer.p.Run(ctx) }()

	env, err := coordEnd.Receive(ctx, "c1")
	require.NoError(t, err)
	assert.Equal(t, wire.KindReady, env.Kind)
	require.NoError(t, coordEnd.Send(ctx, "c1", wire.End()))

	require.NoError(t, <-done)
	assert.Empty(t, peer.p.Trials())
	assert.Equal(t, PhaseDone, peer.p.Phase())
}

func TestPeer_RejectsTagInsteadOfBoard(t *testing.T) {
	coordEnd, ends := channel.NewLocalNetwork(channel.Options{}, "c1")
	peer := newPeer(t, "c1", ends["c1"])
	ctx := context.Background()

	done := make(chan error, 1)
	go func() { done <- peer.p.Run(ctx) }()

	_, err := coordEnd.Receive(ctx, "c1")
	require.NoError(t, err)
	require.NoError(t, coordEnd.Send(ctx, "c1", wire.TagMessage(true)))

	err = <-done
	require.ErrorIs(t, err, apperrors.ErrUnexpectedMessage)
	var pe *apperrors.ProtocolError
	require.ErrorAs(t, err, &pe)
	assert.Equal(t, "AWAIT_BOARD", pe.Phase)
}

func TestPeer_RejectsMalformedBoard(t *testing.T) {
	coordEnd, ends := channel.NewLocalNetwork(channel.Options{}, "c1")
	peer := newPeer(t, "c1", ends["c1"])
	ctx := context.Background()

	done := make(chan error, 1)
	go func() { done <- peer.p.Run(ctx) }()

	_, err := coordEnd.Receive(ctx, "c1")
	require.NoError(t, err)
	require.NoError(t, coordEnd.Send(ctx, "c1", wire.BoardMessage("not\ta\tboard")))

	assert.ErrorIs(t, <-done, apperrors.ErrMalformedMessage)
}

func TestPeer_CoordinatorDisconnects(t *testing.T) {
	coordEnd, ends := channel.NewLocalNetwork(channel.Options{}, "c1")
	peer := newPeer(t, "c1", ends["c1"])
	ctx := context.Background()

	done := make(chan error, 1)
	go func() { done <- peer.p.Run(ctx) }()

	_, err := coordEnd.Receive(ctx, "c1")
	require.NoError(t, err)
	coordEnd.Disconnect("c1")

	assert.ErrorIs(t, <-done, apperrors.ErrChannelClosed)
}

func TestNewCoordinator_Validation(t *testing.T) {
	coordEnd, _ := channel.NewLocalNetwork(channel.Options{}, peerIDs...)
	base := newCoordinator(t, coordEnd, peerIDs, trial.Order{wire.TagControl})
	valid := CoordinatorConfig{
		Channel:    coordEnd,
		Game:       base.game,
		Display:    base.c.display,
		Classifier: base.c.classifier,
		Votes:      base.c.votes,
		Sequencer:  base.c.seq,
		Peers:      peerIDs,
		Enabled:    peerIDs,
		Rounds:     rounds,
		Order:      trial.Order{wire.TagControl},
	}

	tests := []struct {
		name   string
		mutate func(*CoordinatorConfig)
	}{
		{"no channel", func(c *CoordinatorConfig) { c.Channel = nil }},
		{"no sequencer", func(c *CoordinatorConfig) { c.Sequencer = nil }},
		{"zero rounds", func(c *CoordinatorConfig) { c.Rounds = 0 }},
		{"empty order", func(c *CoordinatorConfig) { c.Order = nil }},
		{"unknown enabled peer", func(c *CoordinatorConfig) { c.Enabled = []string{"c3"} }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := valid
			tt.mutate(&cfg)
			_, err := NewCoordinator(cfg)
			assert.Error(t, err)
		})
	}

	_, err := NewCoordinator(valid)
	assert.NoError(t, err)
}

func TestPhase_String(t *testing.T) {
	assert.Equal(t, "ACTUATE_SIGNAL", PhaseActuateSignal.String())
	assert.Equal(t, "AWAIT_COMMIT", PhaseAwaitCommit.String())
	assert.Equal(t, "Phase(42)", Phase(42).String())
}
