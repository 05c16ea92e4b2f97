package store

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Iron-Ham/brainnet/internal/trial"
	"github.com/Iron-Ham/brainnet/internal/wire"
)

var t0 = time.Date(2024, 3, 1, 9, 30, 0, 0, time.UTC)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open(filepath.Join(t.TempDir(), "data", "brainnet.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func sampleTrial(index int) *trial.TrialState {
	ts := trial.New(index, index%2 == 0, 2, t0)
	for r := range 2 {
		_ = ts.AddRound(trial.RoundDecision{
			Round:         r,
			BoardSentAt:   t0.Add(time.Duration(r) * time.Minute),
			PeerDecisions: map[string]wire.Decision{"c1": wire.Rotate, "c2": wire.DontRotate},
			Mocked:        []string{"c2"},
			DecidedAt:     t0.Add(time.Duration(r)*time.Minute + 30*time.Second),
			Firings:       []trial.Firing{{Peer: "c1", Level: 70, At: t0}, {Peer: "c2", Level: 55, At: t0.Add(10 * time.Second)}},
			Decision:      wire.Rotate,
			ClassifyStart: t0.Add(40 * time.Second),
			ClassifyEnd:   t0.Add(55 * time.Second),
			Early:         r == 1,
			Rotated:       true,
		})
	}
	_ = ts.Commit(true, t0.Add(3*time.Minute))
	return ts
}

func TestExperimentLifecycle(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	id, err := s.CreateExperiment(ctx, Experiment{Label: "pilot", Role: "coordinator", Condition: 3, HighIntensity: 70, LowIntensity: 55, StartedAt: t0})
	require.NoError(t, err)
	assert.NotEqual(t, uuid.Nil, id)

	e, err := s.GetExperiment(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, "pilot", e.Label)
	assert.Equal(t, 3, e.Condition)
	assert.True(t, e.StartedAt.Equal(t0))
	assert.True(t, e.FinishedAt.IsZero())

	require.NoError(t, s.FinishExperiment(ctx, id, t0.Add(time.Hour)))
	e, err = s.GetExperiment(ctx, id)
	require.NoError(t, err)
	assert.True(t, e.FinishedAt.Equal(t0.Add(time.Hour)))
}

func TestGetExperiment_NotFound(t *testing.T) {
	s := openTestStore(t)
	_, err := s.GetExperiment(context.Background(), uuid.New())
	assert.ErrorIs(t, err, ErrNotFound)

	err = s.FinishExperiment(context.Background(), uuid.New(), t0)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestSaveTrial(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()
	id, err := s.CreateExperiment(ctx, Experiment{Role: "coordinator", HighIntensity: 70, LowIntensity: 55})
	require.NoError(t, err)

	for i := range 3 {
		require.NoError(t, s.SaveTrial(ctx, id, sampleTrial(i)))
	}

	trials, err := s.ListTrials(ctx, id)
	require.NoError(t, err)
	require.Len(t, trials, 3)
	for i, ts := range trials {
		assert.Equal(t, i, ts.Index)
		assert.Equal(t, i%2 == 0, ts.Control)
		assert.True(t, ts.Cleared)
		assert.Equal(t, 2, ts.Rounds)
	}

	rounds, err := s.Rounds(ctx, id, 1)
	require.NoError(t, err)
	require.Len(t, rounds, 2)
	want := sampleTrial(1).Rounds
	for i, r := range rounds {
		assert.Equal(t, want[i].Round, r.Round)
		assert.Equal(t, want[i].PeerDecisions, r.PeerDecisions)
		assert.Equal(t, want[i].Mocked, r.Mocked)
		assert.Equal(t, wire.Rotate, r.Decision)
		assert.Equal(t, want[i].Early, r.Early)
		assert.True(t, r.Rotated)
		assert.True(t, r.DecidedAt.Equal(want[i].DecidedAt))
		require.Len(t, r.Firings, 2)
		assert.Equal(t, 55, r.Firings[1].Level)
	}
}

func TestSaveTrial_Duplicate(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()
	id, err := s.CreateExperiment(ctx, Experiment{Role: "c1", HighIntensity: 70, LowIntensity: 55})
	require.NoError(t, err)

	require.NoError(t, s.SaveTrial(ctx, id, sampleTrial(0)))
	assert.Error(t, s.SaveTrial(ctx, id, sampleTrial(0)))

	// The failed save must not leave partial rounds behind.
	trials, err := s.ListTrials(ctx, id)
	require.NoError(t, err)
	assert.Len(t, trials, 1)
}

func TestSaveTrial_UnknownExperiment(t *testing.T) {
	s := openTestStore(t)
	err := s.SaveTrial(context.Background(), uuid.New(), sampleTrial(0))
	assert.Error(t, err, "foreign keys are enforced")
}

func TestReopen(t *testing.T) {
	path := filepath.Join(t.TempDir(), "brainnet.db")
	s, err := Open(path)
	require.NoError(t, err)
	id, err := s.CreateExperiment(context.Background(), Experiment{Role: "coordinator", HighIntensity: 70, LowIntensity: 55})
	require.NoError(t, err)
	require.NoError(t, s.Close())

	s, err = Open(path)
	require.NoError(t, err)
	defer s.Close()
	_, err = s.GetExperiment(context.Background(), id)
	assert.NoError(t, err)
}

func TestTrialRecorder(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()
	id, err := s.CreateExperiment(ctx, Experiment{Role: "c2", HighIntensity: 70, LowIntensity: 55})
	require.NoError(t, err)

	rec := s.Recorder(id)
	require.NoError(t, rec.RecordTrial(ctx, sampleTrial(4)))

	trials, err := s.ListTrials(ctx, id)
	require.NoError(t, err)
	require.Len(t, trials, 1)
	assert.Equal(t, 4, trials[0].Index)
}
