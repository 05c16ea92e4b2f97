// Package store persists experiment, trial and round records in SQLite.
package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite" // pure-Go SQLite driver

	"github.com/Iron-Ham/brainnet/internal/trial"
	"github.com/Iron-Ham/brainnet/internal/wire"
)

// ErrNotFound is returned when a requested row does not exist.
var ErrNotFound = errors.New("not found")

// --------- Data models ---------

// Experiment describes one run of the protocol on one node.
type Experiment struct {
	ID            uuid.UUID `json:"id"`
	Label         string    `json:"label"`
	Role          string    `json:"role"`
	Condition     int       `json:"condition"`
	HighIntensity int       `json:"high_intensity"`
	LowIntensity  int       `json:"low_intensity"`
	StartedAt     time.Time `json:"started_at"`
	FinishedAt    time.Time `json:"finished_at,omitzero"`
}

// TrialSummary is a stored trial without its rounds.
type TrialSummary struct {
	Index       int       `json:"trial"`
	Control     bool      `json:"control"`
	Cleared     bool      `json:"cleared"`
	Rounds      int       `json:"rounds"`
	StartedAt   time.Time `json:"started_at"`
	CommittedAt time.Time `json:"committed_at"`
}

// --------- Store ---------

type Store struct {
	db *sql.DB
}

// Open opens or creates the database at path and runs migrations.
func Open(path string) (*Store, error) {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create store directory: %w", err)
		}
	}
	dsn := fmt.Sprintf("file:%s?_pragma=busy_timeout(5000)&_pragma=foreign_keys(1)", path)
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, err
	}
	db.SetMaxOpenConns(1) // SQLite is not concurrent for writes
	s := &Store{db: db}
	if err := s.migrate(context.Background()); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate store: %w", err)
	}
	return s, nil
}

func (s *Store) Close() error { return s.db.Close() }

// --------- Migrations ---------

func (s *Store) migrate(ctx context.Context) error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS experiments (
			id TEXT PRIMARY KEY,
			label TEXT NOT NULL DEFAULT '',
			role TEXT NOT NULL,
			condition INTEGER NOT NULL,
			high_intensity INTEGER NOT NULL,
			low_intensity INTEGER NOT NULL,
			started_at TIMESTAMP NOT NULL,
			finished_at TIMESTAMP
		);`,

		`CREATE TABLE IF NOT EXISTS trials (
			experiment_id TEXT NOT NULL,
			trial_index INTEGER NOT NULL,
			control INTEGER NOT NULL,
			cleared INTEGER NOT NULL,
			started_at TIMESTAMP NOT NULL,
			committed_at TIMESTAMP NOT NULL,
			PRIMARY KEY(experiment_id, trial_index),
			FOREIGN KEY(experiment_id) REFERENCES experiments(id) ON DELETE CASCADE
		);`,

		`CREATE TABLE IF NOT EXISTS rounds (
			experiment_id TEXT NOT NULL,
			trial_index INTEGER NOT NULL,
			round_index INTEGER NOT NULL,
			board_sent_at TIMESTAMP NOT NULL,
			decided_at TIMESTAMP,
			peer_decisions TEXT NOT NULL DEFAULT '{}',
			mocked TEXT NOT NULL DEFAULT '[]',
			firings TEXT NOT NULL DEFAULT '[]',
			decision TEXT NOT NULL,
			classify_start TIMESTAMP NOT NULL,
			classify_end TIMESTAMP NOT NULL,
			early INTEGER NOT NULL,
			rotated INTEGER NOT NULL,
			PRIMARY KEY(experiment_id, trial_index, round_index),
			FOREIGN KEY(experiment_id, trial_index) REFERENCES trials(experiment_id, trial_index) ON DELETE CASCADE
		);`,
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	for _, q := range stmts {
		if _, err := tx.ExecContext(ctx, q); err != nil {
			tx.Rollback()
			return err
		}
	}
	return tx.Commit()
}

// --------- Experiments ---------

// CreateExperiment stores e, assigning a new ID when e.ID is zero, and
// returns the ID.
func (s *Store) CreateExperiment(ctx context.Context, e Experiment) (uuid.UUID, error) {
	if e.ID == uuid.Nil {
		e.ID = uuid.New()
	}
	if e.StartedAt.IsZero() {
		e.StartedAt = time.Now()
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO experiments (id, label, role, condition, high_intensity, low_intensity, started_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		e.ID.String(), e.Label, e.Role, e.Condition, e.HighIntensity, e.LowIntensity, e.StartedAt.UTC())
	if err != nil {
		return uuid.Nil, fmt.Errorf("insert experiment: %w", err)
	}
	return e.ID, nil
}

// FinishExperiment stamps the end time of an experiment.
func (s *Store) FinishExperiment(ctx context.Context, id uuid.UUID, at time.Time) error {
	res, err := s.db.ExecContext(ctx, `UPDATE experiments SET finished_at = ? WHERE id = ?`, at.UTC(), id.String())
	if err != nil {
		return fmt.Errorf("finish experiment: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("experiment %s: %w", id, ErrNotFound)
	}
	return nil
}

// GetExperiment loads one experiment.
func (s *Store) GetExperiment(ctx context.Context, id uuid.UUID) (Experiment, error) {
	var (
		e        Experiment
		idStr    string
		finished sql.NullTime
	)
	err := s.db.QueryRowContext(ctx,
		`SELECT id, label, role, condition, high_intensity, low_intensity, started_at, finished_at
		 FROM experiments WHERE id = ?`, id.String()).
		Scan(&idStr, &e.Label, &e.Role, &e.Condition, &e.HighIntensity, &e.LowIntensity, &e.StartedAt, &finished)
	if errors.Is(err, sql.ErrNoRows) {
		return Experiment{}, fmt.Errorf("experiment %s: %w", id, ErrNotFound)
	}
	if err != nil {
		return Experiment{}, fmt.Errorf("load experiment: %w", err)
	}
	if e.ID, err = uuid.Parse(idStr); err != nil {
		return Experiment{}, fmt.Errorf("experiment id %q: %w", idStr, err)
	}
	if finished.Valid {
		e.FinishedAt = finished.Time
	}
	return e, nil
}

// --------- Trials ---------

// SaveTrial stores a committed trial and its rounds atomically.
func (s *Store) SaveTrial(ctx context.Context, experimentID uuid.UUID, t *trial.TrialState) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	_, err = tx.ExecContext(ctx,
		`INSERT INTO trials (experiment_id, trial_index, control, cleared, started_at, committed_at)
		 VALUES (?, ?, ?, ?, ?, ?)`,
		experimentID.String(), t.Index, t.Control, t.Cleared, t.StartedAt.UTC(), t.CommittedAt.UTC())
	if err != nil {
		return fmt.Errorf("insert trial %d: %w", t.Index, err)
	}

	for _, r := range t.Rounds {
		peers, err := json.Marshal(r.PeerDecisions)
		if err != nil {
			return err
		}
		mocked, err := json.Marshal(r.Mocked)
		if err != nil {
			return err
		}
		firings, err := json.Marshal(r.Firings)
		if err != nil {
			return err
		}
		var decided sql.NullTime
		if !r.DecidedAt.IsZero() {
			decided = sql.NullTime{Time: r.DecidedAt.UTC(), Valid: true}
		}
		_, err = tx.ExecContext(ctx,
			`INSERT INTO rounds (experiment_id, trial_index, round_index, board_sent_at, decided_at,
				peer_decisions, mocked, firings, decision, classify_start, classify_end, early, rotated)
			 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			experimentID.String(), t.Index, r.Round, r.BoardSentAt.UTC(), decided,
			string(peers), string(mocked), string(firings), string(r.Decision),
			r.ClassifyStart.UTC(), r.ClassifyEnd.UTC(), r.Early, r.Rotated)
		if err != nil {
			return fmt.Errorf("insert trial %d round %d: %w", t.Index, r.Round, err)
		}
	}
	return tx.Commit()
}

// ListTrials returns the trials of an experiment in order.
func (s *Store) ListTrials(ctx context.Context, experimentID uuid.UUID) ([]TrialSummary, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT t.trial_index, t.control, t.cleared, t.started_at, t.committed_at,
			(SELECT COUNT(*) FROM rounds r WHERE r.experiment_id = t.experiment_id AND r.trial_index = t.trial_index)
		 FROM trials t WHERE t.experiment_id = ? ORDER BY t.trial_index`, experimentID.String())
	if err != nil {
		return nil, fmt.Errorf("list trials: %w", err)
	}
	defer rows.Close()

	var out []TrialSummary
	for rows.Next() {
		var ts TrialSummary
		if err := rows.Scan(&ts.Index, &ts.Control, &ts.Cleared, &ts.StartedAt, &ts.CommittedAt, &ts.Rounds); err != nil {
			return nil, err
		}
		out = append(out, ts)
	}
	return out, rows.Err()
}

// Rounds returns the stored rounds of one trial in order.
func (s *Store) Rounds(ctx context.Context, experimentID uuid.UUID, trialIndex int) ([]trial.RoundDecision, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT round_index, board_sent_at, decided_at, peer_decisions, mocked, firings, decision,
			classify_start, classify_end, early, rotated
		 FROM rounds WHERE experiment_id = ? AND trial_index = ? ORDER BY round_index`,
		experimentID.String(), trialIndex)
	if err != nil {
		return nil, fmt.Errorf("list rounds: %w", err)
	}
	defer rows.Close()

	var out []trial.RoundDecision
	for rows.Next() {
		var (
			r                      trial.RoundDecision
			decided                sql.NullTime
			peers, mocked, firings string
			decision               string
		)
		if err := rows.Scan(&r.Round, &r.BoardSentAt, &decided, &peers, &mocked, &firings, &decision,
			&r.ClassifyStart, &r.ClassifyEnd, &r.Early, &r.Rotated); err != nil {
			return nil, err
		}
		if decided.Valid {
			r.DecidedAt = decided.Time
		}
		r.Decision = wire.Decision(decision)
		if err := json.Unmarshal([]byte(peers), &r.PeerDecisions); err != nil {
			return nil, fmt.Errorf("round %d peer decisions: %w", r.Round, err)
		}
		if err := json.Unmarshal([]byte(mocked), &r.Mocked); err != nil {
			return nil, fmt.Errorf("round %d mocked peers: %w", r.Round, err)
		}
		if err := json.Unmarshal([]byte(firings), &r.Firings); err != nil {
			return nil, fmt.Errorf("round %d firings: %w", r.Round, err)
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

// TrialRecorder saves trials under one experiment.
type TrialRecorder struct {
	store *Store
	id    uuid.UUID
}

// Recorder returns a TrialRecorder bound to experimentID.
func (s *Store) Recorder(experimentID uuid.UUID) *TrialRecorder {
	return &TrialRecorder{store: s, id: experimentID}
}

// RecordTrial saves a committed trial.
func (r *TrialRecorder) RecordTrial(ctx context.Context, t *trial.TrialState) error {
	return r.store.SaveTrial(ctx, r.id, t)
}
