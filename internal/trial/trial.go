// Package trial holds the bookkeeping of an experiment: per-round decision
// records, per-trial state and the condition files that fix the order of
// control and experimental trials.
package trial

import (
	"fmt"
	"time"

	"github.com/Iron-Ham/brainnet/internal/wire"
)

// Firing is one stimulation within a round.
type Firing struct {
	Peer  string    `json:"peer"`
	Level int       `json:"level"`
	At    time.Time `json:"at"`
}

// RoundDecision is everything decided in one round.
type RoundDecision struct {
	Round int `json:"round"`

	// BoardSentAt is when the coordinator broadcast the board, or when a
	// peer received it.
	BoardSentAt time.Time `json:"board_sent_at"`
	// PeerDecisions maps peer ID to its decision. Mocked peers are marked
	// in Mocked.
	PeerDecisions map[string]wire.Decision `json:"peer_decisions,omitempty"`
	Mocked        []string                 `json:"mocked,omitempty"`
	DecidedAt     time.Time                `json:"decided_at"`
	Firings       []Firing                 `json:"firings,omitempty"`

	// Decision is this node's own classifier result.
	Decision      wire.Decision `json:"decision"`
	ClassifyStart time.Time     `json:"classify_start"`
	ClassifyEnd   time.Time     `json:"classify_end"`
	Early         bool          `json:"early"`

	// Rotated is set when the coordinator actually turned the piece.
	Rotated bool `json:"rotated"`
}

// TrialState accumulates the rounds of one trial.
type TrialState struct {
	Index   int  `json:"trial"`
	Control bool `json:"control"`

	Rounds []RoundDecision `json:"rounds"`

	Cleared     bool      `json:"cleared"`
	StartedAt   time.Time `json:"started_at"`
	CommittedAt time.Time `json:"committed_at,omitzero"`

	numRounds int
}

// New starts the state of trial index.
func New(index int, control bool, numRounds int, startedAt time.Time) *TrialState {
	return &TrialState{
		Index:     index,
		Control:   control,
		Rounds:    make([]RoundDecision, 0, numRounds),
		StartedAt: startedAt,
		numRounds: numRounds,
	}
}

// Tag returns the wire tag of the trial.
func (t *TrialState) Tag() string {
	if t.Control {
		return wire.TagControl
	}
	return wire.TagExperimental
}

// AddRound appends the next round. Rounds must arrive in order and no more
// than the configured number are accepted.
func (t *TrialState) AddRound(r RoundDecision) error {
	if len(t.Rounds) >= t.numRounds {
		return fmt.Errorf("trial %d already has %d rounds", t.Index, t.numRounds)
	}
	if r.Round != len(t.Rounds) {
		return fmt.Errorf("trial %d: got round %d, want %d", t.Index, r.Round, len(t.Rounds))
	}
	t.Rounds = append(t.Rounds, r)
	return nil
}

// Complete reports whether every round has been recorded.
func (t *TrialState) Complete() bool { return len(t.Rounds) == t.numRounds }

// Commit marks the trial finished.
func (t *TrialState) Commit(cleared bool, at time.Time) error {
	if !t.Complete() {
		return fmt.Errorf("trial %d: commit after %d of %d rounds", t.Index, len(t.Rounds), t.numRounds)
	}
	t.Cleared = cleared
	t.CommittedAt = at
	return nil
}
