package event

import "time"

// Event is the interface that all events must implement.
// It provides a common way to identify and timestamp events.
type Event interface {
	// EventType returns a string identifier for this event type.
	// Convention: "category.action" (e.g., "round.completed").
	EventType() string

	// Timestamp returns when the event occurred.
	Timestamp() time.Time
}

// baseEvent provides common fields for all events.
// Embed this in concrete event types to satisfy the Event interface.
type baseEvent struct {
	eventType string
	timestamp time.Time
}

func (e baseEvent) EventType() string    { return e.eventType }
func (e baseEvent) Timestamp() time.Time { return e.timestamp }

func newBaseEvent(eventType string, at time.Time) baseEvent {
	return baseEvent{eventType: eventType, timestamp: at}
}

// Event types.
const (
	TypePeerReady          = "peer.ready"
	TypePhaseChanged       = "phase.changed"
	TypeRoundCompleted     = "round.completed"
	TypeTrialCommitted     = "trial.committed"
	TypeExperimentFinished = "experiment.finished"
)

// -----------------------------------------------------------------------------
// Handshake
// -----------------------------------------------------------------------------

// PeerReadyEvent is emitted when a peer completes the handshake.
type PeerReadyEvent struct {
	baseEvent
	Peer string
}

// NewPeerReadyEvent creates a PeerReadyEvent.
func NewPeerReadyEvent(peer string, at time.Time) PeerReadyEvent {
	return PeerReadyEvent{baseEvent: newBaseEvent(TypePeerReady, at), Peer: peer}
}

// -----------------------------------------------------------------------------
// Protocol progress
// -----------------------------------------------------------------------------

// PhaseChangeEvent is emitted when a node's protocol state machine moves to
// another state.
type PhaseChangeEvent struct {
	baseEvent
	Role     string // "coordinator", "c1" or "c2"
	Previous string
	Current  string
	Trial    int
	Round    int
}

// NewPhaseChangeEvent creates a PhaseChangeEvent.
func NewPhaseChangeEvent(role, previous, current string, trial, round int, at time.Time) PhaseChangeEvent {
	return PhaseChangeEvent{
		baseEvent: newBaseEvent(TypePhaseChanged, at),
		Role:      role,
		Previous:  previous,
		Current:   current,
		Trial:     trial,
		Round:     round,
	}
}

// RoundCompletedEvent is emitted when a node finishes a round.
type RoundCompletedEvent struct {
	baseEvent
	Role     string
	Trial    int
	Round    int
	Decision string
	Rotated  bool
}

// NewRoundCompletedEvent creates a RoundCompletedEvent.
func NewRoundCompletedEvent(role string, trial, round int, decision string, rotated bool, at time.Time) RoundCompletedEvent {
	return RoundCompletedEvent{
		baseEvent: newBaseEvent(TypeRoundCompleted, at),
		Role:      role,
		Trial:     trial,
		Round:     round,
		Decision:  decision,
		Rotated:   rotated,
	}
}

// TrialCommittedEvent is emitted after the piece of a trial has been
// dropped and rows cleared.
type TrialCommittedEvent struct {
	baseEvent
	Role         string
	Trial        int
	Control      bool
	Cleared      bool
	LinesCleared int // running total on the coordinator, 0 on peers
}

// NewTrialCommittedEvent creates a TrialCommittedEvent.
func NewTrialCommittedEvent(role string, trial int, control, cleared bool, linesCleared int, at time.Time) TrialCommittedEvent {
	return TrialCommittedEvent{
		baseEvent:    newBaseEvent(TypeTrialCommitted, at),
		Role:         role,
		Trial:        trial,
		Control:      control,
		Cleared:      cleared,
		LinesCleared: linesCleared,
	}
}

// ExperimentFinishedEvent is emitted once a node has run every trial.
type ExperimentFinishedEvent struct {
	baseEvent
	Role   string
	Trials int
}

// NewExperimentFinishedEvent creates an ExperimentFinishedEvent.
func NewExperimentFinishedEvent(role string, trials int, at time.Time) ExperimentFinishedEvent {
	return ExperimentFinishedEvent{baseEvent: newBaseEvent(TypeExperimentFinished, at), Role: role, Trials: trials}
}
