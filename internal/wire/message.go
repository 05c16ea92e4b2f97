package wire

import (
	"fmt"

	apperrors "github.com/Iron-Ham/brainnet/internal/errors"
)

// Kind identifies a message. The set of kinds is closed.
type Kind string

const (
	KindReady       Kind = "READY"
	KindBoard       Kind = "BOARD"
	KindTag         Kind = "TAG"
	KindDecision    Kind = "DECISION"
	KindClearResult Kind = "CLEAR_RESULT"
	KindEnd         Kind = "END"
)

// Valid reports whether k is a known kind.
func (k Kind) Valid() bool {
	switch k {
	case KindReady, KindBoard, KindTag, KindDecision, KindClearResult, KindEnd:
		return true
	}
	return false
}

// Decision is a binary classification outcome.
type Decision string

const (
	Rotate     Decision = "ROTATE"
	DontRotate Decision = "DONT_ROTATE"
)

// Valid reports whether d is ROTATE or DONT_ROTATE.
func (d Decision) Valid() bool { return d == Rotate || d == DontRotate }

// Tag bodies. A control trial starts with the piece upright.
const (
	TagControl      = "Control"
	TagExperimental = "Experimental"
)

// Envelope is the unit carried by a message channel. Seq is stamped by the
// sending endpoint, one counter per direction, starting at 1.
type Envelope struct {
	Kind Kind   `json:"kind"`
	Seq  uint64 `json:"seq"`
	Body string `json:"body,omitempty"`
}

// Validate rejects envelopes with an unknown kind or an invalid body.
func (e Envelope) Validate() error {
	if !e.Kind.Valid() {
		return apperrors.NewCodecError(fmt.Sprintf("unknown message kind %q", e.Kind), apperrors.ErrMalformedMessage).WithField("kind")
	}
	var err error
	switch e.Kind {
	case KindTag:
		_, err = e.Control()
	case KindDecision:
		_, err = e.Decision()
	case KindClearResult:
		_, err = e.Cleared()
	}
	return err
}

// Ready announces that a peer is ready to start.
func Ready() Envelope { return Envelope{Kind: KindReady} }

// End tells peers that the session is over.
func End() Envelope { return Envelope{Kind: KindEnd} }

// BoardMessage carries an encoded board.
func BoardMessage(encoded string) Envelope {
	return Envelope{Kind: KindBoard, Body: encoded}
}

// TagMessage carries the control/experimental tag of the current trial.
func TagMessage(control bool) Envelope {
	if control {
		return Envelope{Kind: KindTag, Body: TagControl}
	}
	return Envelope{Kind: KindTag, Body: TagExperimental}
}

// DecisionMessage carries a peer's decision.
func DecisionMessage(d Decision) Envelope {
	return Envelope{Kind: KindDecision, Body: string(d)}
}

// ClearResultMessage tells peers whether the committed trial cleared a row.
func ClearResultMessage(cleared bool) Envelope {
	if cleared {
		return Envelope{Kind: KindClearResult, Body: "True"}
	}
	return Envelope{Kind: KindClearResult, Body: "False"}
}

// Control parses a TAG body.
func (e Envelope) Control() (bool, error) {
	switch e.Body {
	case TagControl:
		return true, nil
	case TagExperimental:
		return false, nil
	}
	return false, apperrors.NewCodecError(fmt.Sprintf("unknown trial tag %q", e.Body), apperrors.ErrMalformedMessage).WithField("tag")
}

// Decision parses a DECISION body.
func (e Envelope) Decision() (Decision, error) {
	d := Decision(e.Body)
	if !d.Valid() {
		return "", apperrors.NewCodecError(fmt.Sprintf("unknown decision %q", e.Body), apperrors.ErrMalformedMessage).WithField("decision")
	}
	return d, nil
}

// Cleared parses a CLEAR_RESULT body.
func (e Envelope) Cleared() (bool, error) {
	switch e.Body {
	case "True":
		return true, nil
	case "False":
		return false, nil
	}
	return false, apperrors.NewCodecError(fmt.Sprintf("unknown clear result %q", e.Body), apperrors.ErrMalformedMessage).WithField("clear_result")
}
