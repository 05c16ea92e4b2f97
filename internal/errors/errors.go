// Package errors provides centralized error definitions for brainnet.
//
// Every failure in the experiment core is fatal: a corrupted shared board,
// a broken peer link or a stalled signal stream cannot be repaired safely
// while a stimulation schedule is running. The package therefore does not
// model retries. It defines sentinel errors for each precondition, typed
// errors that carry the context needed to name the failed precondition in a
// terminal message, and classification helpers.
//
// # Error Types
//
//   - CodecError: board wire encoding failures (malformed message, shape mismatch)
//   - ProtocolError: coordinator/peer protocol failures (unreachable peer,
//     closed channel, bad handshake, unexpected or out-of-sequence message)
//   - SignalError: classifier input failures (starvation)
//   - ConfigError: configuration invariants detected before a trial starts
//
// # Usage
//
//	err := errors.NewProtocolError("waiting for decision", errors.ErrChannelClosed).
//		WithPeer("c1").WithRound(0, 1)
//	if errors.Is(err, errors.ErrChannelClosed) { ... }
//	fmt.Fprintln(os.Stderr, errors.Describe(err))
package errors

import (
	"errors"
	"fmt"
	"strings"
)

// Re-export standard library functions so callers only import this package.
var (
	Is     = errors.Is
	As     = errors.As
	Unwrap = errors.Unwrap
	New    = errors.New
	Join   = errors.Join
)

// Severity represents the severity level of an error.
type Severity int

const (
	// SeverityWarning is for conditions that are reported but not fatal.
	SeverityWarning Severity = iota
	// SeverityError is for failures that abort the current operation.
	SeverityError
	// SeverityFatal is for failures that must terminate the process.
	SeverityFatal
)

// String returns the string representation of the severity level.
func (s Severity) String() string {
	switch s {
	case SeverityWarning:
		return "warning"
	case SeverityError:
		return "error"
	case SeverityFatal:
		return "fatal"
	default:
		return "unknown"
	}
}

// -----------------------------------------------------------------------------
// Sentinel Errors
// -----------------------------------------------------------------------------

// Wire codec sentinel errors
var (
	// ErrMalformedMessage indicates a board message that cannot be parsed.
	ErrMalformedMessage = New("malformed message")
	// ErrShapeMismatch indicates a decoded board whose shape differs from the session shape.
	ErrShapeMismatch = New("board shape mismatch")
)

// Protocol sentinel errors
var (
	// ErrPeerUnreachable indicates a send to a peer that is not connected.
	ErrPeerUnreachable = New("peer unreachable")
	// ErrChannelClosed indicates the peer disconnected while a receive was pending.
	ErrChannelClosed = New("channel closed")
	// ErrHandshake indicates a non-READY message during the ready handshake.
	ErrHandshake = New("handshake failed")
	// ErrUnexpectedMessage indicates a message of the wrong kind for the current protocol state.
	ErrUnexpectedMessage = New("unexpected message")
	// ErrSequence indicates a lost or duplicated message.
	ErrSequence = New("message sequence violation")
	// ErrReceiveTimeout indicates that no message arrived within the configured receive timeout.
	ErrReceiveTimeout = New("receive timed out")
)

// Signal sentinel errors
var (
	// ErrSignalStarvation indicates that the live signal source stopped delivering packets.
	ErrSignalStarvation = New("signal source starved")
)

// Configuration sentinel errors
var (
	// ErrInvalidConfig indicates a configuration invariant violation.
	ErrInvalidConfig = New("invalid configuration")
)

// -----------------------------------------------------------------------------
// Base Error Implementation
// -----------------------------------------------------------------------------

// BrainnetError is the interface implemented by all typed errors in this package.
type BrainnetError interface {
	error
	Unwrap() error
	Severity() Severity
	// Precondition names the condition that failed, for terminal output.
	Precondition() string
}

type baseError struct {
	message  string
	cause    error
	severity Severity
}

func (e *baseError) Unwrap() error      { return e.cause }
func (e *baseError) Severity() Severity { return e.severity }

func (e *baseError) Is(target error) bool {
	if e.cause != nil {
		return errors.Is(e.cause, target)
	}
	return false
}

// format renders "prefix [k=v, ...]: message: cause".
func (e *baseError) format(prefix string, parts []string) string {
	if len(parts) > 0 {
		prefix = fmt.Sprintf("%s [%s]", prefix, strings.Join(parts, ", "))
	}
	if e.cause != nil {
		return fmt.Sprintf("%s: %s: %v", prefix, e.message, e.cause)
	}
	return fmt.Sprintf("%s: %s", prefix, e.message)
}

// -----------------------------------------------------------------------------
// CodecError
// -----------------------------------------------------------------------------

// CodecError represents a failure to decode a shared board message.
//
// Example:
//
//	err := errors.NewCodecError("field count", errors.ErrMalformedMessage).WithField("board")
type CodecError struct {
	baseError
	Field string
}

// NewCodecError creates a new CodecError.
func NewCodecError(message string, cause error) *CodecError {
	return &CodecError{baseError: baseError{message: message, cause: cause, severity: SeverityFatal}}
}

// WithField names the encoded field that failed to decode.
func (e *CodecError) WithField(field string) *CodecError {
	e.Field = field
	return e
}

func (e *CodecError) Error() string {
	var parts []string
	if e.Field != "" {
		parts = append(parts, "field="+e.Field)
	}
	return e.format("codec error", parts)
}

// Is checks if this error matches the target.
func (e *CodecError) Is(target error) bool {
	if _, ok := target.(*CodecError); ok {
		return true
	}
	return e.baseError.Is(target)
}

// Precondition implements BrainnetError.
func (e *CodecError) Precondition() string {
	if errors.Is(e.cause, ErrShapeMismatch) {
		return "board shape must stay fixed for the session"
	}
	return "board messages must be well formed"
}

// -----------------------------------------------------------------------------
// ProtocolError
// -----------------------------------------------------------------------------

// ProtocolError represents a coordinator/peer protocol failure.
//
// Example:
//
//	err := errors.NewProtocolError("awaiting ready", errors.ErrHandshake).WithPeer("c2")
type ProtocolError struct {
	baseError
	Peer  string
	Phase string
	Trial int
	Round int
	// hasPosition is set once WithRound has been called; trial 0 round 0 is a valid position.
	hasPosition bool
}

// NewProtocolError creates a new ProtocolError.
func NewProtocolError(message string, cause error) *ProtocolError {
	return &ProtocolError{baseError: baseError{message: message, cause: cause, severity: SeverityFatal}}
}

// WithPeer adds the remote peer identifier.
func (e *ProtocolError) WithPeer(peer string) *ProtocolError {
	e.Peer = peer
	return e
}

// WithPhase adds the protocol phase in which the failure happened.
func (e *ProtocolError) WithPhase(phase string) *ProtocolError {
	e.Phase = phase
	return e
}

// WithRound adds the trial and round indices.
func (e *ProtocolError) WithRound(trial, round int) *ProtocolError {
	e.Trial = trial
	e.Round = round
	e.hasPosition = true
	return e
}

func (e *ProtocolError) Error() string {
	var parts []string
	if e.Peer != "" {
		parts = append(parts, "peer="+e.Peer)
	}
	if e.Phase != "" {
		parts = append(parts, "phase="+e.Phase)
	}
	if e.hasPosition {
		parts = append(parts, fmt.Sprintf("trial=%d", e.Trial), fmt.Sprintf("round=%d", e.Round))
	}
	return e.format("protocol error", parts)
}

// Is checks if this error matches the target.
func (e *ProtocolError) Is(target error) bool {
	if _, ok := target.(*ProtocolError); ok {
		return true
	}
	return e.baseError.Is(target)
}

// Precondition implements BrainnetError.
func (e *ProtocolError) Precondition() string {
	switch {
	case errors.Is(e.cause, ErrPeerUnreachable):
		return "peer must be connected before messages are sent"
	case errors.Is(e.cause, ErrChannelClosed):
		return "peer must stay connected for the whole session"
	case errors.Is(e.cause, ErrHandshake):
		return "every enabled peer must announce READY first"
	case errors.Is(e.cause, ErrSequence):
		return "messages must arrive exactly once and in order"
	case errors.Is(e.cause, ErrReceiveTimeout):
		return "peer must answer within the receive timeout"
	default:
		return "peers must follow the round protocol"
	}
}

// -----------------------------------------------------------------------------
// SignalError
// -----------------------------------------------------------------------------

// SignalError represents a failure of the classifier input stream.
type SignalError struct {
	baseError
	Source string
}

// NewSignalError creates a new SignalError.
func NewSignalError(message string, cause error) *SignalError {
	return &SignalError{baseError: baseError{message: message, cause: cause, severity: SeverityFatal}}
}

// WithSource names the signal source.
func (e *SignalError) WithSource(source string) *SignalError {
	e.Source = source
	return e
}

func (e *SignalError) Error() string {
	var parts []string
	if e.Source != "" {
		parts = append(parts, "source="+e.Source)
	}
	return e.format("signal error", parts)
}

// Is checks if this error matches the target.
func (e *SignalError) Is(target error) bool {
	if _, ok := target.(*SignalError); ok {
		return true
	}
	return e.baseError.Is(target)
}

// Precondition implements BrainnetError.
func (e *SignalError) Precondition() string {
	return "signal source must deliver packets continuously"
}

// -----------------------------------------------------------------------------
// ConfigError
// -----------------------------------------------------------------------------

// ConfigError represents a configuration invariant violation.
type ConfigError struct {
	baseError
	Field string
	Value any
}

// NewConfigError creates a new ConfigError for the given field.
func NewConfigError(field string, value any, message string) *ConfigError {
	return &ConfigError{
		baseError: baseError{message: message, cause: ErrInvalidConfig, severity: SeverityFatal},
		Field:     field,
		Value:     value,
	}
}

func (e *ConfigError) Error() string {
	return fmt.Sprintf("config error [%s=%v]: %s", e.Field, e.Value, e.message)
}

// Is checks if this error matches the target.
func (e *ConfigError) Is(target error) bool {
	if _, ok := target.(*ConfigError); ok {
		return true
	}
	return e.baseError.Is(target)
}

// Precondition implements BrainnetError.
func (e *ConfigError) Precondition() string {
	return fmt.Sprintf("%s %s", e.Field, e.message)
}

// -----------------------------------------------------------------------------
// Classification
// -----------------------------------------------------------------------------

// IsFatal reports whether err must terminate the process. Every typed error
// in this package is fatal, as are the bare sentinels.
func IsFatal(err error) bool {
	if err == nil {
		return false
	}
	var be BrainnetError
	if errors.As(err, &be) {
		return be.Severity() == SeverityFatal
	}
	for _, sentinel := range []error{
		ErrMalformedMessage, ErrShapeMismatch,
		ErrPeerUnreachable, ErrChannelClosed, ErrHandshake, ErrUnexpectedMessage, ErrSequence, ErrReceiveTimeout,
		ErrSignalStarvation, ErrInvalidConfig,
	} {
		if errors.Is(err, sentinel) {
			return true
		}
	}
	return false
}

// GetSeverity returns the severity of err, SeverityError for untyped errors.
func GetSeverity(err error) Severity {
	var be BrainnetError
	if errors.As(err, &be) {
		return be.Severity()
	}
	return SeverityError
}

// Describe renders a one-line terminal message naming the failed precondition.
func Describe(err error) string {
	if err == nil {
		return ""
	}
	var be BrainnetError
	if errors.As(err, &be) {
		return fmt.Sprintf("%s: %s (%v)", be.Severity(), be.Precondition(), err)
	}
	return fmt.Sprintf("error: %v", err)
}

// Wrap wraps an error with additional context. Returns nil if err is nil.
func Wrap(err error, message string) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%s: %w", message, err)
}
