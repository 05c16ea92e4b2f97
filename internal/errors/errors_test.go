package errors

import (
	"errors"
	"fmt"
	"strings"
	"testing"
)

func TestSeverity_String(t *testing.T) {
	tests := []struct {
		severity Severity
		want     string
	}{
		{SeverityWarning, "warning"},
		{SeverityError, "error"},
		{SeverityFatal, "fatal"},
		{Severity(99), "unknown"},
	}

	for _, tt := range tests {
		t.Run(tt.want, func(t *testing.T) {
			if got := tt.severity.String(); got != tt.want {
				t.Errorf("Severity.String() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestCodecError(t *testing.T) {
	err := NewCodecError("expected 8 fields, got 3", ErrMalformedMessage).WithField("message")

	if !errors.Is(err, ErrMalformedMessage) {
		t.Error("expected errors.Is(err, ErrMalformedMessage)")
	}
	if errors.Is(err, ErrShapeMismatch) {
		t.Error("malformed message must not match ErrShapeMismatch")
	}
	var ce *CodecError
	if !errors.As(err, &ce) || ce.Field != "message" {
		t.Errorf("errors.As failed or wrong field: %+v", ce)
	}
	want := "codec error [field=message]: expected 8 fields, got 3: malformed message"
	if err.Error() != want {
		t.Errorf("Error() = %q, want %q", err.Error(), want)
	}
}

func TestProtocolError_Error(t *testing.T) {
	tests := []struct {
		name string
		err  *ProtocolError
		want string
	}{
		{
			name: "no context",
			err:  NewProtocolError("send failed", ErrPeerUnreachable),
			want: "protocol error: send failed: peer unreachable",
		},
		{
			name: "peer and position",
			err:  NewProtocolError("awaiting decision", ErrChannelClosed).WithPeer("c1").WithRound(0, 0),
			want: "protocol error [peer=c1, trial=0, round=0]: awaiting decision: channel closed",
		},
		{
			name: "phase",
			err:  NewProtocolError("awaiting ready", ErrHandshake).WithPhase("await_peers_ready"),
			want: "protocol error [phase=await_peers_ready]: awaiting ready: handshake failed",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.err.Error(); got != tt.want {
				t.Errorf("Error() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestProtocolError_Precondition(t *testing.T) {
	tests := []struct {
		cause error
		want  string
	}{
		{ErrPeerUnreachable, "connected"},
		{ErrChannelClosed, "stay connected"},
		{ErrHandshake, "READY"},
		{ErrSequence, "exactly once"},
		{ErrReceiveTimeout, "receive timeout"},
		{ErrUnexpectedMessage, "round protocol"},
	}
	for _, tt := range tests {
		t.Run(tt.cause.Error(), func(t *testing.T) {
			got := NewProtocolError("x", tt.cause).Precondition()
			if !strings.Contains(got, tt.want) {
				t.Errorf("Precondition() = %q, want it to contain %q", got, tt.want)
			}
		})
	}
}

func TestConfigError(t *testing.T) {
	err := NewConfigError("actuation.low_intensity", 80, "must be less than actuation.high_intensity")

	if !errors.Is(err, ErrInvalidConfig) {
		t.Error("ConfigError should match ErrInvalidConfig")
	}
	if !IsFatal(err) {
		t.Error("ConfigError should be fatal")
	}
	if !strings.Contains(Describe(err), "actuation.low_intensity must be less than") {
		t.Errorf("Describe() = %q", Describe(err))
	}
}

func TestIsFatal(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want bool
	}{
		{"nil", nil, false},
		{"plain", New("boom"), false},
		{"sentinel", ErrSignalStarvation, true},
		{"wrapped sentinel", fmt.Errorf("classify: %w", ErrShapeMismatch), true},
		{"typed", NewSignalError("no packet", ErrSignalStarvation).WithSource("tcp"), true},
		{"wrapped typed", Wrap(NewProtocolError("x", ErrSequence), "round"), true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := IsFatal(tt.err); got != tt.want {
				t.Errorf("IsFatal() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestDescribe(t *testing.T) {
	if Describe(nil) != "" {
		t.Error("Describe(nil) should be empty")
	}
	if got := Describe(New("boom")); got != "error: boom" {
		t.Errorf("Describe(plain) = %q", got)
	}
	got := Describe(NewSignalError("no packet in 1s", ErrSignalStarvation))
	if !strings.HasPrefix(got, "fatal: signal source must deliver packets continuously") {
		t.Errorf("Describe(signal) = %q", got)
	}
}

func TestGetSeverity(t *testing.T) {
	if GetSeverity(New("x")) != SeverityError {
		t.Error("untyped errors default to SeverityError")
	}
	if GetSeverity(NewCodecError("x", ErrShapeMismatch)) != SeverityFatal {
		t.Error("codec errors are fatal")
	}
}

func TestWrap(t *testing.T) {
	if Wrap(nil, "ctx") != nil {
		t.Error("Wrap(nil) should be nil")
	}
	err := Wrap(ErrHandshake, "peer c1")
	if !errors.Is(err, ErrHandshake) {
		t.Error("wrapped error should match its cause")
	}
	if err.Error() != "peer c1: handshake failed" {
		t.Errorf("Error() = %q", err.Error())
	}
}
