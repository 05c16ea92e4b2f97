package actuation

import (
	"bytes"
	"context"
	"errors"
	"testing"
	"time"

	"github.com/Iron-Ham/brainnet/internal/display"
	apperrors "github.com/Iron-Ham/brainnet/internal/errors"
	"github.com/Iron-Ham/brainnet/internal/testutil"
	"github.com/Iron-Ham/brainnet/internal/wire"
)

var timing = Timing{
	PreFlash:    2 * time.Second,
	Flash:       800 * time.Millisecond,
	SafetyDelay: 8 * time.Second,
	Post:        5 * time.Second,
}

var levels = Intensities{High: 70, Low: 55}

func newSequencer(t *testing.T) (*Sequencer, *testutil.Actuator, *testutil.FakeClock, *display.Queue) {
	t.Helper()
	clock := testutil.NewFakeClock()
	act := testutil.NewActuator(clock)
	q := display.NewQueue()
	s, err := NewSequencer(act, display.New(q), clock, timing, levels, nil)
	if err != nil {
		t.Fatalf("NewSequencer() error = %v", err)
	}
	return s, act, clock, q
}

func TestIntensities_Validate(t *testing.T) {
	tests := []struct {
		name    string
		in      Intensities
		wantErr bool
	}{
		{"defaults", Intensities{High: 70, Low: 55}, false},
		{"equal", Intensities{High: 60, Low: 60}, true},
		{"inverted", Intensities{High: 55, Low: 70}, true},
		{"zero low", Intensities{High: 70, Low: 0}, true},
		{"high at ceiling", Intensities{High: 100, Low: 55}, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.in.Validate()
			if (err != nil) != tt.wantErr {
				t.Fatalf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
			if err != nil && !errors.Is(err, apperrors.ErrInvalidConfig) {
				t.Errorf("Validate() error = %v, want ErrInvalidConfig", err)
			}
		})
	}
}

func TestNewSequencer_RejectsBadIntensities(t *testing.T) {
	_, err := NewSequencer(NewDryRun(nil), display.New(display.NewQueue()), nil, timing, Intensities{High: 50, Low: 60}, nil)
	if !errors.Is(err, apperrors.ErrInvalidConfig) {
		t.Fatalf("NewSequencer() error = %v, want ErrInvalidConfig", err)
	}
}

func TestNewSequencer_SafetyDelayFloor(t *testing.T) {
	tests := []struct {
		name    string
		delay   time.Duration
		wantErr bool
	}{
		{"zero", 0, true},
		{"just under", 7900 * time.Millisecond, true},
		{"at floor", MinSafetyDelay, false},
		{"above floor", 10 * time.Second, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tm := timing
			tm.SafetyDelay = tt.delay
			_, err := NewSequencer(NewDryRun(nil), display.New(display.NewQueue()), nil, tm, levels, nil)
			if (err != nil) != tt.wantErr {
				t.Fatalf("NewSequencer(SafetyDelay=%s) error = %v, wantErr %v", tt.delay, err, tt.wantErr)
			}
			if err == nil {
				return
			}
			var cfgErr *apperrors.ConfigError
			if !errors.As(err, &cfgErr) || cfgErr.Field != "timing.safety_delay" {
				t.Errorf("NewSequencer() error = %v, want *ConfigError on timing.safety_delay", err)
			}
		})
	}
}

func TestFireTwice(t *testing.T) {
	tests := []struct {
		name      string
		decisions []PeerDecision
		want      []string
	}{
		{
			name:      "rotate then dont",
			decisions: []PeerDecision{{"c1", wire.Rotate}, {"c2", wire.DontRotate}},
			want:      []string{"intensity(70)", "fire(70)", "intensity(55)", "fire(55)"},
		},
		{
			name:      "both dont",
			decisions: []PeerDecision{{"c1", wire.DontRotate}, {"c2", wire.DontRotate}},
			want:      []string{"intensity(55)", "fire(55)", "intensity(55)", "fire(55)"},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s, act, clock, _ := newSequencer(t)
			firings, err := s.FireTwice(context.Background(), 1, tt.decisions)
			if err != nil {
				t.Fatalf("FireTwice() error = %v", err)
			}

			ops := act.Ops()
			if len(ops) != len(tt.want) {
				t.Fatalf("ops = %v, want %v", ops, tt.want)
			}
			for i := range tt.want {
				if ops[i] != tt.want[i] {
					t.Errorf("op[%d] = %s, want %s", i, ops[i], tt.want[i])
				}
			}

			if len(firings) != 2 {
				t.Fatalf("got %d firings, want 2", len(firings))
			}
			for i, f := range firings {
				if f.Peer != tt.decisions[i].Peer || f.Level != levels.For(tt.decisions[i].Decision) {
					t.Errorf("firing %d = %+v", i, f)
				}
			}

			// pre-flash + flash + safety + pre-flash + flash + post
			want := 2*(timing.PreFlash+timing.Flash) + timing.SafetyDelay + timing.Post
			if clock.Elapsed() != want {
				t.Errorf("sequence took %s, want %s", clock.Elapsed(), want)
			}
		})
	}
}

func TestFireTwice_SafetyDelay(t *testing.T) {
	s, act, _, _ := newSequencer(t)
	_, err := s.FireTwice(context.Background(), 2, []PeerDecision{{"c1", wire.Rotate}, {"c2", wire.Rotate}})
	if err != nil {
		t.Fatalf("FireTwice() error = %v", err)
	}

	fires := act.Only("fire")
	if len(fires) != 2 {
		t.Fatalf("got %d fires, want 2", len(fires))
	}
	gap := fires[1].At.Sub(fires[0].At)
	if gap < timing.SafetyDelay {
		t.Fatalf("second firing %s after the first, want at least %s", gap, timing.SafetyDelay)
	}
	if want := timing.SafetyDelay + timing.PreFlash + timing.Flash; gap != want {
		t.Errorf("gap = %s, want %s", gap, want)
	}
}

func TestFireTwice_DisplaySequence(t *testing.T) {
	s, _, _, q := newSequencer(t)
	if _, err := s.FireTwice(context.Background(), 1, []PeerDecision{{"c1", wire.Rotate}, {"c2", wire.Rotate}}); err != nil {
		t.Fatalf("FireTwice() error = %v", err)
	}

	var texts []string
	flashes := 0
	for _, cmd := range q.Drain() {
		switch cmd.Op {
		case display.OpSetText:
			texts = append(texts, cmd.Text)
		case display.OpFlash:
			flashes++
			if cmd.Color != display.FlashRed || cmd.For != timing.Flash {
				t.Errorf("flash = %s", cmd)
			}
		}
	}
	want := []string{"Stimulation from Sender1, Attempt 1", "Stimulation from Sender2, Attempt 1"}
	if len(texts) != 2 || texts[0] != want[0] || texts[1] != want[1] {
		t.Errorf("texts = %q, want %q", texts, want)
	}
	if flashes != 2 {
		t.Errorf("flashes = %d, want 2", flashes)
	}
}

func TestFireTwice_ActuatorError(t *testing.T) {
	s, act, _, _ := newSequencer(t)
	act.FailOn("fire", errors.New("coil overheated"))

	firings, err := s.FireTwice(context.Background(), 1, []PeerDecision{{"c1", wire.Rotate}, {"c2", wire.Rotate}})
	if err == nil {
		t.Fatal("FireTwice() should fail")
	}
	if len(firings) != 0 {
		t.Errorf("got %d firings, want 0", len(firings))
	}
}

func TestFireTwice_Cancelled(t *testing.T) {
	s, act, _, _ := newSequencer(t)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := s.FireTwice(ctx, 1, []PeerDecision{{"c1", wire.Rotate}, {"c2", wire.Rotate}})
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("FireTwice() error = %v, want context.Canceled", err)
	}
	if n := len(act.Only("fire")); n != 0 {
		t.Errorf("fired %d times after cancel", n)
	}
}

func TestLineDevice(t *testing.T) {
	var buf bytes.Buffer
	d := NewLineDevice(&buf)
	ctx := context.Background()

	for _, step := range []func() error{
		func() error { return d.Arm(ctx) },
		func() error { return d.SetIntensity(ctx, 70) },
		func() error { return d.Fire(ctx, 70) },
		func() error { return d.On(ctx) },
		func() error { return d.Off(ctx) },
	} {
		if err := step(); err != nil {
			t.Fatalf("device call error = %v", err)
		}
	}

	want := "ARM\nINTENSITY 70\nFIRE 70\nON\nOFF\n"
	if buf.String() != want {
		t.Errorf("device got %q, want %q", buf.String(), want)
	}
	if err := d.Close(); err != nil {
		t.Errorf("Close() error = %v", err)
	}
}

func TestDryRun(t *testing.T) {
	d := NewDryRun(nil)
	ctx := context.Background()
	if err := d.Arm(ctx); err != nil {
		t.Error(err)
	}
	if err := d.Fire(ctx, 55); err != nil {
		t.Error(err)
	}
	if err := d.On(ctx); err != nil {
		t.Error(err)
	}
}
