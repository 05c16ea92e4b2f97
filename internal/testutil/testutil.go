// Package testutil provides testing utilities for brainnet tests.
package testutil

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"
)

// Epoch is the instant every FakeClock starts at.
var Epoch = time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC)

// FakeClock is a pacing clock whose sleeps return immediately after advancing
// the clock by the requested duration. Recorded timestamps therefore follow
// the full protocol schedule without the test waiting for it.
type FakeClock struct {
	mu     sync.Mutex
	now    time.Time
	sleeps []time.Duration
}

// NewFakeClock returns a FakeClock set to Epoch.
func NewFakeClock() *FakeClock {
	return &FakeClock{now: Epoch}
}

// Now returns the fake time.
func (c *FakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

// Sleep advances the clock by d and returns. A cancelled ctx is reported
// without advancing.
func (c *FakeClock) Sleep(ctx context.Context, d time.Duration) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if d > 0 {
		c.now = c.now.Add(d)
	}
	c.sleeps = append(c.sleeps, d)
	return nil
}

// Advance moves the clock forward without recording a sleep.
func (c *FakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

// Sleeps returns every duration passed to Sleep, in call order.
func (c *FakeClock) Sleeps() []time.Duration {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]time.Duration, len(c.sleeps))
	copy(out, c.sleeps)
	return out
}

// Elapsed returns how far the clock has moved since Epoch.
func (c *FakeClock) Elapsed() time.Duration {
	return c.Now().Sub(Epoch)
}

// Call is one recorded device call.
type Call struct {
	Op    string
	Level int
	At    time.Time
}

func (c Call) String() string {
	if c.Level != 0 {
		return fmt.Sprintf("%s(%d)", c.Op, c.Level)
	}
	return c.Op
}

// Recorder stores calls made to a fake device, stamped with a clock.
type Recorder struct {
	clock interface{ Now() time.Time }

	mu    sync.Mutex
	calls []Call
	fail  map[string]error
}

func newRecorder(clock interface{ Now() time.Time }) *Recorder {
	return &Recorder{clock: clock, fail: make(map[string]error)}
}

// FailOn makes every later call of op return err.
func (r *Recorder) FailOn(op string, err error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.fail[op] = err
}

func (r *Recorder) record(op string, level int) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if err, ok := r.fail[op]; ok {
		return err
	}
	r.calls = append(r.calls, Call{Op: op, Level: level, At: r.clock.Now()})
	return nil
}

// Calls returns the recorded calls in order.
func (r *Recorder) Calls() []Call {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]Call, len(r.calls))
	copy(out, r.calls)
	return out
}

// Ops returns the recorded calls formatted as strings, e.g. "fire(70)".
func (r *Recorder) Ops() []string {
	calls := r.Calls()
	out := make([]string, len(calls))
	for i, c := range calls {
		out[i] = c.String()
	}
	return out
}

// Only returns the calls whose Op equals op.
func (r *Recorder) Only(op string) []Call {
	var out []Call
	for _, c := range r.Calls() {
		if c.Op == op {
			out = append(out, c)
		}
	}
	return out
}

// Actuator records Arm, SetIntensity and Fire calls.
type Actuator struct{ *Recorder }

// NewActuator returns a recording actuator stamped by clock.
func NewActuator(clock interface{ Now() time.Time }) *Actuator {
	return &Actuator{Recorder: newRecorder(clock)}
}

func (a *Actuator) Arm(context.Context) error { return a.record("arm", 0) }

func (a *Actuator) SetIntensity(_ context.Context, level int) error {
	return a.record("intensity", level)
}

func (a *Actuator) Fire(_ context.Context, level int) error { return a.record("fire", level) }

// Lights records On and Off calls.
type Lights struct{ *Recorder }

// NewLights returns a recording light board stamped by clock.
func NewLights(clock interface{ Now() time.Time }) *Lights {
	return &Lights{Recorder: newRecorder(clock)}
}

func (l *Lights) On(context.Context) error  { return l.record("on", 0) }
func (l *Lights) Off(context.Context) error { return l.record("off", 0) }

// Eventually polls cond until it returns true or timeout elapses.
func Eventually(t *testing.T, timeout time.Duration, cond func() bool, msg string) {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("condition not met within %s: %s", timeout, msg)
}
