// Package pacing provides the clock used for every pacing sleep of the trial
// protocol. Production code uses [Real]; tests substitute a fake clock so
// that multi-second protocol pauses complete instantly while the recorded
// timestamps still reflect the full schedule.
package pacing

import (
	"context"
	"time"
)

// Clock supplies the current time and blocking sleeps.
//
// Sleep blocks the calling goroutine for d. It returns early only when ctx
// is cancelled, which happens at process shutdown.
type Clock interface {
	Now() time.Time
	Sleep(ctx context.Context, d time.Duration) error
}

// Real is the wall clock.
type Real struct{}

// Now returns time.Now().
func (Real) Now() time.Time { return time.Now() }

// Sleep blocks for d or until ctx is done.
func (Real) Sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
