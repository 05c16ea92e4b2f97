// Package actuation drives the coordinator's physical outputs: the
// stimulator that relays each peer's decision and the light board shown
// during classification.
//
// Device drivers are outside this module. [Actuator] and [Lights] are the
// boundaries; [DryRun] and [NoLights] stand in when hardware is disabled.
package actuation

import (
	"context"

	"github.com/Iron-Ham/brainnet/internal/logging"
)

// Actuator is a stimulator that fires at a given intensity.
type Actuator interface {
	// Arm readies the device. It is called once before the first trial.
	Arm(ctx context.Context) error
	// SetIntensity preloads the intensity of the next firing so that Fire
	// can trigger with minimal latency.
	SetIntensity(ctx context.Context, level int) error
	Fire(ctx context.Context, level int) error
}

// Lights switches the stimulus light board.
type Lights interface {
	On(ctx context.Context) error
	Off(ctx context.Context) error
}

// DryRun logs every call instead of driving a device. It serves as both
// actuator and light board.
type DryRun struct {
	logger *logging.Logger
}

// NewDryRun returns a logging actuator.
func NewDryRun(logger *logging.Logger) *DryRun {
	if logger == nil {
		logger = logging.NopLogger()
	}
	return &DryRun{logger: logger}
}

func (d *DryRun) Arm(context.Context) error {
	d.logger.Info("dry-run actuator armed")
	return nil
}

func (d *DryRun) SetIntensity(_ context.Context, level int) error {
	d.logger.Debug("dry-run intensity", "level", level)
	return nil
}

func (d *DryRun) Fire(_ context.Context, level int) error {
	d.logger.Info("dry-run fire", "level", level)
	return nil
}

func (d *DryRun) On(context.Context) error {
	d.logger.Debug("dry-run lights on")
	return nil
}

func (d *DryRun) Off(context.Context) error {
	d.logger.Debug("dry-run lights off")
	return nil
}

// NoLights is a light board that does nothing.
type NoLights struct{}

func (NoLights) On(context.Context) error  { return nil }
func (NoLights) Off(context.Context) error { return nil }

var (
	_ Actuator = (*DryRun)(nil)
	_ Lights   = (*DryRun)(nil)
	_ Actuator = (*LineDevice)(nil)
	_ Lights   = (*LineDevice)(nil)
	_ Lights   = NoLights{}
)
