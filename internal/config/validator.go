package config

import (
	"fmt"
	"slices"
	"strings"
	"time"

	"github.com/Iron-Ham/brainnet/internal/actuation"
	apperrors "github.com/Iron-Ham/brainnet/internal/errors"
)

// ValidationError represents a single validation failure
type ValidationError struct {
	Field   string // The config field path (e.g., "actuation.low_intensity")
	Value   any    // The invalid value
	Message string // Human-readable error description
}

// Error implements the error interface for ValidationError
func (e ValidationError) Error() string {
	return fmt.Sprintf("%s: %s (got: %v)", e.Field, e.Message, e.Value)
}

// ValidationErrors is a collection of validation errors
type ValidationErrors []ValidationError

// Error implements the error interface for ValidationErrors
func (e ValidationErrors) Error() string {
	if len(e) == 0 {
		return ""
	}
	if len(e) == 1 {
		return e[0].Error()
	}

	var sb strings.Builder
	sb.WriteString(fmt.Sprintf("%d validation errors:\n", len(e)))
	for i, err := range e {
		sb.WriteString(fmt.Sprintf("  %d. %s\n", i+1, err.Error()))
	}
	return sb.String()
}

// Unwrap exposes each failure as a *errors.ConfigError so callers can match
// ErrInvalidConfig and describe the first failed invariant.
func (e ValidationErrors) Unwrap() []error {
	errs := make([]error, 0, len(e))
	for _, ve := range e {
		errs = append(errs, apperrors.NewConfigError(ve.Field, ve.Value, ve.Message))
	}
	return errs
}

// ValidLogLevels returns the list of valid log levels
func ValidLogLevels() []string {
	return []string{"debug", "info", "warn", "error"}
}

// Validate checks the Config for invalid values and returns all validation errors found
func (c *Config) Validate() []ValidationError {
	var errors []ValidationError

	errors = append(errors, c.validateExperiment()...)
	errors = append(errors, c.validateBoard()...)
	errors = append(errors, c.validateClassifier()...)
	errors = append(errors, c.validateActuation()...)
	errors = append(errors, c.validateTiming()...)
	errors = append(errors, c.validateNetwork()...)
	errors = append(errors, c.validatePeers()...)
	errors = append(errors, c.validateSignal()...)
	errors = append(errors, c.validateDisplay()...)
	errors = append(errors, c.validateLogging()...)

	return errors
}

func (c *Config) validateExperiment() []ValidationError {
	var errors []ValidationError

	if c.Experiment.Rounds < 1 {
		errors = append(errors, ValidationError{
			Field:   "experiment.rounds",
			Value:   c.Experiment.Rounds,
			Message: "must be at least 1",
		})
	}
	if c.Experiment.Condition < 0 {
		errors = append(errors, ValidationError{
			Field:   "experiment.condition",
			Value:   c.Experiment.Condition,
			Message: "must be non-negative",
		})
	}
	if c.Experiment.ExperimentalTrials < 0 || c.Experiment.ControlTrials < 0 {
		errors = append(errors, ValidationError{
			Field:   "experiment.experimental_trials",
			Value:   fmt.Sprintf("%d/%d", c.Experiment.ExperimentalTrials, c.Experiment.ControlTrials),
			Message: "trial counts must be non-negative",
		})
	}
	if c.Experiment.Conditions < 1 {
		errors = append(errors, ValidationError{
			Field:   "experiment.conditions",
			Value:   c.Experiment.Conditions,
			Message: "must be at least 1",
		})
	}

	return errors
}

func (c *Config) validateBoard() []ValidationError {
	var errors []ValidationError

	// A piece is generated from a 3-row slab above the floor.
	const minRows = 4
	if c.Board.Rows < minRows {
		errors = append(errors, ValidationError{
			Field:   "board.rows",
			Value:   c.Board.Rows,
			Message: fmt.Sprintf("must be at least %d", minRows),
		})
	}
	if c.Board.Cols < 3 || c.Board.Cols%3 != 0 {
		errors = append(errors, ValidationError{
			Field:   "board.cols",
			Value:   c.Board.Cols,
			Message: "must be a positive multiple of 3",
		})
	}

	return errors
}

func (c *Config) validateClassifier() []ValidationError {
	var errors []ValidationError
	cl := c.Classifier

	if cl.Step <= 0 {
		errors = append(errors, ValidationError{Field: "classifier.step", Value: cl.Step, Message: "must be positive"})
	}
	if cl.CursorRadius < 0 {
		errors = append(errors, ValidationError{Field: "classifier.cursor_radius", Value: cl.CursorRadius, Message: "must be non-negative"})
	}
	if cl.LeftBoundary() >= cl.Midpoint() || cl.RightBoundary() <= cl.Midpoint() {
		errors = append(errors, ValidationError{
			Field:   "classifier.boundary_margin",
			Value:   cl.BoundaryMargin,
			Message: fmt.Sprintf("boundaries must lie on either side of the midpoint of a %dpx track", cl.WindowWidth),
		})
	}
	if cl.HighFreq <= 0 || cl.LowFreq <= 0 || cl.HighFreq == cl.LowFreq {
		errors = append(errors, ValidationError{
			Field:   "classifier.high_freq",
			Value:   fmt.Sprintf("%d/%d", cl.HighFreq, cl.LowFreq),
			Message: "high_freq and low_freq must be positive and distinct",
		})
	}
	if cl.WindowDuration <= 0 {
		errors = append(errors, ValidationError{Field: "classifier.window_duration", Value: cl.WindowDuration, Message: "must be positive"})
	} else if cl.CollectDuration < cl.WindowDuration {
		errors = append(errors, ValidationError{
			Field:   "classifier.collect_duration",
			Value:   cl.CollectDuration,
			Message: "must be at least one window_duration",
		})
	}
	if cl.StarvationTimeout <= 0 {
		errors = append(errors, ValidationError{Field: "classifier.starvation_timeout", Value: cl.StarvationTimeout, Message: "must be positive"})
	}
	if cl.SimulatedSteps < 0 {
		errors = append(errors, ValidationError{Field: "classifier.simulated_steps", Value: cl.SimulatedSteps, Message: "must be non-negative"})
	}

	return errors
}

func (c *Config) validateActuation() []ValidationError {
	var errors []ValidationError
	low, high := c.Actuation.LowIntensity, c.Actuation.HighIntensity

	if low <= 0 {
		errors = append(errors, ValidationError{
			Field:   "actuation.low_intensity",
			Value:   low,
			Message: "must be greater than 0",
		})
	}
	if high >= 100 {
		errors = append(errors, ValidationError{
			Field:   "actuation.high_intensity",
			Value:   high,
			Message: "must be less than 100",
		})
	}
	if low >= high {
		errors = append(errors, ValidationError{
			Field:   "actuation.low_intensity",
			Value:   low,
			Message: fmt.Sprintf("must be less than actuation.high_intensity (%d)", high),
		})
	}

	return errors
}

func (c *Config) validateTiming() []ValidationError {
	var errors []ValidationError

	durations := []struct {
		field string
		value time.Duration
	}{
		{"timing.post_actuation", c.Timing.PostActuation},
		{"timing.pre_flash", c.Timing.PreFlash},
		{"timing.flash", c.Timing.Flash},
		{"timing.peer_board_view", c.Timing.PeerBoardView},
		{"timing.peer_feedback", c.Timing.PeerFeedback},
		{"timing.commit_step", c.Timing.CommitStep},
		{"timing.clear_hold", c.Timing.ClearHold},
	}
	for _, d := range durations {
		if d.value < 0 {
			errors = append(errors, ValidationError{Field: d.field, Value: d.value, Message: "must be non-negative"})
		}
	}

	if c.Timing.SafetyDelay < actuation.MinSafetyDelay {
		errors = append(errors, ValidationError{
			Field:   "timing.safety_delay",
			Value:   c.Timing.SafetyDelay,
			Message: fmt.Sprintf("must be at least %s", actuation.MinSafetyDelay),
		})
	}

	return errors
}

func (c *Config) validateNetwork() []ValidationError {
	var errors []ValidationError

	if c.Network.ReceiveTimeout < 0 {
		errors = append(errors, ValidationError{
			Field:   "network.receive_timeout",
			Value:   c.Network.ReceiveTimeout,
			Message: "must be non-negative (0 disables timeout)",
		})
	}
	if c.Network.CoordinatorURL != "" &&
		!strings.HasPrefix(c.Network.CoordinatorURL, "ws://") && !strings.HasPrefix(c.Network.CoordinatorURL, "wss://") {
		errors = append(errors, ValidationError{
			Field:   "network.coordinator_url",
			Value:   c.Network.CoordinatorURL,
			Message: "must be a ws:// or wss:// URL",
		})
	}

	return errors
}

func (c *Config) validatePeers() []ValidationError {
	var errors []ValidationError

	seen := make(map[string]bool)
	for _, id := range c.Peers.Enabled {
		if !slices.Contains(PeerIDs(), id) {
			errors = append(errors, ValidationError{
				Field:   "peers.enabled",
				Value:   id,
				Message: fmt.Sprintf("must be one of: %s", strings.Join(PeerIDs(), ", ")),
			})
			continue
		}
		if seen[id] {
			errors = append(errors, ValidationError{Field: "peers.enabled", Value: id, Message: "duplicate peer"})
		}
		seen[id] = true
	}

	return errors
}

func (c *Config) validateSignal() []ValidationError {
	var errors []ValidationError
	s := c.Signal

	if !slices.Contains(ValidSignalSources(), s.Source) {
		errors = append(errors, ValidationError{
			Field:   "signal.source",
			Value:   s.Source,
			Message: fmt.Sprintf("must be one of: %s", strings.Join(ValidSignalSources(), ", ")),
		})
		return errors
	}
	if s.Source == "simulated" {
		return errors
	}

	if s.SampleRate <= 0 {
		errors = append(errors, ValidationError{Field: "signal.sample_rate", Value: s.SampleRate, Message: "must be positive"})
	} else if c.Classifier.HighFreq*2 >= s.SampleRate || c.Classifier.LowFreq*2 >= s.SampleRate {
		errors = append(errors, ValidationError{
			Field:   "signal.sample_rate",
			Value:   s.SampleRate,
			Message: "must exceed twice the classifier frequencies",
		})
	}
	if s.PacketSize <= 0 {
		errors = append(errors, ValidationError{Field: "signal.packet_size", Value: s.PacketSize, Message: "must be positive"})
	}
	if s.Channel < 0 {
		errors = append(errors, ValidationError{Field: "signal.channel", Value: s.Channel, Message: "must be non-negative"})
	}
	if s.Source == "tcp" && s.Address == "" {
		errors = append(errors, ValidationError{Field: "signal.address", Value: s.Address, Message: "cannot be empty for the tcp source"})
	}

	return errors
}

func (c *Config) validateDisplay() []ValidationError {
	var errors []ValidationError

	const maxFPS = 120
	if c.Display.FPS < 1 || c.Display.FPS > maxFPS {
		errors = append(errors, ValidationError{
			Field:   "display.fps",
			Value:   c.Display.FPS,
			Message: fmt.Sprintf("must be between 1 and %d", maxFPS),
		})
	}

	return errors
}

func (c *Config) validateLogging() []ValidationError {
	var errors []ValidationError

	if c.Logging.Level != "" && !slices.Contains(ValidLogLevels(), strings.ToLower(c.Logging.Level)) {
		errors = append(errors, ValidationError{
			Field:   "logging.level",
			Value:   c.Logging.Level,
			Message: fmt.Sprintf("must be one of: %s", strings.Join(ValidLogLevels(), ", ")),
		})
	}

	return errors
}
