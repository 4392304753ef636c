// Package pace implements the pace-tracking engine for a fixed-distance run:
// distance accumulation between position samples, the descending checkpoint
// scheduler and the expected-versus-actual pace evaluation.
package pace

import (
	"errors"
	"fmt"
	"time"
)

// Sentinel errors for pace operations.
var (
	// ErrInvalidTargetDuration indicates the target finish time is missing,
	// malformed or not positive. A run cannot start without one.
	ErrInvalidTargetDuration = errors.New("invalid target duration")
	// ErrInvalidConfig indicates the distance, interval or tolerance values are unusable.
	ErrInvalidConfig = errors.New("invalid run config")
	// ErrNotRunning is returned when a sample is offered to a session that is not running.
	ErrNotRunning = errors.New("run is not running")
)

// Defaults for a 2.4 km run with callouts every 200 m.
const (
	DefaultTotalDistanceMeters   = 2400
	DefaultCalloutIntervalMeters = 200
	DefaultPaceToleranceSeconds  = 3
)

// RunConfig is fixed when a run starts and never changes during it.
type RunConfig struct {
	// TotalDistanceMeters is the length of the run.
	TotalDistanceMeters float64 `json:"totalDistanceMeters"`

	// CalloutIntervalMeters is the spacing between checkpoints.
	CalloutIntervalMeters float64 `json:"calloutIntervalMeters"`

	// PaceToleranceSeconds is the deviation still announced as good pace.
	PaceToleranceSeconds float64 `json:"paceToleranceSeconds"`

	// TargetDurationSeconds is the desired finish time.
	TargetDurationSeconds int `json:"targetDurationSeconds"`
}

// DefaultRunConfig returns the default distances and tolerance with no target set.
func DefaultRunConfig() RunConfig {
	return RunConfig{
		TotalDistanceMeters:   DefaultTotalDistanceMeters,
		CalloutIntervalMeters: DefaultCalloutIntervalMeters,
		PaceToleranceSeconds:  DefaultPaceToleranceSeconds,
	}
}

// WithTarget returns a copy of the config with the target duration set.
func (c RunConfig) WithTarget(seconds int) RunConfig {
	c.TargetDurationSeconds = seconds
	return c
}

// Validate reports whether the config can drive a run.
func (c RunConfig) Validate() error {
	switch {
	case c.TotalDistanceMeters <= 0:
		return fmt.Errorf("%w: total distance must be positive", ErrInvalidConfig)
	case c.CalloutIntervalMeters <= 0:
		return fmt.Errorf("%w: callout interval must be positive", ErrInvalidConfig)
	case c.PaceToleranceSeconds < 0:
		return fmt.Errorf("%w: pace tolerance must not be negative", ErrInvalidConfig)
	case c.TargetDurationSeconds <= 0:
		return ErrInvalidTargetDuration
	}
	return nil
}

// FirstCheckpoint is the remaining distance at which the first callout is due.
func (c RunConfig) FirstCheckpoint() float64 {
	return c.TotalDistanceMeters - c.CalloutIntervalMeters
}

// State is the lifecycle position of a Session.
type State int

// Session states. Running is the only state that consumes samples.
const (
	StateIdle State = iota
	StateRunning
	StateCompleted
	StateStopped
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateRunning:
		return "running"
	case StateCompleted:
		return "completed"
	case StateStopped:
		return "stopped"
	default:
		return "unknown"
	}
}

// MarshalText encodes the state as its name.
func (s State) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// UnmarshalText decodes a state name.
func (s *State) UnmarshalText(text []byte) error {
	for _, candidate := range []State{StateIdle, StateRunning, StateCompleted, StateStopped} {
		if candidate.String() == string(text) {
			*s = candidate
			return nil
		}
	}
	return fmt.Errorf("unknown run state %q", text)
}

// Verdict is the pace judgment attached to a callout.
type Verdict string

// Pace verdicts.
const (
	VerdictPaceGood Verdict = "pace_good"
	VerdictSlowDown Verdict = "slow_down"
	VerdictSpeedUp  Verdict = "speed_up"
)

// CalloutEvent is produced when a checkpoint is crossed and consumed
// immediately by the audio sink. It is never stored.
type CalloutEvent struct {
	RemainingMeters float64 `json:"remainingMeters"`
	ElapsedSeconds  float64 `json:"elapsedSeconds"`
	ExpectedSeconds float64 `json:"expectedSeconds"`
	// DeltaSeconds is expected minus actual elapsed, rounded.
	DeltaSeconds int     `json:"deltaSeconds"`
	Verdict      Verdict `json:"verdict"`
}

// Step is the outcome of feeding one sample into a running session.
type Step struct {
	Elapsed         time.Duration
	DistanceDelta   float64
	DistanceCovered float64
	Remaining       float64
	Callouts        []CalloutEvent
	Completed       bool
}

// Snapshot is a read-only view of a session.
type Snapshot struct {
	State           State     `json:"state"`
	StartedAt       time.Time `json:"startedAt"`
	DistanceCovered float64   `json:"distanceCoveredMeters"`
	Remaining       float64   `json:"remainingMeters"`
	NextCheckpoint  float64   `json:"nextCheckpointMeters"`
	Elapsed         float64   `json:"elapsedSeconds"`
	Display         string    `json:"display"`
}
