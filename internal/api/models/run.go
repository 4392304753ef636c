package models

import (
	"github.com/breatheroute/pacekeeper/internal/pace"
)

// CreateRunRequest starts a new run. Distances and tolerance fall back to
// the server defaults when omitted.
type CreateRunRequest struct {
	// TargetTime is the desired finish time as "minutes:seconds".
	TargetTime            string   `json:"targetTime"`
	TotalDistanceMeters   *float64 `json:"totalDistanceMeters,omitempty"`
	CalloutIntervalMeters *float64 `json:"calloutIntervalMeters,omitempty"`
	PaceToleranceSeconds  *float64 `json:"paceToleranceSeconds,omitempty"`
}

// Validate checks the optional overrides. The target time is checked when
// the run starts.
func (r *CreateRunRequest) Validate() []FieldError {
	var errs []FieldError
	if r.TotalDistanceMeters != nil && *r.TotalDistanceMeters <= 0 {
		errs = append(errs, FieldError{Field: "totalDistanceMeters", Message: "must be positive", Code: CodeOutOfRange})
	}
	if r.CalloutIntervalMeters != nil && *r.CalloutIntervalMeters <= 0 {
		errs = append(errs, FieldError{Field: "calloutIntervalMeters", Message: "must be positive", Code: CodeOutOfRange})
	}
	if r.PaceToleranceSeconds != nil && *r.PaceToleranceSeconds < 0 {
		errs = append(errs, FieldError{Field: "paceToleranceSeconds", Message: "must not be negative", Code: CodeOutOfRange})
	}
	return errs
}

// Apply returns base with the request's overrides applied.
func (r *CreateRunRequest) Apply(base pace.RunConfig) pace.RunConfig {
	if r.TotalDistanceMeters != nil {
		base.TotalDistanceMeters = *r.TotalDistanceMeters
	}
	if r.CalloutIntervalMeters != nil {
		base.CalloutIntervalMeters = *r.CalloutIntervalMeters
	}
	if r.PaceToleranceSeconds != nil {
		base.PaceToleranceSeconds = *r.PaceToleranceSeconds
	}
	return base
}

// StartRunRequest starts a fresh attempt of an existing run.
type StartRunRequest struct {
	// TargetTime is the desired finish time as "minutes:seconds".
	TargetTime string `json:"targetTime"`
}

// FixRequest is one position sample pushed by the runner's device.
type FixRequest struct {
	Lat            *float64   `json:"lat"`
	Lon            *float64   `json:"lon"`
	Timestamp      *Timestamp `json:"timestamp,omitempty"`
	AccuracyMeters float64    `json:"accuracy,omitempty"`
}

// Validate checks that coordinates are present and in range.
func (r *FixRequest) Validate() []FieldError {
	var errs []FieldError
	switch {
	case r.Lat == nil:
		errs = append(errs, FieldError{Field: "lat", Message: "latitude is required", Code: CodeRequired})
	case *r.Lat < -90 || *r.Lat > 90:
		errs = append(errs, FieldError{Field: "lat", Message: "must be between -90 and 90", Code: CodeOutOfRange})
	}
	switch {
	case r.Lon == nil:
		errs = append(errs, FieldError{Field: "lon", Message: "longitude is required", Code: CodeRequired})
	case *r.Lon < -180 || *r.Lon > 180:
		errs = append(errs, FieldError{Field: "lon", Message: "must be between -180 and 180", Code: CodeOutOfRange})
	}
	if r.AccuracyMeters < 0 {
		errs = append(errs, FieldError{Field: "accuracy", Message: "must not be negative", Code: CodeOutOfRange})
	}
	return errs
}

// PositionOptions tells the device how to acquire fixes for a run.
type PositionOptions struct {
	MaximumAgeMillis   int64 `json:"maximumAge"`
	EnableHighAccuracy bool  `json:"enableHighAccuracy"`
	TimeoutMillis      int64 `json:"timeout"`
}

// Run is the API view of a run.
type Run struct {
	RunID     string         `json:"runId"`
	CreatedAt Timestamp      `json:"createdAt"`
	Config    pace.RunConfig `json:"config"`
	Status    RunStatus      `json:"status"`
	// Position is present while the run is subscribed to fixes.
	Position *PositionOptions `json:"position,omitempty"`
}

// RunStatus is a point-in-time view of a run's progress.
type RunStatus struct {
	State                 pace.State `json:"state"`
	StartedAt             *Timestamp `json:"startedAt,omitempty"`
	DistanceCoveredMeters float64    `json:"distanceCoveredMeters"`
	RemainingMeters       float64    `json:"remainingMeters"`
	NextCheckpointMeters  float64    `json:"nextCheckpointMeters"`
	ElapsedSeconds        float64    `json:"elapsedSeconds"`
	Display               string     `json:"display"`
}

// NewRunStatus converts a session snapshot.
func NewRunStatus(s pace.Snapshot) RunStatus {
	return RunStatus{
		State:                 s.State,
		StartedAt:             TimestampPtr(s.StartedAt),
		DistanceCoveredMeters: s.DistanceCovered,
		RemainingMeters:       s.Remaining,
		NextCheckpointMeters:  s.NextCheckpoint,
		ElapsedSeconds:        s.Elapsed,
		Display:               s.Display,
	}
}

// RunList is returned by the list endpoint.
type RunList struct {
	Items []Run `json:"items"`
}
