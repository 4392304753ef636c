package pace

import (
	"time"

	"github.com/breatheroute/pacekeeper/pkg/geo"
)

// Session is the state of a single run. It is owned by one consumer and is
// not safe for concurrent use; callers serialize access.
type Session struct {
	cfg   RunConfig
	state State

	startedAt time.Time
	endedAt   time.Time
	last      geo.Point
	hasLast   bool

	covered float64
	// nextCallout is the remaining distance of the next unfired checkpoint.
	nextCallout float64
}

// NewSession creates an idle session. The config must be valid, including a
// positive target duration.
func NewSession(cfg RunConfig) (*Session, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &Session{
		cfg:         cfg,
		nextCallout: cfg.FirstCheckpoint(),
	}, nil
}

// Config returns the immutable run config.
func (s *Session) Config() RunConfig {
	return s.cfg
}

// State returns the current lifecycle state.
func (s *Session) State() State {
	return s.state
}

// Start resets the accumulated state and begins consuming samples.
func (s *Session) Start(now time.Time) {
	s.state = StateRunning
	s.startedAt = now
	s.endedAt = time.Time{}
	s.hasLast = false
	s.last = geo.Point{}
	s.covered = 0
	s.nextCallout = s.cfg.FirstCheckpoint()
}

// Stop ends a running session without completion.
func (s *Session) Stop(now time.Time) {
	if s.state == StateRunning {
		s.state = StateStopped
		s.endedAt = now
	}
}

// Advance feeds one position sample. The first sample only establishes the
// reference position. Every checkpoint crossed since the previous sample
// fires, in descending order, before completion is evaluated.
func (s *Session) Advance(p geo.Point, now time.Time) (Step, error) {
	if s.state != StateRunning {
		return Step{}, ErrNotRunning
	}

	step := Step{Elapsed: s.Elapsed(now)}

	if s.hasLast {
		step.DistanceDelta = geo.Distance(s.last, p)
		s.covered += step.DistanceDelta
	}
	s.last = p
	s.hasLast = true

	remaining := s.cfg.TotalDistanceMeters - s.covered
	step.DistanceCovered = s.covered
	step.Remaining = remaining

	for remaining <= s.nextCallout && s.nextCallout > 0 {
		step.Callouts = append(step.Callouts, Evaluate(s.nextCallout, step.Elapsed.Seconds(), s.cfg))
		s.nextCallout -= s.cfg.CalloutIntervalMeters
	}

	if remaining <= 0 {
		s.state = StateCompleted
		s.endedAt = now
		step.Completed = true
	}

	return step, nil
}

// Elapsed is derived from the start timestamp; there is no separate counter.
// It freezes once the session completes or stops.
func (s *Session) Elapsed(now time.Time) time.Duration {
	if s.state == StateIdle {
		return 0
	}
	if !s.endedAt.IsZero() {
		now = s.endedAt
	}
	if now.Before(s.startedAt) {
		return 0
	}
	return now.Sub(s.startedAt)
}

// Snapshot returns the session as seen at now.
func (s *Session) Snapshot(now time.Time) Snapshot {
	elapsed := s.Elapsed(now)
	next := s.nextCallout
	if next < 0 {
		next = 0
	}
	return Snapshot{
		State:           s.state,
		StartedAt:       s.startedAt,
		DistanceCovered: s.covered,
		Remaining:       s.cfg.TotalDistanceMeters - s.covered,
		NextCheckpoint:  next,
		Elapsed:         elapsed.Seconds(),
		Display:         FormatDuration(elapsed),
	}
}
