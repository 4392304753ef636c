// Package worker runs a single coached run without an API in front of it:
// fixes come from a configured source and callouts go to a speech sink.
package worker

import (
	"time"

	"github.com/rs/zerolog"

	"github.com/breatheroute/pacekeeper/internal/coach"
	"github.com/breatheroute/pacekeeper/internal/pace"
	"github.com/breatheroute/pacekeeper/internal/position"
	"github.com/breatheroute/pacekeeper/internal/speech"
)

// JobConfig holds configuration for a Job.
type JobConfig struct {
	// ID identifies the run in logs and events.
	// Default: "worker"
	ID string

	// TargetTime is the desired finish time as "minutes:seconds".
	TargetTime string

	// Run supplies distance, interval and tolerance.
	// Default: pace.DefaultRunConfig()
	Run pace.RunConfig

	Source  position.Source
	Options position.Options
	Sink    speech.Sink

	// Observer receives every run event after the job has recorded it.
	Observer coach.Observer

	Metrics *coach.Metrics
	Logger  zerolog.Logger

	// Clock returns the current time. Default: time.Now
	Clock func() time.Time

	// MaxDuration stops a run that has not completed by then.
	// Default: 2 hours
	MaxDuration time.Duration
}

// DefaultJobConfig returns the default job configuration: the 2.4 km run
// against a 12 minute target.
func DefaultJobConfig() JobConfig {
	return JobConfig{
		ID:          "worker",
		TargetTime:  "12:00",
		Run:         pace.DefaultRunConfig(),
		Options:     position.DefaultOptions(),
		Clock:       time.Now,
		MaxDuration: 2 * time.Hour,
	}
}
