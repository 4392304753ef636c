package worker

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/breatheroute/pacekeeper/internal/coach"
	"github.com/breatheroute/pacekeeper/internal/pace"
)

// Job drives one run from start until it completes, times out or its
// context is cancelled.
type Job struct {
	config   JobConfig
	runner   *coach.Runner
	observer coach.Observer
	logger   zerolog.Logger

	mu         sync.Mutex
	callouts   int
	utterances []string
}

// JobResult contains the outcome of a run.
type JobResult struct {
	StartTime       time.Time
	EndTime         time.Time
	Duration        time.Duration
	State           pace.State
	Display         string
	DistanceCovered float64
	Callouts        int
	Utterances      []string
}

// NewJob creates a job and its runner. Zero fields take their values from
// DefaultJobConfig.
func NewJob(cfg JobConfig) *Job {
	defaults := DefaultJobConfig()
	if cfg.ID == "" {
		cfg.ID = defaults.ID
	}
	if cfg.TargetTime == "" {
		cfg.TargetTime = defaults.TargetTime
	}
	if cfg.Clock == nil {
		cfg.Clock = defaults.Clock
	}
	if cfg.MaxDuration <= 0 {
		cfg.MaxDuration = defaults.MaxDuration
	}

	j := &Job{
		config:   cfg,
		observer: cfg.Observer,
		logger:   cfg.Logger,
	}
	j.runner = coach.NewRunner(coach.RunnerConfig{
		ID:       cfg.ID,
		Run:      cfg.Run,
		Source:   cfg.Source,
		Options:  cfg.Options,
		Sink:     cfg.Sink,
		Observer: j,
		Metrics:  cfg.Metrics,
		Logger:   cfg.Logger,
		Clock:    cfg.Clock,
	})
	return j
}

// Runner exposes the job's runner for status reporting.
func (j *Job) Runner() *coach.Runner {
	return j.runner
}

// Observe implements coach.Observer.
func (j *Job) Observe(e coach.Event) {
	j.mu.Lock()
	switch e.Type {
	case coach.EventCallout:
		j.callouts++
	case coach.EventUtterance:
		j.utterances = append(j.utterances, e.Text)
	}
	j.mu.Unlock()

	if j.observer != nil {
		j.observer.Observe(e)
	}
}

// Run starts the run and blocks until it ends. Cancelling ctx or reaching
// MaxDuration stops the run; the result then reports StateStopped.
func (j *Job) Run(ctx context.Context) (*JobResult, error) {
	startTime := j.config.Clock()

	j.logger.Info().
		Str("target_time", j.config.TargetTime).
		Dur("max_duration", j.config.MaxDuration).
		Msg("starting run job")

	if err := j.runner.Start(ctx, j.config.TargetTime); err != nil {
		return nil, fmt.Errorf("starting run: %w", err)
	}

	timer := time.NewTimer(j.config.MaxDuration)
	defer timer.Stop()

	select {
	case <-j.runner.Done():
	case <-ctx.Done():
		j.logger.Info().Msg("run job cancelled")
		j.runner.Stop()
	case <-timer.C:
		j.logger.Warn().Dur("max_duration", j.config.MaxDuration).Msg("run did not complete in time")
		j.runner.Stop()
	}

	status := j.runner.Status()
	endTime := j.config.Clock()

	j.mu.Lock()
	result := &JobResult{
		StartTime:       startTime,
		EndTime:         endTime,
		Duration:        endTime.Sub(startTime),
		State:           status.State,
		Display:         j.runner.Display(),
		DistanceCovered: status.DistanceCovered,
		Callouts:        j.callouts,
		Utterances:      append([]string(nil), j.utterances...),
	}
	j.mu.Unlock()

	j.logger.Info().
		Str("state", result.State.String()).
		Str("display", result.Display).
		Float64("distance_m", result.DistanceCovered).
		Int("callouts", result.Callouts).
		Msg("run job finished")

	return result, nil
}
