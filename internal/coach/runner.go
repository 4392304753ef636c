package coach

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/breatheroute/pacekeeper/internal/pace"
	"github.com/breatheroute/pacekeeper/internal/position"
	"github.com/breatheroute/pacekeeper/internal/speech"
)

// RunnerConfig holds configuration for a Runner.
type RunnerConfig struct {
	// ID identifies the run in logs and events.
	ID string

	// Run supplies distance, interval and tolerance. The target duration is
	// taken from Start.
	Run pace.RunConfig

	Source  position.Source
	Options position.Options
	Sink    speech.Sink

	// Observer is optional.
	Observer Observer

	// Metrics is optional.
	Metrics *Metrics

	// Tracer defaults to the global tracer.
	Tracer trace.Tracer

	Logger zerolog.Logger

	// Clock returns the current time. Default: time.Now
	Clock func() time.Time
}

// Runner is the start/stop/reset control surface of a run. Control calls
// may come from any goroutine; fixes are consumed by a single goroutine per
// run and each one is processed completely before the next.
type Runner struct {
	id       string
	run      pace.RunConfig
	source   position.Source
	options  position.Options
	sink     speech.Sink
	observer Observer
	metrics  *Metrics
	tracer   trace.Tracer
	logger   zerolog.Logger
	clock    func() time.Time

	mu      sync.Mutex
	session *pace.Session
	display string
	sub     position.Subscription
	// gen changes whenever the subscription is replaced so a consumer that
	// lost the race with Stop or Reset drops what it is holding.
	gen  uint64
	done chan struct{}
	// settledAt is when the runner last stopped having an active run; zero
	// while one is in progress.
	settledAt time.Time
}

// NewRunner creates an idle runner.
func NewRunner(cfg RunnerConfig) *Runner {
	if cfg.Run == (pace.RunConfig{}) {
		cfg.Run = pace.DefaultRunConfig()
	}
	if cfg.Options == (position.Options{}) {
		cfg.Options = position.DefaultOptions()
	}
	if cfg.Sink == nil {
		cfg.Sink = speech.Discard
	}
	if cfg.Tracer == nil {
		cfg.Tracer = otel.Tracer(instrumentationName)
	}
	if cfg.Clock == nil {
		cfg.Clock = time.Now
	}

	done := make(chan struct{})
	close(done)

	return &Runner{
		id:        cfg.ID,
		run:       cfg.Run,
		source:    cfg.Source,
		options:   cfg.Options,
		sink:      cfg.Sink,
		observer:  cfg.Observer,
		metrics:   cfg.Metrics,
		tracer:    cfg.Tracer,
		logger:    cfg.Logger.With().Str("run_id", cfg.ID).Logger(),
		clock:     cfg.Clock,
		display:   pace.ZeroDisplay,
		done:      done,
		settledAt: cfg.Clock(),
	}
}

// ID returns the run id.
func (r *Runner) ID() string {
	return r.id
}

// Start parses targetTime ("minutes:seconds"), begins a fresh session and
// subscribes to the position source. An invalid target leaves the runner
// untouched and returns an error wrapping pace.ErrInvalidTargetDuration.
// Starting an active runner restarts it.
func (r *Runner) Start(ctx context.Context, targetTime string) error {
	target, err := pace.ParseTargetDuration(targetTime)
	if err != nil {
		r.logger.Info().Err(err).Msg("run not started")
		return err
	}

	session, err := pace.NewSession(r.run.WithTarget(target))
	if err != nil {
		r.logger.Info().Err(err).Msg("run not started")
		return err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	now := r.clock()
	if r.session != nil {
		r.session.Stop(now)
	}
	r.releaseLocked()

	// The run outlives the request that started it.
	runCtx := context.WithoutCancel(ctx)
	sub, err := r.source.Subscribe(runCtx, r.options)
	if err != nil {
		if r.settledAt.IsZero() {
			r.settledAt = now
		}
		return fmt.Errorf("subscribing to %s: %w", r.source.Name(), err)
	}

	session.Start(now)
	r.session = session
	r.sub = sub
	r.display = pace.ZeroDisplay
	r.gen++
	r.done = make(chan struct{})
	r.settledAt = time.Time{}

	r.metrics.recordStart(ctx)
	r.emit(Event{Type: EventStarted, At: now, Display: r.display, Text: pace.PhraseRunStarted})
	r.say(now, pace.PhraseRunStarted)

	r.logger.Info().
		Int("target_seconds", target).
		Float64("total_meters", r.run.TotalDistanceMeters).
		Str("source", r.source.Name()).
		Msg("run started")

	go r.consume(runCtx, r.gen, sub, r.done)
	return nil
}

// Stop ends the run and unsubscribes from the position source. Fixes that
// arrive afterwards are ignored. Stopping an idle or finished run is a no-op.
func (r *Runner) Stop() {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.session == nil || r.session.State() != pace.StateRunning {
		return
	}

	now := r.clock()
	r.session.Stop(now)
	r.display = pace.FormatDuration(r.session.Elapsed(now))
	r.releaseLocked()
	r.settledAt = now
	r.emit(Event{Type: EventStopped, At: now, Display: r.display})
	r.logger.Info().Str("elapsed", r.display).Msg("run stopped")
}

// Reset stops any active run, discards the session and clears the display.
func (r *Runner) Reset() {
	r.mu.Lock()
	defer r.mu.Unlock()

	now := r.clock()
	if r.session != nil {
		r.session.Stop(now)
	}
	r.releaseLocked()
	r.session = nil
	r.display = pace.ZeroDisplay
	if r.settledAt.IsZero() {
		r.settledAt = now
	}
	r.emit(Event{Type: EventReset, At: now, Display: r.display})
	r.logger.Info().Msg("run reset")
}

// Display returns the timer text as of the last processed fix.
func (r *Runner) Display() string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.display
}

// State returns the lifecycle state of the current session.
func (r *Runner) State() pace.State {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.session == nil {
		return pace.StateIdle
	}
	return r.session.State()
}

// Status returns a live snapshot of the run.
func (r *Runner) Status() pace.Snapshot {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.session == nil {
		return pace.Snapshot{
			State:          pace.StateIdle,
			Remaining:      r.run.TotalDistanceMeters,
			NextCheckpoint: r.run.FirstCheckpoint(),
			Display:        r.display,
		}
	}
	return r.session.Snapshot(r.clock())
}

// Config returns the config of the current session, or the distances and
// tolerance new runs start with when there is none.
func (r *Runner) Config() pace.RunConfig {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.session != nil {
		return r.session.Config()
	}
	return r.run
}

// IdleFor reports how long the runner has been without an active run, since
// it was created or its last run completed, stopped or was reset. It returns
// false while a run is in progress.
func (r *Runner) IdleFor() (time.Duration, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.settledAt.IsZero() {
		return 0, false
	}
	return r.clock().Sub(r.settledAt), true
}

// Done is closed when the consumer of the current run exits, after
// completion, Stop or Reset.
func (r *Runner) Done() <-chan struct{} {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.done
}

func (r *Runner) consume(ctx context.Context, gen uint64, sub position.Subscription, done chan struct{}) {
	defer close(done)

	for u := range sub.Updates() {
		if finished := r.process(ctx, gen, u); finished {
			return
		}
	}
	r.logger.Debug().Msg("position updates closed")
}

// process applies one update and reports whether the consumer should exit.
func (r *Runner) process(ctx context.Context, gen uint64, u position.Update) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.gen != gen || r.session == nil || r.session.State() != pace.StateRunning {
		return true
	}

	source := r.source.Name()
	if u.Err != nil {
		r.metrics.recordFix(ctx, source, u.Err)
		event := r.logger.Warn()
		if errors.Is(u.Err, position.ErrFixTimeout) || errors.Is(u.Err, position.ErrStaleFix) {
			event = r.logger.Debug()
		}
		event.Err(u.Err).Msg("position update skipped")
		return false
	}

	ctx, span := r.tracer.Start(ctx, "coach.process_fix",
		trace.WithAttributes(
			attribute.String("run.id", r.id),
			attribute.String("position.source", source),
		),
	)
	defer span.End()

	now := r.clock()
	step, err := r.session.Advance(u.Fix.Point, now)
	if err != nil {
		span.RecordError(err)
		return true
	}
	r.metrics.recordFix(ctx, source, nil)

	span.SetAttributes(
		attribute.Float64("pace.distance_covered", step.DistanceCovered),
		attribute.Float64("pace.remaining", step.Remaining),
		attribute.Int("pace.callouts", len(step.Callouts)),
	)

	r.display = pace.FormatDuration(step.Elapsed)
	r.emit(Event{Type: EventDisplay, At: now, Display: r.display})

	for i := range step.Callouts {
		callout := step.Callouts[i]
		r.metrics.recordCallout(ctx, callout)
		r.emit(Event{Type: EventCallout, At: now, Display: r.display, Callout: &callout})
		for _, text := range callout.Utterances() {
			r.say(now, text)
		}
		r.logger.Info().
			Float64("remaining_m", callout.RemainingMeters).
			Int("delta_s", callout.DeltaSeconds).
			Str("verdict", string(callout.Verdict)).
			Msg("checkpoint")
	}

	if !step.Completed {
		return false
	}

	text := pace.CompletionPhrase(r.run.TotalDistanceMeters)
	r.say(now, text)
	r.metrics.recordCompleted(ctx)
	r.emit(Event{Type: EventCompleted, At: now, Display: r.display, Text: text})
	r.releaseLocked()
	r.settledAt = now
	r.logger.Info().Str("elapsed", r.display).Msg("run completed")
	return true
}

func (r *Runner) say(at time.Time, text string) {
	r.sink.Speak(text)
	r.emit(Event{Type: EventUtterance, At: at, Text: text})
}

func (r *Runner) emit(e Event) {
	if r.observer == nil {
		return
	}
	e.RunID = r.id
	r.observer.Observe(e)
}

// releaseLocked drops the active subscription. Closing cancels the
// subscription's context first, so it cannot block on a consumer that is
// waiting for r.mu.
func (r *Runner) releaseLocked() {
	if r.sub == nil {
		return
	}
	if err := r.sub.Close(); err != nil {
		r.logger.Warn().Err(err).Msg("closing position subscription")
	}
	r.sub = nil
	r.gen++
}
