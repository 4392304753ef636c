package coach_test

import (
	"context"
	"errors"
	"math"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/breatheroute/pacekeeper/internal/coach"
	"github.com/breatheroute/pacekeeper/internal/pace"
	"github.com/breatheroute/pacekeeper/internal/position"
	"github.com/breatheroute/pacekeeper/pkg/geo"
)

const metersPerDegree = geo.EarthRadiusMeters * math.Pi / 180

func north(meters float64) geo.Point {
	return geo.Point{Lat: meters / metersPerDegree, Lon: 0}
}

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

type sinkRecorder struct {
	mu    sync.Mutex
	texts []string
}

func (s *sinkRecorder) Speak(text string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.texts = append(s.texts, text)
}

func (s *sinkRecorder) Texts() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.texts...)
}

type harness struct {
	runner *coach.Runner
	feed   *position.Feed
	clock  *fakeClock
	sink   *sinkRecorder
	events chan coach.Event
}

func newHarness(t *testing.T) *harness {
	t.Helper()

	h := &harness{
		feed:   position.NewFeed(position.FeedConfig{Backlog: 32}),
		clock:  &fakeClock{now: time.Date(2026, 3, 1, 7, 0, 0, 0, time.UTC)},
		sink:   &sinkRecorder{},
		events: make(chan coach.Event, 256),
	}
	h.runner = coach.NewRunner(coach.RunnerConfig{
		ID:       "run-1",
		Run:      pace.DefaultRunConfig(),
		Source:   h.feed,
		Options:  position.Options{HighAccuracy: true},
		Sink:     h.sink,
		Observer: coach.ObserverFunc(func(e coach.Event) { h.events <- e }),
		Logger:   zerolog.Nop(),
		Clock:    h.clock.Now,
	})
	t.Cleanup(h.runner.Reset)
	return h
}

// push publishes a fix and returns the events produced while processing it.
func (h *harness) push(t *testing.T, p geo.Point) []coach.Event {
	t.Helper()
	require.NoError(t, h.feed.Publish(position.Fix{Point: p}))

	var events []coach.Event
	timeout := time.After(2 * time.Second)
	for {
		select {
		case e := <-h.events:
			events = append(events, e)
			if e.Type == coach.EventDisplay {
				// The runner lock is held until the fix is fully processed.
				_ = h.runner.Display()
				return append(events, h.drain()...)
			}
		case <-timeout:
			t.Fatal("fix was not processed")
			return nil
		}
	}
}

func (h *harness) drain() []coach.Event {
	var events []coach.Event
	for {
		select {
		case e := <-h.events:
			events = append(events, e)
		default:
			return events
		}
	}
}

func waitDone(t *testing.T, r *coach.Runner) {
	t.Helper()
	select {
	case <-r.Done():
	case <-time.After(2 * time.Second):
		t.Fatal("run consumer did not exit")
	}
}

func eventTypes(events []coach.Event) []coach.EventType {
	types := make([]coach.EventType, 0, len(events))
	for _, e := range events {
		types = append(types, e.Type)
	}
	return types
}

func TestRunner_InvalidTargetDoesNotStart(t *testing.T) {
	for _, input := range []string{"", "abc", "0:00", "12"} {
		t.Run(input, func(t *testing.T) {
			h := newHarness(t)

			err := h.runner.Start(context.Background(), input)
			require.ErrorIs(t, err, pace.ErrInvalidTargetDuration)

			assert.Equal(t, pace.StateIdle, h.runner.State())
			assert.Equal(t, "0:00", h.runner.Display())
			assert.Empty(t, h.sink.Texts())

			_, subscribed := h.feed.Options()
			assert.False(t, subscribed)
		})
	}
}

func TestRunner_StartAnnouncesAndSubscribes(t *testing.T) {
	h := newHarness(t)

	require.NoError(t, h.runner.Start(context.Background(), "12:00"))

	assert.Equal(t, pace.StateRunning, h.runner.State())
	assert.Equal(t, []string{"Run started"}, h.sink.Texts())

	opts, subscribed := h.feed.Options()
	assert.True(t, subscribed)
	assert.True(t, opts.HighAccuracy)

	started := <-h.events
	assert.Equal(t, coach.EventStarted, started.Type)
	assert.Equal(t, "run-1", started.RunID)

	announced := <-h.events
	assert.Equal(t, coach.EventUtterance, announced.Type)
	assert.Equal(t, "Run started", announced.Text)
}

func TestRunner_CalloutsAndDisplay(t *testing.T) {
	h := newHarness(t)
	require.NoError(t, h.runner.Start(context.Background(), "12:00"))
	h.drain()

	events := h.push(t, north(0))
	assert.Equal(t, []coach.EventType{coach.EventDisplay}, eventTypes(events))
	assert.Equal(t, "0:00", h.runner.Display())

	h.clock.Advance(60 * time.Second)
	events = h.push(t, north(201))
	assert.Equal(t, []coach.EventType{
		coach.EventDisplay,
		coach.EventCallout,
		coach.EventUtterance,
		coach.EventUtterance,
	}, eventTypes(events))
	assert.Equal(t, "1:00", h.runner.Display())
	require.NotNil(t, events[1].Callout)
	assert.Equal(t, pace.VerdictPaceGood, events[1].Callout.Verdict)

	h.clock.Advance(2 * time.Minute)
	h.push(t, north(401))
	assert.Equal(t, "3:00", h.runner.Display())

	assert.Equal(t, []string{
		"Run started",
		"2200 meters remaining",
		"Pace good",
		"2000 meters remaining",
		"Speed up by 60 seconds",
	}, h.sink.Texts())

	status := h.runner.Status()
	assert.Equal(t, pace.StateRunning, status.State)
	assert.InDelta(t, 401, status.DistanceCovered, 0.01)
	assert.InDelta(t, 1800, status.NextCheckpoint, 1e-9)
}

func TestRunner_FinalCalloutPrecedesCompletion(t *testing.T) {
	h := newHarness(t)
	require.NoError(t, h.runner.Start(context.Background(), "12:00"))
	done := h.runner.Done()

	h.push(t, north(0))
	h.clock.Advance(10 * time.Minute)
	h.push(t, north(2150))
	h.clock.Advance(time.Minute)
	events := h.push(t, north(2401))

	texts := h.sink.Texts()
	require.GreaterOrEqual(t, len(texts), 3)
	assert.Equal(t, []string{
		"200 meters remaining",
		"Pace good",
		"2.4 kilometers complete",
	}, texts[len(texts)-3:])

	assert.Equal(t, coach.EventCompleted, events[len(events)-1].Type)
	assert.Equal(t, pace.StateCompleted, h.runner.State())
	assert.Equal(t, "11:00", h.runner.Display())

	var spoken []string
	for _, e := range events {
		if e.Type == coach.EventUtterance {
			spoken = append(spoken, e.Text)
		}
	}
	assert.Equal(t, texts[len(texts)-3:], spoken)

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("run consumer did not exit")
	}

	_, subscribed := h.feed.Options()
	assert.False(t, subscribed)
	assert.ErrorIs(t, h.feed.Publish(position.Fix{Point: north(2500)}), position.ErrNotSubscribed)

	h.clock.Advance(time.Minute)
	assert.Equal(t, "11:00", h.runner.Status().Display)
}

func TestRunner_ResetAfterCompletion(t *testing.T) {
	h := newHarness(t)
	require.NoError(t, h.runner.Start(context.Background(), "12:00"))

	h.push(t, north(0))
	h.clock.Advance(12 * time.Minute)
	h.push(t, north(2401))
	waitDone(t, h.runner)

	h.runner.Reset()

	assert.Equal(t, "0:00", h.runner.Display())
	assert.Equal(t, pace.StateIdle, h.runner.State())
	_, subscribed := h.feed.Options()
	assert.False(t, subscribed)
}

func TestRunner_StopIgnoresLaterFixes(t *testing.T) {
	h := newHarness(t)
	require.NoError(t, h.runner.Start(context.Background(), "12:00"))
	done := h.runner.Done()

	h.push(t, north(0))
	h.clock.Advance(45 * time.Second)
	h.runner.Stop()

	assert.Equal(t, pace.StateStopped, h.runner.State())
	assert.Equal(t, "0:45", h.runner.Display())
	assert.ErrorIs(t, h.feed.Publish(position.Fix{Point: north(300)}), position.ErrNotSubscribed)

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("run consumer did not exit")
	}

	h.clock.Advance(time.Minute)
	assert.Equal(t, "0:45", h.runner.Status().Display)
	assert.InDelta(t, 0, h.runner.Status().DistanceCovered, 1e-9)

	// Stopping twice is harmless.
	h.runner.Stop()
	assert.Equal(t, pace.StateStopped, h.runner.State())
}

func TestRunner_SourceErrorsAreSkipped(t *testing.T) {
	h := newHarness(t)
	require.NoError(t, h.runner.Start(context.Background(), "12:00"))

	h.push(t, north(0))
	require.NoError(t, h.feed.Fail(errors.New("gps signal lost")))
	h.clock.Advance(30 * time.Second)
	h.push(t, north(100))

	assert.Equal(t, pace.StateRunning, h.runner.State())
	assert.Equal(t, "0:30", h.runner.Display())
	assert.InDelta(t, 100, h.runner.Status().DistanceCovered, 0.01)
}

func TestRunner_RestartBeginsFreshSession(t *testing.T) {
	h := newHarness(t)
	require.NoError(t, h.runner.Start(context.Background(), "12:00"))
	h.push(t, north(0))
	h.clock.Advance(time.Minute)
	h.push(t, north(500))

	require.NoError(t, h.runner.Start(context.Background(), "10:00"))
	h.push(t, north(500))

	status := h.runner.Status()
	assert.Equal(t, pace.StateRunning, status.State)
	assert.InDelta(t, 0, status.DistanceCovered, 1e-9)
	assert.InDelta(t, 2200, status.NextCheckpoint, 1e-9)
	assert.Equal(t, "0:00", status.Display)
}

func TestRunner_InvalidRestartKeepsCurrentRun(t *testing.T) {
	h := newHarness(t)
	require.NoError(t, h.runner.Start(context.Background(), "12:00"))

	require.ErrorIs(t, h.runner.Start(context.Background(), "nope"), pace.ErrInvalidTargetDuration)

	assert.Equal(t, pace.StateRunning, h.runner.State())
	_, subscribed := h.feed.Options()
	assert.True(t, subscribed)
}

func TestRunner_StatusWhenIdle(t *testing.T) {
	h := newHarness(t)

	status := h.runner.Status()
	assert.Equal(t, pace.StateIdle, status.State)
	assert.InDelta(t, 2400, status.Remaining, 1e-9)
	assert.InDelta(t, 2200, status.NextCheckpoint, 1e-9)
	assert.Equal(t, "0:00", status.Display)
}

func TestNewMetrics(t *testing.T) {
	m, err := coach.NewMetrics()
	require.NoError(t, err)

	h := newHarness(t)
	r := coach.NewRunner(coach.RunnerConfig{
		ID:      "metered",
		Source:  position.NewFeed(position.FeedConfig{}),
		Metrics: m,
		Logger:  zerolog.Nop(),
		Clock:   h.clock.Now,
	})
	require.NoError(t, r.Start(context.Background(), "9:30"))
	r.Reset()
	waitDone(t, r)
}
