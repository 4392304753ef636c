package worker_test

import (
	"context"
	"encoding/json"
	"math"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/breatheroute/pacekeeper/internal/api/models"
	"github.com/breatheroute/pacekeeper/internal/coach"
	"github.com/breatheroute/pacekeeper/internal/pace"
	"github.com/breatheroute/pacekeeper/internal/position"
	"github.com/breatheroute/pacekeeper/internal/worker"
	"github.com/breatheroute/pacekeeper/pkg/geo"
)

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

const metersPerDegree = geo.EarthRadiusMeters * math.Pi / 180

var origin = geo.Point{Lat: 0, Lon: 0}

// north returns the point m meters north of origin.
func north(m float64) geo.Point {
	return geo.Point{Lat: m / metersPerDegree, Lon: 0}
}

func newTestJob(t *testing.T, cfg worker.JobConfig) (*worker.Job, *position.Feed, *fakeClock) {
	t.Helper()
	clock := &fakeClock{now: time.Date(2026, 3, 1, 7, 0, 0, 0, time.UTC)}
	feed := position.NewFeed(position.FeedConfig{Backlog: 32, Clock: clock.Now})

	cfg.Source = feed
	cfg.Options = position.Options{HighAccuracy: true}
	cfg.Clock = clock.Now
	cfg.Logger = zerolog.Nop()
	return worker.NewJob(cfg), feed, clock
}

func waitRunning(t *testing.T, job *worker.Job) {
	t.Helper()
	require.Eventually(t, func() bool {
		return job.Runner().State() == pace.StateRunning
	}, time.Second, 5*time.Millisecond)
}

func TestDefaultJobConfig(t *testing.T) {
	cfg := worker.DefaultJobConfig()

	assert.Equal(t, "12:00", cfg.TargetTime)
	assert.Equal(t, pace.DefaultRunConfig(), cfg.Run)
	assert.Equal(t, position.DefaultOptions(), cfg.Options)
	assert.Equal(t, 2*time.Hour, cfg.MaxDuration)
}

func TestJob_RunCompletes(t *testing.T) {
	var events []coach.EventType
	var mu sync.Mutex
	job, feed, clock := newTestJob(t, worker.JobConfig{
		TargetTime: "12:00",
		Observer: coach.ObserverFunc(func(e coach.Event) {
			mu.Lock()
			events = append(events, e.Type)
			mu.Unlock()
		}),
	})

	type outcome struct {
		result *worker.JobResult
		err    error
	}
	done := make(chan outcome, 1)
	go func() {
		result, err := job.Run(context.Background())
		done <- outcome{result, err}
	}()

	waitRunning(t, job)
	require.NoError(t, feed.Publish(position.Fix{Point: origin, Timestamp: clock.Now()}))
	clock.Advance(10 * time.Minute)
	require.NoError(t, feed.Publish(position.Fix{Point: north(2401), Timestamp: clock.Now()}))

	var got outcome
	select {
	case got = <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("job did not finish")
	}

	require.NoError(t, got.err)
	result := got.result
	assert.Equal(t, pace.StateCompleted, result.State)
	assert.Equal(t, "10:00", result.Display)
	assert.Equal(t, 10*time.Minute, result.Duration)
	assert.Equal(t, 11, result.Callouts)
	assert.InDelta(t, 2401, result.DistanceCovered, 1)
	require.NotEmpty(t, result.Utterances)
	assert.Equal(t, pace.PhraseRunStarted, result.Utterances[0])
	assert.Equal(t, "2.4 kilometers complete", result.Utterances[len(result.Utterances)-1])
	// Two announcements per callout plus start and completion, each spoken once.
	assert.Len(t, result.Utterances, 2*11+2)
	completions := 0
	for _, text := range result.Utterances {
		if text == "2.4 kilometers complete" {
			completions++
		}
	}
	assert.Equal(t, 1, completions)

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, coach.EventStarted, events[0])
	assert.Equal(t, coach.EventCompleted, events[len(events)-1])
}

func TestJob_InvalidTarget(t *testing.T) {
	job, _, _ := newTestJob(t, worker.JobConfig{TargetTime: "0:00"})

	result, err := job.Run(context.Background())

	assert.Nil(t, result)
	assert.ErrorIs(t, err, pace.ErrInvalidTargetDuration)
	assert.Equal(t, pace.StateIdle, job.Runner().State())
}

func TestJob_CancelStopsRun(t *testing.T) {
	job, feed, clock := newTestJob(t, worker.JobConfig{})

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan *worker.JobResult, 1)
	go func() {
		result, err := job.Run(ctx)
		assert.NoError(t, err)
		done <- result
	}()

	waitRunning(t, job)
	require.NoError(t, feed.Publish(position.Fix{Point: origin}))
	clock.Advance(45 * time.Second)
	cancel()

	select {
	case result := <-done:
		assert.Equal(t, pace.StateStopped, result.State)
		assert.Equal(t, "0:45", result.Display)
	case <-time.After(2 * time.Second):
		t.Fatal("job did not stop")
	}

	assert.ErrorIs(t, feed.Publish(position.Fix{Point: north(100)}), position.ErrNotSubscribed)
}

func TestJob_MaxDuration(t *testing.T) {
	job, _, _ := newTestJob(t, worker.JobConfig{MaxDuration: 20 * time.Millisecond})

	result, err := job.Run(context.Background())

	require.NoError(t, err)
	assert.Equal(t, pace.StateStopped, result.State)
	assert.Zero(t, result.Callouts)
	assert.Equal(t, []string{pace.PhraseRunStarted}, result.Utterances)
}

func TestRouter_RunStatus(t *testing.T) {
	job, _, _ := newTestJob(t, worker.JobConfig{})
	router := worker.NewRouter(worker.RouterConfig{
		Version: "test",
		Logger:  zerolog.Nop(),
		Job:     job,
	})

	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/v1/run", http.NoBody))
	require.Equal(t, http.StatusOK, w.Code)

	var status models.RunStatus
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &status))
	assert.Equal(t, pace.StateIdle, status.State)
	assert.Equal(t, "0:00", status.Display)
	assert.InDelta(t, 2400, status.RemainingMeters, 1e-9)

	w = httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/v1/ops/health", http.NoBody))
	assert.Equal(t, http.StatusOK, w.Code)

	w = httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/v1/run/stream", http.NoBody))
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
}

func TestRouter_StopRun(t *testing.T) {
	job, _, _ := newTestJob(t, worker.JobConfig{})
	router := worker.NewRouter(worker.RouterConfig{Logger: zerolog.Nop(), Job: job})

	done := make(chan struct{})
	go func() {
		defer close(done)
		_, _ = job.Run(context.Background())
	}()
	waitRunning(t, job)

	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/v1/run/stop", http.NoBody))
	require.Equal(t, http.StatusOK, w.Code)

	var status models.RunStatus
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &status))
	assert.Equal(t, pace.StateStopped, status.State)

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("job did not return after stop")
	}
}
