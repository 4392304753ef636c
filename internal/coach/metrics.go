package coach

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"

	"github.com/breatheroute/pacekeeper/internal/pace"
)

const instrumentationName = "github.com/breatheroute/pacekeeper/internal/coach"

// Metrics holds the OpenTelemetry instruments for runs. A nil *Metrics
// records nothing.
type Metrics struct {
	fixesProcessed metric.Int64Counter
	fixesFailed    metric.Int64Counter
	callouts       metric.Int64Counter
	runsStarted    metric.Int64Counter
	runsCompleted  metric.Int64Counter
	calloutDelta   metric.Int64Histogram
}

// NewMetrics creates the run instruments on the global meter provider.
func NewMetrics() (*Metrics, error) {
	meter := otel.Meter(instrumentationName)

	fixesProcessed, err := meter.Int64Counter(
		"pace.fixes.processed",
		metric.WithDescription("Position fixes applied to a running session"),
		metric.WithUnit("{fix}"),
	)
	if err != nil {
		return nil, err
	}

	fixesFailed, err := meter.Int64Counter(
		"pace.fixes.failed",
		metric.WithDescription("Position updates that carried an error"),
		metric.WithUnit("{fix}"),
	)
	if err != nil {
		return nil, err
	}

	callouts, err := meter.Int64Counter(
		"pace.callouts",
		metric.WithDescription("Checkpoint callouts spoken"),
		metric.WithUnit("{callout}"),
	)
	if err != nil {
		return nil, err
	}

	runsStarted, err := meter.Int64Counter(
		"pace.runs.started",
		metric.WithDescription("Runs started"),
		metric.WithUnit("{run}"),
	)
	if err != nil {
		return nil, err
	}

	runsCompleted, err := meter.Int64Counter(
		"pace.runs.completed",
		metric.WithDescription("Runs that reached the full distance"),
		metric.WithUnit("{run}"),
	)
	if err != nil {
		return nil, err
	}

	calloutDelta, err := meter.Int64Histogram(
		"pace.callout.delta",
		metric.WithDescription("Expected minus actual elapsed time at each checkpoint"),
		metric.WithUnit("s"),
	)
	if err != nil {
		return nil, err
	}

	return &Metrics{
		fixesProcessed: fixesProcessed,
		fixesFailed:    fixesFailed,
		callouts:       callouts,
		runsStarted:    runsStarted,
		runsCompleted:  runsCompleted,
		calloutDelta:   calloutDelta,
	}, nil
}

func (m *Metrics) recordStart(ctx context.Context) {
	if m == nil {
		return
	}
	m.runsStarted.Add(ctx, 1)
}

func (m *Metrics) recordFix(ctx context.Context, source string, err error) {
	if m == nil {
		return
	}
	attrs := metric.WithAttributes(attribute.String("position.source", source))
	if err != nil {
		m.fixesFailed.Add(ctx, 1, attrs)
		return
	}
	m.fixesProcessed.Add(ctx, 1, attrs)
}

func (m *Metrics) recordCallout(ctx context.Context, e pace.CalloutEvent) {
	if m == nil {
		return
	}
	attrs := metric.WithAttributes(attribute.String("pace.verdict", string(e.Verdict)))
	m.callouts.Add(ctx, 1, attrs)
	m.calloutDelta.Record(ctx, int64(e.DeltaSeconds), attrs)
}

func (m *Metrics) recordCompleted(ctx context.Context) {
	if m == nil {
		return
	}
	m.runsCompleted.Add(ctx, 1)
}
