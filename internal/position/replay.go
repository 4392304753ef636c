package position

import (
	"context"
	"errors"
	"time"

	"github.com/breatheroute/pacekeeper/pkg/geo"
)

// ReplayConfig holds configuration for a Replay source.
type ReplayConfig struct {
	// Route is the path to replay.
	Route []geo.Point

	// StepMeters is the distance between emitted fixes.
	// Default: 25 meters
	StepMeters float64

	// Interval is the delay between emitted fixes.
	// Default: 5 seconds
	Interval time.Duration

	// Clock stamps emitted fixes. Default: time.Now
	Clock func() time.Time
}

// Replay walks a recorded or planned route and emits fixes at a steady
// interval, for rehearsing a run without a device.
type Replay struct {
	points   []geo.Point
	interval time.Duration
	clock    func() time.Time
}

// NewReplay creates a Replay source from a route.
func NewReplay(cfg ReplayConfig) (*Replay, error) {
	if len(cfg.Route) == 0 {
		return nil, errors.New("replay route is empty")
	}
	if cfg.StepMeters <= 0 {
		cfg.StepMeters = 25
	}
	if cfg.Interval <= 0 {
		cfg.Interval = 5 * time.Second
	}
	if cfg.Clock == nil {
		cfg.Clock = time.Now
	}
	return &Replay{
		points:   geo.Resample(cfg.Route, cfg.StepMeters),
		interval: cfg.Interval,
		clock:    cfg.Clock,
	}, nil
}

// NewReplayFromPolyline creates a Replay source from an encoded polyline.
func NewReplayFromPolyline(encoded string, cfg ReplayConfig) (*Replay, error) {
	cfg.Route = geo.DecodePolyline(encoded)
	return NewReplay(cfg)
}

// Name implements Source.
func (r *Replay) Name() string {
	return "replay"
}

// Len returns the number of fixes the replay will emit.
func (r *Replay) Len() int {
	return len(r.points)
}

// Subscribe implements Source. Each subscription replays the route from the
// start; the first fix is emitted immediately.
func (r *Replay) Subscribe(ctx context.Context, opts Options) (Subscription, error) {
	raw := make(chan Update)
	ctx, cancel := context.WithCancel(ctx)

	go func() {
		ticker := time.NewTicker(r.interval)
		defer ticker.Stop()

		for i, p := range r.points {
			if i > 0 {
				select {
				case <-ctx.Done():
					return
				case <-ticker.C:
				}
			}
			select {
			case raw <- Update{Fix: Fix{Point: p, Timestamp: r.clock()}}:
			case <-ctx.Done():
				return
			}
		}
		<-ctx.Done()
	}()

	return watch(ctx, opts, raw, r.clock, cancel), nil
}
