package position

import (
	"context"
	"sync"
	"time"
)

// FeedConfig holds configuration for a Feed.
type FeedConfig struct {
	// Backlog is the number of fixes buffered ahead of the consumer.
	// Default: 16
	Backlog int

	// Clock returns the current time. Default: time.Now
	Clock func() time.Time
}

// Feed is a push source: a producer such as an HTTP handler publishes fixes
// and a single subscriber consumes them in order.
type Feed struct {
	backlog int
	clock   func() time.Time

	mu   sync.Mutex
	raw  chan Update
	opts Options
}

// NewFeed creates a Feed.
func NewFeed(cfg FeedConfig) *Feed {
	if cfg.Backlog <= 0 {
		cfg.Backlog = 16
	}
	if cfg.Clock == nil {
		cfg.Clock = time.Now
	}
	return &Feed{
		backlog: cfg.Backlog,
		clock:   cfg.Clock,
	}
}

// Name implements Source.
func (f *Feed) Name() string {
	return "feed"
}

// Subscribe implements Source. Only one subscription may be active.
func (f *Feed) Subscribe(ctx context.Context, opts Options) (Subscription, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.raw != nil {
		return nil, ErrAlreadySubscribed
	}
	raw := make(chan Update, f.backlog)
	f.raw = raw
	f.opts = opts

	return watch(ctx, opts, raw, f.clock, func() {
		f.mu.Lock()
		defer f.mu.Unlock()
		if f.raw == raw {
			f.raw = nil
		}
	}), nil
}

// Options returns the settings of the active subscription, which producers
// use to configure their device.
func (f *Feed) Options() (Options, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.opts, f.raw != nil
}

// Publish queues a fix for the subscriber. A fix without a timestamp is
// stamped with the current time. A timestamp outside the subscription's
// MaxAge at arrival is rejected with ErrStaleFix or ErrFutureFix, so the
// producer learns about a skewed clock instead of having every fix skipped.
func (f *Feed) Publish(fix Fix) error {
	now := f.clock()
	if fix.Timestamp.IsZero() {
		fix.Timestamp = now
	}
	return f.push(Update{Fix: fix}, func(opts Options) error {
		return checkAge(fix, opts.MaxAge, now)
	})
}

// Fail reports a device-side acquisition error to the subscriber.
func (f *Feed) Fail(err error) error {
	return f.push(Update{Err: err}, nil)
}

func (f *Feed) push(u Update, admit func(Options) error) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.raw == nil {
		return ErrNotSubscribed
	}
	if admit != nil {
		if err := admit(f.opts); err != nil {
			return err
		}
	}
	select {
	case f.raw <- u:
		return nil
	default:
		return ErrBacklogFull
	}
}
