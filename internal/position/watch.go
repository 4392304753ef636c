package position

import (
	"context"
	"fmt"
	"sync"
	"time"
)

// watchedSubscription applies Options to a raw stream of updates. It owns
// the output channel and closes it when the context ends or the raw stream
// closes.
type watchedSubscription struct {
	out    chan Update
	cancel context.CancelFunc
	done   chan struct{}

	closeOnce sync.Once
	onClose   func()
}

func watch(ctx context.Context, opts Options, raw <-chan Update, now func() time.Time, onClose func()) *watchedSubscription {
	ctx, cancel := context.WithCancel(ctx)
	w := &watchedSubscription{
		out:     make(chan Update),
		cancel:  cancel,
		done:    make(chan struct{}),
		onClose: onClose,
	}
	go w.run(ctx, opts, raw, now)
	return w
}

func (w *watchedSubscription) run(ctx context.Context, opts Options, raw <-chan Update, now func() time.Time) {
	defer close(w.done)
	defer close(w.out)

	var timeout <-chan time.Time
	var timer *time.Timer
	if opts.Timeout > 0 {
		timer = time.NewTimer(opts.Timeout)
		defer timer.Stop()
		timeout = timer.C
	}

	for {
		var u Update
		select {
		case <-ctx.Done():
			return
		case <-timeout:
			u = Update{Err: fmt.Errorf("%w after %s", ErrFixTimeout, opts.Timeout)}
		case next, ok := <-raw:
			if !ok {
				return
			}
			u = next
			if u.Err == nil {
				if err := checkAge(u.Fix, opts.MaxAge, now()); err != nil {
					u = Update{Err: err}
				}
			}
		}

		if timer != nil {
			if !timer.Stop() {
				select {
				case <-timer.C:
				default:
				}
			}
			timer.Reset(opts.Timeout)
		}

		select {
		case w.out <- u:
		case <-ctx.Done():
			return
		}
	}
}

// checkAge reports ErrStaleFix for a fix older than maxAge and ErrFutureFix
// for one stamped more than maxAge ahead of now. A zero maxAge or timestamp
// accepts the fix.
func checkAge(fix Fix, maxAge time.Duration, now time.Time) error {
	if maxAge <= 0 || fix.Timestamp.IsZero() {
		return nil
	}
	age := now.Sub(fix.Timestamp)
	switch {
	case age > maxAge:
		return fmt.Errorf("%w: %s old", ErrStaleFix, age.Round(time.Millisecond))
	case -age > maxAge:
		return fmt.Errorf("%w: %s ahead", ErrFutureFix, (-age).Round(time.Millisecond))
	}
	return nil
}

func (w *watchedSubscription) Updates() <-chan Update {
	return w.out
}

func (w *watchedSubscription) Close() error {
	w.closeOnce.Do(func() {
		w.cancel()
		<-w.done
		if w.onClose != nil {
			w.onClose()
		}
	})
	return nil
}
