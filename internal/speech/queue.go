package speech

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

// QueueConfig holds configuration for a Queue.
type QueueConfig struct {
	Speaker Speaker
	Logger  zerolog.Logger

	// Size is the number of utterances that may wait for the speaker.
	// Default: 32
	Size int

	// Rate and Pitch are applied to every utterance. Default: 1
	Rate  float64
	Pitch float64

	// Timeout bounds a single Say call. Default: 10 seconds
	Timeout time.Duration
}

// Queue is a Sink that speaks utterances one at a time, in the order Speak
// was called, on a background goroutine.
type Queue struct {
	speaker Speaker
	logger  zerolog.Logger
	rate    float64
	pitch   float64
	timeout time.Duration

	mu     sync.RWMutex
	closed bool
	items  chan Utterance
	done   chan struct{}
}

// NewQueue creates a Queue and starts its worker.
func NewQueue(cfg QueueConfig) *Queue {
	if cfg.Size <= 0 {
		cfg.Size = 32
	}
	if cfg.Rate == 0 {
		cfg.Rate = 1
	}
	if cfg.Pitch == 0 {
		cfg.Pitch = 1
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 10 * time.Second
	}

	q := &Queue{
		speaker: cfg.Speaker,
		logger:  cfg.Logger,
		rate:    cfg.Rate,
		pitch:   cfg.Pitch,
		timeout: cfg.Timeout,
		items:   make(chan Utterance, cfg.Size),
		done:    make(chan struct{}),
	}
	go q.run()
	return q
}

// Speak implements Sink. It never blocks: when the queue is full the
// utterance is dropped and logged.
func (q *Queue) Speak(text string) {
	q.mu.RLock()
	defer q.mu.RUnlock()

	if q.closed {
		q.logger.Debug().Str("text", text).Msg("speech queue closed, dropping utterance")
		return
	}

	select {
	case q.items <- Utterance{Text: text, Rate: q.rate, Pitch: q.pitch}:
	default:
		q.logger.Warn().Err(ErrQueueFull).Str("text", text).Msg("dropping utterance")
	}
}

// Close stops accepting utterances and waits for queued ones to be spoken.
func (q *Queue) Close() {
	q.mu.Lock()
	if !q.closed {
		q.closed = true
		close(q.items)
	}
	q.mu.Unlock()

	<-q.done
}

func (q *Queue) run() {
	defer close(q.done)

	for u := range q.items {
		ctx, cancel := context.WithTimeout(context.Background(), q.timeout)
		err := q.speaker.Say(ctx, u)
		cancel()

		if err != nil {
			q.logger.Warn().Err(err).Str("text", u.Text).Msg("failed to speak utterance")
		}
	}
}
