package position

import (
	"context"
	"fmt"
	"sync"
	"time"

	"cloud.google.com/go/pubsub/v2"
	"github.com/rs/zerolog"
)

// RunIDAttribute is the message attribute that routes a fix to a run.
const RunIDAttribute = "run_id"

// PubSubConfig holds configuration for the Pub/Sub source.
type PubSubConfig struct {
	ProjectID        string
	SubscriptionName string

	// RunID, when set, drops messages whose run_id attribute differs.
	RunID string

	Logger zerolog.Logger
	Clock  func() time.Time
}

// PubSubSource receives fixes that a device publishes to a Pub/Sub topic.
// Messages carry a JSON FixMessage body.
type PubSubSource struct {
	client           *pubsub.Client
	subscriber       *pubsub.Subscriber
	subscriptionName string
	runID            string
	logger           zerolog.Logger
	clock            func() time.Time

	mu     sync.Mutex
	active bool
}

// NewPubSubSource creates a Pub/Sub backed source.
func NewPubSubSource(ctx context.Context, cfg PubSubConfig) (*PubSubSource, error) {
	client, err := pubsub.NewClient(ctx, cfg.ProjectID)
	if err != nil {
		return nil, fmt.Errorf("creating pubsub client: %w", err)
	}

	subscriber := client.Subscriber(cfg.SubscriptionName)

	// Fixes must be handled one at a time and in arrival order.
	subscriber.ReceiveSettings.MaxOutstandingMessages = 1
	subscriber.ReceiveSettings.NumGoroutines = 1
	subscriber.ReceiveSettings.MaxExtension = 1 * time.Minute

	if cfg.Clock == nil {
		cfg.Clock = time.Now
	}

	return &PubSubSource{
		client:           client,
		subscriber:       subscriber,
		subscriptionName: cfg.SubscriptionName,
		runID:            cfg.RunID,
		logger:           cfg.Logger,
		clock:            cfg.Clock,
	}, nil
}

// Name implements Source.
func (s *PubSubSource) Name() string {
	return "pubsub"
}

// Subscribe implements Source.
func (s *PubSubSource) Subscribe(ctx context.Context, opts Options) (Subscription, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.active {
		return nil, ErrAlreadySubscribed
	}
	s.active = true

	ctx, cancel := context.WithCancel(ctx)
	raw := make(chan Update)
	received := make(chan struct{})

	s.logger.Info().
		Str("subscription", s.subscriptionName).
		Bool("high_accuracy", opts.HighAccuracy).
		Msg("starting pubsub position source")

	go func() {
		defer close(received)
		err := s.subscriber.Receive(ctx, func(ctx context.Context, msg *pubsub.Message) {
			s.handleMessage(ctx, msg, raw)
		})
		if err != nil && ctx.Err() == nil {
			s.logger.Error().Err(err).Msg("pubsub receive stopped")
			select {
			case raw <- Update{Err: fmt.Errorf("pubsub receive: %w", err)}:
			case <-ctx.Done():
			}
		}
	}()

	return watch(ctx, opts, raw, s.clock, func() {
		cancel()
		<-received
		s.mu.Lock()
		s.active = false
		s.mu.Unlock()
	}), nil
}

// Close closes the Pub/Sub client.
func (s *PubSubSource) Close() error {
	return s.client.Close()
}

func (s *PubSubSource) handleMessage(ctx context.Context, msg *pubsub.Message, raw chan<- Update) {
	logger := s.logger.With().
		Str("message_id", msg.ID).
		Str("publish_time", msg.PublishTime.Format(time.RFC3339)).
		Logger()

	if s.runID != "" && msg.Attributes[RunIDAttribute] != s.runID {
		logger.Debug().Str("run_id", msg.Attributes[RunIDAttribute]).Msg("ignoring fix for another run")
		msg.Ack()
		return
	}

	fix, err := DecodeFixMessage(msg.Data)
	if err != nil {
		logger.Warn().Err(err).Msg("failed to parse fix message")
		// Malformed fixes never parse; ack to prevent redelivery.
		msg.Ack()
		select {
		case raw <- Update{Err: err}:
		case <-ctx.Done():
		}
		return
	}
	if fix.Timestamp.IsZero() {
		fix.Timestamp = msg.PublishTime
	}

	select {
	case raw <- Update{Fix: fix}:
		msg.Ack()
	case <-ctx.Done():
		msg.Nack()
	}
}
