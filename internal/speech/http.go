package speech

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"

	"github.com/sony/gobreaker/v2"

	"github.com/breatheroute/pacekeeper/internal/resilience"
)

// HTTPConfig holds configuration for an HTTPSpeaker.
type HTTPConfig struct {
	// Endpoint receives a POST with a JSON Utterance body.
	Endpoint string

	// Voice is sent as the "voice" field when set.
	Voice string

	// Client overrides the resilient client configuration.
	// If nil, resilience.DefaultClientConfig("speech") is used.
	Client *resilience.ClientConfig
}

// HTTPSpeaker sends utterances to a text-to-speech service.
type HTTPSpeaker struct {
	endpoint string
	voice    string
	client   *resilience.Client
}

// NewHTTPSpeaker creates an HTTPSpeaker.
func NewHTTPSpeaker(cfg HTTPConfig) *HTTPSpeaker {
	clientCfg := resilience.DefaultClientConfig("speech")
	if cfg.Client != nil {
		clientCfg = *cfg.Client
	}
	return &HTTPSpeaker{
		endpoint: cfg.Endpoint,
		voice:    cfg.Voice,
		client:   resilience.NewClient(clientCfg),
	}
}

type speakRequest struct {
	Utterance
	Voice string `json:"voice,omitempty"`
}

// Say implements Speaker.
func (s *HTTPSpeaker) Say(ctx context.Context, u Utterance) error {
	body, err := json.Marshal(speakRequest{Utterance: u, Voice: s.voice})
	if err != nil {
		return fmt.Errorf("encoding utterance: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.endpoint, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("creating speech request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := s.client.Do(req)
	if err != nil {
		return fmt.Errorf("speech request: %w", err)
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, resp.Body)

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("speech endpoint returned %d", resp.StatusCode)
	}
	return nil
}

// Client exposes the underlying client for health reporting.
func (s *HTTPSpeaker) Client() *resilience.Client {
	return s.client
}

// Ready reports resilience.ErrCircuitOpen while the breaker rejects calls.
func (s *HTTPSpeaker) Ready(context.Context) error {
	if s.client.State() == gobreaker.StateOpen {
		return resilience.ErrCircuitOpen
	}
	return nil
}
