// Package stream fans run events out to websocket listeners, grouped by run id.
package stream

import (
	"encoding/json"
	"sync"

	"github.com/rs/zerolog"

	"github.com/breatheroute/pacekeeper/internal/coach"
)

// Hub tracks listeners per run and delivers broadcasts to them without
// blocking. A listener that falls behind misses messages.
type Hub struct {
	logger  zerolog.Logger
	mu      sync.RWMutex
	clients map[string]map[*Client]struct{}
}

// Client is a single listener on a run.
type Client struct {
	RunID string
	Send  chan []byte
}

// NewHub creates an empty hub.
func NewHub(logger zerolog.Logger) *Hub {
	return &Hub{
		logger:  logger,
		clients: map[string]map[*Client]struct{}{},
	}
}

// Register adds a listener for runID.
func (h *Hub) Register(runID string) *Client {
	client := &Client{
		RunID: runID,
		Send:  make(chan []byte, 64),
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	if h.clients[runID] == nil {
		h.clients[runID] = map[*Client]struct{}{}
	}
	h.clients[runID][client] = struct{}{}
	return client
}

// Unregister removes a listener and closes its Send channel.
func (h *Hub) Unregister(client *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()

	runClients, ok := h.clients[client.RunID]
	if !ok {
		return
	}
	if _, ok := runClients[client]; !ok {
		return
	}
	delete(runClients, client)
	if len(runClients) == 0 {
		delete(h.clients, client.RunID)
	}
	close(client.Send)
}

// Broadcast delivers payload to every listener on runID.
func (h *Hub) Broadcast(runID string, payload []byte) {
	h.mu.RLock()
	defer h.mu.RUnlock()

	for client := range h.clients[runID] {
		select {
		case client.Send <- payload:
		default:
			h.logger.Debug().Str("run_id", runID).Msg("stream listener behind, dropping event")
		}
	}
}

// Listeners returns the number of listeners on runID.
func (h *Hub) Listeners(runID string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients[runID])
}

// Close unregisters every listener on runID.
func (h *Hub) Close(runID string) {
	h.mu.Lock()
	defer h.mu.Unlock()

	for client := range h.clients[runID] {
		close(client.Send)
	}
	delete(h.clients, runID)
}

// Shutdown unregisters every listener on every run.
func (h *Hub) Shutdown() {
	h.mu.Lock()
	defer h.mu.Unlock()

	for runID, runClients := range h.clients {
		for client := range runClients {
			close(client.Send)
		}
		delete(h.clients, runID)
	}
}

// Observe implements coach.Observer by broadcasting the event as JSON.
func (h *Hub) Observe(e coach.Event) {
	payload, err := json.Marshal(e)
	if err != nil {
		h.logger.Error().Err(err).Str("run_id", e.RunID).Msg("failed to encode run event")
		return
	}
	h.Broadcast(e.RunID, payload)
}
