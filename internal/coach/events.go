// Package coach drives a run: it owns the pace session, consumes the position
// subscription one fix at a time, speaks callouts and keeps the timer display
// current. Runs are addressed by id through a Registry.
package coach

import (
	"time"

	"github.com/breatheroute/pacekeeper/internal/pace"
)

// EventType identifies what happened in a run.
type EventType string

// Event types published to observers.
const (
	EventStarted   EventType = "started"
	EventDisplay   EventType = "display"
	EventUtterance EventType = "utterance"
	EventCallout   EventType = "callout"
	EventCompleted EventType = "completed"
	EventStopped   EventType = "stopped"
	EventReset     EventType = "reset"
)

// Event is a single observable change in a run.
type Event struct {
	RunID   string             `json:"runId"`
	Type    EventType          `json:"type"`
	At      time.Time          `json:"at"`
	Display string             `json:"display,omitempty"`
	Text    string             `json:"text,omitempty"`
	Callout *pace.CalloutEvent `json:"callout,omitempty"`
}

// Observer receives run events. Observe is called with the runner's lock
// held and must not block or call back into the runner.
type Observer interface {
	Observe(Event)
}

// ObserverFunc adapts a function to Observer.
type ObserverFunc func(Event)

// Observe implements Observer.
func (f ObserverFunc) Observe(e Event) {
	f(e)
}
