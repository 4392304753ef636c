// Package position delivers raw geolocation fixes to a single consumer.
// Sources are external collaborators of the pace engine: they own accuracy,
// staleness and acquisition-timeout policy and report failures as
// non-fatal error updates.
package position

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/breatheroute/pacekeeper/pkg/geo"
)

// Sentinel errors for position sources.
var (
	// ErrFixTimeout indicates no fix arrived within the acquisition timeout.
	ErrFixTimeout = errors.New("position fix timed out")
	// ErrStaleFix indicates a fix older than the maximum accepted age.
	ErrStaleFix = errors.New("position fix is stale")
	// ErrFutureFix indicates a fix stamped further ahead of the receiver's
	// clock than the maximum accepted age.
	ErrFutureFix = errors.New("position fix is from the future")
	// ErrInvalidFix indicates a fix that could not be decoded or is out of range.
	ErrInvalidFix = errors.New("invalid position fix")
	// ErrAlreadySubscribed is returned when a single-consumer source is subscribed twice.
	ErrAlreadySubscribed = errors.New("position source already has a subscriber")
	// ErrNotSubscribed is returned when fixes are pushed with nobody listening.
	ErrNotSubscribed = errors.New("position source has no subscriber")
	// ErrBacklogFull is returned when the consumer has fallen behind the producer.
	ErrBacklogFull = errors.New("position backlog full")
)

// Fix is a single geolocation sample.
type Fix struct {
	geo.Point
	Timestamp time.Time `json:"timestamp"`
	// AccuracyMeters is the reported horizontal accuracy, zero if unknown.
	AccuracyMeters float64 `json:"accuracy,omitempty"`
}

// Update is one delivery from a subscription: either a fix or an error.
type Update struct {
	Fix Fix
	Err error
}

// Options are the source-side acquisition settings.
type Options struct {
	// MaxAge is the oldest fix accepted, measured from its timestamp.
	// Zero accepts fixes of any age.
	MaxAge time.Duration `json:"maximumAge"`

	// HighAccuracy asks the producing device for its most precise fix.
	HighAccuracy bool `json:"enableHighAccuracy"`

	// Timeout is how long to wait for a fix before reporting ErrFixTimeout.
	// Zero disables the timeout.
	Timeout time.Duration `json:"timeout"`
}

// DefaultOptions accepts fixes up to a second old and reports a timeout
// after five seconds without one.
func DefaultOptions() Options {
	return Options{
		MaxAge:       1 * time.Second,
		HighAccuracy: true,
		Timeout:      5 * time.Second,
	}
}

// Source produces fixes for one subscriber.
type Source interface {
	// Subscribe starts delivery. The subscription ends when ctx is done or
	// Close is called.
	Subscribe(ctx context.Context, opts Options) (Subscription, error)
	// Name identifies the source for logging.
	Name() string
}

// Subscription is an active stream of updates.
type Subscription interface {
	// Updates is closed once the subscription has ended.
	Updates() <-chan Update
	// Close releases the subscription. It is safe to call more than once.
	Close() error
}

// FixMessage is the wire form of a fix published by a device.
type FixMessage struct {
	Lat       float64   `json:"lat"`
	Lon       float64   `json:"lon"`
	Timestamp time.Time `json:"timestamp,omitempty"`
	Accuracy  float64   `json:"accuracy,omitempty"`
}

// Fix converts and validates the message.
func (m FixMessage) Fix() (Fix, error) {
	if m.Lat < -90 || m.Lat > 90 || m.Lon < -180 || m.Lon > 180 {
		return Fix{}, fmt.Errorf("%w: coordinates (%v, %v) out of range", ErrInvalidFix, m.Lat, m.Lon)
	}
	return Fix{
		Point:          geo.Point{Lat: m.Lat, Lon: m.Lon},
		Timestamp:      m.Timestamp,
		AccuracyMeters: m.Accuracy,
	}, nil
}

// DecodeFixMessage parses a JSON fix message.
func DecodeFixMessage(data []byte) (Fix, error) {
	var msg FixMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		return Fix{}, fmt.Errorf("%w: %v", ErrInvalidFix, err)
	}
	return msg.Fix()
}
