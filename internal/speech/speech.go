// Package speech turns coaching text into audio. The pace engine only sees
// Sink, a fire-and-forget interface; Queue serializes utterances onto a
// blocking Speaker so they are spoken in call order.
package speech

import (
	"context"
	"errors"
)

// ErrQueueFull is reported when an utterance is dropped because the speaker
// has fallen too far behind.
var ErrQueueFull = errors.New("speech queue full")

// Utterance is a single piece of text to speak.
type Utterance struct {
	Text  string  `json:"text"`
	Rate  float64 `json:"rate"`
	Pitch float64 `json:"pitch"`
}

// Speaker renders an utterance and returns once it has been handed off or failed.
type Speaker interface {
	Say(ctx context.Context, u Utterance) error
}

// SpeakerFunc adapts a function to Speaker.
type SpeakerFunc func(ctx context.Context, u Utterance) error

// Say implements Speaker.
func (f SpeakerFunc) Say(ctx context.Context, u Utterance) error {
	return f(ctx, u)
}

// Sink accepts text to be spoken without waiting for it.
type Sink interface {
	Speak(text string)
}

// SinkFunc adapts a function to Sink.
type SinkFunc func(text string)

// Speak implements Sink.
func (f SinkFunc) Speak(text string) {
	f(text)
}

// Fanout delivers every utterance to each sink in order.
type Fanout []Sink

// Speak implements Sink.
func (f Fanout) Speak(text string) {
	for _, s := range f {
		if s != nil {
			s.Speak(text)
		}
	}
}

// Discard is a Sink that drops everything.
var Discard Sink = SinkFunc(func(string) {})
