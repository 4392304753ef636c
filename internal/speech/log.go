package speech

import (
	"context"

	"github.com/rs/zerolog"
)

// LogSpeaker writes utterances to the log instead of producing audio.
type LogSpeaker struct {
	logger zerolog.Logger
}

// NewLogSpeaker creates a LogSpeaker.
func NewLogSpeaker(logger zerolog.Logger) *LogSpeaker {
	return &LogSpeaker{logger: logger}
}

// Say implements Speaker.
func (s *LogSpeaker) Say(_ context.Context, u Utterance) error {
	s.logger.Info().
		Str("text", u.Text).
		Float64("rate", u.Rate).
		Float64("pitch", u.Pitch).
		Msg("speak")
	return nil
}
