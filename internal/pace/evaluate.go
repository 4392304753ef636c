package pace

import (
	"fmt"
	"math"
	"strconv"
)

// Phrases spoken by the coach.
const (
	PhraseRunStarted = "Run started"
	PhrasePaceGood   = "Pace good"
)

// Evaluate compares the elapsed time at a checkpoint with the time the
// target pace would have taken to cover the same distance. A positive delta
// means the runner took longer than expected.
func Evaluate(remainingMeters, elapsedSeconds float64, cfg RunConfig) CalloutEvent {
	covered := cfg.TotalDistanceMeters - remainingMeters
	expected := covered / cfg.TotalDistanceMeters * float64(cfg.TargetDurationSeconds)
	delta := roundHalfUp(expected - elapsedSeconds)

	ev := CalloutEvent{
		RemainingMeters: remainingMeters,
		ElapsedSeconds:  elapsedSeconds,
		ExpectedSeconds: expected,
		DeltaSeconds:    delta,
	}

	switch {
	case math.Abs(float64(delta)) <= cfg.PaceToleranceSeconds:
		ev.Verdict = VerdictPaceGood
	case delta > 0:
		ev.Verdict = VerdictSlowDown
	default:
		ev.Verdict = VerdictSpeedUp
	}
	return ev
}

// Utterances returns the announcements for the callout in speaking order:
// the remaining distance, then the pace judgment.
func (e CalloutEvent) Utterances() []string {
	return []string{RemainingPhrase(e.RemainingMeters), e.VerdictPhrase()}
}

// VerdictPhrase renders the pace judgment.
//
// A runner behind the expected time is told to "slow down"; the wording is
// kept as-is for compatibility with existing coaching audio.
func (e CalloutEvent) VerdictPhrase() string {
	switch e.Verdict {
	case VerdictSlowDown:
		return fmt.Sprintf("Slow down by %d seconds", e.DeltaSeconds)
	case VerdictSpeedUp:
		return fmt.Sprintf("Speed up by %d seconds", -e.DeltaSeconds)
	default:
		return PhrasePaceGood
	}
}

// RemainingPhrase announces the distance left, rounded to whole meters.
func RemainingPhrase(meters float64) string {
	return strconv.FormatFloat(math.Round(meters), 'f', -1, 64) + " meters remaining"
}

// CompletionPhrase announces the end of a run of the given length.
func CompletionPhrase(totalMeters float64) string {
	km := strconv.FormatFloat(totalMeters/1000, 'f', -1, 64)
	return km + " kilometers complete"
}

// roundHalfUp rounds to the nearest integer with halves going toward
// positive infinity, so -2.5 becomes -2.
func roundHalfUp(v float64) int {
	return int(math.Floor(v + 0.5))
}
