package pace

import (
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"
)

// ZeroDisplay is the timer text shown before a run starts and after reset.
const ZeroDisplay = "0:00"

// FormatTime renders whole elapsed seconds as minutes:seconds with the
// seconds zero-padded. Fractions are truncated and negatives clamp to zero.
func FormatTime(seconds float64) string {
	if seconds < 0 || math.IsNaN(seconds) {
		seconds = 0
	}
	total := int64(math.Floor(seconds))
	return fmt.Sprintf("%d:%02d", total/60, total%60)
}

// FormatDuration is FormatTime for a time.Duration.
func FormatDuration(d time.Duration) string {
	return FormatTime(d.Seconds())
}

// ParseTargetDuration parses a "minutes:seconds" finish time into seconds.
// Empty, malformed, negative or zero input yields ErrInvalidTargetDuration.
// Seconds above 59 are accepted and carried into minutes.
func ParseTargetDuration(input string) (int, error) {
	minutesText, secondsText, ok := strings.Cut(strings.TrimSpace(input), ":")
	if !ok {
		return 0, fmt.Errorf("%w: %q is not minutes:seconds", ErrInvalidTargetDuration, input)
	}

	minutes, err := strconv.Atoi(strings.TrimSpace(minutesText))
	if err != nil {
		return 0, fmt.Errorf("%w: minutes: %v", ErrInvalidTargetDuration, err)
	}
	seconds, err := strconv.Atoi(strings.TrimSpace(secondsText))
	if err != nil {
		return 0, fmt.Errorf("%w: seconds: %v", ErrInvalidTargetDuration, err)
	}
	if minutes < 0 || seconds < 0 {
		return 0, fmt.Errorf("%w: negative component", ErrInvalidTargetDuration)
	}

	total := minutes*60 + seconds
	if total == 0 {
		return 0, fmt.Errorf("%w: zero duration", ErrInvalidTargetDuration)
	}
	return total, nil
}
