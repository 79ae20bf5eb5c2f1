// Package round computes the boundaries of recurring fixed-duration markets
// (15m, 1h, 4h up/down rounds) and the slugs the venue lists them under.
package round

import (
	"fmt"
	"strings"
	"time"
)

// ParseTimeframe accepts the usual spellings of the supported round lengths.
func ParseTimeframe(v string) (time.Duration, error) {
	switch strings.ToLower(strings.TrimSpace(v)) {
	case "15m", "15min", "15mins":
		return 15 * time.Minute, nil
	case "1h", "60m", "60min":
		return time.Hour, nil
	case "4h", "240m", "240min":
		return 4 * time.Hour, nil
	default:
		return 0, fmt.Errorf("round: unsupported timeframe %q (valid: 15m, 1h, 4h)", v)
	}
}

// Label returns the slug label of a timeframe ("15m", "1h", "4h").
func Label(tf time.Duration) string {
	if tf%time.Hour == 0 {
		return fmt.Sprintf("%dh", int(tf/time.Hour))
	}
	return fmt.Sprintf("%dm", int(tf/time.Minute))
}

// Floor returns the start of the slot containing t. Slots are aligned to
// UTC midnight.
func Floor(t time.Time, tf time.Duration) time.Time {
	if tf <= 0 {
		return t
	}
	ut := t.UTC()
	y, m, d := ut.Date()
	midnight := time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
	delta := ut.Sub(midnight)
	return midnight.Add(delta - delta%tf)
}

// Current returns the boundaries of the slot containing now.
func Current(now time.Time, tf time.Duration) (start, end time.Time) {
	start = Floor(now, tf)
	return start, start.Add(tf)
}

// Next returns the first slot start strictly after now.
func Next(now time.Time, tf time.Duration) time.Time {
	return Floor(now, tf).Add(tf)
}

// Slug builds the venue slug of the round starting at start, e.g.
// "btc-updown-15m-1700000100".
func Slug(coin string, tf time.Duration, start time.Time) string {
	return fmt.Sprintf("%s-updown-%s-%d", strings.ToLower(coin), Label(tf), start.Unix())
}
