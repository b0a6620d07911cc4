package canon

import (
	"fmt"
	"time"
)

// TimeLayout is the one timestamp form this system emits and accepts:
// second-precision ISO-8601 UTC with an explicit Z suffix, e.g.
// "2025-10-11T18:05:22Z". The source this system was built from mixed
// fractional and whole-second timestamps; this implementation emits only
// this form, and ParseTime accepts only this form.
const TimeLayout = "2006-01-02T15:04:05Z"

// GenesisTime is the default "since" value for a pull that has never run:
// the Unix epoch.
const GenesisTime = "1970-01-01T00:00:00Z"

// FormatTime renders t as a second-precision ISO-8601 UTC instant.
func FormatTime(t time.Time) string {
	return t.UTC().Truncate(time.Second).Format(TimeLayout)
}

// ParseTime parses a second-precision ISO-8601 UTC instant, rejecting any
// other layout (including fractional seconds or a non-Z offset) so that
// stored and echoed timestamps are always comparable as plain strings.
func ParseTime(s string) (time.Time, error) {
	t, err := time.Parse(TimeLayout, s)
	if err != nil {
		return time.Time{}, fmt.Errorf("canon: timestamp %q is not second-precision ISO-8601 UTC: %w", s, err)
	}
	// time.Parse accepts a fractional second after the seconds field even
	// when the layout has none; a round trip through the layout rejects it.
	if t.Format(TimeLayout) != s {
		return time.Time{}, fmt.Errorf("canon: timestamp %q is not second-precision ISO-8601 UTC", s)
	}
	return t.UTC(), nil
}
