package derive

import (
	"strings"
	"time"
)

var dateLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05.000Z07:00",
	"2006-01-02 15:04:05.999999999-07:00",
	"2006-01-02T15:04:05.999999999",
	"2006-01-02 15:04:05.999999999",
	"2006-01-02T15:04",
	"2006-01-02 15:04",
	"2006-01-02",
}

// ParseDate reads a timestamp or a plain calendar date. Date-only values are
// interpreted as midnight in loc. Empty or malformed input reports false so
// callers can treat it as absent.
func ParseDate(raw string, loc *time.Location) (time.Time, bool) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return time.Time{}, false
	}
	if loc == nil {
		loc = time.Local
	}
	for _, layout := range dateLayouts {
		if t, err := time.ParseInLocation(layout, raw, loc); err == nil {
			if t.IsZero() {
				return time.Time{}, false
			}
			return t, true
		}
	}
	return time.Time{}, false
}

// IsDateOnly reports whether raw carries no time-of-day component.
func IsDateOnly(raw string) bool {
	_, err := time.Parse("2006-01-02", strings.TrimSpace(raw))
	return err == nil
}

// EndOfDay returns the last instant of the calendar day of t in its location.
func EndOfDay(t time.Time) time.Time {
	return Midnight(t, t.Location()).AddDate(0, 0, 1).Add(-time.Nanosecond)
}
