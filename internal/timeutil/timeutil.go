// Package timeutil holds timestamp formatting helpers and the
// lookback-window classifier shared by the stats and visit packages.
package timeutil

import "time"

// Standard lookback windows, in days.
const (
	WeekWindow     = 7
	MonthWindow    = 30
	FollowupWindow = 60
)

// WithinWindow reports whether t falls inside the trailing window of
// the given number of days ending at now. The boundary is inclusive:
// a timestamp exactly windowDays ago still qualifies. now is a
// parameter, not the wall clock, so callers pin it in tests.
func WithinWindow(t time.Time, windowDays int, now time.Time) bool {
	if t.IsZero() {
		return false
	}
	return !t.Before(now.AddDate(0, 0, -windowDays))
}

// Format returns t as an RFC3339Nano UTC string, or "" for the zero
// time.
func Format(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.UTC().Format(time.RFC3339Nano)
}

// Parse parses an RFC3339 timestamp, tolerating the second-precision
// form without a fractional part. Returns the zero time and false on
// failure.
func Parse(ts string) (time.Time, bool) {
	t, err := time.Parse(time.RFC3339Nano, ts)
	if err != nil {
		t, err = time.Parse("2006-01-02T15:04:05Z", ts)
		if err != nil {
			return time.Time{}, false
		}
	}
	return t, true
}
