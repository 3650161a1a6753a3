package timeutil

import (
	"fmt"
	"time"
)

// DateLayout is the layout of the last-reset marker, e.g. "Mon Oct 19 2026".
const DateLayout = "Mon Jan 02 2006"

// FormatDuration renders accumulated seconds for display: "1h 5m" once an
// hour has passed, "12m 7s" below that, and "00m 00s" for no time at all.
func FormatDuration(seconds int64) string {
	if seconds <= 0 {
		return "00m 00s"
	}

	h := seconds / 3600
	m := (seconds % 3600) / 60
	s := seconds % 60

	if h > 0 {
		return fmt.Sprintf("%dh %dm", h, m)
	}
	return fmt.Sprintf("%dm %ds", m, s)
}

// NextMidnight returns the first local midnight strictly after now.
func NextMidnight(now time.Time) time.Time {
	return time.Date(now.Year(), now.Month(), now.Day()+1, 0, 0, 0, 0, now.Location())
}

// DateStamp formats t as a last-reset marker.
func DateStamp(t time.Time) string {
	return t.Format(DateLayout)
}

// ElapsedSeconds returns the whole seconds between start and now, rounded
// down. Clock skew that puts now before start yields a negative value.
func ElapsedSeconds(start, now time.Time) int64 {
	d := now.Sub(start)
	if d < 0 {
		// Truncation toward zero would turn -0.5s into 0.
		return -int64((-d + time.Second - 1) / time.Second)
	}
	return int64(d / time.Second)
}
