package notify

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// parseClock converts a local time-of-day string ("22:00" or "22:00:00")
// into minutes since midnight.
func parseClock(s string) (int, error) {
	parts := strings.Split(strings.TrimSpace(s), ":")
	if len(parts) < 2 {
		return 0, fmt.Errorf("invalid clock string %q", s)
	}
	hour, err := strconv.Atoi(parts[0])
	if err != nil || hour < 0 || hour > 23 {
		return 0, fmt.Errorf("invalid hour in %q", s)
	}
	minute, err := strconv.Atoi(parts[1])
	if err != nil || minute < 0 || minute > 59 {
		return 0, fmt.Errorf("invalid minute in %q", s)
	}
	return hour*60 + minute, nil
}

// inQuietHours reports whether now falls inside the [start, end) window.
// A window whose start is later than its end wraps past midnight.
func inQuietHours(now time.Time, start, end string) bool {
	if start == "" || end == "" {
		return false
	}
	startMin, err := parseClock(start)
	if err != nil {
		return false
	}
	endMin, err := parseClock(end)
	if err != nil {
		return false
	}
	if startMin == endMin {
		return false
	}

	nowMin := now.Hour()*60 + now.Minute()
	if startMin < endMin {
		return nowMin >= startMin && nowMin < endMin
	}
	return nowMin >= startMin || nowMin < endMin
}

// nextQuietHoursEnd returns the next occurrence of the window's end time
// after now.
func nextQuietHoursEnd(now time.Time, end string) time.Time {
	endMin, err := parseClock(end)
	if err != nil {
		return now
	}
	candidate := time.Date(now.Year(), now.Month(), now.Day(), endMin/60, endMin%60, 0, 0, now.Location())
	if !candidate.After(now) {
		candidate = candidate.AddDate(0, 0, 1)
	}
	return candidate
}
