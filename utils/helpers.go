package utils

import (
	"fmt"
	"time"
)

const DateLayout = "2006-01-02"

// IsValidInterval reports whether interval names a ClickHouse toStartOf<Interval> function.
func IsValidInterval(interval string) bool {
	switch interval {
	case "Minute", "Hour", "Day", "Week", "Month", "Quarter", "Year":
		return true
	default:
		return false
	}
}

// ParseDate parses a YYYY-MM-DD processing date as midnight UTC.
// An empty string means today.
func ParseDate(s string, now time.Time) (time.Time, error) {
	if s == "" {
		return StartOfDay(now), nil
	}
	d, err := time.ParseInLocation(DateLayout, s, time.UTC)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid date %q: expected YYYY-MM-DD", s)
	}
	return d, nil
}

// StartOfDay truncates t to midnight UTC.
func StartOfDay(t time.Time) time.Time {
	y, m, d := t.UTC().Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

func FormatDate(t time.Time) string {
	return t.UTC().Format(DateLayout)
}

// ParseRange parses optional RFC3339 start/end bounds, defaulting to the
// seven days before now.
func ParseRange(startParam, endParam string, now time.Time) (start, end time.Time, err error) {
	end = now.UTC()
	start = end.Add(-7 * 24 * time.Hour)
	if startParam != "" {
		if start, err = time.Parse(time.RFC3339, startParam); err != nil {
			return time.Time{}, time.Time{}, fmt.Errorf("invalid 'start' timestamp: use RFC3339 (e.g., 2006-01-02T15:04:05Z)")
		}
	}
	if endParam != "" {
		if end, err = time.Parse(time.RFC3339, endParam); err != nil {
			return time.Time{}, time.Time{}, fmt.Errorf("invalid 'end' timestamp: use RFC3339 (e.g., 2006-01-02T15:04:05Z)")
		}
	}
	if end.Before(start) {
		return time.Time{}, time.Time{}, fmt.Errorf("'end' must not be before 'start'")
	}
	return start, end, nil
}
