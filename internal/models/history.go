package models

import (
	"fmt"
	"strings"
)

// TimeRange is a window of the user's listening history.
type TimeRange string

const (
	TimeRangeShort  TimeRange = "short_term"  // Last 4 weeks
	TimeRangeMedium TimeRange = "medium_term" // Last 6 months
	TimeRangeLong   TimeRange = "long_term"   // Several years
)

// ParseTimeRange accepts "short", "medium" or "long", with or without the "_term" suffix.
func ParseTimeRange(s string) (TimeRange, error) {
	switch strings.TrimSuffix(strings.ToLower(strings.TrimSpace(s)), "_term") {
	case "short":
		return TimeRangeShort, nil
	case "medium":
		return TimeRangeMedium, nil
	case "long":
		return TimeRangeLong, nil
	}
	return "", fmt.Errorf("unknown time range %q, want short, medium or long", s)
}

// Description is a human readable label for the range.
func (r TimeRange) Description() string {
	switch r {
	case TimeRangeShort:
		return "last 4 weeks"
	case TimeRangeMedium:
		return "last 6 months"
	case TimeRangeLong:
		return "several years"
	default:
		return "recent"
	}
}
