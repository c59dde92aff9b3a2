package report

import (
	"math"
	"strconv"
	"strings"
	"time"
)

var isoLayouts = []string{
	"2006-01-02T15:04:05.999999999",
	"2006-01-02 15:04:05.999999999",
	time.DateOnly,
}

// ParseDay turns a report date cell into its calendar day in loc. The cell may
// hold epoch milliseconds (as the feed's Data field does, possibly in float
// notation) or an ISO-8601 timestamp. The day is returned as midnight UTC.
func ParseDay(value string, loc *time.Location) (time.Time, bool) {
	value = strings.TrimSpace(value)
	if value == "" {
		return time.Time{}, false
	}

	if ms, err := strconv.ParseInt(value, 10, 64); err == nil {
		return civil(time.UnixMilli(ms).In(loc)), true
	}
	if f, err := strconv.ParseFloat(value, 64); err == nil && !math.IsNaN(f) && !math.IsInf(f, 0) {
		return civil(time.UnixMicro(int64(math.Round(f * 1000))).In(loc)), true
	}

	for _, layout := range isoLayouts {
		if t, err := time.ParseInLocation(layout, value, loc); err == nil {
			return civil(t), true
		}
	}
	if t, err := time.Parse(time.RFC3339Nano, value); err == nil {
		return civil(t.In(loc)), true
	}

	return time.Time{}, false
}

// DaysBetween counts calendar days from a to b; both must come from ParseDay.
func DaysBetween(a, b time.Time) int {
	return int(b.Sub(a).Hours() / 24)
}

func civil(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}
