package series

import (
	"strings"
	"time"
)

// TimeLayout is the fixed-width UTC layout used for every timestamp the
// store writes. Fixed width keeps string order equal to time order, which
// lets SQL compare timestamps as text.
const TimeLayout = "2006-01-02T15:04:05.000000Z"

// parseLayouts are tried in order when reading a stored timestamp.
// The last one is the naive ISO form written by older databases.
var parseLayouts = []string{
	TimeLayout,
	time.RFC3339Nano,
	"2006-01-02T15:04:05.999999",
	"2006-01-02 15:04:05.999999",
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05",
}

// FormatTime renders t in TimeLayout.
func FormatTime(t time.Time) string {
	return t.UTC().Format(TimeLayout)
}

// ParseTime parses a stored timestamp. Naive timestamps are read as UTC.
func ParseTime(s string) (time.Time, bool) {
	s = strings.TrimSpace(s)
	if s == "" {
		return time.Time{}, false
	}
	for _, layout := range parseLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t.UTC(), true
		}
	}
	return time.Time{}, false
}

// NeedsCheck decides whether a series is due for a recheck.
//
// A nil, empty or unparseable lastChecked always needs a check. Otherwise
// the number of whole days since lastChecked is compared against the
// frequency's interval.
func NeedsCheck(lastChecked *string, frequency string, now time.Time) bool {
	if lastChecked == nil {
		return true
	}
	checked, ok := ParseTime(*lastChecked)
	if !ok {
		return true
	}
	days := int(now.Sub(checked) / (24 * time.Hour))
	return days >= IntervalDays(frequency)
}
