package meeting

import (
	"fmt"
	"strings"
)

var frequencies = map[string]string{
	"daily":   "DAILY",
	"weekly":  "WEEKLY",
	"monthly": "MONTHLY",
	"yearly":  "YEARLY",
}

// BuildRecurrenceRule renders r as an RFC 5545 RRULE line
func BuildRecurrenceRule(r Recurrence) (string, error) {
	freq, ok := frequencies[strings.ToLower(r.Frequency)]
	if !ok {
		return "", &ValidationError{Reason: fmt.Sprintf("unsupported recurrence frequency %q", r.Frequency)}
	}
	if r.Until != nil && r.Count > 0 {
		return "", &ValidationError{Reason: "recurrence cannot set both until and count"}
	}
	interval := r.Interval
	if interval < 1 {
		interval = 1
	}

	parts := []string{"FREQ=" + freq, fmt.Sprintf("INTERVAL=%d", interval)}
	if len(r.ByDay) > 0 {
		days := make([]string, 0, len(r.ByDay))
		for _, d := range r.ByDay {
			code, ok := weekdayCode(d)
			if !ok {
				return "", &ValidationError{Reason: fmt.Sprintf("unknown weekday %q", d)}
			}
			days = append(days, code)
		}
		parts = append(parts, "BYDAY="+strings.Join(days, ","))
	}
	switch {
	case r.Until != nil:
		parts = append(parts, "UNTIL="+r.Until.UTC().Format("20060102T150405Z"))
	case r.Count > 0:
		parts = append(parts, fmt.Sprintf("COUNT=%d", r.Count))
	}
	return "RRULE:" + strings.Join(parts, ";"), nil
}
