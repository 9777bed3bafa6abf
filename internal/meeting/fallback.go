package meeting

import (
	"regexp"
	"strconv"
	"strings"
	"time"
)

const fallbackDuration = 30 * time.Minute

var (
	timeToken  = `(\d{1,2})(?:[:.](\d{2}))?\s*(am|pm|a\.m\.|p\.m\.)?`
	rangeRe    = regexp.MustCompile(`(?i)\b` + timeToken + `\s*(?:-|–|to|until|till)\s*` + timeToken + `(?:\s|$|[,.;!?])`)
	timeRe     = regexp.MustCompile(`(?i)\b` + timeToken + `(?:\s|$|[,.;!?])`)
	atTimeRe   = regexp.MustCompile(`(?i)\bat\s+(\d{1,2})\b`)
	rangeLead  = regexp.MustCompile(`(?i)\b(?:from|between)\s*$`)
	todayRe    = regexp.MustCompile(`(?i)\btoday\b|\btonight\b`)
	tomorrowRe = regexp.MustCompile(`(?i)\btomorrow\b`)
	weekdayRe  = regexp.MustCompile(`(?i)\b(monday|tuesday|wednesday|thursday|friday|saturday|sunday|mon|tues|tue|wed|thurs|thur|thu|fri|sat|sun)\b`)
	everyDayRe = regexp.MustCompile(`(?i)\bevery\s+(monday|tuesday|wednesday|thursday|friday|saturday|sunday|mon|tues|tue|wed|thurs|thur|thu|fri|sat|sun)\b`)
	repeatRe   = regexp.MustCompile(`(?i)\b(?:every\s+(\d+)\s+(day|week|month)s?|every\s+(day|week|month)|(daily|weekly|monthly))\b`)
)

var weekdays = map[string]time.Weekday{
	"sunday": time.Sunday, "sun": time.Sunday,
	"monday": time.Monday, "mon": time.Monday,
	"tuesday": time.Tuesday, "tue": time.Tuesday, "tues": time.Tuesday,
	"wednesday": time.Wednesday, "wed": time.Wednesday,
	"thursday": time.Thursday, "thu": time.Thursday, "thur": time.Thursday, "thurs": time.Thursday,
	"friday": time.Friday, "fri": time.Friday,
	"saturday": time.Saturday, "sat": time.Saturday,
}

var weekdayCodes = [...]string{"SU", "MO", "TU", "WE", "TH", "FR", "SA"}

func weekdayCode(name string) (string, bool) {
	name = strings.ToLower(strings.TrimSpace(name))
	if wd, ok := weekdays[name]; ok {
		return weekdayCodes[wd], true
	}
	upper := strings.ToUpper(name)
	for _, code := range weekdayCodes {
		if upper == code {
			return code, true
		}
	}
	return "", false
}

type clock struct {
	hour, minute int
	meridiem     string
}

func clockFrom(m []string) (clock, bool) {
	h, err := strconv.Atoi(m[0])
	if err != nil {
		return clock{}, false
	}
	c := clock{hour: h}
	if m[1] != "" {
		c.minute, _ = strconv.Atoi(m[1])
	}
	c.meridiem = strings.ReplaceAll(strings.ToLower(m[2]), ".", "")
	if c.minute > 59 || c.hour > 23 || (c.meridiem != "" && (c.hour < 1 || c.hour > 12)) {
		return clock{}, false
	}
	return c, true
}

// to24 converts to a 24-hour clock. Without am/pm, 1 through 7 are read as afternoon.
func (c clock) to24() (int, int) {
	h := c.hour
	switch c.meridiem {
	case "am":
		if h == 12 {
			h = 0
		}
	case "pm":
		if h != 12 {
			h += 12
		}
	default:
		if h >= 1 && h <= 7 {
			h += 12
		}
	}
	return h, c.minute
}

// parseFallback extracts a time and date anchor with fixed rules. ok is false when no time is present.
func parseFallback(text string, now time.Time) (*Spec, bool) {
	start, end, ok := findClock(text)
	if !ok {
		return nil, false
	}

	rec := findRecurrence(text)
	day := anchorDay(text, now)

	sh, sm := start.to24()
	startAt := time.Date(day.Year(), day.Month(), day.Day(), sh, sm, 0, 0, now.Location())
	if !todayRe.MatchString(text) && !tomorrowRe.MatchString(text) && !weekdayRe.MatchString(text) && !startAt.After(now) {
		startAt = startAt.AddDate(0, 0, 1)
	}

	endAt := startAt.Add(fallbackDuration)
	if end != nil {
		eh, em := end.to24()
		candidate := time.Date(startAt.Year(), startAt.Month(), startAt.Day(), eh, em, 0, 0, now.Location())
		if candidate.After(startAt) {
			endAt = candidate
		}
	}

	return &Spec{
		Start:      startAt,
		End:        endAt,
		Recurrence: rec,
		Source:     "fallback",
	}, true
}

// findClock prefers an explicit range, then a time with am/pm or minutes, then "at N",
// then a bare number next to a date anchor.
func findClock(text string) (clock, *clock, bool) {
	for _, loc := range rangeRe.FindAllStringSubmatchIndex(text, -1) {
		m := submatches(text, loc)
		start, okStart := clockFrom(m[1:4])
		end, okEnd := clockFrom(m[4:7])
		if okStart && okEnd && isTimeRange(text[:loc[0]], m) {
			if start.meridiem == "" && end.meridiem != "" && start.hour <= end.hour {
				start.meridiem = end.meridiem
			}
			if end.meridiem == "" && start.meridiem != "" {
				end.meridiem = start.meridiem
			}
			return start, &end, true
		}
	}

	var bare *clock
	for _, m := range timeRe.FindAllStringSubmatch(text, -1) {
		c, ok := clockFrom(m[1:4])
		if !ok {
			continue
		}
		if c.meridiem != "" || m[2] != "" {
			return c, nil, true
		}
		if bare == nil {
			cc := c
			bare = &cc
		}
	}
	if m := atTimeRe.FindStringSubmatch(text); m != nil {
		if c, ok := clockFrom([]string{m[1], "", ""}); ok {
			return c, nil, true
		}
	}
	if bare != nil && (todayRe.MatchString(text) || tomorrowRe.MatchString(text) || weekdayRe.MatchString(text)) {
		return *bare, nil, true
	}
	return clock{}, nil, false
}

// isTimeRange rejects counts such as "2 to 3 people": one side must carry am/pm or minutes,
// or the range must follow "from" or "between".
func isTimeRange(before string, m []string) bool {
	if m[2] != "" || m[3] != "" || m[5] != "" || m[6] != "" {
		return true
	}
	return rangeLead.MatchString(before)
}

func submatches(text string, loc []int) []string {
	out := make([]string, len(loc)/2)
	for i := range out {
		if loc[2*i] >= 0 {
			out[i] = text[loc[2*i]:loc[2*i+1]]
		}
	}
	return out
}

// anchorDay resolves today, tomorrow or the next future occurrence of a weekday
func anchorDay(text string, now time.Time) time.Time {
	switch {
	case tomorrowRe.MatchString(text):
		return now.AddDate(0, 0, 1)
	case todayRe.MatchString(text):
		return now
	}
	if m := weekdayRe.FindStringSubmatch(text); m != nil {
		target := weekdays[strings.ToLower(m[1])]
		delta := (int(target) - int(now.Weekday()) + 7) % 7
		if delta == 0 {
			delta = 7
		}
		return now.AddDate(0, 0, delta)
	}
	return now
}

func findRecurrence(text string) *Recurrence {
	if m := everyDayRe.FindStringSubmatch(text); m != nil {
		code, _ := weekdayCode(m[1])
		return &Recurrence{Frequency: "weekly", Interval: 1, ByDay: []string{code}}
	}
	m := repeatRe.FindStringSubmatch(text)
	if m == nil {
		return nil
	}
	switch {
	case m[1] != "":
		n, _ := strconv.Atoi(m[1])
		if n < 1 {
			n = 1
		}
		return &Recurrence{Frequency: unitFrequency(m[2]), Interval: n}
	case m[3] != "":
		return &Recurrence{Frequency: unitFrequency(m[3]), Interval: 1}
	default:
		return &Recurrence{Frequency: strings.ToLower(m[4]), Interval: 1}
	}
}

func unitFrequency(unit string) string {
	switch strings.ToLower(unit) {
	case "day":
		return "daily"
	case "week":
		return "weekly"
	default:
		return "monthly"
	}
}
