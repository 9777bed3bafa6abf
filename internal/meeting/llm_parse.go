package meeting

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"strings"
	"time"

	"smart-mail-assistant-go/internal/extract"
	"smart-mail-assistant-go/internal/llm"
)

var errNoDatetime = errors.New("model reported missing datetime")

var quickPattern = regexp.MustCompile(`(?i)\b(quick|stand-?up|sync|check-?in)\b`)

const systemPrompt = `You convert meeting requests into JSON. Respond with ONLY a JSON object, no prose.
Schema: {"title": string, "description": string, "start_time": "YYYY-MM-DDTHH:MM:SS", "end_time": "YYYY-MM-DDTHH:MM:SS" or "",
"duration_minutes": number, "location": string, "attendees": [string],
"recurring": {"frequency": "daily|weekly|monthly", "interval": number, "days": [string], "until": "YYYY-MM-DD", "count": number} or null}
Times are local to the given timezone. If the request has no concrete date or time, respond {"error":"missing_datetime"}.

Examples (current date 2025-01-06, a Monday):
"sync with Dana tomorrow at 3pm" -> {"title":"Sync with Dana","start_time":"2025-01-07T15:00:00","end_time":"","duration_minutes":30,"recurring":null}
"project review friday 10-11am" -> {"title":"Project review","start_time":"2025-01-10T10:00:00","end_time":"2025-01-10T11:00:00","duration_minutes":60,"recurring":null}
"weekly standup every monday 9am" -> {"title":"Weekly standup","start_time":"2025-01-13T09:00:00","end_time":"","duration_minutes":30,"recurring":{"frequency":"weekly","interval":1,"days":["monday"]}}
"let's meet sometime" -> {"error":"missing_datetime"}`

type llmMeeting struct {
	Error           string   `json:"error"`
	Title           string   `json:"title"`
	Description     string   `json:"description"`
	StartTime       string   `json:"start_time"`
	EndTime         string   `json:"end_time"`
	DurationMinutes int      `json:"duration_minutes"`
	Location        string   `json:"location"`
	Attendees       []string `json:"attendees"`
	Recurring       *struct {
		Frequency string   `json:"frequency"`
		Interval  int      `json:"interval"`
		Days      []string `json:"days"`
		Until     string   `json:"until"`
		Count     int      `json:"count"`
	} `json:"recurring"`
}

func (r *Resolver) parseWithLLM(ctx context.Context, text string, now time.Time, loc *time.Location) (*llmMeeting, error) {
	user := fmt.Sprintf("Current date: %s (%s)\nTimezone: %s\nRequest: %s",
		now.Format("2006-01-02 15:04"), now.Weekday(), loc.String(), text)

	opts := r.opts
	opts.Temperature = 0
	resp, err := r.client.Chat(ctx, []llm.Message{
		{Role: llm.RoleSystem, Content: systemPrompt},
		{Role: llm.RoleUser, Content: user},
	}, opts)
	if err != nil {
		return nil, fmt.Errorf("meeting parse call failed: %w", err)
	}

	var parsed llmMeeting
	if err := extract.Into(resp, &parsed); err != nil {
		return nil, err
	}
	if strings.EqualFold(parsed.Error, "missing_datetime") || strings.TrimSpace(parsed.StartTime) == "" {
		return nil, errNoDatetime
	}
	return &parsed, nil
}

// complete validates the model output and fills end time and recurrence
func complete(m *llmMeeting, raw string, loc *time.Location) (*Spec, error) {
	start, err := parseTimestamp(m.StartTime, loc)
	if err != nil {
		return nil, &ValidationError{Reason: fmt.Sprintf("unparsable start_time %q", m.StartTime)}
	}

	var end time.Time
	if strings.TrimSpace(m.EndTime) != "" {
		end, err = parseTimestamp(m.EndTime, loc)
		if err != nil {
			return nil, &ValidationError{Reason: fmt.Sprintf("unparsable end_time %q", m.EndTime)}
		}
	} else {
		minutes := m.DurationMinutes
		if minutes <= 0 {
			minutes = DefaultDuration(raw)
		}
		end = start.Add(time.Duration(minutes) * time.Minute)
	}
	if !end.After(start) {
		return nil, &ValidationError{Reason: "end_time must be after start_time"}
	}

	spec := &Spec{
		Title:       strings.TrimSpace(m.Title),
		Description: strings.TrimSpace(m.Description),
		Start:       start,
		End:         end,
		Location:    strings.TrimSpace(m.Location),
		Attendees:   m.Attendees,
		Source:      "llm",
	}
	if m.Recurring != nil && m.Recurring.Frequency != "" {
		rec := &Recurrence{
			Frequency: strings.ToLower(m.Recurring.Frequency),
			Interval:  m.Recurring.Interval,
			Count:     m.Recurring.Count,
		}
		for _, d := range m.Recurring.Days {
			if code, ok := weekdayCode(d); ok {
				rec.ByDay = append(rec.ByDay, code)
			}
		}
		if m.Recurring.Until != "" {
			until, err := parseTimestamp(m.Recurring.Until, loc)
			if err != nil {
				return nil, &ValidationError{Reason: fmt.Sprintf("unparsable recurrence until %q", m.Recurring.Until)}
			}
			rec.Until = &until
		}
		spec.Recurrence = rec
	}
	return spec, nil
}

// DefaultDuration is 30 minutes for quick or standup-style requests, 60 otherwise
func DefaultDuration(text string) int {
	if quickPattern.MatchString(text) {
		return 30
	}
	return 60
}

var timestampLayouts = []string{
	"2006-01-02T15:04:05",
	"2006-01-02T15:04",
	"2006-01-02 15:04:05",
	"2006-01-02 15:04",
	"2006-01-02",
}

func parseTimestamp(s string, loc *time.Location) (time.Time, error) {
	s = strings.TrimSpace(s)
	if t, err := time.Parse(time.RFC3339, s); err == nil {
		return t.In(loc), nil
	}
	for _, layout := range timestampLayouts {
		if t, err := time.ParseInLocation(layout, s, loc); err == nil {
			return t, nil
		}
	}
	return time.Time{}, fmt.Errorf("unrecognized timestamp %q", s)
}
