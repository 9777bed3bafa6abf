package meeting

import (
	"context"
	"errors"
	"testing"
	"time"
	_ "time/tzdata"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"smart-mail-assistant-go/internal/llm"
)

// Sunday
var fixedNow = time.Date(2025, 11, 23, 10, 0, 0, 0, time.UTC)

type fakeLLM struct {
	reply string
	err   error
	calls int
}

func (f *fakeLLM) Chat(ctx context.Context, messages []llm.Message, opts llm.Options) (string, error) {
	f.calls++
	return f.reply, f.err
}

func newResolver(t *testing.T, opts ...Option) *Resolver {
	t.Helper()
	r, err := NewResolver("UTC", append([]Option{WithClock(func() time.Time { return fixedNow })}, opts...)...)
	require.NoError(t, err)
	return r
}

func TestFallbackTomorrowMorning(t *testing.T) {
	spec, err := newResolver(t).Resolve(context.Background(), Request{Text: "create a meeting tomorrow 9am"})
	require.NoError(t, err)

	assert.Equal(t, time.Date(2025, 11, 24, 9, 0, 0, 0, time.UTC), spec.Start)
	assert.Equal(t, time.Date(2025, 11, 24, 9, 30, 0, 0, time.UTC), spec.End)
	assert.Equal(t, "Meeting", spec.Title)
	assert.Equal(t, "fallback", spec.Source)
	assert.Equal(t, "UTC", spec.Timezone)
	assert.Nil(t, spec.Recurrence)
}

func TestFallbackIsDeterministic(t *testing.T) {
	r := newResolver(t)
	first, err := r.Resolve(context.Background(), Request{Text: "create a meeting tomorrow 9am"})
	require.NoError(t, err)
	second, err := r.Resolve(context.Background(), Request{Text: "create a meeting tomorrow 9am"})
	require.NoError(t, err)
	assert.Equal(t, first, second)
}

func TestFallbackRecurringWeekday(t *testing.T) {
	spec, err := newResolver(t).Resolve(context.Background(), Request{Text: "every thursday 9 to 9.30am"})
	require.NoError(t, err)

	require.NotNil(t, spec.Recurrence)
	assert.Equal(t, "weekly", spec.Recurrence.Frequency)
	assert.Equal(t, []string{"TH"}, spec.Recurrence.ByDay)
	assert.Equal(t, time.Thursday, spec.Start.Weekday())
	assert.Equal(t, time.Date(2025, 11, 27, 9, 0, 0, 0, time.UTC), spec.Start)
	assert.Equal(t, 30*time.Minute, spec.Duration())

	rule, err := BuildRecurrenceRule(*spec.Recurrence)
	require.NoError(t, err)
	assert.Equal(t, "RRULE:FREQ=WEEKLY;INTERVAL=1;BYDAY=TH", rule)
}

func TestFallbackAnchors(t *testing.T) {
	cases := map[string]time.Time{
		"call today at 3":             time.Date(2025, 11, 23, 15, 0, 0, 0, time.UTC),
		"sync on sunday 11am":         time.Date(2025, 11, 30, 11, 0, 0, 0, time.UTC),
		"review on monday at 2:15pm":  time.Date(2025, 11, 24, 14, 15, 0, 0, time.UTC),
		"chat at 8am":                 time.Date(2025, 11, 24, 8, 0, 0, 0, time.UTC),
		"lunch 12.30pm":               time.Date(2025, 11, 23, 12, 30, 0, 0, time.UTC),
		"planning friday 16:00":       time.Date(2025, 11, 28, 16, 0, 0, 0, time.UTC),
		"daily standup tomorrow 10am": time.Date(2025, 11, 24, 10, 0, 0, 0, time.UTC),
		"call with 2 to 3 people tomorrow at 4pm": time.Date(2025, 11, 24, 16, 0, 0, 0, time.UTC),
		"demo for 5 to 6 guests on friday at 11am": time.Date(2025, 11, 28, 11, 0, 0, 0, time.UTC),
	}
	r := newResolver(t)
	for text, want := range cases {
		t.Run(text, func(t *testing.T) {
			spec, err := r.Resolve(context.Background(), Request{Text: text})
			require.NoError(t, err)
			assert.Equal(t, want, spec.Start)
			assert.Equal(t, want.Add(30*time.Minute), spec.End)
		})
	}
}

func TestFallbackRanges(t *testing.T) {
	r := newResolver(t)

	spec, err := r.Resolve(context.Background(), Request{Text: "workshop tomorrow from 2 to 4"})
	require.NoError(t, err)
	assert.Equal(t, time.Date(2025, 11, 24, 14, 0, 0, 0, time.UTC), spec.Start)
	assert.Equal(t, time.Date(2025, 11, 24, 16, 0, 0, 0, time.UTC), spec.End)

	spec, err = r.Resolve(context.Background(), Request{Text: "review tomorrow 10:30 - 11am"})
	require.NoError(t, err)
	assert.Equal(t, time.Date(2025, 11, 24, 10, 30, 0, 0, time.UTC), spec.Start)
	assert.Equal(t, 30*time.Minute, spec.Duration())
}

func TestFallbackRejectsPastTimeToday(t *testing.T) {
	_, err := newResolver(t).Resolve(context.Background(), Request{Text: "standup today 9am"})
	var verr *ValidationError
	require.ErrorAs(t, err, &verr)
	assert.Contains(t, verr.Reason, "already passed")
}

func TestFallbackUsesRequestTimezone(t *testing.T) {
	spec, err := newResolver(t).Resolve(context.Background(), Request{Text: "tomorrow 9am", Timezone: "America/New_York"})
	require.NoError(t, err)
	ny, err := time.LoadLocation("America/New_York")
	require.NoError(t, err)
	assert.Equal(t, time.Date(2025, 11, 24, 9, 0, 0, 0, ny).Unix(), spec.Start.Unix())
	assert.Equal(t, "America/New_York", spec.Timezone)
}

func TestMissingDatetime(t *testing.T) {
	_, err := newResolver(t).Resolve(context.Background(), Request{Text: "let's catch up sometime"})
	assert.ErrorIs(t, err, ErrMissingDatetime)

	model := &fakeLLM{reply: `{"error":"missing_datetime"}`}
	_, err = newResolver(t, WithLLM(model, llm.Options{})).Resolve(context.Background(), Request{Text: "let's catch up sometime"})
	assert.ErrorIs(t, err, ErrMissingDatetime)
	assert.Equal(t, 1, model.calls)
}

func TestLLMStageCompletesEndTime(t *testing.T) {
	model := &fakeLLM{reply: "```json\n{\"title\":\"Quick sync with Ana\",\"start_time\":\"2025-11-25T15:00:00\",\"end_time\":\"\",\"duration_minutes\":0}\n```"}
	spec, err := newResolver(t, WithLLM(model, llm.Options{})).Resolve(context.Background(), Request{Text: "quick sync with Ana tuesday 3pm"})
	require.NoError(t, err)

	assert.Equal(t, "llm", spec.Source)
	assert.Equal(t, "Quick sync with Ana", spec.Title)
	assert.Equal(t, time.Date(2025, 11, 25, 15, 0, 0, 0, time.UTC), spec.Start)
	assert.Equal(t, 30*time.Minute, spec.Duration())
}

func TestLLMStageDefaultsToAnHour(t *testing.T) {
	model := &fakeLLM{reply: `{"title":"Budget review","start_time":"2025-11-25T15:00:00Z","recurring":{"frequency":"weekly","interval":2,"days":["tuesday"],"count":4}}`}
	spec, err := newResolver(t, WithLLM(model, llm.Options{})).Resolve(context.Background(), Request{Text: "budget review tuesday 3pm"})
	require.NoError(t, err)
	assert.Equal(t, time.Hour, spec.Duration())

	rule, err := BuildRecurrenceRule(*spec.Recurrence)
	require.NoError(t, err)
	assert.Equal(t, "RRULE:FREQ=WEEKLY;INTERVAL=2;BYDAY=TU;COUNT=4", rule)
}

func TestLLMStageValidation(t *testing.T) {
	cases := map[string]string{
		"inverted":  `{"start_time":"2025-11-25T15:00:00","end_time":"2025-11-25T14:00:00"}`,
		"equal":     `{"start_time":"2025-11-25T15:00:00","end_time":"2025-11-25T15:00:00"}`,
		"bad start": `{"start_time":"next tuesdayish"}`,
		"bad end":   `{"start_time":"2025-11-25T15:00:00","end_time":"later"}`,
	}
	for name, reply := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := newResolver(t, WithLLM(&fakeLLM{reply: reply}, llm.Options{})).Resolve(context.Background(), Request{Text: "meeting tuesday 3pm"})
			var verr *ValidationError
			require.True(t, errors.As(err, &verr), "got %v", err)
			assert.Contains(t, verr.Error(), "VALIDATION_ERROR: ")
		})
	}
}

func TestLLMFailureFallsBack(t *testing.T) {
	for name, model := range map[string]*fakeLLM{
		"call error":  {err: errors.New("503")},
		"unparseable": {reply: "I think tomorrow works!"},
	} {
		t.Run(name, func(t *testing.T) {
			spec, err := newResolver(t, WithLLM(model, llm.Options{})).Resolve(context.Background(), Request{Text: "create a meeting tomorrow 9am"})
			require.NoError(t, err)
			assert.Equal(t, "fallback", spec.Source)
			assert.Equal(t, time.Date(2025, 11, 24, 9, 0, 0, 0, time.UTC), spec.Start)
		})
	}
}

func TestInferTitle(t *testing.T) {
	assert.Equal(t, "Budget review", InferTitle("schedule budget review friday 3pm", nil))
	assert.Equal(t, "Meeting with Priya", InferTitle("set up a meeting with Priya tomorrow at 10", nil))
	assert.Equal(t, "Project Atlas", InferTitle("create a meeting tomorrow 9am", []string{"hello", "can we sync on project Atlas?"}))
	assert.Equal(t, "Q4 hiring plan", InferTitle("book a call tomorrow 9am", []string{"we need to talk about the Q4 hiring plan."}))
	assert.Equal(t, "Meeting", InferTitle("create a meeting tomorrow 9am", []string{"ok"}))
}

func TestDefaultDuration(t *testing.T) {
	assert.Equal(t, 30, DefaultDuration("quick check-in"))
	assert.Equal(t, 30, DefaultDuration("Daily Standup"))
	assert.Equal(t, 60, DefaultDuration("quarterly planning"))
}

func TestBuildRecurrenceRule(t *testing.T) {
	until := time.Date(2026, 1, 31, 0, 0, 0, 0, time.UTC)
	rule, err := BuildRecurrenceRule(Recurrence{Frequency: "monthly", Until: &until})
	require.NoError(t, err)
	assert.Equal(t, "RRULE:FREQ=MONTHLY;INTERVAL=1;UNTIL=20260131T000000Z", rule)

	_, err = BuildRecurrenceRule(Recurrence{Frequency: "hourly"})
	assert.Error(t, err)
	_, err = BuildRecurrenceRule(Recurrence{Frequency: "daily", Until: &until, Count: 3})
	assert.Error(t, err)
	_, err = BuildRecurrenceRule(Recurrence{Frequency: "weekly", ByDay: []string{"funday"}})
	assert.Error(t, err)
}
