// Package meeting turns free-text scheduling requests into validated time ranges.
package meeting

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"

	"smart-mail-assistant-go/internal/llm"
)

// ErrMissingDatetime is returned when neither the model nor the fallback parser finds a time
var ErrMissingDatetime = errors.New("MISSING_DATETIME")

// ValidationError reports a malformed or inverted time range
type ValidationError struct {
	Reason string
}

func (e *ValidationError) Error() string {
	return "VALIDATION_ERROR: " + e.Reason
}

// Recurrence describes a repeating event
type Recurrence struct {
	Frequency string     `json:"frequency"`
	Interval  int        `json:"interval,omitempty"`
	ByDay     []string   `json:"by_day,omitempty"`
	Until     *time.Time `json:"until,omitempty"`
	Count     int        `json:"count,omitempty"`
}

// Spec is a resolved meeting, ready to be sent to a calendar
type Spec struct {
	Title       string      `json:"title"`
	Description string      `json:"description,omitempty"`
	Start       time.Time   `json:"start"`
	End         time.Time   `json:"end"`
	Timezone    string      `json:"timezone"`
	Location    string      `json:"location,omitempty"`
	Attendees   []string    `json:"attendees,omitempty"`
	Recurrence  *Recurrence `json:"recurrence,omitempty"`
	Source      string      `json:"source"`
}

// Duration returns the length of the meeting
func (s *Spec) Duration() time.Duration {
	return s.End.Sub(s.Start)
}

// Request is one resolution call
type Request struct {
	Text     string
	History  []string
	Timezone string
}

// Resolver runs the model parse, validation, deterministic fallback and title inference stages
type Resolver struct {
	client   llm.Client
	opts     llm.Options
	location *time.Location
	now      func() time.Time
}

// Option customizes a Resolver
type Option func(*Resolver)

// WithClock replaces the wall clock
func WithClock(now func() time.Time) Option {
	return func(r *Resolver) { r.now = now }
}

// WithLLM enables the model parsing stage
func WithLLM(client llm.Client, opts llm.Options) Option {
	return func(r *Resolver) {
		r.client = client
		r.opts = opts
	}
}

// NewResolver creates a resolver whose default timezone is defaultTZ
func NewResolver(defaultTZ string, opts ...Option) (*Resolver, error) {
	loc, err := time.LoadLocation(defaultTZ)
	if err != nil {
		return nil, fmt.Errorf("invalid default timezone %q: %w", defaultTZ, err)
	}
	r := &Resolver{location: loc, now: time.Now}
	for _, opt := range opts {
		opt(r)
	}
	return r, nil
}

// Resolve produces a meeting spec from free text
func (r *Resolver) Resolve(ctx context.Context, req Request) (*Spec, error) {
	loc := r.location
	if req.Timezone != "" {
		l, err := time.LoadLocation(req.Timezone)
		if err != nil {
			return nil, &ValidationError{Reason: fmt.Sprintf("unknown timezone %q", req.Timezone)}
		}
		loc = l
	}
	now := r.now().In(loc)

	var (
		spec      *Spec
		llmSignal error
	)
	if r.client != nil {
		parsed, err := r.parseWithLLM(ctx, req.Text, now, loc)
		switch {
		case err == nil:
			spec, err = complete(parsed, req.Text, loc)
			if err != nil {
				return nil, err
			}
		case errors.Is(err, errNoDatetime):
			llmSignal = ErrMissingDatetime
		default:
			logrus.Warnf("Meeting LLM parse failed, using fallback parser: %v", err)
			llmSignal = err
		}
	}

	if spec == nil {
		fb, ok := parseFallback(req.Text, now)
		if !ok {
			if llmSignal != nil && !errors.Is(llmSignal, ErrMissingDatetime) {
				return nil, fmt.Errorf("%w (model parse: %v)", ErrMissingDatetime, llmSignal)
			}
			return nil, ErrMissingDatetime
		}
		if !fb.Start.After(now) {
			return nil, &ValidationError{Reason: fmt.Sprintf("start time %s has already passed", fb.Start.Format(time.RFC3339))}
		}
		spec = fb
	}

	if spec.Title == "" {
		spec.Title = InferTitle(req.Text, req.History)
	}
	if spec.Description == "" {
		spec.Description = req.Text
	}
	spec.Timezone = loc.String()
	return spec, nil
}
