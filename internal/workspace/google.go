package workspace

import (
	"context"
	"encoding/base64"
	"fmt"
	"time"

	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"
	calendar "google.golang.org/api/calendar/v3"
	gmail "google.golang.org/api/gmail/v1"
	"google.golang.org/api/option"
	tasks "google.golang.org/api/tasks/v1"

	"github.com/sirupsen/logrus"

	"smart-mail-assistant-go/internal/config"
)

const (
	primaryCalendar = "primary"
	defaultTaskList = "@default"
)

// Google implements Workspace on Gmail, Calendar and Tasks
type Google struct {
	gmail    *gmail.Service
	calendar *calendar.Service
	tasks    *tasks.Service
	user     string
}

// TokenSource builds a refreshing token source from the configured refresh token
func TokenSource(ctx context.Context, cfg config.GmailConfig, scopes ...string) oauth2.TokenSource {
	oauth2Config := &oauth2.Config{
		ClientID:     cfg.ClientID,
		ClientSecret: cfg.ClientSecret,
		Scopes:       scopes,
		Endpoint:     google.Endpoint,
	}
	return oauth2Config.TokenSource(ctx, &oauth2.Token{RefreshToken: cfg.RefreshToken})
}

// NewGoogleFromConfig creates a Google workspace authenticated with the configured refresh token
func NewGoogleFromConfig(ctx context.Context, cfg config.GmailConfig) (*Google, error) {
	ts := TokenSource(ctx, cfg, AllOAuthScopes()...)
	user := cfg.UserEmail
	if user == "" {
		user = "me"
	}
	return NewGoogle(ctx, user, option.WithTokenSource(ts))
}

// NewGoogle creates the three Google services sharing the same client options
func NewGoogle(ctx context.Context, user string, opts ...option.ClientOption) (*Google, error) {
	gm, err := gmail.NewService(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create Gmail service: %w", err)
	}
	cal, err := calendar.NewService(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create Calendar service: %w", err)
	}
	ts, err := tasks.NewService(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create Tasks service: %w", err)
	}
	return &Google{gmail: gm, calendar: cal, tasks: ts, user: user}, nil
}

func (g *Google) modify(ctx context.Context, messageID string, req *gmail.ModifyMessageRequest) error {
	if _, err := g.gmail.Users.Messages.Modify(g.user, messageID, req).Context(ctx).Do(); err != nil {
		return fmt.Errorf("failed to modify message %s: %w", messageID, err)
	}
	return nil
}

func (g *Google) MarkRead(ctx context.Context, messageID string) error {
	return g.modify(ctx, messageID, &gmail.ModifyMessageRequest{RemoveLabelIds: []string{"UNREAD"}})
}

func (g *Google) MarkImportant(ctx context.Context, messageID string) error {
	return g.modify(ctx, messageID, &gmail.ModifyMessageRequest{AddLabelIds: []string{"IMPORTANT"}})
}

func (g *Google) Trash(ctx context.Context, messageID string) error {
	if _, err := g.gmail.Users.Messages.Trash(g.user, messageID).Context(ctx).Do(); err != nil {
		return fmt.Errorf("failed to trash message %s: %w", messageID, err)
	}
	return nil
}

// Send delivers an RFC 5322 message and returns the sent message id
func (g *Google) Send(ctx context.Context, raw []byte) (string, error) {
	msg := &gmail.Message{Raw: base64.URLEncoding.EncodeToString(raw)}
	sent, err := g.gmail.Users.Messages.Send(g.user, msg).Context(ctx).Do()
	if err != nil {
		return "", fmt.Errorf("failed to send message: %w", err)
	}
	logrus.Infof("Sent message %s", sent.Id)
	return sent.Id, nil
}

func (g *Google) CreateTask(ctx context.Context, task Task) (string, error) {
	t := &tasks.Task{Title: task.Title, Notes: task.Notes}
	if task.Due != nil {
		t.Due = task.Due.UTC().Format(time.RFC3339)
	}
	created, err := g.tasks.Tasks.Insert(defaultTaskList, t).Context(ctx).Do()
	if err != nil {
		return "", fmt.Errorf("failed to create task: %w", err)
	}
	return created.Id, nil
}

func (g *Google) CreateEvent(ctx context.Context, event Event) (*CreatedEvent, error) {
	ev := &calendar.Event{
		Summary:     event.Title,
		Description: event.Description,
		Location:    event.Location,
		Start:       &calendar.EventDateTime{DateTime: event.Start.Format(time.RFC3339), TimeZone: event.Timezone},
		End:         &calendar.EventDateTime{DateTime: event.End.Format(time.RFC3339), TimeZone: event.Timezone},
		Recurrence:  event.Recurrence,
	}
	for _, email := range event.Attendees {
		ev.Attendees = append(ev.Attendees, &calendar.EventAttendee{Email: email})
	}

	created, err := g.calendar.Events.Insert(primaryCalendar, ev).Context(ctx).Do()
	if err != nil {
		return nil, fmt.Errorf("failed to create event: %w", err)
	}
	return &CreatedEvent{ID: created.Id, Link: created.HtmlLink}, nil
}

// FreeBusy returns the busy intervals of the primary calendar between from and to
func (g *Google) FreeBusy(ctx context.Context, from, to time.Time, timezone string) ([]Interval, error) {
	req := &calendar.FreeBusyRequest{
		TimeMin:  from.Format(time.RFC3339),
		TimeMax:  to.Format(time.RFC3339),
		TimeZone: timezone,
		Items:    []*calendar.FreeBusyRequestItem{{Id: primaryCalendar}},
	}
	resp, err := g.calendar.Freebusy.Query(req).Context(ctx).Do()
	if err != nil {
		return nil, fmt.Errorf("failed to query free/busy: %w", err)
	}

	cal, ok := resp.Calendars[primaryCalendar]
	if !ok {
		return nil, nil
	}
	busy := make([]Interval, 0, len(cal.Busy))
	for _, period := range cal.Busy {
		start, err := time.Parse(time.RFC3339, period.Start)
		if err != nil {
			logrus.Warnf("Skipping busy period with bad start %q: %v", period.Start, err)
			continue
		}
		end, err := time.Parse(time.RFC3339, period.End)
		if err != nil {
			logrus.Warnf("Skipping busy period with bad end %q: %v", period.End, err)
			continue
		}
		busy = append(busy, Interval{Start: start, End: end})
	}
	return busy, nil
}
