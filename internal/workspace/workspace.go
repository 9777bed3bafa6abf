package workspace

import (
	"context"
	"time"

	calendar "google.golang.org/api/calendar/v3"
	gmail "google.golang.org/api/gmail/v1"
	tasks "google.golang.org/api/tasks/v1"
)

// Scope names the permission an action needs from the user's workspace account
type Scope string

const (
	ScopeMailboxRead   Scope = "mailbox-read"
	ScopeMailboxModify Scope = "mailbox-modify"
	ScopeMailboxSend   Scope = "mailbox-send"
	ScopeCalendar      Scope = "calendar"
	ScopeTasks         Scope = "tasks"
)

// OAuthScopes maps each Scope to the Google OAuth scope granting it
var OAuthScopes = map[Scope]string{
	ScopeMailboxRead:   gmail.GmailReadonlyScope,
	ScopeMailboxModify: gmail.GmailModifyScope,
	ScopeMailboxSend:   gmail.GmailSendScope,
	ScopeCalendar:      calendar.CalendarScope,
	ScopeTasks:         tasks.TasksScope,
}

// Scopes lists every capability in request order
var Scopes = []Scope{ScopeMailboxRead, ScopeMailboxModify, ScopeMailboxSend, ScopeCalendar, ScopeTasks}

// AllOAuthScopes returns every Google scope the assistant may request
func AllOAuthScopes() []string {
	out := make([]string, 0, len(Scopes))
	for _, s := range Scopes {
		out = append(out, OAuthScopes[s])
	}
	return out
}

// Interval is a half-open time range [Start, End)
type Interval struct {
	Start time.Time `json:"start"`
	End   time.Time `json:"end"`
}

// Overlaps reports whether the two intervals share any instant
func (i Interval) Overlaps(o Interval) bool {
	return i.Start.Before(o.End) && o.Start.Before(i.End)
}

// Task is a to-do item to create in the user's default task list
type Task struct {
	Title string
	Notes string
	Due   *time.Time
}

// Event is a calendar event to create on the primary calendar
type Event struct {
	Title       string
	Description string
	Location    string
	Start       time.Time
	End         time.Time
	Timezone    string
	Attendees   []string
	Recurrence  []string
}

// CreatedEvent identifies an event after insertion
type CreatedEvent struct {
	ID   string `json:"id"`
	Link string `json:"link,omitempty"`
}

// Workspace is the set of external mutating operations actions run against
type Workspace interface {
	MarkRead(ctx context.Context, messageID string) error
	MarkImportant(ctx context.Context, messageID string) error
	Trash(ctx context.Context, messageID string) error
	Send(ctx context.Context, raw []byte) (string, error)
	CreateTask(ctx context.Context, task Task) (string, error)
	CreateEvent(ctx context.Context, event Event) (*CreatedEvent, error)
	FreeBusy(ctx context.Context, from, to time.Time, timezone string) ([]Interval, error)
}
