package actions

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"smart-mail-assistant-go/internal/meeting"
	"smart-mail-assistant-go/internal/model"
	"smart-mail-assistant-go/internal/workspace"
)

// handler executes one action type against the workspace
type handler struct {
	Scope    workspace.Scope
	Required []string
	Run      func(ctx context.Context, s *Service, msg *model.InboundMessage, payload model.JSONMap) (map[string]any, error)
}

var handlers = map[string]handler{
	model.ActionMarkAsRead: {
		Scope: workspace.ScopeMailboxModify,
		Run: func(ctx context.Context, s *Service, msg *model.InboundMessage, _ model.JSONMap) (map[string]any, error) {
			return map[string]any{"message_id": msg.ExternalID}, s.ws.MarkRead(ctx, msg.ExternalID)
		},
	},
	model.ActionMarkAsPriority: {
		Scope: workspace.ScopeMailboxModify,
		Run: func(ctx context.Context, s *Service, msg *model.InboundMessage, _ model.JSONMap) (map[string]any, error) {
			return map[string]any{"message_id": msg.ExternalID}, s.ws.MarkImportant(ctx, msg.ExternalID)
		},
	},
	model.ActionTrash: {
		Scope: workspace.ScopeMailboxModify,
		Run: func(ctx context.Context, s *Service, msg *model.InboundMessage, _ model.JSONMap) (map[string]any, error) {
			return map[string]any{"message_id": msg.ExternalID}, s.ws.Trash(ctx, msg.ExternalID)
		},
	},
	model.ActionReply: {
		Scope:    workspace.ScopeMailboxSend,
		Required: []string{"body"},
		Run:      runReply,
	},
	model.ActionSendEmail: {
		Scope:    workspace.ScopeMailboxSend,
		Required: []string{"to", "subject", "body"},
		Run:      runSendEmail,
	},
	model.ActionCreateTask: {
		Scope:    workspace.ScopeTasks,
		Required: []string{"title"},
		Run:      runCreateTask,
	},
	model.ActionCreateEvent: {
		Scope: workspace.ScopeCalendar,
		Run:   runCreateEvent,
	},
	model.ActionCreateMeeting: {
		Scope: workspace.ScopeCalendar,
		Run:   runCreateEvent,
	},
}

// ScopeFor returns the permission scope an action type needs
func ScopeFor(actionType string) (workspace.Scope, bool) {
	h, ok := handlers[actionType]
	return h.Scope, ok
}

func missingField(payload model.JSONMap, required []string) error {
	for _, field := range required {
		v, ok := payload[field]
		if !ok || v == nil {
			return MissingField(field)
		}
		if s, isString := v.(string); isString && strings.TrimSpace(s) == "" {
			return MissingField(field)
		}
	}
	return nil
}

func runReply(ctx context.Context, s *Service, msg *model.InboundMessage, payload model.JSONMap) (map[string]any, error) {
	to := recipients(payload["to"])
	if len(to) == 0 {
		to = []string{msg.Sender}
	}
	subject := payload.String("subject")
	if subject == "" {
		subject = workspace.ReplySubject(msg.Subject)
	}
	return s.send(ctx, workspace.Email{
		To:        to,
		Cc:        recipients(payload["cc"]),
		Subject:   subject,
		Body:      payload.String("body"),
		InReplyTo: payload.String("in_reply_to"),
	})
}

func runSendEmail(ctx context.Context, s *Service, _ *model.InboundMessage, payload model.JSONMap) (map[string]any, error) {
	to := recipients(payload["to"])
	if len(to) == 0 {
		return nil, MissingField("to")
	}
	return s.send(ctx, workspace.Email{
		To:      to,
		Cc:      recipients(payload["cc"]),
		Subject: payload.String("subject"),
		Body:    payload.String("body"),
	})
}

func (s *Service) send(ctx context.Context, email workspace.Email) (map[string]any, error) {
	email.From = s.sender
	email.Date = s.now()
	raw, err := workspace.BuildRaw(email)
	if err != nil {
		return nil, &Error{Code: CodeValidation, Message: err.Error(), Err: err}
	}
	id, err := s.ws.Send(ctx, raw)
	if err != nil {
		return nil, err
	}
	return map[string]any{"sent_id": id, "to": email.To}, nil
}

func runCreateTask(ctx context.Context, s *Service, _ *model.InboundMessage, payload model.JSONMap) (map[string]any, error) {
	task := workspace.Task{Title: payload.String("title"), Notes: payload.String("notes")}
	if due := payload.String("due_date"); due != "" {
		t, err := parseDue(due)
		if err != nil {
			return nil, &Error{Code: CodeValidation, Message: fmt.Sprintf("bad due_date %q", due), Err: err}
		}
		task.Due = &t
	}
	id, err := s.ws.CreateTask(ctx, task)
	if err != nil {
		return nil, err
	}
	return map[string]any{"task_id": id, "title": task.Title}, nil
}

func parseDue(s string) (time.Time, error) {
	if t, err := time.Parse(time.RFC3339, s); err == nil {
		return t, nil
	}
	return time.Parse("2006-01-02", s)
}

func runCreateEvent(ctx context.Context, s *Service, msg *model.InboundMessage, payload model.JSONMap) (map[string]any, error) {
	spec, err := s.meetingFromPayload(ctx, msg, payload)
	if err != nil {
		return nil, err
	}

	event := workspace.Event{
		Title:       spec.Title,
		Description: spec.Description,
		Location:    spec.Location,
		Start:       spec.Start,
		End:         spec.End,
		Timezone:    spec.Timezone,
		Attendees:   spec.Attendees,
	}
	if spec.Recurrence != nil {
		rule, err := meeting.BuildRecurrenceRule(*spec.Recurrence)
		if err != nil {
			return nil, &Error{Code: CodeValidation, Message: err.Error(), Err: err}
		}
		event.Recurrence = []string{rule}
	}

	created, err := s.ws.CreateEvent(ctx, event)
	if err != nil {
		return nil, err
	}
	result := map[string]any{
		"event_id":   created.ID,
		"title":      spec.Title,
		"start_time": spec.Start.Format(time.RFC3339),
		"end_time":   spec.End.Format(time.RFC3339),
	}
	if created.Link != "" {
		result["link"] = created.Link
	}
	if len(event.Recurrence) > 0 {
		result["recurrence"] = event.Recurrence[0]
	}
	return result, nil
}

// meetingFromPayload reads explicit times from the payload, or resolves them from free text
func (s *Service) meetingFromPayload(ctx context.Context, msg *model.InboundMessage, payload model.JSONMap) (*meeting.Spec, error) {
	tz := payload.String("timezone")
	if payload.String("start_time") == "" {
		text := payload.String("text")
		if text == "" {
			text = strings.TrimSpace(msg.Subject + "\n" + msg.BodyPlain)
		}
		spec, err := s.resolver.Resolve(ctx, meeting.Request{Text: text, Timezone: tz})
		if err != nil {
			return nil, resolverError(err)
		}
		if title := payload.String("title"); title != "" {
			spec.Title = title
		}
		spec.Attendees = append(spec.Attendees, recipients(payload["attendees"])...)
		return spec, nil
	}

	loc := time.UTC
	if tz != "" {
		l, err := time.LoadLocation(tz)
		if err != nil {
			return nil, &Error{Code: CodeValidation, Message: fmt.Sprintf("unknown timezone %q", tz), Err: err}
		}
		loc = l
	}
	start, err := time.Parse(time.RFC3339, payload.String("start_time"))
	if err != nil {
		return nil, &Error{Code: CodeValidation, Message: "start_time must be RFC3339", Err: err}
	}
	title := payload.String("title")
	if title == "" {
		title = meeting.InferTitle(payload.String("text"), nil)
	}
	end := start.Add(time.Duration(meeting.DefaultDuration(title)) * time.Minute)
	if raw := payload.String("end_time"); raw != "" {
		if end, err = time.Parse(time.RFC3339, raw); err != nil {
			return nil, &Error{Code: CodeValidation, Message: "end_time must be RFC3339", Err: err}
		}
	}
	if !end.After(start) {
		return nil, &Error{Code: CodeValidation, Message: "end_time must be after start_time"}
	}

	spec := &meeting.Spec{
		Title:       title,
		Description: payload.String("description"),
		Start:       start.In(loc),
		End:         end.In(loc),
		Timezone:    loc.String(),
		Location:    payload.String("location"),
		Attendees:   recipients(payload["attendees"]),
	}
	if rec, ok := payload["recurrence"].(map[string]any); ok {
		spec.Recurrence = recurrenceFrom(rec)
	}
	return spec, nil
}

func resolverError(err error) error {
	var verr *meeting.ValidationError
	switch {
	case errors.Is(err, meeting.ErrMissingDatetime):
		return &Error{Code: CodeMissingDatetime, Message: "no date or time found in the request", Err: err}
	case errors.As(err, &verr):
		return &Error{Code: CodeValidation, Message: verr.Reason, Err: err}
	default:
		return err
	}
}

func recurrenceFrom(m map[string]any) *meeting.Recurrence {
	payload := model.JSONMap(m)
	freq := payload.String("frequency")
	if freq == "" {
		return nil
	}
	r := &meeting.Recurrence{Frequency: freq, ByDay: recipients(m["by_day"])}
	if n, ok := m["interval"].(float64); ok {
		r.Interval = int(n)
	} else if n, ok := m["interval"].(int); ok {
		r.Interval = n
	}
	if n, ok := m["count"].(float64); ok {
		r.Count = int(n)
	} else if n, ok := m["count"].(int); ok {
		r.Count = n
	}
	if until := payload.String("until"); until != "" {
		if t, err := time.Parse(time.RFC3339, until); err == nil {
			r.Until = &t
		}
	}
	return r
}

// recipients accepts a string, a comma separated string or a list
func recipients(v any) []string {
	var out []string
	add := func(s string) {
		for _, part := range strings.Split(s, ",") {
			if part = strings.TrimSpace(part); part != "" {
				out = append(out, part)
			}
		}
	}
	switch t := v.(type) {
	case string:
		add(t)
	case []string:
		for _, s := range t {
			add(s)
		}
	case []any:
		for _, item := range t {
			if s, ok := item.(string); ok {
				add(s)
			}
		}
	}
	return out
}
