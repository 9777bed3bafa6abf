package suggest

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"strings"
	"time"

	"smart-mail-assistant-go/internal/llm"
	"smart-mail-assistant-go/internal/meeting"
	"smart-mail-assistant-go/internal/model"
)

const actionSchema = `{"summary": string, "priority": "low|medium|high|urgent",
"actions": [{"type": "reply|send_email|create_task|create_event|mark_as_read|mark_as_priority|trash",
"title": string, "payload": object, "confidence": number between 0 and 1, "reasoning": string}],
"followups": [string]}`

func (e *Engine) registerDefaults(resolver *meeting.Resolver) {
	e.Register(&templateProcessor{
		kind:   KindEmailActions,
		detect: regexp.MustCompile(`(?i)\b(what should i do|suggest(ed)? actions?|triage|next steps?|how should i (respond|handle))\b`),
		system: "You are an email assistant. Suggest concrete follow-up actions for the email. " +
			"Respond with ONLY a JSON object matching: " + actionSchema + "\n" +
			"Payload fields: reply/send_email {to, subject, body}; create_task {title, notes, due_date}; " +
			"create_event {title, description, start_time, end_time, attendees, text}.",
		collect:  e.collectMessage,
		prompt:   emailPrompt("Suggest actions for this email."),
		validate: validateEmailActions,
		client:   e.client,
	})

	e.Register(&templateProcessor{
		kind:   KindDailyBriefing,
		detect: regexp.MustCompile(`(?i)\b(briefing|daily digest|what did i miss|catch me up|today'?s (emails|inbox))\b`),
		system: "You write a short daily inbox briefing. Respond with ONLY a JSON object: " +
			`{"summary": string, "highlights": [string], "urgent": [string]}`,
		collect:  e.collectRecent,
		prompt:   briefingPrompt,
		validate: validateBriefing,
		client:   e.client,
	})

	e.Register(&templateProcessor{
		kind:   KindMeetingNotes,
		detect: regexp.MustCompile(`(?i)\b(meeting notes|minutes|notes from|action items|recap)\b`),
		system: "You turn meeting notes into a summary and action items. Respond with ONLY a JSON object: " +
			`{"summary": string, "decisions": [string], "action_items": [{"title": string, "owner": string, "due_date": string}]}`,
		prompt:   textPrompt("Meeting notes"),
		validate: validateMeetingNotes,
		client:   e.client,
	})

	e.Register(&templateProcessor{
		kind:   KindEmailSummary,
		detect: regexp.MustCompile(`(?i)\b(summari[sz]e|summary|tl;?dr)\b`),
		system: "You summarize emails. Respond with ONLY a JSON object: " +
			`{"summary": string, "priority": "low|medium|high|urgent", "key_points": [string], "action_required": boolean}`,
		collect: e.collectMessage,
		prompt:  emailPrompt("Summarize this email."),
		validate: func(obj map[string]any, pc *PromptContext) (*Result, error) {
			return &Result{
				Summary:  strings.TrimSpace(asString(obj["summary"])),
				Priority: normalizePriority(obj["priority"]),
				Data: map[string]any{
					"key_points":      asStringList(obj["key_points"]),
					"action_required": obj["action_required"] == true,
				},
			}, nil
		},
		client: e.client,
	})

	e.Register(&meetingProcessor{
		detect:   regexp.MustCompile(`(?i)\b(schedule|set ?up|book|arrange|create|plan)\b.*\b(meeting|call|sync|standup|stand-up|appointment|event)\b|\b(meeting|call|sync|standup)\b.*\b(today|tomorrow|monday|tuesday|wednesday|thursday|friday|saturday|sunday|\d{1,2}([:.]\d{2})?\s*(am|pm))\b`),
		resolver: resolver,
	})

	e.Register(&templateProcessor{
		kind:   KindCreateTask,
		detect: regexp.MustCompile(`(?i)\b(remind me|to-?do|add (a )?task|create (a )?task|don'?t forget|follow up on)\b`),
		system: "You turn a request into a single task. Respond with ONLY a JSON object: " +
			`{"title": string, "notes": string, "due_date": "YYYY-MM-DD" or "", "confidence": number}`,
		collect:  e.collectOptionalMessage,
		prompt:   textPrompt("Request"),
		validate: validateTask,
		client:   e.client,
	})

	e.Register(&templateProcessor{
		kind:   KindChatResponse,
		system: "You are a helpful email assistant. Respond with ONLY a JSON object: " + `{"reply": string, "followups": [string]}`,
		prompt: chatPrompt,
		validate: func(obj map[string]any, pc *PromptContext) (*Result, error) {
			return &Result{
				Data:      map[string]any{"reply": strings.TrimSpace(asString(obj["reply"]))},
				Followups: asStringList(obj["followups"]),
			}, nil
		},
		client: e.client,
	})
}

func (e *Engine) collectMessage(ctx context.Context, req Request) (*PromptContext, error) {
	pc := &PromptContext{Message: req.Message, Extra: req.Payload, History: historyFrom(req.Payload)}
	if pc.Message != nil {
		return pc, nil
	}
	if req.MessageID == 0 {
		return nil, fmt.Errorf("%w: message id is required", ErrInvalidRequest)
	}
	if e.source == nil {
		return nil, fmt.Errorf("no message source configured")
	}
	msg, err := e.source.GetMessage(req.MessageID)
	if err != nil {
		return nil, err
	}
	pc.Message = msg
	return pc, nil
}

func (e *Engine) collectOptionalMessage(ctx context.Context, req Request) (*PromptContext, error) {
	if req.Message == nil && req.MessageID == 0 {
		return &PromptContext{Extra: req.Payload, History: historyFrom(req.Payload)}, nil
	}
	return e.collectMessage(ctx, req)
}

func (e *Engine) collectRecent(ctx context.Context, req Request) (*PromptContext, error) {
	pc := &PromptContext{Extra: req.Payload}
	if e.source == nil {
		return pc, nil
	}
	msgs, err := e.source.ListRecentMessages(req.UserID, e.now().Add(-24*time.Hour), 25)
	if err != nil {
		return nil, fmt.Errorf("failed to collect recent messages: %w", err)
	}
	pc.Messages = msgs
	return pc, nil
}

func emailPrompt(instruction string) func(req Request, pc *PromptContext) string {
	return func(req Request, pc *PromptContext) string {
		var sb strings.Builder
		sb.WriteString(instruction)
		sb.WriteString("\n\n")
		if pc.Message != nil {
			describeMessage(&sb, pc.Message)
		}
		if req.Input != "" {
			fmt.Fprintf(&sb, "\nUser note: %s\n", req.Input)
		}
		describeExtra(&sb, pc.Extra)
		return sb.String()
	}
}

func textPrompt(label string) func(req Request, pc *PromptContext) string {
	return func(req Request, pc *PromptContext) string {
		var sb strings.Builder
		fmt.Fprintf(&sb, "%s:\n%s\n", label, req.Input)
		if pc.Message != nil {
			sb.WriteString("\nRelated email:\n")
			describeMessage(&sb, pc.Message)
		}
		describeExtra(&sb, pc.Extra)
		return sb.String()
	}
}

func briefingPrompt(req Request, pc *PromptContext) string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "Messages received in the last 24 hours: %d\n\n", len(pc.Messages))
	for i := range pc.Messages {
		m := &pc.Messages[i]
		fmt.Fprintf(&sb, "- [%s] %s: %s (read: %t)\n", m.ReceivedAt.UTC().Format("15:04"), m.Sender, m.Subject, m.IsRead)
	}
	return sb.String()
}

func chatPrompt(req Request, pc *PromptContext) string {
	var sb strings.Builder
	for _, turn := range pc.History {
		fmt.Fprintf(&sb, "> %s\n", turn)
	}
	sb.WriteString(req.Input)
	describeExtra(&sb, pc.Extra)
	return sb.String()
}

func validateEmailActions(obj map[string]any, pc *PromptContext) (*Result, error) {
	priority := normalizePriority(obj["priority"])
	return &Result{
		Summary:   strings.TrimSpace(asString(obj["summary"])),
		Priority:  priority,
		Actions:   validateActions(obj, priority),
		Followups: asStringList(obj["followups"]),
	}, nil
}

func validateBriefing(obj map[string]any, pc *PromptContext) (*Result, error) {
	return &Result{
		Summary: strings.TrimSpace(asString(obj["summary"])),
		Data: map[string]any{
			"highlights":    asStringList(obj["highlights"]),
			"urgent":        asStringList(obj["urgent"]),
			"message_count": len(pc.Messages),
		},
	}, nil
}

func validateMeetingNotes(obj map[string]any, pc *PromptContext) (*Result, error) {
	res := &Result{
		Summary: strings.TrimSpace(asString(obj["summary"])),
		Data:    map[string]any{"decisions": asStringList(obj["decisions"])},
	}
	for _, item := range asSlice(obj["action_items"]) {
		raw, ok := item.(map[string]any)
		if !ok {
			continue
		}
		title := strings.TrimSpace(asString(raw["title"]))
		if title == "" {
			continue
		}
		payload := model.JSONMap{"title": title}
		if owner := asString(raw["owner"]); owner != "" {
			payload["notes"] = "Owner: " + owner
		}
		if due := asString(raw["due_date"]); due != "" {
			payload["due_date"] = due
		}
		res.Actions = append(res.Actions, model.SuggestedAction{
			Type:       model.ActionCreateTask,
			Title:      title,
			Payload:    payload,
			Confidence: defaultConfidence,
			Reasoning:  "Action item from meeting notes",
		})
	}
	return res, nil
}

func validateTask(obj map[string]any, pc *PromptContext) (*Result, error) {
	title := strings.TrimSpace(asString(obj["title"]))
	if title == "" && pc.Message != nil {
		title = pc.Message.Subject
	}
	if title == "" {
		return nil, fmt.Errorf("%w: task title is missing", ErrInvalidRequest)
	}
	payload := model.JSONMap{"title": title}
	if notes := strings.TrimSpace(asString(obj["notes"])); notes != "" {
		payload["notes"] = notes
	}
	if due := strings.TrimSpace(asString(obj["due_date"])); due != "" {
		payload["due_date"] = due
	}
	return &Result{
		Summary: title,
		Actions: []model.SuggestedAction{{
			Type:       model.ActionCreateTask,
			Title:      defaultTitles[model.ActionCreateTask],
			Payload:    payload,
			Confidence: clampConfidence(obj["confidence"]),
		}},
	}, nil
}

// meetingProcessor delegates to the meeting resolver instead of a prompt template
type meetingProcessor struct {
	detect   *regexp.Regexp
	resolver *meeting.Resolver
}

func (p *meetingProcessor) Kind() Kind {
	return KindCreateMeeting
}

func (p *meetingProcessor) Detect(input string) bool {
	return p.detect.MatchString(input)
}

func (p *meetingProcessor) CollectContext(ctx context.Context, req Request) (*PromptContext, error) {
	return &PromptContext{Message: req.Message, Extra: req.Payload, History: historyFrom(req.Payload)}, nil
}

func (p *meetingProcessor) Run(ctx context.Context, req Request, pc *PromptContext, opts llm.Options) (*Result, error) {
	if p.resolver == nil {
		return nil, errors.New("meeting resolver is not configured")
	}
	tz, _ := pc.Extra["timezone"].(string)
	spec, err := p.resolver.Resolve(ctx, meeting.Request{Text: req.Input, History: pc.History, Timezone: tz})
	if err != nil {
		return nil, err
	}
	return &Result{
		Kind:      KindCreateMeeting,
		Summary:   spec.Title,
		Actions:   []model.SuggestedAction{MeetingAction(spec)},
		Followups: []string{},
		Meeting:   spec,
		Source:    spec.Source,
	}, nil
}

// MeetingAction wraps a resolved meeting as a create_event action
func MeetingAction(spec *meeting.Spec) model.SuggestedAction {
	payload := model.JSONMap{
		"title":       spec.Title,
		"description": spec.Description,
		"start_time":  spec.Start.Format(time.RFC3339),
		"end_time":    spec.End.Format(time.RFC3339),
		"timezone":    spec.Timezone,
	}
	if spec.Location != "" {
		payload["location"] = spec.Location
	}
	if len(spec.Attendees) > 0 {
		attendees := make([]any, len(spec.Attendees))
		for i, a := range spec.Attendees {
			attendees[i] = a
		}
		payload["attendees"] = attendees
	}
	if spec.Recurrence != nil {
		rec := map[string]any{"frequency": spec.Recurrence.Frequency, "interval": spec.Recurrence.Interval}
		if len(spec.Recurrence.ByDay) > 0 {
			days := make([]any, len(spec.Recurrence.ByDay))
			for i, d := range spec.Recurrence.ByDay {
				days[i] = d
			}
			rec["by_day"] = days
		}
		if spec.Recurrence.Until != nil {
			rec["until"] = spec.Recurrence.Until.Format(time.RFC3339)
		}
		if spec.Recurrence.Count > 0 {
			rec["count"] = spec.Recurrence.Count
		}
		payload["recurrence"] = rec
	}
	confidence := 0.8
	if spec.Source == model.SourceFallback {
		confidence = 0.6
	}
	return model.SuggestedAction{
		Type:       model.ActionCreateEvent,
		Title:      spec.Title,
		Payload:    payload,
		Confidence: confidence,
		Reasoning:  fmt.Sprintf("Resolved %s to %s", spec.Start.Format("Mon Jan 2 15:04"), spec.End.Format("15:04 MST")),
	}
}
