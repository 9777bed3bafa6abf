// Package actions implements the prepare and execute phases for suggested actions.
package actions

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"time"

	"github.com/sirupsen/logrus"

	"smart-mail-assistant-go/internal/config"
	"smart-mail-assistant-go/internal/extract"
	"smart-mail-assistant-go/internal/meeting"
	"smart-mail-assistant-go/internal/metrics"
	"smart-mail-assistant-go/internal/model"
	"smart-mail-assistant-go/internal/repository"
	"smart-mail-assistant-go/internal/suggest"
	"smart-mail-assistant-go/internal/workspace"
)

const freeBusyWindow = 7 * 24 * time.Hour

var schedulingHint = regexp.MustCompile(`(?i)\b(meet|meeting|schedule|calendar|event|call|sync|invite)\b`)

// AuditSink is notified after every audit row is written
type AuditSink interface {
	Publish(ctx context.Context, audit *model.ExecutionAudit) error
}

// Service runs the two phases of the action protocol
type Service struct {
	repo     *repository.Repository
	engine   *suggest.Engine
	resolver *meeting.Resolver
	ws       workspace.Workspace
	links    config.LinksConfig
	sender   string
	timezone string
	sinks    []AuditSink
	metrics  *metrics.Metrics
	now      func() time.Time
}

// Option customizes a Service
type Option func(*Service)

// WithClock replaces the wall clock
func WithClock(now func() time.Time) Option {
	return func(s *Service) { s.now = now }
}

// WithSinks adds audit sinks
func WithSinks(sinks ...AuditSink) Option {
	return func(s *Service) { s.sinks = append(s.sinks, sinks...) }
}

// WithMetrics records execution counts
func WithMetrics(m *metrics.Metrics) Option {
	return func(s *Service) { s.metrics = m }
}

// WithSender sets the From address of outgoing mail
func WithSender(sender string) Option {
	return func(s *Service) { s.sender = sender }
}

// WithTimezone sets the timezone for free/busy lookups
func WithTimezone(tz string) Option {
	return func(s *Service) { s.timezone = tz }
}

// NewService creates an action service
func NewService(repo *repository.Repository, engine *suggest.Engine, resolver *meeting.Resolver, ws workspace.Workspace, links config.LinksConfig, opts ...Option) *Service {
	s := &Service{
		repo:     repo,
		engine:   engine,
		resolver: resolver,
		ws:       ws,
		links:    links,
		timezone: "UTC",
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// PrepareResult is the preview returned before anything is executed
type PrepareResult struct {
	SetID     uint                    `json:"setId"`
	Actions   []model.SuggestedAction `json:"actions"`
	Followups []string                `json:"followups"`
	Source    string                  `json:"source"`
	Busy      []workspace.Interval    `json:"busy,omitempty"`
}

// Prepare generates a fresh suggestion set for a message without mutating anything external
func (s *Service) Prepare(ctx context.Context, messageID uint, hint string) (*PrepareResult, error) {
	msg, err := s.loadMessage(messageID)
	if err != nil {
		return nil, err
	}

	scheduling := isSchedulingHint(hint)
	payload := map[string]any{}
	var busy []workspace.Interval
	if scheduling {
		from := s.now()
		busy, err = s.ws.FreeBusy(ctx, from, from.Add(freeBusyWindow), s.timezone)
		if err != nil {
			logrus.Warnf("Free/busy lookup failed for message %d: %v", messageID, err)
			busy = nil
		}
		payload["busy"] = formatBusy(busy)
	}

	res, err := s.engine.Generate(ctx, suggest.Request{
		Kind:      suggest.KindEmailActions,
		UserID:    msg.UserID,
		MessageID: msg.ID,
		Message:   msg,
		Input:     hint,
		Payload:   payload,
	})
	if err != nil {
		if !extract.IsParseError(err) {
			return nil, fmt.Errorf("failed to generate suggestions: %w", err)
		}
		logrus.Warnf("Unparsable suggestions for message %d, using default: %v", messageID, err)
		res = suggest.SafeDefault(suggest.KindEmailActions, suggest.DefaultPriority(msg))
	}

	if scheduling && !hasEventAction(res.Actions) {
		spec, err := s.resolver.Resolve(ctx, meeting.Request{Text: msg.Subject + "\n" + msg.BodyPlain, Timezone: s.timezone})
		if err == nil {
			res.Actions = append(res.Actions, suggest.MeetingAction(spec))
		} else {
			logrus.Debugf("No meeting time found in message %d: %v", messageID, err)
		}
	}
	if scheduling {
		res.Followups = append(res.Followups, conflictNotes(res.Actions, busy)...)
	}

	set := res.ActionSet(msg.ID)
	if err := s.repo.SaveSuggestionSet(set); err != nil {
		return nil, err
	}
	followups := []string(set.Followups)
	if followups == nil {
		followups = []string{}
	}
	return &PrepareResult{
		SetID:     set.ID,
		Actions:   set.Actions,
		Followups: followups,
		Source:    set.Source,
		Busy:      busy,
	}, nil
}

// ExecuteRequest is a user-confirmed action
type ExecuteRequest struct {
	MessageID  uint
	ActionType string
	Payload    model.JSONMap
	Actor      string
}

// ExecuteResult reports a successful execution
type ExecuteResult struct {
	OK      bool           `json:"ok"`
	Result  map[string]any `json:"result"`
	AuditID uint           `json:"auditId"`
}

// Execute runs one action. Every attempt on an existing message is audited.
func (s *Service) Execute(ctx context.Context, req ExecuteRequest) (*ExecuteResult, error) {
	msg, err := s.loadMessage(req.MessageID)
	if err != nil {
		return nil, err
	}
	if req.Payload == nil {
		req.Payload = model.JSONMap{}
	}
	if req.Actor == "" {
		req.Actor = "user"
	}

	h, ok := handlers[req.ActionType]
	if !ok {
		err := &Error{Code: CodeUnknownAction, Message: fmt.Sprintf("unknown action type %q", req.ActionType)}
		s.audit(ctx, req, model.AuditFailed, nil, err)
		return nil, err
	}

	done, err := s.repo.HasExecuted(msg.ID, req.ActionType)
	if err != nil {
		return nil, err
	}
	if done {
		err := &Error{Code: CodeAlreadyExecuted, Message: fmt.Sprintf("%s was already executed for this message", req.ActionType)}
		s.audit(ctx, req, model.AuditSkipped, nil, err)
		return nil, err
	}

	if err := missingField(req.Payload, h.Required); err != nil {
		s.audit(ctx, req, model.AuditFailed, nil, err)
		return nil, err
	}

	result, err := h.Run(ctx, s, msg, req.Payload)
	if err != nil {
		classified := classify(err, h.Scope, s.links)
		logrus.Warnf("Action %s failed for message %d: %v", req.ActionType, msg.ID, err)
		s.audit(ctx, req, model.AuditFailed, nil, classified)
		return nil, classified
	}

	if err := s.repo.SetActioned(msg.ID); err != nil {
		logrus.Errorf("Failed to mark message %d as actioned: %v", msg.ID, err)
	}
	audit := s.audit(ctx, req, model.AuditExecuted, result, nil)
	logrus.Infof("Executed %s for message %d", req.ActionType, msg.ID)

	out := &ExecuteResult{OK: true, Result: result}
	if audit != nil {
		out.AuditID = audit.ID
	}
	return out, nil
}

func (s *Service) loadMessage(id uint) (*model.InboundMessage, error) {
	msg, err := s.repo.GetMessage(id)
	if errors.Is(err, repository.ErrNotFound) {
		return nil, &Error{Code: CodeNotFound, Message: fmt.Sprintf("message %d not found", id), Err: err}
	}
	return msg, err
}

func (s *Service) audit(ctx context.Context, req ExecuteRequest, status string, result map[string]any, cause error) *model.ExecutionAudit {
	audit := &model.ExecutionAudit{
		MessageID:  req.MessageID,
		Actor:      req.Actor,
		ActionType: req.ActionType,
		Payload:    req.Payload,
		Status:     status,
		Result:     model.JSONMap(result),
		ErrorCode:  Code(cause),
	}
	if cause != nil {
		audit.ErrorMsg = cause.Error()
	}
	if err := s.repo.AppendAudit(audit); err != nil {
		logrus.Errorf("Failed to write audit for message %d: %v", req.MessageID, err)
		return nil
	}
	if s.metrics != nil {
		s.metrics.ActionsExecuted.WithLabelValues(req.ActionType, status).Inc()
	}
	for _, sink := range s.sinks {
		if err := sink.Publish(ctx, audit); err != nil {
			logrus.Warnf("Audit sink failed for audit %d: %v", audit.ID, err)
		}
	}
	return audit
}

func isSchedulingHint(hint string) bool {
	return hint == model.ActionCreateEvent || hint == model.ActionCreateMeeting || schedulingHint.MatchString(hint)
}

func hasEventAction(actions []model.SuggestedAction) bool {
	for _, a := range actions {
		if a.Type == model.ActionCreateEvent || a.Type == model.ActionCreateMeeting {
			return true
		}
	}
	return false
}

func formatBusy(busy []workspace.Interval) []any {
	out := make([]any, len(busy))
	for i, b := range busy {
		out[i] = map[string]any{"start": b.Start.Format(time.RFC3339), "end": b.End.Format(time.RFC3339)}
	}
	return out
}

// conflictNotes reports suggested event slots that overlap a busy interval
func conflictNotes(actions []model.SuggestedAction, busy []workspace.Interval) []string {
	var notes []string
	for _, a := range actions {
		if a.Type != model.ActionCreateEvent && a.Type != model.ActionCreateMeeting {
			continue
		}
		start, err := time.Parse(time.RFC3339, a.Payload.String("start_time"))
		if err != nil {
			continue
		}
		end, err := time.Parse(time.RFC3339, a.Payload.String("end_time"))
		if err != nil {
			end = start.Add(time.Hour)
		}
		slot := workspace.Interval{Start: start, End: end}
		for _, b := range busy {
			if slot.Overlaps(b) {
				notes = append(notes, fmt.Sprintf("%q at %s overlaps a busy slot (%s to %s); consider another time.",
					a.Title, start.Format("Mon Jan 2 15:04"), b.Start.Format("15:04"), b.End.Format("15:04")))
				break
			}
		}
	}
	return notes
}
