package actions

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/oauth2"
	"google.golang.org/api/googleapi"

	"smart-mail-assistant-go/internal/config"
	"smart-mail-assistant-go/internal/db"
	"smart-mail-assistant-go/internal/llm"
	"smart-mail-assistant-go/internal/meeting"
	"smart-mail-assistant-go/internal/model"
	"smart-mail-assistant-go/internal/repository"
	"smart-mail-assistant-go/internal/suggest"
	"smart-mail-assistant-go/internal/workspace"
)

var now = time.Date(2025, 11, 23, 10, 0, 0, 0, time.UTC)

type fixedLLM struct {
	reply string
}

func (f *fixedLLM) Chat(ctx context.Context, messages []llm.Message, opts llm.Options) (string, error) {
	return f.reply, nil
}

// fakeWorkspace records calls and fails with err when set
type fakeWorkspace struct {
	err    error
	busy   []workspace.Interval
	calls  []string
	events []workspace.Event
	sent   [][]byte
}

func (f *fakeWorkspace) record(call string) error {
	f.calls = append(f.calls, call)
	return f.err
}

func (f *fakeWorkspace) MarkRead(ctx context.Context, id string) error      { return f.record("read:" + id) }
func (f *fakeWorkspace) MarkImportant(ctx context.Context, id string) error { return f.record("important:" + id) }
func (f *fakeWorkspace) Trash(ctx context.Context, id string) error         { return f.record("trash:" + id) }

func (f *fakeWorkspace) Send(ctx context.Context, raw []byte) (string, error) {
	f.sent = append(f.sent, raw)
	return "sent-1", f.record("send")
}

func (f *fakeWorkspace) CreateTask(ctx context.Context, task workspace.Task) (string, error) {
	return "task-1", f.record("task:" + task.Title)
}

func (f *fakeWorkspace) CreateEvent(ctx context.Context, event workspace.Event) (*workspace.CreatedEvent, error) {
	f.events = append(f.events, event)
	if err := f.record("event:" + event.Title); err != nil {
		return nil, err
	}
	return &workspace.CreatedEvent{ID: "evt-1"}, nil
}

func (f *fakeWorkspace) FreeBusy(ctx context.Context, from, to time.Time, tz string) ([]workspace.Interval, error) {
	f.calls = append(f.calls, "freebusy")
	return f.busy, nil
}

type recordingSink struct {
	audits []*model.ExecutionAudit
}

func (r *recordingSink) Publish(ctx context.Context, audit *model.ExecutionAudit) error {
	r.audits = append(r.audits, audit)
	return nil
}

type fixture struct {
	svc  *Service
	repo *repository.Repository
	ws   *fakeWorkspace
	sink *recordingSink
	msg  *model.InboundMessage
	llm  *fixedLLM
}

func newFixture(t *testing.T, reply string) *fixture {
	t.Helper()
	repo := repository.New(db.NewTestDB(t))
	clock := func() time.Time { return now }
	resolver, err := meeting.NewResolver("UTC", meeting.WithClock(clock))
	require.NoError(t, err)
	client := &fixedLLM{reply: reply}
	engine := suggest.NewEngine(client, llm.Options{}, repo, resolver, suggest.WithClock(clock), suggest.WithFlagStore(repo))

	msg := &model.InboundMessage{
		ExternalID: "gm-42",
		UserID:     "u1",
		Sender:     "boss@example.com",
		Subject:    "Q4 plan",
		BodyPlain:  "Can we sync tomorrow 9am about the Q4 plan?",
		ReceivedAt: now.Add(-time.Hour),
	}
	_, err = repo.UpsertMessage(msg)
	require.NoError(t, err)

	ws := &fakeWorkspace{}
	sink := &recordingSink{}
	links := config.LinksConfig{ConsentURL: "https://app.example.com/consent", ReauthURL: "https://app.example.com/login"}
	svc := NewService(repo, engine, resolver, ws, links,
		WithClock(clock), WithSinks(sink), WithSender("me@example.com"))
	return &fixture{svc: svc, repo: repo, ws: ws, sink: sink, msg: msg, llm: client}
}

func (f *fixture) audits(t *testing.T) []model.ExecutionAudit {
	t.Helper()
	audits, _, err := f.repo.ListAudits(repository.AuditFilter{MessageID: f.msg.ID})
	require.NoError(t, err)
	return audits
}

func TestCreateEventForbiddenMapsToInsufficientPermissions(t *testing.T) {
	f := newFixture(t, "")
	f.ws.err = fmt.Errorf("failed to create event: %w", &googleapi.Error{Code: http.StatusForbidden, Message: "Insufficient Permission"})

	_, err := f.svc.Execute(context.Background(), ExecuteRequest{
		MessageID:  f.msg.ID,
		ActionType: model.ActionCreateEvent,
		Payload:    model.JSONMap{"title": "Sync", "start_time": "2025-11-24T09:00:00Z", "end_time": "2025-11-24T09:30:00Z"},
	})

	var perm *InsufficientPermissions
	require.ErrorAs(t, err, &perm)
	assert.Equal(t, workspace.ScopeCalendar, perm.RequiredPermission)
	assert.Equal(t, "https://app.example.com/consent?scope=https%3A%2F%2Fwww.googleapis.com%2Fauth%2Fcalendar", perm.RemediationURL)
	assert.Equal(t, CodeInsufficientPermissions, Code(err))

	audits := f.audits(t)
	require.Len(t, audits, 1)
	assert.Equal(t, model.AuditFailed, audits[0].Status)
	assert.Equal(t, CodeInsufficientPermissions, audits[0].ErrorCode)

	msg, err := f.repo.GetMessage(f.msg.ID)
	require.NoError(t, err)
	assert.False(t, msg.Actioned)
	require.Len(t, f.sink.audits, 1)
}

func TestClassify(t *testing.T) {
	links := config.LinksConfig{ConsentURL: "/consent", ReauthURL: "/login"}
	cases := map[string]struct {
		err  error
		code string
	}{
		"forbidden":     {&googleapi.Error{Code: 403}, CodeInsufficientPermissions},
		"rate limited":  {&googleapi.Error{Code: 403, Errors: []googleapi.ErrorItem{{Reason: "userRateLimitExceeded"}}}, CodeTransient},
		"unauthorized":  {&googleapi.Error{Code: 401}, CodeTokenExpired},
		"revoked token": {&oauth2.RetrieveError{ErrorCode: "invalid_grant"}, CodeTokenExpired},
		"server error":  {&googleapi.Error{Code: 503}, CodeTransient},
		"network":       {errors.New("connection reset"), CodeTransient},
		"local":         {MissingField("title"), "missing_title"},
	}
	for name, tc := range cases {
		t.Run(name, func(t *testing.T) {
			assert.Equal(t, tc.code, Code(classify(tc.err, workspace.ScopeMailboxModify, links)))
		})
	}

	var expired *TokenExpired
	require.ErrorAs(t, classify(&googleapi.Error{Code: 401}, workspace.ScopeTasks, links), &expired)
	assert.Equal(t, "/login", expired.ReauthURL)
}

func TestExecuteIsIdempotentPerActionType(t *testing.T) {
	f := newFixture(t, "")
	ctx := context.Background()
	req := ExecuteRequest{MessageID: f.msg.ID, ActionType: model.ActionMarkAsRead, Actor: "alice"}

	res, err := f.svc.Execute(ctx, req)
	require.NoError(t, err)
	assert.True(t, res.OK)
	assert.Equal(t, "gm-42", res.Result["message_id"])

	_, err = f.svc.Execute(ctx, req)
	assert.Equal(t, CodeAlreadyExecuted, Code(err))
	assert.Equal(t, []string{"read:gm-42"}, f.ws.calls)

	audits := f.audits(t)
	require.Len(t, audits, 2)
	statuses := []string{audits[0].Status, audits[1].Status}
	assert.ElementsMatch(t, []string{model.AuditExecuted, model.AuditSkipped}, statuses)

	msg, err := f.repo.GetMessage(f.msg.ID)
	require.NoError(t, err)
	assert.True(t, msg.Actioned)
}

func TestExecuteLocalErrors(t *testing.T) {
	f := newFixture(t, "")
	ctx := context.Background()

	_, err := f.svc.Execute(ctx, ExecuteRequest{MessageID: f.msg.ID, ActionType: "launch_rocket"})
	assert.Equal(t, CodeUnknownAction, Code(err))

	_, err = f.svc.Execute(ctx, ExecuteRequest{MessageID: f.msg.ID, ActionType: model.ActionReply, Payload: model.JSONMap{"body": "  "}})
	assert.Equal(t, "missing_body", Code(err))

	_, err = f.svc.Execute(ctx, ExecuteRequest{MessageID: f.msg.ID, ActionType: model.ActionCreateTask})
	assert.Equal(t, "missing_title", Code(err))

	_, err = f.svc.Execute(ctx, ExecuteRequest{MessageID: f.msg.ID, ActionType: model.ActionCreateMeeting, Payload: model.JSONMap{"text": "let's catch up sometime"}})
	assert.Equal(t, CodeMissingDatetime, Code(err))

	_, err = f.svc.Execute(ctx, ExecuteRequest{MessageID: f.msg.ID, ActionType: model.ActionCreateEvent,
		Payload: model.JSONMap{"start_time": "2025-11-24T09:00:00Z", "end_time": "2025-11-24T08:00:00Z"}})
	assert.Equal(t, CodeValidation, Code(err))

	_, err = f.svc.Execute(ctx, ExecuteRequest{MessageID: 9999, ActionType: model.ActionTrash})
	assert.Equal(t, CodeNotFound, Code(err))

	assert.Empty(t, f.ws.calls)
	assert.Len(t, f.audits(t), 5)
}

func TestExecuteReplyAndRecurringEvent(t *testing.T) {
	f := newFixture(t, "")
	ctx := context.Background()

	res, err := f.svc.Execute(ctx, ExecuteRequest{MessageID: f.msg.ID, ActionType: model.ActionReply, Payload: model.JSONMap{"body": "Works for me."}})
	require.NoError(t, err)
	assert.Equal(t, "sent-1", res.Result["sent_id"])
	require.Len(t, f.ws.sent, 1)
	raw := string(f.ws.sent[0])
	assert.Contains(t, raw, "Subject: Re: Q4 plan")
	assert.Contains(t, raw, "boss@example.com")

	res, err = f.svc.Execute(ctx, ExecuteRequest{MessageID: f.msg.ID, ActionType: model.ActionCreateMeeting,
		Payload: model.JSONMap{"text": "every thursday 9 to 9.30am standup"}})
	require.NoError(t, err)
	assert.Equal(t, "evt-1", res.Result["event_id"])
	require.Len(t, f.ws.events, 1)
	ev := f.ws.events[0]
	assert.Equal(t, time.Date(2025, 11, 27, 9, 0, 0, 0, time.UTC), ev.Start.UTC())
	assert.Equal(t, 30*time.Minute, ev.End.Sub(ev.Start))
	require.Len(t, ev.Recurrence, 1)
	assert.True(t, strings.HasPrefix(ev.Recurrence[0], "RRULE:FREQ=WEEKLY"))
	assert.Contains(t, ev.Recurrence[0], "BYDAY=TH")
}

func TestScopeForCoversEveryKnownAction(t *testing.T) {
	for _, action := range model.KnownActionTypes {
		scope, ok := ScopeFor(action)
		assert.True(t, ok, action)
		_, mapped := workspace.OAuthScopes[scope]
		assert.True(t, mapped, action)
	}
	_, ok := ScopeFor("launch_rocket")
	assert.False(t, ok)
}

func TestPrepareFlagsBusyConflicts(t *testing.T) {
	reply := `{"summary":"Sync request","priority":"medium","actions":[
		{"type":"create_event","title":"Q4 sync","payload":{"title":"Q4 sync","start_time":"2025-11-24T09:00:00Z","end_time":"2025-11-24T09:30:00Z"},"confidence":0.7},
		{"type":"reply","title":"Confirm","payload":{"body":"See you then"},"confidence":0.6}
	],"followups":[]}`
	f := newFixture(t, reply)
	f.ws.busy = []workspace.Interval{{Start: time.Date(2025, 11, 24, 9, 15, 0, 0, time.UTC), End: time.Date(2025, 11, 24, 10, 0, 0, 0, time.UTC)}}

	res, err := f.svc.Prepare(context.Background(), f.msg.ID, "schedule a meeting")
	require.NoError(t, err)
	assert.Equal(t, []string{"freebusy"}, f.ws.calls)
	require.Len(t, res.Actions, 2)
	require.Len(t, res.Followups, 1)
	assert.Contains(t, res.Followups[0], "overlaps a busy slot")
	assert.Equal(t, model.SourceLLM, res.Source)

	latest, err := f.repo.LatestSuggestionSet(f.msg.ID)
	require.NoError(t, err)
	assert.Equal(t, res.SetID, latest.ID)
}

func TestPrepareSubstitutesDefaultOnUnparsableOutput(t *testing.T) {
	f := newFixture(t, "I would rather not say.")

	res, err := f.svc.Prepare(context.Background(), f.msg.ID, "")
	require.NoError(t, err)
	assert.Equal(t, model.SourceDefault, res.Source)
	require.Len(t, res.Actions, 1)
	assert.Equal(t, model.ActionMarkAsRead, res.Actions[0].Type)
	assert.Empty(t, f.ws.calls)
}

func TestPrepareDefaultKeepsPrioritySignal(t *testing.T) {
	f := newFixture(t, `{"summary":"Contract due","priority":"urgent","actions":[{"type":"reply","payload":{"body":"On it"},"confidence":0.7}]}`)
	ctx := context.Background()

	_, err := f.svc.Prepare(ctx, f.msg.ID, "")
	require.NoError(t, err)
	stored, err := f.repo.GetMessage(f.msg.ID)
	require.NoError(t, err)
	assert.True(t, stored.ActionRequired)

	f.llm.reply = "not json at all"
	res, err := f.svc.Prepare(ctx, f.msg.ID, "")
	require.NoError(t, err)
	assert.Equal(t, model.SourceDefault, res.Source)
	require.Len(t, res.Actions, 1)
	assert.Equal(t, model.ActionMarkAsPriority, res.Actions[0].Type)
}

func TestPrepareThenExecuteEndToEnd(t *testing.T) {
	reply := `{"summary":"Deck request","priority":"high","actions":[{"type":"create_task","title":"Send deck","payload":{"title":"Send Q4 deck","due_date":"2025-11-28"},"confidence":0.8}]}`
	f := newFixture(t, reply)
	ctx := context.Background()

	prepared, err := f.svc.Prepare(ctx, f.msg.ID, "")
	require.NoError(t, err)
	require.Len(t, prepared.Actions, 1)

	before, err := f.repo.GetMessage(f.msg.ID)
	require.NoError(t, err)
	assert.False(t, before.Actioned)
	assert.Empty(t, f.audits(t))

	action := prepared.Actions[0]
	res, err := f.svc.Execute(ctx, ExecuteRequest{MessageID: f.msg.ID, ActionType: action.Type, Payload: action.Payload, Actor: "alice"})
	require.NoError(t, err)
	assert.Equal(t, "task-1", res.Result["task_id"])
	assert.NotZero(t, res.AuditID)

	audit, err := f.repo.GetAudit(res.AuditID)
	require.NoError(t, err)
	assert.Equal(t, model.AuditExecuted, audit.Status)
	assert.Equal(t, "alice", audit.Actor)
	assert.Equal(t, "Send Q4 deck", audit.Payload.String("title"))

	msg, err := f.repo.GetMessage(f.msg.ID)
	require.NoError(t, err)
	assert.True(t, msg.Actioned)
	assert.Len(t, f.audits(t), 1)
}
