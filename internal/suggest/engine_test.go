package suggest

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"smart-mail-assistant-go/internal/extract"
	"smart-mail-assistant-go/internal/llm"
	"smart-mail-assistant-go/internal/meeting"
	"smart-mail-assistant-go/internal/model"
)

var now = time.Date(2025, 11, 23, 10, 0, 0, 0, time.UTC)

// scriptedLLM answers by matching a substring of the system prompt
type scriptedLLM struct {
	replies map[string]string
	err     error
	calls   []llm.Options
	prompts []string
}

func (s *scriptedLLM) Chat(ctx context.Context, messages []llm.Message, opts llm.Options) (string, error) {
	s.calls = append(s.calls, opts)
	s.prompts = append(s.prompts, messages[len(messages)-1].Content)
	if s.err != nil {
		return "", s.err
	}
	system := messages[0].Content
	for key, reply := range s.replies {
		if strings.Contains(system, key) {
			return reply, nil
		}
	}
	return "", errors.New("no scripted reply")
}

type memorySource struct {
	msgs map[uint]*model.InboundMessage
}

func (m *memorySource) GetMessage(id uint) (*model.InboundMessage, error) {
	if msg, ok := m.msgs[id]; ok {
		return msg, nil
	}
	return nil, errors.New("not found")
}

func (m *memorySource) ListRecentMessages(userID string, since time.Time, limit int) ([]model.InboundMessage, error) {
	var out []model.InboundMessage
	for _, msg := range m.msgs {
		if msg.UserID == userID && !msg.ReceivedAt.Before(since) {
			out = append(out, *msg)
		}
	}
	return out, nil
}

type flagRecorder struct {
	set map[uint]bool
}

func (f *flagRecorder) SetActionRequired(id uint, required bool) error {
	if f.set == nil {
		f.set = make(map[uint]bool)
	}
	f.set[id] = required
	return nil
}

func newEngine(t *testing.T, client llm.Client, opts ...EngineOption) *Engine {
	t.Helper()
	resolver, err := meeting.NewResolver("UTC", meeting.WithClock(func() time.Time { return now }))
	require.NoError(t, err)
	source := &memorySource{msgs: map[uint]*model.InboundMessage{
		7: {ID: 7, UserID: "u1", Sender: "boss@example.com", Subject: "Q4 plan", BodyPlain: "Please send the deck by Friday.", ReceivedAt: now.Add(-time.Hour)},
	}}
	opts = append([]EngineOption{WithClock(func() time.Time { return now })}, opts...)
	return NewEngine(client, llm.Options{Temperature: 0.3, MaxTokens: 512, Model: "default-model"}, source, resolver, opts...)
}

func TestSuggestEmailActionsSingleTask(t *testing.T) {
	client := &scriptedLLM{replies: map[string]string{
		"email assistant": `{"summary":"Deck request","priority":"high","actions":[{"type":"create_task","title":"Send deck","payload":{"title":"Send Q4 deck"},"confidence":0.8,"reasoning":"Explicit request"}],"followups":[]}`,
	}}
	e := newEngine(t, client)

	res, err := e.SuggestEmailActions(context.Background(), &model.InboundMessage{ID: 7, UserID: "u1", Subject: "Q4 plan"})
	require.NoError(t, err)
	require.Len(t, res.Actions, 1)
	assert.Equal(t, model.ActionCreateTask, res.Actions[0].Type)
	assert.Equal(t, 0.8, res.Actions[0].Confidence)
	assert.Equal(t, "high", res.Priority)
	assert.Equal(t, model.SourceLLM, res.Source)
	assert.Equal(t, KindEmailActions, res.Kind)
	assert.Equal(t, "default-model", client.calls[0].Model)
	assert.Contains(t, client.prompts[0], "Subject: Q4 plan")

	set := res.ActionSet(7)
	assert.Equal(t, uint(7), set.MessageID)
	assert.Equal(t, "email_actions", set.Kind)
	assert.Len(t, set.Actions, 1)
}

func TestEmailActionsValidationDefaults(t *testing.T) {
	cases := map[string]struct {
		reply    string
		wantType string
		wantConf float64
	}{
		"missing list, high priority": {`{"summary":"x","priority":"urgent"}`, model.ActionMarkAsPriority, 0.3},
		"missing list, low priority":  {`{"summary":"x","priority":"low"}`, model.ActionMarkAsRead, 0.3},
		"unknown types dropped":       {`{"priority":"medium","actions":[{"type":"launch_rocket"}]}`, model.ActionMarkAsRead, 0.3},
		"confidence clamped":          {`{"actions":[{"type":"reply","confidence":7}]}`, model.ActionReply, 0.07},
		"confidence above range":      {`{"actions":[{"type":"reply","confidence":250}]}`, model.ActionReply, 1},
		"confidence defaulted":        {`{"actions":[{"type":"Mark Read"}]}`, model.ActionMarkAsRead, 0.5},
		"negative confidence":         {`{"actions":[{"type":"trash","confidence":-2}]}`, model.ActionTrash, 0},
	}
	for name, tc := range cases {
		t.Run(name, func(t *testing.T) {
			e := newEngine(t, &scriptedLLM{replies: map[string]string{"email assistant": tc.reply}})
			res, err := e.Generate(context.Background(), Request{Kind: KindEmailActions, MessageID: 7})
			require.NoError(t, err)
			require.Len(t, res.Actions, 1)
			assert.Equal(t, tc.wantType, res.Actions[0].Type)
			assert.InDelta(t, tc.wantConf, res.Actions[0].Confidence, 1e-9)
			assert.NotEmpty(t, res.Actions[0].Title)
		})
	}
}

func TestGenerateReturnsParseError(t *testing.T) {
	e := newEngine(t, &scriptedLLM{replies: map[string]string{"email assistant": "Sorry, I can't help with that."}})
	_, err := e.Generate(context.Background(), Request{Kind: KindEmailActions, MessageID: 7})
	require.Error(t, err)
	assert.True(t, extract.IsParseError(err))

	def := SafeDefault(KindEmailActions, "high")
	assert.Equal(t, model.SourceDefault, def.Source)
	require.Len(t, def.Actions, 1)
	assert.Equal(t, model.ActionMarkAsPriority, def.Actions[0].Type)
	assert.Equal(t, 0.3, def.Actions[0].Confidence)
}

func TestGenerateRequiresMessageForEmailKinds(t *testing.T) {
	e := newEngine(t, &scriptedLLM{})
	_, err := e.Generate(context.Background(), Request{Kind: KindEmailSummary})
	assert.ErrorIs(t, err, ErrInvalidRequest)

	_, err = e.Generate(context.Background(), Request{Kind: "poetry"})
	assert.ErrorIs(t, err, ErrInvalidRequest)
}

func TestGenerateOtherKinds(t *testing.T) {
	client := &scriptedLLM{replies: map[string]string{
		"summarize emails":  `{"summary":"Boss wants the deck","priority":"high","key_points":["deck by Friday"],"action_required":true}`,
		"daily inbox":       `{"summary":"One important email","highlights":["Q4 plan"],"urgent":[]}`,
		"meeting notes":     `{"summary":"Planning","decisions":["ship v2"],"action_items":[{"title":"Draft launch post","owner":"Sam","due_date":"2025-11-28"},{"title":""}]}`,
		"single task":       `{"title":"File taxes","notes":"","due_date":"2025-12-01","confidence":0.9}`,
		"helpful email":     `{"reply":"Sure, here is how.","followups":["Anything else?"]}`,
		"Classify the user": `email_summary`,
	}}
	e := newEngine(t, client)
	ctx := context.Background()

	res, err := e.Generate(ctx, Request{Kind: KindEmailSummary, MessageID: 7})
	require.NoError(t, err)
	assert.Equal(t, "Boss wants the deck", res.Summary)
	assert.Equal(t, true, res.Data["action_required"])
	assert.Empty(t, res.Actions)

	res, err = e.Generate(ctx, Request{Kind: KindDailyBriefing, UserID: "u1"})
	require.NoError(t, err)
	assert.Equal(t, 1, res.Data["message_count"])

	res, err = e.Generate(ctx, Request{Kind: KindMeetingNotes, Input: "notes..."})
	require.NoError(t, err)
	require.Len(t, res.Actions, 1)
	assert.Equal(t, "Draft launch post", res.Actions[0].Payload.String("title"))
	assert.Equal(t, "2025-11-28", res.Actions[0].Payload.String("due_date"))

	res, err = e.Generate(ctx, Request{Kind: KindCreateTask, Input: "remind me to file taxes"})
	require.NoError(t, err)
	require.Len(t, res.Actions, 1)
	assert.Equal(t, "File taxes", res.Actions[0].Payload.String("title"))
	assert.Equal(t, 0.9, res.Actions[0].Confidence)

	res, err = e.Generate(ctx, Request{Kind: KindChatResponse, Input: "how do filters work?"})
	require.NoError(t, err)
	assert.Equal(t, "Sure, here is how.", res.Data["reply"])
	assert.Equal(t, []string{"Anything else?"}, res.Followups)

	res, err = e.Generate(ctx, Request{Input: "tl;dr please", MessageID: 7})
	require.NoError(t, err)
	assert.Equal(t, KindEmailSummary, res.Kind)
	assert.Equal(t, RoutedByLLM, res.RoutedBy)
}

func TestCreateMeetingUsesResolver(t *testing.T) {
	e := newEngine(t, nil)
	res, err := e.Generate(context.Background(), Request{Input: "create a meeting tomorrow 9am"})
	require.NoError(t, err)

	assert.Equal(t, KindCreateMeeting, res.Kind)
	assert.Equal(t, RoutedByKeyword, res.RoutedBy)
	require.NotNil(t, res.Meeting)
	require.Len(t, res.Actions, 1)
	action := res.Actions[0]
	assert.Equal(t, model.ActionCreateEvent, action.Type)
	assert.Equal(t, "2025-11-24T09:00:00Z", action.Payload.String("start_time"))
	assert.Equal(t, "2025-11-24T09:30:00Z", action.Payload.String("end_time"))

	_, err = e.Generate(context.Background(), Request{Kind: KindCreateMeeting, Input: "let's meet sometime"})
	assert.ErrorIs(t, err, meeting.ErrMissingDatetime)
}

func TestMissingClientReportsNoKey(t *testing.T) {
	e := newEngine(t, nil)
	_, err := e.Generate(context.Background(), Request{Kind: KindEmailActions, MessageID: 7})
	assert.ErrorIs(t, err, llm.ErrNoAPIKey)
}

func TestEmailResultsRecordActionRequired(t *testing.T) {
	client := &scriptedLLM{replies: map[string]string{
		"summarize emails": `{"summary":"Boss wants the deck","priority":"low","key_points":[],"action_required":true}`,
		"Suggest concrete": `{"summary":"FYI","priority":"low","actions":[{"type":"mark_as_read","confidence":0.6}]}`,
		"helpful email":    `{"reply":"Sure.","followups":[]}`,
	}}
	flags := &flagRecorder{}
	e := newEngine(t, client, WithFlagStore(flags))
	ctx := context.Background()

	_, err := e.Generate(ctx, Request{Kind: KindEmailSummary, MessageID: 7})
	require.NoError(t, err)
	assert.Equal(t, map[uint]bool{7: true}, flags.set)

	msg := &model.InboundMessage{ID: 9, UserID: "u1", Subject: "FYI", ActionRequired: true}
	_, err = e.SuggestEmailActions(ctx, msg)
	require.NoError(t, err)
	assert.False(t, flags.set[9])
	assert.False(t, msg.ActionRequired)

	_, err = e.Generate(ctx, Request{Kind: KindChatResponse, MessageID: 7, Input: "thanks"})
	require.NoError(t, err)
	assert.Len(t, flags.set, 2)
}

func TestDefaultPriorityFollowsActionRequired(t *testing.T) {
	assert.Equal(t, "medium", DefaultPriority(nil))
	assert.Equal(t, "medium", DefaultPriority(&model.InboundMessage{}))
	assert.Equal(t, "high", DefaultPriority(&model.InboundMessage{ActionRequired: true}))

	res := SafeDefault(KindEmailActions, DefaultPriority(&model.InboundMessage{ActionRequired: true}))
	require.Len(t, res.Actions, 1)
	assert.Equal(t, model.ActionMarkAsPriority, res.Actions[0].Type)
	assert.True(t, ActionRequired(&Result{Priority: "urgent"}))
	assert.False(t, ActionRequired(&Result{Priority: "low", Data: map[string]any{"action_required": false}}))
}
