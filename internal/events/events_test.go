package events

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/slack-go/slack"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"smart-mail-assistant-go/internal/model"
)

func TestNewAuditEnvelope(t *testing.T) {
	at := time.Date(2025, 11, 23, 10, 0, 0, 0, time.FixedZone("CET", 3600))
	audit := &model.ExecutionAudit{ID: 5, MessageID: 42, Actor: "alice", ActionType: "create_event", Status: model.AuditFailed, ErrorCode: "insufficient_permissions"}

	env := NewAuditEnvelope(audit, at)
	assert.NotEmpty(t, env.Meta.ID)
	assert.Equal(t, "actions.failed.v1", env.Meta.Type)
	assert.Equal(t, at.UTC(), env.Meta.Time)
	require.NotNil(t, env.Meta.CorrelationID)
	assert.Equal(t, "message-42", *env.Meta.CorrelationID)
	assert.Equal(t, "actions.failed.create_event", RoutingKey(audit))

	b, err := json.Marshal(env)
	require.NoError(t, err)
	assert.Contains(t, string(b), `"error_code":"insufficient_permissions"`)
}

func TestSlackAlerterPostsOnlyCredentialFailures(t *testing.T) {
	var posted []string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, r.ParseForm())
		posted = append(posted, r.Form.Get("channel")+"|"+r.Form.Get("text"))
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"ok":true,"channel":"C1","ts":"1700000000.000100"}`))
	}))
	defer srv.Close()

	client := slack.New("xoxb-test", slack.OptionAPIURL(srv.URL+"/"))
	a := NewSlackAlerter(client, "C1")
	ctx := context.Background()

	require.NoError(t, a.Publish(ctx, &model.ExecutionAudit{ActionType: "trash", Status: model.AuditExecuted}))
	require.NoError(t, a.Publish(ctx, &model.ExecutionAudit{ActionType: "trash", Status: model.AuditFailed, ErrorCode: "transient_error"}))
	require.NoError(t, a.Publish(ctx, &model.ExecutionAudit{ID: 9, MessageID: 3, ActionType: "create_task", Status: model.AuditFailed, ErrorCode: "token_expired", Actor: "alice"}))

	require.Len(t, posted, 1)
	assert.Contains(t, posted[0], "C1|")
	assert.Contains(t, posted[0], "`create_task` for message 3 needs the user to sign in again")
}
