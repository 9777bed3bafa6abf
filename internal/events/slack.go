package events

import (
	"context"
	"fmt"

	"github.com/slack-go/slack"

	"smart-mail-assistant-go/internal/model"
)

// alertCodes are the audit failures that need an operator
var alertCodes = map[string]string{
	"insufficient_permissions": "missing a granted permission",
	"token_expired":            "needs the user to sign in again",
}

// SlackAlerter posts operator alerts for permission and credential failures
type SlackAlerter struct {
	client  *slack.Client
	channel string
}

// NewSlackAlerter creates an alerter posting to channel
func NewSlackAlerter(client *slack.Client, channel string) *SlackAlerter {
	return &SlackAlerter{client: client, channel: channel}
}

// Publish posts an alert when the audit failed for a credential reason; other audits are ignored
func (a *SlackAlerter) Publish(ctx context.Context, audit *model.ExecutionAudit) error {
	reason, ok := alertCodes[audit.ErrorCode]
	if !ok || audit.Status != model.AuditFailed {
		return nil
	}
	text := fmt.Sprintf(":warning: `%s` for message %d %s (audit %d, actor %s)",
		audit.ActionType, audit.MessageID, reason, audit.ID, audit.Actor)

	_, _, err := a.client.PostMessageContext(ctx, a.channel,
		slack.MsgOptionText(text, false),
		slack.MsgOptionPostMessageParameters(slack.PostMessageParameters{
			UnfurlLinks: false,
			UnfurlMedia: false,
		}),
	)
	if err != nil {
		return fmt.Errorf("failed to post slack alert: %w", err)
	}
	return nil
}
