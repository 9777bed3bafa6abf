// Package events publishes execution audits to external sinks.
package events

import (
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"smart-mail-assistant-go/internal/model"
)

const producer = "smart-mail-assistant"

// Meta describes an emitted event
type Meta struct {
	ID            string    `json:"id"`
	Type          string    `json:"type"`
	Time          time.Time `json:"time"`
	CorrelationID *string   `json:"correlation_id,omitempty"`
	Producer      *string   `json:"producer,omitempty"`
}

// Envelope wraps event data with its metadata
type Envelope struct {
	Meta Meta `json:"meta"`
	Data any  `json:"data"`
}

// AuditEvent is the payload published for each execution audit
type AuditEvent struct {
	AuditID    uint   `json:"audit_id"`
	MessageID  uint   `json:"message_id"`
	Actor      string `json:"actor"`
	ActionType string `json:"action_type"`
	Status     string `json:"status"`
	ErrorCode  string `json:"error_code,omitempty"`
}

// EventType returns the versioned event name for an audit status
func EventType(status string) string {
	return fmt.Sprintf("actions.%s.v1", status)
}

// RoutingKey returns the topic key an audit is published under
func RoutingKey(audit *model.ExecutionAudit) string {
	return fmt.Sprintf("actions.%s.%s", audit.Status, strings.ReplaceAll(audit.ActionType, ".", "_"))
}

// NewAuditEnvelope wraps an audit row, correlated by message
func NewAuditEnvelope(audit *model.ExecutionAudit, now time.Time) Envelope {
	correlation := fmt.Sprintf("message-%d", audit.MessageID)
	p := producer
	return Envelope{
		Meta: Meta{
			ID:            uuid.NewString(),
			Type:          EventType(audit.Status),
			Time:          now.UTC(),
			CorrelationID: &correlation,
			Producer:      &p,
		},
		Data: AuditEvent{
			AuditID:    audit.ID,
			MessageID:  audit.MessageID,
			Actor:      audit.Actor,
			ActionType: audit.ActionType,
			Status:     audit.Status,
			ErrorCode:  audit.ErrorCode,
		},
	}
}
