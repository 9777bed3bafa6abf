package model

import (
	"time"
)

// ProcessingState is the suggestion pipeline state of an inbound message
type ProcessingState string

const (
	StateUnprocessed ProcessingState = "unprocessed"
	StateProcessed   ProcessingState = "processed"
	StateFailed      ProcessingState = "failed"
)

// InboundMessage represents an ingested email awaiting or holding suggestions
type InboundMessage struct {
	ID             uint            `json:"id" gorm:"primaryKey;autoIncrement"`
	ExternalID     string          `json:"external_id" gorm:"type:varchar(255);not null;uniqueIndex"`
	UserID         string          `json:"user_id" gorm:"type:varchar(255);not null;index"`
	Sender         string          `json:"sender" gorm:"type:varchar(512)"`
	Subject        string          `json:"subject" gorm:"type:varchar(1024)"`
	BodyPlain      string          `json:"body_plain" gorm:"type:text"`
	ReceivedAt     time.Time       `json:"received_at" gorm:"index"`
	IsRead         bool            `json:"is_read" gorm:"default:false"`
	ActionRequired bool            `json:"action_required" gorm:"default:false"`
	State          ProcessingState `json:"state" gorm:"type:varchar(32);not null;default:unprocessed;index"`
	Attempts       int             `json:"attempts" gorm:"not null;default:0"`
	LastAttemptAt  *time.Time      `json:"last_attempt_at"`
	LastError      string          `json:"last_error,omitempty" gorm:"type:text"`
	Actioned       bool            `json:"actioned" gorm:"not null;default:false"`
	ProcessedAt    *time.Time      `json:"processed_at,omitempty"`
	CreatedAt      time.Time       `json:"created_at"`
	UpdatedAt      time.Time       `json:"updated_at"`
}

// TableName specifies the table name for InboundMessage
func (InboundMessage) TableName() string {
	return "inbound_messages"
}
