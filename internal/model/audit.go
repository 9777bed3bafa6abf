package model

import (
	"time"
)

// Execution audit statuses
const (
	AuditExecuted = "executed"
	AuditFailed   = "failed"
	AuditSkipped  = "skipped"
)

// ExecutionAudit records one confirmed action execution attempt. Rows are append-only.
type ExecutionAudit struct {
	ID         uint      `json:"id" gorm:"primaryKey;autoIncrement"`
	MessageID  uint      `json:"message_id" gorm:"not null;index"`
	Actor      string    `json:"actor" gorm:"type:varchar(255)"`
	ActionType string    `json:"action_type" gorm:"type:varchar(64);not null;index"`
	Payload    JSONMap   `json:"payload" gorm:"type:text"`
	Status     string    `json:"status" gorm:"type:varchar(32);not null"`
	Result     JSONMap   `json:"result,omitempty" gorm:"type:text"`
	ErrorCode  string    `json:"error_code,omitempty" gorm:"type:varchar(64)"`
	ErrorMsg   string    `json:"error_msg,omitempty" gorm:"type:text"`
	CreatedAt  time.Time `json:"created_at"`
}

// TableName specifies the table name for ExecutionAudit
func (ExecutionAudit) TableName() string {
	return "execution_audits"
}
