package model

import (
	"time"
)

// Action types understood by the execution dispatcher
const (
	ActionMarkAsRead     = "mark_as_read"
	ActionMarkAsPriority = "mark_as_priority"
	ActionTrash          = "trash"
	ActionReply          = "reply"
	ActionSendEmail      = "send_email"
	ActionCreateTask     = "create_task"
	ActionCreateEvent    = "create_event"
	ActionCreateMeeting  = "create_meeting"
)

// KnownActionTypes lists every action type a suggestion may carry
var KnownActionTypes = []string{
	ActionReply,
	ActionSendEmail,
	ActionCreateTask,
	ActionCreateEvent,
	ActionCreateMeeting,
	ActionMarkAsRead,
	ActionMarkAsPriority,
	ActionTrash,
}

// IsKnownActionType reports whether t is a dispatchable action type
func IsKnownActionType(t string) bool {
	for _, known := range KnownActionTypes {
		if known == t {
			return true
		}
	}
	return false
}

// Suggestion set sources
const (
	SourceLLM      = "llm"
	SourceDefault  = "default"
	SourceFallback = "fallback"
)

// SuggestedActionSet is one generation of suggestions for a message.
// Only the newest set per message is authoritative.
type SuggestedActionSet struct {
	ID        uint              `json:"id" gorm:"primaryKey;autoIncrement"`
	MessageID uint              `json:"message_id" gorm:"not null;index"`
	Kind      string            `json:"kind" gorm:"type:varchar(64);not null"`
	Summary   string            `json:"summary" gorm:"type:text"`
	Priority  string            `json:"priority" gorm:"type:varchar(32)"`
	Source    string            `json:"source" gorm:"type:varchar(32);not null"`
	Followups StringList        `json:"followups" gorm:"type:text"`
	CreatedAt time.Time         `json:"created_at" gorm:"index"`
	Actions   []SuggestedAction `json:"actions" gorm:"foreignKey:SetID"`
}

// TableName specifies the table name for SuggestedActionSet
func (SuggestedActionSet) TableName() string {
	return "suggested_action_sets"
}

// SuggestedAction is a proposed, unexecuted side-effecting operation
type SuggestedAction struct {
	ID         uint    `json:"id" gorm:"primaryKey;autoIncrement"`
	SetID      uint    `json:"set_id" gorm:"not null;index"`
	Position   int     `json:"position" gorm:"not null"`
	Type       string  `json:"type" gorm:"type:varchar(64);not null"`
	Title      string  `json:"title" gorm:"type:varchar(512)"`
	Payload    JSONMap `json:"payload" gorm:"type:text"`
	Confidence float64 `json:"confidence"`
	Reasoning  string  `json:"reasoning" gorm:"type:text"`
}

// TableName specifies the table name for SuggestedAction
func (SuggestedAction) TableName() string {
	return "suggested_actions"
}
