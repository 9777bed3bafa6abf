package repository

import (
	"errors"
	"fmt"
	"time"

	"gorm.io/gorm"

	"smart-mail-assistant-go/internal/model"
)

// ErrNotFound is returned when a requested row does not exist
var ErrNotFound = errors.New("record not found")

// Repository is the durable message, suggestion and audit store
type Repository struct {
	db *gorm.DB
}

// New creates a repository on top of an open gorm connection
func New(db *gorm.DB) *Repository {
	return &Repository{db: db}
}

// DB exposes the underlying connection for health checks
func (r *Repository) DB() *gorm.DB {
	return r.db
}

// UpsertMessage inserts an ingested message, or refreshes the collaborator-owned
// columns of an existing one with the same external id. Pipeline state is never touched.
func (r *Repository) UpsertMessage(msg *model.InboundMessage) (bool, error) {
	var existing model.InboundMessage
	err := r.db.Where("external_id = ?", msg.ExternalID).First(&existing).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		if msg.State == "" {
			msg.State = model.StateUnprocessed
		}
		if err := r.db.Create(msg).Error; err != nil {
			return false, fmt.Errorf("failed to insert message %s: %w", msg.ExternalID, err)
		}
		return true, nil
	}
	if err != nil {
		return false, fmt.Errorf("database error checking message %s: %w", msg.ExternalID, err)
	}

	if err := r.db.Model(&existing).Updates(map[string]any{
		"sender":     msg.Sender,
		"subject":    msg.Subject,
		"body_plain": msg.BodyPlain,
		"is_read":    msg.IsRead,
	}).Error; err != nil {
		return false, fmt.Errorf("failed to refresh message %s: %w", msg.ExternalID, err)
	}
	existing.Sender = msg.Sender
	existing.Subject = msg.Subject
	existing.BodyPlain = msg.BodyPlain
	existing.IsRead = msg.IsRead
	*msg = existing
	return false, nil
}

// GetMessage loads a message by id
func (r *Repository) GetMessage(id uint) (*model.InboundMessage, error) {
	var msg model.InboundMessage
	if err := r.db.First(&msg, id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, fmt.Errorf("message %d: %w", id, ErrNotFound)
		}
		return nil, fmt.Errorf("database error loading message %d: %w", id, err)
	}
	return &msg, nil
}

// ListEligible returns messages a suggestion cycle may pick up, newest first
func (r *Repository) ListEligible(maxAttempts int, cutoff time.Time, limit int) ([]model.InboundMessage, error) {
	var msgs []model.InboundMessage
	result := r.db.
		Where("(state = ? AND attempts = 0) OR (state IN ? AND attempts > 0 AND attempts < ? AND (last_attempt_at IS NULL OR last_attempt_at <= ?))",
			model.StateUnprocessed,
			[]string{string(model.StateFailed), string(model.StateUnprocessed)},
			maxAttempts,
			cutoff,
		).
		Order("received_at DESC").
		Order("id DESC").
		Limit(limit).
		Find(&msgs)
	if result.Error != nil {
		return nil, fmt.Errorf("failed to list eligible messages: %w", result.Error)
	}
	return msgs, nil
}

// ListRecentMessages returns a user's messages received at or after since, newest first
func (r *Repository) ListRecentMessages(userID string, since time.Time, limit int) ([]model.InboundMessage, error) {
	var msgs []model.InboundMessage
	q := r.db.Where("received_at >= ?", since)
	if userID != "" {
		q = q.Where("user_id = ?", userID)
	}
	if err := q.Order("received_at DESC").Limit(limit).Find(&msgs).Error; err != nil {
		return nil, fmt.Errorf("failed to list recent messages: %w", err)
	}
	return msgs, nil
}

// IncrementAttempt bumps attempts and stamps last_attempt_at as a single row update
func (r *Repository) IncrementAttempt(id uint, at time.Time) error {
	result := r.db.Model(&model.InboundMessage{}).
		Where("id = ?", id).
		Updates(map[string]any{
			"attempts":        gorm.Expr("attempts + 1"),
			"last_attempt_at": at,
		})
	if result.Error != nil {
		return fmt.Errorf("failed to record attempt for message %d: %w", id, result.Error)
	}
	if result.RowsAffected == 0 {
		return fmt.Errorf("message %d: %w", id, ErrNotFound)
	}
	return nil
}

// MarkProcessed moves a message to processed unless it already is
func (r *Repository) MarkProcessed(id uint, at time.Time) error {
	result := r.db.Model(&model.InboundMessage{}).
		Where("id = ? AND state <> ?", id, model.StateProcessed).
		Updates(map[string]any{
			"state":        model.StateProcessed,
			"processed_at": at,
			"last_error":   "",
		})
	if result.Error != nil {
		return fmt.Errorf("failed to mark message %d processed: %w", id, result.Error)
	}
	return nil
}

// MarkFailed records a failed attempt unless the message is already processed
func (r *Repository) MarkFailed(id uint, reason string) error {
	result := r.db.Model(&model.InboundMessage{}).
		Where("id = ? AND state <> ?", id, model.StateProcessed).
		Updates(map[string]any{
			"state":      model.StateFailed,
			"last_error": reason,
		})
	if result.Error != nil {
		return fmt.Errorf("failed to mark message %d failed: %w", id, result.Error)
	}
	return nil
}

// ResetFailed makes attempted, unfinished messages eligible again, optionally for one user.
// Rows left unprocessed by a crash mid-attempt are included.
func (r *Repository) ResetFailed(userID string) (int64, error) {
	q := r.db.Model(&model.InboundMessage{}).Where("state <> ? AND attempts > ?", model.StateProcessed, 0)
	if userID != "" {
		q = q.Where("user_id = ?", userID)
	}
	result := q.Updates(map[string]any{
		"state":           model.StateUnprocessed,
		"attempts":        0,
		"last_attempt_at": nil,
	})
	if result.Error != nil {
		return 0, fmt.Errorf("failed to reset failed messages: %w", result.Error)
	}
	return result.RowsAffected, nil
}

// SetActionRequired stores the model's action-required signal for a message
func (r *Repository) SetActionRequired(id uint, required bool) error {
	if err := r.db.Model(&model.InboundMessage{}).Where("id = ?", id).Update("action_required", required).Error; err != nil {
		return fmt.Errorf("failed to update action_required for message %d: %w", id, err)
	}
	return nil
}

// SetActioned flips the actioned flag on. It never clears it.
func (r *Repository) SetActioned(id uint) error {
	result := r.db.Model(&model.InboundMessage{}).
		Where("id = ? AND actioned = ?", id, false).
		Update("actioned", true)
	if result.Error != nil {
		return fmt.Errorf("failed to mark message %d actioned: %w", id, result.Error)
	}
	return nil
}

// StateCounts holds message counts per processing state
type StateCounts struct {
	Processed   int64
	Unprocessed int64
	Failed      int64
	Exhausted   int64
}

// CountStates counts messages received at or after since, grouped by state.
// Exhausted counts failed messages whose attempts reached maxAttempts.
func (r *Repository) CountStates(since time.Time, maxAttempts int) (StateCounts, error) {
	var rows []struct {
		State string
		Count int64
	}
	if err := r.db.Model(&model.InboundMessage{}).
		Select("state, COUNT(*) AS count").
		Where("received_at >= ?", since).
		Group("state").
		Scan(&rows).Error; err != nil {
		return StateCounts{}, fmt.Errorf("failed to count message states: %w", err)
	}

	var counts StateCounts
	for _, row := range rows {
		switch model.ProcessingState(row.State) {
		case model.StateProcessed:
			counts.Processed = row.Count
		case model.StateUnprocessed:
			counts.Unprocessed = row.Count
		case model.StateFailed:
			counts.Failed = row.Count
		}
	}

	if err := r.db.Model(&model.InboundMessage{}).
		Where("received_at >= ? AND state <> ? AND attempts >= ?", since, model.StateProcessed, maxAttempts).
		Count(&counts.Exhausted).Error; err != nil {
		return StateCounts{}, fmt.Errorf("failed to count exhausted messages: %w", err)
	}
	return counts, nil
}

// SaveSuggestionSet stores a new set and its ordered actions in one transaction
func (r *Repository) SaveSuggestionSet(set *model.SuggestedActionSet) error {
	return r.db.Transaction(func(tx *gorm.DB) error {
		actions := set.Actions
		set.Actions = nil
		if err := tx.Create(set).Error; err != nil {
			return fmt.Errorf("failed to save suggestion set: %w", err)
		}
		for i := range actions {
			actions[i].ID = 0
			actions[i].SetID = set.ID
			actions[i].Position = i
		}
		if len(actions) > 0 {
			if err := tx.Create(&actions).Error; err != nil {
				return fmt.Errorf("failed to save suggested actions: %w", err)
			}
		}
		set.Actions = actions
		return nil
	})
}

// LatestSuggestionSet returns the authoritative set for a message
func (r *Repository) LatestSuggestionSet(messageID uint) (*model.SuggestedActionSet, error) {
	var set model.SuggestedActionSet
	err := r.db.
		Preload("Actions", func(db *gorm.DB) *gorm.DB { return db.Order("position ASC") }).
		Where("message_id = ?", messageID).
		Order("created_at DESC").
		Order("id DESC").
		First(&set).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, fmt.Errorf("suggestions for message %d: %w", messageID, ErrNotFound)
		}
		return nil, fmt.Errorf("database error loading suggestions: %w", err)
	}
	return &set, nil
}

// AppendAudit writes one execution audit row
func (r *Repository) AppendAudit(audit *model.ExecutionAudit) error {
	if err := r.db.Create(audit).Error; err != nil {
		return fmt.Errorf("failed to append execution audit: %w", err)
	}
	return nil
}

// HasExecuted reports whether an action type already succeeded for a message
func (r *Repository) HasExecuted(messageID uint, actionType string) (bool, error) {
	var count int64
	err := r.db.Model(&model.ExecutionAudit{}).
		Where("message_id = ? AND action_type = ? AND status = ?", messageID, actionType, model.AuditExecuted).
		Count(&count).Error
	if err != nil {
		return false, fmt.Errorf("failed to check execution history: %w", err)
	}
	return count > 0, nil
}

// AuditFilter narrows ListAudits
type AuditFilter struct {
	MessageID uint
	Status    string
	Page      int
	Limit     int
}

// ListAudits returns a page of audit rows, newest first, with the total count
func (r *Repository) ListAudits(f AuditFilter) ([]model.ExecutionAudit, int64, error) {
	if f.Page < 1 {
		f.Page = 1
	}
	if f.Limit < 1 || f.Limit > 100 {
		f.Limit = 20
	}

	q := r.db.Model(&model.ExecutionAudit{})
	if f.MessageID != 0 {
		q = q.Where("message_id = ?", f.MessageID)
	}
	if f.Status != "" {
		q = q.Where("status = ?", f.Status)
	}

	var total int64
	if err := q.Count(&total).Error; err != nil {
		return nil, 0, fmt.Errorf("failed to count audits: %w", err)
	}

	var audits []model.ExecutionAudit
	if err := q.Order("created_at DESC").Order("id DESC").
		Offset((f.Page - 1) * f.Limit).Limit(f.Limit).
		Find(&audits).Error; err != nil {
		return nil, 0, fmt.Errorf("failed to list audits: %w", err)
	}
	return audits, total, nil
}

// GetAudit loads a single audit row
func (r *Repository) GetAudit(id uint) (*model.ExecutionAudit, error) {
	var audit model.ExecutionAudit
	if err := r.db.First(&audit, id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, fmt.Errorf("audit %d: %w", id, ErrNotFound)
		}
		return nil, fmt.Errorf("database error loading audit %d: %w", id, err)
	}
	return &audit, nil
}
