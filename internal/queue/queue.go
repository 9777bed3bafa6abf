package queue

import (
	"fmt"
	"time"

	"github.com/sirupsen/logrus"

	"smart-mail-assistant-go/internal/config"
	"smart-mail-assistant-go/internal/model"
	"smart-mail-assistant-go/internal/repository"
)

// Controller selects messages for suggestion cycles and tracks their retry budget.
// Eligibility is always re-queried from the store.
type Controller struct {
	repo        *repository.Repository
	maxAttempts int
	cooldown    time.Duration
	batchLimit  int
	now         func() time.Time
}

// Option customizes a Controller
type Option func(*Controller)

// WithClock replaces the wall clock
func WithClock(now func() time.Time) Option {
	return func(c *Controller) { c.now = now }
}

// NewController creates a controller from queue configuration
func NewController(repo *repository.Repository, cfg config.QueueConfig, opts ...Option) *Controller {
	c := &Controller{
		repo:        repo,
		maxAttempts: cfg.MaxAttempts,
		cooldown:    cfg.Cooldown,
		batchLimit:  cfg.BatchLimit,
		now:         func() time.Time { return time.Now().UTC() },
	}
	if c.maxAttempts <= 0 {
		c.maxAttempts = 3
	}
	if c.batchLimit <= 0 {
		c.batchLimit = 50
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// MaxAttempts returns the retry budget per message
func (c *Controller) MaxAttempts() int {
	return c.maxAttempts
}

// SelectEligible returns up to limit eligible messages, newest first.
// A non-positive limit or one above the batch limit is capped to the batch limit.
func (c *Controller) SelectEligible(limit int) ([]model.InboundMessage, error) {
	if limit <= 0 || limit > c.batchLimit {
		limit = c.batchLimit
	}
	cutoff := c.now().Add(-c.cooldown)
	msgs, err := c.repo.ListEligible(c.maxAttempts, cutoff, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to select eligible messages: %w", err)
	}
	return msgs, nil
}

// IsEligible applies the same rule as SelectEligible to a single message
func (c *Controller) IsEligible(msg model.InboundMessage) bool {
	return Eligible(msg, c.now(), c.maxAttempts, c.cooldown)
}

// Eligible reports whether msg may be picked up at now
func Eligible(msg model.InboundMessage, now time.Time, maxAttempts int, cooldown time.Duration) bool {
	if msg.Attempts == 0 {
		return msg.State == model.StateUnprocessed
	}
	if msg.State != model.StateFailed && msg.State != model.StateUnprocessed {
		return false
	}
	if msg.Attempts >= maxAttempts {
		return false
	}
	if msg.LastAttemptAt == nil {
		return true
	}
	return now.Sub(*msg.LastAttemptAt) >= cooldown
}

// RecordAttemptStart consumes one attempt before the inference call is made,
// so a crash before RecordOutcome still counts against the budget.
func (c *Controller) RecordAttemptStart(id uint) error {
	return c.repo.IncrementAttempt(id, c.now())
}

// RecordOutcome stores the terminal state of an attempt. Processed messages are never moved back.
func (c *Controller) RecordOutcome(id uint, success bool, cause error) error {
	if success {
		return c.repo.MarkProcessed(id, c.now())
	}
	reason := "unknown error"
	if cause != nil {
		reason = cause.Error()
	}
	logrus.Warnf("Suggestion attempt failed for message %d: %s", id, reason)
	return c.repo.MarkFailed(id, reason)
}

// Stats summarizes pipeline state over a rolling window
type Stats struct {
	Window      string    `json:"window"`
	Since       time.Time `json:"since"`
	Processed   int64     `json:"processed"`
	Unprocessed int64     `json:"unprocessed"`
	Failed      int64     `json:"failed"`
	Exhausted   int64     `json:"exhausted"`
	MaxAttempts int       `json:"max_attempts"`
}

// Stats counts messages received inside the window by state
func (c *Controller) Stats(window time.Duration) (*Stats, error) {
	since := c.now().Add(-window)
	counts, err := c.repo.CountStates(since, c.maxAttempts)
	if err != nil {
		return nil, fmt.Errorf("failed to compute processing stats: %w", err)
	}
	return &Stats{
		Window:      window.String(),
		Since:       since,
		Processed:   counts.Processed,
		Unprocessed: counts.Unprocessed,
		Failed:      counts.Failed,
		Exhausted:   counts.Exhausted,
		MaxAttempts: c.maxAttempts,
	}, nil
}

// ResetForRetry makes failed messages eligible again. An empty userID resets every user.
func (c *Controller) ResetForRetry(userID string) (int64, error) {
	n, err := c.repo.ResetFailed(userID)
	if err != nil {
		return 0, fmt.Errorf("failed to reset messages for retry: %w", err)
	}
	logrus.Infof("Reset %d failed messages for retry (user: %q)", n, userID)
	return n, nil
}
