package llm

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
)

// breaker pauses a backend for a cooldown once it fails maxFailures times in a row.
// It is not safe for concurrent use; GuardedClient serializes access.
type breaker struct {
	maxFailures int
	cooldown    time.Duration
	failures    int
	openUntil   time.Time
	now         func() time.Time
}

func newBreaker(maxFailures int, cooldown time.Duration) breaker {
	return breaker{maxFailures: maxFailures, cooldown: cooldown, now: time.Now}
}

// allow reports whether a call may go through. After the cooldown the next call is let
// through with one failure left before the breaker opens again.
func (b *breaker) allow() bool {
	if b.openUntil.IsZero() {
		return true
	}
	if b.now().Before(b.openUntil) {
		return false
	}
	b.openUntil = time.Time{}
	b.failures = b.maxFailures - 1
	return true
}

// failure counts a failed call and opens the breaker at the threshold
func (b *breaker) failure() bool {
	if b.maxFailures <= 0 {
		return false
	}
	b.failures++
	if b.failures < b.maxFailures {
		return false
	}
	b.openUntil = b.now().Add(b.cooldown)
	return true
}

func (b *breaker) success() {
	b.failures = 0
	b.openUntil = time.Time{}
}

// GuardedClient short-circuits calls to a failing backend
type GuardedClient struct {
	next  Client
	mu    sync.Mutex
	guard breaker
}

// WithGuard wraps next so that maxFailures consecutive errors pause it for cooldown
func WithGuard(next Client, maxFailures int, cooldown time.Duration) *GuardedClient {
	return &GuardedClient{next: next, guard: newBreaker(maxFailures, cooldown)}
}

// Chat forwards to the wrapped client unless the breaker is open
func (c *GuardedClient) Chat(ctx context.Context, messages []Message, opts Options) (string, error) {
	c.mu.Lock()
	allowed := c.guard.allow()
	c.mu.Unlock()
	if !allowed {
		return "", ErrUnavailable
	}

	text, err := c.next.Chat(ctx, messages, opts)

	c.mu.Lock()
	defer c.mu.Unlock()
	switch {
	case err == nil:
		c.guard.success()
	case errors.Is(err, ErrNoAPIKey), errors.Is(err, context.Canceled):
	default:
		if c.guard.failure() {
			logrus.Warnf("LLM backend disabled until %s after repeated failures: %v", c.guard.openUntil.Format(time.RFC3339), err)
		}
	}
	return text, err
}
