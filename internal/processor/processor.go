// Package processor turns eligible inbound messages into suggestion sets.
package processor

import (
	"context"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"

	"smart-mail-assistant-go/internal/extract"
	"smart-mail-assistant-go/internal/metrics"
	"smart-mail-assistant-go/internal/model"
	"smart-mail-assistant-go/internal/queue"
	"smart-mail-assistant-go/internal/repository"
	"smart-mail-assistant-go/internal/suggest"
)

// Suggester produces email action suggestions for one message
type Suggester interface {
	SuggestEmailActions(ctx context.Context, msg *model.InboundMessage) (*suggest.Result, error)
}

// Processor runs suggestion cycles over the retry queue
type Processor struct {
	queue   *queue.Controller
	repo    *repository.Repository
	engine  Suggester
	metrics *metrics.Metrics
	delay   time.Duration
	sleep   func(ctx context.Context, d time.Duration) error
}

// Option customizes a Processor
type Option func(*Processor)

// WithSleep replaces the pause between inference calls
func WithSleep(sleep func(ctx context.Context, d time.Duration) error) Option {
	return func(p *Processor) { p.sleep = sleep }
}

// WithMetrics records cycle metrics
func WithMetrics(m *metrics.Metrics) Option {
	return func(p *Processor) { p.metrics = m }
}

// New creates a processor pausing delay between inference calls
func New(q *queue.Controller, repo *repository.Repository, engine Suggester, delay time.Duration, opts ...Option) *Processor {
	p := &Processor{
		queue:  q,
		repo:   repo,
		engine: engine,
		delay:  delay,
		sleep:  sleepContext,
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// CycleReport summarizes one processing cycle
type CycleReport struct {
	Selected  int           `json:"selected"`
	Succeeded int           `json:"succeeded"`
	Defaulted int           `json:"defaulted"`
	Failed    int           `json:"failed"`
	Duration  time.Duration `json:"duration"`
}

// RunCycle processes the current batch of eligible messages, one user at a time
func (p *Processor) RunCycle(ctx context.Context) (*CycleReport, error) {
	start := time.Now()
	report := &CycleReport{}

	msgs, err := p.queue.SelectEligible(0)
	if err != nil {
		return nil, fmt.Errorf("failed to select eligible messages: %w", err)
	}
	report.Selected = len(msgs)
	if p.metrics != nil {
		p.metrics.ProcessingCycles.Inc()
		p.metrics.QueueDepth.Set(float64(len(msgs)))
	}
	if len(msgs) == 0 {
		return report, nil
	}
	logrus.Infof("Processing %d eligible messages", len(msgs))

	first := true
	for _, group := range groupByUser(msgs) {
		for i := range group {
			if ctx.Err() != nil {
				report.Duration = time.Since(start)
				return report, ctx.Err()
			}
			if !first && p.delay > 0 {
				if err := p.sleep(ctx, p.delay); err != nil {
					report.Duration = time.Since(start)
					return report, err
				}
			}
			first = false

			defaulted, err := p.processMessage(ctx, &group[i])
			switch {
			case err != nil:
				report.Failed++
				logrus.Debugf("Message %d left for retry: %v", group[i].ID, err)
			case defaulted:
				report.Defaulted++
				report.Succeeded++
			default:
				report.Succeeded++
			}
		}
	}

	report.Duration = time.Since(start)
	logrus.Infof("Processing cycle completed in %v: %d succeeded (%d defaulted), %d failed",
		report.Duration, report.Succeeded, report.Defaulted, report.Failed)
	return report, nil
}

// processMessage records the attempt before the inference call and the outcome after it
func (p *Processor) processMessage(ctx context.Context, msg *model.InboundMessage) (bool, error) {
	if err := p.queue.RecordAttemptStart(msg.ID); err != nil {
		return false, err
	}

	started := time.Now()
	res, err := p.engine.SuggestEmailActions(ctx, msg)
	if p.metrics != nil {
		p.metrics.ProcessingTime.Observe(time.Since(started).Seconds())
	}

	defaulted := false
	if err != nil {
		if !extract.IsParseError(err) {
			p.fail(msg.ID, err)
			return false, err
		}
		logrus.Warnf("Unparsable suggestions for message %d, storing default: %v", msg.ID, err)
		res = suggest.SafeDefault(suggest.KindEmailActions, suggest.DefaultPriority(msg))
		defaulted = true
	}

	if err := p.repo.SaveSuggestionSet(res.ActionSet(msg.ID)); err != nil {
		p.fail(msg.ID, err)
		return false, err
	}
	if err := p.queue.RecordOutcome(msg.ID, true, nil); err != nil {
		return false, err
	}
	if p.metrics != nil {
		p.metrics.SuggestionSuccess.Inc()
		if defaulted {
			p.metrics.SuggestionDefaults.Inc()
		}
	}
	return defaulted, nil
}

func (p *Processor) fail(id uint, cause error) {
	if p.metrics != nil {
		p.metrics.SuggestionFailures.Inc()
	}
	if err := p.queue.RecordOutcome(id, false, cause); err != nil {
		logrus.Errorf("Failed to record failure for message %d: %v", id, err)
	}
}

// groupByUser keeps the queue order within each user and orders users by first appearance
func groupByUser(msgs []model.InboundMessage) [][]model.InboundMessage {
	index := make(map[string]int)
	var groups [][]model.InboundMessage
	for _, m := range msgs {
		i, ok := index[m.UserID]
		if !ok {
			i = len(groups)
			index[m.UserID] = i
			groups = append(groups, nil)
		}
		groups[i] = append(groups[i], m)
	}
	return groups
}

func sleepContext(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
