// Package suggest turns messages and free-text requests into validated suggestions.
package suggest

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"

	"smart-mail-assistant-go/internal/llm"
	"smart-mail-assistant-go/internal/meeting"
	"smart-mail-assistant-go/internal/model"
)

// ErrInvalidRequest marks requests that cannot be processed as given
var ErrInvalidRequest = errors.New("invalid suggestion request")

// Engine dispatches requests to the processor registered for their kind
type Engine struct {
	client   llm.Client
	defaults llm.Options
	source   MessageSource
	router   *Router
	registry map[Kind]Processor
	order    []Processor
	flags    FlagStore
	now      func() time.Time
}

// FlagStore persists per-message signals derived from model output
type FlagStore interface {
	SetActionRequired(id uint, required bool) error
}

// EngineOption customizes an Engine
type EngineOption func(*Engine)

// WithClock replaces the wall clock
func WithClock(now func() time.Time) EngineOption {
	return func(e *Engine) { e.now = now }
}

// WithFlagStore records the action-required signal of email results on the message
func WithFlagStore(s FlagStore) EngineOption {
	return func(e *Engine) { e.flags = s }
}

// NewEngine creates an engine with every built-in processor registered
func NewEngine(client llm.Client, defaults llm.Options, source MessageSource, resolver *meeting.Resolver, opts ...EngineOption) *Engine {
	e := &Engine{
		client:   client,
		defaults: defaults,
		source:   source,
		registry: make(map[Kind]Processor),
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(e)
	}
	e.registerDefaults(resolver)
	e.router = NewRouter(client, defaults, e.order)
	return e
}

// Register adds or replaces the processor for its kind
func (e *Engine) Register(p Processor) {
	if _, exists := e.registry[p.Kind()]; !exists {
		e.order = append(e.order, p)
	} else {
		for i, existing := range e.order {
			if existing.Kind() == p.Kind() {
				e.order[i] = p
			}
		}
	}
	e.registry[p.Kind()] = p
	if e.router != nil {
		e.router.processors = e.order
	}
}

// Route picks a kind for free text
func (e *Engine) Route(ctx context.Context, input string) (Kind, string) {
	return e.router.Route(ctx, input)
}

// Generate runs the processor for req.Kind, routing first when the kind is empty.
// Unrecoverable model output is returned as *extract.ParseError; callers substitute SafeDefault.
func (e *Engine) Generate(ctx context.Context, req Request) (*Result, error) {
	routedBy := "explicit"
	if req.Kind == "" {
		req.Kind, routedBy = e.router.Route(ctx, req.Input)
	}
	p, ok := e.registry[req.Kind]
	if !ok {
		return nil, fmt.Errorf("%w: unknown kind %q", ErrInvalidRequest, req.Kind)
	}

	pc, err := p.CollectContext(ctx, req)
	if err != nil {
		return nil, fmt.Errorf("failed to collect %s context: %w", req.Kind, err)
	}

	res, err := p.Run(ctx, req, pc, mergeOptions(e.defaults, req.Model))
	if err != nil {
		return nil, err
	}
	res.RoutedBy = routedBy
	e.recordFlags(req, res)
	logrus.Debugf("Generated %s suggestions (%d actions, source %s)", req.Kind, len(res.Actions), res.Source)
	return res, nil
}

func (e *Engine) recordFlags(req Request, res *Result) {
	if e.flags == nil || res.Source != model.SourceLLM {
		return
	}
	if req.Kind != KindEmailActions && req.Kind != KindEmailSummary {
		return
	}
	id := req.MessageID
	if id == 0 && req.Message != nil {
		id = req.Message.ID
	}
	if id == 0 {
		return
	}
	required := ActionRequired(res)
	if err := e.flags.SetActionRequired(id, required); err != nil {
		logrus.Warnf("Failed to store action_required for message %d: %v", id, err)
		return
	}
	if req.Message != nil {
		req.Message.ActionRequired = required
	}
}

// SuggestEmailActions is the entry point used by the background processor
func (e *Engine) SuggestEmailActions(ctx context.Context, msg *model.InboundMessage) (*Result, error) {
	return e.Generate(ctx, Request{
		Kind:      KindEmailActions,
		UserID:    msg.UserID,
		MessageID: msg.ID,
		Message:   msg,
	})
}

func mergeOptions(base, override llm.Options) llm.Options {
	out := base
	if override.Model != "" {
		out.Model = override.Model
	}
	if override.APIKey != "" {
		out.APIKey = override.APIKey
	}
	if override.MaxTokens > 0 {
		out.MaxTokens = override.MaxTokens
	}
	if override.Temperature > 0 {
		out.Temperature = override.Temperature
	}
	return out
}
