// Package intake serializes user-triggered commands through a single loop.
package intake

import (
	"context"
	"errors"
	"fmt"

	"github.com/sirupsen/logrus"

	"smart-mail-assistant-go/internal/actions"
	"smart-mail-assistant-go/internal/extract"
	"smart-mail-assistant-go/internal/suggest"
)

// ErrStopped is returned when the loop is no longer consuming commands
var ErrStopped = errors.New("intake loop stopped")

// Command is one of PrepareCommand, ExecuteCommand, RetryCommand or GenerateCommand
type Command interface {
	commandName() string
}

// PrepareCommand previews suggestions for a message
type PrepareCommand struct {
	MessageID uint
	Hint      string
}

// ExecuteCommand runs a confirmed action
type ExecuteCommand struct {
	Request actions.ExecuteRequest
}

// RetryCommand resets failed messages, optionally for one user
type RetryCommand struct {
	UserID string
}

// GenerateCommand produces suggestions of any kind
type GenerateCommand struct {
	Request suggest.Request
}

func (PrepareCommand) commandName() string  { return "prepare" }
func (ExecuteCommand) commandName() string  { return "execute" }
func (RetryCommand) commandName() string    { return "retry" }
func (GenerateCommand) commandName() string { return "generate" }

// ActionService is the two-phase action protocol
type ActionService interface {
	Prepare(ctx context.Context, messageID uint, hint string) (*actions.PrepareResult, error)
	Execute(ctx context.Context, req actions.ExecuteRequest) (*actions.ExecuteResult, error)
}

// Retrier resets failed messages for another round of attempts
type Retrier interface {
	ResetForRetry(userID string) (int64, error)
}

// Generator produces suggestions
type Generator interface {
	Generate(ctx context.Context, req suggest.Request) (*suggest.Result, error)
}

type reply struct {
	value any
	err   error
}

type envelope struct {
	ctx   context.Context
	cmd   Command
	reply chan reply
}

// Intake owns the command channel
type Intake struct {
	cmds      chan envelope
	stopped   chan struct{}
	actions   ActionService
	retrier   Retrier
	generator Generator
}

// New creates an intake with a buffered command channel
func New(a ActionService, r Retrier, g Generator, buffer int) *Intake {
	return &Intake{
		cmds:      make(chan envelope, buffer),
		stopped:   make(chan struct{}),
		actions:   a,
		retrier:   r,
		generator: g,
	}
}

// Run consumes commands one at a time until ctx is cancelled
func (i *Intake) Run(ctx context.Context) {
	defer close(i.stopped)
	logrus.Info("Intake loop started")
	for {
		select {
		case <-ctx.Done():
			logrus.Info("Intake loop stopped")
			return
		case env := <-i.cmds:
			value, err := i.handle(env.ctx, env.cmd)
			env.reply <- reply{value: value, err: err}
		}
	}
}

func (i *Intake) handle(ctx context.Context, cmd Command) (any, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	logrus.Debugf("Handling %s command", cmd.commandName())

	switch c := cmd.(type) {
	case PrepareCommand:
		return i.actions.Prepare(ctx, c.MessageID, c.Hint)
	case ExecuteCommand:
		return i.actions.Execute(ctx, c.Request)
	case RetryCommand:
		return i.retrier.ResetForRetry(c.UserID)
	case GenerateCommand:
		res, err := i.generator.Generate(ctx, c.Request)
		if err != nil && extract.IsParseError(err) {
			logrus.Warnf("Unparsable %s output, returning default: %v", c.Request.Kind, err)
			kind := c.Request.Kind
			if kind == "" {
				kind = suggest.KindChatResponse
			}
			return suggest.SafeDefault(kind, suggest.DefaultPriority(c.Request.Message)), nil
		}
		return res, err
	default:
		return nil, fmt.Errorf("unsupported command %T", cmd)
	}
}

// Submit enqueues cmd and waits for its result
func (i *Intake) Submit(ctx context.Context, cmd Command) (any, error) {
	env := envelope{ctx: ctx, cmd: cmd, reply: make(chan reply, 1)}
	select {
	case i.cmds <- env:
	case <-i.stopped:
		return nil, ErrStopped
	case <-ctx.Done():
		return nil, ctx.Err()
	}

	select {
	case r := <-env.reply:
		return r.value, r.err
	case <-i.stopped:
		return nil, ErrStopped
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// Prepare submits a PrepareCommand
func (i *Intake) Prepare(ctx context.Context, messageID uint, hint string) (*actions.PrepareResult, error) {
	v, err := i.Submit(ctx, PrepareCommand{MessageID: messageID, Hint: hint})
	if err != nil {
		return nil, err
	}
	return v.(*actions.PrepareResult), nil
}

// Execute submits an ExecuteCommand
func (i *Intake) Execute(ctx context.Context, req actions.ExecuteRequest) (*actions.ExecuteResult, error) {
	v, err := i.Submit(ctx, ExecuteCommand{Request: req})
	if err != nil {
		return nil, err
	}
	return v.(*actions.ExecuteResult), nil
}

// Retry submits a RetryCommand and returns the number of messages reset
func (i *Intake) Retry(ctx context.Context, userID string) (int64, error) {
	v, err := i.Submit(ctx, RetryCommand{UserID: userID})
	if err != nil {
		return 0, err
	}
	return v.(int64), nil
}

// Generate submits a GenerateCommand
func (i *Intake) Generate(ctx context.Context, req suggest.Request) (*suggest.Result, error) {
	v, err := i.Submit(ctx, GenerateCommand{Request: req})
	if err != nil {
		return nil, err
	}
	return v.(*suggest.Result), nil
}
