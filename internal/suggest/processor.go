package suggest

import (
	"context"
	"encoding/json"
	"fmt"
	"regexp"
	"strings"
	"time"

	"smart-mail-assistant-go/internal/extract"
	"smart-mail-assistant-go/internal/llm"
	"smart-mail-assistant-go/internal/model"
)

// Request is one suggestion generation call
type Request struct {
	Kind      Kind
	UserID    string
	MessageID uint
	Message   *model.InboundMessage
	Input     string
	Payload   map[string]any
	Model     llm.Options
}

// PromptContext is what a processor collected before prompting
type PromptContext struct {
	Message  *model.InboundMessage
	Messages []model.InboundMessage
	History  []string
	Extra    map[string]any
}

// Processor handles one request kind
type Processor interface {
	Kind() Kind
	Detect(input string) bool
	CollectContext(ctx context.Context, req Request) (*PromptContext, error)
	Run(ctx context.Context, req Request, pc *PromptContext, opts llm.Options) (*Result, error)
}

// MessageSource is the read side of the message store used by context collectors
type MessageSource interface {
	GetMessage(id uint) (*model.InboundMessage, error)
	ListRecentMessages(userID string, since time.Time, limit int) ([]model.InboundMessage, error)
}

type validator func(obj map[string]any, pc *PromptContext) (*Result, error)

// templateProcessor is the shared prompt, chat, extract, validate pipeline
type templateProcessor struct {
	kind     Kind
	detect   *regexp.Regexp
	system   string
	collect  func(ctx context.Context, req Request) (*PromptContext, error)
	prompt   func(req Request, pc *PromptContext) string
	validate validator
	client   llm.Client
}

func (p *templateProcessor) Kind() Kind {
	return p.kind
}

func (p *templateProcessor) Detect(input string) bool {
	return p.detect != nil && p.detect.MatchString(input)
}

func (p *templateProcessor) CollectContext(ctx context.Context, req Request) (*PromptContext, error) {
	if p.collect == nil {
		return &PromptContext{Extra: req.Payload, History: historyFrom(req.Payload)}, nil
	}
	return p.collect(ctx, req)
}

func (p *templateProcessor) Run(ctx context.Context, req Request, pc *PromptContext, opts llm.Options) (*Result, error) {
	if p.client == nil {
		return nil, llm.ErrNoAPIKey
	}
	text, err := p.client.Chat(ctx, []llm.Message{
		{Role: llm.RoleSystem, Content: p.system},
		{Role: llm.RoleUser, Content: p.prompt(req, pc)},
	}, opts)
	if err != nil {
		return nil, fmt.Errorf("%s inference failed: %w", p.kind, err)
	}

	obj, err := extract.Object(text)
	if err != nil {
		return nil, err
	}
	res, err := p.validate(obj, pc)
	if err != nil {
		return nil, err
	}
	res.Kind = p.kind
	res.Source = model.SourceLLM
	if res.Followups == nil {
		res.Followups = []string{}
	}
	return res, nil
}

func historyFrom(payload map[string]any) []string {
	if payload == nil {
		return nil
	}
	switch h := payload["history"].(type) {
	case []string:
		return h
	case []any:
		return asStringList(h)
	}
	return nil
}

func describeMessage(sb *strings.Builder, msg *model.InboundMessage) {
	fmt.Fprintf(sb, "From: %s\nSubject: %s\nReceived: %s\n\n%s\n",
		msg.Sender, msg.Subject, msg.ReceivedAt.UTC().Format(time.RFC3339), truncate(msg.BodyPlain, 6000))
}

func describeExtra(sb *strings.Builder, extra map[string]any) {
	if len(extra) == 0 {
		return
	}
	filtered := make(map[string]any, len(extra))
	for k, v := range extra {
		if k == "history" {
			continue
		}
		filtered[k] = v
	}
	if len(filtered) == 0 {
		return
	}
	b, err := json.Marshal(filtered)
	if err != nil {
		return
	}
	fmt.Fprintf(sb, "\nAdditional context (JSON): %s\n", b)
}

func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n]) + "..."
}
