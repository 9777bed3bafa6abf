package suggest

import (
	"context"
	"fmt"
	"strings"

	"github.com/sirupsen/logrus"

	"smart-mail-assistant-go/internal/extract"
	"smart-mail-assistant-go/internal/llm"
)

// Route sources reported in Result.RoutedBy
const (
	RoutedByLLM     = "llm"
	RoutedByKeyword = "keyword"
)

// Router classifies free text into a Kind
type Router struct {
	client     llm.Client
	opts       llm.Options
	processors []Processor
}

// NewRouter creates a router over processors in detection priority order
func NewRouter(client llm.Client, opts llm.Options, processors []Processor) *Router {
	return &Router{client: client, opts: opts, processors: processors}
}

// Keyword returns the first processor kind whose pattern matches, else chat_response
func (r *Router) Keyword(input string) Kind {
	for _, p := range r.processors {
		if p.Detect(input) {
			return p.Kind()
		}
	}
	return KindChatResponse
}

// Route asks the model for a label at temperature 0 and falls back to the
// keyword result when the model is unavailable or answers outside the set.
func (r *Router) Route(ctx context.Context, input string) (Kind, string) {
	fallback := r.Keyword(input)
	if r.client == nil {
		return fallback, RoutedByKeyword
	}

	labels := make([]string, len(Kinds))
	for i, k := range Kinds {
		labels[i] = string(k)
	}
	opts := r.opts
	opts.Temperature = 0
	opts.MaxTokens = 32

	text, err := r.client.Chat(ctx, []llm.Message{
		{Role: llm.RoleSystem, Content: fmt.Sprintf(
			"Classify the user's request. Answer with exactly one label from: %s. No other words.",
			strings.Join(labels, ", "))},
		{Role: llm.RoleUser, Content: input},
	}, opts)
	if err != nil {
		logrus.Debugf("Router classification unavailable, using keyword match: %v", err)
		return fallback, RoutedByKeyword
	}

	if kind, ok := labelFrom(text); ok {
		return kind, RoutedByLLM
	}
	logrus.Debugf("Router got out-of-set label %q, using keyword match", text)
	return fallback, RoutedByKeyword
}

func labelFrom(text string) (Kind, bool) {
	if kind, ok := ParseKind(text); ok {
		return kind, true
	}
	var obj struct {
		Kind  string `json:"kind"`
		Label string `json:"label"`
	}
	if err := extract.Into(text, &obj); err == nil {
		if kind, ok := ParseKind(obj.Kind); ok {
			return kind, true
		}
		if kind, ok := ParseKind(obj.Label); ok {
			return kind, true
		}
	}
	return "", false
}
