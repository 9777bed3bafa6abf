package llm

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"smart-mail-assistant-go/internal/config"
)

// Roles used in Message.Role
const (
	RoleSystem    = "system"
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

var (
	// ErrNoAPIKey is returned when neither the call nor the client carries an API key
	ErrNoAPIKey = errors.New("llm api key is not configured")
	// ErrUnavailable is returned while the guard is holding calls back after repeated failures
	ErrUnavailable = errors.New("llm temporarily disabled after repeated failures")
)

type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// Options are per-call model settings. Empty Model and APIKey fall back to the client defaults.
type Options struct {
	Temperature float64
	MaxTokens   int
	APIKey      string
	Model       string
}

// Client is a chat-style inference service. The returned text is untrusted.
type Client interface {
	Chat(ctx context.Context, messages []Message, opts Options) (string, error)
}

// NewClient builds the backend named by cfg.Provider
func NewClient(cfg config.LLMConfig) (Client, error) {
	switch cfg.Provider {
	case "anthropic", "":
		return NewAnthropicClient(cfg), nil
	case "openai":
		return NewOpenAIClient(cfg), nil
	case "gemini":
		return NewGeminiClient(cfg), nil
	default:
		return nil, fmt.Errorf("unsupported llm provider: %s", cfg.Provider)
	}
}

// DefaultOptions returns the configured per-call defaults
func DefaultOptions(cfg config.LLMConfig) Options {
	return Options{
		Temperature: cfg.Temperature,
		MaxTokens:   cfg.MaxTokens,
		APIKey:      cfg.APIKey,
		Model:       cfg.Model,
	}
}

func splitSystem(messages []Message) (string, []Message) {
	var system string
	rest := make([]Message, 0, len(messages))
	for _, m := range messages {
		if m.Role == RoleSystem {
			if system != "" {
				system += "\n\n"
			}
			system += m.Content
			continue
		}
		rest = append(rest, m)
	}
	return system, rest
}

func newHTTPClient(timeout time.Duration) *http.Client {
	if timeout <= 0 {
		timeout = 60 * time.Second
	}
	return &http.Client{
		Timeout: timeout,
		Transport: &http.Transport{
			Proxy: http.ProxyFromEnvironment,
			DialContext: (&net.Dialer{
				Timeout:   5 * time.Second,
				KeepAlive: 30 * time.Second,
			}).DialContext,
			ForceAttemptHTTP2:     true,
			MaxIdleConns:          100,
			IdleConnTimeout:       90 * time.Second,
			TLSHandshakeTimeout:   10 * time.Second,
			ExpectContinueTimeout: 1 * time.Second,
		},
	}
}

func pick(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
