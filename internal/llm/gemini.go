package llm

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"google.golang.org/genai"

	"smart-mail-assistant-go/internal/config"
)

const defaultGeminiModel = "gemini-2.5-flash"

// GeminiClient calls Google Gemini through the genai SDK. One SDK client is kept per API key.
type GeminiClient struct {
	apiKey  string
	model   string
	baseURL string

	mu      sync.Mutex
	clients map[string]*genai.Client
}

// NewGeminiClient creates a Gemini backend
func NewGeminiClient(cfg config.LLMConfig) *GeminiClient {
	return &GeminiClient{
		apiKey:  cfg.APIKey,
		model:   pick(cfg.Model, defaultGeminiModel),
		baseURL: cfg.BaseURL,
		clients: make(map[string]*genai.Client),
	}
}

// Chat runs a single GenerateContent call
func (g *GeminiClient) Chat(ctx context.Context, messages []Message, opts Options) (string, error) {
	apiKey := pick(opts.APIKey, g.apiKey)
	if apiKey == "" {
		return "", ErrNoAPIKey
	}
	client, err := g.clientFor(ctx, apiKey)
	if err != nil {
		return "", err
	}

	system, contents := toGeminiContents(messages)
	if len(contents) == 0 {
		return "", fmt.Errorf("llm chat requires at least one non-system message")
	}

	genConfig := &genai.GenerateContentConfig{
		Temperature: genai.Ptr(float32(opts.Temperature)),
	}
	if opts.MaxTokens > 0 {
		genConfig.MaxOutputTokens = int32(opts.MaxTokens)
	}
	if system != "" {
		genConfig.SystemInstruction = genai.NewContentFromText(system, genai.RoleUser)
	}

	resp, err := client.Models.GenerateContent(ctx, pick(opts.Model, g.model), contents, genConfig)
	if err != nil {
		return "", fmt.Errorf("calling Gemini API: %w", err)
	}
	text := resp.Text()
	if strings.TrimSpace(text) == "" {
		return "", fmt.Errorf("response empty")
	}
	return text, nil
}

func (g *GeminiClient) clientFor(ctx context.Context, apiKey string) (*genai.Client, error) {
	g.mu.Lock()
	defer g.mu.Unlock()

	if c, ok := g.clients[apiKey]; ok {
		return c, nil
	}
	cc := &genai.ClientConfig{
		APIKey:  apiKey,
		Backend: genai.BackendGeminiAPI,
	}
	if g.baseURL != "" {
		cc.HTTPOptions = genai.HTTPOptions{BaseURL: g.baseURL}
	}
	c, err := genai.NewClient(ctx, cc)
	if err != nil {
		return nil, fmt.Errorf("creating Gemini client: %w", err)
	}
	g.clients[apiKey] = c
	return c, nil
}

func toGeminiContents(messages []Message) (string, []*genai.Content) {
	system, turns := splitSystem(messages)
	contents := make([]*genai.Content, 0, len(turns))
	for _, m := range turns {
		var role genai.Role = genai.RoleUser
		if m.Role == RoleAssistant {
			role = genai.RoleModel
		}
		contents = append(contents, genai.NewContentFromText(m.Content, role))
	}
	return system, contents
}
