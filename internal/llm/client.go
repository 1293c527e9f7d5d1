// Where: internal/llm/client.go
// What: Thin chat-completion interface and its OpenAI-compatible backend.
// Why: Stages treat the model strictly as an extractor behind one port.
package llm

import (
	"context"
	"fmt"
	"time"

	openai "github.com/sashabaranov/go-openai"
)

// Message is one chat turn.
type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

const (
	RoleSystem    = "system"
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// Options tune a single completion call.
type Options struct {
	Temperature float32
	MaxTokens   int
}

// Chatter is the only surface pipeline stages see. Implementations must
// respect ctx cancellation and the configured request timeout.
type Chatter interface {
	Chat(ctx context.Context, messages []Message, opts Options) (string, error)
}

// Config selects the endpoint, model, and limits for the OpenAI-compatible
// client.
type Config struct {
	APIKey      string
	BaseURL     string
	Model       string
	Temperature float32
	MaxTokens   int
	Timeout     time.Duration
}

// Client calls an OpenAI-compatible chat-completion endpoint.
type Client struct {
	api    *openai.Client
	config Config
}

// New builds a client for the configured endpoint.
func New(cfg Config) *Client {
	if cfg.Model == "" {
		cfg.Model = openai.GPT4oMini
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 60 * time.Second
	}
	if cfg.MaxTokens <= 0 {
		cfg.MaxTokens = 4000
	}
	clientCfg := openai.DefaultConfig(cfg.APIKey)
	if cfg.BaseURL != "" {
		clientCfg.BaseURL = cfg.BaseURL
	}
	return &Client{api: openai.NewClientWithConfig(clientCfg), config: cfg}
}

// Chat sends one completion request and returns the assistant content.
func (c *Client) Chat(ctx context.Context, messages []Message, opts Options) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, c.config.Timeout)
	defer cancel()

	temperature := opts.Temperature
	if temperature == 0 {
		temperature = c.config.Temperature
	}
	maxTokens := opts.MaxTokens
	if maxTokens == 0 {
		maxTokens = c.config.MaxTokens
	}

	req := openai.ChatCompletionRequest{
		Model:       c.config.Model,
		Temperature: temperature,
		MaxTokens:   maxTokens,
	}
	for _, m := range messages {
		req.Messages = append(req.Messages, openai.ChatCompletionMessage{
			Role:    m.Role,
			Content: m.Content,
		})
	}

	resp, err := c.api.CreateChatCompletion(ctx, req)
	if err != nil {
		return "", fmt.Errorf("chat completion: %w", err)
	}
	if len(resp.Choices) == 0 {
		return "", fmt.Errorf("chat completion: empty response")
	}
	return resp.Choices[0].Message.Content, nil
}
