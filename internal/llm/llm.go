// Package llm talks to large language models. A Completer hides the
// provider (OpenAI-compatible, Gemini or Anthropic); middleware adds retries
// and rate limiting; Grader turns completions into submission grades.
package llm

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	openai "github.com/sashabaranov/go-openai"
)

// Completer sends one system+user prompt and returns the raw text reply.
type Completer interface {
	Complete(ctx context.Context, system, prompt string) (string, error)
	Model() string
}

// Provider names accepted by New.
const (
	ProviderOpenAI    = "openai"
	ProviderGemini    = "gemini"
	ProviderAnthropic = "anthropic"
)

// Config selects and configures a provider.
type Config struct {
	Provider    string  `mapstructure:"provider" validate:"omitempty,oneof=openai gemini anthropic"`
	BaseURL     string  `mapstructure:"base-url"`
	APIKey      string  `mapstructure:"api-key"`
	Model       string  `mapstructure:"model"`
	Temperature float64 `mapstructure:"temperature" validate:"gte=0,lte=2"`
	MaxTokens   int     `mapstructure:"max-tokens" validate:"gte=0"`
	Timeout     time.Duration
}

// ErrNotConfigured is returned by New when no API key or base URL is set.
var ErrNotConfigured = errors.New("llm not configured")

// New builds the Completer for cfg.Provider (default openai).
func New(ctx context.Context, cfg Config) (Completer, error) {
	switch cfg.Provider {
	case "", ProviderOpenAI:
		if cfg.APIKey == "" && cfg.BaseURL == "" {
			return nil, ErrNotConfigured
		}
		return NewOpenAI(cfg), nil
	case ProviderGemini:
		return NewGemini(ctx, cfg)
	case ProviderAnthropic:
		return NewAnthropic(cfg)
	default:
		return nil, fmt.Errorf("unknown llm provider %q", cfg.Provider)
	}
}

// OpenAIClient wraps an OpenAI-compatible API client.
type OpenAIClient struct {
	api         *openai.Client
	model       string
	temperature float32
	maxTokens   int
}

// NewOpenAI creates a client for any OpenAI-compatible endpoint.
func NewOpenAI(cfg Config) *OpenAIClient {
	config := openai.DefaultConfig(cfg.APIKey)
	if cfg.BaseURL != "" {
		config.BaseURL = cfg.BaseURL
	}
	if cfg.Timeout > 0 {
		config.HTTPClient = &http.Client{Timeout: cfg.Timeout}
	}
	model := cfg.Model
	if model == "" {
		model = openai.GPT4oMini
	}
	return &OpenAIClient{
		api:         openai.NewClientWithConfig(config),
		model:       model,
		temperature: float32(cfg.Temperature),
		maxTokens:   cfg.MaxTokens,
	}
}

// Model returns the configured model name.
func (c *OpenAIClient) Model() string { return c.model }

// Complete requests a JSON object completion.
func (c *OpenAIClient) Complete(ctx context.Context, system, prompt string) (string, error) {
	resp, err := c.api.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model: c.model,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleSystem, Content: system},
			{Role: openai.ChatMessageRoleUser, Content: prompt},
		},
		ResponseFormat: &openai.ChatCompletionResponseFormat{
			Type: openai.ChatCompletionResponseFormatTypeJSONObject,
		},
		Temperature: c.temperature,
		MaxTokens:   c.maxTokens,
	})
	if err != nil {
		return "", fmt.Errorf("LLM API call: %w", err)
	}
	if len(resp.Choices) == 0 {
		return "", fmt.Errorf("LLM returned no choices")
	}

	raw := resp.Choices[0].Message.Content
	slog.Debug("LLM response", "model", c.model, "raw", raw)
	return raw, nil
}

// Ping lists models to check that the endpoint is reachable.
func (c *OpenAIClient) Ping(ctx context.Context) error {
	if _, err := c.api.ListModels(ctx); err != nil {
		return fmt.Errorf("LLM ping: %w", err)
	}
	return nil
}
