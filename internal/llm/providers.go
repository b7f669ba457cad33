package llm

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
	"google.golang.org/genai"
)

const (
	geminiDefaultModel    = "gemini-2.0-flash"
	anthropicDefaultModel = "claude-3-5-sonnet-20241022"
	defaultMaxTokens      = 4096
)

// GeminiClient calls Google's Gemini API.
type GeminiClient struct {
	client      *genai.Client
	model       string
	temperature float32
}

// NewGemini creates a Gemini client. An API key is required.
func NewGemini(ctx context.Context, cfg Config) (*GeminiClient, error) {
	if cfg.APIKey == "" {
		return nil, ErrNotConfigured
	}
	cc := &genai.ClientConfig{APIKey: cfg.APIKey, Backend: genai.BackendGeminiAPI}
	if cfg.BaseURL != "" {
		cc.HTTPOptions = genai.HTTPOptions{BaseURL: cfg.BaseURL}
	}
	client, err := genai.NewClient(ctx, cc)
	if err != nil {
		return nil, fmt.Errorf("create gemini client: %w", err)
	}
	model := cfg.Model
	if model == "" {
		model = geminiDefaultModel
	}
	return &GeminiClient{client: client, model: model, temperature: float32(cfg.Temperature)}, nil
}

// Model returns the configured model name.
func (g *GeminiClient) Model() string { return g.model }

// Complete asks Gemini for a JSON reply. Gemini has no system role in this
// call shape, so the system text is passed as a system instruction.
func (g *GeminiClient) Complete(ctx context.Context, system, prompt string) (string, error) {
	config := &genai.GenerateContentConfig{
		Temperature:      genai.Ptr(g.temperature),
		ResponseMIMEType: "application/json",
	}
	if system != "" {
		config.SystemInstruction = genai.NewContentFromText(system, genai.RoleUser)
	}
	resp, err := g.client.Models.GenerateContent(ctx, g.model,
		[]*genai.Content{genai.NewContentFromText(prompt, genai.RoleUser)}, config)
	if err != nil {
		return "", fmt.Errorf("gemini API call: %w", err)
	}
	text := resp.Text()
	if text == "" {
		return "", errors.New("empty response from gemini")
	}
	return text, nil
}

// AnthropicClient calls Anthropic's Messages API.
type AnthropicClient struct {
	client      anthropic.Client
	model       string
	temperature float64
	maxTokens   int64
}

// NewAnthropic creates an Anthropic client. An API key is required.
func NewAnthropic(cfg Config) (*AnthropicClient, error) {
	if cfg.APIKey == "" {
		return nil, ErrNotConfigured
	}
	opts := []option.RequestOption{option.WithAPIKey(cfg.APIKey)}
	if cfg.BaseURL != "" {
		opts = append(opts, option.WithBaseURL(cfg.BaseURL))
	}
	model := cfg.Model
	if model == "" {
		model = anthropicDefaultModel
	}
	maxTokens := int64(cfg.MaxTokens)
	if maxTokens <= 0 {
		maxTokens = defaultMaxTokens
	}
	return &AnthropicClient{
		client:      anthropic.NewClient(opts...),
		model:       model,
		temperature: cfg.Temperature,
		maxTokens:   maxTokens,
	}, nil
}

// Model returns the configured model name.
func (a *AnthropicClient) Model() string { return a.model }

// Complete sends one user message and concatenates the text blocks of the reply.
func (a *AnthropicClient) Complete(ctx context.Context, system, prompt string) (string, error) {
	params := anthropic.MessageNewParams{
		Model:       anthropic.Model(a.model),
		MaxTokens:   a.maxTokens,
		Temperature: anthropic.Float(a.temperature),
		Messages: []anthropic.MessageParam{
			anthropic.NewUserMessage(anthropic.NewTextBlock(prompt)),
		},
	}
	if system != "" {
		params.System = []anthropic.TextBlockParam{{Text: system}}
	}
	msg, err := a.client.Messages.New(ctx, params)
	if err != nil {
		return "", fmt.Errorf("anthropic API call: %w", err)
	}
	var sb strings.Builder
	for _, block := range msg.Content {
		if text, ok := block.AsAny().(anthropic.TextBlock); ok {
			sb.WriteString(text.Text)
		}
	}
	if sb.Len() == 0 {
		return "", errors.New("empty response from anthropic")
	}
	return sb.String(), nil
}
