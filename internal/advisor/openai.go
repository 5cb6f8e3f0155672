package advisor

import (
	"context"
	"fmt"
	"strings"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
	"github.com/zulandar/intellifactory/internal/config"
)

// DefaultOpenAIModel is used when no model name is configured.
const DefaultOpenAIModel = openai.ChatModelGPT4oMini

// OpenAI queries any OpenAI-compatible chat completions endpoint.
type OpenAI struct {
	client      *openai.Client
	model       string
	temperature float64
	maxTokens   int64
}

// NewOpenAI creates an OpenAI client from cfg. The SDK's own retries are
// disabled; attempts are counted by the pipeline.
func NewOpenAI(cfg config.ModelConfig) *OpenAI {
	opts := []option.RequestOption{option.WithMaxRetries(0)}
	if cfg.BaseURL != "" {
		opts = append(opts, option.WithBaseURL(cfg.BaseURL))
	}
	if cfg.APIKey != "" {
		opts = append(opts, option.WithAPIKey(cfg.APIKey))
	}
	client := openai.NewClient(opts...)

	model := cfg.Name
	if model == "" {
		model = DefaultOpenAIModel
	}
	return &OpenAI{
		client:      &client,
		model:       model,
		temperature: cfg.Temperature,
		maxTokens:   cfg.MaxTokens,
	}
}

// Query implements Client.
func (c *OpenAI) Query(ctx context.Context, prompt, systemPrompt string) (string, error) {
	params := openai.ChatCompletionNewParams{
		Model: c.model,
		Messages: []openai.ChatCompletionMessageParamUnion{
			openai.SystemMessage(systemPrompt),
			openai.UserMessage(prompt),
		},
		Temperature: openai.Float(c.temperature),
	}
	if c.maxTokens > 0 {
		params.MaxCompletionTokens = openai.Int(c.maxTokens)
	}

	resp, err := c.client.Chat.Completions.New(ctx, params)
	if err != nil {
		return "", fmt.Errorf("advisor: openai: %w", err)
	}
	if len(resp.Choices) == 0 {
		return "", ErrEmptyCompletion
	}
	text := strings.TrimSpace(resp.Choices[0].Message.Content)
	if text == "" {
		return "", ErrEmptyCompletion
	}
	return text, nil
}
