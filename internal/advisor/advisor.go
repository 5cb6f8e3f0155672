// Package advisor talks to the language model that proposes factory actions.
// Each backend turns (prompt, system prompt) into the model's raw text; parsing
// and retry live with the caller.
package advisor

import (
	"context"
	"errors"
	"fmt"

	"github.com/zulandar/intellifactory/internal/config"
)

// FormatPrompt is appended to every role prompt. It pins the response to the
// decision document shape.
const FormatPrompt = `You must respond with ONLY valid JSON, no other text.

CRITICAL RULES:
1. Output ONLY the JSON object, no explanations, no thinking
2. Use this exact output format:
{
  "actions": [
    {"machine_id": number, "action": "action_type", "value": number}
  ],
  "impact": {
    "throughput_change_percent": number,
    "energy_change_percent": number,
    "notes": "Brief explanation"
  }
}
3. If no actions needed, use empty array: "actions": []
4. Keep notes brief (1 sentence)
5. Be straightforward and concise, no extra thinking steps

IMPORTANT: Your response must start with { and end with } - no other text!`

// ErrEmptyCompletion is returned when the backend answers without any text.
var ErrEmptyCompletion = errors.New("advisor: empty completion")

// Client sends one prompt to a model and returns its raw text.
type Client interface {
	Query(ctx context.Context, prompt, systemPrompt string) (string, error)
}

// Func adapts a function to Client.
type Func func(ctx context.Context, prompt, systemPrompt string) (string, error)

// Query calls f.
func (f Func) Query(ctx context.Context, prompt, systemPrompt string) (string, error) {
	return f(ctx, prompt, systemPrompt)
}

// SystemPrompt joins an agent's role prompt with FormatPrompt.
func SystemPrompt(role string) string {
	return role + "\n" + FormatPrompt
}

// New builds the Client selected by cfg.Provider.
func New(cfg config.ModelConfig) (Client, error) {
	switch cfg.Provider {
	case "openai", "":
		return NewOpenAI(cfg), nil
	case "anthropic":
		return NewAnthropic(cfg), nil
	default:
		return nil, fmt.Errorf("advisor: unknown provider %q", cfg.Provider)
	}
}
