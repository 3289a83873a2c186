package llm

import "context"

// GenerationParams carries the sampling options recognized by every backend.
// Nil pointers mean "use the backend default".
type GenerationParams struct {
	Temperature *float32 `json:"temperature"`
	MaxTokens   *int     `json:"max_tokens"`
	// MaxInputTokens is a validation ceiling on the prompt, enforced by the
	// dispatcher before the request is sent.
	MaxInputTokens *int     `json:"max_input_tokens"`
	Stop           []string `json:"stop"`
}

// LLMClient defines the standard interface for any LLM backend.
type LLMClient interface {
	// Generate sends a prompt and returns the raw completion text.
	// Failures are reported as *ProviderError.
	Generate(ctx context.Context, prompt string, params GenerationParams) (string, error)

	// Provider returns the configured provider name this client talks to.
	// The dispatcher uses it to key rate-limit budgets.
	Provider() string
}
