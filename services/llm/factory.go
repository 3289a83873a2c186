package llm

import (
	"fmt"
	"time"
)

// Provider type strings recognized in configuration.
const (
	TypeOpenAICompat = "openai_compatible"
	TypeAnthropic    = "anthropic"
	TypeOllama       = "ollama"
)

// ProviderSettings is the connection half of a provider's configuration:
// how to reach the backend, independent of which model a role asks for.
type ProviderSettings struct {
	Type    string
	BaseURL string
	APIKey  string
	Timeout time.Duration
}

// New builds the adapter variant for a provider. Adding a backend family
// means adding a case here; callers only ever see LLMClient.
func New(name string, s ProviderSettings, model string) (LLMClient, error) {
	switch s.Type {
	case TypeOpenAICompat:
		return NewOpenAICompatClient(name, s.BaseURL, s.APIKey, model)
	case TypeAnthropic:
		return NewAnthropicClient(name, s.BaseURL, s.APIKey, model, s.Timeout)
	case TypeOllama:
		return NewOllamaClient(name, s.BaseURL, model, s.Timeout)
	default:
		return nil, fmt.Errorf("unknown provider type %q for provider %q", s.Type, name)
	}
}
