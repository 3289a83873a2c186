package llm

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	openai "github.com/sashabaranov/go-openai"
)

// OpenAICompatClient talks to any backend exposing the OpenAI chat
// completions API. DeepSeek and the Gemini OpenAI-compatibility endpoint are
// both reached through this client with a different base URL.
type OpenAICompatClient struct {
	client   *openai.Client
	provider string
	model    string
}

func NewOpenAICompatClient(provider, baseURL, apiKey, model string) (*OpenAICompatClient, error) {
	if apiKey == "" {
		return nil, fmt.Errorf("provider %s: API key is missing", provider)
	}
	if model == "" {
		return nil, fmt.Errorf("provider %s: model is missing", provider)
	}
	cfg := openai.DefaultConfig(apiKey)
	if baseURL != "" {
		cfg.BaseURL = strings.TrimSuffix(baseURL, "/")
	}
	slog.Info("Initializing OpenAI-compatible client", "provider", provider, "model", model)
	return &OpenAICompatClient{
		client:   openai.NewClientWithConfig(cfg),
		provider: provider,
		model:    model,
	}, nil
}

func (c *OpenAICompatClient) Provider() string { return c.provider }

// Generate implements the LLMClient interface
func (c *OpenAICompatClient) Generate(ctx context.Context, prompt string, params GenerationParams) (string, error) {
	slog.Debug("Generating text via OpenAI-compatible API", "provider", c.provider, "model", c.model)
	req := openai.ChatCompletionRequest{
		Model: c.model,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleUser, Content: prompt},
		},
	}
	if params.Temperature != nil {
		req.Temperature = *params.Temperature
	}
	if params.MaxTokens != nil {
		req.MaxTokens = *params.MaxTokens
	}
	if len(params.Stop) > 0 {
		req.Stop = params.Stop
	}

	resp, err := c.client.CreateChatCompletion(ctx, req)
	if err != nil {
		return "", c.classify(err)
	}
	if len(resp.Choices) == 0 {
		return "", &ProviderError{Provider: c.provider, Transient: true,
			Err: errors.New("completion response contained no choices")}
	}
	return resp.Choices[0].Message.Content, nil
}

func (c *OpenAICompatClient) classify(err error) error {
	var apiErr *openai.APIError
	if errors.As(err, &apiErr) {
		return &ProviderError{
			Provider:  c.provider,
			Transient: transientStatus(apiErr.HTTPStatusCode),
			Status:    apiErr.HTTPStatusCode,
			Err:       err,
		}
	}
	var reqErr *openai.RequestError
	if errors.As(err, &reqErr) {
		return &ProviderError{
			Provider:  c.provider,
			Transient: transientStatus(reqErr.HTTPStatusCode),
			Status:    reqErr.HTTPStatusCode,
			Err:       err,
		}
	}
	return wrapTransportError(c.provider, err)
}
