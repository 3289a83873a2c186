package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"
)

const anthropicAPIVersion = "2023-06-01"

type anthropicRequest struct {
	Model       string             `json:"model"`
	Messages    []anthropicMessage `json:"messages"`
	MaxTokens   int                `json:"max_tokens"`
	Temperature *float32           `json:"temperature,omitempty"`
	StopSeqs    []string           `json:"stop_sequences,omitempty"`
}

type anthropicMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type anthropicResponse struct {
	Content []anthropicContent `json:"content"`
	Error   *anthropicError    `json:"error,omitempty"`
}

type anthropicContent struct {
	Type string `json:"type"`
	Text string `json:"text"`
}

type anthropicError struct {
	Type    string `json:"type"`
	Message string `json:"message"`
}

// AnthropicClient talks to the Anthropic messages API directly. The
// endpoint is not OpenAI-compatible, so the wire format is hand-rolled.
type AnthropicClient struct {
	httpClient *http.Client
	baseURL    string
	apiKey     string
	provider   string
	model      string
}

func NewAnthropicClient(provider, baseURL, apiKey, model string, timeout time.Duration) (*AnthropicClient, error) {
	if apiKey == "" {
		return nil, fmt.Errorf("provider %s: API key is missing", provider)
	}
	if baseURL == "" {
		baseURL = "https://api.anthropic.com/v1/messages"
	}
	if model == "" {
		model = "claude-3-5-sonnet-20240620"
		slog.Info("Anthropic model not set, defaulting", "model", model)
	}
	if timeout <= 0 {
		timeout = 60 * time.Second
	}
	return &AnthropicClient{
		httpClient: &http.Client{Timeout: timeout},
		baseURL:    strings.TrimSuffix(baseURL, "/"),
		apiKey:     apiKey,
		provider:   provider,
		model:      model,
	}, nil
}

func (a *AnthropicClient) Provider() string { return a.provider }

// Generate implements the LLMClient interface
func (a *AnthropicClient) Generate(ctx context.Context, prompt string, params GenerationParams) (string, error) {
	slog.Debug("Generating text via Anthropic", "model", a.model)
	maxTokens := 1024
	if params.MaxTokens != nil {
		maxTokens = *params.MaxTokens
	}
	reqBody := anthropicRequest{
		Model:       a.model,
		Messages:    []anthropicMessage{{Role: "user", Content: prompt}},
		MaxTokens:   maxTokens,
		Temperature: params.Temperature,
		StopSeqs:    params.Stop,
	}
	payload, err := json.Marshal(reqBody)
	if err != nil {
		return "", &ProviderError{Provider: a.provider, Err: fmt.Errorf("marshal request: %w", err)}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, a.baseURL, bytes.NewReader(payload))
	if err != nil {
		return "", &ProviderError{Provider: a.provider, Err: err}
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("x-api-key", a.apiKey)
	req.Header.Set("anthropic-version", anthropicAPIVersion)

	resp, err := a.httpClient.Do(req)
	if err != nil {
		return "", wrapTransportError(a.provider, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", wrapTransportError(a.provider, err)
	}

	if resp.StatusCode != http.StatusOK {
		var apiResp anthropicResponse
		msg := strings.TrimSpace(string(body))
		if json.Unmarshal(body, &apiResp) == nil && apiResp.Error != nil {
			msg = apiResp.Error.Message
		}
		return "", &ProviderError{
			Provider:  a.provider,
			Transient: transientStatus(resp.StatusCode),
			Status:    resp.StatusCode,
			Err:       fmt.Errorf("anthropic API: %s", msg),
		}
	}

	var apiResp anthropicResponse
	if err := json.Unmarshal(body, &apiResp); err != nil {
		return "", &ProviderError{Provider: a.provider, Transient: true,
			Err: fmt.Errorf("decode response: %w", err)}
	}
	var sb strings.Builder
	for _, block := range apiResp.Content {
		if block.Type == "text" {
			sb.WriteString(block.Text)
		}
	}
	return sb.String(), nil
}
