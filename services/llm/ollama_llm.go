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

// OllamaClient talks to a local Ollama inference server.
type OllamaClient struct {
	httpClient *http.Client
	baseURL    string
	provider   string
	model      string
}

type ollamaGenerateRequest struct {
	Model   string                 `json:"model"`
	Prompt  string                 `json:"prompt"`
	Stream  bool                   `json:"stream"`
	Options map[string]interface{} `json:"options,omitempty"`
}

type ollamaGenerateResponse struct {
	Model    string `json:"model"`
	Response string `json:"response"`
	Done     bool   `json:"done"`
}

func NewOllamaClient(provider, baseURL, model string, timeout time.Duration) (*OllamaClient, error) {
	if baseURL == "" {
		return nil, fmt.Errorf("provider %s: base URL is missing", provider)
	}
	if model == "" {
		return nil, fmt.Errorf("provider %s: model is missing", provider)
	}
	if timeout <= 0 {
		timeout = 5 * time.Minute
	}
	baseURL = strings.TrimSuffix(baseURL, "/")
	slog.Info("Initializing Ollama client", "base_url", baseURL, "model", model)
	return &OllamaClient{
		httpClient: &http.Client{Timeout: timeout},
		baseURL:    baseURL,
		provider:   provider,
		model:      model,
	}, nil
}

func (o *OllamaClient) Provider() string { return o.provider }

// Generate implements the LLMClient interface
func (o *OllamaClient) Generate(ctx context.Context, prompt string, params GenerationParams) (string, error) {
	slog.Debug("Generating text via Ollama", "model", o.model)
	options := make(map[string]interface{})
	if params.Temperature != nil {
		options["temperature"] = *params.Temperature
	}
	if params.MaxTokens != nil {
		options["num_predict"] = *params.MaxTokens
	}
	if len(params.Stop) > 0 {
		options["stop"] = params.Stop
	}
	reqBody := ollamaGenerateRequest{
		Model:   o.model,
		Prompt:  prompt,
		Stream:  false,
		Options: options,
	}
	payload, err := json.Marshal(reqBody)
	if err != nil {
		return "", &ProviderError{Provider: o.provider, Err: fmt.Errorf("marshal request: %w", err)}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, o.baseURL+"/api/generate", bytes.NewReader(payload))
	if err != nil {
		return "", &ProviderError{Provider: o.provider, Err: err}
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := o.httpClient.Do(req)
	if err != nil {
		return "", wrapTransportError(o.provider, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", wrapTransportError(o.provider, err)
	}
	if resp.StatusCode != http.StatusOK {
		// 404 means the model is not pulled locally; retrying won't help.
		return "", &ProviderError{
			Provider:  o.provider,
			Transient: transientStatus(resp.StatusCode),
			Status:    resp.StatusCode,
			Err:       fmt.Errorf("ollama API: %s", strings.TrimSpace(string(body))),
		}
	}

	var genResp ollamaGenerateResponse
	if err := json.Unmarshal(body, &genResp); err != nil {
		return "", &ProviderError{Provider: o.provider, Transient: true,
			Err: fmt.Errorf("decode response: %w", err)}
	}
	return genResp.Response, nil
}
