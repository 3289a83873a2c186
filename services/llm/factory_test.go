package llm

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNew_UnknownType(t *testing.T) {
	_, err := New("mystery", ProviderSettings{Type: "carrier_pigeon"}, "model-x")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unknown provider type")
}

func TestNew_MissingAPIKey(t *testing.T) {
	tests := []struct {
		name string
		typ  string
	}{
		{"openai compatible requires key", TypeOpenAICompat},
		{"anthropic requires key", TypeAnthropic},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := New("hosted", ProviderSettings{Type: tt.typ}, "model-x")
			require.Error(t, err)
			assert.Contains(t, err.Error(), "API key")
		})
	}
}

func TestNew_OllamaNeedsNoKey(t *testing.T) {
	c, err := New("local", ProviderSettings{Type: TypeOllama, BaseURL: "http://localhost:11434"}, "qwen2.5-coder")
	require.NoError(t, err)
	assert.Equal(t, "local", c.Provider())
}

func TestTransientStatus(t *testing.T) {
	assert.True(t, transientStatus(429))
	assert.True(t, transientStatus(500))
	assert.True(t, transientStatus(503))
	assert.True(t, transientStatus(408))
	assert.False(t, transientStatus(401))
	assert.False(t, transientStatus(404))
	assert.False(t, transientStatus(400))
}

func TestIsTransient(t *testing.T) {
	transient := &ProviderError{Provider: "p", Transient: true, Status: 429, Err: errors.New("rate limited")}
	fatal := &ProviderError{Provider: "p", Transient: false, Status: 401, Err: errors.New("bad key")}

	assert.True(t, IsTransient(transient))
	assert.False(t, IsTransient(fatal))
	assert.False(t, IsTransient(errors.New("plain error")))
}

func TestOllamaGenerate(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/generate", r.URL.Path)
		w.Write([]byte(`{"model":"m","response":"hello from ollama","done":true}`))
	}))
	defer srv.Close()

	c, err := NewOllamaClient("local", srv.URL, "m", 10*time.Second)
	require.NoError(t, err)

	text, err := c.Generate(context.Background(), "say hello", GenerationParams{})
	require.NoError(t, err)
	assert.Equal(t, "hello from ollama", text)
}

func TestOllamaGenerate_ServerError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "overloaded", http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	c, err := NewOllamaClient("local", srv.URL, "m", 10*time.Second)
	require.NoError(t, err)

	_, err = c.Generate(context.Background(), "say hello", GenerationParams{})
	require.Error(t, err)
	var pe *ProviderError
	require.ErrorAs(t, err, &pe)
	assert.True(t, pe.Transient)
	assert.Equal(t, http.StatusServiceUnavailable, pe.Status)
}

func TestOllamaGenerate_ModelMissingIsFatal(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, `{"error":"model not found"}`, http.StatusNotFound)
	}))
	defer srv.Close()

	c, err := NewOllamaClient("local", srv.URL, "nope", 10*time.Second)
	require.NoError(t, err)

	_, err = c.Generate(context.Background(), "hi", GenerationParams{})
	var pe *ProviderError
	require.ErrorAs(t, err, &pe)
	assert.False(t, pe.Transient)
}

func TestAnthropicGenerate(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, anthropicAPIVersion, r.Header.Get("anthropic-version"))
		assert.NotEmpty(t, r.Header.Get("x-api-key"))
		w.Write([]byte(`{"content":[{"type":"text","text":"first "},{"type":"text","text":"second"}]}`))
	}))
	defer srv.Close()

	c, err := NewAnthropicClient("anthropic", srv.URL, "key", "claude-3-5-sonnet-20240620", 10*time.Second)
	require.NoError(t, err)

	text, err := c.Generate(context.Background(), "hi", GenerationParams{})
	require.NoError(t, err)
	assert.Equal(t, "first second", text)
}

func TestAnthropicGenerate_AuthFailureIsFatal(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
		w.Write([]byte(`{"error":{"type":"authentication_error","message":"invalid x-api-key"}}`))
	}))
	defer srv.Close()

	c, err := NewAnthropicClient("anthropic", srv.URL, "bad-key", "claude-3-5-sonnet-20240620", 10*time.Second)
	require.NoError(t, err)

	_, err = c.Generate(context.Background(), "hi", GenerationParams{})
	var pe *ProviderError
	require.ErrorAs(t, err, &pe)
	assert.False(t, pe.Transient)
	assert.Contains(t, pe.Err.Error(), "invalid x-api-key")
}
