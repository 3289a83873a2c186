// Copyright (C) 2025 Claro Labs (oss@clarolabs.dev)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package config

import (
	"fmt"
	"os"

	"github.com/go-playground/validator/v10"
)

// ClaroConfig is the on-disk configuration at ~/.claro/claro.yaml.
type ClaroConfig struct {
	// Workflow tunes the clarification loop.
	Workflow WorkflowConfig `yaml:"workflow"`

	// Roles binds each agent role to a provider and model.
	Roles RolesConfig `yaml:"roles" validate:"required"`

	// Providers declares the model endpoints roles can reference.
	Providers map[string]ProviderConfig `yaml:"providers" validate:"required,dive"`

	// RateLimits sets per-provider request and token budgets. Providers
	// without an entry run unlimited.
	RateLimits map[string]RateLimitConfig `yaml:"rate_limits"`

	// Storage configures trace persistence.
	Storage StorageConfig `yaml:"storage"`

	// Logging configures the structured logger.
	Logging LoggingConfig `yaml:"logging"`

	// Server configures the HTTP gateway.
	Server ServerConfig `yaml:"server"`
}

type WorkflowConfig struct {
	// MaxIterations bounds the Analyzer/Corrector loop. 0 selects the
	// built-in default.
	MaxIterations int `yaml:"max_iterations" validate:"gte=0,lte=50"`

	// ParseRetries bounds re-asks after a malformed model reply.
	ParseRetries int `yaml:"parse_retries" validate:"gte=0,lte=10"`
}

type RolesConfig struct {
	Analyzer  RoleConfig `yaml:"analyzer" validate:"required"`
	Corrector RoleConfig `yaml:"corrector" validate:"required"`
	Writer    RoleConfig `yaml:"writer" validate:"required"`
}

type RoleConfig struct {
	// Provider names an entry in the providers map.
	Provider string `yaml:"provider" validate:"required"`

	Model string `yaml:"model" validate:"required"`

	Temperature    *float32 `yaml:"temperature,omitempty"`
	MaxTokens      *int     `yaml:"max_tokens,omitempty"`
	MaxInputTokens *int     `yaml:"max_input_tokens,omitempty"`
}

type ProviderConfig struct {
	// Type can be "openai_compatible", "anthropic", or "ollama".
	Type string `yaml:"type" validate:"required,oneof=openai_compatible anthropic ollama"`

	BaseURL string `yaml:"base_url,omitempty"`

	// APIKeyEnv names the environment variable holding the API key.
	// Required for hosted provider types.
	APIKeyEnv string `yaml:"api_key_env,omitempty"`

	// TimeoutSeconds caps each request. 0 selects the adapter default.
	TimeoutSeconds int `yaml:"timeout_seconds" validate:"gte=0"`
}

type RateLimitConfig struct {
	RequestsPerMinute     int     `yaml:"requests_per_minute" validate:"gte=0"`
	InputTokensPerMinute  int     `yaml:"input_tokens_per_minute" validate:"gte=0"`
	OutputTokensPerMinute int     `yaml:"output_tokens_per_minute" validate:"gte=0"`
	InputPricePerMillion  float64 `yaml:"input_price_per_million" validate:"gte=0"`
	OutputPricePerMillion float64 `yaml:"output_price_per_million" validate:"gte=0"`
}

type StorageConfig struct {
	// TraceDir is the BadgerDB directory for trace persistence.
	// Supports a leading ~.
	TraceDir string `yaml:"trace_dir"`

	// TraceLog optionally appends every round to a JSONL file as well.
	TraceLog string `yaml:"trace_log,omitempty"`
}

type LoggingConfig struct {
	Level string `yaml:"level" validate:"omitempty,oneof=debug info warn error"`
	Dir   string `yaml:"dir,omitempty"`
	JSON  bool   `yaml:"json"`
}

type ServerConfig struct {
	Addr string `yaml:"addr"`
}

// hostedTypes are provider types that call an external API and therefore
// need a key.
var hostedTypes = map[string]bool{
	"openai_compatible": true,
	"anthropic":         true,
}

// Validate checks the struct tags plus the cross-field rules the tags
// cannot express: every role must reference a declared provider, and
// hosted providers must say where their key comes from.
func (c *ClaroConfig) Validate() error {
	if err := validator.New().Struct(c); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}
	roles := map[string]RoleConfig{
		"analyzer":  c.Roles.Analyzer,
		"corrector": c.Roles.Corrector,
		"writer":    c.Roles.Writer,
	}
	for name, role := range roles {
		if _, ok := c.Providers[role.Provider]; !ok {
			return fmt.Errorf("role %q references undeclared provider %q", name, role.Provider)
		}
	}
	for name, p := range c.Providers {
		if hostedTypes[p.Type] && p.APIKeyEnv == "" {
			return fmt.Errorf("provider %q (type %s) needs api_key_env", name, p.Type)
		}
	}
	for name := range c.RateLimits {
		if _, ok := c.Providers[name]; !ok {
			return fmt.Errorf("rate limit for undeclared provider %q", name)
		}
	}
	return nil
}

// APIKey resolves the provider's key from the configured environment
// variable. Local provider types return "" without error; a hosted
// provider with an empty variable is an error so a misconfigured key
// fails before the first dispatch rather than mid-run.
func (p ProviderConfig) APIKey() (string, error) {
	if !hostedTypes[p.Type] {
		return "", nil
	}
	key := os.Getenv(p.APIKeyEnv)
	if key == "" {
		return "", fmt.Errorf("environment variable %s is not set", p.APIKeyEnv)
	}
	return key, nil
}

// DefaultConfig returns the first-run configuration: every role on a
// local Ollama instance, with hosted providers declared but unkeyed so
// enabling them is a two-line edit.
func DefaultConfig() ClaroConfig {
	return ClaroConfig{
		Workflow: WorkflowConfig{
			MaxIterations: 5,
			ParseRetries:  3,
		},
		Roles: RolesConfig{
			Analyzer:  RoleConfig{Provider: "local", Model: "qwen2.5-coder:14b"},
			Corrector: RoleConfig{Provider: "local", Model: "qwen2.5-coder:14b"},
			Writer:    RoleConfig{Provider: "local", Model: "qwen2.5-coder:32b"},
		},
		Providers: map[string]ProviderConfig{
			"local": {
				Type:    "ollama",
				BaseURL: "http://localhost:11434",
			},
			"openai": {
				Type:      "openai_compatible",
				APIKeyEnv: "OPENAI_API_KEY",
			},
			"anthropic": {
				Type:      "anthropic",
				APIKeyEnv: "ANTHROPIC_API_KEY",
			},
		},
		RateLimits: map[string]RateLimitConfig{
			"openai": {
				RequestsPerMinute:     60,
				InputTokensPerMinute:  200000,
				OutputTokensPerMinute: 100000,
				InputPricePerMillion:  2.50,
				OutputPricePerMillion: 10.00,
			},
			"anthropic": {
				RequestsPerMinute:     50,
				InputTokensPerMinute:  100000,
				OutputTokensPerMinute: 40000,
				InputPricePerMillion:  3.00,
				OutputPricePerMillion: 15.00,
			},
		},
		Storage: StorageConfig{
			TraceDir: "~/.claro/traces",
		},
		Logging: LoggingConfig{
			Level: "info",
			Dir:   "~/.claro/logs",
		},
		Server: ServerConfig{
			Addr: ":8745",
		},
	}
}
