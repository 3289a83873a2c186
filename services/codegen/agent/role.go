// Copyright (C) 2025 Claro Labs (oss@clarolabs.dev)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package agent

import (
	"context"
	"log/slog"
	"time"

	"github.com/clarolabs/claro/services/codegen/dispatch"
	"github.com/clarolabs/claro/services/llm"
)

// DefaultParseRetries bounds how often a role re-issues the same call
// after a malformed reply before escalating.
const DefaultParseRetries = 3

// role carries what every agent role needs: its dispatcher path to the
// model and its own parse-retry policy, independent of the dispatcher's
// transport-level retry.
type role struct {
	name       string
	dispatcher *dispatch.Dispatcher
	client     llm.LLMClient
	params     llm.GenerationParams
	retry      dispatch.RetryConfig
}

func newRole(name string, d *dispatch.Dispatcher, client llm.LLMClient, params llm.GenerationParams, parseRetries int) role {
	if parseRetries < 1 {
		parseRetries = DefaultParseRetries
	}
	return role{
		name:       name,
		dispatcher: d,
		client:     client,
		params:     params,
		retry: dispatch.RetryConfig{
			MaxAttempts:    parseRetries,
			InitialBackoff: 500 * time.Millisecond,
			MaxBackoff:     5 * time.Second,
			BackoffFactor:  2.0,
			JitterFactor:   0.2,
		},
	}
}

// generate dispatches the prompt and feeds the reply to parse, re-issuing
// the identical call while parse reports a malformed response. Provider
// errors pass through untouched: the dispatcher has already retried what
// was retriable.
func (r *role) generate(ctx context.Context, prompt string, parse func(reply string) error) error {
	_, err := dispatch.Retry(ctx, r.retry, IsMalformed, func(ctx context.Context, attempt int) error {
		reply, err := r.dispatcher.Call(ctx, r.client, prompt, r.params)
		if err != nil {
			return err
		}
		if perr := parse(reply); perr != nil {
			r.dispatcher.CountMalformed(r.name)
			slog.Warn("Rejected malformed model reply",
				"role", r.name, "attempt", attempt,
				"error", perr, "raw", snippet(reply, 500))
			return perr
		}
		return nil
	})
	return err
}

func snippet(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
