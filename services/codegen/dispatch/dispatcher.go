// Copyright (C) 2025 Claro Labs (oss@clarolabs.dev)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package dispatch is the single chokepoint through which every agent role
// reaches a model. It composes a provider adapter with the process-wide
// rate limiter and the shared retry combinator; no component may call an
// adapter directly.
package dispatch

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/clarolabs/claro/services/codegen/ratelimit"
	"github.com/clarolabs/claro/services/codegen/telemetry"
	"github.com/clarolabs/claro/services/llm"
)

// ErrPromptTooLarge reports a prompt over the configured input ceiling.
// It is fatal: retrying the same prompt can never succeed.
var ErrPromptTooLarge = errors.New("prompt exceeds the provider input token ceiling")

// defaultOutputEstimate is used for admission when the caller sets no
// output cap, mirroring the limiter's assumption of a ~1000 token reply.
const defaultOutputEstimate = 1000

// Dispatcher mediates all model calls. Safe for concurrent use.
type Dispatcher struct {
	limiter *ratelimit.Limiter
	retry   RetryConfig
	metrics *telemetry.Metrics

	// sleep is replaceable in tests.
	sleep func(ctx context.Context, d time.Duration) error
}

// New builds a dispatcher around the shared limiter. metrics may be nil.
func New(limiter *ratelimit.Limiter, retry RetryConfig, metrics *telemetry.Metrics) *Dispatcher {
	return &Dispatcher{
		limiter: limiter,
		retry:   retry,
		metrics: metrics,
		sleep:   sleepCtx,
	}
}

// Call sends a prompt through the given adapter with admission control and
// bounded retry of transient failures.
//
// Every attempt (including retries) passes its own admission check and
// counts against the provider's budget. A rate-limit refusal blocks the
// caller for the returned wait; a transient provider error backs off and
// retries up to the configured attempt ceiling; a fatal provider error
// propagates immediately.
func (d *Dispatcher) Call(ctx context.Context, client llm.LLMClient, prompt string, params llm.GenerationParams) (string, error) {
	provider := client.Provider()

	estIn := EstimateTokens(prompt)
	if params.MaxInputTokens != nil && estIn > *params.MaxInputTokens {
		return "", fmt.Errorf("%w: estimated %d tokens, ceiling %d",
			ErrPromptTooLarge, estIn, *params.MaxInputTokens)
	}
	estOut := defaultOutputEstimate
	if params.MaxTokens != nil {
		estOut = *params.MaxTokens
	}

	var text string
	result, err := Retry(ctx, d.retry, llm.IsTransient, func(ctx context.Context, attempt int) error {
		if attempt > 1 {
			slog.Warn("Retrying model call after transient failure",
				"provider", provider, "attempt", attempt)
			d.count(func(m *telemetry.Metrics) { m.Retries.WithLabelValues(provider).Inc() })
		}

		permit, err := d.admit(ctx, provider, estIn, estOut)
		if err != nil {
			return err
		}

		reply, err := client.Generate(ctx, prompt, params)
		if err != nil {
			outcome := "fatal_error"
			if llm.IsTransient(err) {
				outcome = "transient_error"
			}
			d.count(func(m *telemetry.Metrics) { m.Requests.WithLabelValues(provider, outcome).Inc() })
			return err
		}

		d.limiter.Settle(permit, estIn, EstimateTokens(reply))
		d.count(func(m *telemetry.Metrics) {
			m.Requests.WithLabelValues(provider, "ok").Inc()
			m.Tokens.WithLabelValues(provider, "input").Add(float64(estIn))
			m.Tokens.WithLabelValues(provider, "output").Add(float64(EstimateTokens(reply)))
		})
		text = reply
		return nil
	})
	if err != nil {
		slog.Error("Model call failed", "provider", provider,
			"attempts", result.Attempts, "error", err)
		return "", err
	}
	return text, nil
}

// admit blocks until the limiter grants the request or ctx is done.
func (d *Dispatcher) admit(ctx context.Context, provider string, estIn, estOut int) (*ratelimit.Permit, error) {
	for {
		permit, wait := d.limiter.Admit(provider, estIn, estOut)
		if permit != nil {
			return permit, nil
		}
		slog.Debug("Rate limit reached, waiting for window rollover",
			"provider", provider, "wait", wait)
		d.count(func(m *telemetry.Metrics) { m.RateLimitWaits.WithLabelValues(provider).Inc() })
		if err := d.sleep(ctx, wait); err != nil {
			return nil, err
		}
	}
}

// CountMalformed records a reply the named role's parser rejected. The
// dispatcher cannot see parse outcomes itself, so roles report them here
// to keep all dispatch-path counters on one registry.
func (d *Dispatcher) CountMalformed(role string) {
	d.count(func(m *telemetry.Metrics) { m.Malformed.WithLabelValues(role).Inc() })
}

func (d *Dispatcher) count(fn func(*telemetry.Metrics)) {
	if d.metrics != nil {
		fn(d.metrics)
	}
}

func sleepCtx(ctx context.Context, dur time.Duration) error {
	timer := time.NewTimer(dur)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
