// Copyright (C) 2025 Claro Labs (oss@clarolabs.dev)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package dispatch

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/clarolabs/claro/services/codegen/ratelimit"
	"github.com/clarolabs/claro/services/llm"
)

// scriptedClient returns one canned outcome per call, in order. The last
// entry repeats if the script runs out.
type scriptedClient struct {
	provider string
	script   []func() (string, error)
	calls    int
}

func (c *scriptedClient) Provider() string { return c.provider }

func (c *scriptedClient) Generate(ctx context.Context, prompt string, params llm.GenerationParams) (string, error) {
	i := c.calls
	if i >= len(c.script) {
		i = len(c.script) - 1
	}
	c.calls++
	return c.script[i]()
}

func ok(text string) func() (string, error) {
	return func() (string, error) { return text, nil }
}

func fail(err error) func() (string, error) {
	return func() (string, error) { return "", err }
}

func newTestDispatcher(limiter *ratelimit.Limiter) *Dispatcher {
	d := New(limiter, fastRetryConfig(3), nil)
	d.sleep = func(ctx context.Context, dur time.Duration) error { return ctx.Err() }
	return d
}

func TestCall_Success(t *testing.T) {
	d := newTestDispatcher(ratelimit.New(time.Minute))
	client := &scriptedClient{provider: "deepseek", script: []func() (string, error){ok("reply")}}

	text, err := d.Call(context.Background(), client, "prompt", llm.GenerationParams{})
	require.NoError(t, err)
	assert.Equal(t, "reply", text)
	assert.Equal(t, 1, client.calls)
}

func TestCall_TransientErrorThenSuccess(t *testing.T) {
	d := newTestDispatcher(ratelimit.New(time.Minute))
	rateLimited := &llm.ProviderError{Provider: "deepseek", Transient: true, Status: 429,
		Err: errors.New("too many requests")}
	client := &scriptedClient{provider: "deepseek", script: []func() (string, error){
		fail(rateLimited),
		ok("second attempt reply"),
	}}

	text, err := d.Call(context.Background(), client, "prompt", llm.GenerationParams{})
	require.NoError(t, err)
	assert.Equal(t, "second attempt reply", text)
	assert.Equal(t, 2, client.calls)
}

func TestCall_FatalErrorNoRetry(t *testing.T) {
	d := newTestDispatcher(ratelimit.New(time.Minute))
	badKey := &llm.ProviderError{Provider: "deepseek", Transient: false, Status: 401,
		Err: errors.New("invalid api key")}
	client := &scriptedClient{provider: "deepseek", script: []func() (string, error){fail(badKey)}}

	_, err := d.Call(context.Background(), client, "prompt", llm.GenerationParams{})
	require.Error(t, err)
	var pe *llm.ProviderError
	require.ErrorAs(t, err, &pe)
	assert.False(t, pe.Transient)
	assert.Equal(t, 1, client.calls, "fatal errors must not be retried")
}

func TestCall_TransientExhaustion(t *testing.T) {
	d := newTestDispatcher(ratelimit.New(time.Minute))
	overloaded := &llm.ProviderError{Provider: "deepseek", Transient: true, Status: 503,
		Err: errors.New("overloaded")}
	client := &scriptedClient{provider: "deepseek", script: []func() (string, error){fail(overloaded)}}

	_, err := d.Call(context.Background(), client, "prompt", llm.GenerationParams{})
	require.Error(t, err)
	assert.True(t, llm.IsTransient(err))
	assert.Equal(t, 3, client.calls)
}

func TestCall_EveryAttemptConsumesBudget(t *testing.T) {
	limiter := ratelimit.New(time.Minute)
	limiter.Configure("deepseek", ratelimit.Budget{RequestsPerMinute: 100})
	d := newTestDispatcher(limiter)
	overloaded := &llm.ProviderError{Provider: "deepseek", Transient: true, Status: 500,
		Err: errors.New("boom")}
	client := &scriptedClient{provider: "deepseek", script: []func() (string, error){
		fail(overloaded),
		fail(overloaded),
		ok("done"),
	}}

	_, err := d.Call(context.Background(), client, "prompt", llm.GenerationParams{})
	require.NoError(t, err)
	assert.Equal(t, 3, limiter.UsageFor("deepseek").RequestsUsed)
}

func TestCall_BlocksUntilAdmission(t *testing.T) {
	limiter := ratelimit.New(time.Minute)
	limiter.Configure("deepseek", ratelimit.Budget{RequestsPerMinute: 1})
	d := New(limiter, fastRetryConfig(1), nil)

	var slept []time.Duration
	d.sleep = func(ctx context.Context, dur time.Duration) error {
		slept = append(slept, dur)
		if len(slept) > 1 {
			return context.DeadlineExceeded
		}
		return nil
	}

	first := &scriptedClient{provider: "deepseek", script: []func() (string, error){ok("a")}}
	_, err := d.Call(context.Background(), first, "p", llm.GenerationParams{})
	require.NoError(t, err)

	// Budget is now exhausted; the second call must wait at least once.
	second := &scriptedClient{provider: "deepseek", script: []func() (string, error){ok("b")}}
	_, err = d.Call(context.Background(), second, "p", llm.GenerationParams{})
	require.Error(t, err)
	assert.NotEmpty(t, slept)
	assert.Positive(t, slept[0])
	assert.Zero(t, second.calls, "adapter must not be reached before admission")
}

func TestCall_PromptTooLarge(t *testing.T) {
	d := newTestDispatcher(ratelimit.New(time.Minute))
	client := &scriptedClient{provider: "deepseek", script: []func() (string, error){ok("x")}}

	ceiling := 5
	_, err := d.Call(context.Background(), client,
		"this prompt has definitely more than five estimated tokens in it",
		llm.GenerationParams{MaxInputTokens: &ceiling})
	require.ErrorIs(t, err, ErrPromptTooLarge)
	assert.Zero(t, client.calls)
}

func TestEstimateTokens(t *testing.T) {
	assert.Zero(t, EstimateTokens(""))
	small := EstimateTokens("two words")
	large := EstimateTokens("a considerably longer requirement text with many more words in it")
	assert.Greater(t, large, small)
	assert.GreaterOrEqual(t, small, 2)
}
