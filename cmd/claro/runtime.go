// Copyright (C) 2025 Claro Labs (oss@clarolabs.dev)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package main

import (
	"context"
	"fmt"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/clarolabs/claro/cmd/claro/config"
	"github.com/clarolabs/claro/pkg/logging"
	"github.com/clarolabs/claro/services/codegen/agent"
	"github.com/clarolabs/claro/services/codegen/dispatch"
	"github.com/clarolabs/claro/services/codegen/ledger"
	"github.com/clarolabs/claro/services/codegen/ratelimit"
	"github.com/clarolabs/claro/services/codegen/telemetry"
	"github.com/clarolabs/claro/services/codegen/tracestore"
	"github.com/clarolabs/claro/services/llm"
)

// workflow bundles everything one command invocation needs: the wired
// orchestrator, the shared limiter for spend reporting, and the trace
// store for inspection commands.
type workflow struct {
	orch     *agent.Orchestrator
	limiter  *ratelimit.Limiter
	registry *prometheus.Registry
	store    *tracestore.Store

	closers []func() error
}

// buildWorkflow wires the full stack from configuration. All three roles
// share one dispatcher, so per-provider budgets hold across roles and
// across concurrent runs.
func buildWorkflow(c *config.ClaroConfig) (*workflow, error) {
	limiter := ratelimit.New(ratelimit.DefaultWindow)
	for name, rl := range c.RateLimits {
		limiter.Configure(name, ratelimit.Budget{
			RequestsPerMinute:     rl.RequestsPerMinute,
			InputTokensPerMinute:  rl.InputTokensPerMinute,
			OutputTokensPerMinute: rl.OutputTokensPerMinute,
			InputPricePerMillion:  rl.InputPricePerMillion,
			OutputPricePerMillion: rl.OutputPricePerMillion,
		})
	}

	registry := prometheus.NewRegistry()
	metrics := telemetry.New(registry)
	dispatcher := dispatch.New(limiter, dispatch.DefaultRetryConfig(), metrics)

	w := &workflow{limiter: limiter, registry: registry}

	client := func(roleName string, role config.RoleConfig) (llm.LLMClient, llm.GenerationParams, error) {
		p := c.Providers[role.Provider]
		key, err := p.APIKey()
		if err != nil {
			return nil, llm.GenerationParams{}, fmt.Errorf("%s provider %q: %w", roleName, role.Provider, err)
		}
		cl, err := llm.New(role.Provider, llm.ProviderSettings{
			Type:    p.Type,
			BaseURL: p.BaseURL,
			APIKey:  key,
			Timeout: time.Duration(p.TimeoutSeconds) * time.Second,
		}, role.Model)
		if err != nil {
			return nil, llm.GenerationParams{}, fmt.Errorf("%s role: %w", roleName, err)
		}
		return cl, llm.GenerationParams{
			Temperature:    role.Temperature,
			MaxTokens:      role.MaxTokens,
			MaxInputTokens: role.MaxInputTokens,
		}, nil
	}

	analyzerClient, analyzerParams, err := client("analyzer", c.Roles.Analyzer)
	if err != nil {
		return nil, err
	}
	correctorClient, correctorParams, err := client("corrector", c.Roles.Corrector)
	if err != nil {
		return nil, err
	}
	writerClient, writerParams, err := client("writer", c.Roles.Writer)
	if err != nil {
		return nil, err
	}

	retries := c.Workflow.ParseRetries
	analyzer := agent.NewAnalyzer(dispatcher, analyzerClient, analyzerParams, retries)
	corrector := agent.NewCorrector(dispatcher, correctorClient, correctorParams, retries)
	writer := agent.NewWriter(dispatcher, writerClient, writerParams, retries)

	var recorders []agent.Recorder
	if c.Storage.TraceDir != "" {
		store, err := tracestore.Open(tracestore.DefaultConfig(logging.ExpandPath(c.Storage.TraceDir)))
		if err != nil {
			return nil, err
		}
		w.store = store
		w.closers = append(w.closers, store.Close)
		recorders = append(recorders, store)
	}
	if c.Storage.TraceLog != "" {
		rec, err := tracestore.OpenFileRecorder(logging.ExpandPath(c.Storage.TraceLog))
		if err != nil {
			w.close()
			return nil, err
		}
		w.closers = append(w.closers, rec.Close)
		recorders = append(recorders, rec)
	}

	w.orch = agent.NewOrchestrator(analyzer, corrector, writer,
		c.Workflow.MaxIterations, fanoutRecorder(recorders))
	return w, nil
}

// openStore opens only the trace store, for inspection commands that
// never dispatch a model call.
func openStore(c *config.ClaroConfig) (*tracestore.Store, error) {
	if c.Storage.TraceDir == "" {
		return nil, fmt.Errorf("storage.trace_dir is not configured")
	}
	return tracestore.Open(tracestore.DefaultConfig(logging.ExpandPath(c.Storage.TraceDir)))
}

func (w *workflow) close() {
	for i := len(w.closers) - 1; i >= 0; i-- {
		_ = w.closers[i]()
	}
}

// fanoutRecorder forwards each callback to every recorder. Nil or empty
// input collapses to the orchestrator's nop recorder.
func fanoutRecorder(recorders []agent.Recorder) agent.Recorder {
	switch len(recorders) {
	case 0:
		return nil
	case 1:
		return recorders[0]
	default:
		return multiRecorder(recorders)
	}
}

type multiRecorder []agent.Recorder

func (m multiRecorder) RecordRound(ctx context.Context, trace *ledger.Trace, round ledger.Round) error {
	var firstErr error
	for _, r := range m {
		if err := r.RecordRound(ctx, trace, round); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

func (m multiRecorder) RecordFinal(ctx context.Context, trace *ledger.Trace) error {
	var firstErr error
	for _, r := range m {
		if err := r.RecordFinal(ctx, trace); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}
