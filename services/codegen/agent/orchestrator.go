// Copyright (C) 2025 Claro Labs (oss@clarolabs.dev)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package agent

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/google/uuid"

	"github.com/clarolabs/claro/services/codegen/ledger"
)

// DefaultMaxIterations bounds the clarification loop when no explicit
// budget is configured.
const DefaultMaxIterations = 5

// Recorder persists trace progress as the workflow runs. Implementations
// must tolerate being called once per round plus once at finalization.
type Recorder interface {
	RecordRound(ctx context.Context, trace *ledger.Trace, round ledger.Round) error
	RecordFinal(ctx context.Context, trace *ledger.Trace) error
}

type nopRecorder struct{}

func (nopRecorder) RecordRound(context.Context, *ledger.Trace, ledger.Round) error { return nil }
func (nopRecorder) RecordFinal(context.Context, *ledger.Trace) error               { return nil }

// NopRecorder discards all trace persistence callbacks.
func NopRecorder() Recorder { return nopRecorder{} }

// Orchestrator drives the Analyzer/Corrector negotiation to quiescence
// and hands the finalized requirement to the Writer. It owns the Trace:
// agents never see or touch it.
type Orchestrator struct {
	analyzer      AnalyzerRole
	corrector     CorrectorRole
	writer        WriterRole
	maxIterations int
	recorder      Recorder
}

// NewOrchestrator wires the three roles together. maxIterations <= 0
// selects the default budget; a nil recorder disables persistence.
func NewOrchestrator(a AnalyzerRole, c CorrectorRole, w WriterRole, maxIterations int, rec Recorder) *Orchestrator {
	if maxIterations <= 0 {
		maxIterations = DefaultMaxIterations
	}
	if rec == nil {
		rec = NopRecorder()
	}
	return &Orchestrator{analyzer: a, corrector: c, writer: w, maxIterations: maxIterations, recorder: rec}
}

// Result is the workflow outcome: the finalized requirement, the
// generated artifact, and the complete audit trace.
type Result struct {
	RunID                string
	State                WorkflowState
	Status               ledger.Status
	FinalRequirement     ledger.RequirementVersion
	Code                 string
	Tests                string
	Assumptions          []string
	CorrectionIterations int
	Trace                *ledger.Trace
}

// Run executes one full workflow for the given requirement text.
//
// Each iteration analyzes the current requirement version; if the
// Analyzer signs off the loop ends in READY, otherwise the Corrector
// produces the next version and unresolved issues carry forward. When
// the iteration budget runs out the last version proceeds to the Writer
// anyway, marked budget_exceeded. Any fatal error finalizes the trace
// as failed and returns it alongside the error.
func (o *Orchestrator) Run(ctx context.Context, requirement string) (*Result, error) {
	runID := uuid.NewString()
	trace := ledger.NewTrace(runID, requirement)
	current := ledger.RequirementVersion{Version: 1, Text: requirement}
	signature := ExtractSignature(requirement)

	log := slog.With("run_id", runID)
	log.Info("Starting clarification workflow",
		"max_iterations", o.maxIterations, "signature", signature)

	var carried []ledger.Issue
	state := StateStart
	ready := false

	for iter := 1; iter <= o.maxIterations; iter++ {
		if err := ctx.Err(); err != nil {
			return o.fail(ctx, trace, current, err)
		}

		state = StateAnalyzing
		aout, err := o.analyzer.Run(ctx, AnalyzerInput{
			Requirement: current,
			Round:       iter,
			Carried:     carried,
			History:     trace.Rounds,
		})
		if err != nil {
			return o.fail(ctx, trace, current, err)
		}
		log.Info("Analyzer round complete",
			"round", iter, "issues", len(aout.Issues), "ready", aout.ReadyForCodegen)

		round := ledger.Round{Number: iter, Requirement: current, Analyzer: aout}

		if aout.ReadyForCodegen {
			if err := o.appendRound(ctx, trace, round); err != nil {
				return o.fail(ctx, trace, current, err)
			}
			if norm := aout.NormalizedRequirement; norm != "" {
				current.Text = norm
			}
			if signature == "" {
				signature = aout.FunctionSignature
			}
			state = StateReady
			ready = true
			break
		}

		state = StateCorrecting
		cout, err := o.corrector.Run(ctx, CorrectorInput{
			Requirement:       current,
			Issues:            aout.IssueList,
			FunctionSignature: signature,
		})
		if err != nil {
			return o.fail(ctx, trace, current, err)
		}

		next, violations := ledger.ReconcileResolutions(iter, aout.IssueList, *cout)
		for _, v := range violations {
			log.Warn("Ignoring protocol violation in corrector reply", "violation", v.Error())
		}
		log.Info("Corrector round complete",
			"round", iter, "resolved", len(cout.Resolutions), "carried", len(next))

		round.Corrector = cout
		if err := o.appendRound(ctx, trace, round); err != nil {
			return o.fail(ctx, trace, current, err)
		}

		current = ledger.RequirementVersion{Version: current.Version + 1, Text: cout.UpdatedRequirement}
		carried = next
		if signature == "" {
			signature = cout.FunctionSignature
		}
	}

	status := ledger.StatusReady
	if !ready {
		state = StateBudgetExceeded
		status = ledger.StatusBudgetExceeded
		log.Warn("Iteration budget exhausted, proceeding to writer with last version",
			"version", current.Version, "open_issues", len(carried))
	}
	log.Debug("Entering writer phase", "from_state", state)

	state = StateWriting
	wout, err := o.writer.Run(ctx, WriterInput{Requirement: current, FunctionSignature: signature})
	if err != nil {
		return o.fail(ctx, trace, current, err)
	}
	trace.Writer = wout
	trace.Finalize(status, current, "")
	if err := o.recorder.RecordFinal(ctx, trace); err != nil {
		log.Warn("Failed to persist final trace", "error", err)
	}

	log.Info("Workflow complete",
		"status", status, "corrections", trace.CorrectionIterations(),
		"final_version", current.Version)

	state = StateDone
	return &Result{
		RunID:                runID,
		State:                state,
		Status:               status,
		FinalRequirement:     current,
		Code:                 wout.Code,
		Tests:                wout.Tests,
		Assumptions:          wout.Assumptions,
		CorrectionIterations: trace.CorrectionIterations(),
		Trace:                trace,
	}, nil
}

func (o *Orchestrator) appendRound(ctx context.Context, trace *ledger.Trace, round ledger.Round) error {
	if err := trace.AppendRound(round); err != nil {
		return fmt.Errorf("recording round %d: %w", round.Number, err)
	}
	if err := o.recorder.RecordRound(ctx, trace, round); err != nil {
		slog.Warn("Failed to persist round", "run_id", trace.RunID,
			"round", round.Number, "error", err)
	}
	return nil
}

// fail freezes the trace with the failure and returns it with the error,
// so callers can inspect how far the run got.
func (o *Orchestrator) fail(ctx context.Context, trace *ledger.Trace, current ledger.RequirementVersion, err error) (*Result, error) {
	trace.Finalize(ledger.StatusFailed, current, err.Error())
	if rerr := o.recorder.RecordFinal(ctx, trace); rerr != nil {
		slog.Warn("Failed to persist failed trace", "run_id", trace.RunID, "error", rerr)
	}
	return &Result{
		RunID:                trace.RunID,
		State:                StateFailed,
		Status:               ledger.StatusFailed,
		FinalRequirement:     current,
		CorrectionIterations: trace.CorrectionIterations(),
		Trace:                trace,
	}, err
}
