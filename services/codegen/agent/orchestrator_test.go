// Copyright (C) 2025 Claro Labs (oss@clarolabs.dev)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package agent

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/clarolabs/claro/services/codegen/ledger"
)

type fakeAnalyzer struct {
	outputs []*ledger.AnalyzerOutput
	errs    []error
	inputs  []AnalyzerInput
}

func (f *fakeAnalyzer) Run(_ context.Context, in AnalyzerInput) (*ledger.AnalyzerOutput, error) {
	i := len(f.inputs)
	f.inputs = append(f.inputs, in)
	if i < len(f.errs) && f.errs[i] != nil {
		return nil, f.errs[i]
	}
	out := f.outputs[i]
	mergeCarried(in.Carried, out)
	return out, nil
}

type fakeCorrector struct {
	outputs []*ledger.CorrectorOutput
	inputs  []CorrectorInput
}

func (f *fakeCorrector) Run(_ context.Context, in CorrectorInput) (*ledger.CorrectorOutput, error) {
	i := len(f.inputs)
	f.inputs = append(f.inputs, in)
	return f.outputs[i], nil
}

type fakeWriter struct {
	output *ledger.WriterOutput
	err    error
	inputs []WriterInput
}

func (f *fakeWriter) Run(_ context.Context, in WriterInput) (*ledger.WriterOutput, error) {
	f.inputs = append(f.inputs, in)
	if f.err != nil {
		return nil, f.err
	}
	return f.output, nil
}

type countingRecorder struct {
	rounds int
	finals int
}

func (r *countingRecorder) RecordRound(context.Context, *ledger.Trace, ledger.Round) error {
	r.rounds++
	return nil
}

func (r *countingRecorder) RecordFinal(context.Context, *ledger.Trace) error {
	r.finals++
	return nil
}

func notReady(issues ...ledger.Issue) *ledger.AnalyzerOutput {
	return &ledger.AnalyzerOutput{IssueList: ledger.IssueList{Issues: issues}}
}

func readyOutput(normalized string) *ledger.AnalyzerOutput {
	return &ledger.AnalyzerOutput{
		IssueList:             ledger.IssueList{ReadyForCodegen: true},
		NormalizedRequirement: normalized,
	}
}

func issue(id string) ledger.Issue {
	return ledger.Issue{ID: id, Category: ledger.CategoryAmbiguity,
		Severity: ledger.SeverityMedium, Description: "issue " + id}
}

func resolveAll(updated string, ids ...string) *ledger.CorrectorOutput {
	out := &ledger.CorrectorOutput{UpdatedRequirement: updated}
	for _, id := range ids {
		out.Resolutions = append(out.Resolutions, ledger.Resolution{IssueID: id, ActionTaken: "fixed " + id})
	}
	return out
}

const testRequirement = "def f(x: int) -> int:\nDouble x."

func TestOrchestratorReadyFirstRound(t *testing.T) {
	analyzer := &fakeAnalyzer{outputs: []*ledger.AnalyzerOutput{readyOutput("def f(x: int) -> int:\nReturn x * 2.")}}
	corrector := &fakeCorrector{}
	writer := &fakeWriter{output: &ledger.WriterOutput{Code: "def f(x: int) -> int:\n    return x * 2"}}
	rec := &countingRecorder{}

	o := NewOrchestrator(analyzer, corrector, writer, 5, rec)
	res, err := o.Run(context.Background(), testRequirement)
	require.NoError(t, err)

	assert.Equal(t, ledger.StatusReady, res.Status)
	assert.Equal(t, StateDone, res.State)
	assert.Equal(t, 0, res.CorrectionIterations)
	assert.Equal(t, 1, res.FinalRequirement.Version)
	assert.Contains(t, res.FinalRequirement.Text, "Return x * 2",
		"normalized text is adopted on sign-off")
	assert.Empty(t, corrector.inputs, "corrector must not run when round one is ready")

	require.Len(t, writer.inputs, 1)
	assert.Equal(t, res.FinalRequirement, writer.inputs[0].Requirement)
	assert.Equal(t, "def f(x: int) -> int:", writer.inputs[0].FunctionSignature)

	require.NotNil(t, res.Trace)
	assert.True(t, res.Trace.Finalized())
	assert.Len(t, res.Trace.Rounds, 1)
	assert.Equal(t, 1, rec.rounds)
	assert.Equal(t, 1, rec.finals)
	assert.NotEmpty(t, res.RunID)
}

func TestOrchestratorNegotiatesToReady(t *testing.T) {
	analyzer := &fakeAnalyzer{outputs: []*ledger.AnalyzerOutput{
		notReady(issue("i1")),
		notReady(issue("i2")),
		readyOutput(""),
	}}
	corrector := &fakeCorrector{outputs: []*ledger.CorrectorOutput{
		resolveAll(testRequirement+" v2", "i1"),
		resolveAll(testRequirement+" v3", "i2"),
	}}
	writer := &fakeWriter{output: &ledger.WriterOutput{Code: "def f(x: int) -> int:\n    return x * 2"}}

	o := NewOrchestrator(analyzer, corrector, writer, 5, nil)
	res, err := o.Run(context.Background(), testRequirement)
	require.NoError(t, err)

	assert.Equal(t, ledger.StatusReady, res.Status)
	assert.Equal(t, 2, res.CorrectionIterations)
	assert.Equal(t, 3, res.FinalRequirement.Version)

	require.Len(t, res.Trace.Rounds, 3)
	for i, round := range res.Trace.Rounds {
		assert.Equal(t, i+1, round.Number)
		assert.Equal(t, i+1, round.Requirement.Version, "versions advance by one per correction")
	}
	assert.Nil(t, res.Trace.Rounds[2].Corrector, "the ready round has no correction")
}

func TestOrchestratorBudgetExceeded(t *testing.T) {
	maxIter := 3
	var aouts []*ledger.AnalyzerOutput
	var couts []*ledger.CorrectorOutput
	for i := 1; i <= maxIter; i++ {
		aouts = append(aouts, notReady(issue(fmt.Sprintf("i%d", i))))
		couts = append(couts, resolveAll(fmt.Sprintf("%s v%d", testRequirement, i+1), fmt.Sprintf("i%d", i)))
	}
	analyzer := &fakeAnalyzer{outputs: aouts}
	corrector := &fakeCorrector{outputs: couts}
	writer := &fakeWriter{output: &ledger.WriterOutput{Code: "def f(x: int) -> int:\n    return x * 2"}}

	o := NewOrchestrator(analyzer, corrector, writer, maxIter, nil)
	res, err := o.Run(context.Background(), testRequirement)
	require.NoError(t, err)

	assert.Equal(t, ledger.StatusBudgetExceeded, res.Status)
	assert.Equal(t, maxIter, res.CorrectionIterations)
	assert.Equal(t, maxIter+1, res.FinalRequirement.Version,
		"the last corrected version proceeds to the writer")
	require.Len(t, writer.inputs, 1)
	assert.Equal(t, res.FinalRequirement, writer.inputs[0].Requirement)
	assert.NotEmpty(t, res.Code)
}

func TestOrchestratorCarriesUnresolvedIssues(t *testing.T) {
	analyzer := &fakeAnalyzer{outputs: []*ledger.AnalyzerOutput{
		notReady(issue("i1"), issue("i2")),
		notReady(),
		readyOutput(""),
	}}
	corrector := &fakeCorrector{outputs: []*ledger.CorrectorOutput{
		resolveAll(testRequirement+" v2", "i1"), // i2 left unresolved
		resolveAll(testRequirement+" v3", "i2"),
	}}
	writer := &fakeWriter{output: &ledger.WriterOutput{Code: "def f(x: int) -> int:\n    return 0"}}

	o := NewOrchestrator(analyzer, corrector, writer, 5, nil)
	res, err := o.Run(context.Background(), testRequirement)
	require.NoError(t, err)
	assert.Equal(t, ledger.StatusReady, res.Status)

	require.Len(t, analyzer.inputs, 3)
	assert.Empty(t, analyzer.inputs[0].Carried)
	require.Len(t, analyzer.inputs[1].Carried, 1)
	assert.Equal(t, issue("i2"), analyzer.inputs[1].Carried[0],
		"the unresolved issue carries forward verbatim")
	assert.Empty(t, analyzer.inputs[2].Carried, "resolved issues stop carrying")

	require.Len(t, corrector.inputs, 2)
	require.Len(t, corrector.inputs[1].Issues.Issues, 1,
		"round two reopens only the carried issue")
	assert.Equal(t, "i2", corrector.inputs[1].Issues.Issues[0].ID)
}

func TestOrchestratorStaleResolutionCarriesEverything(t *testing.T) {
	analyzer := &fakeAnalyzer{outputs: []*ledger.AnalyzerOutput{
		notReady(issue("i1")),
		readyOutput(""),
	}}
	corrector := &fakeCorrector{outputs: []*ledger.CorrectorOutput{
		resolveAll(testRequirement+" v2", "ghost"),
	}}
	writer := &fakeWriter{output: &ledger.WriterOutput{Code: "def f(x: int) -> int:\n    return 0"}}

	o := NewOrchestrator(analyzer, corrector, writer, 5, nil)
	_, err := o.Run(context.Background(), testRequirement)
	require.NoError(t, err)

	require.Len(t, analyzer.inputs, 2)
	require.Len(t, analyzer.inputs[1].Carried, 1,
		"a resolution for an unknown id resolves nothing")
	assert.Equal(t, "i1", analyzer.inputs[1].Carried[0].ID)
}

func TestOrchestratorFailureKeepsPartialTrace(t *testing.T) {
	boom := errors.New("analyzer: provider unavailable")
	analyzer := &fakeAnalyzer{
		outputs: []*ledger.AnalyzerOutput{notReady(issue("i1")), nil},
		errs:    []error{nil, boom},
	}
	corrector := &fakeCorrector{outputs: []*ledger.CorrectorOutput{
		resolveAll(testRequirement+" v2", "i1"),
	}}
	writer := &fakeWriter{}
	rec := &countingRecorder{}

	o := NewOrchestrator(analyzer, corrector, writer, 5, rec)
	res, err := o.Run(context.Background(), testRequirement)
	require.ErrorIs(t, err, boom)

	require.NotNil(t, res)
	assert.Equal(t, ledger.StatusFailed, res.Status)
	assert.Equal(t, StateFailed, res.State)
	assert.Equal(t, 1, res.CorrectionIterations)
	require.NotNil(t, res.Trace)
	assert.True(t, res.Trace.Finalized())
	assert.Equal(t, ledger.StatusFailed, res.Trace.Status)
	assert.Contains(t, res.Trace.Failure, "provider unavailable")
	assert.Len(t, res.Trace.Rounds, 1, "the completed round survives in the trace")
	assert.Equal(t, 1, rec.finals)
	assert.Empty(t, writer.inputs, "the writer never runs after a failure")
}

func TestOrchestratorWriterFailure(t *testing.T) {
	analyzer := &fakeAnalyzer{outputs: []*ledger.AnalyzerOutput{readyOutput("")}}
	writer := &fakeWriter{err: &SignatureMismatchError{Signature: "def f(x: int) -> int:"}}

	o := NewOrchestrator(analyzer, &fakeCorrector{}, writer, 5, nil)
	res, err := o.Run(context.Background(), testRequirement)
	require.Error(t, err)
	assert.Equal(t, ledger.StatusFailed, res.Status)
	assert.True(t, res.Trace.Finalized())
}

func TestOrchestratorContextCancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	analyzer := &fakeAnalyzer{outputs: []*ledger.AnalyzerOutput{readyOutput("")}}
	o := NewOrchestrator(analyzer, &fakeCorrector{}, &fakeWriter{}, 5, nil)

	res, err := o.Run(ctx, testRequirement)
	require.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, ledger.StatusFailed, res.Status)
	assert.Empty(t, analyzer.inputs)
}

func TestWorkflowStates(t *testing.T) {
	assert.True(t, StateDone.IsTerminal())
	assert.True(t, StateFailed.IsTerminal())
	for _, s := range AllStates() {
		if s != StateDone && s != StateFailed {
			assert.False(t, s.IsTerminal(), s.String())
		}
	}
	assert.Len(t, AllStates(), 8)
}
