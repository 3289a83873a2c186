// Copyright (C) 2025 Claro Labs (oss@clarolabs.dev)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package agent implements the three model-backed roles of the
// clarification workflow (Analyzer, Corrector, Writer) and the
// orchestrator state machine that drives them.
package agent

import (
	"context"

	"github.com/clarolabs/claro/services/codegen/ledger"
)

// WorkflowState represents a state in the orchestrator state machine.
type WorkflowState string

const (
	// StateStart is the initial state before the first Analyzer call.
	StateStart WorkflowState = "START"

	// StateAnalyzing means an Analyzer call is in flight.
	StateAnalyzing WorkflowState = "ANALYZING"

	// StateCorrecting means a Corrector call is in flight.
	StateCorrecting WorkflowState = "CORRECTING"

	// StateReady means the Analyzer signed the requirement off.
	StateReady WorkflowState = "READY"

	// StateBudgetExceeded means the iteration budget ran out; the last
	// requirement version proceeds to the Writer as a best effort.
	StateBudgetExceeded WorkflowState = "BUDGET_EXCEEDED"

	// StateWriting means the Writer call is in flight.
	StateWriting WorkflowState = "WRITING"

	// StateDone is the successful terminal state.
	StateDone WorkflowState = "DONE"

	// StateFailed is the absorbing terminal state for fatal errors.
	StateFailed WorkflowState = "FAILED"
)

func (s WorkflowState) String() string { return string(s) }

// IsTerminal reports whether the workflow can leave this state.
func (s WorkflowState) IsTerminal() bool {
	return s == StateDone || s == StateFailed
}

// AllStates returns every valid workflow state.
func AllStates() []WorkflowState {
	return []WorkflowState{
		StateStart, StateAnalyzing, StateCorrecting, StateReady,
		StateBudgetExceeded, StateWriting, StateDone, StateFailed,
	}
}

// AnalyzerInput is one Analyzer invocation.
type AnalyzerInput struct {
	Requirement ledger.RequirementVersion

	// Round is the 1-based clarification round number.
	Round int

	// Carried holds issues the previous Corrector left unresolved; they
	// must reappear verbatim in this round's IssueList.
	Carried []ledger.Issue

	// History gives the Analyzer context about prior rounds.
	History []ledger.Round
}

// CorrectorInput is one Corrector invocation.
type CorrectorInput struct {
	Requirement       ledger.RequirementVersion
	Issues            ledger.IssueList
	FunctionSignature string
}

// WriterInput is one Writer invocation. Only the finalized requirement is
// forwarded; Analyzer/Corrector history is not.
type WriterInput struct {
	Requirement       ledger.RequirementVersion
	FunctionSignature string
}

// AnalyzerRole, CorrectorRole and WriterRole are what the orchestrator
// depends on; tests substitute scripted fakes.
type AnalyzerRole interface {
	Run(ctx context.Context, in AnalyzerInput) (*ledger.AnalyzerOutput, error)
}

type CorrectorRole interface {
	Run(ctx context.Context, in CorrectorInput) (*ledger.CorrectorOutput, error)
}

type WriterRole interface {
	Run(ctx context.Context, in WriterInput) (*ledger.WriterOutput, error)
}
