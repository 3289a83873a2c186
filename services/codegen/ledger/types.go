// Copyright (C) 2025 Claro Labs (oss@clarolabs.dev)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package ledger defines the structured records exchanged between the
// Analyzer and Corrector each round, and the Trace that accumulates them
// into the replayable audit record of one workflow run.
package ledger

import "strings"

// IssueCategory classifies a flaw the Analyzer found in a requirement.
type IssueCategory string

const (
	CategoryAmbiguity      IssueCategory = "ambiguity"
	CategoryInconsistency  IssueCategory = "inconsistency"
	CategoryIncompleteness IssueCategory = "incompleteness"
	CategoryConflict       IssueCategory = "conflict"
	CategoryMissingContext IssueCategory = "missing_context"
)

var validCategories = map[IssueCategory]bool{
	CategoryAmbiguity:      true,
	CategoryInconsistency:  true,
	CategoryIncompleteness: true,
	CategoryConflict:       true,
	CategoryMissingContext: true,
}

// Valid reports whether the category is one of the supported values.
func (c IssueCategory) Valid() bool { return validCategories[c] }

// NormalizeCategory maps arbitrary model output to a supported category.
// Unknown strings fall back to ambiguity, the broadest bucket.
func NormalizeCategory(raw string) IssueCategory {
	c := IssueCategory(strings.ToLower(strings.TrimSpace(raw)))
	if c.Valid() {
		return c
	}
	return CategoryAmbiguity
}

// Severity grades how badly an issue blocks code generation.
type Severity string

const (
	SeverityLow    Severity = "low"
	SeverityMedium Severity = "medium"
	SeverityHigh   Severity = "high"
)

// NormalizeSeverity maps arbitrary model output to a supported severity.
// "critical" folds into high; unknown strings default to medium.
func NormalizeSeverity(raw string) Severity {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "low":
		return SeverityLow
	case "high", "critical":
		return SeverityHigh
	case "medium":
		return SeverityMedium
	default:
		return SeverityMedium
	}
}

// Issue is a single flaw detected by the Analyzer. Immutable once created;
// Resolutions reference it by ID.
type Issue struct {
	ID                 string        `json:"id"`
	Category           IssueCategory `json:"category"`
	Severity           Severity      `json:"severity"`
	Description        string        `json:"description"`
	Evidence           string        `json:"evidence,omitempty"`
	ClarifyingQuestion string        `json:"clarifying_question,omitempty"`
}

// IssueList is one round's Analyzer findings in reported priority order.
// ReadyForCodegen is the sole termination signal from the Analyzer side:
// the list may carry residual informational notes even when ready.
type IssueList struct {
	Issues          []Issue `json:"issues"`
	ReadyForCodegen bool    `json:"ready_for_codegen"`
}

// Find returns the issue with the given id, if present.
func (l IssueList) Find(id string) (Issue, bool) {
	for _, iss := range l.Issues {
		if iss.ID == id {
			return iss, true
		}
	}
	return Issue{}, false
}

// AnalyzerOutput is the full structured reply of one Analyzer call.
type AnalyzerOutput struct {
	IssueList

	// NormalizedRequirement is the Analyzer's cleaned-up requirement
	// text, only trusted when ReadyForCodegen is true.
	NormalizedRequirement string `json:"normalized_requirement,omitempty"`

	Reasoning string `json:"reasoning,omitempty"`

	// FunctionSignature is the signature extracted verbatim from the
	// requirement, threaded through to the Writer's post-condition.
	FunctionSignature string `json:"function_signature,omitempty"`

	// RawJSON preserves the model's original JSON block for the trace.
	RawJSON string `json:"raw_json,omitempty"`
}

// Resolution is the Corrector's fix for one open Issue.
type Resolution struct {
	IssueID     string `json:"issue_id"`
	ActionTaken string `json:"action_taken"`
	Assumption  string `json:"assumption,omitempty"`
}

// CorrectorOutput is the full structured reply of one Corrector call. The
// updated requirement becomes the next Analyzer round's input.
type CorrectorOutput struct {
	UpdatedRequirement string       `json:"updated_requirement"`
	Resolutions        []Resolution `json:"resolutions"`
	OpenQuestions      []string     `json:"open_questions,omitempty"`
	FunctionSignature  string       `json:"function_signature,omitempty"`
	RawJSON            string       `json:"raw_json,omitempty"`
}

// WriterOutput is the final code artifact.
type WriterOutput struct {
	Code        string   `json:"code"`
	Tests       string   `json:"tests,omitempty"`
	Assumptions []string `json:"assumptions,omitempty"`
}

// RequirementVersion pairs requirement text with its version counter.
// Versions strictly increase across rounds; the text is replaced, never
// mutated in place.
type RequirementVersion struct {
	Version int    `json:"version"`
	Text    string `json:"text"`
}

// Round is one Analyzer (+ optional Corrector) exchange. Rounds are
// append-only and never mutated after being added to a Trace.
type Round struct {
	Number      int                `json:"round"`
	Requirement RequirementVersion `json:"requirement"`
	Analyzer    *AnalyzerOutput    `json:"analyzer,omitempty"`
	Corrector   *CorrectorOutput   `json:"corrector,omitempty"`
}

// Status is the workflow-level outcome marker.
type Status string

const (
	// StatusReady marks full success: the Analyzer signed off before the
	// iteration budget ran out.
	StatusReady Status = "ready"

	// StatusBudgetExceeded marks a best-effort completion: the budget ran
	// out and the last requirement version went to the Writer anyway.
	StatusBudgetExceeded Status = "budget_exceeded"

	// StatusFailed marks an aborted workflow with a partial trace.
	StatusFailed Status = "failed"
)
