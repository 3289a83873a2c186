// Copyright (C) 2025 Claro Labs (oss@clarolabs.dev)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package ledger

import (
	"fmt"
	"time"
)

// ProtocolViolationError reports a ledger invariant violation: a data
// integrity bug in the exchange between agents, never silently tolerated.
type ProtocolViolationError struct {
	Kind    string // e.g. "stale_resolution", "version_regression"
	Round   int
	IssueID string
	Detail  string
}

func (e *ProtocolViolationError) Error() string {
	msg := fmt.Sprintf("protocol violation (%s) in round %d", e.Kind, e.Round)
	if e.IssueID != "" {
		msg += fmt.Sprintf(", issue %s", e.IssueID)
	}
	if e.Detail != "" {
		msg += ": " + e.Detail
	}
	return msg
}

// Trace is the complete, replayable audit record of one workflow run.
// It is owned exclusively by the orchestrator: created at workflow start,
// appended to after every agent call, and frozen when the workflow ends.
type Trace struct {
	RunID              string             `json:"run_id"`
	InitialRequirement string             `json:"initial_requirement"`
	StartedAt          time.Time          `json:"started_at"`
	FinishedAt         time.Time          `json:"finished_at,omitzero"`
	Rounds             []Round            `json:"rounds"`
	Writer             *WriterOutput      `json:"writer,omitempty"`
	FinalRequirement   RequirementVersion `json:"final_requirement"`
	Status             Status             `json:"status,omitempty"`
	Failure            string             `json:"failure,omitempty"`
}

// NewTrace starts the audit record for one run. The initial requirement is
// version 1.
func NewTrace(runID, requirement string) *Trace {
	return &Trace{
		RunID:              runID,
		InitialRequirement: requirement,
		StartedAt:          time.Now().UTC(),
		FinalRequirement:   RequirementVersion{Version: 1, Text: requirement},
	}
}

// Finalized reports whether the trace has been frozen.
func (t *Trace) Finalized() bool { return !t.FinishedAt.IsZero() }

// AppendRound adds a completed round, enforcing the append-only and
// monotonicity invariants:
//
//   - a finalized trace accepts no more rounds;
//   - a round flagged ready_for_codegen is always the last round;
//   - the requirement version strictly increases across rounds.
func (t *Trace) AppendRound(r Round) error {
	if t.Finalized() {
		return &ProtocolViolationError{Kind: "append_after_finalize", Round: r.Number}
	}
	if n := len(t.Rounds); n > 0 {
		prev := t.Rounds[n-1]
		if prev.Analyzer != nil && prev.Analyzer.ReadyForCodegen {
			return &ProtocolViolationError{Kind: "round_after_ready", Round: r.Number,
				Detail: fmt.Sprintf("round %d was flagged ready", prev.Number)}
		}
		if r.Requirement.Version <= prev.Requirement.Version {
			return &ProtocolViolationError{Kind: "version_regression", Round: r.Number,
				Detail: fmt.Sprintf("version %d does not advance past %d",
					r.Requirement.Version, prev.Requirement.Version)}
		}
	}
	t.Rounds = append(t.Rounds, r)
	return nil
}

// Finalize freezes the trace with the workflow outcome. Further appends
// fail. Calling Finalize twice keeps the first outcome.
func (t *Trace) Finalize(status Status, final RequirementVersion, failure string) {
	if t.Finalized() {
		return
	}
	t.Status = status
	t.FinalRequirement = final
	t.Failure = failure
	t.FinishedAt = time.Now().UTC()
}

// CorrectionIterations counts the rounds where the Corrector ran.
func (t *Trace) CorrectionIterations() int {
	var n int
	for _, r := range t.Rounds {
		if r.Corrector != nil {
			n++
		}
	}
	return n
}

// ReconcileResolutions checks a Corrector reply against the round's open
// issues. It returns the issues left without a resolution, which the
// caller must carry forward verbatim into the next round (an issue is
// never silently dropped), and a violation for every resolution that
// references an id absent from the open list. Stale resolutions are
// logged and ignored by policy, not guess-recovered.
func ReconcileResolutions(roundNumber int, open IssueList, out CorrectorOutput) (carried []Issue, violations []*ProtocolViolationError) {
	resolved := make(map[string]bool, len(out.Resolutions))
	for _, res := range out.Resolutions {
		if _, ok := open.Find(res.IssueID); !ok {
			violations = append(violations, &ProtocolViolationError{
				Kind:    "stale_resolution",
				Round:   roundNumber,
				IssueID: res.IssueID,
				Detail:  "resolution references an issue not open in the prior round",
			})
			continue
		}
		if resolved[res.IssueID] {
			violations = append(violations, &ProtocolViolationError{
				Kind:    "duplicate_resolution",
				Round:   roundNumber,
				IssueID: res.IssueID,
			})
			continue
		}
		resolved[res.IssueID] = true
	}
	for _, iss := range open.Issues {
		if !resolved[iss.ID] {
			carried = append(carried, iss)
		}
	}
	return carried, violations
}
