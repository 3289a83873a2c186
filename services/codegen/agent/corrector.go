// Copyright (C) 2025 Claro Labs (oss@clarolabs.dev)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package agent

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"

	"github.com/clarolabs/claro/services/codegen/dispatch"
	"github.com/clarolabs/claro/services/codegen/ledger"
	"github.com/clarolabs/claro/services/llm"
)

// Corrector rewrites a requirement so the open issues are resolved,
// without ever touching the function signature.
type Corrector struct {
	role
}

// NewCorrector creates a Corrector backed by the given client.
func NewCorrector(d *dispatch.Dispatcher, client llm.LLMClient, params llm.GenerationParams, parseRetries int) *Corrector {
	return &Corrector{role: newRole("corrector", d, client, params, parseRetries)}
}

type correctorReply struct {
	UpdatedRequirement string            `json:"updated_requirement"`
	Resolutions        []resolutionReply `json:"resolutions"`
	AppliedFixes       []resolutionReply `json:"applied_fixes"`
	OpenQuestions      []string          `json:"open_questions"`
	FunctionSignature  string            `json:"function_signature"`
}

type resolutionReply struct {
	IssueID     string `json:"issue_id"`
	ActionTaken string `json:"action_taken"`
	Assumption  string `json:"assumption"`
}

// Run performs one correction pass. If the rewritten requirement drops or
// alters the protected signature the rewrite is discarded: the prior text
// is returned unchanged and no resolutions are claimed, so every issue
// carries forward to the next round.
func (c *Corrector) Run(ctx context.Context, in CorrectorInput) (*ledger.CorrectorOutput, error) {
	prompt := buildCorrectorPrompt(in)
	var out *ledger.CorrectorOutput
	err := c.generate(ctx, prompt, func(reply string) error {
		parsed, perr := parseCorrectorReply(reply)
		if perr != nil {
			return perr
		}
		out = parsed
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("corrector: %w", err)
	}

	if in.FunctionSignature != "" && !ContainsSignature(out.UpdatedRequirement, in.FunctionSignature) {
		slog.Warn("Corrector rewrite dropped the protected signature, reverting",
			"signature", in.FunctionSignature)
		out.UpdatedRequirement = in.Requirement.Text
		out.Resolutions = nil
		out.OpenQuestions = append(out.OpenQuestions,
			"correction discarded: rewritten requirement no longer contained the original function signature")
	}
	if out.FunctionSignature == "" {
		out.FunctionSignature = in.FunctionSignature
	}
	return out, nil
}

func parseCorrectorReply(reply string) (*ledger.CorrectorOutput, error) {
	block := stripFences(extractTaggedBlock(reply, "CORRECTION"))
	var wire correctorReply
	if err := json.Unmarshal([]byte(block), &wire); err != nil {
		return nil, &MalformedResponseError{Role: "corrector", Reason: fmt.Sprintf("invalid JSON: %v", err), Raw: reply}
	}
	updated := strings.TrimSpace(wire.UpdatedRequirement)
	if updated == "" {
		return nil, &MalformedResponseError{Role: "corrector", Reason: "updated_requirement is empty", Raw: reply}
	}

	out := &ledger.CorrectorOutput{
		UpdatedRequirement: updated,
		OpenQuestions:      wire.OpenQuestions,
		FunctionSignature:  strings.TrimSpace(wire.FunctionSignature),
		RawJSON:            block,
	}
	resolutions := wire.Resolutions
	if len(resolutions) == 0 {
		resolutions = wire.AppliedFixes
	}
	for _, rr := range resolutions {
		id := strings.TrimSpace(rr.IssueID)
		if id == "" {
			continue
		}
		out.Resolutions = append(out.Resolutions, ledger.Resolution{
			IssueID:     id,
			ActionTaken: strings.TrimSpace(rr.ActionTaken),
			Assumption:  strings.TrimSpace(rr.Assumption),
		})
	}
	return out, nil
}
