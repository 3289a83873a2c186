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

// Analyzer inspects a requirement version and reports the issues that
// block code generation. It never rewrites the requirement.
type Analyzer struct {
	role
}

// NewAnalyzer creates an Analyzer backed by the given client. parseRetries
// bounds re-issues after malformed replies; pass 0 for the default.
func NewAnalyzer(d *dispatch.Dispatcher, client llm.LLMClient, params llm.GenerationParams, parseRetries int) *Analyzer {
	return &Analyzer{role: newRole("analyzer", d, client, params, parseRetries)}
}

// analyzerReply mirrors the JSON the model is instructed to emit. Loose
// fields tolerate the envelope drift real models produce.
type analyzerReply struct {
	ReadyForCodegen       *bool           `json:"ready_for_codegen"`
	Decision              string          `json:"decision"`
	Issues                []issueReply    `json:"issues"`
	NormalizedRequirement string          `json:"normalized_requirement"`
	Reasoning             json.RawMessage `json:"reasoning"`
	FunctionSignature     string          `json:"function_signature"`
	OriginalSignature     string          `json:"original_function_signature"`
}

type issueReply struct {
	ID                 string `json:"id"`
	Category           string `json:"category"`
	Severity           string `json:"severity"`
	Description        string `json:"description"`
	Evidence           string `json:"evidence"`
	ClarifyingQuestion string `json:"clarifying_question"`
}

// Run performs one analysis pass. Issues the previous round carried
// forward are guaranteed to reappear in the output, whether or not the
// model re-reported them.
func (a *Analyzer) Run(ctx context.Context, in AnalyzerInput) (*ledger.AnalyzerOutput, error) {
	prompt := buildAnalyzerPrompt(in)
	var out *ledger.AnalyzerOutput
	err := a.generate(ctx, prompt, func(reply string) error {
		parsed, perr := parseAnalyzerReply(reply, in)
		if perr != nil {
			return perr
		}
		out = parsed
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("analyzer round %d: %w", in.Round, err)
	}
	mergeCarried(in.Carried, out)
	return out, nil
}

func parseAnalyzerReply(reply string, in AnalyzerInput) (*ledger.AnalyzerOutput, error) {
	block := stripFences(extractTaggedBlock(reply, "ANALYSIS"))
	var wire analyzerReply
	if err := json.Unmarshal([]byte(block), &wire); err != nil {
		return nil, &MalformedResponseError{Role: "analyzer", Reason: fmt.Sprintf("invalid JSON: %v", err), Raw: reply}
	}

	out := &ledger.AnalyzerOutput{
		NormalizedRequirement: strings.TrimSpace(wire.NormalizedRequirement),
		Reasoning:             flexString(wire.Reasoning),
		FunctionSignature:     firstNonEmpty(wire.FunctionSignature, wire.OriginalSignature),
		RawJSON:               block,
	}
	if out.NormalizedRequirement == "" {
		out.NormalizedRequirement = in.Requirement.Text
	}

	seq := 0
	for _, ir := range wire.Issues {
		desc := strings.TrimSpace(ir.Description)
		if desc == "" {
			continue
		}
		seq++
		id := strings.TrimSpace(ir.ID)
		if id == "" {
			id = fmt.Sprintf("r%d-i%d", in.Round, seq)
		}
		out.Issues = append(out.Issues, ledger.Issue{
			ID:                 id,
			Category:           ledger.NormalizeCategory(ir.Category),
			Severity:           ledger.NormalizeSeverity(ir.Severity),
			Description:        desc,
			Evidence:           strings.TrimSpace(ir.Evidence),
			ClarifyingQuestion: strings.TrimSpace(ir.ClarifyingQuestion),
		})
	}

	out.ReadyForCodegen = resolveReady(wire, len(out.Issues))
	return out, nil
}

// resolveReady maps the model's readiness claim onto the boolean the
// workflow keys on. The explicit flag wins; a decision alias is accepted;
// when both are absent the issue count decides and the inference is
// logged.
func resolveReady(wire analyzerReply, issueCount int) bool {
	if wire.ReadyForCodegen != nil {
		return *wire.ReadyForCodegen
	}
	switch strings.ToLower(strings.TrimSpace(wire.Decision)) {
	case "ready", "ready_for_codegen":
		return true
	case "needs_correction", "needs_clarification", "not_ready":
		return false
	}
	ready := issueCount == 0
	slog.Debug("Analyzer reply omitted readiness flag, inferring from issue count",
		"issues", issueCount, "ready", ready)
	return ready
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if s := strings.TrimSpace(v); s != "" {
			return s
		}
	}
	return ""
}
