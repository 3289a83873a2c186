// Copyright (C) 2025 Claro Labs (oss@clarolabs.dev)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package agent

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/clarolabs/claro/services/codegen/ledger"
)

const analyzerSystemPrompt = `You are the Analyzer. Inspect a natural-language software requirement and report every issue that prevents correct code generation. You find problems; you never fix them.

Rules:
1. PRESERVE the function signature exactly. Never propose changing parameter count or types.
2. Derive behavior from examples when the description is unclear; if examples resolve an ambiguity it is NOT an issue.
3. Categories: ambiguity, inconsistency, incompleteness, conflict, missing_context.
4. Set "ready_for_codegen": true only when the requirement can be implemented correctly as written.
5. When not ready, "normalized_requirement" must be the EXACT original text, unchanged.
6. Give every issue a stable short id ("i1", "i2", ...) in priority order, most blocking first. If the input lists previously open issues, re-report the ones still open with their ORIGINAL ids.

Respond with exactly one block:
<ANALYSIS>
{
  "ready_for_codegen": false,
  "issues": [
    {"id": "i1", "category": "ambiguity", "severity": "high", "description": "...", "evidence": "...", "clarifying_question": "..."}
  ],
  "normalized_requirement": "...",
  "reasoning": "...",
  "function_signature": "the exact signature from the requirement, or empty"
}
</ANALYSIS>`

const correctorSystemPrompt = `You are the Corrector. Resolve every open issue so the requirement becomes implementation-ready.

Rules:
1. NEVER change the function signature (parameter count, parameter types, return type).
2. Derive clarifications from the examples, in trust order: function signature > examples > description.
3. Produce exactly one resolution per open issue, referencing its id. State any assumption you had to make.
4. "updated_requirement" must be the complete requirement text with all issues resolved.

Respond with exactly one block:
<CORRECTION>
{
  "updated_requirement": "...",
  "resolutions": [
    {"issue_id": "i1", "action_taken": "...", "assumption": "..."}
  ],
  "open_questions": [],
  "function_signature": "copy the exact signature from the input"
}
</CORRECTION>`

const writerSystemPrompt = `You are the Writer. Generate production-ready Python code from a clarified requirement.

Rules:
1. Preserve the function signature from the requirement EXACTLY.
2. Include all necessary imports.
3. Handle edge cases (empty input, None, etc.).
4. Verify your code against every example in the requirement.

Respond with exactly one block:
<DELIVERABLE>
{
  "code": "complete Python source",
  "tests": "optional unit tests, or empty",
  "assumptions": []
}
</DELIVERABLE>`

// buildAnalyzerPrompt assembles the Analyzer's user payload: the
// requirement under inspection plus, on later rounds, the issues the
// Corrector left open and a summary of what was already addressed.
func buildAnalyzerPrompt(in AnalyzerInput) string {
	var sb strings.Builder
	sb.WriteString(analyzerSystemPrompt)
	sb.WriteString("\n\n<REQUIREMENT>\n")
	sb.WriteString(strings.TrimSpace(in.Requirement.Text))
	sb.WriteString("\n</REQUIREMENT>\n")

	if len(in.Carried) > 0 {
		payload, _ := json.Marshal(in.Carried)
		sb.WriteString("\nThe previous correction left these issues OPEN. Re-report each one that still applies, verbatim, keeping its id:\n")
		sb.Write(payload)
		sb.WriteString("\n")
	}
	if n := len(in.History); n > 0 {
		var prior []string
		for _, round := range in.History {
			if round.Analyzer == nil {
				continue
			}
			for _, iss := range round.Analyzer.Issues {
				prior = append(prior, iss.Description)
			}
		}
		if len(prior) > 3 {
			prior = prior[:3]
		}
		if len(prior) > 0 {
			fmt.Fprintf(&sb, "\nContext: this requirement has been corrected %d time(s). Previously identified issues: %s\nIf those are now resolved, return ready_for_codegen=true with no issues. Report only NEW or still-open problems.\n", n, strings.Join(prior, "; "))
		}
	}
	sb.WriteString("\nAnalyze and return your assessment.")
	return sb.String()
}

// buildCorrectorPrompt assembles the Corrector's user payload: the
// current requirement, the open issues, and the signature to preserve.
func buildCorrectorPrompt(in CorrectorInput) string {
	issuesPayload, _ := json.MarshalIndent(in.Issues.Issues, "", "  ")
	var sb strings.Builder
	sb.WriteString(correctorSystemPrompt)
	sb.WriteString("\n\n<CURRENT_REQUIREMENT>\n")
	sb.WriteString(strings.TrimSpace(in.Requirement.Text))
	sb.WriteString("\n</CURRENT_REQUIREMENT>\n")
	if in.FunctionSignature != "" {
		sb.WriteString("\n<ORIGINAL_FUNCTION_SIGNATURE>\n")
		sb.WriteString(in.FunctionSignature)
		sb.WriteString("\n</ORIGINAL_FUNCTION_SIGNATURE>\n")
	}
	sb.WriteString("\nIssues identified by the Analyzer:\n")
	sb.Write(issuesPayload)
	sb.WriteString("\n")
	return sb.String()
}

// buildWriterPrompt assembles the Writer's user payload. Only the
// finalized requirement is forwarded; the clarification history is not.
func buildWriterPrompt(in WriterInput) string {
	var sb strings.Builder
	sb.WriteString(writerSystemPrompt)
	sb.WriteString("\n\nGenerate code for this requirement:\n\n")
	sb.WriteString(strings.TrimSpace(in.Requirement.Text))
	sb.WriteString("\n")
	if in.FunctionSignature != "" {
		fmt.Fprintf(&sb, "\nORIGINAL FUNCTION SIGNATURE (MUST PRESERVE EXACTLY):\n%s\n", in.FunctionSignature)
	}
	return sb.String()
}

// mergeCarried prepends carried-forward issues the model failed to
// re-report, so no open issue ever vanishes from the round record.
// Carried entries keep their original ids and text.
func mergeCarried(carried []ledger.Issue, out *ledger.AnalyzerOutput) {
	if len(carried) == 0 {
		return
	}
	present := make(map[string]bool, len(out.Issues))
	for _, iss := range out.Issues {
		present[iss.ID] = true
	}
	var missing []ledger.Issue
	for _, iss := range carried {
		if !present[iss.ID] {
			missing = append(missing, iss)
		}
	}
	if len(missing) > 0 {
		out.Issues = append(missing, out.Issues...)
	}
}
