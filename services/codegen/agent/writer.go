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
	"regexp"
	"strings"

	"github.com/clarolabs/claro/services/codegen/dispatch"
	"github.com/clarolabs/claro/services/codegen/ledger"
	"github.com/clarolabs/claro/services/llm"
)

// Writer turns a finalized requirement into code. It runs exactly once
// per workflow; there is no repair loop after it.
type Writer struct {
	role
}

// NewWriter creates a Writer backed by the given client.
func NewWriter(d *dispatch.Dispatcher, client llm.LLMClient, params llm.GenerationParams, parseRetries int) *Writer {
	return &Writer{role: newRole("writer", d, client, params, parseRetries)}
}

type writerReply struct {
	Code        string   `json:"code"`
	Tests       string   `json:"tests"`
	Assumptions []string `json:"assumptions"`
}

var (
	pythonFenceRe = regexp.MustCompile("(?s)```[pP]ython\\s*\\n(.*?)```")
	anyFenceRe    = regexp.MustCompile("(?s)```[a-zA-Z]*\\s*\\n(.*?)```")
	codeTagRe     = regexp.MustCompile(`(?is)<code>\s*(.*?)\s*</code>`)
)

// Run generates code for the finalized requirement and verifies the
// protected signature survived into the output. A missing signature is
// fatal: retrying the same prompt does not change a model that rewrote
// the interface.
func (w *Writer) Run(ctx context.Context, in WriterInput) (*ledger.WriterOutput, error) {
	prompt := buildWriterPrompt(in)
	var out *ledger.WriterOutput
	err := w.generate(ctx, prompt, func(reply string) error {
		parsed, perr := parseWriterReply(reply)
		if perr != nil {
			return perr
		}
		out = parsed
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("writer: %w", err)
	}

	sig := in.FunctionSignature
	if sig == "" {
		sig = ExtractSignature(in.Requirement.Text)
	}
	if !ContainsSignature(out.Code, sig) {
		return nil, &SignatureMismatchError{Signature: sig}
	}
	return out, nil
}

// parseWriterReply recovers code from the reply through progressively
// looser layers: the instructed JSON deliverable, then a python fence,
// then any fence that looks like Python, then bare <code> tags.
func parseWriterReply(reply string) (*ledger.WriterOutput, error) {
	block := stripFences(extractTaggedBlock(reply, "DELIVERABLE"))
	var wire writerReply
	if err := json.Unmarshal([]byte(block), &wire); err == nil && strings.TrimSpace(wire.Code) != "" {
		return &ledger.WriterOutput{
			Code:        strings.TrimSpace(wire.Code),
			Tests:       strings.TrimSpace(wire.Tests),
			Assumptions: wire.Assumptions,
		}, nil
	}
	if m := pythonFenceRe.FindStringSubmatch(reply); m != nil {
		if code := strings.TrimSpace(m[1]); code != "" {
			return &ledger.WriterOutput{Code: code}, nil
		}
	}
	for _, m := range anyFenceRe.FindAllStringSubmatch(reply, -1) {
		code := strings.TrimSpace(m[1])
		if looksLikePython(code) {
			return &ledger.WriterOutput{Code: code}, nil
		}
	}
	if m := codeTagRe.FindStringSubmatch(reply); m != nil {
		if code := strings.TrimSpace(m[1]); code != "" {
			return &ledger.WriterOutput{Code: code}, nil
		}
	}
	return nil, &MalformedResponseError{Role: "writer", Reason: "no code found in reply", Raw: reply}
}

func looksLikePython(code string) bool {
	if code == "" {
		return false
	}
	return strings.Contains(code, "def ") ||
		strings.Contains(code, "import ") ||
		strings.Contains(code, "class ")
}
