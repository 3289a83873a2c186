// Copyright (C) 2025 Claro Labs (oss@clarolabs.dev)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/clarolabs/claro/cmd/claro/internal/render"
	"github.com/clarolabs/claro/services/codegen/ledger"
)

func runGenerate(cmd *cobra.Command, args []string) error {
	requirement, err := readRequirement(args)
	if err != nil {
		return err
	}

	w, err := buildWorkflow(cfg)
	if err != nil {
		return err
	}
	defer w.close()

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	res, runErr := w.orch.Run(ctx, requirement)
	if runErr != nil {
		// The partial trace is already persisted; point the user at it.
		if res != nil && res.RunID != "" {
			fmt.Fprintf(os.Stderr, "run %s failed; inspect it with: claro trace show %s\n",
				res.RunID, res.RunID)
		}
		return runErr
	}

	if showJSON {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(res)
	}

	r := newRenderer(os.Stdout)
	r.Trace(res.Trace)

	if res.Status == ledger.StatusBudgetExceeded {
		fmt.Fprintln(os.Stderr, "warning: iteration budget exhausted; the requirement was not fully clarified")
	}
	if spend := w.limiter.TotalSpend(); spend > 0 {
		fmt.Fprintf(os.Stderr, "estimated spend: $%.4f\n", spend)
	}

	if outputPath != "" {
		if err := os.WriteFile(outputPath, []byte(res.Code+"\n"), 0644); err != nil {
			return fmt.Errorf("writing code to %s: %w", outputPath, err)
		}
		fmt.Fprintf(os.Stderr, "code written to %s\n", outputPath)
	}
	if testsPath != "" && res.Tests != "" {
		if err := os.WriteFile(testsPath, []byte(res.Tests+"\n"), 0644); err != nil {
			return fmt.Errorf("writing tests to %s: %w", testsPath, err)
		}
	}
	return nil
}

// readRequirement pulls the requirement text from the file argument, or
// from stdin when no file (or "-") is given.
func readRequirement(args []string) (string, error) {
	var data []byte
	var err error
	if len(args) == 0 || args[0] == "-" {
		data, err = io.ReadAll(os.Stdin)
	} else {
		data, err = os.ReadFile(args[0])
	}
	if err != nil {
		return "", fmt.Errorf("reading requirement: %w", err)
	}
	text := strings.TrimSpace(string(data))
	if text == "" {
		return "", fmt.Errorf("the requirement is empty")
	}
	return text, nil
}

func newRenderer(w *os.File) *render.Renderer {
	if noColor {
		return render.NewPlain(w)
	}
	return render.New(w)
}
