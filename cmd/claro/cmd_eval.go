// Copyright (C) 2025 Claro Labs (oss@clarolabs.dev)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package main

import (
	"fmt"
	"os"
	"os/signal"
	"strings"
	"sync"
	"syscall"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/clarolabs/claro/services/codegen/ledger"
)

// evalOutcome is one file's result line.
type evalOutcome struct {
	file        string
	runID       string
	status      ledger.Status
	corrections int
	err         error
}

// runEval pushes a batch of requirement files through the workflow with
// bounded concurrency. All runs share one dispatcher, so provider rate
// budgets hold across the whole batch. Individual failures are reported
// per file; only a fully failed batch exits non-zero.
func runEval(cmd *cobra.Command, args []string) error {
	w, err := buildWorkflow(cfg)
	if err != nil {
		return err
	}
	defer w.close()

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if evalWorkers < 1 {
		evalWorkers = 1
	}

	outcomes := make([]evalOutcome, len(args))
	var mu sync.Mutex

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(evalWorkers)
	for i, file := range args {
		g.Go(func() error {
			out := evalOutcome{file: file}
			data, err := os.ReadFile(file)
			if err != nil {
				out.err = err
			} else if text := strings.TrimSpace(string(data)); text == "" {
				out.err = fmt.Errorf("empty requirement")
			} else {
				res, err := w.orch.Run(gctx, text)
				out.err = err
				if res != nil {
					out.runID = res.RunID
					out.status = res.Status
					out.corrections = res.CorrectionIterations
				}
			}
			mu.Lock()
			outcomes[i] = out
			mu.Unlock()
			// Per-file failures are recorded, not propagated, so one bad
			// requirement does not cancel the rest of the batch.
			return gctx.Err()
		})
	}
	if err := g.Wait(); err != nil {
		return err
	}

	var failed int
	fmt.Printf("%-40s %-38s %-16s %s\n", "FILE", "RUN", "STATUS", "FIXES")
	for _, out := range outcomes {
		if out.err != nil {
			failed++
			fmt.Printf("%-40s %-38s %-16s %v\n", out.file, out.runID, "error", out.err)
			continue
		}
		fmt.Printf("%-40s %-38s %-16s %d\n", out.file, out.runID, out.status, out.corrections)
	}
	fmt.Printf("\n%d/%d succeeded", len(outcomes)-failed, len(outcomes))
	if spend := w.limiter.TotalSpend(); spend > 0 {
		fmt.Printf("  estimated spend: $%.4f", spend)
	}
	fmt.Println()

	if failed == len(outcomes) {
		return fmt.Errorf("every requirement in the batch failed")
	}
	return nil
}
