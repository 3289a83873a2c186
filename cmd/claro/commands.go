// Copyright (C) 2025 Claro Labs (oss@clarolabs.dev)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/clarolabs/claro/cmd/claro/config"
	"github.com/clarolabs/claro/pkg/logging"
)

// --- Global Command Variables ---
var (
	configPath    string
	noColor       bool
	maxIterations int // CLI override for workflow.max_iterations
	outputPath    string
	testsPath     string
	evalWorkers   int
	showJSON      bool

	cfg    *config.ClaroConfig
	logger *logging.Logger

	rootCmd = &cobra.Command{
		Use:   "claro",
		Short: "A cli that clarifies software requirements before generating code",
		Long: `Claro negotiates a natural-language requirement between an Analyzer
and a Corrector until it is unambiguous, then hands the finalized text
to a Writer for code generation. Every run leaves a replayable trace.`,
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if err := loadConfig(); err != nil {
				return err
			}
			logger = logging.New(logging.Config{
				Level:   logging.ParseLevel(cfg.Logging.Level),
				LogDir:  cfg.Logging.Dir,
				Service: "cli",
				JSON:    cfg.Logging.JSON,
			})
			logger.SetAsDefault()
			if maxIterations > 0 {
				cfg.Workflow.MaxIterations = maxIterations
			}
			return nil
		},
		PersistentPostRun: func(cmd *cobra.Command, args []string) {
			if logger != nil {
				_ = logger.Close()
			}
		},
	}

	generateCmd = &cobra.Command{
		Use:   "generate [requirement-file]",
		Short: "Clarify a requirement and generate code from it",
		Long: `Reads a requirement from the given file, or from stdin when no file
is passed. The clarified requirement, the generated code, and the full
negotiation trace are printed; use --output to write the code to a file.`,
		Args: cobra.MaximumNArgs(1),
		RunE: runGenerate, // Defined in cmd_generate.go
	}

	evalCmd = &cobra.Command{
		Use:   "eval [requirement-file...]",
		Short: "Run the workflow over a batch of requirement files concurrently",
		Args:  cobra.MinimumNArgs(1),
		RunE:  runEval, // Defined in cmd_eval.go
	}

	// --- Trace Inspection ---
	traceCmd = &cobra.Command{
		Use:   "trace",
		Short: "Inspect recorded workflow traces",
	}
	traceListCmd = &cobra.Command{
		Use:   "list",
		Short: "List all recorded runs, newest first",
		Args:  cobra.NoArgs,
		RunE:  runTraceList, // Defined in cmd_trace.go
	}
	traceShowCmd = &cobra.Command{
		Use:   "show [run-id]",
		Short: "Show the full negotiation trace of one run",
		Args:  cobra.ExactArgs(1),
		RunE:  runTraceShow, // Defined in cmd_trace.go
	}
	traceDeleteCmd = &cobra.Command{
		Use:   "delete [run-id]",
		Short: "Delete a recorded run",
		Args:  cobra.ExactArgs(1),
		RunE:  runTraceDelete, // Defined in cmd_trace.go
	}

	serveCmd = &cobra.Command{
		Use:   "serve",
		Short: "Serve the workflow over HTTP",
		Args:  cobra.NoArgs,
		RunE:  runServe, // Defined in cmd_serve.go
	}
)

func loadConfig() error {
	if configPath != "" {
		loaded, err := config.LoadFrom(configPath)
		if err != nil {
			return err
		}
		cfg = loaded
		return nil
	}
	if err := config.Load(); err != nil {
		return err
	}
	if err := config.Global.Validate(); err != nil {
		return fmt.Errorf("~/.claro/claro.yaml: %w", err)
	}
	cfg = &config.Global
	return nil
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "",
		"path to a config file (default ~/.claro/claro.yaml)")
	rootCmd.PersistentFlags().BoolVar(&noColor, "no-color", false,
		"disable colored output")
	rootCmd.PersistentFlags().IntVar(&maxIterations, "max-iterations", 0,
		"override the clarification iteration budget")

	generateCmd.Flags().StringVarP(&outputPath, "output", "o", "",
		"write the generated code to this file instead of stdout")
	generateCmd.Flags().StringVar(&testsPath, "tests", "",
		"write the generated tests to this file")
	generateCmd.Flags().BoolVar(&showJSON, "json", false,
		"print the result as JSON instead of the rendered trace")

	evalCmd.Flags().IntVar(&evalWorkers, "concurrency", 2,
		"number of requirements to run in parallel")

	traceCmd.AddCommand(traceListCmd, traceShowCmd, traceDeleteCmd)
	rootCmd.AddCommand(generateCmd, evalCmd, traceCmd, serveCmd)
}
