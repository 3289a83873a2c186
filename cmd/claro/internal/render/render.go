// Copyright (C) 2025 Claro Labs (oss@clarolabs.dev)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package render formats workflow traces for the terminal.
package render

import (
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"
	"github.com/mattn/go-isatty"

	"github.com/clarolabs/claro/services/codegen/ledger"
	"github.com/clarolabs/claro/services/codegen/tracestore"
)

// Claro color palette - warm ambers over charcoal
var (
	ColorAmber    = lipgloss.Color("#F5A623")
	ColorGold     = lipgloss.Color("#E0B23C")
	ColorSuccess  = lipgloss.Color("#4CC38A")
	ColorWarning  = lipgloss.Color("#F4D03F")
	ColorError    = lipgloss.Color("#E74C3C")
	ColorMuted    = lipgloss.Color("#6B7280")
	ColorCharcoal = lipgloss.Color("#2B2B2B")
)

var styles = struct {
	Title   lipgloss.Style
	Bold    lipgloss.Style
	Muted   lipgloss.Style
	Success lipgloss.Style
	Warning lipgloss.Style
	Error   lipgloss.Style
	Box     lipgloss.Style
}{
	Title:   lipgloss.NewStyle().Bold(true).Foreground(ColorAmber),
	Bold:    lipgloss.NewStyle().Bold(true),
	Muted:   lipgloss.NewStyle().Foreground(ColorMuted),
	Success: lipgloss.NewStyle().Foreground(ColorSuccess),
	Warning: lipgloss.NewStyle().Foreground(ColorWarning),
	Error:   lipgloss.NewStyle().Foreground(ColorError),
	Box: lipgloss.NewStyle().
		Border(lipgloss.RoundedBorder()).
		BorderForeground(ColorGold).
		Padding(0, 1),
}

// Renderer writes human-readable trace output. When color is off every
// style renders as plain text, so piped output stays clean.
type Renderer struct {
	w     io.Writer
	color bool
}

// New creates a Renderer for w, enabling color only when w is a
// terminal.
func New(w io.Writer) *Renderer {
	color := false
	if f, ok := w.(*os.File); ok {
		color = isatty.IsTerminal(f.Fd()) || isatty.IsCygwinTerminal(f.Fd())
	}
	return &Renderer{w: w, color: color}
}

// NewPlain creates a Renderer with color forced off; used by tests and
// the --no-color flag.
func NewPlain(w io.Writer) *Renderer {
	return &Renderer{w: w}
}

func (r *Renderer) style(s lipgloss.Style, text string) string {
	if !r.color {
		return text
	}
	return s.Render(text)
}

func (r *Renderer) severityIcon(s ledger.Severity) string {
	switch s {
	case ledger.SeverityHigh:
		return r.style(styles.Error, "✗")
	case ledger.SeverityMedium:
		return r.style(styles.Warning, "⚠")
	default:
		return r.style(styles.Muted, "○")
	}
}

func (r *Renderer) statusLabel(s ledger.Status) string {
	switch s {
	case ledger.StatusReady:
		return r.style(styles.Success, string(s))
	case ledger.StatusBudgetExceeded:
		return r.style(styles.Warning, string(s))
	case ledger.StatusFailed:
		return r.style(styles.Error, string(s))
	default:
		return r.style(styles.Muted, "in progress")
	}
}

// Trace writes the full human-readable view of one run.
func (r *Renderer) Trace(t *ledger.Trace) {
	fmt.Fprintf(r.w, "%s %s\n", r.style(styles.Title, "Run"), t.RunID)
	fmt.Fprintf(r.w, "  status: %s", r.statusLabel(t.Status))
	if t.Finalized() {
		fmt.Fprintf(r.w, "  duration: %s", t.FinishedAt.Sub(t.StartedAt).Round(10*time.Millisecond))
	}
	fmt.Fprintln(r.w)
	if t.Failure != "" {
		fmt.Fprintf(r.w, "  %s %s\n", r.style(styles.Error, "failure:"), t.Failure)
	}
	fmt.Fprintln(r.w)

	for _, round := range t.Rounds {
		r.round(round)
	}

	if t.Writer != nil {
		fmt.Fprintf(r.w, "%s\n", r.style(styles.Title, "Generated code"))
		fmt.Fprintln(r.w, indent(t.Writer.Code, "  "))
		if t.Writer.Tests != "" {
			fmt.Fprintf(r.w, "%s\n", r.style(styles.Title, "Generated tests"))
			fmt.Fprintln(r.w, indent(t.Writer.Tests, "  "))
		}
		for _, a := range t.Writer.Assumptions {
			fmt.Fprintf(r.w, "  %s %s\n", r.style(styles.Muted, "assumed:"), a)
		}
	}
}

func (r *Renderer) round(round ledger.Round) {
	fmt.Fprintf(r.w, "%s %d  %s\n",
		r.style(styles.Bold, "Round"), round.Number,
		r.style(styles.Muted, fmt.Sprintf("(requirement v%d)", round.Requirement.Version)))

	if round.Analyzer != nil {
		if round.Analyzer.ReadyForCodegen {
			fmt.Fprintf(r.w, "  %s ready for code generation\n", r.style(styles.Success, "✓"))
		}
		for _, iss := range round.Analyzer.Issues {
			fmt.Fprintf(r.w, "  %s [%s/%s] %s: %s\n",
				r.severityIcon(iss.Severity), iss.Category, iss.Severity, iss.ID, iss.Description)
			if iss.ClarifyingQuestion != "" {
				fmt.Fprintf(r.w, "      %s %s\n", r.style(styles.Muted, "?"), iss.ClarifyingQuestion)
			}
		}
	}
	if round.Corrector != nil {
		for _, res := range round.Corrector.Resolutions {
			fmt.Fprintf(r.w, "  %s %s: %s\n", r.style(styles.Success, "→"), res.IssueID, res.ActionTaken)
			if res.Assumption != "" {
				fmt.Fprintf(r.w, "      %s %s\n", r.style(styles.Muted, "assumed:"), res.Assumption)
			}
		}
		for _, q := range round.Corrector.OpenQuestions {
			fmt.Fprintf(r.w, "  %s %s\n", r.style(styles.Warning, "open:"), q)
		}
	}
	fmt.Fprintln(r.w)
}

// Summaries writes the run listing as an aligned table.
func (r *Renderer) Summaries(list []tracestore.Summary) {
	if len(list) == 0 {
		fmt.Fprintln(r.w, r.style(styles.Muted, "no traces recorded yet"))
		return
	}
	fmt.Fprintf(r.w, "%-38s %-16s %-22s %6s %6s\n",
		r.style(styles.Bold, "RUN"), r.style(styles.Bold, "STATUS"),
		r.style(styles.Bold, "STARTED"), r.style(styles.Bold, "ROUNDS"),
		r.style(styles.Bold, "FIXES"))
	for _, s := range list {
		fmt.Fprintf(r.w, "%-38s %-16s %-22s %6d %6d\n",
			s.RunID, s.Status, s.StartedAt.Format("2006-01-02 15:04:05"),
			s.Rounds, s.Corrected)
	}
}

func indent(text, prefix string) string {
	lines := strings.Split(strings.TrimRight(text, "\n"), "\n")
	for i, line := range lines {
		lines[i] = prefix + line
	}
	return strings.Join(lines, "\n")
}
