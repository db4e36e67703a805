// Package report renders audit results for the terminal.
package report

import (
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"

	"golang.org/x/term"

	"github.com/stellar-eng/excelsior/audit"
	"github.com/stellar-eng/excelsior/fix"
	"github.com/stellar-eng/excelsior/registry"
)

const defaultWidth = 80

// Width returns the render width: TERMINAL_WIDTH override first, then the
// detected terminal size, then 80.
func Width() int {
	if override := os.Getenv("TERMINAL_WIDTH"); override != "" {
		if w, err := strconv.Atoi(override); err == nil && w > 20 {
			return w
		}
	}
	if w, _, err := term.GetSize(int(os.Stdout.Fd())); err == nil && w > 20 {
		return w
	}
	return defaultWidth
}

// passLabels maps pass names to display titles.
var passLabels = map[string]string{
	audit.PassContracts:     "Layer Contracts",
	audit.PassImportsTyping: "Imports & Typing",
	audit.PassTypes:         "Static Types",
	audit.PassArchitecture:  "Architectural",
	audit.PassQuality:       "Code Quality",
}

// WriteAuditSummary renders the per-pass table and the findings of the
// blocking pass.
func WriteAuditSummary(w io.Writer, result *audit.Result, reg *registry.Registry) {
	width := Width()
	rule := strings.Repeat("=", min(width, 72))
	fmt.Fprintln(w, rule)
	fmt.Fprintf(w, "Audit %s\n", result.Timestamp)
	fmt.Fprintln(w, rule)
	for _, pass := range result.Passes {
		label := passLabels[pass.Name]
		if label == "" {
			label = pass.Name
		}
		status := "OK"
		switch {
		case pass.Skipped && result.BlockedBy != pass.Name:
			status = "skipped"
		case pass.Err != nil:
			status = "ERROR: " + pass.Err.Error()
		case len(pass.Violations) > 0 && pass.InfoOnly:
			status = fmt.Sprintf("%d info finding(s)", len(pass.Violations))
		case len(pass.Violations) > 0:
			status = fmt.Sprintf("%d finding(s)", len(pass.Violations))
		}
		fmt.Fprintf(w, "  %-18s %s\n", label, status)
	}
	fmt.Fprintln(w, rule)
	if result.IsBlocked() {
		fmt.Fprintf(w, "BLOCKED by %s\n\n", result.BlockedBy)
		if pass := result.Pass(result.BlockedBy); pass != nil {
			writeViolations(w, pass, reg, width)
		}
	} else {
		fmt.Fprintln(w, "Audit clean: no pass reported findings.")
	}
}

func writeViolations(w io.Writer, pass *audit.PassResult, reg *registry.Registry, width int) {
	for _, v := range pass.Violations {
		line := fmt.Sprintf("  %s %s  %s", v.Code, v.Location(), v.Message)
		if len(line) > width && width > 4 {
			line = line[:width-3] + "..."
		}
		fmt.Fprintln(w, line)
		if v.FixFailureReason != "" {
			fmt.Fprintf(w, "      fix unavailable: %s\n", v.FixFailureReason)
		}
	}
	if pass.Err != nil {
		fmt.Fprintf(w, "  tool error: %v\n", pass.Err)
	}
}

// WriteFixSummary renders the fix pipeline outcome.
func WriteFixSummary(w io.Writer, summary *fix.Summary) {
	for _, pass := range summary.Passes {
		switch {
		case pass.Skipped:
			fmt.Fprintf(w, "  %-32s skipped: %s\n", pass.Name, pass.SkipReason)
		default:
			fmt.Fprintf(w, "  %-32s %d file(s) repaired\n", pass.Name, pass.Modified)
		}
	}
	if len(summary.FailedFixes) > 0 {
		fmt.Fprintf(w, "\n%d fix(es) could not be applied:\n", len(summary.FailedFixes))
		for _, failure := range summary.FailedFixes {
			fmt.Fprintf(w, "  %s\n", failure)
		}
	}
	if len(summary.Rejected) > 0 {
		fmt.Fprintf(w, "\n%d file(s) rolled back after test regressions:\n", len(summary.Rejected))
		for _, file := range summary.Rejected {
			fmt.Fprintf(w, "  %s\n", file)
		}
	}
	fmt.Fprintf(w, "Fix suite complete. Files repaired: %d\n", summary.TotalModified())
}

func min(a, b int) int {
	if a < b {
		return a
	}
	return b
}
