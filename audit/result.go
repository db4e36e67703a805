// Package audit orders the five gated passes and records the first blocker.
package audit

import (
	"github.com/stellar-eng/excelsior/rules"
)

// Pass names. They double as blocked_by values; BlockedByNone means every
// enabled pass came back clean.
const (
	PassContracts     = "import_linter"
	PassImportsTyping = "ruff_import_typing"
	PassTypes         = "mypy"
	PassArchitecture  = "excelsior"
	PassQuality       = "ruff_code_quality"
	BlockedByNone     = "none"
)

// ParseErrorCode is the violation code carried by unparsable files.
const ParseErrorCode = "PARSE-ERROR"

// PassResult is the outcome of one pipeline pass.
type PassResult struct {
	Name       string
	Violations []rules.Violation
	// Err carries an ExternalToolError/Timeout; the pass becomes the blocker.
	Err error
	// Skipped marks passes disabled by configuration (treated as clean) and
	// passes never reached because an earlier one blocked.
	Skipped bool
	// InfoOnly marks a pass whose findings are all informational; it reports
	// them without closing the gate.
	InfoOnly bool
}

// Blocking reports whether this pass stops the pipeline.
func (p PassResult) Blocking() bool {
	if p.Skipped || p.InfoOnly {
		return false
	}
	return p.Err != nil || len(p.Violations) > 0
}

// Result is one audit run.
type Result struct {
	Version   string
	RunID     string
	Timestamp string
	Passes    []PassResult
	BlockedBy string
}

// IsBlocked reports whether any pass blocked.
func (r *Result) IsBlocked() bool {
	return r.BlockedBy != BlockedByNone
}

// Pass returns the named pass result, or nil.
func (r *Result) Pass(name string) *PassResult {
	for i := range r.Passes {
		if r.Passes[i].Name == name {
			return &r.Passes[i]
		}
	}
	return nil
}

// TotalViolations counts findings across executed passes.
func (r *Result) TotalViolations() int {
	total := 0
	for _, pass := range r.Passes {
		total += len(pass.Violations)
	}
	return total
}
