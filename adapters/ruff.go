package adapters

import (
	"context"
	"strconv"
	"strings"

	"github.com/stellar-eng/excelsior/audit"
)

// RuffAdapter backs audit passes 2 and 5 and fix passes 1 and 5. The same
// binary serves both with different rule selections.
type RuffAdapter struct {
	runner *Runner
}

// NewRuffAdapter builds the ruff adapter.
func NewRuffAdapter(runner *Runner) *RuffAdapter {
	return &RuffAdapter{runner: runner}
}

func (a *RuffAdapter) Name() string { return "ruff" }

func (a *RuffAdapter) Enabled() bool { return a.runner.Available("ruff") }

func (a *RuffAdapter) SupportsAutofix() bool { return true }

func (a *RuffAdapter) FixableRules() []string {
	return []string{"I", "UP", "B", "E", "F", "W", "SIM", "PTH", "RUF"}
}

func (a *RuffAdapter) ManualFixInstructions(code string) string {
	return "Run `ruff check --select " + code + "` for the rule's documentation and fix guidance."
}

// GatherResults runs the full rule surface.
func (a *RuffAdapter) GatherResults(ctx context.Context, path string) ([]audit.Finding, error) {
	return a.GatherSelected(ctx, path, nil)
}

// GatherSelected runs `ruff check` with a category selection. Exit code 1 is
// a findings report; anything else non-zero is a tool error.
func (a *RuffAdapter) GatherSelected(ctx context.Context, path string, selectors []string) ([]audit.Finding, error) {
	args := []string{"check", "--output-format", "concise", "--no-cache"}
	if len(selectors) > 0 {
		args = append(args, "--select", strings.Join(selectors, ","))
	}
	args = append(args, path)
	output, exitCode, err := a.runner.Run(ctx, "ruff", args...)
	if err != nil {
		return nil, err
	}
	switch exitCode {
	case 0:
		return nil, nil
	case 1:
		return parseRuffOutput(string(output)), nil
	default:
		return nil, &ToolError{Tool: "ruff", Err: errExit(exitCode), Output: string(output)}
	}
}

// ApplyFixes runs the autofixer over the full surface.
func (a *RuffAdapter) ApplyFixes(ctx context.Context, path string) (bool, error) {
	return a.ApplySelected(ctx, path, nil)
}

// ApplySelected runs `ruff check --fix` for the selection. Returns whether
// any fixes were applied.
func (a *RuffAdapter) ApplySelected(ctx context.Context, path string, selectors []string) (bool, error) {
	args := []string{"check", "--fix", "--no-cache"}
	if len(selectors) > 0 {
		args = append(args, "--select", strings.Join(selectors, ","))
	}
	args = append(args, path)
	output, exitCode, err := a.runner.Run(ctx, "ruff", args...)
	if err != nil {
		return false, err
	}
	if exitCode > 1 {
		return false, &ToolError{Tool: "ruff", Err: errExit(exitCode), Output: string(output)}
	}
	return strings.Contains(string(output), "Fixed"), nil
}

// parseRuffOutput reads concise lines: path:line:col: CODE message.
func parseRuffOutput(output string) []audit.Finding {
	var findings []audit.Finding
	for _, line := range strings.Split(output, "\n") {
		line = strings.TrimSpace(line)
		if line == "" || strings.HasPrefix(line, "Found ") || strings.HasPrefix(line, "[") {
			continue
		}
		finding, ok := parseLocatedLine(line)
		if !ok {
			continue
		}
		findings = append(findings, finding)
	}
	return findings
}

// parseLocatedLine splits "path:line:col: CODE message".
func parseLocatedLine(line string) (audit.Finding, bool) {
	parts := strings.SplitN(line, ":", 4)
	if len(parts) < 4 {
		return audit.Finding{}, false
	}
	lineno, err := strconv.Atoi(parts[1])
	if err != nil {
		return audit.Finding{}, false
	}
	col, err := strconv.Atoi(parts[2])
	if err != nil {
		return audit.Finding{}, false
	}
	rest := strings.TrimSpace(parts[3])
	code := rest
	message := ""
	if idx := strings.Index(rest, " "); idx > 0 {
		code = rest[:idx]
		message = strings.TrimSpace(rest[idx+1:])
	}
	return audit.Finding{
		Code:    code,
		Message: message,
		Path:    parts[0],
		Line:    lineno,
		Col:     col,
	}, true
}

type errExit int

func (e errExit) Error() string { return "exit status " + strconv.Itoa(int(e)) }
