package adapters

import (
	"context"
	"strconv"
	"strings"

	"github.com/stellar-eng/excelsior/audit"
)

// MypyAdapter backs audit pass 3 (static types).
type MypyAdapter struct {
	runner *Runner
}

// NewMypyAdapter builds the mypy adapter.
func NewMypyAdapter(runner *Runner) *MypyAdapter {
	return &MypyAdapter{runner: runner}
}

func (a *MypyAdapter) Name() string { return "mypy" }

func (a *MypyAdapter) Enabled() bool { return a.runner.Available("mypy") }

func (a *MypyAdapter) SupportsAutofix() bool { return false }

func (a *MypyAdapter) FixableRules() []string { return nil }

func (a *MypyAdapter) ManualFixInstructions(code string) string {
	return "See https://mypy.readthedocs.io/en/stable/error_code_list.html#" + code
}

// GatherResults runs mypy. Exit 1 reports findings; exit 2 is a tool error.
func (a *MypyAdapter) GatherResults(ctx context.Context, path string) ([]audit.Finding, error) {
	output, exitCode, err := a.runner.Run(ctx, "mypy",
		"--no-error-summary", "--show-error-codes", "--no-color-output", path)
	if err != nil {
		return nil, err
	}
	switch exitCode {
	case 0:
		return nil, nil
	case 1:
		return parseMypyOutput(string(output)), nil
	default:
		return nil, &ToolError{Tool: "mypy", Err: errExit(exitCode), Output: string(output)}
	}
}

// ApplyFixes is unsupported: mypy only reports.
func (a *MypyAdapter) ApplyFixes(ctx context.Context, path string) (bool, error) {
	return false, nil
}

// parseMypyOutput reads "path:line: error: message [code]" lines.
func parseMypyOutput(output string) []audit.Finding {
	var findings []audit.Finding
	for _, line := range strings.Split(output, "\n") {
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		parts := strings.SplitN(line, ":", 3)
		if len(parts) < 3 {
			continue
		}
		lineno, err := strconv.Atoi(parts[1])
		if err != nil {
			continue
		}
		rest := strings.TrimSpace(parts[2])
		if strings.HasPrefix(rest, "note:") {
			continue
		}
		message := strings.TrimPrefix(rest, "error:")
		message = strings.TrimSpace(message)
		code := "mypy"
		if open := strings.LastIndex(message, "["); open >= 0 && strings.HasSuffix(message, "]") {
			code = message[open+1 : len(message)-1]
			message = strings.TrimSpace(message[:open])
		}
		findings = append(findings, audit.Finding{
			Code:    code,
			Message: message,
			Path:    parts[0],
			Line:    lineno,
		})
	}
	return findings
}
