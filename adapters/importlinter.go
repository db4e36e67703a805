package adapters

import (
	"context"
	"strings"

	"github.com/stellar-eng/excelsior/audit"
)

// ImportLinterAdapter backs audit pass 1 (layer contracts).
type ImportLinterAdapter struct {
	runner *Runner
}

// NewImportLinterAdapter builds the import-linter adapter.
func NewImportLinterAdapter(runner *Runner) *ImportLinterAdapter {
	return &ImportLinterAdapter{runner: runner}
}

func (a *ImportLinterAdapter) Name() string { return "import_linter" }

func (a *ImportLinterAdapter) Enabled() bool { return a.runner.Available("lint-imports") }

func (a *ImportLinterAdapter) SupportsAutofix() bool { return false }

func (a *ImportLinterAdapter) FixableRules() []string { return nil }

func (a *ImportLinterAdapter) ManualFixInstructions(code string) string {
	return "Restore the declared contract: inner layers must not import outer layers."
}

// GatherResults runs lint-imports. Exit 1 is a broken-contract report.
func (a *ImportLinterAdapter) GatherResults(ctx context.Context, path string) ([]audit.Finding, error) {
	output, exitCode, err := a.runner.Run(ctx, "lint-imports")
	if err != nil {
		return nil, err
	}
	switch exitCode {
	case 0:
		return nil, nil
	case 1:
		return parseImportLinterOutput(string(output)), nil
	default:
		return nil, &ToolError{Tool: "lint-imports", Err: errExit(exitCode), Output: string(output)}
	}
}

// ApplyFixes is unsupported: contracts are repaired by moving code.
func (a *ImportLinterAdapter) ApplyFixes(ctx context.Context, path string) (bool, error) {
	return false, nil
}

// parseImportLinterOutput collects BROKEN contract names and the offending
// import chains beneath them.
func parseImportLinterOutput(output string) []audit.Finding {
	var findings []audit.Finding
	contract := ""
	for _, raw := range strings.Split(output, "\n") {
		line := strings.TrimSpace(raw)
		if line == "" {
			continue
		}
		if strings.HasSuffix(line, "BROKEN") {
			contract = strings.TrimSpace(strings.TrimSuffix(line, "BROKEN"))
			findings = append(findings, audit.Finding{
				Code:    "contract",
				Message: "Broken contract: " + contract,
			})
			continue
		}
		if contract != "" && strings.Contains(line, "->") {
			findings = append(findings, audit.Finding{
				Code:    "contract",
				Message: contract + ": " + line,
			})
		}
	}
	return findings
}
