package fix

import (
	"context"
	"regexp"
	"strconv"

	"github.com/stellar-eng/excelsior/adapters"
)

// Validator runs the project's test suite after a fix; a regression against
// the baseline rejects the fix.
type Validator struct {
	runner *adapters.Runner
}

// NewValidator builds a pytest-backed validator.
func NewValidator(runner *adapters.Runner) *Validator {
	return &Validator{runner: runner}
}

// Available reports whether pytest resolves on PATH.
func (v *Validator) Available() bool {
	return v.runner.Available("pytest")
}

var failedRe = regexp.MustCompile(`(\d+) failed`)

// Failures runs pytest and returns the failure count. Missing tests count as
// zero failures.
func (v *Validator) Failures(ctx context.Context) int {
	output, exitCode, err := v.runner.Run(ctx, "pytest", "--tb=no", "-q")
	if err != nil {
		// A broken or absent test runner cannot veto fixes.
		return 0
	}
	switch exitCode {
	case 0, 5:
		return 0
	}
	if m := failedRe.FindSubmatch(output); m != nil {
		if n, err := strconv.Atoi(string(m[1])); err == nil {
			return n
		}
	}
	return 1
}
