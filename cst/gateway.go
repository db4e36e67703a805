// Package cst applies TransformationPlans to source files. Plans are the only
// currency crossing this boundary: no rewriter objects leak through the port.
package cst

import (
	"github.com/stellar-eng/excelsior/plan"
)

// Gateway is the port the fix pipeline writes through. Implementations apply
// the batch as a single pass and atomically replace the file; with no plans
// the file is untouched.
type Gateway interface {
	ApplyFixes(filePath string, plans []plan.Plan) (bool, error)
}
