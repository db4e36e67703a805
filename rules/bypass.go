package rules

import (
	"strings"

	"github.com/stellar-eng/excelsior/pyast"
)

const codeAntiBypass = "W9501"

// disableMarkers are linter-disable directives subject to the justification
// requirement.
var disableMarkers = []string{"pylint: disable", "noqa", "type: ignore", "excelsior: disable"}

// bannedJustifications are lazy phrases that do not count as justification.
var bannedJustifications = []string{"internal helper", "detailed arguments", "passing the linter"}

// BypassRule enforces W9501. It is token-driven: the raw source lines are
// scanned directly, bypassing the AST engine, so directives survive even in
// regions the parser lowers loosely.
type BypassRule struct{}

func NewBypassRule() *BypassRule { return &BypassRule{} }

func (r *BypassRule) Code() string { return codeAntiBypass }
func (r *BypassRule) Description() string {
	return "Disable directives require an adjacent justification."
}

func (r *BypassRule) CheckModule(ctx *Context, mod *pyast.Module) []Violation {
	lines := strings.Split(string(mod.Source), "\n")
	var out []Violation
	for i, line := range lines {
		comment := commentPart(line)
		if comment == "" {
			continue
		}
		marker := matchedMarker(comment)
		if marker == "" {
			continue
		}
		lineno := i + 1
		justification := justificationNear(lines, i)
		if justification == "" {
			out = append(out, r.violation(ctx, mod, lineno,
				"Unjustified disable ("+marker+")",
				"Add '# JUSTIFICATION: <reason>' on the same or previous line."))
			continue
		}
		lowered := strings.ToLower(justification)
		for _, banned := range bannedJustifications {
			if strings.Contains(lowered, banned) {
				out = append(out, r.violation(ctx, mod, lineno,
					"Banned justification for "+marker,
					"The justification '"+banned+"' is lazy. Provide a real architectural reason."))
				break
			}
		}
	}
	return out
}

func (r *BypassRule) violation(ctx *Context, mod *pyast.Module, line int, what, hint string) Violation {
	return Violation{
		Code:    codeAntiBypass,
		Message: ctx.Registry.Message(codeAntiBypass, what, hint),
		Path:    mod.Path,
		Line:    line,
		Col:     0,
		Symbol:  what,
	}
}

func commentPart(line string) string {
	idx := strings.Index(line, "#")
	if idx < 0 {
		return ""
	}
	return line[idx:]
}

func matchedMarker(comment string) string {
	for _, marker := range disableMarkers {
		if strings.Contains(comment, marker) {
			return marker
		}
	}
	return ""
}

// justificationNear returns the JUSTIFICATION text on the directive line or
// the line above it, else "".
func justificationNear(lines []string, idx int) string {
	for _, candidate := range []int{idx, idx - 1} {
		if candidate < 0 {
			continue
		}
		if pos := strings.Index(lines[candidate], "JUSTIFICATION:"); pos >= 0 {
			return strings.TrimSpace(lines[candidate][pos+len("JUSTIFICATION:"):])
		}
	}
	return ""
}
