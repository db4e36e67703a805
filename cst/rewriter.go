package cst

import (
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strings"

	"github.com/stellar-eng/excelsior/plan"
)

// NamedTransformer rewrites whole-file content; registered under a name for
// the apply_named_transformer plan kind.
type NamedTransformer func(src string) (string, error)

// Rewriter is the concrete Gateway. Each plan lowers to a line-level edit
// anchored at the plan's span; the batch commits as one atomic file replace.
type Rewriter struct {
	transformers map[string]NamedTransformer
}

// NewRewriter builds a rewriter with an empty named-transformer registry.
func NewRewriter() *Rewriter {
	return &Rewriter{transformers: map[string]NamedTransformer{}}
}

// Register adds a named transformer.
func (r *Rewriter) Register(name string, fn NamedTransformer) {
	r.transformers[name] = fn
}

// ApplyFixes applies the batch to filePath. Unrecognized plan kinds fail
// loudly; no partial writes occur. Returns whether the file content changed
// or a structural file was created.
func (r *Rewriter) ApplyFixes(filePath string, plans []plan.Plan) (bool, error) {
	if len(plans) == 0 {
		return false, nil
	}
	filePlans, dirPlans := splitPlans(plans)

	created := false
	for _, p := range dirPlans {
		made, err := r.applyStructural(p)
		if err != nil {
			return false, err
		}
		created = created || made
	}
	if len(filePlans) == 0 {
		return created, nil
	}

	data, err := os.ReadFile(filePath)
	if err != nil {
		return false, fmt.Errorf("failed to read %s: %w", filePath, err)
	}
	src := string(data)
	updated := src

	// Line-insertion plans apply bottom-up so earlier anchors stay valid.
	sort.SliceStable(filePlans, func(i, j int) bool {
		return filePlans[i].Anchor.StartLine > filePlans[j].Anchor.StartLine
	})
	for _, p := range filePlans {
		updated, err = r.applyOne(updated, p)
		if err != nil {
			return false, err
		}
	}
	if updated == src {
		return false, nil
	}
	if err := atomicWrite(filePath, []byte(updated)); err != nil {
		return false, err
	}
	return true, nil
}

func splitPlans(plans []plan.Plan) (filePlans, dirPlans []plan.Plan) {
	for _, p := range plans {
		switch p.Kind {
		case plan.AddPyTypedMarker, plan.AddInitFile:
			dirPlans = append(dirPlans, p)
		default:
			filePlans = append(filePlans, p)
		}
	}
	return filePlans, dirPlans
}

func (r *Rewriter) applyOne(src string, p plan.Plan) (string, error) {
	switch p.Kind {
	case plan.AddReturnType:
		return addReturnType(src, p.Anchor, p.Params["return_type"])
	case plan.AddNoneReturnAnnotation:
		return addReturnType(src, p.Anchor, "None")
	case plan.AddParameterType:
		return addParameterType(src, p.Anchor, p.Params["param_name"], p.Params["param_type"])
	case plan.AddFrozenDecorator:
		return addFrozenDecorator(src, p.Anchor)
	case plan.AddImport:
		return addImport(src, p.Params["module"], p.Params["imports"])
	case plan.AddGovernanceComment:
		return addGovernanceComment(src, p.Anchor, p.Params)
	case plan.StripDuplicateAnnotation:
		return stripDuplicateAnnotation(src, p.Anchor, p.Params["name"])
	case plan.ApplyNamedTransformer:
		name := p.Params["name"]
		fn, ok := r.transformers[name]
		if !ok {
			return "", fmt.Errorf("unknown named transformer %q", name)
		}
		return fn(src)
	default:
		return "", fmt.Errorf("unrecognized plan kind %q", p.Kind)
	}
}

func (r *Rewriter) applyStructural(p plan.Plan) (bool, error) {
	var name string
	switch p.Kind {
	case plan.AddPyTypedMarker:
		name = "py.typed"
	case plan.AddInitFile:
		name = "__init__.py"
	default:
		return false, fmt.Errorf("unrecognized structural plan kind %q", p.Kind)
	}
	target := filepath.Join(p.TargetPath, name)
	if _, err := os.Stat(target); err == nil {
		return false, nil
	}
	if err := os.WriteFile(target, nil, 0o644); err != nil {
		return false, err
	}
	return true, nil
}

// signatureSpan locates a def's signature lines beginning at the anchor.
func signatureSpan(lines []string, anchor plan.Anchor, identifier string) (start, end int, err error) {
	start = anchor.StartLine - 1
	if start < 0 || start >= len(lines) {
		return 0, 0, fmt.Errorf("anchor line %d out of range", anchor.StartLine)
	}
	if identifier != "" && !strings.Contains(lines[start], "def "+identifier) {
		// The anchor drifted; rescan the file from the top for the definition.
		found := -1
		for i := range lines {
			if strings.Contains(lines[i], "def "+identifier+"(") {
				found = i
				break
			}
		}
		if found < 0 {
			return 0, 0, fmt.Errorf("definition %q not found", identifier)
		}
		start = found
	}
	for end = start; end < len(lines); end++ {
		if strings.Contains(lines[end], ":") && strings.Contains(strings.Join(lines[start:end+1], ""), ")") {
			return start, end, nil
		}
	}
	return 0, 0, fmt.Errorf("unterminated signature for %q", identifier)
}

func addReturnType(src string, anchor plan.Anchor, returnType string) (string, error) {
	lines := strings.Split(src, "\n")
	_, end, err := signatureSpan(lines, anchor, anchor.Identifier)
	if err != nil {
		return "", err
	}
	closing := lines[end]
	if strings.Contains(closing, "->") {
		return src, nil
	}
	idx := strings.LastIndex(closing, "):")
	if idx < 0 {
		return "", fmt.Errorf("no signature close on line %d", end+1)
	}
	lines[end] = closing[:idx] + ") -> " + returnType + ":" + closing[idx+2:]
	return strings.Join(lines, "\n"), nil
}

func addParameterType(src string, anchor plan.Anchor, param, paramType string) (string, error) {
	lines := strings.Split(src, "\n")
	start, end, err := signatureSpan(lines, anchor, anchor.Identifier)
	if err != nil {
		return "", err
	}
	// Bare parameter, parameter with default, at any position in the list.
	withDefault := regexp.MustCompile(`(\(|,\s*)` + regexp.QuoteMeta(param) + `\s*=\s*`)
	bare := regexp.MustCompile(`(\(|,\s*)` + regexp.QuoteMeta(param) + `(\s*[,)])`)
	for i := start; i <= end; i++ {
		if withDefault.MatchString(lines[i]) {
			lines[i] = withDefault.ReplaceAllString(lines[i], "${1}"+param+": "+paramType+" = ")
			return strings.Join(lines, "\n"), nil
		}
		if bare.MatchString(lines[i]) {
			lines[i] = bare.ReplaceAllString(lines[i], "${1}"+param+": "+paramType+"${2}")
			return strings.Join(lines, "\n"), nil
		}
	}
	return "", fmt.Errorf("parameter %q not found in %q signature", param, anchor.Identifier)
}

var dataclassDecorator = regexp.MustCompile(`^(\s*)@(?:dataclasses\.)?dataclass(\((.*)\))?\s*$`)

func addFrozenDecorator(src string, anchor plan.Anchor) (string, error) {
	lines := strings.Split(src, "\n")
	classLine := anchor.StartLine - 1
	if classLine < 0 || classLine >= len(lines) {
		return "", fmt.Errorf("anchor line %d out of range", anchor.StartLine)
	}
	if anchor.Identifier != "" && !strings.Contains(lines[classLine], "class "+anchor.Identifier) {
		found := -1
		for i := range lines {
			if strings.Contains(lines[i], "class "+anchor.Identifier) {
				found = i
				break
			}
		}
		if found < 0 {
			return "", fmt.Errorf("class %q not found", anchor.Identifier)
		}
		classLine = found
	}
	indent := leadingWhitespace(lines[classLine])

	// Rewrite an existing dataclass decorator in the contiguous block above.
	for i := classLine - 1; i >= 0; i-- {
		trimmed := strings.TrimSpace(lines[i])
		if trimmed == "" || !strings.HasPrefix(trimmed, "@") {
			break
		}
		m := dataclassDecorator.FindStringSubmatch(lines[i])
		if m == nil {
			continue
		}
		if strings.Contains(m[3], "frozen") {
			return src, nil
		}
		if m[3] != "" {
			lines[i] = m[1] + "@dataclass(" + m[3] + ", frozen=True)"
		} else {
			lines[i] = m[1] + "@dataclass(frozen=True)"
		}
		return strings.Join(lines, "\n"), nil
	}

	inserted := indent + "@dataclass(frozen=True)"
	out := append([]string{}, lines[:classLine]...)
	out = append(out, inserted)
	out = append(out, lines[classLine:]...)
	return strings.Join(out, "\n"), nil
}

func addImport(src, module, names string) (string, error) {
	stmt := "from " + module + " import " + names
	if strings.Contains(src, stmt) {
		return src, nil
	}
	lines := strings.Split(src, "\n")
	insertAt := importInsertionPoint(lines)
	out := append([]string{}, lines[:insertAt]...)
	out = append(out, stmt)
	out = append(out, lines[insertAt:]...)
	return strings.Join(out, "\n"), nil
}

// importInsertionPoint finds the line index after the module docstring and
// any existing top imports.
func importInsertionPoint(lines []string) int {
	i := 0
	// Skip a module docstring.
	if i < len(lines) {
		trimmed := strings.TrimSpace(lines[i])
		for _, quote := range []string{`"""`, "'''"} {
			if strings.HasPrefix(trimmed, quote) {
				rest := strings.TrimPrefix(trimmed, quote)
				if strings.Contains(rest, quote) {
					i++
					break
				}
				for i++; i < len(lines); i++ {
					if strings.Contains(lines[i], quote) {
						i++
						break
					}
				}
				break
			}
		}
	}
	last := i
	for j := i; j < len(lines) && j < 100; j++ {
		trimmed := strings.TrimSpace(lines[j])
		if strings.HasPrefix(trimmed, "import ") || strings.HasPrefix(trimmed, "from ") {
			last = j + 1
		}
	}
	return last
}

func addGovernanceComment(src string, anchor plan.Anchor, params map[string]string) (string, error) {
	lines := strings.Split(src, "\n")
	target := anchor.StartLine - 1
	if target < 0 || target >= len(lines) {
		return "", fmt.Errorf("anchor line %d out of range", anchor.StartLine)
	}
	indent := leadingWhitespace(lines[target])
	header := indent + "# GOVERNANCE " + params["rule_code"] + " (" + params["rule_name"] + "): " + params["problem"]
	// The comment may already sit at or just above the anchor (the anchor
	// shifts once the block is inserted); re-applying is a no-op.
	for i := target - 2; i <= target+1; i++ {
		if i >= 0 && i < len(lines) && strings.TrimSpace(lines[i]) == strings.TrimSpace(header) {
			return src, nil
		}
	}
	block := []string{header}
	if rec := params["recommendation"]; rec != "" {
		block = append(block, indent+"# FIX: "+rec)
	}
	out := append([]string{}, lines[:target]...)
	out = append(out, block...)
	out = append(out, lines[target:]...)
	return strings.Join(out, "\n"), nil
}

func stripDuplicateAnnotation(src string, anchor plan.Anchor, name string) (string, error) {
	lines := strings.Split(src, "\n")
	target := anchor.StartLine - 1
	if target < 0 || target >= len(lines) {
		return "", fmt.Errorf("anchor line %d out of range", anchor.StartLine)
	}
	re := regexp.MustCompile(`\b` + regexp.QuoteMeta(name) + `\s*:\s*[^=]+=`)
	lines[target] = re.ReplaceAllString(lines[target], name+" =")
	return strings.Join(lines, "\n"), nil
}

func leadingWhitespace(line string) string {
	return line[:len(line)-len(strings.TrimLeft(line, " \t"))]
}

// atomicWrite replaces path via a temp file + rename in the same directory.
func atomicWrite(path string, data []byte) error {
	dir := filepath.Dir(path)
	tmp, err := os.CreateTemp(dir, ".excelsior-*")
	if err != nil {
		return fmt.Errorf("failed to stage write for %s: %w", path, err)
	}
	tmpName := tmp.Name()
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return fmt.Errorf("failed to stage write for %s: %w", path, err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("failed to stage write for %s: %w", path, err)
	}
	if info, err := os.Stat(path); err == nil {
		_ = os.Chmod(tmpName, info.Mode())
	}
	if err := os.Rename(tmpName, path); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("failed to replace %s: %w", path, err)
	}
	return nil
}
