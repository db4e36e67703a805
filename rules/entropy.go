package rules

import (
	"regexp"
	"sort"

	"github.com/stellar-eng/excelsior/pyast"
)

const codeEntropy = "W9030"

var identifierLiteral = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]{2,}$`)

// entropySite is one recorded definition-context occurrence.
type entropySite struct {
	path string
	line int
	col  int
}

// EntropyRule enforces W9030: the same identifier literal appearing in
// definition contexts across two or more files. Per-file recording happens
// during the walk; the reduction is a final single-threaded step, so the rule
// must only run its Finish after every file of the pass was collected.
type EntropyRule struct {
	sites map[string][]entropySite
}

func NewEntropyRule() *EntropyRule {
	return &EntropyRule{sites: map[string][]entropySite{}}
}

func (r *EntropyRule) Code() string { return codeEntropy }
func (r *EntropyRule) Description() string {
	return "Scattered identifier definitions accrete entropy."
}

// RecordModule accumulates identifier literals found in definition contexts
// (list/set elements and dict keys, per configuration).
func (r *EntropyRule) RecordModule(ctx *Context, mod *pyast.Module) {
	if IsTestModule(mod) {
		return
	}
	contexts := map[string]bool{}
	for _, c := range ctx.Config.EntropyContexts {
		contexts[c] = true
	}
	record := func(node *pyast.Node) {
		if node.Kind != pyast.KindConst || node.Const != pyast.ConstString {
			return
		}
		if !identifierLiteral.MatchString(node.Value) {
			return
		}
		r.sites[node.Value] = append(r.sites[node.Value], entropySite{
			path: mod.Path,
			line: node.Line,
			col:  node.Col,
		})
	}
	mod.Root.Walk(func(node *pyast.Node) bool {
		switch node.Kind {
		case pyast.KindList, pyast.KindSet:
			if contexts["list"] && node.Kind == pyast.KindList || contexts["set"] && node.Kind == pyast.KindSet {
				for _, child := range node.Children {
					record(child)
				}
			}
		case pyast.KindDict:
			if contexts["dict"] {
				// Children alternate key, value; keys are the even slots.
				for i := 0; i < len(node.Children); i += 2 {
					record(node.Children[i])
				}
			}
		}
		return true
	})
}

// Finish reduces the accumulators: identifiers defined in two or more files
// yield one violation anchored at the first occurrence in sort order.
func (r *EntropyRule) Finish(ctx *Context) []Violation {
	var idents []string
	for ident, sites := range r.sites {
		files := map[string]bool{}
		for _, site := range sites {
			files[site.path] = true
		}
		if len(files) >= 2 {
			idents = append(idents, ident)
		}
	}
	sort.Strings(idents)
	var out []Violation
	for _, ident := range idents {
		sites := r.sites[ident]
		sort.Slice(sites, func(i, j int) bool {
			if sites[i].path != sites[j].path {
				return sites[i].path < sites[j].path
			}
			return sites[i].line < sites[j].line
		})
		files := map[string]bool{}
		for _, site := range sites {
			files[site.path] = true
		}
		first := sites[0]
		out = append(out, Violation{
			Code:    codeEntropy,
			Message: ctx.Registry.Message(codeEntropy, ident, len(files)),
			Path:    first.path,
			Line:    first.line,
			Col:     first.col,
			Symbol:  ident,
		})
	}
	return out
}
