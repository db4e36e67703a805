package rules

import (
	"strings"

	"github.com/stellar-eng/excelsior/oracle"
	"github.com/stellar-eng/excelsior/pyast"
)

const (
	codeLawOfDemeter   = "W9006"
	codeUninferableDep = "W9019"
	minChainLength     = 2
	maxSelfChainLength = 2
)

// DemeterRule enforces W9006 (Law of Demeter) and W9019 (uninferable
// dependency). Chains through fluent calls, trusted authorities, primitives
// and locally known-primitive bindings are excluded.
type DemeterRule struct{}

func NewDemeterRule() *DemeterRule { return &DemeterRule{} }

func (r *DemeterRule) Code() string { return codeLawOfDemeter }
func (r *DemeterRule) Description() string {
	return "Objects should only talk to their immediate collaborators."
}

func (r *DemeterRule) Subscriptions() []pyast.NodeKind {
	return []pyast.NodeKind{pyast.KindCall, pyast.KindAttribute}
}

func (r *DemeterRule) Check(ctx *Context, node *pyast.Node) []Violation {
	mod := node.Module()
	if mod == nil || IsTestModule(mod) {
		return nil
	}
	if !isChainHead(node) {
		return nil
	}
	var receiver *pyast.Node
	switch node.Kind {
	case pyast.KindCall:
		if node.Func == nil || node.Func.Kind != pyast.KindAttribute {
			return nil
		}
		receiver = node.Func.Expr
	case pyast.KindAttribute:
		receiver = node.Expr
	}
	if chainLinks(node) < minChainLength {
		return nil
	}
	base := oracle.RootReceiver(node)
	if r.isExcluded(ctx, node, receiver, base) {
		return nil
	}
	if v, ok := r.uninferableDependency(ctx, node, base); ok {
		return []Violation{v}
	}
	chain := chainText(node)
	return []Violation{ctx.Violation(codeLawOfDemeter, node, chain, chain)}
}

// isChainHead filters to the outermost node of an access chain so nested
// attributes do not fire once per link.
func isChainHead(node *pyast.Node) bool {
	parent := node.Parent
	if parent == nil {
		return true
	}
	switch parent.Kind {
	case pyast.KindAttribute:
		return false
	case pyast.KindCall:
		return parent.Func != node
	}
	return true
}

// chainLinks counts attribute hops below the node, the node included.
func chainLinks(node *pyast.Node) int {
	count := 0
	curr := node
	for curr != nil {
		switch curr.Kind {
		case pyast.KindAttribute:
			count++
			curr = curr.Expr
		case pyast.KindCall:
			curr = curr.Func
		default:
			return count
		}
	}
	return count
}

// chainText renders the violating chain without its final hop for pure
// attribute access, and with () markers for call chains.
func chainText(node *pyast.Node) string {
	if node.Kind == pyast.KindAttribute && node.Expr != nil {
		if dotted := node.Expr.DottedName(); dotted != "" {
			return dotted
		}
	}
	var parts []string
	curr := node
	calls := map[*pyast.Node]bool{}
	for curr != nil {
		switch curr.Kind {
		case pyast.KindCall:
			calls[curr.Func] = true
			curr = curr.Func
		case pyast.KindAttribute:
			name := curr.Name
			if calls[curr] {
				name += "()"
			}
			parts = append(parts, name)
			curr = curr.Expr
		case pyast.KindName:
			parts = append(parts, curr.Name)
			curr = nil
		default:
			curr = nil
		}
	}
	for i, j := 0, len(parts)-1; i < j; i, j = i+1, j-1 {
		parts[i], parts[j] = parts[j], parts[i]
	}
	text := strings.Join(parts, ".")
	return strings.TrimSuffix(text, "()")
}

func (r *DemeterRule) isExcluded(ctx *Context, node, receiver, base *pyast.Node) bool {
	if node.Kind == pyast.KindCall {
		if ctx.Oracle.IsTrustedAuthorityCall(node) {
			return true
		}
		if ctx.Oracle.IsFluentCall(node) {
			return true
		}
	}
	// Short self/cls chains are ordinary delegation.
	if base != nil && base.Kind == pyast.KindName && (base.Name == "self" || base.Name == "cls") &&
		chainLinks(node) <= maxSelfChainLength {
		return true
	}
	if receiver != nil {
		if q := ctx.Oracle.InferExpr(receiver); q != "" {
			if ctx.Oracle.IsPrimitive(q) || ctx.Oracle.IsStdlibQName(q) {
				return true
			}
		}
	}
	if base != nil {
		if base.Kind == pyast.KindName {
			if ctx.Oracle.IsStdlibModule(base.Name) {
				return true
			}
			for _, root := range ctx.Config.AllowedLodRoots {
				if base.Name == root {
					return true
				}
			}
		}
		if q := ctx.Oracle.InferExpr(base); q != "" {
			if ctx.Oracle.IsPrimitive(q) || ctx.Oracle.IsStdlibQName(q) {
				return true
			}
			top := strings.SplitN(q, ".", 2)[0]
			for _, root := range ctx.Config.AllowedLodRoots {
				if top == root {
					return true
				}
			}
		}
	}
	return false
}

// uninferableDependency raises W9019 when the chain base is an imported
// external module with neither a stub nor an inference result.
func (r *DemeterRule) uninferableDependency(ctx *Context, node, base *pyast.Node) (Violation, bool) {
	if base == nil || base.Kind != pyast.KindName {
		return Violation{}, false
	}
	if ctx.Oracle.InferExpr(base) != "" {
		return Violation{}, false
	}
	def := base.Lookup(base.Name)
	if def == nil || (def.Kind != pyast.KindImport && def.Kind != pyast.KindImportFrom) {
		return Violation{}, false
	}
	moduleName := def.ModuleName
	if moduleName == "" {
		for _, imp := range def.Imports {
			bound := imp.Alias
			if bound == "" {
				bound = strings.SplitN(imp.Name, ".", 2)[0]
			}
			if bound == base.Name {
				moduleName = imp.Name
			}
		}
	}
	if moduleName == "" {
		return Violation{}, false
	}
	top := strings.SplitN(moduleName, ".", 2)[0]
	if ctx.Oracle.IsStdlibModule(top) || ctx.Oracle.HasStub(top) {
		return Violation{}, false
	}
	if isProjectModule(ctx, moduleName) {
		return Violation{}, false
	}
	stubPath := strings.ReplaceAll(moduleName, ".", "/")
	return ctx.Violation(codeUninferableDep, node, moduleName, stubPath), true
}

// isProjectModule reports whether the dotted module belongs to the governed
// project, judged by the configured layer_map tops.
func isProjectModule(ctx *Context, moduleName string) bool {
	for prefix := range ctx.Config.LayerMap {
		top := strings.SplitN(prefix, ".", 2)[0]
		if moduleName == top || strings.HasPrefix(moduleName, top+".") {
			return true
		}
	}
	return false
}
