package rules

import (
	"strings"

	"github.com/stellar-eng/excelsior/layers"
	"github.com/stellar-eng/excelsior/pyast"
)

const (
	codeDelegation         = "W9005"
	codeNakedReturn        = "W9007"
	codeMissingAbstraction = "W9009"
	codeTopLevelFunction   = "W9018"
	codeGlobalState        = "W9020"
	codeExceptionHygiene   = "W9035"
)

// defaultRawTypes are raw I/O handle type names that must not leak out of
// gateways.
var defaultRawTypes = map[string]bool{
	"Cursor":     true,
	"Session":    true,
	"Response":   true,
	"Engine":     true,
	"Connection": true,
	"Result":     true,
	"Row":        true,
}

func rawTypeSet(ctx *Context) map[string]bool {
	out := make(map[string]bool, len(defaultRawTypes)+len(ctx.Config.RawTypes))
	for name := range defaultRawTypes {
		out[name] = true
	}
	for _, name := range ctx.Config.RawTypes {
		out[name] = true
	}
	return out
}

// DelegationRule enforces W9005: if/elif ladders whose only action is
// returning a call.
type DelegationRule struct{}

func NewDelegationRule() *DelegationRule { return &DelegationRule{} }

func (r *DelegationRule) Code() string { return codeDelegation }
func (r *DelegationRule) Description() string {
	return "Delegation ladders should become dispatch tables."
}

func (r *DelegationRule) Subscriptions() []pyast.NodeKind {
	return []pyast.NodeKind{pyast.KindIf}
}

func (r *DelegationRule) Check(ctx *Context, node *pyast.Node) []Violation {
	// Only evaluate chain heads: elif nodes are visited through their parent.
	if node.Parent != nil && node.Parent.Kind == pyast.KindIf {
		return nil
	}
	branches := 0
	curr := node
	for curr != nil {
		if !isDelegatingBranch(curr.Body) {
			return nil
		}
		branches++
		var next *pyast.Node
		for _, orElse := range curr.OrElse {
			if orElse.Kind == pyast.KindIf {
				next = orElse
			} else {
				// A plain else branch must delegate too.
				if !isDelegatingBranch(curr.OrElse) {
					return nil
				}
			}
		}
		curr = next
	}
	if branches < 2 {
		return nil
	}
	return []Violation{ctx.Violation(codeDelegation, node, "delegation", branches)}
}

func isDelegatingBranch(body []*pyast.Node) bool {
	if len(body) != 1 {
		return false
	}
	stmt := body[0]
	return stmt.Kind == pyast.KindReturn && stmt.ValueNode != nil && stmt.ValueNode.Kind == pyast.KindCall
}

// NakedReturnRule enforces W9007: raw I/O objects returned from silent or
// repository code.
type NakedReturnRule struct{}

func NewNakedReturnRule() *NakedReturnRule { return &NakedReturnRule{} }

func (r *NakedReturnRule) Code() string { return codeNakedReturn }
func (r *NakedReturnRule) Description() string {
	return "Repository methods must return Domain Entities, not raw I/O objects."
}

func (r *NakedReturnRule) Subscriptions() []pyast.NodeKind {
	return []pyast.NodeKind{pyast.KindReturn}
}

func (r *NakedReturnRule) Check(ctx *Context, node *pyast.Node) []Violation {
	if node.ValueNode == nil {
		return nil
	}
	mod := node.Module()
	if mod == nil || IsTestModule(mod) {
		return nil
	}
	layer := ctx.LayerOf(mod)
	switch layer {
	case layers.Domain, layers.UseCase:
	case layers.Infrastructure:
		// Only repository-shaped infrastructure is held to the entity rule.
		if !r.inRepository(node) {
			return nil
		}
	default:
		return nil
	}
	raw := rawTypeSet(ctx)
	typeName := lastSegment(ctx.Oracle.InferExpr(node.ValueNode))
	if typeName == "" && node.ValueNode.Kind == pyast.KindCall {
		typeName = lastSegment(node.ValueNode.CallName())
	}
	if typeName == "" || !raw[typeName] {
		return nil
	}
	return []Violation{ctx.Violation(codeNakedReturn, node, typeName, typeName)}
}

func (r *NakedReturnRule) inRepository(node *pyast.Node) bool {
	if class := node.EnclosingClass(); class != nil && strings.HasSuffix(class.Name, "Repository") {
		return true
	}
	mod := node.Module()
	return mod != nil && strings.Contains(mod.Name, "repositor")
}

func lastSegment(qname string) string {
	if qname == "" {
		return ""
	}
	parts := strings.Split(qname, ".")
	return parts[len(parts)-1]
}

// MissingAbstractionRule enforces W9009: raw infrastructure references held
// as attributes in UseCase code.
type MissingAbstractionRule struct{}

func NewMissingAbstractionRule() *MissingAbstractionRule { return &MissingAbstractionRule{} }

func (r *MissingAbstractionRule) Code() string { return codeMissingAbstraction }
func (r *MissingAbstractionRule) Description() string {
	return "Use Cases cannot hold references to raw infrastructure objects."
}

func (r *MissingAbstractionRule) Subscriptions() []pyast.NodeKind {
	return []pyast.NodeKind{pyast.KindAssign}
}

func (r *MissingAbstractionRule) Check(ctx *Context, node *pyast.Node) []Violation {
	mod := node.Module()
	if mod == nil || IsTestModule(mod) {
		return nil
	}
	if ctx.LayerOf(mod) != layers.UseCase {
		return nil
	}
	if len(node.Targets) == 0 || node.ValueNode == nil {
		return nil
	}
	raw := rawTypeSet(ctx)
	typeName := lastSegment(ctx.Oracle.InferExpr(node.ValueNode))
	if typeName == "" && node.ValueNode.Kind == pyast.KindCall {
		typeName = lastSegment(node.ValueNode.CallName())
	}
	if typeName == "" {
		return nil
	}
	if !raw[typeName] && !strings.HasSuffix(typeName, "Client") {
		return nil
	}
	target := node.Targets[0].DottedName()
	return []Violation{ctx.Violation(codeMissingAbstraction, node, target, target, typeName)}
}

// TopLevelFunctionRule enforces W9018: module-level functions outside entry
// modules.
type TopLevelFunctionRule struct{}

func NewTopLevelFunctionRule() *TopLevelFunctionRule { return &TopLevelFunctionRule{} }

func (r *TopLevelFunctionRule) Code() string { return codeTopLevelFunction }
func (r *TopLevelFunctionRule) Description() string {
	return "Module-level functions are confined to entry modules."
}

func (r *TopLevelFunctionRule) Subscriptions() []pyast.NodeKind {
	return []pyast.NodeKind{pyast.KindFunctionDef, pyast.KindAsyncFunctionDef}
}

func (r *TopLevelFunctionRule) Check(ctx *Context, node *pyast.Node) []Violation {
	if node.Parent == nil || node.Parent.Kind != pyast.KindModule {
		return nil
	}
	mod := node.Module()
	if mod == nil || IsTestModule(mod) {
		return nil
	}
	if ctx.Config.IsEntryModule(mod.Name) {
		return nil
	}
	if strings.HasPrefix(node.Name, "_") {
		return nil
	}
	return []Violation{ctx.Violation(codeTopLevelFunction, node, node.Name, node.Name)}
}

// GlobalStateRule enforces W9020: use of global declarations.
type GlobalStateRule struct{}

func NewGlobalStateRule() *GlobalStateRule { return &GlobalStateRule{} }

func (r *GlobalStateRule) Code() string { return codeGlobalState }
func (r *GlobalStateRule) Description() string {
	return "Global declarations introduce hidden shared state."
}

func (r *GlobalStateRule) Subscriptions() []pyast.NodeKind {
	return []pyast.NodeKind{pyast.KindGlobal}
}

func (r *GlobalStateRule) Check(ctx *Context, node *pyast.Node) []Violation {
	mod := node.Module()
	if mod == nil || IsTestModule(mod) {
		return nil
	}
	return []Violation{ctx.Violation(codeGlobalState, node, node.Name, node.Name)}
}

// ExceptionHygieneRule enforces W9035: bare exception handlers.
type ExceptionHygieneRule struct{}

func NewExceptionHygieneRule() *ExceptionHygieneRule { return &ExceptionHygieneRule{} }

func (r *ExceptionHygieneRule) Code() string { return codeExceptionHygiene }
func (r *ExceptionHygieneRule) Description() string {
	return "Handlers must name the exceptions they expect."
}

func (r *ExceptionHygieneRule) Subscriptions() []pyast.NodeKind {
	return []pyast.NodeKind{pyast.KindExceptHandler}
}

func (r *ExceptionHygieneRule) Check(ctx *Context, node *pyast.Node) []Violation {
	if node.Test != nil {
		return nil
	}
	return []Violation{ctx.Violation(codeExceptionHygiene, node, "bare-except")}
}
