package rules

import (
	"strings"

	"github.com/stellar-eng/excelsior/layers"
	"github.com/stellar-eng/excelsior/pyast"
)

const (
	codeDIViolation          = "W9301"
	codeConstructorInjection = "W9034"
)

// infraSuffixes mark class names owned by the Infrastructure layer.
var infraSuffixes = []string{"Gateway", "Repository", "Client", "Adapter"}

func hasInfraSuffix(name string) bool {
	for _, suffix := range infraSuffixes {
		if strings.HasSuffix(name, suffix) {
			return true
		}
	}
	return false
}

// DIRule enforces W9301: direct instantiation of infrastructure classes
// inside UseCase code.
type DIRule struct{}

func NewDIRule() *DIRule { return &DIRule{} }

func (r *DIRule) Code() string { return codeDIViolation }
func (r *DIRule) Description() string {
	return "Infrastructure collaborators are injected, not instantiated."
}

func (r *DIRule) Subscriptions() []pyast.NodeKind {
	return []pyast.NodeKind{pyast.KindCall}
}

func (r *DIRule) Check(ctx *Context, node *pyast.Node) []Violation {
	mod := node.Module()
	if mod == nil || IsTestModule(mod) {
		return nil
	}
	if ctx.LayerOf(mod) != layers.UseCase {
		return nil
	}
	callName := lastSegment(node.CallName())
	if callName == "" || !hasInfraSuffix(callName) {
		return nil
	}
	// Calls on self/cls are method calls, not class instantiation.
	if node.Func != nil && node.Func.Kind == pyast.KindAttribute && node.Func.Expr != nil &&
		receiverIsSelf(node.Func.Expr) {
		return nil
	}
	return []Violation{ctx.Violation(codeDIViolation, node, callName, callName)}
}

// ConstructorInjectionRule enforces W9034: __init__ parameters typed to
// concrete Infrastructure classes instead of Protocols.
type ConstructorInjectionRule struct{}

func NewConstructorInjectionRule() *ConstructorInjectionRule { return &ConstructorInjectionRule{} }

func (r *ConstructorInjectionRule) Code() string { return codeConstructorInjection }
func (r *ConstructorInjectionRule) Description() string {
	return "Constructors accept Protocols, not concrete infrastructure types."
}

func (r *ConstructorInjectionRule) Subscriptions() []pyast.NodeKind {
	return []pyast.NodeKind{pyast.KindFunctionDef}
}

func (r *ConstructorInjectionRule) Check(ctx *Context, node *pyast.Node) []Violation {
	if node.Name != "__init__" || !node.IsMethod() {
		return nil
	}
	mod := node.Module()
	if mod == nil || IsTestModule(mod) {
		return nil
	}
	layer := ctx.LayerOf(mod)
	if layer != layers.UseCase && layer != layers.Domain {
		return nil
	}
	if node.Arguments == nil {
		return nil
	}
	var out []Violation
	for _, param := range node.Arguments.Children {
		typeName := annotationTypeName(param.Annotation)
		if typeName == "" || strings.HasSuffix(typeName, "Protocol") || strings.HasSuffix(typeName, "Port") {
			continue
		}
		if hasInfraSuffix(typeName) {
			out = append(out, ctx.Violation(codeConstructorInjection, param, param.Name, param.Name, typeName))
		}
	}
	return out
}
