package rules

import (
	"github.com/stellar-eng/excelsior/pyast"
)

const (
	codeComplexity           = "W9032"
	codeInterfaceSegregation = "W9033"
)

// ComplexityRule enforces W9032: cyclomatic complexity above the threshold.
type ComplexityRule struct{}

func NewComplexityRule() *ComplexityRule { return &ComplexityRule{} }

func (r *ComplexityRule) Code() string { return codeComplexity }
func (r *ComplexityRule) Description() string {
	return "Branch-heavy methods hide strategies."
}

func (r *ComplexityRule) Subscriptions() []pyast.NodeKind {
	return []pyast.NodeKind{pyast.KindFunctionDef, pyast.KindAsyncFunctionDef}
}

func (r *ComplexityRule) Check(ctx *Context, node *pyast.Node) []Violation {
	mod := node.Module()
	if mod == nil || IsTestModule(mod) {
		return nil
	}
	complexity := cyclomaticComplexity(node)
	if complexity <= ctx.Config.ComplexityThreshold {
		return nil
	}
	return []Violation{ctx.Violation(codeComplexity, node, node.Name,
		node.Name, complexity, ctx.Config.ComplexityThreshold)}
}

// cyclomaticComplexity counts decision points within the function body,
// excluding nested function definitions.
func cyclomaticComplexity(fn *pyast.Node) int {
	complexity := 1
	var visit func(node *pyast.Node)
	visit = func(node *pyast.Node) {
		if node != fn {
			switch node.Kind {
			case pyast.KindFunctionDef, pyast.KindAsyncFunctionDef, pyast.KindLambda:
				return
			case pyast.KindIf, pyast.KindFor, pyast.KindWhile, pyast.KindExceptHandler,
				pyast.KindIfExp, pyast.KindBoolOp, pyast.KindAssert, pyast.KindComprehension:
				complexity++
			}
		}
		for _, child := range node.Children {
			visit(child)
		}
	}
	visit(fn)
	return complexity
}

// InterfaceSegregationRule enforces W9033: fat Protocols.
type InterfaceSegregationRule struct{}

func NewInterfaceSegregationRule() *InterfaceSegregationRule { return &InterfaceSegregationRule{} }

func (r *InterfaceSegregationRule) Code() string { return codeInterfaceSegregation }
func (r *InterfaceSegregationRule) Description() string {
	return "Clients should not depend on methods they do not use."
}

func (r *InterfaceSegregationRule) Subscriptions() []pyast.NodeKind {
	return []pyast.NodeKind{pyast.KindClassDef}
}

func (r *InterfaceSegregationRule) Check(ctx *Context, node *pyast.Node) []Violation {
	mod := node.Module()
	if mod == nil || IsTestModule(mod) {
		return nil
	}
	if !isProtocolClass(node) {
		return nil
	}
	count := 0
	for _, method := range classMethods(node) {
		if method.Name == "__init__" {
			continue
		}
		count++
	}
	if count <= ctx.Config.InterfaceSegregationLimit {
		return nil
	}
	return []Violation{ctx.Violation(codeInterfaceSegregation, node, node.Name,
		node.Name, count, ctx.Config.InterfaceSegregationLimit)}
}
