package rules

import (
	"fmt"
	"strings"

	"github.com/stellar-eng/excelsior/plan"
	"github.com/stellar-eng/excelsior/pyast"
)

const (
	codeMissingTypeHint = "W9015"
	codeBannedAny       = "W9016"
)

const inferenceFailedReason = "Inference failed: Type could not be determined from context or stubs."
const bannedAnyReason = "Injection aborted: banned Any"

// TypeHintRule enforces W9015: parameters and returns without annotations.
// Violations are fixable only when the oracle resolves a specific, non-Any
// type.
type TypeHintRule struct{}

func NewTypeHintRule() *TypeHintRule { return &TypeHintRule{} }

func (r *TypeHintRule) Code() string { return codeMissingTypeHint }
func (r *TypeHintRule) Description() string {
	return "All function and method signatures must be fully type-hinted."
}

func (r *TypeHintRule) Subscriptions() []pyast.NodeKind {
	return []pyast.NodeKind{pyast.KindFunctionDef, pyast.KindAsyncFunctionDef}
}

func (r *TypeHintRule) Check(ctx *Context, node *pyast.Node) []Violation {
	mod := node.Module()
	if mod == nil || IsTestModule(mod) {
		return nil
	}
	var out []Violation
	if node.Returns == nil {
		v := ctx.Violation(codeMissingTypeHint, node, node.Name,
			fmt.Sprintf("return type in %s signature.", node.Name))
		inferred := inferredReturnType(ctx, node)
		if inferred == "" {
			v.Fixable = false
			v.FixFailureReason = inferenceFailedReason
		}
		out = append(out, v)
	}
	if node.Arguments != nil {
		isMethod := node.IsMethod()
		for i, param := range node.Arguments.Children {
			if i == 0 && isMethod && (param.Name == "self" || param.Name == "cls") {
				continue
			}
			if param.Annotation != nil || param.Name == "" {
				continue
			}
			v := ctx.Violation(codeMissingTypeHint, param, param.Name,
				fmt.Sprintf("parameter '%s' in %s signature.", param.Name, node.Name))
			if inferredParamType(ctx, param) == "" {
				v.Fixable = false
				v.FixFailureReason = inferenceFailedReason
			}
			out = append(out, v)
		}
	}
	return out
}

// inferredReturnType resolves the repairable return type of a function;
// __init__ always annotates to None.
func inferredReturnType(ctx *Context, fn *pyast.Node) string {
	if fn.Name == "__init__" {
		return "None"
	}
	q := ctx.Oracle.InferFunctionReturn(fn)
	if q == "typing.Any" {
		return ""
	}
	return q
}

func inferredParamType(ctx *Context, param *pyast.Node) string {
	if param.Default == nil {
		return ""
	}
	q := ctx.Oracle.InferExpr(param.Default)
	if q == "typing.Any" || q == "None" {
		// A bare None default cannot pin the parameter's real type.
		return ""
	}
	return q
}

// TypeHintFixer plans W9015 repairs.
type TypeHintFixer struct{}

func NewTypeHintFixer() *TypeHintFixer { return &TypeHintFixer{} }

// Fix returns annotation-injection plans for a W9015 violation, or a concrete
// failure reason when inference did not produce a usable type.
func (f *TypeHintFixer) Fix(ctx *Context, v Violation) ([]plan.Plan, string) {
	node := v.Node
	if node == nil {
		return nil, inferenceFailedReason
	}
	switch node.Kind {
	case pyast.KindFunctionDef, pyast.KindAsyncFunctionDef:
		q := inferredReturnType(ctx, node)
		if q == "" {
			return nil, inferenceFailedReason
		}
		if q == "typing.Any" {
			return nil, bannedAnyReason
		}
		if node.Name == "__init__" {
			return []plan.Plan{plan.NoneReturn(v.Path, node.Name, node.Line)}, ""
		}
		return annotationPlans(v.Path, q, func(rendered string) plan.Plan {
			return plan.ReturnType(v.Path, node.Name, node.Line, rendered)
		})
	case pyast.KindAssignName:
		fn := node.EnclosingFunction()
		if fn == nil {
			return nil, inferenceFailedReason
		}
		q := inferredParamType(ctx, node)
		if q == "" {
			return nil, inferenceFailedReason
		}
		if q == "typing.Any" {
			return nil, bannedAnyReason
		}
		return annotationPlans(v.Path, q, func(rendered string) plan.Plan {
			return plan.ParameterType(v.Path, fn.Name, fn.Line, node.Name, rendered)
		})
	}
	return nil, inferenceFailedReason
}

// annotationPlans renders a qualified name into Python annotation source and
// pairs the edit with an import plan when the type is not a builtin.
func annotationPlans(path, qname string, build func(string) plan.Plan) ([]plan.Plan, string) {
	rendered, importModule, importName := renderAnnotation(qname)
	if rendered == "" {
		return nil, inferenceFailedReason
	}
	plans := []plan.Plan{build(rendered)}
	if importModule != "" {
		plans = append(plans, plan.Import(path, importModule, importName))
	}
	return plans, ""
}

// renderAnnotation maps a qname to annotation text plus the import it needs.
func renderAnnotation(qname string) (rendered, importModule, importName string) {
	if qname == "None" {
		return "None", "", ""
	}
	if strings.HasPrefix(qname, "builtins.") {
		return strings.TrimPrefix(qname, "builtins."), "", ""
	}
	idx := strings.LastIndex(qname, ".")
	if idx < 0 {
		return qname, "", ""
	}
	return qname[idx+1:], qname[:idx], qname[idx+1:]
}

// BannedAnyRule enforces W9016: annotations resolving to Any.
type BannedAnyRule struct{}

func NewBannedAnyRule() *BannedAnyRule { return &BannedAnyRule{} }

func (r *BannedAnyRule) Code() string { return codeBannedAny }
func (r *BannedAnyRule) Description() string {
	return "Any erases the type contract."
}

func (r *BannedAnyRule) Subscriptions() []pyast.NodeKind {
	return []pyast.NodeKind{pyast.KindFunctionDef, pyast.KindAsyncFunctionDef, pyast.KindAnnAssign}
}

func (r *BannedAnyRule) Check(ctx *Context, node *pyast.Node) []Violation {
	mod := node.Module()
	if mod == nil || IsTestModule(mod) {
		return nil
	}
	var out []Violation
	flag := func(annotation *pyast.Node, what string) {
		if annotation == nil {
			return
		}
		if isAnyAnnotation(annotation) {
			out = append(out, ctx.Violation(codeBannedAny, annotation, what, what))
		}
	}
	switch node.Kind {
	case pyast.KindAnnAssign:
		target := ""
		if len(node.Targets) > 0 {
			target = node.Targets[0].DottedName()
		}
		flag(node.Annotation, target)
	default:
		flag(node.Returns, node.Name+" return")
		if node.Arguments != nil {
			for _, param := range node.Arguments.Children {
				flag(param.Annotation, param.Name)
			}
		}
	}
	return out
}

func isAnyAnnotation(annotation *pyast.Node) bool {
	switch annotation.Kind {
	case pyast.KindName:
		return annotation.Name == "Any"
	case pyast.KindAttribute:
		return annotation.DottedName() == "typing.Any"
	case pyast.KindSubscript:
		// Containers of Any still leak Any.
		for _, child := range annotation.Children {
			if child != annotation.Expr && isAnyAnnotation(child) {
				return true
			}
		}
	}
	return false
}
