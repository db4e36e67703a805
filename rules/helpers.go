package rules

import (
	"path/filepath"
	"strings"

	"github.com/stellar-eng/excelsior/pyast"
)

func isTestPath(path string) bool {
	normalized := filepath.ToSlash(path)
	base := filepath.Base(normalized)
	if strings.HasPrefix(base, "test_") || strings.HasSuffix(base, "_test.py") {
		return true
	}
	for _, part := range strings.Split(normalized, "/") {
		if part == "tests" || part == "test" {
			return true
		}
	}
	return false
}

// receiverIsSelf reports whether an attribute access is rooted at self/cls.
func receiverIsSelf(expr *pyast.Node) bool {
	if expr == nil {
		return false
	}
	if expr.Kind == pyast.KindName {
		return expr.Name == "self" || expr.Name == "cls"
	}
	return false
}

// annotationTypeName returns the trailing identifier of an annotation
// expression: `abc.OrderRepo` and `OrderRepo` both yield "OrderRepo";
// subscripted generics unwrap to their base.
func annotationTypeName(annotation *pyast.Node) string {
	if annotation == nil {
		return ""
	}
	switch annotation.Kind {
	case pyast.KindName:
		return annotation.Name
	case pyast.KindAttribute:
		return annotation.Name
	case pyast.KindSubscript:
		return annotationTypeName(annotation.Expr)
	case pyast.KindConst:
		if annotation.Const == pyast.ConstString {
			parts := strings.Split(strings.TrimSpace(annotation.Value), ".")
			return parts[len(parts)-1]
		}
	}
	return ""
}

// constructorOf returns the __init__ FunctionDef of a class, or nil.
func constructorOf(class *pyast.Node) *pyast.Node {
	for _, stmt := range class.Body {
		if (stmt.Kind == pyast.KindFunctionDef || stmt.Kind == pyast.KindAsyncFunctionDef) && stmt.Name == "__init__" {
			return stmt
		}
	}
	return nil
}

// selfAttributeTypeName resolves the declared type of `self.<name>` by
// scanning the enclosing class constructor for an annotated parameter or an
// annotated assignment binding that attribute.
func selfAttributeTypeName(class *pyast.Node, attr string) string {
	if class == nil {
		return ""
	}
	ctor := constructorOf(class)
	if ctor == nil {
		return ""
	}
	for _, assign := range ctor.NodesOfKind(pyast.KindAssign) {
		name := assignedSelfAttr(assign)
		if name != attr {
			continue
		}
		if assign.ValueNode != nil && assign.ValueNode.Kind == pyast.KindName {
			if param := lookupParam(ctor, assign.ValueNode.Name); param != nil {
				return annotationTypeName(param.Annotation)
			}
		}
	}
	for _, assign := range ctor.NodesOfKind(pyast.KindAnnAssign) {
		if assignedSelfAttr(assign) == attr {
			return annotationTypeName(assign.Annotation)
		}
	}
	return ""
}

// assignedSelfAttr returns the attribute name when the statement assigns
// `self.<name>`, else "".
func assignedSelfAttr(assign *pyast.Node) string {
	for _, target := range assign.Targets {
		if target.Kind == pyast.KindAssignAttr && receiverIsSelf(target.Expr) {
			return target.Name
		}
	}
	return ""
}

func lookupParam(fn *pyast.Node, name string) *pyast.Node {
	if fn.Arguments == nil {
		return nil
	}
	for _, param := range fn.Arguments.Children {
		if param.Name == name {
			return param
		}
	}
	return nil
}

// isProtocolClass reports whether a class declares itself a Protocol.
func isProtocolClass(class *pyast.Node) bool {
	for _, base := range class.Bases {
		name := base.DottedName()
		if name == "Protocol" || strings.HasSuffix(name, ".Protocol") {
			return true
		}
		if base.Kind == pyast.KindSubscript && base.Expr != nil {
			inner := base.Expr.DottedName()
			if inner == "Protocol" || strings.HasSuffix(inner, ".Protocol") {
				return true
			}
		}
	}
	return false
}

// isDataclass reports whether the class carries a dataclass decorator.
func isDataclass(class *pyast.Node) bool {
	return class.HasDecorator("dataclass")
}

// isFrozenDataclass reports whether @dataclass(frozen=True) is present.
func isFrozenDataclass(class *pyast.Node) bool {
	dec := class.Decorator("dataclass")
	if dec == nil || dec.Kind != pyast.KindCall {
		return false
	}
	for _, kw := range dec.Keywords {
		if kw.Name == "frozen" && kw.ValueNode != nil &&
			kw.ValueNode.Kind == pyast.KindConst && kw.ValueNode.Value == "True" {
			return true
		}
	}
	return false
}

// classMethods returns the FunctionDefs declared directly in the class body.
func classMethods(class *pyast.Node) []*pyast.Node {
	var out []*pyast.Node
	for _, stmt := range class.Body {
		if stmt.Kind == pyast.KindFunctionDef || stmt.Kind == pyast.KindAsyncFunctionDef {
			out = append(out, stmt)
		}
	}
	return out
}

// baseNames returns the dotted names of a class's bases.
func baseNames(class *pyast.Node) []string {
	var out []string
	for _, base := range class.Bases {
		if name := base.DottedName(); name != "" {
			out = append(out, name)
		} else if base.Kind == pyast.KindSubscript && base.Expr != nil {
			if inner := base.Expr.DottedName(); inner != "" {
				out = append(out, inner)
			}
		}
	}
	return out
}
