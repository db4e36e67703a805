// Package oracle provides best-effort type resolution over the AST and the
// bundled stub files. Every query returns "" when a value is uninferable or
// ambiguous; callers must treat "" as unknown and never guess.
package oracle

import (
	"strings"

	"github.com/stellar-eng/excelsior/pyast"
)

// builtinTypeMap normalizes primitive aliases to canonical qualified names.
var builtinTypeMap = map[string]string{
	"str":      "builtins.str",
	"int":      "builtins.int",
	"float":    "builtins.float",
	"bool":     "builtins.bool",
	"bytes":    "builtins.bytes",
	"list":     "builtins.list",
	"dict":     "builtins.dict",
	"tuple":    "builtins.tuple",
	"set":      "builtins.set",
	"List":     "builtins.list",
	"Dict":     "builtins.dict",
	"Set":      "builtins.set",
	"Tuple":    "builtins.tuple",
	"Optional": "builtins.Optional",
	"Union":    "builtins.Union",
	"Any":      "typing.Any",
	"None":     "None",
}

var primitiveQNames = map[string]bool{
	"builtins.str":   true,
	"builtins.int":   true,
	"builtins.float": true,
	"builtins.bool":  true,
	"builtins.bytes": true,
	"builtins.list":  true,
	"builtins.dict":  true,
	"builtins.tuple": true,
	"builtins.set":   true,
	"None":           true,
}

// stdlibModules lists the standard-library top-level modules the engine
// treats as trusted authorities by default.
var stdlibModules = map[string]bool{
	"abc": true, "argparse": true, "ast": true, "asyncio": true, "base64": true,
	"collections": true, "contextlib": true, "copy": true, "csv": true,
	"dataclasses": true, "datetime": true, "decimal": true, "enum": true,
	"functools": true, "glob": true, "hashlib": true, "heapq": true, "io": true,
	"importlib": true, "inspect": true, "itertools": true, "json": true,
	"logging": true, "math": true, "os": true, "pathlib": true, "pickle": true,
	"random": true, "re": true, "shutil": true, "socket": true, "sqlite3": true,
	"string": true, "subprocess": true, "sys": true, "tempfile": true,
	"textwrap": true, "threading": true, "time": true, "tomllib": true,
	"traceback": true, "types": true, "typing": true, "unittest": true,
	"urllib": true, "uuid": true, "warnings": true, "weakref": true, "zlib": true,
}

// Oracle answers type queries over the AST, explicit annotations, literal
// inference and the bundled stubs, in that order.
type Oracle struct {
	stubs        *stubSet
	trustedRoots map[string]bool
}

// New creates an Oracle. trustedRoots extends the trusted-authority receiver
// registry (config allowed_lod_roots).
func New(trustedRoots []string) *Oracle {
	roots := make(map[string]bool, len(trustedRoots))
	for _, r := range trustedRoots {
		roots[r] = true
	}
	return &Oracle{stubs: newStubSet(), trustedRoots: roots}
}

// Normalize maps a primitive alias to its canonical qualified name.
func Normalize(name string) string {
	if q, ok := builtinTypeMap[name]; ok {
		return q
	}
	return name
}

// IsPrimitive reports whether qname is a builtin primitive or container.
func (o *Oracle) IsPrimitive(qname string) bool {
	return primitiveQNames[Normalize(qname)]
}

// IsStdlibQName reports whether the qualified name's top module is stdlib.
func (o *Oracle) IsStdlibQName(qname string) bool {
	top := qname
	if idx := strings.Index(top, "."); idx > 0 {
		top = top[:idx]
	}
	return top == "builtins" || stdlibModules[top]
}

// IsStdlibModule reports whether a top-level module name is stdlib.
func (o *Oracle) IsStdlibModule(name string) bool {
	return stdlibModules[name]
}

// AnnotationQName resolves a type annotation expression to a qualified name,
// or "" when the annotation cannot be interpreted.
func (o *Oracle) AnnotationQName(annotation *pyast.Node) string {
	if annotation == nil {
		return ""
	}
	switch annotation.Kind {
	case pyast.KindName:
		return Normalize(annotation.Name)
	case pyast.KindAttribute:
		return Normalize(annotation.DottedName())
	case pyast.KindSubscript:
		// Generic subscription resolves to the base container type.
		if annotation.Expr != nil {
			return o.AnnotationQName(annotation.Expr)
		}
	case pyast.KindConst:
		if annotation.Const == pyast.ConstString {
			return Normalize(strings.TrimSpace(annotation.Value))
		}
		if annotation.Const == pyast.ConstNone {
			return "None"
		}
	case pyast.KindBinOp:
		// PEP 604 unions are ambiguous for injection purposes.
		return ""
	}
	return ""
}

// InferExpr resolves the type of an expression to a qualified name, or "".
func (o *Oracle) InferExpr(node *pyast.Node) string {
	return o.inferExpr(node, 0)
}

const maxInferDepth = 8

func (o *Oracle) inferExpr(node *pyast.Node, depth int) string {
	if node == nil || depth > maxInferDepth {
		return ""
	}
	switch node.Kind {
	case pyast.KindConst:
		return o.literalQName(node)
	case pyast.KindJoinedStr:
		return "builtins.str"
	case pyast.KindList, pyast.KindListComp:
		return "builtins.list"
	case pyast.KindDict, pyast.KindDictComp:
		return "builtins.dict"
	case pyast.KindSet, pyast.KindSetComp:
		return "builtins.set"
	case pyast.KindTuple:
		return "builtins.tuple"
	case pyast.KindCompare, pyast.KindBoolOp:
		return "builtins.bool"
	case pyast.KindUnaryOp:
		if node.Value == "not" {
			return "builtins.bool"
		}
		if len(node.Children) == 1 {
			return o.inferExpr(node.Children[0], depth+1)
		}
	case pyast.KindBinOp:
		return o.inferBinOp(node, depth)
	case pyast.KindName:
		return o.inferName(node, depth)
	case pyast.KindCall:
		return o.InferCallReturn(node)
	case pyast.KindAttribute:
		return o.inferAttribute(node, depth)
	case pyast.KindIfExp:
		if len(node.Children) == 3 {
			left := o.inferExpr(node.Children[0], depth+1)
			right := o.inferExpr(node.Children[2], depth+1)
			if left != "" && left == right {
				return left
			}
		}
	case pyast.KindAwait:
		return ""
	}
	return ""
}

func (o *Oracle) literalQName(node *pyast.Node) string {
	switch node.Const {
	case pyast.ConstString:
		return "builtins.str"
	case pyast.ConstInt:
		return "builtins.int"
	case pyast.ConstFloat:
		return "builtins.float"
	case pyast.ConstBool:
		return "builtins.bool"
	case pyast.ConstBytes:
		return "builtins.bytes"
	case pyast.ConstNone:
		return "None"
	}
	return ""
}

func (o *Oracle) inferBinOp(node *pyast.Node, depth int) string {
	if len(node.Children) != 2 {
		return ""
	}
	left := o.inferExpr(node.Children[0], depth+1)
	right := o.inferExpr(node.Children[1], depth+1)
	if left == "" || right == "" {
		return ""
	}
	if left == right {
		return left
	}
	// int op float promotes.
	if (left == "builtins.int" && right == "builtins.float") ||
		(left == "builtins.float" && right == "builtins.int") {
		return "builtins.float"
	}
	return ""
}

func (o *Oracle) inferName(node *pyast.Node, depth int) string {
	def := node.Lookup(node.Name)
	if def == nil {
		return ""
	}
	switch def.Kind {
	case pyast.KindAssignName:
		if def.Annotation != nil {
			return o.AnnotationQName(def.Annotation)
		}
		// Parameter with a default but no annotation: infer from the default.
		if def.Default != nil {
			return o.inferExpr(def.Default, depth+1)
		}
		// Local assignment: infer from the assigned value.
		if parent := def.Parent; parent != nil {
			switch parent.Kind {
			case pyast.KindAnnAssign:
				return o.AnnotationQName(parent.Annotation)
			case pyast.KindAssign:
				return o.inferExpr(parent.ValueNode, depth+1)
			}
		}
	case pyast.KindImport, pyast.KindImportFrom:
		return ""
	case pyast.KindClassDef:
		return ""
	}
	return ""
}

func (o *Oracle) inferAttribute(node *pyast.Node, depth int) string {
	receiver := o.inferExpr(node.Expr, depth+1)
	if receiver == "" {
		return ""
	}
	return o.stubs.attributeType(receiver, node.Name)
}

// InferCallReturn resolves the return type of a call expression, or "".
func (o *Oracle) InferCallReturn(call *pyast.Node) string {
	if call == nil || call.Kind != pyast.KindCall || call.Func == nil {
		return ""
	}
	// Constructor-like builtin calls.
	if call.Func.Kind == pyast.KindName {
		if q, ok := builtinTypeMap[call.Func.Name]; ok && q != "None" {
			return q
		}
		// Locally defined function with a return annotation.
		if def := call.Func.Lookup(call.Func.Name); def != nil {
			switch def.Kind {
			case pyast.KindFunctionDef, pyast.KindAsyncFunctionDef:
				return o.AnnotationQName(def.Returns)
			case pyast.KindClassDef:
				return def.Name
			}
		}
	}
	// Stub lookup by dotted callee, e.g. os.path.join.
	if dotted := call.Func.DottedName(); dotted != "" {
		if q := o.stubs.functionReturn(dotted); q != "" {
			return q
		}
	}
	// Method call: resolve receiver type then the stubbed method return.
	if call.Func.Kind == pyast.KindAttribute {
		receiver := o.inferExpr(call.Func.Expr, 1)
		if receiver != "" {
			if q := o.stubs.methodReturn(receiver, call.Func.Name); q != "" {
				return q
			}
		}
	}
	return ""
}

// InferFunctionReturn resolves the return type of a FunctionDef from its
// annotation or the types of its return expressions. All return statements
// must agree, otherwise the result is "".
func (o *Oracle) InferFunctionReturn(fn *pyast.Node) string {
	if fn == nil {
		return ""
	}
	if fn.Returns != nil {
		return o.AnnotationQName(fn.Returns)
	}
	var result string
	sawValue := false
	for _, ret := range fn.NodesOfKind(pyast.KindReturn) {
		if ret.EnclosingFunction() != fn {
			continue
		}
		if ret.ValueNode == nil {
			continue
		}
		sawValue = true
		q := o.InferExpr(ret.ValueNode)
		if q == "" {
			return ""
		}
		if result == "" {
			result = q
		} else if result != q {
			return ""
		}
	}
	if !sawValue {
		return "None"
	}
	return result
}

// IsFluentCall reports whether a chained call's return type equals its
// receiver type (e.g. str.strip().lower()).
func (o *Oracle) IsFluentCall(call *pyast.Node) bool {
	if call == nil || call.Kind != pyast.KindCall || call.Func == nil || call.Func.Kind != pyast.KindAttribute {
		return false
	}
	receiver := o.InferExpr(call.Func.Expr)
	if receiver == "" {
		return false
	}
	ret := o.stubs.methodReturn(receiver, call.Func.Name)
	return ret != "" && ret == receiver
}

// IsTrustedAuthorityCall reports whether the call's receiver root is in the
// trusted-authority registry (stdlib modules, primitives, configured roots).
func (o *Oracle) IsTrustedAuthorityCall(call *pyast.Node) bool {
	if call == nil || call.Kind != pyast.KindCall || call.Func == nil {
		return false
	}
	root := rootReceiver(call.Func)
	if root == nil {
		return false
	}
	switch root.Kind {
	case pyast.KindName:
		if stdlibModules[root.Name] || o.trustedRoots[root.Name] {
			return true
		}
	case pyast.KindConst:
		return true
	}
	q := o.InferExpr(root)
	if q == "" {
		return false
	}
	if o.IsPrimitive(q) || o.IsStdlibQName(q) {
		return true
	}
	top := strings.SplitN(q, ".", 2)[0]
	return o.trustedRoots[top]
}

// rootReceiver walks an attribute/call chain down to its base expression.
func rootReceiver(expr *pyast.Node) *pyast.Node {
	curr := expr
	for curr != nil {
		switch curr.Kind {
		case pyast.KindAttribute, pyast.KindAssignAttr:
			curr = curr.Expr
		case pyast.KindCall:
			curr = curr.Func
		case pyast.KindSubscript:
			curr = curr.Expr
		default:
			return curr
		}
	}
	return nil
}

// RootReceiver exposes the chain base for rule use.
func RootReceiver(expr *pyast.Node) *pyast.Node {
	return rootReceiver(expr)
}
