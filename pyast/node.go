package pyast

import "strings"

// NodeKind enumerates the canonical Python AST node kinds produced by the parser.
type NodeKind int

const (
	KindUnknown NodeKind = iota
	KindModule
	KindClassDef
	KindFunctionDef
	KindAsyncFunctionDef
	KindArguments
	KindDecorators
	KindCall
	KindKeyword
	KindAssign
	KindAugAssign
	KindAnnAssign
	KindAssignName
	KindAssignAttr
	KindAttribute
	KindName
	KindConst
	KindSubscript
	KindIf
	KindFor
	KindWhile
	KindTry
	KindWith
	KindExceptHandler
	KindExpr
	KindCompare
	KindBoolOp
	KindUnaryOp
	KindBinOp
	KindDict
	KindList
	KindSet
	KindTuple
	KindLambda
	KindIfExp
	KindComprehension
	KindListComp
	KindSetComp
	KindDictComp
	KindGeneratorExp
	KindYield
	KindYieldFrom
	KindAwait
	KindStarred
	KindFormattedValue
	KindJoinedStr
	KindPass
	KindBreak
	KindContinue
	KindRaise
	KindAssert
	KindDelete
	KindSlice
	KindIndex
	KindExtSlice
	KindMatch
	KindMatchCase
	KindNamedExpr
	KindGlobal
	KindImport
	KindImportFrom
	KindReturn
)

var kindNames = map[NodeKind]string{
	KindModule:           "Module",
	KindClassDef:         "ClassDef",
	KindFunctionDef:      "FunctionDef",
	KindAsyncFunctionDef: "AsyncFunctionDef",
	KindArguments:        "Arguments",
	KindDecorators:       "Decorators",
	KindCall:             "Call",
	KindKeyword:          "Keyword",
	KindAssign:           "Assign",
	KindAugAssign:        "AugAssign",
	KindAnnAssign:        "AnnAssign",
	KindAssignName:       "AssignName",
	KindAssignAttr:       "AssignAttr",
	KindAttribute:        "Attribute",
	KindName:             "Name",
	KindConst:            "Const",
	KindSubscript:        "Subscript",
	KindIf:               "If",
	KindFor:              "For",
	KindWhile:            "While",
	KindTry:              "Try",
	KindWith:             "With",
	KindExceptHandler:    "ExceptHandler",
	KindExpr:             "Expr",
	KindCompare:          "Compare",
	KindBoolOp:           "BoolOp",
	KindUnaryOp:          "UnaryOp",
	KindBinOp:            "BinOp",
	KindDict:             "Dict",
	KindList:             "List",
	KindSet:              "Set",
	KindTuple:            "Tuple",
	KindLambda:           "Lambda",
	KindIfExp:            "IfExp",
	KindComprehension:    "Comprehension",
	KindListComp:         "ListComp",
	KindSetComp:          "SetComp",
	KindDictComp:         "DictComp",
	KindGeneratorExp:     "GeneratorExp",
	KindYield:            "Yield",
	KindYieldFrom:        "YieldFrom",
	KindAwait:            "Await",
	KindStarred:          "Starred",
	KindFormattedValue:   "FormattedValue",
	KindJoinedStr:        "JoinedStr",
	KindPass:             "Pass",
	KindBreak:            "Break",
	KindContinue:         "Continue",
	KindRaise:            "Raise",
	KindAssert:           "Assert",
	KindDelete:           "Delete",
	KindSlice:            "Slice",
	KindIndex:            "Index",
	KindExtSlice:         "ExtSlice",
	KindMatch:            "Match",
	KindMatchCase:        "MatchCase",
	KindNamedExpr:        "NamedExpr",
	KindGlobal:           "Global",
	KindImport:           "Import",
	KindImportFrom:       "ImportFrom",
	KindReturn:           "Return",
}

// String returns the canonical kind name.
func (k NodeKind) String() string {
	if name, ok := kindNames[k]; ok {
		return name
	}
	return "Unknown"
}

// ConstKind discriminates literal constants.
type ConstKind int

const (
	ConstNone ConstKind = iota
	ConstString
	ConstInt
	ConstFloat
	ConstBool
	ConstBytes
	ConstEllipsis
)

// ImportedName is one name bound by an Import or ImportFrom node.
type ImportedName struct {
	Name  string
	Alias string
}

// Node is a tagged-variant AST node. Children own their subtree; Parent is a
// non-owning back-reference. The parent links form a tree rooted at a node of
// KindModule.
type Node struct {
	Kind     NodeKind
	Line     int
	Col      int
	EndLine  int
	StartOff int
	EndOff   int

	Parent   *Node
	Children []*Node

	// Name carries identifiers: Name/AssignName ids, Attribute attr names,
	// ClassDef/FunctionDef names, Keyword arg names, Global targets (joined).
	Name string
	// Value carries the raw source text of Const literals and operators.
	Value string
	Const ConstKind

	// Structured slots populated for the kinds that use them. All are also
	// present in Children so generic walks see every node once.
	Func       *Node   // Call: callee expression
	Args       []*Node // Call: positional arguments
	Keywords   []*Node // Call: keyword arguments
	Expr       *Node   // Attribute/AssignAttr/Subscript/Starred/Await/Yield: receiver or operand
	Targets    []*Node // Assign/AugAssign/AnnAssign/Delete/For: assignment targets
	ValueNode  *Node   // Assign/AnnAssign/Return/Keyword/Expr: right-hand side
	Annotation *Node   // AnnAssign and parameters: the type annotation
	Default    *Node   // parameters: default value
	Returns    *Node   // FunctionDef: return annotation
	Arguments  *Node   // FunctionDef/Lambda: KindArguments node
	Decorators *Node   // ClassDef/FunctionDef: KindDecorators node
	Bases      []*Node // ClassDef: base class expressions
	Body       []*Node // Module/ClassDef/FunctionDef and block statements
	OrElse     []*Node // If/For/While/Try: else branch
	Handlers   []*Node // Try: ExceptHandler nodes
	Test       *Node   // If/While/IfExp/Assert: condition

	// Imports carries the bound names of Import/ImportFrom; ModuleName the
	// source module of an ImportFrom.
	Imports    []ImportedName
	ModuleName string

	module *Module
}

// Module is one parsed source file.
type Module struct {
	Path string
	Name string
	Root *Node
	// Source is retained for span extraction and CST anchoring.
	Source []byte
	// Layer is the resolved architectural layer, empty when unresolved.
	Layer string
	// AbsoluteImportActivated is set when any `from __future__ import ...`
	// statement appears in the module.
	AbsoluteImportActivated bool
	Hash                    uint64
}

// Root walks parents up to the enclosing KindModule node.
func (n *Node) Root() *Node {
	curr := n
	for curr.Parent != nil {
		curr = curr.Parent
	}
	return curr
}

// Module returns the Module owning this node.
func (n *Node) Module() *Module {
	return n.Root().module
}

// Frame returns the nearest enclosing FunctionDef, AsyncFunctionDef, Lambda,
// ClassDef or Module node, excluding the node itself.
func (n *Node) Frame() *Node {
	curr := n.Parent
	for curr != nil {
		switch curr.Kind {
		case KindFunctionDef, KindAsyncFunctionDef, KindLambda, KindClassDef, KindModule:
			return curr
		}
		curr = curr.Parent
	}
	return nil
}

// Scope returns the nearest enclosing function-like frame, skipping classes.
func (n *Node) Scope() *Node {
	curr := n.Frame()
	for curr != nil && curr.Kind == KindClassDef {
		curr = curr.Frame()
	}
	return curr
}

// EnclosingClass returns the nearest ClassDef ancestor, or nil.
func (n *Node) EnclosingClass() *Node {
	curr := n.Parent
	for curr != nil {
		if curr.Kind == KindClassDef {
			return curr
		}
		curr = curr.Parent
	}
	return nil
}

// EnclosingFunction returns the nearest FunctionDef/AsyncFunctionDef ancestor.
func (n *Node) EnclosingFunction() *Node {
	curr := n.Parent
	for curr != nil {
		if curr.Kind == KindFunctionDef || curr.Kind == KindAsyncFunctionDef {
			return curr
		}
		curr = curr.Parent
	}
	return nil
}

// Walk visits n and its descendants depth-first in source order. Returning
// false from fn prunes the subtree.
func (n *Node) Walk(fn func(*Node) bool) {
	if !fn(n) {
		return
	}
	for _, child := range n.Children {
		child.Walk(fn)
	}
}

// NodesOfKind collects all descendants (including n) of the given kind.
func (n *Node) NodesOfKind(kind NodeKind) []*Node {
	var out []*Node
	n.Walk(func(node *Node) bool {
		if node.Kind == kind {
			out = append(out, node)
		}
		return true
	})
	return out
}

// Content returns the source text spanned by the node.
func (n *Node) Content() string {
	mod := n.Module()
	if mod == nil || n.StartOff < 0 || n.EndOff > len(mod.Source) || n.StartOff > n.EndOff {
		return ""
	}
	return string(mod.Source[n.StartOff:n.EndOff])
}

// DottedName reconstructs a dotted name from a Name/Attribute chain, e.g.
// `a.b.c` for Attribute(Attribute(Name a, b), c). Returns "" for other shapes.
func (n *Node) DottedName() string {
	switch n.Kind {
	case KindName, KindAssignName:
		return n.Name
	case KindAttribute, KindAssignAttr:
		if n.Expr == nil {
			return n.Name
		}
		base := n.Expr.DottedName()
		if base == "" {
			return ""
		}
		return base + "." + n.Name
	}
	return ""
}

// CallName returns the best-effort name of a Call's callee: `foo` for foo(),
// `a.b` for a.b().
func (n *Node) CallName() string {
	if n.Kind != KindCall || n.Func == nil {
		return ""
	}
	if name := n.Func.DottedName(); name != "" {
		return name
	}
	if n.Func.Kind == KindAttribute {
		return n.Func.Name
	}
	return ""
}

// IsMethod reports whether a FunctionDef is defined directly inside a class body.
func (n *Node) IsMethod() bool {
	if n.Kind != KindFunctionDef && n.Kind != KindAsyncFunctionDef {
		return false
	}
	return n.EnclosingClass() != nil
}

// HasDecorator reports whether a ClassDef/FunctionDef carries a decorator with
// the given trailing name (`dataclass` matches both @dataclass and
// @dataclasses.dataclass, with or without a call).
func (n *Node) HasDecorator(name string) bool {
	return n.Decorator(name) != nil
}

// Decorator returns the decorator expression matching the trailing name.
func (n *Node) Decorator(name string) *Node {
	if n.Decorators == nil {
		return nil
	}
	for _, dec := range n.Decorators.Children {
		expr := dec
		if expr.Kind == KindCall && expr.Func != nil {
			expr = expr.Func
		}
		dotted := expr.DottedName()
		if dotted == name || strings.HasSuffix(dotted, "."+name) {
			return dec
		}
	}
	return nil
}

// Lookup resolves a name within the node's scope chain: parameters, local
// assignments and imports of each enclosing frame, innermost first. Returns the
// defining node or nil.
func (n *Node) Lookup(name string) *Node {
	frame := n.Scope()
	for frame != nil {
		if def := lookupInFrame(frame, name); def != nil {
			return def
		}
		if frame.Kind == KindModule {
			return nil
		}
		frame = frame.Scope()
	}
	return nil
}

func lookupInFrame(frame *Node, name string) *Node {
	if args := frame.Arguments; args != nil {
		for _, param := range args.Children {
			if param.Name == name {
				return param
			}
		}
	}
	var found *Node
	frame.Walk(func(node *Node) bool {
		// Do not descend into nested frames.
		if node != frame {
			switch node.Kind {
			case KindFunctionDef, KindAsyncFunctionDef, KindLambda, KindClassDef:
				if node.Name == name && found == nil {
					found = node
				}
				return false
			}
		}
		switch node.Kind {
		case KindAssignName:
			if node.Name == name && found == nil {
				found = node
			}
		case KindImport, KindImportFrom:
			for _, imp := range node.Imports {
				bound := imp.Alias
				if bound == "" {
					bound = imp.Name
					if idx := strings.Index(bound, "."); idx > 0 && node.Kind == KindImport {
						bound = bound[:idx]
					}
				}
				if bound == name && found == nil {
					found = node
				}
			}
		}
		return true
	})
	return found
}
