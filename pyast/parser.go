package pyast

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	sitter "github.com/smacker/go-tree-sitter"
	"github.com/smacker/go-tree-sitter/python"
)

// ParseError reports an unparsable source file. The file is excluded from rule
// evaluation and surfaced as a single PARSE-ERROR finding.
type ParseError struct {
	Path string
	Line int
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("parse error in %s at line %d", e.Path, e.Line)
}

// Parser turns Python source files into Modules.
type Parser struct{}

// NewParser creates a new Parser.
func NewParser() *Parser {
	return &Parser{}
}

// ParseFile parses a Python source file and builds its Module.
func (p *Parser) ParseFile(path string) (*Module, error) {
	src, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read file %s: %w", path, err)
	}
	return p.ParseSource(src, path)
}

// ParseSource parses Python source from a byte slice.
func (p *Parser) ParseSource(src []byte, path string) (*Module, error) {
	parser := sitter.NewParser()
	parser.SetLanguage(python.GetLanguage())

	tree, err := parser.ParseCtx(context.Background(), nil, src)
	if err != nil {
		return nil, fmt.Errorf("failed to parse %s: %w", path, err)
	}
	rootNode := tree.RootNode()
	if rootNode.HasError() {
		line := firstErrorLine(rootNode)
		return nil, &ParseError{Path: path, Line: line}
	}

	mod := &Module{
		Path:   path,
		Source: src,
	}
	lowerer := &lowerer{src: src}
	root := lowerer.lower(rootNode)
	if root == nil || root.Kind != KindModule {
		return nil, &ParseError{Path: path, Line: 1}
	}
	root.module = mod
	linkParents(root)
	mod.Root = root
	mod.Name = ModuleNameFor(path, "")
	mod.AbsoluteImportActivated = lowerer.futureImport
	if h, err := Hash(src); err == nil {
		mod.Hash = h
	}
	return mod, nil
}

// ModuleNameFor derives the dotted module name for a file path, relative to
// root when given. `src/` prefixes and `__init__` suffixes are stripped.
func ModuleNameFor(path, root string) string {
	rel := path
	if root != "" {
		if r, err := filepath.Rel(root, path); err == nil {
			rel = r
		}
	}
	rel = filepath.ToSlash(rel)
	rel = strings.TrimSuffix(rel, ".py")
	rel = strings.TrimPrefix(rel, "src/")
	rel = strings.TrimSuffix(rel, "/__init__")
	rel = strings.TrimPrefix(rel, "./")
	return strings.ReplaceAll(rel, "/", ".")
}

func firstErrorLine(node *sitter.Node) int {
	if node.IsError() {
		return int(node.StartPoint().Row) + 1
	}
	for i := 0; i < int(node.NamedChildCount()); i++ {
		if line := firstErrorLine(node.NamedChild(i)); line > 0 {
			return line
		}
	}
	if node.Parent() == nil {
		return 1
	}
	return 0
}

func linkParents(n *Node) {
	for _, child := range n.Children {
		child.Parent = n
		linkParents(child)
	}
}

type lowerer struct {
	src          []byte
	futureImport bool
}

func (l *lowerer) content(ts *sitter.Node) string {
	return ts.Content(l.src)
}

func (l *lowerer) base(kind NodeKind, ts *sitter.Node) *Node {
	return &Node{
		Kind:     kind,
		Line:     int(ts.StartPoint().Row) + 1,
		Col:      int(ts.StartPoint().Column),
		EndLine:  int(ts.EndPoint().Row) + 1,
		StartOff: int(ts.StartByte()),
		EndOff:   int(ts.EndByte()),
	}
}

func (l *lowerer) add(parent *Node, child *Node) {
	if child != nil {
		parent.Children = append(parent.Children, child)
	}
}

// lower converts a tree-sitter node to the canonical AST.
func (l *lowerer) lower(ts *sitter.Node) *Node {
	if ts == nil {
		return nil
	}
	switch ts.Type() {
	case "module":
		node := l.base(KindModule, ts)
		for i := 0; i < int(ts.NamedChildCount()); i++ {
			child := l.lower(ts.NamedChild(i))
			l.add(node, child)
		}
		node.Body = node.Children
		return node
	case "comment":
		return nil
	case "decorated_definition":
		return l.lowerDecorated(ts)
	case "class_definition":
		return l.lowerClass(ts, nil)
	case "function_definition":
		return l.lowerFunction(ts, nil)
	case "import_statement":
		return l.lowerImport(ts)
	case "import_from_statement":
		return l.lowerImportFrom(ts)
	case "future_import_statement":
		l.futureImport = true
		node := l.base(KindImportFrom, ts)
		node.ModuleName = "__future__"
		for i := 0; i < int(ts.NamedChildCount()); i++ {
			child := ts.NamedChild(i)
			if child.Type() == "dotted_name" || child.Type() == "identifier" {
				node.Imports = append(node.Imports, ImportedName{Name: l.content(child)})
			}
		}
		return node
	case "expression_statement":
		return l.lowerExpressionStatement(ts)
	case "assignment", "augmented_assignment":
		return l.lowerAssignment(ts)
	case "named_expression":
		node := l.base(KindNamedExpr, ts)
		target := l.lowerTarget(ts.ChildByFieldName("name"))
		value := l.lower(ts.ChildByFieldName("value"))
		node.Targets = []*Node{target}
		node.ValueNode = value
		l.add(node, target)
		l.add(node, value)
		return node
	case "call":
		return l.lowerCall(ts)
	case "attribute":
		node := l.base(KindAttribute, ts)
		node.Expr = l.lower(ts.ChildByFieldName("object"))
		if attr := ts.ChildByFieldName("attribute"); attr != nil {
			node.Name = l.content(attr)
		}
		l.add(node, node.Expr)
		return node
	case "identifier":
		node := l.base(KindName, ts)
		node.Name = l.content(ts)
		return node
	case "string", "concatenated_string":
		return l.lowerString(ts)
	case "integer":
		node := l.base(KindConst, ts)
		node.Const = ConstInt
		node.Value = l.content(ts)
		return node
	case "float":
		node := l.base(KindConst, ts)
		node.Const = ConstFloat
		node.Value = l.content(ts)
		return node
	case "true", "false":
		node := l.base(KindConst, ts)
		node.Const = ConstBool
		node.Value = l.content(ts)
		return node
	case "none":
		node := l.base(KindConst, ts)
		node.Const = ConstNone
		node.Value = "None"
		return node
	case "ellipsis":
		node := l.base(KindConst, ts)
		node.Const = ConstEllipsis
		node.Value = "..."
		return node
	case "subscript":
		node := l.base(KindSubscript, ts)
		valueField := ts.ChildByFieldName("value")
		node.Expr = l.lower(valueField)
		l.add(node, node.Expr)
		for i := 0; i < int(ts.NamedChildCount()); i++ {
			child := ts.NamedChild(i)
			if valueField != nil && child.StartByte() == valueField.StartByte() && child.EndByte() == valueField.EndByte() {
				continue
			}
			l.add(node, l.lower(child))
		}
		return node
	case "slice":
		node := l.base(KindSlice, ts)
		for i := 0; i < int(ts.NamedChildCount()); i++ {
			l.add(node, l.lower(ts.NamedChild(i)))
		}
		return node
	case "if_statement":
		return l.lowerIf(ts)
	case "elif_clause":
		return l.lowerIf(ts)
	case "for_statement":
		node := l.base(KindFor, ts)
		target := l.lowerTarget(ts.ChildByFieldName("left"))
		iter := l.lower(ts.ChildByFieldName("right"))
		node.Targets = []*Node{target}
		node.ValueNode = iter
		l.add(node, target)
		l.add(node, iter)
		node.Body = l.lowerBlock(ts.ChildByFieldName("body"), node)
		if alt := ts.ChildByFieldName("alternative"); alt != nil {
			node.OrElse = l.lowerBlock(alt.ChildByFieldName("body"), node)
		}
		return node
	case "while_statement":
		node := l.base(KindWhile, ts)
		node.Test = l.lower(ts.ChildByFieldName("condition"))
		l.add(node, node.Test)
		node.Body = l.lowerBlock(ts.ChildByFieldName("body"), node)
		if alt := ts.ChildByFieldName("alternative"); alt != nil {
			node.OrElse = l.lowerBlock(alt.ChildByFieldName("body"), node)
		}
		return node
	case "try_statement":
		node := l.base(KindTry, ts)
		node.Body = l.lowerBlock(ts.ChildByFieldName("body"), node)
		for i := 0; i < int(ts.NamedChildCount()); i++ {
			child := ts.NamedChild(i)
			switch child.Type() {
			case "except_clause", "except_group_clause":
				handler := l.lowerExcept(child)
				node.Handlers = append(node.Handlers, handler)
				l.add(node, handler)
			case "else_clause":
				node.OrElse = l.lowerBlock(child.ChildByFieldName("body"), node)
			case "finally_clause":
				for j := 0; j < int(child.NamedChildCount()); j++ {
					if child.NamedChild(j).Type() == "block" {
						l.lowerBlock(child.NamedChild(j), node)
					}
				}
			}
		}
		return node
	case "with_statement":
		node := l.base(KindWith, ts)
		for i := 0; i < int(ts.NamedChildCount()); i++ {
			child := ts.NamedChild(i)
			if child.Type() == "with_clause" {
				for j := 0; j < int(child.NamedChildCount()); j++ {
					item := child.NamedChild(j)
					if item.Type() == "with_item" {
						l.add(node, l.lower(item.ChildByFieldName("value")))
					}
				}
			}
		}
		node.Body = l.lowerBlock(ts.ChildByFieldName("body"), node)
		return node
	case "return_statement":
		node := l.base(KindReturn, ts)
		if ts.NamedChildCount() > 0 {
			node.ValueNode = l.lower(ts.NamedChild(0))
			l.add(node, node.ValueNode)
		}
		return node
	case "raise_statement":
		node := l.base(KindRaise, ts)
		for i := 0; i < int(ts.NamedChildCount()); i++ {
			l.add(node, l.lower(ts.NamedChild(i)))
		}
		return node
	case "assert_statement":
		node := l.base(KindAssert, ts)
		if ts.NamedChildCount() > 0 {
			node.Test = l.lower(ts.NamedChild(0))
			l.add(node, node.Test)
		}
		for i := 1; i < int(ts.NamedChildCount()); i++ {
			l.add(node, l.lower(ts.NamedChild(i)))
		}
		return node
	case "delete_statement":
		node := l.base(KindDelete, ts)
		for i := 0; i < int(ts.NamedChildCount()); i++ {
			target := l.lowerTarget(ts.NamedChild(i))
			node.Targets = append(node.Targets, target)
			l.add(node, target)
		}
		return node
	case "pass_statement":
		return l.base(KindPass, ts)
	case "break_statement":
		return l.base(KindBreak, ts)
	case "continue_statement":
		return l.base(KindContinue, ts)
	case "global_statement", "nonlocal_statement":
		node := l.base(KindGlobal, ts)
		var names []string
		for i := 0; i < int(ts.NamedChildCount()); i++ {
			names = append(names, l.content(ts.NamedChild(i)))
		}
		node.Name = strings.Join(names, ",")
		return node
	case "binary_operator":
		node := l.base(KindBinOp, ts)
		node.Value = operatorText(ts, l.src)
		l.add(node, l.lower(ts.ChildByFieldName("left")))
		l.add(node, l.lower(ts.ChildByFieldName("right")))
		return node
	case "boolean_operator":
		node := l.base(KindBoolOp, ts)
		node.Value = operatorText(ts, l.src)
		l.add(node, l.lower(ts.ChildByFieldName("left")))
		l.add(node, l.lower(ts.ChildByFieldName("right")))
		return node
	case "comparison_operator":
		node := l.base(KindCompare, ts)
		node.Value = operatorText(ts, l.src)
		for i := 0; i < int(ts.NamedChildCount()); i++ {
			l.add(node, l.lower(ts.NamedChild(i)))
		}
		return node
	case "not_operator":
		node := l.base(KindUnaryOp, ts)
		node.Value = "not"
		l.add(node, l.lower(ts.ChildByFieldName("argument")))
		return node
	case "unary_operator":
		node := l.base(KindUnaryOp, ts)
		node.Value = operatorText(ts, l.src)
		l.add(node, l.lower(ts.ChildByFieldName("argument")))
		return node
	case "conditional_expression":
		node := l.base(KindIfExp, ts)
		for i := 0; i < int(ts.NamedChildCount()); i++ {
			l.add(node, l.lower(ts.NamedChild(i)))
		}
		if len(node.Children) == 3 {
			node.Test = node.Children[1]
		}
		return node
	case "lambda":
		node := l.base(KindLambda, ts)
		if params := ts.ChildByFieldName("parameters"); params != nil {
			node.Arguments = l.lowerParameters(params)
			l.add(node, node.Arguments)
		}
		body := l.lower(ts.ChildByFieldName("body"))
		node.Body = []*Node{body}
		l.add(node, body)
		return node
	case "list":
		return l.lowerContainer(KindList, ts)
	case "set":
		return l.lowerContainer(KindSet, ts)
	case "tuple", "expression_list", "pattern_list":
		return l.lowerContainer(KindTuple, ts)
	case "dictionary":
		node := l.base(KindDict, ts)
		for i := 0; i < int(ts.NamedChildCount()); i++ {
			child := ts.NamedChild(i)
			if child.Type() == "pair" {
				l.add(node, l.lower(child.ChildByFieldName("key")))
				l.add(node, l.lower(child.ChildByFieldName("value")))
			} else {
				l.add(node, l.lower(child))
			}
		}
		return node
	case "list_comprehension":
		return l.lowerComprehension(KindListComp, ts)
	case "set_comprehension":
		return l.lowerComprehension(KindSetComp, ts)
	case "dictionary_comprehension":
		return l.lowerComprehension(KindDictComp, ts)
	case "generator_expression":
		return l.lowerComprehension(KindGeneratorExp, ts)
	case "yield":
		kind := KindYield
		for i := 0; i < int(ts.ChildCount()); i++ {
			if ts.Child(i).Type() == "from" {
				kind = KindYieldFrom
			}
		}
		node := l.base(kind, ts)
		if ts.NamedChildCount() > 0 {
			node.Expr = l.lower(ts.NamedChild(0))
			l.add(node, node.Expr)
		}
		return node
	case "await":
		node := l.base(KindAwait, ts)
		if ts.NamedChildCount() > 0 {
			node.Expr = l.lower(ts.NamedChild(0))
			l.add(node, node.Expr)
		}
		return node
	case "list_splat", "dictionary_splat", "list_splat_pattern":
		node := l.base(KindStarred, ts)
		if ts.NamedChildCount() > 0 {
			node.Expr = l.lower(ts.NamedChild(0))
			l.add(node, node.Expr)
		}
		return node
	case "match_statement":
		node := l.base(KindMatch, ts)
		l.add(node, l.lower(ts.ChildByFieldName("subject")))
		if body := ts.ChildByFieldName("body"); body != nil {
			for i := 0; i < int(body.NamedChildCount()); i++ {
				caseClause := body.NamedChild(i)
				caseNode := l.base(KindMatchCase, caseClause)
				if cb := caseClause.ChildByFieldName("consequence"); cb != nil {
					caseNode.Body = l.lowerBlock(cb, caseNode)
				}
				l.add(node, caseNode)
			}
		}
		return node
	case "parenthesized_expression":
		if ts.NamedChildCount() == 1 {
			return l.lower(ts.NamedChild(0))
		}
		return l.lowerContainer(KindTuple, ts)
	case "type":
		if ts.NamedChildCount() == 1 {
			return l.lower(ts.NamedChild(0))
		}
		return l.lowerContainer(KindTuple, ts)
	case "interpolation":
		node := l.base(KindFormattedValue, ts)
		for i := 0; i < int(ts.NamedChildCount()); i++ {
			l.add(node, l.lower(ts.NamedChild(i)))
		}
		return node
	case "keyword_argument":
		node := l.base(KindKeyword, ts)
		if name := ts.ChildByFieldName("name"); name != nil {
			node.Name = l.content(name)
		}
		node.ValueNode = l.lower(ts.ChildByFieldName("value"))
		l.add(node, node.ValueNode)
		return node
	default:
		// Unrecognized construct: preserve children so walks stay complete.
		node := l.base(KindUnknown, ts)
		for i := 0; i < int(ts.NamedChildCount()); i++ {
			l.add(node, l.lower(ts.NamedChild(i)))
		}
		return node
	}
}

func (l *lowerer) lowerExpressionStatement(ts *sitter.Node) *Node {
	if ts.NamedChildCount() == 1 {
		child := ts.NamedChild(0)
		switch child.Type() {
		case "assignment", "augmented_assignment":
			return l.lowerAssignment(child)
		}
		node := l.base(KindExpr, ts)
		node.ValueNode = l.lower(child)
		l.add(node, node.ValueNode)
		return node
	}
	node := l.base(KindExpr, ts)
	for i := 0; i < int(ts.NamedChildCount()); i++ {
		l.add(node, l.lower(ts.NamedChild(i)))
	}
	return node
}

func (l *lowerer) lowerAssignment(ts *sitter.Node) *Node {
	left := ts.ChildByFieldName("left")
	right := ts.ChildByFieldName("right")
	annotation := ts.ChildByFieldName("type")

	var node *Node
	switch {
	case ts.Type() == "augmented_assignment":
		node = l.base(KindAugAssign, ts)
	case annotation != nil:
		node = l.base(KindAnnAssign, ts)
	default:
		node = l.base(KindAssign, ts)
	}
	target := l.lowerTarget(left)
	if target != nil {
		if target.Kind == KindTuple {
			node.Targets = target.Children
		} else {
			node.Targets = []*Node{target}
		}
		l.add(node, target)
	}
	if annotation != nil {
		node.Annotation = l.lower(annotation)
		l.add(node, node.Annotation)
	}
	if right != nil {
		node.ValueNode = l.lower(right)
		l.add(node, node.ValueNode)
	}
	return node
}

// lowerTarget lowers an expression in store context: identifiers become
// AssignName, attributes become AssignAttr.
func (l *lowerer) lowerTarget(ts *sitter.Node) *Node {
	if ts == nil {
		return nil
	}
	switch ts.Type() {
	case "identifier":
		node := l.base(KindAssignName, ts)
		node.Name = l.content(ts)
		return node
	case "attribute":
		node := l.base(KindAssignAttr, ts)
		node.Expr = l.lower(ts.ChildByFieldName("object"))
		if attr := ts.ChildByFieldName("attribute"); attr != nil {
			node.Name = l.content(attr)
		}
		l.add(node, node.Expr)
		return node
	case "tuple", "pattern_list", "expression_list", "list":
		node := l.base(KindTuple, ts)
		for i := 0; i < int(ts.NamedChildCount()); i++ {
			l.add(node, l.lowerTarget(ts.NamedChild(i)))
		}
		return node
	case "parenthesized_expression":
		if ts.NamedChildCount() == 1 {
			return l.lowerTarget(ts.NamedChild(0))
		}
	}
	return l.lower(ts)
}

func (l *lowerer) lowerDecorated(ts *sitter.Node) *Node {
	decorators := &Node{Kind: KindDecorators}
	for i := 0; i < int(ts.NamedChildCount()); i++ {
		child := ts.NamedChild(i)
		if child.Type() == "decorator" {
			if child.NamedChildCount() > 0 {
				l.add(decorators, l.lower(child.NamedChild(0)))
			}
			if decorators.Line == 0 {
				decorators.Line = int(child.StartPoint().Row) + 1
				decorators.StartOff = int(child.StartByte())
			}
			decorators.EndOff = int(child.EndByte())
			decorators.EndLine = int(child.EndPoint().Row) + 1
		}
	}
	def := ts.ChildByFieldName("definition")
	if def == nil {
		return nil
	}
	switch def.Type() {
	case "class_definition":
		return l.lowerClass(def, decorators)
	case "function_definition":
		return l.lowerFunction(def, decorators)
	}
	return l.lower(def)
}

func (l *lowerer) lowerClass(ts *sitter.Node, decorators *Node) *Node {
	node := l.base(KindClassDef, ts)
	if name := ts.ChildByFieldName("name"); name != nil {
		node.Name = l.content(name)
	}
	if decorators != nil && len(decorators.Children) > 0 {
		node.Decorators = decorators
		l.add(node, decorators)
	}
	if supers := ts.ChildByFieldName("superclasses"); supers != nil {
		for i := 0; i < int(supers.NamedChildCount()); i++ {
			child := supers.NamedChild(i)
			if child.Type() == "keyword_argument" {
				l.add(node, l.lower(child))
				continue
			}
			base := l.lower(child)
			node.Bases = append(node.Bases, base)
			l.add(node, base)
		}
	}
	node.Body = l.lowerBlock(ts.ChildByFieldName("body"), node)
	return node
}

func (l *lowerer) lowerFunction(ts *sitter.Node, decorators *Node) *Node {
	kind := KindFunctionDef
	for i := 0; i < int(ts.ChildCount()); i++ {
		if ts.Child(i).Type() == "async" {
			kind = KindAsyncFunctionDef
		}
	}
	node := l.base(kind, ts)
	if name := ts.ChildByFieldName("name"); name != nil {
		node.Name = l.content(name)
	}
	if decorators != nil && len(decorators.Children) > 0 {
		node.Decorators = decorators
		l.add(node, decorators)
	}
	if params := ts.ChildByFieldName("parameters"); params != nil {
		node.Arguments = l.lowerParameters(params)
		l.add(node, node.Arguments)
	}
	if ret := ts.ChildByFieldName("return_type"); ret != nil {
		node.Returns = l.lower(ret)
		l.add(node, node.Returns)
	}
	node.Body = l.lowerBlock(ts.ChildByFieldName("body"), node)
	return node
}

func (l *lowerer) lowerParameters(ts *sitter.Node) *Node {
	args := l.base(KindArguments, ts)
	for i := 0; i < int(ts.NamedChildCount()); i++ {
		child := ts.NamedChild(i)
		var param *Node
		switch child.Type() {
		case "identifier":
			param = l.base(KindAssignName, child)
			param.Name = l.content(child)
		case "typed_parameter":
			param = l.base(KindAssignName, child)
			if child.NamedChildCount() > 0 {
				param.Name = l.content(child.NamedChild(0))
			}
			if tn := child.ChildByFieldName("type"); tn != nil {
				param.Annotation = l.lower(tn)
				l.add(param, param.Annotation)
			}
		case "default_parameter":
			param = l.base(KindAssignName, child)
			if name := child.ChildByFieldName("name"); name != nil {
				param.Name = l.content(name)
			}
			if def := child.ChildByFieldName("value"); def != nil {
				param.Default = l.lower(def)
				l.add(param, param.Default)
			}
		case "typed_default_parameter":
			param = l.base(KindAssignName, child)
			if name := child.ChildByFieldName("name"); name != nil {
				param.Name = l.content(name)
			}
			if tn := child.ChildByFieldName("type"); tn != nil {
				param.Annotation = l.lower(tn)
				l.add(param, param.Annotation)
			}
			if def := child.ChildByFieldName("value"); def != nil {
				param.Default = l.lower(def)
				l.add(param, param.Default)
			}
		case "list_splat_pattern", "dictionary_splat_pattern":
			param = l.base(KindAssignName, child)
			if child.NamedChildCount() > 0 {
				param.Name = l.content(child.NamedChild(0))
			}
		default:
			continue
		}
		l.add(args, param)
	}
	return args
}

func (l *lowerer) lowerBlock(ts *sitter.Node, parent *Node) []*Node {
	if ts == nil {
		return nil
	}
	var body []*Node
	for i := 0; i < int(ts.NamedChildCount()); i++ {
		child := l.lower(ts.NamedChild(i))
		if child == nil {
			continue
		}
		body = append(body, child)
		l.add(parent, child)
	}
	return body
}

func (l *lowerer) lowerIf(ts *sitter.Node) *Node {
	node := l.base(KindIf, ts)
	node.Test = l.lower(ts.ChildByFieldName("condition"))
	l.add(node, node.Test)
	node.Body = l.lowerBlock(ts.ChildByFieldName("consequence"), node)
	// tree-sitter chains elif/else as alternative clauses.
	for i := 0; i < int(ts.NamedChildCount()); i++ {
		child := ts.NamedChild(i)
		switch child.Type() {
		case "elif_clause":
			elifNode := l.lowerIf(child)
			node.OrElse = append(node.OrElse, elifNode)
			l.add(node, elifNode)
		case "else_clause":
			node.OrElse = append(node.OrElse, l.lowerBlock(child.ChildByFieldName("body"), node)...)
		}
	}
	return node
}

func (l *lowerer) lowerExcept(ts *sitter.Node) *Node {
	node := l.base(KindExceptHandler, ts)
	for i := 0; i < int(ts.NamedChildCount()); i++ {
		child := ts.NamedChild(i)
		if child.Type() == "block" {
			node.Body = l.lowerBlock(child, node)
			continue
		}
		// Exception type expression (and optional `as name` binding).
		expr := l.lower(child)
		if expr != nil && node.Test == nil {
			node.Test = expr
		}
		l.add(node, expr)
	}
	return node
}

func (l *lowerer) lowerCall(ts *sitter.Node) *Node {
	node := l.base(KindCall, ts)
	node.Func = l.lower(ts.ChildByFieldName("function"))
	l.add(node, node.Func)
	if args := ts.ChildByFieldName("arguments"); args != nil {
		if args.Type() == "generator_expression" {
			gen := l.lower(args)
			node.Args = append(node.Args, gen)
			l.add(node, gen)
			return node
		}
		for i := 0; i < int(args.NamedChildCount()); i++ {
			child := args.NamedChild(i)
			lowered := l.lower(child)
			if lowered == nil {
				continue
			}
			if child.Type() == "keyword_argument" {
				node.Keywords = append(node.Keywords, lowered)
			} else {
				node.Args = append(node.Args, lowered)
			}
			l.add(node, lowered)
		}
	}
	return node
}

func (l *lowerer) lowerContainer(kind NodeKind, ts *sitter.Node) *Node {
	node := l.base(kind, ts)
	for i := 0; i < int(ts.NamedChildCount()); i++ {
		l.add(node, l.lower(ts.NamedChild(i)))
	}
	return node
}

func (l *lowerer) lowerComprehension(kind NodeKind, ts *sitter.Node) *Node {
	node := l.base(kind, ts)
	for i := 0; i < int(ts.NamedChildCount()); i++ {
		child := ts.NamedChild(i)
		switch child.Type() {
		case "for_in_clause":
			comp := l.base(KindComprehension, child)
			target := l.lowerTarget(child.ChildByFieldName("left"))
			comp.Targets = []*Node{target}
			l.add(comp, target)
			comp.ValueNode = l.lower(child.ChildByFieldName("right"))
			l.add(comp, comp.ValueNode)
			l.add(node, comp)
		case "if_clause":
			if child.NamedChildCount() > 0 {
				l.add(node, l.lower(child.NamedChild(0)))
			}
		case "pair":
			l.add(node, l.lower(child.ChildByFieldName("key")))
			l.add(node, l.lower(child.ChildByFieldName("value")))
		default:
			l.add(node, l.lower(child))
		}
	}
	return node
}

func (l *lowerer) lowerString(ts *sitter.Node) *Node {
	hasInterp := false
	for i := 0; i < int(ts.NamedChildCount()); i++ {
		if ts.NamedChild(i).Type() == "interpolation" {
			hasInterp = true
			break
		}
	}
	if hasInterp {
		node := l.base(KindJoinedStr, ts)
		for i := 0; i < int(ts.NamedChildCount()); i++ {
			child := ts.NamedChild(i)
			if child.Type() == "interpolation" {
				l.add(node, l.lower(child))
			}
		}
		return node
	}
	node := l.base(KindConst, ts)
	node.Const = ConstString
	node.Value = stringLiteralValue(l.content(ts))
	return node
}

// stringLiteralValue strips quotes and common prefixes from a string literal.
func stringLiteralValue(raw string) string {
	s := raw
	for len(s) > 0 {
		c := s[0]
		if c == 'r' || c == 'b' || c == 'u' || c == 'f' || c == 'R' || c == 'B' || c == 'U' || c == 'F' {
			s = s[1:]
			continue
		}
		break
	}
	for _, quote := range []string{`"""`, `'''`, `"`, `'`} {
		if strings.HasPrefix(s, quote) && strings.HasSuffix(s, quote) && len(s) >= 2*len(quote) {
			return s[len(quote) : len(s)-len(quote)]
		}
	}
	return s
}

// operatorText extracts the unnamed operator tokens of a binary/comparison node.
func operatorText(ts *sitter.Node, src []byte) string {
	var ops []string
	for i := 0; i < int(ts.ChildCount()); i++ {
		child := ts.Child(i)
		if !child.IsNamed() {
			ops = append(ops, child.Content(src))
		}
	}
	return strings.Join(ops, " ")
}
