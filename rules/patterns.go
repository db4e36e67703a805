package rules

import (
	"github.com/stellar-eng/excelsior/pyast"
)

const (
	codeBuilderSuggestion  = "W9041"
	codeFactorySuggestion  = "W9042"
	codeStrategySuggestion = "W9043"
	codeStateSuggestion    = "W9044"
	codeFacadeSuggestion   = "W9045"
)

const (
	builderParamThreshold = 6
	facadeDepThreshold    = 5
	stateCondThreshold    = 3
)

// PatternSuggestionRule emits the informational W9041–W9045 findings. They are
// non-blocking unless patterns_block is configured.
type PatternSuggestionRule struct{}

func NewPatternSuggestionRule() *PatternSuggestionRule { return &PatternSuggestionRule{} }

func (r *PatternSuggestionRule) Code() string { return codeBuilderSuggestion }
func (r *PatternSuggestionRule) Description() string {
	return "Recurring smells map to named design patterns."
}

func (r *PatternSuggestionRule) Subscriptions() []pyast.NodeKind {
	return []pyast.NodeKind{pyast.KindClassDef, pyast.KindIf, pyast.KindFunctionDef}
}

func (r *PatternSuggestionRule) Check(ctx *Context, node *pyast.Node) []Violation {
	mod := node.Module()
	if mod == nil || IsTestModule(mod) {
		return nil
	}
	switch node.Kind {
	case pyast.KindClassDef:
		var out []Violation
		out = append(out, r.checkBuilder(ctx, node)...)
		out = append(out, r.checkState(ctx, node)...)
		return out
	case pyast.KindIf:
		var out []Violation
		out = append(out, r.checkFactory(ctx, node)...)
		out = append(out, r.checkStrategy(ctx, node)...)
		return out
	case pyast.KindFunctionDef:
		return r.checkFacade(ctx, node)
	}
	return nil
}

// checkBuilder: constructors with six or more real parameters.
func (r *PatternSuggestionRule) checkBuilder(ctx *Context, class *pyast.Node) []Violation {
	ctor := constructorOf(class)
	if ctor == nil || ctor.Arguments == nil {
		return nil
	}
	count := 0
	for _, param := range ctor.Arguments.Children {
		if param.Name == "self" || param.Name == "cls" {
			continue
		}
		count++
	}
	if count < builderParamThreshold {
		return nil
	}
	return []Violation{ctx.Violation(codeBuilderSuggestion, ctor, class.Name, class.Name, count)}
}

// checkFactory: if/elif ladders instantiating different classes.
func (r *PatternSuggestionRule) checkFactory(ctx *Context, node *pyast.Node) []Violation {
	if node.Parent != nil && node.Parent.Kind == pyast.KindIf {
		return nil
	}
	classNames := map[string]bool{}
	branches := 0
	curr := node
	for curr != nil {
		branches++
		for _, stmt := range curr.Body {
			for _, call := range stmt.NodesOfKind(pyast.KindCall) {
				name := lastSegment(call.CallName())
				if name != "" && isCapitalized(name) {
					classNames[name] = true
				}
			}
		}
		curr = nextElif(curr)
	}
	if branches < 2 || len(classNames) < 2 {
		return nil
	}
	fn := node.EnclosingFunction()
	where := "module scope"
	if fn != nil {
		where = fn.Name
	}
	return []Violation{ctx.Violation(codeFactorySuggestion, node, where, where)}
}

// checkStrategy: if/elif ladders selecting behaviour on the same condition
// subject.
func (r *PatternSuggestionRule) checkStrategy(ctx *Context, node *pyast.Node) []Violation {
	if node.Parent != nil && node.Parent.Kind == pyast.KindIf {
		return nil
	}
	subject := conditionSubject(node.Test)
	if subject == "" {
		return nil
	}
	branches := 0
	curr := node
	for curr != nil {
		if conditionSubject(curr.Test) != subject {
			return nil
		}
		branches++
		curr = nextElif(curr)
	}
	if branches < 3 {
		return nil
	}
	fn := node.EnclosingFunction()
	where := subject
	if fn != nil {
		where = fn.Name
	}
	return []Violation{ctx.Violation(codeStrategySuggestion, node, where, where)}
}

// checkState: repeated conditionals on the same self attribute across a
// class's methods.
func (r *PatternSuggestionRule) checkState(ctx *Context, class *pyast.Node) []Violation {
	counts := map[string]int{}
	var firstNode = map[string]*pyast.Node{}
	for _, method := range classMethods(class) {
		for _, ifNode := range method.NodesOfKind(pyast.KindIf) {
			attr := selfAttrSubject(ifNode.Test)
			if attr == "" {
				continue
			}
			counts[attr]++
			if firstNode[attr] == nil {
				firstNode[attr] = ifNode
			}
		}
	}
	var out []Violation
	for attr, count := range counts {
		if count >= stateCondThreshold {
			out = append(out, ctx.Violation(codeStateSuggestion, firstNode[attr], attr, attr))
		}
	}
	return out
}

// checkFacade: methods orchestrating five or more distinct self dependencies.
func (r *PatternSuggestionRule) checkFacade(ctx *Context, fn *pyast.Node) []Violation {
	if !fn.IsMethod() {
		return nil
	}
	deps := map[string]bool{}
	for _, call := range fn.NodesOfKind(pyast.KindCall) {
		if call.Func == nil || call.Func.Kind != pyast.KindAttribute {
			continue
		}
		receiver := call.Func.Expr
		if receiver == nil || receiver.Kind != pyast.KindAttribute || !receiverIsSelf(receiver.Expr) {
			continue
		}
		deps[receiver.Name] = true
	}
	if len(deps) < facadeDepThreshold {
		return nil
	}
	return []Violation{ctx.Violation(codeFacadeSuggestion, fn, fn.Name, fn.Name, len(deps))}
}

func nextElif(node *pyast.Node) *pyast.Node {
	for _, orElse := range node.OrElse {
		if orElse.Kind == pyast.KindIf {
			return orElse
		}
	}
	return nil
}

func isCapitalized(name string) bool {
	return name != "" && name[0] >= 'A' && name[0] <= 'Z'
}

// conditionSubject extracts the dotted name of a comparison's left operand.
func conditionSubject(test *pyast.Node) string {
	if test == nil || test.Kind != pyast.KindCompare || len(test.Children) == 0 {
		return ""
	}
	return test.Children[0].DottedName()
}

// selfAttrSubject extracts `self.<attr>` from a conditional test.
func selfAttrSubject(test *pyast.Node) string {
	subject := conditionSubject(test)
	if subject == "" && test != nil {
		subject = test.DottedName()
	}
	if len(subject) > 5 && subject[:5] == "self." {
		return subject[5:]
	}
	return ""
}
