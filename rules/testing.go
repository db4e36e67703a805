package rules

import (
	"strings"

	"github.com/stellar-eng/excelsior/pyast"
)

const (
	codeFragileMocks      = "W9101"
	codePrivateMethodTest = "W9102"
)

// TestingRule enforces W9101: test functions drowning in mock setup. The rule
// is stateful: the driver tracks the current test scope and the mock count;
// the rule itself stays pure.
type TestingRule struct{}

func NewTestingRule() *TestingRule { return &TestingRule{} }

func (r *TestingRule) Code() string { return codeFragileMocks }
func (r *TestingRule) Description() string {
	return "Tests with many mocks are tightly coupled to implementation."
}

// RecordFunctionDef opens a tracked scope for test_* functions.
func (r *TestingRule) RecordFunctionDef(ctx *Context, node *pyast.Node) *pyast.Node {
	if strings.HasPrefix(node.Name, "test_") {
		return node
	}
	return nil
}

// RecordCall has nothing to report per call for this rule.
func (r *TestingRule) RecordCall(ctx *Context, node *pyast.Node, scope *pyast.Node) []Violation {
	return nil
}

// RecordMockOnly reports whether the call instantiates a mock.
func (r *TestingRule) RecordMockOnly(ctx *Context, node *pyast.Node, scope *pyast.Node) bool {
	name := lastSegment(node.CallName())
	switch name {
	case "Mock", "MagicMock", "AsyncMock", "patch", "create_autospec":
		return true
	}
	// patch.object(...) and friends.
	if node.Func != nil && node.Func.Kind == pyast.KindAttribute && node.Func.Expr != nil {
		if node.Func.Expr.DottedName() == "patch" {
			return true
		}
	}
	return false
}

// LeaveFunctionDef fires once per tracked scope with the driver-held count.
func (r *TestingRule) LeaveFunctionDef(ctx *Context, scope *pyast.Node, mockCount int) []Violation {
	if mockCount <= ctx.Config.MockLimit {
		return nil
	}
	return []Violation{ctx.Violation(codeFragileMocks, scope, scope.Name, mockCount, ctx.Config.MockLimit)}
}

// PrivateMethodTestRule enforces W9102: tests reaching into _methods.
type PrivateMethodTestRule struct{}

func NewPrivateMethodTestRule() *PrivateMethodTestRule { return &PrivateMethodTestRule{} }

func (r *PrivateMethodTestRule) Code() string { return codePrivateMethodTest }
func (r *PrivateMethodTestRule) Description() string {
	return "Tests verify behaviour, not implementation details."
}

func (r *PrivateMethodTestRule) Subscriptions() []pyast.NodeKind {
	return []pyast.NodeKind{pyast.KindCall}
}

func (r *PrivateMethodTestRule) Check(ctx *Context, node *pyast.Node) []Violation {
	mod := node.Module()
	if mod == nil || !IsTestModule(mod) {
		return nil
	}
	fn := node.EnclosingFunction()
	if fn == nil || !strings.HasPrefix(fn.Name, "test_") {
		return nil
	}
	if node.Func == nil || node.Func.Kind != pyast.KindAttribute {
		return nil
	}
	name := node.Func.Name
	if !strings.HasPrefix(name, "_") || strings.HasPrefix(name, "__") {
		return nil
	}
	if receiverIsSelf(node.Func.Expr) {
		return nil
	}
	return []Violation{ctx.Violation(codePrivateMethodTest, node, name, name)}
}
