// Package rules hosts the rule engine and the rule set. Rules implement the
// Checkable or Stateful contracts; fixable rules additionally implement
// Fixable. Rules hold no per-traversal state: the driver owns scopes and
// counters.
package rules

import (
	"fmt"

	"github.com/stellar-eng/excelsior/layers"
	"github.com/stellar-eng/excelsior/oracle"
	"github.com/stellar-eng/excelsior/plan"
	"github.com/stellar-eng/excelsior/pyast"
	"github.com/stellar-eng/excelsior/pyconfig"
	"github.com/stellar-eng/excelsior/registry"
)

// Violation is an immutable finding emitted by a rule.
type Violation struct {
	Code    string
	Message string
	Path    string
	Line    int
	Col     int
	// Node is a weak reference used only for message formatting and fixing;
	// it must not outlive a cache clear.
	Node             *pyast.Node
	Fixable          bool
	FixFailureReason string
	IsCommentOnly    bool
	// Symbol is the identifier the violation anchors to; part of the
	// deduplication key (code, path, line, symbol).
	Symbol string
}

// Location renders path:line:col.
func (v Violation) Location() string {
	return fmt.Sprintf("%s:%d:%d", v.Path, v.Line, v.Col)
}

// Key is the deduplication key.
func (v Violation) Key() string {
	return fmt.Sprintf("%s|%s|%d|%s", v.Code, v.Path, v.Line, v.Symbol)
}

// Less orders violations by (path, line, column, code): the deterministic
// within-pass total order.
func (v Violation) Less(other Violation) bool {
	if v.Path != other.Path {
		return v.Path < other.Path
	}
	if v.Line != other.Line {
		return v.Line < other.Line
	}
	if v.Col != other.Col {
		return v.Col < other.Col
	}
	return v.Code < other.Code
}

// Context carries the per-run collaborators every rule may consult. It is
// immutable during a run.
type Context struct {
	Config   *pyconfig.Config
	Registry *registry.Registry
	Resolver *layers.Resolver
	Oracle   *oracle.Oracle
	// Index carries cross-file facts; nil until BuildIndex runs.
	Index *ProjectIndex
}

// NewContext wires a rule context from configuration.
func NewContext(cfg *pyconfig.Config, reg *registry.Registry) *Context {
	return &Context{
		Config:   cfg,
		Registry: reg,
		Resolver: layers.NewResolver(cfg),
		Oracle:   oracle.New(cfg.AllowedLodRoots),
	}
}

// Violation builds a violation from a node, formatting the registry template
// with args. Fixability defaults to the catalog flag; rules that depend on
// inference override the Fixable field of the returned value.
func (c *Context) Violation(code string, node *pyast.Node, symbol string, args ...interface{}) Violation {
	mod := node.Module()
	path := ""
	if mod != nil {
		path = mod.Path
	}
	return Violation{
		Code:          code,
		Message:       c.Registry.Message(code, args...),
		Path:          path,
		Line:          node.Line,
		Col:           node.Col,
		Node:          node,
		Fixable:       c.Registry.IsFixable(code),
		IsCommentOnly: c.Registry.IsCommentOnly(code),
		Symbol:        symbol,
	}
}

// LayerOf resolves and memoizes the module's layer.
func (c *Context) LayerOf(mod *pyast.Module) string {
	return c.Resolver.ResolveModule(mod)
}

// IsTestModule reports whether the module is a test file. Several rules
// exempt tests from layer governance.
func IsTestModule(mod *pyast.Module) bool {
	return isTestPath(mod.Path)
}

// Checkable is the one-and-done rule shape: invoked once per subscribed node
// kind, returns violations.
type Checkable interface {
	Code() string
	Description() string
	Subscriptions() []pyast.NodeKind
	Check(ctx *Context, node *pyast.Node) []Violation
}

// Stateful is the multi-step rule shape. The driver owns the current scope
// and the counters; the rule receives them as arguments and stays pure.
type Stateful interface {
	Code() string
	Description() string
	// RecordFunctionDef returns the node when it opens a tracked scope.
	RecordFunctionDef(ctx *Context, node *pyast.Node) *pyast.Node
	// RecordCall is invoked for each Call inside the tracked scope.
	RecordCall(ctx *Context, node *pyast.Node, scope *pyast.Node) []Violation
	// RecordMockOnly reports whether the call counts as a mock; the driver
	// increments the counter.
	RecordMockOnly(ctx *Context, node *pyast.Node, scope *pyast.Node) bool
	// LeaveFunctionDef closes the scope with the driver-held mock count.
	LeaveFunctionDef(ctx *Context, scope *pyast.Node, mockCount int) []Violation
}

// Fixable marks rules able to repair their violations. Fix may return no
// plans together with a reason; the engine records it on the violation.
type Fixable interface {
	// Fix returns the plans repairing the violation, or nil and a failure
	// reason when no deterministic repair exists.
	Fix(ctx *Context, v Violation) ([]plan.Plan, string)
}

// ModuleRule is an optional extension for rules needing a whole-module pass
// (token-driven or cross-class aggregation) beyond per-node dispatch.
type ModuleRule interface {
	CheckModule(ctx *Context, mod *pyast.Module) []Violation
}
