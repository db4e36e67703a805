package rules

import (
	"sort"

	"github.com/stellar-eng/excelsior/plan"
	"github.com/stellar-eng/excelsior/pyast"
)

// Engine drives one AST walk per file, invoking rules indexed by the node
// kinds they subscribe to. Stateful rules receive visit/leave pairs for
// scopes; the engine owns the scope stack and counters.
type Engine struct {
	ctx         *Context
	checkables  map[pyast.NodeKind][]Checkable
	statefuls   []Stateful
	moduleRules []ModuleRule
	fixables    map[string]Fixable
	scatter     *EntropyRule
}

// NewEngine registers the full rule set against a context.
func NewEngine(ctx *Context) *Engine {
	e := &Engine{
		ctx:        ctx,
		checkables: make(map[pyast.NodeKind][]Checkable),
		fixables:   make(map[string]Fixable),
	}
	for _, rule := range defaultCheckables() {
		e.registerCheckable(rule)
	}
	e.statefuls = []Stateful{NewTestingRule()}
	e.moduleRules = []ModuleRule{NewBypassRule(), NewGodFileRule()}
	e.scatter = NewEntropyRule()

	e.registerFixable(codeMissingTypeHint, NewTypeHintFixer())
	e.registerFixable(codeDomainImmutability, NewImmutabilityFixer())
	e.registerFixable(codeLawOfDemeter, NewGovernanceCommentFixer())
	return e
}

func defaultCheckables() []Checkable {
	return []Checkable{
		NewDependencyRule(),
		NewVisibilityRule(),
		NewResourceRule(),
		NewDelegationRule(),
		NewDemeterRule(),
		NewNakedReturnRule(),
		NewMissingAbstractionRule(),
		NewDeepStructureRule(),
		NewNoneCheckRule(),
		NewSilentIORule(),
		NewUIConcernRule(),
		NewTypeHintRule(),
		NewBannedAnyRule(),
		NewLayerIntegrityRule(),
		NewTopLevelFunctionRule(),
		NewGlobalStateRule(),
		NewComplexityRule(),
		NewInterfaceSegregationRule(),
		NewConstructorInjectionRule(),
		NewExceptionHygieneRule(),
		NewPatternSuggestionRule(),
		NewPrivateMethodTestRule(),
		NewContractIntegrityRule(),
		NewConcreteStubRule(),
		NewDIRule(),
		NewImmutabilityRule(),
	}
}

func (e *Engine) registerCheckable(rule Checkable) {
	for _, kind := range rule.Subscriptions() {
		e.checkables[kind] = append(e.checkables[kind], rule)
	}
}

func (e *Engine) registerFixable(code string, fixer Fixable) {
	e.fixables[code] = fixer
}

// statefulScope is one driver-owned frame for a stateful rule.
type statefulScope struct {
	rule      Stateful
	scope     *pyast.Node
	mockCount int
}

// CheckModule runs every registered rule over one parsed module and returns
// the deduplicated, deterministically ordered violations. The scatter
// accumulator is fed as a side effect; its findings surface in
// FinishScatter.
func (e *Engine) CheckModule(mod *pyast.Module) []Violation {
	var out []Violation
	var stack []*statefulScope

	var visit func(node *pyast.Node)
	visit = func(node *pyast.Node) {
		for _, rule := range e.checkables[node.Kind] {
			out = append(out, rule.Check(e.ctx, node)...)
		}

		var opened []*statefulScope
		if node.Kind == pyast.KindFunctionDef || node.Kind == pyast.KindAsyncFunctionDef {
			for _, rule := range e.statefuls {
				if scope := rule.RecordFunctionDef(e.ctx, node); scope != nil {
					frame := &statefulScope{rule: rule, scope: scope}
					stack = append(stack, frame)
					opened = append(opened, frame)
				}
			}
		}
		if node.Kind == pyast.KindCall {
			for _, frame := range stack {
				out = append(out, frame.rule.RecordCall(e.ctx, node, frame.scope)...)
				if frame.rule.RecordMockOnly(e.ctx, node, frame.scope) {
					frame.mockCount++
				}
			}
		}

		for _, child := range node.Children {
			visit(child)
		}

		for _, frame := range opened {
			out = append(out, frame.rule.LeaveFunctionDef(e.ctx, frame.scope, frame.mockCount)...)
			stack = stack[:len(stack)-1]
		}
	}
	visit(mod.Root)

	for _, rule := range e.moduleRules {
		out = append(out, rule.CheckModule(e.ctx, mod)...)
	}
	e.scatter.RecordModule(e.ctx, mod)

	return Normalize(out)
}

// FinishScatter runs the single-threaded scatter reduction after all files of
// a pass have been collected.
func (e *Engine) FinishScatter() []Violation {
	return Normalize(e.scatter.Finish(e.ctx))
}

// ResetScatter clears the cross-file accumulators between passes.
func (e *Engine) ResetScatter() {
	e.scatter = NewEntropyRule()
}

// Fix dispatches a fixable violation to its rule's fix planner. It returns
// the plans, or an empty slice and a concrete failure reason.
func (e *Engine) Fix(v Violation) ([]plan.Plan, string) {
	fixer, ok := e.fixables[v.Code]
	if !ok {
		return nil, "No fixer registered for rule"
	}
	return fixer.Fix(e.ctx, v)
}

// HasFixer reports whether a fix planner exists for the code.
func (e *Engine) HasFixer(code string) bool {
	_, ok := e.fixables[code]
	return ok
}

// Normalize deduplicates by (code, path, line, symbol) and sorts by
// (path, line, column, code).
func Normalize(violations []Violation) []Violation {
	seen := make(map[string]bool, len(violations))
	out := violations[:0]
	for _, v := range violations {
		key := v.Key()
		if seen[key] {
			continue
		}
		seen[key] = true
		out = append(out, v)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Less(out[j]) })
	return out
}
