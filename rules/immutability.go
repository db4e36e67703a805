package rules

import (
	"github.com/stellar-eng/excelsior/layers"
	"github.com/stellar-eng/excelsior/plan"
	"github.com/stellar-eng/excelsior/pyast"
)

const codeDomainImmutability = "W9601"

// ImmutabilityRule enforces W9601: Domain entities must be frozen. Two
// shapes fire: an unfrozen dataclass in Domain, and a self-attribute
// assignment outside __init__ in a Domain class not marked frozen.
type ImmutabilityRule struct{}

func NewImmutabilityRule() *ImmutabilityRule { return &ImmutabilityRule{} }

func (r *ImmutabilityRule) Code() string { return codeDomainImmutability }
func (r *ImmutabilityRule) Description() string {
	return "Domain entities are immutable values."
}

func (r *ImmutabilityRule) Subscriptions() []pyast.NodeKind {
	return []pyast.NodeKind{pyast.KindClassDef, pyast.KindAssign, pyast.KindAugAssign}
}

func (r *ImmutabilityRule) Check(ctx *Context, node *pyast.Node) []Violation {
	mod := node.Module()
	if mod == nil || IsTestModule(mod) {
		return nil
	}
	if ctx.LayerOf(mod) != layers.Domain {
		return nil
	}
	switch node.Kind {
	case pyast.KindClassDef:
		if isDataclass(node) && !isFrozenDataclass(node) {
			return []Violation{ctx.Violation(codeDomainImmutability, node, node.Name, node.Name)}
		}
	case pyast.KindAssign, pyast.KindAugAssign:
		attr := assignedSelfAttr(node)
		if attr == "" {
			return nil
		}
		fn := node.EnclosingFunction()
		if fn == nil || fn.Name == "__init__" || fn.Name == "__post_init__" {
			return nil
		}
		class := node.EnclosingClass()
		if class == nil || isFrozenDataclass(class) {
			return nil
		}
		return []Violation{ctx.Violation(codeDomainImmutability, node, attr, class.Name)}
	}
	return nil
}

// ImmutabilityFixer plans the frozen-decorator repair for W9601.
type ImmutabilityFixer struct{}

func NewImmutabilityFixer() *ImmutabilityFixer { return &ImmutabilityFixer{} }

// Fix converts the violating class to @dataclass(frozen=True).
func (f *ImmutabilityFixer) Fix(ctx *Context, v Violation) ([]plan.Plan, string) {
	node := v.Node
	if node == nil {
		return nil, "Violation lost its node reference"
	}
	class := node
	if class.Kind != pyast.KindClassDef {
		class = node.EnclosingClass()
	}
	if class == nil {
		return nil, "No enclosing class to freeze"
	}
	plans := []plan.Plan{plan.FrozenDecorator(v.Path, class.Name, class.Line)}
	if !isDataclass(class) {
		plans = append(plans, plan.Import(v.Path, "dataclasses", "dataclass"))
	}
	return plans, ""
}

// GovernanceCommentFixer plans comment-only repairs (W9006): the chain is
// never rewritten, a governance comment describing the manual refactor is
// inserted above the violating line.
type GovernanceCommentFixer struct{}

func NewGovernanceCommentFixer() *GovernanceCommentFixer { return &GovernanceCommentFixer{} }

func (f *GovernanceCommentFixer) Fix(ctx *Context, v Violation) ([]plan.Plan, string) {
	def := ctx.Registry.Get(v.Code)
	if def == nil {
		return nil, "Unknown rule code"
	}
	return []plan.Plan{plan.GovernanceComment(
		v.Path, v.Line, v.Code, def.DisplayName, v.Message, def.ManualInstructions,
	)}, ""
}
