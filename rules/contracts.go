package rules

import (
	"fmt"
	"path/filepath"
	"strings"

	"github.com/stellar-eng/excelsior/layers"
	"github.com/stellar-eng/excelsior/pyast"
)

const (
	codeContractIntegrity = "W9201"
	codeConcreteStub      = "W9202"
)

// ContractIntegrityRule enforces W9201 through the eight-step decision
// algorithm. The emitted message names the numeric step that fired and how to
// override it.
type ContractIntegrityRule struct{}

func NewContractIntegrityRule() *ContractIntegrityRule { return &ContractIntegrityRule{} }

func (r *ContractIntegrityRule) Code() string { return codeContractIntegrity }
func (r *ContractIntegrityRule) Description() string {
	return "Infrastructure classes must implement Domain Protocols."
}

func (r *ContractIntegrityRule) Subscriptions() []pyast.NodeKind {
	return []pyast.NodeKind{pyast.KindClassDef}
}

func (r *ContractIntegrityRule) Check(ctx *Context, node *pyast.Node) []Violation {
	mod := node.Module()
	if mod == nil || IsTestModule(mod) {
		return nil
	}
	if ctx.LayerOf(mod) != layers.Infrastructure {
		return nil
	}
	if isExceptionClass(node) {
		return nil
	}
	required, step, why := r.decide(ctx, node, mod)
	if !required {
		return nil
	}
	if r.implementsDomainProtocol(ctx, node) {
		return nil
	}
	detail := fmt.Sprintf(
		"class %s requires a Domain Protocol (rule %d: %s). Override with [tool.clean-arch.contract_integrity] internal_implementation = [%q]",
		node.Name, step, why, node.Name)
	return []Violation{ctx.Violation(codeContractIntegrity, node, node.Name, detail)}
}

// decide runs the ordered decision steps and returns whether the class
// requires a protocol, plus the step number and its short rationale.
func (r *ContractIntegrityRule) decide(ctx *Context, class *pyast.Node, mod *pyast.Module) (bool, int, string) {
	ci := ctx.Config.ContractIntegrity

	// 1. Explicit configuration wins outright.
	for _, name := range ci.RequireProtocol {
		if name == class.Name {
			return true, 1, "explicit require_protocol entry"
		}
	}
	for _, name := range ci.InternalImplementation {
		if name == class.Name {
			return false, 1, "explicit internal_implementation entry"
		}
	}

	// 2. Framework subclasses and dataclasses are internal machinery.
	for _, base := range baseNames(class) {
		for _, framework := range ci.FrameworkBaseClasses {
			if base == framework || strings.HasSuffix(base, "."+framework) {
				return false, 2, "framework base class"
			}
		}
	}
	if isDataclass(class) {
		return false, 2, "dataclass decorator"
	}

	// 3. Typed record shapes are internal.
	for _, base := range baseNames(class) {
		if base == "TypedDict" || base == "NamedTuple" ||
			strings.HasSuffix(base, ".TypedDict") || strings.HasSuffix(base, ".NamedTuple") {
			return false, 3, "TypedDict/NamedTuple ancestry"
		}
	}

	// 4. Private naming or @internal marks intent.
	if ci.AllowPrivatePrefix && strings.HasPrefix(class.Name, "_") {
		return false, 4, "private name prefix"
	}
	if ci.AllowInternalDecorator && class.HasDecorator("internal") {
		return false, 4, "@internal decorator"
	}

	// 5. DI-container products are contracts.
	if ci.AutoDetectDI && ctx.Index != nil && ctx.Index.ContainerReturns[class.Name] {
		return true, 5, "returned by a DI container method"
	}

	// 6. Classes reached from the silent core are contracts.
	if ci.AutoDetectImports && ctx.Index != nil && ctx.Index.DomainImports[class.Name] {
		return true, 6, "imported by a Domain/UseCase module"
	}

	// 7. A matching Domain protocol already exists.
	if ci.AutoDetectProtocols && ctx.Index != nil && ctx.Index.DomainProtocols[class.Name+"Protocol"] {
		return true, 7, "matching " + class.Name + "Protocol exists in Domain"
	}

	// 8. Directory defaults.
	dir := directoryKind(mod.Path)
	switch dir {
	case "services":
		if ci.ServicesRequireProtocol {
			return true, 8, "services directory default"
		}
	case "adapters":
		if ci.AdaptersRequireProtocol {
			return true, 8, "adapters directory default"
		}
	case "gateways":
		if ci.GatewaysRequireProtocol {
			return true, 8, "gateways directory default"
		}
	default:
		if ci.OtherRequireProtocol {
			return true, 8, "directory default"
		}
	}
	return false, 8, "internal by directory default"
}

func directoryKind(path string) string {
	for _, part := range strings.Split(filepath.ToSlash(path), "/") {
		switch part {
		case "services", "adapters", "gateways":
			return part
		}
	}
	return ""
}

// implementsDomainProtocol reports whether any base is a Domain Protocol.
func (r *ContractIntegrityRule) implementsDomainProtocol(ctx *Context, class *pyast.Node) bool {
	for _, base := range baseNames(class) {
		short := lastSegment(base)
		if strings.HasSuffix(short, "Protocol") {
			return true
		}
		if ctx.Index != nil && ctx.Index.DomainProtocols[short] {
			return true
		}
	}
	return false
}

func isExceptionClass(class *pyast.Node) bool {
	for _, base := range baseNames(class) {
		short := lastSegment(base)
		if short == "Exception" || strings.HasSuffix(short, "Error") {
			return true
		}
	}
	return false
}

// ConcreteStubRule enforces W9202: concrete methods whose body is pass.
type ConcreteStubRule struct{}

func NewConcreteStubRule() *ConcreteStubRule { return &ConcreteStubRule{} }

func (r *ConcreteStubRule) Code() string { return codeConcreteStub }
func (r *ConcreteStubRule) Description() string {
	return "A concrete method body of pass hides a missing implementation."
}

func (r *ConcreteStubRule) Subscriptions() []pyast.NodeKind {
	return []pyast.NodeKind{pyast.KindFunctionDef, pyast.KindAsyncFunctionDef}
}

func (r *ConcreteStubRule) Check(ctx *Context, node *pyast.Node) []Violation {
	mod := node.Module()
	if mod == nil || IsTestModule(mod) {
		return nil
	}
	class := node.EnclosingClass()
	if class == nil || isProtocolClass(class) {
		return nil
	}
	if node.HasDecorator("abstractmethod") || node.HasDecorator("overload") {
		return nil
	}
	if len(node.Body) != 1 || node.Body[0].Kind != pyast.KindPass {
		return nil
	}
	name := class.Name + "." + node.Name
	return []Violation{ctx.Violation(codeConcreteStub, node, node.Name, name)}
}
