package rules

import (
	"fmt"
	"path/filepath"
	"sort"
	"strings"

	"github.com/stellar-eng/excelsior/layers"
	"github.com/stellar-eng/excelsior/pyast"
)

const (
	codeGodFile        = "W9010"
	codeDeepStructure  = "W9011"
	codeLayerIntegrity = "W9017"
)

// GodFileRule enforces W9010: more than one heavy class, or classes spanning
// multiple layers, in one module. Runs as a module rule because the verdict
// aggregates over every class in the file.
type GodFileRule struct{}

func NewGodFileRule() *GodFileRule { return &GodFileRule{} }

func (r *GodFileRule) Code() string { return codeGodFile }
func (r *GodFileRule) Description() string {
	return "A file holds one heavy component of one layer."
}

func (r *GodFileRule) CheckModule(ctx *Context, mod *pyast.Module) []Violation {
	if IsTestModule(mod) {
		return nil
	}
	layerSet := map[string]bool{}
	var heavy []string
	for _, stmt := range mod.Root.Body {
		if stmt.Kind != pyast.KindClassDef {
			continue
		}
		layer := ctx.Resolver.ResolveClass(stmt, mod)
		if layer == "" {
			continue
		}
		layerSet[layer] = true
		if isHeavyClass(stmt, layer) {
			heavy = append(heavy, stmt.Name)
		}
	}
	if len(layerSet) > 1 {
		names := make([]string, 0, len(layerSet))
		for l := range layerSet {
			names = append(names, l)
		}
		sort.Strings(names)
		detail := "Mixed layers: " + strings.Join(names, ", ")
		return []Violation{ctx.Violation(codeGodFile, mod.Root, mod.Name, detail)}
	}
	if len(heavy) > 1 {
		detail := fmt.Sprintf("%d heavy components: %s", len(heavy), strings.Join(heavy, ", "))
		return []Violation{ctx.Violation(codeGodFile, mod.Root, mod.Name, detail)}
	}
	return nil
}

// isHeavyClass: UseCase/Infrastructure classes are heavy; Protocols and
// dataclass DTOs are light.
func isHeavyClass(class *pyast.Node, layer string) bool {
	if layer != layers.UseCase && layer != layers.Infrastructure {
		return false
	}
	if isProtocolClass(class) || isDataclass(class) {
		return false
	}
	return true
}

// DeepStructureRule enforces W9011: logic modules parked at the project root.
type DeepStructureRule struct{}

func NewDeepStructureRule() *DeepStructureRule { return &DeepStructureRule{} }

func (r *DeepStructureRule) Code() string { return codeDeepStructure }
func (r *DeepStructureRule) Description() string {
	return "Non-boilerplate logic must reside in sub-packages."
}

func (r *DeepStructureRule) Subscriptions() []pyast.NodeKind {
	return []pyast.NodeKind{pyast.KindModule}
}

func (r *DeepStructureRule) Check(ctx *Context, node *pyast.Node) []Violation {
	mod := node.Module()
	if mod == nil || IsTestModule(mod) {
		return nil
	}
	rel := mod.Path
	if ctx.Config.Root != "" {
		if r, err := filepath.Rel(ctx.Config.Root, mod.Path); err == nil {
			rel = r
		}
	}
	rel = filepath.ToSlash(rel)
	if strings.Count(rel, "/") > 0 {
		return nil
	}
	if ctx.Config.IsEntryModule(mod.Name) {
		return nil
	}
	if !hasLogic(node) {
		return nil
	}
	return []Violation{ctx.Violation(codeDeepStructure, node, mod.Name, mod.Name)}
}

func hasLogic(root *pyast.Node) bool {
	for _, stmt := range root.Body {
		switch stmt.Kind {
		case pyast.KindClassDef, pyast.KindFunctionDef, pyast.KindAsyncFunctionDef:
			return true
		}
	}
	return false
}

// LayerIntegrityRule enforces W9017: src/ files with no resolved layer.
type LayerIntegrityRule struct{}

func NewLayerIntegrityRule() *LayerIntegrityRule { return &LayerIntegrityRule{} }

func (r *LayerIntegrityRule) Code() string { return codeLayerIntegrity }
func (r *LayerIntegrityRule) Description() string {
	return "Every governed module resolves to exactly one layer."
}

func (r *LayerIntegrityRule) Subscriptions() []pyast.NodeKind {
	return []pyast.NodeKind{pyast.KindModule}
}

func (r *LayerIntegrityRule) Check(ctx *Context, node *pyast.Node) []Violation {
	mod := node.Module()
	if mod == nil || IsTestModule(mod) {
		return nil
	}
	if ctx.LayerOf(mod) != "" {
		return nil
	}
	if !layers.UnderSrc(mod.Path, ctx.Config.Root) {
		return nil
	}
	return []Violation{ctx.Violation(codeLayerIntegrity, node, mod.Name, mod.Name)}
}
