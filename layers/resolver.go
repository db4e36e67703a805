// Package layers resolves module paths to architectural layers.
package layers

import (
	"path/filepath"
	"regexp"
	"sort"
	"strings"

	"github.com/stellar-eng/excelsior/pyast"
	"github.com/stellar-eng/excelsior/pyconfig"
)

// Default layer names. The set is extensible through config; these cover the
// built-in conventions.
const (
	Domain         = "Domain"
	UseCase        = "UseCase"
	Interface      = "Interface"
	Infrastructure = "Infrastructure"
)

// conventionDirs maps directory segments to layers (case-insensitive).
var conventionDirs = map[string]string{
	"domain":         Domain,
	"entities":       Domain,
	"use_cases":      UseCase,
	"use_case":       UseCase,
	"usecases":       UseCase,
	"orchestrators":  UseCase,
	"interface":      Interface,
	"interfaces":     Interface,
	"ui":             Interface,
	"api":            Interface,
	"cli":            Interface,
	"commands":       Interface,
	"infrastructure": Infrastructure,
	"adapters":       Infrastructure,
	"gateways":       Infrastructure,
	"io":             Infrastructure,
}

// Resolver maps dotted module paths and file paths to layer names.
// Resolution is deterministic over config and path only; the AST is consulted
// solely for class-level exception markers.
type Resolver struct {
	config   *pyconfig.Config
	prefixes []string
	patterns []compiledPattern
}

type compiledPattern struct {
	re    *regexp.Regexp
	layer string
}

// NewResolver builds a resolver from configuration. layer_map keys are sorted
// longest-first so the longest dotted prefix wins.
func NewResolver(cfg *pyconfig.Config) *Resolver {
	r := &Resolver{config: cfg}
	for prefix := range cfg.LayerMap {
		r.prefixes = append(r.prefixes, prefix)
	}
	sort.Slice(r.prefixes, func(i, j int) bool {
		if len(r.prefixes[i]) != len(r.prefixes[j]) {
			return len(r.prefixes[i]) > len(r.prefixes[j])
		}
		return r.prefixes[i] < r.prefixes[j]
	})
	for pattern, layer := range cfg.LayerPatterns {
		if re, err := regexp.Compile(pattern); err == nil {
			r.patterns = append(r.patterns, compiledPattern{re: re, layer: layer})
		}
	}
	sort.Slice(r.patterns, func(i, j int) bool {
		return r.patterns[i].re.String() < r.patterns[j].re.String()
	})
	return r
}

// Resolve maps a module to a layer name. Empty string means unresolved, which
// W9017 reports for files under src/. classNode, when given, enables the
// class-level exception checks (frameworks, explicit internal markers).
func (r *Resolver) Resolve(moduleName, filePath string, classNode *pyast.Node) string {
	// 1. Exceptions opt the class out of layer governance entirely.
	if classNode != nil && r.isException(classNode) {
		return ""
	}

	// 2. Explicit layer_map entries, longest dotted prefix first.
	for _, prefix := range r.prefixes {
		if moduleName == prefix || strings.HasPrefix(moduleName, prefix+".") {
			return r.config.LayerMap[prefix]
		}
	}

	// 3. Regex patterns against the file path.
	normalized := filepath.ToSlash(filePath)
	for _, p := range r.patterns {
		if p.re.MatchString(normalized) {
			return p.layer
		}
	}

	// 4/5. Vendored trees are Infrastructure regardless of their internal
	// directory names; conventions otherwise.
	if isSitePackages(normalized) {
		return Infrastructure
	}
	for _, segment := range strings.Split(strings.TrimSuffix(normalized, ".py"), "/") {
		if layer, ok := conventionDirs[strings.ToLower(segment)]; ok {
			return layer
		}
	}

	// 6. Unresolved.
	return ""
}

// ResolveModule resolves and memoizes the layer on the module.
func (r *Resolver) ResolveModule(mod *pyast.Module) string {
	if mod.Layer == "" {
		mod.Layer = r.Resolve(mod.Name, mod.Path, nil)
	}
	return mod.Layer
}

// ResolveImport resolves the layer of an imported dotted module name.
func (r *Resolver) ResolveImport(importName string) string {
	simulated := "/" + strings.ReplaceAll(importName, ".", "/") + ".py"
	return r.Resolve(importName, simulated, nil)
}

// classSuffixes maps class-name suffixes to layers, used where a module mixes
// classes of several zones (god-file detection).
var classSuffixes = []struct {
	suffix string
	layer  string
}{
	{"UseCase", UseCase},
	{"Interactor", UseCase},
	{"Orchestrator", UseCase},
	{"Query", UseCase},
	{"Entity", Domain},
	{"ValueObject", Domain},
	{"Repository", Infrastructure},
	{"Adapter", Infrastructure},
	{"Client", Infrastructure},
	{"Gateway", Infrastructure},
	{"Controller", Interface},
	{"Router", Interface},
	{"Command", Interface},
}

// ResolveClass resolves a class's layer by name suffix first, then by the
// module's own resolution. Exceptions (frameworks, internal markers) opt out.
func (r *Resolver) ResolveClass(class *pyast.Node, mod *pyast.Module) string {
	if class != nil && r.isException(class) {
		return ""
	}
	if class != nil {
		for _, s := range classSuffixes {
			if strings.HasSuffix(class.Name, s.suffix) {
				return s.layer
			}
		}
	}
	return r.Resolve(mod.Name, mod.Path, nil)
}

// isException applies the class-level opt-outs: framework base classes,
// explicit internal decorators, and configured internal markers.
func (r *Resolver) isException(class *pyast.Node) bool {
	if class.Kind != pyast.KindClassDef {
		return false
	}
	for _, base := range class.Bases {
		name := base.DottedName()
		for _, framework := range r.config.ContractIntegrity.FrameworkBaseClasses {
			if name == framework || strings.HasSuffix(name, "."+framework) {
				return true
			}
		}
	}
	if r.config.ContractIntegrity.AllowInternalDecorator && class.HasDecorator("internal") {
		return true
	}
	for _, internal := range r.config.InternalModules {
		if class.Name == internal {
			return true
		}
	}
	return false
}

// UnderSrc reports whether the file lives under a src/ directory relative to
// the project root.
func UnderSrc(filePath, root string) bool {
	rel := filePath
	if root != "" {
		if r, err := filepath.Rel(root, filePath); err == nil {
			rel = r
		}
	}
	rel = filepath.ToSlash(rel)
	return strings.HasPrefix(rel, "src/")
}

func isSitePackages(path string) bool {
	return strings.Contains(path, "site-packages/") || strings.Contains(path, ".venv/")
}
