package rules

import (
	"strings"

	"github.com/stellar-eng/excelsior/layers"
	"github.com/stellar-eng/excelsior/pyast"
)

// ProjectIndex carries the cross-file facts some rules need (contract
// integrity decisions 5–7). It is built in a single pre-pass over all parsed
// modules and is immutable during rule evaluation.
type ProjectIndex struct {
	// DomainImports holds names imported by Domain/UseCase modules.
	DomainImports map[string]bool
	// DomainProtocols holds Protocol class names defined in Domain modules.
	DomainProtocols map[string]bool
	// ContainerReturns holds class names returned by DI-container methods.
	ContainerReturns map[string]bool
}

// BuildIndex scans parsed modules for the cross-file facts. Runs
// single-threaded after the parallel parse.
func BuildIndex(ctx *Context, modules []*pyast.Module) *ProjectIndex {
	idx := &ProjectIndex{
		DomainImports:    map[string]bool{},
		DomainProtocols:  map[string]bool{},
		ContainerReturns: map[string]bool{},
	}
	for _, mod := range modules {
		if mod == nil {
			continue
		}
		layer := ctx.LayerOf(mod)
		if layer == layers.Domain || layer == layers.UseCase {
			for _, imp := range append(mod.Root.NodesOfKind(pyast.KindImport), mod.Root.NodesOfKind(pyast.KindImportFrom)...) {
				for _, name := range imp.Imports {
					idx.DomainImports[name.Name] = true
				}
			}
		}
		if layer == layers.Domain {
			for _, class := range mod.Root.NodesOfKind(pyast.KindClassDef) {
				if isProtocolClass(class) {
					idx.DomainProtocols[class.Name] = true
				}
			}
		}
		for _, class := range mod.Root.NodesOfKind(pyast.KindClassDef) {
			if !strings.Contains(class.Name, "Container") {
				continue
			}
			for _, method := range classMethods(class) {
				if name := annotationTypeName(method.Returns); name != "" {
					idx.ContainerReturns[name] = true
				}
			}
		}
	}
	ctx.Index = idx
	return idx
}
