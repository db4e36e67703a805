package rules

import (
	"strings"

	"github.com/stellar-eng/excelsior/layers"
	"github.com/stellar-eng/excelsior/pyast"
)

const (
	codeIllegalDependency = "W9001"
	codeProtectedAccess   = "W9003"
	codeForbiddenIO       = "W9004"
	codeNoneCheck         = "W9012"
	codeSilentIO          = "W9013"
	codeUIConcern         = "W9014"
)

// allowedImports is the dependency matrix: which layers each layer may import.
var allowedImports = map[string]map[string]bool{
	layers.Domain:         {},
	layers.UseCase:        {layers.Domain: true},
	layers.Interface:      {layers.UseCase: true, layers.Domain: true},
	layers.Infrastructure: {layers.UseCase: true, layers.Domain: true},
}

// DependencyRule enforces W9001: inner layers must not import outer layers.
type DependencyRule struct{}

func NewDependencyRule() *DependencyRule { return &DependencyRule{} }

func (r *DependencyRule) Code() string { return codeIllegalDependency }
func (r *DependencyRule) Description() string {
	return "Inner layers strictly cannot import from outer layers."
}

func (r *DependencyRule) Subscriptions() []pyast.NodeKind {
	return []pyast.NodeKind{pyast.KindImport, pyast.KindImportFrom}
}

func (r *DependencyRule) Check(ctx *Context, node *pyast.Node) []Violation {
	mod := node.Module()
	if mod == nil || IsTestModule(mod) {
		return nil
	}
	currentLayer := ctx.LayerOf(mod)
	if currentLayer == "" {
		return nil
	}
	var names []string
	if node.Kind == pyast.KindImportFrom {
		if node.ModuleName != "" {
			names = []string{node.ModuleName}
		}
	} else {
		for _, imp := range node.Imports {
			names = append(names, imp.Name)
		}
	}
	var out []Violation
	for _, name := range names {
		if ctx.Config.IsSharedKernel(name) {
			continue
		}
		importedLayer := ctx.Resolver.ResolveImport(name)
		if importedLayer == "" || importedLayer == currentLayer {
			continue
		}
		allowed := allowedImports[currentLayer]
		if allowed == nil {
			// Custom layers default to permissive: only the built-in matrix
			// carries direction rules.
			continue
		}
		if !allowed[importedLayer] {
			out = append(out, ctx.Violation(codeIllegalDependency, node, name, importedLayer, currentLayer))
		}
	}
	return out
}

// VisibilityRule enforces W9003: protected member access across boundaries.
type VisibilityRule struct{}

func NewVisibilityRule() *VisibilityRule { return &VisibilityRule{} }

func (r *VisibilityRule) Code() string { return codeProtectedAccess }
func (r *VisibilityRule) Description() string {
	return "Protected members (_name) should not be accessed across layer boundaries."
}

func (r *VisibilityRule) Subscriptions() []pyast.NodeKind {
	return []pyast.NodeKind{pyast.KindAttribute}
}

func (r *VisibilityRule) Check(ctx *Context, node *pyast.Node) []Violation {
	if !ctx.Config.VisibilityEnforcement {
		return nil
	}
	if !strings.HasPrefix(node.Name, "_") || strings.HasPrefix(node.Name, "__") {
		return nil
	}
	if receiverIsSelf(node.Expr) {
		return nil
	}
	mod := node.Module()
	if mod == nil || IsTestModule(mod) {
		return nil
	}
	return []Violation{ctx.Violation(codeProtectedAccess, node, node.Name, node.Name)}
}

// forbiddenIOPrefixes names the stdlib/driver surface banned in silent layers.
var forbiddenIOPrefixes = []string{
	"open",
	"os.open",
	"os.remove",
	"os.mkdir",
	"os.makedirs",
	"socket.",
	"requests.",
	"urllib.",
	"httpx.",
	"sqlalchemy.",
	"sqlite3.",
	"psycopg2.",
	"pymongo.",
	"redis.",
	"boto3.",
	"shutil.",
}

// ResourceRule enforces W9004: forbidden I/O receivers in silent layers.
type ResourceRule struct{}

func NewResourceRule() *ResourceRule { return &ResourceRule{} }

func (r *ResourceRule) Code() string { return codeForbiddenIO }
func (r *ResourceRule) Description() string {
	return "Raw I/O operations are forbidden in silent layers."
}

func (r *ResourceRule) Subscriptions() []pyast.NodeKind {
	return []pyast.NodeKind{pyast.KindImport, pyast.KindImportFrom, pyast.KindCall}
}

func (r *ResourceRule) Check(ctx *Context, node *pyast.Node) []Violation {
	mod := node.Module()
	if mod == nil || IsTestModule(mod) {
		return nil
	}
	layer := ctx.LayerOf(mod)
	if !ctx.Config.IsSilentLayer(layer) {
		return nil
	}
	switch node.Kind {
	case pyast.KindImport, pyast.KindImportFrom:
		names := make([]string, 0, len(node.Imports))
		if node.Kind == pyast.KindImportFrom {
			if node.ModuleName != "" {
				names = append(names, node.ModuleName)
			}
		} else {
			for _, imp := range node.Imports {
				names = append(names, imp.Name)
			}
		}
		for _, name := range names {
			for _, prefix := range forbiddenIOPrefixes {
				clean := strings.TrimSuffix(prefix, ".")
				if name == clean || strings.HasPrefix(name, clean+".") {
					return []Violation{ctx.Violation(codeForbiddenIO, node, name, "import "+name, layer)}
				}
			}
		}
	case pyast.KindCall:
		callName := node.CallName()
		if callName == "" {
			return nil
		}
		if r.isAllowedInterface(ctx, node) {
			return nil
		}
		for _, prefix := range forbiddenIOPrefixes {
			if callName == strings.TrimSuffix(prefix, ".") || strings.HasPrefix(callName, prefix) {
				return []Violation{ctx.Violation(codeForbiddenIO, node, callName, callName, layer)}
			}
		}
	}
	return nil
}

// isAllowedInterface exempts calls whose receiver's declared type is one of
// the configured I/O Protocol names.
func (r *ResourceRule) isAllowedInterface(ctx *Context, call *pyast.Node) bool {
	typeName := receiverDeclaredType(call)
	if typeName == "" {
		return false
	}
	for _, allowed := range ctx.Config.AllowedIOInterfaces {
		if typeName == allowed {
			return true
		}
	}
	return false
}

// receiverDeclaredType resolves the declared Protocol type of a call
// receiver: parameters via annotations, self attributes via the constructor.
func receiverDeclaredType(call *pyast.Node) string {
	if call.Func == nil || call.Func.Kind != pyast.KindAttribute {
		return ""
	}
	receiver := call.Func.Expr
	if receiver == nil {
		return ""
	}
	switch receiver.Kind {
	case pyast.KindName:
		if def := receiver.Lookup(receiver.Name); def != nil && def.Kind == pyast.KindAssignName {
			return annotationTypeName(def.Annotation)
		}
	case pyast.KindAttribute:
		if receiverIsSelf(receiver.Expr) {
			return selfAttributeTypeName(receiver.EnclosingClass(), receiver.Name)
		}
	}
	return ""
}

// NoneCheckRule enforces W9012: defensive None checks in silent layers.
type NoneCheckRule struct{}

func NewNoneCheckRule() *NoneCheckRule { return &NoneCheckRule{} }

func (r *NoneCheckRule) Code() string { return codeNoneCheck }
func (r *NoneCheckRule) Description() string {
	return "Silent layers must not defensively test collaborators for None."
}

func (r *NoneCheckRule) Subscriptions() []pyast.NodeKind {
	return []pyast.NodeKind{pyast.KindCompare}
}

func (r *NoneCheckRule) Check(ctx *Context, node *pyast.Node) []Violation {
	mod := node.Module()
	if mod == nil || IsTestModule(mod) {
		return nil
	}
	if !ctx.Config.IsSilentLayer(ctx.LayerOf(mod)) {
		return nil
	}
	if !strings.Contains(node.Value, "is") {
		return nil
	}
	hasNone := false
	for _, child := range node.Children {
		if child.Kind == pyast.KindConst && child.Const == pyast.ConstNone {
			hasNone = true
		}
	}
	if !hasNone {
		return nil
	}
	return []Violation{ctx.Violation(codeNoneCheck, node, node.Content(), node.Content())}
}

// loggingCallNames matches direct logging surface usage.
var loggingCallNames = map[string]bool{
	"debug": true, "info": true, "warning": true, "error": true,
	"exception": true, "critical": true, "log": true,
}

// SilentIORule enforces W9013: print/logging calls in silent layers.
type SilentIORule struct{}

func NewSilentIORule() *SilentIORule { return &SilentIORule{} }

func (r *SilentIORule) Code() string { return codeSilentIO }
func (r *SilentIORule) Description() string {
	return "Silent layers may not print or log directly."
}

func (r *SilentIORule) Subscriptions() []pyast.NodeKind {
	return []pyast.NodeKind{pyast.KindCall}
}

func (r *SilentIORule) Check(ctx *Context, node *pyast.Node) []Violation {
	mod := node.Module()
	if mod == nil || IsTestModule(mod) {
		return nil
	}
	layer := ctx.LayerOf(mod)
	if !ctx.Config.IsSilentLayer(layer) {
		return nil
	}
	callName := node.CallName()
	if callName == "print" {
		return []Violation{ctx.Violation(codeSilentIO, node, callName, callName, layer)}
	}
	if strings.HasPrefix(callName, "logging.") {
		return []Violation{ctx.Violation(codeSilentIO, node, callName, callName, layer)}
	}
	if node.Func != nil && node.Func.Kind == pyast.KindAttribute && loggingCallNames[node.Func.Name] {
		if receiver := node.Func.Expr; receiver != nil {
			receiverName := receiver.DottedName()
			if receiverName == "logger" || receiverName == "log" ||
				strings.HasSuffix(receiverName, ".logger") || strings.HasSuffix(receiverName, "._logger") {
				typeName := receiverDeclaredType(node)
				for _, allowed := range ctx.Config.AllowedIOInterfaces {
					if typeName == allowed {
						return nil
					}
				}
				return []Violation{ctx.Violation(codeSilentIO, node, callName, callName, layer)}
			}
		}
	}
	return nil
}

// UIConcernRule enforces W9014: terminal formatting inside Domain.
type UIConcernRule struct{}

func NewUIConcernRule() *UIConcernRule { return &UIConcernRule{} }

func (r *UIConcernRule) Code() string { return codeUIConcern }
func (r *UIConcernRule) Description() string {
	return "ANSI escapes and terminal formatting belong in the Interface layer."
}

func (r *UIConcernRule) Subscriptions() []pyast.NodeKind {
	return []pyast.NodeKind{pyast.KindConst}
}

func (r *UIConcernRule) Check(ctx *Context, node *pyast.Node) []Violation {
	if node.Const != pyast.ConstString {
		return nil
	}
	mod := node.Module()
	if mod == nil || IsTestModule(mod) {
		return nil
	}
	if ctx.LayerOf(mod) != layers.Domain {
		return nil
	}
	value := node.Value
	if strings.Contains(value, "\\033[") || strings.Contains(value, "\\x1b[") ||
		strings.Contains(value, "\x1b[") {
		snippet := value
		if len(snippet) > 24 {
			snippet = snippet[:24]
		}
		return []Violation{ctx.Violation(codeUIConcern, node, snippet, "ANSI escape sequence")}
	}
	return nil
}
