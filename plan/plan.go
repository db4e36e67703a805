// Package plan defines declarative transformation plans. Plans are the only
// currency accepted by the CST gateway; no rewriter objects cross that
// boundary.
package plan

import "fmt"

// Kind enumerates the supported transformation kinds.
type Kind string

const (
	AddReturnType           Kind = "add_return_type"
	AddParameterType        Kind = "add_parameter_type"
	AddFrozenDecorator      Kind = "add_frozen_decorator"
	AddImport               Kind = "add_import"
	AddGovernanceComment    Kind = "add_governance_comment"
	AddPyTypedMarker        Kind = "add_py_typed_marker"
	AddInitFile             Kind = "add_init_file"
	AddNoneReturnAnnotation Kind = "add_none_return_annotation"
	StripDuplicateAnnotation Kind = "strip_duplicate_annotation"
	ApplyNamedTransformer   Kind = "apply_named_transformer"
)

// Anchor identifies the target node in the concrete syntax tree: its kind,
// its identifier and the line span it occupies.
type Anchor struct {
	NodeKind   string `json:"node_kind"`
	Identifier string `json:"identifier"`
	StartLine  int    `json:"start_line"`
	EndLine    int    `json:"end_line"`
}

// Plan is a declarative, side-effect-free description of a source edit. A
// plan owns everything the gateway needs to execute it without re-touching
// the AST.
type Plan struct {
	Kind       Kind              `json:"kind"`
	TargetPath string            `json:"target_path"`
	Anchor     Anchor            `json:"anchor"`
	Params     map[string]string `json:"params,omitempty"`
}

func (p Plan) String() string {
	return fmt.Sprintf("%s(%s@%d)", p.Kind, p.Anchor.Identifier, p.Anchor.StartLine)
}

// ReturnType builds a plan annotating a function's return type.
func ReturnType(path, function string, line int, returnType string) Plan {
	return Plan{
		Kind:       AddReturnType,
		TargetPath: path,
		Anchor:     Anchor{NodeKind: "FunctionDef", Identifier: function, StartLine: line, EndLine: line},
		Params:     map[string]string{"return_type": returnType},
	}
}

// ParameterType builds a plan annotating one parameter of a function.
func ParameterType(path, function string, line int, param, paramType string) Plan {
	return Plan{
		Kind:       AddParameterType,
		TargetPath: path,
		Anchor:     Anchor{NodeKind: "FunctionDef", Identifier: function, StartLine: line, EndLine: line},
		Params:     map[string]string{"param_name": param, "param_type": paramType},
	}
}

// FrozenDecorator builds a plan converting a class to a frozen dataclass.
func FrozenDecorator(path, class string, line int) Plan {
	return Plan{
		Kind:       AddFrozenDecorator,
		TargetPath: path,
		Anchor:     Anchor{NodeKind: "ClassDef", Identifier: class, StartLine: line, EndLine: line},
	}
}

// Import builds a plan adding `from module import names`.
func Import(path, module, names string) Plan {
	return Plan{
		Kind:       AddImport,
		TargetPath: path,
		Anchor:     Anchor{NodeKind: "Module", StartLine: 1, EndLine: 1},
		Params:     map[string]string{"module": module, "imports": names},
	}
}

// GovernanceComment builds a plan inserting a governance comment above a line.
func GovernanceComment(path string, line int, ruleCode, ruleName, problem, recommendation string) Plan {
	return Plan{
		Kind:       AddGovernanceComment,
		TargetPath: path,
		Anchor:     Anchor{NodeKind: "Statement", StartLine: line, EndLine: line},
		Params: map[string]string{
			"rule_code":      ruleCode,
			"rule_name":      ruleName,
			"problem":        problem,
			"recommendation": recommendation,
		},
	}
}

// NoneReturn builds a plan adding `-> None` to a dunder-init style function.
func NoneReturn(path, function string, line int) Plan {
	return Plan{
		Kind:       AddNoneReturnAnnotation,
		TargetPath: path,
		Anchor:     Anchor{NodeKind: "FunctionDef", Identifier: function, StartLine: line, EndLine: line},
	}
}

// PyTypedMarker builds a plan creating a py.typed marker in a package dir.
func PyTypedMarker(packageDir string) Plan {
	return Plan{
		Kind:       AddPyTypedMarker,
		TargetPath: packageDir,
		Anchor:     Anchor{NodeKind: "Package"},
	}
}

// InitFile builds a plan creating a missing __init__.py in a package dir.
func InitFile(packageDir string) Plan {
	return Plan{
		Kind:       AddInitFile,
		TargetPath: packageDir,
		Anchor:     Anchor{NodeKind: "Package"},
	}
}
