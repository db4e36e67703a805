package oracle

import (
	"embed"
	"strings"

	"gopkg.in/yaml.v3"
)

//go:embed stubs/*.yaml
var stubFS embed.FS

// stubFile is the on-disk shape of a bundled interface description.
type stubFile struct {
	Module    string            `yaml:"module"`
	Functions map[string]string `yaml:"functions"`
	Classes   map[string]struct {
		Methods    map[string]string `yaml:"methods"`
		Attributes map[string]string `yaml:"attributes"`
	} `yaml:"classes"`
}

// stubSet lazily loads and caches stub files by module name.
type stubSet struct {
	loaded map[string]*stubFile
	missed map[string]bool
}

func newStubSet() *stubSet {
	return &stubSet{
		loaded: make(map[string]*stubFile),
		missed: make(map[string]bool),
	}
}

func (s *stubSet) get(module string) *stubFile {
	if stub, ok := s.loaded[module]; ok {
		return stub
	}
	if s.missed[module] {
		return nil
	}
	data, err := stubFS.ReadFile("stubs/" + module + ".yaml")
	if err != nil {
		s.missed[module] = true
		return nil
	}
	var stub stubFile
	if err := yaml.Unmarshal(data, &stub); err != nil {
		s.missed[module] = true
		return nil
	}
	s.loaded[module] = &stub
	return &stub
}

// Has reports whether a stub exists for the module.
func (s *stubSet) Has(module string) bool {
	return s.get(module) != nil
}

// functionReturn resolves a dotted callable (`os.path.join`) to its stubbed
// return type.
func (s *stubSet) functionReturn(dotted string) string {
	idx := strings.Index(dotted, ".")
	if idx < 0 {
		stub := s.get("builtins")
		if stub == nil {
			return ""
		}
		return normalizeStub(stub.Functions[dotted])
	}
	module, rest := dotted[:idx], dotted[idx+1:]
	stub := s.get(module)
	if stub == nil {
		return ""
	}
	return normalizeStub(stub.Functions[rest])
}

// methodReturn resolves `<receiver qname>.<method>` via the stubbed classes.
func (s *stubSet) methodReturn(receiverQName, method string) string {
	module, class := splitQName(receiverQName)
	stub := s.get(module)
	if stub == nil {
		return ""
	}
	cls, ok := stub.Classes[class]
	if !ok {
		return ""
	}
	return normalizeStub(cls.Methods[method])
}

// attributeType resolves `<receiver qname>.<attribute>` via stubbed classes.
func (s *stubSet) attributeType(receiverQName, attribute string) string {
	module, class := splitQName(receiverQName)
	stub := s.get(module)
	if stub == nil {
		return ""
	}
	cls, ok := stub.Classes[class]
	if !ok {
		return ""
	}
	return normalizeStub(cls.Attributes[attribute])
}

func splitQName(qname string) (module, name string) {
	idx := strings.LastIndex(qname, ".")
	if idx < 0 {
		return "builtins", qname
	}
	return qname[:idx], qname[idx+1:]
}

// normalizeStub maps a stub entry to a canonical qname. Any never counts as a
// usable inference result.
func normalizeStub(value string) string {
	if value == "" || value == "typing.Any" {
		return ""
	}
	return Normalize(value)
}

// HasStub reports whether the oracle ships a stub for the top-level module.
func (o *Oracle) HasStub(module string) bool {
	top := module
	if idx := strings.Index(top, "."); idx > 0 {
		top = top[:idx]
	}
	return o.stubs.Has(top)
}
