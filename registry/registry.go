// Package registry loads the declarative rule catalog. The catalog file is the
// single source of truth for rule metadata; no other package may define codes,
// symbols or fixability.
package registry

import (
	_ "embed"
	"fmt"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"
)

//go:embed rule_registry.yaml
var catalogData []byte

// Prefix namespaces this engine's rule identifiers in the catalog.
const Prefix = "excelsior."

// RuleDefinition is one catalog entry.
type RuleDefinition struct {
	Code               string `yaml:"-"`
	Symbol             string `yaml:"symbol"`
	DisplayName        string `yaml:"display_name"`
	MessageTemplate    string `yaml:"message_template"`
	Fixable            bool   `yaml:"fixable"`
	CommentOnly        bool   `yaml:"comment_only"`
	ManualInstructions string `yaml:"manual_instructions"`
	ProactiveGuidance  string `yaml:"proactive_guidance"`
	Severity           string `yaml:"severity"`
}

// Registry is the immutable in-memory catalog, keyed by code and by symbol.
type Registry struct {
	byCode   map[string]*RuleDefinition
	bySymbol map[string]*RuleDefinition
	codes    []string
}

// Load parses the embedded catalog and enforces its invariants: unique codes,
// unique symbols, non-empty message templates.
func Load() (*Registry, error) {
	return loadFrom(catalogData)
}

func loadFrom(data []byte) (*Registry, error) {
	raw := map[string]*RuleDefinition{}
	if err := yaml.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("failed to parse rule catalog: %w", err)
	}
	reg := &Registry{
		byCode:   make(map[string]*RuleDefinition, len(raw)),
		bySymbol: make(map[string]*RuleDefinition, len(raw)),
	}
	for key, def := range raw {
		if !strings.HasPrefix(key, Prefix) {
			return nil, fmt.Errorf("catalog key %q lacks %q prefix", key, Prefix)
		}
		code := strings.TrimPrefix(key, Prefix)
		def.Code = code
		if def.MessageTemplate == "" {
			return nil, fmt.Errorf("catalog entry %s has no message_template", key)
		}
		if def.Symbol == "" {
			return nil, fmt.Errorf("catalog entry %s has no symbol", key)
		}
		if _, dup := reg.byCode[code]; dup {
			return nil, fmt.Errorf("duplicate rule code %s", code)
		}
		if _, dup := reg.bySymbol[def.Symbol]; dup {
			return nil, fmt.Errorf("duplicate rule symbol %s", def.Symbol)
		}
		reg.byCode[code] = def
		reg.bySymbol[def.Symbol] = def
		reg.codes = append(reg.codes, code)
	}
	sort.Strings(reg.codes)
	return reg, nil
}

// Get returns the definition for a rule code, or nil.
func (r *Registry) Get(code string) *RuleDefinition {
	return r.byCode[code]
}

// GetBySymbol returns the definition for a rule symbol, or nil.
func (r *Registry) GetBySymbol(symbol string) *RuleDefinition {
	return r.bySymbol[symbol]
}

// Resolve accepts either a bare code, a symbol, or a prefixed rule id.
func (r *Registry) Resolve(id string) *RuleDefinition {
	id = strings.TrimPrefix(id, Prefix)
	if def := r.byCode[id]; def != nil {
		return def
	}
	return r.bySymbol[id]
}

// Codes returns every rule code in sorted order.
func (r *Registry) Codes() []string {
	out := make([]string, len(r.codes))
	copy(out, r.codes)
	return out
}

// IsFixable reports whether the catalog marks the code fixable.
func (r *Registry) IsFixable(code string) bool {
	def := r.byCode[code]
	return def != nil && def.Fixable
}

// IsCommentOnly reports whether the code's fix is a governance comment.
func (r *Registry) IsCommentOnly(code string) bool {
	def := r.byCode[code]
	return def != nil && def.CommentOnly
}

// Message formats the rule's message template with args.
func (r *Registry) Message(code string, args ...interface{}) string {
	def := r.byCode[code]
	if def == nil {
		return code
	}
	if len(args) == 0 {
		return def.MessageTemplate
	}
	return fmt.Sprintf(def.MessageTemplate, args...)
}
