package pyast

import (
	"os"
)

// Cache is a process-local parse-on-demand module cache. It is mutated only by
// Get, Put and Clear; under the single-threaded pipeline model readers need no
// locks. Cleared explicitly between fix passes so later passes see fresh code.
type Cache struct {
	parser  *Parser
	root    string
	modules map[string]*Module
}

// NewCache creates a cache rooted at the project directory. The root is used
// to derive dotted module names.
func NewCache(root string) *Cache {
	return &Cache{
		parser:  NewParser(),
		root:    root,
		modules: make(map[string]*Module),
	}
}

// Get returns the parsed Module for path, parsing on first access. A cached
// entry is re-parsed when the file content hash changed on disk.
func (c *Cache) Get(path string) (*Module, error) {
	if mod, ok := c.modules[path]; ok {
		src, err := os.ReadFile(path)
		if err == nil {
			if h, herr := Hash(src); herr == nil && h == mod.Hash {
				return mod, nil
			}
		}
	}
	mod, err := c.parser.ParseFile(path)
	if err != nil {
		return nil, err
	}
	if c.root != "" {
		mod.Name = ModuleNameFor(path, c.root)
	}
	c.modules[path] = mod
	return mod, nil
}

// Put stores a pre-parsed module, used by tests and the parallel parse path.
func (c *Cache) Put(mod *Module) {
	c.modules[mod.Path] = mod
}

// Clear drops every cached module. Modules are destroyed here; callers must
// not retain node references across a Clear.
func (c *Cache) Clear() {
	c.modules = make(map[string]*Module)
}

// Len returns the number of cached modules.
func (c *Cache) Len() int {
	return len(c.modules)
}
