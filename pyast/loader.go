package pyast

import (
	"io/fs"
	"path/filepath"
	"runtime"
	"sort"
	"strings"
	"sync"

	"golang.org/x/sync/errgroup"
)

// ignoredDirs are never descended into when scanning a project tree.
var ignoredDirs = []string{".git", ".venv", "venv", "node_modules", "__pycache__", ".excelsior", ".mypy_cache", ".ruff_cache"}

// ListSourceFiles walks root and returns every Python source file in
// deterministic (sorted) order.
func ListSourceFiles(root string) ([]string, error) {
	var files []string
	err := filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			for _, ign := range ignoredDirs {
				if d.Name() == ign {
					return filepath.SkipDir
				}
			}
			return nil
		}
		if strings.HasSuffix(d.Name(), ".py") {
			files = append(files, path)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	sort.Strings(files)
	return files, nil
}

// LoadResult pairs a parsed module with the parse failure of its file, if any.
type LoadResult struct {
	Path   string
	Module *Module
	Err    error
}

// LoadProject parses every Python file under root. Files are parsed in
// parallel with per-worker state only; results are reduced into a single
// sorted slice so downstream passes (including scatter accumulation) run
// single-threaded over a deterministic order.
func LoadProject(root string, cache *Cache) ([]LoadResult, error) {
	files, err := ListSourceFiles(root)
	if err != nil {
		return nil, err
	}
	results := make([]LoadResult, len(files))
	var group errgroup.Group
	group.SetLimit(runtime.NumCPU())
	var mu sync.Mutex
	parser := NewParser()
	for i, path := range files {
		i, path := i, path
		group.Go(func() error {
			mod, perr := parser.ParseFile(path)
			if mod != nil && root != "" {
				mod.Name = ModuleNameFor(path, root)
			}
			results[i] = LoadResult{Path: path, Module: mod, Err: perr}
			if mod != nil && cache != nil {
				mu.Lock()
				cache.Put(mod)
				mu.Unlock()
			}
			return nil
		})
	}
	if err := group.Wait(); err != nil {
		return nil, err
	}
	return results, nil
}
