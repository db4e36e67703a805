package fix_test

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/stellar-eng/excelsior/audit"
	"github.com/stellar-eng/excelsior/cst"
	"github.com/stellar-eng/excelsior/fix"
	"github.com/stellar-eng/excelsior/pyast"
	"github.com/stellar-eng/excelsior/pyconfig"
	"github.com/stellar-eng/excelsior/registry"
	"github.com/stellar-eng/excelsior/rules"
)

func writeTree(t *testing.T, files map[string]string) string {
	t.Helper()
	root := t.TempDir()
	for rel, content := range files {
		path := filepath.Join(root, rel)
		require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
		require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	}
	return root
}

func newFixPipeline(t *testing.T, root string, opts fix.Options) (*fix.Pipeline, *pyast.Cache) {
	t.Helper()
	cfg := pyconfig.Default()
	cfg.Root = root
	cfg.LayerMap = map[string]string{
		"use_cases":      "UseCase",
		"domain":         "Domain",
		"infrastructure": "Infrastructure",
	}
	// External tools are out of scope for these tests.
	cfg.RuffEnabled = false
	cfg.MypyEnabled = false
	cfg.ImportLinterEnabled = false

	reg, err := registry.Load()
	require.NoError(t, err)
	ruleCtx := rules.NewContext(cfg, reg)
	cache := pyast.NewCache(root)
	auditPipe := audit.NewPipeline(cfg, ruleCtx, cache, nil, nil, nil, nil)
	opts.ValidateWithTests = false
	pipe := fix.NewPipeline(cfg, auditPipe, cache, cst.NewRewriter(), nil, nil, nil, opts)
	return pipe, cache
}

func read(t *testing.T, path string) string {
	t.Helper()
	data, err := os.ReadFile(path)
	require.NoError(t, err)
	return string(data)
}

func TestPipeline_TypeHintInjection(t *testing.T) {
	root := writeTree(t, map[string]string{
		"src/use_cases/greet.py": "def greet(name: str):\n    return \"hi \" + name\n",
	})
	opts := fix.DefaultOptions()
	opts.ValidateWithTests = false
	pipe, _ := newFixPipeline(t, root, opts)

	summary, err := pipe.Execute(context.Background(), root)
	require.NoError(t, err)

	content := read(t, filepath.Join(root, "src/use_cases/greet.py"))
	assert.Contains(t, content, "def greet(name: str) -> str:")
	require.True(t, summary.TotalModified() >= 1)
}

func TestPipeline_SecondRunIsIdempotent(t *testing.T) {
	root := writeTree(t, map[string]string{
		"src/use_cases/greet.py": "def greet(name: str):\n    return \"hi \" + name\n",
	})
	opts := fix.DefaultOptions()
	opts.ValidateWithTests = false

	pipe, cache := newFixPipeline(t, root, opts)
	_, err := pipe.Execute(context.Background(), root)
	require.NoError(t, err)
	after := read(t, filepath.Join(root, "src/use_cases/greet.py"))

	cache.Clear()
	pipe2, _ := newFixPipeline(t, root, opts)
	summary, err := pipe2.Execute(context.Background(), root)
	require.NoError(t, err)

	assert.Equal(t, after, read(t, filepath.Join(root, "src/use_cases/greet.py")))
	for _, pass := range summary.Passes {
		if pass.Name == "type_hint_injection" {
			assert.Equal(t, 0, pass.Modified, "second run must not modify files")
		}
	}
}

func TestPipeline_UninferableRecordsFailure(t *testing.T) {
	root := writeTree(t, map[string]string{
		"src/use_cases/dyn.py": "def dyn(name: str):\n    return process(name)\n",
	})
	opts := fix.DefaultOptions()
	opts.ValidateWithTests = false
	pipe, _ := newFixPipeline(t, root, opts)

	summary, err := pipe.Execute(context.Background(), root)
	require.NoError(t, err)

	// The file keeps its unannotated signature.
	content := read(t, filepath.Join(root, "src/use_cases/dyn.py"))
	assert.Contains(t, content, "def dyn(name: str):")
	require.NotEmpty(t, summary.FailedFixes)
	assert.Contains(t, summary.FailedFixes[0], "W9015")
	assert.Contains(t, summary.FailedFixes[0], "Inference failed")
}

func TestPipeline_GatedPassesSkippedWhenBlocked(t *testing.T) {
	// The illegal import blocks the audit, so passes 3 and 4 must not run and
	// the Demeter chain must stay uncommented.
	root := writeTree(t, map[string]string{
		"src/use_cases/order.py": "from infrastructure.db import Database\n\n\ndef locate(user):\n    return user.address.coordinates.lat\n",
	})
	opts := fix.DefaultOptions()
	opts.ValidateWithTests = false
	pipe, _ := newFixPipeline(t, root, opts)

	summary, err := pipe.Execute(context.Background(), root)
	require.NoError(t, err)

	var sawGatedSkip bool
	for _, pass := range summary.Passes {
		if pass.Name == "architectural_code_fixes" || pass.Name == "governance_comments" {
			assert.True(t, pass.Skipped, "gated pass %s must be skipped", pass.Name)
			assert.Contains(t, pass.SkipReason, "Audit blocked by excelsior")
			sawGatedSkip = true
		}
	}
	assert.True(t, sawGatedSkip)
	content := read(t, filepath.Join(root, "src/use_cases/order.py"))
	assert.NotContains(t, content, "GOVERNANCE")
}

func TestPipeline_GovernanceCommentsSkippedWhenAuditBlocked(t *testing.T) {
	// A Demeter chain is comment-only, but its W9006 finding still blocks the
	// audit, so pass 4's gate stays closed even in a CommentsOnly run, which
	// still consults the gate. The expected outcome is a skip, not a write.
	root := writeTree(t, map[string]string{
		"src/use_cases/geo.py": "def locate(user: object) -> object:\n    return user.address.coordinates.lat\n",
	})
	opts := fix.DefaultOptions()
	opts.ValidateWithTests = false
	opts.CommentsOnly = true
	pipe, _ := newFixPipeline(t, root, opts)

	summary, err := pipe.Execute(context.Background(), root)
	require.NoError(t, err)

	var governance *fix.PassOutcome
	for i := range summary.Passes {
		if summary.Passes[i].Name == "governance_comments" {
			governance = &summary.Passes[i]
		}
	}
	require.NotNil(t, governance)
	assert.True(t, governance.Skipped)
	assert.Contains(t, governance.SkipReason, "Audit blocked")
}

func TestBackupManager_RestoreBitForBit(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "mod.py")
	original := "x = 1\r\ny = \"\\x00binary-ish\"\n"
	require.NoError(t, os.WriteFile(path, []byte(original), 0o644))

	manager := fix.NewBackupManager(false)
	backup, err := manager.Create(path)
	require.NoError(t, err)

	require.NoError(t, os.WriteFile(path, []byte("x = 2\n"), 0o644))
	require.NoError(t, manager.Restore(backup))
	assert.Equal(t, original, read(t, path))

	manager.Cleanup(backup)
	_, err = os.Stat(backup.BackupPath)
	assert.True(t, os.IsNotExist(err))
}
