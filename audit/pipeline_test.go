package audit_test

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/stellar-eng/excelsior/audit"
	"github.com/stellar-eng/excelsior/pyast"
	"github.com/stellar-eng/excelsior/pyconfig"
	"github.com/stellar-eng/excelsior/registry"
	"github.com/stellar-eng/excelsior/rules"
)

// fakeAdapter is a canned LinterAdapter for pipeline tests.
type fakeAdapter struct {
	name     string
	enabled  bool
	findings []audit.Finding
	err      error
	calls    int
}

func (f *fakeAdapter) Name() string  { return f.name }
func (f *fakeAdapter) Enabled() bool { return f.enabled }
func (f *fakeAdapter) GatherResults(ctx context.Context, path string) ([]audit.Finding, error) {
	f.calls++
	return f.findings, f.err
}
func (f *fakeAdapter) ApplyFixes(ctx context.Context, path string) (bool, error) { return false, nil }
func (f *fakeAdapter) SupportsAutofix() bool                                     { return false }
func (f *fakeAdapter) FixableRules() []string                                    { return nil }
func (f *fakeAdapter) ManualFixInstructions(code string) string                  { return "" }

// fakeRuff adds the selection surface.
type fakeRuff struct {
	fakeAdapter
	selected [][]string
}

func (f *fakeRuff) GatherSelected(ctx context.Context, path string, selectors []string) ([]audit.Finding, error) {
	f.calls++
	f.selected = append(f.selected, selectors)
	return f.findings, f.err
}

func (f *fakeRuff) ApplySelected(ctx context.Context, path string, selectors []string) (bool, error) {
	return false, nil
}

func writeProject(t *testing.T, files map[string]string) string {
	t.Helper()
	root := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(root, "pyproject.toml"),
		[]byte("[tool.clean-arch]\nproject_type = \"generic\"\n"), 0o644))
	for rel, content := range files {
		path := filepath.Join(root, rel)
		require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
		require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	}
	return root
}

func pipelineFor(t *testing.T, root string, importLinter audit.LinterAdapter, ruff audit.RuffSelector, mypy audit.LinterAdapter) (*audit.Pipeline, *pyconfig.Config) {
	t.Helper()
	cfg := pyconfig.Default()
	cfg.Root = root
	cfg.LayerMap = map[string]string{
		"use_cases":      "UseCase",
		"domain":         "Domain",
		"infrastructure": "Infrastructure",
	}
	reg, err := registry.Load()
	require.NoError(t, err)
	ctx := rules.NewContext(cfg, reg)
	cache := pyast.NewCache(root)
	pipe := audit.NewPipeline(cfg, ctx, cache, importLinter, ruff, mypy, nil)
	pipe.Clock = func() time.Time { return time.Date(2026, 8, 6, 12, 0, 0, 0, time.UTC) }
	return pipe, cfg
}

func TestPipeline_FirstBlockerStopsLaterPasses(t *testing.T) {
	root := writeProject(t, map[string]string{
		"src/use_cases/order.py": "from infrastructure.db import Database\n",
	})
	importLinter := &fakeAdapter{name: "import_linter", enabled: true,
		findings: []audit.Finding{{Code: "contract", Message: "Broken contract: layers"}}}
	ruff := &fakeRuff{fakeAdapter: fakeAdapter{name: "ruff", enabled: true}}
	mypy := &fakeAdapter{name: "mypy", enabled: true}

	pipe, _ := pipelineFor(t, root, importLinter, ruff, mypy)
	result, err := pipe.Run(context.Background(), root)
	require.NoError(t, err)

	assert.Equal(t, audit.PassContracts, result.BlockedBy)
	assert.True(t, result.IsBlocked())
	assert.Equal(t, 0, ruff.calls, "later passes must not execute")
	assert.Equal(t, 0, mypy.calls)
	for _, pass := range result.Passes[1:] {
		assert.True(t, pass.Skipped, "pass %s should be skipped", pass.Name)
	}
}

func TestPipeline_ArchitecturalBlocker(t *testing.T) {
	root := writeProject(t, map[string]string{
		"src/use_cases/order.py": "from infrastructure.db import Database\n",
	})
	importLinter := &fakeAdapter{name: "import_linter", enabled: true}
	ruff := &fakeRuff{fakeAdapter: fakeAdapter{name: "ruff", enabled: true}}
	mypy := &fakeAdapter{name: "mypy", enabled: true}

	pipe, _ := pipelineFor(t, root, importLinter, ruff, mypy)
	result, err := pipe.Run(context.Background(), root)
	require.NoError(t, err)

	assert.Equal(t, audit.PassArchitecture, result.BlockedBy)
	arch := result.Pass(audit.PassArchitecture)
	require.NotNil(t, arch)
	require.NotEmpty(t, arch.Violations)
	assert.Equal(t, "W9001", arch.Violations[0].Code)
	// Pass 5 never ran: ruff was invoked once (pass 2 only).
	assert.Equal(t, 1, ruff.calls)
	quality := result.Pass(audit.PassQuality)
	require.NotNil(t, quality)
	assert.True(t, quality.Skipped)
}

func TestPipeline_CleanRunIsUnblocked(t *testing.T) {
	root := writeProject(t, map[string]string{
		"src/domain/entities.py": "from dataclasses import dataclass\n\n\n@dataclass(frozen=True)\nclass Order:\n    order_id: str\n",
	})
	importLinter := &fakeAdapter{name: "import_linter", enabled: true}
	ruff := &fakeRuff{fakeAdapter: fakeAdapter{name: "ruff", enabled: true}}
	mypy := &fakeAdapter{name: "mypy", enabled: true}

	pipe, _ := pipelineFor(t, root, importLinter, ruff, mypy)
	result, err := pipe.Run(context.Background(), root)
	require.NoError(t, err)

	assert.Equal(t, audit.BlockedByNone, result.BlockedBy)
	assert.False(t, result.IsBlocked())
	assert.Equal(t, 2, ruff.calls, "both ruff passes run on a clean tree")
	assert.Equal(t, [][]string{audit.ImportTypingSelect, audit.CodeQualitySelect}, ruff.selected)
}

func TestPipeline_DisabledPassesAreSkipped(t *testing.T) {
	root := writeProject(t, map[string]string{
		"src/domain/entities.py": "from dataclasses import dataclass\n\n\n@dataclass(frozen=True)\nclass Order:\n    order_id: str\n",
	})
	pipe, cfg := pipelineFor(t, root, nil, nil, nil)
	cfg.RuffEnabled = false
	cfg.MypyEnabled = false
	cfg.ImportLinterEnabled = false

	result, err := pipe.Run(context.Background(), root)
	require.NoError(t, err)

	assert.Equal(t, audit.BlockedByNone, result.BlockedBy)
	for _, name := range []string{audit.PassContracts, audit.PassImportsTyping, audit.PassTypes, audit.PassQuality} {
		pass := result.Pass(name)
		require.NotNil(t, pass)
		assert.True(t, pass.Skipped, "pass %s", name)
	}
}

func TestPipeline_ToolErrorBecomesBlocker(t *testing.T) {
	root := writeProject(t, nil)
	importLinter := &fakeAdapter{name: "import_linter", enabled: true, err: assert.AnError}
	pipe, _ := pipelineFor(t, root, importLinter, nil, nil)

	result, err := pipe.Run(context.Background(), root)
	require.NoError(t, err)
	assert.Equal(t, audit.PassContracts, result.BlockedBy)
	pass := result.Pass(audit.PassContracts)
	require.NotNil(t, pass)
	require.Error(t, pass.Err)
}

func TestPipeline_ParseErrorReported(t *testing.T) {
	root := writeProject(t, map[string]string{
		"src/use_cases/broken.py": "def broken(:\n",
	})
	pipe, cfg := pipelineFor(t, root, nil, nil, nil)
	cfg.RuffEnabled = false
	cfg.MypyEnabled = false
	cfg.ImportLinterEnabled = false

	result, err := pipe.Run(context.Background(), root)
	require.NoError(t, err)

	assert.Equal(t, audit.PassArchitecture, result.BlockedBy)
	arch := result.Pass(audit.PassArchitecture)
	require.NotNil(t, arch)
	require.NotEmpty(t, arch.Violations)
	assert.Equal(t, audit.ParseErrorCode, arch.Violations[0].Code)
}
