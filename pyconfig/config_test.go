package pyconfig_test

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/stellar-eng/excelsior/pyconfig"
)

func TestLoad_Defaults(t *testing.T) {
	root := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(root, "pyproject.toml"),
		[]byte("[project]\nname = \"demo\"\n"), 0o644))

	cfg, err := pyconfig.Load(root)
	require.NoError(t, err)
	assert.Equal(t, root, cfg.Root)
	assert.Equal(t, "generic", cfg.ProjectType)
	assert.Equal(t, []string{"Domain", "UseCase"}, cfg.SilentLayers)
	assert.Equal(t, 10, cfg.ComplexityThreshold)
	assert.Equal(t, 7, cfg.InterfaceSegregationLimit)
	assert.Equal(t, 4, cfg.MockLimit)
	assert.True(t, cfg.RuffEnabled)
}

func TestLoad_CleanArchSection(t *testing.T) {
	root := t.TempDir()
	content := `[tool.clean-arch]
project_type = "cli_app"
visibility_enforcement = false
silent_layers = ["Domain"]
complexity_threshold = 15
mock_limit = 6
shared_kernel_modules = ["shared.telemetry"]

[tool.clean-arch.layer_map]
use_cases = "UseCase"
infrastructure = "Infrastructure"

[tool.clean-arch.contract_integrity]
require_protocol = ["OrderGateway"]
services_require_protocol = true
`
	require.NoError(t, os.WriteFile(filepath.Join(root, "pyproject.toml"), []byte(content), 0o644))

	cfg, err := pyconfig.Load(root)
	require.NoError(t, err)
	assert.Equal(t, "cli_app", cfg.ProjectType)
	assert.False(t, cfg.VisibilityEnforcement)
	assert.Equal(t, []string{"Domain"}, cfg.SilentLayers)
	assert.Equal(t, 15, cfg.ComplexityThreshold)
	assert.Equal(t, 6, cfg.MockLimit)
	assert.Equal(t, "UseCase", cfg.LayerMap["use_cases"])
	assert.Equal(t, []string{"OrderGateway"}, cfg.ContractIntegrity.RequireProtocol)
	assert.True(t, cfg.IsSharedKernel("shared.telemetry.step"))
	assert.False(t, cfg.IsSharedKernel("shared.other"))
}

func TestLoad_MalformedIsConfigError(t *testing.T) {
	root := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(root, "pyproject.toml"),
		[]byte("[tool.clean-arch\nbroken"), 0o644))

	_, err := pyconfig.Load(root)
	require.Error(t, err)
	var cfgErr *pyconfig.ConfigError
	assert.ErrorAs(t, err, &cfgErr)
}

func TestLoad_WalksUpToProjectRoot(t *testing.T) {
	root := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(root, "pyproject.toml"),
		[]byte("[tool.clean-arch]\nproject_type = \"web_like\"\n"), 0o644))
	nested := filepath.Join(root, "src", "use_cases")
	require.NoError(t, os.MkdirAll(nested, 0o755))

	cfg, err := pyconfig.Load(nested)
	require.NoError(t, err)
	assert.Equal(t, root, cfg.Root)
	assert.Equal(t, "web_like", cfg.ProjectType)
}
