package repository_test

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/stellar-eng/excelsior/repository"
)

func TestDetector_DetectProject(t *testing.T) {
	root := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(root, "pyproject.toml"),
		[]byte("[project]\nname = \"orders-service\"\n"), 0o644))
	nested := filepath.Join(root, "src", "domain")
	require.NoError(t, os.MkdirAll(nested, 0o755))

	project, err := repository.New().DetectProject(nested)
	require.NoError(t, err)
	assert.Equal(t, root, project.RootPath)
	assert.Equal(t, "pyproject.toml", project.Marker)
	assert.Equal(t, "orders-service", project.Name)
}

func TestDetector_FallbackToDirectory(t *testing.T) {
	dir := t.TempDir()
	project, err := repository.New().DetectProject(dir)
	require.NoError(t, err)
	assert.Equal(t, filepath.Base(dir), project.Name)
	assert.Empty(t, project.Marker)
}
