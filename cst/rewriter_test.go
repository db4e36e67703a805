package cst_test

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/stellar-eng/excelsior/cst"
	"github.com/stellar-eng/excelsior/plan"
)

func writeTemp(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "sample.py")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func readBack(t *testing.T, path string) string {
	t.Helper()
	data, err := os.ReadFile(path)
	require.NoError(t, err)
	return string(data)
}

func TestRewriter_NoPlansIsNoOp(t *testing.T) {
	original := "def greet(name: str):\n    return name\n"
	path := writeTemp(t, original)
	info, err := os.Stat(path)
	require.NoError(t, err)

	changed, err := cst.NewRewriter().ApplyFixes(path, nil)
	require.NoError(t, err)
	assert.False(t, changed)

	after, err := os.Stat(path)
	require.NoError(t, err)
	assert.Equal(t, info.ModTime(), after.ModTime())
	assert.Equal(t, original, readBack(t, path))
}

func TestRewriter_AddReturnType(t *testing.T) {
	path := writeTemp(t, "def greet(name: str):\n    return \"hi \" + name\n")

	changed, err := cst.NewRewriter().ApplyFixes(path, []plan.Plan{
		plan.ReturnType(path, "greet", 1, "str"),
	})
	require.NoError(t, err)
	assert.True(t, changed)
	assert.Equal(t, "def greet(name: str) -> str:\n    return \"hi \" + name\n", readBack(t, path))
}

func TestRewriter_AddReturnTypeIdempotent(t *testing.T) {
	path := writeTemp(t, "def greet(name: str) -> str:\n    return name\n")

	changed, err := cst.NewRewriter().ApplyFixes(path, []plan.Plan{
		plan.ReturnType(path, "greet", 1, "str"),
	})
	require.NoError(t, err)
	assert.False(t, changed)
}

func TestRewriter_AddParameterType(t *testing.T) {
	tests := []struct {
		name string
		src  string
		want string
	}{
		{
			"bare parameter",
			"def greet(name):\n    return name\n",
			"def greet(name: str):\n    return name\n",
		},
		{
			"parameter with default",
			"def greet(name=\"bob\"):\n    return name\n",
			"def greet(name: str = \"bob\"):\n    return name\n",
		},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			path := writeTemp(t, tc.src)
			changed, err := cst.NewRewriter().ApplyFixes(path, []plan.Plan{
				plan.ParameterType(path, "greet", 1, "name", "str"),
			})
			require.NoError(t, err)
			assert.True(t, changed)
			assert.Equal(t, tc.want, readBack(t, path))
		})
	}
}

func TestRewriter_AddFrozenDecorator(t *testing.T) {
	tests := []struct {
		name string
		src  string
		want string
	}{
		{
			"rewrites bare dataclass",
			"@dataclass\nclass Point:\n    x: int\n",
			"@dataclass(frozen=True)\nclass Point:\n    x: int\n",
		},
		{
			"extends dataclass args",
			"@dataclass(slots=True)\nclass Point:\n    x: int\n",
			"@dataclass(slots=True, frozen=True)\nclass Point:\n    x: int\n",
		},
		{
			"inserts decorator",
			"class Point:\n    x: int\n",
			"@dataclass(frozen=True)\nclass Point:\n    x: int\n",
		},
		{
			"already frozen untouched",
			"@dataclass(frozen=True)\nclass Point:\n    x: int\n",
			"@dataclass(frozen=True)\nclass Point:\n    x: int\n",
		},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			path := writeTemp(t, tc.src)
			classLine := 1
			if tc.src[0] == '@' {
				classLine = 2
			}
			_, err := cst.NewRewriter().ApplyFixes(path, []plan.Plan{
				plan.FrozenDecorator(path, "Point", classLine),
			})
			require.NoError(t, err)
			assert.Equal(t, tc.want, readBack(t, path))
		})
	}
}

func TestRewriter_AddImport(t *testing.T) {
	path := writeTemp(t, "\"\"\"Module docstring.\"\"\"\nimport os\n\nx = 1\n")

	changed, err := cst.NewRewriter().ApplyFixes(path, []plan.Plan{
		plan.Import(path, "pathlib", "Path"),
	})
	require.NoError(t, err)
	assert.True(t, changed)
	assert.Equal(t, "\"\"\"Module docstring.\"\"\"\nimport os\nfrom pathlib import Path\n\nx = 1\n", readBack(t, path))

	// Re-applying is a no-op.
	changed, err = cst.NewRewriter().ApplyFixes(path, []plan.Plan{
		plan.Import(path, "pathlib", "Path"),
	})
	require.NoError(t, err)
	assert.False(t, changed)
}

func TestRewriter_GovernanceComment(t *testing.T) {
	path := writeTemp(t, "def f(user):\n    return user.address.coordinates.lat\n")

	p := plan.GovernanceComment(path, 2, "W9006", "Law of Demeter",
		"Law of Demeter: user.address.coordinates",
		"Introduce a delegate method on the immediate collaborator.")
	changed, err := cst.NewRewriter().ApplyFixes(path, []plan.Plan{p})
	require.NoError(t, err)
	assert.True(t, changed)
	content := readBack(t, path)
	assert.Contains(t, content, "# GOVERNANCE W9006 (Law of Demeter): Law of Demeter: user.address.coordinates")
	assert.Contains(t, content, "# FIX: Introduce a delegate method")
	// The chain itself is never mutated.
	assert.Contains(t, content, "return user.address.coordinates.lat")

	// Idempotent: applying again changes nothing.
	changed, err = cst.NewRewriter().ApplyFixes(path, []plan.Plan{p})
	require.NoError(t, err)
	assert.False(t, changed)
}

func TestRewriter_UnrecognizedKindFailsLoudly(t *testing.T) {
	path := writeTemp(t, "x = 1\n")
	_, err := cst.NewRewriter().ApplyFixes(path, []plan.Plan{{Kind: "teleport_code", TargetPath: path}})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unrecognized plan kind")
}

func TestRewriter_StructuralPlans(t *testing.T) {
	dir := t.TempDir()
	changed, err := cst.NewRewriter().ApplyFixes(filepath.Join(dir, "__init__.py"), []plan.Plan{
		plan.InitFile(dir),
		plan.PyTypedMarker(dir),
	})
	require.NoError(t, err)
	assert.True(t, changed)
	assert.FileExists(t, filepath.Join(dir, "__init__.py"))
	assert.FileExists(t, filepath.Join(dir, "py.typed"))
}
