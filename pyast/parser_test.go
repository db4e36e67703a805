package pyast_test

import (
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/stellar-eng/excelsior/pyast"
)

func TestParser_ParseSource(t *testing.T) {
	tests := []struct {
		name      string
		src       string
		wantKinds []pyast.NodeKind
	}{
		{
			name: "imports",
			src: `import os
from infrastructure.db import Database
`,
			wantKinds: []pyast.NodeKind{pyast.KindImport, pyast.KindImportFrom},
		},
		{
			name: "class with method",
			src: `class Order:
    def total(self) -> int:
        return 42
`,
			wantKinds: []pyast.NodeKind{pyast.KindClassDef},
		},
		{
			name: "assignments",
			src: `x = 1
y: int = 2
x += 3
`,
			wantKinds: []pyast.NodeKind{pyast.KindAssign, pyast.KindAnnAssign, pyast.KindAugAssign},
		},
	}
	parser := pyast.NewParser()
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			mod, err := parser.ParseSource([]byte(tc.src), "/proj/src/sample.py")
			require.NoError(t, err)
			require.NotNil(t, mod.Root)
			assert.Equal(t, pyast.KindModule, mod.Root.Kind)
			for i, kind := range tc.wantKinds {
				require.True(t, i < len(mod.Root.Body), "missing body statement %d", i)
				assert.Equal(t, kind.String(), mod.Root.Body[i].Kind.String())
			}
		})
	}
}

func TestParser_ParentLinks(t *testing.T) {
	src := `def outer():
    value = compute()
    return value.total
`
	mod, err := pyast.NewParser().ParseSource([]byte(src), "/proj/src/sample.py")
	require.NoError(t, err)

	// Every node's parent chain terminates at the module root.
	mod.Root.Walk(func(n *pyast.Node) bool {
		assert.Same(t, mod.Root, n.Root())
		if n != mod.Root {
			require.NotNil(t, n.Parent)
		}
		return true
	})
	assert.Same(t, mod, mod.Root.Module())
}

func TestParser_FunctionShape(t *testing.T) {
	src := `def greet(name: str, times=2) -> str:
    return "hi " + name
`
	mod, err := pyast.NewParser().ParseSource([]byte(src), "/proj/src/sample.py")
	require.NoError(t, err)

	fn := mod.Root.Body[0]
	require.Equal(t, pyast.KindFunctionDef, fn.Kind)
	assert.Equal(t, "greet", fn.Name)
	require.NotNil(t, fn.Returns)
	require.NotNil(t, fn.Arguments)
	require.Len(t, fn.Arguments.Children, 2)
	assert.Equal(t, "name", fn.Arguments.Children[0].Name)
	require.NotNil(t, fn.Arguments.Children[0].Annotation)
	assert.Equal(t, "times", fn.Arguments.Children[1].Name)
	require.NotNil(t, fn.Arguments.Children[1].Default)
}

func TestParser_DecoratedClass(t *testing.T) {
	src := `@dataclass(frozen=True)
class Point:
    x: int
    y: int
`
	mod, err := pyast.NewParser().ParseSource([]byte(src), "/proj/src/domain/point.py")
	require.NoError(t, err)

	class := mod.Root.Body[0]
	require.Equal(t, pyast.KindClassDef, class.Kind)
	assert.Equal(t, "Point", class.Name)
	assert.True(t, class.HasDecorator("dataclass"))
}

func TestParser_ParseError(t *testing.T) {
	_, err := pyast.NewParser().ParseSource([]byte("def broken(:\n"), "/proj/src/bad.py")
	require.Error(t, err)
	var perr *pyast.ParseError
	require.ErrorAs(t, err, &perr)
	assert.Equal(t, "/proj/src/bad.py", perr.Path)
}

func TestNode_Lookup(t *testing.T) {
	src := `import requests

def fetch(url: str):
    session = requests.Session()
    return session.get(url)
`
	mod, err := pyast.NewParser().ParseSource([]byte(src), "/proj/src/sample.py")
	require.NoError(t, err)

	var sessionName *pyast.Node
	mod.Root.Walk(func(n *pyast.Node) bool {
		if n.Kind == pyast.KindName && n.Name == "session" && sessionName == nil {
			sessionName = n
		}
		return true
	})
	require.NotNil(t, sessionName)
	def := sessionName.Lookup("session")
	require.NotNil(t, def)
	assert.Equal(t, pyast.KindAssignName, def.Kind)

	imp := sessionName.Lookup("requests")
	require.NotNil(t, imp)
	assert.Equal(t, pyast.KindImport, imp.Kind)
}

func TestModuleNameFor(t *testing.T) {
	tests := []struct {
		path string
		root string
		want string
	}{
		{"/proj/src/use_cases/order.py", "/proj", "use_cases.order"},
		{"/proj/pkg/__init__.py", "/proj", "pkg"},
		{"/proj/main.py", "/proj", "main"},
	}
	for _, tc := range tests {
		assert.Equal(t, tc.want, pyast.ModuleNameFor(tc.path, tc.root))
	}
}

func TestCache_ContentInvalidation(t *testing.T) {
	dir := t.TempDir()
	path := dir + "/mod.py"
	require.NoError(t, writeFile(path, "x = 1\n"))

	cache := pyast.NewCache(dir)
	first, err := cache.Get(path)
	require.NoError(t, err)

	// Unchanged content returns the cached module.
	again, err := cache.Get(path)
	require.NoError(t, err)
	assert.Same(t, first, again)

	// Changed content re-parses.
	require.NoError(t, writeFile(path, "x = 2\n"))
	fresh, err := cache.Get(path)
	require.NoError(t, err)
	assert.NotSame(t, first, fresh)

	cache.Clear()
	assert.Equal(t, 0, cache.Len())
}

func writeFile(path, content string) error {
	return os.WriteFile(path, []byte(content), 0o644)
}
