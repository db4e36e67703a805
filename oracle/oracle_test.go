package oracle_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/stellar-eng/excelsior/oracle"
	"github.com/stellar-eng/excelsior/pyast"
)

func parseExpr(t *testing.T, src string) *pyast.Module {
	t.Helper()
	mod, err := pyast.NewParser().ParseSource([]byte(src), "/proj/src/sample.py")
	require.NoError(t, err)
	return mod
}

func lastReturnValue(t *testing.T, mod *pyast.Module) *pyast.Node {
	t.Helper()
	returns := mod.Root.NodesOfKind(pyast.KindReturn)
	require.NotEmpty(t, returns)
	return returns[len(returns)-1].ValueNode
}

func TestOracle_InferExpr(t *testing.T) {
	o := oracle.New(nil)
	tests := []struct {
		name string
		src  string
		want string
	}{
		{"string literal", "def f():\n    return \"x\"\n", "builtins.str"},
		{"int literal", "def f():\n    return 42\n", "builtins.int"},
		{"list literal", "def f():\n    return [1, 2]\n", "builtins.list"},
		{"comparison", "def f(a, b):\n    return a == b\n", "builtins.bool"},
		{"annotated param", "def f(name: str):\n    return name\n", "builtins.str"},
		{"string concat", "def f(name: str):\n    return \"hi \" + name\n", "builtins.str"},
		{"stub function", "import os\n\ndef f(a: str):\n    return os.path.join(a, a)\n", "builtins.str"},
		{"stub method", "def f(text: str):\n    return text.split(\",\")\n", "builtins.list"},
		{"unknown call", "def f():\n    return process(get_data())\n", ""},
		{"local assignment", "def f():\n    x = 10\n    return x\n", "builtins.int"},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			mod := parseExpr(t, tc.src)
			assert.Equal(t, tc.want, o.InferExpr(lastReturnValue(t, mod)))
		})
	}
}

func TestOracle_InferFunctionReturn(t *testing.T) {
	o := oracle.New(nil)
	tests := []struct {
		name string
		src  string
		want string
	}{
		{"annotated wins", "def f() -> int:\n    return \"x\"\n", "builtins.int"},
		{"single branch", "def f(name: str):\n    return \"hi \" + name\n", "builtins.str"},
		{"agreeing branches", "def f(flag: bool):\n    if flag:\n        return 1\n    return 2\n", "builtins.int"},
		{"conflicting branches", "def f(flag: bool):\n    if flag:\n        return 1\n    return \"x\"\n", ""},
		{"no value returns", "def f():\n    pass\n", "None"},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			mod := parseExpr(t, tc.src)
			fn := mod.Root.Body[0]
			assert.Equal(t, tc.want, o.InferFunctionReturn(fn))
		})
	}
}

func TestOracle_Queries(t *testing.T) {
	o := oracle.New([]string{"structlog"})

	assert.True(t, o.IsPrimitive("builtins.str"))
	assert.True(t, o.IsPrimitive("int"))
	assert.False(t, o.IsPrimitive("requests.Session"))

	assert.True(t, o.IsStdlibQName("os.path"))
	assert.True(t, o.IsStdlibQName("builtins.str"))
	assert.False(t, o.IsStdlibQName("django.db"))

	assert.Equal(t, "builtins.str", oracle.Normalize("str"))
	assert.Equal(t, "typing.Any", oracle.Normalize("Any"))
	assert.Equal(t, "custom.Thing", oracle.Normalize("custom.Thing"))
}

func TestOracle_IsFluentCall(t *testing.T) {
	o := oracle.New(nil)
	mod := parseExpr(t, "def f(text: str):\n    return text.strip()\n")
	call := lastReturnValue(t, mod)
	require.Equal(t, pyast.KindCall, call.Kind)
	assert.True(t, o.IsFluentCall(call))

	mod = parseExpr(t, "def f(text: str):\n    return text.split(\",\")\n")
	call = lastReturnValue(t, mod)
	assert.False(t, o.IsFluentCall(call), "split changes the type, not fluent")
}

func TestOracle_IsTrustedAuthorityCall(t *testing.T) {
	o := oracle.New([]string{"structlog"})
	mod := parseExpr(t, "import os\n\ndef f():\n    return os.getcwd()\n")
	assert.True(t, o.IsTrustedAuthorityCall(lastReturnValue(t, mod)))

	mod = parseExpr(t, "import structlog\n\ndef f():\n    return structlog.get_logger()\n")
	assert.True(t, o.IsTrustedAuthorityCall(lastReturnValue(t, mod)))

	mod = parseExpr(t, "def f(gateway):\n    return gateway.fetch()\n")
	assert.False(t, o.IsTrustedAuthorityCall(lastReturnValue(t, mod)))
}
