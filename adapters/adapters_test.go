package adapters

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseRuffOutput(t *testing.T) {
	output := `src/app.py:3:1: I001 Import block is un-sorted or un-formatted
src/app.py:10:5: UP006 Use ` + "`list`" + ` instead of ` + "`List`" + ` for type annotation
Found 2 errors.
`
	findings := parseRuffOutput(output)
	require.Len(t, findings, 2)
	assert.Equal(t, "I001", findings[0].Code)
	assert.Equal(t, "src/app.py", findings[0].Path)
	assert.Equal(t, 3, findings[0].Line)
	assert.Equal(t, 1, findings[0].Col)
	assert.Contains(t, findings[0].Message, "un-sorted")
	assert.Equal(t, "UP006", findings[1].Code)
}

func TestParseMypyOutput(t *testing.T) {
	output := `src/app.py:12: error: Incompatible return value type (got "str", expected "int")  [return-value]
src/app.py:20: note: See https://mypy.readthedocs.io
src/other.py:3: error: Name "foo" is not defined  [name-defined]
`
	findings := parseMypyOutput(output)
	require.Len(t, findings, 2)
	assert.Equal(t, "return-value", findings[0].Code)
	assert.Equal(t, "src/app.py", findings[0].Path)
	assert.Equal(t, 12, findings[0].Line)
	assert.Equal(t, "name-defined", findings[1].Code)
}

func TestParseImportLinterOutput(t *testing.T) {
	output := `=============
Import Linter
=============

Layered architecture BROKEN

use_cases.order -> infrastructure.db (l.1)
`
	findings := parseImportLinterOutput(output)
	require.NotEmpty(t, findings)
	assert.Equal(t, "contract", findings[0].Code)
	assert.Contains(t, findings[0].Message, "Layered architecture")
	require.Len(t, findings, 2)
	assert.Contains(t, findings[1].Message, "use_cases.order -> infrastructure.db")
}
