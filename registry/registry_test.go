package registry_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/stellar-eng/excelsior/registry"
)

func TestLoad_Invariants(t *testing.T) {
	reg, err := registry.Load()
	require.NoError(t, err)

	codes := reg.Codes()
	require.NotEmpty(t, codes)

	seenSymbols := map[string]string{}
	for _, code := range codes {
		def := reg.Get(code)
		require.NotNil(t, def, "code %s", code)
		assert.Equal(t, code, def.Code)
		assert.NotEmpty(t, def.Symbol, "code %s", code)
		assert.NotEmpty(t, def.MessageTemplate, "code %s", code)
		if prev, dup := seenSymbols[def.Symbol]; dup {
			t.Fatalf("symbol %s shared by %s and %s", def.Symbol, prev, code)
		}
		seenSymbols[def.Symbol] = code
		assert.Same(t, def, reg.GetBySymbol(def.Symbol))
	}
}

func TestLoad_FixabilityFlags(t *testing.T) {
	reg, err := registry.Load()
	require.NoError(t, err)

	assert.True(t, reg.IsFixable("W9015"))
	assert.True(t, reg.IsFixable("W9601"))
	assert.True(t, reg.IsFixable("W9006"))
	assert.True(t, reg.IsCommentOnly("W9006"))
	assert.False(t, reg.IsCommentOnly("W9015"))
	assert.False(t, reg.IsFixable("W9001"))
}

func TestResolve(t *testing.T) {
	reg, err := registry.Load()
	require.NoError(t, err)

	byCode := reg.Resolve("W9010")
	require.NotNil(t, byCode)
	assert.Equal(t, "god-file", byCode.Symbol)

	byPrefixed := reg.Resolve("excelsior.W9010")
	assert.Same(t, byCode, byPrefixed)

	bySymbol := reg.Resolve("god-file")
	assert.Same(t, byCode, bySymbol)

	assert.Nil(t, reg.Resolve("W0000"))
}

func TestMessage(t *testing.T) {
	reg, err := registry.Load()
	require.NoError(t, err)

	msg := reg.Message("W9001", "Infrastructure", "UseCase")
	assert.Equal(t, "Illegal Dependency: Infrastructure layer is imported by UseCase layer.", msg)
}
