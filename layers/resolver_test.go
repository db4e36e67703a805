package layers_test

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/stellar-eng/excelsior/layers"
	"github.com/stellar-eng/excelsior/pyconfig"
)

func TestResolver_Resolve(t *testing.T) {
	cfg := pyconfig.Default()
	cfg.LayerMap = map[string]string{
		"use_cases":          "UseCase",
		"use_cases.billing":  "Domain",
		"infrastructure":     "Infrastructure",
	}
	cfg.LayerPatterns = map[string]string{
		`.*/handlers/.*\.py$`: "Interface",
	}
	resolver := layers.NewResolver(cfg)

	tests := []struct {
		name   string
		module string
		path   string
		want   string
	}{
		{"layer_map prefix", "use_cases.order", "/p/src/use_cases/order.py", "UseCase"},
		{"longest prefix wins", "use_cases.billing.invoice", "/p/src/use_cases/billing/invoice.py", "Domain"},
		{"regex pattern", "handlers.api", "/p/src/handlers/api.py", "Interface"},
		{"convention directory", "orders.domain.entities", "/p/orders/domain/entities.py", "Domain"},
		{"convention case-insensitive", "orders.x", "/p/orders/Infrastructure/x.py", "Infrastructure"},
		{"site-packages strict", "requests.api", "/p/.venv/lib/site-packages/requests/domain/api.py", "Infrastructure"},
		{"unresolved", "scratch.notes", "/p/scratch/notes.py", ""},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, resolver.Resolve(tc.module, tc.path, nil))
		})
	}
}

func TestResolver_Deterministic(t *testing.T) {
	cfg := pyconfig.Default()
	cfg.LayerMap = map[string]string{"use_cases": "UseCase"}
	resolver := layers.NewResolver(cfg)
	for i := 0; i < 5; i++ {
		assert.Equal(t, "UseCase", resolver.Resolve("use_cases.order", "/p/src/use_cases/order.py", nil))
	}
}

func TestUnderSrc(t *testing.T) {
	assert.True(t, layers.UnderSrc("/p/src/app/mod.py", "/p"))
	assert.False(t, layers.UnderSrc("/p/scripts/mod.py", "/p"))
}
