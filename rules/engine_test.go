package rules_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/stellar-eng/excelsior/pyast"
	"github.com/stellar-eng/excelsior/pyconfig"
	"github.com/stellar-eng/excelsior/registry"
	"github.com/stellar-eng/excelsior/rules"
)

func testConfig() *pyconfig.Config {
	cfg := pyconfig.Default()
	cfg.Root = "/proj"
	cfg.LayerMap = map[string]string{
		"domain":         "Domain",
		"use_cases":      "UseCase",
		"interface":      "Interface",
		"infrastructure": "Infrastructure",
	}
	return cfg
}

func newTestContext(t *testing.T) *rules.Context {
	t.Helper()
	reg, err := registry.Load()
	require.NoError(t, err)
	return rules.NewContext(testConfig(), reg)
}

func parseAt(t *testing.T, path, src string) *pyast.Module {
	t.Helper()
	mod, err := pyast.NewParser().ParseSource([]byte(src), path)
	require.NoError(t, err)
	mod.Name = pyast.ModuleNameFor(path, "/proj")
	return mod
}

func checkSource(t *testing.T, ctx *rules.Context, path, src string) []rules.Violation {
	t.Helper()
	engine := rules.NewEngine(ctx)
	return engine.CheckModule(parseAt(t, path, src))
}

func codesOf(violations []rules.Violation) []string {
	var codes []string
	for _, v := range violations {
		codes = append(codes, v.Code)
	}
	return codes
}

func findCode(violations []rules.Violation, code string) *rules.Violation {
	for i := range violations {
		if violations[i].Code == code {
			return &violations[i]
		}
	}
	return nil
}

func TestDependencyRule_IllegalInnerToOuterImport(t *testing.T) {
	ctx := newTestContext(t)
	violations := checkSource(t, ctx, "/proj/src/use_cases/order.py",
		"from infrastructure.db import Database\n")

	v := findCode(violations, "W9001")
	require.NotNil(t, v, "expected W9001 in %v", codesOf(violations))
	assert.Equal(t, 1, v.Line)
	assert.Contains(t, v.Message, "Infrastructure")
	assert.Contains(t, v.Message, "UseCase")
	assert.False(t, v.Fixable)
}

func TestDependencyRule_AllowedImports(t *testing.T) {
	ctx := newTestContext(t)
	tests := []struct {
		name string
		path string
		src  string
	}{
		{"use case imports domain", "/proj/src/use_cases/order.py", "from domain.entities import Order\n"},
		{"infrastructure imports domain", "/proj/src/infrastructure/db.py", "from domain.entities import Order\n"},
		{"intra-layer import", "/proj/src/use_cases/order.py", "from use_cases.base import Base\n"},
		{"stdlib import", "/proj/src/use_cases/order.py", "import json\n"},
		{"test file exempt", "/proj/tests/test_order.py", "from infrastructure.db import Database\n"},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			violations := checkSource(t, ctx, tc.path, tc.src)
			assert.Nil(t, findCode(violations, "W9001"), "unexpected W9001 in %v", codesOf(violations))
		})
	}
}

func TestDependencyRule_SharedKernelExempt(t *testing.T) {
	cfg := testConfig()
	cfg.SharedKernelModules = []string{"infrastructure.telemetry"}
	reg, err := registry.Load()
	require.NoError(t, err)
	ctx := rules.NewContext(cfg, reg)

	violations := checkSource(t, ctx, "/proj/src/use_cases/order.py",
		"from infrastructure.telemetry import Telemetry\n")
	assert.Nil(t, findCode(violations, "W9001"))
}

func TestTypeHintRule_InferableReturn(t *testing.T) {
	ctx := newTestContext(t)
	violations := checkSource(t, ctx, "/proj/src/use_cases/greet.py",
		"def greet(name: str):\n    return \"hi \" + name\n")

	v := findCode(violations, "W9015")
	require.NotNil(t, v)
	assert.True(t, v.Fixable)
	assert.Empty(t, v.FixFailureReason)
	assert.Contains(t, v.Message, "return type in greet")
}

func TestTypeHintRule_UninferableReturn(t *testing.T) {
	ctx := newTestContext(t)
	violations := checkSource(t, ctx, "/proj/src/use_cases/dyn.py",
		"def dyn():\n    return process(get_data())\n")

	v := findCode(violations, "W9015")
	require.NotNil(t, v)
	assert.False(t, v.Fixable)
	assert.Equal(t, "Inference failed: Type could not be determined from context or stubs.", v.FixFailureReason)
}

func TestTypeHintFixer_PlansReturnAnnotation(t *testing.T) {
	ctx := newTestContext(t)
	engine := rules.NewEngine(ctx)
	mod := parseAt(t, "/proj/src/use_cases/greet.py",
		"def greet(name: str):\n    return \"hi \" + name\n")
	violations := engine.CheckModule(mod)

	v := findCode(violations, "W9015")
	require.NotNil(t, v)
	plans, reason := engine.Fix(*v)
	require.Empty(t, reason)
	require.Len(t, plans, 1)
	assert.Equal(t, "add_return_type", string(plans[0].Kind))
	assert.Equal(t, "str", plans[0].Params["return_type"])
	assert.Equal(t, "greet", plans[0].Anchor.Identifier)
}

func TestDemeterRule_AttributeChain(t *testing.T) {
	ctx := newTestContext(t)
	violations := checkSource(t, ctx, "/proj/src/use_cases/geo.py",
		"def locate(user):\n    return user.address.coordinates.lat\n")

	v := findCode(violations, "W9006")
	require.NotNil(t, v, "expected W9006 in %v", codesOf(violations))
	assert.Contains(t, v.Message, "user.address.coordinates")
	assert.True(t, v.IsCommentOnly)
}

func TestDemeterRule_Exclusions(t *testing.T) {
	ctx := newTestContext(t)
	tests := []struct {
		name string
		src  string
	}{
		{"short self chain", "class A:\n    def go(self):\n        return self.repo.fetch()\n"},
		{"stdlib authority", "import os\n\ndef where():\n    return os.path.join(\"a\", \"b\")\n"},
		{"fluent primitive chain", "def clean(text: str):\n    return text.strip().lower()\n"},
		{"single hop", "def total(order):\n    return order.amount\n"},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			violations := checkSource(t, ctx, "/proj/src/use_cases/sample.py", tc.src)
			assert.Nil(t, findCode(violations, "W9006"), "unexpected W9006 in %v", codesOf(violations))
		})
	}
}

func TestGodFileRule_TwoHeavyClasses(t *testing.T) {
	ctx := newTestContext(t)
	violations := checkSource(t, ctx, "/proj/src/use_cases/mixed.py",
		`class OrderProcessor:
    def run(self):
        return 1


class InventoryAdjuster:
    def run(self):
        return 2
`)
	v := findCode(violations, "W9010")
	require.NotNil(t, v, "expected W9010 in %v", codesOf(violations))
	assert.Contains(t, v.Message, "OrderProcessor")
	assert.Contains(t, v.Message, "InventoryAdjuster")
}

func TestGodFileRule_ProtocolsAndDTOsAreLight(t *testing.T) {
	ctx := newTestContext(t)
	violations := checkSource(t, ctx, "/proj/src/use_cases/ports.py",
		`from typing import Protocol
from dataclasses import dataclass


class OrderPort(Protocol):
    def fetch(self):
        ...


@dataclass
class OrderDTO:
    order_id: str


class OrderProcessor:
    def run(self):
        return 1
`)
	assert.Nil(t, findCode(violations, "W9010"), "unexpected W9010 in %v", codesOf(violations))
}

func TestTestingRule_FragileMocks(t *testing.T) {
	ctx := newTestContext(t)
	violations := checkSource(t, ctx, "/proj/tests/test_flow.py",
		`def test_flow():
    a = Mock()
    b = MagicMock()
    c = patch("x")
    d = patch("y")
    e = Mock()
    assert a
`)
	v := findCode(violations, "W9101")
	require.NotNil(t, v, "expected W9101 in %v", codesOf(violations))
	assert.Contains(t, v.Message, "5 mocks")
}

func TestTestingRule_UnderLimit(t *testing.T) {
	ctx := newTestContext(t)
	violations := checkSource(t, ctx, "/proj/tests/test_flow.py",
		`def test_flow():
    a = Mock()
    b = Mock()
    assert a and b
`)
	assert.Nil(t, findCode(violations, "W9101"))
}

func TestImmutabilityRule_UnfrozenDomainDataclass(t *testing.T) {
	ctx := newTestContext(t)
	violations := checkSource(t, ctx, "/proj/src/domain/order.py",
		`from dataclasses import dataclass


@dataclass
class Order:
    order_id: str
`)
	v := findCode(violations, "W9601")
	require.NotNil(t, v, "expected W9601 in %v", codesOf(violations))
	assert.True(t, v.Fixable)
}

func TestImmutabilityFixer_PlansFrozenDecorator(t *testing.T) {
	ctx := newTestContext(t)
	engine := rules.NewEngine(ctx)
	mod := parseAt(t, "/proj/src/domain/order.py",
		"from dataclasses import dataclass\n\n\n@dataclass\nclass Order:\n    order_id: str\n")
	violations := engine.CheckModule(mod)

	v := findCode(violations, "W9601")
	require.NotNil(t, v)
	plans, reason := engine.Fix(*v)
	require.Empty(t, reason)
	require.Len(t, plans, 1)
	assert.Equal(t, "add_frozen_decorator", string(plans[0].Kind))
	assert.Equal(t, "Order", plans[0].Anchor.Identifier)
}

func TestBypassRule_UnjustifiedDisable(t *testing.T) {
	ctx := newTestContext(t)
	violations := checkSource(t, ctx, "/proj/src/use_cases/hack.py",
		"value = compute()  # noqa\n")
	require.NotNil(t, findCode(violations, "W9501"))
}

func TestBypassRule_JustifiedDisable(t *testing.T) {
	ctx := newTestContext(t)
	violations := checkSource(t, ctx, "/proj/src/use_cases/ok.py",
		"# JUSTIFICATION: vendor API returns untyped payloads\nvalue = compute()  # noqa\n")
	assert.Nil(t, findCode(violations, "W9501"))
}

func TestEngine_DeterministicOrdering(t *testing.T) {
	ctx := newTestContext(t)
	src := `from infrastructure.db import Database
from infrastructure.net import Client
`
	first := checkSource(t, ctx, "/proj/src/use_cases/order.py", src)
	second := checkSource(t, ctx, "/proj/src/use_cases/order.py", src)
	require.Equal(t, len(first), len(second))
	for i := range first {
		assert.Equal(t, first[i].Code, second[i].Code)
		assert.Equal(t, first[i].Location(), second[i].Location())
	}
	for i := 1; i < len(first); i++ {
		assert.False(t, first[i].Less(first[i-1]), "violations out of order at %d", i)
	}
}

func TestEngine_ScatterReduction(t *testing.T) {
	ctx := newTestContext(t)
	engine := rules.NewEngine(ctx)

	modA := parseAt(t, "/proj/src/domain/a.py", "FIELDS = [\"order_id\", \"status\"]\n")
	modB := parseAt(t, "/proj/src/infrastructure/b.py", "COLUMNS = [\"order_id\"]\n")
	engine.CheckModule(modA)
	engine.CheckModule(modB)

	violations := engine.FinishScatter()
	v := findCode(violations, "W9030")
	require.NotNil(t, v, "expected W9030 in %v", codesOf(violations))
	assert.Contains(t, v.Message, "order_id")
	assert.Contains(t, v.Message, "2")
}

func TestRegistryCompleteness_EveryEmittedCodeIsCatalogued(t *testing.T) {
	reg, err := registry.Load()
	require.NoError(t, err)
	emitted := []string{
		"W9001", "W9003", "W9004", "W9005", "W9006", "W9007", "W9009", "W9010",
		"W9011", "W9012", "W9013", "W9014", "W9015", "W9016", "W9017", "W9018",
		"W9019", "W9020", "W9030", "W9032", "W9033", "W9034", "W9035",
		"W9041", "W9042", "W9043", "W9044", "W9045",
		"W9101", "W9102", "W9201", "W9202", "W9301", "W9501", "W9601",
	}
	for _, code := range emitted {
		assert.NotNil(t, reg.Get(code), "rule %s missing from catalog", code)
	}
	assert.Len(t, reg.Codes(), len(emitted))
}
