package artifact_test

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/stellar-eng/excelsior/artifact"
	"github.com/stellar-eng/excelsior/audit"
	"github.com/stellar-eng/excelsior/registry"
	"github.com/stellar-eng/excelsior/rules"
)

func sampleResult() *audit.Result {
	return &audit.Result{
		Version:   audit.ResultVersion,
		RunID:     "run-1",
		Timestamp: "2026-08-06T12:00:00Z",
		BlockedBy: audit.PassArchitecture,
		Passes: []audit.PassResult{
			{Name: audit.PassContracts},
			{Name: audit.PassImportsTyping},
			{Name: audit.PassTypes},
			{
				Name: audit.PassArchitecture,
				Violations: []rules.Violation{
					{Code: "W9006", Message: "Law of Demeter: user.address.coordinates",
						Path: "/p/src/a.py", Line: 4, IsCommentOnly: true, Fixable: true},
					{Code: "W9015", Message: "Missing Type Hint: return type in dyn signature.",
						Path: "/p/src/b.py", Line: 1, Fixable: false,
						FixFailureReason: "Inference failed: Type could not be determined from context or stubs."},
					{Code: "W9015", Message: "Missing Type Hint: return type in greet signature.",
						Path: "/p/src/a.py", Line: 9, Fixable: true},
				},
			},
			{Name: audit.PassQuality, Skipped: true},
		},
	}
}

func TestBuildHandover_GroupsPerRule(t *testing.T) {
	reg, err := registry.Load()
	require.NoError(t, err)

	handover := artifact.BuildHandover(sampleResult(), reg)
	require.Len(t, handover.Rules, 2)

	demeter := handover.Rules[0]
	assert.Equal(t, "W9006", demeter.Code)
	assert.True(t, demeter.CommentOnly)
	require.NotNil(t, demeter.ManualInstr)
	assert.Len(t, demeter.Occurrences, 1)

	hints := handover.Rules[1]
	assert.Equal(t, "W9015", hints.Code)
	assert.True(t, hints.Fixable, "fixable when any occurrence is fixable")
	assert.Len(t, hints.Occurrences, 2)
	require.Len(t, hints.FixFailureReasons, 1)
	assert.Contains(t, hints.FixFailureReasons[0], "Inference failed")
}

func TestBuildHandover_Deterministic(t *testing.T) {
	reg, err := registry.Load()
	require.NoError(t, err)

	first, err := json.Marshal(artifact.BuildHandover(sampleResult(), reg))
	require.NoError(t, err)
	second, err := json.Marshal(artifact.BuildHandover(sampleResult(), reg))
	require.NoError(t, err)
	assert.Equal(t, first, second, "identical inputs must produce byte-identical artifacts")
}

func TestStore_SaveAuditAndHandover(t *testing.T) {
	root := t.TempDir()
	reg, err := registry.Load()
	require.NoError(t, err)

	store := artifact.NewStore(root)
	store.Clock = func() time.Time { return time.Date(2026, 8, 6, 12, 0, 0, 0, time.UTC) }

	auditPath, err := store.SaveAudit("check", sampleResult(), reg)
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(root, ".excelsior", "check", "last_audit.json"), filepath.Clean(auditPath))

	handoverPath, err := store.SaveHandover("check", sampleResult(), reg)
	require.NoError(t, err)

	var doc map[string]interface{}
	data, err := os.ReadFile(filepath.Clean(auditPath))
	require.NoError(t, err)
	require.NoError(t, json.Unmarshal(data, &doc))
	assert.Equal(t, "excelsior", doc["blocked_by"])
	assert.Equal(t, audit.ResultVersion, doc["version"])

	data, err = os.ReadFile(filepath.Clean(handoverPath))
	require.NoError(t, err)
	require.NoError(t, json.Unmarshal(data, &doc))
	assert.Equal(t, "excelsior", doc["blocked_by"])

	require.NoError(t, store.WriteRawLog("ruff", []byte("raw output\n")))
	logPath := filepath.Join(root, ".excelsior", "logs", "raw_ruff_20260806T120000.log")
	assert.FileExists(t, logPath)
}
