// Package artifact persists per-run audit artifacts under .excelsior/ for
// downstream tooling.
package artifact

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"path"
	"time"

	"github.com/viant/afs"

	"github.com/stellar-eng/excelsior/audit"
	"github.com/stellar-eng/excelsior/registry"
)

// Store writes artifacts through an afs service. Keys are relative to the
// project's .excelsior directory.
type Store struct {
	fs      afs.Service
	baseDir string
	// Clock stamps raw log names; injectable for deterministic tests.
	Clock func() time.Time
}

// NewStore creates a store rooted at <projectRoot>/.excelsior.
func NewStore(projectRoot string) *Store {
	return &Store{
		fs:      afs.New(),
		baseDir: path.Join(projectRoot, ".excelsior"),
		Clock:   time.Now,
	}
}

func (s *Store) write(key string, data []byte) (string, error) {
	target := path.Join(s.baseDir, key)
	if err := s.fs.Upload(context.Background(), target, 0o644, bytes.NewReader(data)); err != nil {
		return "", fmt.Errorf("failed to persist %s: %w", key, err)
	}
	return target, nil
}

// passSummary is the per-pass section of last_audit.json.
type passSummary struct {
	Name       string          `json:"name"`
	Count      int             `json:"count"`
	Skipped    bool            `json:"skipped"`
	Error      string          `json:"error,omitempty"`
	Violations []violationJSON `json:"violations"`
}

type violationJSON struct {
	Code             string `json:"code"`
	Message          string `json:"message"`
	Location         string `json:"location"`
	Fixable          bool   `json:"fixable"`
	CommentOnly      bool   `json:"comment_only,omitempty"`
	ManualInstr      string `json:"manual_instructions,omitempty"`
	FixFailureReason string `json:"fix_failure_reason,omitempty"`
}

type auditJSON struct {
	Version   string         `json:"version"`
	RunID     string         `json:"run_id"`
	Timestamp string         `json:"timestamp"`
	BlockedBy string         `json:"blocked_by"`
	Summary   map[string]int `json:"summary"`
	Passes    []passSummary  `json:"passes"`
}

// SaveAudit persists <source>/last_audit.json (source: check or health) and
// returns the artifact path. Serialization is deterministic: violations are
// already ordered and map keys marshal sorted.
func (s *Store) SaveAudit(source string, result *audit.Result, reg *registry.Registry) (string, error) {
	doc := auditJSON{
		Version:   result.Version,
		RunID:     result.RunID,
		Timestamp: result.Timestamp,
		BlockedBy: result.BlockedBy,
		Summary:   map[string]int{},
	}
	for _, pass := range result.Passes {
		ps := passSummary{
			Name:       pass.Name,
			Count:      len(pass.Violations),
			Skipped:    pass.Skipped,
			Violations: []violationJSON{},
		}
		if pass.Err != nil {
			ps.Error = pass.Err.Error()
		}
		for _, v := range pass.Violations {
			vj := violationJSON{
				Code:             v.Code,
				Message:          v.Message,
				Location:         v.Location(),
				Fixable:          v.Fixable,
				CommentOnly:      v.IsCommentOnly,
				FixFailureReason: v.FixFailureReason,
			}
			if def := reg.Get(v.Code); def != nil {
				vj.ManualInstr = def.ManualInstructions
			}
			ps.Violations = append(ps.Violations, vj)
		}
		doc.Summary[pass.Name] = len(pass.Violations)
		doc.Passes = append(doc.Passes, ps)
	}
	data, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return "", fmt.Errorf("failed to encode audit: %w", err)
	}
	return s.write(path.Join(source, "last_audit.json"), append(data, '\n'))
}

// WriteRawLog persists a timestamped raw subprocess output for one tool.
func (s *Store) WriteRawLog(tool string, output []byte) error {
	name := fmt.Sprintf("logs/raw_%s_%s.log", tool, s.Clock().UTC().Format("20060102T150405"))
	_, err := s.write(name, output)
	return err
}

// SaveFixPlan persists a human-readable plan for a single rule.
func (s *Store) SaveFixPlan(ruleID, content string) (string, error) {
	name := fmt.Sprintf("fix_plans/%s_%s.md", ruleID, s.Clock().UTC().Format("20060102T150405"))
	return s.write(name, []byte(content))
}

// SaveFixManifest persists the post-fix manifest of ambiguous violations.
func (s *Store) SaveFixManifest(content string) (string, error) {
	return s.write("fix_manifest.md", []byte(content))
}
