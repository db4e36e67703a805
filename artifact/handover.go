package artifact

import (
	"encoding/json"
	"fmt"
	"path"
	"sort"

	"github.com/stellar-eng/excelsior/audit"
	"github.com/stellar-eng/excelsior/registry"
)

// HandoverRule is the per-rule grouping consumed by downstream fix-plan
// tooling.
type HandoverRule struct {
	Code              string   `json:"code"`
	Fixable           bool     `json:"fixable"`
	CommentOnly       bool     `json:"comment_only"`
	Message           string   `json:"message"`
	Occurrences       []string `json:"occurrences"`
	ManualInstr       *string  `json:"manual_instructions"`
	ProactiveGuidance *string  `json:"proactive_guidance"`
	FixFailureReasons []string `json:"fix_failure_reasons"`
}

// Handover is the machine-readable summary of an audit.
type Handover struct {
	Version   string         `json:"version"`
	RunID     string         `json:"run_id"`
	Timestamp string         `json:"timestamp"`
	BlockedBy string         `json:"blocked_by"`
	Rules     []HandoverRule `json:"rules"`
}

// BuildHandover groups an audit's violations per rule, enriched with catalog
// fixability and instructions. Rules sort by code so two runs over identical
// inputs produce byte-identical artifacts.
func BuildHandover(result *audit.Result, reg *registry.Registry) *Handover {
	grouped := map[string]*HandoverRule{}
	for _, pass := range result.Passes {
		for _, v := range pass.Violations {
			entry, ok := grouped[v.Code]
			if !ok {
				entry = &HandoverRule{
					Code:        v.Code,
					Fixable:     v.Fixable,
					CommentOnly: v.IsCommentOnly,
					Message:     v.Message,
				}
				if def := reg.Get(v.Code); def != nil {
					if def.ManualInstructions != "" {
						instr := def.ManualInstructions
						entry.ManualInstr = &instr
					}
					if def.ProactiveGuidance != "" {
						guidance := def.ProactiveGuidance
						entry.ProactiveGuidance = &guidance
					}
				}
				grouped[v.Code] = entry
			}
			entry.Occurrences = append(entry.Occurrences, v.Location())
			if v.Fixable {
				entry.Fixable = true
			}
			if v.FixFailureReason != "" {
				entry.FixFailureReasons = append(entry.FixFailureReasons, v.FixFailureReason)
			}
		}
	}
	codes := make([]string, 0, len(grouped))
	for code := range grouped {
		codes = append(codes, code)
	}
	sort.Strings(codes)
	handover := &Handover{
		Version:   result.Version,
		RunID:     result.RunID,
		Timestamp: result.Timestamp,
		BlockedBy: result.BlockedBy,
		Rules:     []HandoverRule{},
	}
	for _, code := range codes {
		entry := grouped[code]
		sort.Strings(entry.Occurrences)
		handover.Rules = append(handover.Rules, *entry)
	}
	return handover
}

// SaveHandover persists <source>/ai_handover.json.
func (s *Store) SaveHandover(source string, result *audit.Result, reg *registry.Registry) (string, error) {
	handover := BuildHandover(result, reg)
	data, err := json.MarshalIndent(handover, "", "  ")
	if err != nil {
		return "", fmt.Errorf("failed to encode handover: %w", err)
	}
	return s.write(path.Join(source, "ai_handover.json"), append(data, '\n'))
}
