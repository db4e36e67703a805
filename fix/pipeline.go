package fix

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/stellar-eng/excelsior/audit"
	"github.com/stellar-eng/excelsior/cst"
	"github.com/stellar-eng/excelsior/plan"
	"github.com/stellar-eng/excelsior/pyast"
	"github.com/stellar-eng/excelsior/pyconfig"
	"github.com/stellar-eng/excelsior/rules"
)

// Options control a fix run.
type Options struct {
	CreateBackups     bool
	KeepBackups       bool
	ValidateWithTests bool
	// Confirm, when set, is asked before each file is modified.
	Confirm func(path string, planCount int) bool
	// CommentsOnly restricts the run to governance-comment fixes (pass 4).
	CommentsOnly bool
	// ManualOnly plans fixes without writing any file.
	ManualOnly bool
}

// DefaultOptions mirror the safe CLI defaults.
func DefaultOptions() Options {
	return Options{CreateBackups: true, ValidateWithTests: true}
}

// PassOutcome records one fix pass.
type PassOutcome struct {
	Name       string
	Modified   int
	Skipped    bool
	SkipReason string
}

// Summary is the result of a full fix run.
type Summary struct {
	Passes      []PassOutcome
	FailedFixes []string
	Rejected    []string
}

// TotalModified sums modified files across passes.
func (s *Summary) TotalModified() int {
	total := 0
	for _, p := range s.Passes {
		total += p.Modified
	}
	return total
}

// Pipeline orders the five fix passes. Passes 3 and 4 are gated by a clean
// audit; passes 1, 2 and 5 always run when their backing tool is enabled.
type Pipeline struct {
	config    *pyconfig.Config
	auditPipe *audit.Pipeline
	engine    *rules.Engine
	cache     *pyast.Cache
	gateway   cst.Gateway
	ruff      audit.RuffSelector
	backups   *BackupManager
	validator *Validator
	logger    *slog.Logger
	opts      Options

	baseline int
}

// NewPipeline wires a fix pipeline around an audit pipeline and a CST
// gateway.
func NewPipeline(cfg *pyconfig.Config, auditPipe *audit.Pipeline, cache *pyast.Cache,
	gateway cst.Gateway, ruff audit.RuffSelector, validator *Validator,
	logger *slog.Logger, opts Options) *Pipeline {
	if logger == nil {
		logger = slog.Default()
	}
	return &Pipeline{
		config:    cfg,
		auditPipe: auditPipe,
		engine:    auditPipe.Engine(),
		cache:     cache,
		gateway:   gateway,
		ruff:      ruff,
		backups:   NewBackupManager(opts.KeepBackups),
		validator: validator,
		logger:    logger,
		opts:      opts,
	}
}

// Execute runs the passes over target and reports the outcome.
func (p *Pipeline) Execute(ctx context.Context, target string) (*Summary, error) {
	summary := &Summary{}
	if p.opts.ValidateWithTests && p.validator != nil && p.validator.Available() {
		p.baseline = p.validator.Failures(ctx)
		p.logger.Info("test baseline", "failures", p.baseline)
	}

	if p.opts.CommentsOnly {
		summary.Passes = append(summary.Passes,
			PassOutcome{Name: "external_quickfix_import_typing", Skipped: true, SkipReason: "comments-only run"},
			PassOutcome{Name: "type_hint_injection", Skipped: true, SkipReason: "comments-only run"},
		)
		p.cache.Clear()
		summary.Passes = append(summary.Passes, p.runGated(ctx, target, summary, passGovernanceComments))
		summary.Passes = append(summary.Passes,
			PassOutcome{Name: "external_quickfix_quality", Skipped: true, SkipReason: "comments-only run"})
		return summary, nil
	}

	summary.Passes = append(summary.Passes, p.runRuffPass(ctx, target, "external_quickfix_import_typing", audit.ImportTypingSelect))
	summary.Passes = append(summary.Passes, p.runTypeHintPass(ctx, target, summary))

	// Later passes must see the post-injection code.
	p.cache.Clear()

	summary.Passes = append(summary.Passes, p.runGated(ctx, target, summary, passArchitecture))
	summary.Passes = append(summary.Passes, p.runGated(ctx, target, summary, passGovernanceComments))
	summary.Passes = append(summary.Passes, p.runRuffPass(ctx, target, "external_quickfix_quality", audit.CodeQualitySelect))
	return summary, nil
}

func (p *Pipeline) runRuffPass(ctx context.Context, target, name string, selectors []string) PassOutcome {
	if p.opts.ManualOnly {
		return PassOutcome{Name: name, Skipped: true, SkipReason: "manual-only run"}
	}
	if !p.config.RuffEnabled || p.ruff == nil || !p.ruff.Enabled() {
		return PassOutcome{Name: name, Skipped: true, SkipReason: "ruff disabled"}
	}
	changed, err := p.ruff.ApplySelected(ctx, target, selectors)
	if err != nil {
		p.logger.Warn("ruff fix pass failed", "pass", name, "error", err)
		return PassOutcome{Name: name, Skipped: true, SkipReason: err.Error()}
	}
	modified := 0
	if changed {
		modified = 1
	}
	return PassOutcome{Name: name, Modified: modified}
}

const (
	passArchitecture       = "architectural_code_fixes"
	passGovernanceComments = "governance_comments"
)

// runTypeHintPass is pass 2: W9015 injection plus structural integrity
// (py.typed markers, missing __init__.py files).
func (p *Pipeline) runTypeHintPass(ctx context.Context, target string, summary *Summary) PassOutcome {
	outcome := PassOutcome{Name: "type_hint_injection"}
	modified, err := p.applyRuleFixes(ctx, target, summary, func(v rules.Violation) bool {
		return v.Code == "W9015"
	})
	if err != nil {
		outcome.SkipReason = err.Error()
		outcome.Skipped = true
		return outcome
	}
	outcome.Modified = modified
	outcome.Modified += p.applyStructuralFixes(target)
	return outcome
}

// runGated runs pass 3 or 4 behind the full audit gate.
func (p *Pipeline) runGated(ctx context.Context, target string, summary *Summary, name string) PassOutcome {
	outcome := PassOutcome{Name: name}
	result, err := p.auditPipe.Run(ctx, target)
	if err != nil {
		outcome.Skipped = true
		outcome.SkipReason = err.Error()
		return outcome
	}
	if result.IsBlocked() {
		outcome.Skipped = true
		outcome.SkipReason = fmt.Sprintf("Audit blocked by %s", result.BlockedBy)
		p.logger.Info("fix pass skipped", "pass", name, "blocked_by", result.BlockedBy)
		return outcome
	}
	var filter func(rules.Violation) bool
	switch name {
	case passArchitecture:
		filter = func(v rules.Violation) bool {
			return v.Code != "W9015" && !v.IsCommentOnly
		}
	case passGovernanceComments:
		filter = func(v rules.Violation) bool {
			return v.IsCommentOnly
		}
	}
	modified, err := p.applyRuleFixes(ctx, target, summary, filter)
	if err != nil {
		outcome.Skipped = true
		outcome.SkipReason = err.Error()
		return outcome
	}
	outcome.Modified = modified
	return outcome
}

// applyRuleFixes runs the engine file-by-file, plans fixes for matching
// fixable violations, and commits each file's batch as one transaction.
func (p *Pipeline) applyRuleFixes(ctx context.Context, target string, summary *Summary, include func(rules.Violation) bool) (int, error) {
	files, err := pyast.ListSourceFiles(target)
	if err != nil {
		return 0, fmt.Errorf("failed to list sources: %w", err)
	}
	modified := 0
	for _, file := range files {
		mod, err := p.cache.Get(file)
		if err != nil {
			// Unparsable files are reported by the audit, not fixed.
			continue
		}
		violations := p.engine.CheckModule(mod)
		var plans []plan.Plan
		for _, v := range violations {
			if !include(v) {
				continue
			}
			if !v.Fixable {
				// Rules that wanted to fix but could not carry the reason.
				if v.FixFailureReason != "" {
					summary.FailedFixes = append(summary.FailedFixes,
						fmt.Sprintf("%s at %s: %s", v.Code, v.Location(), v.FixFailureReason))
				}
				continue
			}
			filePlans, failureReason := p.engine.Fix(v)
			if len(filePlans) == 0 {
				if failureReason == "" {
					failureReason = "No deterministic fix available"
				}
				summary.FailedFixes = append(summary.FailedFixes,
					fmt.Sprintf("%s at %s: %s", v.Code, v.Location(), failureReason))
				continue
			}
			plans = append(plans, filePlans...)
		}
		if len(plans) == 0 || p.opts.ManualOnly {
			continue
		}
		if p.opts.Confirm != nil && !p.opts.Confirm(file, len(plans)) {
			continue
		}
		changed, err := p.commitFile(ctx, file, plans, summary)
		if err != nil {
			summary.FailedFixes = append(summary.FailedFixes, fmt.Sprintf("%s: %v", file, err))
			continue
		}
		if changed {
			modified++
			p.logger.Info("auto-repaired", "file", file, "plans", len(plans))
		}
	}
	return modified, nil
}

// commitFile applies one file's plans with backup and validation. All plans
// commit or none: a failed apply or a test regression restores the backup.
func (p *Pipeline) commitFile(ctx context.Context, file string, plans []plan.Plan, summary *Summary) (bool, error) {
	var backup *Backup
	if p.opts.CreateBackups {
		var err error
		backup, err = p.backups.Create(file)
		if err != nil {
			return false, err
		}
	}
	changed, err := p.gateway.ApplyFixes(file, plans)
	if err != nil {
		if backup != nil {
			if restoreErr := p.backups.Restore(backup); restoreErr != nil {
				p.logger.Error("restore failed", "file", file, "error", restoreErr)
			}
			p.backups.Cleanup(backup)
		}
		return false, err
	}
	if changed && p.opts.ValidateWithTests && p.validator != nil && p.validator.Available() {
		if failures := p.validator.Failures(ctx); failures > p.baseline {
			p.logger.Warn("regression detected, rolling back", "file", file, "failures", failures)
			if backup != nil {
				if restoreErr := p.backups.Restore(backup); restoreErr != nil {
					p.logger.Error("restore failed", "file", file, "error", restoreErr)
				}
			}
			summary.Rejected = append(summary.Rejected, file)
			p.backups.Cleanup(backup)
			return false, nil
		}
	}
	p.backups.Cleanup(backup)
	return changed, nil
}

// applyStructuralFixes creates missing py.typed markers and __init__.py
// package files in every directory under target that holds a source file.
func (p *Pipeline) applyStructuralFixes(target string) int {
	created := 0
	packageDirs := map[string]bool{}
	files, err := pyast.ListSourceFiles(target)
	if err != nil {
		return 0
	}
	for _, file := range files {
		packageDirs[filepath.Dir(file)] = true
	}
	dirs := make([]string, 0, len(packageDirs))
	for dir := range packageDirs {
		dirs = append(dirs, dir)
	}
	sort.Strings(dirs)
	for _, dir := range dirs {
		initPath := filepath.Join(dir, "__init__.py")
		if _, err := os.Stat(initPath); os.IsNotExist(err) {
			if changed, err := p.gateway.ApplyFixes(initPath, []plan.Plan{planInit(dir)}); err == nil && changed {
				created++
			}
		}
	}
	// The top-most package gets a py.typed marker.
	if len(dirs) > 0 {
		top := dirs[0]
		marker := filepath.Join(top, "py.typed")
		if _, err := os.Stat(marker); os.IsNotExist(err) {
			if changed, err := p.gateway.ApplyFixes(marker, []plan.Plan{planPyTyped(top)}); err == nil && changed {
				created++
			}
		}
	}
	return created
}

func planInit(dir string) plan.Plan    { return plan.InitFile(dir) }
func planPyTyped(dir string) plan.Plan { return plan.PyTypedMarker(dir) }

// BuildManifest renders the post-run fix manifest of violations needing
// manual resolution.
func BuildManifest(summary *Summary) string {
	if len(summary.FailedFixes) == 0 && len(summary.Rejected) == 0 {
		return ""
	}
	var b strings.Builder
	b.WriteString("# Fix Manifest\n\n")
	b.WriteString("The following violations require manual review or AI-assisted resolution.\n\n")
	if len(summary.FailedFixes) > 0 {
		b.WriteString("## Failed fixes\n\n")
		for _, failure := range summary.FailedFixes {
			b.WriteString("- " + failure + "\n")
		}
		b.WriteString("\n")
	}
	if len(summary.Rejected) > 0 {
		b.WriteString("## Rejected by validation\n\n")
		for _, file := range summary.Rejected {
			b.WriteString("- " + file + "\n")
		}
	}
	return b.String()
}
