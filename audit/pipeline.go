package audit

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/stellar-eng/excelsior/pyast"
	"github.com/stellar-eng/excelsior/pyconfig"
	"github.com/stellar-eng/excelsior/rules"
)

// ResultVersion is the persisted artifact schema version.
const ResultVersion = "2.0.0"

// LinterAdapter is the port every external tool is invoked through. Swapping
// a tool means writing a new adapter, nothing else changes.
type LinterAdapter interface {
	Name() string
	Enabled() bool
	GatherResults(ctx context.Context, path string) ([]Finding, error)
	ApplyFixes(ctx context.Context, path string) (bool, error)
	SupportsAutofix() bool
	FixableRules() []string
	ManualFixInstructions(code string) string
}

// Finding is a normalized external tool result.
type Finding struct {
	Code    string
	Message string
	Path    string
	Line    int
	Col     int
}

// Pipeline runs the five ordered passes. The first pass with findings (or a
// tool error) becomes the blocker; later passes do not execute.
type Pipeline struct {
	config       *pyconfig.Config
	engine       *rules.Engine
	ctx          *rules.Context
	cache        *pyast.Cache
	importLinter LinterAdapter
	ruff         RuffSelector
	mypy         LinterAdapter
	logger       *slog.Logger
	// Clock and IDGen stamp the run metadata; injectable so identical inputs
	// can produce byte-identical artifacts.
	Clock func() time.Time
	IDGen func() string
}

// RuffSelector is the ruff adapter surface: the same tool backs two passes
// with different rule selections.
type RuffSelector interface {
	LinterAdapter
	GatherSelected(ctx context.Context, path string, selectors []string) ([]Finding, error)
	ApplySelected(ctx context.Context, path string, selectors []string) (bool, error)
}

// ImportTypingSelect and CodeQualitySelect are the fixed rule categories of
// passes 2 and 5.
var (
	ImportTypingSelect = []string{"I", "UP", "B"}
	CodeQualitySelect  = []string{"E", "F", "W", "C90", "N", "PL", "SIM", "ARG", "PTH", "RUF"}
)

// NewPipeline wires an audit pipeline.
func NewPipeline(cfg *pyconfig.Config, ruleCtx *rules.Context, cache *pyast.Cache,
	importLinter LinterAdapter, ruff RuffSelector, mypy LinterAdapter, logger *slog.Logger) *Pipeline {
	if logger == nil {
		logger = slog.Default()
	}
	return &Pipeline{
		config:       cfg,
		engine:       rules.NewEngine(ruleCtx),
		ctx:          ruleCtx,
		cache:        cache,
		importLinter: importLinter,
		ruff:         ruff,
		mypy:         mypy,
		logger:       logger,
		Clock:        time.Now,
		IDGen:        uuid.NewString,
	}
}

// Engine exposes the architectural rule engine for the fix pipeline.
func (p *Pipeline) Engine() *rules.Engine { return p.engine }

// Run executes the gated audit over target. Each pass runs serially; on the
// first blocking pass the remaining passes are recorded as skipped.
func (p *Pipeline) Run(ctx context.Context, target string) (*Result, error) {
	result := &Result{
		Version:   ResultVersion,
		RunID:     p.IDGen(),
		Timestamp: p.Clock().UTC().Format(time.RFC3339),
		BlockedBy: BlockedByNone,
	}

	passes := []struct {
		name string
		run  func(context.Context, string) PassResult
	}{
		{PassContracts, p.runContracts},
		{PassImportsTyping, p.runImportsTyping},
		{PassTypes, p.runTypes},
		{PassArchitecture, p.runArchitecture},
		{PassQuality, p.runQuality},
	}

	blocked := false
	for _, pass := range passes {
		if blocked {
			result.Passes = append(result.Passes, PassResult{Name: pass.name, Skipped: true})
			continue
		}
		p.logger.Info("audit pass", "pass", pass.name, "target", target)
		pr := pass.run(ctx, target)
		result.Passes = append(result.Passes, pr)
		if pr.Blocking() {
			result.BlockedBy = pass.name
			blocked = true
			p.logger.Info("audit blocked", "pass", pass.name, "findings", len(pr.Violations))
		}
	}
	return result, nil
}

func (p *Pipeline) runContracts(ctx context.Context, target string) PassResult {
	if !p.config.ImportLinterEnabled || p.importLinter == nil || !p.importLinter.Enabled() {
		return PassResult{Name: PassContracts, Skipped: true}
	}
	findings, err := p.importLinter.GatherResults(ctx, target)
	return externalPass(PassContracts, findings, err)
}

func (p *Pipeline) runImportsTyping(ctx context.Context, target string) PassResult {
	if !p.config.RuffEnabled || p.ruff == nil || !p.ruff.Enabled() {
		return PassResult{Name: PassImportsTyping, Skipped: true}
	}
	findings, err := p.ruff.GatherSelected(ctx, target, ImportTypingSelect)
	return externalPass(PassImportsTyping, findings, err)
}

func (p *Pipeline) runTypes(ctx context.Context, target string) PassResult {
	if !p.config.MypyEnabled || p.mypy == nil || !p.mypy.Enabled() {
		return PassResult{Name: PassTypes, Skipped: true}
	}
	findings, err := p.mypy.GatherResults(ctx, target)
	return externalPass(PassTypes, findings, err)
}

func (p *Pipeline) runQuality(ctx context.Context, target string) PassResult {
	if !p.config.RuffEnabled || p.ruff == nil || !p.ruff.Enabled() {
		return PassResult{Name: PassQuality, Skipped: true}
	}
	findings, err := p.ruff.GatherSelected(ctx, target, CodeQualitySelect)
	return externalPass(PassQuality, findings, err)
}

// runArchitecture is pass 4: this engine's own rules.
func (p *Pipeline) runArchitecture(ctx context.Context, target string) PassResult {
	loaded, err := pyast.LoadProject(target, p.cache)
	if err != nil {
		return PassResult{Name: PassArchitecture, Err: fmt.Errorf("project load failed: %w", err)}
	}

	var modules []*pyast.Module
	var violations []rules.Violation
	for _, lr := range loaded {
		if lr.Err != nil {
			violations = append(violations, parseErrorViolation(lr))
			continue
		}
		modules = append(modules, lr.Module)
	}

	rules.BuildIndex(p.ctx, modules)
	p.engine.ResetScatter()
	for _, mod := range modules {
		violations = append(violations, p.engine.CheckModule(mod)...)
	}
	violations = append(violations, p.engine.FinishScatter()...)
	violations = rules.Normalize(violations)

	pr := PassResult{Name: PassArchitecture, Violations: violations}
	// Pattern suggestions alone do not close the gate unless configured to.
	if !p.config.PatternsBlock && allInformational(p.ctx, violations) {
		pr.InfoOnly = true
	}
	return pr
}

func parseErrorViolation(lr pyast.LoadResult) rules.Violation {
	line := 1
	if perr, ok := lr.Err.(*pyast.ParseError); ok {
		line = perr.Line
	}
	return rules.Violation{
		Code:    ParseErrorCode,
		Message: fmt.Sprintf("File could not be parsed: %v", lr.Err),
		Path:    lr.Path,
		Line:    line,
		Symbol:  "parse",
	}
}

func externalPass(name string, findings []Finding, err error) PassResult {
	pr := PassResult{Name: name, Err: err}
	for _, f := range findings {
		symbol := f.Code
		if f.Path == "" {
			// Location-free findings (broken contracts) key on their message.
			symbol = f.Message
		}
		pr.Violations = append(pr.Violations, rules.Violation{
			Code:    f.Code,
			Message: f.Message,
			Path:    f.Path,
			Line:    f.Line,
			Col:     f.Col,
			Symbol:  symbol,
		})
	}
	pr.Violations = rules.Normalize(pr.Violations)
	return pr
}

// allInformational reports whether every finding carries info severity in the
// catalog (the pattern suggestions).
func allInformational(ctx *rules.Context, violations []rules.Violation) bool {
	if len(violations) == 0 {
		return false
	}
	for _, v := range violations {
		def := ctx.Registry.Get(v.Code)
		if def == nil || def.Severity != "info" {
			return false
		}
	}
	return true
}
