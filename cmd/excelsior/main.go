package main

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"github.com/stellar-eng/excelsior/adapters"
	"github.com/stellar-eng/excelsior/artifact"
	"github.com/stellar-eng/excelsior/audit"
	"github.com/stellar-eng/excelsior/cst"
	"github.com/stellar-eng/excelsior/fix"
	"github.com/stellar-eng/excelsior/pyast"
	"github.com/stellar-eng/excelsior/pyconfig"
	"github.com/stellar-eng/excelsior/registry"
	"github.com/stellar-eng/excelsior/report"
	"github.com/stellar-eng/excelsior/rules"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// exitBlocked is returned by check/verify when the audit is blocked; the
// process exit code is 0 iff the audit is unblocked.
var exitBlocked = fmt.Errorf("audit blocked")

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:           "excelsior",
		Short:         "Architectural governance engine for Python projects",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.AddCommand(newInitCmd())
	root.AddCommand(newCheckCmd())
	root.AddCommand(newFixCmd())
	root.AddCommand(newPlanCmd())
	root.AddCommand(newVerifyCmd())
	return root
}

// toolchain bundles the wired collaborators of one run.
type toolchain struct {
	config    *pyconfig.Config
	registry  *registry.Registry
	cache     *pyast.Cache
	store     *artifact.Store
	auditPipe *audit.Pipeline
	ruff      *adapters.RuffAdapter
	runner    *adapters.Runner
	logger    *slog.Logger
}

func buildToolchain(target string) (*toolchain, error) {
	cfg, err := pyconfig.Load(target)
	if err != nil {
		return nil, err
	}
	reg, err := registry.Load()
	if err != nil {
		return nil, err
	}
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelWarn}))
	store := artifact.NewStore(cfg.Root)
	runner := adapters.NewRunner(store)
	ruff := adapters.NewRuffAdapter(runner)
	mypy := adapters.NewMypyAdapter(runner)
	importLinter := adapters.NewImportLinterAdapter(runner)
	cache := pyast.NewCache(cfg.Root)
	ruleCtx := rules.NewContext(cfg, reg)
	auditPipe := audit.NewPipeline(cfg, ruleCtx, cache, importLinter, ruff, mypy, logger)
	return &toolchain{
		config:    cfg,
		registry:  reg,
		cache:     cache,
		store:     store,
		auditPipe: auditPipe,
		ruff:      ruff,
		runner:    runner,
		logger:    logger,
	}, nil
}

func targetArg(args []string) string {
	if len(args) > 0 {
		return args[0]
	}
	return "."
}

func newCheckCmd() *cobra.Command {
	var linter string
	var noHealth bool
	cmd := &cobra.Command{
		Use:   "check [path]",
		Short: "Run the gated audit pipeline",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			target := targetArg(args)
			tc, err := buildToolchain(target)
			if err != nil {
				return err
			}
			applyLinterSelection(tc.config, linter)
			result, err := tc.auditPipe.Run(context.Background(), target)
			if err != nil {
				return err
			}
			if _, err := tc.store.SaveAudit("check", result, tc.registry); err != nil {
				tc.logger.Warn("artifact write failed", "error", err)
			}
			if _, err := tc.store.SaveHandover("check", result, tc.registry); err != nil {
				tc.logger.Warn("artifact write failed", "error", err)
			}
			if !noHealth {
				if _, err := tc.store.SaveAudit("health", result, tc.registry); err != nil {
					tc.logger.Warn("artifact write failed", "error", err)
				}
				if _, err := tc.store.SaveHandover("health", result, tc.registry); err != nil {
					tc.logger.Warn("artifact write failed", "error", err)
				}
			}
			report.WriteAuditSummary(cmd.OutOrStdout(), result, tc.registry)
			if result.IsBlocked() {
				return exitBlocked
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&linter, "linter", "all", "restrict external passes: all, ruff, mypy, import_linter, excelsior")
	cmd.Flags().BoolVar(&noHealth, "no-health", false, "skip writing the health artifacts")
	return cmd
}

// applyLinterSelection disables every external pass the selection excludes.
func applyLinterSelection(cfg *pyconfig.Config, linter string) {
	switch linter {
	case "", "all":
		return
	case "ruff":
		cfg.MypyEnabled = false
		cfg.ImportLinterEnabled = false
	case "mypy":
		cfg.RuffEnabled = false
		cfg.ImportLinterEnabled = false
	case "import_linter":
		cfg.RuffEnabled = false
		cfg.MypyEnabled = false
	case "excelsior":
		cfg.RuffEnabled = false
		cfg.MypyEnabled = false
		cfg.ImportLinterEnabled = false
	}
}

func newFixCmd() *cobra.Command {
	var iterative, manualOnly, comments, confirm bool
	cmd := &cobra.Command{
		Use:   "fix [path]",
		Short: "Run the multi-pass fix pipeline",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			target := targetArg(args)
			tc, err := buildToolchain(target)
			if err != nil {
				return err
			}
			opts := fix.DefaultOptions()
			opts.CommentsOnly = comments
			opts.ManualOnly = manualOnly
			if confirm {
				opts.Confirm = confirmPrompt(cmd)
			}
			validator := fix.NewValidator(tc.runner)
			pipeline := fix.NewPipeline(tc.config, tc.auditPipe, tc.cache,
				cst.NewRewriter(), tc.ruff, validator, tc.logger, opts)

			runs := 1
			if iterative {
				runs = 3
			}
			var summary *fix.Summary
			for i := 0; i < runs; i++ {
				summary, err = pipeline.Execute(context.Background(), target)
				if err != nil {
					return err
				}
				if summary.TotalModified() == 0 {
					break
				}
				tc.cache.Clear()
			}
			report.WriteFixSummary(cmd.OutOrStdout(), summary)
			if manifest := fix.BuildManifest(summary); manifest != "" {
				if _, err := tc.store.SaveFixManifest(manifest); err != nil {
					tc.logger.Warn("manifest write failed", "error", err)
				}
			}
			return nil
		},
	}
	cmd.Flags().BoolVar(&iterative, "iterative", false, "repeat the fix suite until no file changes (at most 3 runs)")
	cmd.Flags().BoolVar(&manualOnly, "manual-only", false, "plan fixes without writing files")
	cmd.Flags().BoolVar(&comments, "comments", false, "apply governance comments only")
	cmd.Flags().BoolVar(&confirm, "confirm", false, "ask before modifying each file")
	return cmd
}

func confirmPrompt(cmd *cobra.Command) func(string, int) bool {
	return func(path string, planCount int) bool {
		fmt.Fprintf(cmd.OutOrStdout(), "%s: apply %d fix(es)? [y/N]: ", filepath.Base(path), planCount)
		var answer string
		if _, err := fmt.Fscanln(cmd.InOrStdin(), &answer); err != nil {
			return false
		}
		answer = strings.ToLower(strings.TrimSpace(answer))
		return answer == "y" || answer == "yes"
	}
}

func newPlanCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "plan [topic]",
		Short: "Print the fix plan for a rule",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			tc, err := buildToolchain(".")
			if err != nil {
				return err
			}
			def := tc.registry.Resolve(args[0])
			if def == nil {
				return fmt.Errorf("unknown rule %q", args[0])
			}
			var b strings.Builder
			fmt.Fprintf(&b, "# %s %s\n\n", def.Code, def.DisplayName)
			fmt.Fprintf(&b, "%s\n\n", def.MessageTemplate)
			if def.ManualInstructions != "" {
				fmt.Fprintf(&b, "## Manual fix\n\n%s\n", def.ManualInstructions)
			}
			if def.ProactiveGuidance != "" {
				fmt.Fprintf(&b, "\n## Guidance\n\n%s\n", def.ProactiveGuidance)
			}
			content := b.String()
			fmt.Fprint(cmd.OutOrStdout(), content)
			if _, err := tc.store.SaveFixPlan(registry.Prefix+def.Code, content); err != nil {
				tc.logger.Warn("plan write failed", "error", err)
			}
			return nil
		},
	}
	return cmd
}

const configTemplate = `
[tool.clean-arch]
project_type = "generic"
visibility_enforcement = true
silent_layers = ["Domain", "UseCase"]

[tool.clean-arch.layer_map]
`

func newInitCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "init",
		Short: "Scaffold configuration and the artifact directory",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			root := pyconfig.FindProjectRoot(".")
			if err := os.MkdirAll(filepath.Join(root, ".excelsior"), 0o755); err != nil {
				return err
			}
			path := filepath.Join(root, "pyproject.toml")
			data, err := os.ReadFile(path)
			if err != nil && !os.IsNotExist(err) {
				return err
			}
			if strings.Contains(string(data), "[tool.clean-arch]") {
				fmt.Fprintln(cmd.OutOrStdout(), "configuration already present")
				return nil
			}
			f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
			if err != nil {
				return err
			}
			defer f.Close()
			if _, err := f.WriteString(configTemplate); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "wrote [tool.clean-arch] to %s\n", path)
			return nil
		},
	}
}

type verifyBaseline struct {
	Summary map[string]int `json:"summary"`
}

func newVerifyCmd() *cobra.Command {
	var baseline bool
	cmd := &cobra.Command{
		Use:   "verify",
		Short: "Compare the audit against the recorded baseline",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			tc, err := buildToolchain(".")
			if err != nil {
				return err
			}
			result, err := tc.auditPipe.Run(context.Background(), ".")
			if err != nil {
				return err
			}
			counts := map[string]int{}
			for _, pass := range result.Passes {
				counts[pass.Name] = len(pass.Violations)
			}
			baselinePath := filepath.Join(tc.config.Root, ".excelsior", "verify_baseline.json")
			if baseline {
				data, err := json.MarshalIndent(verifyBaseline{Summary: counts}, "", "  ")
				if err != nil {
					return err
				}
				if err := os.MkdirAll(filepath.Dir(baselinePath), 0o755); err != nil {
					return err
				}
				if err := os.WriteFile(baselinePath, append(data, '\n'), 0o644); err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "baseline recorded: %s\n", baselinePath)
				return nil
			}
			data, err := os.ReadFile(baselinePath)
			if err != nil {
				return fmt.Errorf("no baseline recorded: run `excelsior verify --baseline` first")
			}
			var recorded verifyBaseline
			if err := json.Unmarshal(data, &recorded); err != nil {
				return fmt.Errorf("baseline unreadable: %w", err)
			}
			regressed := false
			for pass, count := range counts {
				if count > recorded.Summary[pass] {
					fmt.Fprintf(cmd.OutOrStdout(), "regression in %s: %d -> %d\n",
						pass, recorded.Summary[pass], count)
					regressed = true
				}
			}
			if regressed || result.IsBlocked() {
				return exitBlocked
			}
			fmt.Fprintln(cmd.OutOrStdout(), "no regressions against baseline")
			return nil
		},
	}
	cmd.Flags().BoolVar(&baseline, "baseline", false, "record the current counts as baseline")
	return cmd
}
