// Package main is the deskctl CLI: offline preflight for action plans.
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"

	"github.com/alecthomas/kong"
	"github.com/joho/godotenv"
	"github.com/xiaot623/deskdriver/config"
	"github.com/xiaot623/deskdriver/internal/domain"
	"github.com/xiaot623/deskdriver/internal/executor"
	"github.com/xiaot623/deskdriver/internal/policy"
)

// CLI defines the command-line interface.
type CLI struct {
	Validate ValidateCmd `cmd:"" help:"Validate a plan file"`
	Dryrun   DryrunCmd   `cmd:"" help:"Preflight a plan: validation, risk, and safety gates, zero actions executed"`
}

// ValidateCmd checks a plan file against the schema rules.
type ValidateCmd struct {
	File string `arg:"" help:"Plan JSON path"`
}

// DryrunCmd walks the whole plan through the gates without touching the desktop.
type DryrunCmd struct {
	File    string `arg:"" help:"Plan JSON path"`
	WorkDir string `help:"Workspace root for file-path checks (defaults to WORK_DIR)"`
	Consent bool   `help:"Treat high-risk steps as consented"`
	JSON    bool   `help:"Emit the full run result as JSON"`
}

func loadPlan(path string) (domain.ActionPlan, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return domain.ActionPlan{}, fmt.Errorf("read plan: %w", err)
	}
	var plan domain.ActionPlan
	if err := json.Unmarshal(data, &plan); err != nil {
		return domain.ActionPlan{}, fmt.Errorf("parse plan: %w", err)
	}
	return plan, nil
}

// Run validates the plan file and prints every violation.
func (v *ValidateCmd) Run() error {
	plan, err := loadPlan(v.File)
	if err != nil {
		return err
	}
	violations := domain.ValidatePlan(&plan)
	if len(violations) == 0 {
		fmt.Printf("%s: %d steps, plan is valid\n", v.File, len(plan.Steps))
		return nil
	}
	for _, viol := range violations {
		fmt.Printf("  %s\n", viol.Error())
	}
	return fmt.Errorf("%d violation(s)", len(violations))
}

// Run executes a dry run: risk is attached and the gates are evaluated for
// every step, but no handler is invoked.
func (d *DryrunCmd) Run() error {
	plan, err := loadPlan(d.File)
	if err != nil {
		return err
	}

	cfg := config.Load()
	workDir := d.WorkDir
	if workDir == "" {
		workDir = cfg.WorkDir
	}

	ctx := context.Background()
	pol, err := policy.Load(cfg.SafetyPolicyPath)
	if err != nil {
		return fmt.Errorf("load safety policy: %w", err)
	}
	eng, err := policy.NewEngine(ctx, pol)
	if err != nil {
		return fmt.Errorf("safety engine: %w", err)
	}

	exec := &executor.Executor{Policy: eng, MaxSteps: cfg.MaxSteps}
	tc := executor.NewTaskContext("", "", plan.Task, plan, domain.RunOptions{
		DryRun:  true,
		Consent: d.Consent,
	}, workDir)
	res := exec.Run(ctx, tc)

	if d.JSON {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(res)
	}

	for _, sl := range res.StepLogs {
		line := fmt.Sprintf("step %d  %-16s %s", sl.StepIndex, sl.Action, sl.Status)
		if sl.Risk != nil {
			line += fmt.Sprintf("  risk=%s", sl.Risk.Level)
		}
		if sl.Reason != "" {
			line += fmt.Sprintf("  (%s)", sl.Reason)
		}
		fmt.Println(line)
	}
	if res.Summary != nil {
		fmt.Println(res.Summary.SummaryText)
	}
	if res.OverallStatus == domain.OverallUnsafe || res.OverallStatus == domain.OverallError {
		return fmt.Errorf("preflight failed: %s", res.FinalStatus)
	}
	return nil
}

func main() {
	_ = godotenv.Load()

	var cli CLI
	kctx := kong.Parse(&cli,
		kong.Name("deskctl"),
		kong.Description("Offline preflight for desktop action plans."),
		kong.UsageOnError(),
	)
	kctx.FatalIfErrorf(kctx.Run())
}
