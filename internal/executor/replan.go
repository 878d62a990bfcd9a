package executor

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/xiaot623/deskdriver/internal/domain"
)

// Planner is the natural-language planning capability. It returns raw plan
// text; provider selection and fallback are the caller's concern.
type Planner interface {
	Propose(ctx context.Context, prompt string) (string, error)
}

const maxReasonLen = 240

func clipReason(reason string) string {
	if len(reason) <= maxReasonLen {
		return reason
	}
	return reason[:maxReasonLen-3] + "..."
}

// buildFailureSummary produces the concise prompt context for a replan
// request: what failed, how, and the recent step history.
func buildFailureSummary(tc *TaskContext, failed domain.StepLog) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Step '%s' ended with status '%s' after retries. Reason: %s. Replan attempt %d/%d.\n",
		failed.Action, failed.Status, clipReason(failed.Reason), tc.ReplanCount+1, tc.Options.MaxReplans)
	fmt.Fprintf(&b, "Task: %s\n", tc.Instruction)
	fmt.Fprintf(&b, "Recent steps:\n")
	logs := tc.StepLogs
	if len(logs) > 5 {
		logs = logs[len(logs)-5:]
	}
	for _, l := range logs {
		fmt.Fprintf(&b, "  %d. %s -> %s", l.StepIndex, l.Action, l.Status)
		if l.Reason != "" {
			fmt.Fprintf(&b, " (%s)", clipReason(l.Reason))
		}
		b.WriteString("\n")
	}
	remaining := len(tc.Plan.Steps) - tc.Cursor - 1
	fmt.Fprintf(&b, "Remaining planned steps: %d\n", remaining)
	b.WriteString("Propose corrective follow-up steps as a JSON array of {action, params}.")
	return b.String()
}

// parsePlannedSteps extracts an action-step array from raw planner output,
// tolerating surrounding prose and either a bare array or a {task, steps}
// object.
func parsePlannedSteps(raw string) ([]domain.ActionStep, error) {
	start := strings.IndexAny(raw, "[{")
	end := strings.LastIndexAny(raw, "]}")
	if start < 0 || end <= start {
		return nil, fmt.Errorf("no plan payload in planner output")
	}
	payload := raw[start : end+1]

	var steps []domain.ActionStep
	if err := json.Unmarshal([]byte(payload), &steps); err == nil {
		return steps, nil
	}
	var plan domain.ActionPlan
	if err := json.Unmarshal([]byte(payload), &plan); err == nil && len(plan.Steps) > 0 {
		return plan.Steps, nil
	}
	return nil, fmt.Errorf("planner output is not a step array")
}

// maybeReplan asks the planner for corrective steps after a terminal step
// failure. Appended steps are validated and safety-checked before splicing,
// never reorder the pending tail, and respect the total step ceiling. Any
// replanning fault is swallowed into the replan history; the original step
// failure stays authoritative.
func (e *Executor) maybeReplan(ctx context.Context, tc *TaskContext, failed domain.StepLog, maxTotal int) bool {
	if e.Planner == nil || tc.ReplanCount >= tc.Options.MaxReplans {
		return false
	}
	rec := ReplanRecord{Attempt: tc.ReplanCount + 1, FailedStep: failed.StepIndex}
	e.emit(tc, domain.EventTypeReplanStarted, map[string]any{
		"attempt":     rec.Attempt,
		"failed_step": failed.StepIndex,
		"reason":      failed.Reason,
	}, withStep(failed.StepIndex))

	defer func() {
		tc.ReplanHistory = append(tc.ReplanHistory, rec)
		e.emit(tc, domain.EventTypeReplanDone, rec, withStep(failed.StepIndex))
	}()

	raw, err := e.Planner.Propose(ctx, buildFailureSummary(tc, failed))
	if err != nil {
		rec.Err = fmt.Sprintf("planner error: %v", err)
		return false
	}
	steps, err := parsePlannedSteps(raw)
	if err != nil {
		rec.Err = err.Error()
		return false
	}
	if len(steps) == 0 {
		rec.Err = "planner produced no steps"
		return false
	}

	appended := domain.ActionPlan{Steps: steps}
	if errs := domain.ValidatePlan(&appended); len(errs) > 0 {
		rec.Err = fmt.Sprintf("replanned steps invalid: %v", errs[0])
		return false
	}
	if e.Policy != nil {
		dec, err := e.Policy.CheckPlan(ctx, tc.Instruction, appended)
		if err != nil || !dec.Allow {
			rec.Err = fmt.Sprintf("replanned steps rejected by safety policy: %s", dec.Code)
			return false
		}
	}

	room := maxTotal - len(tc.Plan.Steps)
	if room <= 0 {
		rec.Err = "step ceiling reached"
		return false
	}
	if len(appended.Steps) > room {
		appended.Steps = appended.Steps[:room]
	}
	tc.Plan.Steps = append(tc.Plan.Steps, appended.Steps...)
	tc.ReplanCount++
	tc.replanned = true
	rec.Attempt = tc.ReplanCount
	rec.StepsAdded = len(appended.Steps)
	return true
}
