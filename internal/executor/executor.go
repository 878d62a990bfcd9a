package executor

import (
	"context"
	"encoding/json"
	"fmt"
	"hash/fnv"
	"log"
	"time"

	"github.com/xiaot623/deskdriver/internal/domain"
	"github.com/xiaot623/deskdriver/internal/driver"
	"github.com/xiaot623/deskdriver/internal/evidence"
	"github.com/xiaot623/deskdriver/internal/guard"
	"github.com/xiaot623/deskdriver/internal/interact"
	"github.com/xiaot623/deskdriver/internal/locator"
	"github.com/xiaot623/deskdriver/internal/policy"
	"github.com/xiaot623/deskdriver/internal/registry"
	"github.com/xiaot623/deskdriver/internal/verify"
)

const defaultMaxSteps = 25

// Executor runs validated action plans through the gate cascade, the action
// handlers, and the verifier. One Executor serves many concurrent runs; all
// per-run state lives in the TaskContext.
type Executor struct {
	Policy    *policy.Engine
	Desktop   driver.Desktop
	Verifier  *verify.Verifier
	Recorder  *evidence.Recorder
	Artifacts *evidence.Store
	Registry  *registry.Registry
	Planner   Planner

	// MaxSteps is the base per-plan step ceiling; replanning may raise the
	// effective ceiling to MaxSteps * (1 + max_replans).
	MaxSteps int

	// Sleep is injectable for tests; defaults to a context-aware sleep.
	Sleep func(time.Duration)
}

func withStep(i int) evidence.EmitOption         { return evidence.WithStep(i) }
func withAttempt(a int) evidence.EmitOption      { return evidence.WithAttempt(a) }
func withArtifact(id string) evidence.EmitOption { return evidence.WithArtifact(id) }

func (e *Executor) emit(tc *TaskContext, typ domain.EventType, payload any, opts ...evidence.EmitOption) {
	if e.Recorder == nil || tc.RequestID == "" {
		return
	}
	e.Recorder.Emit(tc.RequestID, typ, payload, opts...)
}

func (e *Executor) maxSteps() int {
	if e.MaxSteps > 0 {
		return e.MaxSteps
	}
	return defaultMaxSteps
}

// Run executes the plan to a terminal state. It always returns a structured
// result; no fault propagates past this boundary.
func (e *Executor) Run(ctx context.Context, tc *TaskContext) domain.RunResult {
	ctx, span := startRunSpan(ctx, tc)
	res := e.run(ctx, tc)
	endRunSpan(span, string(res.OverallStatus))
	return res
}

func (e *Executor) run(ctx context.Context, tc *TaskContext) domain.RunResult {
	tc.guardCfg = guard.DefaultConfig(tc.WorkDir)
	tc.fusion = &locator.Fusion{
		OCR:            e.Desktop.OCR,
		Icons:          e.Desktop.Icons,
		Vision:         e.Desktop.Vision,
		Screen:         e.Desktop.Screen,
		Elements:       e.Desktop.Elements,
		VisionDisabled: tc.VisionDisabled,
	}
	tc.actor = &interact.Actor{
		Input:    e.Desktop.Input,
		Clip:     e.Desktop.Clip,
		Elements: e.Desktop.Elements,
		Screen:   e.Desktop.Screen,
	}

	e.emit(tc, domain.EventTypeRunStarted, map[string]any{
		"instruction": tc.Instruction,
		"steps":       len(tc.Plan.Steps),
		"dry_run":     tc.Options.DryRun,
		"cursor":      tc.Cursor,
	})

	// Validation rejects the whole plan before any side effect.
	if errs := domain.ValidatePlan(&tc.Plan); len(errs) > 0 {
		for _, ve := range errs {
			tc.StepLogs = append(tc.StepLogs, domain.StepLog{
				StepIndex: ve.StepIndex,
				Action:    domain.ActionKind(ve.Action),
				Status:    domain.StepStatusError,
				Reason:    "plan_validation_error",
			})
			tc.Errors = append(tc.Errors, ve.Error())
		}
		e.emit(tc, domain.EventTypePlanValidated, map[string]any{"valid": false, "errors": tc.Errors})
		return e.finish(tc, domain.OverallError, "plan_validation_error")
	}
	e.emit(tc, domain.EventTypePlanValidated, map[string]any{"valid": true, "steps": len(tc.Plan.Steps)})

	// Plan-wide safety scan blocks the entire run, dry or not.
	if e.Policy != nil {
		dec, err := e.Policy.CheckPlan(ctx, tc.Instruction, tc.Plan)
		if err != nil {
			dec = policy.Decision{Allow: false, Code: "policy_error", Detail: err.Error()}
		}
		if !dec.Allow {
			tc.sawUnsafe = true
			tc.StepLogs = append(tc.StepLogs, domain.StepLog{
				StepIndex: -1,
				Status:    domain.StepStatusUnsafe,
				Reason:    dec.Code,
			})
			e.emit(tc, domain.EventTypeGateDecision, dec)
			return e.finish(tc, domain.OverallUnsafe, dec.Code)
		}
	}

	if tc.Cursor == 0 && !tc.Options.DryRun {
		if rewrites := rewriteSavePattern(&tc.Plan, tc.WorkDir); len(rewrites) > 0 {
			tc.PlanRewrites = rewrites
			e.emit(tc, domain.EventTypePlanRewritten, rewrites)
		}
	}

	// Oversized plans are clipped to the step ceiling at load; replans can
	// later grow the plan, but only within the replan-adjusted total below.
	if ceiling := e.maxSteps(); tc.Cursor == 0 && len(tc.Plan.Steps) > ceiling {
		log.Printf("request %s: plan truncated from %d to %d steps", tc.RequestID, len(tc.Plan.Steps), ceiling)
		tc.Plan.Steps = tc.Plan.Steps[:ceiling]
	}
	maxTotal := e.maxSteps() * (1 + tc.Options.MaxReplans)

	e.updateRecord(tc, domain.TaskStatusRunning, "")

	for tc.Cursor < len(tc.Plan.Steps) {
		if tc.dispatched >= maxTotal {
			tc.Errors = append(tc.Errors, fmt.Sprintf("step ceiling %d reached", maxTotal))
			break
		}
		idx := tc.Cursor
		stepLog := e.runStep(ctx, tc, idx, tc.Plan.Steps[idx])
		tc.StepLogs = append(tc.StepLogs, stepLog)
		e.emit(tc, domain.EventTypeStepResult, stepLog, withStep(idx))

		switch stepLog.Status {
		case domain.StepStatusAwaitingUser:
			tc.Cursor = idx + 1
			e.updateAwaiting(tc)
			e.emit(tc, domain.EventTypeTakeOver, map[string]any{"cursor": tc.Cursor}, withStep(idx))
			return e.finish(tc, domain.OverallAwaitingUser, "awaiting_user")
		case domain.StepStatusUnsafe:
			tc.sawUnsafe = true
			tc.Cursor = idx + 1
			return e.finish(tc, domain.OverallUnsafe, stepLog.Reason)
		case domain.StepStatusError:
			tc.Cursor = idx + 1
			e.updateRecord(tc, domain.TaskStatusRunning, stepLog.Reason)
			if e.maybeReplan(ctx, tc, stepLog, maxTotal) {
				continue
			}
			return e.finish(tc, domain.OverallError, stepLog.Reason)
		default:
			tc.Cursor = idx + 1
			e.updateRecord(tc, domain.TaskStatusRunning, "")
		}
	}

	if tc.Options.DryRun {
		return e.finish(tc, domain.OverallDryRun, "dry_run")
	}
	if tc.replanned {
		return e.finish(tc, domain.OverallReplanned, "success_with_replan")
	}
	return e.finish(tc, domain.OverallSuccess, "success")
}

// runStep applies the gate cascade and, if every gate passes, dispatches the
// handler with the verification retry loop.
func (e *Executor) runStep(ctx context.Context, tc *TaskContext, idx int, step domain.ActionStep) domain.StepLog {
	ctx, span := startStepSpan(ctx, string(step.Action), idx)
	stepLog := domain.StepLog{
		StepIndex: idx,
		Action:    step.Action,
		Params:    step.Params,
		StartedAt: time.Now(),
	}
	defer func() {
		stepLog.EndedAt = time.Now()
		endStepSpan(span, string(stepLog.Status), stepLog.Reason)
	}()

	e.emit(tc, domain.EventTypeStepStarted, map[string]any{"action": step.Action}, withStep(idx))

	risk := guard.AssessRisk(step, tc.WorkDir, tc.guardCfg, tc.ActiveWindow)
	stepLog.Risk = &risk

	if tc.Options.DryRun {
		stepLog.Status = domain.StepStatusSkipped
		if e.Policy != nil {
			if dec, err := e.Policy.CheckStep(ctx, step); err == nil && !dec.Allow {
				stepLog.Reason = dec.Code
			}
		}
		return stepLog
	}

	// Gate cascade: safety policy, risk/consent, file guard, focus. The
	// first denial wins and the handler is never invoked.
	if e.Policy != nil {
		dec, err := e.Policy.CheckStep(ctx, step)
		if err != nil {
			dec = policy.Decision{Allow: false, Code: "policy_error", Detail: err.Error()}
		}
		if !dec.Allow {
			stepLog.Status = domain.StepStatusUnsafe
			stepLog.Reason = dec.Code
			stepLog.Gate = &domain.GateDecision{Allow: false, Reason: dec.Code, Rule: "safety_policy"}
			e.emit(tc, domain.EventTypeGateDecision, stepLog.Gate, withStep(idx))
			return stepLog
		}
	}

	if risk.Level == domain.RiskBlock {
		stepLog.Status = domain.StepStatusUnsafe
		stepLog.Reason = "blocked"
		stepLog.Gate = &domain.GateDecision{Allow: false, Reason: "blocked", Rule: "risk_block"}
		e.emit(tc, domain.EventTypeGateDecision, stepLog.Gate, withStep(idx))
		return stepLog
	}
	if risk.Level == domain.RiskHigh && !tc.Options.Consent {
		stepLog.Status = domain.StepStatusError
		stepLog.Reason = "needs_consent"
		stepLog.Gate = &domain.GateDecision{Allow: false, Reason: "needs_consent", Rule: "risk_consent"}
		e.emit(tc, domain.EventTypeGateDecision, stepLog.Gate, withStep(idx))
		return stepLog
	}

	if gd := guard.EvaluateFile(step, tc.WorkDir, tc.guardCfg); !gd.Allow {
		stepLog.Status = domain.StepStatusError
		stepLog.Reason = gd.Rule
		stepLog.Gate = &gd
		e.emit(tc, domain.EventTypeGateDecision, &gd, withStep(idx))
		return stepLog
	}

	fd := guard.CheckFocus(ctx, step, tc.ActiveWindow, e.Desktop.Windows)
	if fd.Skipped {
		e.emit(tc, domain.EventTypeGateDecision, fd, withStep(idx))
	} else if !fd.Allow {
		stepLog.Status = domain.StepStatusError
		stepLog.Reason = fd.Reason
		stepLog.Gate = &domain.GateDecision{Allow: false, Reason: fd.Reason, Rule: "focus_gate"}
		e.emit(tc, domain.EventTypeGateDecision, fd, withStep(idx))
		return stepLog
	}

	tc.dispatched++
	mode := tc.VerifyModeFor(step)
	if e.Verifier == nil {
		mode = domain.VerifyModeNever
	}
	maxAttempts := tc.maxAttempts()

	for attempt := 1; attempt <= maxAttempts; attempt++ {
		hr := e.dispatchStep(ctx, tc, idx, step)
		al := domain.AttemptLog{Attempt: attempt, Status: hr.Status, Reason: hr.Reason, Method: hr.Method}
		if len(hr.Payload) > 0 {
			if raw, err := json.Marshal(hr.Payload); err == nil {
				al.Evidence = raw
			}
		}
		stepLog.Attempts = append(stepLog.Attempts, al)
		e.emit(tc, domain.EventTypeStepAttempt, al, withStep(idx), withAttempt(attempt))

		if hr.Status == domain.StepStatusAwaitingUser {
			stepLog.Status = domain.StepStatusAwaitingUser
			stepLog.Reason = "take_over"
			return stepLog
		}

		vr := e.verifyAttempt(ctx, mode, step, attempt, maxAttempts, hr, tc.WorkDir)
		stepLog.Verification = &vr
		e.emit(tc, domain.EventTypeStepVerified, vr, withStep(idx), withAttempt(attempt))

		switch vr.Decision {
		case domain.VerifySuccess:
			stepLog.Status = domain.StepStatusSuccess
			if hr.Status == domain.StepStatusNoop {
				stepLog.Status = domain.StepStatusNoop
			}
			stepLog.Reason = vr.Reason
			e.noteFingerprint(ctx, tc, idx, step)
			return stepLog
		case domain.VerifyRetry:
			continue
		default:
			stepLog.Status = domain.StepStatusError
			stepLog.Reason = vr.Reason
			return stepLog
		}
	}

	// Unreachable: the verifier turns Retry into Failed on the last attempt.
	stepLog.Status = domain.StepStatusError
	stepLog.Reason = "verification_failed"
	return stepLog
}

func (e *Executor) verifyAttempt(ctx context.Context, mode domain.VerifyMode, step domain.ActionStep, attempt, maxAttempts int, hr domain.HandlerResult, workDir string) domain.VerificationResult {
	if mode == domain.VerifyModeNever {
		vr := domain.VerificationResult{Verifier: "none", Attempt: attempt, MaxAttempts: maxAttempts}
		if hr.Status == domain.StepStatusError {
			vr.Decision = domain.VerifyRetry
			vr.Reason = "handler_error"
			if attempt >= maxAttempts {
				vr.Decision = domain.VerifyFailed
			}
		} else {
			vr.Decision = domain.VerifySuccess
			vr.Reason = "verification_skipped"
		}
		return vr
	}
	return e.Verifier.Verify(ctx, step, attempt, maxAttempts, hr, workDir)
}

// noteFingerprint warns when the screen did not change across an interactive
// step; the step may have landed on a dead control.
func (e *Executor) noteFingerprint(ctx context.Context, tc *TaskContext, idx int, step domain.ActionStep) {
	if !step.Action.AffectsInput() || e.Desktop.Screen == nil {
		return
	}
	img, err := e.Desktop.Screen.Capture(ctx)
	if err != nil || len(img) == 0 {
		return
	}
	h := fnv.New64a()
	h.Write(img)
	fp := fmt.Sprintf("%x", h.Sum64())
	if tc.Fingerprint != "" && tc.Fingerprint == fp {
		log.Printf("task %s: ui fingerprint unchanged after step %d (%s)", tc.TaskID, idx, step.Action)
	}
	tc.Fingerprint = fp
}

func (e *Executor) finish(tc *TaskContext, overall domain.OverallStatus, final string) domain.RunResult {
	res := domain.RunResult{
		OverallStatus: overall,
		FinalStatus:   final,
		StepLogs:      tc.StepLogs,
		PlanRewrites:  tc.PlanRewrites,
		Summary:       buildSummary(overall, tc.StepLogs, tc.ReplanCount),
	}
	if overall == domain.OverallError || overall == domain.OverallUnsafe {
		res.Diagnostics = buildDiagnostics(overall, tc.StepLogs, tc.maxAttempts())
	}

	switch overall {
	case domain.OverallAwaitingUser:
		// Registry already updated by updateAwaiting.
	case domain.OverallError, domain.OverallUnsafe:
		e.updateRecord(tc, domain.TaskStatusFailed, final)
	default:
		e.updateRecord(tc, domain.TaskStatusCompleted, "")
	}

	e.emit(tc, domain.EventTypeRunDone, map[string]any{
		"overall_status": overall,
		"final_status":   final,
		"summary":        res.Summary.SummaryText,
	})
	return res
}

func (e *Executor) updateRecord(tc *TaskContext, status domain.TaskStatus, lastErr string) {
	if e.Registry == nil || tc.TaskID == "" {
		return
	}
	_, err := e.Registry.Update(tc.TaskID, func(r *domain.TaskRecord) {
		r.Status = status
		r.Plan = tc.Plan
		r.StepCursor = tc.Cursor
		r.StepLogs = append([]domain.StepLog(nil), tc.StepLogs...)
		r.LastError = lastErr
	})
	if err != nil && err != registry.ErrNotFound {
		log.Printf("task %s: registry update failed: %v", tc.TaskID, err)
	}
}

// updateAwaiting snapshots the run state for resume before suspension.
func (e *Executor) updateAwaiting(tc *TaskContext) {
	if e.Registry == nil || tc.TaskID == "" {
		return
	}
	_, err := e.Registry.Update(tc.TaskID, func(r *domain.TaskRecord) {
		r.Status = domain.TaskStatusAwaitingUser
		r.Plan = tc.Plan
		r.StepCursor = tc.Cursor
		r.StepLogs = append([]domain.StepLog(nil), tc.StepLogs...)
		r.Snapshot = tc.Snapshot()
	})
	if err != nil && err != registry.ErrNotFound {
		log.Printf("task %s: registry snapshot failed: %v", tc.TaskID, err)
	}
}
