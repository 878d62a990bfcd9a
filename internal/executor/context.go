// Package executor composes the gates, locator, handlers, verifier, and
// replanner into the per-task run loop.
package executor

import (
	"github.com/xiaot623/deskdriver/internal/domain"
	"github.com/xiaot623/deskdriver/internal/guard"
	"github.com/xiaot623/deskdriver/internal/interact"
	"github.com/xiaot623/deskdriver/internal/locator"
)

// ReplanRecord is one replan attempt in a run's history.
type ReplanRecord struct {
	Attempt    int    `json:"attempt"`
	FailedStep int    `json:"failed_step"`
	StepsAdded int    `json:"steps_added"`
	Err        string `json:"error,omitempty"`
}

// TaskContext is the run-scoped mutable state. It is created at run start,
// owned by exactly one worker, and never shared across tasks; the registry
// and evidence recorder are the only cross-task surfaces.
type TaskContext struct {
	TaskID      string
	RequestID   string
	Instruction string
	Plan        domain.ActionPlan
	Options     domain.RunOptions

	WorkDir        string
	VisionDisabled bool

	Cursor        int
	StepLogs      []domain.StepLog
	Errors        []string
	ReplanCount   int
	ReplanHistory []ReplanRecord
	PlanRewrites  []domain.PlanRewrite

	// ActiveWindow is updated exclusively by window-activation steps and
	// read-only everywhere else in the run.
	ActiveWindow *domain.FocusTarget
	Fingerprint  string

	guardCfg   guard.Config
	fusion     *locator.Fusion
	actor      *interact.Actor
	dispatched int
	sawUnsafe  bool
	replanned  bool
}

// NewTaskContext builds the context for a fresh run.
func NewTaskContext(taskID, requestID, instruction string, plan domain.ActionPlan, opts domain.RunOptions, workDir string) *TaskContext {
	if opts.WorkDir != "" {
		workDir = opts.WorkDir
	}
	return &TaskContext{
		TaskID:      taskID,
		RequestID:   requestID,
		Instruction: instruction,
		Plan:        plan,
		Options:     opts,
		WorkDir:     workDir,
	}
}

// ResumeContext reconstructs a context from a task record's snapshot so the
// run can continue from the stored cursor.
func ResumeContext(rec domain.TaskRecord, opts domain.RunOptions) *TaskContext {
	tc := &TaskContext{
		TaskID:      rec.TaskID,
		RequestID:   rec.RequestID,
		Instruction: rec.Instruction,
		Plan:        rec.Plan,
		Options:     opts,
		Cursor:      rec.StepCursor,
		StepLogs:    append([]domain.StepLog(nil), rec.StepLogs...),
	}
	if snap := rec.Snapshot; snap != nil {
		tc.WorkDir = snap.WorkDir
		tc.ReplanCount = snap.ReplanCount
		tc.ActiveWindow = snap.FocusTarget
		tc.Fingerprint = snap.Fingerprint
		if !tc.Options.Consent {
			tc.Options.Consent = snap.Consent
		}
	}
	if opts.WorkDir != "" {
		tc.WorkDir = opts.WorkDir
	}
	return tc
}

// Snapshot captures the state a resume needs.
func (tc *TaskContext) Snapshot() *domain.TaskSnapshot {
	return &domain.TaskSnapshot{
		WorkDir:     tc.WorkDir,
		Consent:     tc.Options.Consent,
		FocusTarget: tc.ActiveWindow,
		ReplanCount: tc.ReplanCount,
		Fingerprint: tc.Fingerprint,
	}
}

// VerifyModeFor merges the run-level verify mode with a per-step override
// carried in the step's _feedback parameter. Stub mode never verifies: stub
// handlers do not touch the environment the verifier would observe.
func (tc *TaskContext) VerifyModeFor(step domain.ActionStep) domain.VerifyMode {
	if tc.Options.StubMode {
		return domain.VerifyModeNever
	}
	if fb, ok := step.Params["_feedback"].(map[string]any); ok {
		if v, ok := fb["verify"].(string); ok {
			switch domain.VerifyMode(v) {
			case domain.VerifyModeAuto, domain.VerifyModeNever, domain.VerifyModeAlways:
				return domain.VerifyMode(v)
			}
		}
	}
	switch domain.VerifyMode(tc.Options.VerifyMode) {
	case domain.VerifyModeNever, domain.VerifyModeAlways:
		return domain.VerifyMode(tc.Options.VerifyMode)
	}
	return domain.VerifyModeAuto
}

func (tc *TaskContext) maxAttempts() int {
	if tc.Options.MaxRetries < 0 {
		return 1
	}
	return 1 + tc.Options.MaxRetries
}
