package domain

import (
	"encoding/json"
	"time"
)

// StepLog is the recorded outcome of one executed (or denied/skipped) step.
type StepLog struct {
	StepIndex    int                 `json:"step_index"`
	Action       ActionKind          `json:"action"`
	Params       map[string]any      `json:"params,omitempty"`
	Status       StepStatus          `json:"status"`
	Reason       string              `json:"reason,omitempty"`
	Attempts     []AttemptLog        `json:"attempts,omitempty"`
	Verification *VerificationResult `json:"verification,omitempty"`
	Risk         *RiskAssessment     `json:"risk,omitempty"`
	Gate         *GateDecision       `json:"gate,omitempty"`
	StartedAt    time.Time           `json:"started_at"`
	EndedAt      time.Time           `json:"ended_at"`
}

// AttemptLog records a single handler attempt within a step.
type AttemptLog struct {
	Attempt  int             `json:"attempt"`
	Status   StepStatus      `json:"status"`
	Reason   string          `json:"reason,omitempty"`
	Method   string          `json:"method,omitempty"`
	Evidence json.RawMessage `json:"evidence,omitempty"`
}

// TaskRecord is the registry's view of a task: enough to answer status
// queries and to reconstruct a run on resume.
type TaskRecord struct {
	TaskID      string        `json:"task_id"`
	RequestID   string        `json:"request_id"`
	Status      TaskStatus    `json:"status"`
	Instruction string        `json:"instruction,omitempty"`
	Plan        ActionPlan    `json:"plan"`
	StepCursor  int           `json:"step_cursor"`
	StepLogs    []StepLog     `json:"step_logs,omitempty"`
	LastError   string        `json:"last_error,omitempty"`
	Snapshot    *TaskSnapshot `json:"snapshot,omitempty"`
	CreatedAt   time.Time     `json:"created_at"`
	UpdatedAt   time.Time     `json:"updated_at"`
}

// TaskSnapshot captures the run state persisted by take_over so that resume
// can reconstruct the context.
type TaskSnapshot struct {
	WorkDir     string       `json:"work_dir,omitempty"`
	Consent     bool         `json:"consent"`
	FocusTarget *FocusTarget `json:"focus_target,omitempty"`
	ReplanCount int          `json:"replan_count"`
	Fingerprint string       `json:"fingerprint,omitempty"`
}

// RunOptions carries the caller-supplied knobs for one run.
type RunOptions struct {
	DryRun     bool   `json:"dry_run"`
	Consent    bool   `json:"consent"`
	MaxRetries int    `json:"max_retries"`
	MaxReplans int    `json:"max_replans"`
	WorkDir    string `json:"work_dir,omitempty"`
	StubMode   bool   `json:"stub_mode,omitempty"`
	VerifyMode string `json:"verify_mode,omitempty"`
}

// RunResult is what run(plan) always returns; it never escapes as a panic or
// raw error.
type RunResult struct {
	OverallStatus OverallStatus  `json:"overall_status"`
	FinalStatus   string         `json:"final_status,omitempty"`
	StepLogs      []StepLog      `json:"step_logs"`
	PlanRewrites  []PlanRewrite  `json:"plan_rewrites,omitempty"`
	Summary       *RunSummary    `json:"summary,omitempty"`
	Diagnostics   *RunDiagnostic `json:"diagnostics,omitempty"`
}

// PlanRewrite records a preprocessing substitution applied to the plan before
// execution (e.g. a UI save sequence folded into a direct file write).
type PlanRewrite struct {
	Pattern     string `json:"pattern"`
	Replacement string `json:"replacement"`
	Path        string `json:"path,omitempty"`
}

// RunSummary aggregates execution metrics for analytics and debugging.
type RunSummary struct {
	TotalSteps        int      `json:"total_steps"`
	Succeeded         int      `json:"succeeded"`
	Failed            int      `json:"failed"`
	Unsafe            int      `json:"unsafe"`
	Retries           int      `json:"retries"`
	Replans           int      `json:"replans"`
	RecoveredFailures int      `json:"recovered_failures"`
	FailureMessages   []string `json:"failure_messages,omitempty"`
	SummaryText       string   `json:"summary_text"`
}

// RunDiagnostic points the operator at the primary failure of a run.
type RunDiagnostic struct {
	OverallStatus   OverallStatus  `json:"overall_status"`
	PrimaryCategory ReasonCategory `json:"primary_failure_category"`
	PrimaryReason   string         `json:"primary_reason_code"`
	FailedStepIndex int            `json:"failed_step_index"`
	Action          ActionKind     `json:"action"`
	AttemptCount    int            `json:"attempt_count"`
	RetryExhausted  bool           `json:"retry_exhausted"`
	Highlights      map[string]any `json:"evidence_highlights,omitempty"`
}
