package executor

import (
	"strings"
	"testing"

	"github.com/xiaot623/deskdriver/internal/domain"
)

func TestMapReasonCategory(t *testing.T) {
	cases := map[string]domain.ReasonCategory{
		"foreground_mismatch":     domain.CategoryFocusGate,
		"focus_check_skipped":     domain.CategoryFocusGate,
		"needs_consent":           domain.CategoryConsentGate,
		"confirm_required":        domain.CategoryConsentGate,
		"path_not_allowed":        domain.CategoryFileGuardrail,
		"symlink_escape":          domain.CategoryFileGuardrail,
		"overwrite_blocked":       domain.CategoryFileGuardrail,
		"verification_failed":     domain.CategoryVerification,
		"missing_expected_verify": domain.CategoryVerification,
		"timeout":                 domain.CategoryTimeout,
		"dangerous_request":       domain.CategoryUnsafePolicy,
		"plan_validation_error":   domain.CategoryPlanValidation,
		"handler panic: boom":     domain.CategoryHandler,
	}
	for reason, want := range cases {
		if got := mapReasonCategory(reason); got != want {
			t.Errorf("mapReasonCategory(%q) = %s, want %s", reason, got, want)
		}
	}
}

func TestDiagnosticsPriorityOrder(t *testing.T) {
	logs := []domain.StepLog{
		{StepIndex: 0, Action: domain.ActionOpenApp, Status: domain.StepStatusError, Reason: "verification_failed"},
		{StepIndex: 1, Action: domain.ActionWriteFile, Status: domain.StepStatusError, Reason: "path_not_allowed"},
	}
	d := buildDiagnostics(domain.OverallError, logs, 3)
	if d.PrimaryCategory != domain.CategoryFileGuardrail {
		t.Fatalf("primary category = %s", d.PrimaryCategory)
	}
	if d.FailedStepIndex != 1 || d.Action != domain.ActionWriteFile {
		t.Fatalf("primary step = %d (%s)", d.FailedStepIndex, d.Action)
	}
}

func TestDiagnosticsNilWithoutFailures(t *testing.T) {
	logs := []domain.StepLog{
		{StepIndex: 0, Status: domain.StepStatusSuccess},
		{StepIndex: 1, Status: domain.StepStatusSkipped},
	}
	if d := buildDiagnostics(domain.OverallError, logs, 1); d != nil {
		t.Fatalf("diagnostics = %+v", d)
	}
}

func TestBuildSummaryCounts(t *testing.T) {
	logs := []domain.StepLog{
		{Status: domain.StepStatusSuccess, Attempts: []domain.AttemptLog{{Attempt: 1}, {Attempt: 2}}},
		{Status: domain.StepStatusSuccess, Attempts: []domain.AttemptLog{{Attempt: 1}}},
		{Status: domain.StepStatusError, Reason: "handler_error", Attempts: []domain.AttemptLog{{Attempt: 1}}},
		{Status: domain.StepStatusUnsafe, Reason: "confirm_required"},
	}
	s := buildSummary(domain.OverallError, logs, 1)
	if s.TotalSteps != 4 || s.Succeeded != 2 || s.Failed != 1 || s.Unsafe != 1 {
		t.Fatalf("summary = %+v", s)
	}
	if s.Retries != 1 || s.RecoveredFailures != 1 || s.Replans != 1 {
		t.Fatalf("summary = %+v", s)
	}
	if len(s.FailureMessages) != 2 {
		t.Fatalf("failure messages = %v", s.FailureMessages)
	}
	if !strings.Contains(s.SummaryText, "Executed 4 steps") {
		t.Fatalf("summary text = %q", s.SummaryText)
	}
}

func TestClipReason(t *testing.T) {
	long := strings.Repeat("x", 500)
	got := clipReason(long)
	if len(got) != maxReasonLen {
		t.Fatalf("clipped length = %d", len(got))
	}
	if !strings.HasSuffix(got, "...") {
		t.Fatalf("clipped = %q", got[len(got)-10:])
	}
	if clipReason("short") != "short" {
		t.Fatal("short reasons must pass through")
	}
}
