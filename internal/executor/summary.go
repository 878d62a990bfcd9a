package executor

import (
	"fmt"
	"strings"

	"github.com/xiaot623/deskdriver/internal/domain"
)

// mapReasonCategory folds a step's stable reason code into the operator
// triage bucket.
func mapReasonCategory(reason string) domain.ReasonCategory {
	switch reason {
	case "foreground_mismatch", "focus_check_skipped":
		return domain.CategoryFocusGate
	case "needs_consent", "confirm_required":
		return domain.CategoryConsentGate
	case "path_not_allowed", "forbidden_path", "traversal_detected",
		"symlink_escape", "wildcard_blocked", "overwrite_blocked":
		return domain.CategoryFileGuardrail
	case "verification_retry", "verification_failed", "missing_expected_verify":
		return domain.CategoryVerification
	case "timeout", "timeout_allowed":
		return domain.CategoryTimeout
	case "dangerous_request", "blocked", "path_outside_workspace":
		return domain.CategoryUnsafePolicy
	case "plan_validation_error":
		return domain.CategoryPlanValidation
	default:
		return domain.CategoryHandler
	}
}

// categoryPriority orders triage buckets from most to least actionable: the
// primary diagnosis is the highest-priority category among the failures.
var categoryPriority = []domain.ReasonCategory{
	domain.CategoryPlanValidation,
	domain.CategoryFileGuardrail,
	domain.CategoryConsentGate,
	domain.CategoryFocusGate,
	domain.CategoryVerification,
	domain.CategoryHandler,
	domain.CategoryTimeout,
	domain.CategoryUnsafePolicy,
}

// buildDiagnostics picks the primary failure out of a finished run.
func buildDiagnostics(overall domain.OverallStatus, logs []domain.StepLog, maxAttempts int) *domain.RunDiagnostic {
	type failure struct {
		log      domain.StepLog
		category domain.ReasonCategory
	}
	var failures []failure
	for _, l := range logs {
		if l.Status == domain.StepStatusError || l.Status == domain.StepStatusUnsafe {
			failures = append(failures, failure{log: l, category: mapReasonCategory(l.Reason)})
		}
	}
	if len(failures) == 0 {
		return nil
	}

	primary := failures[len(failures)-1]
	for _, cat := range categoryPriority {
		found := false
		for _, f := range failures {
			if f.category == cat {
				primary = f
				found = true
				break
			}
		}
		if found {
			break
		}
	}

	d := &domain.RunDiagnostic{
		OverallStatus:   overall,
		PrimaryCategory: primary.category,
		PrimaryReason:   primary.log.Reason,
		FailedStepIndex: primary.log.StepIndex,
		Action:          primary.log.Action,
		AttemptCount:    len(primary.log.Attempts),
		RetryExhausted:  len(primary.log.Attempts) >= maxAttempts && maxAttempts > 1,
		Highlights:      map[string]any{},
	}
	if primary.log.Gate != nil && primary.log.Gate.Rule != "" {
		d.Highlights["gate_rule"] = primary.log.Gate.Rule
		if primary.log.Gate.NormalizedPath != "" {
			d.Highlights["normalized_path"] = primary.log.Gate.NormalizedPath
		}
	}
	if primary.log.Verification != nil {
		d.Highlights["verifier"] = primary.log.Verification.Verifier
		if len(primary.log.Verification.Expected) > 0 {
			d.Highlights["expected"] = primary.log.Verification.Expected
		}
	}
	if len(d.Highlights) == 0 {
		d.Highlights = nil
	}
	return d
}

// buildSummary aggregates per-step outcomes into the run summary.
func buildSummary(overall domain.OverallStatus, logs []domain.StepLog, replans int) *domain.RunSummary {
	s := &domain.RunSummary{TotalSteps: len(logs), Replans: replans}
	for _, l := range logs {
		switch l.Status {
		case domain.StepStatusSuccess, domain.StepStatusNoop:
			s.Succeeded++
		case domain.StepStatusError:
			s.Failed++
		case domain.StepStatusUnsafe:
			s.Unsafe++
		}
		if n := len(l.Attempts); n > 1 {
			s.Retries += n - 1
			if l.Status == domain.StepStatusSuccess {
				s.RecoveredFailures++
			}
		}
		if l.Status == domain.StepStatusError || l.Status == domain.StepStatusUnsafe {
			s.FailureMessages = append(s.FailureMessages,
				fmt.Sprintf("step %d (%s): %s", l.StepIndex, l.Action, clipReason(l.Reason)))
		}
	}

	var b strings.Builder
	fmt.Fprintf(&b, "Final: %s. Executed %d steps: %d succeeded, %d failed, %d unsafe",
		overall, s.TotalSteps, s.Succeeded, s.Failed, s.Unsafe)
	if s.Retries > 0 {
		fmt.Fprintf(&b, ", %d retries", s.Retries)
	}
	if s.Replans > 0 {
		fmt.Fprintf(&b, ", %d replans", s.Replans)
	}
	b.WriteString(".")
	s.SummaryText = b.String()
	return s
}
