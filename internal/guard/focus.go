package guard

import (
	"context"
	"strings"

	"github.com/xiaot623/deskdriver/internal/domain"
	"github.com/xiaot623/deskdriver/internal/driver"
)

// FocusDecision is the focus gate's verdict for one step.
type FocusDecision struct {
	Allow    bool                   `json:"allow"`
	Skipped  bool                   `json:"skipped"`
	Reason   string                 `json:"reason,omitempty"`
	Expected *domain.FocusTarget    `json:"expected,omitempty"`
	Actual   *domain.WindowSnapshot `json:"actual,omitempty"`
}

// ExpectedFocus derives the expected window for a step: explicit per-step
// hints win, else the last window an activation step focused. Nil when the
// step carries no focus dependency at all.
func ExpectedFocus(step domain.ActionStep, last *domain.FocusTarget) *domain.FocusTarget {
	title := step.StringParam("window_title")
	keywords := step.StringListParam("title_keywords")
	if title != "" || len(keywords) > 0 {
		return &domain.FocusTarget{Title: title, TitleKeywords: keywords}
	}
	return last
}

// CheckFocus verifies the foreground window matches the expected target for
// input-affecting steps. It only observes: a mismatch denies immediately,
// and recovery is left to an explicit activation step. Steps with no focus
// dependency are reported as skipped so the audit trail stays complete.
func CheckFocus(ctx context.Context, step domain.ActionStep, last *domain.FocusTarget, windows driver.WindowProvider) FocusDecision {
	if !step.Action.AffectsInput() {
		return FocusDecision{Allow: true, Skipped: true, Reason: "focus_check_skipped"}
	}
	expected := ExpectedFocus(step, last)
	if expected == nil {
		// No hint anywhere; the risk scorer already prices this in.
		return FocusDecision{Allow: true, Skipped: true, Reason: "focus_check_skipped"}
	}
	if windows == nil {
		return FocusDecision{Allow: false, Reason: "foreground_mismatch", Expected: expected}
	}

	actual, err := windows.Foreground(ctx)
	if err == nil && windowMatches(expected, actual) {
		return FocusDecision{Allow: true, Expected: expected, Actual: &actual}
	}

	var actualPtr *domain.WindowSnapshot
	if err == nil {
		actualPtr = &actual
	}
	return FocusDecision{
		Allow:    false,
		Reason:   "foreground_mismatch",
		Expected: expected,
		Actual:   actualPtr,
	}
}

// windowMatches accepts handle equality, pid equality, class substring, or
// title substring/keyword overlap. A zero handle means "no handle" and never
// matches by handle.
func windowMatches(expected *domain.FocusTarget, actual domain.WindowSnapshot) bool {
	if expected.Handle != 0 && expected.Handle == actual.Handle {
		return true
	}
	if expected.PID != 0 && expected.PID == actual.PID {
		return true
	}
	if expected.Class != "" && actual.Class != "" &&
		strings.Contains(strings.ToLower(actual.Class), strings.ToLower(expected.Class)) {
		return true
	}
	actualTitle := strings.ToLower(actual.Title)
	if expected.Title != "" && actualTitle != "" {
		want := strings.ToLower(expected.Title)
		if strings.Contains(actualTitle, want) || strings.Contains(want, actualTitle) {
			return true
		}
	}
	for _, kw := range expected.TitleKeywords {
		if kw != "" && strings.Contains(actualTitle, strings.ToLower(kw)) {
			return true
		}
	}
	return false
}
