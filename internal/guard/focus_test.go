package guard

import (
	"context"
	"testing"

	"github.com/xiaot623/deskdriver/internal/domain"
	"github.com/xiaot623/deskdriver/internal/driver"
)

func clickStep() domain.ActionStep {
	return domain.ActionStep{Action: domain.ActionClick, Params: map[string]any{"x": 5.0, "y": 5.0}}
}

func TestCheckFocusSkipsNonInputActions(t *testing.T) {
	step := domain.ActionStep{Action: domain.ActionScreenshot}
	d := CheckFocus(context.Background(), step, &domain.FocusTarget{Title: "X"}, &driver.FakeWindows{})
	if !d.Allow || !d.Skipped || d.Reason != "focus_check_skipped" {
		t.Fatalf("want skipped allow, got %+v", d)
	}
}

func TestCheckFocusSkipsWithoutAnyHint(t *testing.T) {
	d := CheckFocus(context.Background(), clickStep(), nil, &driver.FakeWindows{})
	if !d.Allow || !d.Skipped {
		t.Fatalf("no hint anywhere should skip, got %+v", d)
	}
}

func TestCheckFocusTitleMatch(t *testing.T) {
	windows := &driver.FakeWindows{Fg: domain.WindowSnapshot{Handle: 7, Title: "report.txt - Notepad"}}
	d := CheckFocus(context.Background(), clickStep(), &domain.FocusTarget{Title: "Notepad"}, windows)
	if !d.Allow {
		t.Fatalf("title substring should match, got %+v", d)
	}
}

func TestCheckFocusMismatchDenies(t *testing.T) {
	windows := &driver.FakeWindows{Fg: domain.WindowSnapshot{Handle: 7, Title: "Calculator"}}
	d := CheckFocus(context.Background(), clickStep(), &domain.FocusTarget{Title: "Notepad"}, windows)
	if d.Allow || d.Reason != "foreground_mismatch" {
		t.Fatalf("want foreground_mismatch, got %+v", d)
	}
}

func TestCheckFocusMismatchNeverForcesForeground(t *testing.T) {
	expected := &domain.FocusTarget{Handle: 42, Title: "Notepad"}
	windows := &driver.FakeWindows{
		Fg:      domain.WindowSnapshot{Handle: 7, Title: "Calculator"},
		ForceOK: true,
	}
	d := CheckFocus(context.Background(), clickStep(), expected, windows)
	if d.Allow || d.Reason != "foreground_mismatch" {
		t.Fatalf("want denial, got %+v", d)
	}
	if windows.ForceCalls != 0 {
		t.Fatalf("gate mutated window state: %d force calls", windows.ForceCalls)
	}
}

func TestCheckFocusStepHintOverridesLast(t *testing.T) {
	windows := &driver.FakeWindows{Fg: domain.WindowSnapshot{Handle: 9, Title: "Paint"}}
	step := clickStep()
	step.Params["title_keywords"] = []any{"paint"}
	last := &domain.FocusTarget{Title: "Notepad"}
	d := CheckFocus(context.Background(), step, last, windows)
	if !d.Allow {
		t.Fatalf("per-step keywords should win, got %+v", d)
	}
}

func TestWindowMatchesZeroHandleNeverMatchesByHandle(t *testing.T) {
	expected := &domain.FocusTarget{Handle: 0, Title: "Something Else"}
	actual := domain.WindowSnapshot{Handle: 0, Title: "Calculator"}
	if windowMatches(expected, actual) {
		t.Fatal("zero handles must not match each other")
	}
}
