package domain

import "testing"

func TestValidatePlanNormalizesAliases(t *testing.T) {
	plan := &ActionPlan{Steps: []ActionStep{
		{Action: ActionMoveFile, Params: map[string]any{
			"source":      "a.txt",
			"destination": "out",
		}},
		{Action: ActionTypeText, Params: map[string]any{"text": "hello"}},
		{Action: ActionHotkey, Params: map[string]any{"key": "ctrl+s"}},
	}}
	errs := ValidatePlan(plan)
	if len(errs) != 0 {
		t.Fatalf("unexpected errors: %v", errs)
	}
	if got := plan.Steps[0].StringParam("destination_dir"); got != "out" {
		t.Errorf("destination alias not folded, got %q", got)
	}
	if _, ok := plan.Steps[0].Params["destination"]; ok {
		t.Error("destination alias should be removed")
	}
	if !plan.Steps[1].BoolParam("auto_enter", false) {
		t.Error("auto_enter should default to true")
	}
	if keys := plan.Steps[2].StringListParam("keys"); len(keys) != 1 || keys[0] != "ctrl+s" {
		t.Errorf("key alias not folded, got %v", keys)
	}
}

func TestValidatePlanRejectsWholePlan(t *testing.T) {
	plan := &ActionPlan{Steps: []ActionStep{
		{Action: ActionClick, Params: map[string]any{"x": 10.0, "y": 20.0}},
		{Action: ActionClick},
		{Action: ActionKind("teleport")},
	}}
	errs := ValidatePlan(plan)
	if len(errs) != 2 {
		t.Fatalf("want 2 errors, got %d: %v", len(errs), errs)
	}
	if errs[0].StepIndex != 1 || errs[0].Field != "target" {
		t.Errorf("unexpected first error: %+v", errs[0])
	}
	if errs[1].StepIndex != 2 || errs[1].Field != "action" {
		t.Errorf("unexpected second error: %+v", errs[1])
	}
}

func TestValidateScroll(t *testing.T) {
	cases := []struct {
		name   string
		params map[string]any
		ok     bool
	}{
		{"direction", map[string]any{"direction": "down"}, true},
		{"amount", map[string]any{"amount": 120.0}, true},
		{"zero amount", map[string]any{"amount": 0.0}, false},
		{"bad direction", map[string]any{"direction": "sideways"}, false},
		{"empty", map[string]any{}, false},
	}
	for _, tc := range cases {
		plan := &ActionPlan{Steps: []ActionStep{{Action: ActionScroll, Params: tc.params}}}
		errs := ValidatePlan(plan)
		if tc.ok && len(errs) != 0 {
			t.Errorf("%s: unexpected errors %v", tc.name, errs)
		}
		if !tc.ok && len(errs) == 0 {
			t.Errorf("%s: expected a validation error", tc.name)
		}
	}
}

func TestValidateWaitUntilDefaults(t *testing.T) {
	plan := &ActionPlan{Steps: []ActionStep{
		{Action: ActionWaitUntil, Params: map[string]any{
			"condition": "window_exists",
			"target":    "Notepad",
		}},
	}}
	if errs := ValidatePlan(plan); len(errs) != 0 {
		t.Fatalf("unexpected errors: %v", errs)
	}
	if v, ok := plan.Steps[0].NumberParam("timeout"); !ok || v != 10.0 {
		t.Errorf("timeout default not applied, got %v", v)
	}
	if v, ok := plan.Steps[0].NumberParam("poll_interval"); !ok || v != 0.5 {
		t.Errorf("poll_interval default not applied, got %v", v)
	}
}

func TestValidateWaitNegativeSeconds(t *testing.T) {
	plan := &ActionPlan{Steps: []ActionStep{
		{Action: ActionWait, Params: map[string]any{"seconds": -1.0}},
	}}
	errs := ValidatePlan(plan)
	if len(errs) != 1 || errs[0].Field != "seconds" {
		t.Fatalf("want one seconds error, got %v", errs)
	}
}

func TestValidateRenameRejectsSeparators(t *testing.T) {
	plan := &ActionPlan{Steps: []ActionStep{
		{Action: ActionRenameFile, Params: map[string]any{
			"source":   "/tmp/a.txt",
			"new_name": "sub/b.txt",
		}},
	}}
	errs := ValidatePlan(plan)
	if len(errs) != 1 || errs[0].Field != "new_name" {
		t.Fatalf("want one new_name error, got %v", errs)
	}
}
