package domain

import (
	"fmt"
	"strings"
)

// ActionStep is one abstract operation in an action plan. Params are
// normalized per action kind by ValidatePlan before execution.
type ActionStep struct {
	Action ActionKind     `json:"action"`
	Params map[string]any `json:"params,omitempty"`
}

// ActionPlan is a validated, ordered sequence of steps with an optional task label.
type ActionPlan struct {
	Task  string       `json:"task,omitempty"`
	Steps []ActionStep `json:"steps"`
}

// ValidationError describes a single plan-validation violation.
type ValidationError struct {
	StepIndex int    `json:"step_index"`
	Action    string `json:"action"`
	Field     string `json:"field"`
	Reason    string `json:"reason"`
}

func (e ValidationError) Error() string {
	return fmt.Sprintf("step %d (%s): %s: %s", e.StepIndex, e.Action, e.Field, e.Reason)
}

// StringParam returns the named param as a trimmed string, or "" if absent or
// not a string.
func (s ActionStep) StringParam(name string) string {
	if s.Params == nil {
		return ""
	}
	v, ok := s.Params[name].(string)
	if !ok {
		return ""
	}
	return strings.TrimSpace(v)
}

// NumberParam returns the named param as a float64 when it carries any numeric
// JSON value.
func (s ActionStep) NumberParam(name string) (float64, bool) {
	if s.Params == nil {
		return 0, false
	}
	switch v := s.Params[name].(type) {
	case float64:
		return v, true
	case int:
		return float64(v), true
	case int64:
		return float64(v), true
	}
	return 0, false
}

// BoolParam returns the named param as a bool, defaulting to def when absent.
func (s ActionStep) BoolParam(name string, def bool) bool {
	if s.Params == nil {
		return def
	}
	v, ok := s.Params[name].(bool)
	if !ok {
		return def
	}
	return v
}

// StringListParam returns the named param as a list of non-empty strings. A
// bare string value is treated as a single-element list.
func (s ActionStep) StringListParam(name string) []string {
	if s.Params == nil {
		return nil
	}
	var out []string
	switch v := s.Params[name].(type) {
	case string:
		if t := strings.TrimSpace(v); t != "" {
			out = append(out, t)
		}
	case []any:
		for _, item := range v {
			str, ok := item.(string)
			if !ok {
				continue
			}
			if t := strings.TrimSpace(str); t != "" {
				out = append(out, t)
			}
		}
	case []string:
		for _, str := range v {
			if t := strings.TrimSpace(str); t != "" {
				out = append(out, t)
			}
		}
	}
	return out
}

// TargetHint returns the first non-empty targeting hint among the common
// aliases used by pointer actions.
func (s ActionStep) TargetHint() string {
	for _, key := range []string{"text", "target", "label", "visual_description"} {
		if v := s.StringParam(key); v != "" {
			return v
		}
	}
	return ""
}

// HasCoordinates reports whether the step carries explicit x/y coordinates.
func (s ActionStep) HasCoordinates() bool {
	_, okX := s.NumberParam("x")
	_, okY := s.NumberParam("y")
	return okX && okY
}

// PathParams returns every path-bearing param value for the step, used by the
// safety gate and file guard.
func (s ActionStep) PathParams() []string {
	var out []string
	for _, key := range []string{"path", "source", "destination_dir"} {
		if v := s.StringParam(key); v != "" {
			out = append(out, v)
		}
	}
	return out
}

var validConditions = map[string]bool{
	"window_exists":      true,
	"process_exists":     true,
	"foreground_matches": true,
	"title_contains":     true,
}

var validScrollDirections = map[string]bool{
	"up": true, "down": true, "left": true, "right": true,
}

// ValidatePlan normalizes parameter aliases and defaults in place and returns
// every violation found. A non-empty result rejects the whole plan; no step of
// a partially valid plan ever executes.
func ValidatePlan(plan *ActionPlan) []ValidationError {
	var errs []ValidationError
	known := make(map[ActionKind]bool, len(AllActionKinds))
	for _, k := range AllActionKinds {
		known[k] = true
	}
	for i := range plan.Steps {
		step := &plan.Steps[i]
		if step.Params == nil {
			step.Params = map[string]any{}
		}
		if !known[step.Action] {
			errs = append(errs, ValidationError{i, string(step.Action), "action", "unknown action kind"})
			continue
		}
		normalizeAliases(step)
		errs = append(errs, validateStep(i, step)...)
	}
	return errs
}

// normalizeAliases folds parameter aliases into their canonical fields and
// applies per-kind defaults.
func normalizeAliases(step *ActionStep) {
	p := step.Params
	// destination -> destination_dir for file moves/copies
	if step.Action == ActionMoveFile || step.Action == ActionCopyFile {
		if _, ok := p["destination_dir"]; !ok {
			if v, ok := p["destination"]; ok {
				p["destination_dir"] = v
			}
		}
		delete(p, "destination")
	}
	switch step.Action {
	case ActionTypeText:
		if _, ok := p["auto_enter"]; !ok {
			p["auto_enter"] = true
		}
	case ActionHotkey, ActionKeyPress:
		// "key" -> "keys"
		if _, ok := p["keys"]; !ok {
			if v, ok := p["key"]; ok {
				p["keys"] = v
			}
		}
		delete(p, "key")
	case ActionWaitUntil:
		if _, ok := p["timeout"]; !ok {
			p["timeout"] = 10.0
		}
		if _, ok := p["poll_interval"]; !ok {
			p["poll_interval"] = 0.5
		}
	}
}

func validateStep(idx int, step *ActionStep) []ValidationError {
	var errs []ValidationError
	fail := func(field, reason string) {
		errs = append(errs, ValidationError{idx, string(step.Action), field, reason})
	}
	switch step.Action {
	case ActionOpenApp, ActionOpenFile:
		if step.StringParam("target") == "" && step.StringParam("path") == "" {
			fail("target", "'target' or 'path' is required")
		}
	case ActionActivateWindow:
		if step.StringParam("target") == "" && len(step.StringListParam("title_keywords")) == 0 {
			fail("target", "'target' or 'title_keywords' is required")
		}
	case ActionClick, ActionDoubleClick, ActionRightClick:
		if !step.HasCoordinates() && step.TargetHint() == "" && len(step.StringListParam("target_icon")) == 0 {
			fail("target", "coordinates or a targeting hint is required")
		}
	case ActionClickText:
		if step.StringParam("text") == "" {
			fail("text", "'text' is required")
		}
	case ActionMouseMove, ActionDrag:
		if _, ok := step.NumberParam("x"); !ok {
			fail("x", "'x' must be a number")
		}
		if _, ok := step.NumberParam("y"); !ok {
			fail("y", "'y' must be a number")
		}
		if step.Action == ActionDrag {
			if _, ok := step.NumberParam("to_x"); !ok {
				fail("to_x", "'to_x' must be a number")
			}
			if _, ok := step.NumberParam("to_y"); !ok {
				fail("to_y", "'to_y' must be a number")
			}
		}
	case ActionScroll:
		dir := strings.ToLower(step.StringParam("direction"))
		amount, hasAmount := step.NumberParam("amount")
		if dir == "" && (!hasAmount || amount == 0) {
			fail("direction", "a direction or a non-zero 'amount' is required")
		} else if dir != "" && !validScrollDirections[dir] {
			fail("direction", "direction must be one of up/down/left/right")
		}
	case ActionTypeText:
		if step.StringParam("text") == "" {
			fail("text", "'text' is required")
		}
	case ActionKeyPress, ActionHotkey:
		if len(step.StringListParam("keys")) == 0 {
			fail("keys", "'keys' is required")
		}
	case ActionWait:
		secs, ok := step.NumberParam("seconds")
		if !ok {
			fail("seconds", "'seconds' must be a number")
		} else if secs < 0 {
			fail("seconds", "'seconds' must be non-negative")
		}
	case ActionWaitUntil:
		cond := strings.ToLower(step.StringParam("condition"))
		if cond == "" {
			fail("condition", "'condition' is required")
		} else if !validConditions[cond] {
			fail("condition", "unknown condition")
		}
		if step.StringParam("target") == "" {
			fail("target", "'target' is required")
		}
	case ActionListFiles, ActionReadFile, ActionDeleteFile, ActionCreateFolder:
		if step.StringParam("path") == "" {
			fail("path", "'path' is required")
		}
	case ActionWriteFile:
		if step.StringParam("path") == "" {
			fail("path", "'path' is required")
		}
		if _, ok := step.Params["content"].(string); !ok {
			fail("content", "'content' is required and must be a string")
		}
	case ActionMoveFile, ActionCopyFile:
		if step.StringParam("source") == "" {
			fail("source", "'source' is required")
		}
		if step.StringParam("destination_dir") == "" {
			fail("destination_dir", "'destination_dir' is required")
		}
	case ActionRenameFile:
		if step.StringParam("source") == "" {
			fail("source", "'source' is required")
		}
		newName := step.StringParam("new_name")
		if newName == "" {
			fail("new_name", "'new_name' is required")
		} else if strings.ContainsAny(newName, `/\`) {
			fail("new_name", "'new_name' must not contain path separators")
		}
	case ActionOpenURL:
		if step.StringParam("url") == "" {
			fail("url", "'url' is required")
		}
	case ActionBrowserClick:
		if step.StringParam("selector") == "" && step.TargetHint() == "" {
			fail("selector", "'selector' or a targeting hint is required")
		}
	case ActionBrowserInput:
		if step.StringParam("selector") == "" && step.TargetHint() == "" {
			fail("selector", "'selector' or a targeting hint is required")
		}
		if step.StringParam("value") == "" && step.StringParam("text") == "" {
			fail("value", "'value' is required")
		}
	case ActionAdjustVolume:
		_, hasLevel := step.NumberParam("level")
		dir := strings.ToLower(step.StringParam("direction"))
		if !hasLevel && dir != "up" && dir != "down" && dir != "mute" {
			fail("level", "'level' or a direction of up/down/mute is required")
		}
	}
	return errs
}
