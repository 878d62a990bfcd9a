package executor

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/xiaot623/deskdriver/internal/actions"
	"github.com/xiaot623/deskdriver/internal/domain"
	"github.com/xiaot623/deskdriver/internal/driver"
	"github.com/xiaot623/deskdriver/internal/guard"
	"github.com/xiaot623/deskdriver/internal/interact"
	"github.com/xiaot623/deskdriver/internal/locator"
)

func errHR(format string, args ...any) domain.HandlerResult {
	return domain.HandlerResult{Status: domain.StepStatusError, Reason: fmt.Sprintf(format, args...)}
}

func okHR(method string, payload map[string]any) domain.HandlerResult {
	return domain.HandlerResult{Status: domain.StepStatusSuccess, Method: method, Payload: payload}
}

func stubResult(step domain.ActionStep) domain.HandlerResult {
	return domain.HandlerResult{
		Status:  domain.StepStatusNoop,
		Reason:  "stub",
		Method:  "stub",
		Payload: map[string]any{"stub": true, "action": string(step.Action)},
	}
}

// dispatchStep routes one step to its handler. The boundary never propagates
// a panic: a handler fault becomes a structured error result.
func (e *Executor) dispatchStep(ctx context.Context, tc *TaskContext, idx int, step domain.ActionStep) (hr domain.HandlerResult) {
	defer func() {
		if r := recover(); r != nil {
			hr = errHR("handler panic: %v", r)
		}
	}()

	if tc.Options.StubMode {
		return stubResult(step)
	}

	switch step.Action {
	case domain.ActionOpenApp:
		return e.handleOpenApp(ctx, step)
	case domain.ActionActivateWindow:
		return e.handleActivateWindow(ctx, tc, step)
	case domain.ActionCloseWindow:
		return e.handleWindowKeys(ctx, tc, step, []string{"alt", "f4"})
	case domain.ActionMinimizeWindow:
		return e.handleWindowKeys(ctx, tc, step, []string{"win", "down"})
	case domain.ActionMaximizeWindow:
		return e.handleWindowKeys(ctx, tc, step, []string{"win", "up"})
	case domain.ActionClick, domain.ActionClickText:
		return e.handleClick(ctx, tc, idx, step, "left", 1)
	case domain.ActionDoubleClick:
		return e.handleClick(ctx, tc, idx, step, "left", 2)
	case domain.ActionRightClick:
		return e.handleClick(ctx, tc, idx, step, "right", 1)
	case domain.ActionMouseMove:
		return e.handleMouseMove(ctx, step)
	case domain.ActionDrag:
		return e.handleDrag(ctx, step)
	case domain.ActionScroll:
		return e.handleScroll(ctx, step)
	case domain.ActionTypeText:
		return e.handleTypeText(ctx, tc, idx, step)
	case domain.ActionKeyPress, domain.ActionHotkey:
		return e.handleKeyPress(ctx, step)
	case domain.ActionWait:
		return e.handleWait(ctx, step)
	case domain.ActionWaitUntil:
		return e.handleWaitUntil(ctx, step)
	case domain.ActionTakeOver:
		return domain.HandlerResult{
			Status:  domain.StepStatusAwaitingUser,
			Payload: map[string]any{"status": "awaiting_user", "message": step.StringParam("message")},
		}
	case domain.ActionScreenshot:
		return e.handleScreenshot(ctx, tc, idx)
	case domain.ActionReadText:
		return e.handleReadText(ctx)
	case domain.ActionListFiles:
		return actions.ListFiles(step, tc.WorkDir)
	case domain.ActionReadFile:
		return actions.ReadFile(step, tc.WorkDir)
	case domain.ActionWriteFile:
		return actions.WriteFile(step, tc.WorkDir)
	case domain.ActionDeleteFile:
		return actions.DeleteFile(step, tc.WorkDir)
	case domain.ActionMoveFile:
		return actions.MoveFile(step, tc.WorkDir)
	case domain.ActionCopyFile:
		return actions.CopyFile(step, tc.WorkDir)
	case domain.ActionRenameFile:
		return actions.RenameFile(step, tc.WorkDir)
	case domain.ActionCreateFolder:
		return actions.CreateFolder(step, tc.WorkDir)
	case domain.ActionOpenFile:
		return e.handleOpenFile(ctx, tc, step)
	case domain.ActionOpenURL:
		return e.handleOpenURL(ctx, step)
	case domain.ActionBrowserClick:
		return e.handleBrowserClick(ctx, tc, idx, step)
	case domain.ActionBrowserInput:
		return e.handleBrowserInput(ctx, tc, idx, step)
	case domain.ActionBrowserExtractText:
		return e.handleBrowserExtract(ctx)
	case domain.ActionAdjustVolume:
		return e.handleAdjustVolume(ctx, step)
	}
	return errHR("no handler for action '%s'", step.Action)
}

func (e *Executor) handleOpenApp(ctx context.Context, step domain.ActionStep) domain.HandlerResult {
	if e.Desktop.Apps == nil {
		return errHR("launcher unavailable")
	}
	target := step.StringParam("target")
	if target == "" {
		target = step.StringParam("app")
	}
	if target == "" {
		target = step.StringParam("name")
	}
	if err := e.Desktop.Apps.Launch(ctx, target, step.StringListParam("args")); err != nil {
		return errHR("launch failed: %v", err)
	}
	return okHR("launch", map[string]any{"target": target})
}

func (e *Executor) handleActivateWindow(ctx context.Context, tc *TaskContext, step domain.ActionStep) domain.HandlerResult {
	if e.Desktop.Windows == nil {
		return errHR("window provider unavailable")
	}
	target := step.StringParam("target")
	if target == "" {
		target = step.StringParam("title")
	}
	wins, err := e.Desktop.Windows.Enumerate(ctx, target)
	if err != nil {
		return errHR("window enumeration failed: %v", err)
	}
	if len(wins) == 0 {
		return errHR("window not found '%s'", target)
	}
	w := wins[0]
	if w.Handle != 0 {
		if ok, diag := e.Desktop.Windows.ForceForeground(ctx, w.Handle); !ok {
			return errHR("activation failed: %s", diag)
		}
	}
	tc.ActiveWindow = &domain.FocusTarget{
		Handle:        w.Handle,
		PID:           w.PID,
		Title:         w.Title,
		Class:         w.Class,
		TitleKeywords: step.StringListParam("title_keywords"),
	}
	return okHR("force_foreground", map[string]any{"title": w.Title, "handle": w.Handle})
}

// handleWindowKeys drives close/minimize/maximize through the window-manager
// hotkeys after focusing the target window.
func (e *Executor) handleWindowKeys(ctx context.Context, tc *TaskContext, step domain.ActionStep, keys []string) domain.HandlerResult {
	if e.Desktop.Input == nil {
		return errHR("input unavailable")
	}
	if target := step.StringParam("target"); target != "" {
		if res := e.handleActivateWindow(ctx, tc, step); res.Status != domain.StepStatusSuccess {
			return res
		}
	}
	if err := e.Desktop.Input.KeyPress(ctx, keys); err != nil {
		return errHR("key press failed: %v", err)
	}
	return okHR("hotkey", map[string]any{"keys": keys})
}

// resolveTarget turns a step's targeting hint into an interaction target via
// the locator cascade, attaching any automation element found at the center.
func (e *Executor) resolveTarget(ctx context.Context, tc *TaskContext, idx int, step domain.ActionStep) (interact.Target, locator.Result, bool) {
	hint := step.TargetHint()
	res := tc.fusion.Resolve(ctx, hint, locator.Options{
		IconTemplates: step.StringListParam("icon_templates"),
		Policy:        locator.ControlOnly,
	})
	e.emit(tc, domain.EventTypeLocatorResult, res, withStep(idx))
	if res.Status != "success" {
		return interact.Target{}, res, false
	}
	t := interact.Target{Center: res.Center, Bounds: res.Bounds, HasCenter: true}
	if e.Desktop.Elements != nil {
		if el, ok := e.Desktop.Elements.FromPoint(ctx, res.Center); ok && el.ControlType() != driver.ControlWindow {
			t.RuntimeID = el.RuntimeID()
			t.Key = el.Key()
		}
	}
	return t, res, true
}

func (e *Executor) handleClick(ctx context.Context, tc *TaskContext, idx int, step domain.ActionStep, button string, clicks int) domain.HandlerResult {
	if step.HasCoordinates() {
		x, _ := step.NumberParam("x")
		y, _ := step.NumberParam("y")
		p := driver.Point{X: int(x), Y: int(y)}
		if ok, reason := interact.ValidateCenter(p, nil, e.Desktop.Screen); !ok {
			return errHR("%s", reason)
		}
		if e.Desktop.Input == nil {
			return errHR("input unavailable")
		}
		if err := e.Desktop.Input.Click(ctx, p, button, clicks); err != nil {
			return errHR("click failed: %v", err)
		}
		return okHR("synthetic_click", map[string]any{"x": p.X, "y": p.Y})
	}

	target, res, ok := e.resolveTarget(ctx, tc, idx, step)
	if !ok {
		return errHR("%s", res.Reason)
	}
	out, err := tc.actor.Click(ctx, target, button, clicks)
	if err != nil {
		return errHR("%s", err.Error())
	}
	return okHR(out.Method, map[string]any{
		"locator_method": res.Method,
		"x":              out.Center.X,
		"y":              out.Center.Y,
	})
}

func (e *Executor) handleMouseMove(ctx context.Context, step domain.ActionStep) domain.HandlerResult {
	if e.Desktop.Input == nil {
		return errHR("input unavailable")
	}
	x, _ := step.NumberParam("x")
	y, _ := step.NumberParam("y")
	p := driver.Point{X: int(x), Y: int(y)}
	if err := e.Desktop.Input.MouseMove(ctx, p); err != nil {
		return errHR("mouse move failed: %v", err)
	}
	return okHR("mouse_move", map[string]any{"x": p.X, "y": p.Y})
}

func (e *Executor) handleDrag(ctx context.Context, step domain.ActionStep) domain.HandlerResult {
	if e.Desktop.Input == nil {
		return errHR("input unavailable")
	}
	x, _ := step.NumberParam("x")
	y, _ := step.NumberParam("y")
	tx, _ := step.NumberParam("to_x")
	ty, _ := step.NumberParam("to_y")
	from := driver.Point{X: int(x), Y: int(y)}
	to := driver.Point{X: int(tx), Y: int(ty)}
	if err := e.Desktop.Input.Drag(ctx, from, to); err != nil {
		return errHR("drag failed: %v", err)
	}
	return okHR("drag", map[string]any{"to_x": to.X, "to_y": to.Y})
}

func (e *Executor) handleScroll(ctx context.Context, step domain.ActionStep) domain.HandlerResult {
	if e.Desktop.Input == nil {
		return errHR("input unavailable")
	}
	direction := step.StringParam("direction")
	amount, ok := step.NumberParam("amount")
	if !ok || amount == 0 {
		amount = 3
	}
	if direction == "" {
		direction = "down"
		if amount < 0 {
			direction = "up"
			amount = -amount
		}
	}
	if err := e.Desktop.Input.Scroll(ctx, direction, int(amount)); err != nil {
		return errHR("scroll failed: %v", err)
	}
	return okHR("scroll", map[string]any{"direction": direction, "amount": int(amount)})
}

func (e *Executor) handleTypeText(ctx context.Context, tc *TaskContext, idx int, step domain.ActionStep) domain.HandlerResult {
	text := step.StringParam("text")
	target := interact.Target{}
	if step.TargetHint() != "" {
		t, res, ok := e.resolveTarget(ctx, tc, idx, step)
		if !ok {
			return errHR("%s", res.Reason)
		}
		target = t
	}
	out, err := tc.actor.Type(ctx, target, text)
	if err != nil {
		return errHR("%s", err.Error())
	}
	if step.BoolParam("auto_enter", true) && e.Desktop.Input != nil {
		if err := e.Desktop.Input.KeyPress(ctx, []string{"enter"}); err != nil {
			return errHR("enter after typing failed: %v", err)
		}
	}
	return okHR(out.Method, map[string]any{"chars": len([]rune(text))})
}

func (e *Executor) handleKeyPress(ctx context.Context, step domain.ActionStep) domain.HandlerResult {
	if e.Desktop.Input == nil {
		return errHR("input unavailable")
	}
	keys := step.StringListParam("keys")
	if len(keys) == 0 {
		return errHR("'keys' is required")
	}
	if err := e.Desktop.Input.KeyPress(ctx, keys); err != nil {
		return errHR("key press failed: %v", err)
	}
	return okHR("key_press", map[string]any{"keys": keys})
}

func (e *Executor) handleWait(ctx context.Context, step domain.ActionStep) domain.HandlerResult {
	seconds, ok := step.NumberParam("seconds")
	if !ok {
		seconds = 1
	}
	if err := e.sleepCtx(ctx, time.Duration(seconds*float64(time.Second))); err != nil {
		return errHR("wait interrupted: %v", err)
	}
	return okHR("wait", map[string]any{"seconds": seconds})
}

func (e *Executor) handleWaitUntil(ctx context.Context, step domain.ActionStep) domain.HandlerResult {
	condition := step.StringParam("condition")
	target := step.StringParam("target")
	timeout, _ := step.NumberParam("timeout")
	interval, _ := step.NumberParam("poll_interval")
	stable, hasStable := step.NumberParam("stable_checks")
	if !hasStable || stable < 1 {
		stable = 1
	}

	deadline := time.Now().Add(time.Duration(timeout * float64(time.Second)))
	streak := 0
	start := time.Now()
	for {
		met, obs := e.checkCondition(ctx, condition, target)
		if met {
			streak++
			if streak >= int(stable) {
				obs["ok"] = true
				obs["condition"] = condition
				obs["waited_ms"] = time.Since(start).Milliseconds()
				return okHR("poll", obs)
			}
		} else {
			streak = 0
		}
		if time.Now().After(deadline) {
			return domain.HandlerResult{
				Status: domain.StepStatusError,
				Reason: "timeout",
				Payload: map[string]any{
					"ok": false, "condition": condition, "target": target,
					"waited_ms": time.Since(start).Milliseconds(),
				},
			}
		}
		if err := e.sleepCtx(ctx, time.Duration(interval*float64(time.Second))); err != nil {
			return errHR("wait interrupted: %v", err)
		}
	}
}

func (e *Executor) checkCondition(ctx context.Context, condition, target string) (bool, map[string]any) {
	obs := map[string]any{"target": target}
	switch condition {
	case "window_exists":
		if e.Desktop.Windows == nil {
			return false, obs
		}
		wins, err := e.Desktop.Windows.Enumerate(ctx, target)
		if err != nil || len(wins) == 0 {
			return false, obs
		}
		obs["title"] = wins[0].Title
		return true, obs
	case "process_exists":
		if e.Desktop.Processes == nil {
			return false, obs
		}
		names, err := e.Desktop.Processes.ProcessNames(ctx)
		if err != nil {
			return false, obs
		}
		want := strings.ToLower(strings.TrimSuffix(target, ".exe"))
		for _, n := range names {
			if strings.ToLower(strings.TrimSuffix(n, ".exe")) == want {
				obs["process"] = n
				return true, obs
			}
		}
		return false, obs
	case "foreground_matches", "title_contains":
		if e.Desktop.Windows == nil {
			return false, obs
		}
		fg, err := e.Desktop.Windows.Foreground(ctx)
		if err != nil {
			return false, obs
		}
		obs["title"] = fg.Title
		if containsFold(fg.Title, target) {
			return true, obs
		}
		if condition == "foreground_matches" && containsFold(fg.Class, target) {
			return true, obs
		}
		return false, obs
	}
	return false, obs
}

func (e *Executor) handleScreenshot(ctx context.Context, tc *TaskContext, idx int) domain.HandlerResult {
	if e.Desktop.Screen == nil {
		return errHR("screen unavailable")
	}
	img, err := e.Desktop.Screen.Capture(ctx)
	if err != nil {
		return errHR("capture failed: %v", err)
	}
	payload := map[string]any{"size": len(img)}
	if e.Artifacts != nil {
		ref, err := e.Artifacts.SaveArtifact(ctx, tc.RequestID, "screenshot", "image/png", img)
		if err != nil {
			return errHR("artifact save failed: %v", err)
		}
		payload["artifact_id"] = ref.ID
		e.emit(tc, domain.EventTypeArtifact, ref, withStep(idx), withArtifact(ref.ID))
	}
	return okHR("capture", payload)
}

func (e *Executor) handleReadText(ctx context.Context) domain.HandlerResult {
	text, boxes, err := e.observeText(ctx)
	if err != nil {
		return errHR("%v", err)
	}
	return okHR("ocr", map[string]any{"text": text, "box_count": boxes})
}

func (e *Executor) observeText(ctx context.Context) (string, int, error) {
	if e.Desktop.Screen == nil || e.Desktop.OCR == nil {
		return "", 0, fmt.Errorf("ocr unavailable")
	}
	img, err := e.Desktop.Screen.Capture(ctx)
	if err != nil {
		return "", 0, fmt.Errorf("capture failed: %w", err)
	}
	text, boxes, err := e.Desktop.OCR.Recognize(ctx, img)
	if err != nil {
		return "", 0, fmt.Errorf("ocr failed: %w", err)
	}
	return text, len(boxes), nil
}

func (e *Executor) handleOpenFile(ctx context.Context, tc *TaskContext, step domain.ActionStep) domain.HandlerResult {
	if e.Desktop.Apps == nil {
		return errHR("launcher unavailable")
	}
	path, err := guard.NormalizePath(step.StringParam("path"), tc.WorkDir)
	if err != nil {
		return errHR("failed to resolve 'path': %v", err)
	}
	if err := e.Desktop.Apps.Open(ctx, path); err != nil {
		return errHR("open failed: %v", err)
	}
	return okHR("open", map[string]any{"path": path})
}

func (e *Executor) handleOpenURL(ctx context.Context, step domain.ActionStep) domain.HandlerResult {
	if e.Desktop.Apps == nil {
		return errHR("launcher unavailable")
	}
	url := step.StringParam("url")
	if url == "" {
		return errHR("'url' is required")
	}
	if err := e.Desktop.Apps.Open(ctx, url); err != nil {
		return errHR("open failed: %v", err)
	}
	payload := map[string]any{"url": url}
	e.attachPageObservation(ctx, payload)
	return okHR("open", payload)
}

// attachPageObservation records what is currently on screen so the browser
// verifier has an observed title/text to match expectations against.
func (e *Executor) attachPageObservation(ctx context.Context, payload map[string]any) {
	if text, _, err := e.observeText(ctx); err == nil {
		payload["text"] = text
	}
	if e.Desktop.Windows != nil {
		if fg, err := e.Desktop.Windows.Foreground(ctx); err == nil {
			payload["title"] = fg.Title
		}
	}
}

func (e *Executor) handleBrowserClick(ctx context.Context, tc *TaskContext, idx int, step domain.ActionStep) domain.HandlerResult {
	target, res, ok := e.resolveTarget(ctx, tc, idx, step)
	if !ok {
		return errHR("%s", res.Reason)
	}
	out, err := tc.actor.Click(ctx, target, "left", 1)
	if err != nil {
		return errHR("%s", err.Error())
	}
	payload := map[string]any{"locator_method": res.Method}
	e.attachPageObservation(ctx, payload)
	return okHR(out.Method, payload)
}

func (e *Executor) handleBrowserInput(ctx context.Context, tc *TaskContext, idx int, step domain.ActionStep) domain.HandlerResult {
	value := step.StringParam("value")
	if value == "" {
		value = step.StringParam("text")
	}
	target := interact.Target{}
	if step.TargetHint() != "" {
		t, res, ok := e.resolveTarget(ctx, tc, idx, step)
		if !ok {
			return errHR("%s", res.Reason)
		}
		target = t
	}
	out, err := tc.actor.Type(ctx, target, value)
	if err != nil {
		return errHR("%s", err.Error())
	}
	payload := map[string]any{"value": value}
	e.attachPageObservation(ctx, payload)
	return okHR(out.Method, payload)
}

func (e *Executor) handleBrowserExtract(ctx context.Context) domain.HandlerResult {
	text, _, err := e.observeText(ctx)
	if err != nil {
		return errHR("%v", err)
	}
	return okHR("ocr", map[string]any{"text": text})
}

func (e *Executor) handleAdjustVolume(ctx context.Context, step domain.ActionStep) domain.HandlerResult {
	if e.Desktop.Input == nil {
		return errHR("input unavailable")
	}
	if step.BoolParam("mute", false) || step.StringParam("direction") == "mute" {
		if err := e.Desktop.Input.KeyPress(ctx, []string{"volume_mute"}); err != nil {
			return errHR("volume key failed: %v", err)
		}
		return okHR("media_keys", map[string]any{"muted": true})
	}

	key := ""
	presses := 0
	if dir := step.StringParam("direction"); dir == "up" || dir == "down" {
		key = "volume_" + dir
		amount, ok := step.NumberParam("amount")
		if !ok || amount <= 0 {
			amount = 5
		}
		presses = int(amount)
	} else if level, ok := step.NumberParam("level"); ok {
		// Media keys move the level in 2% notches; drive to zero, then up.
		for i := 0; i < 50; i++ {
			if err := e.Desktop.Input.KeyPress(ctx, []string{"volume_down"}); err != nil {
				return errHR("volume key failed: %v", err)
			}
		}
		key = "volume_up"
		presses = int(level / 2)
	} else {
		return errHR("'level' or 'direction' is required")
	}
	for i := 0; i < presses; i++ {
		if err := e.Desktop.Input.KeyPress(ctx, []string{key}); err != nil {
			return errHR("volume key failed: %v", err)
		}
	}
	return okHR("media_keys", map[string]any{"key": key, "presses": presses})
}

func (e *Executor) sleepCtx(ctx context.Context, d time.Duration) error {
	if e.Sleep != nil {
		e.Sleep(d)
		return ctx.Err()
	}
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

func containsFold(haystack, needle string) bool {
	return strings.Contains(strings.ToLower(haystack), strings.ToLower(needle))
}
