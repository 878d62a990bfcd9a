// Package interact executes resolved targets with the most structural
// technique available, falling back toward synthetic input and recording
// which technique ultimately succeeded.
package interact

import (
	"context"
	"fmt"

	"github.com/xiaot623/deskdriver/internal/driver"
)

// Target is a resolved interaction target. Element references are recovered
// runtime-id first, then by the structural key; a live handle is never kept
// across a suspension point.
type Target struct {
	RuntimeID string
	Key       driver.LocatorKey
	Center    driver.Point
	Bounds    *driver.Rect
	HasCenter bool
}

// Outcome reports which technique succeeded.
type Outcome struct {
	Method string       `json:"method"`
	Center driver.Point `json:"center,omitempty"`
}

// StrategyError carries a stable reason code for an exhausted or invalid
// strategy cascade.
type StrategyError struct {
	Reason string
}

func (e *StrategyError) Error() string { return e.Reason }

// Actor drives interactions through the available capabilities. Nil
// capabilities skip their strategies.
type Actor struct {
	Input    driver.Input
	Clip     driver.Clipboard
	Elements driver.ElementProvider
	Screen   driver.Screen
}

// rebind recovers a live element for the target, runtime id first.
func (a *Actor) rebind(ctx context.Context, t Target) (driver.Element, bool) {
	if a.Elements == nil {
		return nil, false
	}
	if t.RuntimeID != "" {
		if el, ok := a.Elements.ByRuntimeID(ctx, t.RuntimeID); ok {
			return el, true
		}
	}
	if t.Key.Name != "" || t.Key.ControlType != "" {
		if el, ok := a.Elements.ByKey(ctx, t.Key); ok {
			return el, true
		}
	}
	return nil, false
}

// ValidateCenter checks a computed click point against the element bounds and
// the screen extents. A degenerate (0,0) center with no bounds is always
// rejected rather than silently clicked.
func ValidateCenter(center driver.Point, bounds *driver.Rect, screen driver.Screen) (bool, string) {
	if center.X == 0 && center.Y == 0 && (bounds == nil || bounds.Empty()) {
		return false, "suspicious_origin_center"
	}
	if bounds != nil && !bounds.Empty() && !bounds.Contains(center) {
		return false, "center_outside_bounds"
	}
	if screen != nil {
		w, h := screen.Size()
		if center.X < 0 || center.Y < 0 || center.X >= w || center.Y >= h {
			return false, "center_outside_screen"
		}
	}
	return true, ""
}

// patternSequence returns the automation patterns to try for a control role.
func patternSequence(ct driver.ControlType) []string {
	switch ct {
	case driver.ControlButton, driver.ControlLink:
		return []string{"invoke"}
	case driver.ControlCheckbox, driver.ControlRadio:
		return []string{"toggle", "invoke"}
	case driver.ControlListItem, driver.ControlTreeItem, driver.ControlTabItem:
		return []string{"select", "invoke"}
	default:
		return []string{"invoke"}
	}
}

func tryPattern(ctx context.Context, el driver.Element, pattern string) (bool, error) {
	switch pattern {
	case "invoke":
		return el.TryInvoke(ctx)
	case "toggle":
		return el.TryToggle(ctx)
	case "select":
		return el.TrySelect(ctx)
	default:
		return false, nil
	}
}

// Click attempts, in order: the automation pattern matching the element's
// control role, then focus plus a synthetic click at a validated center.
func (a *Actor) Click(ctx context.Context, t Target, button string, clicks int) (Outcome, error) {
	if el, ok := a.rebind(ctx, t); ok {
		for _, pattern := range patternSequence(el.ControlType()) {
			ok, err := tryPattern(ctx, el, pattern)
			if err != nil {
				return Outcome{}, fmt.Errorf("%s pattern: %w", pattern, err)
			}
			if ok {
				return Outcome{Method: pattern + "_pattern"}, nil
			}
		}
		// Patterns exhausted; take the element's own geometry for the
		// synthetic fallback and set focus first.
		if b, has := el.Bounds(); has && t.Bounds == nil {
			t.Bounds = &b
			t.Center = b.Center()
			t.HasCenter = true
		}
		_, _ = el.TryFocus(ctx)
	}

	if !t.HasCenter {
		return Outcome{}, &StrategyError{Reason: "no_click_point"}
	}
	if ok, reason := ValidateCenter(t.Center, t.Bounds, a.Screen); !ok {
		return Outcome{}, &StrategyError{Reason: reason}
	}
	if a.Input == nil {
		return Outcome{}, &StrategyError{Reason: "input_unavailable"}
	}
	if button == "" {
		button = "left"
	}
	if clicks <= 0 {
		clicks = 1
	}
	if err := a.Input.Click(ctx, t.Center, button, clicks); err != nil {
		return Outcome{}, fmt.Errorf("synthetic click: %w", err)
	}
	return Outcome{Method: "synthetic_click", Center: t.Center}, nil
}

// Type attempts, in order: a direct value-set pattern, focus plus clipboard
// paste, focus plus synthetic keystrokes.
func (a *Actor) Type(ctx context.Context, t Target, text string) (Outcome, error) {
	el, bound := a.rebind(ctx, t)
	if bound {
		ok, err := el.TrySetValue(ctx, text)
		if err != nil {
			return Outcome{}, fmt.Errorf("set value pattern: %w", err)
		}
		if ok {
			return Outcome{Method: "set_value"}, nil
		}
		_, _ = el.TryFocus(ctx)
	}

	if a.Clip != nil && a.Input != nil {
		if err := a.Clip.SetText(ctx, text); err == nil {
			if err := a.Input.KeyPress(ctx, []string{"ctrl", "v"}); err == nil {
				return Outcome{Method: "clipboard_paste"}, nil
			}
		}
	}

	if a.Input == nil {
		return Outcome{}, &StrategyError{Reason: "input_unavailable"}
	}
	if err := a.Input.TypeText(ctx, text); err != nil {
		return Outcome{}, fmt.Errorf("synthetic keystrokes: %w", err)
	}
	return Outcome{Method: "keystrokes"}, nil
}
