package interact

import (
	"context"
	"errors"
	"testing"

	"github.com/xiaot623/deskdriver/internal/driver"
)

func TestClickPrefersInvokePattern(t *testing.T) {
	el := &driver.FakeElement{ID: "e1", Type: driver.ControlButton, InvokeOK: true}
	input := &driver.FakeInput{}
	a := &Actor{
		Input:    input,
		Elements: &driver.FakeElements{ByID: map[string]*driver.FakeElement{"e1": el}},
		Screen:   &driver.FakeScreen{},
	}
	out, err := a.Click(context.Background(), Target{RuntimeID: "e1"}, "left", 1)
	if err != nil {
		t.Fatal(err)
	}
	if out.Method != "invoke_pattern" {
		t.Errorf("want invoke_pattern, got %s", out.Method)
	}
	if input.CallCount("click") != 0 {
		t.Error("pattern success must not synthesize a click")
	}
	if el.InvokeCalls != 1 {
		t.Errorf("invoke calls = %d", el.InvokeCalls)
	}
}

func TestClickRebindsByKeyWhenRuntimeIDStale(t *testing.T) {
	key := driver.LocatorKey{Name: "OK", ControlType: driver.ControlButton}
	el := &driver.FakeElement{LKey: key, Type: driver.ControlButton, InvokeOK: true}
	a := &Actor{
		Elements: &driver.FakeElements{ByKeys: map[driver.LocatorKey]*driver.FakeElement{key: el}},
		Screen:   &driver.FakeScreen{},
	}
	out, err := a.Click(context.Background(), Target{RuntimeID: "stale", Key: key}, "left", 1)
	if err != nil {
		t.Fatal(err)
	}
	if out.Method != "invoke_pattern" {
		t.Errorf("want invoke_pattern via key rebind, got %s", out.Method)
	}
}

func TestClickFallsBackToSyntheticWithFocus(t *testing.T) {
	el := &driver.FakeElement{
		ID: "e1", Type: driver.ControlButton,
		Rect: driver.Rect{Left: 10, Top: 10, Right: 110, Bottom: 40}, HasBounds: true,
		FocusOK: true,
	}
	input := &driver.FakeInput{}
	a := &Actor{
		Input:    input,
		Elements: &driver.FakeElements{ByID: map[string]*driver.FakeElement{"e1": el}},
		Screen:   &driver.FakeScreen{},
	}
	out, err := a.Click(context.Background(), Target{RuntimeID: "e1"}, "left", 1)
	if err != nil {
		t.Fatal(err)
	}
	if out.Method != "synthetic_click" {
		t.Errorf("want synthetic_click, got %s", out.Method)
	}
	if el.FocusCalls != 1 {
		t.Error("focus should be set before the synthetic click")
	}
	if input.CallCount("click") != 1 {
		t.Errorf("click count = %d", input.CallCount("click"))
	}
	if out.Center != (driver.Point{X: 60, Y: 25}) {
		t.Errorf("center %+v", out.Center)
	}
}

func TestClickRejectsOriginCenterWithoutBounds(t *testing.T) {
	a := &Actor{Input: &driver.FakeInput{}, Screen: &driver.FakeScreen{}}
	_, err := a.Click(context.Background(), Target{HasCenter: true}, "left", 1)
	var se *StrategyError
	if !errors.As(err, &se) || se.Reason != "suspicious_origin_center" {
		t.Fatalf("want suspicious_origin_center, got %v", err)
	}
}

func TestValidateCenter(t *testing.T) {
	screen := &driver.FakeScreen{Width: 800, Height: 600}
	bounds := &driver.Rect{Left: 10, Top: 10, Right: 50, Bottom: 50}
	if ok, _ := ValidateCenter(driver.Point{X: 30, Y: 30}, bounds, screen); !ok {
		t.Error("valid center rejected")
	}
	if ok, reason := ValidateCenter(driver.Point{X: 100, Y: 100}, bounds, screen); ok || reason != "center_outside_bounds" {
		t.Errorf("want center_outside_bounds, got %v %s", ok, reason)
	}
	if ok, reason := ValidateCenter(driver.Point{X: 900, Y: 30}, nil, screen); ok || reason != "center_outside_screen" {
		t.Errorf("want center_outside_screen, got %v %s", ok, reason)
	}
}

func TestTypePrefersSetValue(t *testing.T) {
	el := &driver.FakeElement{ID: "e1", Type: driver.ControlEdit, SetValueOK: true}
	a := &Actor{
		Input:    &driver.FakeInput{},
		Clip:     &driver.FakeClipboard{},
		Elements: &driver.FakeElements{ByID: map[string]*driver.FakeElement{"e1": el}},
	}
	out, err := a.Type(context.Background(), Target{RuntimeID: "e1"}, "hello")
	if err != nil {
		t.Fatal(err)
	}
	if out.Method != "set_value" || el.Value != "hello" {
		t.Errorf("want set_value with value stored, got %+v value=%q", out, el.Value)
	}
}

func TestTypeFallsBackToClipboardThenKeystrokes(t *testing.T) {
	el := &driver.FakeElement{ID: "e1", Type: driver.ControlEdit, FocusOK: true}
	clip := &driver.FakeClipboard{}
	input := &driver.FakeInput{}
	a := &Actor{
		Input:    input,
		Clip:     clip,
		Elements: &driver.FakeElements{ByID: map[string]*driver.FakeElement{"e1": el}},
	}
	out, err := a.Type(context.Background(), Target{RuntimeID: "e1"}, "hello")
	if err != nil {
		t.Fatal(err)
	}
	if out.Method != "clipboard_paste" {
		t.Fatalf("want clipboard_paste, got %s", out.Method)
	}
	if clip.Text != "hello" || input.CallCount("key_press") != 1 {
		t.Errorf("clipboard %q, key presses %d", clip.Text, input.CallCount("key_press"))
	}

	// Without a clipboard the cascade ends at synthetic keystrokes.
	a.Clip = nil
	out, err = a.Type(context.Background(), Target{RuntimeID: "e1"}, "again")
	if err != nil {
		t.Fatal(err)
	}
	if out.Method != "keystrokes" || input.CallCount("type_text") != 1 {
		t.Errorf("want keystrokes fallback, got %+v type_text=%d", out, input.CallCount("type_text"))
	}
}
