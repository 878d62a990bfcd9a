package locator

import (
	"context"
	"testing"

	"github.com/xiaot623/deskdriver/internal/driver"
)

func box(text string, left, top int, conf float64) driver.TextBox {
	return driver.TextBox{
		Text:       text,
		Bounds:     driver.Rect{Left: left, Top: top, Right: left + 60, Bottom: top + 20},
		Confidence: conf,
	}
}

func TestScoreTextPrefersExactOverFuzzy(t *testing.T) {
	exact, exactMethod := scoreText("Save", "save", 90)
	fuzzy, _ := scoreText("Save", "Saved files", 90)
	if exactMethod != "exact" {
		t.Fatalf("want exact method, got %s", exactMethod)
	}
	if exact <= fuzzy {
		t.Fatalf("exact %.3f should beat fuzzy %.3f", exact, fuzzy)
	}
}

func TestScoreTextSubstring(t *testing.T) {
	score, method := scoreText("Save", "Save As...", 80)
	if method != "substring" {
		t.Fatalf("want substring, got %s (%.2f)", method, score)
	}
}

func TestMatchTextRanksExactAboveTiedSubstring(t *testing.T) {
	// Both boxes can reach the score cap; the exact box must still come
	// first even when the substring box arrives earlier in reading order.
	cands := matchText("Save", []driver.TextBox{
		box("Sav", 10, 10, 95),
		box("Save", 100, 10, 95),
	})
	if len(cands) != 2 {
		t.Fatalf("candidates = %d, want 2", len(cands))
	}
	if cands[0].Box.Text != "Save" || cands[0].Method != "exact" {
		t.Fatalf("top candidate = %q (%s), want exact Save", cands[0].Box.Text, cands[0].Method)
	}
}

func TestResolveExactTextSkipsLaterStages(t *testing.T) {
	ocr := &driver.FakeOCR{Boxes: []driver.TextBox{
		box("File", 10, 10, 95),
		box("Save", 100, 10, 95),
		box("Settings", 200, 10, 95),
	}}
	icons := &driver.FakeIconMatcher{Matches: []driver.IconMatch{{
		Bounds: driver.Rect{Left: 0, Top: 0, Right: 20, Bottom: 20}, Score: 0.99,
	}}}
	vision := &driver.FakeVision{}
	f := &Fusion{OCR: ocr, Icons: icons, Vision: vision, Screen: &driver.FakeScreen{}}

	res := f.Resolve(context.Background(), "Save", Options{IconTemplates: []string{"save.png"}})
	if res.Status != "success" {
		t.Fatalf("resolve failed: %+v", res)
	}
	if res.Method != "exact" {
		t.Errorf("want exact method, got %s", res.Method)
	}
	if want := (driver.Point{X: 130, Y: 20}); res.Center != want {
		t.Errorf("center %+v, want %+v", res.Center, want)
	}
	if icons.Calls != 0 || vision.Calls != 0 {
		t.Errorf("later stages should not run: icons=%d vision=%d", icons.Calls, vision.Calls)
	}
}

func TestResolveFallsBackToIcon(t *testing.T) {
	ocr := &driver.FakeOCR{Boxes: []driver.TextBox{box("unrelated", 0, 0, 50)}}
	icons := &driver.FakeIconMatcher{Matches: []driver.IconMatch{{
		Bounds: driver.Rect{Left: 300, Top: 300, Right: 340, Bottom: 340}, Score: 0.87,
	}}}
	f := &Fusion{OCR: ocr, Icons: icons, Screen: &driver.FakeScreen{}}

	res := f.Resolve(context.Background(), "gear icon", Options{IconTemplates: []string{"gear.png"}})
	if res.Status != "success" || res.Method != "icon" {
		t.Fatalf("want icon fallback, got %+v", res)
	}
	if res.Center != (driver.Point{X: 320, Y: 320}) {
		t.Errorf("bad center %+v", res.Center)
	}
}

func TestResolveVisionLastAndRespectsDisable(t *testing.T) {
	vision := &driver.FakeVision{Proposals: []driver.BoxProposal{{
		Label:  "submit",
		Bounds: driver.Rect{Left: 10, Top: 10, Right: 50, Bottom: 30},
	}}}
	f := &Fusion{Vision: vision, Screen: &driver.FakeScreen{}}

	res := f.Resolve(context.Background(), "submit button", Options{})
	if res.Status != "success" || res.Method != "vision" {
		t.Fatalf("want vision match, got %+v", res)
	}

	f.VisionDisabled = true
	res = f.Resolve(context.Background(), "submit button", Options{})
	if res.Status != "not_found" {
		t.Fatalf("disabled vision should not resolve, got %+v", res)
	}
}

func TestResolveRejectsWindowMatchForControlOnly(t *testing.T) {
	windowEl := &driver.FakeElement{Type: driver.ControlWindow}
	f := &Fusion{
		OCR:      &driver.FakeOCR{Boxes: []driver.TextBox{box("Notepad", 0, 0, 99)}},
		Elements: &driver.FakeElements{AtPoint: windowEl},
		Screen:   &driver.FakeScreen{},
	}
	res := f.Resolve(context.Background(), "Notepad", Options{Policy: ControlOnly})
	if res.Status != "not_found" {
		t.Fatalf("window match must be rejected for element queries, got %+v", res)
	}
	found := false
	for _, s := range res.Stages {
		if s.Stage == "text" && s.Status == "window_match_rejected" {
			found = true
		}
	}
	if !found {
		t.Errorf("missing window_match_rejected stage: %+v", res.Stages)
	}

	// The same match is valid for window-activation queries.
	res = f.Resolve(context.Background(), "Notepad", Options{Policy: AllowWindow})
	if res.Status != "success" || res.Kind != "window" {
		t.Fatalf("window policy should accept, got %+v", res)
	}
}

func TestMergeBoxesDeduplicates(t *testing.T) {
	a := box("Save", 100, 10, 80)
	b := box("Save", 102, 12, 95) // overlapping duplicate, higher confidence
	c := box("Save", 400, 300, 70)
	merged := mergeBoxes([]driver.TextBox{a, b, c})
	if len(merged) != 2 {
		t.Fatalf("want 2 merged boxes, got %d", len(merged))
	}
	if merged[0].Confidence != 95 {
		t.Errorf("duplicate should keep higher confidence, got %v", merged[0].Confidence)
	}
}
