package locator

import (
	"context"
	"fmt"

	"github.com/xiaot623/deskdriver/internal/driver"
)

// MatchPolicy restricts what kind of match a query may resolve to.
type MatchPolicy string

const (
	// ControlOnly rejects whole-window matches; element-level interactions
	// must land on an interactive element, never a window surface.
	ControlOnly MatchPolicy = "control_only"
	// AllowWindow permits window-kind matches (window-activation actions).
	AllowWindow MatchPolicy = "allow_window"
)

// StageOutcome records one cascade stage for diagnostics.
type StageOutcome struct {
	Stage  string `json:"stage"`
	Status string `json:"status"`
	Detail string `json:"detail,omitempty"`
}

// Result is the outcome of a locator resolution.
type Result struct {
	Status string         `json:"status"` // success | not_found | error
	Method string         `json:"method,omitempty"`
	Reason string         `json:"reason,omitempty"`
	Center driver.Point   `json:"center"`
	Bounds *driver.Rect   `json:"bounds,omitempty"`
	Score  float64        `json:"score,omitempty"`
	Kind   string         `json:"kind,omitempty"` // control | window
	Stages []StageOutcome `json:"stages,omitempty"`
}

// Options tunes one resolution.
type Options struct {
	IconTemplates []string
	Policy        MatchPolicy
	// Image and Boxes may carry a pre-captured screenshot and its OCR result
	// so one capture serves gates, locator, and evidence.
	Image []byte
	Boxes []driver.TextBox
}

// Fusion runs the locator cascade: fuzzy text match, then icon templates,
// then the vision model. First success wins; every stage records its outcome.
type Fusion struct {
	OCR            driver.OCR
	Icons          driver.IconMatcher
	Vision         driver.VisionLocator
	Screen         driver.Screen
	Elements       driver.ElementProvider
	VisionDisabled bool
}

// Resolve maps a target description to screen coordinates.
func (f *Fusion) Resolve(ctx context.Context, query string, opts Options) Result {
	if opts.Policy == "" {
		opts.Policy = ControlOnly
	}
	var stages []StageOutcome

	image := opts.Image
	if image == nil && f.Screen != nil {
		captured, err := f.Screen.Capture(ctx)
		if err != nil {
			return Result{Status: "error", Reason: fmt.Sprintf("screen capture failed: %v", err), Stages: stages}
		}
		image = captured
	}

	// Stage 1: fuzzy text match over detected text regions.
	boxes := opts.Boxes
	if boxes == nil && f.OCR != nil {
		_, detected, err := f.OCR.Recognize(ctx, image)
		if err != nil {
			stages = append(stages, StageOutcome{Stage: "text", Status: "error", Detail: err.Error()})
		} else {
			boxes = detected
		}
	}
	if boxes != nil {
		if res, outcome := f.resolveText(ctx, query, boxes, opts.Policy); res != nil {
			res.Stages = append(stages, outcome)
			return *res
		} else {
			stages = append(stages, outcome)
		}
	} else if f.OCR == nil && opts.Boxes == nil {
		stages = append(stages, StageOutcome{Stage: "text", Status: "unavailable"})
	}

	// Stage 2: icon template match.
	if len(opts.IconTemplates) > 0 && f.Icons != nil {
		matches, err := f.Icons.Match(ctx, image, opts.IconTemplates)
		if err != nil {
			stages = append(stages, StageOutcome{Stage: "icon", Status: "error", Detail: err.Error()})
		} else if best := bestIcon(matches); best != nil {
			stages = append(stages, StageOutcome{Stage: "icon", Status: "success"})
			bounds := best.Bounds
			return Result{
				Status: "success",
				Method: "icon",
				Center: bounds.Center(),
				Bounds: &bounds,
				Score:  best.Score,
				Kind:   "control",
				Stages: stages,
			}
		} else {
			stages = append(stages, StageOutcome{Stage: "icon", Status: "no_match"})
		}
	} else if len(opts.IconTemplates) > 0 {
		stages = append(stages, StageOutcome{Stage: "icon", Status: "unavailable"})
	}

	// Stage 3: vision-model bounding box.
	if f.Vision != nil && !f.VisionDisabled {
		proposals, err := f.Vision.Locate(ctx, image, query)
		if err != nil {
			stages = append(stages, StageOutcome{Stage: "vision", Status: "error", Detail: err.Error()})
		} else if len(proposals) > 0 && !proposals[0].Bounds.Empty() {
			stages = append(stages, StageOutcome{Stage: "vision", Status: "success"})
			bounds := proposals[0].Bounds
			return Result{
				Status: "success",
				Method: "vision",
				Center: bounds.Center(),
				Bounds: &bounds,
				Kind:   "control",
				Stages: stages,
			}
		} else {
			stages = append(stages, StageOutcome{Stage: "vision", Status: "no_match"})
		}
	} else if f.Vision != nil {
		stages = append(stages, StageOutcome{Stage: "vision", Status: "disabled"})
	}

	return Result{Status: "not_found", Reason: "locate_failed", Stages: stages}
}

// resolveText returns a successful result for a confident text match, or nil
// with the stage outcome when the stage does not resolve.
func (f *Fusion) resolveText(ctx context.Context, query string, boxes []driver.TextBox, policy MatchPolicy) (*Result, StageOutcome) {
	cands := matchText(query, boxes)
	if len(cands) == 0 {
		return nil, StageOutcome{Stage: "text", Status: "no_match"}
	}
	best := cands[0]
	confident := best.Score >= highConfidence ||
		(best.Score >= mediumConfidence && best.Method != "low")
	if !confident {
		return nil, StageOutcome{
			Stage:  "text",
			Status: "below_threshold",
			Detail: fmt.Sprintf("best %.2f (%s)", best.Score, best.Method),
		}
	}

	bounds := best.Box.Bounds
	kind := "control"
	if f.Elements != nil {
		if el, ok := f.Elements.FromPoint(ctx, bounds.Center()); ok && el.ControlType() == driver.ControlWindow {
			kind = "window"
		}
	}
	if kind == "window" && policy == ControlOnly {
		return nil, StageOutcome{Stage: "text", Status: "window_match_rejected", Detail: best.Box.Text}
	}
	return &Result{
		Status: "success",
		Method: best.Method,
		Center: bounds.Center(),
		Bounds: &bounds,
		Score:  best.Score,
		Kind:   kind,
	}, StageOutcome{Stage: "text", Status: "success", Detail: best.Method}
}

func bestIcon(matches []driver.IconMatch) *driver.IconMatch {
	var best *driver.IconMatch
	for i := range matches {
		m := &matches[i]
		if m.Bounds.Empty() {
			continue
		}
		if best == nil || m.Score > best.Score {
			best = m
		}
	}
	return best
}
