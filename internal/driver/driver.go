// Package driver declares the capability interfaces the engine drives the
// desktop environment through. Every backend is independently optional; the
// engine consumes these interfaces and never a concrete platform binding.
package driver

import (
	"context"

	"github.com/xiaot623/deskdriver/internal/domain"
)

// Rect is a screen-space bounding box in pixels.
type Rect struct {
	Left   int `json:"left"`
	Top    int `json:"top"`
	Right  int `json:"right"`
	Bottom int `json:"bottom"`
}

// Width returns the box width, zero for a degenerate box.
func (r Rect) Width() int { return r.Right - r.Left }

// Height returns the box height, zero for a degenerate box.
func (r Rect) Height() int { return r.Bottom - r.Top }

// Empty reports whether the box has no area.
func (r Rect) Empty() bool { return r.Width() <= 0 || r.Height() <= 0 }

// Center returns the midpoint of the box.
func (r Rect) Center() Point {
	return Point{X: (r.Left + r.Right) / 2, Y: (r.Top + r.Bottom) / 2}
}

// Contains reports whether the point lies inside the box.
func (r Rect) Contains(p Point) bool {
	return p.X >= r.Left && p.X < r.Right && p.Y >= r.Top && p.Y < r.Bottom
}

// Point is a screen coordinate.
type Point struct {
	X int `json:"x"`
	Y int `json:"y"`
}

// TextBox is one detected text region from the OCR backend.
type TextBox struct {
	Text       string  `json:"text"`
	Bounds     Rect    `json:"bounds"`
	Confidence float64 `json:"confidence"`
}

// OCR recognizes text regions in a screenshot.
type OCR interface {
	Recognize(ctx context.Context, image []byte) (fullText string, boxes []TextBox, err error)
}

// IconMatch is one scored template match.
type IconMatch struct {
	Bounds Rect    `json:"bounds"`
	Score  float64 `json:"score"`
}

// IconMatcher finds icon templates in a screenshot.
type IconMatcher interface {
	Match(ctx context.Context, image []byte, templates []string) ([]IconMatch, error)
}

// BoxProposal is a labeled bounding box proposed by the vision backend.
type BoxProposal struct {
	Label  string `json:"label"`
	Bounds Rect   `json:"bounds"`
}

// VisionLocator proposes bounding boxes for a free-form query.
type VisionLocator interface {
	Locate(ctx context.Context, image []byte, query string) ([]BoxProposal, error)
}

// WindowProvider observes and manipulates top-level windows.
type WindowProvider interface {
	Foreground(ctx context.Context) (domain.WindowSnapshot, error)
	// Enumerate lists top-level windows whose title or class contains the
	// filter (all windows when filter is empty).
	Enumerate(ctx context.Context, filter string) ([]domain.WindowSnapshot, error)
	// ForceForeground is best-effort and never guaranteed.
	ForceForeground(ctx context.Context, handle uintptr) (ok bool, diagnostics string)
}

// Launcher starts applications and opens files or URLs with the default
// handler. Discovery heuristics live behind this boundary.
type Launcher interface {
	Launch(ctx context.Context, target string, args []string) error
	Open(ctx context.Context, pathOrURL string) error
}

// ProcessLister observes running process names.
type ProcessLister interface {
	ProcessNames(ctx context.Context) ([]string, error)
}

// Screen captures the display.
type Screen interface {
	Capture(ctx context.Context) ([]byte, error)
	Size() (width, height int)
}

// Input synthesizes pointer and keyboard events.
type Input interface {
	Click(ctx context.Context, p Point, button string, clicks int) error
	MouseMove(ctx context.Context, p Point) error
	Drag(ctx context.Context, from, to Point) error
	Scroll(ctx context.Context, direction string, amount int) error
	TypeText(ctx context.Context, text string) error
	KeyPress(ctx context.Context, keys []string) error
}

// Clipboard reads and writes the system clipboard.
type Clipboard interface {
	SetText(ctx context.Context, text string) error
	GetText(ctx context.Context) (string, error)
}

// ControlType is the automation role of an element.
type ControlType string

const (
	ControlButton   ControlType = "button"
	ControlLink     ControlType = "link"
	ControlCheckbox ControlType = "checkbox"
	ControlRadio    ControlType = "radio"
	ControlListItem ControlType = "list_item"
	ControlTreeItem ControlType = "tree_item"
	ControlTabItem  ControlType = "tab_item"
	ControlEdit     ControlType = "edit"
	ControlWindow   ControlType = "window"
	ControlUnknown  ControlType = "unknown"
)

// LocatorKey is a structural element locator: enough to re-find an element
// when its runtime id has gone stale.
type LocatorKey struct {
	Name        string      `json:"name"`
	ControlType ControlType `json:"control_type"`
	ClassName   string      `json:"class_name,omitempty"`
}

// Element is a live automation element handle. Implementations return false
// from pattern calls when the underlying pattern is unavailable; they return
// an error only for a platform fault.
type Element interface {
	RuntimeID() string
	Key() LocatorKey
	ControlType() ControlType
	Bounds() (Rect, bool)
	TryInvoke(ctx context.Context) (bool, error)
	TryToggle(ctx context.Context) (bool, error)
	TrySelect(ctx context.Context) (bool, error)
	TrySetValue(ctx context.Context, value string) (bool, error)
	TryFocus(ctx context.Context) (bool, error)
}

// ElementProvider resolves automation elements. Rebinding goes runtime-id
// first, then the structural key; a live handle is never retained across a
// suspension point.
type ElementProvider interface {
	ByRuntimeID(ctx context.Context, id string) (Element, bool)
	ByKey(ctx context.Context, key LocatorKey) (Element, bool)
	FromPoint(ctx context.Context, p Point) (Element, bool)
}

// Desktop bundles the capabilities one run drives. Nil fields mean the
// capability is unavailable and its cascade stage is skipped.
type Desktop struct {
	OCR       OCR
	Icons     IconMatcher
	Vision    VisionLocator
	Windows   WindowProvider
	Screen    Screen
	Input     Input
	Clip      Clipboard
	Elements  ElementProvider
	Apps      Launcher
	Processes ProcessLister
}
