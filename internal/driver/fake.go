package driver

import (
	"context"
	"strings"
	"sync"

	"github.com/xiaot623/deskdriver/internal/domain"
)

// Fakes for the capability interfaces. They are used by tests throughout the
// engine and by stub mode; they record calls and return scripted responses.

// FakeOCR returns a fixed set of text boxes.
type FakeOCR struct {
	FullText string
	Boxes    []TextBox
	Err      error
	Calls    int
}

func (f *FakeOCR) Recognize(_ context.Context, _ []byte) (string, []TextBox, error) {
	f.Calls++
	return f.FullText, f.Boxes, f.Err
}

// FakeIconMatcher returns fixed matches.
type FakeIconMatcher struct {
	Matches []IconMatch
	Err     error
	Calls   int
}

func (f *FakeIconMatcher) Match(_ context.Context, _ []byte, _ []string) ([]IconMatch, error) {
	f.Calls++
	return f.Matches, f.Err
}

// FakeVision returns fixed proposals.
type FakeVision struct {
	Proposals []BoxProposal
	Err       error
	Calls     int
}

func (f *FakeVision) Locate(_ context.Context, _ []byte, _ string) ([]BoxProposal, error) {
	f.Calls++
	return f.Proposals, f.Err
}

// FakeWindows serves a scripted foreground window and window list.
type FakeWindows struct {
	mu         sync.Mutex
	Fg         domain.WindowSnapshot
	Windows    []domain.WindowSnapshot
	ForceOK    bool
	ForceCalls int
	ForcedTo   uintptr
	AfterForce *domain.WindowSnapshot // foreground after a successful force
}

func (f *FakeWindows) Foreground(_ context.Context) (domain.WindowSnapshot, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.Fg, nil
}

func (f *FakeWindows) Enumerate(_ context.Context, filter string) ([]domain.WindowSnapshot, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if filter == "" {
		return append([]domain.WindowSnapshot(nil), f.Windows...), nil
	}
	var out []domain.WindowSnapshot
	for _, w := range f.Windows {
		if containsFold(w.Title, filter) || containsFold(w.Class, filter) {
			out = append(out, w)
		}
	}
	return out, nil
}

func (f *FakeWindows) ForceForeground(_ context.Context, handle uintptr) (bool, string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.ForceCalls++
	f.ForcedTo = handle
	if f.ForceOK && f.AfterForce != nil {
		f.Fg = *f.AfterForce
	}
	if f.ForceOK {
		return true, ""
	}
	return false, "force_foreground_denied"
}

// FakeScreen serves one static screenshot.
type FakeScreen struct {
	Image  []byte
	Width  int
	Height int
}

func (f *FakeScreen) Capture(_ context.Context) ([]byte, error) { return f.Image, nil }

func (f *FakeScreen) Size() (int, int) {
	if f.Width == 0 {
		return 1920, 1080
	}
	return f.Width, f.Height
}

// InputCall records one synthesized input event.
type InputCall struct {
	Op     string
	Point  Point
	To     Point
	Button string
	Clicks int
	Text   string
	Keys   []string
	Dir    string
	Amount int
}

// FakeInput records every synthesized event.
type FakeInput struct {
	mu    sync.Mutex
	Calls []InputCall
	Err   error
}

func (f *FakeInput) record(c InputCall) error {
	f.mu.Lock()
	f.Calls = append(f.Calls, c)
	f.mu.Unlock()
	return f.Err
}

func (f *FakeInput) Click(_ context.Context, p Point, button string, clicks int) error {
	return f.record(InputCall{Op: "click", Point: p, Button: button, Clicks: clicks})
}

func (f *FakeInput) MouseMove(_ context.Context, p Point) error {
	return f.record(InputCall{Op: "mouse_move", Point: p})
}

func (f *FakeInput) Drag(_ context.Context, from, to Point) error {
	return f.record(InputCall{Op: "drag", Point: from, To: to})
}

func (f *FakeInput) Scroll(_ context.Context, direction string, amount int) error {
	return f.record(InputCall{Op: "scroll", Dir: direction, Amount: amount})
}

func (f *FakeInput) TypeText(_ context.Context, text string) error {
	return f.record(InputCall{Op: "type_text", Text: text})
}

func (f *FakeInput) KeyPress(_ context.Context, keys []string) error {
	return f.record(InputCall{Op: "key_press", Keys: keys})
}

// CallCount returns the number of recorded events for an op ("" counts all).
func (f *FakeInput) CallCount(op string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	if op == "" {
		return len(f.Calls)
	}
	n := 0
	for _, c := range f.Calls {
		if c.Op == op {
			n++
		}
	}
	return n
}

// FakeClipboard is an in-memory clipboard.
type FakeClipboard struct {
	mu   sync.Mutex
	Text string
	Sets int
}

func (f *FakeClipboard) SetText(_ context.Context, text string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.Text = text
	f.Sets++
	return nil
}

func (f *FakeClipboard) GetText(_ context.Context) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.Text, nil
}

// FakeElement is a scriptable automation element.
type FakeElement struct {
	ID          string
	LKey        LocatorKey
	Type        ControlType
	Rect        Rect
	HasBounds   bool
	InvokeOK    bool
	ToggleOK    bool
	SelectOK    bool
	SetValueOK  bool
	FocusOK     bool
	Value       string
	InvokeCalls int
	FocusCalls  int
}

func (f *FakeElement) RuntimeID() string        { return f.ID }
func (f *FakeElement) Key() LocatorKey          { return f.LKey }
func (f *FakeElement) ControlType() ControlType { return f.Type }

func (f *FakeElement) Bounds() (Rect, bool) { return f.Rect, f.HasBounds }

func (f *FakeElement) TryInvoke(_ context.Context) (bool, error) {
	f.InvokeCalls++
	return f.InvokeOK, nil
}

func (f *FakeElement) TryToggle(_ context.Context) (bool, error) { return f.ToggleOK, nil }
func (f *FakeElement) TrySelect(_ context.Context) (bool, error) { return f.SelectOK, nil }

func (f *FakeElement) TrySetValue(_ context.Context, value string) (bool, error) {
	if f.SetValueOK {
		f.Value = value
	}
	return f.SetValueOK, nil
}

func (f *FakeElement) TryFocus(_ context.Context) (bool, error) {
	f.FocusCalls++
	return f.FocusOK, nil
}

// FakeElements resolves elements by runtime id, key, or point.
type FakeElements struct {
	ByID    map[string]*FakeElement
	ByKeys  map[LocatorKey]*FakeElement
	AtPoint *FakeElement
}

func (f *FakeElements) ByRuntimeID(_ context.Context, id string) (Element, bool) {
	el, ok := f.ByID[id]
	if !ok {
		return nil, false
	}
	return el, true
}

func (f *FakeElements) ByKey(_ context.Context, key LocatorKey) (Element, bool) {
	el, ok := f.ByKeys[key]
	if !ok {
		return nil, false
	}
	return el, true
}

func (f *FakeElements) FromPoint(_ context.Context, _ Point) (Element, bool) {
	if f.AtPoint == nil {
		return nil, false
	}
	return f.AtPoint, true
}

// LaunchCall records one app-launch or open request.
type LaunchCall struct {
	Op     string
	Target string
	Args   []string
}

// FakeLauncher records launch and open requests.
type FakeLauncher struct {
	mu    sync.Mutex
	Calls []LaunchCall
	Err   error
}

func (f *FakeLauncher) Launch(_ context.Context, target string, args []string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.Calls = append(f.Calls, LaunchCall{Op: "launch", Target: target, Args: args})
	return f.Err
}

func (f *FakeLauncher) Open(_ context.Context, pathOrURL string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.Calls = append(f.Calls, LaunchCall{Op: "open", Target: pathOrURL})
	return f.Err
}

// CallCount returns the number of recorded requests for an op ("" counts all).
func (f *FakeLauncher) CallCount(op string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	if op == "" {
		return len(f.Calls)
	}
	n := 0
	for _, c := range f.Calls {
		if c.Op == op {
			n++
		}
	}
	return n
}

// FakeProcesses serves a scripted process name list.
type FakeProcesses struct {
	Names []string
	Err   error
}

func (f *FakeProcesses) ProcessNames(_ context.Context) ([]string, error) {
	return f.Names, f.Err
}

func containsFold(haystack, needle string) bool {
	return strings.Contains(strings.ToLower(haystack), strings.ToLower(needle))
}
