package driver

import (
	"context"

	"github.com/xiaot623/deskdriver/internal/domain"
)

// Stub returns a Desktop whose capabilities accept every call without
// touching a real desktop. It backs headless deployments where no platform
// binding is linked in; stub-mode runs skip handlers before reaching it.
func Stub() Desktop {
	return Desktop{
		OCR:       stubOCR{},
		Icons:     stubIcons{},
		Vision:    stubVision{},
		Windows:   stubWindows{},
		Screen:    stubScreen{},
		Input:     stubInput{},
		Clip:      &stubClipboard{},
		Apps:      stubLauncher{},
		Processes: stubProcesses{},
	}
}

type stubOCR struct{}

func (stubOCR) Recognize(context.Context, []byte) (string, []TextBox, error) {
	return "", nil, nil
}

type stubIcons struct{}

func (stubIcons) Match(context.Context, []byte, []string) ([]IconMatch, error) {
	return nil, nil
}

type stubVision struct{}

func (stubVision) Locate(context.Context, []byte, string) ([]BoxProposal, error) {
	return nil, nil
}

type stubWindows struct{}

func (stubWindows) Foreground(context.Context) (domain.WindowSnapshot, error) {
	return domain.WindowSnapshot{}, nil
}

func (stubWindows) Enumerate(context.Context, string) ([]domain.WindowSnapshot, error) {
	return nil, nil
}

func (stubWindows) ForceForeground(context.Context, uintptr) (bool, string) {
	return true, "stub"
}

type stubScreen struct{}

func (stubScreen) Capture(context.Context) ([]byte, error) { return nil, nil }
func (stubScreen) Size() (int, int)                        { return 1920, 1080 }

type stubInput struct{}

func (stubInput) Click(context.Context, Point, string, int) error { return nil }
func (stubInput) MouseMove(context.Context, Point) error          { return nil }
func (stubInput) Drag(context.Context, Point, Point) error        { return nil }
func (stubInput) Scroll(context.Context, string, int) error       { return nil }
func (stubInput) TypeText(context.Context, string) error          { return nil }
func (stubInput) KeyPress(context.Context, []string) error        { return nil }

type stubClipboard struct {
	text string
}

func (c *stubClipboard) SetText(_ context.Context, text string) error {
	c.text = text
	return nil
}

func (c *stubClipboard) GetText(context.Context) (string, error) { return c.text, nil }

type stubLauncher struct{}

func (stubLauncher) Launch(context.Context, string, []string) error { return nil }
func (stubLauncher) Open(context.Context, string) error             { return nil }

type stubProcesses struct{}

func (stubProcesses) ProcessNames(context.Context) ([]string, error) { return nil, nil }
