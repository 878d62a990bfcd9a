package guard

import (
	"path/filepath"
	"testing"

	"github.com/xiaot623/deskdriver/internal/domain"
)

func TestAssessRiskDeleteAlwaysHigh(t *testing.T) {
	work := t.TempDir()
	cfg := Config{}.WithAllowRoot(work)
	step := domain.ActionStep{Action: domain.ActionDeleteFile, Params: map[string]any{
		"path": filepath.Join(work, "x.txt"),
	}}
	r := AssessRisk(step, work, cfg, nil)
	if r.Level != domain.RiskHigh {
		t.Fatalf("delete inside roots should still be high, got %+v", r)
	}
}

func TestAssessRiskFileMutationByPath(t *testing.T) {
	work := t.TempDir()
	outside := t.TempDir()
	cfg := Config{}.WithAllowRoot(work)

	inside := domain.ActionStep{Action: domain.ActionWriteFile, Params: map[string]any{
		"path": filepath.Join(work, "x.txt"), "content": "x",
	}}
	if r := AssessRisk(inside, work, cfg, nil); r.Level != domain.RiskMedium {
		t.Errorf("write inside roots: want medium, got %+v", r)
	}

	out := domain.ActionStep{Action: domain.ActionWriteFile, Params: map[string]any{
		"path": filepath.Join(outside, "x.txt"), "content": "x",
	}}
	if r := AssessRisk(out, work, cfg, nil); r.Level != domain.RiskHigh {
		t.Errorf("write outside roots: want high, got %+v", r)
	}
}

func TestAssessRiskInputDependsOnFocus(t *testing.T) {
	step := domain.ActionStep{Action: domain.ActionTypeText, Params: map[string]any{"text": "hi"}}
	if r := AssessRisk(step, "", Config{}, nil); r.Level != domain.RiskHigh {
		t.Errorf("typing without focus target: want high, got %+v", r)
	}
	focus := &domain.FocusTarget{Title: "Notepad"}
	if r := AssessRisk(step, "", Config{}, focus); r.Level != domain.RiskMedium {
		t.Errorf("typing with focus target: want medium, got %+v", r)
	}
}

func TestAssessRiskAppLaunch(t *testing.T) {
	sensitive := domain.ActionStep{Action: domain.ActionOpenApp, Params: map[string]any{
		"target": `C:\Windows\System32\cmd.exe`,
	}}
	if r := AssessRisk(sensitive, "", Config{}, nil); r.Level != domain.RiskHigh {
		t.Errorf("shell launch: want high, got %+v", r)
	}
	plain := domain.ActionStep{Action: domain.ActionOpenApp, Params: map[string]any{"target": "notepad"}}
	if r := AssessRisk(plain, "", Config{}, nil); r.Level != domain.RiskMedium {
		t.Errorf("plain launch: want medium, got %+v", r)
	}
}

func TestAssessRiskDefaultLow(t *testing.T) {
	step := domain.ActionStep{Action: domain.ActionScreenshot}
	if r := AssessRisk(step, "", Config{}, nil); r.Level != domain.RiskLow {
		t.Errorf("want low, got %+v", r)
	}
}
