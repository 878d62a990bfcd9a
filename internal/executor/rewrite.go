package executor

import (
	"path/filepath"
	"strings"

	"github.com/xiaot623/deskdriver/internal/domain"
)

// rewriteSavePattern folds the UI "save via editor" sequence — type the
// content, open the save dialog with ctrl+s, type the filename — into a
// single direct write_file step, then strips the now-pointless editor
// launch/activation steps. Going through the file guard instead of a save
// dialog is both faster and gate-checkable.
func rewriteSavePattern(plan *domain.ActionPlan, workDir string) []domain.PlanRewrite {
	var rewrites []domain.PlanRewrite
	steps := plan.Steps

	for i := 0; i+2 < len(steps); i++ {
		if steps[i].Action != domain.ActionTypeText {
			continue
		}
		if !isCtrlS(steps[i+1]) {
			continue
		}
		if steps[i+2].Action != domain.ActionTypeText {
			continue
		}
		filename := strings.TrimSpace(steps[i+2].StringParam("text"))
		if filename == "" || !strings.Contains(filename, ".") || strings.ContainsAny(filename, `/\`) {
			continue
		}
		content := steps[i].StringParam("text")
		write := domain.ActionStep{
			Action: domain.ActionWriteFile,
			Params: map[string]any{
				"path":      filepath.Join(workDir, filename),
				"content":   content,
				"overwrite": true,
			},
		}
		out := append(append([]domain.ActionStep(nil), steps[:i]...), write)
		steps = append(out, steps[i+3:]...)
		rewrites = append(rewrites, domain.PlanRewrite{
			Pattern:     "type_text+ctrl_s+type_text",
			Replacement: "write_file",
			Path:        filepath.Join(workDir, filename),
		})
	}

	if len(rewrites) == 0 {
		return nil
	}

	// The editor the dialog belonged to no longer needs opening.
	kept := steps[:0]
	for _, s := range steps {
		if isEditorLaunch(s) {
			continue
		}
		kept = append(kept, s)
	}
	plan.Steps = kept
	return rewrites
}

func isCtrlS(s domain.ActionStep) bool {
	if s.Action != domain.ActionHotkey && s.Action != domain.ActionKeyPress {
		return false
	}
	keys := s.StringListParam("keys")
	if len(keys) != 2 {
		return false
	}
	return strings.EqualFold(keys[0], "ctrl") && strings.EqualFold(keys[1], "s")
}

func isEditorLaunch(s domain.ActionStep) bool {
	if s.Action != domain.ActionOpenApp && s.Action != domain.ActionActivateWindow {
		return false
	}
	target := strings.ToLower(s.StringParam("target") + s.StringParam("app") + s.StringParam("title"))
	return strings.Contains(target, "notepad") || strings.Contains(target, "记事本")
}
