package guard

import (
	"path"
	"strings"

	"github.com/xiaot623/deskdriver/internal/domain"
)

// sensitiveExecutables are app-launch targets that grant broad control when
// opened (shells, system configuration editors).
var sensitiveExecutables = map[string]bool{
	"cmd":        true,
	"powershell": true,
	"pwsh":       true,
	"regedit":    true,
	"taskmgr":    true,
	"mshta":      true,
	"wscript":    true,
	"cscript":    true,
	"bash":       true,
	"sh":         true,
	"zsh":        true,
	"terminal":   true,
}

// AssessRisk classifies a step's blast radius. It is a pure function of the
// step, the work dir's guard config, and the last established focus target.
func AssessRisk(step domain.ActionStep, workDir string, cfg Config, focus *domain.FocusTarget) domain.RiskAssessment {
	switch {
	case step.Action == domain.ActionDeleteFile:
		return domain.RiskAssessment{
			Level:  domain.RiskHigh,
			Reason: "file deletion is irreversible",
			Tags:   []string{"file_mutation", "delete"},
		}
	case step.Action.IsFileMutation():
		roots := cfg.AllowRoots
		if workDir != "" {
			roots = cfg.WithAllowRoot(workDir).AllowRoots
		}
		inside := true
		for _, raw := range step.PathParams() {
			norm, err := NormalizePath(raw, workDir)
			if err != nil || !isUnderAny(norm, roots) {
				inside = false
				break
			}
		}
		if inside {
			return domain.RiskAssessment{
				Level:  domain.RiskMedium,
				Reason: "file mutation inside allowed roots",
				Tags:   []string{"file_mutation"},
			}
		}
		return domain.RiskAssessment{
			Level:  domain.RiskHigh,
			Reason: "file mutation outside allowed roots",
			Tags:   []string{"file_mutation", "outside_roots"},
		}
	case step.Action.AffectsInput():
		if focus == nil {
			return domain.RiskAssessment{
				Level:  domain.RiskHigh,
				Reason: "input action with no established focus target",
				Tags:   []string{"input", "no_focus_target"},
			}
		}
		return domain.RiskAssessment{
			Level:  domain.RiskMedium,
			Reason: "input action with an established focus target",
			Tags:   []string{"input"},
		}
	case step.Action == domain.ActionOpenApp || step.Action == domain.ActionOpenFile:
		for _, key := range []string{"target", "path", "name", "app"} {
			v := step.StringParam(key)
			if v == "" {
				continue
			}
			for _, cand := range processBareNames(v) {
				if sensitiveExecutables[cand] {
					return domain.RiskAssessment{
						Level:  domain.RiskHigh,
						Reason: "launch of a sensitive executable: " + cand,
						Tags:   []string{"app_launch", "sensitive_app"},
					}
				}
			}
		}
		return domain.RiskAssessment{
			Level:  domain.RiskMedium,
			Reason: "application launch",
			Tags:   []string{"app_launch"},
		}
	}
	return domain.RiskAssessment{Level: domain.RiskLow}
}

// processBareNames reduces a launch target (name, path, or quoted command) to
// its lowercase executable name without extension.
func processBareNames(ref string) []string {
	t := strings.ToLower(strings.Trim(strings.TrimSpace(ref), `"'`))
	if t == "" {
		return nil
	}
	t = strings.ReplaceAll(t, `\`, "/")
	base := strings.TrimSuffix(path.Base(t), ".exe")
	if base == "" {
		return nil
	}
	return []string{base}
}
