// Package policy implements the safety gate: a hot-reloadable policy resource
// evaluated through an embedded rego module.
package policy

import (
	"fmt"
	"os"
	"path"
	"strings"

	"gopkg.in/yaml.v3"
)

// SafetyPolicy is the data half of the safety gate, loaded from YAML. The
// decision logic lives in the embedded rego module.
type SafetyPolicy struct {
	DangerKeywords   []string `yaml:"danger_keywords" json:"danger_keywords"`
	BlockedProcesses []string `yaml:"blocked_processes" json:"blocked_processes"`
	BlockedPaths     []string `yaml:"blocked_paths" json:"blocked_paths"`
	ConfirmActions   []string `yaml:"confirm_actions" json:"confirm_actions"`
}

// ParsePolicy parses YAML policy content.
func ParsePolicy(content []byte) (SafetyPolicy, error) {
	var p SafetyPolicy
	if err := yaml.Unmarshal(content, &p); err != nil {
		return SafetyPolicy{}, err
	}
	return p, nil
}

// Load reads a policy file, falling back to the built-in default when the
// path is empty.
func Load(path string) (SafetyPolicy, error) {
	if path == "" {
		return ParsePolicy([]byte(DefaultPolicy))
	}
	content, err := os.ReadFile(path)
	if err != nil {
		return SafetyPolicy{}, fmt.Errorf("read policy file: %w", err)
	}
	return ParsePolicy(content)
}

// DefaultPolicy is the built-in policy used when no policy file is configured.
const DefaultPolicy = `
danger_keywords:
  - format the disk
  - rm -rf /
  - "del /f /s /q c:"
  - delete all files
  - wipe the drive
  - 格式化磁盘
  - 删除所有文件
blocked_processes:
  - diskpart
  - format
  - bcdedit
  - vssadmin
  - cipher
blocked_paths:
  - c:/windows/system32
  - c:/windows/syswow64
  - /etc
  - /boot
  - /usr/bin
confirm_actions:
  - delete_file
`

// normalized lowers every field and canonicalizes path separators so the rego
// module can match with plain string operations.
func (p SafetyPolicy) normalized() map[string]any {
	return map[string]any{
		"danger_keywords":   lowerAll(p.DangerKeywords),
		"blocked_processes": normalizeProcessNames(p.BlockedProcesses),
		"blocked_paths":     normalizePaths(p.BlockedPaths),
		"confirm_actions":   lowerAll(p.ConfirmActions),
	}
}

func lowerAll(in []string) []any {
	out := make([]any, 0, len(in))
	for _, s := range in {
		if t := strings.ToLower(strings.TrimSpace(s)); t != "" {
			out = append(out, t)
		}
	}
	return out
}

func normalizePaths(in []string) []any {
	out := make([]any, 0, len(in))
	for _, s := range in {
		if t := NormalizePathString(s); t != "" {
			out = append(out, t)
		}
	}
	return out
}

func normalizeProcessNames(in []string) []any {
	seen := map[string]bool{}
	var out []any
	for _, s := range in {
		for _, cand := range ProcessCandidates(s) {
			if !seen[cand] {
				seen[cand] = true
				out = append(out, cand)
			}
		}
	}
	return out
}

// NormalizePathString lowercases a path and folds separators to forward
// slashes for prefix comparison. No filesystem resolution happens here.
func NormalizePathString(s string) string {
	t := strings.ToLower(strings.TrimSpace(s))
	t = strings.ReplaceAll(t, `\`, "/")
	return strings.TrimRight(t, "/")
}

// ProcessCandidates expands a process reference (a name, a path, or a quoted
// command) into the normalized name variants used for blocked-process
// matching: bare name and name.exe.
func ProcessCandidates(ref string) []string {
	t := strings.ToLower(strings.Trim(strings.TrimSpace(ref), `"'`))
	if t == "" {
		return nil
	}
	t = strings.ReplaceAll(t, `\`, "/")
	base := path.Base(t)
	bare := strings.TrimSuffix(base, ".exe")
	if bare == "" {
		return nil
	}
	return []string{bare, bare + ".exe"}
}
