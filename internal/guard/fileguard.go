// Package guard implements the pre-flight gates that can deny a step before
// any side effect occurs: the file guard, the risk scorer, and the focus gate.
package guard

import (
	"os"
	"path/filepath"
	"runtime"
	"strings"

	"github.com/xiaot623/deskdriver/internal/domain"
)

// Config carries the file guard's root sets. AllowRoots grows dynamically to
// include each run's working directory.
type Config struct {
	AllowRoots     []string
	ForbiddenRoots []string // system directories, denied regardless of roots
	SensitiveRoots []string // user-sensitive directories, denied regardless of roots
}

// DefaultConfig returns the built-in root sets plus the given work dir as the
// first allow-root.
func DefaultConfig(workDir string) Config {
	cfg := Config{
		ForbiddenRoots: systemForbiddenRoots(),
		SensitiveRoots: userSensitiveRoots(),
	}
	if workDir != "" {
		cfg = cfg.WithAllowRoot(workDir)
	}
	if home, err := os.UserHomeDir(); err == nil {
		for _, sub := range []string{"Desktop", "Documents", "Downloads"} {
			cfg = cfg.WithAllowRoot(filepath.Join(home, sub))
		}
	}
	return cfg
}

// WithAllowRoot returns a config with one more allow-root, deduplicated.
func (c Config) WithAllowRoot(root string) Config {
	norm, err := normalizeExisting(root)
	if err != nil {
		norm = filepath.Clean(root)
	}
	for _, r := range c.AllowRoots {
		if r == norm {
			return c
		}
	}
	out := c
	out.AllowRoots = append(append([]string(nil), c.AllowRoots...), norm)
	return out
}

func systemForbiddenRoots() []string {
	if runtime.GOOS == "windows" {
		sys := os.Getenv("SystemRoot")
		if sys == "" {
			sys = `C:\Windows`
		}
		return []string{
			sys,
			`C:\Program Files`,
			`C:\Program Files (x86)`,
			`C:\ProgramData`,
		}
	}
	return []string{"/etc", "/usr", "/bin", "/sbin", "/boot", "/proc", "/sys", "/var"}
}

func userSensitiveRoots() []string {
	home, err := os.UserHomeDir()
	if err != nil {
		return nil
	}
	if runtime.GOOS == "windows" {
		return []string{filepath.Join(home, "AppData")}
	}
	return []string{
		filepath.Join(home, ".ssh"),
		filepath.Join(home, ".gnupg"),
		filepath.Join(home, ".config"),
	}
}

// hasWildcard reports whether the raw path carries glob characters; those are
// rejected outright rather than expanded.
func hasWildcard(raw string) bool {
	return strings.ContainsAny(raw, "*?[]")
}

// hasTraversal checks the raw, uncleaned path for parent-directory components.
func hasTraversal(raw string) bool {
	for _, part := range strings.FieldsFunc(raw, func(r rune) bool {
		return r == '/' || r == '\\'
	}) {
		if part == ".." {
			return true
		}
	}
	return false
}

// NormalizePath expands user-relative notation, joins relative paths onto the
// work dir, and resolves symlinks without requiring the leaf to exist (the
// nearest existing ancestor is resolved and the remainder re-joined).
func NormalizePath(raw, workDir string) (string, error) {
	p := strings.TrimSpace(raw)
	if p == "~" || strings.HasPrefix(p, "~/") || strings.HasPrefix(p, `~\`) {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", err
		}
		p = filepath.Join(home, strings.TrimPrefix(strings.TrimPrefix(p[1:], "/"), `\`))
	}
	if !filepath.IsAbs(p) {
		base := workDir
		if base == "" {
			cwd, err := os.Getwd()
			if err != nil {
				return "", err
			}
			base = cwd
		}
		p = filepath.Join(base, p)
	}
	return normalizeExisting(filepath.Clean(p))
}

// normalizeExisting resolves symlinks through the nearest existing ancestor.
func normalizeExisting(p string) (string, error) {
	p = filepath.Clean(p)
	missing := []string{}
	cur := p
	for {
		if _, err := os.Lstat(cur); err == nil {
			break
		}
		parent := filepath.Dir(cur)
		if parent == cur {
			break
		}
		missing = append([]string{filepath.Base(cur)}, missing...)
		cur = parent
	}
	resolved, err := filepath.EvalSymlinks(cur)
	if err != nil {
		resolved = cur
	}
	return filepath.Join(append([]string{resolved}, missing...)...), nil
}

// isUnderAny reports strict containment of path under any of the roots.
func isUnderAny(path string, roots []string) bool {
	for _, root := range roots {
		if root == "" {
			continue
		}
		if samePath(path, root) {
			return true
		}
		if strings.HasPrefix(foldPath(path), foldPath(root)+string(filepath.Separator)) {
			return true
		}
	}
	return false
}

func samePath(a, b string) bool { return foldPath(a) == foldPath(b) }

func foldPath(p string) string {
	if runtime.GOOS == "windows" {
		return strings.ToLower(filepath.Clean(p))
	}
	return filepath.Clean(p)
}

// EvaluateFile applies the file guard to one step and returns a deterministic
// decision. Non-filesystem steps are always allowed through this gate.
func EvaluateFile(step domain.ActionStep, workDir string, cfg Config) domain.GateDecision {
	if !step.Action.IsFileMutation() && !step.Action.IsFileRead() {
		return domain.GateDecision{Allow: true}
	}
	roots := cfg.AllowRoots
	if workDir != "" {
		roots = cfg.WithAllowRoot(workDir).AllowRoots
	}

	for _, raw := range step.PathParams() {
		if hasWildcard(raw) {
			return deny("wildcard_blocked", "wildcard characters are not allowed", raw, "", roots)
		}
		if hasTraversal(raw) {
			return deny("traversal_detected", "parent-directory traversal is not allowed", raw, "", roots)
		}
		norm, err := NormalizePath(raw, workDir)
		if err != nil {
			return deny("path_not_allowed", "path could not be normalized: "+err.Error(), raw, "", roots)
		}
		if isUnderAny(norm, cfg.ForbiddenRoots) || isUnderAny(norm, cfg.SensitiveRoots) {
			return deny("forbidden_path", "path is inside a forbidden directory", raw, norm, roots)
		}
		if step.Action.IsFileMutation() && !isUnderAny(norm, roots) {
			// A path that sits inside the roots before resolution but escapes
			// them after symlink resolution is a link pointed out of the
			// sandbox; everything else outside the roots is a plain denial.
			pre := filepath.Clean(joinIfRelative(raw, workDir))
			if isUnderAny(pre, roots) {
				return deny("symlink_escape", "symlink resolves outside the allowed roots", raw, norm, roots)
			}
			return deny("path_not_allowed", "path is outside the allowed roots", raw, norm, roots)
		}
	}

	if step.Action == domain.ActionWriteFile {
		raw := step.StringParam("path")
		norm, err := NormalizePath(raw, workDir)
		if err == nil {
			if info, statErr := os.Stat(norm); statErr == nil && !info.IsDir() && !step.BoolParam("overwrite", false) {
				return deny("overwrite_blocked", "target exists and 'overwrite' is not set", raw, norm, roots)
			}
		}
	}
	return domain.GateDecision{Allow: true, AllowedRoots: roots}
}

func joinIfRelative(raw, workDir string) string {
	if filepath.IsAbs(raw) || workDir == "" {
		return raw
	}
	return filepath.Join(workDir, raw)
}

func deny(rule, reason, original, normalized string, roots []string) domain.GateDecision {
	return domain.GateDecision{
		Allow:          false,
		Rule:           rule,
		Reason:         reason,
		OriginalPath:   original,
		NormalizedPath: normalized,
		AllowedRoots:   roots,
	}
}
