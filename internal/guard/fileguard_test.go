package guard

import (
	"os"
	"path/filepath"
	"runtime"
	"testing"

	"github.com/xiaot623/deskdriver/internal/domain"
)

func writeStep(path string) domain.ActionStep {
	return domain.ActionStep{Action: domain.ActionWriteFile, Params: map[string]any{
		"path":    path,
		"content": "x",
	}}
}

func TestEvaluateFileAllowsInsideRoot(t *testing.T) {
	work := t.TempDir()
	cfg := Config{}.WithAllowRoot(work)
	d := EvaluateFile(writeStep(filepath.Join(work, "out.txt")), work, cfg)
	if !d.Allow {
		t.Fatalf("denied: %+v", d)
	}
}

func TestEvaluateFileDeniesOutsideRoots(t *testing.T) {
	work := t.TempDir()
	outside := t.TempDir()
	cfg := Config{}.WithAllowRoot(work)
	d := EvaluateFile(writeStep(filepath.Join(outside, "out.txt")), work, cfg)
	if d.Allow || d.Rule != "path_not_allowed" {
		t.Fatalf("want path_not_allowed, got %+v", d)
	}
}

func TestEvaluateFileRelativeJoinsWorkDir(t *testing.T) {
	work := t.TempDir()
	cfg := Config{}.WithAllowRoot(work)
	d := EvaluateFile(writeStep("notes/out.txt"), work, cfg)
	if !d.Allow {
		t.Fatalf("relative path inside work dir denied: %+v", d)
	}
}

func TestEvaluateFileWildcard(t *testing.T) {
	work := t.TempDir()
	cfg := Config{}.WithAllowRoot(work)
	d := EvaluateFile(writeStep(filepath.Join(work, "*.txt")), work, cfg)
	if d.Allow || d.Rule != "wildcard_blocked" {
		t.Fatalf("want wildcard_blocked, got %+v", d)
	}
}

func TestEvaluateFileTraversal(t *testing.T) {
	work := t.TempDir()
	cfg := Config{}.WithAllowRoot(work)
	// filepath.Join would collapse the "..", which is exactly what the raw
	// plan parameter does not do.
	d := EvaluateFile(writeStep(work+"/../escape.txt"), work, cfg)
	if d.Allow || d.Rule != "traversal_detected" {
		t.Fatalf("want traversal_detected, got %+v", d)
	}
}

func TestEvaluateFileForbiddenIgnoresRoots(t *testing.T) {
	work := t.TempDir()
	forbidden := t.TempDir()
	cfg := Config{
		ForbiddenRoots: []string{forbidden},
	}.WithAllowRoot(work).WithAllowRoot(forbidden)
	d := EvaluateFile(writeStep(filepath.Join(forbidden, "x.txt")), work, cfg)
	if d.Allow || d.Rule != "forbidden_path" {
		t.Fatalf("want forbidden_path even inside an allow-root, got %+v", d)
	}
}

func TestEvaluateFileReadOutsideRootsAllowed(t *testing.T) {
	work := t.TempDir()
	outside := t.TempDir()
	cfg := Config{}.WithAllowRoot(work)
	step := domain.ActionStep{Action: domain.ActionReadFile, Params: map[string]any{
		"path": filepath.Join(outside, "data.txt"),
	}}
	d := EvaluateFile(step, work, cfg)
	if !d.Allow {
		t.Fatalf("read outside roots should pass, got %+v", d)
	}
}

func TestEvaluateFileOverwriteBlocked(t *testing.T) {
	work := t.TempDir()
	cfg := Config{}.WithAllowRoot(work)
	target := filepath.Join(work, "exists.txt")
	if err := os.WriteFile(target, []byte("old"), 0o644); err != nil {
		t.Fatal(err)
	}
	d := EvaluateFile(writeStep(target), work, cfg)
	if d.Allow || d.Rule != "overwrite_blocked" {
		t.Fatalf("want overwrite_blocked, got %+v", d)
	}

	step := writeStep(target)
	step.Params["overwrite"] = true
	if d := EvaluateFile(step, work, cfg); !d.Allow {
		t.Fatalf("overwrite flag should allow, got %+v", d)
	}
}

func TestEvaluateFileSymlinkEscape(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("symlink creation needs privileges on windows")
	}
	work := t.TempDir()
	outside := t.TempDir()
	link := filepath.Join(work, "link")
	if err := os.Symlink(outside, link); err != nil {
		t.Fatal(err)
	}
	cfg := Config{}.WithAllowRoot(work)
	d := EvaluateFile(writeStep(filepath.Join(link, "out.txt")), work, cfg)
	if d.Allow || d.Rule != "symlink_escape" {
		t.Fatalf("want symlink_escape, got %+v", d)
	}
}

func TestEvaluateFileMoveChecksBothEnds(t *testing.T) {
	work := t.TempDir()
	outside := t.TempDir()
	cfg := Config{}.WithAllowRoot(work)
	step := domain.ActionStep{Action: domain.ActionMoveFile, Params: map[string]any{
		"source":          filepath.Join(work, "a.txt"),
		"destination_dir": outside,
	}}
	d := EvaluateFile(step, work, cfg)
	if d.Allow || d.Rule != "path_not_allowed" {
		t.Fatalf("want path_not_allowed for destination, got %+v", d)
	}
}

func TestEvaluateFileNonFileActionPasses(t *testing.T) {
	d := EvaluateFile(domain.ActionStep{Action: domain.ActionClick, Params: map[string]any{"x": 1.0, "y": 2.0}}, "", Config{})
	if !d.Allow {
		t.Fatalf("non-file action denied: %+v", d)
	}
}
