package executor

import (
	"path/filepath"
	"testing"

	"github.com/xiaot623/deskdriver/internal/domain"
)

func TestSavePatternRewrite(t *testing.T) {
	work := t.TempDir()
	p := plan(
		st(domain.ActionOpenApp, map[string]any{"target": "notepad"}),
		st(domain.ActionTypeText, map[string]any{"text": "meeting notes"}),
		st(domain.ActionHotkey, map[string]any{"keys": []any{"ctrl", "s"}}),
		st(domain.ActionTypeText, map[string]any{"text": "notes.txt"}),
	)

	rewrites := rewriteSavePattern(&p, work)
	if len(rewrites) != 1 {
		t.Fatalf("rewrites = %d", len(rewrites))
	}
	if rewrites[0].Replacement != "write_file" {
		t.Fatalf("replacement = %s", rewrites[0].Replacement)
	}
	if rewrites[0].Path != filepath.Join(work, "notes.txt") {
		t.Fatalf("path = %s", rewrites[0].Path)
	}

	// The editor launch is stripped and the trio becomes one write_file.
	if len(p.Steps) != 1 {
		t.Fatalf("steps = %d: %+v", len(p.Steps), p.Steps)
	}
	w := p.Steps[0]
	if w.Action != domain.ActionWriteFile {
		t.Fatalf("action = %s", w.Action)
	}
	if w.StringParam("content") != "meeting notes" {
		t.Fatalf("content = %q", w.StringParam("content"))
	}
	if !w.BoolParam("overwrite", false) {
		t.Fatal("rewrite must set the overwrite flag")
	}
}

func TestSavePatternIgnoresNonFilenames(t *testing.T) {
	work := t.TempDir()
	p := plan(
		st(domain.ActionTypeText, map[string]any{"text": "hello"}),
		st(domain.ActionHotkey, map[string]any{"keys": []any{"ctrl", "s"}}),
		st(domain.ActionTypeText, map[string]any{"text": "no extension here"}),
	)

	if rewrites := rewriteSavePattern(&p, work); rewrites != nil {
		t.Fatalf("unexpected rewrite: %+v", rewrites)
	}
	if len(p.Steps) != 3 {
		t.Fatalf("steps = %d", len(p.Steps))
	}
}

func TestSavePatternLeavesOtherHotkeysAlone(t *testing.T) {
	work := t.TempDir()
	p := plan(
		st(domain.ActionTypeText, map[string]any{"text": "hello"}),
		st(domain.ActionHotkey, map[string]any{"keys": []any{"ctrl", "c"}}),
		st(domain.ActionTypeText, map[string]any{"text": "copy.txt"}),
	)

	if rewrites := rewriteSavePattern(&p, work); rewrites != nil {
		t.Fatalf("unexpected rewrite: %+v", rewrites)
	}
}
