// Package actions implements the filesystem action handlers. Every handler
// returns a structured result; the executor boundary never sees a panic from
// here, and path containment is the file guard's job before dispatch.
package actions

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"

	"github.com/xiaot623/deskdriver/internal/domain"
	"github.com/xiaot623/deskdriver/internal/guard"
)

func errResult(reason string) domain.HandlerResult {
	return domain.HandlerResult{Status: domain.StepStatusError, Reason: reason}
}

func okResult(payload map[string]any) domain.HandlerResult {
	return domain.HandlerResult{Status: domain.StepStatusSuccess, Payload: payload}
}

func resolve(step domain.ActionStep, key, workDir string) (string, domain.HandlerResult, bool) {
	raw := step.StringParam(key)
	if raw == "" {
		return "", errResult(fmt.Sprintf("'%s' is required", key)), false
	}
	p, err := guard.NormalizePath(raw, workDir)
	if err != nil {
		return "", errResult(fmt.Sprintf("failed to resolve '%s': %v", key, err)), false
	}
	return p, domain.HandlerResult{}, true
}

// ListFiles lists a directory with basic metadata.
func ListFiles(step domain.ActionStep, workDir string) domain.HandlerResult {
	path, res, ok := resolve(step, "path", workDir)
	if !ok {
		return res
	}
	info, err := os.Stat(path)
	if err != nil {
		return errResult(fmt.Sprintf("path does not exist '%s'", path))
	}
	if !info.IsDir() {
		return errResult(fmt.Sprintf("path is not a directory '%s'", path))
	}
	entries, err := os.ReadDir(path)
	if err != nil {
		return errResult(fmt.Sprintf("failed to list files: %v", err))
	}
	sort.Slice(entries, func(i, j int) bool { return entries[i].Name() < entries[j].Name() })
	listed := make([]map[string]any, 0, len(entries))
	for _, e := range entries {
		item := map[string]any{
			"name":   e.Name(),
			"path":   filepath.Join(path, e.Name()),
			"is_dir": e.IsDir(),
		}
		if !e.IsDir() {
			if fi, err := e.Info(); err == nil {
				item["size"] = fi.Size()
			}
		}
		listed = append(listed, item)
	}
	return okResult(map[string]any{"path": path, "entries": listed, "count": len(listed)})
}

// ReadFile returns a file's content as text.
func ReadFile(step domain.ActionStep, workDir string) domain.HandlerResult {
	path, res, ok := resolve(step, "path", workDir)
	if !ok {
		return res
	}
	info, err := os.Stat(path)
	if err != nil {
		return errResult(fmt.Sprintf("path does not exist '%s'", path))
	}
	if info.IsDir() {
		return errResult("reading directories is not supported")
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return errResult(fmt.Sprintf("failed to read file: %v", err))
	}
	return okResult(map[string]any{"path": path, "content": string(data), "size": info.Size()})
}

// WriteFile creates or overwrites a file with the given content. The parent
// directory must already exist.
func WriteFile(step domain.ActionStep, workDir string) domain.HandlerResult {
	path, res, ok := resolve(step, "path", workDir)
	if !ok {
		return res
	}
	content, isStr := step.Params["content"].(string)
	if !isStr {
		return errResult("'content' is required and must be a string")
	}
	parent := filepath.Dir(path)
	if info, err := os.Stat(parent); err != nil || !info.IsDir() {
		return errResult(fmt.Sprintf("parent directory does not exist '%s'", parent))
	}
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		return errResult(fmt.Sprintf("failed to write file: %v", err))
	}
	return okResult(map[string]any{"path": path, "bytes_written": len(content)})
}

// DeleteFile removes a single file; directories are not supported.
func DeleteFile(step domain.ActionStep, workDir string) domain.HandlerResult {
	path, res, ok := resolve(step, "path", workDir)
	if !ok {
		return res
	}
	info, err := os.Stat(path)
	if err != nil {
		return errResult(fmt.Sprintf("path does not exist '%s'", path))
	}
	if info.IsDir() {
		return errResult("deleting directories is not supported")
	}
	if err := os.Remove(path); err != nil {
		return errResult(fmt.Sprintf("failed to delete file: %v", err))
	}
	return okResult(map[string]any{"path": path, "deleted": true})
}

// RenameFile renames a file within its directory.
func RenameFile(step domain.ActionStep, workDir string) domain.HandlerResult {
	source, res, ok := resolve(step, "source", workDir)
	if !ok {
		return res
	}
	newName := step.StringParam("new_name")
	if newName == "" {
		return errResult("'new_name' is required")
	}
	if filepath.Base(newName) != newName {
		return errResult("'new_name' must not contain path separators")
	}
	info, err := os.Stat(source)
	if err != nil {
		return errResult(fmt.Sprintf("source does not exist '%s'", source))
	}
	if info.IsDir() {
		return errResult("renaming directories is not supported")
	}
	target := filepath.Join(filepath.Dir(source), newName)
	if _, err := os.Stat(target); err == nil {
		return errResult(fmt.Sprintf("target already exists '%s'", target))
	}
	if err := os.Rename(source, target); err != nil {
		return errResult(fmt.Sprintf("failed to rename file: %v", err))
	}
	return okResult(map[string]any{"source": source, "destination": target})
}

// MoveFile moves a file into an existing destination directory.
func MoveFile(step domain.ActionStep, workDir string) domain.HandlerResult {
	return transfer(step, workDir, false)
}

// CopyFile copies a file into an existing destination directory.
func CopyFile(step domain.ActionStep, workDir string) domain.HandlerResult {
	return transfer(step, workDir, true)
}

func transfer(step domain.ActionStep, workDir string, copy bool) domain.HandlerResult {
	verb := "move"
	if copy {
		verb = "copy"
	}
	source, res, ok := resolve(step, "source", workDir)
	if !ok {
		return res
	}
	destDir, res, ok := resolve(step, "destination_dir", workDir)
	if !ok {
		return res
	}
	info, err := os.Stat(source)
	if err != nil {
		return errResult(fmt.Sprintf("source does not exist '%s'", source))
	}
	if info.IsDir() {
		return errResult(fmt.Sprintf("%sing directories is not supported", verb))
	}
	if di, err := os.Stat(destDir); err != nil || !di.IsDir() {
		return errResult(fmt.Sprintf("destination_dir is not a directory '%s'", destDir))
	}
	target := filepath.Join(destDir, filepath.Base(source))
	if _, err := os.Stat(target); err == nil {
		return errResult(fmt.Sprintf("target already exists '%s'", target))
	}
	if copy {
		if err := copyFileContents(source, target); err != nil {
			return errResult(fmt.Sprintf("failed to copy file: %v", err))
		}
		return okResult(map[string]any{"source": source, "destination": target, "copied": true})
	}
	if err := os.Rename(source, target); err != nil {
		// Cross-device moves fall back to copy + remove.
		if err := copyFileContents(source, target); err != nil {
			return errResult(fmt.Sprintf("failed to move file: %v", err))
		}
		if err := os.Remove(source); err != nil {
			return errResult(fmt.Sprintf("failed to remove source after move: %v", err))
		}
	}
	return okResult(map[string]any{"source": source, "destination": target, "moved": true})
}

// CreateFolder creates a directory, including missing parents.
func CreateFolder(step domain.ActionStep, workDir string) domain.HandlerResult {
	path, res, ok := resolve(step, "path", workDir)
	if !ok {
		return res
	}
	if info, err := os.Stat(path); err == nil {
		if info.IsDir() {
			return okResult(map[string]any{"path": path, "created": false, "existed": true})
		}
		return errResult(fmt.Sprintf("path exists and is not a directory '%s'", path))
	}
	if err := os.MkdirAll(path, 0o755); err != nil {
		return errResult(fmt.Sprintf("failed to create folder: %v", err))
	}
	return okResult(map[string]any{"path": path, "created": true})
}

func copyFileContents(source, target string) error {
	in, err := os.Open(source)
	if err != nil {
		return err
	}
	defer in.Close()
	out, err := os.Create(target)
	if err != nil {
		return err
	}
	defer out.Close()
	if _, err := io.Copy(out, in); err != nil {
		return err
	}
	return out.Close()
}
