package policy

import (
	"context"
	"fmt"
	"log"
	"os"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
)

// Loader keeps the engine's policy in sync with a YAML file. The file is
// re-read only when its modification time changes; on any read or parse
// failure the last known-good policy stays active.
type Loader struct {
	engine *Engine
	path   string

	mu      sync.Mutex
	modTime time.Time
}

// NewLoader attaches a policy file to an engine. An empty path leaves the
// engine on its current (default) policy.
func NewLoader(engine *Engine, path string) *Loader {
	return &Loader{engine: engine, path: path}
}

// Reload checks the file's modification time and, if it changed, parses and
// installs the new policy. Returns whether a new policy was installed.
func (l *Loader) Reload(ctx context.Context) (bool, error) {
	if l.path == "" {
		return false, nil
	}
	l.mu.Lock()
	defer l.mu.Unlock()

	info, err := os.Stat(l.path)
	if err != nil {
		return false, fmt.Errorf("stat policy file: %w", err)
	}
	if !info.ModTime().After(l.modTime) {
		return false, nil
	}
	content, err := os.ReadFile(l.path)
	if err != nil {
		return false, fmt.Errorf("read policy file: %w", err)
	}
	p, err := ParsePolicy(content)
	if err != nil {
		return false, fmt.Errorf("parse policy file: %w", err)
	}
	if err := l.engine.SetPolicy(ctx, p); err != nil {
		return false, err
	}
	l.modTime = info.ModTime()
	return true, nil
}

// Watch reloads on filesystem notifications until ctx is done. Reload errors
// are logged and the previous policy is kept.
func (l *Loader) Watch(ctx context.Context) error {
	if l.path == "" {
		return nil
	}
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("create policy watcher: %w", err)
	}
	if err := watcher.Add(l.path); err != nil {
		watcher.Close()
		return fmt.Errorf("watch policy file: %w", err)
	}
	go func() {
		defer watcher.Close()
		for {
			select {
			case <-ctx.Done():
				return
			case ev, ok := <-watcher.Events:
				if !ok {
					return
				}
				if ev.Op&(fsnotify.Write|fsnotify.Create) == 0 {
					continue
				}
				if changed, err := l.Reload(ctx); err != nil {
					log.Printf("policy reload failed, keeping last known-good: %v", err)
				} else if changed {
					log.Printf("safety policy reloaded from %s", l.path)
				}
			case err, ok := <-watcher.Errors:
				if !ok {
					return
				}
				log.Printf("policy watcher error: %v", err)
			}
		}
	}()
	return nil
}
