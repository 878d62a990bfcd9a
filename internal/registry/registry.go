// Package registry holds the in-memory task records: the only state shared
// across concurrently running tasks besides the evidence queue.
package registry

import (
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/xiaot623/deskdriver/internal/domain"
)

// ErrNotFound is returned for unknown task ids.
var ErrNotFound = fmt.Errorf("task not found")

// Registry is a mutex-guarded map from task id to TaskRecord. Records persist
// until explicitly evicted.
type Registry struct {
	mu    sync.RWMutex
	tasks map[string]*domain.TaskRecord
}

// New creates an empty registry.
func New() *Registry {
	return &Registry{tasks: map[string]*domain.TaskRecord{}}
}

// Create inserts a new record. The record's timestamps are set here.
func (r *Registry) Create(rec domain.TaskRecord) (domain.TaskRecord, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.tasks[rec.TaskID]; exists {
		return domain.TaskRecord{}, fmt.Errorf("task %s already exists", rec.TaskID)
	}
	now := time.Now()
	rec.CreatedAt = now
	rec.UpdatedAt = now
	stored := rec
	r.tasks[rec.TaskID] = &stored
	return stored, nil
}

// Get returns a copy of the record.
func (r *Registry) Get(taskID string) (domain.TaskRecord, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	rec, ok := r.tasks[taskID]
	if !ok {
		return domain.TaskRecord{}, ErrNotFound
	}
	return *rec, nil
}

// Update applies fn to the record under the lock.
func (r *Registry) Update(taskID string, fn func(*domain.TaskRecord)) (domain.TaskRecord, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	rec, ok := r.tasks[taskID]
	if !ok {
		return domain.TaskRecord{}, ErrNotFound
	}
	fn(rec)
	rec.UpdatedAt = time.Now()
	return *rec, nil
}

// List returns all records, most recently updated first.
func (r *Registry) List() []domain.TaskRecord {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]domain.TaskRecord, 0, len(r.tasks))
	for _, rec := range r.tasks {
		out = append(out, *rec)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].UpdatedAt.After(out[j].UpdatedAt) })
	return out
}

// Evict removes a record.
func (r *Registry) Evict(taskID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.tasks[taskID]; !ok {
		return ErrNotFound
	}
	delete(r.tasks, taskID)
	return nil
}
