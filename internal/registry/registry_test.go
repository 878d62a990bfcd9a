package registry

import (
	"sync"
	"testing"

	"github.com/xiaot623/deskdriver/internal/domain"
)

func TestRegistryLifecycle(t *testing.T) {
	r := New()
	rec, err := r.Create(domain.TaskRecord{TaskID: "task_1", Status: domain.TaskStatusRunning})
	if err != nil {
		t.Fatal(err)
	}
	if rec.CreatedAt.IsZero() || rec.UpdatedAt.IsZero() {
		t.Fatal("timestamps not set")
	}

	if _, err := r.Create(domain.TaskRecord{TaskID: "task_1"}); err == nil {
		t.Fatal("duplicate create should fail")
	}

	updated, err := r.Update("task_1", func(rec *domain.TaskRecord) {
		rec.Status = domain.TaskStatusAwaitingUser
		rec.StepCursor = 3
	})
	if err != nil {
		t.Fatal(err)
	}
	if updated.Status != domain.TaskStatusAwaitingUser || updated.StepCursor != 3 {
		t.Fatalf("update lost: %+v", updated)
	}

	got, err := r.Get("task_1")
	if err != nil || got.StepCursor != 3 {
		t.Fatalf("get: %+v %v", got, err)
	}

	if err := r.Evict("task_1"); err != nil {
		t.Fatal(err)
	}
	if _, err := r.Get("task_1"); err != ErrNotFound {
		t.Fatalf("want ErrNotFound, got %v", err)
	}
}

func TestRegistryGetReturnsCopy(t *testing.T) {
	r := New()
	if _, err := r.Create(domain.TaskRecord{TaskID: "task_1", StepCursor: 1}); err != nil {
		t.Fatal(err)
	}
	got, _ := r.Get("task_1")
	got.StepCursor = 99
	again, _ := r.Get("task_1")
	if again.StepCursor != 1 {
		t.Fatal("Get must return a copy")
	}
}

func TestRegistryConcurrentAccess(t *testing.T) {
	r := New()
	if _, err := r.Create(domain.TaskRecord{TaskID: "task_1"}); err != nil {
		t.Fatal(err)
	}
	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, _ = r.Update("task_1", func(rec *domain.TaskRecord) { rec.StepCursor++ })
			_, _ = r.Get("task_1")
			_ = r.List()
		}()
	}
	wg.Wait()
	got, _ := r.Get("task_1")
	if got.StepCursor != 20 {
		t.Fatalf("cursor = %d, want 20", got.StepCursor)
	}
}
