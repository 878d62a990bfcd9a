package service

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"

	"github.com/google/uuid"
	"github.com/xiaot623/deskdriver/internal/domain"
	"github.com/xiaot623/deskdriver/internal/executor"
	"github.com/xiaot623/deskdriver/internal/registry"
)

// ErrNotFound is returned when the task id is unknown.
var ErrNotFound = registry.ErrNotFound

// ErrNotAwaiting is returned when resume is called on a task that is not
// suspended at a take_over step.
var ErrNotAwaiting = errors.New("task is not awaiting user input")

// PlanInvalidError rejects a submission whose plan failed validation. No task
// record is created in that case.
type PlanInvalidError struct {
	Violations []domain.ValidationError
}

func (e *PlanInvalidError) Error() string {
	msgs := make([]string, 0, len(e.Violations))
	for _, v := range e.Violations {
		msgs = append(msgs, v.Error())
	}
	return "invalid plan: " + strings.Join(msgs, "; ")
}

// SubmitRequest is the POST /v1/tasks body. Retry and replan budgets are
// pointers so an absent field falls back to the configured defaults.
type SubmitRequest struct {
	Instruction string            `json:"instruction,omitempty"`
	Plan        domain.ActionPlan `json:"plan"`
	DryRun      bool              `json:"dry_run,omitempty"`
	Consent     bool              `json:"consent,omitempty"`
	MaxRetries  *int              `json:"max_retries,omitempty"`
	MaxReplans  *int              `json:"max_replans,omitempty"`
	WorkDir     string            `json:"work_dir,omitempty"`
	StubMode    bool              `json:"stub_mode,omitempty"`
	VerifyMode  string            `json:"verify_mode,omitempty"`
}

// ResumeRequest is the POST /v1/tasks/:task_id/resume body.
type ResumeRequest struct {
	Consent bool `json:"consent,omitempty"`
}

// SubmitTask validates the plan, creates a task record, and starts the run
// in the background. The returned record reflects the task before any step
// has executed.
func (s *Service) SubmitTask(ctx context.Context, req SubmitRequest) (domain.TaskRecord, error) {
	if len(req.Plan.Steps) == 0 {
		return domain.TaskRecord{}, &PlanInvalidError{Violations: []domain.ValidationError{
			{StepIndex: -1, Field: "steps", Reason: "plan has no steps"},
		}}
	}
	if violations := domain.ValidatePlan(&req.Plan); len(violations) > 0 {
		return domain.TaskRecord{}, &PlanInvalidError{Violations: violations}
	}

	taskID := "task_" + uuid.New().String()[:8]
	requestID := "req_" + uuid.New().String()[:8]
	rec, err := s.registry.Create(domain.TaskRecord{
		TaskID:      taskID,
		RequestID:   requestID,
		Status:      domain.TaskStatusRunning,
		Instruction: req.Instruction,
		Plan:        req.Plan,
	})
	if err != nil {
		return domain.TaskRecord{}, fmt.Errorf("create task record: %w", err)
	}

	tc := executor.NewTaskContext(taskID, requestID, req.Instruction, req.Plan, s.buildOptions(req), s.config.WorkDir)
	tc.VisionDisabled = s.config.DisableVision
	s.launch(tc)
	return rec, nil
}

// GetTask returns the current record for a task.
func (s *Service) GetTask(ctx context.Context, taskID string) (domain.TaskRecord, error) {
	return s.registry.Get(taskID)
}

// ListTasks returns all known task records, most recently updated first.
func (s *Service) ListTasks(ctx context.Context) []domain.TaskRecord {
	return s.registry.List()
}

// ResumeTask restarts an awaiting_user task from its snapshotted cursor. The
// caller's consent flag is merged with the consent captured at suspension.
func (s *Service) ResumeTask(ctx context.Context, taskID string, req ResumeRequest) (domain.TaskRecord, error) {
	rec, err := s.registry.Get(taskID)
	if err != nil {
		return domain.TaskRecord{}, err
	}
	if rec.Status != domain.TaskStatusAwaitingUser {
		return domain.TaskRecord{}, fmt.Errorf("%w: status is %s", ErrNotAwaiting, rec.Status)
	}

	rec, err = s.registry.Update(taskID, func(r *domain.TaskRecord) {
		r.Status = domain.TaskStatusRunning
	})
	if err != nil {
		return domain.TaskRecord{}, err
	}

	tc := executor.ResumeContext(rec, domain.RunOptions{
		Consent:    req.Consent,
		MaxRetries: s.config.MaxStepRetries,
		MaxReplans: s.config.MaxReplans,
	})
	tc.VisionDisabled = s.config.DisableVision
	s.launch(tc)
	return rec, nil
}

func (s *Service) buildOptions(req SubmitRequest) domain.RunOptions {
	opts := domain.RunOptions{
		DryRun:     req.DryRun,
		Consent:    req.Consent,
		MaxRetries: s.config.MaxStepRetries,
		MaxReplans: s.config.MaxReplans,
		WorkDir:    req.WorkDir,
		StubMode:   req.StubMode,
		VerifyMode: req.VerifyMode,
	}
	if req.MaxRetries != nil {
		opts.MaxRetries = *req.MaxRetries
	}
	if req.MaxReplans != nil {
		opts.MaxReplans = *req.MaxReplans
	}
	return opts
}

// launch runs the task in the background. The executor owns all registry
// updates from here on; the goroutine only logs the outcome.
func (s *Service) launch(tc *executor.TaskContext) {
	s.running.Add(1)
	go func() {
		defer s.running.Done()
		res := s.exec.Run(context.Background(), tc)
		log.Printf("task %s finished: %s (%s)", tc.TaskID, res.OverallStatus, res.FinalStatus)
	}()
}
