package service

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"github.com/xiaot623/deskdriver/config"
	"github.com/xiaot623/deskdriver/internal/domain"
	"github.com/xiaot623/deskdriver/internal/driver"
	"github.com/xiaot623/deskdriver/internal/executor"
	"github.com/xiaot623/deskdriver/internal/policy"
	"github.com/xiaot623/deskdriver/internal/registry"
)

func newService(t *testing.T) *Service {
	t.Helper()
	pol, err := policy.ParsePolicy([]byte(policy.DefaultPolicy))
	require.NoError(t, err)
	eng, err := policy.NewEngine(context.Background(), pol)
	require.NoError(t, err)

	reg := registry.New()
	exec := &executor.Executor{
		Policy: eng,
		Desktop: driver.Desktop{
			OCR:       &driver.FakeOCR{},
			Icons:     &driver.FakeIconMatcher{},
			Vision:    &driver.FakeVision{},
			Windows:   &driver.FakeWindows{},
			Screen:    &driver.FakeScreen{Image: []byte("frame")},
			Input:     &driver.FakeInput{},
			Clip:      &driver.FakeClipboard{},
			Apps:      &driver.FakeLauncher{},
			Processes: &driver.FakeProcesses{},
		},
		Registry: reg,
		Sleep:    func(time.Duration) {},
		MaxSteps: 25,
	}
	cfg := &config.Config{
		WorkDir:        t.TempDir(),
		MaxSteps:       25,
		MaxStepRetries: 1,
		MaxReplans:     1,
	}
	return New(cfg, reg, nil, exec)
}

func TestSubmitRunsToCompletion(t *testing.T) {
	s := newService(t)

	rec, err := s.SubmitTask(context.Background(), SubmitRequest{
		Instruction: "pause briefly",
		Plan: domain.ActionPlan{Steps: []domain.ActionStep{
			{Action: domain.ActionWait, Params: map[string]any{"seconds": 1}},
		}},
	})
	require.NoError(t, err)
	require.NotEmpty(t, rec.TaskID)
	require.NotEmpty(t, rec.RequestID)
	require.Equal(t, domain.TaskStatusRunning, rec.Status)

	s.Wait()
	got, err := s.GetTask(context.Background(), rec.TaskID)
	require.NoError(t, err)
	require.Equal(t, domain.TaskStatusCompleted, got.Status)
	require.Len(t, got.StepLogs, 1)
	require.Equal(t, domain.StepStatusSuccess, got.StepLogs[0].Status)
}

func TestSubmitRejectsInvalidPlan(t *testing.T) {
	s := newService(t)

	_, err := s.SubmitTask(context.Background(), SubmitRequest{
		Plan: domain.ActionPlan{Steps: []domain.ActionStep{
			{Action: domain.ActionKind("conjure"), Params: map[string]any{}},
		}},
	})
	var pie *PlanInvalidError
	require.ErrorAs(t, err, &pie)
	require.NotEmpty(t, pie.Violations)
	require.Empty(t, s.ListTasks(context.Background()))
}

func TestSubmitRejectsEmptyPlan(t *testing.T) {
	s := newService(t)

	_, err := s.SubmitTask(context.Background(), SubmitRequest{})
	var pie *PlanInvalidError
	require.ErrorAs(t, err, &pie)
}

func TestResumeRequiresAwaitingStatus(t *testing.T) {
	s := newService(t)

	rec, err := s.SubmitTask(context.Background(), SubmitRequest{
		Plan: domain.ActionPlan{Steps: []domain.ActionStep{
			{Action: domain.ActionWait, Params: map[string]any{"seconds": 1}},
		}},
	})
	require.NoError(t, err)
	s.Wait()

	_, err = s.ResumeTask(context.Background(), rec.TaskID, ResumeRequest{})
	require.ErrorIs(t, err, ErrNotAwaiting)

	_, err = s.ResumeTask(context.Background(), "task_missing", ResumeRequest{})
	require.ErrorIs(t, err, ErrNotFound)
}

func TestTakeOverSuspendsAndResumeCompletes(t *testing.T) {
	s := newService(t)

	rec, err := s.SubmitTask(context.Background(), SubmitRequest{
		Instruction: "hand control to the user mid-run",
		Plan: domain.ActionPlan{Steps: []domain.ActionStep{
			{Action: domain.ActionTakeOver, Params: map[string]any{"message": "log in manually"}},
			{Action: domain.ActionWait, Params: map[string]any{"seconds": 1}},
		}},
	})
	require.NoError(t, err)
	s.Wait()

	paused, err := s.GetTask(context.Background(), rec.TaskID)
	require.NoError(t, err)
	require.Equal(t, domain.TaskStatusAwaitingUser, paused.Status)
	require.Equal(t, 1, paused.StepCursor)
	require.NotNil(t, paused.Snapshot)

	_, err = s.ResumeTask(context.Background(), rec.TaskID, ResumeRequest{Consent: true})
	require.NoError(t, err)
	s.Wait()

	done, err := s.GetTask(context.Background(), rec.TaskID)
	require.NoError(t, err)
	require.Equal(t, domain.TaskStatusCompleted, done.Status)
	require.Len(t, done.StepLogs, 2)
}
