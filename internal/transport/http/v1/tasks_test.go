package v1

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/require"
	"github.com/xiaot623/deskdriver/config"
	"github.com/xiaot623/deskdriver/internal/domain"
	"github.com/xiaot623/deskdriver/internal/driver"
	"github.com/xiaot623/deskdriver/internal/evidence"
	"github.com/xiaot623/deskdriver/internal/executor"
	"github.com/xiaot623/deskdriver/internal/policy"
	"github.com/xiaot623/deskdriver/internal/registry"
	"github.com/xiaot623/deskdriver/internal/service"
)

type testStack struct {
	handler *Handler
	svc     *service.Service
	store   *evidence.Store
	rec     *evidence.Recorder
}

func newStack(t *testing.T) *testStack {
	t.Helper()
	pol, err := policy.ParsePolicy([]byte(policy.DefaultPolicy))
	require.NoError(t, err)
	eng, err := policy.NewEngine(context.Background(), pol)
	require.NoError(t, err)

	store, err := evidence.NewStore(":memory:", t.TempDir())
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })
	rec := evidence.NewRecorder(store, 64)
	t.Cleanup(rec.Close)

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
		Recorder: rec,
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
	svc := service.New(cfg, reg, rec, exec)
	return &testStack{handler: NewHandler(svc, rec), svc: svc, store: store, rec: rec}
}

func doJSON(t *testing.T, h echo.HandlerFunc, method, path, body string, setup func(echo.Context)) *httptest.ResponseRecorder {
	t.Helper()
	e := echo.New()
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	if body != "" {
		req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	}
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)
	if setup != nil {
		setup(c)
	}
	require.NoError(t, h(c))
	return rec
}

func TestSubmitTaskAccepted(t *testing.T) {
	s := newStack(t)

	body := `{"instruction":"pause","plan":{"steps":[{"action":"wait","params":{"seconds":1}}]}}`
	rec := doJSON(t, s.handler.SubmitTask, http.MethodPost, "/v1/tasks", body, nil)
	require.Equal(t, http.StatusAccepted, rec.Code)

	var resp map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	require.Contains(t, resp["task_id"], "task_")
	require.Contains(t, resp["request_id"], "req_")
	s.svc.Wait()

	get := doJSON(t, s.handler.GetTask, http.MethodGet, "/", "", func(c echo.Context) {
		c.SetParamNames("task_id")
		c.SetParamValues(resp["task_id"].(string))
	})
	require.Equal(t, http.StatusOK, get.Code)
	var task domain.TaskRecord
	require.NoError(t, json.Unmarshal(get.Body.Bytes(), &task))
	require.Equal(t, domain.TaskStatusCompleted, task.Status)
}

func TestSubmitTaskRejectsInvalidPlan(t *testing.T) {
	s := newStack(t)

	body := `{"plan":{"steps":[{"action":"conjure"}]}}`
	rec := doJSON(t, s.handler.SubmitTask, http.MethodPost, "/v1/tasks", body, nil)
	require.Equal(t, http.StatusBadRequest, rec.Code)

	var resp map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	require.NotEmpty(t, resp["violations"])
}

func TestGetTaskNotFound(t *testing.T) {
	s := newStack(t)

	rec := doJSON(t, s.handler.GetTask, http.MethodGet, "/", "", func(c echo.Context) {
		c.SetParamNames("task_id")
		c.SetParamValues("task_missing")
	})
	require.Equal(t, http.StatusNotFound, rec.Code)
}

func TestResumeConflictWhenNotAwaiting(t *testing.T) {
	s := newStack(t)

	body := `{"plan":{"steps":[{"action":"wait","params":{"seconds":1}}]}}`
	sub := doJSON(t, s.handler.SubmitTask, http.MethodPost, "/v1/tasks", body, nil)
	require.Equal(t, http.StatusAccepted, sub.Code)
	var resp map[string]any
	require.NoError(t, json.Unmarshal(sub.Body.Bytes(), &resp))
	s.svc.Wait()

	rec := doJSON(t, s.handler.ResumeTask, http.MethodPost, "/", `{"consent":true}`, func(c echo.Context) {
		c.SetParamNames("task_id")
		c.SetParamValues(resp["task_id"].(string))
	})
	require.Equal(t, http.StatusConflict, rec.Code)
}

func TestListTasksShape(t *testing.T) {
	s := newStack(t)

	body := `{"instruction":"pause","plan":{"steps":[{"action":"wait","params":{"seconds":1}}]}}`
	sub := doJSON(t, s.handler.SubmitTask, http.MethodPost, "/v1/tasks", body, nil)
	require.Equal(t, http.StatusAccepted, sub.Code)
	s.svc.Wait()

	rec := doJSON(t, s.handler.ListTasks, http.MethodGet, "/v1/tasks", "", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	var resp struct {
		Tasks []map[string]any `json:"tasks"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	require.Len(t, resp.Tasks, 1)
	require.Equal(t, "pause", resp.Tasks[0]["instruction"])
}

func TestHealth(t *testing.T) {
	s := newStack(t)

	rec := doJSON(t, s.handler.Health, http.MethodGet, "/health", "", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	require.Contains(t, rec.Body.String(), "healthy")
}
