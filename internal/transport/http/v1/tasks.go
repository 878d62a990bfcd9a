package v1

import (
	"errors"
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/xiaot623/deskdriver/internal/service"
)

// SubmitTask submits a plan for asynchronous execution.
// POST /v1/tasks
func (h *Handler) SubmitTask(c echo.Context) error {
	ctx := c.Request().Context()

	var req service.SubmitRequest
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "invalid request body"})
	}

	rec, err := h.service.SubmitTask(ctx, req)
	if err != nil {
		var pie *service.PlanInvalidError
		if errors.As(err, &pie) {
			return c.JSON(http.StatusBadRequest, map[string]interface{}{
				"error":      "plan validation failed",
				"violations": pie.Violations,
			})
		}
		return c.JSON(http.StatusInternalServerError, map[string]string{"error": err.Error()})
	}

	return c.JSON(http.StatusAccepted, map[string]interface{}{
		"task_id":    rec.TaskID,
		"request_id": rec.RequestID,
		"status":     rec.Status,
	})
}

// GetTask returns the current record for a task.
// GET /v1/tasks/:task_id
func (h *Handler) GetTask(c echo.Context) error {
	ctx := c.Request().Context()
	taskID := c.Param("task_id")

	rec, err := h.service.GetTask(ctx, taskID)
	if err != nil {
		if errors.Is(err, service.ErrNotFound) {
			return c.JSON(http.StatusNotFound, map[string]string{"error": "task not found"})
		}
		return c.JSON(http.StatusInternalServerError, map[string]string{"error": err.Error()})
	}

	return c.JSON(http.StatusOK, rec)
}

// ListTasks lists all known tasks, most recently updated first.
// GET /v1/tasks
func (h *Handler) ListTasks(c echo.Context) error {
	ctx := c.Request().Context()

	tasks := h.service.ListTasks(ctx)
	list := make([]map[string]interface{}, len(tasks))
	for i, rec := range tasks {
		list[i] = map[string]interface{}{
			"task_id":     rec.TaskID,
			"request_id":  rec.RequestID,
			"status":      rec.Status,
			"instruction": rec.Instruction,
			"step_cursor": rec.StepCursor,
			"last_error":  rec.LastError,
			"updated_at":  rec.UpdatedAt.UnixMilli(),
		}
	}

	return c.JSON(http.StatusOK, map[string]interface{}{
		"tasks": list,
	})
}

// ResumeTask resumes an awaiting_user task with a continuation signal.
// POST /v1/tasks/:task_id/resume
func (h *Handler) ResumeTask(c echo.Context) error {
	ctx := c.Request().Context()
	taskID := c.Param("task_id")

	var req service.ResumeRequest
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "invalid request body"})
	}

	rec, err := h.service.ResumeTask(ctx, taskID, req)
	if err != nil {
		if errors.Is(err, service.ErrNotFound) {
			return c.JSON(http.StatusNotFound, map[string]string{"error": "task not found"})
		}
		if errors.Is(err, service.ErrNotAwaiting) {
			return c.JSON(http.StatusConflict, map[string]string{"error": err.Error()})
		}
		return c.JSON(http.StatusInternalServerError, map[string]string{"error": err.Error()})
	}

	return c.JSON(http.StatusAccepted, map[string]interface{}{
		"task_id": rec.TaskID,
		"status":  rec.Status,
	})
}
