// Package v1 provides the HTTP handlers for the desktop driver API.
package v1

import (
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/xiaot623/deskdriver/internal/evidence"
	"github.com/xiaot623/deskdriver/internal/service"
)

// Handler handles HTTP requests.
type Handler struct {
	service  *service.Service
	recorder *evidence.Recorder
}

// NewHandler creates a new handler.
func NewHandler(svc *service.Service, recorder *evidence.Recorder) *Handler {
	return &Handler{
		service:  svc,
		recorder: recorder,
	}
}

// RegisterRoutes registers the API routes with the echo server.
func (h *Handler) RegisterRoutes(e *echo.Echo) {
	// Task lifecycle API
	e.POST("/v1/tasks", h.SubmitTask)
	e.GET("/v1/tasks", h.ListTasks)
	e.GET("/v1/tasks/:task_id", h.GetTask)
	e.POST("/v1/tasks/:task_id/resume", h.ResumeTask)

	// Evidence streams
	e.GET("/v1/evidence/:request_id/events", h.StreamEvents)
	e.GET("/v1/evidence/:request_id/stream", h.StreamWebSocket)

	e.GET("/health", h.Health)
}

// Health returns health status.
func (h *Handler) Health(c echo.Context) error {
	return c.JSON(http.StatusOK, map[string]string{
		"status":  "healthy",
		"version": "0.1.0",
	})
}
