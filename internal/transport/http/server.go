// Package http provides the HTTP server for the desktop driver service.
package http

import (
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/xiaot623/deskdriver/internal/evidence"
	"github.com/xiaot623/deskdriver/internal/service"
	v1 "github.com/xiaot623/deskdriver/internal/transport/http/v1"
)

// NewServer creates and configures the HTTP server. It exposes the task
// lifecycle API and the evidence streams.
func NewServer(svc *service.Service, recorder *evidence.Recorder) *echo.Echo {
	e := echo.New()
	e.HideBanner = true

	// Middleware
	e.Use(middleware.Logger())
	e.Use(middleware.Recover())
	e.Use(middleware.CORS())

	// Register Routes
	v1Handler := v1.NewHandler(svc, recorder)
	v1Handler.RegisterRoutes(e)

	return e
}
