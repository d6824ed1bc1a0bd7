package api

import (
	"github.com/hunght/gograb/internal/api/controllers"
	"github.com/hunght/gograb/internal/app"
	"github.com/labstack/echo/v5"
	"github.com/labstack/echo/v5/middleware"
)

func RegisterRoutes(e *echo.Echo, app *app.Context) {

	// Middleware: Request Logger
	e.Use(middleware.RequestLoggerWithConfig(middleware.RequestLoggerConfig{
		LogStatus:  true,
		LogURI:     true,
		LogMethod:  true,
		LogLatency: true,
		LogValuesFunc: func(c *echo.Context, v middleware.RequestLoggerValues) error {
			app.Logger.Info("%s %s | %d | %s", v.Method, v.URI, v.Status, v.Latency)
			return nil
		},
	}))

	jobsCtrl := &controllers.JobsController{App: app}

	// Download queue endpoints (UI / notification collaborators poll these)
	e.POST("/api/jobs", jobsCtrl.Enqueue)
	e.GET("/api/jobs", jobsCtrl.List)
	e.GET("/api/jobs/:id", jobsCtrl.Get)
	e.DELETE("/api/jobs/:id", jobsCtrl.Delete)

	e.POST("/api/jobs/:id/cancel", jobsCtrl.Cancel)
	e.POST("/api/jobs/:id/pause", jobsCtrl.Pause)
	e.POST("/api/jobs/:id/resume", jobsCtrl.Resume)
	e.POST("/api/jobs/:id/retry", jobsCtrl.Retry)

	e.GET("/api/stats", jobsCtrl.Stats)
}
