package httpapi

import (
	"appendstream/internal/httpapi/middlewares"

	"github.com/labstack/echo/v4"
)

func (a *API) registerRoutes(e *echo.Echo) {
	e.GET("/healthz", a.handler.Healthz)
	if a.metrics != nil {
		e.GET("/metrics", echo.WrapHandler(a.metrics))
	}

	v1 := e.Group("/api/v1")
	v1.POST("/frames", a.handler.PostFrame, middlewares.NewFrameGateMiddleware(a.gate))
	v1.GET("/stream", a.handler.GetStream)
	v1.POST("/stream/stop", a.handler.StopStream, a.guard.Middleware)
}
