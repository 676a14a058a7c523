package httpapi

import (
	"net/http"

	"appendstream/internal/auth"
	"appendstream/internal/config"
	"appendstream/internal/httpapi/handlers"
	"appendstream/internal/ratelimit"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
)

type API struct {
	cfg     config.Config
	handler *handlers.Handler
	gate    *ratelimit.FrameGate
	guard   *auth.ControlGuard
	metrics http.Handler
}

// New wires the HTTP surface. metricsHandler may be nil, in which case
// /metrics is not registered.
func New(cfg config.Config, stream handlers.Stream, stopper handlers.Stopper, metricsHandler http.Handler) *API {
	return &API{
		cfg:     cfg,
		handler: handlers.New(stream, stopper, cfg.MaxFrameBytes),
		gate:    ratelimit.New(ratelimit.Config{MinInterval: cfg.MinFrameInterval}),
		guard:   auth.NewControlGuard(cfg.ControlToken),
		metrics: metricsHandler,
	}
}

func (a *API) NewEcho() *echo.Echo {
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	e.Use(middleware.Recover())
	e.Use(middleware.RequestID())
	e.Use(middleware.RequestLogger())

	a.registerRoutes(e)
	return e
}
