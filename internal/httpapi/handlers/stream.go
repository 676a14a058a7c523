package handlers

import (
	"errors"
	"io"
	"net/http"
	"time"

	"appendstream/internal/pipeline"

	"github.com/labstack/echo/v4"
)

// PostFrame appends the raw request body to the stream buffer.
func (h *Handler) PostFrame(c echo.Context) error {
	switch state := h.stream.State(); state {
	case pipeline.StateCreationFailed:
		return echo.NewHTTPError(http.StatusServiceUnavailable, "stream unavailable: blob creation failed")
	case pipeline.StateStopped:
		return echo.NewHTTPError(http.StatusConflict, "stream stopped")
	}

	req := c.Request()
	if h.maxFrameBytes > 0 && req.ContentLength > h.maxFrameBytes {
		return echo.NewHTTPError(http.StatusRequestEntityTooLarge, "frame too large")
	}

	body := req.Body
	if h.maxFrameBytes > 0 {
		body = http.MaxBytesReader(c.Response(), req.Body, h.maxFrameBytes)
	}
	data, err := io.ReadAll(body)
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			return echo.NewHTTPError(http.StatusRequestEntityTooLarge, "frame too large")
		}
		return echo.NewHTTPError(http.StatusBadRequest, "read frame body")
	}
	if len(data) == 0 {
		return echo.NewHTTPError(http.StatusBadRequest, "empty frame")
	}

	h.stream.Append(data)
	return c.JSON(http.StatusAccepted, map[string]any{
		"accepted": len(data),
		"state":    h.stream.State().String(),
	})
}

func (h *Handler) GetStream(c echo.Context) error {
	resp := map[string]any{
		"stream": h.stream.Stats(),
	}
	if h.stopper != nil {
		resp["stop"] = h.stopper.Status()
	}
	return c.JSON(http.StatusOK, resp)
}

func (h *Handler) StopStream(c echo.Context) error {
	if h.stopper == nil {
		return echo.NewHTTPError(http.StatusNotImplemented, "stop is not configured")
	}
	started, err := h.stopper.TriggerStop(c.Request().Context())
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	return c.JSON(http.StatusAccepted, map[string]any{
		"started": started,
		"stop":    h.stopper.Status(),
	})
}

func (h *Handler) Healthz(c echo.Context) error {
	state := h.stream.State()
	status := http.StatusOK
	if state == pipeline.StateCreationFailed {
		status = http.StatusServiceUnavailable
	}
	return c.JSON(status, map[string]any{
		"ok":        status == http.StatusOK,
		"state":     state.String(),
		"timestamp": time.Now().UTC().Format(time.RFC3339),
	})
}
