package middlewares

import (
	"math"
	"net"
	"net/http"
	"strconv"
	"strings"
	"time"

	"appendstream/internal/ratelimit"

	"github.com/labstack/echo/v4"
)

const HeaderSourceID = "X-Source-ID"

// NewFrameGateMiddleware rejects frames that arrive faster than the gate's
// minimum interval for their source.
func NewFrameGateMiddleware(gate *ratelimit.FrameGate) echo.MiddlewareFunc {
	return newFrameGateMiddleware(gate, func() time.Time { return time.Now().UTC() })
}

func newFrameGateMiddleware(gate *ratelimit.FrameGate, now func() time.Time) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			if gate == nil {
				return next(c)
			}

			result := gate.Take(now(), frameSource(c))
			if !result.Allowed {
				c.Response().Header().Set("Retry-After", retryAfterSeconds(result.RetryIn))
				return c.JSON(http.StatusTooManyRequests, map[string]any{
					"error":        "frame rate exceeded",
					"retryAfterMs": result.RetryIn.Milliseconds(),
				})
			}
			return next(c)
		}
	}
}

func frameSource(c echo.Context) string {
	if id := strings.TrimSpace(c.Request().Header.Get(HeaderSourceID)); id != "" {
		return "id:" + id
	}
	ip := strings.TrimSpace(c.RealIP())
	if ip == "" {
		ip = clientIPFromRemoteAddr(c.Request().RemoteAddr)
	}
	if ip == "" {
		ip = "unknown"
	}
	return "ip:" + ip
}

// retryAfterSeconds rounds up, so sub-second waits still advertise 1.
func retryAfterSeconds(d time.Duration) string {
	secs := int64(math.Ceil(d.Seconds()))
	if secs < 1 {
		secs = 1
	}
	return strconv.FormatInt(secs, 10)
}

func clientIPFromRemoteAddr(remoteAddr string) string {
	host, _, err := net.SplitHostPort(strings.TrimSpace(remoteAddr))
	if err != nil {
		return strings.TrimSpace(remoteAddr)
	}
	return strings.TrimSpace(host)
}
