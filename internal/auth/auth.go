package auth

import (
	"crypto/sha256"
	"crypto/subtle"
	"net/http"
	"strings"

	"github.com/labstack/echo/v4"
)

// ControlGuard protects stream control routes with a single shared token.
// A guard built with an empty token lets every request through.
type ControlGuard struct {
	digest  [sha256.Size]byte
	enabled bool
}

func NewControlGuard(token string) *ControlGuard {
	token = strings.TrimSpace(token)
	if token == "" {
		return &ControlGuard{}
	}
	return &ControlGuard{digest: sha256.Sum256([]byte(token)), enabled: true}
}

func (g *ControlGuard) Enabled() bool {
	return g != nil && g.enabled
}

func (g *ControlGuard) Middleware(next echo.HandlerFunc) echo.HandlerFunc {
	return func(c echo.Context) error {
		if !g.Enabled() {
			return next(c)
		}
		token := extractToken(c.Request())
		if token == "" {
			return echo.NewHTTPError(http.StatusUnauthorized, "missing control token")
		}
		if !g.Verify(token) {
			return echo.NewHTTPError(http.StatusUnauthorized, "invalid control token")
		}
		return next(c)
	}
}

// Verify compares digests in constant time.
func (g *ControlGuard) Verify(token string) bool {
	if !g.Enabled() {
		return true
	}
	got := sha256.Sum256([]byte(token))
	return subtle.ConstantTimeCompare(got[:], g.digest[:]) == 1
}

func extractToken(r *http.Request) string {
	authz := strings.TrimSpace(r.Header.Get("Authorization"))
	if strings.HasPrefix(strings.ToLower(authz), "bearer ") {
		return strings.TrimSpace(authz[7:])
	}
	return strings.TrimSpace(r.Header.Get("X-API-Token"))
}
