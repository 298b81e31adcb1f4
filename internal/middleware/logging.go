// Package middleware provides Echo middleware for logging, metrics and security.
package middleware

import (
	"log/slog"
	"time"

	"github.com/labstack/echo/v4"

	"mcop-proxy/internal/model"
)

// RequestLogger returns an Echo middleware that logs each request with slog.
// Proxied requests also carry the service and backend host that served them.
func RequestLogger(logger *slog.Logger) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			start := time.Now()

			err := next(c)

			req := c.Request()
			res := c.Response()

			attrs := []any{
				"method", req.Method,
				"host", req.Host,
				"path", req.URL.Path,
				"status", res.Status,
				"duration_ms", time.Since(start).Milliseconds(),
				"request_id", res.Header().Get(echo.HeaderXRequestID),
				"remote_ip", c.RealIP(),
				"bytes_out", res.Size,
			}
			if svc, ok := c.Get(model.ContextKeyService).(string); ok && svc != "" {
				attrs = append(attrs, "service", svc, "backend", c.Get(model.ContextKeyBackend))
			}
			logger.Info("request", attrs...)

			return err
		}
	}
}
