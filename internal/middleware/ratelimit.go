package middleware

import (
	"math"

	"github.com/labstack/echo/v4"
	echomw "github.com/labstack/echo/v4/middleware"
	"golang.org/x/time/rate"

	"mcop-proxy/internal/config"
)

// RateLimit returns a per-client-IP limiter for cfg, or nil when rate
// limiting is disabled. Burst is the per-second rate rounded up, at least 1.
func RateLimit(cfg config.RateLimitConfig) echo.MiddlewareFunc {
	if !cfg.Enabled || cfg.RequestsPerSecond <= 0 {
		return nil
	}
	store := echomw.NewRateLimiterMemoryStoreWithConfig(echomw.RateLimiterMemoryStoreConfig{
		Rate:  rate.Limit(cfg.RequestsPerSecond),
		Burst: int(math.Max(1, math.Ceil(cfg.RequestsPerSecond))),
	})
	return echomw.RateLimiter(store)
}
