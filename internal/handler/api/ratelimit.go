package api

import (
	"github.com/labstack/echo/v4"

	"WasteFlow/internal/service/ratelimit"
	xhttp "WasteFlow/pkg/http"
)

// RateLimit throttles mutating requests per client IP.
func RateLimit(l *ratelimit.Limiter) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			if l == nil {
				return next(c)
			}
			if !l.Allow(c.RealIP()) {
				return xhttp.AppErrorResponse(c, xhttp.TooManyRequestsError())
			}
			return next(c)
		}
	}
}
