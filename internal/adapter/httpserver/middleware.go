package httpserver

import (
	"github.com/labstack/echo/v4"
	"github.com/pscheid92/gpsrelay/internal/platform/correlation"
)

// correlationMiddleware tags the request context with a correlation ID,
// reusing the caller's X-Correlation-ID when it is well-formed.
func correlationMiddleware(next echo.HandlerFunc) echo.HandlerFunc {
	return func(c echo.Context) error {
		id := correlation.FromHeader(c.Request().Header.Get(correlation.Header))
		c.Response().Header().Set(correlation.Header, id)

		ctx := correlation.WithID(c.Request().Context(), id)
		c.SetRequest(c.Request().WithContext(ctx))
		return next(c)
	}
}
