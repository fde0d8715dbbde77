package httpserver

import (
	"fmt"
	"log/slog"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	apperrors "github.com/pscheid92/gpsrelay/internal/platform/errors"
	"golang.org/x/time/rate"
)

const rateLimiterExpiry = 5 * time.Minute

// newRateLimiter limits plain HTTP requests per client IP.
// Echo hands the deny result to c.Error and skips the rest of the chain, so
// the deny handler writes the 429 body itself.
func newRateLimiter(ratePerSecond float64, burst int) echo.MiddlewareFunc {
	store := middleware.NewRateLimiterMemoryStoreWithConfig(
		middleware.RateLimiterMemoryStoreConfig{
			Rate:      rate.Limit(ratePerSecond),
			Burst:     burst,
			ExpiresIn: rateLimiterExpiry,
		},
	)
	return middleware.RateLimiterWithConfig(middleware.RateLimiterConfig{
		IdentifierExtractor: func(c echo.Context) (string, error) {
			return c.RealIP(), nil
		},
		Store: store,
		DenyHandler: func(c echo.Context, identifier string, err error) error {
			structuredErr := apperrors.RateLimitedError("rate limit exceeded").WithField("remote_ip", identifier)
			apperrors.HTTPErrorsTotal.WithLabelValues(string(structuredErr.Type)).Inc()
			slog.WarnContext(c.Request().Context(), "Request refused", "error_type", structuredErr.Type, "path", c.Request().URL.Path, "remote_ip", identifier)

			if err := c.JSON(structuredErr.HTTPStatus(), structuredErr.ToResponse()); err != nil {
				return fmt.Errorf("failed to write rate limit response: %w", err)
			}
			return nil
		},
	})
}
