package httpserver

import (
	"log/slog"
	"math"
	"net/http"
	"strconv"
	"time"

	apperrors "github.com/aleskucera/robot-mission-planner/internal/platform/errors"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"golang.org/x/time/rate"
)

const rateLimiterExpiry = 5 * time.Minute

// newRateLimiter limits API calls per client IP. A rejected client is told to
// come back once one token has refilled.
func newRateLimiter(ratePerSecond float64, burst int) echo.MiddlewareFunc {
	store := middleware.NewRateLimiterMemoryStoreWithConfig(
		middleware.RateLimiterMemoryStoreConfig{
			Rate:      rate.Limit(ratePerSecond),
			Burst:     burst,
			ExpiresIn: rateLimiterExpiry,
		},
	)
	retryAfter := refillSeconds(ratePerSecond)

	return middleware.RateLimiterWithConfig(middleware.RateLimiterConfig{
		IdentifierExtractor: func(c echo.Context) (string, error) {
			return c.RealIP(), nil
		},
		Store: store,
		DenyHandler: func(c echo.Context, ip string, _ error) error {
			slog.WarnContext(c.Request().Context(), "API rate limit exceeded",
				"ip", ip, "path", c.Request().URL.Path)

			c.Response().Header().Set("Retry-After", strconv.Itoa(retryAfter))
			return c.JSON(http.StatusTooManyRequests, apperrors.ErrorResponse{
				Error:   "rate limit exceeded",
				Type:    apperrors.TypeGuard,
				Context: map[string]any{"retry_after_seconds": retryAfter},
			})
		},
	})
}

func refillSeconds(ratePerSecond float64) int {
	if ratePerSecond <= 0 {
		return 1
	}
	return max(1, int(math.Ceil(1/ratePerSecond)))
}
