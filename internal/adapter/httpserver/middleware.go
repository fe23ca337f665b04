package httpserver

import (
	"errors"
	"fmt"
	"log/slog"

	"github.com/aleskucera/robot-mission-planner/internal/platform/correlation"
	apperrors "github.com/aleskucera/robot-mission-planner/internal/platform/errors"
	"github.com/labstack/echo/v4"
)

// correlationMiddleware adopts a well-formed caller correlation ID or mints
// one, and echoes it in the response.
func correlationMiddleware(next echo.HandlerFunc) echo.HandlerFunc {
	return func(c echo.Context) error {
		ctx := c.Request().Context()
		if id := c.Request().Header.Get(correlation.Header); correlation.Valid(id) {
			ctx = correlation.WithID(ctx, id)
		}
		ctx, id := correlation.Ensure(ctx)
		c.SetRequest(c.Request().WithContext(ctx))
		c.Response().Header().Set(correlation.Header, id)
		return next(c)
	}
}

func ErrorHandlingMiddleware() echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			err := next(c)
			if err == nil {
				return nil
			}

			var httpErr *echo.HTTPError
			if errors.As(err, &httpErr) {
				return err
			}

			structuredErr := apperrors.AsStructuredError(err)
			logError(c, structuredErr)

			if err := c.JSON(structuredErr.HTTPStatus(), structuredErr.ToResponse()); err != nil {
				return fmt.Errorf("failed to write error response: %w", err)
			}
			return nil
		}
	}
}

func logError(c echo.Context, err *apperrors.Error) {
	attrs := []any{
		"error_type", err.Type,
		"message", err.Message,
		"path", c.Request().URL.Path,
		"method", c.Request().Method,
		"status", err.HTTPStatus(),
	}

	for k, v := range err.Context {
		attrs = append(attrs, k, v)
	}

	ctx := c.Request().Context()
	switch err.Type {
	case apperrors.TypeGuard:
		slog.InfoContext(ctx, "Precondition not met", attrs...)
	case apperrors.TypeNotFound:
		slog.InfoContext(ctx, "Not found", attrs...)
	case apperrors.TypeRejection:
		if err.Details != "" {
			attrs = append(attrs, "details", err.Details)
		}
		slog.WarnContext(ctx, "Planning service rejected request", attrs...)
	case apperrors.TypeTimeout:
		slog.WarnContext(ctx, "Timed out", attrs...)
	case apperrors.TypeTransport:
		if err.Cause != nil {
			attrs = append(attrs, "cause", err.Cause)
		}
		slog.ErrorContext(ctx, "Planning service unreachable", attrs...)
	default:
		if err.Cause != nil {
			attrs = append(attrs, "cause", err.Cause)
		}
		slog.ErrorContext(ctx, "Internal error", attrs...)
	}
}
