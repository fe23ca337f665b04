package httpserver

import (
	"fmt"
	"net/http"

	"github.com/labstack/echo/v4"
)

const exportFilename = "mission.gpx"

func (s *Server) registerAPIRoutes() {
	api := s.echo.Group("/api", newRateLimiter(s.config.APIRateLimit, s.config.APIRateBurst))
	api.GET("/state", s.handleState)
	api.GET("/export.gpx", s.handleExport)
}

func (s *Server) handleState(c echo.Context) error {
	snapshot, err := s.planner.State(c.Request().Context())
	if err != nil {
		return err
	}
	if err := c.JSON(http.StatusOK, snapshot); err != nil {
		return fmt.Errorf("failed to write state response: %w", err)
	}
	return nil
}

// handleExport downloads the current path as a track file. Without a path
// the planner's guard error answers 409.
func (s *Server) handleExport(c echo.Context) error {
	data, err := s.planner.Export(c.Request().Context())
	if err != nil {
		return err
	}

	c.Response().Header().Set(echo.HeaderContentDisposition, fmt.Sprintf("attachment; filename=%q", exportFilename))
	if err := c.Blob(http.StatusOK, s.planner.ContentType(), data); err != nil {
		return fmt.Errorf("failed to write export response: %w", err)
	}
	return nil
}
