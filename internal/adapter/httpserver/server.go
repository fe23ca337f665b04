package httpserver

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/aleskucera/robot-mission-planner/internal/adapter/metrics"
	"github.com/aleskucera/robot-mission-planner/internal/domain"
	"github.com/aleskucera/robot-mission-planner/internal/platform/config"
	"github.com/labstack/echo/v4"
)

type plannerService interface {
	State(ctx context.Context) (domain.Snapshot, error)
	Export(ctx context.Context) ([]byte, error)
	ContentType() string
}

type Server struct {
	echo   *echo.Echo
	config *config.Config

	planner plannerService

	websocketHandler http.Handler
	metricsHandler   http.Handler
	httpMetrics      *metrics.HTTPMetrics

	healthChecks []HealthCheck
	startTime    time.Time
}

func NewServer(cfg *config.Config, planner plannerService, websocketHandler, metricsHandler http.Handler, httpMetrics *metrics.HTTPMetrics, healthChecks []HealthCheck) *Server {
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true

	srv := &Server{
		echo:             e,
		config:           cfg,
		planner:          planner,
		websocketHandler: websocketHandler,
		metricsHandler:   metricsHandler,
		httpMetrics:      httpMetrics,
		healthChecks:     healthChecks,
		startTime:        time.Now(),
	}

	srv.registerRoutes()

	return srv
}

func (s *Server) Start() error {
	slog.Info("Starting server", "port", s.config.Port)
	if err := s.echo.Start(":" + s.config.Port); err != nil {
		return fmt.Errorf("failed to start server: %w", err)
	}
	return nil
}

func (s *Server) Shutdown(ctx context.Context) error {
	if err := s.echo.Shutdown(ctx); err != nil {
		return fmt.Errorf("failed to shutdown server: %w", err)
	}
	return nil
}
