package httpserver

import (
	"context"
	"errors"
	"net/http"
	"testing"

	"github.com/aleskucera/robot-mission-planner/internal/domain"
	"github.com/aleskucera/robot-mission-planner/internal/platform/config"
	"github.com/labstack/echo/v4"
)

// --- Mock implementations ---

type mockPlanner struct {
	stateFn  func(ctx context.Context) (domain.Snapshot, error)
	exportFn func(ctx context.Context) ([]byte, error)
}

func (m *mockPlanner) State(ctx context.Context) (domain.Snapshot, error) {
	if m.stateFn != nil {
		return m.stateFn(ctx)
	}
	return domain.Snapshot{}, nil
}

func (m *mockPlanner) Export(ctx context.Context) ([]byte, error) {
	if m.exportFn != nil {
		return m.exportFn(ctx)
	}
	return nil, errors.New("not implemented")
}

func (m *mockPlanner) ContentType() string {
	return "application/gpx+xml"
}

// --- Test helpers ---

func testConfig() *config.Config {
	return &config.Config{Port: "0", APIRateLimit: 100, APIRateBurst: 100}
}

func newTestServer(t *testing.T, planner plannerService, opts ...func(*Server)) *Server {
	t.Helper()

	srv := &Server{
		echo:    echo.New(),
		config:  testConfig(),
		planner: planner,
	}

	for _, opt := range opts {
		opt(srv)
	}

	srv.registerRoutes()

	return srv
}

func withHealthChecks(checks ...HealthCheck) func(*Server) {
	return func(s *Server) {
		s.healthChecks = checks
	}
}

func withWebSocketHandler(h http.Handler) func(*Server) {
	return func(s *Server) {
		s.websocketHandler = h
	}
}

func withRateLimit(ratePerSecond float64, burst int) func(*Server) {
	return func(s *Server) {
		s.config.APIRateLimit = ratePerSecond
		s.config.APIRateBurst = burst
	}
}
