package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/aleskucera/robot-mission-planner/internal/adapter/gpx"
	"github.com/aleskucera/robot-mission-planner/internal/adapter/httpserver"
	"github.com/aleskucera/robot-mission-planner/internal/adapter/metrics"
	"github.com/aleskucera/robot-mission-planner/internal/adapter/redis"
	"github.com/aleskucera/robot-mission-planner/internal/adapter/remote"
	"github.com/aleskucera/robot-mission-planner/internal/adapter/websocket"
	"github.com/aleskucera/robot-mission-planner/internal/app"
	"github.com/aleskucera/robot-mission-planner/internal/domain"
	"github.com/aleskucera/robot-mission-planner/internal/platform/config"
	"github.com/aleskucera/robot-mission-planner/internal/platform/logging"
	"github.com/aleskucera/robot-mission-planner/internal/platform/retry"
	"github.com/aleskucera/robot-mission-planner/internal/platform/version"
	"github.com/jonboulle/clockwork"
	goredis "github.com/redis/go-redis/v9"
)

const (
	shutdownTimeout     = 10 * time.Second
	healthProbeTimeout  = 2 * time.Second
	redisConnectTimeout = 30 * time.Second
)

func runGracefulShutdown(srv *httpserver.Server, bridge *websocket.Bridge, planner *app.Planner) <-chan struct{} {
	done := make(chan struct{})
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	go func() {
		<-sigChan
		slog.Info("Shutdown signal received, cleaning up...")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			slog.Error("Server shutdown error", "error", err)
		}

		bridge.Stop()
		planner.Stop()

		close(done)
	}()

	return done
}

func setupConfig() *config.Config {
	cfg, err := config.Load()
	if err != nil {
		// Use log before slog is initialized
		log.Fatalf("Failed to load config: %v", err)
	}
	return cfg
}

// setupRedis connects with backoff so the planner can start alongside Redis.
func setupRedis(cfg *config.Config, redisMetrics *metrics.RedisMetrics) *goredis.Client {
	ctx, cancel := context.WithTimeout(context.Background(), redisConnectTimeout)
	defer cancel()

	policy := retry.Policy{
		MaxAttempts:    5,
		InitialBackoff: 500 * time.Millisecond,
		MaxBackoff:     5 * time.Second,
		OnRetry: func(attempt int, err error, backoff time.Duration) {
			slog.Warn("Redis not reachable yet", "attempt", attempt, "backoff", backoff, "error", err)
		},
	}

	var client *goredis.Client
	err := retry.Do(ctx, policy, nil, func(ctx context.Context) error {
		var err error
		client, err = redis.NewClient(ctx, cfg.RedisURL, redisMetrics)
		return err
	})
	if err != nil {
		slog.Error("Failed to connect to Redis", "error", err)
		os.Exit(1)
	}
	return client
}

func logPreviousSnapshot(store *redis.SnapshotStore) {
	ctx, cancel := context.WithTimeout(context.Background(), healthProbeTimeout)
	defer cancel()

	snap, err := store.Latest(ctx)
	if err != nil {
		slog.Warn("Could not read previous snapshot", "error", err)
		return
	}
	if snap == nil {
		return
	}
	slog.Info("Previous session snapshot found",
		"waypoints", snap.Counts.Total(),
		"had_path", snap.Path != nil,
		"taken_at", snap.TakenAt)
}

func plannerHealth(planner *app.Planner) httpserver.HealthCheck {
	return httpserver.HealthCheck{
		Name: "planner",
		Check: func(ctx context.Context) error {
			ctx, cancel := context.WithTimeout(ctx, healthProbeTimeout)
			defer cancel()
			if _, err := planner.State(ctx); err != nil {
				return fmt.Errorf("planner loop unresponsive: %w", err)
			}
			return nil
		},
	}
}

func main() {
	clock := clockwork.NewRealClock()

	cfg := setupConfig()

	// Initialize structured logging
	logging.InitLogger(cfg.LogLevel, cfg.LogFormat)
	slog.Info("Application starting", "env", cfg.AppEnv, "port", cfg.Port, "version", version.Get().Version)

	reg := metrics.NewRegistry()

	// Pass nil explicitly to avoid a typed-nil publisher
	var publisher domain.SnapshotPublisher
	var healthChecks []httpserver.HealthCheck
	if cfg.RedisURL != "" {
		redisMetrics := metrics.NewRedisMetrics(reg)
		redisClient := setupRedis(cfg, redisMetrics)
		defer func() { _ = redisClient.Close() }()

		store := redis.NewSnapshotStore(redisClient, cfg.SnapshotTTL, redisMetrics)
		logPreviousSnapshot(store)
		publisher = store
		healthChecks = append(healthChecks, httpserver.HealthCheck{Name: "redis", Check: store.Ping})
	}

	remoteClient := remote.NewClient(cfg.ServiceURL, metrics.NewRemoteMetrics(reg))
	limits := websocket.NewConnectionLimits(clock, cfg.MaxConnections, cfg.MaxConnectionsIP, cfg.ConnectRate, cfg.ConnectBurst)
	bridge := websocket.NewBridge(clock, metrics.NewWebSocketMetrics(reg),
		websocket.NewCheckOrigin(cfg.Origins(), cfg.AppEnv == "development"), limits)

	planner := app.NewPlanner(app.Deps{
		Registry:  remoteClient,
		Solver:    remoteClient,
		Transfers: remoteClient,
		Exporter:  gpx.NewExporter("robot-mission-planner " + version.Get().Version),
		Publisher: publisher,
		Surface:   bridge,
		Controls:  bridge,
		Status:    bridge,
		Clock:     clock,
		Metrics:   metrics.NewPlannerMetrics(reg),
	}, app.Options{
		ReceiveCommand: cfg.ReceiveCommand,
		RequestTimeout: cfg.RequestTimeout,
		SolveTimeout:   cfg.SolveTimeout,
	})
	bridge.Attach(planner)
	healthChecks = append([]httpserver.HealthCheck{plannerHealth(planner)}, healthChecks...)

	srv := httpserver.NewServer(cfg, planner, bridge, metrics.Handler(reg), metrics.NewHTTPMetrics(reg), healthChecks)

	done := runGracefulShutdown(srv, bridge, planner)

	slog.Info("Server starting", "port", cfg.Port, "planning_service", cfg.ServiceURL)
	if err := srv.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		slog.Error("Server error", "error", err)
		os.Exit(1)
	}

	<-done
}
