package config

import (
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"go-simpler.org/env"
)

type Config struct {
	AppEnv     string `env:"APP_ENV" default:"development"`
	Port       string `env:"PORT" default:"8080"`
	ServiceURL string `env:"PLANNER_SERVICE_URL"`
	RedisURL   string `env:"REDIS_URL"`
	LogLevel   string `env:"LOG_LEVEL" default:"info"`
	LogFormat  string `env:"LOG_FORMAT" default:"text"`

	RequestTimeout time.Duration `env:"REQUEST_TIMEOUT" default:"10s"`
	SolveTimeout   time.Duration `env:"SOLVE_TIMEOUT" default:"30s"` // server-side solver runs up to 5s per attempt
	SnapshotTTL    time.Duration `env:"SNAPSHOT_TTL" default:"24h"`

	ReceiveCommand string `env:"TRANSFER_RECEIVE_COMMAND" default:"wormhole receive"`
	AllowedOrigins string `env:"WS_ALLOWED_ORIGINS"` // comma-separated; empty allows same-origin only

	APIRateLimit float64 `env:"API_RATE_LIMIT" default:"20"`
	APIRateBurst int     `env:"API_RATE_BURST" default:"40"`

	MaxConnections   int     `env:"WS_MAX_CONNECTIONS" default:"100"`
	MaxConnectionsIP int     `env:"WS_MAX_CONNECTIONS_PER_IP" default:"10"`
	ConnectRate      float64 `env:"WS_CONNECT_RATE" default:"5"`
	ConnectBurst     int     `env:"WS_CONNECT_BURST" default:"10"`
}

func Load() (*Config, error) {
	if err := godotenv.Load(); err != nil {
		slog.Info("No .env file found, using environment variables")
	}

	var cfg Config
	if err := env.Load(&cfg, nil); err != nil {
		return nil, fmt.Errorf("failed to load environment variables: %w", err)
	}

	if err := validate(&cfg); err != nil {
		return nil, err
	}

	return &cfg, nil
}

// Origins returns the configured WebSocket origins, trimmed and without empties.
func (c *Config) Origins() []string {
	var origins []string
	for _, o := range strings.Split(c.AllowedOrigins, ",") {
		if o = strings.TrimSpace(o); o != "" {
			origins = append(origins, o)
		}
	}
	return origins
}

func validate(cfg *Config) error {
	if cfg.ServiceURL == "" {
		return errors.New("PLANNER_SERVICE_URL is required")
	}

	u, err := url.Parse(cfg.ServiceURL)
	if err != nil {
		return fmt.Errorf("PLANNER_SERVICE_URL must be a valid URL: %w", err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return fmt.Errorf("PLANNER_SERVICE_URL must use http or https, got %q", u.Scheme)
	}
	if u.Host == "" {
		return errors.New("PLANNER_SERVICE_URL must include a host")
	}

	durations := map[string]time.Duration{
		"REQUEST_TIMEOUT": cfg.RequestTimeout,
		"SOLVE_TIMEOUT":   cfg.SolveTimeout,
		"SNAPSHOT_TTL":    cfg.SnapshotTTL,
	}
	for name, d := range durations {
		if d <= 0 {
			return fmt.Errorf("%s must be positive, got %s", name, d)
		}
	}

	if cfg.APIRateLimit <= 0 || cfg.APIRateBurst <= 0 {
		return errors.New("API_RATE_LIMIT and API_RATE_BURST must be positive")
	}

	if cfg.MaxConnections <= 0 || cfg.MaxConnectionsIP <= 0 || cfg.ConnectRate <= 0 || cfg.ConnectBurst <= 0 {
		return errors.New("WS_MAX_CONNECTIONS, WS_MAX_CONNECTIONS_PER_IP, WS_CONNECT_RATE and WS_CONNECT_BURST must be positive")
	}

	return nil
}
