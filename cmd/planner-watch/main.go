// Command planner-watch prints the planner snapshots stored in Redis, for
// operators following a mission without a browser.
package main

import (
	"context"
	"flag"
	"log"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/aleskucera/robot-mission-planner/internal/adapter/redis"
	"github.com/aleskucera/robot-mission-planner/internal/domain"
	"github.com/aleskucera/robot-mission-planner/internal/platform/logging"
)

const connectTimeout = 10 * time.Second

func main() {
	var (
		redisURL = flag.String("redis", os.Getenv("REDIS_URL"), "Redis URL (or set REDIS_URL env)")
		once     = flag.Bool("once", false, "Print the stored snapshot and exit")
		verbose  = flag.Bool("verbose", false, "Verbose logging")
	)
	flag.Parse()

	if *redisURL == "" {
		log.Fatal("Redis URL required (--redis or REDIS_URL env)")
	}

	logLevel := "info"
	if *verbose {
		logLevel = "debug"
	}
	logging.InitLogger(logLevel, "text")

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	connectCtx, cancel := context.WithTimeout(ctx, connectTimeout)
	rdb, err := redis.NewClient(connectCtx, *redisURL, nil)
	cancel()
	if err != nil {
		log.Fatalf("Failed to connect to Redis: %v", err)
	}
	defer rdb.Close()
	slog.Info("Connected to Redis", "url", sanitizeURL(*redisURL))

	store := redis.NewSnapshotStore(rdb, 0, nil)

	latest, err := store.Latest(ctx)
	if err != nil {
		log.Fatalf("Failed to read snapshot: %v", err)
	}
	if latest == nil {
		slog.Info("No snapshot stored")
	} else {
		logSnapshot(*latest)
	}
	if *once {
		return
	}

	snapshots, err := store.Subscribe(ctx)
	if err != nil {
		log.Fatalf("Failed to subscribe: %v", err)
	}
	for snap := range snapshots {
		logSnapshot(snap)
	}
	slog.Info("Stopped watching")
}

func logSnapshot(s domain.Snapshot) {
	attrs := []any{
		"taken_at", s.TakenAt.Format(time.RFC3339),
		"mode", s.Mode,
		"start", s.Counts.Start,
		"goal", s.Counts.Goal,
		"intermediate", s.Counts.Intermediate,
		"generation", s.Generation,
		"transfer", s.Transfer.Status,
	}
	if s.Path != nil {
		attrs = append(attrs, "path_points", len(s.Path.Points), "summary", s.Path.Summary)
	}
	if s.Transfer.Code != "" {
		attrs = append(attrs, "code", s.Transfer.Code)
	}
	if s.Solving || s.Clearing {
		attrs = append(attrs, "solving", s.Solving, "clearing", s.Clearing)
	}
	slog.Info("Snapshot", attrs...)
}

// sanitizeURL hides the password in a Redis URL for logging.
func sanitizeURL(url string) string {
	before, after, found := strings.Cut(url, "@")
	if !found {
		return url
	}
	scheme, rest, ok := strings.Cut(before, "://")
	if !ok {
		return url
	}
	user, _, hasPassword := strings.Cut(rest, ":")
	if !hasPassword {
		return url
	}
	return scheme + "://" + user + ":***@" + after
}
