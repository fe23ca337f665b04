// Package logging configures the process-wide slog logger.
package logging

import (
	"io"
	"log/slog"
	"os"
	"strings"

	"github.com/aleskucera/robot-mission-planner/internal/platform/correlation"
	"github.com/aleskucera/robot-mission-planner/internal/platform/version"
)

// InitLogger installs the default logger on stdout.
// level is one of debug, info, warn, error (default info); format is json or
// text (default text).
func InitLogger(level, format string) {
	slog.SetDefault(New(os.Stdout, level, format))
}

// New builds a correlation-aware logger writing to w. Every record carries the
// service version; debug level adds source locations.
func New(w io.Writer, level, format string) *slog.Logger {
	lvl := parseLevel(level)
	opts := &slog.HandlerOptions{
		Level:     lvl,
		AddSource: lvl == slog.LevelDebug,
	}

	var handler slog.Handler
	if strings.EqualFold(format, "json") {
		handler = slog.NewJSONHandler(w, opts)
	} else {
		handler = slog.NewTextHandler(w, opts)
	}

	return slog.New(correlation.NewHandler(handler)).With("version", version.Get().Version)
}

func parseLevel(level string) slog.Level {
	var lvl slog.Level
	if err := lvl.UnmarshalText([]byte(level)); err != nil {
		return slog.LevelInfo
	}
	return lvl
}
