package logger

import (
	"log/slog"
	"os"
)

// New returns the service logger. JSON output so log aggregation stays
// structured; level defaults to info and can be raised via HAVEN_LOG_DEBUG.
func New() *slog.Logger {
	level := slog.LevelInfo
	if os.Getenv("HAVEN_LOG_DEBUG") == "true" {
		level = slog.LevelDebug
	}
	return slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: level}))
}
