package logger

import (
	"log/slog"
	"os"
)

// New returns the process-wide structured logger. Level comes from the
// environment so deployments can turn on debug logging without a rebuild.
func New() *slog.Logger {
	level := slog.LevelInfo
	if os.Getenv("LOG_LEVEL") == "debug" {
		level = slog.LevelDebug
	}
	return slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: level}))
}
