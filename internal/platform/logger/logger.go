package logger

import (
	"log/slog"
	"os"
	"strings"
)

// New returns the process-wide structured logger. Level comes from
// ATTESTO_LOG_LEVEL (debug, info, warn, error); output is JSON on stdout.
func New() *slog.Logger {
	level := slog.LevelInfo
	switch strings.ToLower(os.Getenv("ATTESTO_LOG_LEVEL")) {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	}

	handler := slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: level})
	return slog.New(handler).With("service", "attesto")
}
