package logging

import (
	"log/slog"
	"os"
	"strings"
)

// New builds the daemon logger. Output goes to stderr so that mcp mode,
// which speaks its protocol over stdout, is never polluted by log lines.
func New(level string) *slog.Logger {
	handler := slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
		Level:     ParseLevel(level),
		AddSource: ParseLevel(level) == slog.LevelDebug,
	})
	return slog.New(handler)
}

// ParseLevel maps a config string onto a slog level. Unrecognized values
// fall back to info.
func ParseLevel(level string) slog.Level {
	switch strings.ToLower(strings.TrimSpace(level)) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
