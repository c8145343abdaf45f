package logger

import (
	"io"
	"log/slog"
	"os"
	"strings"
)

// Initialize installs a JSON slog handler on stderr as the process-wide default
// logger. Stdout is reserved for command output.
func Initialize(level slog.Level) {
	InitializeTo(os.Stderr, level)
}

// InitializeTo is Initialize with an explicit sink. Tests point it at a buffer.
func InitializeTo(w io.Writer, level slog.Level) {
	logger := slog.New(slog.NewJSONHandler(w, &slog.HandlerOptions{
		Level: level,
	}))

	slog.SetDefault(logger)
}

// ParseLevel maps the config/flag value onto a slog level, defaulting to info.
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

func Named(name string) *slog.Logger {
	logger := slog.Default()
	if logger == nil {
		return nil
	}

	return logger.With("name", name)
}
