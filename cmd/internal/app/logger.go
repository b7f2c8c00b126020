package app

import (
	"io"
	"log/slog"
	"os"
	"strings"

	"golang.org/x/term"
)

// Logger is the app-wide logger type (slog).
type Logger = *slog.Logger

// NewLogger creates the process logger and installs it as the slog default.
//
// format is "json", "pretty" or "auto"; auto picks pretty when stdout is a terminal.
func NewLogger(level, format string) *slog.Logger {
	tty := term.IsTerminal(int(os.Stdout.Fd())) // #nosec G115 -- file descriptors fit in int.
	log := slog.New(newLogHandler(os.Stdout, level, format, tty))
	slog.SetDefault(log)
	return log
}

func newLogHandler(w io.Writer, level, format string, tty bool) slog.Handler {
	opts := &slog.HandlerOptions{
		Level:     parseLogLevel(level),
		AddSource: true,
	}

	switch strings.ToLower(strings.TrimSpace(format)) {
	case "json":
		return slog.NewJSONHandler(w, opts)
	case "pretty":
		return newPrettyHandler(w, opts, tty && os.Getenv("NO_COLOR") == "")
	default:
		if tty {
			return newPrettyHandler(w, opts, os.Getenv("NO_COLOR") == "")
		}
		return slog.NewJSONHandler(w, opts)
	}
}

func parseLogLevel(level string) slog.Level {
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
