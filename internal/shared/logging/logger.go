package logging

import (
	"io"
	"log/slog"
	"os"
	"strings"
)

// Config captures the settings used to build the process logger.
type Config struct {
	// Level is the textual log level (trace, debug, info, warn, error).
	Level string
	// Format selects the encoding: json or text.
	Format string
	// AddSource toggles slog's source attribution.
	AddSource bool
}

// LevelTrace sits below debug; the gateway logs every inbound frame at it.
const LevelTrace = slog.LevelDebug - 2

// ParseLevel converts textual levels into slog levels, defaulting to info.
func ParseLevel(raw string) slog.Level {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "debug", "dbg":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error", "err":
		return slog.LevelError
	case "trace":
		return LevelTrace
	default:
		return slog.LevelInfo
	}
}

// New builds a slog.Logger for w using cfg.
func New(w io.Writer, cfg Config) *slog.Logger {
	if w == nil {
		w = os.Stdout
	}
	opts := &slog.HandlerOptions{Level: ParseLevel(cfg.Level), AddSource: cfg.AddSource}
	switch strings.ToLower(strings.TrimSpace(cfg.Format)) {
	case "json":
		return slog.New(slog.NewJSONHandler(w, opts))
	default:
		return slog.New(slog.NewTextHandler(w, opts))
	}
}

// Component returns the default logger tagged with a component attribute.
// It is resolved on every call so loggers installed after package init apply.
func Component(name string) *slog.Logger {
	return slog.Default().With(slog.String("component", name))
}
