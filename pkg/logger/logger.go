// Package logger configures the process-wide slog default from the logging
// section of the application configuration.
package logger

import (
	"log/slog"
	"os"

	"github.com/gpoulter/mscanner-sub000/pkg/config"
)

// Setup installs the default slog logger. Format "json" selects the JSON
// handler, anything else the text handler. Logs go to stderr so report
// output on stdout stays machine-readable.
func Setup(cfg config.LoggingConfig) {
	opts := &slog.HandlerOptions{Level: parseLevel(cfg.Level)}
	var handler slog.Handler
	switch cfg.Format {
	case "json":
		handler = slog.NewJSONHandler(os.Stderr, opts)
	default:
		handler = slog.NewTextHandler(os.Stderr, opts)
	}
	slog.SetDefault(slog.New(handler))
}

// WithComponent returns the default logger tagged with a component name.
func WithComponent(component string) *slog.Logger {
	return slog.Default().With("component", component)
}

func parseLevel(level string) slog.Level {
	switch level {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
