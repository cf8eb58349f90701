package logging

import (
	"log/slog"
	"os"
	"strings"
)

// New builds the process-wide JSON logger. Every record carries the service
// name; pipeline stages attach their own component via WithComponent.
func New(service, level string) *slog.Logger {
	handler := slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: ParseLevel(level),
	})
	return slog.New(handler).With("service", service)
}

// WithComponent scopes a logger to one pipeline stage (retriever, processor,
// queue) so records can be filtered per stage.
func WithComponent(log *slog.Logger, component string) *slog.Logger {
	if log == nil {
		log = slog.Default()
	}
	return log.With("component", component)
}

// ParseLevel accepts slog's level names case-insensitively plus the common
// "warning" spelling. Anything unrecognized falls back to info.
func ParseLevel(level string) slog.Level {
	normalized := strings.TrimSpace(level)
	if strings.EqualFold(normalized, "warning") {
		return slog.LevelWarn
	}

	var parsed slog.Level
	if err := parsed.UnmarshalText([]byte(normalized)); err != nil {
		return slog.LevelInfo
	}
	return parsed
}
