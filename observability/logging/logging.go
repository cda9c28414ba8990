package logging

import (
	"log"
	"log/slog"
	"os"
	"strings"
)

// Setup configures the process for structured JSON logging and returns the
// base logger. Every line carries the service name; the standard library
// logger is bridged so third-party packages share the same stream.
func Setup(service string, level slog.Level) *slog.Logger {
	handler := slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: level,
		ReplaceAttr: func(groups []string, attr slog.Attr) slog.Attr {
			switch attr.Key {
			case slog.TimeKey:
				return slog.Attr{Key: "timestamp", Value: attr.Value}
			case slog.LevelKey:
				return slog.String("severity", strings.ToUpper(attr.Value.String()))
			case slog.MessageKey:
				return slog.Attr{Key: "message", Value: attr.Value}
			}
			return attr
		},
	})

	serviceAttr := slog.String("service", strings.TrimSpace(service))
	base := slog.New(handler).With(serviceAttr)
	slog.SetDefault(base)

	stdBridge := slog.NewLogLogger(handler.WithAttrs([]slog.Attr{serviceAttr}), slog.LevelInfo)
	stdBridge.SetFlags(0)
	log.SetOutput(stdBridge.Writer())
	log.SetFlags(0)
	log.SetPrefix("")

	return base
}

// ParseLevel maps a config string to a slog level, defaulting to info.
func ParseLevel(s string) slog.Level {
	switch strings.ToLower(strings.TrimSpace(s)) {
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
