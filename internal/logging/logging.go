// Package logging configures the process-wide structured logger. Both
// binaries log JSON to stdout so runs can be grepped and shipped as-is.
package logging

import (
	"fmt"
	"log/slog"
	"os"
)

// Setup installs the default JSON logger. Unknown level strings fall back
// to info rather than failing startup.
func Setup(level string) {
	var logLevel slog.Level
	switch level {
	case "debug":
		logLevel = slog.LevelDebug
	case "warn":
		logLevel = slog.LevelWarn
	case "error":
		logLevel = slog.LevelError
	default:
		logLevel = slog.LevelInfo
	}

	handler := slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: logLevel,
	})
	slog.SetDefault(slog.New(handler))
}

// Component returns a child logger tagged with the subsystem name.
func Component(name string) *slog.Logger {
	return slog.Default().With("component", name)
}

// Fatalf logs at error level and exits. For startup failures only; runtime
// errors flow back through return values.
func Fatalf(format string, args ...any) {
	slog.Error(fmt.Sprintf(format, args...))
	os.Exit(1)
}
