package logging

import (
	"io"
	"log/slog"
	"os"
	"strings"

	"github.com/farsight-labs/farsight-core/internal/infrastructure/config"
)

// serviceName tags every record so aggregated logs from a fleet of
// cores can be filtered back apart.
const serviceName = "farsight"

// Logger is the structured logger threaded through the core. It embeds
// slog.Logger, so call sites use the standard Info/Warn/Error/Debug
// methods; subsystems derive their own via With("component", ...).
//
// Safe for concurrent use.
type Logger struct {
	*slog.Logger
}

// New builds a Logger from the logging section of config.yaml. Format
// "text" is for watching a dev core in a terminal; anything else gets
// JSON for ingestion. Every record carries service and version fields.
func New(cfg config.LoggingConfig, version string) *Logger {
	return newLogger(cfg, version, writerFor(cfg.Output))
}

// newLogger is the construction path shared by New and the tests, which
// substitute a buffer for the writer.
func newLogger(cfg config.LoggingConfig, version string, w io.Writer) *Logger {
	opts := &slog.HandlerOptions{
		Level: levelFor(cfg.Level),
	}

	var handler slog.Handler
	switch strings.ToLower(cfg.Format) {
	case "text":
		handler = slog.NewTextHandler(w, opts)
	default:
		handler = slog.NewJSONHandler(w, opts)
	}

	handler = handler.WithAttrs([]slog.Attr{
		slog.String("service", serviceName),
		slog.String("version", version),
	})

	return &Logger{Logger: slog.New(handler)}
}

// writerFor maps the configured output name to a writer. Unknown names
// fall back to stdout rather than failing startup over a typo.
func writerFor(output string) io.Writer {
	if strings.ToLower(output) == "stderr" {
		return os.Stderr
	}
	return os.Stdout
}

// levelFor maps a config level string to a slog.Level. Unrecognised
// values default to info.
func levelFor(level string) slog.Level {
	switch strings.ToLower(level) {
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

// With returns a child Logger carrying additional default attributes:
//
//	relayLog := log.With("component", "relay")
//	relayLog.Info("attached") // includes component=relay
func (l *Logger) With(args ...any) *Logger {
	return &Logger{Logger: l.Logger.With(args...)}
}

// Default returns a JSON logger at info level for the window between
// process start and config load. Records carry version "dev" so early
// startup lines are distinguishable from configured ones.
func Default() *Logger {
	return New(config.LoggingConfig{
		Level:  "info",
		Format: "json",
		Output: "stdout",
	}, "dev")
}
