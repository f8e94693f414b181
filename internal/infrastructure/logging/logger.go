package logging

import (
	"io"
	"log/slog"
	"os"
	"strings"

	"github.com/nerrad567/astroconsole/internal/infrastructure/config"
)

const (
	// serviceName is attached to every log record.
	serviceName = "astroconsole"

	logFilePermissions = 0o640
)

// Logger wraps slog.Logger with astroconsole default fields.
//
// Thread Safety:
//   - All methods are safe for concurrent use from multiple goroutines.
type Logger struct {
	*slog.Logger
}

// New creates a Logger for cfg. Output is "stdout", "stderr" or a file path
// opened for appending. A file that cannot be opened falls back to stderr
// and the failure is logged as the first record.
func New(cfg config.LoggingConfig, version string) *Logger {
	w, openErr := openOutput(cfg.Output)
	logger := NewWithWriter(cfg, version, w)
	if openErr != nil {
		logger.Warn("log file unavailable, writing to stderr", "output", cfg.Output, "error", openErr)
	}
	return logger
}

// openOutput resolves the output setting. The file stays open for the life
// of the process.
func openOutput(output string) (io.Writer, error) {
	switch strings.ToLower(output) {
	case "", "stdout":
		return os.Stdout, nil
	case "stderr":
		return os.Stderr, nil
	}
	f, err := os.OpenFile(output, os.O_CREATE|os.O_WRONLY|os.O_APPEND, logFilePermissions) //nolint:gosec // path from operator config
	if err != nil {
		return os.Stderr, err
	}
	return f, nil
}

// NewWithWriter creates a Logger that writes to w, ignoring cfg.Output.
func NewWithWriter(cfg config.LoggingConfig, version string, w io.Writer) *Logger {
	opts := &slog.HandlerOptions{
		Level: parseLevel(cfg.Level),
	}

	var handler slog.Handler
	switch strings.ToLower(cfg.Format) {
	case "json":
		handler = slog.NewJSONHandler(w, opts)
	default:
		handler = slog.NewTextHandler(w, opts)
	}

	handler = handler.WithAttrs([]slog.Attr{
		slog.String("service", serviceName),
		slog.String("version", version),
	})

	return &Logger{Logger: slog.New(handler)}
}

// parseLevel converts a string log level to slog.Level.
//
// Supported levels: debug, info, warn, error. Defaults to info.
func parseLevel(level string) slog.Level {
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

// With returns a new Logger with additional default attributes.
//
// Example:
//
//	linkLogger := logger.With("component", "indi")
//	linkLogger.Info("connected") // includes component=indi
func (l *Logger) With(args ...any) *Logger {
	return &Logger{Logger: l.Logger.With(args...)}
}

// Default creates a logger for use before configuration is loaded.
// It writes text records to stderr at info level.
func Default() *Logger {
	return New(config.LoggingConfig{
		Level:  "info",
		Format: "text",
		Output: "stderr",
	}, "dev")
}

// Discard returns a logger that drops every record. Intended for tests.
func Discard() *Logger {
	return &Logger{Logger: slog.New(slog.NewTextHandler(io.Discard, nil))}
}
