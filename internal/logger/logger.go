// Package logger builds the process zerolog logger and carries request
// scoped loggers and correlation ids through contexts.
package logger

import (
	"context"
	"io"
	"os"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// ServiceName is attached to every entry as the "service" field.
const ServiceName = "wa-commerce"

// Output modes for LoggingConfig.Output.
const (
	OutputStdout  = "stdout"
	OutputConsole = "console"
	OutputFile    = "file"
	OutputTee     = "tee" // JSON to stdout and to the rotating file
)

// LoggingConfig mirrors config.LoggingConfig to avoid a circular import.
type LoggingConfig struct {
	Level      string
	Output     string
	FilePath   string
	MaxSizeMB  int
	MaxFiles   int
	MaxAgeDays int
}

type contextKey string

const (
	loggerKey        contextKey = "logger"
	correlationIDKey contextKey = "correlation_id"
)

// New creates a JSON stdout logger at the given level. An invalid level
// falls back to info.
func New(level string) zerolog.Logger {
	return NewFromConfig(LoggingConfig{Level: level})
}

// NewFromConfig creates the process logger for cfg.Output:
//   - "file": rotating file via lumberjack
//   - "tee": stdout and the rotating file
//   - "console": human readable stderr output for local runs
//   - anything else: JSON to stdout
func NewFromConfig(cfg LoggingConfig) zerolog.Logger {
	lvl, err := zerolog.ParseLevel(cfg.Level)
	if err != nil || cfg.Level == "" {
		lvl = zerolog.InfoLevel
	}

	return zerolog.New(writerFor(cfg)).
		Level(lvl).
		With().
		Timestamp().
		Str("service", ServiceName).
		Logger()
}

func writerFor(cfg LoggingConfig) io.Writer {
	file := func() io.Writer {
		return NewFileWriter(FileConfig{
			Path:       cfg.FilePath,
			MaxSizeMB:  cfg.MaxSizeMB,
			MaxFiles:   cfg.MaxFiles,
			MaxAgeDays: cfg.MaxAgeDays,
		})
	}

	switch cfg.Output {
	case OutputFile:
		return file()
	case OutputTee:
		return zerolog.MultiLevelWriter(os.Stdout, file())
	case OutputConsole:
		return zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: "15:04:05"}
	default:
		return os.Stdout
	}
}

// WithLogger stores a logger in the context.
func WithLogger(ctx context.Context, logger zerolog.Logger) context.Context {
	return context.WithValue(ctx, loggerKey, logger)
}

// WithCorrelationID stores a correlation ID in the context.
func WithCorrelationID(ctx context.Context, correlationID string) context.Context {
	return context.WithValue(ctx, correlationIDKey, correlationID)
}

// CorrelationIDFromContext returns the correlation ID of ctx, or "".
func CorrelationIDFromContext(ctx context.Context) string {
	if id, ok := ctx.Value(correlationIDKey).(string); ok {
		return id
	}
	return ""
}

// FromContext returns the logger stored in ctx, tagged with the correlation
// ID when one is present. Without a stored logger it returns an info-level
// stdout logger.
func FromContext(ctx context.Context) zerolog.Logger {
	log, ok := ctx.Value(loggerKey).(zerolog.Logger)
	if !ok {
		log = New("info")
	}
	if id := CorrelationIDFromContext(ctx); id != "" {
		log = log.With().Str("correlation_id", id).Logger()
	}
	return log
}

// NewCorrelationID generates a new UUID-based correlation ID.
func NewCorrelationID() string {
	return uuid.New().String()
}

// MaskCredential hides a gateway credential for logs and metric labels,
// keeping only the last four characters.
func MaskCredential(credential string) string {
	if len(credential) <= 4 {
		return "****"
	}
	return "****" + credential[len(credential)-4:]
}

// ForCredential returns a child logger tagged with the masked credential and,
// when set, the account it belongs to.
func ForCredential(log zerolog.Logger, accountID, credential string) zerolog.Logger {
	c := log.With().Str("credential", MaskCredential(credential))
	if accountID != "" {
		c = c.Str("account_id", accountID)
	}
	return c.Logger()
}
