// Package logger provides a structured logging interface backed by zerolog and
// an append-only event log whose file is rotated once it grows past a size
// limit.
package logger

import (
	"fmt"
	"io"
	"os"

	"github.com/rs/zerolog"
)

// Field represents a key-value pair for structured log output.
// Use Fields with Logger methods to attach contextual data to log entries.
type Field struct {
	Key   string
	Value any
}

// Logger is an interface for structured logging. Implementations write log
// entries at different levels (Debug, Info, Warn, Error) and support
// attaching structured fields. Loggers may be derived with With for
// connection-scoped or component-scoped fields.
type Logger interface {
	// Debug logs a message at debug level with optional structured fields.
	Debug(msg string, fields ...Field)

	// Info logs a message at info level with optional structured fields.
	Info(msg string, fields ...Field)

	// Warn logs a message at warn level with optional structured fields.
	Warn(msg string, fields ...Field)

	// Error logs a message at error level with optional structured fields.
	Error(msg string, fields ...Field)

	// With returns a new Logger that includes the given fields in all
	// subsequent log entries. The original Logger is unchanged.
	//
	// Parameters:
	//   - fields: Key-value pairs to attach to the derived logger
	//
	// Returns:
	//   - A new Logger with the specified fields
	With(fields ...Field) Logger

	// GetLoggerInstance returns the underlying logger implementation (e.g.
	// zerolog.Logger) for advanced configuration or integration.
	GetLoggerInstance() interface{}

	// Close releases resources held by the logger (e.g. file handles).
	// It is safe to call multiple times.
	Close() error
}

// zerologLogger is the zerolog-based implementation of Logger.
type zerologLogger struct {
	logger     zerolog.Logger
	closer     io.Closer
	ownsCloser bool
}

// NewZerologLogger builds a Logger that wraps the given zerolog.Logger,
// adding a service name and timestamp to all entries and filtering by level.
//
// Parameters:
//   - l: The zerolog.Logger to wrap
//   - serviceName: Name of the service, added as a field to every log entry
//   - level: Minimum level to log (e.g. zerolog.InfoLevel)
//
// Returns:
//   - A Logger that writes through the given zerolog instance
func NewZerologLogger(l zerolog.Logger, serviceName string, level zerolog.Level) Logger {
	return &zerologLogger{
		logger: l.With().Str("service", serviceName).Timestamp().Logger().Level(level),
	}
}

// NewZerologFileLogger creates a Logger that writes to both stdout and a
// size-rotated file at path.
//
// Parameters:
//   - serviceName: Name of the service, added to every log entry
//   - path: Log file path; its directory is created if missing
//   - maxBytes: Size at which the file is rotated; see NewRotatingFileWriter
//   - level: Minimum level to log
//
// Returns:
//   - A Logger that writes to stdout and the rotating file
//   - An error if the file could not be opened
func NewZerologFileLogger(serviceName string, path string, maxBytes int64, level zerolog.Level) (Logger, error) {
	fileWriter, err := NewRotatingFileWriter(path, maxBytes)
	if err != nil {
		return nil, fmt.Errorf("failed to create file writer: %w", err)
	}

	multi := io.MultiWriter(os.Stdout, fileWriter)
	return &zerologLogger{
		logger:     zerolog.New(multi).With().Str("service", serviceName).Timestamp().Logger().Level(level),
		closer:     fileWriter,
		ownsCloser: true,
	}, nil
}

// NewNopLogger returns a Logger that discards everything.
func NewNopLogger() Logger {
	return &zerologLogger{logger: zerolog.Nop()}
}

// ParseLevel converts a level name (debug, info, warn, error) into a zerolog
// level, defaulting to info for an empty string.
func ParseLevel(name string) (zerolog.Level, error) {
	if name == "" {
		return zerolog.InfoLevel, nil
	}

	level, err := zerolog.ParseLevel(name)
	if err != nil {
		return zerolog.NoLevel, fmt.Errorf("parsing log level %q: %w", name, err)
	}

	return level, nil
}

// Debug implements Logger.
func (z *zerologLogger) Debug(msg string, fields ...Field) {
	z.logger.Debug().Fields(toMap(fields)).Msg(msg)
}

// Info implements Logger.
func (z *zerologLogger) Info(msg string, fields ...Field) {
	z.logger.Info().Fields(toMap(fields)).Msg(msg)
}

// Warn implements Logger.
func (z *zerologLogger) Warn(msg string, fields ...Field) {
	z.logger.Warn().Fields(toMap(fields)).Msg(msg)
}

// Error implements Logger.
func (z *zerologLogger) Error(msg string, fields ...Field) {
	z.logger.Error().Fields(toMap(fields)).Msg(msg)
}

// With implements Logger.
func (z *zerologLogger) With(fields ...Field) Logger {
	return &zerologLogger{
		logger: z.logger.With().Fields(toMap(fields)).Logger(),
		closer: z.closer,
	}
}

// GetLoggerInstance implements Logger.
func (z *zerologLogger) GetLoggerInstance() interface{} {
	return z.logger
}

// Close implements Logger.
func (z *zerologLogger) Close() error {
	if z.closer != nil && z.ownsCloser {
		return z.closer.Close()
	}

	return nil
}

// toMap converts a slice of Field into a map for zerolog.
func toMap(fields []Field) map[string]any {
	if len(fields) == 0 {
		return nil
	}

	m := make(map[string]any, len(fields))
	for _, f := range fields {
		m[f.Key] = f.Value
	}

	return m
}
