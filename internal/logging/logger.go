// Package logging provides structured logging for the metadata engine.
package logging

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"
)

// LogLevel represents different log levels.
type LogLevel int

const (
	LevelDebug LogLevel = iota
	LevelInfo
	LevelWarn
	LevelError
	LevelFatal
)

// String returns the string representation of the log level.
func (l LogLevel) String() string {
	switch l {
	case LevelDebug:
		return "DEBUG"
	case LevelInfo:
		return "INFO"
	case LevelWarn:
		return "WARN"
	case LevelError:
		return "ERROR"
	case LevelFatal:
		return "FATAL"
	default:
		return "UNKNOWN"
	}
}

// Logger is the structured logging interface used by every component.
type Logger interface {
	Debug(ctx context.Context, msg string, fields ...interface{})
	Info(ctx context.Context, msg string, fields ...interface{})
	Warn(ctx context.Context, err error, msg string, fields ...interface{})
	Error(ctx context.Context, err error, msg string, fields ...interface{})
	Fatal(ctx context.Context, err error, msg string, fields ...interface{})

	With(fields ...interface{}) Logger
	WithComponent(component string) Logger
}

// EngineLogger implements Logger on top of log/slog.
type EngineLogger struct {
	logger    *slog.Logger
	level     LogLevel
	component string
	fields    map[string]interface{}
}

// Config holds logger configuration.
type Config struct {
	Level      LogLevel
	Format     string // "json" or "text"
	Output     io.Writer
	TimeFormat string
	AddSource  bool
	Component  string
}

// DefaultConfig returns the default logger configuration.
func DefaultConfig() *Config {
	return &Config{
		Level:      LevelInfo,
		Format:     "text",
		Output:     os.Stdout,
		TimeFormat: time.RFC3339,
		AddSource:  true,
	}
}

// NewLogger creates a new structured logger.
func NewLogger(config *Config) *EngineLogger {
	if config == nil {
		config = DefaultConfig()
	}

	opts := &slog.HandlerOptions{
		Level:     slog.Level(config.Level - 1),
		AddSource: config.AddSource,
	}

	var handler slog.Handler
	if config.Format == "json" {
		handler = slog.NewJSONHandler(config.Output, opts)
	} else {
		handler = slog.NewTextHandler(config.Output, opts)
	}

	return &EngineLogger{
		logger:    slog.New(handler),
		level:     config.Level,
		component: config.Component,
		fields:    make(map[string]interface{}),
	}
}

func (l *EngineLogger) Debug(ctx context.Context, msg string, fields ...interface{}) {
	if l.level > LevelDebug {
		return
	}
	l.log(ctx, slog.LevelDebug, nil, msg, fields...)
}

func (l *EngineLogger) Info(ctx context.Context, msg string, fields ...interface{}) {
	if l.level > LevelInfo {
		return
	}
	l.log(ctx, slog.LevelInfo, nil, msg, fields...)
}

func (l *EngineLogger) Warn(ctx context.Context, err error, msg string, fields ...interface{}) {
	if l.level > LevelWarn {
		return
	}
	l.log(ctx, slog.LevelWarn, err, msg, fields...)
}

func (l *EngineLogger) Error(ctx context.Context, err error, msg string, fields ...interface{}) {
	if l.level > LevelError {
		return
	}
	l.log(ctx, slog.LevelError, err, msg, fields...)
}

// Fatal logs at ERROR level; it does not call os.Exit. The caller decides
// how to react to a fatal condition.
func (l *EngineLogger) Fatal(ctx context.Context, err error, msg string, fields ...interface{}) {
	l.log(ctx, slog.LevelError, err, msg, fields...)
}

func (l *EngineLogger) With(fields ...interface{}) Logger {
	newFields := make(map[string]interface{}, len(l.fields)+len(fields)/2)
	for k, v := range l.fields {
		newFields[k] = v
	}
	for i := 0; i+1 < len(fields); i += 2 {
		if key, ok := fields[i].(string); ok {
			newFields[key] = fields[i+1]
		}
	}
	return &EngineLogger{logger: l.logger, level: l.level, component: l.component, fields: newFields}
}

func (l *EngineLogger) WithComponent(component string) Logger {
	return &EngineLogger{logger: l.logger, level: l.level, component: component, fields: l.fields}
}

func (l *EngineLogger) log(ctx context.Context, level slog.Level, err error, msg string, fields ...interface{}) {
	if l.logger == nil {
		fmt.Fprintf(os.Stderr, "[ERROR] logger is nil - message: %s\n", msg)
		return
	}

	attrs := make([]slog.Attr, 0, len(l.fields)+len(fields)/2+2)
	if l.component != "" {
		attrs = append(attrs, slog.String("component", l.component))
	}
	if err != nil {
		attrs = append(attrs, slog.String("error", err.Error()))
	}
	for k, v := range l.fields {
		attrs = append(attrs, slog.Any(k, v))
	}
	for i := 0; i+1 < len(fields); i += 2 {
		if key, ok := fields[i].(string); ok && key != "" {
			value := fields[i+1]
			if str, isString := value.(string); isString {
				value = SanitizeForLog(str)
			}
			attrs = append(attrs, slog.Any(key, value))
		}
	}

	record := slog.NewRecord(time.Now(), level, msg, 0)
	record.AddAttrs(attrs...)
	if handler := l.logger.Handler(); handler != nil {
		if herr := handler.Handle(ctx, record); herr != nil {
			fmt.Fprintf(os.Stderr, "[ERROR] failed to write log: %v - original message: %s\n", herr, msg)
		}
	}
}

// FileLogger writes to a log file named for the day it was created. It does
// not rotate the file afterwards.
type FileLogger struct {
	*EngineLogger
	file     *os.File
	filePath string
}

// NewFileLogger creates a file-based logger writing to
// metaforge-<creation date>.log in logDir.
func NewFileLogger(config *Config, logDir string) (*FileLogger, error) {
	if config == nil {
		config = DefaultConfig()
	}
	if logDir == "" {
		return nil, fmt.Errorf("log directory cannot be empty")
	}

	cleanLogDir := filepath.Clean(logDir)
	if strings.Contains(cleanLogDir, "..") {
		return nil, fmt.Errorf("invalid log directory path: %s", logDir)
	}
	if err := os.MkdirAll(cleanLogDir, 0755); err != nil {
		return nil, fmt.Errorf("create log directory %s: %w", cleanLogDir, err)
	}

	fileName := fmt.Sprintf("metaforge-%s.log", time.Now().Format("2006-01-02"))
	filePath := filepath.Join(cleanLogDir, fileName)

	file, err := os.OpenFile(filePath, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0644)
	if err != nil {
		return nil, fmt.Errorf("open log file %s: %w", filePath, err)
	}

	fileConfig := *config
	fileConfig.Output = file

	return &FileLogger{EngineLogger: NewLogger(&fileConfig), file: file, filePath: filePath}, nil
}

// Close closes the underlying log file.
func (f *FileLogger) Close() error {
	if f.file != nil {
		if err := f.file.Close(); err != nil {
			return fmt.Errorf("close log file %s: %w", f.filePath, err)
		}
		f.file = nil
	}
	return nil
}

// SanitizeForLog redacts values that look like secrets and truncates long strings.
func SanitizeForLog(data string) string {
	sensitive := []string{"password", "token", "secret", "key", "auth"}
	lower := strings.ToLower(data)
	for _, word := range sensitive {
		if strings.Contains(lower, word) {
			return "[REDACTED]"
		}
	}
	if len(data) > 1000 {
		return data[:1000] + "...[TRUNCATED]"
	}
	return data
}

// PerfLogger tracks the duration of a single operation.
type PerfLogger struct {
	Logger
	startTime time.Time
	operation string
}

// StartOperation begins performance tracking for operation.
func (l *EngineLogger) StartOperation(operation string) *PerfLogger {
	return &PerfLogger{Logger: l.With("operation", operation), startTime: time.Now(), operation: operation}
}

// End completes performance tracking and logs the duration.
func (p *PerfLogger) End(ctx context.Context) {
	duration := time.Since(p.startTime)
	p.Info(ctx, "operation completed", "duration_ms", duration.Milliseconds())
}

// EndWithError completes performance tracking and logs the failure.
func (p *PerfLogger) EndWithError(ctx context.Context, err error) {
	duration := time.Since(p.startTime)
	p.Error(ctx, err, "operation failed", "duration_ms", duration.Milliseconds())
}

// NewTestLogger returns a Logger that discards output, for use in tests.
func NewTestLogger() Logger {
	return NewLogger(&Config{Level: LevelDebug, Format: "text", Output: io.Discard, TimeFormat: time.RFC3339})
}
