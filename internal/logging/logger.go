// Package logging provides the structured logger used across roaster.
package logging

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
	"time"
)

// LogLevel is the minimum severity a logger emits. The values line up
// with slog's, so a LogLevel can be handed to slog directly.
type LogLevel int

const (
	LevelDebug = LogLevel(slog.LevelDebug)
	LevelInfo  = LogLevel(slog.LevelInfo)
	LevelWarn  = LogLevel(slog.LevelWarn)
	LevelError = LogLevel(slog.LevelError)
)

func (l LogLevel) String() string { return slog.Level(l).String() }

// Level implements slog.Leveler.
func (l LogLevel) Level() slog.Level { return slog.Level(l) }

var levelNames = map[string]LogLevel{
	"":        LevelInfo,
	"debug":   LevelDebug,
	"info":    LevelInfo,
	"warn":    LevelWarn,
	"warning": LevelWarn,
	"error":   LevelError,
}

// ParseLevel converts a --log-level value into a LogLevel.
func ParseLevel(s string) (LogLevel, error) {
	if level, ok := levelNames[strings.ToLower(strings.TrimSpace(s))]; ok {
		return level, nil
	}
	return LevelInfo, fmt.Errorf("unknown log level %q", s)
}

// Logger is the logging surface every component receives. Fields are
// alternating key/value pairs; a dangling key or a non-string key is
// dropped.
type Logger interface {
	Debug(ctx context.Context, msg string, fields ...interface{})
	Info(ctx context.Context, msg string, fields ...interface{})
	Warn(ctx context.Context, err error, msg string, fields ...interface{})
	Error(ctx context.Context, err error, msg string, fields ...interface{})

	With(fields ...interface{}) Logger
	WithComponent(component string) Logger
}

// LoggerConfig holds logger configuration
type LoggerConfig struct {
	Level     LogLevel
	Format    string // "json" or "text"
	Output    io.Writer
	Component string
}

// DefaultConfig logs text at info level to stderr.
func DefaultConfig() *LoggerConfig {
	return &LoggerConfig{Level: LevelInfo, Format: "text", Output: os.Stderr}
}

// StructuredLogger implements Logger on top of log/slog.
type StructuredLogger struct {
	base      *slog.Logger
	component string
}

// NewLogger creates a logger from config. A nil config means DefaultConfig.
func NewLogger(config *LoggerConfig) *StructuredLogger {
	if config == nil {
		config = DefaultConfig()
	}
	out := config.Output
	if out == nil {
		out = os.Stderr
	}

	opts := &slog.HandlerOptions{Level: config.Level}
	var handler slog.Handler
	if strings.EqualFold(config.Format, "json") {
		handler = slog.NewJSONHandler(out, opts)
	} else {
		handler = slog.NewTextHandler(out, opts)
	}
	return &StructuredLogger{base: slog.New(handler), component: config.Component}
}

// Discard returns a logger that drops every record.
func Discard() *StructuredLogger {
	return NewLogger(&LoggerConfig{Level: LevelError + 1, Output: io.Discard})
}

func (l *StructuredLogger) Debug(ctx context.Context, msg string, fields ...interface{}) {
	l.emit(ctx, slog.LevelDebug, nil, msg, fields)
}

func (l *StructuredLogger) Info(ctx context.Context, msg string, fields ...interface{}) {
	l.emit(ctx, slog.LevelInfo, nil, msg, fields)
}

func (l *StructuredLogger) Warn(ctx context.Context, err error, msg string, fields ...interface{}) {
	l.emit(ctx, slog.LevelWarn, err, msg, fields)
}

func (l *StructuredLogger) Error(ctx context.Context, err error, msg string, fields ...interface{}) {
	l.emit(ctx, slog.LevelError, err, msg, fields)
}

// With returns a logger that adds fields to every record.
func (l *StructuredLogger) With(fields ...interface{}) Logger {
	return &StructuredLogger{base: l.base.With(attrs(fields)...), component: l.component}
}

// WithComponent returns a logger tagged with component, replacing any
// earlier tag.
func (l *StructuredLogger) WithComponent(component string) Logger {
	return &StructuredLogger{base: l.base, component: component}
}

func (l *StructuredLogger) emit(ctx context.Context, level slog.Level, err error, msg string, fields []interface{}) {
	if ctx == nil {
		ctx = context.Background()
	}
	if !l.base.Enabled(ctx, level) {
		return
	}

	args := make([]any, 0, len(fields)/2+2)
	if l.component != "" {
		args = append(args, slog.String("component", l.component))
	}
	if err != nil {
		args = append(args, slog.String("error", err.Error()))
	}
	l.base.Log(ctx, level, msg, append(args, attrs(fields)...)...)
}

func attrs(fields []interface{}) []any {
	out := make([]any, 0, len(fields)/2)
	for i := 0; i+1 < len(fields); i += 2 {
		if key, ok := fields[i].(string); ok {
			out = append(out, slog.Any(key, fields[i+1]))
		}
	}
	return out
}

// PerfLogger times one operation and logs how it ended.
type PerfLogger struct {
	Logger
	began time.Time
}

// StartOperation starts the clock for operation. Records logged through
// the returned value carry the operation name.
func StartOperation(logger Logger, operation string) *PerfLogger {
	return &PerfLogger{Logger: logger.With("operation", operation), began: time.Now()}
}

// Elapsed is the time since StartOperation.
func (p *PerfLogger) Elapsed() time.Duration {
	return time.Since(p.began)
}

// End logs success along with fields and the elapsed time.
func (p *PerfLogger) End(ctx context.Context, fields ...interface{}) {
	p.Info(ctx, "Operation completed", append(fields, p.timing()...)...)
}

// EndWithError logs failure with the elapsed time.
func (p *PerfLogger) EndWithError(ctx context.Context, err error) {
	p.Error(ctx, err, "Operation failed", p.timing()...)
}

func (p *PerfLogger) timing() []interface{} {
	d := p.Elapsed()
	return []interface{}{"duration_ms", d.Milliseconds(), "duration", d.String()}
}
