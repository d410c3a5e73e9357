package logging

import (
	"context"
	"fmt"
	"io"
	"os"
	"sync"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/brightfield-io/gomodbus/common"
)

// Logger implements common.LoggerInterface and common.LoggerInterfaceHexdump on
// top of zap. Level filtering is done here rather than via zap's own level
// enabler so GetLevel/SetLevel can be mutated at runtime without rebuilding
// the underlying core.
type Logger struct {
	mu     sync.Mutex
	level  common.LogLevel
	writer io.Writer
	fields map[string]interface{}
	zap    *zap.Logger
}

// Option is a function that configures a Logger
type Option func(*Logger)

// WithLevel sets the log level
func WithLevel(level common.LogLevel) Option {
	return func(l *Logger) {
		l.level = level
	}
}

// WithWriter sets the writer for the logger
func WithWriter(writer io.Writer) Option {
	return func(l *Logger) {
		l.writer = writer
	}
}

// WithFields adds fields to the logger
func WithFields(fields map[string]interface{}) Option {
	return func(l *Logger) {
		if l.fields == nil {
			l.fields = make(map[string]interface{})
		}
		for k, v := range fields {
			l.fields[k] = v
		}
	}
}

// NewLogger creates a new logger with the given options.
// Ref: zap console encoder configuration is the same shape used for the
// transport/server demo binaries' structured logging.
func NewLogger(options ...Option) *Logger {
	logger := &Logger{
		level:  common.LevelInfo,
		writer: os.Stdout,
		fields: make(map[string]interface{}),
	}

	for _, option := range options {
		option(logger)
	}

	encoderCfg := zap.NewProductionEncoderConfig()
	encoderCfg.EncodeTime = zapcore.ISO8601TimeEncoder
	encoderCfg.TimeKey = "ts"
	encoderCfg.LevelKey = "level"
	encoderCfg.MessageKey = "msg"

	core := zapcore.NewCore(
		zapcore.NewConsoleEncoder(encoderCfg),
		zapcore.AddSync(logger.writer),
		zapcore.DebugLevel, // gating happens in Logger, not in the core
	)
	logger.zap = zap.New(core)

	return logger
}

func (l *Logger) zapFields() []zap.Field {
	fields := make([]zap.Field, 0, len(l.fields))
	for k, v := range l.fields {
		fields = append(fields, zap.Any(k, v))
	}
	return fields
}

// Trace logs a trace message. zap has no trace level, so this maps to Debug.
func (l *Logger) Trace(ctx context.Context, format string, args ...interface{}) {
	if l.level <= common.LevelTrace {
		l.zap.Debug(fmt.Sprintf(format, args...), l.zapFields()...)
	}
}

// Debug logs a debug message
func (l *Logger) Debug(ctx context.Context, format string, args ...interface{}) {
	if l.level <= common.LevelDebug {
		l.zap.Debug(fmt.Sprintf(format, args...), l.zapFields()...)
	}
}

// Info logs an info message
func (l *Logger) Info(ctx context.Context, format string, args ...interface{}) {
	if l.level <= common.LevelInfo {
		l.zap.Info(fmt.Sprintf(format, args...), l.zapFields()...)
	}
}

// Warn logs a warning message
func (l *Logger) Warn(ctx context.Context, format string, args ...interface{}) {
	if l.level <= common.LevelWarn {
		l.zap.Warn(fmt.Sprintf(format, args...), l.zapFields()...)
	}
}

// Error logs an error message
func (l *Logger) Error(ctx context.Context, format string, args ...interface{}) {
	if l.level <= common.LevelError {
		l.zap.Error(fmt.Sprintf(format, args...), l.zapFields()...)
	}
}

// WithFields returns a new logger with the given fields merged in
func (l *Logger) WithFields(fields map[string]interface{}) common.LoggerInterface {
	return NewLogger(
		WithLevel(l.level),
		WithWriter(l.writer),
		WithFields(l.fields),
		WithFields(fields),
	)
}

// GetLevel returns the current log level
func (l *Logger) GetLevel() common.LogLevel {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.level
}

// SetLevel sets the log level
func (l *Logger) SetLevel(level common.LogLevel) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.level = level
}

// Hexdump outputs a hexdump of the given data at TRACE level.
// Format: offset   00 01 02 03 04 05 06 07 | 08 09 0a 0b 0c 0d 0e 0f
func (l *Logger) Hexdump(ctx context.Context, data []byte) {
	if l.level > common.LevelTrace {
		return
	}

	hexdump := "offset   00 01 02 03 04 05 06 07 | 08 09 0a 0b 0c 0d 0e 0f\n"
	for i := 0; i < len(data); i += 16 {
		hexdump += fmt.Sprintf("%08x", i)
		for j := 0; j < 16; j++ {
			if j == 8 {
				hexdump += " |"
			}
			hexdump += " "
			if i+j < len(data) {
				hexdump += fmt.Sprintf("%02x", data[i+j])
			} else {
				hexdump += "  "
			}
		}
		hexdump += "\n"
	}

	l.zap.Debug(hexdump, l.zapFields()...)
}

// Sync flushes any buffered log entries; callers should defer it after
// constructing a Logger for long-running processes.
func (l *Logger) Sync() error {
	return l.zap.Sync()
}
