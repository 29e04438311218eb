// Package logger provides a global, Sugared Zap logger. It emits JSON logs to
// stdout by default and supports a human-readable console format for local runs.
package logger

import (
	"context"
	"os"
	"sync"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

var (
	// logger is the global SugaredLogger instance. It starts as a no-op so
	// packages can log before Init is called (tests, library use).
	logger = zap.NewNop().Sugar()

	// initOnce ensures the logger is only configured a single time.
	initOnce sync.Once
)

// config holds configuration options for the logger.
type config struct {
	level  string // the minimum log level (debug, info, warn, error)
	format string // json or console
}

// Option configures the logger before initialization.
type Option func(*config)

// WithLevel sets the minimum log level for the global logger.
func WithLevel(l string) Option {
	return func(c *config) {
		c.level = l
	}
}

// WithFormat selects the encoder: "json" (default) or "console".
func WithFormat(f string) Option {
	return func(c *config) {
		c.format = f
	}
}

// Init configures the global logger. Calling Init multiple times has no
// effect after the first successful initialization.
//
// Returns an error if parsing the log level fails.
func Init(opts ...Option) error {
	cfg := config{level: "info", format: "json"}
	for _, opt := range opts {
		opt(&cfg)
	}

	level, err := zapcore.ParseLevel(cfg.level)
	if err != nil {
		return err
	}

	initOnce.Do(func() {
		encoderCfg := zap.NewProductionEncoderConfig()
		encoderCfg.EncodeTime = zapcore.ISO8601TimeEncoder

		var encoder zapcore.Encoder
		if cfg.format == "console" {
			encoderCfg.EncodeLevel = zapcore.CapitalColorLevelEncoder
			encoder = zapcore.NewConsoleEncoder(encoderCfg)
		} else {
			encoder = zapcore.NewJSONEncoder(encoderCfg)
		}

		core := zapcore.NewCore(encoder, zapcore.AddSync(os.Stdout), level)
		logger = zap.New(core).Sugar()
	})

	return nil
}

// Sync flushes any buffered log entries. It should be called on application
// shutdown to ensure all logs are written out.
func Sync() error {
	return logger.Sync()
}

// Named returns a child logger tagged with a component name.
func Named(name string) *zap.SugaredLogger {
	return logger.Named(name)
}

// Debug logs a debug-level message with optional key/value context.
func Debug(ctx context.Context, msg string, keysAndValues ...any) {
	logger.Debugw(msg, keysAndValues...)
}

// Info logs an info-level message with optional key/value context.
func Info(ctx context.Context, msg string, keysAndValues ...any) {
	logger.Infow(msg, keysAndValues...)
}

// Warn logs a warn-level message with optional key/value context.
func Warn(ctx context.Context, msg string, keysAndValues ...any) {
	logger.Warnw(msg, keysAndValues...)
}

// Error logs an error-level message with optional key/value context.
func Error(ctx context.Context, msg string, keysAndValues ...any) {
	logger.Errorw(msg, keysAndValues...)
}

// Fatal logs a fatal-level message (and then exits) with optional key/value context.
func Fatal(ctx context.Context, msg string, keysAndValues ...any) {
	logger.Fatalw(msg, keysAndValues...)
}
