// Package log provides the process-wide logger for tether commands.
//
// Output goes to stderr so that command results (label lists, env dumps)
// can be consumed from stdout by workflow steps. Debug verbosity can be
// forced through the GitHub Actions debug-logging variables without any
// flag plumbing.
package log

import (
	"os"
	"sync"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Level represents the verbosity of logging
type Level string

const (
	// LevelDebug enables all logs
	LevelDebug Level = "debug"
	// LevelInfo enables info, warning, and error logs
	LevelInfo Level = "info"
	// LevelWarn enables warning and error logs
	LevelWarn Level = "warn"
	// LevelError enables only error logs
	LevelError Level = "error"
)

// debugEnvVars force debug verbosity when any of them carries a non-empty
// value. RUNNER_DEBUG and ACTIONS_RUNNER_DEBUG are set by GitHub Actions
// when a run is started with debug logging enabled; WAIT_FOR_CONNECTION_DEBUG
// is tether's own switch.
var debugEnvVars = []string{
	"WAIT_FOR_CONNECTION_DEBUG",
	"RUNNER_DEBUG",
	"ACTIONS_RUNNER_DEBUG",
}

// global logger instance
var (
	globalLogger *zap.SugaredLogger
	globalMutex  sync.RWMutex
)

// Config holds logger configuration
type Config struct {
	Level  Level
	Format string // "console" (json reserved)
}

// DefaultConfig returns the default logger configuration. The default level
// is info, or debug when one of the runner debug variables is set.
func DefaultConfig() Config {
	level := LevelInfo
	if DebugRequested() {
		level = LevelDebug
	}
	return Config{
		Level:  level,
		Format: "console",
	}
}

// DebugRequested reports whether the surrounding CI run asked for debug
// logging. Presence of any non-empty value counts; the value itself is not
// interpreted.
func DebugRequested() bool {
	for _, name := range debugEnvVars {
		if os.Getenv(name) != "" {
			return true
		}
	}
	return false
}

// Init initializes the global logger with the given configuration
func Init(cfg Config) error {
	logger := createLoggerWithLevel(mapLevel(cfg.Level))

	globalMutex.Lock()
	defer globalMutex.Unlock()
	globalLogger = logger.Sugar()
	return nil
}

// mapLevel maps our log level to zap's. An empty level falls back to the
// default config resolution so callers can pass flag values through directly.
func mapLevel(level Level) zapcore.Level {
	switch level {
	case LevelDebug:
		return zapcore.DebugLevel
	case LevelInfo:
		return zapcore.InfoLevel
	case LevelWarn:
		return zapcore.WarnLevel
	case LevelError:
		return zapcore.ErrorLevel
	default:
		return mapLevel(DefaultConfig().Level)
	}
}

// buildEncoderConfig creates the encoder configuration for console output.
// No timestamps: CI runners stamp every line themselves, and the local case
// reads better without them.
func buildEncoderConfig() zapcore.EncoderConfig {
	return zapcore.EncoderConfig{
		TimeKey:        zapcore.OmitKey,
		LevelKey:       "L",
		NameKey:        "N",
		CallerKey:      zapcore.OmitKey,
		FunctionKey:    zapcore.OmitKey,
		MessageKey:     "M",
		StacktraceKey:  zapcore.OmitKey,
		LineEnding:     zapcore.DefaultLineEnding,
		EncodeLevel:    zapcore.CapitalLevelEncoder,
		EncodeTime:     zapcore.ISO8601TimeEncoder,
		EncodeDuration: zapcore.StringDurationEncoder,
	}
}

// Get returns the global logger
// If not initialized, it initializes with default config
func Get() *zap.SugaredLogger {
	globalMutex.RLock()
	logger := globalLogger
	globalMutex.RUnlock()

	if logger != nil {
		return logger
	}

	// Build the logger before taking the write lock; Init also acquires it.
	loggerToSet := createLoggerWithLevel(mapLevel(DefaultConfig().Level)).Sugar()

	globalMutex.Lock()
	defer globalMutex.Unlock()

	// Check again in case another goroutine initialized while we were creating
	if globalLogger != nil {
		return globalLogger
	}

	globalLogger = loggerToSet
	return globalLogger
}

// createLoggerWithLevel creates a new logger with the given zap level
func createLoggerWithLevel(zapLevel zapcore.Level) *zap.Logger {
	encoder := zapcore.NewConsoleEncoder(buildEncoderConfig())
	writeSyncer := zapcore.AddSync(os.Stderr)
	core := zapcore.NewCore(encoder, writeSyncer, zapLevel)
	return zap.New(core)
}

// Debug logs a debug message
func Debug(msg string, args ...interface{}) {
	Get().Debugw(msg, args...)
}

// Debugf logs a formatted debug message
func Debugf(template string, args ...interface{}) {
	Get().Debugf(template, args...)
}

// Info logs an info message
func Info(msg string, args ...interface{}) {
	Get().Infow(msg, args...)
}

// Infof logs a formatted info message
func Infof(template string, args ...interface{}) {
	Get().Infof(template, args...)
}

// Warn logs a warning message
func Warn(msg string, args ...interface{}) {
	Get().Warnw(msg, args...)
}

// Warnf logs a formatted warning message
func Warnf(template string, args ...interface{}) {
	Get().Warnf(template, args...)
}

// Error logs an error message
func Error(msg string, args ...interface{}) {
	Get().Errorw(msg, args...)
}

// Errorf logs a formatted error message
func Errorf(template string, args ...interface{}) {
	Get().Errorf(template, args...)
}

// With returns a logger with additional fields
func With(args ...interface{}) *zap.SugaredLogger {
	return Get().With(args...)
}

// Sync flushes any buffered log entries
func Sync() error {
	globalMutex.RLock()
	logger := globalLogger
	globalMutex.RUnlock()

	if logger != nil {
		return logger.Sync()
	}
	return nil
}

// Reset resets the global logger (mainly for testing)
func Reset() {
	globalMutex.Lock()
	defer globalMutex.Unlock()
	if globalLogger != nil {
		_ = globalLogger.Sync()
	}
	globalLogger = nil
}
