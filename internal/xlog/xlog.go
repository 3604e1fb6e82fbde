// Package xlog is the structured logger shared by ServiceKeeper, WatchTask,
// and the transport layer. It wraps a package-level *zap.SugaredLogger so
// every component logs through the same sink without threading a logger
// value through every constructor.
package xlog

import (
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// L is the active logger. It is a safe no-op until Initialize is called,
// so packages may log during construction without panicking.
var L *zap.SugaredLogger

func init() {
	L = zap.NewNop().Sugar()
}

// Initialize configures the global logger. jsonOutput selects a
// production JSON encoder suited to log aggregation; otherwise a compact
// console encoder is used, suited to interactive use of the client.
func Initialize(jsonOutput bool) error {
	var zapLogger *zap.Logger
	var err error

	if jsonOutput {
		cfg := zap.NewProductionConfig()
		cfg.Level = zap.NewAtomicLevelAt(zap.InfoLevel)
		zapLogger, err = cfg.Build()
		if err != nil {
			return err
		}
	} else {
		zapLogger = zap.New(
			zapcore.NewCore(
				newConsoleEncoder(),
				zapcore.AddSync(consoleSink),
				zap.InfoLevel,
			),
		)
	}

	L = zapLogger.Sugar()
	return nil
}

// Cleanup flushes any buffered log entries. Safe to call even if
// Initialize was never called.
func Cleanup() error {
	if L != nil {
		return L.Sync()
	}
	return nil
}

// Infow logs an info message with structured fields.
func Infow(msg string, keysAndValues ...interface{}) {
	if L != nil {
		L.Infow(msg, keysAndValues...)
	}
}

// Warnw logs a warning message with structured fields.
func Warnw(msg string, keysAndValues ...interface{}) {
	if L != nil {
		L.Warnw(msg, keysAndValues...)
	}
}

// Errorw logs an error message with structured fields.
func Errorw(msg string, keysAndValues ...interface{}) {
	if L != nil {
		L.Errorw(msg, keysAndValues...)
	}
}

// Debugw logs a debug message with structured fields.
func Debugw(msg string, keysAndValues ...interface{}) {
	if L != nil {
		L.Debugw(msg, keysAndValues...)
	}
}
