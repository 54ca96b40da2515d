// Package logger wraps go.uber.org/zap behind the package-level
// Init/Get/Sync access pattern the rest of this codebase's workers and
// repositories assume (mirrors the logger.Get() singleton used throughout
// the reference worker/saga packages, which imported this package without
// it ever having been checked in).
package logger

import (
	"os"
	"sync"

	"go.uber.org/zap"
)

var (
	mu     sync.RWMutex
	global *zap.SugaredLogger
)

// Config controls how the global logger is built.
type Config struct {
	Environment string // "production" enables JSON encoding, anything else console
	Level       string // debug, info, warn, error
}

// Init builds and installs the global logger. Safe to call once at process
// start; subsequent calls replace the global logger.
func Init(cfg Config) error {
	level := zap.InfoLevel
	if err := level.Set(cfg.Level); err != nil {
		level = zap.InfoLevel
	}

	var zcfg zap.Config
	if cfg.Environment == "production" {
		zcfg = zap.NewProductionConfig()
	} else {
		zcfg = zap.NewDevelopmentConfig()
	}
	zcfg.Level = zap.NewAtomicLevelAt(level)

	l, err := zcfg.Build()
	if err != nil {
		return err
	}

	mu.Lock()
	global = l.Sugar()
	mu.Unlock()
	return nil
}

// Get returns the global logger, building a sane default if Init was never
// called — this keeps packages usable standalone in tests.
func Get() *zap.SugaredLogger {
	mu.RLock()
	l := global
	mu.RUnlock()
	if l != nil {
		return l
	}

	mu.Lock()
	defer mu.Unlock()
	if global == nil {
		fallback, _ := zap.NewDevelopment()
		global = fallback.Sugar()
	}
	return global
}

// Sync flushes any buffered log entries. Call during graceful shutdown.
func Sync() {
	if l := Get(); l != nil {
		_ = l.Sync()
	}
}

// Info logs at info level with structured key/value pairs.
func Info(msg string, kv ...any) { Get().Infow(msg, kv...) }

// Warn logs at warn level with structured key/value pairs.
func Warn(msg string, kv ...any) { Get().Warnw(msg, kv...) }

// Error logs at error level with structured key/value pairs.
func Error(msg string, kv ...any) { Get().Errorw(msg, kv...) }

// Debug logs at debug level with structured key/value pairs.
func Debug(msg string, kv ...any) { Get().Debugw(msg, kv...) }

// Fatal logs at error level then exits the process with status 1.
func Fatal(msg string, kv ...any) {
	Get().Errorw(msg, kv...)
	Sync()
	os.Exit(1)
}
