// Package logging provides structured logging for the grading service.
package logging

import (
	"os"
	"sync"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

var (
	logger *zap.Logger
	sugar  *zap.SugaredLogger
	once   sync.Once
)

// Init initializes the global logger from ENVIRONMENT and LOG_LEVEL.
// Safe to call multiple times.
func Init() {
	once.Do(func() {
		env := os.Getenv("ENVIRONMENT")

		var cfg zap.Config
		if env == "production" {
			cfg = zap.NewProductionConfig()
			cfg.EncoderConfig.TimeKey = "ts"
			cfg.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
		} else {
			cfg = zap.NewDevelopmentConfig()
			cfg.EncoderConfig.EncodeLevel = zapcore.CapitalColorLevelEncoder
		}
		cfg.Level = zap.NewAtomicLevelAt(level(env, os.Getenv("LOG_LEVEL")))

		var err error
		logger, err = cfg.Build(zap.AddCallerSkip(1))
		if err != nil {
			// Fallback to nop logger
			logger = zap.NewNop()
		}
		if env == "production" {
			logger = logger.With(zap.String("service", "gradehouse"))
		}
		sugar = logger.Sugar()
	})
}

// level resolves the configured log level. An explicit LOG_LEVEL wins;
// otherwise production gets info and everything else gets debug.
func level(environment, raw string) zapcore.Level {
	if raw != "" {
		if parsed, err := zapcore.ParseLevel(raw); err == nil {
			return parsed
		}
	}
	if environment == "production" {
		return zapcore.InfoLevel
	}
	return zapcore.DebugLevel
}

// L returns the global structured logger
func L() *zap.Logger {
	if logger == nil {
		Init()
	}
	return logger
}

// S returns the global sugared logger (printf-style)
func S() *zap.SugaredLogger {
	if sugar == nil {
		Init()
	}
	return sugar
}

// Sync flushes any buffered log entries. Call before app exit.
func Sync() {
	if logger != nil {
		_ = logger.Sync()
	}
}

// WithContext returns a logger with additional structured fields
func WithContext(fields ...zap.Field) *zap.Logger {
	return L().With(fields...)
}
