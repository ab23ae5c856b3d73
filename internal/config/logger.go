package config

import (
	"fmt"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// InitLogger builds a JSON logger in production and a console logger elsewhere.
// Unknown levels fall back to info.
func InitLogger(env, logLevel string) (*zap.Logger, error) {
	var cfg zap.Config
	if env == "production" {
		cfg = zap.NewProductionConfig()
		cfg.EncoderConfig.TimeKey = "timestamp"
		cfg.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	} else {
		cfg = zap.NewDevelopmentConfig()
		cfg.EncoderConfig.EncodeLevel = zapcore.CapitalColorLevelEncoder
	}

	level := zapcore.InfoLevel
	if logLevel != "" {
		if parsed, err := zapcore.ParseLevel(logLevel); err == nil {
			level = parsed
		}
	}
	cfg.Level = zap.NewAtomicLevelAt(level)

	logger, err := cfg.Build()
	if err != nil {
		return nil, fmt.Errorf("failed to build logger: %w", err)
	}
	return logger, nil
}

// MustInitLogger is InitLogger that panics on failure
func MustInitLogger(env, logLevel string) *zap.Logger {
	logger, err := InitLogger(env, logLevel)
	if err != nil {
		panic(err)
	}
	return logger
}
