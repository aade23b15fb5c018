// Package logger builds the process-wide zap logger from environment-driven
// configuration. Everything downstream takes a *zap.Logger; this package only
// owns construction.
package logger

import (
	"fmt"
	"strings"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Logger is the constructed logging handle handed to the bootstrap. Components
// receive the underlying *zap.Logger via GetZapLogger.
type Logger interface {
	Debug(msg string, fields ...zapcore.Field)
	Info(msg string, fields ...zapcore.Field)
	Warn(msg string, fields ...zapcore.Field)
	Error(msg string, fields ...zapcore.Field)
	With(fields ...zapcore.Field) Logger
	Sync() error
	GetZapLogger() *zap.Logger
}

// Config selects the encoder, level, and the service field stamped on every
// entry.
type Config struct {
	Environment string // "production" (JSON) or anything else (console)
	LogLevel    string // "debug", "info", "warn", "error"
	ServiceName string
}

// DefaultConfig returns the development defaults.
func DefaultConfig() Config {
	return Config{
		Environment: "development",
		LogLevel:    "info",
		ServiceName: "weatherzone",
	}
}

type logger struct {
	zl *zap.Logger
}

// New builds a logger for cfg. Production gets the JSON encoder and
// error-level stacktraces; everything else gets the colored console encoder.
func New(cfg Config) (Logger, error) {
	var zapCfg zap.Config
	if strings.EqualFold(cfg.Environment, "production") {
		zapCfg = zap.NewProductionConfig()
	} else {
		zapCfg = zap.NewDevelopmentConfig()
		zapCfg.EncoderConfig.EncodeLevel = zapcore.CapitalColorLevelEncoder
	}
	zapCfg.Level = zap.NewAtomicLevelAt(parseLevel(cfg.LogLevel))
	if cfg.ServiceName != "" {
		zapCfg.InitialFields = map[string]interface{}{"service": cfg.ServiceName}
	}

	zl, err := zapCfg.Build(zap.AddCaller(), zap.AddStacktrace(zapcore.ErrorLevel))
	if err != nil {
		return nil, fmt.Errorf("failed to build logger: %w", err)
	}
	return &logger{zl: zl}, nil
}

// NewDefault builds a logger with DefaultConfig.
func NewDefault() (Logger, error) {
	return New(DefaultConfig())
}

func (l *logger) Debug(msg string, fields ...zapcore.Field) { l.zl.Debug(msg, fields...) }
func (l *logger) Info(msg string, fields ...zapcore.Field)  { l.zl.Info(msg, fields...) }
func (l *logger) Warn(msg string, fields ...zapcore.Field)  { l.zl.Warn(msg, fields...) }
func (l *logger) Error(msg string, fields ...zapcore.Field) { l.zl.Error(msg, fields...) }

func (l *logger) With(fields ...zapcore.Field) Logger {
	return &logger{zl: l.zl.With(fields...)}
}

func (l *logger) Sync() error { return l.zl.Sync() }

func (l *logger) GetZapLogger() *zap.Logger { return l.zl }

func parseLevel(s string) zapcore.Level {
	switch strings.ToLower(s) {
	case "debug":
		return zapcore.DebugLevel
	case "info":
		return zapcore.InfoLevel
	case "warn", "warning":
		return zapcore.WarnLevel
	case "error":
		return zapcore.ErrorLevel
	default:
		return zapcore.InfoLevel
	}
}
